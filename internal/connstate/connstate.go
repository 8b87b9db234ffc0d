// Package connstate implements the per-connection lifecycle state machine:
// a connection starts Fresh, accumulates messages in a bounded Limbo queue
// until it announces which space and agent it speaks for, then becomes
// Joined and is handled directly from then on.
package connstate

import (
	"errors"
	"fmt"
	"sync"

	"github.com/arkeep-io/switchboard/internal/wire"
)

// Phase identifies where a connection sits in its lifecycle.
type Phase int

const (
	// Fresh is the initial phase: no message has been queued or processed
	// yet, and the connection has not announced a space/agent.
	Fresh Phase = iota
	// Limbo holds messages that arrived before the connection announced
	// its space and agent, in arrival order.
	Limbo
	// Joined means the connection is bound to a (space, agent) pair and
	// every message on it is routed directly.
	Joined
)

func (p Phase) String() string {
	switch p {
	case Fresh:
		return "fresh"
	case Limbo:
		return "limbo"
	case Joined:
		return "joined"
	default:
		return "unknown"
	}
}

// ErrLimboQueueFull is returned by Enqueue when a connection has been kept
// waiting past its configured queue capacity without joining a space. The
// caller (switchboard) treats this as fatal to the connection.
var ErrLimboQueueFull = errors.New("connstate: limbo queue full")

// Conn tracks one connection's lifecycle phase and, while in Limbo, the
// ordered backlog of messages it received before joining a space.
//
// Conn is safe for concurrent use; the switchboard core is single-threaded
// but the admin surface may read Phase for diagnostics.
type Conn struct {
	mu sync.Mutex

	phase    Phase
	queue    []wire.WireMessage
	queueCap int

	space wire.SpaceHash
	agent wire.AgentID
}

// New returns a Fresh connection whose Limbo queue holds at most queueCap
// messages before Enqueue starts returning ErrLimboQueueFull.
func New(queueCap int) *Conn {
	return &Conn{phase: Fresh, queueCap: queueCap}
}

// Phase returns the connection's current lifecycle phase.
func (c *Conn) Phase() Phase {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phase
}

// SpaceAgent returns the bound (space, agent) pair, valid only once Joined.
func (c *Conn) SpaceAgent() (wire.SpaceHash, wire.AgentID, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.phase != Joined {
		return "", "", false
	}
	return c.space, c.agent, true
}

// Enqueue records msg as having arrived while the connection is not yet
// Joined. A Fresh connection transitions to Limbo on its first enqueued
// message: any non-JoinSpace message while Fresh moves the connection to
// Limbo rather than being dropped or processed. Calling Enqueue on an
// already-Joined connection is a programming error — callers must route
// Joined-connection traffic directly instead.
func (c *Conn) Enqueue(msg wire.WireMessage) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.phase == Joined {
		panic("connstate: Enqueue called on a Joined connection")
	}
	if len(c.queue) >= c.queueCap {
		return fmt.Errorf("%w: cap %d", ErrLimboQueueFull, c.queueCap)
	}
	c.phase = Limbo
	c.queue = append(c.queue, msg)
	return nil
}

// Join transitions the connection to Joined, binding it to space and
// agent, and returns the backlog of messages queued while it was in Limbo,
// in arrival order, for replay by the caller. The queue is cleared; Limbo
// messages themselves never mutated any space state — only the replay,
// now running with a known agent and space, may do so.
func (c *Conn) Join(space wire.SpaceHash, agent wire.AgentID) []wire.WireMessage {
	c.mu.Lock()
	defer c.mu.Unlock()

	backlog := c.queue
	c.queue = nil
	c.phase = Joined
	c.space = space
	c.agent = agent
	return backlog
}

// Leave resets the connection back to Fresh, clearing its space/agent
// binding and any Limbo backlog, so the connection could join a different
// space. The switchboard does not call it: on LeaveSpace it removes the
// connection entirely and closes it.
func (c *Conn) Leave() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.phase = Fresh
	c.queue = nil
	c.space = ""
	c.agent = ""
}

// QueueLen reports how many messages are currently backlogged in Limbo.
func (c *Conn) QueueLen() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.queue)
}

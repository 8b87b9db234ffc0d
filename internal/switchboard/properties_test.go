package switchboard

import (
	"fmt"
	"math/rand"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/arkeep-io/switchboard/internal/connstate"
	"github.com/arkeep-io/switchboard/internal/cryptosys"
	"github.com/arkeep-io/switchboard/internal/wire"
	"github.com/arkeep-io/switchboard/internal/wsadapter"
)

// Randomized trace tests for the universal invariants. Each test drives a
// Switchboard directly through handleEvent (bypassing Run's goroutine) so a
// trace replays synchronously and internal state can be inspected between
// steps, then seeds math/rand explicitly for reproducibility.

// capturingSender is a Sender that records every command it's asked to send
// and never produces events of its own; traces are driven by calling
// handleEvent directly rather than through Run.
type capturingSender struct {
	mu   sync.Mutex
	sent []wsadapter.Command
}

func (s *capturingSender) Send(cmd wsadapter.Command) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, cmd)
}

func (s *capturingSender) Events() <-chan wsadapter.Event { return nil }

func (s *capturingSender) sentTo(t *testing.T, id wsadapter.ConnID) []wire.WireMessage {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []wire.WireMessage
	for _, cmd := range s.sent {
		sm, ok := cmd.(wsadapter.SendMessage)
		if !ok || sm.ID != id {
			continue
		}
		msg, err := wire.Decode(sm.Raw)
		require.NoError(t, err)
		out = append(out, msg)
	}
	return out
}

func newPropertySwitchboard(t *testing.T, seed int64) (*Switchboard, *capturingSender) {
	t.Helper()
	sender := &capturingSender{}
	sb, err := New(Config{
		Crypto:  cryptosys.New(),
		Adapter: sender,
		Rand:    rand.New(rand.NewSource(seed)),
	})
	require.NoError(t, err)
	return sb, sender
}

func propertySignedRaw(t *testing.T, kp cryptosys.Keypair, msg wire.WireMessage) []byte {
	t.Helper()
	signed, err := wire.Sign(msg, kp.AgentID(), kp.Sign)
	require.NoError(t, err)
	raw, err := wire.EncodeSignedWireMessage(signed)
	require.NoError(t, err)
	return raw
}

// TestPropertyJoinedConnectionAgentBindingConsistent is a randomized trace
// test for invariant 1: for every (uri -> Joined(s,a)) binding,
// spaces[s].agents[a].uri == uri.
func TestPropertyJoinedConnectionAgentBindingConsistent(t *testing.T) {
	const seed = 20260730
	rnd := rand.New(rand.NewSource(seed))
	sb, _ := newPropertySwitchboard(t, seed)

	type agentConn struct {
		uri wire.Uri
		kp  cryptosys.Keypair
	}
	var conns []agentConn
	spacePool := []wire.SpaceHash{"S0", "S1", "S2"}

	for step := 0; step < 300; step++ {
		switch rnd.Intn(3) {
		case 0: // open a fresh connection
			uri := wire.Uri(fmt.Sprintf("u%d", step))
			kp, err := cryptosys.GenerateKeypair()
			require.NoError(t, err)
			sb.handleEvent(wsadapter.ConnectionOpened{ID: wsadapter.ConnID(uri)})
			conns = append(conns, agentConn{uri: uri, kp: kp})

		case 1: // join a random connection to a random space
			if len(conns) == 0 {
				continue
			}
			c := conns[rnd.Intn(len(conns))]
			sp := spacePool[rnd.Intn(len(spacePool))]
			raw := propertySignedRaw(t, c.kp, wire.JoinSpace{SpaceAddress: sp, AgentID: c.kp.AgentID()})
			sb.handleEvent(wsadapter.MessageReceived{ID: wsadapter.ConnID(c.uri), Raw: raw})

		case 2: // disconnect a random connection
			if len(conns) == 0 {
				continue
			}
			i := rnd.Intn(len(conns))
			c := conns[i]
			sb.handleEvent(wsadapter.ConnectionClosed{ID: wsadapter.ConnID(c.uri)})
			conns = append(conns[:i], conns[i+1:]...)
		}

		for uri, conn := range sb.conns {
			space, agent, joined := conn.SpaceAgent()
			if !joined {
				continue
			}
			sp, ok := sb.spaces[space]
			require.Truef(t, ok, "step %d: joined connection %s references absent space %s", step, uri, space)
			got, ok := sp.AgentIDToURI(agent)
			require.Truef(t, ok, "step %d: space %s has no entry for agent %s bound to %s", step, space, agent, uri)
			require.Equalf(t, uri, got, "step %d: space %s binds agent %s to %s, not %s", step, space, agent, got, uri)
		}
	}
}

// TestPropertyDisconnectRemovesEveryTraceOfConnection is a randomized trace
// test for invariant 2: after disconnect(uri), no space references uri, and
// a space that loses its last agent is removed entirely.
func TestPropertyDisconnectRemovesEveryTraceOfConnection(t *testing.T) {
	const seed = 20260731
	rnd := rand.New(rand.NewSource(seed))
	sb, _ := newPropertySwitchboard(t, seed)

	type agentConn struct {
		uri wire.Uri
		kp  cryptosys.Keypair
	}
	var conns []agentConn
	spacePool := []wire.SpaceHash{"S0", "S1"}

	for step := 0; step < 300; step++ {
		switch rnd.Intn(3) {
		case 0:
			uri := wire.Uri(fmt.Sprintf("u%d", step))
			kp, err := cryptosys.GenerateKeypair()
			require.NoError(t, err)
			sb.handleEvent(wsadapter.ConnectionOpened{ID: wsadapter.ConnID(uri)})
			conns = append(conns, agentConn{uri: uri, kp: kp})

		case 1:
			if len(conns) == 0 {
				continue
			}
			c := conns[rnd.Intn(len(conns))]
			sp := spacePool[rnd.Intn(len(spacePool))]
			raw := propertySignedRaw(t, c.kp, wire.JoinSpace{SpaceAddress: sp, AgentID: c.kp.AgentID()})
			sb.handleEvent(wsadapter.MessageReceived{ID: wsadapter.ConnID(c.uri), Raw: raw})

		case 2:
			if len(conns) == 0 {
				continue
			}
			i := rnd.Intn(len(conns))
			c := conns[i]

			spaceBefore, agentBefore, wasJoined := wire.SpaceHash(""), wire.AgentID(""), false
			if conn, ok := sb.conns[c.uri]; ok {
				spaceBefore, agentBefore, wasJoined = conn.SpaceAgent()
			}
			var remainingBefore int
			if wasJoined {
				remainingBefore = sb.spaces[spaceBefore].AgentCount()
			}

			sb.handleEvent(wsadapter.ConnectionClosed{ID: wsadapter.ConnID(c.uri)})
			conns = append(conns[:i], conns[i+1:]...)

			_, stillTracked := sb.conns[c.uri]
			require.Falsef(t, stillTracked, "step %d: disconnected uri %s still present in conns", step, c.uri)

			if !wasJoined {
				continue
			}
			if remainingBefore <= 1 {
				_, stillExists := sb.spaces[spaceBefore]
				require.Falsef(t, stillExists, "step %d: space %s should be removed after its last agent disconnects", step, spaceBefore)
				continue
			}
			sp, ok := sb.spaces[spaceBefore]
			require.True(t, ok)
			for _, info := range sp.AllAgents() {
				require.NotEqualf(t, c.uri, info.Uri, "step %d: space %s still references disconnected uri %s", step, spaceBefore, c.uri)
			}
			_, stillBound := sp.AgentIDToURI(agentBefore)
			require.False(t, stillBound, "step %d: space %s still binds disconnected agent %s", step, spaceBefore, agentBefore)
		}
	}
}

// TestPropertyAllAspectsMonotonicWithoutDisconnection is a randomized trace
// test for invariant 3: space.all_aspects is monotonically non-decreasing
// over a trace with no disconnections.
func TestPropertyAllAspectsMonotonicWithoutDisconnection(t *testing.T) {
	const seed = 20260732
	rnd := rand.New(rand.NewSource(seed))
	sb, _ := newPropertySwitchboard(t, seed)

	kp, err := cryptosys.GenerateKeypair()
	require.NoError(t, err)
	const uri = wire.Uri("u0")
	const sp = wire.SpaceHash("S0")

	sb.handleEvent(wsadapter.ConnectionOpened{ID: wsadapter.ConnID(uri)})
	sb.handleEvent(wsadapter.MessageReceived{
		ID:  wsadapter.ConnID(uri),
		Raw: propertySignedRaw(t, kp, wire.JoinSpace{SpaceAddress: sp, AgentID: kp.AgentID()}),
	})

	prevCount := 0
	for step := 0; step < 300; step++ {
		entry := wire.EntryHash(fmt.Sprintf("E%d", rnd.Intn(20)))
		aspectCount := rnd.Intn(3) + 1
		aspects := make([]wire.AspectData, aspectCount)
		for i := range aspects {
			aspects[i] = wire.AspectData{AspectAddress: wire.AspectHash(fmt.Sprintf("AS%s-%d", entry, rnd.Intn(50)))}
		}

		sb.handleEvent(wsadapter.MessageReceived{
			ID: wsadapter.ConnID(uri),
			Raw: propertySignedRaw(t, kp, wire.PublishEntry{
				SpaceAddress:    sp,
				ProviderAgentID: kp.AgentID(),
				Entry:           wire.EntryData{EntryAddress: entry, AspectList: aspects},
			}),
		})

		count := len(sb.spaces[sp].AllAspects().Pairs())
		require.GreaterOrEqualf(t, count, prevCount, "step %d: all_aspects shrank from %d to %d without a disconnection", step, prevCount, count)
		prevCount = count
	}
}

// TestPropertyLimboMessageNeverMutatesSpaces is a randomized trace test for
// invariant 7: a message from a Limbo connection other than JoinSpace never
// mutates spaces.
func TestPropertyLimboMessageNeverMutatesSpaces(t *testing.T) {
	const seed = 20260733
	rnd := rand.New(rand.NewSource(seed))
	sb, _ := newPropertySwitchboard(t, seed)

	kp, err := cryptosys.GenerateKeypair()
	require.NoError(t, err)
	const uri = wire.Uri("u0")
	sb.handleEvent(wsadapter.ConnectionOpened{ID: wsadapter.ConnID(uri)})

	// Stay well under the default Limbo queue capacity (64) so the
	// connection never gets dropped for overflow mid-trace.
	for step := 0; step < 50; step++ {
		before := len(sb.spaces)
		beforeCounts := make(map[wire.SpaceHash]int, before)
		for hash, sp := range sb.spaces {
			beforeCounts[hash] = sp.AgentCount()
		}

		raw := propertySignedRaw(t, kp, wire.SendDirectMessage{DirectMessageData: wire.DirectMessageData{
			SpaceAddress: wire.SpaceHash(fmt.Sprintf("S%d", rnd.Intn(5))),
			FromAgentID:  kp.AgentID(),
			ToAgentID:    wire.AgentID(fmt.Sprintf("peer-%d", rnd.Intn(5))),
			RequestID:    fmt.Sprintf("r%d", step),
		}})
		sb.handleEvent(wsadapter.MessageReceived{ID: wsadapter.ConnID(uri), Raw: raw})

		require.Lenf(t, sb.spaces, before, "step %d: limbo message changed the number of spaces", step)
		for hash, count := range beforeCounts {
			sp, ok := sb.spaces[hash]
			require.Truef(t, ok, "step %d: limbo message removed space %s", step, hash)
			require.Equalf(t, count, sp.AgentCount(), "step %d: limbo message changed agent count of space %s", step, hash)
		}
		require.Equal(t, connstate.Limbo, sb.conns[uri].Phase())
	}
}

// TestPropertyJoinSpaceReplaysLimboBacklogInOrder is a randomized trace test
// for invariant 8: after a successful JoinSpace, every previously queued
// Limbo message is replayed in original arrival order before any new
// message for that connection is processed.
func TestPropertyJoinSpaceReplaysLimboBacklogInOrder(t *testing.T) {
	const seed = 20260734
	rnd := rand.New(rand.NewSource(seed))
	sb, sender := newPropertySwitchboard(t, seed)

	sKp, err := cryptosys.GenerateKeypair()
	require.NoError(t, err)
	rKp, err := cryptosys.GenerateKeypair()
	require.NoError(t, err)

	const spaceHash = wire.SpaceHash("S0")
	const senderURI = wire.Uri("u-sender")
	const receiverURI = wire.Uri("u-receiver")

	// receiver joins first so it's a known, valid SendDirectMessage target.
	sb.handleEvent(wsadapter.ConnectionOpened{ID: wsadapter.ConnID(receiverURI)})
	sb.handleEvent(wsadapter.MessageReceived{
		ID:  wsadapter.ConnID(receiverURI),
		Raw: propertySignedRaw(t, rKp, wire.JoinSpace{SpaceAddress: spaceHash, AgentID: rKp.AgentID()}),
	})

	sb.handleEvent(wsadapter.ConnectionOpened{ID: wsadapter.ConnID(senderURI)})

	backlogSize := rnd.Intn(20) + 1
	var wantOrder []string
	for i := 0; i < backlogSize; i++ {
		requestID := fmt.Sprintf("req-%d-%d", i, rnd.Intn(1_000_000))
		wantOrder = append(wantOrder, requestID)
		raw := propertySignedRaw(t, sKp, wire.SendDirectMessage{DirectMessageData: wire.DirectMessageData{
			SpaceAddress: spaceHash,
			FromAgentID:  sKp.AgentID(),
			ToAgentID:    rKp.AgentID(),
			RequestID:    requestID,
		}})
		sb.handleEvent(wsadapter.MessageReceived{ID: wsadapter.ConnID(senderURI), Raw: raw})
	}

	sb.handleEvent(wsadapter.MessageReceived{
		ID:  wsadapter.ConnID(senderURI),
		Raw: propertySignedRaw(t, sKp, wire.JoinSpace{SpaceAddress: spaceHash, AgentID: sKp.AgentID()}),
	})

	var gotOrder []string
	for _, m := range sender.sentTo(t, wsadapter.ConnID(receiverURI)) {
		hsdm, ok := m.(wire.HandleSendDirectMessage)
		if !ok {
			continue
		}
		gotOrder = append(gotOrder, hsdm.RequestID)
	}

	require.Equal(t, wantOrder, gotOrder, "limbo backlog must replay in original arrival order")
}

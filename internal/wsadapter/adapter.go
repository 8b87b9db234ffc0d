package wsadapter

import (
	"context"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Adapter owns every live WebSocket connection. It exposes an Events
// channel the switchboard core drains, and accepts Commands the core
// issues to push traffic back out onto the wire. Commands are executed one
// at a time by the dispatch loop; the client registry is guarded by mu,
// since ServeHTTP adds and removes entries from each request's goroutine.
// Events is written to concurrently by every connection's readPump, since
// Go channels are already safe for that without extra locking.
type Adapter struct {
	logger *zap.Logger

	mu      sync.RWMutex
	clients map[ConnID]*client

	events   chan Event
	commands chan Command
}

// New creates an idle Adapter. Call Run in a goroutine to start processing
// commands, and mount ServeHTTP behind a WebSocket upgrade route.
func New(logger *zap.Logger) *Adapter {
	return &Adapter{
		logger:   logger.Named("wsadapter"),
		clients:  make(map[ConnID]*client),
		events:   make(chan Event, 4096),
		commands: make(chan Command, 4096),
	}
}

// Events returns the channel the switchboard core reads to learn about
// connection lifecycle and inbound traffic.
func (a *Adapter) Events() <-chan Event { return a.events }

// Send submits a command for the dispatch loop to execute. It blocks only
// if the command buffer itself is full, which would indicate the core has
// stopped draining — a fatal condition, so blocking here is the correct
// behavior rather than silently dropping work.
func (a *Adapter) Send(cmd Command) {
	a.commands <- cmd
}

// ServeHTTP upgrades the request to a WebSocket connection, registers it
// under a fresh ConnID, and runs its pumps until it closes.
func (a *Adapter) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		a.logger.Warn("wsadapter: upgrade failed", zap.Error(err))
		return
	}

	id := ConnID(uuid.NewString())
	c := newClient(id, conn, a.events, a.logger)

	a.mu.Lock()
	a.clients[id] = c
	a.mu.Unlock()

	a.logger.Info("wsadapter: connection opened", zap.String("conn_id", string(id)), zap.String("remote_addr", r.RemoteAddr))
	a.events <- ConnectionOpened{ID: id}

	c.run()

	a.mu.Lock()
	delete(a.clients, id)
	a.mu.Unlock()

	a.logger.Info("wsadapter: connection closed", zap.String("conn_id", string(id)))
	a.events <- ConnectionClosed{ID: id}
}

// Run drives the command dispatch loop until ctx is cancelled, at which
// point every open connection is closed and Run returns.
func (a *Adapter) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.dispatchLoop(ctx) })
	return g.Wait()
}

func (a *Adapter) dispatchLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			a.closeAll()
			return nil

		case cmd := <-a.commands:
			switch c := cmd.(type) {
			case SendMessage:
				a.dispatchSend(c)
			case CloseConnection:
				a.dispatchClose(c)
			}
		}
	}
}

func (a *Adapter) dispatchSend(cmd SendMessage) {
	a.mu.RLock()
	target, ok := a.clients[cmd.ID]
	a.mu.RUnlock()
	if !ok {
		return
	}
	if !target.enqueue(cmd.Raw) {
		a.logger.Warn("wsadapter: send buffer full, closing slow connection", zap.String("conn_id", string(cmd.ID)))
		target.conn.Close()
	}
}

func (a *Adapter) dispatchClose(cmd CloseConnection) {
	a.mu.RLock()
	target, ok := a.clients[cmd.ID]
	a.mu.RUnlock()
	if ok {
		target.conn.Close()
	}
}

func (a *Adapter) closeAll() {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, c := range a.clients {
		c.conn.Close()
	}
}

// ConnectionCount returns the number of currently open connections, for
// admin/metrics reporting.
func (a *Adapter) ConnectionCount() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.clients)
}

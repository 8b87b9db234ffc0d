// Package messagelog implements the process-wide append-only message log:
// every non-Ping/Pong message the switchboard sends is recorded with its
// signer, connection, and type.
package messagelog

import (
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/arkeep-io/switchboard/internal/wire"
)

// Entry is one logged message.
type Entry struct {
	ID     string
	Uri    wire.Uri
	Signer wire.AgentID
	Kind   wire.MessageType
}

// Log is a mutex-guarded, capacity-bounded record of recent messages. The
// original system's message log is unbounded; this implementation caps
// retention so the admin debug surface has something bounded to serve,
// while still logging every entry through zap regardless of retention.
type Log struct {
	mu       sync.Mutex
	logger   *zap.Logger
	entries  []Entry
	capacity int
}

// New creates a Log that retains at most capacity entries in memory
// (0 or negative disables in-memory retention, logging only).
func New(logger *zap.Logger, capacity int) *Log {
	return &Log{
		logger:   logger.Named("messagelog"),
		capacity: capacity,
	}
}

// Append records that uri, signed by signer, sent or received a message of
// the given kind.
func (l *Log) Append(signer wire.AgentID, uri wire.Uri, kind wire.MessageType) {
	entry := Entry{ID: uuid.NewString(), Uri: uri, Signer: signer, Kind: kind}

	l.mu.Lock()
	if l.capacity > 0 {
		l.entries = append(l.entries, entry)
		if len(l.entries) > l.capacity {
			l.entries = l.entries[len(l.entries)-l.capacity:]
		}
	}
	l.mu.Unlock()

	l.logger.Debug("message",
		zap.String("id", entry.ID),
		zap.String("uri", string(uri)),
		zap.String("signer", string(signer)),
		zap.String("type", string(kind)),
	)
}

// Recent returns a snapshot of the most recently appended entries, oldest
// first, at most n of them.
func (l *Log) Recent(n int) []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()

	if n <= 0 || n > len(l.entries) {
		n = len(l.entries)
	}
	start := len(l.entries) - n
	out := make([]Entry, n)
	copy(out, l.entries[start:])
	return out
}

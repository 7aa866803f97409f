// Package history keeps a journal of Lee Soon Sin events per session.
package history

import (
	"context"
	"time"
)

// Cause tells what put a session into the Lee Soon Sin state.
type Cause string

const (
	CauseCoins   Cause = "coins"
	CauseTimeout Cause = "timeout"
)

// Event is one Lee Soon Sin occurrence.
type Event struct {
	SessionID string    `json:"sessionId"`
	UserID    string    `json:"userId"`
	Name      string    `json:"name"`
	Cause     Cause     `json:"cause"`
	At        time.Time `json:"at"`
}

// Recorder stores and lists events. Implementations are safe for
// concurrent use.
type Recorder interface {
	Record(ctx context.Context, e Event) error
	List(ctx context.Context, sessionID string) ([]Event, error)
	Close() error
}

// Open returns a bbolt journal at path, or an in-memory one when path is empty.
func Open(path string) (Recorder, error) {
	if path == "" {
		return NewMemory(), nil
	}
	return OpenBolt(path)
}

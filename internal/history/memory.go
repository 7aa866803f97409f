package history

import (
	"context"
	"sync"
)

// Memory is a process-local Recorder.
type Memory struct {
	mu     sync.RWMutex
	events map[string][]Event
}

// NewMemory returns an empty journal.
func NewMemory() *Memory {
	return &Memory{events: make(map[string][]Event)}
}

// Record appends e to its session's journal.
func (m *Memory) Record(_ context.Context, e Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events[e.SessionID] = append(m.events[e.SessionID], e)
	return nil
}

// List returns the events of sessionID in record order.
func (m *Memory) List(_ context.Context, sessionID string) ([]Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]Event{}, m.events[sessionID]...), nil
}

// Close is a no-op.
func (m *Memory) Close() error {
	return nil
}

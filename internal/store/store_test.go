package store

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eos/lss/internal/game"
	"github.com/eos/lss/internal/metrics"
)

func newSession(id, code string) *game.Session {
	return &game.Session{ID: id, EntryCode: code, Phase: game.PhaseWaitingRoom}
}

func TestPutGetByEntryCode(t *testing.T) {
	s := New(Options{})
	defer s.Close()

	sess := newSession("s1", "123456")
	s.Put(sess)

	got, ok := s.Get("s1")
	require.True(t, ok)
	assert.Same(t, sess, got)

	got, ok = s.ByEntryCode("123456")
	require.True(t, ok)
	assert.Same(t, sess, got)

	assert.True(t, s.CodeInUse("123456"))
	assert.False(t, s.CodeInUse("654321"))
	assert.Equal(t, 1, s.Len())
}

func TestDeleteFreesEntryCode(t *testing.T) {
	s := New(Options{})
	defer s.Close()

	evicted := make(chan string, 1)
	s.OnEvict(func(id string) { evicted <- id })

	s.Put(newSession("s1", "000042"))
	s.Delete("s1")

	_, ok := s.Get("s1")
	assert.False(t, ok)
	_, ok = s.ByEntryCode("000042")
	assert.False(t, ok)
	assert.False(t, s.CodeInUse("000042"))
	assert.Equal(t, 0, s.Len())

	select {
	case id := <-evicted:
		t.Fatalf("explicit delete must not report eviction, got %q", id)
	default:
	}
}

func TestDeleteUnknownIsNoop(t *testing.T) {
	s := New(Options{})
	defer s.Close()

	s.Delete("missing")
	assert.Equal(t, 0, s.Len())
}

func TestIdleSessionExpires(t *testing.T) {
	s := New(Options{TTL: 20 * time.Millisecond, CleanupInterval: 5 * time.Millisecond})
	defer s.Close()

	evicted := make(chan string, 1)
	s.OnEvict(func(id string) { evicted <- id })

	s.Put(newSession("s1", "111111"))

	select {
	case id := <-evicted:
		assert.Equal(t, "s1", id)
	case <-time.After(2 * time.Second):
		t.Fatal("session was not evicted")
	}

	assert.False(t, s.CodeInUse("111111"))
	_, ok := s.Get("s1")
	assert.False(t, ok)
}

type roomCloser struct {
	mu     sync.Mutex
	closed []string
}

func (r *roomCloser) Broadcast(string, []byte)          {}
func (r *roomCloser) SendToUser(string, string, []byte) {}
func (r *roomCloser) Detach(string, string)             {}

func (r *roomCloser) CloseRoom(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = append(r.closed, sessionID)
}

func (r *roomCloser) rooms() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.closed...)
}

func activeSessions(t *testing.T, m *metrics.Metrics) float64 {
	t.Helper()
	families, err := m.Registry().Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() == "lss_active_sessions" {
			return mf.GetMetric()[0].GetGauge().GetValue()
		}
	}
	t.Fatal("lss_active_sessions not registered")
	return 0
}

func TestEvictionClosesRoomAndUpdatesGauge(t *testing.T) {
	s := New(Options{TTL: 50 * time.Millisecond, CleanupInterval: 10 * time.Millisecond})
	defer s.Close()

	m := metrics.New()
	rooms := &roomCloser{}
	svc := game.NewService(s, rooms, game.Options{Metrics: m})
	defer svc.Close()
	s.OnEvict(svc.SessionEvicted)

	v, err := svc.CreateSession(game.Player{UserID: "p", Name: "president"})
	require.NoError(t, err)
	require.Equal(t, 1.0, activeSessions(t, m))

	require.Eventually(t, func() bool {
		return len(rooms.rooms()) == 1 && activeSessions(t, m) == 0
	}, 2*time.Second, 10*time.Millisecond)

	assert.Equal(t, []string{v.SessionID}, rooms.rooms())
	assert.Equal(t, 0, s.Len())
	assert.Equal(t, 0.0, activeSessions(t, m))
	assert.Equal(t, 0, svc.SessionCount())
}

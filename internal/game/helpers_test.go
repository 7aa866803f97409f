package game

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/eos/lss/internal/history"
)

type mapStore struct {
	mu       sync.Mutex
	sessions map[string]*Session
}

func newMapStore() *mapStore {
	return &mapStore{sessions: make(map[string]*Session)}
}

func (m *mapStore) Put(s *Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.ID] = s
}

func (m *mapStore) Get(id string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	return s, ok
}

func (m *mapStore) ByEntryCode(code string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.sessions {
		if s.EntryCode == code {
			return s, true
		}
	}
	return nil, false
}

func (m *mapStore) CodeInUse(code string) bool {
	_, ok := m.ByEntryCode(code)
	return ok
}

func (m *mapStore) Delete(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
}

func (m *mapStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// frame is one payload handed to the notifier; user is empty for broadcasts.
type frame struct {
	user    string
	payload []byte
}

type recordingNotifier struct {
	mu       sync.Mutex
	frames   []frame
	detached []string
	closed   []string
}

func (r *recordingNotifier) Broadcast(_ string, payload []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frames = append(r.frames, frame{payload: payload})
}

func (r *recordingNotifier) SendToUser(_, userID string, payload []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frames = append(r.frames, frame{user: userID, payload: payload})
}

func (r *recordingNotifier) Detach(_, userID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.detached = append(r.detached, userID)
}

func (r *recordingNotifier) CloseRoom(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = append(r.closed, sessionID)
}

func (r *recordingNotifier) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frames = nil
	r.detached = nil
	r.closed = nil
}

// broadcastCodes lists the error codes sent to the whole room, in order.
func (r *recordingNotifier) broadcastCodes(t *testing.T) []Code {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	var codes []Code
	for _, f := range r.frames {
		if f.user != "" {
			continue
		}
		var ef ErrorFrame
		require.NoError(t, json.Unmarshal(f.payload, &ef))
		codes = append(codes, ef.ErrorCode)
	}
	return codes
}

// userCodes lists error codes sent to userID directly.
func (r *recordingNotifier) userCodes(t *testing.T, userID string) []Code {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	var codes []Code
	for _, f := range r.frames {
		if f.user != userID {
			continue
		}
		var ef ErrorFrame
		require.NoError(t, json.Unmarshal(f.payload, &ef))
		if ef.Type == TypeError {
			codes = append(codes, ef.ErrorCode)
		}
	}
	return codes
}

// lastView returns the most recent state view pushed to userID.
func (r *recordingNotifier) lastView(t *testing.T, userID string) (StateView, bool) {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.frames) - 1; i >= 0; i-- {
		f := r.frames[i]
		if f.user != userID {
			continue
		}
		var v StateView
		require.NoError(t, json.Unmarshal(f.payload, &v))
		if v.Type == TypeOK && v.GameState != "" {
			return v, true
		}
	}
	return StateView{}, false
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fixture struct {
	svc      *Service
	store    *mapStore
	notifier *recordingNotifier
	clock    *fakeClock
	history  *history.Memory
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:    newMapStore(),
		notifier: &recordingNotifier{},
		clock:    newFakeClock(),
		history:  history.NewMemory(),
	}
	f.svc = NewService(f.store, f.notifier, Options{
		Now:     f.clock.Now,
		History: f.history,
	})
	t.Cleanup(f.svc.Close)
	return f
}

// waitingRoom creates a session owned by "p" and joins the given users.
func (f *fixture) waitingRoom(t *testing.T, users ...string) StateView {
	t.Helper()
	v, err := f.svc.CreateSession(Player{UserID: "p", Name: "president"})
	require.NoError(t, err)
	for _, u := range users {
		_, err := f.svc.JoinSession(v.EntryCode, Player{UserID: u, Name: "name-"+u})
		require.NoError(t, err)
	}
	return v
}

// playing starts a game where "p" and every user registered in order.
func (f *fixture) playing(t *testing.T, users ...string) string {
	t.Helper()
	v := f.waitingRoom(t, users...)
	_, err := f.svc.StartOrdering(v.SessionID, "p")
	require.NoError(t, err)
	for _, u := range append([]string{"p"}, users...) {
		_, err := f.svc.RegisterOrder(v.SessionID, u)
		require.NoError(t, err)
	}
	_, err = f.svc.StartPlaying(v.SessionID, "p")
	require.NoError(t, err)
	f.notifier.reset()
	return v.SessionID
}

func (f *fixture) session(t *testing.T, id string) *Session {
	t.Helper()
	s, ok := f.store.Get(id)
	require.True(t, ok, "session %s missing", id)
	return s
}

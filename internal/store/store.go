// Package store keeps live game sessions in memory with a sliding idle
// timeout and an entry code index.
package store

import (
	"sync"
	"time"

	"github.com/erni27/imcache"

	"github.com/eos/lss/internal/game"
)

const (
	// DefaultTTL drops a session nobody touched for this long.
	DefaultTTL = 2 * time.Hour
	// DefaultCleanupInterval is how often expired sessions are swept.
	DefaultCleanupInterval = time.Minute
)

// Options configures a Sessions store.
type Options struct {
	TTL             time.Duration
	CleanupInterval time.Duration
}

// Sessions implements game.Store. Every Get or lookup by entry code
// extends the session's lifetime.
type Sessions struct {
	cache *imcache.Cache[string, *game.Session]
	ttl   time.Duration

	mu      sync.Mutex
	codes   map[string]string
	onEvict func(sessionID string)
}

var _ game.Store = (*Sessions)(nil)

// New starts a store and its background cleaner.
func New(opts Options) *Sessions {
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	if opts.CleanupInterval <= 0 {
		opts.CleanupInterval = DefaultCleanupInterval
	}
	s := &Sessions{
		ttl:   opts.TTL,
		codes: make(map[string]string),
	}
	s.cache = imcache.New[string, *game.Session](
		imcache.WithEvictionCallbackOption[string, *game.Session](s.evicted),
		imcache.WithCleanerOption[string, *game.Session](opts.CleanupInterval),
	)
	return s
}

// OnEvict registers fn to run when a session expires. fn must not call
// back into the store.
func (s *Sessions) OnEvict(fn func(sessionID string)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onEvict = fn
}

// Put stores sess and indexes its entry code.
func (s *Sessions) Put(sess *game.Session) {
	s.mu.Lock()
	s.codes[sess.EntryCode] = sess.ID
	s.mu.Unlock()

	s.cache.Set(sess.ID, sess, imcache.WithSlidingExpiration(s.ttl))
}

// Get returns the session and extends its lifetime.
func (s *Sessions) Get(id string) (*game.Session, bool) {
	return s.cache.Get(id)
}

// ByEntryCode finds a live session by its six-digit code.
func (s *Sessions) ByEntryCode(code string) (*game.Session, bool) {
	s.mu.Lock()
	id, ok := s.codes[code]
	s.mu.Unlock()
	if !ok {
		return nil, false
	}
	return s.cache.Get(id)
}

// CodeInUse reports whether a live session holds code.
func (s *Sessions) CodeInUse(code string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.codes[code]
	return ok
}

// Delete drops the session and frees its entry code. It does not count
// as an eviction.
func (s *Sessions) Delete(id string) {
	sess, ok := s.cache.Get(id)
	if !ok {
		return
	}
	s.mu.Lock()
	if s.codes[sess.EntryCode] == id {
		delete(s.codes, sess.EntryCode)
	}
	s.mu.Unlock()

	s.cache.Remove(id)
}

// Len reports live sessions.
func (s *Sessions) Len() int {
	return s.cache.Len()
}

// Close stops the cleaner.
func (s *Sessions) Close() {
	s.cache.Close()
}

func (s *Sessions) evicted(id string, sess *game.Session, reason imcache.EvictionReason) {
	if reason == imcache.EvictionReasonReplaced || reason == imcache.EvictionReasonRemoved {
		return
	}

	s.mu.Lock()
	if s.codes[sess.EntryCode] == id {
		delete(s.codes, sess.EntryCode)
	}
	hook := s.onEvict
	s.mu.Unlock()

	if hook != nil {
		hook(id)
	}
}

// Package ratelimit throttles game actions per user with one token bucket
// per (user, action) pair.
package ratelimit

import (
	"context"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Rule allows Max actions per Window.
type Rule struct {
	Max    int           `yaml:"max"`
	Window time.Duration `yaml:"window"`
}

func (r Rule) limit() rate.Limit {
	return rate.Every(r.Window / time.Duration(r.Max))
}

func (r Rule) valid() bool {
	return r.Max > 0 && r.Window > 0
}

// DefaultRules returns the per-action budgets used when none are configured.
func DefaultRules() map[string]Rule {
	return map[string]Rule{
		"coin-action":    {Max: 5, Window: 5 * time.Second},
		"next-turn":      {Max: 3, Window: 10 * time.Second},
		"register-order": {Max: 2, Window: 5 * time.Second},
		"start-playing":  {Max: 1, Window: 10 * time.Second},
		"delete-session": {Max: 1, Window: 30 * time.Second},
	}
}

// DefaultRule covers actions without a dedicated rule.
var DefaultRule = Rule{Max: 10, Window: 10 * time.Second}

// DefaultIdleTTL is how long an unused bucket survives Cleanup.
const DefaultIdleTTL = time.Hour

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Limiter is safe for concurrent use.
type Limiter struct {
	rules    map[string]Rule
	fallback Rule
	idleTTL  time.Duration

	mu      sync.Mutex
	buckets map[string]*bucket
}

// New builds a Limiter. Invalid rules are replaced by fallback, which in
// turn defaults to DefaultRule.
func New(rules map[string]Rule, fallback Rule) *Limiter {
	if !fallback.valid() {
		fallback = DefaultRule
	}
	if rules == nil {
		rules = DefaultRules()
	}
	clean := make(map[string]Rule, len(rules))
	for action, r := range rules {
		if r.valid() {
			clean[action] = r
		}
	}
	return &Limiter{
		rules:    clean,
		fallback: fallback,
		idleTTL:  DefaultIdleTTL,
		buckets:  make(map[string]*bucket),
	}
}

// RuleFor returns the rule applied to action.
func (l *Limiter) RuleFor(action string) Rule {
	if r, ok := l.rules[action]; ok {
		return r
	}
	return l.fallback
}

// Allow consumes one token for userID performing action at now. Empty
// identifiers are always rejected.
func (l *Limiter) Allow(userID, action string, now time.Time) bool {
	userID = strings.TrimSpace(userID)
	action = strings.TrimSpace(action)
	if userID == "" || action == "" {
		return false
	}

	key := userID + "|" + action

	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[key]
	if !ok {
		r := l.RuleFor(action)
		b = &bucket{limiter: rate.NewLimiter(r.limit(), r.Max)}
		l.buckets[key] = b
	}
	b.lastSeen = now
	return b.limiter.AllowN(now, 1)
}

// Cleanup forgets buckets idle for longer than the idle TTL and returns
// how many were dropped.
func (l *Limiter) Cleanup(now time.Time) int {
	cutoff := now.Add(-l.idleTTL)

	l.mu.Lock()
	defer l.mu.Unlock()

	dropped := 0
	for k, b := range l.buckets {
		if b.lastSeen.Before(cutoff) {
			delete(l.buckets, k)
			dropped++
		}
	}
	return dropped
}

// Len reports the number of live buckets.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}

// Run calls Cleanup every interval until ctx is done.
func (l *Limiter) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			l.Cleanup(now)
		}
	}
}

package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCoinActionBudget(t *testing.T) {
	l := New(nil, Rule{})
	now := time.Unix(1_700_000_000, 0)

	for i := 0; i < 5; i++ {
		require.True(t, l.Allow("u1", "coin-action", now), "attempt %d", i+1)
	}
	assert.False(t, l.Allow("u1", "coin-action", now))

	// One token comes back every second.
	assert.True(t, l.Allow("u1", "coin-action", now.Add(time.Second)))
	assert.False(t, l.Allow("u1", "coin-action", now.Add(time.Second)))
}

func TestBucketsAreIndependent(t *testing.T) {
	l := New(nil, Rule{})
	now := time.Unix(1_700_000_000, 0)

	require.True(t, l.Allow("u1", "start-playing", now))
	assert.False(t, l.Allow("u1", "start-playing", now))

	assert.True(t, l.Allow("u2", "start-playing", now), "other user")
	assert.True(t, l.Allow("u1", "next-turn", now), "other action")
}

func TestUnknownActionUsesFallback(t *testing.T) {
	l := New(map[string]Rule{}, Rule{Max: 2, Window: time.Minute})
	now := time.Unix(1_700_000_000, 0)

	assert.True(t, l.Allow("u1", "get-state", now))
	assert.True(t, l.Allow("u1", "get-state", now))
	assert.False(t, l.Allow("u1", "get-state", now))
}

func TestDefaultRuleForUnlistedAction(t *testing.T) {
	l := New(nil, Rule{})
	assert.Equal(t, DefaultRule, l.RuleFor("join-session"))
	assert.Equal(t, Rule{Max: 1, Window: 30 * time.Second}, l.RuleFor("delete-session"))
}

func TestInvalidRuleIsIgnored(t *testing.T) {
	l := New(map[string]Rule{"next-turn": {Max: 0, Window: time.Second}}, Rule{})
	assert.Equal(t, DefaultRule, l.RuleFor("next-turn"))
}

func TestEmptyIdentifiersRejected(t *testing.T) {
	l := New(nil, Rule{})
	now := time.Now()

	assert.False(t, l.Allow("", "coin-action", now))
	assert.False(t, l.Allow("u1", "", now))
	assert.False(t, l.Allow("  ", "coin-action", now))
	assert.Equal(t, 0, l.Len())
}

func TestCleanupDropsIdleBuckets(t *testing.T) {
	l := New(nil, Rule{})
	now := time.Unix(1_700_000_000, 0)

	l.Allow("old", "next-turn", now)
	l.Allow("fresh", "next-turn", now.Add(59*time.Minute))
	require.Equal(t, 2, l.Len())

	dropped := l.Cleanup(now.Add(time.Hour + time.Second))
	assert.Equal(t, 1, dropped)
	assert.Equal(t, 1, l.Len())
}

func TestRunStopsWithContext(t *testing.T) {
	l := New(nil, Rule{})
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- l.Run(ctx, time.Millisecond) }()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLimiter(start time.Time) (*MemoryLimiter, *time.Time) {
	clock := start
	l := NewMemoryLimiter()
	l.now = func() time.Time { return clock }
	return l, &clock
}

func TestMemoryLimiter_FixedWindow(t *testing.T) {
	ctx := context.Background()
	start := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	l, clock := newTestLimiter(start)

	wantReset := start.Add(time.Minute)
	for i, wantRemaining := range []int{4, 3, 2, 1, 0} {
		d := l.Check(ctx, "search:1.2.3.4:", 5, time.Minute)
		require.True(t, d.Allowed, "request %d within the limit must pass", i+1)
		assert.Equal(t, wantRemaining, d.Remaining)
		assert.Equal(t, wantReset, d.ResetAt, "reset is anchored at the first request")
	}

	// Ten seconds later, still inside the window.
	*clock = start.Add(10 * time.Second)
	d := l.Check(ctx, "search:1.2.3.4:", 5, time.Minute)
	assert.False(t, d.Allowed)
	assert.Equal(t, 0, d.Remaining)
	assert.Equal(t, wantReset, d.ResetAt, "a denied request must not move the window")
}

func TestMemoryLimiter_WindowExpiryStartsFresh(t *testing.T) {
	ctx := context.Background()
	start := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	l, clock := newTestLimiter(start)

	for i := 0; i < 6; i++ {
		l.Check(ctx, "public:1.2.3.4:", 5, time.Minute)
	}
	require.False(t, l.Check(ctx, "public:1.2.3.4:", 5, time.Minute).Allowed)

	*clock = start.Add(time.Minute)

	d := l.Check(ctx, "public:1.2.3.4:", 5, time.Minute)
	assert.True(t, d.Allowed)
	assert.Equal(t, 4, d.Remaining)
	assert.Equal(t, start.Add(2*time.Minute), d.ResetAt)
}

func TestMemoryLimiter_IdentifiersAreIndependent(t *testing.T) {
	ctx := context.Background()
	l, _ := newTestLimiter(time.Now())

	for i := 0; i < 5; i++ {
		l.Check(ctx, "public:1.2.3.4:", 5, time.Minute)
	}
	require.False(t, l.Check(ctx, "public:1.2.3.4:", 5, time.Minute).Allowed)

	// A different IP, and the same IP in a different category, are untouched.
	assert.True(t, l.Check(ctx, "public:5.6.7.8:", 5, time.Minute).Allowed)
	assert.True(t, l.Check(ctx, "search:1.2.3.4:", 5, time.Minute).Allowed)
}

func TestMemoryLimiter_SweepEvictsExpiredWindows(t *testing.T) {
	ctx := context.Background()
	start := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	l, clock := newTestLimiter(start)

	l.Check(ctx, "public:1.1.1.1:", 5, time.Minute)
	l.Check(ctx, "public:2.2.2.2:", 5, time.Minute)
	require.Equal(t, 2, l.Len())

	*clock = start.Add(2 * time.Minute)
	l.Check(ctx, "public:3.3.3.3:", 5, time.Minute)

	assert.Equal(t, 1, l.Len(), "expired windows are swept on the next check")
}

func TestMemoryLimiter_Policy(t *testing.T) {
	assert.Equal(t, FailNone, NewMemoryLimiter().Policy())
}

func TestKey(t *testing.T) {
	assert.Equal(t, "public:1.2.3.4:", Key("public", "1.2.3.4", ""))
	assert.Equal(t, "api:1.2.3.4:key-1", Key("api", "1.2.3.4", "key-1"))
	assert.NotEqual(t,
		Key("public", "1.2.3.4", ""),
		Key("search", "1.2.3.4", ""),
		"the same IP gets a separate budget per category")
}

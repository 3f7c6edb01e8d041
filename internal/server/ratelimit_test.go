package server

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock is a settable time source.
type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newLimiter(l RateLimits) (*RateLimiter, *fakeClock) {
	clock := &fakeClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	rl := NewRateLimiter(l)
	rl.now = clock.now
	return rl, clock
}

func requireRateLimit(t *testing.T, err error, typ string) *RateLimitError {
	t.Helper()
	var rle *RateLimitError
	require.True(t, errors.As(err, &rle), "expected RateLimitError, got %v", err)
	assert.Equal(t, typ, rle.Type)
	return rle
}

func TestRateLimits_Enabled(t *testing.T) {
	assert.False(t, RateLimits{}.Enabled())
	assert.True(t, RateLimits{RequestsPerHour: 1}.Enabled())
	assert.True(t, RateLimits{BytesPerHour: 1}.Enabled())
}

func TestRateLimiter_NoLimits(t *testing.T) {
	rl, _ := newLimiter(RateLimits{})
	for i := 0; i < 100; i++ {
		require.NoError(t, rl.Allow("client", 1<<20))
	}
	assert.Equal(t, 1, rl.Clients())
}

func TestRateLimiter_PerMinute(t *testing.T) {
	rl, clock := newLimiter(RateLimits{RequestsPerMinute: 2})

	require.NoError(t, rl.Allow("a", 0))
	require.NoError(t, rl.Allow("a", 0))

	clock.advance(10 * time.Second)
	rle := requireRateLimit(t, rl.Allow("a", 0), "minute")
	assert.Equal(t, int64(2), rle.Limit)
	assert.Equal(t, 50*time.Second, rle.RetryAfter)

	clock.advance(50 * time.Second)
	assert.NoError(t, rl.Allow("a", 0))
}

func TestRateLimiter_PerHourAndDay(t *testing.T) {
	rl, clock := newLimiter(RateLimits{RequestsPerHour: 3, RequestsPerDay: 4})

	for i := 0; i < 3; i++ {
		require.NoError(t, rl.Allow("a", 0))
	}
	requireRateLimit(t, rl.Allow("a", 0), "hour")

	clock.advance(time.Hour)
	require.NoError(t, rl.Allow("a", 0))
	requireRateLimit(t, rl.Allow("a", 0), "day")

	clock.advance(23 * time.Hour)
	assert.NoError(t, rl.Allow("a", 0))
}

func TestRateLimiter_Bytes(t *testing.T) {
	rl, clock := newLimiter(RateLimits{BytesPerHour: 1000})

	require.NoError(t, rl.Allow("a", 600))
	requireRateLimit(t, rl.Allow("a", 600), "bytes")
	require.NoError(t, rl.Allow("a", 400), "rejected requests are not counted")

	clock.advance(time.Hour)
	assert.NoError(t, rl.Allow("a", 1000))
}

func TestRateLimiter_PrunesIdleClients(t *testing.T) {
	rl, clock := newLimiter(RateLimits{RequestsPerMinute: 5})

	require.NoError(t, rl.Allow("old", 0))
	clock.advance(25 * time.Hour)
	require.NoError(t, rl.Allow("new", 0))
	assert.Equal(t, 1, rl.Clients())
}

func TestRateLimitError_Error(t *testing.T) {
	err := &RateLimitError{Type: "minute", Limit: 10, RetryAfter: 1500 * time.Millisecond}
	assert.Equal(t, "rate limit exceeded for minute (limit: 10, retry after: 2s)", err.Error())
}

package server

import (
	"fmt"
	"sync"
	"time"
)

// RateLimiter enforces per-client request rates and a daily upload quota.
// A zero limit disables that check.
type RateLimiter struct {
	mu sync.Mutex

	perMinute  int
	perHour    int
	perDay     int
	bytesHour  int64
	now        func() time.Time
	clients    map[string]*clientUsage
	lastPruned time.Time
}

// RateLimits configures a RateLimiter.
type RateLimits struct {
	RequestsPerMinute int
	RequestsPerHour   int
	RequestsPerDay    int
	// BytesPerHour caps uploaded image bytes per client.
	BytesPerHour int64
}

// Enabled reports whether any limit is set.
func (l RateLimits) Enabled() bool {
	return l.RequestsPerMinute > 0 || l.RequestsPerHour > 0 || l.RequestsPerDay > 0 || l.BytesPerHour > 0
}

type clientUsage struct {
	minute window
	hour   window
	day    window
	bytes  window
}

// window is a fixed window counter.
type window struct {
	start time.Time
	count int64
}

func (w *window) roll(now time.Time, span time.Duration) {
	if now.Sub(w.start) >= span {
		w.start = now
		w.count = 0
	}
}

func (w *window) retryAfter(now time.Time, span time.Duration) time.Duration {
	return span - now.Sub(w.start)
}

// NewRateLimiter creates a limiter for limits.
func NewRateLimiter(limits RateLimits) *RateLimiter {
	return &RateLimiter{
		perMinute: limits.RequestsPerMinute,
		perHour:   limits.RequestsPerHour,
		perDay:    limits.RequestsPerDay,
		bytesHour: limits.BytesPerHour,
		now:       time.Now,
		clients:   make(map[string]*clientUsage),
	}
}

// Allow records one request of size bytes for client, or returns a
// *RateLimitError without recording it.
func (rl *RateLimiter) Allow(client string, size int64) error {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	rl.pruneLocked(now)

	u, ok := rl.clients[client]
	if !ok {
		u = &clientUsage{
			minute: window{start: now},
			hour:   window{start: now},
			day:    window{start: now},
			bytes:  window{start: now},
		}
		rl.clients[client] = u
	}
	u.minute.roll(now, time.Minute)
	u.hour.roll(now, time.Hour)
	u.day.roll(now, 24*time.Hour)
	u.bytes.roll(now, time.Hour)

	switch {
	case rl.perMinute > 0 && u.minute.count >= int64(rl.perMinute):
		return &RateLimitError{Type: "minute", Limit: int64(rl.perMinute), RetryAfter: u.minute.retryAfter(now, time.Minute)}
	case rl.perHour > 0 && u.hour.count >= int64(rl.perHour):
		return &RateLimitError{Type: "hour", Limit: int64(rl.perHour), RetryAfter: u.hour.retryAfter(now, time.Hour)}
	case rl.perDay > 0 && u.day.count >= int64(rl.perDay):
		return &RateLimitError{Type: "day", Limit: int64(rl.perDay), RetryAfter: u.day.retryAfter(now, 24*time.Hour)}
	case rl.bytesHour > 0 && u.bytes.count+size > rl.bytesHour:
		return &RateLimitError{Type: "bytes", Limit: rl.bytesHour, RetryAfter: u.bytes.retryAfter(now, time.Hour)}
	}

	u.minute.count++
	u.hour.count++
	u.day.count++
	u.bytes.count += size
	return nil
}

// Clients returns the number of tracked clients.
func (rl *RateLimiter) Clients() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.clients)
}

// pruneLocked drops clients idle for a full day, at most once an hour.
func (rl *RateLimiter) pruneLocked(now time.Time) {
	if now.Sub(rl.lastPruned) < time.Hour {
		return
	}
	rl.lastPruned = now
	for id, u := range rl.clients {
		if now.Sub(u.day.start) >= 24*time.Hour && now.Sub(u.minute.start) >= 24*time.Hour {
			delete(rl.clients, id)
		}
	}
}

// RateLimitError reports an exceeded limit.
type RateLimitError struct {
	Type       string // minute, hour, day or bytes
	Limit      int64
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded for %s (limit: %d, retry after: %v)", e.Type, e.Limit, e.RetryAfter.Round(time.Second))
}

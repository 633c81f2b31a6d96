package analyses

import (
	"context"
	"sync"
	"time"
)

const pollLimitWindow = 1 * time.Second

// PollLimiter throttles status reads per caller and record. Allow reports
// whether the read may proceed and, if not, how long to wait.
type PollLimiter interface {
	Allow(ctx context.Context, key string) (bool, time.Duration, error)
}

// MemoryPollLimiter admits one read per key per window within one process.
type MemoryPollLimiter struct {
	mu      sync.Mutex
	lastHit map[string]time.Time
	now     func() time.Time
	window  time.Duration
}

// NewMemoryPollLimiter returns a limiter with the given window. now defaults
// to the wall clock.
func NewMemoryPollLimiter(window time.Duration, now func() time.Time) *MemoryPollLimiter {
	if now == nil {
		now = time.Now
	}
	if window <= 0 {
		window = pollLimitWindow
	}
	return &MemoryPollLimiter{
		lastHit: make(map[string]time.Time),
		now:     now,
		window:  window,
	}
}

func (l *MemoryPollLimiter) Allow(_ context.Context, key string) (bool, time.Duration, error) {
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()
	if last, ok := l.lastHit[key]; ok {
		if elapsed := now.Sub(last); elapsed < l.window {
			return false, l.window - elapsed, nil
		}
	}
	l.lastHit[key] = now
	if len(l.lastHit) > 10000 {
		l.evict(now)
	}
	return true, 0, nil
}

func (l *MemoryPollLimiter) evict(now time.Time) {
	for key, last := range l.lastHit {
		if now.Sub(last) >= l.window {
			delete(l.lastHit, key)
		}
	}
}

var _ PollLimiter = (*MemoryPollLimiter)(nil)

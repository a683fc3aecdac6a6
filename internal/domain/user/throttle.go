package user

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// pruneAbove is the number of tracked keys after which idle limiters are
// dropped.
const pruneAbove = 10_000

// Throttle limits login attempts per key with a token bucket: Burst attempts
// at once, refilled at one attempt per Every.
type Throttle struct {
	every time.Duration
	burst int

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewThrottle creates a Throttle.
func NewThrottle(every time.Duration, burst int) *Throttle {
	return &Throttle{
		every:    every,
		burst:    burst,
		limiters: make(map[string]*rate.Limiter),
	}
}

// Allow reports whether another attempt for key is permitted at now.
func (t *Throttle) Allow(key string, now time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	l, ok := t.limiters[key]
	if !ok {
		if len(t.limiters) >= pruneAbove {
			t.prune(now)
		}
		l = rate.NewLimiter(rate.Every(t.every), t.burst)
		t.limiters[key] = l
	}
	return l.AllowN(now, 1)
}

// prune drops limiters that have refilled completely.
func (t *Throttle) prune(now time.Time) {
	for k, l := range t.limiters {
		if l.TokensAt(now) >= float64(t.burst) {
			delete(t.limiters, k)
		}
	}
}

// Package ratelimit implements fixed-window per-identity admission control.
package ratelimit

import (
	"sync"
	"sync/atomic"
	"time"
)

// identityState is the fixed window for one identity. The window start and
// counter are updated with atomic operations so concurrent calls for the same
// identity never lose an increment, even though a single session is normally
// the only caller.
type identityState struct {
	windowStart atomic.Int64 // unix nanoseconds
	count       atomic.Int64
}

// Limiter admits up to Limit messages per identity per Window. State is
// created lazily on first use, one entry per identity, never shared.
type Limiter struct {
	limit  int64
	window time.Duration

	mu         sync.RWMutex
	identities map[string]*identityState
}

// New creates a limiter. Non-positive arguments fall back to one message per
// minute so a misconfigured limiter stays safe rather than wide open.
func New(limit int, window time.Duration) *Limiter {
	if limit <= 0 {
		limit = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	return &Limiter{
		limit:      int64(limit),
		window:     window,
		identities: make(map[string]*identityState),
	}
}

// Admit reports whether the identity may send another message. If the window
// has elapsed the counter resets to one and the call admits; otherwise the
// call admits only while count < limit. Rejection is not an error.
func (l *Limiter) Admit(identity string) bool {
	state := l.stateFor(identity)
	now := time.Now().UnixNano()

	start := state.windowStart.Load()
	if now-start > int64(l.window) {
		// Only one caller wins the reset; losers fall through to the
		// increment loop against the fresh window.
		if state.windowStart.CompareAndSwap(start, now) {
			state.count.Store(1)
			return true
		}
	}

	for {
		count := state.count.Load()
		if count >= l.limit {
			return false
		}
		if state.count.CompareAndSwap(count, count+1) {
			return true
		}
	}
}

// Forget discards the identity's state, typically on disconnect.
func (l *Limiter) Forget(identity string) {
	l.mu.Lock()
	delete(l.identities, identity)
	l.mu.Unlock()
}

// Cleanup removes entries whose window started longer than maxIdle ago.
// Called periodically so the state map does not grow with every identity
// ever seen.
func (l *Limiter) Cleanup(maxIdle time.Duration) {
	now := time.Now().UnixNano()

	l.mu.Lock()
	defer l.mu.Unlock()

	for identity, state := range l.identities {
		if now-state.windowStart.Load() > int64(maxIdle) {
			delete(l.identities, identity)
		}
	}
}

func (l *Limiter) stateFor(identity string) *identityState {
	l.mu.RLock()
	state, exists := l.identities[identity]
	l.mu.RUnlock()
	if exists {
		return state
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if state, exists = l.identities[identity]; exists {
		return state
	}
	state = &identityState{}
	state.windowStart.Store(time.Now().UnixNano())
	l.identities[identity] = state
	return state
}

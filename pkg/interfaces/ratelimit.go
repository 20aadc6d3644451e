package interfaces

import "time"

// RateLimiter performs per-identity admission control.
type RateLimiter interface {
	// Admit reports whether the identity may send another message in the
	// current window. Rejection is a boolean, not an error; the caller
	// decides the user-facing wording.
	Admit(identity string) bool

	// Forget discards the identity's limiter state.
	Forget(identity string)

	// Cleanup removes limiter state idle longer than maxIdle.
	Cleanup(maxIdle time.Duration)
}

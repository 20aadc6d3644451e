package interfaces

import "time"

// SessionRegistry tracks connected identities and their last activity.
// Implementations must be internally synchronized; every operation is atomic
// and safe for concurrent callers.
type SessionRegistry interface {
	// Register inserts a new identity. It fails for empty/whitespace names
	// and for identities that are already present.
	Register(identity string) error

	// Unregister removes an identity. Removing an absent identity is a no-op.
	Unregister(identity string)

	// Touch updates the identity's last-activity timestamp if present.
	// Touching an unknown identity is a no-op, never an error.
	Touch(identity string)

	// SnapshotActiveIdentities returns a point-in-time copy of all registered
	// identities, safe to iterate while registrations proceed concurrently.
	SnapshotActiveIdentities() []string

	// IsRegistered reports whether the identity is currently present.
	IsRegistered(identity string) bool

	// Count returns the number of registered identities.
	Count() int

	// SweepIdle removes every identity idle longer than timeout and returns
	// the evicted names so the caller can announce them.
	SweepIdle(timeout time.Duration) []string
}

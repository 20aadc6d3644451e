// Package registry tracks connected identities and evicts idle ones.
package registry

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// entry holds the mutable per-identity state. lastActivity is only written
// under the registry mutex.
type entry struct {
	registeredAt time.Time
	lastActivity time.Time
}

// Registry is the authoritative set of connected identities. All operations
// are atomic; callers never need their own locking, and there is no
// read-then-write sequence a caller could race.
type Registry struct {
	mu         sync.RWMutex
	identities map[string]*entry
	log        zerolog.Logger
}

// New creates an empty registry.
func New(log zerolog.Logger) *Registry {
	return &Registry{
		identities: make(map[string]*entry),
		log:        log.With().Str("component", "registry").Logger(),
	}
}

// Register inserts identity with last activity = now. At most one entry per
// identity exists at any time.
func (r *Registry) Register(identity string) error {
	if strings.TrimSpace(identity) == "" {
		return ErrEmptyIdentity
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.identities[identity]; exists {
		return ErrAlreadyRegistered
	}

	now := time.Now()
	r.identities[identity] = &entry{registeredAt: now, lastActivity: now}
	r.log.Info().Str("identity", identity).Int("online", len(r.identities)).Msg("identity registered")
	return nil
}

// Unregister removes identity. Removing an absent identity is a no-op, which
// makes disconnect paths idempotent.
func (r *Registry) Unregister(identity string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.identities[identity]; !exists {
		return
	}
	delete(r.identities, identity)
	r.log.Info().Str("identity", identity).Int("online", len(r.identities)).Msg("identity unregistered")
}

// Touch updates the identity's last-activity timestamp. Messages from an
// unregistered identity are never routed, but Touch must still be safe to
// call for one.
func (r *Registry) Touch(identity string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if e, exists := r.identities[identity]; exists {
		e.lastActivity = time.Now()
	}
}

// IsRegistered reports whether identity is currently present.
func (r *Registry) IsRegistered(identity string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, exists := r.identities[identity]
	return exists
}

// Count returns the number of registered identities.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.identities)
}

// SnapshotActiveIdentities returns a sorted point-in-time copy of the
// identity set. The snapshot may be stale by the time it is used but is
// never torn.
func (r *Registry) SnapshotActiveIdentities() []string {
	r.mu.RLock()
	identities := make([]string, 0, len(r.identities))
	for identity := range r.identities {
		identities = append(identities, identity)
	}
	r.mu.RUnlock()

	sort.Strings(identities)
	return identities
}

// SweepIdle removes every identity whose last activity is older than timeout
// and returns the evicted names. Each eviction is logged; the caller decides
// whether to announce it to remaining clients.
func (r *Registry) SweepIdle(timeout time.Duration) []string {
	now := time.Now()

	r.mu.Lock()
	defer r.mu.Unlock()

	var evicted []string
	for identity, e := range r.identities {
		if now.Sub(e.lastActivity) > timeout {
			delete(r.identities, identity)
			evicted = append(evicted, identity)
			r.log.Warn().
				Str("identity", identity).
				Dur("idle", now.Sub(e.lastActivity)).
				Msg("identity evicted for inactivity")
		}
	}

	sort.Strings(evicted)
	return evicted
}

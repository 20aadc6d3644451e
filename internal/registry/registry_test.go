package registry

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRegistry() *Registry {
	return New(zerolog.Nop())
}

func TestRegister(t *testing.T) {
	r := newTestRegistry()

	require.NoError(t, r.Register("alice"))
	assert.True(t, r.IsRegistered("alice"))
	assert.Equal(t, 1, r.Count())
}

func TestRegister_Duplicate(t *testing.T) {
	r := newTestRegistry()

	require.NoError(t, r.Register("alice"))
	err := r.Register("alice")
	assert.ErrorIs(t, err, ErrAlreadyRegistered)
	assert.Equal(t, 1, r.Count())
}

func TestRegister_EmptyIdentity(t *testing.T) {
	r := newTestRegistry()

	for _, identity := range []string{"", "   ", "\t", "\n"} {
		err := r.Register(identity)
		assert.ErrorIs(t, err, ErrEmptyIdentity, "identity %q", identity)
	}
	assert.Equal(t, 0, r.Count())
}

func TestUnregister_Idempotent(t *testing.T) {
	r := newTestRegistry()

	require.NoError(t, r.Register("alice"))
	r.Unregister("alice")
	assert.False(t, r.IsRegistered("alice"))

	// Second removal and removal of an unknown identity are no-ops.
	r.Unregister("alice")
	r.Unregister("ghost")
	assert.Equal(t, 0, r.Count())
}

func TestTouch_UnknownIdentity(t *testing.T) {
	r := newTestRegistry()

	// Must not panic or create an entry.
	r.Touch("ghost")
	assert.Equal(t, 0, r.Count())
}

func TestSnapshotActiveIdentities(t *testing.T) {
	r := newTestRegistry()

	for _, identity := range []string{"carol", "alice", "bob"} {
		require.NoError(t, r.Register(identity))
	}

	snapshot := r.SnapshotActiveIdentities()
	assert.Equal(t, []string{"alice", "bob", "carol"}, snapshot)

	// The snapshot is a copy; later removals do not affect it.
	r.Unregister("bob")
	assert.Len(t, snapshot, 3)
	assert.Equal(t, []string{"alice", "carol"}, r.SnapshotActiveIdentities())
}

func TestSweepIdle_RemovesStaleEntries(t *testing.T) {
	r := newTestRegistry()

	require.NoError(t, r.Register("carol"))

	// A zero timeout evicts anyone without activity since registration.
	evicted := r.SweepIdle(0)
	assert.Equal(t, []string{"carol"}, evicted)
	assert.NotContains(t, r.SnapshotActiveIdentities(), "carol")
}

func TestSweepIdle_KeepsActiveEntries(t *testing.T) {
	r := newTestRegistry()

	require.NoError(t, r.Register("alice"))
	require.NoError(t, r.Register("bob"))
	time.Sleep(20 * time.Millisecond)
	r.Touch("alice")

	evicted := r.SweepIdle(10 * time.Millisecond)
	assert.Equal(t, []string{"bob"}, evicted)
	assert.True(t, r.IsRegistered("alice"))
}

func TestRegistry_NetRegistrations(t *testing.T) {
	r := newTestRegistry()

	// After any finite sequence of register/unregister calls the snapshot
	// equals the set of net-registered identities.
	require.NoError(t, r.Register("alice"))
	require.NoError(t, r.Register("bob"))
	r.Unregister("alice")
	require.NoError(t, r.Register("carol"))
	require.NoError(t, r.Register("alice"))
	r.Unregister("bob")

	assert.Equal(t, []string{"alice", "carol"}, r.SnapshotActiveIdentities())
}

func TestRegistry_ConcurrentAccess(t *testing.T) {
	r := newTestRegistry()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			identity := fmt.Sprintf("user%d", n)
			require.NoError(t, r.Register(identity))
			r.Touch(identity)
			_ = r.SnapshotActiveIdentities()
			if n%2 == 0 {
				r.Unregister(identity)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 10, r.Count())
}

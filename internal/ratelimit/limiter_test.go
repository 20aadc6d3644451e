package ratelimit

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAdmit_ExactLimit(t *testing.T) {
	limiter := New(3, time.Minute)

	// With limit=3, four rapid calls yield [true, true, true, false].
	results := []bool{
		limiter.Admit("bob"),
		limiter.Admit("bob"),
		limiter.Admit("bob"),
		limiter.Admit("bob"),
	}
	assert.Equal(t, []bool{true, true, true, false}, results)

	// Repeated attempts past the limit stay rejected within the window.
	for i := 0; i < 10; i++ {
		assert.False(t, limiter.Admit("bob"), "attempt %d should be rejected", i+1)
	}
}

func TestAdmit_WindowReset(t *testing.T) {
	limiter := New(2, 50*time.Millisecond)

	assert.True(t, limiter.Admit("alice"))
	assert.True(t, limiter.Admit("alice"))
	assert.False(t, limiter.Admit("alice"))

	time.Sleep(80 * time.Millisecond)

	// A fresh window admits again regardless of prior rejections.
	assert.True(t, limiter.Admit("alice"))
}

func TestAdmit_IndependentIdentities(t *testing.T) {
	limiter := New(5, time.Minute)

	for _, identity := range []string{"alice", "bob", "carol"} {
		for i := 0; i < 5; i++ {
			require.True(t, limiter.Admit(identity), "message %d for %s", i+1, identity)
		}
		assert.False(t, limiter.Admit(identity), "%s over limit", identity)
	}
}

func TestAdmit_ConcurrentCallers(t *testing.T) {
	const limit = 100
	limiter := New(limit, time.Minute)

	var wg sync.WaitGroup
	admittedCount := make(chan struct{}, limit*4)

	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < limit; j++ {
				if limiter.Admit("shared") {
					admittedCount <- struct{}{}
				}
			}
		}()
	}
	wg.Wait()
	close(admittedCount)

	total := 0
	for range admittedCount {
		total++
	}
	// Concurrent callers on the same identity never admit more than the limit.
	assert.Equal(t, limit, total)
}

func TestForget(t *testing.T) {
	limiter := New(1, time.Minute)

	require.True(t, limiter.Admit("dave"))
	require.False(t, limiter.Admit("dave"))

	limiter.Forget("dave")

	// Forgetting resets the identity to a fresh window.
	assert.True(t, limiter.Admit("dave"))
}

func TestCleanup(t *testing.T) {
	limiter := New(10, 10*time.Millisecond)

	require.True(t, limiter.Admit("eve"))
	time.Sleep(30 * time.Millisecond)
	limiter.Cleanup(20 * time.Millisecond)

	limiter.mu.RLock()
	_, exists := limiter.identities["eve"]
	limiter.mu.RUnlock()
	assert.False(t, exists, "stale state should be removed")
}

// Package monitor logs process health (heap, goroutines, GC activity) at a
// fixed interval.
package monitor

import (
	"runtime"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

type Monitor struct {
	interval time.Duration
	log      zerolog.Logger

	stopOnce sync.Once
	done     chan struct{}
	wg       sync.WaitGroup

	lastGC uint32
}

func New(interval time.Duration, log zerolog.Logger) *Monitor {
	return &Monitor{
		interval: interval,
		log:      log.With().Str("component", "monitor").Logger(),
		done:     make(chan struct{}),
	}
}

// Start begins periodic sampling. A non-positive interval disables the
// monitor entirely.
func (m *Monitor) Start() {
	if m.interval <= 0 {
		return
	}

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()

		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				m.sample()
			case <-m.done:
				return
			}
		}
	}()
}

func (m *Monitor) sample() {
	var stats runtime.MemStats
	runtime.ReadMemStats(&stats)

	gcSinceLast := stats.NumGC - m.lastGC
	m.lastGC = stats.NumGC

	m.log.Info().
		Uint64("heap_alloc_mb", stats.HeapAlloc/1024/1024).
		Uint64("heap_sys_mb", stats.HeapSys/1024/1024).
		Int("goroutines", runtime.NumGoroutine()).
		Uint32("gc_cycles", gcSinceLast).
		Uint64("total_alloc_mb", stats.TotalAlloc/1024/1024).
		Msg("process health")
}

func (m *Monitor) Stop() {
	m.stopOnce.Do(func() {
		close(m.done)
		m.wg.Wait()
	})
}

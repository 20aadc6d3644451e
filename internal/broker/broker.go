// Package broker implements the staged message-routing pipeline: a single
// ingress point feeding three bounded queues (inbound, outbound, analytics),
// each drained by a dedicated worker. The broker owns the lifecycle of all
// workers, including the periodic sweeper and the queue monitor.
package broker

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"netchat/pkg/interfaces"
	"netchat/pkg/types"
)

// EnqueuePolicy decides what happens when a stage queue is full.
type EnqueuePolicy string

const (
	// PolicyBlock applies backpressure: the producer waits for space.
	PolicyBlock EnqueuePolicy = "block"
	// PolicyDrop discards the message with a logged warning.
	PolicyDrop EnqueuePolicy = "drop"
)

// BroadcastFunc delivers one outbound message to every connected session.
// It is provided by the transport layer and must isolate per-recipient
// failures itself; the broker only guards against panics.
type BroadcastFunc func(msg types.Message)

// Config holds the broker's queue and scheduling parameters.
type Config struct {
	InboundCapacity   int
	OutboundCapacity  int
	AnalyticsCapacity int

	// Default policies: outbound blocks, analytics drops.
	OutboundPolicy  EnqueuePolicy
	AnalyticsPolicy EnqueuePolicy

	AnalyticsEnabled bool

	SweepInterval       time.Duration
	IdleTimeout         time.Duration
	StatsPruneThreshold time.Duration
	MonitorInterval     time.Duration
	ShutdownGrace       time.Duration
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		InboundCapacity:     1000,
		OutboundCapacity:    1000,
		AnalyticsCapacity:   1000,
		OutboundPolicy:      PolicyBlock,
		AnalyticsPolicy:     PolicyDrop,
		AnalyticsEnabled:    true,
		SweepInterval:       30 * time.Second,
		IdleTimeout:         5 * time.Minute,
		StatsPruneThreshold: 15 * time.Minute,
		MonitorInterval:     5 * time.Second,
		ShutdownGrace:       5 * time.Second,
	}
}

// Broker coordinates the router, outbound-sender and analytics workers over
// the three bounded queues. State machine: Stopped → Running → Draining →
// Stopped; Stop is idempotent.
type Broker struct {
	cfg Config

	inbound   chan types.Message
	outbound  chan types.Message
	analytics chan types.Message

	registry interfaces.SessionRegistry
	limiter  interfaces.RateLimiter
	pruner   interfaces.StatsPruner

	sink      interfaces.AnalyticsSink
	broadcast BroadcastFunc

	started atomic.Bool
	running atomic.Bool
	done    chan struct{}

	stopOnce sync.Once
	wg       sync.WaitGroup

	droppedOutbound  atomic.Int64
	droppedAnalytics atomic.Int64
	droppedUnknown   atomic.Int64

	log zerolog.Logger
}

// New creates a broker. The broadcast function and analytics sink are wired
// afterwards (they depend on the broker for submission) and must be set
// before Start.
func New(cfg Config, registry interfaces.SessionRegistry, limiter interfaces.RateLimiter, pruner interfaces.StatsPruner, log zerolog.Logger) *Broker {
	return &Broker{
		cfg:       cfg,
		inbound:   make(chan types.Message, cfg.InboundCapacity),
		outbound:  make(chan types.Message, cfg.OutboundCapacity),
		analytics: make(chan types.Message, cfg.AnalyticsCapacity),
		registry:  registry,
		limiter:   limiter,
		pruner:    pruner,
		done:      make(chan struct{}),
		log:       log.With().Str("component", "broker").Logger(),
	}
}

// SetBroadcastFunc registers the outbound delivery callback. Must be called
// before Start.
func (b *Broker) SetBroadcastFunc(fn BroadcastFunc) {
	b.broadcast = fn
}

// SetAnalyticsSink registers the analytics consumer. Must be called before
// Start when analytics is enabled.
func (b *Broker) SetAnalyticsSink(sink interfaces.AnalyticsSink) {
	b.sink = sink
}

// Start spawns the router, outbound-sender and analytics workers plus the
// periodic sweeper and queue monitor.
func (b *Broker) Start() error {
	if b.broadcast == nil {
		return ErrNoBroadcastFunc
	}
	if b.cfg.AnalyticsEnabled && b.sink == nil {
		return ErrNoAnalyticsSink
	}
	if !b.started.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	b.running.Store(true)

	b.log.Info().
		Int("inbound_capacity", b.cfg.InboundCapacity).
		Int("outbound_capacity", b.cfg.OutboundCapacity).
		Int("analytics_capacity", b.cfg.AnalyticsCapacity).
		Bool("analytics_enabled", b.cfg.AnalyticsEnabled).
		Msg("broker starting")

	b.wg.Add(2)
	go b.runRouter()
	go b.runOutboundSender()

	if b.cfg.AnalyticsEnabled {
		b.wg.Add(1)
		go b.runAnalyticsConsumer()
	}
	if b.cfg.SweepInterval > 0 {
		b.wg.Add(1)
		go b.runSweeper()
	}
	if b.cfg.MonitorInterval > 0 {
		b.wg.Add(1)
		go b.runMonitor()
	}

	return nil
}

// Submit is the single ingress point for every message in the system. It
// blocks while the inbound queue is at capacity and returns ErrStopped once
// the broker has shut down, so callers can always tell a message was dropped.
func (b *Broker) Submit(msg types.Message) error {
	if !b.running.Load() {
		return ErrStopped
	}
	select {
	case b.inbound <- msg:
		return nil
	case <-b.done:
		return ErrStopped
	}
}

// Stop transitions to draining: new submissions are rejected, workers observe
// the shutdown signal and exit within a bounded grace period, and any
// unconsumed analytics backlog is discarded. Calling Stop twice is safe.
func (b *Broker) Stop() {
	b.stopOnce.Do(func() {
		b.running.Store(false)
		b.log.Info().Msg("broker stopping")
		close(b.done)

		finished := make(chan struct{})
		go func() {
			b.wg.Wait()
			close(finished)
		}()

		select {
		case <-finished:
			b.log.Info().Msg("broker stopped")
		case <-time.After(b.cfg.ShutdownGrace):
			// Forced escalation: abandon workers still blocked on the
			// broadcast callback rather than hang shutdown.
			b.log.Warn().Dur("grace", b.cfg.ShutdownGrace).Msg("shutdown grace expired, abandoning workers")
		}

		if discarded := len(b.analytics); discarded > 0 {
			b.log.Warn().Int("discarded", discarded).Msg("analytics backlog discarded")
		}
	})
}

// QueueDepths reports current queue occupancy. Inbound saturation is the one
// condition that should surface as an operational alarm.
func (b *Broker) QueueDepths() (inbound, outbound, analytics int) {
	return len(b.inbound), len(b.outbound), len(b.analytics)
}

// DroppedCounts reports how many messages each branch has discarded.
func (b *Broker) DroppedCounts() (outbound, analytics, unknown int64) {
	return b.droppedOutbound.Load(), b.droppedAnalytics.Load(), b.droppedUnknown.Load()
}

// runRouter drains the inbound queue and classifies messages onto the
// outbound and analytics queues.
func (b *Broker) runRouter() {
	defer b.wg.Done()

	for {
		select {
		case msg := <-b.inbound:
			b.route(msg)
		case <-b.done:
			// Drain what was accepted before shutdown, then exit.
			for {
				select {
				case msg := <-b.inbound:
					b.route(msg)
				default:
					return
				}
			}
		}
	}
}

func (b *Broker) route(msg types.Message) {
	switch msg.Kind {
	case types.KindUser:
		// Both enqueues happen independently; no ordering is promised
		// between the broadcast copy and the analytics copy.
		b.enqueue(b.outbound, msg, b.cfg.OutboundPolicy, &b.droppedOutbound, "outbound")
		b.routeAnalytics(msg)

	case types.KindCommand:
		b.routeAnalytics(msg)

	case types.KindSystem, types.KindStatistics:
		b.enqueue(b.outbound, msg, b.cfg.OutboundPolicy, &b.droppedOutbound, "outbound")

	default:
		b.droppedUnknown.Add(1)
		b.log.Warn().Str("kind", string(msg.Kind)).Str("sender", msg.Sender).Msg("rejecting message of unrecognized kind")
	}
}

func (b *Broker) routeAnalytics(msg types.Message) {
	if !b.cfg.AnalyticsEnabled {
		return
	}
	b.enqueue(b.analytics, msg, b.cfg.AnalyticsPolicy, &b.droppedAnalytics, "analytics")
}

func (b *Broker) enqueue(queue chan types.Message, msg types.Message, policy EnqueuePolicy, dropped *atomic.Int64, stage string) {
	if policy == PolicyDrop {
		select {
		case queue <- msg:
		default:
			dropped.Add(1)
			b.log.Warn().Str("stage", stage).Str("sender", msg.Sender).Msg("queue full, dropping message")
		}
		return
	}

	select {
	case queue <- msg:
	case <-b.done:
		dropped.Add(1)
		b.log.Warn().Str("stage", stage).Str("sender", msg.Sender).Msg("dropping message during shutdown")
	}
}

// runOutboundSender invokes the broadcast callback for every outbound
// message. One bad delivery must not halt delivery to the rest of the pool,
// so the callback is wrapped in a panic guard.
func (b *Broker) runOutboundSender() {
	defer b.wg.Done()

	for {
		select {
		case msg := <-b.outbound:
			b.deliver(msg)
		case <-b.done:
			// Best-effort drain within the shutdown grace period.
			for {
				select {
				case msg := <-b.outbound:
					b.deliver(msg)
				default:
					return
				}
			}
		}
	}
}

func (b *Broker) deliver(msg types.Message) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error().Interface("panic", r).Str("message_id", msg.ID).Msg("broadcast callback panicked")
		}
	}()
	b.broadcast(msg)
}

// runAnalyticsConsumer feeds the sink. The backlog is droppable: on shutdown
// the worker exits immediately and whatever remains queued is discarded.
func (b *Broker) runAnalyticsConsumer() {
	defer b.wg.Done()

	for {
		select {
		case msg := <-b.analytics:
			b.consume(msg)
		case <-b.done:
			return
		}
	}
}

func (b *Broker) consume(msg types.Message) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error().Interface("panic", r).Str("message_id", msg.ID).Msg("analytics sink panicked")
		}
	}()
	b.sink.Consume(msg)
}

// runSweeper periodically evicts idle identities, prunes stale statistics and
// cleans up rate-limiter state. Evictions are announced to remaining clients
// as system messages on a best-effort basis.
func (b *Broker) runSweeper() {
	defer b.wg.Done()

	ticker := time.NewTicker(b.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			b.sweep()
		case <-b.done:
			return
		}
	}
}

func (b *Broker) sweep() {
	for _, identity := range b.registry.SweepIdle(b.cfg.IdleTimeout) {
		b.limiter.Forget(identity)
		notice := types.NewMessage(types.KindSystem, "server", identity+" was disconnected due to inactivity")
		select {
		case b.inbound <- notice:
		default:
			b.log.Warn().Str("identity", identity).Msg("inbound full, skipping eviction notice")
		}
	}

	if b.pruner != nil {
		b.pruner.PruneInactive(b.cfg.StatsPruneThreshold, b.registry.IsRegistered)
	}
	b.limiter.Cleanup(b.cfg.IdleTimeout)
}

// runMonitor logs queue occupancy and drop counters at a fixed interval.
func (b *Broker) runMonitor() {
	defer b.wg.Done()

	ticker := time.NewTicker(b.cfg.MonitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			inbound, outbound, analytics := b.QueueDepths()
			event := b.log.Debug()
			if inbound == b.cfg.InboundCapacity {
				// Inbound saturation is the operational alarm condition.
				event = b.log.Warn()
			}
			event.
				Int("inbound", inbound).
				Int("outbound", outbound).
				Int("analytics", analytics).
				Int64("dropped_analytics", b.droppedAnalytics.Load()).
				Int64("dropped_outbound", b.droppedOutbound.Load()).
				Msg("queue occupancy")
		case <-b.done:
			return
		}
	}
}

// Package app assembles the chat service from its components and owns their
// lifecycle.
package app

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"netchat/internal/bot"
	"netchat/internal/broker"
	"netchat/internal/config"
	"netchat/internal/monitor"
	"netchat/internal/ratelimit"
	"netchat/internal/registry"
	"netchat/internal/server"
	"netchat/internal/stats"
)

// Application coordinates all components. Initialization follows dependency
// order: registry and limiter first, then stats, then the broker that joins
// them, then the bot and server on top.
type Application struct {
	cfg *config.Config
	log zerolog.Logger

	registry   *registry.Registry
	limiter    *ratelimit.Limiter
	aggregator *stats.Aggregator
	broker     *broker.Broker
	analytics  *bot.Bot
	server     *server.Server
	monitor    *monitor.Monitor
}

func New(cfg *config.Config, log zerolog.Logger) (*Application, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	reg := registry.New(log)
	limiter := ratelimit.New(cfg.RateLimit.Limit, cfg.RateLimit.Window)
	aggregator := stats.NewAggregator()

	brokerCfg := broker.Config{
		InboundCapacity:     cfg.Broker.InboundCapacity,
		OutboundCapacity:    cfg.Broker.OutboundCapacity,
		AnalyticsCapacity:   cfg.Broker.AnalyticsCapacity,
		OutboundPolicy:      broker.EnqueuePolicy(cfg.Broker.OutboundPolicy),
		AnalyticsPolicy:     broker.EnqueuePolicy(cfg.Broker.AnalyticsPolicy),
		AnalyticsEnabled:    cfg.Broker.AnalyticsEnabled,
		SweepInterval:       cfg.Sessions.SweepInterval,
		IdleTimeout:         cfg.Sessions.IdleTimeout,
		StatsPruneThreshold: cfg.Stats.PruneThreshold,
		MonitorInterval:     cfg.Broker.MonitorInterval,
		ShutdownGrace:       cfg.Broker.ShutdownGrace,
	}
	b := broker.New(brokerCfg, reg, limiter, aggregator, log)

	dispatcher := bot.NewDispatcher(aggregator, log)
	analytics := bot.New(cfg.Stats.BotName, aggregator, dispatcher, b, cfg.Stats.ReportInterval, log)

	srv := server.New(cfg.Server, b, reg, limiter, log)

	b.SetBroadcastFunc(srv.Broadcast)
	b.SetAnalyticsSink(analytics)

	return &Application{
		cfg:        cfg,
		log:        log,
		registry:   reg,
		limiter:    limiter,
		aggregator: aggregator,
		broker:     b,
		analytics:  analytics,
		server:     srv,
		monitor:    monitor.New(cfg.Broker.MonitorInterval, log),
	}, nil
}

// Start brings the pipeline up before the transports so the first accepted
// connection can already submit messages.
func (a *Application) Start() error {
	if err := a.broker.Start(); err != nil {
		return fmt.Errorf("failed to start message broker: %w", err)
	}
	a.analytics.Start()
	a.monitor.Start()

	if err := a.server.Start(); err != nil {
		a.analytics.Stop()
		a.broker.Stop()
		a.monitor.Stop()
		return err
	}

	a.log.Info().
		Int("port", a.cfg.Server.Port).
		Bool("websocket", a.cfg.Server.WebSocketEnabled).
		Msg("netchat started")
	return nil
}

// Stop shuts components down in reverse order: transports first so no new
// messages arrive, then the pipeline, then the bot.
func (a *Application) Stop() {
	a.log.Info().Msg("shutting down")

	a.server.Stop()
	a.broker.Stop()
	a.analytics.Stop()
	a.monitor.Stop()

	a.log.Info().
		Int64("total_messages", a.aggregator.TotalMessages()).
		Str("uptime", a.aggregator.Uptime().Truncate(time.Second).String()).
		Msg("shutdown complete")
}

// Addr returns the bound TCP address once Start has returned.
func (a *Application) Addr() string {
	return a.server.Addr()
}

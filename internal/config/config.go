// Package config loads server configuration with the precedence
// defaults → environment → file.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all runtime settings, grouped by component.
type Config struct {
	Server    ServerConfig
	Broker    BrokerConfig
	RateLimit RateLimitConfig
	Sessions  SessionsConfig
	Stats     StatsConfig
	Log       LogConfig
}

// ServerConfig covers the TCP transport and the optional WebSocket endpoint.
type ServerConfig struct {
	Host             string
	Port             int
	MaxSessions      int
	MaxMessageLength int
	WriteTimeout     time.Duration
	WebSocketEnabled bool
	WebSocketPort    int
}

// BrokerConfig covers the routing pipeline's queues and workers.
type BrokerConfig struct {
	InboundCapacity   int
	OutboundCapacity  int
	AnalyticsCapacity int
	OutboundPolicy    string
	AnalyticsPolicy   string
	AnalyticsEnabled  bool
	MonitorInterval   time.Duration
	ShutdownGrace     time.Duration
}

// RateLimitConfig is the per-identity fixed window.
type RateLimitConfig struct {
	Limit  int
	Window time.Duration
}

// SessionsConfig controls idle eviction.
type SessionsConfig struct {
	IdleTimeout   time.Duration
	SweepInterval time.Duration
}

// StatsConfig controls the analytics bot.
type StatsConfig struct {
	PruneThreshold time.Duration
	ReportInterval time.Duration
	BotName        string
}

// LogConfig controls process logging.
type LogConfig struct {
	Level string
}

// DefaultConfig returns the production defaults.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:             "0.0.0.0",
			Port:             4000,
			MaxSessions:      100,
			MaxMessageLength: 1000,
			WriteTimeout:     10 * time.Second,
			WebSocketEnabled: false,
			WebSocketPort:    4001,
		},
		Broker: BrokerConfig{
			InboundCapacity:   1000,
			OutboundCapacity:  1000,
			AnalyticsCapacity: 1000,
			OutboundPolicy:    "block",
			AnalyticsPolicy:   "drop",
			AnalyticsEnabled:  true,
			MonitorInterval:   5 * time.Second,
			ShutdownGrace:     5 * time.Second,
		},
		RateLimit: RateLimitConfig{
			Limit:  60,
			Window: time.Minute,
		},
		Sessions: SessionsConfig{
			IdleTimeout:   5 * time.Minute,
			SweepInterval: 30 * time.Second,
		},
		Stats: StatsConfig{
			PruneThreshold: 15 * time.Minute,
			ReportInterval: time.Minute,
			BotName:        "Analytics",
		},
		Log: LogConfig{Level: "info"},
	}
}

// Validate rejects configurations that would fail at runtime.
func (c *Config) Validate() error {
	// Port 0 asks the OS for an ephemeral port.
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server port must be between 0 and 65535")
	}
	if c.Server.WebSocketEnabled && (c.Server.WebSocketPort <= 0 || c.Server.WebSocketPort > 65535) {
		return fmt.Errorf("websocket port must be between 1 and 65535")
	}
	if c.Server.MaxSessions <= 0 {
		return fmt.Errorf("max sessions must be positive")
	}
	if c.Server.MaxMessageLength <= 0 {
		return fmt.Errorf("max message length must be positive")
	}
	if c.Broker.InboundCapacity <= 0 || c.Broker.OutboundCapacity <= 0 || c.Broker.AnalyticsCapacity <= 0 {
		return fmt.Errorf("queue capacities must be positive")
	}
	if !validPolicy(c.Broker.OutboundPolicy) || !validPolicy(c.Broker.AnalyticsPolicy) {
		return fmt.Errorf("enqueue policy must be %q or %q", "block", "drop")
	}
	if c.RateLimit.Limit <= 0 {
		return fmt.Errorf("rate limit must be positive")
	}
	if c.RateLimit.Window <= 0 {
		return fmt.Errorf("rate limit window must be positive")
	}
	if c.Sessions.IdleTimeout <= 0 {
		return fmt.Errorf("session idle timeout must be positive")
	}
	if c.Sessions.SweepInterval <= 0 {
		return fmt.Errorf("sweep interval must be positive")
	}
	if c.Stats.PruneThreshold <= 0 {
		return fmt.Errorf("stats prune threshold must be positive")
	}
	if c.Stats.BotName == "" {
		return fmt.Errorf("bot name cannot be empty")
	}
	return nil
}

func validPolicy(policy string) bool {
	return policy == "block" || policy == "drop"
}

// applyEnv overlays NETCHAT_* environment variables on c.
func (c *Config) applyEnv() {
	if host := os.Getenv("NETCHAT_HOST"); host != "" {
		c.Server.Host = host
	}
	if port := os.Getenv("NETCHAT_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			c.Server.Port = p
		}
	}
	if sessions := os.Getenv("NETCHAT_MAX_SESSIONS"); sessions != "" {
		if n, err := strconv.Atoi(sessions); err == nil {
			c.Server.MaxSessions = n
		}
	}
	if capacity := os.Getenv("NETCHAT_INBOUND_CAPACITY"); capacity != "" {
		if n, err := strconv.Atoi(capacity); err == nil {
			c.Broker.InboundCapacity = n
		}
	}
	if limit := os.Getenv("NETCHAT_RATE_LIMIT"); limit != "" {
		if n, err := strconv.Atoi(limit); err == nil {
			c.RateLimit.Limit = n
		}
	}
	if window := os.Getenv("NETCHAT_RATE_WINDOW"); window != "" {
		if d, err := time.ParseDuration(window); err == nil {
			c.RateLimit.Window = d
		}
	}
	if timeout := os.Getenv("NETCHAT_IDLE_TIMEOUT"); timeout != "" {
		if d, err := time.ParseDuration(timeout); err == nil {
			c.Sessions.IdleTimeout = d
		}
	}
	if enabled := os.Getenv("NETCHAT_ANALYTICS_ENABLED"); enabled != "" {
		if v, err := strconv.ParseBool(enabled); err == nil {
			c.Broker.AnalyticsEnabled = v
		}
	}
	if level := os.Getenv("NETCHAT_LOG_LEVEL"); level != "" {
		c.Log.Level = level
	}
}

// fileConfig mirrors Config for YAML parsing; durations are strings so the
// file can say "5m" instead of nanosecond counts.
type fileConfig struct {
	Server *struct {
		Host             string `yaml:"host"`
		Port             int    `yaml:"port"`
		MaxSessions      int    `yaml:"max_sessions"`
		MaxMessageLength int    `yaml:"max_message_length"`
		WriteTimeout     string `yaml:"write_timeout"`
		WebSocketEnabled *bool  `yaml:"websocket_enabled"`
		WebSocketPort    int    `yaml:"websocket_port"`
	} `yaml:"server"`
	Broker *struct {
		InboundCapacity   int    `yaml:"inbound_capacity"`
		OutboundCapacity  int    `yaml:"outbound_capacity"`
		AnalyticsCapacity int    `yaml:"analytics_capacity"`
		OutboundPolicy    string `yaml:"outbound_policy"`
		AnalyticsPolicy   string `yaml:"analytics_policy"`
		AnalyticsEnabled  *bool  `yaml:"analytics_enabled"`
		MonitorInterval   string `yaml:"monitor_interval"`
		ShutdownGrace     string `yaml:"shutdown_grace"`
	} `yaml:"broker"`
	RateLimit *struct {
		Limit  int    `yaml:"limit"`
		Window string `yaml:"window"`
	} `yaml:"rate_limit"`
	Sessions *struct {
		IdleTimeout   string `yaml:"idle_timeout"`
		SweepInterval string `yaml:"sweep_interval"`
	} `yaml:"sessions"`
	Stats *struct {
		PruneThreshold string `yaml:"prune_threshold"`
		ReportInterval string `yaml:"report_interval"`
		BotName        string `yaml:"bot_name"`
	} `yaml:"stats"`
	Log *struct {
		Level string `yaml:"level"`
	} `yaml:"log"`
}

// applyFile overlays a YAML file on c. Unset fields keep their values.
func (c *Config) applyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var f fileConfig
	if err := yaml.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if f.Server != nil {
		if f.Server.Host != "" {
			c.Server.Host = f.Server.Host
		}
		if f.Server.Port > 0 {
			c.Server.Port = f.Server.Port
		}
		if f.Server.MaxSessions > 0 {
			c.Server.MaxSessions = f.Server.MaxSessions
		}
		if f.Server.MaxMessageLength > 0 {
			c.Server.MaxMessageLength = f.Server.MaxMessageLength
		}
		overlayDuration(&c.Server.WriteTimeout, f.Server.WriteTimeout)
		if f.Server.WebSocketEnabled != nil {
			c.Server.WebSocketEnabled = *f.Server.WebSocketEnabled
		}
		if f.Server.WebSocketPort > 0 {
			c.Server.WebSocketPort = f.Server.WebSocketPort
		}
	}
	if f.Broker != nil {
		if f.Broker.InboundCapacity > 0 {
			c.Broker.InboundCapacity = f.Broker.InboundCapacity
		}
		if f.Broker.OutboundCapacity > 0 {
			c.Broker.OutboundCapacity = f.Broker.OutboundCapacity
		}
		if f.Broker.AnalyticsCapacity > 0 {
			c.Broker.AnalyticsCapacity = f.Broker.AnalyticsCapacity
		}
		if f.Broker.OutboundPolicy != "" {
			c.Broker.OutboundPolicy = f.Broker.OutboundPolicy
		}
		if f.Broker.AnalyticsPolicy != "" {
			c.Broker.AnalyticsPolicy = f.Broker.AnalyticsPolicy
		}
		if f.Broker.AnalyticsEnabled != nil {
			c.Broker.AnalyticsEnabled = *f.Broker.AnalyticsEnabled
		}
		overlayDuration(&c.Broker.MonitorInterval, f.Broker.MonitorInterval)
		overlayDuration(&c.Broker.ShutdownGrace, f.Broker.ShutdownGrace)
	}
	if f.RateLimit != nil {
		if f.RateLimit.Limit > 0 {
			c.RateLimit.Limit = f.RateLimit.Limit
		}
		overlayDuration(&c.RateLimit.Window, f.RateLimit.Window)
	}
	if f.Sessions != nil {
		overlayDuration(&c.Sessions.IdleTimeout, f.Sessions.IdleTimeout)
		overlayDuration(&c.Sessions.SweepInterval, f.Sessions.SweepInterval)
	}
	if f.Stats != nil {
		overlayDuration(&c.Stats.PruneThreshold, f.Stats.PruneThreshold)
		overlayDuration(&c.Stats.ReportInterval, f.Stats.ReportInterval)
		if f.Stats.BotName != "" {
			c.Stats.BotName = f.Stats.BotName
		}
	}
	if f.Log != nil && f.Log.Level != "" {
		c.Log.Level = f.Log.Level
	}
	return nil
}

func overlayDuration(dst *time.Duration, raw string) {
	if raw == "" {
		return
	}
	if d, err := time.ParseDuration(raw); err == nil {
		*dst = d
	}
}

// Load builds the effective configuration: defaults, then environment
// overrides, then the file at path (if given), then validation.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	cfg.applyEnv()

	if path != "" {
		if err := cfg.applyFile(path); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/urfave/cli/v3"

	"netchat/internal/app"
	"netchat/internal/config"
)

var (
	// Build information. Populated at build-time via -ldflags flag.
	version = "dev"
	commit  = "HEAD"
)

func main() {
	cmd := &cli.Command{
		Name:    "netchat",
		Usage:   "Concurrent text-chat server with live usage analytics",
		Version: fmt.Sprintf("%s (%s)", version, commit),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path to YAML config file",
				Sources: cli.EnvVars("NETCHAT_CONFIG_FILE"),
			},
			&cli.IntFlag{
				Name:  "port",
				Usage: "TCP port to listen on (overrides config)",
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "log level (debug, info, warn, error)",
				Sources: cli.EnvVars("NETCHAT_LOG_LEVEL"),
				Value:   "info",
			},
			&cli.BoolFlag{
				Name:  "json-logs",
				Usage: "emit JSON logs instead of console output",
			},
		},
		Action: run,
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cmd *cli.Command) error {
	log, err := setupLogger(cmd.String("log-level"), cmd.Bool("json-logs"))
	if err != nil {
		return err
	}

	cfg, err := config.Load(cmd.String("config"))
	if err != nil {
		return err
	}
	if port := cmd.Int("port"); port != 0 {
		cfg.Server.Port = int(port)
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}
	}
	if !cmd.IsSet("log-level") && cfg.Log.Level != "" {
		if log, err = setupLogger(cfg.Log.Level, cmd.Bool("json-logs")); err != nil {
			return err
		}
	}

	application, err := app.New(cfg, log)
	if err != nil {
		return fmt.Errorf("failed to create application: %w", err)
	}
	if err := application.Start(); err != nil {
		return err
	}

	signalCh := make(chan os.Signal, 1)
	signal.Notify(signalCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-signalCh:
		log.Info().Str("signal", sig.String()).Msg("shutdown signal received")
	case <-ctx.Done():
	}

	application.Stop()
	return nil
}

func setupLogger(level string, jsonLogs bool) (zerolog.Logger, error) {
	parsedLevel, err := zerolog.ParseLevel(level)
	if err != nil {
		return zerolog.Logger{}, fmt.Errorf("failed to parse log level: %w", err)
	}

	var output io.Writer = zerolog.ConsoleWriter{Out: os.Stderr}
	if jsonLogs {
		output = os.Stderr
	}

	return zerolog.New(output).Level(parsedLevel).With().Timestamp().Logger(), nil
}

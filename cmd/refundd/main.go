// Package main runs the refundmatch HTTP daemon.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/refundmatch/internal/config"
	refundhttp "github.com/fyrsmithlabs/refundmatch/internal/http"
	"github.com/fyrsmithlabs/refundmatch/internal/logging"
	"github.com/fyrsmithlabs/refundmatch/internal/services"
	"github.com/fyrsmithlabs/refundmatch/internal/telemetry"
)

var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

func main() {
	configPath := flag.String("config", "", "path to config.yaml (default ~/.config/refundmatch/config.yaml)")
	flag.Parse()
	args := flag.Args()

	if len(args) > 0 {
		switch args[0] {
		case "version":
			printVersion()
			os.Exit(0)
		default:
			fmt.Fprintf(os.Stderr, "Unknown command: %s\n", args[0])
			fmt.Fprintf(os.Stderr, "\nUsage:\n")
			fmt.Fprintf(os.Stderr, "  refundd           Start the refundmatch daemon\n")
			fmt.Fprintf(os.Stderr, "  refundd version   Show version information\n")
			os.Exit(1)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, *configPath); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}

func printVersion() {
	fmt.Printf("refundd by Fyrsmith Labs\n")
	fmt.Printf("Version:    %s\n", version)
	fmt.Printf("Commit:     %s\n", gitCommit)
	fmt.Printf("Build Date: %s\n", buildDate)
}

// run serves until ctx is cancelled, then shuts down within the configured
// timeout.
func run(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logCfg, err := logging.FromAppConfig(cfg.Logging)
	if err != nil {
		return fmt.Errorf("invalid logging config: %w", err)
	}
	logger, err := logging.NewLogger(logCfg)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	telCfg := telemetry.FromAppConfig(cfg.Telemetry)
	telCfg.ServiceVersion = version
	tel, err := telemetry.New(ctx, telCfg, logger.Underlying().Named("telemetry"))
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Telemetry.ShutdownTimeout.Duration())
		defer cancel()
		if err := tel.Shutdown(shutdownCtx); err != nil {
			logger.Warn(shutdownCtx, "telemetry shutdown", zap.Error(err))
		}
	}()

	logger.Info(ctx, "starting refundd",
		zap.String("version", version),
		zap.Int("port", cfg.Server.Port),
		zap.String("history_backend", cfg.History.Backend),
		zap.Bool("telemetry_enabled", tel.IsEnabled()),
	)

	reg, err := services.Open(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize services: %w", err)
	}
	defer func() {
		if err := reg.Close(); err != nil {
			logger.Warn(context.Background(), "closing history store", zap.Error(err))
		}
	}()

	srv, err := refundhttp.NewServer(refundhttp.Services{
		Vendors:   reg.Vendors(),
		Patterns:  reg.Patterns(),
		Precedent: reg.Precedent(),
		Learner:   reg.Learner(),
	}, logger, &refundhttp.Config{
		Host:                  cfg.Server.Host,
		Port:                  cfg.Server.Port,
		VendorMinOverlap:      cfg.Matcher.VendorMinOverlap,
		PatternMinOverlap:     cfg.Matcher.PatternMinOverlap,
		HighConfidenceRate:    cfg.Matcher.HighConfidenceRate,
		HighConfidenceSamples: cfg.Matcher.HighConfidenceSamples,
	})
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout.Duration())
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("shutting down server: %w", err)
	}
	if err := <-errCh; err != nil {
		return err
	}
	logger.Info(shutdownCtx, "server shutdown complete")
	return nil
}

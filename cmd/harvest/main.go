// Package main provides the entry point for one harvest run.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/samber/do/v2"

	"github.com/animap/harvester/internal/config"
	"github.com/animap/harvester/internal/di"
	"github.com/animap/harvester/internal/domain"
	herrors "github.com/animap/harvester/internal/errors"
)

const (
	exitFailure = 1
	exitConfig  = 2
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		return exitConfig
	}

	injector := di.NewContainerWithConfig(cfg)

	engine, err := di.Bootstrap(injector)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to bootstrap harvester: %v\n", err)
		injector.Shutdown()
		if herrors.KindOf(err) == herrors.KindConfiguration {
			return exitConfig
		}
		return exitFailure
	}

	log := do.MustInvoke[*slog.Logger](injector)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	summary, runErr := engine.Run(ctx)
	printSummary(summary)

	// The container closes the index and run history in reverse order.
	if err := injector.Shutdown(); err != nil {
		log.Error("Shutdown error", "error", err)
	}

	switch {
	case runErr == nil:
		return 0
	case errors.Is(runErr, context.Canceled):
		log.Info("Harvest interrupted, rerun to resume from the last checkpoint")
		return exitFailure
	case herrors.KindOf(runErr) == herrors.KindConfiguration:
		log.Error("Harvest failed", "error", runErr)
		return exitConfig
	default:
		log.Error("Harvest failed", "error", runErr)
		return exitFailure
	}
}

func printSummary(s domain.RunSummary) {
	fmt.Printf("\n=== %s (%s) ===\n", s.Target, s.Mode)
	fmt.Printf("Processed:  %d\n", s.Processed)
	fmt.Printf("  New:      %d\n", s.Created)
	fmt.Printf("  Updated:  %d\n", s.Refreshed)
	fmt.Printf("Skipped:    %d\n", s.Skipped)
	fmt.Printf("Adult:      %d\n", s.Mature)
	fmt.Printf("Failed:     %d\n", s.Failed)
	if s.Discovered > 0 {
		fmt.Printf("Discovered: %d\n", s.Discovered)
	}
	if !s.FinishedAt.IsZero() {
		fmt.Printf("Duration:   %s\n", s.FinishedAt.Sub(s.StartedAt).Round(time.Second))
	}
}

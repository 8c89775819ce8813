// Package providers contains dependency injection providers for the harvester.
package providers

import (
	"log/slog"

	"github.com/samber/do/v2"

	"github.com/animap/harvester/internal/config"
	"github.com/animap/harvester/internal/logger"
)

// ProvideConfig provides the run configuration.
func ProvideConfig(i do.Injector) (*config.Config, error) {
	return config.LoadConfig()
}

// ProvideLogger provides the structured logger.
func ProvideLogger(i do.Injector) (*slog.Logger, error) {
	cfg := do.MustInvoke[*config.Config](i)

	log := logger.New(logger.Config{
		Level:       logger.ParseLevel(cfg.Logger.Level),
		AddSource:   cfg.App.Environment == "development",
		Environment: cfg.App.Environment,
	})

	log.Info("Starting harvester",
		"environment", cfg.App.Environment,
		"log_level", cfg.Logger.Level,
		"target", cfg.Harvest.Target,
		"mode", cfg.Harvest.Mode,
		"output", cfg.Paths.Output,
	)

	return log, nil
}

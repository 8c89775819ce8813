package providers

import (
	"log/slog"

	"github.com/samber/do/v2"

	"github.com/animap/harvester/internal/checkpoint"
	"github.com/animap/harvester/internal/config"
	"github.com/animap/harvester/internal/harvest"
	"github.com/animap/harvester/internal/logger"
	"github.com/animap/harvester/internal/sink"
	"github.com/animap/harvester/internal/source"
)

// ProvideEngine provides the harvest engine with the index and run history
// wired in.
func ProvideEngine(i do.Injector) (*harvest.Engine, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*slog.Logger](i)
	src := do.MustInvoke[source.Source](i)
	store := do.MustInvoke[*checkpoint.Store](i)
	fs := do.MustInvoke[*sink.FileSink](i)
	idx := do.MustInvoke[*IndexHandle](i)
	runs := do.MustInvoke[*RunLogHandle](i)

	opts := harvest.Options{
		Workers:       cfg.Harvest.Workers,
		BatchSize:     cfg.Harvest.BatchSize,
		ProgressEvery: cfg.Harvest.ProgressEvery,
		Reset:         cfg.Harvest.Reset,
	}

	return harvest.New(src, store, fs, opts, logger.ForTarget(log, cfg.Target()),
		harvest.WithIndex(idx),
		harvest.WithRunLog(runs),
	)
}

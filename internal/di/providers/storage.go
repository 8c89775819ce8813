package providers

import (
	"log/slog"

	"github.com/samber/do/v2"

	"github.com/animap/harvester/internal/checkpoint"
	"github.com/animap/harvester/internal/config"
	"github.com/animap/harvester/internal/index"
	"github.com/animap/harvester/internal/runlog"
	"github.com/animap/harvester/internal/sink"
)

// ProvideCheckpointStore provides the checkpoint store of the configured target.
func ProvideCheckpointStore(i do.Injector) (*checkpoint.Store, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*slog.Logger](i)

	store := checkpoint.NewStore(cfg.Paths.StateDir, cfg.Paths.Output, cfg.Target(), log)
	log.Debug("Checkpoint store ready", "path", store.Path())

	return store, nil
}

// ProvideSink provides the record sink of the configured target.
func ProvideSink(i do.Injector) (*sink.FileSink, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*slog.Logger](i)

	return sink.NewFileSink(cfg.Paths.Output, cfg.Target(), cfg.Mode(), cfg.Harvest.Freshness, log), nil
}

// IndexHandle wraps the cross-reference index with shutdown capability.
type IndexHandle struct {
	*index.Index
}

// Shutdown implements do.Shutdownable.
func (h *IndexHandle) Shutdown() error {
	return h.Close()
}

// ProvideIndex provides the cross-reference index.
func ProvideIndex(i do.Injector) (*IndexHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*slog.Logger](i)

	x, err := index.Open(cfg.Paths.Index, log)
	if err != nil {
		return nil, err
	}

	log.Info("Cross-reference index opened", "path", cfg.Paths.Index)

	return &IndexHandle{Index: x}, nil
}

// RunLogHandle wraps the run history with shutdown capability.
type RunLogHandle struct {
	*runlog.Log
}

// Shutdown implements do.Shutdownable.
func (h *RunLogHandle) Shutdown() error {
	return h.Close()
}

// ProvideRunLog provides the run history database.
func ProvideRunLog(i do.Injector) (*RunLogHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*slog.Logger](i)

	runs, err := runlog.Open(cfg.Paths.RunLog, log)
	if err != nil {
		return nil, err
	}

	log.Info("Run history opened", "path", cfg.Paths.RunLog)

	return &RunLogHandle{Log: runs}, nil
}

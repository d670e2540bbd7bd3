package app

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/bnema/zerowrap"

	"github.com/bnema/rotavault/internal/adapters/out/filesystem"
	"github.com/bnema/rotavault/internal/adapters/out/history"
	"github.com/bnema/rotavault/internal/adapters/out/state"
	"github.com/bnema/rotavault/internal/adapters/out/transfer"
	"github.com/bnema/rotavault/internal/boundaries/out"
	"github.com/bnema/rotavault/internal/domain"
	"github.com/bnema/rotavault/internal/usecase/backup"
)

// runtime bundles everything a command needs after wiring.
type runtime struct {
	cfg     Config
	log     zerowrap.Logger
	svc     *backup.Service
	history out.HistoryStore
	cleanup func()
}

func (r *runtime) close() {
	if r.history != nil {
		if err := r.history.Close(); err != nil {
			r.log.Warn().Err(err).Msg("failed to close history store")
		}
	}
	if r.cleanup != nil {
		r.cleanup()
	}
}

// initLogger initializes the zerowrap logger.
func initLogger(cfg Config) (zerowrap.Logger, func(), error) {
	logConfig := zerowrap.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	}

	if cfg.Logging.File.Enabled {
		logPath := cfg.Logging.File.Path
		if logPath == "" {
			logPath = filepath.Join(resolveDataDir(cfg), "logs", "rotavault.log")
		}

		log, cleanup, err := zerowrap.NewWithFile(logConfig, zerowrap.FileConfig{
			Enabled:    true,
			Path:       logPath,
			MaxSize:    cfg.Logging.File.MaxSize,
			MaxBackups: cfg.Logging.File.MaxBackups,
			MaxAge:     cfg.Logging.File.MaxAge,
			Compress:   true,
		})
		if err != nil {
			return zerowrap.Default(), nil, fmt.Errorf("failed to create logger with file: %w", err)
		}
		return log, cleanup, nil
	}

	return zerowrap.New(logConfig), nil, nil
}

// newRuntime loads config, builds the adapters and wires the service.
func newRuntime(configPath string) (*runtime, error) {
	cfg, err := initConfig(configPath)
	if err != nil {
		return nil, err
	}

	log, cleanup, err := initLogger(cfg)
	if err != nil {
		return nil, err
	}

	methods := transfer.Methods(log)
	sources, err := LoadSources(resolveSourcesFile(cfg), methods)
	if err != nil {
		if cleanup != nil {
			cleanup()
		}
		return nil, err
	}

	skew, err := time.ParseDuration(cfg.State.SkewMargin)
	if err != nil {
		if cleanup != nil {
			cleanup()
		}
		return nil, fmt.Errorf("invalid state.skew_margin: %w", err)
	}

	var historyStore out.HistoryStore
	if cfg.History.Enabled {
		hs, err := history.New(resolveHistoryPath(cfg))
		if err != nil {
			if cleanup != nil {
				cleanup()
			}
			return nil, err
		}
		historyStore = hs
	}

	svc := backup.NewService(
		sources,
		methods,
		filesystem.NewSnapshotStore(log),
		state.NewFileStore(resolveStatePath(cfg)),
		historyStore,
		skew,
		cfg.Run.Workers,
		log,
	)

	return &runtime{cfg: cfg, log: log, svc: svc, history: historyStore, cleanup: cleanup}, nil
}

// RunBackup executes one batch run, or a single destination's run when
// destination is nonempty. A zero now means wall-clock time.
func RunBackup(ctx context.Context, configPath, destination string, now time.Time) (domain.RunSummary, error) {
	rt, err := newRuntime(configPath)
	if err != nil {
		return domain.RunSummary{}, err
	}
	defer rt.close()

	if now.IsZero() {
		now = time.Now()
	}
	ctx = zerowrap.WithCtx(ctx, rt.log)

	if destination != "" {
		return rt.svc.RunDestination(ctx, destination, now)
	}
	return rt.svc.Run(ctx, now)
}

// RunPrune applies retention to every destination without backing up.
func RunPrune(ctx context.Context, configPath string) (domain.RunSummary, error) {
	rt, err := newRuntime(configPath)
	if err != nil {
		return domain.RunSummary{}, err
	}
	defer rt.close()

	ctx = zerowrap.WithCtx(ctx, rt.log)
	return rt.svc.Prune(ctx)
}

// ListSnapshots returns the snapshots of one destination.
func ListSnapshots(ctx context.Context, configPath, destination string) ([]domain.Snapshot, error) {
	rt, err := newRuntime(configPath)
	if err != nil {
		return nil, err
	}
	defer rt.close()

	ctx = zerowrap.WithCtx(ctx, rt.log)
	return rt.svc.ListSnapshots(ctx, destination)
}

// RecentRuns returns the most recent run summaries from history.
func RecentRuns(ctx context.Context, configPath string, limit int) ([]domain.RunSummary, error) {
	rt, err := newRuntime(configPath)
	if err != nil {
		return nil, err
	}
	defer rt.close()

	if rt.history == nil {
		return nil, fmt.Errorf("run history is disabled in configuration")
	}
	return rt.history.Recent(ctx, limit)
}

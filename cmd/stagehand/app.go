package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/ChamsBouzaiene/stagehand/internal/checkpoint"
	"github.com/ChamsBouzaiene/stagehand/internal/config"
	"github.com/ChamsBouzaiene/stagehand/internal/events"
	"github.com/ChamsBouzaiene/stagehand/internal/metrics"
	"github.com/ChamsBouzaiene/stagehand/internal/providers"
	"github.com/ChamsBouzaiene/stagehand/internal/runner"
	"github.com/ChamsBouzaiene/stagehand/internal/tools"
	"github.com/ChamsBouzaiene/stagehand/internal/workspace"
)

// app holds what every subcommand shares.
type app struct {
	flags    *globalFlags
	cfgMgr   *config.Manager
	cfg      *config.Config
	logger   zerolog.Logger
	store    *checkpoint.SQLiteStore
	registry *prometheus.Registry
}

// loadApp reads the configuration and opens the checkpoint store. Logs go to logOut.
func loadApp(ctx context.Context, g *globalFlags, logOut io.Writer) (*app, error) {
	bootLogger := zerolog.New(logOut).With().Timestamp().Logger()
	cfgMgr, err := config.NewManager(g.configPath, bootLogger)
	if err != nil {
		return nil, err
	}
	cfg, err := cfgMgr.Load()
	if err != nil {
		return nil, err
	}
	if g.logLevel != "" {
		cfg.Log.Level = g.logLevel
	}
	logger := cfg.Log.NewLogger(logOut)

	if err := os.MkdirAll(filepath.Dir(cfg.Checkpoint.Path), 0o755); err != nil {
		return nil, fmt.Errorf("create checkpoint dir: %w", err)
	}
	store, err := checkpoint.OpenSQLite(ctx, cfg.Checkpoint.Path)
	if err != nil {
		return nil, err
	}
	logger.Debug().Str("config", cfgMgr.Path()).Str("checkpoints", cfg.Checkpoint.Path).Msg("configuration loaded")

	return &app{
		flags:    g,
		cfgMgr:   cfgMgr,
		cfg:      cfg,
		logger:   logger,
		store:    store,
		registry: prometheus.NewRegistry(),
	}, nil
}

func (a *app) workspaceRoot() (string, error) {
	if a.flags.workspace != "" {
		return a.flags.workspace, nil
	}
	return os.Getwd()
}

// newManager builds the provider client, tool registry and session manager.
// idleTTL of zero disables reaping.
func (a *app) newManager(idleTTL time.Duration) (*runner.Manager, error) {
	llm, model, err := providers.New(a.cfg.Provider, a.logger)
	if err != nil {
		return nil, err
	}
	root, err := a.workspaceRoot()
	if err != nil {
		return nil, fmt.Errorf("resolve workspace: %w", err)
	}
	a.logger.Info().Str("model", model).Str("workspace", root).Msg("agent ready")

	return runner.NewManager(runner.ManagerConfig{
		Session: runner.SessionConfig{
			LLM:          llm,
			Model:        model,
			Tools:        tools.NewRegistry(a.cfg.Tools),
			Engine:       a.cfg.Agent,
			Checkpointer: a.store,
			Timeouts:     a.cfg.Timeouts,
			Workspace: workspace.Options{
				Root:    root,
				Sandbox: a.cfg.Sandbox,
			},
			Renderers: []events.Renderer{
				events.LogRenderer{L: a.logger},
				metrics.New(a.registry),
			},
			ShutdownTimeout: a.cfg.Sessions.ShutdownTimeout,
			Logger:          a.logger,
		},
		IdleTTL: idleTTL,
		Logger:  a.logger,
	}), nil
}

// watchConfig hot-reloads engine settings into mgr for new sessions.
func (a *app) watchConfig(ctx context.Context, mgr *runner.Manager) {
	err := a.cfgMgr.Watch(ctx, func(cfg *config.Config) {
		mgr.SetEngineConfig(cfg.Agent)
		a.logger.Info().Str("config", a.cfgMgr.Path()).Msg("configuration reloaded")
	})
	if err != nil {
		a.logger.Warn().Err(err).Msg("config watching disabled")
	}
}

func (a *app) Close() error {
	if a.store == nil {
		return nil
	}
	return a.store.Close()
}

// shutdown closes every session, then the store.
func (a *app) shutdown(mgr *runner.Manager) error {
	var errs []error
	if mgr != nil {
		if err := mgr.CloseAll(); err != nil {
			errs = append(errs, fmt.Errorf("close sessions: %w", err))
		}
	}
	if err := a.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close store: %w", err))
	}
	return errors.Join(errs...)
}

package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/ChamsBouzaiene/stagehand/internal/sandbox"
)

const watchDebounce = 200 * time.Millisecond

// Manager loads and saves one configuration file.
type Manager struct {
	path     string
	envFiles []string
	logger   zerolog.Logger
}

// NewManager uses path, or os.UserConfigDir()/stagehand/config.yaml when
// path is empty. envFiles are loaded before the environment is read; missing
// ones are skipped.
func NewManager(path string, logger zerolog.Logger, envFiles ...string) (*Manager, error) {
	if path == "" {
		dir, err := os.UserConfigDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get user config dir: %w", err)
		}
		path = filepath.Join(dir, "stagehand", "config.yaml")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	return &Manager{
		path:     abs,
		envFiles: envFiles,
		logger:   logger.With().Str("component", "config").Logger(),
	}, nil
}

// Path returns the absolute path of the configuration file.
func (m *Manager) Path() string { return m.path }

// Exists reports whether the configuration file has been created.
func (m *Manager) Exists() bool {
	_, err := os.Stat(m.path)
	return err == nil
}

// Load reads defaults, then the file if present, then environment overrides,
// and validates the result.
func (m *Manager) Load() (*Config, error) {
	for _, f := range m.envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", f, err)
		}
	}

	cfg := Default()
	data, err := os.ReadFile(m.path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", m.path, err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	if cfg.Checkpoint.Path == "" {
		cfg.Checkpoint.Path = filepath.Join(filepath.Dir(m.path), "threads.db")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", m.path, err)
	}
	return cfg, nil
}

// Save writes cfg with owner-only permissions since it may hold API keys.
func (m *Manager) Save(cfg *Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(m.path), 0o755); err != nil {
		return fmt.Errorf("failed to create config dir: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	tmp := m.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return os.Rename(tmp, m.path)
}

// Watch calls onChange with every valid new configuration until ctx ends.
// Invalid edits are logged and skipped. The parent directory is watched so
// editors that replace the file are seen too.
func (m *Manager) Watch(ctx context.Context, onChange func(*Config)) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	dir := filepath.Dir(m.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		w.Close()
		return fmt.Errorf("failed to create config dir: %w", err)
	}
	if err := w.Add(dir); err != nil {
		w.Close()
		return fmt.Errorf("watch %s: %w", dir, err)
	}

	go func() {
		defer w.Close()
		var (
			mu    sync.Mutex
			timer *time.Timer
		)
		reload := func() {
			cfg, err := m.Load()
			if err != nil {
				m.logger.Warn().Err(err).Msg("ignoring config change")
				return
			}
			m.logger.Info().Str("path", m.path).Msg("config reloaded")
			onChange(cfg)
		}
		for {
			select {
			case <-ctx.Done():
				mu.Lock()
				if timer != nil {
					timer.Stop()
				}
				mu.Unlock()
				return
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != m.path || ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
					continue
				}
				mu.Lock()
				if timer != nil {
					timer.Stop()
				}
				timer = time.AfterFunc(watchDebounce, reload)
				mu.Unlock()
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				m.logger.Warn().Err(err).Msg("config watcher error")
			}
		}
	}()
	return nil
}

// applyEnv overrides file values with STAGEHAND_* variables.
func applyEnv(cfg *Config) error {
	str := func(key string, dst *string) {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			*dst = v
		}
	}
	str("STAGEHAND_PROVIDER", &cfg.Provider.Provider)
	str("STAGEHAND_MODEL", &cfg.Provider.Model)
	str("STAGEHAND_BASE_URL", &cfg.Provider.BaseURL)
	str("STAGEHAND_LOG_LEVEL", &cfg.Log.Level)
	str("STAGEHAND_DB", &cfg.Checkpoint.Path)
	str("STAGEHAND_ADDR", &cfg.Server.Addr)

	var mode string
	str("STAGEHAND_SANDBOX", &mode)
	if mode != "" {
		cfg.Sandbox.Mode = sandbox.Mode(mode)
	}

	var errs []error
	integer := func(key string, dst *int) {
		v := os.Getenv(key)
		if v == "" {
			return
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", key, err))
			return
		}
		*dst = n
	}
	integer("STAGEHAND_RECURSION_LIMIT", &cfg.Agent.RecursionLimit)
	integer("STAGEHAND_REFLECTION_THRESHOLD", &cfg.Agent.ReflectionThreshold)

	if v := os.Getenv("STAGEHAND_LOG_PRETTY"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("STAGEHAND_LOG_PRETTY: %w", err))
		} else {
			cfg.Log.Pretty = b
		}
	}
	if v := os.Getenv("STAGEHAND_STREAM"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("STAGEHAND_STREAM: %w", err))
		} else {
			cfg.Agent.Stream = b
		}
	}
	return errors.Join(errs...)
}

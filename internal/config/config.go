// Package config loads the stagehand configuration from YAML, .env files
// and STAGEHAND_* environment variables, and watches it for changes.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/ChamsBouzaiene/stagehand/internal/broker"
	"github.com/ChamsBouzaiene/stagehand/internal/engine"
	"github.com/ChamsBouzaiene/stagehand/internal/providers"
	"github.com/ChamsBouzaiene/stagehand/internal/sandbox"
	"github.com/ChamsBouzaiene/stagehand/internal/tools"
)

// Config is the full configuration file.
type Config struct {
	Provider   providers.Config `yaml:"provider"`
	Agent      engine.Config    `yaml:"agent"`
	Timeouts   broker.Timeouts  `yaml:"timeouts"`
	Sandbox    sandbox.Config   `yaml:"sandbox"`
	Tools      tools.Set        `yaml:"tools"`
	Sessions   Sessions         `yaml:"sessions"`
	Checkpoint Checkpoint       `yaml:"checkpoint"`
	Server     Server           `yaml:"server"`
	Log        Log              `yaml:"log"`
}

// Sessions controls session lifetime.
type Sessions struct {
	IdleTTL         time.Duration `yaml:"idle_ttl"` // 0 disables reaping
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// Checkpoint locates the thread database.
type Checkpoint struct {
	Path string `yaml:"path"` // defaults to threads.db next to the config file
}

// Server configures `stagehand serve`.
type Server struct {
	Addr string `yaml:"addr"`
}

// Log configures the process logger.
type Log struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		Agent:    engine.DefaultConfig(),
		Timeouts: broker.DefaultTimeouts(),
		Sandbox:  sandbox.DefaultConfig(),
		Tools:    tools.DefaultSet(),
		Sessions: Sessions{IdleTTL: 30 * time.Minute, ShutdownTimeout: 10 * time.Second},
		Server:   Server{Addr: "127.0.0.1:7777"},
		Log:      Log{Level: "info"},
	}
}

// Validate reports every out-of-range value at once.
func (c *Config) Validate() error {
	var errs []error
	if c.Agent.ReflectionThreshold < 1 {
		errs = append(errs, fmt.Errorf("agent.reflection_threshold must be >= 1, got %d", c.Agent.ReflectionThreshold))
	}
	if c.Agent.RecursionLimit < 1 {
		errs = append(errs, fmt.Errorf("agent.recursion_limit must be >= 1, got %d", c.Agent.RecursionLimit))
	}
	if c.Agent.MaxProceedRetries < 0 {
		errs = append(errs, fmt.Errorf("agent.max_proceed_retries must be >= 0, got %d", c.Agent.MaxProceedRetries))
	}
	if c.Agent.Retry.MaxRetries < 0 {
		errs = append(errs, fmt.Errorf("agent.retry.max_retries must be >= 0, got %d", c.Agent.Retry.MaxRetries))
	}
	for name, d := range map[string]time.Duration{
		"timeouts.confirmation":     c.Timeouts.Confirmation,
		"timeouts.decision":         c.Timeouts.Decision,
		"timeouts.handoff":          c.Timeouts.Handoff,
		"sandbox.cmd_timeout":       c.Sandbox.CmdTimeout,
		"sessions.idle_ttl":         c.Sessions.IdleTTL,
		"sessions.shutdown_timeout": c.Sessions.ShutdownTimeout,
	} {
		if d < 0 {
			errs = append(errs, fmt.Errorf("%s must not be negative, got %s", name, d))
		}
	}
	switch c.Sandbox.Mode {
	case "", sandbox.ModeHost, sandbox.ModeDocker, sandbox.ModeAuto:
	default:
		errs = append(errs, fmt.Errorf("sandbox.mode must be host, docker or auto, got %q", c.Sandbox.Mode))
	}
	if _, err := zerolog.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("log.level: %w", err))
	}
	return errors.Join(errs...)
}

// NewLogger builds the process logger. Pretty output uses a console writer;
// otherwise w receives JSON lines.
func (l Log) NewLogger(w io.Writer) zerolog.Logger {
	if w == nil {
		w = os.Stderr
	}
	level, err := zerolog.ParseLevel(l.Level)
	if err != nil || l.Level == "" {
		level = zerolog.InfoLevel
	}
	if l.Pretty {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.Kitchen}
	}
	return zerolog.New(w).Level(level).With().Timestamp().Logger()
}

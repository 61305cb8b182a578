package sandbox

import (
	"context"
	"fmt"
	"os/exec"
	"time"

	"github.com/rs/zerolog"
)

// Mode represents the sandbox execution mode.
type Mode string

const (
	// ModeDocker uses Docker containers for isolation.
	ModeDocker Mode = "docker"
	// ModeHost runs commands directly on the host (no isolation).
	ModeHost Mode = "host"
	// ModeAuto selects Docker if available, otherwise falls back to host.
	ModeAuto Mode = "auto"
)

const defaultCmdTimeout = 2 * time.Minute

// Config holds configuration for sandbox execution.
type Config struct {
	Mode       Mode          `yaml:"mode"`
	Image      string        `yaml:"image"`  // overrides the per-project image
	CPU        float64       `yaml:"cpu"`    // cores
	Memory     string        `yaml:"memory"` // e.g. "1g", "512m"
	CmdTimeout time.Duration `yaml:"cmd_timeout"`
}

// DefaultConfig returns auto mode with 2 CPUs, 1g of memory and a 2m timeout.
func DefaultConfig() Config {
	return Config{
		Mode:       ModeAuto,
		CPU:        2,
		Memory:     "1g",
		CmdTimeout: defaultCmdTimeout,
	}
}

func (c Config) timeout(t time.Duration) time.Duration {
	if t > 0 {
		return t
	}
	if c.CmdTimeout > 0 {
		return c.CmdTimeout
	}
	return defaultCmdTimeout
}

// IsDockerAvailable checks if the docker CLI can reach a daemon.
func IsDockerAvailable(ctx context.Context) bool {
	return exec.CommandContext(ctx, "docker", "ps").Run() == nil
}

// New creates a runner for cfg.Mode. Auto mode falls back to the host runner
// when Docker is unreachable; explicit docker mode fails instead.
func New(ctx context.Context, cfg Config, logger zerolog.Logger) (Runner, error) {
	logger = logger.With().Str("component", "sandbox").Logger()

	switch cfg.Mode {
	case ModeDocker:
		return NewDockerRunner(ctx, cfg)

	case ModeHost, "":
		logger.Warn().Msg("using host executor, commands are not isolated")
		return NewHostRunner(cfg), nil

	case ModeAuto:
		if IsDockerAvailable(ctx) {
			r, err := NewDockerRunner(ctx, cfg)
			if err == nil {
				return r, nil
			}
			logger.Warn().Err(err).Msg("docker available but runner failed, falling back to host")
		} else {
			logger.Warn().Msg("docker not available, using host executor")
		}
		return NewHostRunner(cfg), nil
	}
	return nil, fmt.Errorf("unknown sandbox mode: %s", cfg.Mode)
}

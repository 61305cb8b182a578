package config

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ChamsBouzaiene/stagehand/internal/engine"
	"github.com/ChamsBouzaiene/stagehand/internal/sandbox"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"STAGEHAND_PROVIDER", "STAGEHAND_MODEL", "STAGEHAND_BASE_URL", "STAGEHAND_LOG_LEVEL",
		"STAGEHAND_DB", "STAGEHAND_ADDR", "STAGEHAND_SANDBOX", "STAGEHAND_RECURSION_LIMIT",
		"STAGEHAND_REFLECTION_THRESHOLD", "STAGEHAND_LOG_PRETTY", "STAGEHAND_STREAM",
	} {
		t.Setenv(k, "")
	}
}

func newTestManager(t *testing.T) (*Manager, string) {
	t.Helper()
	clearEnv(t)
	dir := t.TempDir()
	m, err := NewManager(filepath.Join(dir, "config.yaml"), zerolog.Nop(), filepath.Join(dir, ".env"))
	require.NoError(t, err)
	return m, dir
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
}

func TestLoadDefaultsWhenMissing(t *testing.T) {
	m, dir := newTestManager(t)
	assert.False(t, m.Exists())

	cfg, err := m.Load()
	require.NoError(t, err)
	assert.Equal(t, engine.DefaultReflectionThreshold, cfg.Agent.ReflectionThreshold)
	assert.Equal(t, engine.DefaultRecursionLimit, cfg.Agent.RecursionLimit)
	assert.Equal(t, 60*time.Second, cfg.Timeouts.Confirmation)
	assert.True(t, cfg.Tools.Execution)
	assert.Equal(t, filepath.Join(dir, "threads.db"), cfg.Checkpoint.Path)
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	m, _ := newTestManager(t)
	writeFile(t, m.Path(), `
provider:
  provider: anthropic
  model: claude-test
agent:
  reflection_threshold: 5
  recursion_limit: 40
timeouts:
  decision: 90s
sandbox:
  mode: docker
  memory: 512m
tools:
  execution: false
  allowlist: [go, make]
`)

	cfg, err := m.Load()
	require.NoError(t, err)
	assert.Equal(t, "anthropic", cfg.Provider.Provider)
	assert.Equal(t, 5, cfg.Agent.ReflectionThreshold)
	assert.Equal(t, 40, cfg.Agent.RecursionLimit)
	assert.Equal(t, 90*time.Second, cfg.Timeouts.Decision)
	// Untouched keys keep their defaults.
	assert.Equal(t, 60*time.Second, cfg.Timeouts.Confirmation)
	assert.Equal(t, sandbox.ModeDocker, cfg.Sandbox.Mode)
	assert.False(t, cfg.Tools.Execution)
	assert.True(t, cfg.Tools.Filesystem)
	assert.Equal(t, []string{"go", "make"}, cfg.Tools.Allowlist)
}

func TestEnvOverridesFile(t *testing.T) {
	m, dir := newTestManager(t)
	writeFile(t, m.Path(), "agent:\n  recursion_limit: 40\n")
	writeFile(t, filepath.Join(dir, ".env"), "STAGEHAND_MODEL=from-dotenv\n")
	t.Setenv("STAGEHAND_RECURSION_LIMIT", "12")
	t.Setenv("STAGEHAND_SANDBOX", "host")
	t.Setenv("STAGEHAND_LOG_PRETTY", "true")
	// godotenv never overrides what the process already has.
	t.Setenv("STAGEHAND_PROVIDER", "ollama")
	// clearEnv left it set to empty, which godotenv would treat as present.
	require.NoError(t, os.Unsetenv("STAGEHAND_MODEL"))

	cfg, err := m.Load()
	require.NoError(t, err)
	assert.Equal(t, 12, cfg.Agent.RecursionLimit)
	assert.Equal(t, sandbox.ModeHost, cfg.Sandbox.Mode)
	assert.True(t, cfg.Log.Pretty)
	assert.Equal(t, "ollama", cfg.Provider.Provider)
	assert.Equal(t, "from-dotenv", cfg.Provider.Model)
}

func TestEnvRejectsBadNumbers(t *testing.T) {
	m, _ := newTestManager(t)
	t.Setenv("STAGEHAND_RECURSION_LIMIT", "lots")
	_, err := m.Load()
	assert.ErrorContains(t, err, "STAGEHAND_RECURSION_LIMIT")
}

func TestValidate(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	cfg.Agent.ReflectionThreshold = 0
	cfg.Agent.RecursionLimit = 0
	cfg.Timeouts.Handoff = -time.Second
	cfg.Sandbox.Mode = "vm"
	cfg.Log.Level = "loud"

	err := cfg.Validate()
	require.Error(t, err)
	for _, want := range []string{"reflection_threshold", "recursion_limit", "timeouts.handoff", "sandbox.mode", "log.level"} {
		assert.ErrorContains(t, err, want)
	}
}

func TestLoadRejectsInvalidFile(t *testing.T) {
	m, _ := newTestManager(t)
	writeFile(t, m.Path(), "agent:\n  reflection_threshold: 0\n")
	_, err := m.Load()
	assert.ErrorContains(t, err, "reflection_threshold")

	writeFile(t, m.Path(), "agent: [")
	_, err = m.Load()
	assert.ErrorContains(t, err, "failed to parse")
}

func TestSaveThenLoad(t *testing.T) {
	m, _ := newTestManager(t)
	cfg := Default()
	cfg.Provider.Model = "gpt-test"
	cfg.Timeouts.Handoff = 7 * time.Minute
	require.NoError(t, m.Save(cfg))
	assert.True(t, m.Exists())

	info, err := os.Stat(m.Path())
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	got, err := m.Load()
	require.NoError(t, err)
	assert.Equal(t, "gpt-test", got.Provider.Model)
	assert.Equal(t, 7*time.Minute, got.Timeouts.Handoff)
}

func TestWatchReloads(t *testing.T) {
	m, _ := newTestManager(t)
	writeFile(t, m.Path(), "agent:\n  recursion_limit: 10\n")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	changes := make(chan *Config, 4)
	require.NoError(t, m.Watch(ctx, func(c *Config) { changes <- c }))

	writeFile(t, m.Path(), "agent:\n  recursion_limit: 0\n")
	time.Sleep(2 * watchDebounce)
	writeFile(t, m.Path(), "agent:\n  recursion_limit: 25\n")

	select {
	case c := <-changes:
		assert.Equal(t, 25, c.Agent.RecursionLimit)
	case <-time.After(5 * time.Second):
		t.Fatal("no reload observed")
	}
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := Log{Level: "warn"}.NewLogger(&buf)
	logger.Info().Msg("hidden")
	logger.Warn().Msg("shown")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), `"message":"shown"`)
}

//go:build !windows

package sandbox

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHostRunner(t *testing.T) {
	dir := t.TempDir()
	r := NewHostRunner(DefaultConfig())

	res, err := r.RunCmd(context.Background(), dir, "sh", []string{"-c", "echo out; echo err >&2; exit 3"}, time.Second*5)
	require.NoError(t, err)
	assert.Equal(t, "out\n", res.Stdout)
	assert.Equal(t, "err\n", res.Stderr)
	assert.Equal(t, 3, res.Code)
	assert.False(t, res.TimedOut)
}

func TestHostRunnerTimeout(t *testing.T) {
	r := NewHostRunner(DefaultConfig())
	res, err := r.RunCmd(context.Background(), t.TempDir(), "sleep", []string{"5"}, 50*time.Millisecond)
	require.NoError(t, err)
	assert.True(t, res.TimedOut)
}

func TestHostRunnerCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()
	_, err := NewHostRunner(DefaultConfig()).RunCmd(ctx, t.TempDir(), "sleep", []string{"5"}, 0)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewHostMode(t *testing.T) {
	r, err := New(context.Background(), Config{Mode: ModeHost}, zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, ModeHost, r.Mode())
	assert.NoError(t, r.Close())

	_, err = New(context.Background(), Config{Mode: "vm"}, zerolog.Nop())
	assert.Error(t, err)
}

func TestDetectProjectType(t *testing.T) {
	dir := t.TempDir()
	assert.Equal(t, ProjectTypeUnknown, DetectProjectType(dir))

	for _, f := range []string{"a.py", "b.py", "c.py", "d.go"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, f), nil, 0o644))
	}
	assert.Equal(t, ProjectTypePython, DetectProjectType(dir))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "go.mod"), []byte("module x\n"), 0o644))
	assert.Equal(t, ProjectTypeGo, DetectProjectType(dir))
	assert.Equal(t, "golang:alpine", ImageFor(ProjectTypeGo, Config{}))
	assert.Equal(t, "custom:1", ImageFor(ProjectTypeGo, Config{Image: "custom:1"}))
}

func TestParseMemory(t *testing.T) {
	n, err := parseMemory("512m")
	require.NoError(t, err)
	assert.Equal(t, int64(512<<20), n)

	n, err = parseMemory("")
	require.NoError(t, err)
	assert.Equal(t, int64(1<<30), n)

	_, err = parseMemory("lots")
	assert.Error(t, err)
}

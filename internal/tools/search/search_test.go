package search

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ChamsBouzaiene/stagehand/internal/sandbox"
	"github.com/ChamsBouzaiene/stagehand/internal/toolresponse"
	"github.com/ChamsBouzaiene/stagehand/internal/workspace"
)

func TestSearchFiles(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "billing.go"), []byte("package billing\n// invoice totals\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "notes.md"), []byte("invoice template lives in billing.go\n"), 0o644))

	ws, err := workspace.Open(context.Background(), workspace.Options{
		Root: root, Sandbox: sandbox.Config{Mode: sandbox.ModeHost}, Logger: zerolog.Nop(),
	})
	require.NoError(t, err)
	defer ws.Close()
	ctx := workspace.WithWorkspace(context.Background(), ws)

	fn := NewSearchFilesTool().Fn

	out, err := fn(ctx, map[string]any{"query": "invoice"})
	require.NoError(t, err)
	resp := toolresponse.Parse(out)
	require.True(t, resp.Success, resp.Message)
	assert.Equal(t, float64(2), resp.Data["count"])

	out, err = fn(ctx, map[string]any{"query": "invoice", "extension": "md"})
	require.NoError(t, err)
	resp = toolresponse.Parse(out)
	require.Equal(t, float64(1), resp.Data["count"])
	first := resp.Data["results"].([]any)[0].(map[string]any)
	assert.Equal(t, "notes.md", first["path"])

	out, err = fn(ctx, map[string]any{"query": "  "})
	require.NoError(t, err)
	assert.False(t, toolresponse.Parse(out).Success)
}

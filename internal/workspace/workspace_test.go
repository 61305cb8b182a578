package workspace

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ChamsBouzaiene/stagehand/internal/sandbox"
)

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	abs := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(abs), 0o755))
	require.NoError(t, os.WriteFile(abs, []byte(content), 0o644))
}

func openTestWorkspace(t *testing.T, root string) *Workspace {
	t.Helper()
	ws, err := Open(context.Background(), Options{
		Root:    root,
		Sandbox: sandbox.Config{Mode: sandbox.ModeHost},
		Logger:  zerolog.Nop(),
	})
	require.NoError(t, err)
	t.Cleanup(func() { ws.Close() })
	return ws
}

func TestResolve(t *testing.T) {
	ws := openTestWorkspace(t, t.TempDir())

	abs, err := ws.Resolve("src/main.go")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(ws.Root(), "src", "main.go"), abs)
	assert.Equal(t, "src/main.go", ws.Rel(abs))

	root, err := ws.Resolve(".")
	require.NoError(t, err)
	assert.Equal(t, ws.Root(), root)

	_, err = ws.Resolve("../etc/passwd")
	assert.Error(t, err)
}

func TestOpenRejectsFiles(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "f.txt", "x")
	_, err := Open(context.Background(), Options{Root: filepath.Join(root, "f.txt"), Sandbox: sandbox.Config{Mode: sandbox.ModeHost}})
	assert.Error(t, err)
}

func TestIgnore(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, ".gitignore", "# secrets\nsecret.txt\n")
	ig := LoadIgnore(root)

	assert.True(t, ig.Ignored("node_modules", true))
	assert.True(t, ig.Ignored(".git", true))
	assert.True(t, ig.Ignored("secret.txt", false))
	assert.True(t, ig.Ignored("web/app.min.js", false))
	assert.False(t, ig.Ignored("main.go", false))
	assert.False(t, ig.Ignored("src", true))
}

func TestSearchIndex(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "server/handler.go", "package server\n\nfunc HandleCheckout() {}\n")
	writeFile(t, root, "docs/readme.md", "The checkout flow is documented here.\n")
	writeFile(t, root, "node_modules/lib/index.js", "checkout checkout checkout\n")
	writeFile(t, root, "bin/blob", "checkout\x00\x01")

	ws := openTestWorkspace(t, root)

	hits, err := ws.Index().Search("checkout", "", 10)
	require.NoError(t, err)
	paths := make([]string, len(hits))
	for i, h := range hits {
		paths[i] = h.Path
	}
	assert.ElementsMatch(t, []string{"docs/readme.md"}, paths)

	hits, err = ws.Index().Search("HandleCheckout", "go", 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "server/handler.go", hits[0].Path)

	writeFile(t, root, "docs/new.md", "another checkout note\n")
	require.NoError(t, ws.Index().Update("docs/new.md"))
	hits, err = ws.Index().Search("note", "md", 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "docs/new.md", hits[0].Path)

	require.NoError(t, os.Remove(filepath.Join(root, "docs", "new.md")))
	require.NoError(t, ws.Index().Update("docs/new.md"))
	hits, err = ws.Index().Search("note", "", 10)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestFromContext(t *testing.T) {
	_, ok := FromContext(context.Background())
	assert.False(t, ok)

	ws := openTestWorkspace(t, t.TempDir())
	got, ok := FromContext(WithWorkspace(context.Background(), ws))
	require.True(t, ok)
	assert.Same(t, ws, got)
}

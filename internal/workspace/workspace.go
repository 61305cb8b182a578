// Package workspace holds the per-session resources tools work against: the
// root directory, a command sandbox and a full-text search index.
package workspace

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"github.com/ChamsBouzaiene/stagehand/internal/sandbox"
)

// Options configures Open.
type Options struct {
	Root    string
	Sandbox sandbox.Config
	// Runner overrides the sandbox built from Sandbox.
	Runner sandbox.Runner
	Logger zerolog.Logger
}

// Workspace is owned by exactly one session and closed with it.
type Workspace struct {
	root   string
	runner sandbox.Runner
	ignore *Ignore
	index  *SearchIndex
	logger zerolog.Logger
}

// Open prepares a workspace rooted at opts.Root. The search index is built
// lazily on first search.
func Open(ctx context.Context, opts Options) (*Workspace, error) {
	root, err := filepath.Abs(opts.Root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve workspace root: %w", err)
	}
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("failed to open workspace: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("workspace root %s is not a directory", root)
	}

	logger := opts.Logger.With().Str("component", "workspace").Str("root", root).Logger()

	runner := opts.Runner
	if runner == nil {
		runner, err = sandbox.New(ctx, opts.Sandbox, logger)
		if err != nil {
			return nil, err
		}
	}

	ignore := LoadIgnore(root)
	index, err := NewSearchIndex(root, ignore, logger)
	if err != nil {
		runner.Close()
		return nil, err
	}

	logger.Debug().Str("sandbox", string(runner.Mode())).Msg("workspace opened")
	return &Workspace{root: root, runner: runner, ignore: ignore, index: index, logger: logger}, nil
}

// Root is the absolute workspace directory.
func (w *Workspace) Root() string { return w.root }

// Runner is the command sandbox.
func (w *Workspace) Runner() sandbox.Runner { return w.runner }

// Ignore is the compiled ignore rules of the root.
func (w *Workspace) Ignore() *Ignore { return w.ignore }

// Index is the session's search index.
func (w *Workspace) Index() *SearchIndex { return w.index }

// Resolve maps a root-relative path to an absolute one, rejecting anything
// that escapes the root.
func (w *Workspace) Resolve(rel string) (string, error) {
	abs := filepath.Clean(filepath.Join(w.root, rel))
	if abs != w.root && !strings.HasPrefix(abs, w.root+string(filepath.Separator)) {
		return "", fmt.Errorf("path %s is outside the workspace", rel)
	}
	return abs, nil
}

// Rel is the inverse of Resolve.
func (w *Workspace) Rel(abs string) string {
	rel, err := filepath.Rel(w.root, abs)
	if err != nil {
		return abs
	}
	return filepath.ToSlash(rel)
}

// Close releases the sandbox client and the search index.
func (w *Workspace) Close() error {
	return errors.Join(w.runner.Close(), w.index.Close())
}

// ErrNoWorkspace is returned by Require when ctx carries no workspace.
var ErrNoWorkspace = errors.New("no workspace attached to this session")

type ctxKey struct{}

// WithWorkspace returns ctx carrying w for tools.
func WithWorkspace(ctx context.Context, w *Workspace) context.Context {
	return context.WithValue(ctx, ctxKey{}, w)
}

// FromContext returns the session's workspace, if any.
func FromContext(ctx context.Context) (*Workspace, bool) {
	w, ok := ctx.Value(ctxKey{}).(*Workspace)
	return w, ok && w != nil
}

// Require is FromContext for tools that cannot work without a workspace.
func Require(ctx context.Context) (*Workspace, error) {
	if w, ok := FromContext(ctx); ok {
		return w, nil
	}
	return nil, ErrNoWorkspace
}

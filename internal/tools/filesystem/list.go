package filesystem

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	gitignore "github.com/sabhiram/go-gitignore"

	"github.com/ChamsBouzaiene/stagehand/internal/engine"
	"github.com/ChamsBouzaiene/stagehand/internal/toolresponse"
	"github.com/ChamsBouzaiene/stagehand/internal/workspace"
)

const defaultListLimit = 1000

type listOptions struct {
	path      string
	recursive bool
	maxDepth  int
	limit     int
	ignore    []string
}

func listFiles(ctx context.Context, opts listOptions) (string, error) {
	ws, err := workspace.Require(ctx)
	if err != nil {
		return "", err
	}
	dir, err := ws.Resolve(opts.path)
	if err != nil {
		return toolresponse.Fail("Error: " + err.Error()), nil
	}
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		return toolresponse.Failf("Error: %s is not a directory", displayPath(opts.path)), nil
	}
	if opts.limit <= 0 {
		opts.limit = defaultListLimit
	}

	var extra *gitignore.GitIgnore
	if len(opts.ignore) > 0 {
		extra = gitignore.CompileIgnoreLines(opts.ignore...)
	}
	skip := func(rel string, isDir bool) bool {
		if ws.Ignore().Ignored(rel, isDir) {
			return true
		}
		if extra == nil {
			return false
		}
		if isDir {
			rel += "/"
		}
		return extra.MatchesPath(rel)
	}

	files := make([]string, 0)
	truncated := false

	if opts.recursive {
		err = filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
			if err != nil || p == dir {
				return nil
			}
			rel := ws.Rel(p)
			if skip(rel, d.IsDir()) {
				if d.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}
			if opts.maxDepth >= 0 {
				fromStart, _ := filepath.Rel(dir, p)
				if strings.Count(fromStart, string(filepath.Separator)) > opts.maxDepth {
					if d.IsDir() {
						return filepath.SkipDir
					}
					return nil
				}
			}
			if d.IsDir() {
				rel += "/"
			}
			files = append(files, rel)
			if len(files) >= opts.limit {
				truncated = true
				return filepath.SkipAll
			}
			return nil
		})
		if err != nil {
			return "", fmt.Errorf("list %s: %w", opts.path, err)
		}
	} else {
		entries, err := os.ReadDir(dir)
		if err != nil {
			return "", fmt.Errorf("list %s: %w", opts.path, err)
		}
		for _, e := range entries {
			rel := ws.Rel(filepath.Join(dir, e.Name()))
			if skip(rel, e.IsDir()) {
				continue
			}
			if e.IsDir() {
				rel += "/"
			}
			files = append(files, rel)
			if len(files) >= opts.limit {
				truncated = true
				break
			}
		}
	}
	sort.Strings(files)

	msg := fmt.Sprintf("Found %d entries in %s", len(files), displayPath(opts.path))
	if truncated {
		msg += " (truncated)"
	}
	return toolresponse.OK(msg, map[string]any{
		"path":      displayPath(opts.path),
		"files":     files,
		"recursive": opts.recursive,
		"truncated": truncated,
	}), nil
}

func displayPath(p string) string {
	if p == "" {
		return "."
	}
	return p
}

// NewListFilesTool returns list_files. The workspace .gitignore and the
// built-in ignores always apply; ignore_patterns adds more.
func NewListFilesTool() engine.Tool {
	return engine.Tool{
		Name:        "list_files",
		Description: "Lists files in the workspace. Directories end with '/'. Use this to discover which files exist before reading them.",
		SchemaJSON: `{
  "type": "object",
  "properties": {
    "path": {"type": "string", "description": "Directory relative to the workspace root, empty for the root"},
    "recursive": {"type": "boolean", "description": "List recursively. Default false"},
    "max_depth": {"type": "integer", "description": "Maximum depth when recursive. Default -1 (unlimited)"},
    "limit": {"type": "integer", "minimum": 1, "description": "Maximum number of entries. Default 1000"},
    "ignore_patterns": {"type": "array", "items": {"type": "string"}, "description": "Extra gitignore-style patterns to skip"}
  }
}`,
		Fn: func(ctx context.Context, args map[string]any) (string, error) {
			opts := listOptions{
				maxDepth: intArg(args, "max_depth", -1),
				limit:    intArg(args, "limit", defaultListLimit),
			}
			opts.path, _ = args["path"].(string)
			opts.recursive, _ = args["recursive"].(bool)
			if patterns, ok := args["ignore_patterns"].([]any); ok {
				for _, p := range patterns {
					if s, ok := p.(string); ok && s != "" {
						opts.ignore = append(opts.ignore, s)
					}
				}
			}
			return listFiles(ctx, opts)
		},
		Category: "filesystem",
	}
}

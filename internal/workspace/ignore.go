package workspace

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"

	gitignore "github.com/sabhiram/go-gitignore"
)

var defaultIgnores = []string{
	".git/",
	"node_modules/",
	"vendor/",
	"dist/",
	"build/",
	"target/",
	"__pycache__/",
	".venv/",
	"*.min.js",
	"*.lock",
}

// Ignore decides which workspace paths tools skip.
type Ignore struct {
	matcher *gitignore.GitIgnore
}

// LoadIgnore compiles the built-in patterns plus the root .gitignore.
func LoadIgnore(root string, extra ...string) *Ignore {
	lines := append([]string{}, defaultIgnores...)
	lines = append(lines, readIgnoreLines(filepath.Join(root, ".gitignore"))...)
	lines = append(lines, extra...)
	return &Ignore{matcher: gitignore.CompileIgnoreLines(lines...)}
}

// Ignored reports whether the root-relative path is excluded.
func (i *Ignore) Ignored(rel string, isDir bool) bool {
	if rel == "" || rel == "." {
		return false
	}
	rel = filepath.ToSlash(rel)
	if rel == ".git" || strings.HasPrefix(rel, ".git/") {
		return true
	}
	if isDir && !strings.HasSuffix(rel, "/") {
		rel += "/"
	}
	return i.matcher.MatchesPath(rel)
}

func readIgnoreLines(path string) []string {
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer f.Close()

	var lines []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		lines = append(lines, line)
	}
	return lines
}

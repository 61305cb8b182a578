package sandbox

import (
	"os"
	"path/filepath"
	"strings"
)

// ProjectType is the toolchain a workspace appears to use.
type ProjectType string

const (
	ProjectTypeGo      ProjectType = "go"
	ProjectTypeNode    ProjectType = "node"
	ProjectTypePython  ProjectType = "python"
	ProjectTypeRust    ProjectType = "rust"
	ProjectTypeUnknown ProjectType = "unknown"
)

var manifests = []struct {
	file string
	typ  ProjectType
}{
	{"go.mod", ProjectTypeGo},
	{"package.json", ProjectTypeNode},
	{"pyproject.toml", ProjectTypePython},
	{"requirements.txt", ProjectTypePython},
	{"Cargo.toml", ProjectTypeRust},
}

var extTypes = map[string]ProjectType{
	".go":  ProjectTypeGo,
	".ts":  ProjectTypeNode,
	".tsx": ProjectTypeNode,
	".js":  ProjectTypeNode,
	".jsx": ProjectTypeNode,
	".py":  ProjectTypePython,
	".rs":  ProjectTypeRust,
}

// DetectProjectType checks manifests first, then falls back to counting
// source extensions in dir. At least three files are needed for a guess.
func DetectProjectType(dir string) ProjectType {
	for _, m := range manifests {
		if _, err := os.Stat(filepath.Join(dir, m.file)); err == nil {
			return m.typ
		}
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return ProjectTypeUnknown
	}
	counts := make(map[ProjectType]int)
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if t, ok := extTypes[strings.ToLower(filepath.Ext(e.Name()))]; ok {
			counts[t]++
		}
	}

	best, bestCount := ProjectTypeUnknown, 0
	for _, t := range []ProjectType{ProjectTypeGo, ProjectTypeNode, ProjectTypePython, ProjectTypeRust} {
		if counts[t] > bestCount {
			best, bestCount = t, counts[t]
		}
	}
	if bestCount >= 3 {
		return best
	}
	return ProjectTypeUnknown
}

// ImageFor returns the container image for a project type. cfg.Image wins.
func ImageFor(t ProjectType, cfg Config) string {
	if cfg.Image != "" {
		return cfg.Image
	}
	switch t {
	case ProjectTypeGo:
		return "golang:alpine"
	case ProjectTypeNode:
		return "node:alpine"
	case ProjectTypePython:
		return "python:alpine"
	case ProjectTypeRust:
		return "rust:alpine"
	}
	return "alpine:latest"
}

// Package filesystem provides the read_file, list_files and write_file tools.
// Paths are relative to the session workspace and may not escape it.
package filesystem

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/ChamsBouzaiene/stagehand/internal/engine"
	"github.com/ChamsBouzaiene/stagehand/internal/toolresponse"
	"github.com/ChamsBouzaiene/stagehand/internal/workspace"
)

const (
	maxReadLines = 400
	maxReadBytes = 256 * 1024
)

func readFile(ctx context.Context, path string, start, end int) (string, error) {
	ws, err := workspace.Require(ctx)
	if err != nil {
		return "", err
	}
	abs, err := ws.Resolve(path)
	if err != nil {
		return toolresponse.Fail("Error: " + err.Error()), nil
	}

	info, err := os.Stat(abs)
	if err != nil {
		return toolresponse.Failf("Error: cannot read %s: file does not exist", path), nil
	}
	if info.IsDir() {
		return toolresponse.Failf("Error: %s is a directory, use list_files", path), nil
	}
	if info.Size() > maxReadBytes && start == 0 && end == 0 {
		return toolresponse.Failf("Error: %s is %d bytes, read it in ranges with start_line/end_line", path, info.Size()), nil
	}

	data, err := os.ReadFile(abs)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", path, err)
	}

	lines := strings.Split(string(data), "\n")
	total := len(lines)
	if start <= 0 {
		start = 1
	}
	if end <= 0 || end > total {
		end = total
	}
	if start > end {
		return toolresponse.Failf("Error: start_line %d is past end of file (%d lines)", start, total), nil
	}

	truncated := false
	if end-start+1 > maxReadLines {
		end = start + maxReadLines - 1
		truncated = true
	}

	msg := fmt.Sprintf("Read %s lines %d-%d of %d", path, start, end, total)
	if truncated {
		msg += fmt.Sprintf(". Output truncated, continue with start_line=%d", end+1)
	}
	return toolresponse.OK(msg, map[string]any{
		"path":       path,
		"content":    strings.Join(lines[start-1:end], "\n"),
		"start_line": start,
		"end_line":   end,
		"line_count": total,
		"truncated":  truncated,
	}), nil
}

// NewReadFileTool returns read_file.
func NewReadFileTool() engine.Tool {
	return engine.Tool{
		Name:        "read_file",
		Description: "Reads a text file from the workspace. Large files can be read in ranges with start_line and end_line (1-based, inclusive).",
		SchemaJSON: `{
  "type": "object",
  "properties": {
    "path": {"type": "string", "description": "File path relative to the workspace root"},
    "start_line": {"type": "integer", "minimum": 1},
    "end_line": {"type": "integer", "minimum": 1}
  },
  "required": ["path"]
}`,
		Fn: func(ctx context.Context, args map[string]any) (string, error) {
			path, _ := args["path"].(string)
			return readFile(ctx, path, intArg(args, "start_line", 0), intArg(args, "end_line", 0))
		},
		Category: "filesystem",
	}
}

func intArg(args map[string]any, key string, def int) int {
	switch v := args[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	case int64:
		return int(v)
	}
	return def
}

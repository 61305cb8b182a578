package filesystem

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ChamsBouzaiene/stagehand/internal/engine"
	"github.com/ChamsBouzaiene/stagehand/internal/toolresponse"
	"github.com/ChamsBouzaiene/stagehand/internal/workspace"
)

func writeFile(ctx context.Context, path, content string) (string, error) {
	ws, err := workspace.Require(ctx)
	if err != nil {
		return "", err
	}
	if path == "" {
		return toolresponse.Fail("Error: path is required"), nil
	}
	abs, err := ws.Resolve(path)
	if err != nil {
		return toolresponse.Fail("Error: " + err.Error()), nil
	}
	if abs == ws.Root() {
		return toolresponse.Fail("Error: path must name a file"), nil
	}

	_, statErr := os.Stat(abs)
	created := os.IsNotExist(statErr)

	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return "", fmt.Errorf("create parent of %s: %w", path, err)
	}
	if err := os.WriteFile(abs, []byte(content), 0o644); err != nil {
		return "", fmt.Errorf("write %s: %w", path, err)
	}
	if err := ws.Index().Update(ws.Rel(abs)); err != nil {
		return "", fmt.Errorf("reindex %s: %w", path, err)
	}

	verb := "Updated"
	if created {
		verb = "Created"
	}
	return toolresponse.OK(fmt.Sprintf("%s %s (%d bytes)", verb, path, len(content)), map[string]any{
		"path":    path,
		"bytes":   len(content),
		"created": created,
	}), nil
}

// NewWriteFileTool returns write_file. It replaces the whole file and creates
// missing parent directories.
func NewWriteFileTool() engine.Tool {
	return engine.Tool{
		Name:        "write_file",
		Description: "Writes content to a file in the workspace, creating it and any parent directories if needed. Replaces the whole file.",
		SchemaJSON: `{
  "type": "object",
  "properties": {
    "path": {"type": "string", "description": "File path relative to the workspace root"},
    "content": {"type": "string", "description": "Complete new file content"}
  },
  "required": ["path", "content"]
}`,
		Fn: func(ctx context.Context, args map[string]any) (string, error) {
			path, _ := args["path"].(string)
			content, _ := args["content"].(string)
			return writeFile(ctx, path, content)
		},
		Category: "filesystem",
	}
}

// Package search provides search_files over the session's full-text index.
package search

import (
	"context"
	"fmt"
	"strings"

	"github.com/ChamsBouzaiene/stagehand/internal/engine"
	"github.com/ChamsBouzaiene/stagehand/internal/toolresponse"
	"github.com/ChamsBouzaiene/stagehand/internal/workspace"
)

const (
	defaultSearchLimit = 10
	maxSearchLimit     = 50
)

// NewSearchFilesTool returns search_files.
func NewSearchFilesTool() engine.Tool {
	return engine.Tool{
		Name:        "search_files",
		Description: "Full-text search over the text files of the workspace. Returns matching paths ranked by relevance with highlighted fragments.",
		SchemaJSON: `{
  "type": "object",
  "properties": {
    "query": {"type": "string", "description": "Words to search for"},
    "extension": {"type": "string", "description": "Only search files with this extension, e.g. go or .md"},
    "limit": {"type": "integer", "minimum": 1, "maximum": 50, "description": "Default 10"}
  },
  "required": ["query"]
}`,
		Fn: func(ctx context.Context, args map[string]any) (string, error) {
			ws, err := workspace.Require(ctx)
			if err != nil {
				return "", err
			}
			query, _ := args["query"].(string)
			query = strings.TrimSpace(query)
			if query == "" {
				return toolresponse.Fail("Error: query is required"), nil
			}
			ext, _ := args["extension"].(string)
			limit := defaultSearchLimit
			if l, ok := args["limit"].(float64); ok && l > 0 {
				limit = min(int(l), maxSearchLimit)
			}

			hits, err := ws.Index().Search(query, strings.TrimSpace(ext), limit)
			if err != nil {
				return "", err
			}
			results := make([]map[string]any, len(hits))
			for i, h := range hits {
				results[i] = map[string]any{"path": h.Path, "score": h.Score, "fragments": h.Fragments}
			}
			return toolresponse.OK(fmt.Sprintf("%d files match %q", len(hits), query), map[string]any{
				"query":   query,
				"results": results,
				"count":   len(hits),
			}), nil
		},
		Category: "search",
	}
}

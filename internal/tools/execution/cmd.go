// Package execution provides run_cmd, which runs commands in the session
// sandbox.
package execution

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/ChamsBouzaiene/stagehand/internal/broker"
	"github.com/ChamsBouzaiene/stagehand/internal/engine"
	"github.com/ChamsBouzaiene/stagehand/internal/toolresponse"
	"github.com/ChamsBouzaiene/stagehand/internal/workspace"
)

const (
	defaultRunCmdTimeout = 60 * time.Second
	maxRunCmdTimeout     = 5 * time.Minute
	minRunCmdTimeout     = 5 * time.Second
	defaultRunCmdLines   = 40
	minRunCmdLines       = 5
	maxRunCmdLines       = 200
	maxRunCmdChars       = 4000
)

// DefaultAllowlist is the set of commands that run without confirmation.
var DefaultAllowlist = []string{
	"go", "gofmt", "npm", "npx", "yarn", "pnpm", "node", "tsc",
	"python", "python3", "pip", "pytest", "uv",
	"cargo", "rustc", "make",
	"eslint", "prettier", "ruff", "black", "mypy", "golangci-lint",
	"cat", "head", "tail", "ls", "find", "tree", "wc", "grep", "sort", "uniq", "diff",
	"git", "echo", "printf", "date", "which", "jq",
}

type cmdRequest struct {
	cmd      string
	args     []string
	timeout  time.Duration
	maxLines int
}

func (r cmdRequest) String() string {
	return strings.TrimSpace(r.cmd + " " + strings.Join(r.args, " "))
}

func runCmd(ctx context.Context, allow []string, req cmdRequest) (string, error) {
	ws, err := workspace.Require(ctx)
	if err != nil {
		return "", err
	}

	if !slices.Contains(allow, req.cmd) {
		ok, reason, err := confirm(ctx, req)
		if err != nil {
			return "", err
		}
		if !ok {
			return toolresponse.Failf("Command %q was not run: %s", req.String(), reason), nil
		}
	}

	res, err := ws.Runner().RunCmd(ctx, ws.Root(), req.cmd, req.args, req.timeout)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return toolresponse.Failf("Error: %s failed to start: %v", req.cmd, err), nil
	}

	stdout, stdoutTrunc := truncateOutput(res.Stdout, req.maxLines)
	stderr, stderrTrunc := truncateOutput(res.Stderr, req.maxLines)
	data := map[string]any{
		"cmd":              req.String(),
		"exit_code":        res.Code,
		"stdout":           stdout,
		"stderr":           stderr,
		"stdout_truncated": stdoutTrunc,
		"stderr_truncated": stderrTrunc,
		"timed_out":        res.TimedOut,
		"sandbox":          string(ws.Runner().Mode()),
	}

	switch {
	case res.TimedOut:
		return toolresponse.Build(false, fmt.Sprintf("%s timed out after %s", req.String(), req.timeout), data), nil
	case res.Code != 0:
		return toolresponse.Build(false, fmt.Sprintf("%s exited with code %d", req.String(), res.Code), data), nil
	}
	return toolresponse.OK(fmt.Sprintf("%s exited with code 0", req.String()), data), nil
}

// confirm asks the human before running a command outside the allowlist.
func confirm(ctx context.Context, req cmdRequest) (bool, string, error) {
	b, ok := broker.FromContext(ctx)
	if !ok {
		return false, "it is not in the allowlist and no one is available to approve it", nil
	}
	out, err := b.Request(ctx, broker.Request{
		Kind:    broker.KindConfirmation,
		Prompt:  fmt.Sprintf("Allow running %q?", req.String()),
		Payload: map[string]any{"cmd": req.cmd, "args": req.args},
	})
	if err != nil {
		return false, "", err
	}
	switch out.Status {
	case broker.StatusApproved:
		return true, "", nil
	case broker.StatusTimeout:
		return false, "confirmation timed out", nil
	case broker.StatusCancelled:
		return false, "", errors.New("confirmation cancelled")
	}
	return false, "the user rejected it", nil
}

// parseArgs splits a shell-like argument string, honoring single and double quotes.
func parseArgs(s string) []string {
	var (
		args    []string
		current strings.Builder
		quote   rune
		inArg   bool
	)
	for _, c := range s {
		switch {
		case quote != 0:
			if c == quote {
				quote = 0
			} else {
				current.WriteRune(c)
			}
		case c == '"' || c == '\'':
			quote = c
			inArg = true
		case c == ' ' || c == '\t' || c == '\n':
			if inArg {
				args = append(args, current.String())
				current.Reset()
				inArg = false
			}
		default:
			current.WriteRune(c)
			inArg = true
		}
	}
	if inArg {
		args = append(args, current.String())
	}
	return args
}

func clampTimeout(v any) time.Duration {
	var seconds float64
	switch n := v.(type) {
	case float64:
		seconds = n
	case int:
		seconds = float64(n)
	default:
		return defaultRunCmdTimeout
	}
	if seconds <= 0 {
		return defaultRunCmdTimeout
	}
	return min(max(time.Duration(seconds)*time.Second, minRunCmdTimeout), maxRunCmdTimeout)
}

func clampLines(v any) int {
	var lines int
	switch n := v.(type) {
	case float64:
		lines = int(n)
	case int:
		lines = n
	default:
		return defaultRunCmdLines
	}
	return min(max(lines, minRunCmdLines), maxRunCmdLines)
}

// truncateOutput keeps the last maxLines lines, where errors usually are.
func truncateOutput(output string, maxLines int) (string, bool) {
	if output == "" {
		return "", false
	}
	truncated := false
	lines := strings.Split(strings.TrimRight(output, "\n"), "\n")
	if len(lines) > maxLines {
		lines = lines[len(lines)-maxLines:]
		truncated = true
	}
	joined := strings.Join(lines, "\n")
	if len(joined) > maxRunCmdChars {
		joined = joined[len(joined)-maxRunCmdChars:]
		truncated = true
	}
	return joined, truncated
}

// NewRunCmdTool returns run_cmd. Commands outside allow need the user's
// confirmation through the session broker; nil allow uses DefaultAllowlist.
func NewRunCmdTool(allow []string) engine.Tool {
	if allow == nil {
		allow = DefaultAllowlist
	}
	return engine.Tool{
		Name: "run_cmd",
		Description: "Runs a command in the workspace sandbox. Common build, test, lint and read-only file commands run directly; " +
			"anything else asks the user for confirmation first. Output is truncated to the last lines.",
		SchemaJSON: `{
  "type": "object",
  "properties": {
    "cmd": {"type": "string", "description": "Executable name, e.g. go"},
    "args": {"type": "string", "description": "Arguments as a space-separated string; quotes group words"},
    "timeout_seconds": {"type": "integer", "minimum": 5, "maximum": 300, "description": "Default 60"},
    "max_output_lines": {"type": "integer", "minimum": 5, "maximum": 200, "description": "Default 40"}
  },
  "required": ["cmd"]
}`,
		Fn: func(ctx context.Context, args map[string]any) (string, error) {
			cmd, _ := args["cmd"].(string)
			cmd = strings.TrimSpace(cmd)
			if cmd == "" {
				return toolresponse.Fail("Error: cmd is required"), nil
			}
			argStr, _ := args["args"].(string)
			return runCmd(ctx, allow, cmdRequest{
				cmd:      cmd,
				args:     parseArgs(argStr),
				timeout:  clampTimeout(args["timeout_seconds"]),
				maxLines: clampLines(args["max_output_lines"]),
			})
		},
		Category: "execution",
	}
}

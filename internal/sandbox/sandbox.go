// Package sandbox runs shell commands for tools, either in a throwaway
// Docker container or directly on the host.
package sandbox

import (
	"context"
	"time"
)

// Result captures output of a command.
type Result struct {
	Stdout   string
	Stderr   string
	Code     int
	TimedOut bool
}

// Runner runs commands against a working directory.
type Runner interface {
	// RunCmd runs name with args inside dir. A timeout <= 0 uses the
	// runner's default. A non-zero exit is reported in Result.Code, not as an error.
	RunCmd(ctx context.Context, dir, name string, args []string, timeout time.Duration) (Result, error)
	// Mode reports which isolation the runner provides.
	Mode() Mode
	Close() error
}

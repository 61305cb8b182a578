//go:build !windows

package sandbox

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"syscall"
	"time"
)

// HostRunner runs commands directly on the host machine without isolation.
type HostRunner struct {
	config Config
}

// NewHostRunner returns a host runner using cfg's timeout.
func NewHostRunner(cfg Config) *HostRunner {
	return &HostRunner{config: cfg}
}

// Mode implements Runner.
func (r *HostRunner) Mode() Mode { return ModeHost }

// Close implements Runner.
func (r *HostRunner) Close() error { return nil }

// RunCmd implements Runner. The whole process group is killed on timeout or
// cancellation.
func (r *HostRunner) RunCmd(ctx context.Context, dir, name string, args []string, timeout time.Duration) (Result, error) {
	cctx, cancel := context.WithTimeout(ctx, r.config.timeout(timeout))
	defer cancel()

	cmd := exec.Command(name, args...)
	cmd.Dir = dir
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return Result{}, err
	}

	done := make(chan struct{})
	go func() {
		select {
		case <-cctx.Done():
			_ = syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
		case <-done:
		}
	}()

	waitErr := cmd.Wait()
	close(done)

	res := Result{Stdout: stdout.String(), Stderr: stderr.String()}
	if waitErr != nil {
		res.Code = 1
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			res.Code = exitErr.ExitCode()
		}
	}

	if ctx.Err() != nil {
		return res, ctx.Err()
	}
	if errors.Is(cctx.Err(), context.DeadlineExceeded) {
		res.TimedOut = true
		return res, nil
	}
	var exitErr *exec.ExitError
	if waitErr != nil && !errors.As(waitErr, &exitErr) {
		return res, waitErr
	}
	return res, nil
}

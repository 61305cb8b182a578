package sandbox

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/docker/go-units"
)

// DockerRunner runs every command in a fresh, network-less container with
// the working directory bind-mounted at /workspace.
type DockerRunner struct {
	client *client.Client
	config Config
	memory int64
}

// NewDockerRunner connects to the daemon from the environment.
func NewDockerRunner(ctx context.Context, cfg Config) (*DockerRunner, error) {
	memory, err := parseMemory(cfg.Memory)
	if err != nil {
		return nil, err
	}

	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to create Docker client: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if _, err := cli.Ping(pingCtx); err != nil {
		cli.Close()
		return nil, fmt.Errorf("docker daemon not accessible: %w", err)
	}

	return &DockerRunner{client: cli, config: cfg, memory: memory}, nil
}

// Mode implements Runner.
func (r *DockerRunner) Mode() Mode { return ModeDocker }

// Close releases the Docker client.
func (r *DockerRunner) Close() error { return r.client.Close() }

// RunCmd implements Runner.
func (r *DockerRunner) RunCmd(ctx context.Context, dir, name string, args []string, timeout time.Duration) (Result, error) {
	timeout = r.config.timeout(timeout)

	img := ImageFor(DetectProjectType(dir), r.config)
	if err := r.ensureImage(ctx, img); err != nil {
		return Result{}, fmt.Errorf("failed to ensure image %s: %w", img, err)
	}

	absDir, err := filepath.Abs(dir)
	if err != nil {
		return Result{}, fmt.Errorf("failed to get absolute path: %w", err)
	}

	containerConfig := &container.Config{
		Image:           img,
		Cmd:             append([]string{name}, args...),
		WorkingDir:      "/workspace",
		User:            "1000:1000",
		Env:             []string{"HOME=/tmp"},
		NetworkDisabled: true,
	}
	hostConfig := &container.HostConfig{
		Mounts: []mount.Mount{{Type: mount.TypeBind, Source: absDir, Target: "/workspace"}},
		Resources: container.Resources{
			Memory:   r.memory,
			NanoCPUs: int64(r.cpus() * 1e9),
			Ulimits:  []*units.Ulimit{{Name: "nofile", Soft: 1024, Hard: 1024}},
		},
		SecurityOpt:    []string{"no-new-privileges"},
		CapDrop:        []string{"ALL"},
		ReadonlyRootfs: true,
		Tmpfs:          map[string]string{"/tmp": "rw,noexec,nosuid,size=100m"},
	}

	created, err := r.client.ContainerCreate(ctx, containerConfig, hostConfig, nil, nil, "")
	if err != nil {
		return Result{}, fmt.Errorf("failed to create container: %w", err)
	}
	id := created.ID
	defer func() {
		rmCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = r.client.ContainerRemove(rmCtx, id, container.RemoveOptions{Force: true})
	}()

	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := r.client.ContainerStart(execCtx, id, container.StartOptions{}); err != nil {
		return Result{}, fmt.Errorf("failed to start container: %w", err)
	}

	statusCh, errCh := r.client.ContainerWait(execCtx, id, container.WaitConditionNotRunning)
	var exitCode int64
	select {
	case <-execCtx.Done():
		killCtx, killCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer killCancel()
		_ = r.client.ContainerKill(killCtx, id, "SIGKILL")
		res := Result{Code: -1, TimedOut: errors.Is(execCtx.Err(), context.DeadlineExceeded), Stderr: "command execution timed out"}
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		return res, nil
	case err := <-errCh:
		if err != nil {
			return Result{}, fmt.Errorf("container wait error: %w", err)
		}
	case status := <-statusCh:
		exitCode = status.StatusCode
	}

	logs, err := r.client.ContainerLogs(ctx, id, container.LogsOptions{ShowStdout: true, ShowStderr: true})
	if err != nil {
		return Result{}, fmt.Errorf("failed to read container logs: %w", err)
	}
	defer logs.Close()

	var stdout, stderr bytes.Buffer
	if _, err := stdcopy.StdCopy(&stdout, &stderr, logs); err != nil {
		return Result{}, fmt.Errorf("failed to demultiplex container logs: %w", err)
	}

	return Result{Stdout: stdout.String(), Stderr: stderr.String(), Code: int(exitCode)}, nil
}

func (r *DockerRunner) cpus() float64 {
	if r.config.CPU > 0 {
		return r.config.CPU
	}
	return 2
}

// ensureImage pulls imageName unless it is already present.
func (r *DockerRunner) ensureImage(ctx context.Context, imageName string) error {
	if _, err := r.client.ImageInspect(ctx, imageName); err == nil {
		return nil
	}
	reader, err := r.client.ImagePull(ctx, imageName, image.PullOptions{})
	if err != nil {
		return fmt.Errorf("failed to pull image: %w", err)
	}
	defer reader.Close()
	_, _ = io.Copy(io.Discard, reader)
	return nil
}

// parseMemory converts "1g", "512m" and friends to bytes. Empty means 1GiB.
func parseMemory(s string) (int64, error) {
	if s == "" {
		return 1 << 30, nil
	}
	n, err := units.RAMInBytes(s)
	if err != nil {
		return 0, fmt.Errorf("invalid sandbox memory %q: %w", s, err)
	}
	return n, nil
}

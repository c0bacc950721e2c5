package runner

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	specs "github.com/opencontainers/image-spec/specs-go/v1"
	"github.com/worldland/gpuwatch/internal/domain"
)

const workspaceDir = "/workspace"

// DockerClient interface for Docker operations (mockable)
type DockerClient interface {
	ContainerCreate(ctx context.Context, config *container.Config, hostConfig *container.HostConfig, networkingConfig *network.NetworkingConfig, platform *specs.Platform, containerName string) (container.CreateResponse, error)
	ContainerStart(ctx context.Context, containerID string, options container.StartOptions) error
	ContainerStop(ctx context.Context, containerID string, options container.StopOptions) error
	ContainerRemove(ctx context.Context, containerID string, options container.RemoveOptions) error
	ContainerWait(ctx context.Context, containerID string, condition container.WaitCondition) (<-chan container.WaitResponse, <-chan error)
	ContainerLogs(ctx context.Context, containerID string, options container.LogsOptions) (io.ReadCloser, error)
	ImagePull(ctx context.Context, refStr string, options image.PullOptions) (io.ReadCloser, error)
	ImageInspect(ctx context.Context, imageID string, inspectOpts ...client.ImageInspectOption) (image.InspectResponse, error)
	Close() error
}

// Compile-time interface check
var _ DockerClient = (*client.Client)(nil)

// DockerRunner runs the script inside a GPU container. The script's
// directory is mounted at /workspace and the selected GPUs are exposed
// through the nvidia runtime.
type DockerRunner struct {
	cli         DockerClient
	Image       string
	StopTimeout int // seconds between SIGTERM and SIGKILL

	startBackoff func() backoff.BackOff
}

// NewDockerRunner creates a DockerRunner talking to the local daemon
func NewDockerRunner(imageName string) (*DockerRunner, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to create docker client: %w", err)
	}
	return NewDockerRunnerWithClient(cli, imageName), nil
}

// NewDockerRunnerWithClient creates a DockerRunner with a provided client (for testing)
func NewDockerRunnerWithClient(cli DockerClient, imageName string) *DockerRunner {
	return &DockerRunner{
		cli:         cli,
		Image:       imageName,
		StopTimeout: 10,
		startBackoff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 2 * time.Second
			b.MaxInterval = 10 * time.Second
			b.MaxElapsedTime = 30 * time.Second
			return b
		},
	}
}

func (r *DockerRunner) Run(ctx context.Context, job Job) (*Output, error) {
	runCtx, cancel := withTimeout(ctx, job.Timeout)
	defer cancel()

	containerID, err := r.launch(runCtx, job)
	if err != nil {
		if cerr := contextErr(ctx, runCtx); cerr != nil {
			return &Output{ExitCode: -1}, cerr
		}
		return &Output{ExitCode: -1}, fmt.Errorf("%w: %v", ErrLaunch, err)
	}
	defer r.remove(containerID)

	exitCode, waitErr := r.wait(runCtx, containerID)
	if cerr := contextErr(ctx, runCtx); cerr != nil {
		r.stop(containerID)
		out := r.collectLogs(containerID)
		out.ExitCode = -1
		return out, cerr
	}

	out := r.collectLogs(containerID)
	if waitErr != nil {
		out.ExitCode = -1
		return out, fmt.Errorf("%w: %v", ErrLaunch, waitErr)
	}
	out.ExitCode = exitCode
	return out, nil
}

// launch pulls the image if needed, then creates and starts the container
func (r *DockerRunner) launch(ctx context.Context, job Job) (string, error) {
	if err := r.ensureImage(ctx, r.Image); err != nil {
		return "", fmt.Errorf("failed to ensure image: %w", err)
	}

	scriptPath, err := filepath.Abs(job.ScriptPath)
	if err != nil {
		return "", fmt.Errorf("failed to resolve script path: %w", err)
	}

	containerConfig := &container.Config{
		Image: r.Image,
		Env: []string{
			fmt.Sprintf("NVIDIA_VISIBLE_DEVICES=%s", domain.JoinIDs(job.GPUIDs)),
			"NVIDIA_DRIVER_CAPABILITIES=compute,utility",
		},
		WorkingDir: workspaceDir,
		Entrypoint: []string{"bash"},
		Cmd:        []string{filepath.Join(workspaceDir, filepath.Base(scriptPath))},
	}

	hostConfig := &container.HostConfig{
		Runtime: "nvidia",
		Binds:   []string{filepath.Dir(scriptPath) + ":" + workspaceDir + ":ro"},
	}

	resp, err := r.cli.ContainerCreate(ctx, containerConfig, hostConfig, nil, nil, "gpuwatch-"+job.Name)
	if err != nil {
		return "", fmt.Errorf("failed to create container: %w", err)
	}

	if err := r.startContainer(ctx, resp.ID); err != nil {
		r.remove(resp.ID)
		return "", err
	}

	slog.Info("job container started", "container", shortID(resp.ID), "image", r.Image, "gpus", job.GPUIDs)
	return resp.ID, nil
}

// ensureImage pulls a Docker image if it's not available locally.
func (r *DockerRunner) ensureImage(ctx context.Context, imageName string) error {
	if _, err := r.cli.ImageInspect(ctx, imageName); err == nil {
		return nil
	}

	slog.Info("image not found locally, pulling from registry", "image", imageName)

	reader, err := r.cli.ImagePull(ctx, imageName, image.PullOptions{})
	if err != nil {
		return fmt.Errorf("failed to pull image %s: %w", imageName, err)
	}
	defer reader.Close()

	// Consume the reader to complete the pull (progress output is discarded)
	if _, err := io.Copy(io.Discard, reader); err != nil {
		return fmt.Errorf("error during image pull %s: %w", imageName, err)
	}

	slog.Info("image pulled successfully", "image", imageName)
	return nil
}

// startContainer starts a container with exponential backoff retry
func (r *DockerRunner) startContainer(ctx context.Context, containerID string) error {
	operation := func() error {
		if err := r.cli.ContainerStart(ctx, containerID, container.StartOptions{}); err != nil {
			return fmt.Errorf("failed to start container: %w", err)
		}
		return nil
	}

	if err := backoff.Retry(operation, backoff.WithContext(r.startBackoff(), ctx)); err != nil {
		return fmt.Errorf("failed to start container after retries: %w", err)
	}
	return nil
}

func (r *DockerRunner) wait(ctx context.Context, containerID string) (int, error) {
	waitCh, errCh := r.cli.ContainerWait(ctx, containerID, container.WaitConditionNotRunning)
	select {
	case resp := <-waitCh:
		if resp.Error != nil && resp.Error.Message != "" {
			return int(resp.StatusCode), fmt.Errorf("container wait: %s", resp.Error.Message)
		}
		return int(resp.StatusCode), nil
	case err := <-errCh:
		return -1, fmt.Errorf("error waiting for container: %w", err)
	case <-ctx.Done():
		return -1, ctx.Err()
	}
}

// stop uses its own context: the run context is already done when we get here
func (r *DockerRunner) stop(containerID string) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(r.StopTimeout+5)*time.Second)
	defer cancel()

	timeout := r.StopTimeout
	if err := r.cli.ContainerStop(ctx, containerID, container.StopOptions{Timeout: &timeout}); err != nil {
		slog.Warn("failed to stop job container", "container", shortID(containerID), "error", err)
	}
}

func (r *DockerRunner) collectLogs(containerID string) *Output {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	out := &Output{}
	logs, err := r.cli.ContainerLogs(ctx, containerID, container.LogsOptions{ShowStdout: true, ShowStderr: true})
	if err != nil {
		slog.Warn("failed to read job container logs", "container", shortID(containerID), "error", err)
		return out
	}
	defer logs.Close()

	var stdout, stderr bytes.Buffer
	if _, err := stdcopy.StdCopy(&stdout, &stderr, logs); err != nil {
		slog.Warn("failed to demultiplex job container logs", "container", shortID(containerID), "error", err)
	}
	out.Stdout = stdout.String()
	out.Stderr = stderr.String()
	return out
}

func (r *DockerRunner) remove(containerID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := r.cli.ContainerRemove(ctx, containerID, container.RemoveOptions{RemoveVolumes: true, Force: true}); err != nil {
		slog.Warn("failed to remove job container", "container", shortID(containerID), "error", err)
	}
}

// Close closes the Docker client connection
func (r *DockerRunner) Close() error {
	if r.cli != nil {
		return r.cli.Close()
	}
	return nil
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}

// Compile-time interface check
var _ Runner = (*DockerRunner)(nil)

package runner

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/worldland/gpuwatch/internal/domain"
)

var (
	ErrTimeout = errors.New("script execution timed out")
	ErrLaunch  = errors.New("script could not be launched")
)

// Job describes one script invocation
type Job struct {
	Name       string        // Used for container names and logs
	ScriptPath string        // Host path of the script
	GPUIDs     []int         // Device indices the script may use
	Timeout    time.Duration // 0 means no limit
}

// Output is what a finished script left behind
type Output struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

// Runner launches a job and blocks until it exits.
// Run returns ErrTimeout when Job.Timeout elapses, an error wrapping
// ErrLaunch when the script never started, or the parent context's error
// when ctx is cancelled. A non-zero exit is not an error.
type Runner interface {
	Run(ctx context.Context, job Job) (*Output, error)
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

// contextErr tells a job-level timeout apart from the caller giving up
func contextErr(parent, run context.Context) error {
	if err := parent.Err(); err != nil {
		return err
	}
	if errors.Is(run.Err(), context.DeadlineExceeded) {
		return ErrTimeout
	}
	return nil
}

// jobEnv returns base with CUDA_VISIBLE_DEVICES replaced by the job's GPUs
func jobEnv(base []string, ids []int) []string {
	env := make([]string, 0, len(base)+1)
	for _, kv := range base {
		if strings.HasPrefix(kv, "CUDA_VISIBLE_DEVICES=") {
			continue
		}
		env = append(env, kv)
	}
	return append(env, "CUDA_VISIBLE_DEVICES="+domain.JoinIDs(ids))
}

package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"time"
)

// ShellRunner runs the script with bash on the host
type ShellRunner struct {
	Interpreter string
	BaseEnv     []string
	// WaitDelay bounds how long output pipes may stay open after the script
	// is killed (background children can hold them)
	WaitDelay time.Duration
}

func NewShellRunner() *ShellRunner {
	return &ShellRunner{
		Interpreter: "bash",
		BaseEnv:     os.Environ(),
		WaitDelay:   5 * time.Second,
	}
}

func (r *ShellRunner) Run(ctx context.Context, job Job) (*Output, error) {
	runCtx, cancel := withTimeout(ctx, job.Timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, r.Interpreter, job.ScriptPath)
	cmd.Env = jobEnv(r.BaseEnv, job.GPUIDs)
	cmd.WaitDelay = r.WaitDelay

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	slog.Info("running script", "script", job.ScriptPath, "gpus", job.GPUIDs, "timeout", job.Timeout)
	err := cmd.Run()

	out := &Output{Stdout: stdout.String(), Stderr: stderr.String()}
	if cerr := contextErr(ctx, runCtx); cerr != nil {
		out.ExitCode = -1
		return out, cerr
	}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			out.ExitCode = exitErr.ExitCode()
			return out, nil
		}
		return out, fmt.Errorf("%w: %v", ErrLaunch, err)
	}
	return out, nil
}

// Compile-time interface check
var _ Runner = (*ShellRunner)(nil)

package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/worldland/gpuwatch/internal/domain"
	"github.com/worldland/gpuwatch/internal/notify"
	"github.com/worldland/gpuwatch/internal/runner"
)

// Executor announces the free GPUs, runs the script once on them and
// reports the outcome. There is no retry.
type Executor struct {
	cfg       Config
	runner    runner.Runner
	notifier  notify.Notifier
	sessionID string
}

// NewExecutor creates a new executor
func NewExecutor(cfg Config, r runner.Runner, n notify.Notifier, sessionID string) *Executor {
	return &Executor{
		cfg:       cfg,
		runner:    r,
		notifier:  n,
		sessionID: sessionID,
	}
}

// Execute runs the script on the given GPUs. The returned error is only
// ever a notification delivery failure; script problems are reported in
// the result and by e-mail.
func (e *Executor) Execute(ctx context.Context, free []domain.GPUStatus) (*domain.ExecutionResult, error) {
	ids := domain.GPUIDs(free)

	if err := e.notifier.Notify(ctx, availableMessage(e.cfg, free)); err != nil {
		return nil, fmt.Errorf("failed to send availability notification: %w", err)
	}

	job := runner.Job{
		Name:       e.sessionID,
		ScriptPath: e.cfg.ScriptPath,
		GPUIDs:     ids,
		Timeout:    e.cfg.ScriptTimeout,
	}

	startedAt := time.Now()
	out, err := e.runner.Run(ctx, job)
	result := classify(out, err)
	result.GPUIDs = ids
	result.StartedAt = startedAt
	result.Duration = time.Since(startedAt)

	slog.Info("script finished",
		"outcome", result.Outcome,
		"exit_code", result.ExitCode,
		"duration", result.Duration.Round(time.Millisecond),
	)

	msg, ok := outcomeMessage(e.cfg, result)
	if !ok {
		return result, nil
	}
	if err := e.notifier.Notify(ctx, msg); err != nil {
		return result, fmt.Errorf("failed to send %s notification: %w", result.Outcome, err)
	}
	return result, nil
}

// classify maps a runner's output and error onto exactly one outcome
func classify(out *runner.Output, err error) *domain.ExecutionResult {
	if out == nil {
		out = &runner.Output{ExitCode: -1}
	}
	result := &domain.ExecutionResult{
		ExitCode: out.ExitCode,
		Stdout:   out.Stdout,
		Stderr:   out.Stderr,
		Err:      err,
	}

	switch {
	case err == nil && out.ExitCode == 0:
		result.Outcome = domain.OutcomeSuccess
	case err == nil:
		result.Outcome = domain.OutcomeFailure
	case errors.Is(err, runner.ErrTimeout):
		result.Outcome = domain.OutcomeTimeout
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		result.Outcome = domain.OutcomeInterrupted
	default:
		result.Outcome = domain.OutcomeError
	}
	return result
}

package monitor

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/worldland/gpuwatch/internal/domain"
	"github.com/worldland/gpuwatch/internal/notify"
	"github.com/worldland/gpuwatch/internal/runner"
)

var freeGPUs = []domain.GPUStatus{
	{ID: 0, MemoryUsedMB: 500, MemoryTotalMB: 8000},
	{ID: 1, MemoryUsedMB: 100, MemoryTotalMB: 8000},
}

func newTestExecutor(run *MockRunner, n *MockNotifier) *Executor {
	return NewExecutor(testConfig(), run, n, "session-123")
}

func TestExecute_AnnouncesGPUsBeforeRunning(t *testing.T) {
	notifier := &MockNotifier{}
	run := &MockRunner{
		runFunc: func(ctx context.Context, job runner.Job) (*runner.Output, error) {
			// availability must already be out when the script starts
			assert.Equal(t, []notify.Kind{notify.KindAvailable}, notifier.Kinds())
			return &runner.Output{}, nil
		},
	}

	_, err := newTestExecutor(run, notifier).Execute(context.Background(), freeGPUs)
	require.NoError(t, err)

	avail := notifier.Messages[0]
	assert.Equal(t, "GPUs Available on gpu01", avail.Subject)
	assert.Equal(t, "Free GPUs: [0, 1]\n\nGPU 0: 500/8000 MB\nGPU 1: 100/8000 MB", avail.Body)
}

func TestExecute_SuccessSendsStdout(t *testing.T) {
	notifier := &MockNotifier{}
	run := &MockRunner{
		runFunc: func(ctx context.Context, job runner.Job) (*runner.Output, error) {
			return &runner.Output{ExitCode: 0, Stdout: "loss=0.01\n"}, nil
		},
	}

	result, err := newTestExecutor(run, notifier).Execute(context.Background(), freeGPUs)
	require.NoError(t, err)

	assert.Equal(t, domain.OutcomeSuccess, result.Outcome)
	assert.Equal(t, []int{0, 1}, result.GPUIDs)
	assert.Equal(t, []notify.Kind{notify.KindAvailable, notify.KindSucceeded}, notifier.Kinds())
	last := notifier.Last()
	assert.Equal(t, "Execution Successful on gpu01", last.Subject)
	assert.Contains(t, last.Body, "loss=0.01")
}

func TestExecute_FailureSendsStderrAndExitCode(t *testing.T) {
	notifier := &MockNotifier{}
	run := &MockRunner{
		runFunc: func(ctx context.Context, job runner.Job) (*runner.Output, error) {
			return &runner.Output{ExitCode: 2, Stderr: "CUDA out of memory"}, nil
		},
	}

	result, err := newTestExecutor(run, notifier).Execute(context.Background(), freeGPUs)
	require.NoError(t, err)

	assert.Equal(t, domain.OutcomeFailure, result.Outcome)
	assert.Equal(t, []notify.Kind{notify.KindAvailable, notify.KindFailed}, notifier.Kinds())
	last := notifier.Last()
	assert.Equal(t, "Execution Failed on gpu01", last.Subject)
	assert.Contains(t, last.Body, "return code 2")
	assert.Contains(t, last.Body, "CUDA out of memory")
}

func TestExecute_TimeoutSendsOnlyTimeoutNotification(t *testing.T) {
	notifier := &MockNotifier{}
	run := &MockRunner{
		runFunc: func(ctx context.Context, job runner.Job) (*runner.Output, error) {
			assert.Equal(t, time.Hour, job.Timeout)
			return &runner.Output{ExitCode: -1, Stdout: "partial"}, runner.ErrTimeout
		},
	}

	result, err := newTestExecutor(run, notifier).Execute(context.Background(), freeGPUs)
	require.NoError(t, err)

	assert.Equal(t, domain.OutcomeTimeout, result.Outcome)
	assert.Equal(t, []notify.Kind{notify.KindAvailable, notify.KindTimedOut}, notifier.Kinds())
	assert.Equal(t, "Script execution timed out after 1h0m0s", notifier.Last().Body)
}

func TestExecute_LaunchErrorSendsErrorNotification(t *testing.T) {
	notifier := &MockNotifier{}
	run := &MockRunner{
		runFunc: func(ctx context.Context, job runner.Job) (*runner.Output, error) {
			return &runner.Output{ExitCode: -1}, fmt.Errorf("%w: exec: \"bash\": executable file not found", runner.ErrLaunch)
		},
	}

	result, err := newTestExecutor(run, notifier).Execute(context.Background(), freeGPUs)
	require.NoError(t, err)

	assert.Equal(t, domain.OutcomeError, result.Outcome)
	assert.Equal(t, []notify.Kind{notify.KindAvailable, notify.KindError}, notifier.Kinds())
	assert.Contains(t, notifier.Last().Body, "executable file not found")
}

func TestExecute_InterruptedSendsNoOutcome(t *testing.T) {
	notifier := &MockNotifier{}
	run := &MockRunner{
		runFunc: func(ctx context.Context, job runner.Job) (*runner.Output, error) {
			return &runner.Output{ExitCode: -1}, context.Canceled
		},
	}

	result, err := newTestExecutor(run, notifier).Execute(context.Background(), freeGPUs)
	require.NoError(t, err)

	assert.Equal(t, domain.OutcomeInterrupted, result.Outcome)
	assert.Equal(t, []notify.Kind{notify.KindAvailable}, notifier.Kinds())
}

func TestExecute_AvailabilityFailureSkipsScript(t *testing.T) {
	notifier := &MockNotifier{FailKinds: map[notify.Kind]error{
		notify.KindAvailable: errors.New("smtp down"),
	}}
	run := &MockRunner{}

	result, err := newTestExecutor(run, notifier).Execute(context.Background(), freeGPUs)

	assert.Error(t, err)
	assert.Nil(t, result)
	assert.Empty(t, run.Jobs)
}

func TestExecute_OutcomeNotificationFailureIsReturned(t *testing.T) {
	notifier := &MockNotifier{FailKinds: map[notify.Kind]error{
		notify.KindSucceeded: errors.New("smtp down"),
	}}

	result, err := newTestExecutor(&MockRunner{}, notifier).Execute(context.Background(), freeGPUs)

	assert.Error(t, err)
	require.NotNil(t, result)
	assert.Equal(t, domain.OutcomeSuccess, result.Outcome)
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		out  *runner.Output
		err  error
		want domain.Outcome
	}{
		{"zero exit", &runner.Output{ExitCode: 0}, nil, domain.OutcomeSuccess},
		{"non-zero exit", &runner.Output{ExitCode: 1}, nil, domain.OutcomeFailure},
		{"killed by signal", &runner.Output{ExitCode: -1}, nil, domain.OutcomeFailure},
		{"timeout", &runner.Output{ExitCode: -1}, runner.ErrTimeout, domain.OutcomeTimeout},
		{"launch", nil, fmt.Errorf("%w: boom", runner.ErrLaunch), domain.OutcomeError},
		{"cancelled", nil, context.Canceled, domain.OutcomeInterrupted},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, classify(tt.out, tt.err).Outcome)
		})
	}
}

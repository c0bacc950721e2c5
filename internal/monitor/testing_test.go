package monitor

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/worldland/gpuwatch/internal/domain"
	"github.com/worldland/gpuwatch/internal/notify"
	"github.com/worldland/gpuwatch/internal/runner"
)

// MockNotifier records every message
type MockNotifier struct {
	mu       sync.Mutex
	Messages []notify.Message
	// FailKinds makes delivery of these kinds fail
	FailKinds map[notify.Kind]error
}

func (m *MockNotifier) Notify(ctx context.Context, msg notify.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Messages = append(m.Messages, msg)
	if err, ok := m.FailKinds[msg.Kind]; ok {
		return err
	}
	return nil
}

func (m *MockNotifier) Kinds() []notify.Kind {
	m.mu.Lock()
	defer m.mu.Unlock()
	kinds := make([]notify.Kind, len(m.Messages))
	for i, msg := range m.Messages {
		kinds[i] = msg.Kind
	}
	return kinds
}

func (m *MockNotifier) Last() notify.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Messages[len(m.Messages)-1]
}

// MockRunner implements runner.Runner for testing
type MockRunner struct {
	runFunc func(ctx context.Context, job runner.Job) (*runner.Output, error)

	// Call tracking
	Jobs []runner.Job
}

func (m *MockRunner) Run(ctx context.Context, job runner.Job) (*runner.Output, error) {
	m.Jobs = append(m.Jobs, job)
	if m.runFunc != nil {
		return m.runFunc(ctx, job)
	}
	return &runner.Output{Stdout: "ok\n"}, nil
}

// MockHandler implements ExecutionHandler for testing
type MockHandler struct {
	executeFunc func(ctx context.Context, free []domain.GPUStatus) (*domain.ExecutionResult, error)

	// Call tracking
	Calls [][]domain.GPUStatus
}

func (m *MockHandler) Execute(ctx context.Context, free []domain.GPUStatus) (*domain.ExecutionResult, error) {
	m.Calls = append(m.Calls, free)
	if m.executeFunc != nil {
		return m.executeFunc(ctx, free)
	}
	return &domain.ExecutionResult{Outcome: domain.OutcomeSuccess, GPUIDs: domain.GPUIDs(free)}, nil
}

// cancelAfterSleeps returns a sleep func that cancels the run after n sleeps
func cancelAfterSleeps(n int, cancel context.CancelFunc, count *int) func(ctx context.Context, d time.Duration) error {
	return func(ctx context.Context, d time.Duration) error {
		*count++
		if *count >= n {
			cancel()
			return ctx.Err()
		}
		return nil
	}
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.HostLabel = "gpu01"
	cfg.RequiredFreeGPUs = 2
	cfg.MemoryThresholdMB = 1000
	cfg.PollInterval = time.Second
	cfg.ScriptPath = "/jobs/train.sh"
	return cfg
}

func newTestMonitor(cfg Config, provider domain.GPUProvider, handler ExecutionHandler, n notify.Notifier) *Monitor {
	m := New(cfg, provider, handler, n, "session-123")
	m.out = io.Discard
	m.sleep = func(ctx context.Context, d time.Duration) error { return ctx.Err() }
	return m
}

// cancellingNotifier cancels the run when it is handed kind, then reports
// that delivery as aborted the way a real SMTP client would.
type cancellingNotifier struct {
	MockNotifier
	kind   notify.Kind
	cancel context.CancelFunc
}

func (c *cancellingNotifier) Notify(ctx context.Context, msg notify.Message) error {
	if err := c.MockNotifier.Notify(ctx, msg); err != nil {
		return err
	}
	if msg.Kind == c.kind {
		c.cancel()
		return ctx.Err()
	}
	return nil
}

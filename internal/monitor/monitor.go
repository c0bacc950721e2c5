package monitor

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/worldland/gpuwatch/internal/cli"
	"github.com/worldland/gpuwatch/internal/domain"
	"github.com/worldland/gpuwatch/internal/notify"
)

// stopNotifyTimeout bounds the shutdown notification, which is sent after
// the monitor's own context is already cancelled
const stopNotifyTimeout = 2 * time.Minute

// ExecutionHandler runs the job once enough GPUs are free
type ExecutionHandler interface {
	Execute(ctx context.Context, free []domain.GPUStatus) (*domain.ExecutionResult, error)
}

// Monitor polls GPU memory until RequiredFreeGPUs are free, then hands the
// free set to the ExecutionHandler and stops. In test mode it never hands
// off and polls until cancelled.
type Monitor struct {
	cfg       Config
	provider  domain.GPUProvider
	handler   ExecutionHandler
	notifier  notify.Notifier
	sessionID string

	sleep func(ctx context.Context, d time.Duration) error
	out   io.Writer // test-mode GPU tables

	mu     sync.RWMutex
	status Status
}

// New creates a monitor. sessionID tags notifications and the job.
func New(cfg Config, provider domain.GPUProvider, handler ExecutionHandler, notifier notify.Notifier, sessionID string) *Monitor {
	return &Monitor{
		cfg:       cfg,
		provider:  provider,
		handler:   handler,
		notifier:  notifier,
		sessionID: sessionID,
		sleep:     sleepContext,
		out:       os.Stdout,
		status: Status{
			SessionID:        sessionID,
			Host:             cfg.HostLabel,
			State:            StateStarting,
			TestMode:         cfg.TestMode,
			RequiredFreeGPUs: cfg.RequiredFreeGPUs,
			ThresholdMB:      cfg.MemoryThresholdMB,
			StartedAt:        time.Now(),
		},
	}
}

// Run sends the start notification and polls until the job has run, ctx is
// cancelled, or a notification cannot be delivered. Cancellation is a clean
// stop: the shutdown notification is sent and Run returns nil.
func (m *Monitor) Run(ctx context.Context) error {
	if err := m.notifier.Notify(ctx, startedMessage(m.cfg, m.sessionID)); err != nil {
		m.setState(StateFailed)
		return fmt.Errorf("failed to send start notification: %w", err)
	}

	slog.Info("starting GPU monitor",
		"host", m.cfg.HostLabel,
		"session", m.sessionID,
		"required_free", m.cfg.RequiredFreeGPUs,
		"threshold_mb", m.cfg.MemoryThresholdMB,
		"interval", m.cfg.PollInterval,
		"test_mode", m.cfg.TestMode,
	)
	m.setState(StatePolling)

	for {
		if ctx.Err() != nil {
			return m.stop()
		}

		free := m.check()

		if len(free) >= m.cfg.RequiredFreeGPUs {
			slog.Info("found free GPUs", "free", len(free), "need", m.cfg.RequiredFreeGPUs)

			if !m.cfg.TestMode {
				return m.execute(ctx, free)
			}
			slog.Info("test mode - would execute script now", "gpus", domain.GPUIDs(free))
		}

		if err := m.sleep(ctx, m.cfg.PollInterval); err != nil {
			return m.stop()
		}
	}
}

// check takes one snapshot and returns the free GPUs in it. A failed query
// counts as zero free GPUs.
func (m *Monitor) check() []domain.GPUStatus {
	m.mu.Lock()
	m.status.Checks++
	n := m.status.Checks
	m.mu.Unlock()

	snapshot, err := m.provider.GetStatus()
	if err != nil {
		slog.Warn("GPU check failed", "check", n, "error", err)
		snapshot = nil
	}
	free := domain.FreeGPUs(snapshot, m.cfg.MemoryThresholdMB)

	slog.Info("GPU check", "check", n, "free", len(free), "total", len(snapshot))
	if m.cfg.TestMode && len(free) > 0 {
		cli.PrintGPUTable(m.out, "Free GPU Status", free)
	}

	now := time.Now()
	m.mu.Lock()
	m.status.LastCheckAt = &now
	m.status.LastSnapshot = snapshot
	m.status.FreeGPUs = domain.GPUIDs(free)
	m.status.LastError = ""
	if err != nil {
		m.status.LastError = err.Error()
	}
	m.mu.Unlock()

	return free
}

func (m *Monitor) execute(ctx context.Context, free []domain.GPUStatus) error {
	m.setState(StateExecuting)

	result, err := m.handler.Execute(ctx, free)

	m.mu.Lock()
	m.status.Result = result
	m.mu.Unlock()

	// A notification cut short by the interrupt is a stop, not a failure.
	if err != nil && ctx.Err() != nil {
		slog.Warn("execution interrupted", "error", err)
		if result == nil {
			result = &domain.ExecutionResult{
				Outcome: domain.OutcomeInterrupted,
				GPUIDs:  domain.GPUIDs(free),
				Err:     err,
			}
			m.mu.Lock()
			m.status.Result = result
			m.mu.Unlock()
		}
		return m.stop()
	}
	if err != nil {
		m.setState(StateFailed)
		return err
	}
	if result != nil && result.Outcome == domain.OutcomeInterrupted {
		return m.stop()
	}

	m.setState(StateDone)
	slog.Info("monitoring completed", "session", m.sessionID)
	if result != nil {
		cli.PrintSuccess(m.out, fmt.Sprintf("Monitoring completed: script %s on GPUs [%s]",
			result.Outcome, domain.JoinIDs(result.GPUIDs)))
	}
	return nil
}

func (m *Monitor) stop() error {
	slog.Info("monitoring stopped by user", "session", m.sessionID)
	m.setState(StateStopped)

	ctx, cancel := context.WithTimeout(context.Background(), stopNotifyTimeout)
	defer cancel()

	if err := m.notifier.Notify(ctx, stoppedMessage(m.cfg)); err != nil {
		return fmt.Errorf("failed to send stop notification: %w", err)
	}
	return nil
}

func (m *Monitor) setState(s State) {
	m.mu.Lock()
	m.status.State = s
	m.mu.Unlock()
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

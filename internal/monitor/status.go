package monitor

import (
	"time"

	"github.com/worldland/gpuwatch/internal/domain"
)

// State is the monitor's lifecycle position
type State string

const (
	StateStarting  State = "starting"
	StatePolling   State = "polling"
	StateExecuting State = "executing"
	StateDone      State = "done"
	StateStopped   State = "stopped"
	StateFailed    State = "failed"
)

// Status is a read-only view of the monitor for the status API
type Status struct {
	SessionID        string                  `json:"session_id"`
	Host             string                  `json:"host"`
	State            State                   `json:"state"`
	TestMode         bool                    `json:"test_mode"`
	RequiredFreeGPUs int                     `json:"required_free_gpus"`
	ThresholdMB      uint64                  `json:"memory_threshold_mb"`
	Checks           int                     `json:"checks"`
	FreeGPUs         []int                   `json:"free_gpus"`
	LastSnapshot     []domain.GPUStatus      `json:"last_snapshot"`
	LastError        string                  `json:"last_error,omitempty"`
	LastCheckAt      *time.Time              `json:"last_check_at,omitempty"`
	StartedAt        time.Time               `json:"started_at"`
	Result           *domain.ExecutionResult `json:"result,omitempty"`
}

// Status returns a copy of the current status
func (m *Monitor) Status() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s := m.status
	s.FreeGPUs = append([]int(nil), m.status.FreeGPUs...)
	s.LastSnapshot = append([]domain.GPUStatus(nil), m.status.LastSnapshot...)
	if m.status.LastCheckAt != nil {
		t := *m.status.LastCheckAt
		s.LastCheckAt = &t
	}
	if m.status.Result != nil {
		r := *m.status.Result
		r.GPUIDs = append([]int(nil), m.status.Result.GPUIDs...)
		s.Result = &r
	}
	return s
}

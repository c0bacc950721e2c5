package nvml

import (
	"sync"

	"github.com/worldland/gpuwatch/internal/domain"
)

// MockGPUProvider replays scripted snapshots. Each GetStatus call consumes the
// next step; the last step repeats once the script is exhausted.
type MockGPUProvider struct {
	Steps   []MockStep
	InitErr error

	mu    sync.Mutex
	calls int
}

// MockStep is one scripted GetStatus response
type MockStep struct {
	GPUs []domain.GPUStatus
	Err  error
}

func NewMockGPUProvider(snapshots ...[]domain.GPUStatus) *MockGPUProvider {
	steps := make([]MockStep, len(snapshots))
	for i, s := range snapshots {
		steps[i] = MockStep{GPUs: s}
	}
	return &MockGPUProvider{Steps: steps}
}

func (p *MockGPUProvider) Init() error {
	return p.InitErr
}

func (p *MockGPUProvider) Shutdown() error {
	return nil
}

func (p *MockGPUProvider) GetStatus() ([]domain.GPUStatus, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.calls++
	if len(p.Steps) == 0 {
		return nil, nil
	}
	idx := p.calls - 1
	if idx >= len(p.Steps) {
		idx = len(p.Steps) - 1
	}
	step := p.Steps[idx]
	if step.Err != nil {
		return nil, step.Err
	}
	out := make([]domain.GPUStatus, len(step.GPUs))
	copy(out, step.GPUs)
	return out, nil
}

// Calls reports how many snapshots have been taken
func (p *MockGPUProvider) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

// Compile-time interface check
var _ domain.GPUProvider = (*MockGPUProvider)(nil)

//go:build nonvml
// +build nonvml

package nvml

import (
	"fmt"

	"github.com/worldland/gpuwatch/internal/domain"
)

// NVMLProvider stub - used when building without NVIDIA libraries
type NVMLProvider struct {
	InitRetries uint64
}

func NewNVMLProvider() *NVMLProvider {
	return &NVMLProvider{}
}

func (p *NVMLProvider) Init() error {
	return fmt.Errorf("NVML not available (built with nonvml tag)")
}

func (p *NVMLProvider) Shutdown() error {
	return nil
}

func (p *NVMLProvider) GetStatus() ([]domain.GPUStatus, error) {
	return nil, fmt.Errorf("NVML not available")
}

// Compile-time interface check
var _ domain.GPUProvider = (*NVMLProvider)(nil)

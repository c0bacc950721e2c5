//go:build !nonvml
// +build !nonvml

package nvml

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/NVIDIA/go-nvml/pkg/nvml"
	"github.com/cenkalti/backoff/v4"
	"github.com/worldland/gpuwatch/internal/domain"
)

const bytesPerMB = 1024 * 1024

type NVMLProvider struct {
	// InitRetries bounds how often a transient init failure is retried
	InitRetries uint64
}

func NewNVMLProvider() *NVMLProvider {
	return &NVMLProvider{InitRetries: 2}
}

// Init loads NVML. A missing library or driver fails immediately; other
// errors (driver still coming up after boot) are retried with backoff.
func (p *NVMLProvider) Init() error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 2 * time.Second

	operation := func() error {
		ret := nvml.Init()
		switch {
		case ret == nvml.SUCCESS:
			return nil
		case ret == nvml.ERROR_LIBRARY_NOT_FOUND, ret == nvml.ERROR_DRIVER_NOT_LOADED, ret == nvml.ERROR_NO_PERMISSION:
			return backoff.Permanent(fmt.Errorf("NVML init failed: %v", nvml.ErrorString(ret)))
		default:
			return fmt.Errorf("NVML init failed: %v", nvml.ErrorString(ret))
		}
	}

	if err := backoff.Retry(operation, backoff.WithMaxRetries(b, p.InitRetries)); err != nil {
		var perm *backoff.PermanentError
		if errors.As(err, &perm) {
			return perm.Err
		}
		return err
	}
	return nil
}

func (p *NVMLProvider) Shutdown() error {
	ret := nvml.Shutdown()
	if ret != nvml.SUCCESS {
		return fmt.Errorf("NVML shutdown failed: %v", nvml.ErrorString(ret))
	}
	return nil
}

func (p *NVMLProvider) GetStatus() ([]domain.GPUStatus, error) {
	count, ret := nvml.DeviceGetCount()
	if ret != nvml.SUCCESS {
		return nil, fmt.Errorf("failed to get device count: %v", nvml.ErrorString(ret))
	}

	gpus := make([]domain.GPUStatus, 0, count)
	for i := 0; i < count; i++ {
		device, ret := nvml.DeviceGetHandleByIndex(i)
		if ret != nvml.SUCCESS {
			slog.Warn("skipping GPU, no handle", "index", i, "error", nvml.ErrorString(ret))
			continue
		}

		// An unreadable device must not look idle
		memInfo, ret := device.GetMemoryInfo()
		if ret != nvml.SUCCESS {
			slog.Warn("skipping GPU, memory info unavailable", "index", i, "error", nvml.ErrorString(ret))
			continue
		}

		uuid, _ := device.GetUUID()
		name, _ := device.GetName()

		gpus = append(gpus, domain.GPUStatus{
			ID:            i,
			UUID:          uuid,
			Name:          name,
			MemoryUsedMB:  memInfo.Used / bytesPerMB,
			MemoryTotalMB: memInfo.Total / bytesPerMB,
		})
	}
	return gpus, nil
}

// Compile-time interface check
var _ domain.GPUProvider = (*NVMLProvider)(nil)

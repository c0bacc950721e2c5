package domain

import (
	"fmt"
	"strconv"
	"strings"
)

// GPUStatus is a point-in-time memory snapshot of one GPU.
// ID is the device index, which is what CUDA_VISIBLE_DEVICES expects.
type GPUStatus struct {
	ID            int    `json:"id"`
	UUID          string `json:"uuid,omitempty"`
	Name          string `json:"name,omitempty"`
	MemoryUsedMB  uint64 `json:"memory_used_mb"`
	MemoryTotalMB uint64 `json:"memory_total_mb"`
}

// FreeGPUs returns the GPUs whose used memory is strictly below thresholdMB,
// preserving snapshot order.
func FreeGPUs(snapshot []GPUStatus, thresholdMB uint64) []GPUStatus {
	free := make([]GPUStatus, 0, len(snapshot))
	for _, gpu := range snapshot {
		if gpu.MemoryUsedMB < thresholdMB {
			free = append(free, gpu)
		}
	}
	return free
}

// GPUIDs extracts device indices
func GPUIDs(gpus []GPUStatus) []int {
	ids := make([]int, len(gpus))
	for i, gpu := range gpus {
		ids[i] = gpu.ID
	}
	return ids
}

// JoinIDs renders ids the way CUDA_VISIBLE_DEVICES wants them: "0,1,3"
func JoinIDs(ids []int) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.Itoa(id)
	}
	return strings.Join(parts, ",")
}

// FormatGPUInfo renders one "GPU <id>: <used>/<total> MB" line per GPU.
func FormatGPUInfo(gpus []GPUStatus) string {
	lines := make([]string, len(gpus))
	for i, gpu := range gpus {
		lines[i] = fmt.Sprintf("GPU %d: %d/%d MB", gpu.ID, gpu.MemoryUsedMB, gpu.MemoryTotalMB)
	}
	return strings.Join(lines, "\n")
}

package cli

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/worldland/gpuwatch/internal/domain"
)

func TestPrintGPUTable(t *testing.T) {
	var buf bytes.Buffer

	PrintGPUTable(&buf, "Free GPU Status", []domain.GPUStatus{
		{ID: 0, Name: "NVIDIA GeForce RTX 4090 Founders Edition", MemoryUsedMB: 500, MemoryTotalMB: 24564},
		{ID: 1, Name: "NVIDIA A100", MemoryUsedMB: 100, MemoryTotalMB: 81920},
	})

	out := buf.String()
	assert.Contains(t, out, "=== Free GPU Status (2) ===")
	assert.Contains(t, out, "NVIDIA GeForce RTX 40...")
	assert.Contains(t, out, "81920")
}

func TestPrintGPUTable_Empty(t *testing.T) {
	var buf bytes.Buffer

	PrintGPUTable(&buf, "GPUs", nil)

	assert.Contains(t, buf.String(), "(no GPUs)")
}

func TestPrintField(t *testing.T) {
	var buf bytes.Buffer

	PrintField(&buf, "Host", "gpu01")

	assert.Equal(t, "  Host:              gpu01\n", buf.String())
}

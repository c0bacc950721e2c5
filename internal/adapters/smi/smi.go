package smi

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/worldland/gpuwatch/internal/domain"
)

var queryArgs = []string{
	"--query-gpu=index,uuid,name,memory.used,memory.total",
	"--format=csv,noheader,nounits",
}

// Provider reads GPU memory by shelling out to nvidia-smi. It is the
// fallback when NVML cannot be loaded into the process.
type Provider struct {
	Binary  string
	Timeout time.Duration

	// run executes the query; replaced in tests
	run func(ctx context.Context, name string, args ...string) ([]byte, error)
}

func NewProvider() *Provider {
	return &Provider{
		Binary:  "nvidia-smi",
		Timeout: 10 * time.Second,
		run: func(ctx context.Context, name string, args ...string) ([]byte, error) {
			return exec.CommandContext(ctx, name, args...).Output()
		},
	}
}

// Available reports whether the nvidia-smi binary is on PATH
func Available() bool {
	_, err := exec.LookPath("nvidia-smi")
	return err == nil
}

func (p *Provider) Init() error {
	if _, err := p.GetStatus(); err != nil {
		return fmt.Errorf("nvidia-smi unusable: %w", err)
	}
	return nil
}

func (p *Provider) Shutdown() error {
	return nil
}

func (p *Provider) GetStatus() ([]domain.GPUStatus, error) {
	ctx, cancel := context.WithTimeout(context.Background(), p.Timeout)
	defer cancel()

	out, err := p.run(ctx, p.Binary, queryArgs...)
	if err != nil {
		return nil, fmt.Errorf("failed to run nvidia-smi: %w", err)
	}
	return parseQuery(string(out)), nil
}

// parseQuery parses "index, uuid, name, used, total" rows. Rows that do not
// parse are skipped so a single odd device cannot count as free. The memory
// columns are read from the end of the row, so a comma inside the name stays
// part of the name.
func parseQuery(output string) []domain.GPUStatus {
	lines := strings.Split(strings.TrimSpace(output), "\n")
	gpus := make([]domain.GPUStatus, 0, len(lines))

	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		fields := strings.Split(line, ",")
		if len(fields) < 5 {
			slog.Warn("unexpected nvidia-smi output format", "line", line)
			continue
		}
		for i := range fields {
			fields[i] = strings.TrimSpace(fields[i])
		}

		index, err := strconv.Atoi(fields[0])
		if err != nil {
			slog.Warn("invalid GPU index", "value", fields[0])
			continue
		}
		n := len(fields)
		used, err := strconv.ParseUint(fields[n-2], 10, 64)
		if err != nil {
			slog.Warn("invalid memory.used", "index", index, "value", fields[n-2])
			continue
		}
		total, err := strconv.ParseUint(fields[n-1], 10, 64)
		if err != nil {
			slog.Warn("invalid memory.total", "index", index, "value", fields[n-1])
			continue
		}

		gpus = append(gpus, domain.GPUStatus{
			ID:            index,
			UUID:          fields[1],
			Name:          strings.Join(fields[2:n-2], ", "),
			MemoryUsedMB:  used,
			MemoryTotalMB: total,
		})
	}
	return gpus
}

// Compile-time interface check
var _ domain.GPUProvider = (*Provider)(nil)

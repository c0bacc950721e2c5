package monitor

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/worldland/gpuwatch/internal/domain"
	"github.com/worldland/gpuwatch/internal/notify"
)

func startedMessage(cfg Config, sessionID string) notify.Message {
	var b strings.Builder
	fmt.Fprintf(&b, "GPU monitoring started on %s\n", cfg.HostLabel)
	fmt.Fprintf(&b, "Required free GPUs: %d\n", cfg.RequiredFreeGPUs)
	fmt.Fprintf(&b, "Memory threshold: %d MB\n", cfg.MemoryThresholdMB)
	fmt.Fprintf(&b, "Check interval: %d seconds\n", int(cfg.PollInterval.Seconds()))
	if cfg.TestMode {
		b.WriteString("Mode: test (script will not run)\n")
	} else {
		fmt.Fprintf(&b, "Script: %s\n", cfg.ScriptPath)
	}
	fmt.Fprintf(&b, "Session: %s", sessionID)

	return notify.Message{
		Kind:    notify.KindStarted,
		Subject: fmt.Sprintf("Monitor Started @ %s", cfg.HostLabel),
		Body:    b.String(),
	}
}

func stoppedMessage(cfg Config) notify.Message {
	return notify.Message{
		Kind:    notify.KindStopped,
		Subject: fmt.Sprintf("Monitor Stopped @ %s", cfg.HostLabel),
		Body:    "GPU monitoring was stopped by user",
	}
}

func availableMessage(cfg Config, free []domain.GPUStatus) notify.Message {
	return notify.Message{
		Kind:    notify.KindAvailable,
		Subject: fmt.Sprintf("GPUs Available on %s", cfg.HostLabel),
		Body:    fmt.Sprintf("Free GPUs: %s\n\n%s", formatIDs(domain.GPUIDs(free)), domain.FormatGPUInfo(free)),
	}
}

// outcomeMessage picks the single notification for a finished run.
// Interrupted runs have none.
func outcomeMessage(cfg Config, result *domain.ExecutionResult) (notify.Message, bool) {
	host := cfg.HostLabel
	switch result.Outcome {
	case domain.OutcomeSuccess:
		return notify.Message{
			Kind:    notify.KindSucceeded,
			Subject: fmt.Sprintf("Execution Successful on %s", host),
			Body:    fmt.Sprintf("Script completed successfully.\n\nOutput:\n%s", result.Stdout),
		}, true
	case domain.OutcomeFailure:
		return notify.Message{
			Kind:    notify.KindFailed,
			Subject: fmt.Sprintf("Execution Failed on %s", host),
			Body:    fmt.Sprintf("Script failed with return code %d.\n\nError:\n%s", result.ExitCode, result.Stderr),
		}, true
	case domain.OutcomeTimeout:
		return notify.Message{
			Kind:    notify.KindTimedOut,
			Subject: fmt.Sprintf("Execution Timeout on %s", host),
			Body:    fmt.Sprintf("Script execution timed out after %s", cfg.ScriptTimeout),
		}, true
	case domain.OutcomeError:
		return notify.Message{
			Kind:    notify.KindError,
			Subject: fmt.Sprintf("Execution Error on %s", host),
			Body:    fmt.Sprintf("Script execution error: %v", result.Err),
		}, true
	}
	return notify.Message{}, false
}

// formatIDs renders ids as "[0, 1]"
func formatIDs(ids []int) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.Itoa(id)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

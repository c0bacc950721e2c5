package domain

import "time"

// Outcome classifies a single script execution
type Outcome string

const (
	OutcomeSuccess     Outcome = "success"
	OutcomeFailure     Outcome = "failure"
	OutcomeTimeout     Outcome = "timeout"
	OutcomeError       Outcome = "error"       // script could not be launched
	OutcomeInterrupted Outcome = "interrupted" // monitor was stopped mid-run
)

// ExecutionResult is produced once per script invocation
type ExecutionResult struct {
	Outcome   Outcome       `json:"outcome"`
	GPUIDs    []int         `json:"gpu_ids"`
	ExitCode  int           `json:"exit_code"`
	Stdout    string        `json:"-"`
	Stderr    string        `json:"-"`
	Err       error         `json:"-"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
}

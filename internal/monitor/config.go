package monitor

import (
	"errors"
	"time"
)

// Config holds the monitoring parameters. It is built once at startup and
// never changes afterwards.
type Config struct {
	// RequiredFreeGPUs is how many GPUs must be free before the script runs
	// Default: 4
	RequiredFreeGPUs int

	// MemoryThresholdMB: a GPU is free when its used memory is strictly below this
	// Default: 2000
	MemoryThresholdMB uint64

	// PollInterval between GPU checks
	// Default: 60s
	PollInterval time.Duration

	// HostLabel names the machine in notifications
	// Default: "localhost"
	HostLabel string

	// TestMode keeps polling forever and never launches the script
	TestMode bool

	// ScriptPath is the job script, usually from BASH_SCRIPT_PATH
	// Default: "./my_script.sh"
	ScriptPath string

	// ScriptTimeout bounds the script's run time; 0 disables the limit
	// Default: 1h
	ScriptTimeout time.Duration
}

// DefaultConfig returns default monitoring configuration
func DefaultConfig() Config {
	return Config{
		RequiredFreeGPUs:  4,
		MemoryThresholdMB: 2000,
		PollInterval:      60 * time.Second,
		HostLabel:         "localhost",
		ScriptPath:        "./my_script.sh",
		ScriptTimeout:     time.Hour,
	}
}

// Validate checks that the config is usable
func (c *Config) Validate() error {
	var errs []error
	if c.RequiredFreeGPUs < 1 {
		errs = append(errs, errors.New("required free GPU count must be at least 1"))
	}
	if c.PollInterval <= 0 {
		errs = append(errs, errors.New("poll interval must be positive"))
	}
	if c.ScriptTimeout < 0 {
		errs = append(errs, errors.New("script timeout must not be negative"))
	}
	if c.HostLabel == "" {
		errs = append(errs, errors.New("host label must not be empty"))
	}
	if !c.TestMode && c.ScriptPath == "" {
		errs = append(errs, errors.New("script path must not be empty"))
	}
	return errors.Join(errs...)
}

package domain

// GPUProvider abstracts GPU status collection for testing
type GPUProvider interface {
	// Init initializes the GPU provider (NVML, nvidia-smi or mock)
	Init() error
	// Shutdown cleanly shuts down the provider
	Shutdown() error
	// GetStatus returns a fresh snapshot of every GPU on the host
	GetStatus() ([]GPUStatus, error)
}

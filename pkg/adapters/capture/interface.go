package capture

import "context"

// Device produces fixed-size microphone blocks as float32 samples in
// [-1, 1]. Consumers must drain Frames promptly; a device drops blocks
// rather than stalling the capture path.
type Device interface {
	// Name returns adapter name for logging.
	Name() string
	// Start begins capture. Fails with mic_permission_denied or
	// mic_unavailable reason codes when the platform refuses.
	Start(ctx context.Context) error
	// Frames returns the block channel; closed when capture ends.
	Frames() <-chan []float32
	// Close releases the device.
	Close() error
}

// Config contains vendor-agnostic capture configuration.
type Config struct {
	SampleRate int
	BlockSize  int
	Channels   int
}

func (c Config) WithDefaults() Config {
	if c.SampleRate == 0 {
		c.SampleRate = 16000
	}
	if c.BlockSize == 0 {
		c.BlockSize = 4096
	}
	if c.Channels == 0 {
		c.Channels = 1
	}
	return c
}

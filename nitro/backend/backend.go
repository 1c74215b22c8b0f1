package backend

import (
	"github.com/oxidane/go-nitro/nitro/video"
)

// Backend represents a display platform for the emulator. Backends are
// responsible for rendering frames to their specific output (terminal,
// SDL window, nothing) and for reporting a quit request back.
type Backend interface {
	// Init configures the backend. Required before calling Update.
	Init(config Config) error

	// Update renders the provided main-screen frame and processes
	// platform events.
	Update(frame *video.FrameBuffer) error

	// Cleanup releases resources when shutting down.
	Cleanup() error
}

// Config holds configuration for backends.
type Config struct {
	Title     string
	Scale     int
	MaxFrames int // headless: stop after this many frames

	// OnQuit is called when the backend requests shutdown (window
	// close, quit key, frame limit reached).
	OnQuit func()
}

package backend

import (
	"log/slog"

	"github.com/oxidane/go-nitro/nitro/video"
)

// HeadlessBackend runs the emulator without any display, for automated
// testing and batch processing.
type HeadlessBackend struct {
	config     Config
	frameCount int
}

func NewHeadlessBackend() *HeadlessBackend {
	return &HeadlessBackend{}
}

func (h *HeadlessBackend) Init(config Config) error {
	h.config = config
	slog.Info("running headless", "frames", config.MaxFrames)
	return nil
}

func (h *HeadlessBackend) Update(frame *video.FrameBuffer) error {
	h.frameCount++

	if h.frameCount%60 == 0 {
		slog.Info("frame progress", "completed", h.frameCount, "total", h.config.MaxFrames)
	}

	if h.config.MaxFrames > 0 && h.frameCount >= h.config.MaxFrames {
		slog.Info("headless execution completed", "frames", h.frameCount)
		if h.config.OnQuit != nil {
			h.config.OnQuit()
		}
	}
	return nil
}

func (h *HeadlessBackend) Cleanup() error {
	return nil
}

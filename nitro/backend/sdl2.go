//go:build sdl2

package backend

import (
	"fmt"
	"unsafe"

	"github.com/oxidane/go-nitro/nitro/video"
	"github.com/veandco/go-sdl2/sdl"
)

// SDL2Backend implements the Backend interface using SDL2 bindings.
// Note: building this requires SDL2 development libraries installed.
// Default builds skip this and use a stubbed renderer, see build tags (sdl2)
type SDL2Backend struct {
	window   *sdl.Window
	renderer *sdl.Renderer
	texture  *sdl.Texture
	config   Config
	rgba     []uint32
}

func NewSDL2Backend() *SDL2Backend {
	return &SDL2Backend{}
}

func (s *SDL2Backend) Init(config Config) error {
	s.config = config
	s.rgba = make([]uint32, video.FramebufferWidth*video.FramebufferHeight)

	if err := sdl.Init(sdl.INIT_VIDEO); err != nil {
		return fmt.Errorf("initializing SDL: %w", err)
	}

	scale := config.Scale
	if scale <= 0 {
		scale = 2
	}
	window, err := sdl.CreateWindow(config.Title,
		sdl.WINDOWPOS_UNDEFINED, sdl.WINDOWPOS_UNDEFINED,
		int32(video.FramebufferWidth*scale), int32(video.FramebufferHeight*scale),
		sdl.WINDOW_SHOWN)
	if err != nil {
		return fmt.Errorf("creating window: %w", err)
	}
	s.window = window

	renderer, err := sdl.CreateRenderer(window, -1, sdl.RENDERER_ACCELERATED)
	if err != nil {
		return fmt.Errorf("creating renderer: %w", err)
	}
	s.renderer = renderer

	texture, err := renderer.CreateTexture(sdl.PIXELFORMAT_ARGB8888,
		sdl.TEXTUREACCESS_STREAMING, video.FramebufferWidth, video.FramebufferHeight)
	if err != nil {
		return fmt.Errorf("creating texture: %w", err)
	}
	s.texture = texture
	return nil
}

func (s *SDL2Backend) Update(frame *video.FrameBuffer) error {
	for event := sdl.PollEvent(); event != nil; event = sdl.PollEvent() {
		switch ev := event.(type) {
		case *sdl.QuitEvent:
			if s.config.OnQuit != nil {
				s.config.OnQuit()
			}
		case *sdl.KeyboardEvent:
			if ev.Type == sdl.KEYDOWN && ev.Keysym.Sym == sdl.K_ESCAPE {
				if s.config.OnQuit != nil {
					s.config.OnQuit()
				}
			}
		}
	}

	frame.ToRGBA(s.rgba)
	if err := s.texture.Update(nil, unsafe.Pointer(&s.rgba[0]), video.FramebufferWidth*4); err != nil {
		return err
	}
	if err := s.renderer.Copy(s.texture, nil, nil); err != nil {
		return err
	}
	s.renderer.Present()
	return nil
}

func (s *SDL2Backend) Cleanup() error {
	if s.texture != nil {
		s.texture.Destroy()
	}
	if s.renderer != nil {
		s.renderer.Destroy()
	}
	if s.window != nil {
		s.window.Destroy()
	}
	sdl.Quit()
	return nil
}

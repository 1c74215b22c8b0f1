package backend

import (
	"fmt"

	"github.com/gdamore/tcell/v2"
	"github.com/oxidane/go-nitro/nitro/video"
)

// TerminalBackend renders frames into the terminal with tcell, packing
// two pixel rows into each character cell with the half-block glyph.
type TerminalBackend struct {
	screen tcell.Screen
	config Config
	quit   bool
	rgba   []uint32
}

func NewTerminalBackend() *TerminalBackend {
	return &TerminalBackend{}
}

func (t *TerminalBackend) Init(config Config) error {
	t.config = config
	t.rgba = make([]uint32, video.FramebufferWidth*video.FramebufferHeight)

	screen, err := tcell.NewScreen()
	if err != nil {
		return fmt.Errorf("creating terminal screen: %w", err)
	}
	if err := screen.Init(); err != nil {
		return fmt.Errorf("initializing terminal screen: %w", err)
	}
	screen.Clear()
	t.screen = screen
	return nil
}

func (t *TerminalBackend) Update(frame *video.FrameBuffer) error {
	t.pollEvents()
	if t.quit {
		if t.config.OnQuit != nil {
			t.config.OnQuit()
		}
		return nil
	}

	frame.ToRGBA(t.rgba)
	for y := 0; y < video.FramebufferHeight; y += 2 {
		for x := 0; x < video.FramebufferWidth; x++ {
			top := t.rgba[y*video.FramebufferWidth+x]
			bottom := t.rgba[(y+1)*video.FramebufferWidth+x]
			style := tcell.StyleDefault.
				Foreground(tcell.NewHexColor(int32(top & 0xFFFFFF))).
				Background(tcell.NewHexColor(int32(bottom & 0xFFFFFF)))
			t.screen.SetContent(x, y/2, '▀', nil, style)
		}
	}
	t.screen.Show()
	return nil
}

func (t *TerminalBackend) pollEvents() {
	for t.screen.HasPendingEvent() {
		event := t.screen.PollEvent()
		switch ev := event.(type) {
		case *tcell.EventKey:
			if ev.Key() == tcell.KeyEscape || ev.Rune() == 'q' {
				t.quit = true
			}
		case *tcell.EventResize:
			t.screen.Sync()
		}
	}
}

func (t *TerminalBackend) Cleanup() error {
	if t.screen != nil {
		t.screen.Fini()
	}
	return nil
}

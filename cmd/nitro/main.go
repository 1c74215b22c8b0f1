package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/urfave/cli"

	"github.com/oxidane/go-nitro/nitro"
	"github.com/oxidane/go-nitro/nitro/backend"
	"github.com/oxidane/go-nitro/nitro/timing"
)

func main() {
	app := cli.NewApp()
	app.Name = "nitro"
	app.Description = "A dual-CPU handheld console emulator"
	app.Usage = "nitro [options] <ROM file>"
	app.Version = "0.1.0"
	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:  "rom",
			Usage: "Path to the ROM file",
		},
		cli.BoolFlag{
			Name:  "gba",
			Usage: "Run in GBA mode (single CPU)",
		},
		cli.BoolFlag{
			Name:  "direct-boot",
			Usage: "Skip the BIOS and jump straight to the cartridge entry points",
		},
		cli.StringFlag{
			Name:  "backend",
			Usage: "Display backend: terminal, sdl2 or headless",
			Value: "terminal",
		},
		cli.BoolFlag{
			Name:  "headless",
			Usage: "Run without a display (same as --backend headless)",
		},
		cli.IntFlag{
			Name:  "frames",
			Usage: "Number of frames to run in headless mode",
			Value: 0,
		},
		cli.IntFlag{
			Name:  "scale",
			Usage: "Window scale factor for the SDL2 backend",
			Value: 2,
		},
	}
	app.Action = runEmulator

	if err := app.Run(os.Args); err != nil {
		slog.Error("error running emulator", "error", err)
		os.Exit(1)
	}
}

func runEmulator(c *cli.Context) error {
	romPath := c.String("rom")
	if romPath == "" {
		if c.NArg() > 0 {
			romPath = c.Args().Get(0)
		} else {
			cli.ShowAppHelp(c)
			return errors.New("no ROM path provided")
		}
	}

	emu, err := nitro.NewWithFile(romPath, c.Bool("gba"), c.Bool("direct-boot"))
	if err != nil {
		return err
	}

	backendName := c.String("backend")
	if c.Bool("headless") {
		backendName = "headless"
	}

	var display backend.Backend
	var limiter timing.Limiter
	switch backendName {
	case "headless":
		if c.Int("frames") <= 0 {
			return errors.New("headless mode requires --frames with a positive value")
		}
		display = backend.NewHeadlessBackend()
		limiter = timing.NewNoOpLimiter()
	case "terminal":
		display = backend.NewTerminalBackend()
		limiter = timing.NewTickerLimiter()
	case "sdl2":
		display = backend.NewSDL2Backend()
		limiter = timing.NewTickerLimiter()
	default:
		return fmt.Errorf("unknown backend %q", backendName)
	}

	running := true
	config := backend.Config{
		Title:     "nitro",
		Scale:     c.Int("scale"),
		MaxFrames: c.Int("frames"),
		OnQuit:    func() { running = false },
	}
	if err := display.Init(config); err != nil {
		return err
	}
	defer display.Cleanup()

	for running {
		emu.RunFrame()
		if err := display.Update(emu.Frame()); err != nil {
			return err
		}
		limiter.WaitForNextFrame()
	}
	return nil
}

package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"golang.org/x/term"

	"github.com/guidoenr/soundcircle/internal/app"
	"github.com/guidoenr/soundcircle/internal/audio"
	"github.com/guidoenr/soundcircle/internal/params"
	"github.com/guidoenr/soundcircle/internal/render"
)

func main() {
	var (
		deviceName   = flag.String("audio-device", "", "Optional PortAudio device name (substring match)")
		audioFile    = flag.String("file", "", "Play a wav, mp3 or flac file instead of capturing input")
		mute         = flag.Bool("mute", false, "Analyze the audio file without playing it")
		noAudio      = flag.Bool("no-audio", false, "Run with synthetic amplitudes")
		targetFPS    = flag.Float64("fps", 60, "Target frames per second")
		bufferSize   = flag.Int("buffer-size", 1024, "Capture buffer size in frames")
		noiseFloor   = flag.Float64("noise-floor", 0, "Amplitude below which input counts as silence (0-1)")
		palette      = flag.String("palette", "default", "Terminal palette ("+strings.Join(render.PaletteNames(), "|")+")")
		showStatus   = flag.Bool("status", true, "Display status bar")
		noColor      = flag.Bool("no-color", false, "Disable ANSI color output")
		useSDL       = flag.Bool("sdl", false, "Render into an SDL window (requires the sdl build tag)")
		windowWidth  = flag.Int("window-width", 500, "SDL window width")
		windowHeight = flag.Int("window-height", 500, "SDL window height")
		configPath   = flag.String("config", "", "JSON file with initial circle parameters")
		profilePath  = flag.String("profile", "", "Append per-frame timings to this CSV file")
		webAddr      = flag.String("web", "", "Serve the control API on this address (e.g. :8080)")
		listDevs     = flag.Bool("list-audio-devices", false, "List available audio input devices and exit")
		debug        = flag.Bool("debug", false, "Enable verbose logging")
	)

	flag.Parse()

	if *targetFPS <= 0 {
		log.Fatalf("fps must be positive (got %.2f)", *targetFPS)
	}
	if *bufferSize <= 0 {
		log.Fatalf("buffer-size must be positive (got %d)", *bufferSize)
	}
	if *noiseFloor < 0 || *noiseFloor >= 1 {
		log.Fatalf("noise-floor must be in [0, 1) (got %.2f)", *noiseFloor)
	}
	if *useSDL && !render.SupportsSDL() {
		log.Fatalf("this binary was built without SDL support; rebuild with -tags sdl")
	}

	logger := log.New(os.Stdout, "[soundcircle] ", log.LstdFlags)
	if !*debug {
		logger.SetOutput(os.Stderr)
		logger.SetFlags(0)
	}

	if *listDevs {
		if err := listDevices(); err != nil {
			logger.Fatalf("list devices: %v", err)
		}
		return
	}

	var initial *params.Parameters
	if *configPath != "" {
		p, err := params.Load(*configPath)
		if err != nil {
			logger.Fatalf("load config: %v", err)
		}
		initial = &p
	}

	width, height := 80, 24
	if fd := int(os.Stdout.Fd()); term.IsTerminal(fd) {
		if w, h, err := term.GetSize(fd); err == nil {
			if w > 0 {
				width = w
			}
			if h > 0 {
				height = h
			}
		}
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := app.New(app.Config{
		DeviceName:    *deviceName,
		AudioFile:     *audioFile,
		Mute:          *mute,
		Width:         width,
		Height:        height,
		TargetFPS:     *targetFPS,
		BufferSize:    *bufferSize,
		NoiseFloor:    *noiseFloor,
		DisableAudio:  *noAudio,
		ShowStatusBar: *showStatus,
		Palette:       *palette,
		UseANSI:       !*noColor,
		SDL:           *useSDL,
		WindowWidth:   *windowWidth,
		WindowHeight:  *windowHeight,
		ProfilePath:   *profilePath,
		WebAddr:       *webAddr,
		Params:        initial,
		Log:           logger,
	})
	if err != nil {
		logger.Fatalf("failed to create app: %v", err)
	}
	defer func() {
		if err := a.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "cleanup error: %v\n", err)
		}
	}()

	if err := a.Run(ctx); err != nil {
		if ctx.Err() != nil {
			fmt.Println("\nExiting...")
			return
		}
		logger.Printf("runtime error: %v", err)
		return
	}

	time.Sleep(50 * time.Millisecond)
}

func listDevices() error {
	if err := audio.Initialize(); err != nil {
		return err
	}
	defer audio.Terminate()

	devices, err := audio.ListDevices()
	if err != nil {
		return err
	}
	auto := ""
	if dev, err := audio.AutoDetectDevice(); err == nil && dev != nil {
		auto = dev.Name
	}
	audio.PrintDevices(os.Stdout, devices, auto)
	return nil
}

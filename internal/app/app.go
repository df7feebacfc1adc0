package app

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"math"
	"math/rand"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/term"

	"github.com/guidoenr/soundcircle/internal/audio"
	"github.com/guidoenr/soundcircle/internal/curve"
	"github.com/guidoenr/soundcircle/internal/engine"
	"github.com/guidoenr/soundcircle/internal/params"
	"github.com/guidoenr/soundcircle/internal/render"
	"github.com/guidoenr/soundcircle/internal/web"
)

// Config configures the application runtime.
type Config struct {
	DeviceName    string
	AudioFile     string
	Mute          bool
	Width         int
	Height        int
	TargetFPS     float64
	BufferSize    int
	NoiseFloor    float64
	DisableAudio  bool
	DisableInput  bool
	ShowStatusBar bool
	Palette       string
	UseANSI       bool
	SDL           bool
	WindowWidth   int
	WindowHeight  int
	ProfilePath   string
	WebAddr       string
	Params        *params.Parameters
	// Source overrides audio selection entirely. The app closes it.
	Source audio.Source
	Out    io.Writer
	Now    func() time.Time
	Log    *log.Logger
}

// App ties together the amplitude source, the engine and the renderer.
type App struct {
	cfg          Config
	store        *params.Store
	engine       *engine.Engine
	renderer     *render.Renderer
	source       audio.Source
	unsubscribe  func()
	ownsAudio    bool
	web          *web.Server
	profiler     *profiler
	log          *log.Logger
	out          *bufio.Writer
	fd           int
	now          func() time.Time
	last         time.Time
	width        int
	height       int
	renderHeight int
	radii        []float64
	inputEvents  chan inputEvent
	paletteReqs  chan string
	rng          *rand.Rand
	selected     int
	closed       bool

	fps     atomic.Uint64
	palette atomic.Pointer[string]
}

// New constructs the application using the provided configuration.
func New(cfg Config) (*App, error) {
	if cfg.TargetFPS <= 0 {
		cfg.TargetFPS = 60
	}
	if cfg.Log == nil {
		cfg.Log = log.New(os.Stderr, "", 0)
	}
	if cfg.Out == nil {
		cfg.Out = os.Stdout
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Width <= 0 {
		cfg.Width = 80
	}
	if cfg.Height <= 0 {
		cfg.Height = 24
	}
	renderHeight := cfg.Height
	if cfg.ShowStatusBar && renderHeight > 1 {
		renderHeight--
	}

	initial := params.Defaults()
	if cfg.Params != nil {
		initial = *cfg.Params
	}

	renderer, err := render.New(cfg.Width, renderHeight, cfg.Palette, cfg.UseANSI)
	if err != nil {
		return nil, err
	}
	if cfg.SDL {
		if err := renderer.EnableSDL(cfg.WindowWidth, cfg.WindowHeight); err != nil {
			return nil, fmt.Errorf("sdl backend: %w", err)
		}
	}

	app := &App{
		cfg:          cfg,
		store:        params.NewStore(initial),
		renderer:     renderer,
		log:          cfg.Log,
		out:          bufio.NewWriterSize(cfg.Out, 64*1024),
		fd:           -1,
		now:          cfg.Now,
		width:        cfg.Width,
		height:       cfg.Height,
		renderHeight: renderHeight,
		paletteReqs:  make(chan string, 4),
		rng:          rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	if f, ok := cfg.Out.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		app.fd = int(f.Fd())
	}
	name := renderer.PaletteName()
	app.palette.Store(&name)

	app.engine = engine.New(engine.Config{
		Params: app.store,
		Now:    cfg.Now,
		Log:    cfg.Log,
	})

	source, err := app.openSource()
	if err != nil {
		_ = renderer.Close()
		return nil, err
	}
	app.source = source
	app.unsubscribe = source.Subscribe(app.engine.OnAmplitudeSample)

	if cfg.WebAddr != "" {
		srv, err := web.NewServer(web.Config{
			Addr:       cfg.WebAddr,
			Store:      app.store,
			Status:     app.Status,
			SetPalette: app.SetPalette,
			Log:        cfg.Log,
		})
		if err != nil {
			_ = app.Close()
			return nil, err
		}
		app.web = srv
	}

	app.profiler = newProfiler(cfg.ProfilePath, cfg.Log)
	app.last = app.now()
	return app, nil
}

// openSource picks the amplitude source. A failing microphone falls back to
// the synthetic generator; a failing audio file is an error.
func (a *App) openSource() (audio.Source, error) {
	cfg := a.cfg
	switch {
	case cfg.Source != nil:
		return cfg.Source, nil
	case cfg.AudioFile != "":
		src, err := audio.OpenFile(context.Background(), audio.FileConfig{
			Path:       cfg.AudioFile,
			Mute:       cfg.Mute,
			NoiseFloor: cfg.NoiseFloor,
		})
		if err != nil {
			return nil, fmt.Errorf("audio file: %w", err)
		}
		a.log.Printf("playing %s @ %d Hz", cfg.AudioFile, int(src.Format().SampleRate))
		return src, nil
	case cfg.DisableAudio:
		a.log.Println("audio disabled, using synthetic generator")
		return audio.NewSynthetic(context.Background(), audio.SyntheticConfig{}), nil
	}

	capture, err := a.openCapture()
	if err != nil {
		a.log.Printf("audio capture unavailable (%v), using synthetic generator", err)
		return audio.NewSynthetic(context.Background(), audio.SyntheticConfig{}), nil
	}
	return capture, nil
}

func (a *App) openCapture() (*audio.Capture, error) {
	if err := audio.Initialize(); err != nil {
		return nil, err
	}
	capture, err := audio.NewCapture(audio.Config{
		DeviceName: a.cfg.DeviceName,
		BufferSize: a.cfg.BufferSize,
		Channels:   2,
		NoiseFloor: a.cfg.NoiseFloor,
	})
	if err != nil {
		audio.Terminate()
		return nil, err
	}
	a.ownsAudio = true
	if info := capture.Device(); info != nil {
		a.log.Printf("audio capture started on \"%s\" @ %.0f Hz", info.Name, capture.SampleRate())
	} else {
		a.log.Printf("audio capture started @ %.0f Hz", capture.SampleRate())
	}
	return capture, nil
}

// Run starts the render loop until context cancellation or a quit request.
func (a *App) Run(ctx context.Context) error {
	frameSeconds := 1.0 / a.cfg.TargetFPS
	frameDuration := time.Duration(frameSeconds * float64(time.Second))
	ticker := time.NewTicker(frameDuration)
	defer ticker.Stop()

	if !a.renderer.Windowed() {
		a.write(enterAltScreen + clearScreen + moveCursorHome + hideCursor)
		defer a.write(showCursor + exitAltScreen)
	}

	inputCtx, cancelInput := context.WithCancel(ctx)
	defer cancelInput()
	if !a.cfg.DisableInput {
		a.startInputListener(inputCtx)
	}

	if a.web != nil {
		go func() {
			if err := a.web.Run(inputCtx); err != nil {
				a.log.Printf("web server stopped: %v", err)
			}
		}()
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case evt, ok := <-a.inputEvents:
			if !ok {
				a.inputEvents = nil
				continue
			}
			if evt == inputEventQuit {
				return nil
			}
			a.handleInput(evt)
		case name := <-a.paletteReqs:
			a.applyPalette(name)
		case <-ticker.C:
			if err := a.step(a.now()); err != nil {
				if errors.Is(err, render.ErrRendererQuit) {
					return nil
				}
				return err
			}
		}
	}
}

// Close releases held resources: the source subscription first, then the
// source itself, then the engine.
func (a *App) Close() error {
	if a.closed {
		return nil
	}
	a.closed = true

	var errs []error
	if a.unsubscribe != nil {
		a.unsubscribe()
		a.unsubscribe = nil
	}
	if a.source != nil {
		if err := a.source.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close source: %w", err))
		}
	}
	if a.ownsAudio {
		audio.Terminate()
		a.ownsAudio = false
	}
	a.engine.Stop()
	if err := a.renderer.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close renderer: %w", err))
	}
	if err := a.profiler.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close profiler: %w", err))
	}
	return errors.Join(errs...)
}

// Store exposes the live parameters.
func (a *App) Store() *params.Store { return a.store }

// Engine exposes the radius engine.
func (a *App) Engine() *engine.Engine { return a.engine }

// Status reports the current state; safe from any goroutine.
func (a *App) Status() web.Status {
	return web.Status{
		Snapshot: a.engine.Snapshot(),
		FPS:      a.FPS(),
		Source:   a.source.Label(),
		Palette:  *a.palette.Load(),
	}
}

// FPS returns the smoothed frame rate.
func (a *App) FPS() float64 {
	return math.Float64frombits(a.fps.Load())
}

// SetPalette queues a palette switch for the render loop.
func (a *App) SetPalette(name string) error {
	if !validPalette(name) {
		return fmt.Errorf("unknown palette %q (want one of %s)", name, strings.Join(render.PaletteNames(), ", "))
	}
	select {
	case a.paletteReqs <- name:
		return nil
	default:
		return errors.New("palette change already pending")
	}
}

func (a *App) applyPalette(name string) {
	a.renderer.Configure(name)
	current := a.renderer.PaletteName()
	a.palette.Store(&current)
	a.log.Printf("palette -> %s", current)
}

func (a *App) step(now time.Time) error {
	a.profiler.beginFrame()
	a.ensureDimensions()

	delta := now.Sub(a.last).Seconds()
	if delta <= 0 {
		delta = 1.0 / a.cfg.TargetFPS
	}
	a.last = now
	a.trackFPS(1.0 / delta)

	a.engine.Tick(now)
	a.profiler.markSection("tick")

	a.radii = a.engine.Radii(a.radii)
	p := a.store.Params()
	path := curve.Build(a.radii, p, curve.Center)
	a.profiler.markSection("build")

	snap := a.engine.Snapshot()
	frame := a.renderer.Render(path, render.Status{
		Phase:    snap.PhaseName,
		Peak:     snap.Peak,
		Points:   snap.Points,
		FPS:      a.FPS(),
		Source:   a.source.Label(),
		Selected: a.selectedLabel(p),
	})
	a.profiler.markSection("render")

	err := a.present(frame)
	a.profiler.markSection("present")
	a.profiler.endFrame()
	return err
}

func (a *App) present(frame render.Frame) error {
	if frame.Present != nil {
		return frame.Present(frame.Status)
	}
	a.out.WriteString(moveCursorHome)
	for _, line := range frame.Lines {
		a.out.WriteString(line)
		a.out.WriteByte('\n')
	}
	if a.cfg.ShowStatusBar {
		a.out.WriteString(statusBar(frame.Status, a.width))
		a.out.WriteByte('\n')
	}
	return a.out.Flush()
}

func (a *App) trackFPS(instant float64) {
	prev := a.FPS()
	next := instant
	if prev > 0 {
		next = prev*0.9 + instant*0.1
	}
	a.fps.Store(math.Float64bits(next))
}

func (a *App) ensureDimensions() {
	if a.fd < 0 {
		return
	}
	w, h, err := term.GetSize(a.fd)
	if err != nil || w <= 0 || h <= 0 {
		return
	}

	renderHeight := h
	if a.cfg.ShowStatusBar && renderHeight > 1 {
		renderHeight--
	}

	if w == a.width && h == a.height && renderHeight == a.renderHeight {
		return
	}

	a.width = w
	a.height = h
	a.renderHeight = renderHeight
	a.renderer.Resize(w, renderHeight)
	a.write(clearScreen)
}

func (a *App) write(s string) {
	a.out.WriteString(s)
	_ = a.out.Flush()
}

func statusBar(text string, width int) string {
	if width <= 0 {
		return text
	}
	runes := []rune(text)
	if len(runes) >= width {
		return string(runes[:width])
	}
	return text + strings.Repeat(" ", width-len(runes))
}

func validPalette(name string) bool {
	for _, n := range render.PaletteNames() {
		if n == name {
			return true
		}
	}
	return false
}

const (
	clearScreen    = "\x1b[2J"
	moveCursorHome = "\x1b[H"
	hideCursor     = "\x1b[?25l"
	showCursor     = "\x1b[?25h"
	enterAltScreen = "\x1b[?1049h"
	exitAltScreen  = "\x1b[?1049l\x1b[0m"
)

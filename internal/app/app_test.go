package app

import (
	"bytes"
	"context"
	"io"
	"log"
	"math/rand"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/eiannone/keyboard"
	"github.com/stretchr/testify/require"

	"github.com/guidoenr/soundcircle/internal/audio"
	"github.com/guidoenr/soundcircle/internal/params"
)

type fakeSource struct {
	audio.Emitter
	closed int
}

func (f *fakeSource) Label() string { return "fake" }

func (f *fakeSource) Close() error {
	f.closed++
	f.Emitter.Close()
	return nil
}

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func (c *clock) advance(d time.Duration) time.Time {
	c.t = c.t.Add(d)
	return c.t
}

func newTestApp(t *testing.T, mutate func(*Config)) (*App, *fakeSource, *bytes.Buffer, *clock) {
	t.Helper()
	src := &fakeSource{}
	out := &bytes.Buffer{}
	clk := &clock{t: time.Unix(1_700_000_000, 0)}
	cfg := Config{
		Width:         40,
		Height:        21,
		ShowStatusBar: true,
		Palette:       "box",
		DisableInput:  true,
		Source:        src,
		Out:           out,
		Now:           clk.now,
		Log:           log.New(io.Discard, "", 0),
	}
	if mutate != nil {
		mutate(&cfg)
	}
	a, err := New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	return a, src, out, clk
}

func TestNewSubscribesEngine(t *testing.T) {
	a, src, _, _ := newTestApp(t, nil)
	require.Equal(t, 1, src.Subscribers())

	src.Emit(0.4)
	require.Equal(t, "fake", a.Status().Source)
	require.Equal(t, "box", a.Status().Palette)
}

func TestStepWritesFrame(t *testing.T) {
	a, _, out, clk := newTestApp(t, nil)

	require.NoError(t, a.step(clk.advance(16*time.Millisecond)))

	text := out.String()
	require.True(t, strings.HasPrefix(text, moveCursorHome))
	lines := strings.Split(strings.TrimSuffix(strings.TrimPrefix(text, moveCursorHome), "\n"), "\n")
	require.Len(t, lines, 21)
	require.Contains(t, lines[20], "points 150")
	require.Len(t, []rune(lines[20]), 40)
	require.True(t, strings.ContainsAny(text, "░▒▓█"))
	require.Positive(t, a.FPS())
}

func TestStepFollowsAmplitude(t *testing.T) {
	a, src, _, clk := newTestApp(t, nil)

	src.Emit(0.5)
	require.NoError(t, a.step(clk.advance(50*time.Millisecond)))
	snap := a.Engine().Snapshot()
	require.Equal(t, "approaching", snap.PhaseName)
	require.Greater(t, snap.Peak, 0.0)
}

func TestCloseReleasesSource(t *testing.T) {
	a, src, _, _ := newTestApp(t, nil)

	require.NoError(t, a.Close())
	require.NoError(t, a.Close())
	require.Equal(t, 1, src.closed)
	require.Zero(t, src.Subscribers())
	require.True(t, a.Engine().Stopped())
}

func TestDisableAudioUsesSynthetic(t *testing.T) {
	a, err := New(Config{
		DisableAudio: true,
		DisableInput: true,
		Out:          io.Discard,
		Log:          log.New(io.Discard, "", 0),
	})
	require.NoError(t, err)
	defer a.Close()
	require.Equal(t, "synthetic", a.Status().Source)
}

func TestMissingAudioFileFails(t *testing.T) {
	_, err := New(Config{
		AudioFile:    "/does/not/exist.wav",
		Mute:         true,
		DisableInput: true,
		Out:          io.Discard,
		Log:          log.New(io.Discard, "", 0),
	})
	require.ErrorContains(t, err, "audio file")
}

func TestInitialParams(t *testing.T) {
	p := params.Defaults()
	p.PointCount = 12
	a, _, _, _ := newTestApp(t, func(c *Config) { c.Params = &p })
	require.Equal(t, 12, a.Store().Params().PointCount)
	require.Equal(t, 12, a.Engine().Snapshot().Points)
}

func TestRunStopsOnCancel(t *testing.T) {
	a, _, out, _ := newTestApp(t, func(c *Config) {
		c.Now = time.Now
		c.TargetFPS = 200
	})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := a.Run(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	text := out.String()
	require.True(t, strings.HasPrefix(text, enterAltScreen))
	require.True(t, strings.HasSuffix(text, showCursor+exitAltScreen))
}

func TestRunAppliesPaletteRequests(t *testing.T) {
	a, _, _, _ := newTestApp(t, func(c *Config) { c.Now = time.Now })

	require.NoError(t, a.SetPalette("braille"))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	require.Eventually(t, func() bool { return a.Status().Palette == "braille" }, time.Second, time.Millisecond)
	cancel()
	<-done
}

func TestSetPaletteValidates(t *testing.T) {
	a, _, _, _ := newTestApp(t, nil)
	require.ErrorContains(t, a.SetPalette("neon"), "unknown palette")

	for i := 0; i < cap(a.paletteReqs); i++ {
		require.NoError(t, a.SetPalette("lines"))
	}
	require.ErrorContains(t, a.SetPalette("lines"), "pending")
}

func TestHandleInputSelection(t *testing.T) {
	a, _, _, _ := newTestApp(t, nil)
	n := len(params.Options())

	a.handleInput(inputEventSelectPrev)
	require.Equal(t, n-1, a.selected)
	a.handleInput(inputEventSelectNext)
	require.Equal(t, 0, a.selected)

	a.handleInput(inputEventIncrease)
	require.Equal(t, 151.0, a.Store().Params().BaseRadius)
	a.handleInput(inputEventDecrease)
	a.handleInput(inputEventDecrease)
	require.Equal(t, 149.0, a.Store().Params().BaseRadius)
}

func TestHandleInputToggles(t *testing.T) {
	a, _, _, _ := newTestApp(t, nil)

	a.handleInput(inputEventToggleFill)
	require.True(t, a.Store().Params().Fill)
	a.handleInput(inputEventTogglePointy)
	require.True(t, a.Store().Params().PointyDistortion)
	a.handleInput(inputEventToggleFill)
	require.False(t, a.Store().Params().Fill)
}

func TestHandleInputCyclesPalette(t *testing.T) {
	a, _, _, _ := newTestApp(t, nil)

	a.handleInput(inputEventCyclePalette)
	require.NotEqual(t, "box", a.renderer.PaletteName())
	require.Equal(t, a.renderer.PaletteName(), a.Status().Palette)
}

func TestRandomizeStaysInRange(t *testing.T) {
	a, _, _, _ := newTestApp(t, nil)
	a.rng = rand.New(rand.NewSource(7))

	for i := 0; i < 50; i++ {
		a.handleInput(inputEventRandomize)
		p := a.Store().Params()
		require.GreaterOrEqual(t, p.MaxDistortion, 0.0)
		require.LessOrEqual(t, p.MaxDistortion, 1.0)
		require.GreaterOrEqual(t, p.PointCount, 2)
		require.LessOrEqual(t, p.PointCount, 300)
		require.GreaterOrEqual(t, p.PulseTime, 0.0)
		require.LessOrEqual(t, p.PulseTime, 1.0)
		require.Equal(t, 150.0, p.BaseRadius)
	}
}

func TestRandomStep(t *testing.T) {
	opt, ok := params.LookupOption(params.OptPointCount)
	require.True(t, ok)

	require.Equal(t, 2.0, randomStep(opt, func(int) int { return 0 }))
	require.Equal(t, 300.0, randomStep(opt, func(n int) int { return n - 1 }))

	opt, _ = params.LookupOption(params.OptMaxDistortion)
	var seen int
	randomStep(opt, func(n int) int { seen = n; return 0 })
	require.Equal(t, 101, seen)
}

func TestTranslateKey(t *testing.T) {
	cases := []struct {
		char rune
		key  keyboard.Key
		want inputEvent
	}{
		{0, keyboard.KeyEsc, inputEventQuit},
		{0, keyboard.KeyCtrlC, inputEventQuit},
		{'q', 0, inputEventQuit},
		{'R', 0, inputEventRandomize},
		{'f', 0, inputEventToggleFill},
		{'p', 0, inputEventTogglePointy},
		{'c', 0, inputEventCyclePalette},
		{0, keyboard.KeyArrowUp, inputEventSelectPrev},
		{0, keyboard.KeyArrowDown, inputEventSelectNext},
		{0, keyboard.KeyArrowLeft, inputEventDecrease},
		{0, keyboard.KeyArrowRight, inputEventIncrease},
	}
	for _, tc := range cases {
		got, ok := translateKey(tc.char, tc.key)
		require.True(t, ok, "char %q key %v", tc.char, tc.key)
		require.Equal(t, tc.want, got)
	}

	_, ok := translateKey('z', 0)
	require.False(t, ok)
}

func TestSelectedLabel(t *testing.T) {
	a, _, _, _ := newTestApp(t, nil)
	p := params.Defaults()

	require.Equal(t, "Radius 150", a.selectedLabel(p))
	a.selected = 1
	require.Equal(t, "Fill? false", a.selectedLabel(p))
	a.selected = 4
	require.Equal(t, "Distortion 0.30", a.selectedLabel(p))
	a.selected = 7
	require.Equal(t, "Circle decay rate 0.3", a.selectedLabel(p))
}

func TestStatusBar(t *testing.T) {
	require.Equal(t, "abc  ", statusBar("abc", 5))
	require.Equal(t, "ab", statusBar("abc", 2))
	require.Equal(t, "abc", statusBar("abc", 0))
	require.Equal(t, "é…", statusBar("é…x", 2))
}

func TestProfilerWritesCSV(t *testing.T) {
	path := t.TempDir() + "/profile.csv"
	a, _, _, clk := newTestApp(t, func(c *Config) { c.ProfilePath = path })

	require.NoError(t, a.step(clk.advance(16*time.Millisecond)))
	require.NoError(t, a.Close())

	data := readFile(t, path)
	lines := strings.Split(strings.TrimSpace(data), "\n")
	require.Equal(t, "timestamp,frame,section,delta_ms", lines[0])
	require.Len(t, lines, 6)
	require.Contains(t, lines[1], ",1,tick,")
	require.Contains(t, lines[5], ",1,frame_total,")
}

func TestNilProfiler(t *testing.T) {
	var p *profiler
	p.beginFrame()
	p.markSection("x")
	p.endFrame()
	require.NoError(t, p.Close())
	require.Nil(t, newProfiler("", nil))
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

package audio

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gopxl/beep"
	"github.com/gordonklaus/portaudio"
	"github.com/gopxl/beep/wav"
	"github.com/stretchr/testify/require"
)

func TestEmitterFanOut(t *testing.T) {
	var e Emitter
	var a, b []float64

	cancelA := e.Subscribe(func(v float64) { a = append(a, v) })
	e.Subscribe(func(v float64) { b = append(b, v) })
	require.Equal(t, 2, e.Subscribers())

	e.Emit(0.1)
	cancelA()
	cancelA()
	e.Emit(0.2)

	require.Equal(t, []float64{0.1}, a)
	require.Equal(t, []float64{0.1, 0.2}, b)
	require.Equal(t, 1, e.Subscribers())
}

func TestEmitterSelfCancel(t *testing.T) {
	var e Emitter
	calls := 0
	var cancel func()
	cancel = e.Subscribe(func(float64) {
		calls++
		cancel()
	})

	e.Emit(1)
	e.Emit(1)
	require.Equal(t, 1, calls)
}

func TestEmitterClose(t *testing.T) {
	var e Emitter
	calls := 0
	e.Subscribe(func(float64) { calls++ })
	e.Close()
	e.Emit(1)

	cancel := e.Subscribe(func(float64) { calls++ })
	e.Emit(1)
	cancel()

	require.Zero(t, calls)
	require.Zero(t, e.Subscribers())
}

func TestEmitterNilCallback(t *testing.T) {
	var e Emitter
	cancel := e.Subscribe(nil)
	require.NotNil(t, cancel)
	require.Zero(t, e.Subscribers())
}

func TestEmitterConcurrent(t *testing.T) {
	var e Emitter
	var total atomic.Int64
	var wg sync.WaitGroup

	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			cancel := e.Subscribe(func(float64) { total.Add(1) })
			for j := 0; j < 100; j++ {
				e.Emit(0.5)
			}
			cancel()
		}()
	}
	wg.Wait()
	require.Positive(t, total.Load())
	require.Zero(t, e.Subscribers())
}

type constRand float64

func (c constRand) Float64() float64 { return float64(c) }

func TestSynthesize(t *testing.T) {
	require.InDelta(t, 0.5*0.125, synthesize(constRand(0.5)), 1e-12)
	require.Zero(t, synthesize(constRand(0)))
}

func TestSyntheticEmitsUntilClosed(t *testing.T) {
	s := NewSynthetic(context.Background(), SyntheticConfig{
		Interval: time.Millisecond,
		Rand:     constRand(0.8),
	})
	require.Equal(t, "synthetic", s.Label())

	var got atomic.Int64
	var last atomic.Value
	s.Subscribe(func(v float64) {
		got.Add(1)
		last.Store(v)
	})

	require.Eventually(t, func() bool { return got.Load() >= 3 }, time.Second, time.Millisecond)
	require.InDelta(t, 0.8*0.8*0.8*0.5, last.Load().(float64), 1e-12)

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
	n := got.Load()
	time.Sleep(10 * time.Millisecond)
	require.Equal(t, n, got.Load())
}

func TestSyntheticStopsOnContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	s := NewSynthetic(ctx, SyntheticConfig{Interval: time.Millisecond})
	cancel()

	select {
	case <-s.done:
	case <-time.After(time.Second):
		t.Fatal("synthetic source kept running after cancel")
	}
	require.NoError(t, s.Close())
}

// writeTone writes a mono WAV whose samples are all v.
func writeTone(t *testing.T, v float64, frames int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tone.wav")
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	tone := beep.Take(frames, beep.StreamerFunc(func(samples [][2]float64) (int, bool) {
		for i := range samples {
			samples[i] = [2]float64{v, v}
		}
		return len(samples), true
	}))
	format := beep.Format{SampleRate: 8000, NumChannels: 1, Precision: 2}
	require.NoError(t, wav.Encode(f, tone, format))
	return path
}

func TestLevelTapBlocks(t *testing.T) {
	var got []float64
	tap := &levelTap{
		src: beep.StreamerFunc(func(samples [][2]float64) (int, bool) {
			for i := range samples {
				samples[i] = [2]float64{-0.4, 0.2}
			}
			return len(samples), true
		}),
		block: 4,
		emit:  func(v float64) { got = append(got, v) },
	}

	buf := make([][2]float64, 10)
	n, ok := tap.Stream(buf)
	require.True(t, ok)
	require.Equal(t, 10, n)
	require.Len(t, got, 2)
	require.InDelta(t, 0.1, got[0], 1e-12)
	require.Equal(t, 2, tap.count)
	require.NoError(t, tap.Err())
}

func TestOpenFileMuted(t *testing.T) {
	path := writeTone(t, 0.5, 800)

	src, err := OpenFile(context.Background(), FileConfig{Path: path, Mute: true, BlockFrames: 80})
	require.NoError(t, err)
	require.Equal(t, "file:tone.wav", src.Label())
	require.Equal(t, beep.SampleRate(8000), src.Format().SampleRate)

	values := make(chan float64, 64)
	src.Subscribe(func(v float64) {
		select {
		case values <- v:
		default:
		}
	})

	select {
	case v := <-values:
		require.InDelta(t, 0.5, v, 1e-3)
	case <-time.After(2 * time.Second):
		t.Fatal("no level emitted")
	}
	require.NoError(t, src.Close())
}

func TestOpenFileErrors(t *testing.T) {
	_, err := OpenFile(context.Background(), FileConfig{Path: filepath.Join(t.TempDir(), "missing.wav"), Mute: true})
	require.Error(t, err)

	other := filepath.Join(t.TempDir(), "notes.txt")
	require.NoError(t, os.WriteFile(other, []byte("hello"), 0o644))
	_, err = OpenFile(context.Background(), FileConfig{Path: other, Mute: true})
	require.ErrorContains(t, err, "unsupported")

	bad := filepath.Join(t.TempDir(), "bad.wav")
	require.NoError(t, os.WriteFile(bad, []byte("not a wave file"), 0o644))
	_, err = OpenFile(context.Background(), FileConfig{Path: bad, Mute: true})
	require.ErrorContains(t, err, "decode")
}

func TestPickBestDevice(t *testing.T) {
	mic := &portaudio.DeviceInfo{Index: 0, Name: "USB Mic", MaxInputChannels: 1}
	monitor := &portaudio.DeviceInfo{Index: 1, Name: "Monitor of Speakers", MaxInputChannels: 2}
	output := &portaudio.DeviceInfo{Index: 2, Name: "Speakers", MaxOutputChannels: 2}
	devices := []*portaudio.DeviceInfo{output, mic, monitor, nil}

	none := devicePreference{defaultInput: -1, hostInput: -1}
	require.Same(t, monitor, pickBestDevice(devices, none))
	require.Same(t, mic, pickBestDevice(devices, devicePreference{defaultInput: 0, hostInput: -1}))
	require.Nil(t, pickBestDevice([]*portaudio.DeviceInfo{output}, none))
	require.Zero(t, scoreDevice(output, none))
}

func TestMatchDevice(t *testing.T) {
	devices := []*portaudio.DeviceInfo{
		{Name: "Built-in Output", MaxOutputChannels: 2},
		{Name: "Built-in Microphone", MaxInputChannels: 1},
	}
	require.Equal(t, "Built-in Microphone", matchDevice(devices, "BUILT-IN").Name)
	require.Nil(t, matchDevice(devices, "usb"))
}

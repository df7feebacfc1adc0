package audio

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gopxl/beep"
	"github.com/gopxl/beep/flac"
	"github.com/gopxl/beep/mp3"
	"github.com/gopxl/beep/speaker"
	"github.com/gopxl/beep/wav"

	"github.com/guidoenr/soundcircle/internal/analyzer"
)

// DefaultBlockFrames is how many frames are averaged into one emitted value.
const DefaultBlockFrames = 1024

// FileConfig controls a File source.
type FileConfig struct {
	Path string
	// Mute paces the file in real time without opening the speaker.
	Mute        bool
	BlockFrames int
	NoiseFloor  float64
}

// File plays an audio file in a loop and emits the amplitude of every block
// of frames as it is played.
type File struct {
	Emitter

	path     string
	file     *os.File
	streamer beep.StreamSeekCloser
	format   beep.Format
	tap      *levelTap
	mute     bool

	cancel    context.CancelFunc
	done      chan struct{}
	closeOnce sync.Once
	closeErr  error
}

// OpenFile decodes cfg.Path (WAV, MP3 or FLAC) and starts playback.
func OpenFile(ctx context.Context, cfg FileConfig) (*File, error) {
	if cfg.BlockFrames <= 0 {
		cfg.BlockFrames = DefaultBlockFrames
	}

	f, err := os.Open(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("open audio file: %w", err)
	}

	streamer, format, err := decode(f, cfg.Path)
	if err != nil {
		_ = f.Close()
		return nil, err
	}

	src := &File{
		path:     cfg.Path,
		file:     f,
		streamer: streamer,
		format:   format,
		mute:     cfg.Mute,
		done:     make(chan struct{}),
	}
	src.tap = &levelTap{
		src:   beep.Loop(-1, streamer),
		block: cfg.BlockFrames,
		floor: cfg.NoiseFloor,
		emit:  src.Emit,
	}

	ctx, src.cancel = context.WithCancel(ctx)
	if cfg.Mute {
		go src.pace(ctx)
		return src, nil
	}

	bufferSize := format.SampleRate.N(time.Second / 20)
	if err := speaker.Init(format.SampleRate, bufferSize); err != nil {
		src.cancel()
		_ = streamer.Close()
		_ = f.Close()
		return nil, fmt.Errorf("init speaker: %w", err)
	}
	speaker.Play(src.tap)
	go func() {
		defer close(src.done)
		<-ctx.Done()
	}()
	return src, nil
}

func decode(f *os.File, path string) (beep.StreamSeekCloser, beep.Format, error) {
	var (
		streamer beep.StreamSeekCloser
		format   beep.Format
		err      error
	)
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".wav":
		streamer, format, err = wav.Decode(f)
	case ".mp3":
		streamer, format, err = mp3.Decode(f)
	case ".flac":
		streamer, format, err = flac.Decode(f)
	default:
		return nil, beep.Format{}, fmt.Errorf("unsupported audio file type %q", ext)
	}
	if err != nil {
		return nil, beep.Format{}, fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}
	return streamer, format, nil
}

// Label names the file being played.
func (s *File) Label() string { return "file:" + filepath.Base(s.path) }

// Format returns the decoded stream format.
func (s *File) Format() beep.Format { return s.format }

// Close stops playback and releases the file.
func (s *File) Close() error {
	s.closeOnce.Do(func() {
		s.Emitter.Close()
		s.cancel()
		<-s.done
		if !s.mute {
			speaker.Clear()
			speaker.Close()
		}
		s.closeErr = s.streamer.Close()
		_ = s.file.Close()
	})
	return s.closeErr
}

// pace pulls one block per block duration, standing in for the speaker.
func (s *File) pace(ctx context.Context) {
	defer close(s.done)

	buf := make([][2]float64, s.tap.block)
	ticker := time.NewTicker(s.format.SampleRate.D(s.tap.block))
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, ok := s.tap.Stream(buf); !ok {
				return
			}
		}
	}
}

// levelTap passes samples through and emits the mean absolute mono level of
// every full block.
type levelTap struct {
	src   beep.Streamer
	block int
	floor float64
	emit  func(float64)

	sum   float64
	count int
}

func (t *levelTap) Stream(samples [][2]float64) (int, bool) {
	n, ok := t.src.Stream(samples)
	for _, s := range samples[:n] {
		t.sum += math.Abs((s[0] + s[1]) / 2)
		t.count++
		if t.count == t.block {
			t.emit(analyzer.Gate(t.sum/float64(t.count), t.floor))
			t.sum, t.count = 0, 0
		}
	}
	return n, ok
}

func (t *levelTap) Err() error { return t.src.Err() }

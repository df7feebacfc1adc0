package audio

import (
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/gordonklaus/portaudio"

	"github.com/guidoenr/soundcircle/internal/analyzer"
)

// Capture wraps a PortAudio input stream and emits the amplitude of every
// buffer it delivers.
type Capture struct {
	Emitter

	stream     *portaudio.Stream
	sampleRate float64
	channels   int
	device     *portaudio.DeviceInfo
	analyzer   *analyzer.Analyzer

	level     atomic.Pointer[analyzer.Level]
	closeOnce sync.Once
	closeErr  error
}

// Config controls how a Capture instance is created.
type Config struct {
	DeviceName string
	BufferSize int
	Channels   int
	NoiseFloor float64
}

const defaultBufferSize = 1024

// NewCapture opens and starts a PortAudio input stream. PortAudio must be
// initialised first.
func NewCapture(cfg Config) (*Capture, error) {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = defaultBufferSize
	}
	if cfg.Channels <= 0 {
		cfg.Channels = 1
	}

	device, err := findDevice(cfg.DeviceName)
	if err != nil {
		return nil, err
	}
	if device.MaxInputChannels < cfg.Channels {
		cfg.Channels = device.MaxInputChannels
	}

	inParams := portaudio.StreamDeviceParameters{
		Device:   device,
		Channels: cfg.Channels,
		Latency:  device.DefaultLowInputLatency,
	}

	sampleRate := device.DefaultSampleRate

	capture := &Capture{
		sampleRate: sampleRate,
		channels:   cfg.Channels,
		device:     device,
		analyzer: analyzer.New(analyzer.Config{
			Channels:   cfg.Channels,
			NoiseFloor: cfg.NoiseFloor,
		}),
	}

	framesPerBuffer := cfg.BufferSize / cfg.Channels
	if framesPerBuffer < 64 {
		framesPerBuffer = portaudio.FramesPerBufferUnspecified
	}

	stream, err := portaudio.OpenStream(portaudio.StreamParameters{
		Input:           inParams,
		Output:          portaudio.StreamDeviceParameters{},
		SampleRate:      sampleRate,
		FramesPerBuffer: framesPerBuffer,
	}, capture.process)
	if err != nil {
		return nil, fmt.Errorf("open stream: %w", err)
	}

	capture.stream = stream

	if err := capture.stream.Start(); err != nil {
		_ = capture.stream.Close()
		return nil, fmt.Errorf("start stream: %w", err)
	}

	return capture, nil
}

// Close stops and closes the underlying PortAudio stream. Subscribers are
// dropped first so no value is delivered afterwards.
func (c *Capture) Close() error {
	c.closeOnce.Do(func() {
		c.Emitter.Close()
		if c.stream == nil {
			return
		}
		if err := c.stream.Stop(); err != nil && !errorsIsInvalidStreamState(err) {
			c.closeErr = err
			return
		}
		c.closeErr = c.stream.Close()
	})
	return c.closeErr
}

// Label names the capture device.
func (c *Capture) Label() string {
	if c.device == nil {
		return "mic"
	}
	return "mic:" + c.device.Name
}

// SampleRate returns the stream sample rate.
func (c *Capture) SampleRate() float64 {
	return c.sampleRate
}

// Device returns the PortAudio device associated with the capture stream.
func (c *Capture) Device() *portaudio.DeviceInfo {
	return c.device
}

// Level returns the measurement of the latest buffer.
func (c *Capture) Level() analyzer.Level {
	if l := c.level.Load(); l != nil {
		return *l
	}
	return analyzer.Level{}
}

func (c *Capture) process(in []float32) {
	lvl := c.analyzer.Analyze(in)
	c.level.Store(&lvl)
	c.Emit(lvl.Gated)
}

func findDevice(name string) (*portaudio.DeviceInfo, error) {
	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("list audio devices: %w", err)
	}

	if name != "" {
		if dev := matchDevice(devices, name); dev != nil {
			return dev, nil
		}
		return nil, fmt.Errorf("audio device %q: %w", name, ErrNoDevice)
	}

	pref := devicePreference{defaultInput: -1, hostInput: -1}
	if dev, err := portaudio.DefaultInputDevice(); err == nil && dev != nil {
		if dev.MaxInputChannels > 0 {
			return dev, nil
		}
		pref.defaultInput = dev.Index
	}
	if host, err := portaudio.DefaultHostApi(); err == nil && host != nil && host.DefaultInputDevice != nil {
		if host.DefaultInputDevice.MaxInputChannels > 0 {
			return host.DefaultInputDevice, nil
		}
		pref.hostInput = host.DefaultInputDevice.Index
	}

	if dev := pickBestDevice(devices, pref); dev != nil {
		return dev, nil
	}
	return nil, ErrNoDevice
}

// matchDevice returns the first input device whose name contains name,
// ignoring case.
func matchDevice(devices []*portaudio.DeviceInfo, name string) *portaudio.DeviceInfo {
	name = strings.ToLower(name)
	for _, d := range devices {
		if d == nil || d.MaxInputChannels <= 0 {
			continue
		}
		if strings.Contains(strings.ToLower(d.Name), name) {
			return d
		}
	}
	return nil
}

type devicePreference struct {
	defaultInput int
	hostInput    int
}

var loopbackKeywords = []string{"monitor", "loopback", "stereo mix", "what u hear", "mix"}

// scoreDevice ranks input devices; zero means unusable.
func scoreDevice(d *portaudio.DeviceInfo, pref devicePreference) int {
	if d == nil || d.MaxInputChannels <= 0 {
		return 0
	}
	score := d.MaxInputChannels
	if d.Index == pref.defaultInput {
		score += 50
	}
	if d.Index == pref.hostInput {
		score += 40
	}
	lower := strings.ToLower(d.Name)
	for _, kw := range loopbackKeywords {
		if strings.Contains(lower, kw) {
			score += 20
			break
		}
	}
	if strings.Contains(lower, "default") {
		score += 10
	}
	return score
}

func pickBestDevice(devices []*portaudio.DeviceInfo, pref devicePreference) *portaudio.DeviceInfo {
	var (
		best      *portaudio.DeviceInfo
		bestScore int
	)
	for _, d := range devices {
		score := scoreDevice(d, pref)
		if score == 0 {
			continue
		}
		if best == nil || score > bestScore ||
			(score == bestScore && strings.ToLower(d.Name) < strings.ToLower(best.Name)) {
			best, bestScore = d, score
		}
	}
	return best
}

// errorsIsInvalidStreamState checks if the provided error stems from stopping an already stopped stream.
func errorsIsInvalidStreamState(err error) bool {
	if err == nil {
		return false
	}
	const invalidStateMsg = "PaErrorCode -9986"
	return strings.Contains(err.Error(), invalidStateMsg)
}

// AutoDetectDevice returns the best available input device PortAudio can find.
func AutoDetectDevice() (*portaudio.DeviceInfo, error) {
	return findDevice("")
}

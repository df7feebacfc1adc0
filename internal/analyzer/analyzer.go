package analyzer

import "math"

// Analyzer turns raw capture buffers into amplitude levels. It keeps a small
// amount of state and is meant to be driven from a single goroutine, usually
// the audio callback.
type Analyzer struct {
	channels   int
	noiseFloor float64

	envelope float64
	mono     []float32
}

// Config controls Analyzer behaviour.
type Config struct {
	// Channels is the number of interleaved channels in each buffer.
	Channels int
	// NoiseFloor gates levels at or below it to silence.
	NoiseFloor float64
}

// New creates an Analyzer.
func New(cfg Config) *Analyzer {
	if cfg.Channels <= 0 {
		cfg.Channels = 1
	}
	return &Analyzer{
		channels:   cfg.Channels,
		noiseFloor: clamp(cfg.NoiseFloor, 0, 0.99),
	}
}

// Analyze measures one interleaved buffer.
func (a *Analyzer) Analyze(samples []float32) Level {
	if len(samples) == 0 {
		return Level{Envelope: a.envelope}
	}

	mono := samples
	if a.channels > 1 {
		a.mono = mixInto(a.mono[:0], samples, a.channels)
		mono = a.mono
	}

	mean := MeanAbs(mono)
	a.envelope = envelope(a.envelope, mean, 0.94, 0.75)

	return Level{
		Mean:     mean,
		Gated:    Gate(mean, a.noiseFloor),
		Envelope: a.envelope,
	}
}

// envelope follows rises quickly and falls slowly.
func envelope(prev, value, fall, rise float64) float64 {
	if value > prev {
		return prev*(1-rise) + value*rise
	}
	return math.Max(value, prev*fall)
}

func clamp(v, min, max float64) float64 {
	if math.IsNaN(v) {
		return min
	}
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

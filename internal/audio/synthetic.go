package audio

import (
	"context"
	"math/rand"
	"sync"
	"time"
)

// SyntheticInterval is how often the synthetic source emits.
const SyntheticInterval = 16 * time.Millisecond

// Rand is a uniform [0, 1) source.
type Rand interface {
	Float64() float64
}

// SyntheticConfig controls a Synthetic source. Zero values pick defaults.
type SyntheticConfig struct {
	Interval time.Duration
	Rand     Rand
}

// Synthetic is the stand-in source used when no audio device is available.
// Each value is the product of three uniforms scaled by 0.5, so small values
// dominate and large spikes are rare.
type Synthetic struct {
	Emitter

	rng      Rand
	interval time.Duration

	cancel    context.CancelFunc
	done      chan struct{}
	closeOnce sync.Once
}

// NewSynthetic starts emitting until ctx is cancelled or Close is called.
func NewSynthetic(ctx context.Context, cfg SyntheticConfig) *Synthetic {
	if cfg.Interval <= 0 {
		cfg.Interval = SyntheticInterval
	}
	if cfg.Rand == nil {
		cfg.Rand = rand.New(rand.NewSource(time.Now().UnixNano()))
	}

	ctx, cancel := context.WithCancel(ctx)
	s := &Synthetic{
		rng:      cfg.Rand,
		interval: cfg.Interval,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	go s.run(ctx)
	return s
}

// Label names the source.
func (s *Synthetic) Label() string { return "synthetic" }

// Close stops the generator and waits for it to exit.
func (s *Synthetic) Close() error {
	s.closeOnce.Do(func() {
		s.cancel()
		<-s.done
		s.Emitter.Close()
	})
	return nil
}

func (s *Synthetic) run(ctx context.Context) {
	defer close(s.done)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Emit(synthesize(s.rng))
		}
	}
}

func synthesize(rng Rand) float64 {
	return rng.Float64() * rng.Float64() * rng.Float64() * 0.5
}

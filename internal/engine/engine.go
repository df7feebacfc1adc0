package engine

import (
	"io"
	"log"
	"math"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/guidoenr/soundcircle/internal/params"
)

// Rand is the uniform [0, 1) source used to jitter pulse targets.
type Rand interface {
	Float64() float64
}

// Config wires an Engine to its collaborators. Only Params is required.
type Config struct {
	Params params.Source
	Rand   Rand
	Now    func() time.Time
	Log    *log.Logger
}

// Phase is the animation phase of the current pulse.
type Phase int

const (
	// Approaching interpolates radii toward freshly rolled pulse targets.
	Approaching Phase = iota
	// Settling decays radii linearly back toward the base radius.
	Settling
)

func (p Phase) String() string {
	switch p {
	case Approaching:
		return "approaching"
	case Settling:
		return "settling"
	default:
		return "unknown"
	}
}

const (
	minPoints = 2
	// radii beyond this multiple of the largest legal pulse radius are
	// treated as divergent
	divergenceFactor = 1000
)

// Engine owns the per-point radius state of the sound circle.
//
// OnAmplitudeSample may be called from any goroutine. Tick, Radii and Stop
// are meant for the animation goroutine, although Stop is safe anywhere.
// Snapshot is safe from any goroutine.
type Engine struct {
	src params.Source
	now func() time.Time
	log *log.Logger

	randMu sync.Mutex
	rng    Rand

	life    sync.RWMutex
	stopped bool

	pulse atomic.Pointer[pulse]
	n     atomic.Int64

	// owned by Tick
	radii    []float64
	lastTick time.Time
	phase    Phase

	snap atomic.Pointer[Snapshot]
}

// New creates an engine seeded at the base radius.
func New(cfg Config) *Engine {
	if cfg.Params == nil {
		cfg.Params = params.Defaults()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Rand == nil {
		cfg.Rand = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if cfg.Log == nil {
		cfg.Log = log.New(io.Discard, "", 0)
	}

	e := &Engine{
		src: cfg.Params,
		now: cfg.Now,
		log: cfg.Log,
		rng: cfg.Rand,
	}
	now := e.now()
	s := settingsFrom(e.src.Params())
	e.reseed(s, now)
	e.lastTick = now
	e.publish(e.pulse.Load())
	return e
}

// OnAmplitudeSample feeds one amplitude sample. Only a value above the
// decaying peak starts a new pulse; anything else is ignored.
func (e *Engine) OnAmplitudeSample(value float64) {
	if !finite(value) || value < 0 {
		return
	}

	e.life.RLock()
	defer e.life.RUnlock()
	if e.stopped {
		return
	}

	s := settingsFrom(e.src.Params())
	n := int(e.n.Load())
	now := e.now()

	var targets []float64
	e.update(func(cur *pulse) *pulse {
		if value <= cur.peak {
			return nil
		}
		if targets == nil {
			d := Distortion(value, s.minLevel, s.maxLevel, s.maxDistortion)
			targets = e.roll(n, s.base, d)
		}
		return &pulse{
			gen:     cur.gen + 1,
			peak:    value,
			start:   now,
			targets: targets,
		}
	})
}

// Tick advances the radii to now.
func (e *Engine) Tick(now time.Time) {
	e.life.RLock()
	defer e.life.RUnlock()
	if e.stopped {
		return
	}

	s := settingsFrom(e.src.Params())
	if s.n != len(e.radii) {
		e.log.Printf("engine: point count %d -> %d, reseeding", len(e.radii), s.n)
		e.reseed(s, now)
	}

	dt := now.Sub(e.lastTick)
	if dt < 0 {
		dt = 0
	}
	e.lastTick = now

	pl := e.decayPeak(dt.Seconds(), s.audioDecay)
	since := now.Sub(pl.start)

	if since < s.pulseTime {
		e.phase = Approaching
		e.approach(pl, s, since, dt)
	} else {
		e.phase = Settling
		decayTime := dt
		if !pl.settled {
			decayTime = e.settle(pl, s, since, dt)
			pl = e.pulse.Load()
		}
		e.decay(s, decayTime.Seconds())
	}

	e.guard(s)
	e.publish(pl)
}

// Radii copies the current radii into dst and returns it.
func (e *Engine) Radii(dst []float64) []float64 {
	e.life.RLock()
	defer e.life.RUnlock()
	return append(dst[:0], e.radii...)
}

// Stop tears the engine down. It waits for in-flight calls; afterwards the
// state is never mutated again.
func (e *Engine) Stop() {
	e.life.Lock()
	e.stopped = true
	e.life.Unlock()
}

// Stopped reports whether Stop has been called.
func (e *Engine) Stopped() bool {
	e.life.RLock()
	defer e.life.RUnlock()
	return e.stopped
}

func (e *Engine) reseed(s settings, now time.Time) {
	e.radii = make([]float64, s.n)
	targets := make([]float64, s.n)
	for i := range e.radii {
		e.radii[i] = s.base
		targets[i] = s.base
	}
	e.n.Store(int64(s.n))

	var gen uint64
	if cur := e.pulse.Load(); cur != nil {
		gen = cur.gen + 1
	}
	e.pulse.Store(&pulse{gen: gen, start: now, targets: targets})
	e.phase = Approaching
}

func (e *Engine) update(fn func(cur *pulse) *pulse) *pulse {
	for {
		cur := e.pulse.Load()
		next := fn(cur)
		if next == nil {
			return cur
		}
		if e.pulse.CompareAndSwap(cur, next) {
			return next
		}
	}
}

func (e *Engine) roll(n int, base, distortion float64) []float64 {
	targets := make([]float64, n)

	e.randMu.Lock()
	defer e.randMu.Unlock()
	for i := range targets {
		u := 2*e.rng.Float64() - 1
		u = math.Max(-1, math.Min(1, u))
		t := base * (1 + distortion*u)
		if !finite(t) {
			t = base
		}
		targets[i] = t
	}
	return targets
}

func (e *Engine) decayPeak(dt, rate float64) *pulse {
	return e.update(func(cur *pulse) *pulse {
		peak := math.Max(0, cur.peak*(1-dt*rate))
		if !finite(peak) {
			peak = 0
		}
		if peak == cur.peak {
			return nil
		}
		return cur.withPeak(peak)
	})
}

// approach eases every radius toward its target, weighting the step by the
// time left in the pulse so the target is reached at pulseTime whatever the
// frame cadence.
func (e *Engine) approach(pl *pulse, s settings, since, dt time.Duration) {
	remaining := (s.pulseTime - since + dt).Seconds()
	if remaining <= 0 {
		return
	}
	step := math.Min(1, dt.Seconds()/remaining)
	for i, r := range e.radii {
		e.radii[i] = r + (pl.target(i, s.base)-r)*step
	}
}

// settle is the Approaching -> Settling transition. It snaps every radius
// onto its target, marks the pulse settled and returns the part of the
// frame that lies inside the decay phase.
func (e *Engine) settle(pl *pulse, s settings, since, dt time.Duration) time.Duration {
	for i := range e.radii {
		e.radii[i] = pl.target(i, s.base)
	}
	e.update(func(cur *pulse) *pulse {
		if cur.gen != pl.gen || cur.settled {
			return nil
		}
		return cur.withSettled()
	})

	overshoot := since - s.pulseTime
	if overshoot < 0 {
		return 0
	}
	if overshoot < dt {
		return overshoot
	}
	return dt
}

func (e *Engine) decay(s settings, dt float64) {
	if dt <= 0 {
		return
	}
	dist := s.base * dt * s.circleDecay
	for i, r := range e.radii {
		if r < s.base {
			e.radii[i] = math.Min(s.base, r+dist)
		} else {
			e.radii[i] = math.Max(s.base, r-dist)
		}
	}
}

func (e *Engine) guard(s settings) {
	limit := divergenceFactor * s.base * (1 + s.maxDistortion)
	reset := 0
	for i, r := range e.radii {
		if !finite(r) || math.Abs(r) > limit {
			e.radii[i] = s.base
			reset++
		}
	}
	if reset > 0 {
		e.log.Printf("engine: reset %d divergent radii to %.2f", reset, s.base)
	}
}

type settings struct {
	n             int
	base          float64
	maxDistortion float64
	minLevel      float64
	maxLevel      float64
	audioDecay    float64
	circleDecay   float64
	pulseTime     time.Duration
}

func settingsFrom(p params.Parameters) settings {
	s := settings{
		n:             p.PointCount,
		base:          p.BaseRadius,
		maxDistortion: nonNegative(p.MaxDistortion),
		minLevel:      p.MinAudioLevel,
		maxLevel:      p.MaxAudioLevel,
		audioDecay:    nonNegative(p.AudioDecayRate),
		circleDecay:   nonNegative(p.CircleDecayRate),
		pulseTime:     seconds(p.PulseTime),
	}
	if s.n < minPoints {
		s.n = minPoints
	}
	if !finite(s.base) || s.base <= 0 {
		s.base = params.Defaults().BaseRadius
	}
	return s
}

// seconds converts a non-negative duration in seconds, capped at an hour.
func seconds(v float64) time.Duration {
	v = math.Min(nonNegative(v), time.Hour.Seconds())
	return time.Duration(math.Round(v * float64(time.Second)))
}

func nonNegative(v float64) float64 {
	if !finite(v) || v < 0 {
		return 0
	}
	return v
}

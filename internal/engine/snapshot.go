package engine

import "time"

// Snapshot is an immutable view of the engine after a tick.
type Snapshot struct {
	Points     int       `json:"points"`
	Radii      []float64 `json:"radii"`
	Targets    []float64 `json:"targets"`
	Peak       float64   `json:"peak"`
	Phase      Phase     `json:"-"`
	PhaseName  string    `json:"phase"`
	Settled    bool      `json:"settled"`
	PulseStart time.Time `json:"pulseStart"`
}

// Snapshot returns the state published by the latest tick.
func (e *Engine) Snapshot() Snapshot {
	if s := e.snap.Load(); s != nil {
		return *s
	}
	return Snapshot{}
}

func (e *Engine) publish(pl *pulse) {
	n := len(e.radii)
	s := &Snapshot{
		Points:     n,
		Radii:      append([]float64(nil), e.radii...),
		Targets:    make([]float64, n),
		Peak:       pl.peak,
		Phase:      e.phase,
		PhaseName:  e.phase.String(),
		Settled:    pl.settled,
		PulseStart: pl.start,
	}
	base := 0.0
	if n > 0 {
		base = settingsFrom(e.src.Params()).base
	}
	for i := range s.Targets {
		s.Targets[i] = pl.target(i, base)
	}
	e.snap.Store(s)
}

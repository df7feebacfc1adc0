package params

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"sync"
	"sync/atomic"
)

// Store holds the live parameter set. Reads are lock-free; writers are
// serialized and every stored value is sanitized.
type Store struct {
	mu  sync.Mutex
	cur atomic.Pointer[Parameters]
}

// NewStore returns a store holding the sanitized p.
func NewStore(p Parameters) *Store {
	s := &Store{}
	s.Set(p)
	return s
}

// Params returns the current parameters.
func (s *Store) Params() Parameters {
	if p := s.cur.Load(); p != nil {
		return *p
	}
	return Defaults()
}

// Set replaces the parameters.
func (s *Store) Set(p Parameters) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p = p.Sanitize()
	s.cur.Store(&p)
}

// Update applies fn to a copy of the current parameters and stores the result.
func (s *Store) Update(fn func(*Parameters)) Parameters {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.Params()
	fn(&p)
	p = p.Sanitize()
	s.cur.Store(&p)
	return p
}

// Adjust moves the named option by steps slider increments. Boolean options
// are set on positive steps and cleared on negative ones.
func (s *Store) Adjust(name string, steps int) (Parameters, error) {
	opt, ok := LookupOption(name)
	if !ok {
		return s.Params(), fmt.Errorf("unknown parameter %q", name)
	}
	var err error
	p := s.Update(func(p *Parameters) {
		var v float64
		v, err = p.Value(name)
		if err != nil {
			return
		}
		next := v + float64(steps)*opt.Step
		// keep slider values on the step grid
		next = math.Round(next/opt.Step) * opt.Step
		err = p.SetValue(name, next)
	})
	return p, err
}

// Toggle flips a boolean option.
func (s *Store) Toggle(name string) (Parameters, error) {
	opt, ok := LookupOption(name)
	if !ok || !opt.Bool {
		return s.Params(), fmt.Errorf("parameter %q is not a toggle", name)
	}
	var err error
	p := s.Update(func(p *Parameters) {
		v, _ := p.Value(name)
		err = p.SetValue(name, 1-v)
	})
	return p, err
}

// Load reads a JSON parameter file. Fields missing from the file keep their
// default values.
func Load(path string) (Parameters, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Parameters{}, fmt.Errorf("read params: %w", err)
	}
	p := Defaults()
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&p); err != nil {
		return Parameters{}, fmt.Errorf("decode params %s: %w", path, err)
	}
	return p.Sanitize(), nil
}

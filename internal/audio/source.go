package audio

import (
	"errors"
	"sync"
	"sync/atomic"
)

// ErrNoDevice is returned when no usable input device exists.
var ErrNoDevice = errors.New("no suitable audio input device")

// Source delivers non-negative amplitude values to subscribers, from
// whatever goroutine produces them.
type Source interface {
	// Subscribe registers fn and returns a function that unregisters it.
	Subscribe(fn func(float64)) (cancel func())
	// Label names the source for status lines and logs.
	Label() string
	Close() error
}

type subscriber struct {
	id int
	fn func(float64)
}

// Emitter fans values out to subscribers. The zero value is ready to use.
// Emit never blocks on Subscribe or cancel, and callbacks may cancel
// themselves.
type Emitter struct {
	mu     sync.Mutex
	nextID int
	closed bool
	subs   atomic.Pointer[[]subscriber]
}

// Subscribe registers fn. Cancelling more than once is harmless.
func (e *Emitter) Subscribe(fn func(float64)) (cancel func()) {
	if fn == nil {
		return func() {}
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return func() {}
	}

	e.nextID++
	id := e.nextID
	next := append(e.snapshot(), subscriber{id: id, fn: fn})
	e.subs.Store(&next)

	var once sync.Once
	return func() {
		once.Do(func() { e.remove(id) })
	}
}

// Emit delivers v to every current subscriber.
func (e *Emitter) Emit(v float64) {
	subs := e.subs.Load()
	if subs == nil {
		return
	}
	for _, s := range *subs {
		s.fn(v)
	}
}

// Subscribers returns how many callbacks are registered.
func (e *Emitter) Subscribers() int {
	if subs := e.subs.Load(); subs != nil {
		return len(*subs)
	}
	return 0
}

// Close drops every subscriber; later Emit calls do nothing.
func (e *Emitter) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	e.subs.Store(nil)
}

func (e *Emitter) remove(id int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	cur := e.snapshot()
	next := make([]subscriber, 0, len(cur))
	for _, s := range cur {
		if s.id != id {
			next = append(next, s)
		}
	}
	e.subs.Store(&next)
}

// snapshot returns a private copy of the subscriber list. Callers hold mu.
func (e *Emitter) snapshot() []subscriber {
	cur := e.subs.Load()
	if cur == nil {
		return nil
	}
	return append([]subscriber(nil), *cur...)
}

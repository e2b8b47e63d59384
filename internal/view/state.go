// Package view owns the fetch lifecycle of the activity screens and the text they render.
package view

import (
	"sync"

	"go.uber.org/zap"

	"example.com/fitness/internal/domain"
)

// Phase is the tag of a fetch state.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseLoading
	PhaseLoaded
	PhaseFailed
)

func (p Phase) String() string {
	switch p {
	case PhaseLoading:
		return "loading"
	case PhaseLoaded:
		return "loaded"
	case PhaseFailed:
		return "failed"
	default:
		return "idle"
	}
}

// State is a tagged fetch state. Data is meaningful only when Phase is PhaseLoaded and
// Err only when Phase is PhaseFailed.
type State[T any] struct {
	Phase Phase
	Data  T
	Err   error
}

// Kind classifies the failure, or returns the zero Kind when the state is not failed.
func (s State[T]) Kind() domain.Kind {
	if s.Phase != PhaseFailed {
		return 0
	}
	return domain.KindOf(s.Err)
}

// NotFound reports the terminal not-found failure.
func (s State[T]) NotFound() bool {
	return s.Kind() == domain.KindNotFound
}

// ListState is the state of the activity list.
type ListState = State[[]domain.Activity]

// DetailState is the state of the activity detail.
type DetailState = State[*domain.Activity]

// Option configures a controller.
type Option func(*options)

type options struct {
	logger *zap.Logger
}

// WithLogger overrides the default no-op logger.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) { o.logger = logger }
}

func buildOptions(opts []Option) options {
	o := options{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// broadcaster delivers values to subscribers in enqueue order, outside any caller lock.
// Subscribers are called in subscription order. A value enqueued by a subscriber is
// delivered after the current round.
type broadcaster[T any] struct {
	mu         sync.Mutex
	listeners  []subscriber[T]
	nextID     int
	pending    []T
	delivering bool
}

type subscriber[T any] struct {
	id int
	fn func(T)
}

func (b *broadcaster[T]) subscribe(fn func(T)) func() {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.listeners = append(b.listeners, subscriber[T]{id: id, fn: fn})
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		for i, l := range b.listeners {
			if l.id == id {
				b.listeners = append(b.listeners[:i:i], b.listeners[i+1:]...)
				return
			}
		}
	}
}

func (b *broadcaster[T]) enqueue(v T) {
	b.mu.Lock()
	b.pending = append(b.pending, v)
	b.mu.Unlock()
}

func (b *broadcaster[T]) flush() {
	b.mu.Lock()
	if b.delivering {
		b.mu.Unlock()
		return
	}
	b.delivering = true
	for len(b.pending) > 0 {
		next := b.pending[0]
		b.pending = b.pending[1:]
		listeners := append([]subscriber[T](nil), b.listeners...)
		b.mu.Unlock()

		for _, l := range listeners {
			l.fn(next)
		}

		b.mu.Lock()
	}
	b.delivering = false
	b.mu.Unlock()
}

// inflight counts running fetches. Unlike a WaitGroup, a fetch may start while another
// goroutine is blocked in wait.
type inflight struct {
	mu      sync.Mutex
	settled *sync.Cond
	running int
}

func (f *inflight) condLocked() *sync.Cond {
	if f.settled == nil {
		f.settled = sync.NewCond(&f.mu)
	}
	return f.settled
}

func (f *inflight) start() {
	f.mu.Lock()
	f.running++
	f.mu.Unlock()
}

func (f *inflight) done() {
	f.mu.Lock()
	f.running--
	if f.running == 0 {
		f.condLocked().Broadcast()
	}
	f.mu.Unlock()
}

// wait blocks until no fetch is running.
func (f *inflight) wait() {
	f.mu.Lock()
	for f.running > 0 {
		f.condLocked().Wait()
	}
	f.mu.Unlock()
}

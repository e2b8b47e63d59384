package view

import (
	"context"
	"strings"
	"sync"

	"go.uber.org/zap"

	"example.com/fitness/internal/domain"
	"example.com/fitness/internal/observability"
)

// Getter fetches a single activity.
type Getter interface {
	Get(ctx context.Context, id string) (*domain.Activity, error)
}

// DetailController drives the fetch state of one activity keyed by the route id.
// Results are applied only if they belong to the latest activation.
type DetailController struct {
	getter Getter
	logger *zap.Logger
	notify broadcaster[DetailState]
	fetch  inflight

	mu     sync.Mutex
	state  DetailState
	id     string
	active bool
	gen    uint64
}

// NewDetailController returns an idle controller.
func NewDetailController(getter Getter, opts ...Option) *DetailController {
	o := buildOptions(opts)
	return &DetailController{getter: getter, logger: o.logger}
}

// Activate binds the controller to id and fetches it. Activating the id that is already
// bound does nothing; a different id supersedes any fetch in flight.
func (c *DetailController) Activate(ctx context.Context, id string) {
	id = strings.TrimSpace(id)

	c.mu.Lock()
	if c.active && c.id == id && c.state.Phase != PhaseIdle {
		c.mu.Unlock()
		return
	}
	c.active = true
	c.id = id
	if id == "" {
		c.gen++
		c.state = DetailState{
			Phase: PhaseFailed,
			Err:   &domain.Error{Kind: domain.KindNotFound, Op: "get activity", Detail: "empty activity id"},
		}
		c.notify.enqueue(c.state)
	} else {
		c.startLocked(ctx)
	}
	c.mu.Unlock()
	c.notify.flush()
}

// Reload fetches the bound id again unless a fetch is already in flight.
func (c *DetailController) Reload(ctx context.Context) {
	c.mu.Lock()
	if !c.active || c.id == "" || c.state.Phase == PhaseLoading {
		c.mu.Unlock()
		return
	}
	c.startLocked(ctx)
	c.mu.Unlock()
	c.notify.flush()
}

// Unmount unbinds the id and returns to Idle.
func (c *DetailController) Unmount() {
	c.mu.Lock()
	if !c.active {
		c.mu.Unlock()
		return
	}
	c.active = false
	c.id = ""
	c.gen++
	c.state = DetailState{}
	c.notify.enqueue(c.state)
	c.mu.Unlock()
	c.notify.flush()
}

// ID returns the bound id, or "" when inactive.
func (c *DetailController) ID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.id
}

// State returns the current state.
func (c *DetailController) State() DetailState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Subscribe registers fn for every state change.
func (c *DetailController) Subscribe(fn func(DetailState)) func() {
	return c.notify.subscribe(fn)
}

// Wait blocks until no fetch is in flight. Fetches may be started from other goroutines meanwhile.
func (c *DetailController) Wait() {
	c.fetch.wait()
}

func (c *DetailController) startLocked(ctx context.Context) {
	c.gen++
	gen, id := c.gen, c.id
	c.state = DetailState{Phase: PhaseLoading}
	c.notify.enqueue(c.state)

	c.fetch.start()
	go func() {
		defer c.fetch.done()
		activity, err := c.getter.Get(ctx, id)
		c.apply(gen, id, activity, err)
	}()
}

func (c *DetailController) apply(gen uint64, id string, activity *domain.Activity, err error) {
	c.mu.Lock()
	if gen != c.gen || id != c.id {
		c.mu.Unlock()
		c.logger.Debug("dropping stale detail response", zap.String("activity_id", id))
		observability.RecordStaleResponse("detail")
		return
	}
	switch {
	case err != nil:
		c.logger.Warn("detail fetch failed",
			zap.String("activity_id", id),
			zap.String("kind", domain.KindOf(err).String()),
			zap.Error(err),
		)
		c.state = DetailState{Phase: PhaseFailed, Err: err}
	case activity == nil:
		c.state = DetailState{
			Phase: PhaseFailed,
			Err:   &domain.Error{Kind: domain.KindNotFound, Op: "get activity", Detail: "empty response"},
		}
	default:
		c.state = DetailState{Phase: PhaseLoaded, Data: activity}
	}
	c.notify.enqueue(c.state)
	c.mu.Unlock()
	c.notify.flush()
}

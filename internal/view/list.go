package view

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"example.com/fitness/internal/domain"
	"example.com/fitness/internal/observability"
)

// Lister fetches the caller's activities.
type Lister interface {
	List(ctx context.Context) ([]domain.Activity, error)
}

// ListController drives Idle -> Loading -> Loaded | Failed for the activity list.
type ListController struct {
	lister Lister
	logger *zap.Logger
	notify broadcaster[ListState]
	fetch  inflight

	mu      sync.Mutex
	state   ListState
	mounted bool
	gen     uint64
}

// NewListController returns an idle controller.
func NewListController(lister Lister, opts ...Option) *ListController {
	o := buildOptions(opts)
	return &ListController{lister: lister, logger: o.logger}
}

// Mount starts the first fetch. Further calls while mounted do nothing.
func (c *ListController) Mount(ctx context.Context) {
	c.mu.Lock()
	if c.mounted {
		c.mu.Unlock()
		return
	}
	c.mounted = true
	c.startLocked(ctx)
	c.mu.Unlock()
	c.notify.flush()
}

// Refresh fetches again. It does nothing while a fetch is in flight or the controller is unmounted.
func (c *ListController) Refresh(ctx context.Context) {
	c.mu.Lock()
	if !c.mounted || c.state.Phase == PhaseLoading {
		c.mu.Unlock()
		return
	}
	c.startLocked(ctx)
	c.mu.Unlock()
	c.notify.flush()
}

// Unmount returns the controller to Idle. A fetch still in flight is discarded when it lands.
func (c *ListController) Unmount() {
	c.mu.Lock()
	if !c.mounted {
		c.mu.Unlock()
		return
	}
	c.mounted = false
	c.gen++
	c.state = ListState{}
	c.notify.enqueue(c.state)
	c.mu.Unlock()
	c.notify.flush()
}

// State returns the current state.
func (c *ListController) State() ListState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Subscribe registers fn for every state change.
func (c *ListController) Subscribe(fn func(ListState)) func() {
	return c.notify.subscribe(fn)
}

// Wait blocks until no fetch is in flight. Fetches may be started from other goroutines meanwhile.
func (c *ListController) Wait() {
	c.fetch.wait()
}

func (c *ListController) startLocked(ctx context.Context) {
	c.gen++
	gen := c.gen
	c.state = ListState{Phase: PhaseLoading}
	c.notify.enqueue(c.state)

	c.fetch.start()
	go func() {
		defer c.fetch.done()
		items, err := c.lister.List(ctx)
		c.apply(gen, items, err)
	}()
}

func (c *ListController) apply(gen uint64, items []domain.Activity, err error) {
	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		c.logger.Debug("dropping superseded list response")
		observability.RecordStaleResponse("list")
		return
	}
	if err != nil {
		c.logger.Warn("list fetch failed", zap.String("kind", domain.KindOf(err).String()), zap.Error(err))
		c.state = ListState{Phase: PhaseFailed, Err: err}
	} else {
		if items == nil {
			items = []domain.Activity{}
		}
		c.state = ListState{Phase: PhaseLoaded, Data: items}
	}
	c.notify.enqueue(c.state)
	c.mu.Unlock()
	c.notify.flush()
}

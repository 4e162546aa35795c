package playback

import (
	"context"
	"sync"

	"github.com/atharv3903/routeplay/internal/geo"
)

// Controller keeps at most one scheduler and one route fetch alive. Every
// new request supersedes the previous one.
type Controller struct {
	mu      sync.Mutex
	current *Scheduler
	cancel  context.CancelFunc
	opts    []Option
}

func NewController(opts ...Option) *Controller {
	return &Controller{opts: opts}
}

// Begin cancels any in-flight fetch and returns the context for a new one.
// Pass the returned context to Play once the route is available.
func (c *Controller) Begin(parent context.Context) context.Context {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cancel != nil {
		c.cancel()
	}
	var ctx context.Context
	ctx, c.cancel = context.WithCancel(parent)
	return ctx
}

// Play cancels the running scheduler, then starts a new one for points.
// It refuses with ctx.Err() when ctx was superseded by a later Begin.
func (c *Controller) Play(ctx context.Context, points []geo.Coordinate, pauseIndex int, emit func(Frame)) (*Scheduler, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if c.current != nil {
		c.current.Cancel()
	}
	s := New(points, pauseIndex, emit, c.opts...)
	c.current = s
	s.Start()
	return s, nil
}

// Cancel stops the running scheduler and leaves any in-flight fetch alone.
// Once it returns the old scheduler emits nothing more.
func (c *Controller) Cancel() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.current != nil {
		c.current.Cancel()
		c.current = nil
	}
}

// Stop cancels the in-flight fetch and the running scheduler.
func (c *Controller) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	if c.current != nil {
		c.current.Cancel()
		c.current = nil
	}
}

func (c *Controller) Current() *Scheduler {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

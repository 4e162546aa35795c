package playback

import (
	"sync"
	"time"

	"golang.org/x/exp/slog"

	"github.com/atharv3903/routeplay/internal/geo"
)

const (
	DefaultStep          = 0.02
	DefaultFrameInterval = 16 * time.Millisecond
	DefaultPauseDuration = 2 * time.Second
)

type options struct {
	step  float64
	frame time.Duration
	pause time.Duration
	clock Clock
	log   *slog.Logger
}

type Option func(*options)

// WithStep sets the fraction of a segment covered per tick.
func WithStep(step float64) Option {
	return func(o *options) {
		if step > 0 {
			o.step = step
		}
	}
}

func WithFrameInterval(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.frame = d
		}
	}
}

func WithPauseDuration(d time.Duration) Option {
	return func(o *options) {
		if d >= 0 {
			o.pause = d
		}
	}
}

func WithClock(c Clock) Option {
	return func(o *options) { o.clock = c }
}

func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.log = l }
}

func buildOptions(opts []Option) options {
	o := options{
		step:  DefaultStep,
		frame: DefaultFrameInterval,
		pause: DefaultPauseDuration,
		clock: SystemClock{},
		log:   slog.Default(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Scheduler drives one marker along one route. It is single use: after
// Done or Cancel, create a new one.
//
// emit is called with the scheduler lock held so that Cancel can guarantee
// no frame follows it; emit must not call back into the scheduler.
type Scheduler struct {
	mu sync.Mutex

	points     []geo.Coordinate
	pauseIndex int
	emit       func(Frame)
	opts       options

	frame   Frame
	seq     uint64
	paused  bool // the stop at pauseIndex already happened
	started bool
	alive   bool

	ticker Ticker
	timer  Timer
	stop   chan struct{}
	done   chan struct{}
}

// New prepares a scheduler positioned at the first point. Nothing moves
// until Start. pauseIndex outside [0, len(points)) never pauses.
func New(points []geo.Coordinate, pauseIndex int, emit func(Frame), opts ...Option) *Scheduler {
	s := &Scheduler{
		points:     points,
		pauseIndex: pauseIndex,
		emit:       emit,
		opts:       buildOptions(opts),
		alive:      true,
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
	}
	if len(points) > 0 {
		s.frame.Position = points[0]
	}
	return s
}

// Start emits the initial frame and begins ticking. Routes with fewer than
// two points finish immediately without motion.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started || !s.alive {
		return
	}
	s.started = true

	if len(s.points) < 2 {
		s.finish()
		return
	}

	s.publish()
	if s.pauseIndex == 0 {
		s.enterPause()
		return
	}
	s.startTicker()
}

// Cancel stops the pending tick and pause timer. It is safe to call more
// than once and after Done.
func (s *Scheduler) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.alive {
		return
	}
	s.alive = false
	s.stopTicker()
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	close(s.stop)
	close(s.done)

	s.opts.log.Debug("playback cancelled", "segment", s.frame.Segment, "mode", s.frame.Mode.String())
}

// Done is closed when the route completes or the scheduler is cancelled.
func (s *Scheduler) Done() <-chan struct{} { return s.done }

// State returns the latest frame.
func (s *Scheduler) State() Frame {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frame
}

func (s *Scheduler) startTicker() {
	t := s.opts.clock.NewTicker(s.opts.frame)
	s.ticker = t
	go s.loop(t)
}

func (s *Scheduler) stopTicker() {
	if s.ticker != nil {
		s.ticker.Stop()
		s.ticker = nil
	}
}

func (s *Scheduler) loop(t Ticker) {
	for {
		select {
		case <-s.stop:
			return
		case <-t.C():
			if !s.tick(t) {
				return
			}
		}
	}
}

// tick advances one step. It returns false once the ticker t is no longer
// the one driving the scheduler.
func (s *Scheduler) tick(t Ticker) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.alive || s.ticker != t || s.frame.Mode != Moving {
		return false
	}

	f := &s.frame
	f.Progress += s.opts.step
	if f.Progress < 1 {
		f.Position = geo.Interpolate(s.points[f.Segment], s.points[f.Segment+1], f.Progress)
		s.publish()
		return true
	}

	f.Segment++
	f.Progress = 0
	f.Position = s.points[f.Segment]

	if f.Segment == s.pauseIndex && !s.paused {
		s.stopTicker()
		s.enterPause()
		return false
	}
	if f.Segment >= len(s.points)-1 {
		s.stopTicker()
		s.finish()
		return false
	}

	s.publish()
	return true
}

func (s *Scheduler) enterPause() {
	s.paused = true
	s.frame.Mode = Paused
	s.publish()
	s.opts.log.Debug("playback paused", "segment", s.frame.Segment, "for", s.opts.pause)

	s.timer = s.opts.clock.AfterFunc(s.opts.pause, s.resume)
}

// resume ends the pause. Its frame keeps the paused position and only
// switches the tags to Moving and Carrying; the next tick advances.
func (s *Scheduler) resume() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.alive || s.frame.Mode != Paused {
		return
	}
	s.timer = nil
	s.frame.Visual = Carrying
	s.frame.Mode = Moving

	if s.frame.Segment >= len(s.points)-1 {
		s.finish()
		return
	}

	s.publish()
	s.startTicker()
}

func (s *Scheduler) finish() {
	s.frame.Mode = Done
	if len(s.points) > 0 {
		s.publish()
	}
	s.alive = false
	close(s.done)

	s.opts.log.Debug("playback done", "points", len(s.points), "frames", s.seq)
}

func (s *Scheduler) publish() {
	s.seq++
	s.frame.Seq = s.seq
	if s.emit != nil {
		s.emit(s.frame)
	}
}

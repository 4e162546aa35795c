package playback

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atharv3903/routeplay/internal/geo"
)

const pause = 3 * time.Second

func line(n int) []geo.Coordinate {
	pts := make([]geo.Coordinate, n)
	for i := range pts {
		pts[i] = geo.Coordinate{Lat: float64(i), Lon: float64(2 * i)}
	}
	return pts
}

type recorder struct {
	ch chan Frame
}

func newRecorder() *recorder { return &recorder{ch: make(chan Frame, 1024)} }

func (r *recorder) emit(f Frame) { r.ch <- f }

func (r *recorder) next(t *testing.T) Frame {
	t.Helper()
	select {
	case f := <-r.ch:
		return f
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for frame")
		return Frame{}
	}
}

func (r *recorder) none(t *testing.T) {
	t.Helper()
	select {
	case f := <-r.ch:
		t.Fatalf("unexpected frame %+v", f)
	default:
	}
}

func newFake(points []geo.Coordinate, pauseIndex int) (*Scheduler, *fakeClock, *recorder) {
	clock := &fakeClock{}
	rec := newRecorder()
	s := New(points, pauseIndex, rec.emit,
		WithClock(clock), WithStep(0.5), WithPauseDuration(pause))
	return s, clock, rec
}

func tick(t *testing.T, clock *fakeClock, rec *recorder) Frame {
	t.Helper()
	tk := clock.lastTicker()
	require.NotNil(t, tk, "no ticker running")
	require.False(t, tk.isStopped(), "ticker stopped")
	select {
	case tk.ch <- time.Time{}:
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not take the tick")
	}
	return rec.next(t)
}

func closed(ch <-chan struct{}) bool {
	select {
	case <-ch:
		return true
	default:
		return false
	}
}

func TestSchedulerFullRouteWithPause(t *testing.T) {
	pts := line(5)
	s, clock, rec := newFake(pts, 2)
	s.Start()

	f := rec.next(t)
	assert.Equal(t, Frame{Seq: 1, Position: pts[0], Mode: Moving, Visual: Empty}, f)

	f = tick(t, clock, rec)
	assert.Equal(t, 0, f.Segment)
	assert.Equal(t, 0.5, f.Progress)
	assert.Equal(t, geo.Interpolate(pts[0], pts[1], 0.5), f.Position)

	f = tick(t, clock, rec)
	assert.Equal(t, 1, f.Segment)
	assert.Equal(t, 0.0, f.Progress)
	assert.Equal(t, pts[1], f.Position, "snaps onto the segment start")

	tick(t, clock, rec)
	f = tick(t, clock, rec)
	assert.Equal(t, Paused, f.Mode)
	assert.Equal(t, 2, f.Segment)
	assert.Equal(t, pts[2], f.Position)
	assert.Equal(t, Empty, f.Visual, "visual flips only after the pause")

	assert.True(t, clock.lastTicker().isStopped())
	timer := clock.lastTimer()
	require.NotNil(t, timer)
	assert.Equal(t, pause, timer.d)
	rec.none(t)

	timer.fire()
	f = rec.next(t)
	assert.Equal(t, Moving, f.Mode)
	assert.Equal(t, Carrying, f.Visual)
	assert.Equal(t, 2, f.Segment)
	assert.Equal(t, 0.0, f.Progress)

	tick(t, clock, rec)
	tick(t, clock, rec)
	tick(t, clock, rec)
	f = tick(t, clock, rec)
	assert.Equal(t, Done, f.Mode)
	assert.Equal(t, 4, f.Segment)
	assert.Equal(t, pts[4], f.Position)
	assert.Equal(t, Carrying, f.Visual)
	assert.Equal(t, uint64(10), f.Seq)

	assert.True(t, closed(s.Done()))
	assert.Len(t, clock.timers, 1, "pauses exactly once")
	rec.none(t)
}

func TestSchedulerPauseAtStart(t *testing.T) {
	s, clock, rec := newFake(line(3), 0)
	s.Start()

	assert.Equal(t, Moving, rec.next(t).Mode)
	f := rec.next(t)
	assert.Equal(t, Paused, f.Mode)
	assert.Equal(t, 0, f.Segment)
	assert.Nil(t, clock.lastTicker())

	clock.lastTimer().fire()
	f = rec.next(t)
	assert.Equal(t, Moving, f.Mode)
	assert.Equal(t, Carrying, f.Visual)

	f = tick(t, clock, rec)
	assert.Equal(t, 0.5, f.Progress)
	s.Cancel()
}

func TestSchedulerPauseAtLastPoint(t *testing.T) {
	s, clock, rec := newFake(line(3), 2)
	s.Start()
	rec.next(t)

	tick(t, clock, rec)
	tick(t, clock, rec)
	tick(t, clock, rec)
	f := tick(t, clock, rec)
	assert.Equal(t, Paused, f.Mode)
	assert.Equal(t, 2, f.Segment)
	assert.False(t, closed(s.Done()))

	clock.lastTimer().fire()
	f = rec.next(t)
	assert.Equal(t, Done, f.Mode)
	assert.Equal(t, Carrying, f.Visual)
	assert.True(t, closed(s.Done()))
	assert.Len(t, clock.tickers, 1)
}

func TestSchedulerPauseIndexOutOfRange(t *testing.T) {
	for _, idx := range []int{-1, 3, 10} {
		s, clock, rec := newFake(line(3), idx)
		s.Start()
		rec.next(t)

		var f Frame
		for i := 0; i < 4; i++ {
			f = tick(t, clock, rec)
			assert.NotEqual(t, Paused, f.Mode, "pauseIndex %d", idx)
		}
		assert.Equal(t, Done, f.Mode)
		assert.Equal(t, Empty, f.Visual)
		assert.Empty(t, clock.timers)
		assert.True(t, closed(s.Done()))
	}
}

func TestSchedulerDegenerateRoutes(t *testing.T) {
	t.Run("empty", func(t *testing.T) {
		s, clock, rec := newFake(nil, 0)
		s.Start()
		assert.True(t, closed(s.Done()))
		assert.Equal(t, Done, s.State().Mode)
		assert.Nil(t, clock.lastTicker())
		rec.none(t)
	})

	t.Run("single point", func(t *testing.T) {
		pts := line(1)
		s, clock, rec := newFake(pts, 0)
		s.Start()
		f := rec.next(t)
		assert.Equal(t, Done, f.Mode)
		assert.Equal(t, pts[0], f.Position)
		assert.Equal(t, Empty, f.Visual)
		assert.True(t, closed(s.Done()))
		assert.Nil(t, clock.lastTicker())
		assert.Empty(t, clock.timers)
		rec.none(t)
	})
}

func TestSchedulerCancelWhileMoving(t *testing.T) {
	s, clock, rec := newFake(line(4), 2)
	s.Start()
	rec.next(t)
	tick(t, clock, rec)

	tk := clock.lastTicker()
	before := s.State()
	s.Cancel()

	assert.True(t, closed(s.Done()))
	assert.True(t, tk.isStopped())

	// a tick that was already delivered must not apply
	assert.False(t, s.tick(tk))
	assert.Equal(t, before, s.State())
	rec.none(t)
}

func TestSchedulerCancelWhilePaused(t *testing.T) {
	s, clock, rec := newFake(line(4), 1)
	s.Start()
	rec.next(t)
	tick(t, clock, rec)
	f := tick(t, clock, rec)
	require.Equal(t, Paused, f.Mode)

	timer := clock.lastTimer()
	s.Cancel()
	assert.True(t, timer.stopped)

	// the timer callback raced with Cancel and runs anyway
	timer.fire()
	rec.none(t)
	state := s.State()
	assert.Equal(t, Paused, state.Mode)
	assert.Equal(t, Empty, state.Visual)
	assert.Len(t, clock.tickers, 1)
}

func TestSchedulerCancelIsIdempotent(t *testing.T) {
	s, _, _ := newFake(line(3), 1)
	s.Cancel()
	s.Cancel()
	s.Start()
	assert.True(t, closed(s.Done()))
	assert.Equal(t, Moving, s.State().Mode, "never started")

	done, clock, rec := newFake(line(2), -1)
	done.Start()
	rec.next(t)
	tick(t, clock, rec)
	tick(t, clock, rec)
	require.True(t, closed(done.Done()))
	done.Cancel()
}

func TestSchedulerStartTwice(t *testing.T) {
	s, clock, rec := newFake(line(3), -1)
	s.Start()
	s.Start()
	rec.next(t)
	rec.none(t)
	assert.Len(t, clock.tickers, 1)
	s.Cancel()
}

func TestSchedulerSystemClock(t *testing.T) {
	var mu sync.Mutex
	var frames []Frame
	s := New(line(5), 2, func(f Frame) {
		mu.Lock()
		frames = append(frames, f)
		mu.Unlock()
	}, WithStep(0.25), WithFrameInterval(time.Millisecond), WithPauseDuration(5*time.Millisecond))
	s.Start()

	select {
	case <-s.Done():
	case <-time.After(5 * time.Second):
		s.Cancel()
		t.Fatal("playback did not finish")
	}

	mu.Lock()
	defer mu.Unlock()

	require.NotEmpty(t, frames)
	assert.Equal(t, Done, frames[len(frames)-1].Mode)

	pauses := 0
	sawPause := false
	for i, f := range frames {
		assert.Equal(t, uint64(i+1), f.Seq)
		if i > 0 {
			prev := frames[i-1]
			assert.False(t, f.Before(prev), "frame %d goes backwards", i)
			if !prev.Before(f) {
				assert.True(t, f.Mode != prev.Mode || f.Visual != prev.Visual,
					"frame %d repeats frame %d", i, i-1)
			}
			if prev.Mode == Paused {
				assert.Equal(t, prev.Segment, f.Segment, "resume keeps the paused position")
				assert.Equal(t, prev.Progress, f.Progress)
				assert.Equal(t, Moving, f.Mode)
				assert.Equal(t, Carrying, f.Visual)
			}
		}
		if f.Mode == Paused {
			pauses++
			sawPause = true
			assert.Equal(t, 2, f.Segment)
		}
		if f.Visual == Carrying {
			assert.True(t, sawPause, "carrying before the pause ended")
		}
	}
	assert.Equal(t, 1, pauses)
}

func TestSchedulerNoFramesAfterCancel(t *testing.T) {
	for i := 0; i < 20; i++ {
		var mu sync.Mutex
		count := 0
		s := New(line(50), 25, func(Frame) {
			mu.Lock()
			count++
			mu.Unlock()
		}, WithStep(0.1), WithFrameInterval(100*time.Microsecond), WithPauseDuration(time.Millisecond))
		s.Start()

		time.Sleep(time.Duration(i) * 200 * time.Microsecond)
		s.Cancel()

		mu.Lock()
		atCancel := count
		mu.Unlock()

		time.Sleep(5 * time.Millisecond)

		mu.Lock()
		assert.Equal(t, atCancel, count, "iteration %d", i)
		mu.Unlock()
	}
}

func TestFrameJSON(t *testing.T) {
	data, err := json.Marshal(Frame{Seq: 3, Segment: 1, Progress: 0.5, Position: geo.Coordinate{Lat: 1, Lon: 2}, Mode: Paused, Visual: Carrying})
	require.NoError(t, err)
	assert.JSONEq(t, `{"seq":3,"segment":1,"progress":0.5,"position":[1,2],"mode":"paused","visual":"carrying"}`, string(data))
}

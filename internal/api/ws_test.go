package api

import (
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atharv3903/routeplay/internal/playback"
)

type serverMsg struct {
	Type       string `json:"type"`
	Session    string `json:"session"`
	Error      string `json:"error"`
	Vertices   []int  `json:"vertices"`
	PauseIndex int    `json:"pauseIndex"`
	Seq        uint64 `json:"seq"`
	Segment    int    `json:"segment"`
	Mode       string `json:"mode"`
	Visual     string `json:"visual"`
}

type recordingPublisher struct {
	mu     sync.Mutex
	frames map[string]int
}

func (p *recordingPublisher) Publish(session string, _ playback.Frame) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.frames == nil {
		p.frames = map[string]int{}
	}
	p.frames[session]++
	return nil
}

func (p *recordingPublisher) Close() {}

func (p *recordingPublisher) count(session string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.frames[session]
}

func fastPlayback() Option {
	return WithPlayback(
		playback.WithStep(0.5),
		playback.WithFrameInterval(time.Millisecond),
		playback.WithPauseDuration(5*time.Millisecond),
	)
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(url, "http")+"/ws/playback", nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func read(t *testing.T, conn *websocket.Conn) serverMsg {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var m serverMsg
	require.NoError(t, conn.ReadJSON(&m))
	return m
}

func send(t *testing.T, conn *websocket.Conn, msg string) {
	t.Helper()
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(msg)))
}

// untilDone reads frames up to and including the Done frame.
func untilDone(t *testing.T, conn *websocket.Conn) []serverMsg {
	t.Helper()
	var frames []serverMsg
	for {
		m := read(t, conn)
		require.Equal(t, "frame", m.Type, "%+v", m)
		frames = append(frames, m)
		if m.Mode == "done" {
			return frames
		}
	}
}

func TestPlaybackSelect(t *testing.T) {
	pub := &recordingPublisher{}
	srv := newTestServer(t, &fakeUpstream{}, fastPlayback(), WithPublisher(pub))
	conn := dial(t, srv.URL)

	send(t, conn, `{"type":"select","vertex":3}`)

	r := read(t, conn)
	require.Equal(t, "route", r.Type)
	assert.Equal(t, []int{0, 1, 3, 4, 5}, r.Vertices)
	assert.Equal(t, 2, r.PauseIndex)
	assert.NotEmpty(t, r.Session)

	frames := untilDone(t, conn)
	pauses := 0
	for i, f := range frames {
		assert.Equal(t, uint64(i+1), f.Seq)
		if f.Mode == "paused" {
			pauses++
			assert.Equal(t, 2, f.Segment)
			assert.Equal(t, "empty", f.Visual)
		}
	}
	assert.Equal(t, 1, pauses)
	last := frames[len(frames)-1]
	assert.Equal(t, 4, last.Segment)
	assert.Equal(t, "carrying", last.Visual)

	assert.Eventually(t, func() bool { return pub.count(r.Session) == len(frames) },
		time.Second, 5*time.Millisecond, "every frame is published")
}

func TestPlaybackRandom(t *testing.T) {
	srv := newTestServer(t, &fakeUpstream{random: 2}, fastPlayback())
	conn := dial(t, srv.URL)

	send(t, conn, `{"type":"random"}`)
	r := read(t, conn)
	require.Equal(t, "route", r.Type)
	assert.Equal(t, []int{0, 1, 2, 4, 5}, r.Vertices)
	untilDone(t, conn)
}

func TestPlaybackRejectsBadInput(t *testing.T) {
	srv := newTestServer(t, &fakeUpstream{}, fastPlayback())
	conn := dial(t, srv.URL)

	for _, msg := range []string{
		`{"type":"select","vertex":5}`,
		`{"type":"select","vertex":60}`,
		`{"type":"select"}`,
		`{"type":"dance"}`,
		`not json`,
	} {
		send(t, conn, msg)
		m := read(t, conn)
		assert.Equal(t, "error", m.Type, msg)
		assert.NotEmpty(t, m.Error, msg)
	}
}

func TestPlaybackSelectSupersedesFetch(t *testing.T) {
	up := &fakeUpstream{block: make(chan struct{})}
	srv := newTestServer(t, up, fastPlayback())
	conn := dial(t, srv.URL)

	send(t, conn, `{"type":"select","vertex":3}`)
	require.Eventually(t, func() bool { return len(up.Calls()) == 1 }, time.Second, time.Millisecond)

	send(t, conn, `{"type":"select","vertex":2}`)
	require.Eventually(t, func() bool { return len(up.Calls()) == 2 }, time.Second, time.Millisecond)
	close(up.block)

	r := read(t, conn)
	require.Equal(t, "route", r.Type)
	assert.Equal(t, []int{0, 1, 2, 4, 5}, r.Vertices, "only the latest selection plays")
	untilDone(t, conn)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(50*time.Millisecond)))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err, "nothing follows the finished route")
}

func TestPlaybackSelectSupersedesPlayingRoute(t *testing.T) {
	srv := newTestServer(t, &fakeUpstream{}, WithPlayback(
		playback.WithStep(0.01),
		playback.WithFrameInterval(time.Millisecond),
		playback.WithPauseDuration(5*time.Millisecond),
	))
	conn := dial(t, srv.URL)

	send(t, conn, `{"type":"select","vertex":3}`)
	require.Equal(t, "route", read(t, conn).Type)
	require.Equal(t, "frame", read(t, conn).Type)

	send(t, conn, `{"type":"select","vertex":2}`)

	// frames of the first route may still be queued ahead of the new route
	var r serverMsg
	for {
		r = read(t, conn)
		if r.Type == "route" {
			break
		}
		require.Equal(t, "frame", r.Type, "%+v", r)
	}
	assert.Equal(t, []int{0, 1, 2, 4, 5}, r.Vertices)

	for i := 0; i < 20; i++ {
		f := read(t, conn)
		require.Equal(t, "frame", f.Type, "%+v", f)
		require.Equal(t, uint64(i+1), f.Seq, "frame %d after the new route", i)
		assert.Equal(t, 0, f.Segment)
	}
	send(t, conn, `{"type":"stop"}`)
}

func TestPlaybackStop(t *testing.T) {
	srv := newTestServer(t, &fakeUpstream{}, WithPlayback(
		playback.WithStep(0.01),
		playback.WithFrameInterval(time.Millisecond),
	))
	conn := dial(t, srv.URL)

	send(t, conn, `{"type":"select","vertex":3}`)
	require.Equal(t, "route", read(t, conn).Type)
	require.Equal(t, "frame", read(t, conn).Type)

	send(t, conn, `{"type":"stop"}`)

	// drain whatever was queued before the stop landed
	quiet := false
	for !quiet {
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(100*time.Millisecond)))
		_, data, err := conn.ReadMessage()
		if err != nil {
			quiet = true
			continue
		}
		var m serverMsg
		require.NoError(t, json.Unmarshal(data, &m))
		assert.NotEqual(t, "done", m.Mode, "stopped before the end")
	}
}

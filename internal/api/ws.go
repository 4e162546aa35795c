package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/exp/slog"

	"github.com/atharv3903/routeplay/internal/model"
	"github.com/atharv3903/routeplay/internal/playback"
	"github.com/atharv3903/routeplay/internal/publish"
	"github.com/atharv3903/routeplay/internal/route"
)

const (
	writeWait  = 10 * time.Second
	sendBuffer = 64
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type clientMsg struct {
	Type   string `json:"type"`
	Vertex *int   `json:"vertex,omitempty"`
}

type routeMsg struct {
	Type    string `json:"type"`
	Session string `json:"session"`
	model.RouteResponse
}

type frameMsg struct {
	Type string `json:"type"`
	playback.Frame
}

type errorMsg struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}

// session is one websocket client. Only writeLoop touches the connection
// for writing; everything else goes through out.
type session struct {
	id   string
	conn *websocket.Conn
	out  chan any
	ctrl *playback.Controller
	log  *slog.Logger

	// serialises announcing a route and starting its playback
	playMu sync.Mutex
	wg     sync.WaitGroup
}

func (s *Server) handlePlayback(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("websocket upgrade", "err", err)
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	id := publish.NewSession()
	log := s.log.With("session", id)
	opts := append([]playback.Option{playback.WithLogger(log)}, s.playback...)
	sess := &session{
		id:   id,
		conn: conn,
		out:  make(chan any, sendBuffer),
		ctrl: playback.NewController(opts...),
		log:  log,
	}

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		sess.writeLoop(ctx, cancel)
	}()

	log.Info("playback session opened", "remote", r.RemoteAddr)
	defer func() {
		cancel()
		sess.ctrl.Stop()
		sess.wg.Wait()
		<-writerDone
		log.Info("playback session closed")
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) && ctx.Err() == nil {
				log.Debug("websocket read", "err", err)
			}
			return
		}
		var m clientMsg
		if err := json.Unmarshal(data, &m); err != nil {
			sess.send(ctx, errorMsg{Type: "error", Error: "bad message: " + err.Error()})
			continue
		}
		s.dispatch(ctx, sess, m)
	}
}

func (s *Server) dispatch(ctx context.Context, sess *session, m clientMsg) {
	switch m.Type {
	case "random":
		sess.spawn(func() { s.play(ctx, sess, -1) })
	case "select":
		if m.Vertex == nil {
			sess.send(ctx, errorMsg{Type: "error", Error: "select needs a vertex"})
			return
		}
		// a rejected click leaves the current playback alone
		if err := s.checkVertex(*m.Vertex); err != nil {
			sess.send(ctx, errorMsg{Type: "error", Error: err.Error()})
			return
		}
		v := *m.Vertex
		sess.spawn(func() { s.play(ctx, sess, v) })
	case "stop":
		sess.ctrl.Stop()
	default:
		sess.send(ctx, errorMsg{Type: "error", Error: "unknown message type " + m.Type})
	}
}

// play fetches the route for v and plays it back, superseding whatever the
// session was doing.
func (s *Server) play(ctx context.Context, sess *session, v int) {
	fctx := sess.ctrl.Begin(ctx)

	acc, hit, err := s.routeFor(fctx, v)
	if err != nil {
		if fctx.Err() != nil {
			return
		}
		sess.log.Warn("route fetch failed", "vertex", v, "err", err)
		sess.send(ctx, errorMsg{Type: "error", Error: err.Error()})
		return
	}
	asm := route.Assemble(acc, s.Coords)

	sess.playMu.Lock()
	defer sess.playMu.Unlock()
	if fctx.Err() != nil {
		return
	}
	// frames of the old route must not follow the new route message
	sess.ctrl.Cancel()
	sess.send(ctx, routeMsg{Type: "route", Session: sess.id, RouteResponse: asm.Response(hit)})

	_, err = sess.ctrl.Play(fctx, asm.Points, asm.PauseIndex, func(f playback.Frame) {
		sess.send(ctx, frameMsg{Type: "frame", Frame: f})
		if err := s.Pub.Publish(sess.id, f); err != nil {
			sess.log.Debug("publish frame", "seq", f.Seq, "err", err)
		}
	})
	if err != nil {
		return
	}
	sess.log.Info("playback started", "incident", acc.OccurrenceVertex, "points", len(asm.Points), "pause", asm.PauseIndex)
}

func (sess *session) spawn(f func()) {
	sess.wg.Add(1)
	go func() {
		defer sess.wg.Done()
		f()
	}()
}

// send queues v for the client. It blocks while the buffer is full and
// gives up once the session ends.
func (sess *session) send(ctx context.Context, v any) {
	select {
	case sess.out <- v:
	case <-ctx.Done():
	}
}

func (sess *session) writeLoop(ctx context.Context, cancel context.CancelFunc) {
	for {
		select {
		case v := <-sess.out:
			sess.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := sess.conn.WriteJSON(v); err != nil {
				sess.log.Debug("websocket write", "err", err)
				cancel()
				sess.conn.Close()
				return
			}
		case <-ctx.Done():
			sess.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
			return
		}
	}
}

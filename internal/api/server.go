package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"golang.org/x/exp/slog"

	"github.com/atharv3903/routeplay/internal/cache"
	"github.com/atharv3903/routeplay/internal/geo"
	"github.com/atharv3903/routeplay/internal/model"
	"github.com/atharv3903/routeplay/internal/playback"
	"github.com/atharv3903/routeplay/internal/publish"
	"github.com/atharv3903/routeplay/internal/route"
	"github.com/atharv3903/routeplay/internal/spatial"
	"github.com/atharv3903/routeplay/internal/upstream"
)

var (
	errReserved      = errors.New("vertex is reserved")
	errUnknownVertex = errors.New("vertex is not in the table")
)

// RouteFetcher is the upstream route service.
type RouteFetcher interface {
	Fetch(ctx context.Context) (model.AccidentRoute, error)
	FetchByVertex(ctx context.Context, v int) (model.AccidentRoute, error)
}

type Server struct {
	Router  *mux.Router
	Handler http.Handler

	Coords   []geo.Coordinate
	Index    *spatial.Index
	Upstream RouteFetcher
	RC       *cache.RouteCache
	Reserved map[int]bool
	Pub      publish.Publisher

	playback  []playback.Option
	accessLog io.Writer
	log       *slog.Logger
}

type Option func(*Server)

func WithCache(c *cache.RouteCache) Option { return func(s *Server) { s.RC = c } }

// WithReserved marks vertices that cannot be picked as incidents.
func WithReserved(set map[int]bool) Option { return func(s *Server) { s.Reserved = set } }

func WithPublisher(p publish.Publisher) Option { return func(s *Server) { s.Pub = p } }

// WithPlayback sets the scheduler options used for websocket sessions.
func WithPlayback(opts ...playback.Option) Option {
	return func(s *Server) { s.playback = append(s.playback, opts...) }
}

// WithAccessLog sends Apache style access lines to w; nil disables them.
func WithAccessLog(w io.Writer) Option { return func(s *Server) { s.accessLog = w } }

func WithLogger(l *slog.Logger) Option { return func(s *Server) { s.log = l } }

func New(coords []geo.Coordinate, up RouteFetcher, opts ...Option) *Server {
	s := &Server{
		Router:    mux.NewRouter(),
		Coords:    coords,
		Index:     spatial.New(coords),
		Upstream:  up,
		RC:        cache.NewRouteCache(),
		Reserved:  map[int]bool{},
		Pub:       publish.Nop{},
		accessLog: os.Stdout,
		log:       slog.Default(),
	}
	for _, o := range opts {
		o(s)
	}

	s.routes()

	var h http.Handler = s.Router
	h = handlers.CORS(
		handlers.AllowedOrigins([]string{"*"}),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Content-Type"}),
	)(h)
	if s.accessLog != nil {
		h = handlers.LoggingHandler(s.accessLog, h)
	}
	s.Handler = h
	return s
}

func (s *Server) routes() {
	r := s.Router

	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("ok"))
	}).Methods(http.MethodGet)

	r.HandleFunc("/api/vertices", s.handleVertices).Methods(http.MethodGet)
	r.HandleFunc("/api/vertices/nearest", s.handleNearest).Methods(http.MethodGet)
	r.HandleFunc("/api/route", s.handleRoute).Methods(http.MethodGet)
	r.HandleFunc("/api/route/{vertex:[0-9]+}", s.handleRoute).Methods(http.MethodGet)
	r.HandleFunc("/api/route/{vertex:[0-9]+}/geojson", s.handleGeoJSON).Methods(http.MethodGet)
	r.HandleFunc("/ws/playback", s.handlePlayback)

	r.HandleFunc("/debug/cache_stats", func(w http.ResponseWriter, _ *http.Request) {
		stats := s.RC.Stats()
		writeJSON(w, http.StatusOK, map[string]any{
			"gets":      stats.Gets,
			"hits":      stats.Hits,
			"puts":      stats.Puts,
			"evictions": stats.Evictions,
			"entries":   s.RC.Len(),
		})
	}).Methods(http.MethodGet)

	// curl -X POST http://127.0.0.1:8080/debug/clear_cache
	r.HandleFunc("/debug/clear_cache", func(w http.ResponseWriter, _ *http.Request) {
		s.RC.Clear()
		w.Write([]byte("cleared"))
	}).Methods(http.MethodPost)
}

func (s *Server) handleVertices(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.Coords)
}

func (s *Server) handleNearest(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	lat, err1 := strconv.ParseFloat(q.Get("lat"), 64)
	lon, err2 := strconv.ParseFloat(q.Get("lon"), 64)
	if err1 != nil || err2 != nil || !finite(lat) || !finite(lon) {
		writeError(w, http.StatusBadRequest, errors.New("lat and lon must be finite numbers"))
		return
	}

	click := geo.Coordinate{Lat: lat, Lon: lon}
	v, d, err := s.Index.Nearest(click)
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	writeJSON(w, http.StatusOK, model.NearestResponse{Vertex: v, Coord: s.Coords[v], DistanceMeters: d})
}

func (s *Server) handleRoute(w http.ResponseWriter, r *http.Request) {
	asm, hit, err := s.assembled(r)
	if err != nil {
		writeError(w, status(err), err)
		return
	}
	writeJSON(w, http.StatusOK, asm.Response(hit))
}

func (s *Server) handleGeoJSON(w http.ResponseWriter, r *http.Request) {
	asm, _, err := s.assembled(r)
	if err != nil {
		writeError(w, status(err), err)
		return
	}
	data, err := asm.GeoJSON()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.Header().Set("Content-Type", "application/geo+json")
	w.Write(data)
}

// assembled fetches the route named by the {vertex} path variable, or a
// random incident when there is none.
func (s *Server) assembled(r *http.Request) (route.Assembled, bool, error) {
	v := -1
	if raw, ok := mux.Vars(r)["vertex"]; ok {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return route.Assembled{}, false, fmt.Errorf("%w: %s", errUnknownVertex, raw)
		}
		v = n
	}

	acc, hit, err := s.routeFor(r.Context(), v)
	if err != nil {
		return route.Assembled{}, false, err
	}
	return route.Assemble(acc, s.Coords), hit, nil
}

// routeFor asks the upstream service for vertex v (v < 0: random incident).
// Answers for a specific vertex go through the route cache.
func (s *Server) routeFor(ctx context.Context, v int) (model.AccidentRoute, bool, error) {
	start := time.Now()
	if v < 0 {
		acc, err := s.Upstream.Fetch(ctx)
		if err != nil {
			return model.AccidentRoute{}, false, err
		}
		s.log.Info("random incident", "incident", acc.OccurrenceVertex, "hospital", acc.HospitalVertex, "took", time.Since(start))
		return acc, false, nil
	}

	if err := s.checkVertex(v); err != nil {
		return model.AccidentRoute{}, false, err
	}
	if acc, ok := s.RC.Get(v); ok {
		return acc, true, nil
	}

	acc, err := s.Upstream.FetchByVertex(ctx, v)
	if err != nil {
		return model.AccidentRoute{}, false, err
	}
	s.RC.Put(v, acc)
	s.log.Info("incident route", "incident", v, "hospital", acc.HospitalVertex, "took", time.Since(start))
	return acc, false, nil
}

func (s *Server) checkVertex(v int) error {
	if v < 0 || v >= len(s.Coords) {
		return fmt.Errorf("%w: %d", errUnknownVertex, v)
	}
	if s.Reserved[v] {
		return fmt.Errorf("%w: %d", errReserved, v)
	}
	return nil
}

func finite(f float64) bool { return !math.IsNaN(f) && !math.IsInf(f, 0) }

func status(err error) int {
	switch {
	case errors.Is(err, errReserved):
		return http.StatusBadRequest
	case errors.Is(err, errUnknownVertex):
		return http.StatusNotFound
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, upstream.ErrUpstream):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}

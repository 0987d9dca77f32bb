package status

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"github.com/rs/zerolog/log"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/mcdev12/focusroom/go/internal/models"
	"github.com/mcdev12/focusroom/go/internal/realtime"
	"github.com/mcdev12/focusroom/go/internal/room"
	"github.com/mcdev12/focusroom/go/internal/timer"
)

const shutdownTimeout = 5 * time.Second

type ConnectionSource interface {
	Status() realtime.Status
}

type RoomSource interface {
	Snapshot() room.Snapshot
}

type TimerSource interface {
	Snapshot() timer.Snapshot
}

type SessionSource interface {
	Current() *models.Session
}

// Report is the body of GET /status.
type Report struct {
	Connection *realtime.Status          `json:"connection,omitempty"`
	Room       *room.Snapshot            `json:"room,omitempty"`
	Timers     map[string]timer.Snapshot `json:"timers"`
	Session    *models.Session           `json:"session,omitempty"`
}

// Server exposes local health, status and metrics over HTTP.
type Server struct {
	addr       string
	gatherer   prometheus.Gatherer
	connection ConnectionSource
	room       RoomSource
	session    SessionSource
	timers     map[string]TimerSource
}

type Option func(*Server)

func WithConnection(c ConnectionSource) Option { return func(s *Server) { s.connection = c } }
func WithRoom(r RoomSource) Option             { return func(s *Server) { s.room = r } }
func WithSession(ss SessionSource) Option      { return func(s *Server) { s.session = ss } }

func WithTimer(name string, t TimerSource) Option {
	return func(s *Server) { s.timers[name] = t }
}

func NewServer(addr string, gatherer prometheus.Gatherer, opts ...Option) *Server {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	s := &Server{
		addr:     addr,
		gatherer: gatherer,
		timers:   make(map[string]TimerSource),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the CORS-wrapped mux.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /status", s.handleStatus)
	mux.Handle("GET /metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))

	c := cors.New(cors.Options{
		AllowedMethods: []string{http.MethodHead, http.MethodGet},
		AllowedOrigins: []string{"*"},
		AllowedHeaders: []string{"*"},
	})
	return c.Handler(mux)
}

// Run serves until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           h2c.NewHandler(s.Handler(), &http2.Server{}),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", ln.Addr().String()).Msg("status server listening")
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return nil
	}
}

func (s *Server) Report() Report {
	r := Report{Timers: make(map[string]timer.Snapshot, len(s.timers))}
	if s.connection != nil {
		st := s.connection.Status()
		r.Connection = &st
	}
	if s.room != nil {
		snap := s.room.Snapshot()
		r.Room = &snap
	}
	if s.session != nil {
		r.Session = s.session.Current()
	}
	for name, t := range s.timers {
		r.Timers[name] = t.Snapshot()
	}
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte("OK")); err != nil {
		log.Warn().Err(err).Msg("failed to write health check response")
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(s.Report()); err != nil {
		log.Warn().Err(err).Msg("failed to write status response")
	}
}

// Package httpapi serves a read-only status and calendar API over chi.
package httpapi

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"festivalbot/internal/holiday"
	rtsup "festivalbot/internal/runtime/supervisor"
	"festivalbot/internal/storage"
	"festivalbot/internal/trigger"
	logx "festivalbot/pkg/logx"
)

// Engine is the read side of trigger.Engine.
type Engine interface {
	Today() holiday.Date
	Options() trigger.Options
	State() trigger.State
}

// Targets lists the known conversations (storage.Store satisfies it).
type Targets interface {
	Targets(ctx context.Context) ([]storage.Target, error)
}

type Deps struct {
	Engine      Engine
	Targets     Targets
	Supervisors *rtsup.Registry
	// Profiler mounts net/http/pprof under /debug.
	Profiler bool
	Log      logx.Logger
	// Now is overridable in tests.
	Now func() time.Time
}

// Server is a thin wrapper over chi and http.Server.
type Server struct {
	addr string
	deps Deps
	log  logx.Logger
	mux  *chi.Mux
	srv  *http.Server

	started time.Time
}

func New(addr string, deps Deps) *Server {
	if deps.Log.IsZero() {
		deps.Log = logx.Nop()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	s := &Server{addr: addr, deps: deps, log: deps.Log, mux: chi.NewRouter(), started: deps.Now()}
	s.routes()
	s.srv = &http.Server{
		Addr:              addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) routes() {
	s.mux.Use(
		chimw.RequestID,
		chimw.RealIP,
		s.requestLog,
		chimw.Recoverer,
	)
	s.mux.Group(func(r chi.Router) {
		r.Use(chimw.Timeout(15 * time.Second))
		r.Get("/healthz", s.handleHealth)
		r.Get("/calendar.ics", s.handleICS)
		r.Route("/api", func(r chi.Router) {
			r.Get("/holidays", s.handleHolidays)
			r.Get("/holidays/today", s.handleToday)
			r.Get("/status", s.handleStatus)
		})
	})
	// CPU profiles run for 30s by default, so pprof stays outside the timeout.
	if s.deps.Profiler {
		s.mux.Mount("/debug", chimw.Profiler())
	}
}

// Handler returns the router; used by tests and embedding.
func (s *Server) Handler() http.Handler { return s.mux }

func (s *Server) Addr() string { return s.addr }

// Run listens until Shutdown. It returns nil after a clean shutdown.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	s.log.Info("http listening", logx.String("addr", ln.Addr().String()))
	s.srv.BaseContext = func(net.Listener) context.Context { return ctx }
	if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func (s *Server) requestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.log.Debug("http request",
			logx.String("rid", chimw.GetReqID(r.Context())),
			logx.String("method", r.Method),
			logx.String("path", r.URL.Path),
			logx.Int("status", ww.Status()),
			logx.Int("bytes", ww.BytesWritten()),
			logx.Duration("dur", time.Since(start)),
		)
	})
}

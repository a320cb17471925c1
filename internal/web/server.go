// Package web exposes the agent over HTTP: health, session status and
// control, the event websocket and WHIP camera ingest.
package web

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"goodzwork-checkin/internal/checkin"
)

// Session is the control surface of the running attendance attempt.
type Session interface {
	Status() checkin.Status
	CaptureNow(ctx context.Context) error
	SetAutoAttendance(ctx context.Context, on bool) error
}

// OfferHandler answers WHIP offers.
type OfferHandler interface {
	HandleOffer(ctx context.Context, offerSDP string) (string, error)
}

type Options struct {
	Addr string
	// Current returns the active session, or nil between attempts.
	Current func() Session
	Events  http.Handler
	Ingest  OfferHandler
}

type Server struct {
	opts       Options
	router     *chi.Mux
	httpServer *http.Server
	log        logrus.FieldLogger
}

func NewServer(opts Options, log logrus.FieldLogger) *Server {
	if opts.Current == nil {
		opts.Current = func() Session { return nil }
	}

	r := chi.NewRouter()
	s := &Server{
		opts:   opts,
		router: r,
		log:    log,
	}

	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(requestLogger(log))
	r.Use(chiMiddleware.Recoverer)

	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:              opts.Addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

func (s *Server) setupRoutes() {
	s.router.Get("/healthz", s.health)

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Use(chiMiddleware.Timeout(30 * time.Second))
		r.Get("/status", s.status)
		r.Post("/auto-attendance", s.autoAttendance)
		r.Post("/capture", s.capture)
	})

	if s.opts.Events != nil {
		s.router.Get("/ws", s.opts.Events.ServeHTTP)
	}
	if s.opts.Ingest != nil {
		s.router.Post("/whip", s.whip)
		s.router.Delete("/whip", s.whipDelete)
	}
}

// Start serves until Shutdown.
func (s *Server) Start() error {
	s.log.Infof("🌐 HTTP server listening on %s", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("🛑 Shutting down HTTP server...")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down server: %w", err)
	}
	return nil
}

// Router returns the chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

func requestLogger(log logrus.FieldLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			log.WithFields(logrus.Fields{
				"method":   r.Method,
				"path":     r.URL.Path,
				"status":   ww.Status(),
				"duration": time.Since(start).Round(time.Millisecond),
				"request":  chiMiddleware.GetReqID(r.Context()),
			}).Debug("http request")
		})
	}
}

// Package httpserver - HTTP API игры поверх chi.
package httpserver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"reality-quest/api/internal/media"
	"reality-quest/api/internal/quest"
)

const (
	PlayerHeader    = "X-Player-ID"
	DefaultPlayerID = "web"
	maxClipBytes    = 64 << 20
)

// Players выдаёт оркестратор игрока.
type Players interface {
	Player(ctx context.Context, playerID string, withCamera bool) (*quest.Orchestrator, error)
}

type Handler struct {
	Players Players
	// ClipDevice открывает загруженный клип как источник кадров.
	ClipDevice func(path string) media.Device
	Ping       func(ctx context.Context) error
	Log        *zap.Logger
}

func (h *Handler) Routes() chi.Router {
	if h.Log == nil {
		h.Log = zap.NewNop()
	}
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(h.Log))
	r.Use(middleware.Recoverer)

	r.Get("/healthz", h.health)
	r.Route("/api", func(r chi.Router) {
		r.Get("/state", h.state)
		r.Get("/history", h.history)
		r.Get("/rounds", h.rounds)
		r.Post("/challenge", h.newChallenge)
		r.Put("/challenge/custom", h.customChallenge)
		r.Post("/verify", h.verify)
		r.Post("/reset", h.reset)
	})
	return r
}

type Server struct {
	srv *http.Server
	log *zap.Logger
}

func New(addr string, handler http.Handler, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{
		srv: &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadHeaderTimeout: 5 * time.Second,
			IdleTimeout:       120 * time.Second,
		},
		log: log,
	}
}

func (s *Server) Run(_ context.Context) error {
	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.srv.Addr, err)
	}
	s.log.Info("http server listening", zap.String("addr", s.srv.Addr))
	err = s.srv.Serve(ln)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *Server) Shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return s.srv.Shutdown(ctx)
}

func requestLogger(log *zap.Logger) func(next http.Handler) http.Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			defer func() {
				log.Info("http request",
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.Int("status", ww.Status()),
					zap.Int("bytes", ww.BytesWritten()),
					zap.Int64("duration_ms", time.Since(start).Milliseconds()),
					zap.String("request_id", middleware.GetReqID(r.Context())))
			}()
			next.ServeHTTP(ww, r)
		})
	}
}

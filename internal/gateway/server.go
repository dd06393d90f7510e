// Package gateway exposes an OpenAI-compatible HTTP surface backed by any
// configured vendor. Incoming requests are parsed to the canonical shape,
// executed through the client, and the result is encoded back to the caller's
// protocol, streaming included.
package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// Server is the transcode gateway HTTP server.
type Server struct {
	Router *chi.Mux

	srv *http.Server
	log *slog.Logger
}

// NewServer builds the router with the standard middleware stack and mounts
// the handler's routes.
func NewServer(port int, log *slog.Logger, h *Handler) *Server {
	r := chi.NewRouter()

	r.Use(RequestID)
	r.Use(Logging(log))
	r.Use(chimw.Recoverer)
	r.Use(func(next http.Handler) http.Handler {
		return otelhttp.NewHandler(next, "polywire-gateway")
	})

	r.Post("/v1/chat/completions", h.ChatCompletions)
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	return &Server{
		Router: r,
		srv: &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           r,
			ReadHeaderTimeout: 10 * time.Second,
		},
		log: log,
	}
}

// Start blocks serving until Shutdown or a listener error.
func (s *Server) Start() error {
	s.log.Info("starting gateway", slog.String("addr", s.srv.Addr))
	if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

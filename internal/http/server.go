// Package http envuelve el servidor HTTP del servicio.
package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/edustack/campusid/internal/observability/logger"
)

// Server envuelve http.Server con arranque y apagado ordenado.
type Server struct {
	srv *http.Server
}

// NewServer crea el servidor con timeouts sanos para una API de auth.
func NewServer(addr string, handler http.Handler) *Server {
	return &Server{
		srv: &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
	}
}

// Start bloquea sirviendo requests hasta que el listener cierre.
func (s *Server) Start() error {
	logger.L().Info("http server listening", logger.String("addr", s.srv.Addr))
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown apaga el servidor drenando conexiones en curso.
func (s *Server) Shutdown(ctx context.Context) error {
	logger.L().Info("http server shutting down")
	return s.srv.Shutdown(ctx)
}

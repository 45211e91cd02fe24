// Package server exposes extraction over HTTP.
package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/hyperifyio/contentxtractor/internal/extract"
)

// Service is what the handlers need from the application.
type Service interface {
	Extract(ctx context.Context, req extract.Request) (extract.Result, error)
	BaseRequest() extract.Request
}

// DefaultShutdownTimeout bounds how long in-flight extractions may finish.
const DefaultShutdownTimeout = 30 * time.Second

func init() {
	gin.SetMode(gin.ReleaseMode)
}

// NewRouter registers the routes and middleware.
func NewRouter(svc Service, version string) *gin.Engine {
	router := gin.New()

	router.Use(RequestID())
	router.Use(RequestLogger())
	router.Use(ErrorHandler())

	router.GET("/health", HealthCheck(version))

	api := router.Group("/api")
	{
		api.POST("/extract", Extract(svc))
	}
	return router
}

// Server is an HTTP listener bound to a Service.
type Server struct {
	srv             *http.Server
	ShutdownTimeout time.Duration
}

func New(addr string, svc Service, version string) *Server {
	return &Server{
		srv: &http.Server{
			Addr:              addr,
			Handler:           NewRouter(svc, version),
			ReadHeaderTimeout: 15 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
		ShutdownTimeout: DefaultShutdownTimeout,
	}
}

// Serve accepts on ln until ctx is done, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", ln.Addr().String()).Msg("http server listening")
		errCh <- s.srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down http server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.ShutdownTimeout)
	defer cancel()
	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// ListenAndServe listens on the configured address and calls Serve.
func (s *Server) ListenAndServe(ctx context.Context) error {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", s.srv.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

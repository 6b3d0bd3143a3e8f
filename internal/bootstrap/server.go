package bootstrap

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/lerian-labs/icvsb-gateway/internal/mlog"
)

// shutdownTimeout bounds how long Run waits for in-flight requests to
// drain once a shutdown signal arrives.
const shutdownTimeout = 10 * time.Second

// Server wraps the HTTP surface and its graceful-shutdown lifecycle.
type Server struct {
	app           *fiber.App
	serverAddress string
	logger        mlog.Logger
}

// NewServer creates an instance of Server.
func NewServer(cfg *Config, app *fiber.App, logger mlog.Logger) *Server {
	return &Server{app: app, serverAddress: cfg.ServerAddress, logger: logger}
}

// ServerAddress returns the address Run listens on.
func (s *Server) ServerAddress() string { return s.serverAddress }

// Run starts the HTTP server and blocks until ctx is cancelled, then drains
// in-flight requests for up to shutdownTimeout before returning.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		s.logger.Infof("bootstrap: http server listening on %s", s.serverAddress)
		errCh <- s.app.Listen(s.serverAddress)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		s.logger.Infof("bootstrap: shutdown signal received, draining requests")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		return s.app.ShutdownWithContext(shutdownCtx)
	}
}

// Package httpserver runs the HTTP API on an echo instance and shuts it down
// when the serving context ends.
package httpserver

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	api "github.com/tphakala/plantid/internal/api/v2"
	"github.com/tphakala/plantid/internal/conf"
	"github.com/tphakala/plantid/internal/errors"
	"github.com/tphakala/plantid/internal/logger"
)

// DefaultShutdownTimeout bounds the graceful drain of in-flight requests.
const DefaultShutdownTimeout = 10 * time.Second

// Server owns the echo instance and the v2 API controller.
type Server struct {
	echo            *echo.Echo
	api             *api.Controller
	listen          string
	shutdownTimeout time.Duration
	log             logger.Logger
}

// New builds the echo instance and registers the API routes. apiOpts are
// passed through to the controller.
func New(settings *conf.Settings, identifier api.IdentifyService, apiOpts ...api.Option) (*Server, error) {
	if settings == nil {
		settings = &conf.Settings{}
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Logger = logger.NewEchoAdapter(logger.Global().Module("echo"))
	e.Debug = settings.WebServer.Debug
	e.Server.ReadTimeout = settings.WebServer.ReadTimeout
	e.Server.WriteTimeout = settings.WebServer.WriteTimeout

	controller, err := api.New(e, settings, identifier, apiOpts...)
	if err != nil {
		return nil, err
	}

	return &Server{
		echo:            e,
		api:             controller,
		listen:          settings.WebServer.Listen,
		shutdownTimeout: DefaultShutdownTimeout,
		log:             logger.Global().Module("httpserver"),
	}, nil
}

// Handler exposes the router, mostly for tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// APIController returns the v2 API controller.
func (s *Server) APIController() *api.Controller {
	return s.api
}

// Start listens on the configured address and serves until ctx is done.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.listen)
	if err != nil {
		return errors.New(err).
			Component("httpserver").
			Category(errors.CategoryNetwork).
			Context("listen", s.listen).
			Build()
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is done, then drains in-flight requests.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.echo.Listener = ln
	addr := ln.Addr().String()

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.echo.Start(addr)
	}()
	s.log.Info("HTTP server listening", logger.String("address", addr))

	select {
	case err := <-errCh:
		if err == nil || errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return errors.New(err).Component("httpserver").Category(errors.CategoryNetwork).Build()
	case <-ctx.Done():
	}

	s.log.Info("Shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.shutdownTimeout)
	defer cancel()
	if err := s.echo.Shutdown(shutdownCtx); err != nil {
		return errors.New(err).Component("httpserver").Category(errors.CategoryNetwork).Build()
	}

	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.New(err).Component("httpserver").Category(errors.CategoryNetwork).Build()
	}
	s.log.Info("HTTP server stopped")
	return nil
}

// Package health serves liveness, a status snapshot and Prometheus
// metrics while a replay runs.
package health

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// StatusFunc returns a JSON-encodable snapshot of the running process.
type StatusFunc func() any

type Server struct {
	echo    *echo.Echo
	addr    string
	log     zerolog.Logger
	started time.Time
}

// New builds a server exposing reg on /metrics. status may be nil.
func New(addr string, reg *prometheus.Registry, status StatusFunc, log zerolog.Logger) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())

	s := &Server{echo: e, addr: addr, log: log.With().Str("component", "health").Logger(), started: time.Now()}

	e.GET("/healthz", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]any{
			"status": "ok",
			"uptime": time.Since(s.started).Round(time.Second).String(),
		})
	})
	e.GET("/status", func(c echo.Context) error {
		if status == nil {
			return c.NoContent(http.StatusNoContent)
		}
		return c.JSON(http.StatusOK, status())
	})
	if reg != nil {
		e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})))
	}
	return s
}

// Start listens in the background until Stop.
func (s *Server) Start() {
	go func() {
		s.log.Info().Str("addr", s.addr).Msg("health server listening")
		if err := s.echo.Start(s.addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error().Err(err).Msg("health server")
		}
	}()
}

func (s *Server) Stop(ctx context.Context) error {
	if err := s.echo.Shutdown(ctx); err != nil {
		return fmt.Errorf("health shutdown: %w", err)
	}
	return nil
}

// Handler exposes the routes for tests and embedding.
func (s *Server) Handler() http.Handler { return s.echo }

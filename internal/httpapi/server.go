// Package httpapi serves one app.Session over HTTP.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/shpitdev/sdtm-translation-pipeline/internal/app"
	"github.com/shpitdev/sdtm-translation-pipeline/internal/metrics"
	"github.com/shpitdev/sdtm-translation-pipeline/internal/version"
	"github.com/shpitdev/sdtm-translation-pipeline/pkg/pipeline/schema"
)

// Defaults apply to requests that leave a setting out.
type Defaults struct {
	Mode      schema.IngestMode
	Direction schema.Direction
}

type Server struct {
	e        *echo.Echo
	h        *Handler
	log      zerolog.Logger
	shutdown time.Duration
}

// New wires routes and middleware. rec may be nil, which disables /metrics.
func New(s *app.Session, rec *metrics.Recorder, log zerolog.Logger, d Defaults) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(Recovery(log))
	e.Use(RequestID())
	e.Use(Logger(log))
	if rec != nil {
		e.Use(Metrics(rec))
	}

	e.GET("/healthz", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok", "version": version.Current, "session": s.ID})
	})
	if rec != nil {
		e.GET("/metrics", echo.WrapHandler(rec.Handler()))
	}

	h := NewHandler(s, d)
	h.RegisterRoutes(e.Group("/api"))

	return &Server{e: e, h: h, log: log, shutdown: 10 * time.Second}
}

// Echo exposes the router, mainly for tests.
func (s *Server) Echo() *echo.Echo { return s.e }

// ListenAndServe blocks until ctx is done, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	errc := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", addr).Msg("http server listening")
		errc <- s.e.Start(addr)
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	sctx, cancel := context.WithTimeout(context.Background(), s.shutdown)
	defer cancel()
	s.log.Info().Msg("http server shutting down")
	if err := s.e.Shutdown(sctx); err != nil {
		return err
	}
	return nil
}

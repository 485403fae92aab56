package metrics

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PrometheusServer exposes a registry over HTTP, next to a liveness probe
// at /healthz.
type PrometheusServer struct {
	address string
	echo    *echo.Echo
}

// NewPrometheusServer serves the metrics gathered from g at address and path.
func NewPrometheusServer(address, path string, g prometheus.Gatherer) *PrometheusServer {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.GET(path, echo.WrapHandler(promhttp.HandlerFor(g, promhttp.HandlerOpts{})))
	e.GET("/healthz", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})

	return &PrometheusServer{address: address, echo: e}
}

// Handler returns the HTTP handler without binding a listener.
func (s *PrometheusServer) Handler() http.Handler {
	return s.echo
}

// Start serves until ctx is canceled or the listener fails. A graceful
// Shutdown returns nil.
func (s *PrometheusServer) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		if err := s.echo.Start(s.address); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		return err
	}
}

// Shutdown gracefully stops the metrics server.
func (s *PrometheusServer) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

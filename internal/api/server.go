// Package api serves stored mailboxes and per-mailbox webhook settings over
// HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/netip"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/abyssox/opentrashmail/internal/mailbox"
)

// Config holds configuration for creating a Server.
type Config struct {
	Address         string
	Store           *mailbox.Store
	ShowAccountList bool
	// AdminPassword gates the account list. Empty leaves it open.
	AdminPassword string
	// AllowedIPs restricts clients by address. Empty allows everyone.
	AllowedIPs []netip.Prefix
	// Password, when set, is required on every request.
	Password string
	// BaseURL prefixes links in feeds. Empty uses the request host.
	BaseURL string
	// Domains are the accepted domain patterns offered by /api/random.
	Domains []string
	Logger  *slog.Logger // nil → slog.Default()
}

// Server is the HTTP API.
type Server struct {
	echo    *echo.Echo
	address string
	store   *mailbox.Store
	cfg     Config
	logger  *slog.Logger
}

// New builds the API server and registers its routes.
func New(cfg Config) (*Server, error) {
	if cfg.Store == nil {
		return nil, errors.New("api: store is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.JSONSerializer = jsonSerializer{}
	e.Use(middleware.Recover())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:   true,
		LogURI:      true,
		LogStatus:   true,
		LogLatency:  true,
		LogRemoteIP: true,
		LogError:    true,
		HandleError: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			attrs := []slog.Attr{
				slog.String("method", v.Method),
				slog.String("uri", v.URI),
				slog.Int("status", v.Status),
				slog.Duration("latency", v.Latency),
				slog.String("remote_ip", v.RemoteIP),
			}
			level := slog.LevelDebug
			if v.Error != nil {
				level = slog.LevelWarn
				attrs = append(attrs, slog.String("error", v.Error.Error()))
			}
			logger.LogAttrs(context.Background(), level, "api request", attrs...)
			return nil
		},
	}))

	s := &Server{
		echo:    e,
		address: cfg.Address,
		store:   cfg.Store,
		cfg:     cfg,
		logger:  logger,
	}
	if len(cfg.AllowedIPs) > 0 {
		e.IPExtractor = echo.ExtractIPFromXFFHeader()
		e.Use(s.ipAllowList(cfg.AllowedIPs))
	}
	if cfg.Password != "" {
		e.Use(passwordGate(cfg.Password))
	}
	s.routes()
	return s, nil
}

func (s *Server) routes() {
	e := s.echo

	e.GET("/json/listaccounts", s.listAccounts)
	e.POST("/json/listaccounts", s.listAccounts)
	e.GET("/json/:email", s.listMailbox)
	e.GET("/json/:email/:id", s.getRecord)

	e.GET("/rss/:email", s.rssFeed)
	e.GET("/api/random", s.randomAddress)

	e.GET("/api/attachment/:email/:attachment", s.getAttachment)
	e.GET("/api/raw/:email/:id", s.getRaw)
	e.GET("/api/raw-html/:email/:id", s.getRawHTML)
	e.GET("/api/delete/:email/:id", s.deleteMessage)
	e.GET("/api/deleteaccount/:email", s.deleteAccount)
	e.POST("/api/deleteaccount/:email", s.deleteAccount)

	e.GET("/api/webhook/get/:email", s.getWebhook)
	e.POST("/api/webhook/save/:email", s.saveWebhook)
	e.GET("/api/webhook/delete/:email", s.deleteWebhook)
	e.POST("/api/webhook/delete/:email", s.deleteWebhook)
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start serves the API. It blocks until the context is canceled or the
// listener fails. Returns nil when the server is shut down gracefully.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		if err := s.echo.Start(s.address); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	s.logger.Info("api listening", slog.String("address", s.address))

	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		return err
	}
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

// jsonSerializer writes JSON without HTML escaping so stored bodies come
// back byte-for-byte.
type jsonSerializer struct {
	echo.DefaultJSONSerializer
}

func (jsonSerializer) Serialize(c echo.Context, i interface{}, indent string) error {
	enc := json.NewEncoder(c.Response())
	enc.SetEscapeHTML(false)
	if indent != "" {
		enc.SetIndent("", indent)
	}
	return enc.Encode(i)
}

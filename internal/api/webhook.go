package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/netip"
	"net/url"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/labstack/echo/v4"

	"github.com/abyssox/opentrashmail/internal/mailbox"
	"github.com/abyssox/opentrashmail/internal/webhook"
)

const (
	defaultMaxAttempts       = 3
	defaultBackoffMultiplier = 2.0
	maxSecretLen             = 255
)

var blockedHosts = map[string]bool{
	"localhost":            true,
	"127.0.0.1":            true,
	"0.0.0.0":              true,
	"[::1]":                true,
	"::1":                  true,
	"host.docker.internal": true,
}

// errInvalid is a validation failure whose text is shown to the client.
type errInvalid string

func (e errInvalid) Error() string { return string(e) }

func (s *Server) getWebhook(c echo.Context) error {
	email, ok := emailParam(c)
	if !ok {
		return jsonError(c, http.StatusBadRequest, "Invalid email address")
	}
	cfg, err := s.store.WebhookConfig(email)
	if err != nil {
		return s.storeError(c, err, "Webhook not found")
	}
	if cfg == nil {
		return c.JSON(http.StatusOK, map[string]bool{"enabled": false})
	}
	return c.JSON(http.StatusOK, cfg)
}

func (s *Server) saveWebhook(c echo.Context) error {
	email, ok := emailParam(c)
	if !ok {
		return jsonError(c, http.StatusBadRequest, "Invalid email address")
	}
	params, err := requestParams(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, statusResponse{Message: "Invalid request body"})
	}

	cfg, err := buildWebhookConfig(params)
	if err != nil {
		var invalid errInvalid
		if errors.As(err, &invalid) {
			return c.JSON(http.StatusBadRequest, statusResponse{Message: invalid.Error()})
		}
		return err
	}

	if err := s.store.SaveWebhookConfig(email, cfg); err != nil {
		s.logger.Error("saving webhook config", slog.String("rcpt", email), slog.String("error", err.Error()))
		return c.JSON(http.StatusInternalServerError, statusResponse{Message: "Failed to save webhook configuration"})
	}
	s.logger.Info("webhook config saved", slog.String("rcpt", email), slog.Bool("enabled", cfg.Enabled))
	return c.JSON(http.StatusOK, statusResponse{Success: true, Message: "Webhook configuration saved"})
}

func (s *Server) deleteWebhook(c echo.Context) error {
	email, ok := emailParam(c)
	if !ok {
		return jsonError(c, http.StatusBadRequest, "Invalid email address")
	}
	if err := s.store.DeleteWebhookConfig(email); err != nil {
		s.logger.Error("deleting webhook config", slog.String("rcpt", email), slog.String("error", err.Error()))
		return c.JSON(http.StatusInternalServerError, statusResponse{Message: "Failed to delete webhook configuration"})
	}
	return c.JSON(http.StatusOK, statusResponse{Success: true, Message: "Webhook configuration deleted"})
}

// requestParams flattens a JSON object or form body into strings. Absent
// keys are missing from the map.
func requestParams(c echo.Context) (map[string]string, error) {
	out := map[string]string{}
	req := c.Request()

	if strings.HasPrefix(req.Header.Get(echo.HeaderContentType), echo.MIMEApplicationJSON) {
		var body map[string]any
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			return nil, err
		}
		for k, v := range body {
			switch v := v.(type) {
			case nil:
			case string:
				out[k] = v
			case bool:
				out[k] = strconv.FormatBool(v)
			case float64:
				out[k] = strconv.FormatFloat(v, 'f', -1, 64)
			default:
				return nil, fmt.Errorf("field %s: unsupported value", k)
			}
		}
		return out, nil
	}

	form, err := c.FormParams()
	if err != nil {
		return nil, err
	}
	for k, v := range form {
		if len(v) > 0 {
			out[k] = v[0]
		}
	}
	return out, nil
}

// buildWebhookConfig validates submitted settings and fills defaults.
func buildWebhookConfig(p map[string]string) (mailbox.WebhookConfig, error) {
	var cfg mailbox.WebhookConfig

	cfg.WebhookURL = strings.TrimSpace(p["webhook_url"])
	if cfg.WebhookURL != "" {
		if err := checkWebhookURL(cfg.WebhookURL); err != nil {
			return cfg, err
		}
	}

	tmpl, ok := p["payload_template"]
	if !ok {
		tmpl = webhook.DefaultTemplate
	}
	if err := webhook.CheckTemplate(tmpl); err != nil {
		return cfg, errInvalid("Invalid JSON in payload template")
	}
	cfg.PayloadTemplate = tmpl

	attempts := defaultMaxAttempts
	if v, ok := p["max_attempts"]; ok {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			n = 0
		}
		attempts = n
	}
	if attempts < 1 || attempts > 10 {
		return cfg, errInvalid("Max attempts must be between 1 and 10")
	}

	backoff := defaultBackoffMultiplier
	if v, ok := p["backoff_multiplier"]; ok {
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			f = 0
		}
		backoff = f
	}
	if backoff < 1 || backoff > 5 {
		return cfg, errInvalid("Backoff multiplier must be between 1 and 5")
	}
	cfg.RetryConfig = &mailbox.RetryConfig{MaxAttempts: attempts, BackoffMultiplier: backoff}

	cfg.Enabled = parseBool(p["enabled"])

	cfg.SecretKey = truncateSecret(p["secret_key"])

	return cfg, nil
}

// truncateSecret cuts s to at most maxSecretLen bytes without splitting a rune.
func truncateSecret(s string) string {
	if len(s) <= maxSecretLen {
		return s
	}
	n := maxSecretLen
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

func parseBool(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "on", "yes":
		return true
	}
	return false
}

// checkWebhookURL rejects URLs that are not http(s) or point at the local
// host or a private network.
func checkWebhookURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return errInvalid("Invalid webhook URL")
	}
	scheme := strings.ToLower(u.Scheme)
	if (scheme != "http" && scheme != "https") || u.Host == "" {
		return errInvalid("Invalid webhook URL")
	}

	host := strings.ToLower(u.Hostname())
	if blockedHosts[host] || blockedHosts[strings.ToLower(u.Host)] {
		return errInvalid("Webhook URL cannot point to internal services")
	}

	if addr, err := netip.ParseAddr(host); err == nil {
		if !publicAddr(addr.Unmap()) {
			return errInvalid("Webhook URL cannot point to private IP addresses")
		}
	}
	return nil
}

var reservedPrefixes = []netip.Prefix{
	netip.MustParsePrefix("0.0.0.0/8"),
	netip.MustParsePrefix("100.64.0.0/10"),
	netip.MustParsePrefix("169.254.0.0/16"),
	netip.MustParsePrefix("192.0.0.0/24"),
	netip.MustParsePrefix("240.0.0.0/4"),
	netip.MustParsePrefix("::/128"),
	netip.MustParsePrefix("fe80::/10"),
}

func publicAddr(a netip.Addr) bool {
	if a.IsLoopback() || a.IsPrivate() || a.IsUnspecified() || a.IsLinkLocalUnicast() || a.IsMulticast() {
		return false
	}
	for _, p := range reservedPrefixes {
		if p.Contains(a) {
			return false
		}
	}
	return true
}

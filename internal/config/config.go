// Package config provides configuration management for the mail receiver.
package config

import (
	"crypto/tls"
	"errors"
	"fmt"
	"net/netip"
	"net/url"
	"strings"
	"time"
)

// ListenerMode defines the operational mode for a listener.
type ListenerMode string

const (
	// ModeSmtp is plaintext SMTP with optional STARTTLS.
	ModeSmtp ListenerMode = "smtp"
	// ModeSmtps is implicit TLS (TLS-only port).
	ModeSmtps ListenerMode = "smtps"
)

// FileConfig is the top-level wrapper for the configuration file.
type FileConfig struct {
	Opentrashmail Config `toml:"opentrashmail"`
}

// Config holds the complete server configuration.
type Config struct {
	Hostname  string           `toml:"hostname"`
	LogLevel  string           `toml:"log_level"`
	BaseURL   string           `toml:"base_url"`
	Listeners []ListenerConfig `toml:"listeners"`
	TLS       TLSConfig        `toml:"tls"`
	Limits    LimitsConfig     `toml:"limits"`
	Timeouts  TimeoutsConfig   `toml:"timeouts"`
	Mailbox   MailboxConfig    `toml:"mailbox"`
	Domains   DomainsConfig    `toml:"domains"`
	Webhook   WebhookConfig    `toml:"webhook"`
	API       APIConfig        `toml:"api"`
	Metrics   MetricsConfig    `toml:"metrics"`
	Redis     RedisConfig      `toml:"redis"`
	Archive   ArchiveConfig    `toml:"archive"`
}

// ListenerConfig defines settings for a single listener.
type ListenerConfig struct {
	Address string       `toml:"address"`
	Mode    ListenerMode `toml:"mode"`
}

// TLSConfig holds TLS certificate and version settings.
type TLSConfig struct {
	CertFile   string `toml:"cert_file"`
	KeyFile    string `toml:"key_file"`
	MinVersion string `toml:"min_version"`
}

// Enabled reports whether a certificate and key are configured.
func (c *TLSConfig) Enabled() bool {
	return c.CertFile != "" && c.KeyFile != ""
}

// LimitsConfig defines resource limits for the server.
type LimitsConfig struct {
	MaxMessageSize int `toml:"max_message_size"`
	MaxRecipients  int `toml:"max_recipients"`
	// MaxAttachmentSize is the per-attachment ceiling in bytes. 0 disables it.
	MaxAttachmentSize int64 `toml:"max_attachment_size"`
}

// TimeoutsConfig defines timeout durations.
type TimeoutsConfig struct {
	Connection string `toml:"connection"`
	Command    string `toml:"command"`
}

// MailboxConfig locates the on-disk mailbox tree.
type MailboxConfig struct {
	DataDir string `toml:"data_dir"`
}

// DomainsConfig is the recipient domain policy.
type DomainsConfig struct {
	Accept         []string `toml:"accept"`
	DiscardUnknown bool     `toml:"discard_unknown"`
}

// WebhookConfig holds the global webhook settings.
type WebhookConfig struct {
	GlobalURL string `toml:"global_url"`
	Timeout   string `toml:"timeout"`
	Async     bool   `toml:"async"`
}

// APIConfig configures the HTTP mailbox API.
type APIConfig struct {
	Enabled         bool   `toml:"enabled"`
	Address         string `toml:"address"`
	ShowAccountList bool   `toml:"show_account_list"`
	AdminPassword   string `toml:"admin_password"`
	// AllowedIPs lists the CIDRs or single addresses that may use the API.
	// Empty allows every client.
	AllowedIPs []string `toml:"allowed_ips"`
	// Password, when set, is required on every API request.
	Password string `toml:"password"`
}

// MetricsConfig holds configuration for Prometheus metrics.
type MetricsConfig struct {
	Enabled bool   `toml:"enabled"`
	Address string `toml:"address"`
	Path    string `toml:"path"`
}

// RedisConfig configures the stored-message event publisher.
// An empty Address disables publishing.
type RedisConfig struct {
	Address       string `toml:"address"`
	Password      string `toml:"password"`
	DB            int    `toml:"db"`
	ChannelPrefix string `toml:"channel_prefix"`
}

// ArchiveConfig configures raw-message archival to S3-compatible storage.
type ArchiveConfig struct {
	Enabled   bool   `toml:"enabled"`
	Endpoint  string `toml:"endpoint"`
	Region    string `toml:"region"`
	Bucket    string `toml:"bucket"`
	AccessKey string `toml:"access_key"`
	SecretKey string `toml:"secret_key"`
	Compress  bool   `toml:"compress"`
}

// Default returns a Config with sensible default values.
func Default() Config {
	return Config{
		Hostname: "localhost",
		LogLevel: "info",
		Listeners: []ListenerConfig{
			{Address: ":25", Mode: ModeSmtp},
		},
		TLS: TLSConfig{
			MinVersion: "1.2",
		},
		Limits: LimitsConfig{
			MaxMessageSize: 26214400, // 25 MB
			MaxRecipients:  100,
		},
		Timeouts: TimeoutsConfig{
			Connection: "5m",
			Command:    "1m",
		},
		Mailbox: MailboxConfig{
			DataDir: "./data",
		},
		Webhook: WebhookConfig{
			Timeout: "30s",
		},
		API: APIConfig{
			Address: ":8080",
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Address: ":9100",
			Path:    "/metrics",
		},
		Redis: RedisConfig{
			ChannelPrefix: "opentrashmail",
		},
		Archive: ArchiveConfig{
			Region: "us-east-1",
		},
	}
}

// Validate checks that the configuration is valid and returns an error if not.
func (c *Config) Validate() error {
	if c.Hostname == "" {
		return errors.New("hostname is required")
	}

	if len(c.Listeners) == 0 {
		return errors.New("at least one listener is required")
	}

	for i, l := range c.Listeners {
		if l.Address == "" {
			return fmt.Errorf("listener %d: address is required", i)
		}
		if !isValidMode(l.Mode) {
			return fmt.Errorf("listener %d: invalid mode %q", i, l.Mode)
		}
		if l.Mode == ModeSmtps && !c.TLS.Enabled() {
			return fmt.Errorf("listener %d: smtps mode requires tls cert_file and key_file", i)
		}
	}

	if (c.TLS.CertFile == "") != (c.TLS.KeyFile == "") {
		return errors.New("tls cert_file and key_file must be set together")
	}

	if c.Limits.MaxMessageSize <= 0 {
		return errors.New("max_message_size must be positive")
	}

	if c.Limits.MaxRecipients <= 0 {
		return errors.New("max_recipients must be positive")
	}

	if c.Limits.MaxAttachmentSize < 0 {
		return errors.New("max_attachment_size must not be negative")
	}

	if c.Mailbox.DataDir == "" {
		return errors.New("mailbox data_dir is required")
	}

	if c.Timeouts.Connection != "" {
		if _, err := time.ParseDuration(c.Timeouts.Connection); err != nil {
			return fmt.Errorf("invalid connection timeout: %w", err)
		}
	}

	if c.Timeouts.Command != "" {
		if _, err := time.ParseDuration(c.Timeouts.Command); err != nil {
			return fmt.Errorf("invalid command timeout: %w", err)
		}
	}

	if c.Webhook.Timeout != "" {
		if _, err := time.ParseDuration(c.Webhook.Timeout); err != nil {
			return fmt.Errorf("invalid webhook timeout: %w", err)
		}
	}

	if c.Webhook.GlobalURL != "" {
		if err := validateHTTPURL(c.Webhook.GlobalURL); err != nil {
			return fmt.Errorf("webhook global_url: %w", err)
		}
	}

	if c.BaseURL != "" {
		if err := validateHTTPURL(c.BaseURL); err != nil {
			return fmt.Errorf("base_url: %w", err)
		}
	}

	if c.TLS.MinVersion != "" {
		if _, ok := minTLSVersions[c.TLS.MinVersion]; !ok {
			return fmt.Errorf("invalid TLS min_version %q (valid: 1.0, 1.1, 1.2, 1.3)", c.TLS.MinVersion)
		}
	}

	if c.API.Enabled && c.API.Address == "" {
		return errors.New("api address is required when the api is enabled")
	}
	if _, err := c.API.AllowedPrefixes(); err != nil {
		return fmt.Errorf("api allowed_ips: %w", err)
	}

	if c.Metrics.Enabled {
		if c.Metrics.Address == "" {
			return errors.New("metrics address is required when metrics are enabled")
		}
		if c.Metrics.Path == "" {
			return errors.New("metrics path is required when metrics are enabled")
		}
	}

	if c.Archive.Enabled && c.Archive.Bucket == "" {
		return errors.New("archive bucket is required when archiving is enabled")
	}

	return nil
}

// MinTLSVersion returns the crypto/tls constant for the configured minimum TLS version.
// Returns tls.VersionTLS12 if not configured or invalid.
func (c *TLSConfig) MinTLSVersion() uint16 {
	if v, ok := minTLSVersions[c.MinVersion]; ok {
		return v
	}
	return tls.VersionTLS12
}

// ConnectionTimeout returns the connection timeout as a time.Duration.
// Returns 5 minutes if not configured or invalid.
func (c *TimeoutsConfig) ConnectionTimeout() time.Duration {
	return parseDurationOr(c.Connection, 5*time.Minute)
}

// CommandTimeout returns the command timeout as a time.Duration.
// Returns 1 minute if not configured or invalid.
func (c *TimeoutsConfig) CommandTimeout() time.Duration {
	return parseDurationOr(c.Command, time.Minute)
}

// RequestTimeout returns the per-request webhook timeout.
// Returns 30 seconds if not configured or invalid.
func (c *WebhookConfig) RequestTimeout() time.Duration {
	return parseDurationOr(c.Timeout, 30*time.Second)
}

// AllowedPrefixes parses AllowedIPs. A bare address becomes a single-host prefix.
func (c *APIConfig) AllowedPrefixes() ([]netip.Prefix, error) {
	prefixes := make([]netip.Prefix, 0, len(c.AllowedIPs))
	for _, raw := range c.AllowedIPs {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		if strings.Contains(raw, "/") {
			p, err := netip.ParsePrefix(raw)
			if err != nil {
				return nil, err
			}
			prefixes = append(prefixes, p.Masked())
			continue
		}
		addr, err := netip.ParseAddr(raw)
		if err != nil {
			return nil, err
		}
		addr = addr.Unmap()
		prefixes = append(prefixes, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return prefixes, nil
}

// AcceptPatterns returns the lower-cased, trimmed, non-empty domain patterns.
func (c *DomainsConfig) AcceptPatterns() []string {
	var out []string
	for _, d := range c.Accept {
		d = strings.ToLower(strings.TrimSpace(d))
		if d != "" {
			out = append(out, d)
		}
	}
	return out
}

func parseDurationOr(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return def
	}
	return d
}

func validateHTTPURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return errors.New("missing host")
	}
	return nil
}

var minTLSVersions = map[string]uint16{
	"1.0": tls.VersionTLS10,
	"1.1": tls.VersionTLS11,
	"1.2": tls.VersionTLS12,
	"1.3": tls.VersionTLS13,
}

func isValidMode(m ListenerMode) bool {
	switch m {
	case ModeSmtp, ModeSmtps:
		return true
	default:
		return false
	}
}

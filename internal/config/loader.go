package config

import (
	"fmt"
	"os"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
	"github.com/spf13/pflag"
)

// Flags holds command-line flag values.
type Flags struct {
	ConfigPath        string
	Hostname          string
	LogLevel          string
	Listen            string
	ListenTLS         string
	TLSCert           string
	TLSKey            string
	MaxMessageSize    int
	MaxAttachmentSize int64
	DataDir           string
	Domains           string
	DiscardUnknown    bool
	WebhookURL        string
	BaseURL           string
}

// RegisterFlags binds the command-line flags to fs and returns the Flags
// struct they populate once fs is parsed.
func RegisterFlags(fs *pflag.FlagSet) *Flags {
	f := &Flags{}

	fs.StringVar(&f.ConfigPath, "config", "./opentrashmail.toml", "Path to configuration file")
	fs.StringVar(&f.Hostname, "hostname", "", "Server hostname")
	fs.StringVar(&f.LogLevel, "log-level", "", "Log level (debug, info, warn, error)")
	fs.StringVar(&f.Listen, "listen", "", "Plaintext/STARTTLS listen address (replaces all config listeners)")
	fs.StringVar(&f.ListenTLS, "listen-tls", "", "Additional TLS-only listen address")
	fs.StringVar(&f.TLSCert, "tls-cert", "", "TLS certificate file path")
	fs.StringVar(&f.TLSKey, "tls-key", "", "TLS key file path")
	fs.IntVar(&f.MaxMessageSize, "max-message-size", 0, "Maximum message size in bytes")
	fs.Int64Var(&f.MaxAttachmentSize, "max-attachment-size", 0, "Maximum attachment size in bytes")
	fs.StringVar(&f.DataDir, "data-dir", "", "Mailbox root directory")
	fs.StringVar(&f.Domains, "domains", "", "Comma-separated accepted domain patterns")
	fs.BoolVar(&f.DiscardUnknown, "discard-unknown", false, "Discard mail for domains not in the accept list")
	fs.StringVar(&f.WebhookURL, "webhook-url", "", "Global webhook URL")
	fs.StringVar(&f.BaseURL, "base-url", "", "Public base URL used in attachment download links")

	return f
}

// Load parses a TOML configuration file and returns the Config.
// If the file does not exist, returns the default configuration.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("reading config file: %w", err)
	}

	var fileConfig FileConfig
	if err := toml.Unmarshal(data, &fileConfig); err != nil {
		return cfg, fmt.Errorf("parsing config file: %w", err)
	}

	// Merge file config into defaults
	cfg = mergeConfig(cfg, fileConfig.Opentrashmail)

	return cfg, nil
}

// ApplyFlags merges command-line flag values into the config.
// Non-zero/non-empty flag values override config file values.
func ApplyFlags(cfg Config, f *Flags) Config {
	if f.Hostname != "" {
		cfg.Hostname = f.Hostname
	}

	if f.LogLevel != "" {
		cfg.LogLevel = f.LogLevel
	}

	if f.Listen != "" {
		// -listen flag replaces ALL listeners with a single listener
		cfg.Listeners = []ListenerConfig{
			{Address: f.Listen, Mode: ModeSmtp},
		}
	}

	if f.ListenTLS != "" {
		cfg.Listeners = append(cfg.Listeners, ListenerConfig{Address: f.ListenTLS, Mode: ModeSmtps})
	}

	if f.TLSCert != "" {
		cfg.TLS.CertFile = f.TLSCert
	}

	if f.TLSKey != "" {
		cfg.TLS.KeyFile = f.TLSKey
	}

	if f.MaxMessageSize > 0 {
		cfg.Limits.MaxMessageSize = f.MaxMessageSize
	}

	if f.MaxAttachmentSize > 0 {
		cfg.Limits.MaxAttachmentSize = f.MaxAttachmentSize
	}

	if f.DataDir != "" {
		cfg.Mailbox.DataDir = f.DataDir
	}

	if f.Domains != "" {
		cfg.Domains.Accept = splitList(f.Domains)
	}

	if f.DiscardUnknown {
		cfg.Domains.DiscardUnknown = true
	}

	if f.WebhookURL != "" {
		cfg.Webhook.GlobalURL = f.WebhookURL
	}

	if f.BaseURL != "" {
		cfg.BaseURL = f.BaseURL
	}

	return cfg
}

// LoadWithFlags loads configuration from the path specified in flags,
// applies environment overrides, then applies flag overrides.
func LoadWithFlags(f *Flags) (Config, error) {
	cfg, err := Load(f.ConfigPath)
	if err != nil {
		return cfg, err
	}
	cfg = ApplyEnv(cfg)
	return ApplyFlags(cfg, f), nil
}

// splitList splits a comma-separated list, dropping empty entries.
func splitList(s string) []string {
	var out []string
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// mergeConfig merges non-zero values from src into dst.
func mergeConfig(dst, src Config) Config {
	if src.Hostname != "" {
		dst.Hostname = src.Hostname
	}

	if src.LogLevel != "" {
		dst.LogLevel = src.LogLevel
	}

	if src.BaseURL != "" {
		dst.BaseURL = src.BaseURL
	}

	if len(src.Listeners) > 0 {
		dst.Listeners = src.Listeners
	}

	if src.TLS.CertFile != "" {
		dst.TLS.CertFile = src.TLS.CertFile
	}

	if src.TLS.KeyFile != "" {
		dst.TLS.KeyFile = src.TLS.KeyFile
	}

	if src.TLS.MinVersion != "" {
		dst.TLS.MinVersion = src.TLS.MinVersion
	}

	if src.Limits.MaxMessageSize > 0 {
		dst.Limits.MaxMessageSize = src.Limits.MaxMessageSize
	}

	if src.Limits.MaxRecipients > 0 {
		dst.Limits.MaxRecipients = src.Limits.MaxRecipients
	}

	if src.Limits.MaxAttachmentSize > 0 {
		dst.Limits.MaxAttachmentSize = src.Limits.MaxAttachmentSize
	}

	if src.Timeouts.Connection != "" {
		dst.Timeouts.Connection = src.Timeouts.Connection
	}

	if src.Timeouts.Command != "" {
		dst.Timeouts.Command = src.Timeouts.Command
	}

	if src.Mailbox.DataDir != "" {
		dst.Mailbox.DataDir = src.Mailbox.DataDir
	}

	if len(src.Domains.Accept) > 0 {
		dst.Domains.Accept = src.Domains.Accept
	}

	if src.Domains.DiscardUnknown {
		dst.Domains.DiscardUnknown = true
	}

	if src.Webhook.GlobalURL != "" {
		dst.Webhook.GlobalURL = src.Webhook.GlobalURL
	}

	if src.Webhook.Timeout != "" {
		dst.Webhook.Timeout = src.Webhook.Timeout
	}

	if src.Webhook.Async {
		dst.Webhook.Async = true
	}

	if src.API.Enabled {
		dst.API.Enabled = true
	}

	if src.API.Address != "" {
		dst.API.Address = src.API.Address
	}

	if src.API.ShowAccountList {
		dst.API.ShowAccountList = true
	}

	if src.API.AdminPassword != "" {
		dst.API.AdminPassword = src.API.AdminPassword
	}

	if len(src.API.AllowedIPs) > 0 {
		dst.API.AllowedIPs = src.API.AllowedIPs
	}

	if src.API.Password != "" {
		dst.API.Password = src.API.Password
	}

	// Metrics: enabled is explicitly set (boolean), so we merge if source has any non-zero value
	if src.Metrics.Enabled {
		dst.Metrics.Enabled = src.Metrics.Enabled
	}

	if src.Metrics.Address != "" {
		dst.Metrics.Address = src.Metrics.Address
	}

	if src.Metrics.Path != "" {
		dst.Metrics.Path = src.Metrics.Path
	}

	if src.Redis.Address != "" {
		dst.Redis.Address = src.Redis.Address
	}

	if src.Redis.Password != "" {
		dst.Redis.Password = src.Redis.Password
	}

	if src.Redis.DB > 0 {
		dst.Redis.DB = src.Redis.DB
	}

	if src.Redis.ChannelPrefix != "" {
		dst.Redis.ChannelPrefix = src.Redis.ChannelPrefix
	}

	if src.Archive.Enabled {
		dst.Archive.Enabled = true
	}

	if src.Archive.Endpoint != "" {
		dst.Archive.Endpoint = src.Archive.Endpoint
	}

	if src.Archive.Region != "" {
		dst.Archive.Region = src.Archive.Region
	}

	if src.Archive.Bucket != "" {
		dst.Archive.Bucket = src.Archive.Bucket
	}

	if src.Archive.AccessKey != "" {
		dst.Archive.AccessKey = src.Archive.AccessKey
	}

	if src.Archive.SecretKey != "" {
		dst.Archive.SecretKey = src.Archive.SecretKey
	}

	if src.Archive.Compress {
		dst.Archive.Compress = true
	}

	return dst
}

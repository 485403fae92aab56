package config

import (
	"os"
	"strconv"
	"strings"
)

// ApplyEnv applies environment variable overrides to the configuration.
// Environment variables take precedence over TOML config but are overridden by command-line flags.
func ApplyEnv(cfg Config) Config {
	if v := os.Getenv("OPENTRASHMAIL_HOSTNAME"); v != "" {
		cfg.Hostname = v
	}
	if v := os.Getenv("OPENTRASHMAIL_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("OPENTRASHMAIL_BASE_URL"); v != "" {
		cfg.BaseURL = v
	}
	if v := os.Getenv("OPENTRASHMAIL_TLS_CERT_FILE"); v != "" {
		cfg.TLS.CertFile = v
	}
	if v := os.Getenv("OPENTRASHMAIL_TLS_KEY_FILE"); v != "" {
		cfg.TLS.KeyFile = v
	}
	if v := os.Getenv("OPENTRASHMAIL_DATA_DIR"); v != "" {
		cfg.Mailbox.DataDir = v
	}
	if v := os.Getenv("OPENTRASHMAIL_DOMAINS"); v != "" {
		cfg.Domains.Accept = splitList(v)
	}
	if v := os.Getenv("OPENTRASHMAIL_DISCARD_UNKNOWN"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Domains.DiscardUnknown = b
		}
	}
	if v := os.Getenv("OPENTRASHMAIL_MAX_ATTACHMENT_SIZE"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n >= 0 {
			cfg.Limits.MaxAttachmentSize = n
		}
	}
	if v := os.Getenv("OPENTRASHMAIL_WEBHOOK_URL"); v != "" {
		cfg.Webhook.GlobalURL = v
	}
	if v := os.Getenv("OPENTRASHMAIL_API_ALLOWED_IPS"); v != "" {
		cfg.API.AllowedIPs = splitList(v)
	}
	if v := os.Getenv("OPENTRASHMAIL_API_PASSWORD"); v != "" {
		cfg.API.Password = v
	}
	if v := os.Getenv("OPENTRASHMAIL_REDIS_ADDRESS"); v != "" {
		cfg.Redis.Address = v
	}
	if v := os.Getenv("OPENTRASHMAIL_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}

	// Archive credentials are usually injected rather than written to disk.
	if v := os.Getenv("OPENTRASHMAIL_ARCHIVE_ACCESS_KEY"); v != "" {
		cfg.Archive.AccessKey = v
	}
	if v := os.Getenv("OPENTRASHMAIL_ARCHIVE_SECRET_KEY"); v != "" {
		cfg.Archive.SecretKey = v
	}
	if v := os.Getenv("OPENTRASHMAIL_LISTEN_TLS"); v != "" {
		applyTLSListener(&cfg, v)
	}

	return cfg
}

// applyTLSListener sets the address of the first smtps listener, creating one if none exists.
func applyTLSListener(cfg *Config, address string) {
	address = strings.TrimSpace(address)
	for i := range cfg.Listeners {
		if cfg.Listeners[i].Mode == ModeSmtps {
			cfg.Listeners[i].Address = address
			return
		}
	}
	// No smtps listener found; create one
	cfg.Listeners = append(cfg.Listeners, ListenerConfig{
		Address: address,
		Mode:    ModeSmtps,
	})
}

package mailbox

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// RetryConfig bounds webhook redelivery.
type RetryConfig struct {
	MaxAttempts       int     `json:"max_attempts"`
	BackoffMultiplier float64 `json:"backoff_multiplier"`
}

// WebhookConfig is the per-mailbox webhook.json document.
type WebhookConfig struct {
	Enabled         bool         `json:"enabled"`
	WebhookURL      string       `json:"webhook_url"`
	PayloadTemplate string       `json:"payload_template"`
	SecretKey       string       `json:"secret_key,omitempty"`
	RetryConfig     *RetryConfig `json:"retry_config,omitempty"`
}

// WebhookConfig reads the webhook.json of a mailbox. A missing file yields
// (nil, nil). The file is read on every call.
func (s *Store) WebhookConfig(address string) (*WebhookConfig, error) {
	dir, err := s.Dir(address)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(filepath.Join(dir, webhookFile))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading webhook config: %w", err)
	}
	var cfg WebhookConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("decoding webhook config: %w", err)
	}
	return &cfg, nil
}

// SaveWebhookConfig writes webhook.json, creating the mailbox if needed.
func (s *Store) SaveWebhookConfig(address string, cfg WebhookConfig) error {
	dir, err := s.Dir(address)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating mailbox: %w", err)
	}
	data, err := json.MarshalIndent(cfg, "", "    ")
	if err != nil {
		return fmt.Errorf("encoding webhook config: %w", err)
	}

	path := filepath.Join(dir, webhookFile)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("writing webhook config: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp) //nolint:errcheck
		return fmt.Errorf("writing webhook config: %w", err)
	}
	return nil
}

// DeleteWebhookConfig removes webhook.json. Removing a missing file succeeds.
func (s *Store) DeleteWebhookConfig(address string) error {
	dir, err := s.Dir(address)
	if err != nil {
		return err
	}
	err = os.Remove(filepath.Join(dir, webhookFile))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("removing webhook config: %w", err)
	}
	return nil
}

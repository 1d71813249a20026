package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/hassrename/hren/internal/atomicfile"
)

type persistedConfig struct {
	Host         *string              `toml:"host,omitempty"`
	TLS          *bool                `toml:"tls,omitempty"`
	AccessToken  *string              `toml:"access_token,omitempty"`
	TokenFile    *string              `toml:"token_file,omitempty"`
	ReplyTimeout *string              `toml:"reply_timeout,omitempty"`
	History      *bool                `toml:"history,omitempty"`
	HistoryDB    *string              `toml:"history_db,omitempty"`
	UI           *persistedUISettings `toml:"ui,omitempty"`
}

type persistedUISettings struct {
	Accent *string `toml:"accent,omitempty"`
}

func nonEmptyPtr(value string) *string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

// SaveTo writes the config to path atomically. The file is created
// owner-only since it may hold a token.
func SaveTo(path string, cfg *Config) error {
	if strings.TrimSpace(path) == "" {
		return fmt.Errorf("config path is required")
	}
	if cfg == nil {
		cfg = &Config{}
	}

	out := persistedConfig{
		Host:         nonEmptyPtr(cfg.Host),
		AccessToken:  nonEmptyPtr(cfg.AccessToken),
		TokenFile:    nonEmptyPtr(cfg.TokenFile),
		ReplyTimeout: nonEmptyPtr(cfg.ReplyTimeout),
		HistoryDB:    nonEmptyPtr(cfg.HistoryDB),
		History:      cfg.History,
	}
	if cfg.TLS {
		tls := true
		out.TLS = &tls
	}
	if accent := nonEmptyPtr(cfg.UI.Accent); accent != nil {
		out.UI = &persistedUISettings{Accent: accent}
	}

	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(out); err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := atomicfile.WriteFile(path, buf.Bytes(), 0o600); err != nil {
		return fmt.Errorf("failed to write config %s: %w", path, err)
	}

	cfg.path = path
	return nil
}

// Set assigns a config key from its string form, as used by
// "hren config set".
func (c *Config) Set(key, value string) error {
	switch key {
	case "host":
		c.Host = value
	case "tls":
		b, err := parseBool(key, value)
		if err != nil {
			return err
		}
		c.TLS = b
	case "access_token":
		c.AccessToken = value
	case "token_file":
		c.TokenFile = value
	case "reply_timeout":
		prev := c.ReplyTimeout
		c.ReplyTimeout = value
		if _, err := c.ReplyTimeoutDuration(); err != nil {
			c.ReplyTimeout = prev
			return err
		}
	case "history":
		b, err := parseBool(key, value)
		if err != nil {
			return err
		}
		c.History = &b
	case "history_db":
		c.HistoryDB = value
	case "ui.accent":
		c.UI.Accent = value
	default:
		return fmt.Errorf("unknown config key %q (valid: %s)", key, strings.Join(Keys(), ", "))
	}
	return nil
}

// Keys lists the keys accepted by Set.
func Keys() []string {
	return []string{"host", "tls", "access_token", "token_file", "reply_timeout", "history", "history_db", "ui.accent"}
}

func parseBool(key, value string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "true", "yes", "on", "1":
		return true, nil
	case "false", "no", "off", "0":
		return false, nil
	}
	return false, fmt.Errorf("%s: invalid boolean %q", key, value)
}

// Package config handles hren configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// ErrNoHost is returned when no Home Assistant host is configured.
var ErrNoHost = errors.New("no Home Assistant host configured")

// ErrNoToken is returned when no access token is configured.
var ErrNoToken = errors.New("no access token configured")

// Environment variables that override the config file.
const (
	EnvHost  = "HASS_HOST"
	EnvToken = "HASS_TOKEN"
	EnvTLS   = "HASS_TLS"
)

// Config represents the hren configuration.
type Config struct {
	// Host is the Home Assistant host and port, e.g. "homeassistant.local:8123".
	Host string `toml:"host"`

	// TLS selects https/wss instead of http/ws.
	TLS bool `toml:"tls"`

	// AccessToken is a long-lived access token.
	AccessToken string `toml:"access_token"`

	// TokenFile is read when AccessToken is empty. Relative paths are
	// resolved against the config file's directory.
	TokenFile string `toml:"token_file"`

	// ReplyTimeout bounds the wait for each WebSocket reply ("30s", "2m").
	ReplyTimeout string `toml:"reply_timeout"`

	// History enables the applied-run ledger. Nil means enabled.
	History *bool `toml:"history"`

	// HistoryDB overrides the ledger location.
	HistoryDB string `toml:"history_db"`

	// UI controls optional CLI theming preferences.
	UI UIConfig `toml:"ui"`

	// path is where the config was loaded from, if anywhere.
	path string
}

// UIConfig represents optional CLI theming preferences.
type UIConfig struct {
	// Accent is an optional accent color for CLI output and markdown rendering.
	// Supported values are ANSI color codes ("0" to "255") or hex colors ("#RRGGBB").
	Accent string `toml:"accent"`
}

// Load loads the configuration from path, or from the default location
// when path is empty. A missing file yields an empty config.
func Load(path string) (*Config, error) {
	path = ResolveConfigPath(path)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return &Config{path: path}, nil
	}
	return LoadFrom(path)
}

// LoadFrom loads the configuration from a specific path.
func LoadFrom(path string) (*Config, error) {
	var config Config
	if _, err := toml.DecodeFile(path, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	config.path = path
	if _, err := config.ReplyTimeoutDuration(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return &config, nil
}

// Path returns the file the config was loaded from.
func (c *Config) Path() string {
	return c.path
}

// ApplyEnv overlays HASS_HOST, HASS_TOKEN and HASS_TLS. getenv is
// usually os.Getenv.
func (c *Config) ApplyEnv(getenv func(string) string) error {
	if v := strings.TrimSpace(getenv(EnvHost)); v != "" {
		c.Host = v
	}
	if v := strings.TrimSpace(getenv(EnvToken)); v != "" {
		c.AccessToken = v
	}
	if v := strings.TrimSpace(getenv(EnvTLS)); v != "" {
		tls, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%s: invalid boolean %q", EnvTLS, v)
		}
		c.TLS = tls
	}
	return nil
}

// RequireHost returns the configured host or ErrNoHost.
func (c *Config) RequireHost() (string, error) {
	host := strings.TrimSpace(c.Host)
	if host == "" {
		return "", ErrNoHost
	}
	return host, nil
}

// ResolveToken returns the access token, reading TokenFile when no
// token is set inline.
func (c *Config) ResolveToken() (string, error) {
	if token := strings.TrimSpace(c.AccessToken); token != "" {
		return token, nil
	}
	if c.TokenFile == "" {
		return "", ErrNoToken
	}

	data, err := os.ReadFile(c.resolveRelative(c.TokenFile))
	if err != nil {
		return "", fmt.Errorf("failed to read token file: %w", err)
	}
	token := strings.TrimSpace(string(data))
	if token == "" {
		return "", fmt.Errorf("token file %s is empty", c.TokenFile)
	}
	return token, nil
}

// ReplyTimeoutDuration parses ReplyTimeout. Empty means zero, which lets
// the session pick its default.
func (c *Config) ReplyTimeoutDuration() (time.Duration, error) {
	if strings.TrimSpace(c.ReplyTimeout) == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(strings.TrimSpace(c.ReplyTimeout))
	if err != nil {
		return 0, fmt.Errorf("reply_timeout: %w", err)
	}
	if d < 0 {
		return 0, fmt.Errorf("reply_timeout: must not be negative")
	}
	return d, nil
}

// HistoryEnabled reports whether applied runs are recorded.
func (c *Config) HistoryEnabled() bool {
	return c.History == nil || *c.History
}

// HistoryPath returns the ledger location: history_db when set, else
// history.db next to the config file.
func (c *Config) HistoryPath() string {
	if c.HistoryDB != "" {
		return c.resolveRelative(c.HistoryDB)
	}
	return filepath.Join(c.dir(), "history.db")
}

func (c *Config) dir() string {
	if c.path != "" {
		return filepath.Dir(c.path)
	}
	return filepath.Dir(DefaultPath())
}

func (c *Config) resolveRelative(p string) string {
	if strings.HasPrefix(p, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, p[2:])
		}
	}
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.dir(), p)
}

// ResolveConfigPath resolves the effective config path from an optional override.
func ResolveConfigPath(explicitConfigPath string) string {
	if strings.TrimSpace(explicitConfigPath) != "" {
		return explicitConfigPath
	}
	return DefaultPath()
}

// DefaultPath returns the default config file path.
// Checks ~/.config/hren/config.toml first (XDG style),
// then falls back to OS-specific location.
func DefaultPath() string {
	if home, err := os.UserHomeDir(); err == nil {
		xdgPath := filepath.Join(home, ".config", "hren", "config.toml")
		if _, err := os.Stat(xdgPath); err == nil {
			return xdgPath
		}
	}

	if configDir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(configDir, "hren", "config.toml")
	}

	return filepath.Join(".", "config.toml")
}

// XDGPath returns the XDG-style config path (~/.config/hren/config.toml).
func XDGPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "hren", "config.toml"), nil
}

// CreateDefault writes a commented default config to path if nothing is
// there yet. It reports whether a file was created.
func CreateDefault(path string) (bool, error) {
	if _, err := os.Stat(path); err == nil {
		return false, nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return false, fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(path, []byte(defaultConfig), 0o600); err != nil {
		return false, fmt.Errorf("failed to write config file: %w", err)
	}
	return true, nil
}

const defaultConfig = `# hren configuration

# Home Assistant host and port.
# host = "homeassistant.local:8123"

# Use https/wss.
# tls = false

# Long-lived access token (Profile > Security in Home Assistant).
# Prefer token_file or HASS_TOKEN over storing the token here.
# access_token = ""
# token_file = "~/.config/hren/token"

# How long to wait for each reply while applying renames.
# reply_timeout = "30s"

# Record applied runs in a local SQLite ledger.
# history = true
# history_db = "history.db"

# Optional UI accent color for headers in terminal output.
# Supports ANSI color codes (0-255) or hex (#RRGGBB).
# [ui]
# accent = "39"
`

package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// BasicAuthConfig holds HTTP Basic Auth credentials. It is used both for
// authenticating against the upstream portal (Portal.BasicAuth) and,
// optionally, for protecting the served feed (ServeAuth).
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// PortalConfig describes the upstream portal endpoints and the identity
// parameters the week-fetch call requires.
type PortalConfig struct {
	// BaseURL is the portal root, e.g. "https://portal.isep.ipp.pt".
	// Trailing slashes are stripped during Normalize.
	BaseURL string `yaml:"base_url" json:"base_url"`

	// CodeUser / CodeUserCode / Entidade are opaque identity parameters
	// passed verbatim to the week-fetch endpoint.
	CodeUser     string `yaml:"code_user" json:"code_user"`
	CodeUserCode string `yaml:"code_user_code" json:"code_user_code"`
	Entidade     string `yaml:"entidade" json:"entidade"`

	// BasicAuth, if non-nil, is sent with every portal request.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`

	// CookiesPath is a YAML file of session cookies (name: value) injected
	// into every portal request. The file is re-read when it changes, so an
	// operator (or the -login flow) can refresh an expired session without
	// restarting the bridge.
	CookiesPath string `yaml:"cookies_path" json:"cookies_path"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address for the feed endpoints.
	Listen string `yaml:"listen" json:"listen"`

	// Timezone is the IANA timezone applied to the portal's naive
	// timestamps (e.g. "Europe/Lisbon").
	Timezone string `yaml:"timezone" json:"timezone"`

	Portal PortalConfig `yaml:"portal" json:"portal"`

	// WeeksBefore / WeeksAfter bound the fetch horizon: one upstream query
	// per whole-week offset in [-WeeksBefore, +WeeksAfter] around now.
	WeeksBefore int `yaml:"weeks_before" json:"weeks_before"`
	WeeksAfter  int `yaml:"weeks_after" json:"weeks_after"`

	// RefreshMinutes is the TTL of the published calendar artifact.
	RefreshMinutes int `yaml:"refresh_minutes" json:"refresh_minutes"`

	// RefreshCron, if non-empty, pre-warms the cache on a cron schedule
	// (e.g. "*/15 * * * *") so that feed readers rarely pay refresh
	// latency. Empty keeps refresh purely request-driven.
	RefreshCron string `yaml:"refresh_cron,omitempty" json:"refresh_cron,omitempty"`

	// ServeAuth, if non-nil, enables HTTP Basic Authentication on all
	// served endpoints except /healthz and /metrics.
	ServeAuth *BasicAuthConfig `yaml:"serve_auth,omitempty" json:"serve_auth,omitempty"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Listen:   "127.0.0.1:8080",
		Timezone: "Europe/Lisbon",
		Portal: PortalConfig{
			BaseURL:     "https://portal.isep.ipp.pt",
			Entidade:    "aluno",
			CookiesPath: "/etc/portalics/cookies.yaml",
		},
		WeeksBefore:    0,
		WeeksAfter:     6,
		RefreshMinutes: 15,
	}
}

// Normalize fills in missing/zero values with sensible defaults so that
// partially-filled configs still behave correctly.
func (c *Config) Normalize() {
	if c.Listen == "" {
		c.Listen = "127.0.0.1:8080"
	}
	if c.Timezone == "" {
		c.Timezone = "Europe/Lisbon"
	}
	c.Portal.BaseURL = strings.TrimRight(c.Portal.BaseURL, "/")
	if c.Portal.BaseURL == "" {
		c.Portal.BaseURL = "https://portal.isep.ipp.pt"
	}
	if c.Portal.Entidade == "" {
		c.Portal.Entidade = "aluno"
	}
	if c.Portal.CookiesPath == "" {
		c.Portal.CookiesPath = "/etc/portalics/cookies.yaml"
	}
	if c.WeeksBefore < 0 {
		c.WeeksBefore = 0
	}
	if c.WeeksAfter < 0 {
		c.WeeksAfter = 0
	}
	if c.RefreshMinutes <= 0 {
		c.RefreshMinutes = 15
	}
}

// TTL returns the artifact time-to-live as a duration.
func (c *Config) TTL() time.Duration {
	return time.Duration(c.RefreshMinutes) * time.Minute
}

// Location resolves the configured timezone, falling back to time.Local on
// an invalid name.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

// Load loads configuration from the given YAML path.
//
// Behavior:
//   - If the file does not exist:
//   - create parent directory if needed
//   - write a default config with 0600 perms
//   - return the default config
//   - If the file exists:
//   - read YAML and unmarshal into Config
//   - normalize defaults
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			// First run: create default config file.
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				// Even if save fails, return cfg with error so caller can decide.
				return cfg, err
			}
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.Normalize()

	return &cfg, nil
}

// Save writes the given configuration to the specified path.
//
// Implementation details:
//   - Ensures parent directory exists (0700).
//   - Marshals cfg to YAML.
//   - Writes atomically via a temp file + rename.
//   - Ensures final file permissions are 0600 (the config may hold portal
//     credentials).
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	// Atomic write: write to temp file in same directory then rename.
	tmp, err := os.CreateTemp(dir, ".portalics-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	// Ensure we clean up temp file on error.
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}

	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}

	if err := os.Rename(tmpName, path); err != nil {
		return err
	}

	return nil
}

// Save is a convenience method on Config that delegates to the
// package-level Save function.
func (c *Config) Save(path string) error {
	return Save(path, c)
}

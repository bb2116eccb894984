// Package config loads quarry's TOML configuration: registry sources,
// mirror substitution rules, credentials, TLS settings, and the knobs of
// the fetch protocol (timeouts, redirect limit, retry count, batch size).
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Defaults for the fetch protocol.
const (
	DefaultTimeout         = 10 * time.Second
	DefaultRedirectLimit   = 5
	DefaultRetries         = 3
	DefaultAPIRequestLimit = 100
)

// Config is the full configuration tree. The zero value plus Defaults()
// is a working configuration pointing at rubygems.org.
type Config struct {
	// Sources lists registry base URLs, in priority order.
	Sources []string `toml:"sources"`

	// Mirrors maps a source URL to the mirror that should replace it.
	Mirrors map[string]string `toml:"mirrors"`

	// Credentials maps a host or full source URL to "user:password".
	// Full-URL keys take precedence over host keys.
	Credentials map[string]string `toml:"credentials"`

	SSL   SSLConfig   `toml:"ssl"`
	Fetch FetchConfig `toml:"fetch"`

	// CachePath overrides the on-disk cache directory.
	CachePath string `toml:"cache_path"`

	// Redis selects a shared Redis artifact cache instead of the on-disk
	// one. Disabled while Addr is empty.
	Redis RedisConfig `toml:"redis"`
}

// RedisConfig points the artifact cache at a shared Redis instance, for
// fleets of machines that should fetch each gemspec once.
type RedisConfig struct {
	// Addr is the instance's host:port.
	Addr     string `toml:"addr"`
	Password string `toml:"password"`
	DB       int    `toml:"db"`
}

// SSLConfig controls TLS behavior of registry connections.
type SSLConfig struct {
	// VerifyMode is "peer" (default) or "none".
	VerifyMode string `toml:"verify_mode"`

	// CACert points at a PEM file or a directory of PEM files to trust
	// instead of the system roots.
	CACert string `toml:"ca_cert"`

	// ClientCert/ClientKey enable mutual TLS when both are set.
	ClientCert string `toml:"client_cert"`
	ClientKey  string `toml:"client_key"`
}

// FetchConfig tunes the fetch protocol.
type FetchConfig struct {
	// TimeoutSeconds is the per-request read timeout.
	TimeoutSeconds int `toml:"timeout"`

	// RedirectLimit bounds redirect chains.
	RedirectLimit int `toml:"redirect_limit"`

	// Retries is the total number of attempts per operation.
	Retries int `toml:"retries"`

	// APIRequestLimit caps gem names per dependency-API request.
	APIRequestLimit int `toml:"api_request_limit"`

	// DisableEndpoint forces full-index mode, skipping the dependency API.
	DisableEndpoint bool `toml:"disable_endpoint"`
}

// Defaults returns a configuration with every knob at its default and
// rubygems.org as the sole source.
func Defaults() *Config {
	return &Config{
		Sources: []string{"https://rubygems.org"},
		Fetch: FetchConfig{
			TimeoutSeconds:  int(DefaultTimeout / time.Second),
			RedirectLimit:   DefaultRedirectLimit,
			Retries:         DefaultRetries,
			APIRequestLimit: DefaultAPIRequestLimit,
		},
		SSL: SSLConfig{VerifyMode: "peer"},
	}
}

// Load reads the TOML file at path, layered over Defaults. A missing file
// is not an error; the defaults are returned.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return nil, err
	}

	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	cfg.normalize()
	return cfg, nil
}

// DefaultPath returns the standard config location,
// $XDG_CONFIG_HOME/quarry/quarry.toml or ~/.config/quarry/quarry.toml.
func DefaultPath() (string, error) {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "quarry", "quarry.toml"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "quarry", "quarry.toml"), nil
}

// normalize backfills zero values left by a sparse TOML file.
func (c *Config) normalize() {
	d := Defaults()
	if len(c.Sources) == 0 {
		c.Sources = d.Sources
	}
	if c.Fetch.TimeoutSeconds <= 0 {
		c.Fetch.TimeoutSeconds = d.Fetch.TimeoutSeconds
	}
	if c.Fetch.RedirectLimit <= 0 {
		c.Fetch.RedirectLimit = d.Fetch.RedirectLimit
	}
	if c.Fetch.Retries <= 0 {
		c.Fetch.Retries = d.Fetch.Retries
	}
	if c.Fetch.APIRequestLimit <= 0 {
		c.Fetch.APIRequestLimit = d.Fetch.APIRequestLimit
	}
	if c.SSL.VerifyMode == "" {
		c.SSL.VerifyMode = d.SSL.VerifyMode
	}
}

// Timeout returns the per-request timeout as a duration.
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.Fetch.TimeoutSeconds) * time.Second
}

// CredentialsFor implements [source.CredentialSource].
func (c *Config) CredentialsFor(key string) (string, bool) {
	cred, ok := c.Credentials[key]
	return cred, ok
}

// MirrorFor implements [source.CredentialSource].
func (c *Config) MirrorFor(sourceURL string) (string, bool) {
	m, ok := c.Mirrors[sourceURL]
	return m, ok
}

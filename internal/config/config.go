// Package config loads and validates the wpmirror YAML configuration and
// resolves the WordPress credentials it points at.
package config

import (
	"bytes"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Cache backends.
const (
	BackendFile  = "file"
	BackendRedis = "redis"
)

// Config holds the full application configuration loaded from YAML.
type Config struct {
	// SiteURL is the WordPress site, e.g. "https://example.com". A missing
	// scheme defaults to https.
	SiteURL string `yaml:"site_url"`

	// Collection is "posts" (default) or "photos".
	Collection string `yaml:"collection"`

	// CachePath is the JSON cache file. The metadata file sits next to it.
	// Defaults to ~/.local/share/wpmirror/wp_<collection>.json.
	CachePath string `yaml:"cache_path"`

	// CacheBackend selects where the cache lives: "file" (default) or "redis".
	CacheBackend string `yaml:"cache_backend"`

	// Redis configures the redis backend. Required when cache_backend is redis.
	Redis *RedisConfig `yaml:"redis,omitempty"`

	// Concurrency bounds in-flight page requests during a full build.
	// 1 to 10, default 5.
	Concurrency int `yaml:"concurrency"`

	// RewindPages is how many cached pages an incremental sync re-reads.
	// Unset means the built-in default of 2; 0 disables the rewind.
	RewindPages *int `yaml:"rewind_pages,omitempty"`

	// HTTPTimeout bounds each API request. Defaults to 30s.
	HTTPTimeout time.Duration `yaml:"http_timeout"`

	// PollBackoff is the initial backoff, in seconds, of post polling.
	// Defaults to 5.
	PollBackoff int `yaml:"poll_backoff"`

	// StateDB is the SQLite ledger. Defaults to ~/.local/share/wpmirror/state.db.
	StateDB string `yaml:"state_db"`

	// Credentials says where the username and application password come from.
	Credentials CredentialsConfig `yaml:"credentials"`

	// Telemetry configures optional OpenTelemetry export via OTLP gRPC.
	// Omit the block entirely to disable telemetry.
	Telemetry *TelemetryConfig `yaml:"telemetry,omitempty"`
}

// RedisConfig holds the redis cache backend settings.
type RedisConfig struct {
	// URL is a redis:// or rediss:// URL.
	URL string `yaml:"url"`

	// Prefix namespaces the cache keys. Defaults to "wpmirror:posts".
	Prefix string `yaml:"prefix"`

	// TTL expires the cache keys. Zero keeps them forever.
	TTL time.Duration `yaml:"ttl"`
}

// TelemetryConfig holds optional OpenTelemetry settings.
type TelemetryConfig struct {
	// OTLPEndpoint is the gRPC host:port of the OTLP collector (e.g. "localhost:4317").
	OTLPEndpoint string `yaml:"otlp_endpoint"`

	// Insecure disables TLS for the collector connection.
	Insecure bool `yaml:"insecure"`

	// ServiceName overrides the OTel service.name attribute. Defaults to "wpmirror".
	ServiceName string `yaml:"service_name"`

	// Headers are sent as gRPC metadata on every OTLP request, e.g.
	//   Authorization: "Bearer <token>"
	Headers map[string]string `yaml:"headers,omitempty"`
}

// DefaultPath returns the default config file path: ~/.config/wpmirror/config.yaml.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolving home directory: %w", err)
	}
	return filepath.Join(home, ".config", "wpmirror", "config.yaml"), nil
}

// DefaultCachePath returns ~/.local/share/wpmirror/wp_<collection>.json.
func DefaultCachePath(collection string) (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolving home directory: %w", err)
	}
	return filepath.Join(home, ".local", "share", "wpmirror", "wp_"+collection+".json"), nil
}

// Load reads and validates the configuration file at the given path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("opening config file %q: %w", path, err)
	}

	cfg, err := decode(data)
	if err != nil {
		return nil, fmt.Errorf("parsing config file %q: %w", path, err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// decode parses data strictly: unknown keys are errors.
func decode(data []byte) (*Config, error) {
	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// validate checks required fields and fills in defaults.
func (c *Config) validate() error {
	if c.SiteURL == "" {
		return fmt.Errorf("site_url is required")
	}
	site := c.SiteURL
	if !strings.Contains(site, "://") {
		site = "https://" + site
	}
	u, err := url.ParseRequestURI(site)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("site_url %q must be a valid http or https URL", c.SiteURL)
	}

	switch c.Collection {
	case "":
		c.Collection = "posts"
	case "posts", "photos":
	default:
		return fmt.Errorf("collection %q must be posts or photos", c.Collection)
	}

	switch c.CacheBackend {
	case "":
		c.CacheBackend = BackendFile
	case BackendFile:
	case BackendRedis:
		if c.Redis == nil || c.Redis.URL == "" {
			return fmt.Errorf("redis.url is required when cache_backend is redis")
		}
	default:
		return fmt.Errorf("cache_backend %q must be file or redis", c.CacheBackend)
	}

	if c.CachePath == "" {
		p, err := DefaultCachePath(c.Collection)
		if err != nil {
			return err
		}
		c.CachePath = p
	}

	if c.Concurrency == 0 {
		c.Concurrency = 5
	}
	if c.Concurrency < 1 || c.Concurrency > 10 {
		return fmt.Errorf("concurrency %d must be between 1 and 10", c.Concurrency)
	}

	if c.RewindPages != nil && *c.RewindPages < 0 {
		return fmt.Errorf("rewind_pages %d must not be negative", *c.RewindPages)
	}

	if c.HTTPTimeout == 0 {
		c.HTTPTimeout = 30 * time.Second
	}
	if c.HTTPTimeout < time.Second {
		return fmt.Errorf("http_timeout %v is too short (minimum 1s)", c.HTTPTimeout)
	}

	if c.PollBackoff == 0 {
		c.PollBackoff = 5
	}
	if c.PollBackoff < 0 {
		return fmt.Errorf("poll_backoff %d must not be negative", c.PollBackoff)
	}

	if c.Telemetry != nil && c.Telemetry.OTLPEndpoint == "" {
		return fmt.Errorf("telemetry.otlp_endpoint is required when telemetry is configured")
	}

	return nil
}

// EngineRewind converts rewind_pages to the sync engine's convention, where
// zero selects the default and a negative value disables the rewind.
func (c *Config) EngineRewind() int {
	switch {
	case c.RewindPages == nil:
		return 0
	case *c.RewindPages == 0:
		return -1
	default:
		return *c.RewindPages
	}
}

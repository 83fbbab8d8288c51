package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	f, err := os.CreateTemp(t.TempDir(), "config-*.yaml")
	if err != nil {
		t.Fatalf("creating temp config: %v", err)
	}
	if _, err := f.WriteString(content); err != nil {
		t.Fatalf("writing temp config: %v", err)
	}
	f.Close()
	return f.Name()
}

func TestLoad_Valid(t *testing.T) {
	path := writeConfig(t, `
site_url: "https://example.com"
collection: photos
cache_path: /tmp/wp_photos.json
concurrency: 3
rewind_pages: 4
http_timeout: 10s
poll_backoff: 8
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.SiteURL != "https://example.com" || cfg.Collection != "photos" {
		t.Errorf("site/collection = %q/%q", cfg.SiteURL, cfg.Collection)
	}
	if cfg.CachePath != "/tmp/wp_photos.json" {
		t.Errorf("CachePath = %q", cfg.CachePath)
	}
	if cfg.Concurrency != 3 || cfg.EngineRewind() != 4 {
		t.Errorf("Concurrency = %d, rewind = %d", cfg.Concurrency, cfg.EngineRewind())
	}
	if cfg.HTTPTimeout != 10*time.Second || cfg.PollBackoff != 8 {
		t.Errorf("HTTPTimeout = %v, PollBackoff = %d", cfg.HTTPTimeout, cfg.PollBackoff)
	}
}

func TestLoad_Defaults(t *testing.T) {
	path := writeConfig(t, `site_url: example.com`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Collection != "posts" || cfg.CacheBackend != BackendFile {
		t.Errorf("collection/backend = %q/%q", cfg.Collection, cfg.CacheBackend)
	}
	if cfg.Concurrency != 5 || cfg.HTTPTimeout != 30*time.Second || cfg.PollBackoff != 5 {
		t.Errorf("defaults = %d, %v, %d", cfg.Concurrency, cfg.HTTPTimeout, cfg.PollBackoff)
	}
	if !strings.HasSuffix(cfg.CachePath, filepath.Join("wpmirror", "wp_posts.json")) {
		t.Errorf("CachePath = %q", cfg.CachePath)
	}
	if cfg.EngineRewind() != 0 {
		t.Errorf("EngineRewind = %d, want 0 (engine default)", cfg.EngineRewind())
	}
}

func TestEngineRewind_ZeroDisables(t *testing.T) {
	cfg, err := Load(writeConfig(t, "site_url: https://example.com\nrewind_pages: 0\n"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.EngineRewind() != -1 {
		t.Errorf("EngineRewind = %d, want -1", cfg.EngineRewind())
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"missing site_url", `collection: posts`},
		{"bad scheme", `site_url: "ftp://example.com"`},
		{"bad collection", "site_url: https://example.com\ncollection: pages"},
		{"concurrency too high", "site_url: https://example.com\nconcurrency: 11"},
		{"negative rewind", "site_url: https://example.com\nrewind_pages: -1"},
		{"timeout too short", "site_url: https://example.com\nhttp_timeout: 10ms"},
		{"unknown backend", "site_url: https://example.com\ncache_backend: s3"},
		{"redis without url", "site_url: https://example.com\ncache_backend: redis"},
		{"unknown key", "site_url: https://example.com\nunknown_field: oops"},
		{"telemetry without endpoint", "site_url: https://example.com\ntelemetry:\n  insecure: true"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Load(writeConfig(t, tt.yaml)); err == nil {
				t.Fatal("expected error, got nil")
			}
		})
	}
}

func TestLoad_Redis(t *testing.T) {
	path := writeConfig(t, `
site_url: https://example.com
cache_backend: redis
redis:
  url: redis://localhost:6379/2
  prefix: "wp:photos"
  ttl: 24h
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Redis.URL != "redis://localhost:6379/2" || cfg.Redis.Prefix != "wp:photos" || cfg.Redis.TTL != 24*time.Hour {
		t.Errorf("Redis = %+v", cfg.Redis)
	}
}

func TestLoad_FileNotFound(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nonexistent.yaml"))
	if err == nil {
		t.Fatal("expected error for missing file, got nil")
	}
}

func TestDefaultPath(t *testing.T) {
	path, err := DefaultPath()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.HasSuffix(path, filepath.Join("wpmirror", "config.yaml")) {
		t.Errorf("DefaultPath = %q", path)
	}
}

func TestLoad_TelemetryHeaders(t *testing.T) {
	path := writeConfig(t, `
site_url: https://example.com
telemetry:
  otlp_endpoint: "otelcol.example.com:4317"
  service_name: "wpmirror-staging"
  headers:
    Authorization: "Bearer secret"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Telemetry == nil || cfg.Telemetry.ServiceName != "wpmirror-staging" {
		t.Fatalf("Telemetry = %+v", cfg.Telemetry)
	}
	if cfg.Telemetry.Headers["Authorization"] != "Bearer secret" {
		t.Errorf("Authorization header = %q", cfg.Telemetry.Headers["Authorization"])
	}
}

// ---------------------------------------------------------------------------
// SetOption
// ---------------------------------------------------------------------------

func TestSetOption_CreatesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	if err := SetOption(path, "", "site_url", "https://example.com"); err != nil {
		t.Fatalf("SetOption: %v", err)
	}
	if err := SetOption(path, "credentials", "env_file", "/etc/wpmirror.env"); err != nil {
		t.Fatalf("SetOption section: %v", err)
	}
	if err := SetOption(path, "", "concurrency", "7"); err != nil {
		t.Fatalf("SetOption int: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.SiteURL != "https://example.com" || cfg.Concurrency != 7 {
		t.Errorf("cfg = %+v", cfg)
	}
	if cfg.Credentials.EnvFile != "/etc/wpmirror.env" {
		t.Errorf("EnvFile = %q", cfg.Credentials.EnvFile)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Errorf("mode = %v, want 0600", info.Mode().Perm())
	}
}

func TestSetOption_KeepsCommentsAndOverwrites(t *testing.T) {
	path := writeConfig(t, `# wpmirror settings
site_url: https://example.com
redis:
  url: redis://old:6379 # primary
http_timeout: 30s
`)
	if err := SetOption(path, "redis", "url", "redis://new:6379"); err != nil {
		t.Fatalf("SetOption: %v", err)
	}
	if err := SetOption(path, "", "http_timeout", "45s"); err != nil {
		t.Fatalf("SetOption: %v", err)
	}

	data, _ := os.ReadFile(path)
	text := string(data)
	if !strings.Contains(text, "# wpmirror settings") || !strings.Contains(text, "# primary") {
		t.Errorf("comments lost:\n%s", text)
	}
	if strings.Count(text, "  url:") != 1 {
		t.Errorf("url duplicated:\n%s", text)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Redis.URL != "redis://new:6379" || cfg.HTTPTimeout != 45*time.Second {
		t.Errorf("cfg = %+v / %+v", cfg, cfg.Redis)
	}
}

func TestSetOption_RejectsUnknownKey(t *testing.T) {
	path := writeConfig(t, "site_url: https://example.com\n")
	before, _ := os.ReadFile(path)

	if err := SetOption(path, "", "site_ulr", "x"); err == nil {
		t.Fatal("expected error for unknown key")
	}
	after, _ := os.ReadFile(path)
	if string(before) != string(after) {
		t.Error("file changed after rejected option")
	}
}

// ---------------------------------------------------------------------------
// Credentials
// ---------------------------------------------------------------------------

func envMap(m map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

func TestCredentials_FromEnv(t *testing.T) {
	p := &EnvProvider{lookupEnv: envMap(map[string]string{
		"WP_USERNAME":     "editor",
		"WP_APP_PASSWORD": "abcd efgh",
	})}
	creds, err := p.Credentials()
	if err != nil {
		t.Fatalf("Credentials: %v", err)
	}
	if creds.Username != "editor" || creds.Password != "abcd efgh" {
		t.Errorf("creds = %+v", creds)
	}
}

func TestCredentials_EnvFileFallback(t *testing.T) {
	envFile := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(envFile, []byte("SITE_USER=fromfile\nSITE_PASS=\"s3cret\"\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	p := &EnvProvider{
		UsernameEnv: "SITE_USER",
		PasswordEnv: "SITE_PASS",
		EnvFile:     envFile,
		lookupEnv:   envMap(map[string]string{"SITE_USER": "fromenv"}),
	}
	creds, err := p.Credentials()
	if err != nil {
		t.Fatalf("Credentials: %v", err)
	}
	if creds.Username != "fromenv" || creds.Password != "s3cret" {
		t.Errorf("creds = %+v, want env username and file password", creds)
	}
}

func TestCredentials_Missing(t *testing.T) {
	p := &EnvProvider{lookupEnv: envMap(map[string]string{"WP_USERNAME": "editor"})}
	_, err := p.Credentials()
	if !errors.Is(err, ErrMissingCredentials) {
		t.Errorf("err = %v, want ErrMissingCredentials", err)
	}
	if err != nil && !strings.Contains(err.Error(), "WP_APP_PASSWORD") {
		t.Errorf("err = %v, should name the variable", err)
	}
}

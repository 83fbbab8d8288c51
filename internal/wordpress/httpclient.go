package wordpress

import (
	"net"
	"net/http"
	"time"
)

// HTTPConfig holds transport settings for the API client.
type HTTPConfig struct {
	// MaxIdleConnsPerHost should be at least the fetch pool size so pooled
	// page requests reuse connections.
	MaxIdleConnsPerHost int

	IdleConnTimeout       time.Duration
	Timeout               time.Duration
	DialTimeout           time.Duration
	TLSHandshakeTimeout   time.Duration
	ResponseHeaderTimeout time.Duration
}

// DefaultHTTPConfig returns settings suited to a single WordPress host.
func DefaultHTTPConfig() HTTPConfig {
	return HTTPConfig{
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       90 * time.Second,
		Timeout:               30 * time.Second,
		DialTimeout:           10 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 30 * time.Second,
	}
}

// NewHTTPClient creates an HTTP client from cfg. A nil cfg uses
// DefaultHTTPConfig.
func NewHTTPClient(cfg *HTTPConfig) *http.Client {
	if cfg == nil {
		d := DefaultHTTPConfig()
		cfg = &d
	}

	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   cfg.DialTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          cfg.MaxIdleConnsPerHost,
		MaxIdleConnsPerHost:   cfg.MaxIdleConnsPerHost,
		IdleConnTimeout:       cfg.IdleConnTimeout,
		TLSHandshakeTimeout:   cfg.TLSHandshakeTimeout,
		ResponseHeaderTimeout: cfg.ResponseHeaderTimeout,
		ForceAttemptHTTP2:     true,
		ExpectContinueTimeout: 1 * time.Second,
	}

	return &http.Client{
		Transport: transport,
		Timeout:   cfg.Timeout,
	}
}

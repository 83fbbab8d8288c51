// Package wordpress is a small client for the WordPress REST API (wp/v2).
// It provides paginated collection fetches with a bounded worker pool, post
// and term mutations, a two-phase media upload, and a 3-attempt
// exponential-backoff [Retry] helper for callers that need one.
package wordpress

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

var (
	// ErrAuth means the API answered without the pagination headers every
	// authenticated collection response carries. It is not retried.
	ErrAuth = errors.New("missing pagination headers: check the username and application password")

	// ErrNoMorePages is returned when the server rejects a page number past
	// the end of the collection.
	ErrNoMorePages = errors.New("no more pages")

	// ErrCreateRejected is returned when a create does not answer 201.
	ErrCreateRejected = errors.New("create rejected")

	// ErrMalformedResponse is returned when a response body cannot be decoded.
	ErrMalformedResponse = errors.New("malformed response")
)

// StatusError carries the raw HTTP status of a failed call so callers can
// branch on it.
type StatusError struct {
	Op     string
	Status int
	Code   string // WP error code, if the body had one
	Err    error
}

func (e *StatusError) Error() string {
	msg := fmt.Sprintf("%s: HTTP %d", e.Op, e.Status)
	if e.Code != "" {
		msg += " (" + e.Code + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *StatusError) Unwrap() error { return e.Err }

// Config configures a [Client].
type Config struct {
	// SiteURL is the site root, e.g. "https://example.com". A missing scheme
	// defaults to https.
	SiteURL  string
	Username string
	Password string

	// Concurrency bounds in-flight page requests in FetchAll. Defaults to
	// DefaultConcurrency.
	Concurrency int

	// HTTPClient overrides the transport. Tests point it at httptest servers.
	HTTPClient *http.Client
	Timeout    time.Duration
}

// DefaultConcurrency is the page-fetch pool size.
const DefaultConcurrency = 5

// Client talks to one WordPress site. It is safe for concurrent use.
type Client struct {
	apiBase     string
	username    string
	password    string
	concurrency int
	hc          *http.Client
	log         *slog.Logger
}

// NewClient builds a Client from cfg.
func NewClient(cfg Config, logger *slog.Logger) *Client {
	site := strings.TrimRight(cfg.SiteURL, "/")
	if !strings.HasPrefix(site, "http://") && !strings.HasPrefix(site, "https://") {
		site = "https://" + site
	}

	hc := cfg.HTTPClient
	if hc == nil {
		httpCfg := DefaultHTTPConfig()
		if cfg.Timeout > 0 {
			httpCfg.Timeout = cfg.Timeout
		}
		hc = NewHTTPClient(&httpCfg)
	}

	conc := cfg.Concurrency
	if conc <= 0 {
		conc = DefaultConcurrency
	}

	return &Client{
		apiBase:     site + "/wp-json/wp/v2",
		username:    cfg.Username,
		password:    cfg.Password,
		concurrency: conc,
		hc:          hc,
		log:         logger,
	}
}

// APIBase returns the wp/v2 root URL.
func (c *Client) APIBase() string { return c.apiBase }

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.apiBase+path, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.SetBasicAuth(c.username, c.password)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "wpmirror/1.0")
	return req, nil
}

// do executes req and returns the status and the full body.
func (c *Client) do(req *http.Request) (int, http.Header, []byte, error) {
	resp, err := c.hc.Do(req)
	if err != nil {
		return 0, nil, nil, fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, resp.Header, nil, fmt.Errorf("reading response body: %w", err)
	}
	return resp.StatusCode, resp.Header, body, nil
}

// sendJSON POSTs (or PUTs, DELETEs) v as JSON.
func (c *Client) sendJSON(ctx context.Context, method, path string, v any) (int, []byte, error) {
	var body io.Reader
	if v != nil {
		data, err := json.Marshal(v)
		if err != nil {
			return 0, nil, fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}
	req, err := c.newRequest(ctx, method, path, body)
	if err != nil {
		return 0, nil, err
	}
	if v != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	status, _, respBody, err := c.do(req)
	return status, respBody, err
}

// wpError is the error envelope WordPress returns with 4xx/5xx responses.
type wpError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func statusError(op string, status int, body []byte, sentinel error) *StatusError {
	var we wpError
	_ = json.Unmarshal(body, &we)
	var err error
	switch {
	case sentinel != nil:
		err = sentinel
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		err = errors.New("not authorized: check the username and application password")
	case we.Message != "":
		err = errors.New(we.Message)
	}
	return &StatusError{Op: op, Status: status, Code: we.Code, Err: err}
}

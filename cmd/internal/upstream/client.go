package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome classifies a backend exchange.
type Outcome int

const (
	// OutcomeOK means a 2xx response carrying JSON.
	OutcomeOK Outcome = iota
	// OutcomeRejected means a non-2xx response carrying JSON. The status
	// and body are preserved so handlers can relay them verbatim.
	OutcomeRejected
	// OutcomeMalformed means the backend answered with something other
	// than JSON, such as an HTML error page from a proxy.
	OutcomeMalformed
	// OutcomeTransport means the request never produced a response:
	// connection refused, DNS failure, timeout.
	OutcomeTransport
)

func (o Outcome) String() string {
	switch o {
	case OutcomeOK:
		return "ok"
	case OutcomeRejected:
		return "rejected"
	case OutcomeMalformed:
		return "malformed"
	case OutcomeTransport:
		return "transport"
	default:
		return "unknown"
	}
}

// Result is the classified outcome of one backend call.
type Result struct {
	Outcome Outcome
	Status  int
	Body    []byte
	Err     error
}

// OK reports whether the backend accepted the request.
func (r Result) OK() bool { return r.Outcome == OutcomeOK }

// Decode unmarshals the JSON body into v.
func (r Result) Decode(v any) error {
	if len(r.Body) == 0 {
		return fmt.Errorf("upstream: empty body")
	}
	return json.Unmarshal(r.Body, v)
}

const maxResponseBytes = 1 << 20

var upstreamRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "prism",
	Subsystem: "upstream",
	Name:      "requests_total",
	Help:      "Backend calls by path and classified outcome.",
}, []string{"path", "outcome"})

// Config holds the backend connection settings.
type Config struct {
	BaseURL    string
	Timeout    time.Duration
	HealthPath string
}

// LoadConfigFromEnv reads the backend settings from the environment.
func LoadConfigFromEnv() Config {
	cfg := Config{
		BaseURL:    "http://localhost:4000",
		Timeout:    10 * time.Second,
		HealthPath: "/api/health",
	}
	if v := strings.TrimSpace(os.Getenv("PRISM_UPSTREAM_BASE_URL")); v != "" {
		cfg.BaseURL = v
	}
	if v := strings.TrimSpace(os.Getenv("PRISM_UPSTREAM_TIMEOUT")); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.Timeout = d
		}
	}
	if v := strings.TrimSpace(os.Getenv("PRISM_UPSTREAM_HEALTH_PATH")); v != "" {
		cfg.HealthPath = v
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return cfg
}

// Client talks to the identity backend. It holds no session state;
// credentials travel per request via CallOptions.
type Client struct {
	cfg  Config
	http *http.Client
	log  *slog.Logger
}

// New creates a backend client. A nil logger falls back to slog.Default.
func New(cfg Config, log *slog.Logger) *Client {
	if log == nil {
		log = slog.Default()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		cfg: cfg,
		http: &http.Client{
			Timeout: timeout,
			// The gateway relays status codes itself; following a
			// redirect would hide them.
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		log: log,
	}
}

// BaseURL returns the configured backend base URL without a trailing slash.
func (c *Client) BaseURL() string { return strings.TrimRight(c.cfg.BaseURL, "/") }

// CallOption mutates the outgoing request before it is sent.
type CallOption func(*http.Request)

// WithBearer attaches an Authorization: Bearer header.
func WithBearer(token string) CallOption {
	return func(r *http.Request) {
		if token != "" {
			r.Header.Set("Authorization", "Bearer "+token)
		}
	}
}

// WithCookie forwards a cookie to the backend.
func WithCookie(name, value string) CallOption {
	return func(r *http.Request) {
		if name != "" && value != "" {
			r.AddCookie(&http.Cookie{Name: name, Value: value})
		}
	}
}

// Call performs one backend request and classifies the exchange.
// A non-nil body is JSON-encoded; the request always declares JSON
// content either way so the backend never falls back to form parsing.
func (c *Client) Call(ctx context.Context, method, path string, body any, opts ...CallOption) Result {
	var payload io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return c.finish(path, Result{Outcome: OutcomeTransport, Err: fmt.Errorf("upstream: encode request: %w", err)})
		}
		payload = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL()+path, payload)
	if err != nil {
		return c.finish(path, Result{Outcome: OutcomeTransport, Err: fmt.Errorf("upstream: build request: %w", err)})
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	for _, opt := range opts {
		opt(req)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Warn("upstream.call.transport", "method", method, "path", path, "error", err)
		return c.finish(path, Result{Outcome: OutcomeTransport, Err: err})
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		c.log.Warn("upstream.call.transport", "method", method, "path", path, "error", err)
		return c.finish(path, Result{Outcome: OutcomeTransport, Err: fmt.Errorf("upstream: read body: %w", err)})
	}

	if !isJSONContentType(resp.Header.Get("Content-Type")) {
		c.log.Warn("upstream.call.malformed",
			"method", method,
			"path", path,
			"status", resp.StatusCode,
			"content_type", resp.Header.Get("Content-Type"),
		)
		return c.finish(path, Result{Outcome: OutcomeMalformed, Status: resp.StatusCode, Body: raw})
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return c.finish(path, Result{Outcome: OutcomeRejected, Status: resp.StatusCode, Body: raw})
	}
	return c.finish(path, Result{Outcome: OutcomeOK, Status: resp.StatusCode, Body: raw})
}

// Ping checks backend reachability for the readiness probe.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL()+c.cfg.HealthPath, nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if _, err := io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes)); err != nil {
		return fmt.Errorf("upstream: drain health body: %w", err)
	}
	if resp.StatusCode >= 500 {
		return fmt.Errorf("upstream: health returned %d", resp.StatusCode)
	}
	return nil
}

func (c *Client) finish(path string, r Result) Result {
	upstreamRequestsTotal.WithLabelValues(path, r.Outcome.String()).Inc()
	return r
}

func isJSONContentType(ct string) bool {
	if ct == "" {
		return false
	}
	mt, _, err := mime.ParseMediaType(ct)
	if err != nil {
		return false
	}
	return mt == "application/json" || strings.HasSuffix(mt, "+json")
}

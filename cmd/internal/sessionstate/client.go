package sessionstate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"strings"
	"time"
)

// Session is the result of one introspection call.
type Session struct {
	Authenticated bool            `json:"authenticated"`
	User          json.RawMessage `json:"user"`
}

// RealtimeToken is a short-lived websocket credential.
type RealtimeToken struct {
	WSToken   string `json:"wsToken"`
	ExpiresIn int    `json:"expiresIn"`
}

// APIError is a non-2xx gateway response.
type APIError struct {
	Status  int
	Code    string `json:"error"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("gateway: %d %s: %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("gateway: unexpected status %d", e.Status)
}

// Client talks to the session gateway. The cookie jar holds the session;
// no token ever passes through application code.
type Client struct {
	base string
	http *http.Client
}

// NewClient builds a gateway client rooted at baseURL.
func NewClient(baseURL string) (*Client, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("cookie jar: %w", err)
	}
	return &Client{
		base: strings.TrimRight(baseURL, "/"),
		http: &http.Client{Jar: jar, Timeout: 10 * time.Second},
	}, nil
}

// Login exchanges credentials for a session. The gateway answers with
// Set-Cookie; the jar absorbs it.
func (c *Client) Login(ctx context.Context, credentials any) error {
	return c.post(ctx, "/auth/login", credentials)
}

// Register creates an account and logs it in.
func (c *Client) Register(ctx context.Context, payload any) error {
	return c.post(ctx, "/auth/register", payload)
}

// Refresh rotates the stored token pair.
func (c *Client) Refresh(ctx context.Context) error {
	return c.post(ctx, "/auth/refresh", nil)
}

// Logout drops the session. The gateway clears the cookies even when the
// backend is down, so this only fails on transport errors to the gateway
// itself.
func (c *Client) Logout(ctx context.Context) error {
	return c.post(ctx, "/auth/logout", nil)
}

// CheckSession asks the gateway whether the stored cookies form a live
// session. A 401 is a normal answer, not an error.
func (c *Client) CheckSession(ctx context.Context) (Session, error) {
	resp, err := c.do(ctx, http.MethodGet, "/auth/session", nil)
	if err != nil {
		return Session{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusUnauthorized {
		return Session{}, newAPIError(resp)
	}

	var s Session
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&s); err != nil {
		return Session{}, fmt.Errorf("decode session: %w", err)
	}
	return s, nil
}

// RealtimeToken fetches a websocket credential for the current session.
func (c *Client) RealtimeToken(ctx context.Context) (RealtimeToken, error) {
	resp, err := c.do(ctx, http.MethodGet, "/realtime/token", nil)
	if err != nil {
		return RealtimeToken{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return RealtimeToken{}, newAPIError(resp)
	}

	var tok RealtimeToken
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&tok); err != nil {
		return RealtimeToken{}, fmt.Errorf("decode realtime token: %w", err)
	}
	if tok.WSToken == "" {
		return RealtimeToken{}, fmt.Errorf("gateway returned an empty realtime token")
	}
	return tok, nil
}

func (c *Client) post(ctx context.Context, path string, body any) error {
	resp, err := c.do(ctx, http.MethodPost, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return newAPIError(resp)
	}
	io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<20))
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, body any) (*http.Response, error) {
	var payload io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		payload = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, payload)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("gateway request: %w", err)
	}
	return resp, nil
}

func newAPIError(resp *http.Response) error {
	apiErr := &APIError{Status: resp.StatusCode}
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err == nil {
		json.Unmarshal(raw, apiErr)
	}
	return apiErr
}

package dss

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

// Client defaults.
const (
	// DefaultPort is the port the dSS serves its JSON API on.
	DefaultPort = 8080

	// defaultRequestTimeout bounds a single round trip, including event polls.
	defaultRequestTimeout = 30 * time.Second

	// maxResponseSize caps the body read from the server (apartment/getDevices
	// on large installations is a few hundred KB).
	maxResponseSize = 8 << 20
)

// Requester sends one authenticated GET to the dSS JSON API and returns the
// decoded "result" member (nil when absent).
//
// Implementations must wrap ErrTransport for network and decode failures and
// ErrProtocol when the server answers ok=false.
type Requester interface {
	Request(ctx context.Context, path string, params url.Values) (any, error)
}

// ClientConfig holds the connection settings for a dSS.
type ClientConfig struct {
	Host     string
	Port     int
	User     string
	Password string

	// InsecureSkipVerify accepts the self-signed certificate most dSS
	// installations ship with.
	InsecureSkipVerify bool

	// Timeout bounds each request. Zero uses the default.
	Timeout time.Duration
}

// Client is the HTTPS Requester for a dSS. It owns the session token and
// logs in again once when the server reports an expired session.
type Client struct {
	cfg  ClientConfig
	base string
	http *http.Client

	token string
	mu    sync.RWMutex
}

// envelope is the outer shape of every dSS JSON response.
type envelope struct {
	OK      *bool  `json:"ok"`
	Message string `json:"message"`
	Result  any    `json:"result"`
}

// NewClient creates a client without contacting the server. Call Login
// before issuing requests.
func NewClient(cfg ClientConfig) *Client {
	if cfg.Port == 0 {
		cfg.Port = DefaultPort
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultRequestTimeout
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.TLSClientConfig = &tls.Config{
		MinVersion:         tls.VersionTLS12,
		InsecureSkipVerify: cfg.InsecureSkipVerify, //nolint:gosec // dSS uses self-signed certificates
	}

	return &Client{
		cfg:  cfg,
		base: fmt.Sprintf("https://%s:%d/json/", cfg.Host, cfg.Port),
		http: &http.Client{
			Transport: transport,
			Timeout:   cfg.Timeout,
		},
	}
}

// Login authenticates with user and password and stores the session token.
func (c *Client) Login(ctx context.Context) error {
	params := url.Values{}
	params.Set("user", c.cfg.User)
	params.Set("password", c.cfg.Password)

	result, err := c.do(ctx, "system/login", params)
	if err != nil {
		return fmt.Errorf("login: %w", err)
	}

	m, ok := result.(map[string]any)
	if !ok {
		return fmt.Errorf("login: %w: result is not an object", ErrProtocol)
	}
	token, ok := m["token"].(string)
	if !ok || token == "" {
		return fmt.Errorf("login: %w: result.token missing", ErrProtocol)
	}

	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
	return nil
}

// Request implements Requester.
func (c *Client) Request(ctx context.Context, path string, params url.Values) (any, error) {
	result, err := c.do(ctx, path, c.withToken(params))
	if err != nil && isSessionExpired(err) {
		if loginErr := c.Login(ctx); loginErr != nil {
			return nil, loginErr
		}
		result, err = c.do(ctx, path, c.withToken(params))
	}
	return result, err
}

// withToken returns a copy of params carrying the current session token.
func (c *Client) withToken(params url.Values) url.Values {
	out := url.Values{}
	for k, v := range params {
		out[k] = append([]string(nil), v...)
	}

	c.mu.RLock()
	out.Set("token", c.token)
	c.mu.RUnlock()
	return out
}

// do performs the GET and unwraps the envelope.
func (c *Client) do(ctx context.Context, path string, params url.Values) (any, error) {
	u := c.base + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrTransport, path, err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrTransport, path, err)
	}
	defer resp.Body.Close()

	var env envelope
	dec := json.NewDecoder(io.LimitReader(resp.Body, maxResponseSize))
	if err := dec.Decode(&env); err != nil {
		return nil, fmt.Errorf("%w: %s: decoding response (HTTP %d): %w", ErrTransport, path, resp.StatusCode, err)
	}

	if env.OK == nil {
		return nil, fmt.Errorf("%w: %s: field ok missing", ErrProtocol, path)
	}
	if !*env.OK {
		msg := env.Message
		if msg == "" {
			msg = "request failed"
		}
		return nil, fmt.Errorf("%w: %s: %s", ErrProtocol, path, msg)
	}

	return env.Result, nil
}

// isSessionExpired reports whether the server rejected the token.
func isSessionExpired(err error) bool {
	return errors.Is(err, ErrProtocol) && strings.Contains(strings.ToLower(err.Error()), "not logged in")
}

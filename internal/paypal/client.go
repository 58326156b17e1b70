package paypal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/sync/singleflight"

	"github.com/nkiryanov/checkout/internal/clock"
	"github.com/nkiryanov/checkout/internal/logger"
)

const (
	SandboxURL = "https://api-m.sandbox.paypal.com"
	LiveURL    = "https://api-m.paypal.com"

	defaultTimeout        = 15 * time.Second
	defaultBreakerTimeout = 30 * time.Second

	// Provider responses are small JSON documents; anything bigger is not PayPal talking
	maxResponseBytes = 1 << 20
)

// errProviderUnavailable marks 5xx responses for the circuit breaker only, never returned to callers
var errProviderUnavailable = errors.New("provider unavailable")

// Client configuration with sensible defaults
type Config struct {
	// Base URLs. If not set PayPal production and sandbox are used
	SandboxURL string
	LiveURL    string

	// Branding and redirects sent with every created order
	BrandName string
	ReturnURL string
	CancelURL string

	// Request timeout. If not set than default is used
	Timeout time.Duration

	// Consecutive transport failures or 5xx responses after which requests fail fast
	// Zero disables the breaker
	BreakerThreshold uint32

	// How long the breaker stays open. If not set than default is used
	BreakerTimeout time.Duration
}

type Option func(*Client)

// WithClock replaces the system clock used to compute token expiry
func WithClock(c clock.Clock) Option {
	return func(client *Client) {
		client.clock = c
	}
}

func WithLogger(l logger.Logger) Option {
	return func(client *Client) {
		client.logger = l
	}
}

// WithHTTPClient replaces the underlying http client (Config.Timeout is not applied then)
func WithHTTPClient(hc *http.Client) Option {
	return func(client *Client) {
		client.http = hc
	}
}

// Client talks to PayPal REST checkout API.
// Safe for concurrent use: tokens are cached in the store per credential pair and
// concurrent refreshes of the same pair share one token request.
type Client struct {
	sandboxURL string
	liveURL    string

	brandName string
	returnURL string
	cancelURL string

	http    *http.Client
	breaker *gobreaker.CircuitBreaker
	store   TokenStore
	flight  singleflight.Group

	clock  clock.Clock
	logger logger.Logger
}

func New(cfg Config, store TokenStore, opts ...Option) *Client {
	setDefault := func(field *string, def string) {
		if *field == "" {
			*field = def
		}
	}
	setDefault(&cfg.SandboxURL, SandboxURL)
	setDefault(&cfg.LiveURL, LiveURL)

	if cfg.Timeout == 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.BreakerTimeout == 0 {
		cfg.BreakerTimeout = defaultBreakerTimeout
	}
	if store == nil {
		store = NewMemoryStore()
	}

	c := &Client{
		sandboxURL: strings.TrimRight(cfg.SandboxURL, "/"),
		liveURL:    strings.TrimRight(cfg.LiveURL, "/"),
		brandName:  cfg.BrandName,
		returnURL:  cfg.ReturnURL,
		cancelURL:  cfg.CancelURL,
		http:       &http.Client{Timeout: cfg.Timeout},
		store:      store,
		clock:      clock.NewSystem(),
		logger:     logger.NewNoOpLogger(),
	}

	for _, opt := range opts {
		opt(c)
	}

	if cfg.BreakerThreshold > 0 {
		threshold := cfg.BreakerThreshold
		c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    "paypal",
			Timeout: cfg.BreakerTimeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= threshold
			},
			OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
				c.logger.Warn("Circuit breaker state changed", "name", name, "from", from.String(), "to", to.String())
			},
		})
	}

	return c
}

// baseURL is the only thing the sandbox flag changes
func (c *Client) baseURL(sandbox bool) string {
	if sandbox {
		return c.sandboxURL
	}
	return c.liveURL
}

type exchange struct {
	status int
	body   []byte
}

// do sends request and decodes 2xx body into out (if not nil)
// Any failure is returned as *Error carrying the provider payload when there is one
func (c *Client) do(op string, req *http.Request, out any) (exchange, error) {
	ex, err := c.roundTrip(req)
	if err != nil {
		c.logger.Warn("PayPal request failed", "op", op, "error", err)
		return ex, &Error{Op: op, Kind: KindTransport, Err: err}
	}

	if ex.status < 200 || ex.status > 299 {
		c.logger.Warn("PayPal returned error status", "op", op, "status_code", ex.status)
		return ex, newStatusError(op, ex.status, ex.body)
	}

	if out != nil {
		if err := decode(ex.body, out); err != nil {
			return ex, &Error{Op: op, Kind: KindDecode, StatusCode: ex.status, Body: ex.body, Err: err}
		}
	}

	return ex, nil
}

func (c *Client) roundTrip(req *http.Request) (exchange, error) {
	if c.breaker == nil {
		return c.exchange(req)
	}

	var ex exchange
	var rtErr error

	_, err := c.breaker.Execute(func() (any, error) {
		ex, rtErr = c.exchange(req)
		switch {
		case rtErr != nil && req.Context().Err() != nil:
			// Caller gave up, provider is not to blame
			return nil, nil
		case rtErr != nil:
			return nil, rtErr
		case ex.status >= 500:
			return nil, errProviderUnavailable
		}
		return nil, nil
	})

	switch {
	case rtErr != nil:
		return ex, rtErr
	case err != nil && !errors.Is(err, errProviderUnavailable):
		// Open or half-open breaker rejected the request
		return ex, err
	default:
		return ex, nil
	}
}

func (c *Client) exchange(req *http.Request) (exchange, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return exchange{}, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close() // nolint:errcheck

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return exchange{status: resp.StatusCode}, fmt.Errorf("failed to read response: %w", err)
	}

	return exchange{status: resp.StatusCode, body: body}, nil
}

func newJSONRequest(ctx context.Context, method string, url string, token AccessToken, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+token.Value)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return req, nil
}

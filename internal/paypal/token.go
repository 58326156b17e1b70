package paypal

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

// Token is refreshed this much earlier than PayPal says it expires,
// so it never expires in the middle of a request
const (
	tokenSafetyMargin = time.Minute

	// PayPal tokens live about nine hours, longer expires_in is not trusted
	maxTokenLifetime = 24 * time.Hour
)

var ErrTokenNotFound = errors.New("token not found")

// Credentials of PayPal REST app
// Sandbox switches base URL only, request and response shapes stay the same
type Credentials struct {
	ClientID     string
	ClientSecret string
	Sandbox      bool
}

// key identifies credential pair in the token store without exposing the secret
func (c Credentials) key() string {
	env := "live"
	if c.Sandbox {
		env = "sandbox"
	}

	sum := sha256.Sum256([]byte(c.ClientID + ":" + c.ClientSecret))
	return env + ":" + hex.EncodeToString(sum[:16])
}

// AccessToken is opaque bearer token
// Value and ExpiresAt are always replaced together
type AccessToken struct {
	Value     string    `json:"value"`
	ExpiresAt time.Time `json:"expires_at"`
}

// TokenStore keeps access tokens per credential pair
type TokenStore interface {
	// Has to return ErrTokenNotFound if there is no token for the key
	Get(ctx context.Context, key string) (AccessToken, error)
	Save(ctx context.Context, key string, token AccessToken) error
}

// MemoryStore is process local TokenStore
type MemoryStore struct {
	mu     sync.RWMutex
	tokens map[string]AccessToken
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{tokens: make(map[string]AccessToken)}
}

func (s *MemoryStore) Get(_ context.Context, key string) (AccessToken, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	token, ok := s.tokens[key]
	if !ok {
		return AccessToken{}, ErrTokenNotFound
	}
	return token, nil
}

func (s *MemoryStore) Save(_ context.Context, key string, token AccessToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.tokens[key] = token
	return nil
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

// AccessToken returns cached token while it is valid, otherwise exchanges client credentials for a new one.
// Concurrent callers missing the cache for the same credentials share one token request.
func (c *Client) AccessToken(ctx context.Context, creds Credentials) (AccessToken, error) {
	key := creds.key()

	if token, ok := c.cachedToken(ctx, key); ok {
		return token, nil
	}

	// Joined callers must not fail because the first one gave up, so detach from its cancellation.
	// The http client timeout still bounds the request.
	flightCtx := context.WithoutCancel(ctx)

	ch := c.flight.DoChan(key, func() (any, error) {
		// Token may have been stored while waiting for the flight
		if token, ok := c.cachedToken(flightCtx, key); ok {
			return token, nil
		}
		return c.fetchToken(flightCtx, creds, key)
	})

	// The caller may leave early, the fetch goes on for the others
	select {
	case <-ctx.Done():
		return AccessToken{}, &Error{Op: "oauth2 token", Kind: KindTransport, Err: context.Cause(ctx)}
	case res := <-ch:
		if res.Err != nil {
			return AccessToken{}, res.Err
		}
		if res.Shared {
			c.logger.Debug("Joined in-flight token request")
		}
		return res.Val.(AccessToken), nil
	}
}

func (c *Client) cachedToken(ctx context.Context, key string) (AccessToken, bool) {
	token, err := c.store.Get(ctx, key)

	switch {
	case errors.Is(err, ErrTokenNotFound):
		return token, false
	case err != nil:
		c.logger.Warn("Failed to read token from store, fetching new one", "error", err)
		return token, false
	case c.clock.Now().Before(token.ExpiresAt):
		return token, true
	default:
		return token, false
	}
}

func (c *Client) fetchToken(ctx context.Context, creds Credentials, key string) (AccessToken, error) {
	const op = "oauth2 token"

	form := url.Values{}
	form.Set("grant_type", "client_credentials")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL(creds.Sandbox)+"/v1/oauth2/token", strings.NewReader(form.Encode()))
	if err != nil {
		return AccessToken{}, &Error{Op: op, Kind: KindRequest, Err: fmt.Errorf("failed to create request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	req.SetBasicAuth(creds.ClientID, creds.ClientSecret)

	var resp tokenResponse
	ex, err := c.do(op, req, &resp)
	if err != nil {
		return AccessToken{}, err
	}
	if resp.AccessToken == "" {
		return AccessToken{}, &Error{Op: op, Kind: KindDecode, StatusCode: ex.status, Body: ex.body, Err: errors.New("empty access_token")}
	}

	token := AccessToken{
		Value:     resp.AccessToken,
		ExpiresAt: c.clock.Now().Add(tokenLifetime(resp.ExpiresIn) - tokenSafetyMargin),
	}

	if err := c.store.Save(ctx, key, token); err != nil {
		c.logger.Warn("Failed to save token to store", "error", err)
	}

	c.logger.Debug("Fetched PayPal access token", "sandbox", creds.Sandbox, "expires_at", token.ExpiresAt)
	return token, nil
}

// tokenLifetime converts expires_in seconds to duration, clamped to [0, maxTokenLifetime]
func tokenLifetime(expiresIn int64) time.Duration {
	if expiresIn <= 0 {
		return 0
	}
	if expiresIn > int64(maxTokenLifetime/time.Second) {
		return maxTokenLifetime
	}
	return time.Duration(expiresIn) * time.Second
}

// Package platform implements the PlatformClient port against the platform's
// OAuth2 and REST APIs. Token exchange and refresh go through
// golang.org/x/oauth2; REST calls use a plain http.Client with capped
// exponential backoff on throttling and server errors.
package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/oauth2"

	"github.com/rosterhub/rosterhub/internal/domain/model"
	"github.com/rosterhub/rosterhub/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.PlatformClient = (*Client)(nil)

const maxRetries = 3

// Config holds everything needed to talk to the platform.
type Config struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	AuthURL      string
	TokenURL     string
	APIBaseURL   string

	// ServiceToken is the application's own privileged credential, used for
	// group-membership grants and log-channel posts.
	ServiceToken string

	// HTTPClient overrides the transport. Intended for tests.
	HTTPClient *http.Client
}

// Client is the HTTP implementation of the PlatformClient port.
type Client struct {
	oauth        *oauth2.Config
	apiBase      string
	serviceToken string
	http         *http.Client
	logger       *slog.Logger
}

// NewClient creates a platform client from the given config.
func NewClient(cfg Config, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}

	return &Client{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Endpoint: oauth2.Endpoint{
				AuthURL:  cfg.AuthURL,
				TokenURL: cfg.TokenURL,
			},
		},
		apiBase:      cfg.APIBaseURL,
		serviceToken: cfg.ServiceToken,
		http:         httpClient,
		logger:       logger,
	}
}

// AuthCodeURL returns the URL a member visits to begin authorization.
func (c *Client) AuthCodeURL(state string) string {
	return c.oauth.AuthCodeURL(state, oauth2.AccessTypeOffline)
}

// ExchangeCode swaps an authorization code for a token pair.
func (c *Client) ExchangeCode(ctx context.Context, code string) (model.TokenPair, error) {
	tok, err := c.oauth.Exchange(c.oauthContext(ctx), code)
	if err != nil {
		return model.TokenPair{}, fmt.Errorf("exchange authorization code: %w", err)
	}
	return model.TokenPair{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
	}, nil
}

// RefreshToken obtains a fresh token pair. A response that carries no new
// access token surfaces as an error; a response without a rotated refresh
// token yields a pair whose RefreshToken is empty or carries the old value,
// which callers treat as "retain the stored one".
func (c *Client) RefreshToken(ctx context.Context, refreshToken string) (model.TokenPair, error) {
	src := c.oauth.TokenSource(c.oauthContext(ctx), &oauth2.Token{RefreshToken: refreshToken})
	tok, err := src.Token()
	if err != nil {
		return model.TokenPair{}, fmt.Errorf("refresh token: %w", err)
	}
	return model.TokenPair{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
	}, nil
}

// identityResponse is the platform's self-identity payload.
type identityResponse struct {
	ID          string `json:"id"`
	Username    string `json:"username"`
	GlobalName  string `json:"global_name"`
	AvatarHash  string `json:"avatar"`
	DisplayName string `json:"display_name"`
}

// Identity fetches the authorizing account's identity using its access token.
func (c *Client) Identity(ctx context.Context, accessToken string) (model.Identity, error) {
	body, err := c.do(ctx, http.MethodGet, "/users/@me", "Bearer "+accessToken, nil)
	if err != nil {
		return model.Identity{}, fmt.Errorf("fetch identity: %w", err)
	}

	var resp identityResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return model.Identity{}, fmt.Errorf("decode identity: %w", err)
	}
	if resp.ID == "" {
		return model.Identity{}, fmt.Errorf("identity response missing id")
	}

	name := resp.DisplayName
	if name == "" {
		name = resp.GlobalName
	}
	if name == "" {
		name = resp.Username
	}

	return model.Identity{
		ID:          resp.ID,
		DisplayName: name,
		AvatarURL:   resp.AvatarHash,
	}, nil
}

// AddGroupMember grants the member membership in the target group. The call
// authenticates with the service token and consents with the member's own
// access token.
func (c *Client) AddGroupMember(ctx context.Context, groupID, memberID, accessToken string) error {
	payload, err := json.Marshal(map[string]string{"access_token": accessToken})
	if err != nil {
		return fmt.Errorf("encode grant payload: %w", err)
	}

	path := fmt.Sprintf("/groups/%s/members/%s", groupID, memberID)
	if _, err := c.do(ctx, http.MethodPut, path, "Bearer "+c.serviceToken, payload); err != nil {
		return fmt.Errorf("add member %s to group %s: %w", memberID, groupID, err)
	}
	return nil
}

// PostLogMessage posts a log line to the given platform channel using the
// service token.
func (c *Client) PostLogMessage(ctx context.Context, channelRef, text string) error {
	payload, err := json.Marshal(map[string]string{"content": text})
	if err != nil {
		return fmt.Errorf("encode log payload: %w", err)
	}

	path := fmt.Sprintf("/channels/%s/messages", channelRef)
	if _, err := c.do(ctx, http.MethodPost, path, "Bearer "+c.serviceToken, payload); err != nil {
		return fmt.Errorf("post log message to %s: %w", channelRef, err)
	}
	return nil
}

// APIError is a non-2xx platform response.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("platform api status %d: %s", e.Status, e.Body)
}

// retryable reports whether the request should be retried: throttling and
// server-side failures are, everything else is not.
func (e *APIError) retryable() bool {
	return e.Status == http.StatusTooManyRequests || e.Status >= 500
}

// do performs one API request with capped exponential backoff on retryable
// failures. It returns the response body on any 2xx status.
func (c *Client) do(ctx context.Context, method, path, authorization string, payload []byte) ([]byte, error) {
	var body []byte

	operation := func() error {
		var reader io.Reader
		if payload != nil {
			reader = bytes.NewReader(payload)
		}

		req, err := http.NewRequestWithContext(ctx, method, c.apiBase+path, reader)
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Authorization", authorization)
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.http.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		if err != nil {
			return err
		}

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			body = data
			return nil
		}

		apiErr := &APIError{Status: resp.StatusCode, Body: string(data)}
		if !apiErr.retryable() {
			return backoff.Permanent(apiErr)
		}

		if wait := retryAfter(resp); wait > 0 {
			c.logger.Warn("platform throttled, honoring retry-after",
				"path", path,
				"wait", wait,
			)
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				return backoff.Permanent(ctx.Err())
			}
		}
		return apiErr
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), maxRetries), ctx)
	if err := backoff.Retry(operation, policy); err != nil {
		return nil, err
	}
	return body, nil
}

// retryAfter extracts a Retry-After delay in seconds, if present.
func retryAfter(resp *http.Response) time.Duration {
	header := resp.Header.Get("Retry-After")
	if header == "" {
		return 0
	}
	secs, err := strconv.ParseFloat(header, 64)
	if err != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs * float64(time.Second))
}

// oauthContext injects our HTTP client into the oauth2 library's context so
// tests can intercept token endpoint traffic.
func (c *Client) oauthContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, c.http)
}

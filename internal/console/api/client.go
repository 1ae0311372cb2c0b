// Package api talks to the desk service: the login collaborator that issues
// credentials, the anti-forgery token endpoint, and the resource reads the
// cache domains fetch through. The session core consumes only the success
// shape of the login call; everything else about authentication lives
// server-side.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/aussiebroadwan/opsdesk/internal/console/domain"

	"golang.org/x/time/rate"
)

var (
	// ErrAuthenticationRejected reports that the desk service refused
	// the login attempt. The session stays Unauthenticated; nothing was
	// written anywhere.
	ErrAuthenticationRejected = errors.New("api: authentication rejected")

	// ErrLoginThrottled reports that the client-side attempt limiter
	// refused to send another login request yet.
	ErrLoginThrottled = errors.New("api: too many login attempts, slow down")
)

// Client is a client for the desk service.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client

	logger *slog.Logger

	// loginLimiter throttles login attempts before they reach the wire.
	// The server throttles too; this just keeps the console polite.
	loginLimiter *rate.Limiter
}

func NewClient(baseURL string, logger *slog.Logger) *Client {
	return &Client{
		BaseURL: strings.TrimSuffix(baseURL, "/"),
		HTTPClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		logger:       logger,
		loginLimiter: rate.NewLimiter(rate.Every(2*time.Second), 5),
	}
}

// LoginResult is the success shape of the login collaborator.
type LoginResult struct {
	Credential string          `json:"credential"`
	Identity   domain.Identity `json:"identity"`
}

// Login exchanges an identifier and secret for a credential and identity.
// A 401 or 403 maps to ErrAuthenticationRejected; other failures surface as
// APIError.
func (c *Client) Login(ctx context.Context, identifier, secret string) (*LoginResult, error) {
	if !c.loginLimiter.Allow() {
		return nil, ErrLoginThrottled
	}

	form := url.Values{
		"identifier": {identifier},
		"secret":     {secret},
	}

	req, err := http.NewRequestWithContext(
		ctx,
		http.MethodPost,
		c.BaseURL+"/v1/session",
		strings.NewReader(form.Encode()),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		// fallthrough to decode
	case http.StatusUnauthorized, http.StatusForbidden:
		apiErr := readAPIError(resp)
		return nil, fmt.Errorf("%w: %s", ErrAuthenticationRejected, apiErr.Message)
	default:
		return nil, readAPIError(resp)
	}

	var result LoginResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode login response: %w", err)
	}
	if result.Credential == "" {
		return nil, fmt.Errorf("login response missing credential")
	}

	return &result, nil
}

// FetchCSRFToken asks the desk service for a secondary anti-forgery token.
// Called opportunistically after login; a failure here is the caller's to
// log and ignore, never a reason to unwind a completed login.
func (c *Client) FetchCSRFToken(ctx context.Context, credential string) (string, error) {
	var payload struct {
		Token string `json:"csrf_token"`
	}
	if err := c.GetJSON(ctx, credential, "/v1/csrf", &payload); err != nil {
		return "", err
	}
	if payload.Token == "" {
		return "", fmt.Errorf("api: empty csrf token")
	}
	return payload.Token, nil
}

// GetJSON performs an authenticated GET and decodes the JSON response into
// out. The cache domains use this as their fetch function.
func (c *Client) GetJSON(ctx context.Context, credential, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+credential)
	req.Header.Set("Accept", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return readAPIError(resp)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// APIError is the desk service's error envelope.
type APIError struct {
	StatusCode int    `json:"-"`
	Code       string `json:"code"`
	Message    string `json:"message"`
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("api: %s (%s)", e.Message, e.Code)
	}
	return fmt.Sprintf("api: request failed with status %d", e.StatusCode)
}

// readAPIError parses the error envelope from a non-200 response, falling
// back to the raw status when the body isn't the expected shape.
func readAPIError(resp *http.Response) *APIError {
	apiErr := &APIError{StatusCode: resp.StatusCode}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err != nil {
		return apiErr
	}
	_ = json.Unmarshal(body, apiErr)
	return apiErr
}

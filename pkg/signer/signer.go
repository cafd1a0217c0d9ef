// Package signer fetches time-limited signed URLs used to open a
// realtime voice channel for a specific agent.
package signer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// DefaultBaseURL is the ElevenLabs API root.
const DefaultBaseURL = "https://api.elevenlabs.io"

const signedURLPath = "/v1/convai/conversation/get_signed_url"

var (
	// ErrSigning is returned when the upstream provider rejects the agent
	// id or credentials. Surfaced to the caller, never retried internally.
	ErrSigning = errors.New("signed url request rejected")
	// ErrTimeout is returned when the signed URL fetch exceeds its bounded
	// timeout.
	ErrTimeout = errors.New("signed url request timed out")
)

// Source provides signed connection URLs. Implemented by Client; fakes
// implement it in tests.
type Source interface {
	SignedURL(ctx context.Context, agentID string) (string, error)
}

// Client is an HTTP signed-URL source backed by the provider API.
type Client struct {
	baseURL string
	apiKey  string
	timeout time.Duration
	httpc   *http.Client
}

// Config holds signer client configuration.
type Config struct {
	// BaseURL is the provider API root (default: DefaultBaseURL).
	BaseURL string
	// APIKey is the provider credential, sent as the xi-api-key header.
	APIKey string
	// Timeout bounds each signed URL fetch (default: 10s).
	Timeout time.Duration
	// HTTPClient overrides the transport (optional).
	HTTPClient *http.Client
}

// NewClient creates a signed-URL client.
func NewClient(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: api key is required", ErrSigning)
	}

	base := cfg.BaseURL
	if base == "" {
		base = DefaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	httpc := cfg.HTTPClient
	if httpc == nil {
		httpc = &http.Client{}
	}

	return &Client{baseURL: base, apiKey: cfg.APIKey, timeout: timeout, httpc: httpc}, nil
}

// SignedURL requests a signed connection URL for the given agent.
func (c *Client) SignedURL(ctx context.Context, agentID string) (string, error) {
	if agentID == "" {
		return "", fmt.Errorf("%w: agent id is required", ErrSigning)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	u := c.baseURL + signedURLPath + "?agent_id=" + url.QueryEscape(agentID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return "", fmt.Errorf("build signed url request: %w", err)
	}
	req.Header.Set("xi-api-key", c.apiKey)

	resp, err := c.httpc.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || ctx.Err() == context.DeadlineExceeded {
			return "", fmt.Errorf("%w: %v", ErrTimeout, err)
		}
		return "", fmt.Errorf("%w: %v", ErrSigning, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: status %d", ErrSigning, resp.StatusCode)
	}

	var body struct {
		SignedURL string `json:"signed_url"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("%w: decode response: %v", ErrSigning, err)
	}
	if body.SignedURL == "" {
		return "", fmt.Errorf("%w: empty signed_url in response", ErrSigning)
	}
	return body.SignedURL, nil
}

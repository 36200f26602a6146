package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/mbd888/walletrisk/internal/retry"
)

const (
	defaultAttempts  = 3
	defaultBaseDelay = 200 * time.Millisecond
	maxResponseBytes = 4 << 20
)

// Config holds the configuration for connecting to the scoring API.
type Config struct {
	APIURL string // Base URL, e.g. "http://localhost:8080"
	APIKey string // Optional bearer token for a gateway in front of the API

	// Attempts bounds retries of 429 and 5xx gateway responses. Zero means 3.
	Attempts  int
	BaseDelay time.Duration
}

// APIError is a non-2xx answer from the scoring API.
type APIError struct {
	Status  int
	Code    string `json:"error"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("API error (%d): %s", e.Status, e.Message)
	}
	return fmt.Sprintf("API error (%d): %s", e.Status, e.Code)
}

func (e *APIError) transient() bool {
	switch e.Status {
	case http.StatusTooManyRequests, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	return false
}

// Client reads scores and assessments from the wallet risk API.
type Client struct {
	cfg        Config
	httpClient *http.Client
}

func NewClient(cfg Config) *Client {
	if cfg.Attempts <= 0 {
		cfg.Attempts = defaultAttempts
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = defaultBaseDelay
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// get fetches path and returns the raw JSON body, retrying transient failures.
func (c *Client) get(ctx context.Context, path string, query url.Values) (json.RawMessage, error) {
	u, err := url.Parse(c.cfg.APIURL + path)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}
	u.RawQuery = query.Encode()

	var body json.RawMessage
	err = retry.Do(ctx, c.cfg.Attempts, c.cfg.BaseDelay, func() error {
		var err error
		body, err = c.once(ctx, u.String())
		return err
	})
	return body, err
}

func (c *Client) once(ctx context.Context, target string) (json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, retry.Permanent(fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Accept", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 400 {
		return json.RawMessage(data), nil
	}

	apiErr := &APIError{Status: resp.StatusCode}
	if json.Unmarshal(data, apiErr) != nil || (apiErr.Code == "" && apiErr.Message == "") {
		apiErr.Message = string(data)
	}
	if !apiErr.transient() {
		return nil, retry.Permanent(apiErr)
	}
	if secs, convErr := strconv.Atoi(resp.Header.Get("Retry-After")); convErr == nil && secs > 0 {
		return nil, retry.After(apiErr, time.Duration(secs)*time.Second)
	}
	return nil, apiErr
}

// Evaluate scores a wallet and assesses its fraud risk.
func (c *Client) Evaluate(ctx context.Context, address string) (json.RawMessage, error) {
	return c.get(ctx, "/v1/wallets/"+url.PathEscape(address), nil)
}

// Score returns a wallet's credit score, cached when fresh.
func (c *Client) Score(ctx context.Context, address string) (json.RawMessage, error) {
	return c.get(ctx, "/v1/wallets/"+url.PathEscape(address)+"/score", nil)
}

func (c *Client) Fraud(ctx context.Context, address string) (json.RawMessage, error) {
	return c.get(ctx, "/v1/wallets/"+url.PathEscape(address)+"/fraud", nil)
}

func (c *Client) Features(ctx context.Context, address string) (json.RawMessage, error) {
	return c.get(ctx, "/v1/wallets/"+url.PathEscape(address)+"/features", nil)
}

// FlaggedWallets lists recent assessments that crossed the review threshold.
func (c *Client) FlaggedWallets(ctx context.Context, limit int) (json.RawMessage, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	return c.get(ctx, "/v1/fraud/flagged", q)
}

// Package notion implements the integration.Service contract for Notion
// databases over the public REST API.
package notion

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/tidwall/gjson"
	"golang.org/x/oauth2"

	"github.com/steveyegge/actionsync/internal/integration"
)

const (
	// DefaultBaseURL is the public Notion API endpoint.
	DefaultBaseURL = "https://api.notion.com/v1"

	// APIVersion is sent as the Notion-Version header.
	APIVersion = "2022-06-28"

	pageSize    = 100
	maxAttempts = 3
)

func init() {
	integration.Register(integration.ProviderNotion, func(creds integration.Credentials) (integration.Service, error) {
		return New(creds)
	})
}

// Client talks to one Notion workspace.
type Client struct {
	baseURL string
	http    *http.Client
	logger  *log.Logger

	// sleep waits between read retries; replaced in tests
	sleep func(ctx context.Context, d time.Duration) error
}

// New creates a Notion client. The token is sent as a Bearer credential
// through an oauth2 static token source unless Credentials.HTTPClient is set.
func New(creds integration.Credentials) (*Client, error) {
	httpClient := creds.HTTPClient
	if httpClient == nil {
		if creds.Token == "" {
			return nil, fmt.Errorf("notion: token is required: %w", integration.ErrUnauthorized)
		}
		ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: creds.Token, TokenType: "Bearer"})
		httpClient = oauth2.NewClient(context.Background(), ts)
		httpClient.Timeout = 30 * time.Second
	}

	baseURL := creds.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	return &Client{
		baseURL: baseURL,
		http:    httpClient,
		logger:  log.New(os.Stderr, "[notion] ", log.LstdFlags),
		sleep:   sleepContext,
	}, nil
}

// SetLogger replaces the client logger.
func (c *Client) SetLogger(l *log.Logger) {
	if l != nil {
		c.logger = l
	}
}

// Provider returns integration.ProviderNotion.
func (c *Client) Provider() integration.Provider {
	return integration.ProviderNotion
}

// do sends one API request and returns the response body. Read requests
// (retry=true) are retried on 429 and 5xx, honoring Retry-After.
func (c *Client) do(ctx context.Context, method, path string, body any, retry bool) ([]byte, error) {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request: %w", err)
		}
	}

	attempts := 1
	if retry {
		attempts = maxAttempts
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		respBody, wait, err := c.roundTrip(ctx, method, path, payload)
		if err == nil {
			return respBody, nil
		}
		lastErr = err
		if attempt == attempts || !integration.IsRetryable(err) {
			break
		}

		if wait <= 0 {
			wait = time.Duration(attempt) * 500 * time.Millisecond
		}
		c.logger.Printf("%s %s failed (attempt %d/%d), retrying in %s: %v", method, path, attempt, attempts, wait, err)
		if err := c.sleep(ctx, wait); err != nil {
			return nil, err
		}
	}
	return nil, lastErr
}

func (c *Client) roundTrip(ctx context.Context, method, path string, payload []byte) ([]byte, time.Duration, error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Notion-Version", APIVersion)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("%s %s: %v: %w", method, path, err, integration.ErrUnavailable)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return respBody, 0, nil
	}

	return nil, retryAfter(resp.Header.Get("Retry-After")), apiError(method, path, resp.StatusCode, respBody)
}

// apiError maps a Notion error response onto the integration sentinels.
func apiError(method, path string, status int, body []byte) error {
	code := gjson.GetBytes(body, "code").String()
	msg := gjson.GetBytes(body, "message").String()
	if msg == "" {
		msg = http.StatusText(status)
	}

	var sentinel error
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		sentinel = integration.ErrUnauthorized
	case status == http.StatusNotFound:
		sentinel = integration.ErrNotFound
	case status == http.StatusTooManyRequests:
		sentinel = integration.ErrRateLimited
	case status >= 500:
		sentinel = integration.ErrUnavailable
	default:
		return fmt.Errorf("%s %s: status=%d code=%s: %s", method, path, status, code, msg)
	}
	return fmt.Errorf("%s %s: status=%d code=%s: %s: %w", method, path, status, code, msg, sentinel)
}

// retryAfter parses a Retry-After header given in seconds.
func retryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	secs, err := strconv.Atoi(v)
	if err != nil || secs < 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

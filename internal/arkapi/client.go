package arkapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"math/rand/v2"
	"net/http"
	"strconv"
	"time"
)

// Retry and backoff constants.
const (
	defaultMaxRetries = 3
	baseBackoff       = 500 * time.Millisecond
	maxBackoff        = 10 * time.Second
	backoffFactor     = 2.0
	jitterFraction    = 0.25
	userAgent         = "arkprobe/0.1"
	maxErrorBody      = 64 << 10
)

// Identity is the trusted-proxy identity attached to every request.
// An empty Email sends no header.
type Identity struct {
	Header string
	Email  string
}

// Client talks to one target base URL.
type Client struct {
	baseURL    string
	httpClient *http.Client
	identity   Identity
	logger     *slog.Logger
	maxRetries int

	// sleepFunc is called to wait between retries. Tests override it.
	sleepFunc func(ctx context.Context, d time.Duration) error
}

// NewClient creates a client for baseURL (e.g. "http://localhost:7001").
func NewClient(baseURL string, httpClient *http.Client, identity Identity, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}

	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	return &Client{
		baseURL:    baseURL,
		httpClient: httpClient,
		identity:   identity,
		logger:     logger,
		maxRetries: defaultMaxRetries,
		sleepFunc:  timeSleep,
	}
}

// envelope is the target's standard response wrapper.
type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
	Meta *Meta `json:"meta"`
}

// Meta carries pagination for list endpoints.
type Meta struct {
	Pagination *Pagination `json:"pagination"`
}

// Pagination is the list endpoints' page descriptor.
type Pagination struct {
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	Total      int `json:"total"`
	TotalPages int `json:"totalPages"`
}

// Do executes a request with retries. body may be nil; it is resent as-is
// on every attempt. A 2xx response is returned open; the caller closes it.
// Any other status is returned as an *APIError.
func (c *Client) Do(ctx context.Context, method, path string, body []byte) (*http.Response, error) {
	var attempt int

	for {
		resp, err := c.doOnce(ctx, method, path, body)
		if err != nil {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("arkapi: request canceled: %w", ctx.Err())
			}

			if attempt < c.maxRetries {
				backoff := calcBackoff(attempt)
				c.logger.Warn("retrying after network error",
					slog.String("method", method),
					slog.String("path", path),
					slog.Int("attempt", attempt+1),
					slog.Duration("backoff", backoff),
					slog.String("error", err.Error()),
				)

				if sleepErr := c.sleepFunc(ctx, backoff); sleepErr != nil {
					return nil, fmt.Errorf("arkapi: request canceled: %w", sleepErr)
				}

				attempt++

				continue
			}

			return nil, fmt.Errorf("arkapi: %s %s failed after %d retries: %w", method, path, c.maxRetries, err)
		}

		if resp.StatusCode >= http.StatusOK && resp.StatusCode < http.StatusMultipleChoices {
			c.logger.Debug("request succeeded",
				slog.String("method", method),
				slog.String("path", path),
				slog.Int("status", resp.StatusCode),
			)

			return resp, nil
		}

		errBody, readErr := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		resp.Body.Close()

		if readErr != nil {
			errBody = []byte("(failed to read response body)")
		}

		if isRetryable(resp.StatusCode) && attempt < c.maxRetries {
			backoff := retryBackoff(resp, attempt)
			c.logger.Warn("retrying after HTTP error",
				slog.String("method", method),
				slog.String("path", path),
				slog.Int("status", resp.StatusCode),
				slog.Int("attempt", attempt+1),
				slog.Duration("backoff", backoff),
			)

			if err := c.sleepFunc(ctx, backoff); err != nil {
				return nil, fmt.Errorf("arkapi: request canceled: %w", err)
			}

			attempt++

			continue
		}

		return nil, newAPIError(resp.StatusCode, errBody)
	}
}

// newAPIError builds an APIError from an error response, using the
// envelope's code and message when the body is one.
func newAPIError(status int, body []byte) *APIError {
	apiErr := &APIError{StatusCode: status, Message: string(bytes.TrimSpace(body)), Err: classifyStatus(status)}

	var env envelope
	if json.Unmarshal(body, &env) == nil && env.Error != nil {
		apiErr.Code = env.Error.Code
		apiErr.Message = env.Error.Message
	}

	if apiErr.Err == nil {
		apiErr.Err = ErrEnvelope
	}

	return apiErr
}

// doOnce executes a single HTTP request (no retry).
func (c *Client) doOnce(ctx context.Context, method, path string, body []byte) (*http.Response, error) {
	var r io.Reader
	if body != nil {
		r = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, r)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")

	if c.identity.Header != "" && c.identity.Email != "" {
		req.Header.Set(c.identity.Header, c.identity.Email)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return c.httpClient.Do(req)
}

// doJSON sends in (if non-nil) as JSON, decodes the envelope and unmarshals
// its data into out (if non-nil). It returns the envelope's meta.
func (c *Client) doJSON(ctx context.Context, method, path string, in, out any) (*Meta, error) {
	var body []byte

	if in != nil {
		var err error

		body, err = json.Marshal(in)
		if err != nil {
			return nil, fmt.Errorf("arkapi: encoding request: %w", err)
		}
	}

	resp, err := c.Do(ctx, method, path, body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, fmt.Errorf("%w: %s %s: %w", ErrEnvelope, method, path, err)
	}

	if !env.Success {
		apiErr := &APIError{StatusCode: resp.StatusCode, Message: env.Message, Err: ErrEnvelope}
		if env.Error != nil {
			apiErr.Code = env.Error.Code
			apiErr.Message = env.Error.Message
		}

		return nil, apiErr
	}

	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return nil, fmt.Errorf("%w: decoding data of %s %s: %w", ErrEnvelope, method, path, err)
		}
	}

	return env.Meta, nil
}

// retryBackoff honors Retry-After on 429, otherwise backs off
// exponentially.
func retryBackoff(resp *http.Response, attempt int) time.Duration {
	if resp.StatusCode == http.StatusTooManyRequests {
		if ra := resp.Header.Get("Retry-After"); ra != "" {
			if seconds, err := strconv.Atoi(ra); err == nil && seconds > 0 {
				return time.Duration(seconds) * time.Second
			}
		}
	}

	return calcBackoff(attempt)
}

// calcBackoff computes exponential backoff with ±25% jitter.
func calcBackoff(attempt int) time.Duration {
	backoff := float64(baseBackoff) * math.Pow(backoffFactor, float64(attempt))
	if backoff > float64(maxBackoff) {
		backoff = float64(maxBackoff)
	}

	jitter := backoff * jitterFraction * (rand.Float64()*2 - 1) //nolint:gosec // jitter does not need crypto rand
	backoff += jitter

	return time.Duration(backoff)
}

// timeSleep waits for the given duration or until the context is canceled.
func timeSleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

package payment

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/goccy/go-json"
	"go.uber.org/zap"
)

const (
	defaultMaxTries = 4
	defaultTimeout  = 10 * time.Second
)

// Client is the HTTP processor. Network errors and 5xx answers are retried
// with exponential backoff under the same idempotency key; 4xx answers are
// final.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	maxTries   uint
	backOff    func() backoff.BackOff
	logger     *zap.Logger
}

type ClientOption func(*Client)

func WithHTTPClient(c *http.Client) ClientOption {
	return func(cl *Client) { cl.httpClient = c }
}

func WithMaxTries(n uint) ClientOption {
	return func(cl *Client) { cl.maxTries = n }
}

// WithBackOff replaces the retry schedule, mostly for tests.
func WithBackOff(f func() backoff.BackOff) ClientOption {
	return func(cl *Client) { cl.backOff = f }
}

func NewClient(baseURL, apiKey string, logger *zap.Logger, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: defaultTimeout},
		maxTries:   defaultMaxTries,
		backOff: func() backoff.BackOff {
			return backoff.NewExponentialBackOff()
		},
		logger: logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) Capture(ctx context.Context, req Request) (*Receipt, error) {
	return c.post(ctx, "/v1/captures", req)
}

func (c *Client) Refund(ctx context.Context, req Request) (*Receipt, error) {
	return c.post(ctx, "/v1/refunds", req)
}

func (c *Client) post(ctx context.Context, path string, req Request) (*Receipt, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal payment request: %w", err)
	}

	attempt := 0
	operation := func() (*Receipt, error) {
		attempt++
		receipt, err := c.send(ctx, path, req.IdempotencyKey(), body)
		if err != nil {
			c.logger.Warn("Payment call failed",
				zap.String("path", path),
				zap.String("idempotency_key", req.IdempotencyKey()),
				zap.Int("attempt", attempt),
				zap.Error(err),
			)
		}
		return receipt, err
	}

	receipt, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(c.backOff()),
		backoff.WithMaxTries(c.maxTries),
	)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", req.Action, req.IdempotencyKey(), err)
	}
	return receipt, nil
}

func (c *Client) send(ctx context.Context, path, idempotencyKey string, body []byte) (*Receipt, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("create payment request: %w", err))
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Idempotency-Key", idempotencyKey)
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("send payment request: %w", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read payment response: %w", err)
	}

	switch {
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		return nil, fmt.Errorf("payment processor answered %d", resp.StatusCode)
	case resp.StatusCode >= 400:
		return nil, backoff.Permanent(fmt.Errorf("%w: processor answered %d: %s", ErrRejected, resp.StatusCode, strings.TrimSpace(string(payload))))
	}

	var receipt Receipt
	if err := json.Unmarshal(payload, &receipt); err != nil {
		return nil, backoff.Permanent(fmt.Errorf("decode payment response: %w", err))
	}
	return &receipt, nil
}

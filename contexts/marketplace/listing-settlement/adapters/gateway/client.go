package gatewayadapter

import (
	"bytes"
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

	application "key2key/contexts/marketplace/listing-settlement/application"
	domainerrors "key2key/contexts/marketplace/listing-settlement/domain/errors"
	"key2key/contexts/marketplace/listing-settlement/ports"
	"key2key/internal/platform/resilience"

	"github.com/shopspring/decimal"
)

// Client talks to a payment gateway's JSON API. Calls pass through a circuit
// breaker; 4xx answers are rejections and do not trip it.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	breaker    *resilience.Breaker
	logger     *slog.Logger
}

type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

func NewClient(cfg Config, logger *slog.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	breakerCfg := resilience.HTTPServiceConfig()
	breakerCfg.IsSuccessful = func(err error) bool {
		return err == nil || errors.Is(err, domainerrors.ErrGatewayRejected)
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		httpClient: &http.Client{Timeout: timeout},
		breaker:    resilience.NewBreaker("payment-gateway", breakerCfg, logger),
		logger:     application.ResolveLogger(logger),
	}
}

type initiateRequest struct {
	Amount         string `json:"amount"`
	Currency       string `json:"currency"`
	IdempotencyKey string `json:"idempotency_key"`
}

type initiateResponse struct {
	Reference string `json:"reference"`
}

type statusResponse struct {
	Reference string `json:"reference"`
	Status    string `json:"status"`
	Amount    string `json:"amount"`
	Currency  string `json:"currency"`
}

// Initiate creates a payment intent. The gateway deduplicates on the
// idempotency key, so retries return the same reference.
func (c *Client) Initiate(ctx context.Context, amount decimal.Decimal, currency string, idempotencyKey string) (string, error) {
	body, err := json.Marshal(initiateRequest{
		Amount:         amount.StringFixed(2),
		Currency:       currency,
		IdempotencyKey: idempotencyKey,
	})
	if err != nil {
		return "", err
	}
	var response initiateResponse
	if err := c.do(ctx, http.MethodPost, "/v1/payments", idempotencyKey, body, &response); err != nil {
		return "", err
	}
	if strings.TrimSpace(response.Reference) == "" {
		return "", fmt.Errorf("%w: empty reference", domainerrors.ErrGatewayUnavailable)
	}
	return response.Reference, nil
}

func (c *Client) Status(ctx context.Context, idempotencyKey string) (ports.GatewayStatus, error) {
	var response statusResponse
	path := "/v1/payments/" + url.PathEscape(idempotencyKey)
	if err := c.do(ctx, http.MethodGet, path, "", nil, &response); err != nil {
		return ports.GatewayStatus{}, err
	}
	status := ports.GatewayStatus{
		Reference: response.Reference,
		Status:    strings.ToLower(strings.TrimSpace(response.Status)),
		Currency:  strings.ToUpper(strings.TrimSpace(response.Currency)),
	}
	if response.Amount != "" {
		amount, err := decimal.NewFromString(response.Amount)
		if err != nil {
			return ports.GatewayStatus{}, fmt.Errorf("%w: amount %q", domainerrors.ErrGatewayUnavailable, response.Amount)
		}
		status.Amount = amount
	}
	return status, nil
}

func (c *Client) do(ctx context.Context, method string, path string, idempotencyKey string, body []byte, out any) error {
	_, err := c.breaker.Execute(func() (any, error) {
		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		if c.apiKey != "" {
			req.Header.Set("Authorization", "Bearer "+c.apiKey)
		}
		if idempotencyKey != "" {
			req.Header.Set("Idempotency-Key", idempotencyKey)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", domainerrors.ErrGatewayUnavailable, err)
		}
		defer resp.Body.Close()

		payload, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		if err != nil {
			return nil, fmt.Errorf("%w: read body: %v", domainerrors.ErrGatewayUnavailable, err)
		}
		switch {
		case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
			return nil, fmt.Errorf("%w: status %d", domainerrors.ErrGatewayUnavailable, resp.StatusCode)
		case resp.StatusCode >= 400:
			return nil, fmt.Errorf("%w: status %d: %s", domainerrors.ErrGatewayRejected, resp.StatusCode, strings.TrimSpace(string(payload)))
		}
		if err := json.Unmarshal(payload, out); err != nil {
			return nil, fmt.Errorf("%w: decode response: %v", domainerrors.ErrGatewayUnavailable, err)
		}
		return nil, nil
	})
	if errors.Is(err, resilience.ErrCircuitOpen) {
		c.logger.Warn("payment gateway circuit open",
			"event", "gateway_circuit_open",
			"module", "marketplace/listing-settlement",
			"layer", "adapter",
			"method", method,
			"path", path,
		)
		return fmt.Errorf("%w: %v", domainerrors.ErrGatewayUnavailable, err)
	}
	return err
}

package gatewayadapter

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	domainerrors "key2key/contexts/marketplace/listing-settlement/domain/errors"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitiateSendsIdempotentRequest(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/payments", r.URL.Path)
		assert.Equal(t, "Bearer gw-key", r.Header.Get("Authorization"))
		assert.Equal(t, "K1", r.Header.Get("Idempotency-Key"))

		var body initiateRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "2500000.00", body.Amount)
		assert.Equal(t, "ETB", body.Currency)
		assert.Equal(t, "K1", body.IdempotencyKey)

		_ = json.NewEncoder(w).Encode(initiateResponse{Reference: "chapa-1"})
	}))
	defer server.Close()

	client := NewClient(Config{BaseURL: server.URL + "/", APIKey: "gw-key", Timeout: time.Second}, nil)
	reference, err := client.Initiate(context.Background(), decimal.RequireFromString("2500000"), "ETB", "K1")
	require.NoError(t, err)
	assert.Equal(t, "chapa-1", reference)
}

func TestStatusNormalizesGatewayFields(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/payments/K%2F1", r.URL.EscapedPath())
		_ = json.NewEncoder(w).Encode(statusResponse{
			Reference: "chapa-1",
			Status:    " Captured ",
			Amount:    "150.50",
			Currency:  "etb",
		})
	}))
	defer server.Close()

	client := NewClient(Config{BaseURL: server.URL}, nil)
	status, err := client.Status(context.Background(), "K/1")
	require.NoError(t, err)
	assert.Equal(t, "captured", status.Status)
	assert.Equal(t, "ETB", status.Currency)
	assert.True(t, status.Amount.Equal(decimal.RequireFromString("150.5")))
}

func TestClientClassifiesFailures(t *testing.T) {
	cases := []struct {
		name   string
		status int
		want   error
	}{
		{name: "bad request", status: http.StatusBadRequest, want: domainerrors.ErrGatewayRejected},
		{name: "conflict", status: http.StatusConflict, want: domainerrors.ErrGatewayRejected},
		{name: "throttled", status: http.StatusTooManyRequests, want: domainerrors.ErrGatewayUnavailable},
		{name: "server error", status: http.StatusBadGateway, want: domainerrors.ErrGatewayUnavailable},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				http.Error(w, "nope", tc.status)
			}))
			defer server.Close()

			client := NewClient(Config{BaseURL: server.URL}, nil)
			_, err := client.Initiate(context.Background(), decimal.NewFromInt(10), "ETB", "K1")
			require.Error(t, err)
			assert.True(t, errors.Is(err, tc.want), "got %v", err)
		})
	}
}

func TestEmptyReferenceIsUnavailable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"reference":""}`))
	}))
	defer server.Close()

	client := NewClient(Config{BaseURL: server.URL}, nil)
	_, err := client.Initiate(context.Background(), decimal.NewFromInt(10), "ETB", "K1")
	assert.ErrorIs(t, err, domainerrors.ErrGatewayUnavailable)
}

func TestBreakerOpensOnServerErrorsOnly(t *testing.T) {
	var calls atomic.Int32
	status := atomic.Int32{}
	status.Store(http.StatusBadRequest)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		http.Error(w, "failure", int(status.Load()))
	}))
	defer server.Close()

	client := NewClient(Config{BaseURL: server.URL}, nil)
	ctx := context.Background()

	for i := 0; i < 6; i++ {
		_, err := client.Status(ctx, "K1")
		require.ErrorIs(t, err, domainerrors.ErrGatewayRejected)
	}
	assert.Equal(t, "closed", client.breaker.State())

	status.Store(http.StatusServiceUnavailable)
	for i := 0; i < 5; i++ {
		_, err := client.Status(ctx, "K1")
		require.ErrorIs(t, err, domainerrors.ErrGatewayUnavailable)
	}
	assert.Equal(t, "open", client.breaker.State())

	before := calls.Load()
	_, err := client.Status(ctx, "K1")
	require.ErrorIs(t, err, domainerrors.ErrGatewayUnavailable)
	assert.Equal(t, before, calls.Load(), "open breaker must not reach the gateway")
}

package httpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	listingsettlement "key2key/contexts/marketplace/listing-settlement"
	"key2key/contexts/marketplace/listing-settlement/application/workers"
	"key2key/contexts/marketplace/listing-settlement/domain/entities"
	settlementhttp "key2key/contexts/marketplace/listing-settlement/transport/http"

	"github.com/golang-jwt/jwt/v5"
)

const (
	testJWTSecret     = "test-jwt-secret"
	testWebhookSecret = "test-webhook-secret"
)

func newTestServer() *Server {
	module := listingsettlement.NewInMemoryModule(slog.Default(), listingsettlement.InMemoryOptions{
		ReservationTTL: 48 * time.Hour,
		AssignmentSLA:  30 * time.Minute,
		WebhookSecret:  testWebhookSecret,
		Brokers: []entities.Broker{{
			BrokerID:  "broker-1",
			Regions:   []string{"addis ababa"},
			Kinds:     []entities.ListingKind{entities.ListingKindProperty},
			Available: true,
			Verified:  true,
		}},
	})
	return New(module, NewAuthenticator(testJWTSecret), slog.Default(), ":0")
}

func bearer(t *testing.T, subject string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": subject,
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte(testJWTSecret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return "Bearer " + signed
}

func doSettlementRequest(t *testing.T, server *Server, method string, path string, actor string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-Id", "req-"+path)
	if actor != "" {
		req.Header.Set("Authorization", bearer(t, actor))
	}
	for key, value := range headers {
		req.Header.Set(key, value)
	}
	rr := httptest.NewRecorder()
	server.mux.ServeHTTP(rr, req)
	return rr
}

func decodeResponse[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response: %v body=%s", err, rr.Body.String())
	}
	return out
}

func createPublishedListing(t *testing.T, server *Server) settlementhttp.ListingDTO {
	t.Helper()
	createRR := doSettlementRequest(t, server, http.MethodPost, "/v1/listings", "owner-1", settlementhttp.CreateListingRequest{
		Kind:     "property",
		Title:    "Bole two bedroom",
		Region:   "Addis Ababa",
		Price:    "2500000.00",
		Currency: "etb",
	}, nil)
	if createRR.Code != http.StatusCreated {
		t.Fatalf("expected 201 create, got %d body=%s", createRR.Code, createRR.Body.String())
	}
	created := decodeResponse[settlementhttp.ListingResponse](t, createRR)

	publishRR := doSettlementRequest(t, server, http.MethodPost, "/v1/listings/"+created.Listing.ListingID+"/publish", "owner-1", nil, nil)
	if publishRR.Code != http.StatusOK {
		t.Fatalf("expected 200 publish, got %d body=%s", publishRR.Code, publishRR.Body.String())
	}
	published := decodeResponse[settlementhttp.PublishListingResponse](t, publishRR)
	if published.Assignment == nil || published.Assignment.BrokerID != "broker-1" {
		t.Fatalf("expected broker-1 assignment, got %+v", published.Assignment)
	}
	return published.Listing
}

func TestSettlementCreateRequiresAuthorization(t *testing.T) {
	server := newTestServer()
	rr := doSettlementRequest(t, server, http.MethodPost, "/v1/listings", "", settlementhttp.CreateListingRequest{Kind: "property"}, nil)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d body=%s", rr.Code, rr.Body.String())
	}
}

func TestSettlementRejectsTokenSignedWithOtherSecret(t *testing.T) {
	server := newTestServer()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "owner-1"})
	signed, err := token.SignedString([]byte("another-secret"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	rr := doSettlementRequest(t, server, http.MethodGet, "/v1/listings/k2k-1", "", nil, map[string]string{
		"Authorization": "Bearer " + signed,
	})
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d body=%s", rr.Code, rr.Body.String())
	}
}

func TestSettlementRequiresRequestID(t *testing.T) {
	server := newTestServer()
	req := httptest.NewRequest(http.MethodGet, "/v1/listings/k2k-1", nil)
	req.Header.Set("Authorization", bearer(t, "owner-1"))
	rr := httptest.NewRecorder()
	server.mux.ServeHTTP(rr, req)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d body=%s", rr.Code, rr.Body.String())
	}
}

func TestSettlementUnknownListingIsNotFound(t *testing.T) {
	server := newTestServer()
	rr := doSettlementRequest(t, server, http.MethodGet, "/v1/listings/missing", "owner-1", nil, nil)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d body=%s", rr.Code, rr.Body.String())
	}
}

func TestSettlementStartTransactionRequiresIdempotencyKey(t *testing.T) {
	server := newTestServer()
	listing := createPublishedListing(t, server)
	rr := doSettlementRequest(t, server, http.MethodPost, "/v1/listings/"+listing.ListingID+"/transactions", "buyer-1",
		settlementhttp.StartTransactionRequest{Amount: "2500000.00", Currency: "ETB"}, nil)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d body=%s", rr.Code, rr.Body.String())
	}
}

func TestSettlementReserveWithStaleVersionConflicts(t *testing.T) {
	server := newTestServer()
	listing := createPublishedListing(t, server)
	rr := doSettlementRequest(t, server, http.MethodPost, "/v1/listings/"+listing.ListingID+"/reserve", "buyer-1",
		settlementhttp.ReserveListingRequest{ExpectedVersion: listing.Version - 1}, nil)
	if rr.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d body=%s", rr.Code, rr.Body.String())
	}
}

func TestSettlementPurchaseFlowSettlesOnSignedWebhook(t *testing.T) {
	server := newTestServer()
	listing := createPublishedListing(t, server)

	reserveRR := doSettlementRequest(t, server, http.MethodPost, "/v1/listings/"+listing.ListingID+"/reserve", "buyer-1",
		settlementhttp.ReserveListingRequest{ExpectedVersion: listing.Version}, nil)
	if reserveRR.Code != http.StatusOK {
		t.Fatalf("expected 200 reserve, got %d body=%s", reserveRR.Code, reserveRR.Body.String())
	}

	headers := map[string]string{"Idempotency-Key": "pay-key-1"}
	startRR := doSettlementRequest(t, server, http.MethodPost, "/v1/listings/"+listing.ListingID+"/transactions", "buyer-1",
		settlementhttp.StartTransactionRequest{Amount: "2500000.00", Currency: "ETB", Gateway: "chapa"}, headers)
	if startRR.Code != http.StatusCreated {
		t.Fatalf("expected 201 start, got %d body=%s", startRR.Code, startRR.Body.String())
	}
	started := decodeResponse[settlementhttp.StartTransactionResponse](t, startRR)
	if started.Listing.Status != "under_transaction" || started.Transaction.Status != "pending" {
		t.Fatalf("unexpected start state listing=%s txn=%s", started.Listing.Status, started.Transaction.Status)
	}

	replayRR := doSettlementRequest(t, server, http.MethodPost, "/v1/listings/"+listing.ListingID+"/transactions", "buyer-1",
		settlementhttp.StartTransactionRequest{Amount: "2500000.00", Currency: "ETB", Gateway: "chapa"}, headers)
	if replayRR.Code != http.StatusOK {
		t.Fatalf("expected 200 replay, got %d body=%s", replayRR.Code, replayRR.Body.String())
	}
	replayed := decodeResponse[settlementhttp.StartTransactionResponse](t, replayRR)
	if !replayed.Replayed || replayed.Transaction.TransactionID != started.Transaction.TransactionID {
		t.Fatalf("expected replay of %s, got %+v", started.Transaction.TransactionID, replayed.Transaction)
	}

	event := workers.GatewayEvent{
		EventType:      "captured",
		Reference:      started.Transaction.GatewayReference,
		IdempotencyKey: "pay-key-1",
		Status:         "success",
		Amount:         "2500000.00",
		Currency:       "ETB",
		Timestamp:      time.Now().UTC().Format(time.RFC3339),
	}
	event.Signature = workers.SignGatewayEvent(testWebhookSecret, event)
	webhookBody := settlementhttp.GatewayWebhookRequest{
		EventType:      event.EventType,
		Reference:      event.Reference,
		IdempotencyKey: event.IdempotencyKey,
		Status:         event.Status,
		Amount:         event.Amount,
		Currency:       event.Currency,
		Timestamp:      event.Timestamp,
		Signature:      event.Signature,
	}

	webhookRR := doSettlementRequest(t, server, http.MethodPost, "/v1/webhooks/payments", "", webhookBody, nil)
	if webhookRR.Code != http.StatusOK {
		t.Fatalf("expected 200 webhook, got %d body=%s", webhookRR.Code, webhookRR.Body.String())
	}
	applied := decodeResponse[settlementhttp.GatewayWebhookResponse](t, webhookRR)
	if applied.Outcome != "applied" || applied.TransactionStatus != "captured" {
		t.Fatalf("unexpected webhook outcome %+v", applied)
	}

	duplicateRR := doSettlementRequest(t, server, http.MethodPost, "/v1/webhooks/payments", "", webhookBody, nil)
	if duplicateRR.Code != http.StatusOK {
		t.Fatalf("expected 200 duplicate webhook, got %d body=%s", duplicateRR.Code, duplicateRR.Body.String())
	}

	getRR := doSettlementRequest(t, server, http.MethodGet, "/v1/listings/"+listing.ListingID, "owner-1", nil, nil)
	final := decodeResponse[settlementhttp.GetListingResponse](t, getRR)
	if final.Listing.Status != "sold" {
		t.Fatalf("expected sold listing, got %s", final.Listing.Status)
	}
	if final.OpenTransaction != nil {
		t.Fatalf("expected no open transaction after capture, got %+v", final.OpenTransaction)
	}

	auditRR := doSettlementRequest(t, server, http.MethodGet, "/v1/audit/transaction/"+started.Transaction.TransactionID, "owner-1", nil, nil)
	trail := decodeResponse[settlementhttp.AuditTrailResponse](t, auditRR)
	captures := 0
	for _, entry := range trail.Items {
		if entry.Action == entities.ActionTransactionCaptured {
			captures++
		}
	}
	if captures != 1 {
		t.Fatalf("expected exactly one capture audit entry, got %d", captures)
	}
}

func TestSettlementWebhookRejectsBadSignature(t *testing.T) {
	server := newTestServer()
	rr := doSettlementRequest(t, server, http.MethodPost, "/v1/webhooks/payments", "", settlementhttp.GatewayWebhookRequest{
		EventType:      "captured",
		IdempotencyKey: "pay-key-x",
		Amount:         "10.00",
		Currency:       "ETB",
		Timestamp:      time.Now().UTC().Format(time.RFC3339),
		Signature:      "deadbeef",
	}, nil)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d body=%s", rr.Code, rr.Body.String())
	}
}

func TestSettlementCancelRequiresReason(t *testing.T) {
	server := newTestServer()
	listing := createPublishedListing(t, server)
	rr := doSettlementRequest(t, server, http.MethodPost, "/v1/listings/"+listing.ListingID+"/cancel", "owner-1",
		settlementhttp.ReasonRequest{}, nil)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d body=%s", rr.Code, rr.Body.String())
	}
}

func TestHealthz(t *testing.T) {
	server := newTestServer()
	rr := httptest.NewRecorder()
	server.mux.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
}

func TestReadyzReportsFailingDependency(t *testing.T) {
	server := newTestServer()
	server.AddReadinessCheck("postgres", func(context.Context) error { return nil })

	rr := httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", rr.Code, rr.Body.String())
	}

	server.AddReadinessCheck("redis", func(context.Context) error { return errors.New("connection refused") })
	rr = httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rr.Code)
	}
	var body struct {
		Checks map[string]string `json:"checks"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.Checks["postgres"] != "ok" || body.Checks["redis"] != "connection refused" {
		t.Fatalf("unexpected checks: %v", body.Checks)
	}
}

func TestSettlementVerifyListingReportsTamperedHistory(t *testing.T) {
	server := newTestServer()
	listing := createPublishedListing(t, server)
	path := "/v1/listings/" + listing.ListingID + "/verify"

	rr := doSettlementRequest(t, server, http.MethodPost, path, "ops-1", nil, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", rr.Code, rr.Body.String())
	}

	ctx := context.Background()
	stored, err := server.settlement.Store.GetListing(ctx, listing.ListingID)
	if err != nil {
		t.Fatalf("get stored listing: %v", err)
	}
	tampered := stored
	tampered.Version++
	if err := server.settlement.Store.UpdateListing(ctx, tampered, stored.Version); err != nil {
		t.Fatalf("tamper: %v", err)
	}

	rr = doSettlementRequest(t, server, http.MethodPost, path, "ops-1", nil, nil)
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d body=%s", rr.Code, rr.Body.String())
	}
	if body := decodeResponse[settlementhttp.ErrorResponse](t, rr); body.Code != "consistency_error" {
		t.Fatalf("expected consistency_error, got %+v", body)
	}
}

func TestSettlementArchiveActiveListingConflicts(t *testing.T) {
	server := newTestServer()
	listing := createPublishedListing(t, server)
	rr := doSettlementRequest(t, server, http.MethodPost, "/v1/listings/"+listing.ListingID+"/archive", "owner-1", nil, nil)
	if rr.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d body=%s", rr.Code, rr.Body.String())
	}
}

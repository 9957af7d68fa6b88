package httpserver

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	domainerrors "key2key/contexts/marketplace/listing-settlement/domain/errors"
	settlementhttp "key2key/contexts/marketplace/listing-settlement/transport/http"
)

const maxRequestBody = 1 << 20

func writeSettlementError(w http.ResponseWriter, status int, code string, message string) {
	writeJSON(w, status, settlementhttp.ErrorResponse{
		Code:    code,
		Message: message,
	})
}

// writeSettlementDomainError maps specific sentinels first and falls back to
// the error kind.
func writeSettlementDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domainerrors.ErrInvalidSignature):
		writeSettlementError(w, http.StatusBadRequest, "invalid_signature", err.Error())
	case errors.Is(err, domainerrors.ErrIdempotencyKeyRequired):
		writeSettlementError(w, http.StatusBadRequest, "missing_idempotency_key", err.Error())
	case errors.Is(err, domainerrors.ErrValidation):
		writeSettlementError(w, http.StatusBadRequest, "validation_error", err.Error())
	case errors.Is(err, domainerrors.ErrVersionConflict):
		writeSettlementError(w, http.StatusConflict, "version_conflict", err.Error())
	case errors.Is(err, domainerrors.ErrOpenTransactionExists):
		writeSettlementError(w, http.StatusConflict, "open_transaction_exists", err.Error())
	case errors.Is(err, domainerrors.ErrIdempotencyKeyConflict):
		writeSettlementError(w, http.StatusConflict, "idempotency_conflict", err.Error())
	case errors.Is(err, domainerrors.ErrReservationHeldByOther):
		writeSettlementError(w, http.StatusConflict, "reservation_held", err.Error())
	case errors.Is(err, domainerrors.ErrReservationExpired):
		writeSettlementError(w, http.StatusConflict, "reservation_expired", err.Error())
	case errors.Is(err, domainerrors.ErrConflict):
		writeSettlementError(w, http.StatusConflict, "conflict", err.Error())
	case errors.Is(err, domainerrors.ErrNotFound):
		writeSettlementError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, domainerrors.ErrRefundRequired):
		writeSettlementError(w, http.StatusConflict, "refund_required", err.Error())
	case errors.Is(err, domainerrors.ErrInvalidTransition):
		writeSettlementError(w, http.StatusConflict, "invalid_transition", err.Error())
	case errors.Is(err, domainerrors.ErrGateway):
		writeSettlementError(w, http.StatusBadGateway, "gateway_error", err.Error())
	case errors.Is(err, domainerrors.ErrIdempotencyViolation):
		writeSettlementError(w, http.StatusOK, "already_applied", err.Error())
	case errors.Is(err, domainerrors.ErrFatalConsistency):
		writeSettlementError(w, http.StatusInternalServerError, "consistency_error", "entity is quarantined pending operator review")
	case errors.Is(err, domainerrors.ErrMisconfigured):
		writeSettlementError(w, http.StatusInternalServerError, "misconfigured", "settlement engine is misconfigured")
	default:
		writeSettlementError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}

func requireSettlementRequestID(w http.ResponseWriter, r *http.Request) bool {
	if strings.TrimSpace(r.Header.Get("X-Request-Id")) == "" {
		writeSettlementError(w, http.StatusBadRequest, "missing_request_id", "X-Request-Id header is required")
		return false
	}
	return true
}

// requireSettlementActor checks the request id and bearer token and returns
// the token subject.
func (s *Server) requireSettlementActor(w http.ResponseWriter, r *http.Request) (string, bool) {
	actorID, err := s.auth.Actor(r)
	if err != nil {
		writeSettlementError(w, http.StatusUnauthorized, "unauthorized", err.Error())
		return "", false
	}
	if !requireSettlementRequestID(w, r) {
		return "", false
	}
	return actorID, true
}

func decodeSettlementBody(w http.ResponseWriter, r *http.Request, out any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody)).Decode(out); err != nil {
		writeSettlementError(w, http.StatusBadRequest, "invalid_json", "request body must be valid JSON")
		return false
	}
	return true
}

func (s *Server) handleCreateListing(w http.ResponseWriter, r *http.Request) {
	actorID, ok := s.requireSettlementActor(w, r)
	if !ok {
		return
	}
	var req settlementhttp.CreateListingRequest
	if !decodeSettlementBody(w, r, &req) {
		return
	}
	resp, err := s.settlement.Handler.CreateListingHandler(r.Context(), actorID, req)
	if err != nil {
		writeSettlementDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (s *Server) handleGetListing(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.requireSettlementActor(w, r); !ok {
		return
	}
	resp, err := s.settlement.Handler.GetListingHandler(r.Context(), r.PathValue("listing_id"))
	if err != nil {
		writeSettlementDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handlePublishListing(w http.ResponseWriter, r *http.Request) {
	actorID, ok := s.requireSettlementActor(w, r)
	if !ok {
		return
	}
	resp, err := s.settlement.Handler.PublishListingHandler(r.Context(), actorID, r.PathValue("listing_id"))
	if err != nil {
		writeSettlementDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleReserveListing(w http.ResponseWriter, r *http.Request) {
	actorID, ok := s.requireSettlementActor(w, r)
	if !ok {
		return
	}
	var req settlementhttp.ReserveListingRequest
	if !decodeSettlementBody(w, r, &req) {
		return
	}
	resp, err := s.settlement.Handler.ReserveListingHandler(r.Context(), actorID, r.PathValue("listing_id"), req)
	if err != nil {
		writeSettlementDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleStartTransaction(w http.ResponseWriter, r *http.Request) {
	actorID, ok := s.requireSettlementActor(w, r)
	if !ok {
		return
	}
	idempotencyKey := strings.TrimSpace(r.Header.Get("Idempotency-Key"))
	if idempotencyKey == "" {
		writeSettlementError(w, http.StatusBadRequest, "missing_idempotency_key", "Idempotency-Key header is required")
		return
	}
	var req settlementhttp.StartTransactionRequest
	if !decodeSettlementBody(w, r, &req) {
		return
	}
	resp, err := s.settlement.Handler.StartTransactionHandler(
		r.Context(),
		actorID,
		r.PathValue("listing_id"),
		idempotencyKey,
		req,
	)
	if err != nil {
		writeSettlementDomainError(w, err)
		return
	}
	status := http.StatusCreated
	if resp.Replayed {
		status = http.StatusOK
	}
	writeJSON(w, status, resp)
}

func (s *Server) handleCancelListing(w http.ResponseWriter, r *http.Request) {
	actorID, ok := s.requireSettlementActor(w, r)
	if !ok {
		return
	}
	var req settlementhttp.ReasonRequest
	if !decodeSettlementBody(w, r, &req) {
		return
	}
	resp, err := s.settlement.Handler.CancelListingHandler(r.Context(), actorID, r.PathValue("listing_id"), req)
	if err != nil {
		writeSettlementDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleArchiveListing(w http.ResponseWriter, r *http.Request) {
	actorID, ok := s.requireSettlementActor(w, r)
	if !ok {
		return
	}
	resp, err := s.settlement.Handler.ArchiveListingHandler(r.Context(), actorID, r.PathValue("listing_id"))
	if err != nil {
		writeSettlementDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleVerifyListing(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.requireSettlementActor(w, r); !ok {
		return
	}
	resp, err := s.settlement.Handler.VerifyListingHandler(r.Context(), r.PathValue("listing_id"))
	if err != nil {
		writeSettlementDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleAssignBroker(w http.ResponseWriter, r *http.Request) {
	actorID, ok := s.requireSettlementActor(w, r)
	if !ok {
		return
	}
	resp, err := s.settlement.Handler.AssignBrokerHandler(r.Context(), actorID, r.PathValue("listing_id"))
	if err != nil {
		writeSettlementDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetTransaction(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.requireSettlementActor(w, r); !ok {
		return
	}
	resp, err := s.settlement.Handler.GetTransactionHandler(r.Context(), r.PathValue("transaction_id"))
	if err != nil {
		writeSettlementDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleRefundTransaction(w http.ResponseWriter, r *http.Request) {
	actorID, ok := s.requireSettlementActor(w, r)
	if !ok {
		return
	}
	var req settlementhttp.ReasonRequest
	if !decodeSettlementBody(w, r, &req) {
		return
	}
	resp, err := s.settlement.Handler.RefundTransactionHandler(r.Context(), actorID, r.PathValue("transaction_id"), req)
	if err != nil {
		writeSettlementDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleAcknowledgeAssignment(w http.ResponseWriter, r *http.Request) {
	brokerID, ok := s.requireSettlementActor(w, r)
	if !ok {
		return
	}
	resp, err := s.settlement.Handler.AcknowledgeAssignmentHandler(r.Context(), brokerID, r.PathValue("assignment_id"))
	if err != nil {
		writeSettlementDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleListAuditTrail(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.requireSettlementActor(w, r); !ok {
		return
	}
	resp, err := s.settlement.Handler.ListAuditTrailHandler(
		r.Context(),
		r.PathValue("entity_type"),
		r.PathValue("entity_id"),
	)
	if err != nil {
		writeSettlementDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleGatewayWebhook is authenticated by the payload signature, not a JWT.
// Rejections answer 4xx so the gateway stops retrying; any 5xx means nothing
// was committed and redelivery is safe.
func (s *Server) handleGatewayWebhook(w http.ResponseWriter, r *http.Request) {
	var req settlementhttp.GatewayWebhookRequest
	if !decodeSettlementBody(w, r, &req) {
		return
	}
	resp, err := s.settlement.Handler.GatewayWebhookHandler(r.Context(), req)
	if err != nil {
		s.logger.Warn("gateway webhook not applied",
			"event", "http_gateway_webhook_failed",
			"module", "internal/platform/httpserver",
			"layer", "platform",
			"event_type", req.EventType,
			"idempotency_key", req.IdempotencyKey,
			"error", err.Error(),
		)
		writeSettlementDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

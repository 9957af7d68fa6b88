package httpadapter

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	application "key2key/contexts/marketplace/listing-settlement/application"
	"key2key/contexts/marketplace/listing-settlement/application/commands"
	"key2key/contexts/marketplace/listing-settlement/application/queries"
	"key2key/contexts/marketplace/listing-settlement/application/workers"
	"key2key/contexts/marketplace/listing-settlement/domain/entities"
	domainerrors "key2key/contexts/marketplace/listing-settlement/domain/errors"
	httptransport "key2key/contexts/marketplace/listing-settlement/transport/http"

	"github.com/shopspring/decimal"
)

type Handler struct {
	Machine        commands.ListingStateMachine
	GetListing     queries.GetListingUseCase
	GetTransaction queries.GetTransactionUseCase
	ListAudit      queries.ListAuditTrailUseCase
	Refund         commands.RefundTransactionUseCase
	Acknowledge    commands.AcknowledgeAssignmentUseCase
	Webhook        workers.WebhookProcessor
	Logger         *slog.Logger
}

// CreateListingHandler godoc
// @Summary Create a draft listing
// @Description Creates a property or vehicle listing in draft status owned by the caller.
// @Tags listing-settlement
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param X-Request-Id header string true "Request correlation id"
// @Param request body httptransport.CreateListingRequest true "Listing payload"
// @Success 201 {object} httptransport.ListingResponse
// @Failure 400 {object} httptransport.ErrorResponse
// @Failure 401 {object} httptransport.ErrorResponse
// @Failure 500 {object} httptransport.ErrorResponse
// @Router /v1/listings [post]
func (h Handler) CreateListingHandler(
	ctx context.Context,
	actorID string,
	req httptransport.CreateListingRequest,
) (httptransport.ListingResponse, error) {
	price, err := parseAmount(req.Price)
	if err != nil {
		return httptransport.ListingResponse{}, err
	}
	listing, err := h.Machine.CreateDraft(ctx, commands.CreateDraftCommand{
		Kind:      entities.ListingKind(strings.ToLower(strings.TrimSpace(req.Kind))),
		OfferType: entities.OfferType(strings.ToLower(strings.TrimSpace(req.OfferType))),
		Title:     req.Title,
		Region:    req.Region,
		OwnerID:   actorID,
		Price:     price,
		Currency:  req.Currency,
		ActorID:   actorID,
	})
	if err != nil {
		return httptransport.ListingResponse{}, err
	}
	return httptransport.ListingResponse{Listing: mapListing(listing)}, nil
}

// GetListingHandler godoc
// @Summary Get listing
// @Description Returns the listing with its active lead assignment and open transaction.
// @Tags listing-settlement
// @Produce json
// @Security BearerAuth
// @Param X-Request-Id header string true "Request correlation id"
// @Param listing_id path string true "Listing id"
// @Success 200 {object} httptransport.GetListingResponse
// @Failure 404 {object} httptransport.ErrorResponse
// @Failure 500 {object} httptransport.ErrorResponse
// @Router /v1/listings/{listing_id} [get]
func (h Handler) GetListingHandler(ctx context.Context, listingID string) (httptransport.GetListingResponse, error) {
	view, err := h.GetListing.Execute(ctx, listingID)
	if err != nil {
		return httptransport.GetListingResponse{}, err
	}
	resp := httptransport.GetListingResponse{Listing: mapListing(view.Listing)}
	if view.ActiveAssignment != nil {
		assignment := mapAssignment(*view.ActiveAssignment)
		resp.ActiveAssignment = &assignment
	}
	if view.OpenTransaction != nil {
		txn := mapTransaction(*view.OpenTransaction)
		resp.OpenTransaction = &txn
	}
	return resp, nil
}

// PublishListingHandler godoc
// @Summary Publish listing
// @Description Moves a draft listing to active and assigns a broker.
// @Tags listing-settlement
// @Produce json
// @Security BearerAuth
// @Param X-Request-Id header string true "Request correlation id"
// @Param listing_id path string true "Listing id"
// @Success 200 {object} httptransport.PublishListingResponse
// @Failure 400 {object} httptransport.ErrorResponse
// @Failure 404 {object} httptransport.ErrorResponse
// @Failure 409 {object} httptransport.ErrorResponse
// @Router /v1/listings/{listing_id}/publish [post]
func (h Handler) PublishListingHandler(
	ctx context.Context,
	actorID string,
	listingID string,
) (httptransport.PublishListingResponse, error) {
	result, err := h.Machine.Publish(ctx, commands.PublishListingCommand{
		ListingID: listingID,
		ActorID:   actorID,
	})
	if err != nil {
		return httptransport.PublishListingResponse{}, err
	}
	resp := httptransport.PublishListingResponse{
		Listing:    mapListing(result.Listing),
		Unassigned: result.Unassigned,
	}
	if result.Assignment != nil {
		assignment := mapAssignment(*result.Assignment)
		resp.Assignment = &assignment
	}
	return resp, nil
}

// ReserveListingHandler godoc
// @Summary Reserve listing
// @Description Reserves an active listing for the caller. expected_version guards against stale reads.
// @Tags listing-settlement
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param X-Request-Id header string true "Request correlation id"
// @Param listing_id path string true "Listing id"
// @Param request body httptransport.ReserveListingRequest true "Reservation payload"
// @Success 200 {object} httptransport.ListingResponse
// @Failure 404 {object} httptransport.ErrorResponse
// @Failure 409 {object} httptransport.ErrorResponse
// @Router /v1/listings/{listing_id}/reserve [post]
func (h Handler) ReserveListingHandler(
	ctx context.Context,
	actorID string,
	listingID string,
	req httptransport.ReserveListingRequest,
) (httptransport.ListingResponse, error) {
	listing, err := h.Machine.Reserve(ctx, commands.ReserveListingCommand{
		ListingID:       listingID,
		BuyerID:         actorID,
		ExpectedVersion: req.ExpectedVersion,
	})
	if err != nil {
		return httptransport.ListingResponse{}, err
	}
	return httptransport.ListingResponse{Listing: mapListing(listing)}, nil
}

// StartTransactionHandler godoc
// @Summary Start transaction
// @Description Opens a payment transaction for a reserved listing and initiates it at the gateway.
// @Tags listing-settlement
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param X-Request-Id header string true "Request correlation id"
// @Param Idempotency-Key header string true "Idempotency key"
// @Param listing_id path string true "Listing id"
// @Param request body httptransport.StartTransactionRequest true "Payment payload"
// @Success 200 {object} httptransport.StartTransactionResponse
// @Failure 400 {object} httptransport.ErrorResponse
// @Failure 404 {object} httptransport.ErrorResponse
// @Failure 409 {object} httptransport.ErrorResponse
// @Router /v1/listings/{listing_id}/transactions [post]
func (h Handler) StartTransactionHandler(
	ctx context.Context,
	actorID string,
	listingID string,
	idempotencyKey string,
	req httptransport.StartTransactionRequest,
) (httptransport.StartTransactionResponse, error) {
	amount, err := parseAmount(req.Amount)
	if err != nil {
		return httptransport.StartTransactionResponse{}, err
	}
	result, err := h.Machine.StartTransaction(ctx, commands.StartTransactionCommand{
		ListingID:      listingID,
		BuyerID:        actorID,
		Amount:         amount,
		Currency:       req.Currency,
		Gateway:        entities.PaymentGateway(strings.ToLower(strings.TrimSpace(req.Gateway))),
		IdempotencyKey: idempotencyKey,
	})
	if err != nil {
		return httptransport.StartTransactionResponse{}, err
	}
	if result.InitiationErr != nil {
		application.ResolveLogger(h.Logger).Warn("payment initiation deferred to reconciliation",
			"event", "http_start_transaction_initiation_deferred",
			"module", "marketplace/listing-settlement",
			"layer", "transport",
			"listing_id", listingID,
			"transaction_id", result.Transaction.TransactionID,
			"error", result.InitiationErr.Error(),
		)
	}
	return httptransport.StartTransactionResponse{
		Listing:        mapListing(result.Listing),
		Transaction:    mapTransaction(result.Transaction),
		Replayed:       result.Replayed,
		PaymentPending: result.InitiationErr != nil,
	}, nil
}

// CancelListingHandler godoc
// @Summary Cancel listing
// @Description Cancels the listing, voids an open transaction and releases the broker.
// @Tags listing-settlement
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param X-Request-Id header string true "Request correlation id"
// @Param listing_id path string true "Listing id"
// @Param request body httptransport.ReasonRequest true "Cancellation reason"
// @Success 200 {object} httptransport.ListingResponse
// @Failure 400 {object} httptransport.ErrorResponse
// @Failure 404 {object} httptransport.ErrorResponse
// @Failure 409 {object} httptransport.ErrorResponse
// @Router /v1/listings/{listing_id}/cancel [post]
func (h Handler) CancelListingHandler(
	ctx context.Context,
	actorID string,
	listingID string,
	req httptransport.ReasonRequest,
) (httptransport.ListingResponse, error) {
	listing, err := h.Machine.Cancel(ctx, commands.CancelListingCommand{
		ListingID: listingID,
		Reason:    req.Reason,
		ActorID:   actorID,
	})
	if err != nil {
		return httptransport.ListingResponse{}, err
	}
	return httptransport.ListingResponse{Listing: mapListing(listing)}, nil
}

// ArchiveListingHandler godoc
// @Summary Archive listing
// @Tags listing-settlement
// @Produce json
// @Security BearerAuth
// @Param X-Request-Id header string true "Request correlation id"
// @Param listing_id path string true "Listing id"
// @Success 200 {object} httptransport.ListingResponse
// @Failure 404 {object} httptransport.ErrorResponse
// @Failure 409 {object} httptransport.ErrorResponse
// @Router /v1/listings/{listing_id}/archive [post]
func (h Handler) ArchiveListingHandler(
	ctx context.Context,
	actorID string,
	listingID string,
) (httptransport.ListingResponse, error) {
	listing, err := h.Machine.Archive(ctx, commands.ArchiveListingCommand{
		ListingID: listingID,
		ActorID:   actorID,
	})
	if err != nil {
		return httptransport.ListingResponse{}, err
	}
	return httptransport.ListingResponse{Listing: mapListing(listing)}, nil
}

// VerifyListingHandler godoc
// @Summary Verify listing audit history
// @Description Checks the stored listing against its latest audit entry. A mismatch quarantines the listing.
// @Tags listing-settlement
// @Produce json
// @Security BearerAuth
// @Param X-Request-Id header string true "Request correlation id"
// @Param listing_id path string true "Listing id"
// @Success 200 {object} httptransport.ListingResponse
// @Failure 404 {object} httptransport.ErrorResponse
// @Failure 500 {object} httptransport.ErrorResponse
// @Router /v1/listings/{listing_id}/verify [post]
func (h Handler) VerifyListingHandler(ctx context.Context, listingID string) (httptransport.ListingResponse, error) {
	if err := h.Machine.VerifyListing(ctx, listingID); err != nil {
		return httptransport.ListingResponse{}, err
	}
	view, err := h.GetListing.Execute(ctx, listingID)
	if err != nil {
		return httptransport.ListingResponse{}, err
	}
	return httptransport.ListingResponse{Listing: mapListing(view.Listing)}, nil
}

// AssignBrokerHandler godoc
// @Summary Assign broker
// @Description Assigns a broker to a published listing that has none.
// @Tags listing-settlement
// @Produce json
// @Security BearerAuth
// @Param X-Request-Id header string true "Request correlation id"
// @Param listing_id path string true "Listing id"
// @Success 200 {object} httptransport.AssignBrokerResponse
// @Failure 404 {object} httptransport.ErrorResponse
// @Failure 409 {object} httptransport.ErrorResponse
// @Router /v1/listings/{listing_id}/assignment [post]
func (h Handler) AssignBrokerHandler(
	ctx context.Context,
	actorID string,
	listingID string,
) (httptransport.AssignBrokerResponse, error) {
	result, err := h.Machine.AssignBroker(ctx, commands.AssignBrokerCommand{
		ListingID: listingID,
		ActorID:   actorID,
	})
	if err != nil {
		return httptransport.AssignBrokerResponse{}, err
	}
	return httptransport.AssignBrokerResponse{
		Listing:  mapListing(result.Listing),
		Assigned: mapAssignment(result.Assigned),
	}, nil
}

// AcknowledgeAssignmentHandler godoc
// @Summary Acknowledge lead assignment
// @Description The assigned broker confirms the lead, which stops the SLA timer.
// @Tags listing-settlement
// @Produce json
// @Security BearerAuth
// @Param X-Request-Id header string true "Request correlation id"
// @Param assignment_id path string true "Assignment id"
// @Success 200 {object} httptransport.AssignmentResponse
// @Failure 404 {object} httptransport.ErrorResponse
// @Failure 409 {object} httptransport.ErrorResponse
// @Router /v1/assignments/{assignment_id}/acknowledge [post]
func (h Handler) AcknowledgeAssignmentHandler(
	ctx context.Context,
	brokerID string,
	assignmentID string,
) (httptransport.AssignmentResponse, error) {
	assignment, err := h.Acknowledge.Execute(ctx, commands.AcknowledgeAssignmentCommand{
		AssignmentID: assignmentID,
		BrokerID:     brokerID,
	})
	if err != nil {
		return httptransport.AssignmentResponse{}, err
	}
	return httptransport.AssignmentResponse{Assignment: mapAssignment(assignment)}, nil
}

// GetTransactionHandler godoc
// @Summary Get transaction
// @Tags listing-settlement
// @Produce json
// @Security BearerAuth
// @Param X-Request-Id header string true "Request correlation id"
// @Param transaction_id path string true "Transaction id"
// @Success 200 {object} httptransport.TransactionResponse
// @Failure 404 {object} httptransport.ErrorResponse
// @Router /v1/transactions/{transaction_id} [get]
func (h Handler) GetTransactionHandler(ctx context.Context, transactionID string) (httptransport.TransactionResponse, error) {
	txn, err := h.GetTransaction.Execute(ctx, transactionID)
	if err != nil {
		return httptransport.TransactionResponse{}, err
	}
	return httptransport.TransactionResponse{Transaction: mapTransaction(txn)}, nil
}

// RefundTransactionHandler godoc
// @Summary Refund transaction
// @Description Records a refund for a captured transaction within the refund window.
// @Tags listing-settlement
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param X-Request-Id header string true "Request correlation id"
// @Param transaction_id path string true "Transaction id"
// @Param request body httptransport.ReasonRequest true "Refund reason"
// @Success 200 {object} httptransport.TransactionResponse
// @Failure 400 {object} httptransport.ErrorResponse
// @Failure 404 {object} httptransport.ErrorResponse
// @Failure 409 {object} httptransport.ErrorResponse
// @Router /v1/transactions/{transaction_id}/refund [post]
func (h Handler) RefundTransactionHandler(
	ctx context.Context,
	actorID string,
	transactionID string,
	req httptransport.ReasonRequest,
) (httptransport.TransactionResponse, error) {
	txn, err := h.Refund.Execute(ctx, commands.RefundTransactionCommand{
		TransactionID: transactionID,
		ActorID:       actorID,
		Reason:        req.Reason,
	})
	if err != nil {
		return httptransport.TransactionResponse{}, err
	}
	return httptransport.TransactionResponse{Transaction: mapTransaction(txn)}, nil
}

// ListAuditTrailHandler godoc
// @Summary List audit trail
// @Description Returns every audit entry for one entity in sequence order.
// @Tags listing-settlement
// @Produce json
// @Security BearerAuth
// @Param X-Request-Id header string true "Request correlation id"
// @Param entity_type path string true "listing, transaction, lead_assignment or gateway_event"
// @Param entity_id path string true "Entity id"
// @Success 200 {object} httptransport.AuditTrailResponse
// @Failure 400 {object} httptransport.ErrorResponse
// @Router /v1/audit/{entity_type}/{entity_id} [get]
func (h Handler) ListAuditTrailHandler(
	ctx context.Context,
	entityType string,
	entityID string,
) (httptransport.AuditTrailResponse, error) {
	entries, err := h.ListAudit.Execute(ctx, queries.ListAuditTrailQuery{
		EntityType: entities.AuditEntityType(entityType),
		EntityID:   entityID,
	})
	if err != nil {
		return httptransport.AuditTrailResponse{}, err
	}
	items := make([]httptransport.AuditEntryDTO, 0, len(entries))
	for _, entry := range entries {
		items = append(items, mapAuditEntry(entry))
	}
	return httptransport.AuditTrailResponse{Items: items}, nil
}

// GatewayWebhookHandler godoc
// @Summary Payment gateway webhook
// @Description Applies a signed gateway event exactly once. Duplicates return 200 with outcome=duplicate.
// @Tags listing-settlement
// @Accept json
// @Produce json
// @Param request body httptransport.GatewayWebhookRequest true "Gateway event"
// @Success 200 {object} httptransport.GatewayWebhookResponse
// @Failure 400 {object} httptransport.ErrorResponse
// @Failure 500 {object} httptransport.ErrorResponse
// @Router /v1/webhooks/payments [post]
func (h Handler) GatewayWebhookHandler(
	ctx context.Context,
	req httptransport.GatewayWebhookRequest,
) (httptransport.GatewayWebhookResponse, error) {
	outcome, err := h.Webhook.Handle(ctx, workers.GatewayEvent{
		EventType:      req.EventType,
		Reference:      req.Reference,
		IdempotencyKey: req.IdempotencyKey,
		Status:         req.Status,
		Amount:         req.Amount,
		Currency:       req.Currency,
		Timestamp:      req.Timestamp,
		Signature:      req.Signature,
	})
	resp := httptransport.GatewayWebhookResponse{
		Outcome:           string(outcome.Outcome),
		TransactionID:     outcome.TransactionID,
		TransactionStatus: string(outcome.TransactionStatus),
	}
	return resp, err
}

func parseAmount(raw string) (decimal.Decimal, error) {
	if strings.TrimSpace(raw) == "" {
		return decimal.Zero, nil
	}
	amount, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return decimal.Decimal{}, domainerrors.ErrInvalidAmount
	}
	return amount, nil
}

func mapListing(listing entities.Listing) httptransport.ListingDTO {
	dto := httptransport.ListingDTO{
		ListingID:     listing.ListingID,
		Kind:          string(listing.Kind),
		OfferType:     string(listing.OfferType),
		Status:        string(listing.Status),
		Title:         listing.Title,
		Region:        listing.Region,
		OwnerID:       listing.OwnerID,
		BrokerID:      listing.BrokerID,
		Price:         listing.Price.StringFixed(2),
		Currency:      listing.Currency,
		ReservedBy:    listing.ReservedBy,
		TransactionID: listing.TransactionID,
		CancelReason:  listing.CancelReason,
		Version:       listing.Version,
		UpdatedAt:     formatTime(listing.UpdatedAt),
	}
	if listing.ReservationExpiresAt != nil {
		dto.ReservationExpiresAt = formatTime(*listing.ReservationExpiresAt)
	}
	return dto
}

func mapTransaction(txn entities.Transaction) httptransport.TransactionDTO {
	return httptransport.TransactionDTO{
		TransactionID:    txn.TransactionID,
		ListingID:        txn.ListingID,
		BuyerID:          txn.BuyerID,
		Amount:           txn.Amount.StringFixed(2),
		Currency:         txn.Currency,
		Status:           string(txn.Status),
		Gateway:          string(txn.Gateway),
		GatewayReference: txn.GatewayReference,
		FailureReason:    txn.FailureReason,
		CreatedAt:        formatTime(txn.CreatedAt),
		UpdatedAt:        formatTime(txn.UpdatedAt),
	}
}

func mapAssignment(assignment entities.LeadAssignment) httptransport.AssignmentDTO {
	dto := httptransport.AssignmentDTO{
		AssignmentID:  assignment.AssignmentID,
		ListingID:     assignment.ListingID,
		BrokerID:      assignment.BrokerID,
		Status:        string(assignment.Status),
		AssignedAt:    formatTime(assignment.AssignedAt),
		ReleaseReason: assignment.ReleaseReason,
	}
	if assignment.AcknowledgedAt != nil {
		dto.AcknowledgedAt = formatTime(*assignment.AcknowledgedAt)
	}
	return dto
}

func mapAuditEntry(entry entities.AuditEntry) httptransport.AuditEntryDTO {
	dto := httptransport.AuditEntryDTO{
		Sequence:   entry.Sequence,
		EntityType: string(entry.EntityType),
		EntityID:   entry.EntityID,
		Action:     entry.Action,
		ActorID:    entry.ActorID,
		Reason:     entry.Reason,
		OccurredAt: formatTime(entry.OccurredAt),
	}
	if len(entry.Before) > 0 {
		dto.Before = json.RawMessage(entry.Before)
	}
	if len(entry.After) > 0 {
		dto.After = json.RawMessage(entry.After)
	}
	return dto
}

func formatTime(value time.Time) string {
	return value.UTC().Format(time.RFC3339)
}

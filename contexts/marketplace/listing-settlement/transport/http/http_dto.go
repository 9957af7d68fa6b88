package httptransport

type CreateListingRequest struct {
	Kind      string `json:"kind"`
	OfferType string `json:"offer_type,omitempty"`
	Title     string `json:"title"`
	Region    string `json:"region"`
	Price     string `json:"price"`
	Currency  string `json:"currency"`
}

type ReserveListingRequest struct {
	ExpectedVersion int64 `json:"expected_version"`
}

type StartTransactionRequest struct {
	Amount   string `json:"amount"`
	Currency string `json:"currency"`
	Gateway  string `json:"gateway,omitempty"`
}

type ReasonRequest struct {
	Reason string `json:"reason"`
}

type ListingDTO struct {
	ListingID            string `json:"listing_id"`
	Kind                 string `json:"kind"`
	OfferType            string `json:"offer_type"`
	Status               string `json:"status"`
	Title                string `json:"title"`
	Region               string `json:"region"`
	OwnerID              string `json:"owner_id"`
	BrokerID             string `json:"broker_id,omitempty"`
	Price                string `json:"price"`
	Currency             string `json:"currency"`
	ReservedBy           string `json:"reserved_by,omitempty"`
	ReservationExpiresAt string `json:"reservation_expires_at,omitempty"`
	TransactionID        string `json:"transaction_id,omitempty"`
	CancelReason         string `json:"cancel_reason,omitempty"`
	Version              int64  `json:"version"`
	UpdatedAt            string `json:"updated_at"`
}

type TransactionDTO struct {
	TransactionID    string `json:"transaction_id"`
	ListingID        string `json:"listing_id"`
	BuyerID          string `json:"buyer_id"`
	Amount           string `json:"amount"`
	Currency         string `json:"currency"`
	Status           string `json:"status"`
	Gateway          string `json:"gateway"`
	GatewayReference string `json:"gateway_reference,omitempty"`
	FailureReason    string `json:"failure_reason,omitempty"`
	CreatedAt        string `json:"created_at"`
	UpdatedAt        string `json:"updated_at"`
}

type AssignmentDTO struct {
	AssignmentID   string `json:"assignment_id"`
	ListingID      string `json:"listing_id"`
	BrokerID       string `json:"broker_id"`
	Status         string `json:"status"`
	AssignedAt     string `json:"assigned_at"`
	AcknowledgedAt string `json:"acknowledged_at,omitempty"`
	ReleaseReason  string `json:"release_reason,omitempty"`
}

type ListingResponse struct {
	Listing ListingDTO `json:"listing"`
}

type GetListingResponse struct {
	Listing          ListingDTO      `json:"listing"`
	ActiveAssignment *AssignmentDTO  `json:"active_assignment,omitempty"`
	OpenTransaction  *TransactionDTO `json:"open_transaction,omitempty"`
}

type PublishListingResponse struct {
	Listing    ListingDTO     `json:"listing"`
	Assignment *AssignmentDTO `json:"assignment,omitempty"`
	Unassigned bool           `json:"unassigned,omitempty"`
}

type AssignBrokerResponse struct {
	Listing  ListingDTO    `json:"listing"`
	Assigned AssignmentDTO `json:"assigned"`
}

type StartTransactionResponse struct {
	Listing     ListingDTO     `json:"listing"`
	Transaction TransactionDTO `json:"transaction"`
	Replayed    bool           `json:"replayed,omitempty"`
	// PaymentPending is set when the gateway could not be reached yet; the
	// reconciliation sweep keeps retrying initiation.
	PaymentPending bool `json:"payment_pending,omitempty"`
}

type TransactionResponse struct {
	Transaction TransactionDTO `json:"transaction"`
}

type AssignmentResponse struct {
	Assignment AssignmentDTO `json:"assignment"`
}

type AuditEntryDTO struct {
	Sequence   int64  `json:"sequence"`
	EntityType string `json:"entity_type"`
	EntityID   string `json:"entity_id"`
	Action     string `json:"action"`
	ActorID    string `json:"actor_id"`
	Reason     string `json:"reason,omitempty"`
	Before     any    `json:"before,omitempty"`
	After      any    `json:"after,omitempty"`
	OccurredAt string `json:"occurred_at"`
}

type AuditTrailResponse struct {
	Items []AuditEntryDTO `json:"items"`
}

// GatewayWebhookRequest is the payment gateway callback body.
type GatewayWebhookRequest struct {
	EventType      string `json:"event_type"`
	Reference      string `json:"reference"`
	IdempotencyKey string `json:"idempotency_key"`
	Status         string `json:"status"`
	Amount         string `json:"amount"`
	Currency       string `json:"currency"`
	Timestamp      string `json:"timestamp"`
	Signature      string `json:"signature"`
}

type GatewayWebhookResponse struct {
	Outcome           string `json:"outcome"`
	TransactionID     string `json:"transaction_id,omitempty"`
	TransactionStatus string `json:"transaction_status,omitempty"`
}

type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

package errors

import (
	"errors"
	"fmt"
)

// Error kinds. Every specific error below wraps exactly one kind so callers
// can branch with errors.Is on either the kind or the specific value.
var (
	ErrValidation           = errors.New("validation error")
	ErrConflict             = errors.New("conflict")
	ErrNotFound             = errors.New("not found")
	ErrInvalidTransition    = errors.New("invalid transition")
	ErrGateway              = errors.New("gateway error")
	ErrIdempotencyViolation = errors.New("idempotency violation")
	ErrFatalConsistency     = errors.New("fatal consistency error")
	ErrMisconfigured        = errors.New("engine misconfigured")
)

var (
	ErrInvalidListing         = fmt.Errorf("%w: listing requires kind, owner and a positive price", ErrValidation)
	ErrInvalidListingKind     = fmt.Errorf("%w: listing kind must be property or vehicle", ErrValidation)
	ErrInvalidCurrency        = fmt.Errorf("%w: currency must be a 3-letter ISO code", ErrValidation)
	ErrInvalidAmount          = fmt.Errorf("%w: amount must be positive", ErrValidation)
	ErrIdempotencyKeyRequired = fmt.Errorf("%w: idempotency key required", ErrValidation)
	ErrBuyerRequired          = fmt.Errorf("%w: buyer id required", ErrValidation)
	ErrReasonRequired         = fmt.Errorf("%w: reason required", ErrValidation)
	ErrMalformedEvent         = fmt.Errorf("%w: malformed gateway event", ErrValidation)
	ErrInvalidSignature       = fmt.Errorf("%w: gateway event signature mismatch", ErrValidation)
	ErrEventAmountMismatch    = fmt.Errorf("%w: gateway event amount or currency differs from transaction", ErrValidation)
	ErrInvalidTransaction     = fmt.Errorf("%w: transaction requires id and listing", ErrValidation)
	ErrEventPayloadMismatch   = fmt.Errorf("%w: payload differs from the delivery already processed under its key", ErrMalformedEvent)

	ErrVersionConflict         = fmt.Errorf("%w: listing version mismatch", ErrConflict)
	ErrOpenTransactionExists   = fmt.Errorf("%w: listing already has an open transaction", ErrConflict)
	ErrIdempotencyKeyConflict  = fmt.Errorf("%w: idempotency key reused with different request", ErrConflict)
	ErrReservationHeldByOther  = fmt.Errorf("%w: listing is reserved by another buyer", ErrConflict)
	ErrReservationExpired      = fmt.Errorf("%w: reservation expired", ErrConflict)
	ErrTransactionStatusRace   = fmt.Errorf("%w: transaction status changed concurrently", ErrConflict)
	ErrActiveAssignmentExists  = fmt.Errorf("%w: listing already has an active assignment", ErrConflict)
	ErrAssignmentStatusRace    = fmt.Errorf("%w: assignment status changed concurrently", ErrConflict)
	ErrAssignmentNotOwned      = fmt.Errorf("%w: assignment belongs to another broker", ErrConflict)
	ErrRefundWindowElapsed     = fmt.Errorf("%w: refund window elapsed", ErrConflict)
	ErrTransactionListingMatch = fmt.Errorf("%w: transaction does not belong to listing", ErrConflict)

	ErrListingNotFound     = fmt.Errorf("%w: listing not found", ErrNotFound)
	ErrTransactionNotFound = fmt.Errorf("%w: transaction not found", ErrNotFound)
	ErrAssignmentNotFound  = fmt.Errorf("%w: lead assignment not found", ErrNotFound)
	ErrNoEligibleBroker    = fmt.Errorf("%w: no eligible broker", ErrNotFound)

	ErrListingTransition     = fmt.Errorf("%w: listing transition not allowed", ErrInvalidTransition)
	ErrTransactionTransition = fmt.Errorf("%w: transaction transition not allowed", ErrInvalidTransition)
	ErrRefundRequired        = fmt.Errorf("%w: transaction already captured, issue a refund instead", ErrInvalidTransition)
	ErrAssignmentTransition  = fmt.Errorf("%w: assignment transition not allowed", ErrInvalidTransition)

	ErrGatewayUnavailable = fmt.Errorf("%w: payment gateway unavailable", ErrGateway)
	ErrGatewayRejected    = fmt.Errorf("%w: payment gateway rejected request", ErrGateway)

	ErrDuplicateEvent = fmt.Errorf("%w: gateway event already applied", ErrIdempotencyViolation)

	ErrMissingAuditEntry   = fmt.Errorf("%w: state change without audit entry", ErrFatalConsistency)
	ErrEntityQuarantined   = fmt.Errorf("%w: entity quarantined pending operator review", ErrFatalConsistency)
	ErrRepositoryInvariant = fmt.Errorf("%w: repository invariant violated", ErrFatalConsistency)

	ErrReservationTTLUnset = fmt.Errorf("%w: reservation ttl must be positive", ErrMisconfigured)
	ErrAssignmentSLAUnset  = fmt.Errorf("%w: assignment sla timeout must be positive", ErrMisconfigured)
)

package services

import (
	"fmt"

	"key2key/contexts/marketplace/listing-settlement/domain/entities"
	domainerrors "key2key/contexts/marketplace/listing-settlement/domain/errors"
)

type GatewayEventType string

const (
	GatewayEventAuthorized GatewayEventType = "authorized"
	GatewayEventCaptured   GatewayEventType = "captured"
	GatewayEventFailed     GatewayEventType = "failed"
	GatewayEventRefunded   GatewayEventType = "refunded"
)

func ParseGatewayEventType(raw string) (GatewayEventType, bool) {
	switch GatewayEventType(raw) {
	case GatewayEventAuthorized, GatewayEventCaptured, GatewayEventFailed, GatewayEventRefunded:
		return GatewayEventType(raw), true
	default:
		return "", false
	}
}

// Target is the transaction status the event drives toward.
func (e GatewayEventType) Target() entities.TransactionStatus {
	switch e {
	case GatewayEventAuthorized:
		return entities.TransactionStatusAuthorized
	case GatewayEventCaptured:
		return entities.TransactionStatusCaptured
	case GatewayEventFailed:
		return entities.TransactionStatusFailed
	case GatewayEventRefunded:
		return entities.TransactionStatusRefunded
	default:
		return ""
	}
}

type settlementEdge struct {
	from entities.TransactionStatus
	to   entities.TransactionStatus
}

var settlementTransitions = map[settlementEdge]bool{
	{entities.TransactionStatusPending, entities.TransactionStatusAuthorized}:  true,
	{entities.TransactionStatusPending, entities.TransactionStatusCaptured}:    true,
	{entities.TransactionStatusAuthorized, entities.TransactionStatusCaptured}: true,
	{entities.TransactionStatusPending, entities.TransactionStatusFailed}:      true,
	{entities.TransactionStatusAuthorized, entities.TransactionStatusFailed}:   true,
	{entities.TransactionStatusCaptured, entities.TransactionStatusRefunded}:   true,
}

// successRank orders the success path; failed is off-path.
var successRank = map[entities.TransactionStatus]int{
	entities.TransactionStatusPending:    0,
	entities.TransactionStatusAuthorized: 1,
	entities.TransactionStatusCaptured:   2,
	entities.TransactionStatusRefunded:   3,
}

// SettlementDecision tells the ledger what to do with a requested status change.
type SettlementDecision int

const (
	SettlementApply SettlementDecision = iota
	// SettlementDuplicate means the transaction already reflects the change
	// (same status, or a later status on the success path).
	SettlementDuplicate
)

// DecideSettlement validates current→target against the settlement table.
// singlePhaseCapture gates pending→captured for gateways without a separate
// authorization step.
func DecideSettlement(
	current entities.TransactionStatus,
	target entities.TransactionStatus,
	singlePhaseCapture bool,
) (SettlementDecision, error) {
	if current == target {
		return SettlementDuplicate, nil
	}
	curRank, curOnPath := successRank[current]
	targetRank, targetOnPath := successRank[target]
	if curOnPath && targetOnPath && targetRank < curRank && target != entities.TransactionStatusPending {
		return SettlementDuplicate, nil
	}
	if !settlementTransitions[settlementEdge{from: current, to: target}] {
		return 0, fmt.Errorf("%w: %s to %s", domainerrors.ErrTransactionTransition, current, target)
	}
	if current == entities.TransactionStatusPending &&
		target == entities.TransactionStatusCaptured &&
		!singlePhaseCapture {
		return 0, fmt.Errorf("%w: single-phase capture disabled", domainerrors.ErrTransactionTransition)
	}
	return SettlementApply, nil
}

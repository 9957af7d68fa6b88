package services

import (
	"errors"
	"testing"

	"key2key/contexts/marketplace/listing-settlement/domain/entities"
	domainerrors "key2key/contexts/marketplace/listing-settlement/domain/errors"
)

func TestDecideSettlementAppliesForwardEdges(t *testing.T) {
	cases := []struct {
		from        entities.TransactionStatus
		to          entities.TransactionStatus
		singlePhase bool
	}{
		{entities.TransactionStatusPending, entities.TransactionStatusAuthorized, false},
		{entities.TransactionStatusAuthorized, entities.TransactionStatusCaptured, false},
		{entities.TransactionStatusPending, entities.TransactionStatusCaptured, true},
		{entities.TransactionStatusPending, entities.TransactionStatusFailed, false},
		{entities.TransactionStatusAuthorized, entities.TransactionStatusFailed, false},
		{entities.TransactionStatusCaptured, entities.TransactionStatusRefunded, false},
	}
	for _, tc := range cases {
		decision, err := DecideSettlement(tc.from, tc.to, tc.singlePhase)
		if err != nil {
			t.Fatalf("%s to %s: unexpected error %v", tc.from, tc.to, err)
		}
		if decision != SettlementApply {
			t.Fatalf("%s to %s: expected apply, got %v", tc.from, tc.to, decision)
		}
	}
}

func TestDecideSettlementTreatsReplaysAsDuplicates(t *testing.T) {
	cases := []struct {
		from entities.TransactionStatus
		to   entities.TransactionStatus
	}{
		{entities.TransactionStatusCaptured, entities.TransactionStatusCaptured},
		{entities.TransactionStatusCaptured, entities.TransactionStatusAuthorized},
		{entities.TransactionStatusRefunded, entities.TransactionStatusCaptured},
		{entities.TransactionStatusFailed, entities.TransactionStatusFailed},
	}
	for _, tc := range cases {
		decision, err := DecideSettlement(tc.from, tc.to, false)
		if err != nil {
			t.Fatalf("%s to %s: unexpected error %v", tc.from, tc.to, err)
		}
		if decision != SettlementDuplicate {
			t.Fatalf("%s to %s: expected duplicate, got %v", tc.from, tc.to, decision)
		}
	}
}

func TestDecideSettlementRejectsInvalidEdges(t *testing.T) {
	cases := []struct {
		from        entities.TransactionStatus
		to          entities.TransactionStatus
		singlePhase bool
	}{
		{entities.TransactionStatusPending, entities.TransactionStatusCaptured, false},
		{entities.TransactionStatusCaptured, entities.TransactionStatusFailed, true},
		{entities.TransactionStatusFailed, entities.TransactionStatusCaptured, true},
		{entities.TransactionStatusPending, entities.TransactionStatusRefunded, true},
		{entities.TransactionStatusAuthorized, entities.TransactionStatusPending, true},
	}
	for _, tc := range cases {
		_, err := DecideSettlement(tc.from, tc.to, tc.singlePhase)
		if !errors.Is(err, domainerrors.ErrTransactionTransition) {
			t.Fatalf("%s to %s: expected transition error, got %v", tc.from, tc.to, err)
		}
	}
}

func TestParseGatewayEventType(t *testing.T) {
	if got, ok := ParseGatewayEventType("captured"); !ok || got.Target() != entities.TransactionStatusCaptured {
		t.Fatalf("expected captured to parse and target captured, got %q %v", got, ok)
	}
	if _, ok := ParseGatewayEventType("chargeback"); ok {
		t.Fatalf("expected unknown gateway event type to be rejected")
	}
}

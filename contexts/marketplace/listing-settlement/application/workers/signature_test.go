package workers

import "testing"

func TestGatewayEventSignatureCoversEveryField(t *testing.T) {
	event := GatewayEvent{
		EventType:      "captured",
		Reference:      "chapa-1",
		IdempotencyKey: "K1",
		Status:         "captured",
		Amount:         "2500000",
		Currency:       "ETB",
		Timestamp:      "2026-05-04T08:01:00Z",
	}
	event.Signature = SignGatewayEvent("secret", event)
	if !VerifyGatewayEvent("secret", event) {
		t.Fatalf("expected signed event to verify")
	}
	if VerifyGatewayEvent("other-secret", event) {
		t.Fatalf("expected wrong secret to fail")
	}
	if VerifyGatewayEvent("", event) {
		t.Fatalf("expected empty secret to never verify")
	}

	mutations := map[string]func(*GatewayEvent){
		"event_type":      func(e *GatewayEvent) { e.EventType = "failed" },
		"reference":       func(e *GatewayEvent) { e.Reference = "chapa-2" },
		"idempotency_key": func(e *GatewayEvent) { e.IdempotencyKey = "K2" },
		"status":          func(e *GatewayEvent) { e.Status = "failed" },
		"amount":          func(e *GatewayEvent) { e.Amount = "1" },
		"currency":        func(e *GatewayEvent) { e.Currency = "USD" },
		"timestamp":       func(e *GatewayEvent) { e.Timestamp = "2026-05-04T08:02:00Z" },
		"signature":       func(e *GatewayEvent) { e.Signature = "zz" },
	}
	for field, mutate := range mutations {
		tampered := event
		mutate(&tampered)
		if VerifyGatewayEvent("secret", tampered) {
			t.Fatalf("expected tampered %s to fail verification", field)
		}
	}
}

func TestPayloadHashIgnoresSignature(t *testing.T) {
	event := GatewayEvent{EventType: "captured", IdempotencyKey: "K1"}
	signed := event
	signed.Signature = SignGatewayEvent("secret", event)
	if payloadHash(event) != payloadHash(signed) {
		t.Fatalf("expected payload hash to depend on canonical fields only")
	}
}

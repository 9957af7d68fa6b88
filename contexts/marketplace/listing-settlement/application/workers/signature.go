package workers

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// GatewayEvent is the inbound webhook payload as delivered by the gateway.
// Amount and Timestamp stay in their wire form because the signature covers
// the exact bytes the gateway signed.
type GatewayEvent struct {
	EventType      string `json:"event_type"`
	Reference      string `json:"reference"`
	IdempotencyKey string `json:"idempotency_key"`
	Status         string `json:"status"`
	Amount         string `json:"amount"`
	Currency       string `json:"currency"`
	Timestamp      string `json:"timestamp"`
	Signature      string `json:"signature"`

	// trusted marks events the engine fetched from the gateway itself.
	trusted bool
}

func (e GatewayEvent) canonical() string {
	return strings.Join([]string{
		e.EventType,
		e.Reference,
		e.IdempotencyKey,
		e.Status,
		e.Amount,
		e.Currency,
		e.Timestamp,
	}, "|")
}

// SignGatewayEvent returns the hex HMAC-SHA256 of the event's canonical form.
func SignGatewayEvent(secret string, event GatewayEvent) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(event.canonical()))
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifyGatewayEvent compares signatures in constant time. An empty secret
// never verifies.
func VerifyGatewayEvent(secret string, event GatewayEvent) bool {
	if secret == "" || event.Signature == "" {
		return false
	}
	provided, err := hex.DecodeString(strings.TrimSpace(event.Signature))
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(event.canonical()))
	return hmac.Equal(provided, mac.Sum(nil))
}

// payloadHash fingerprints what the gateway signed. Trusted events carry no
// fingerprint, so a later webhook for the same effect replays as a duplicate.
func payloadHash(event GatewayEvent) string {
	if event.trusted {
		return ""
	}
	sum := sha256.Sum256([]byte(event.canonical()))
	return hex.EncodeToString(sum[:])
}

package memory

import (
	"context"
	"fmt"
	"sync"

	domainerrors "key2key/contexts/marketplace/listing-settlement/domain/errors"
	"key2key/contexts/marketplace/listing-settlement/ports"

	"github.com/shopspring/decimal"
)

// Gateway is a fake payment gateway for local runtime and tests. Intents are
// keyed by idempotency key, so repeated Initiate calls return one reference.
type Gateway struct {
	mu            sync.Mutex
	intents       map[string]ports.GatewayStatus
	failures      int
	initiateCalls int
	sequence      int
}

func NewGateway() *Gateway {
	return &Gateway{intents: make(map[string]ports.GatewayStatus)}
}

// FailNext makes the next n Initiate calls fail as unavailable.
func (g *Gateway) FailNext(n int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.failures = n
}

// SetStatus moves an intent to the given gateway-side status.
func (g *Gateway) SetStatus(idempotencyKey string, status string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	intent, ok := g.intents[idempotencyKey]
	if !ok {
		return
	}
	intent.Status = status
	g.intents[idempotencyKey] = intent
}

func (g *Gateway) InitiateCalls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.initiateCalls
}

func (g *Gateway) Initiate(_ context.Context, amount decimal.Decimal, currency string, idempotencyKey string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.initiateCalls++
	if g.failures > 0 {
		g.failures--
		return "", domainerrors.ErrGatewayUnavailable
	}
	if intent, ok := g.intents[idempotencyKey]; ok {
		return intent.Reference, nil
	}
	g.sequence++
	reference := fmt.Sprintf("gw-%d", g.sequence)
	g.intents[idempotencyKey] = ports.GatewayStatus{
		Reference: reference,
		Status:    "pending",
		Amount:    amount,
		Currency:  currency,
	}
	return reference, nil
}

func (g *Gateway) Status(_ context.Context, idempotencyKey string) (ports.GatewayStatus, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	intent, ok := g.intents[idempotencyKey]
	if !ok {
		return ports.GatewayStatus{}, fmt.Errorf("%w: unknown intent %s", domainerrors.ErrGatewayRejected, idempotencyKey)
	}
	return intent, nil
}

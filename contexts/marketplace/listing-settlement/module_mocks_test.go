package listingsettlement_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	listingsettlement "key2key/contexts/marketplace/listing-settlement"
	"key2key/contexts/marketplace/listing-settlement/adapters/memory"
	"key2key/contexts/marketplace/listing-settlement/application"
	"key2key/contexts/marketplace/listing-settlement/application/workers"
	"key2key/contexts/marketplace/listing-settlement/domain/entities"
	domainerrors "key2key/contexts/marketplace/listing-settlement/domain/errors"
	"key2key/contexts/marketplace/listing-settlement/domain/services"
	"key2key/contexts/marketplace/listing-settlement/ports"
	"key2key/contexts/marketplace/listing-settlement/ports/mocks"
	httptransport "key2key/contexts/marketplace/listing-settlement/transport/http"

	"github.com/golang/mock/gomock"
)

type capturingPublisher struct {
	mu       sync.Mutex
	topics   []string
	envelope []ports.EventEnvelope
}

func (p *capturingPublisher) Publish(_ context.Context, topic string, event ports.EventEnvelope) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.topics = append(p.topics, topic)
	p.envelope = append(p.envelope, event)
	return nil
}

func (p *capturingPublisher) Subscribe(
	_ context.Context,
	_ string,
	_ string,
	_ func(context.Context, ports.EventEnvelope) error,
) error {
	return nil
}

func (p *capturingPublisher) published() []ports.EventEnvelope {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]ports.EventEnvelope(nil), p.envelope...)
}

func TestOutboxRelayFeedsNotifications(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	publisher := &capturingPublisher{}
	notifier := mocks.NewMockNotifier(ctrl)
	module := listingsettlement.NewInMemoryModule(nil, listingsettlement.InMemoryOptions{
		ReservationTTL: 24 * time.Hour,
		AssignmentSLA:  time.Hour,
		WebhookSecret:  testWebhookSecret,
		Brokers: []entities.Broker{
			{BrokerID: "broker-1", Available: true, Verified: true},
		},
		Publisher:  publisher,
		Subscriber: publisher,
		Notifier:   notifier,
	})
	module.Store.SetNow(testStart)
	ctx := context.Background()

	published := createPublishedListing(t, module)
	if _, err := module.Handler.ReserveListingHandler(ctx, "buyer-1", published.Listing.ListingID, httptransport.ReserveListingRequest{ExpectedVersion: 1}); err != nil {
		t.Fatalf("reserve failed: %v", err)
	}

	if err := module.Workers.OutboxRelay.RunOnce(ctx); err != nil {
		t.Fatalf("relay failed: %v", err)
	}
	envelopes := publisher.published()
	if len(envelopes) == 0 {
		t.Fatalf("expected relay to publish staged events")
	}
	for _, topic := range publisher.topics {
		if topic != workers.SettlementEventsTopic {
			t.Fatalf("expected events on %s, got %s", workers.SettlementEventsTopic, topic)
		}
	}
	if err := module.Workers.OutboxRelay.RunOnce(ctx); err != nil {
		t.Fatalf("second relay failed: %v", err)
	}
	if got := len(publisher.published()); got != len(envelopes) {
		t.Fatalf("expected sent events not to be republished, had %d now %d", len(envelopes), got)
	}

	var notified []ports.Notification
	notifier.EXPECT().
		Notify(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, n ports.Notification) error {
			notified = append(notified, n)
			return errors.New("sms provider down")
		}).
		AnyTimes()

	for _, envelope := range envelopes {
		if err := module.Workers.Notifications.Handle(ctx, envelope); err != nil {
			t.Fatalf("notification handler must swallow delivery errors, got %v", err)
		}
	}

	sawReserved := false
	for _, n := range notified {
		if n.ListingID != published.Listing.ListingID {
			t.Fatalf("unexpected listing in notification: %+v", n)
		}
		if n.EventType == "settlement.listing.status_changed" && n.Status == string(entities.ListingStatusReserved) {
			sawReserved = true
		}
	}
	if !sawReserved {
		t.Fatalf("expected a reserved notification, got %+v", notified)
	}

	view, err := module.Handler.GetListingHandler(ctx, published.Listing.ListingID)
	if err != nil {
		t.Fatalf("get listing failed: %v", err)
	}
	if view.Listing.Status != string(entities.ListingStatusReserved) {
		t.Fatalf("notification failure must not affect listing state, got %s", view.Listing.Status)
	}
}

func TestCaptureAfterCancelAlertsOperatorOnce(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	alerter := mocks.NewMockOperatorAlerter(ctrl)
	module := listingsettlement.NewInMemoryModule(nil, listingsettlement.InMemoryOptions{
		ReservationTTL: 24 * time.Hour,
		AssignmentSLA:  time.Hour,
		WebhookSecret:  testWebhookSecret,
		Brokers: []entities.Broker{
			{BrokerID: "broker-1", Available: true, Verified: true},
		},
		Alerter: alerter,
	})
	module.Store.SetNow(testStart)
	ctx := context.Background()

	published := createPublishedListing(t, module)
	startTransaction(t, module, published.Listing.ListingID, "K1")
	if _, err := module.Handler.CancelListingHandler(ctx, "owner-1", published.Listing.ListingID, httptransport.ReasonRequest{Reason: "withdrawn"}); err != nil {
		t.Fatalf("cancel failed: %v", err)
	}

	alerter.EXPECT().
		Alert(gomock.Any(), "high", gomock.Any(), gomock.Any()).
		Do(func(_ context.Context, _ string, _ string, fields map[string]string) {
			if fields["idempotency_key"] != "K1" {
				t.Errorf("expected alert for K1, got %v", fields)
			}
		}).
		Times(1)

	if _, err := module.Handler.GatewayWebhookHandler(ctx, signedEvent("captured", "K1", "2500000")); !errors.Is(err, domainerrors.ErrInvalidTransition) {
		t.Fatalf("expected capture of failed transaction to be rejected, got %v", err)
	}
	// Redeliveries replay the cached rejection without a new audit entry or alert.
	for i := 0; i < 2; i++ {
		replay, err := module.Handler.GatewayWebhookHandler(ctx, signedEvent("captured", "K1", "2500000"))
		if !errors.Is(err, domainerrors.ErrMalformedEvent) {
			t.Fatalf("redelivery %d: expected cached rejection, got %v", i, err)
		}
		if replay.Outcome != string(ports.EventOutcomeRejected) {
			t.Fatalf("redelivery %d: expected rejected outcome, got %+v", i, replay)
		}
	}
	if got := auditCount(module, entities.AuditEntityGatewayEvent, "K1"); got != 1 {
		t.Fatalf("expected one rejection audit entry for K1, got %d", got)
	}
}

func newMockGatewayModule(t *testing.T, gateway ports.PaymentGateway) (listingsettlement.Module, *memory.Store) {
	t.Helper()
	return newStoreBackedModule(t, gateway, nil)
}

// newStoreBackedModule wires a module on one memory store. transactions, when
// set, wraps the store's transaction repository.
func newStoreBackedModule(
	t *testing.T,
	gateway ports.PaymentGateway,
	transactions func(*memory.Store) ports.TransactionRepository,
) (listingsettlement.Module, *memory.Store) {
	t.Helper()
	store := memory.NewStore(nil)
	store.SetNow(testStart)
	var txns ports.TransactionRepository = store
	if transactions != nil {
		txns = transactions(store)
	}
	roster := memory.NewRoster(entities.Broker{BrokerID: "broker-1", Available: true, Verified: true})
	module := listingsettlement.NewModule(listingsettlement.Dependencies{
		Tx:                      store,
		Listings:                store,
		Transactions:            txns,
		Assignments:             store,
		Audit:                   store,
		Quarantine:              store,
		Outbox:                  store,
		OutboxQueue:             store,
		Idempotency:             store,
		Gateway:                 gateway,
		Eligibility:             roster,
		SweepLock:               store,
		Clock:                   store,
		IDGenerator:             store,
		AssignmentPolicy:        services.PolicyLeastLoaded,
		ReservationTTL:          time.Hour,
		AssignmentSLA:           time.Hour,
		ReconciliationThreshold: time.Minute,
		WebhookSecret:           testWebhookSecret,
		SinglePhaseGateways:     []entities.PaymentGateway{entities.PaymentGatewayChapa},
		GatewayRetry:            application.RetryPolicy{MaxAttempts: 3, InitialInterval: time.Millisecond, MaxInterval: time.Millisecond},
	})
	module.Store = store
	module.Roster = roster
	return module, store
}

func TestGatewayRejectionIsNotRetried(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	gateway := mocks.NewMockPaymentGateway(ctrl)
	module, store := newMockGatewayModule(t, gateway)
	ctx := context.Background()

	gateway.EXPECT().
		Initiate(gomock.Any(), gomock.Any(), "ETB", "K1").
		Return("", domainerrors.ErrGatewayRejected).
		Times(1)

	published := createPublishedListing(t, module)
	started := startTransaction(t, module, published.Listing.ListingID, "K1")
	if !started.PaymentPending {
		t.Fatalf("expected rejected initiation to leave the payment pending")
	}

	gateway.EXPECT().
		Initiate(gomock.Any(), gomock.Any(), "ETB", "K1").
		Return("chapa-ref-9", nil).
		Times(1)

	store.Advance(2 * time.Minute)
	if err := module.Workers.ReconciliationSweeper.RunOnce(ctx); err != nil {
		t.Fatalf("reconciliation failed: %v", err)
	}
	txn, err := module.Handler.GetTransactionHandler(ctx, started.Transaction.TransactionID)
	if err != nil {
		t.Fatalf("get transaction failed: %v", err)
	}
	if txn.Transaction.GatewayReference != "chapa-ref-9" {
		t.Fatalf("expected reference from reconciliation, got %q", txn.Transaction.GatewayReference)
	}
}

func TestReconciliationPollsGatewayStatus(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	gateway := mocks.NewMockPaymentGateway(ctrl)
	module, store := newMockGatewayModule(t, gateway)
	ctx := context.Background()

	gateway.EXPECT().Initiate(gomock.Any(), gomock.Any(), gomock.Any(), "K1").Return("chapa-ref-1", nil)
	published := createPublishedListing(t, module)
	started := startTransaction(t, module, published.Listing.ListingID, "K1")

	gomock.InOrder(
		gateway.EXPECT().Status(gomock.Any(), "K1").Return(ports.GatewayStatus{}, domainerrors.ErrGatewayUnavailable),
		gateway.EXPECT().Status(gomock.Any(), "K1").Return(ports.GatewayStatus{
			Reference: "chapa-ref-1",
			Status:    "failed",
			Currency:  "ETB",
		}, nil),
	)

	store.Advance(2 * time.Minute)
	if err := module.Workers.ReconciliationSweeper.RunOnce(ctx); err != nil {
		t.Fatalf("reconciliation failed: %v", err)
	}
	txn, err := module.Handler.GetTransactionHandler(ctx, started.Transaction.TransactionID)
	if err != nil {
		t.Fatalf("get transaction failed: %v", err)
	}
	if txn.Transaction.Status != string(entities.TransactionStatusFailed) {
		t.Fatalf("expected reconciled failure, got %s", txn.Transaction.Status)
	}
	listing, err := module.Handler.GetListingHandler(ctx, published.Listing.ListingID)
	if err != nil {
		t.Fatalf("get listing failed: %v", err)
	}
	if listing.Listing.Status != string(entities.ListingStatusActive) {
		t.Fatalf("expected listing released after reconciled failure, got %s", listing.Listing.Status)
	}
}

// lateKeyTransactions behaves as if another request committed the same key
// between the lookup and the insert of the first open attempt.
type lateKeyTransactions struct {
	*memory.Store
	buyerID string

	mu     sync.Mutex
	winner *entities.Transaction
}

func (r *lateKeyTransactions) CreateTransaction(ctx context.Context, txn entities.Transaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.winner == nil {
		winner := txn
		winner.TransactionID = "txn-committed-first"
		winner.GatewayReference = "chapa-ref-first"
		if r.buyerID != "" {
			winner.BuyerID = r.buyerID
		}
		r.winner = &winner
		return domainerrors.ErrIdempotencyKeyConflict
	}
	return r.Store.CreateTransaction(ctx, txn)
}

func (r *lateKeyTransactions) GetTransactionByIdempotencyKey(ctx context.Context, key string) (entities.Transaction, bool, error) {
	r.mu.Lock()
	winner := r.winner
	r.mu.Unlock()
	if winner != nil && winner.IdempotencyKey == key {
		return *winner, true, nil
	}
	return r.Store.GetTransactionByIdempotencyKey(ctx, key)
}

func TestStartTransactionReplaysKeyCommittedConcurrently(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	gateway := mocks.NewMockPaymentGateway(ctrl)
	module, _ := newStoreBackedModule(t, gateway, func(store *memory.Store) ports.TransactionRepository {
		return &lateKeyTransactions{Store: store}
	})

	published := createPublishedListing(t, module)
	started := startTransaction(t, module, published.Listing.ListingID, "K1")
	if !started.Replayed || started.Transaction.TransactionID != "txn-committed-first" {
		t.Fatalf("expected replay of the committed transaction, got %+v", started)
	}
	if started.PaymentPending {
		t.Fatalf("replayed transaction already has a gateway reference")
	}
}

func TestStartTransactionKeyCommittedForOtherBuyerConflicts(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	gateway := mocks.NewMockPaymentGateway(ctrl)
	module, _ := newStoreBackedModule(t, gateway, func(store *memory.Store) ports.TransactionRepository {
		return &lateKeyTransactions{Store: store, buyerID: "buyer-2"}
	})
	ctx := context.Background()

	published := createPublishedListing(t, module)
	if _, err := module.Handler.ReserveListingHandler(ctx, "buyer-1", published.Listing.ListingID, httptransport.ReserveListingRequest{
		ExpectedVersion: published.Listing.Version,
	}); err != nil {
		t.Fatalf("reserve failed: %v", err)
	}
	_, err := module.Handler.StartTransactionHandler(ctx, "buyer-1", published.Listing.ListingID, "K1", httptransport.StartTransactionRequest{
		Amount:   "2500000",
		Currency: "ETB",
		Gateway:  "chapa",
	})
	if !errors.Is(err, domainerrors.ErrIdempotencyKeyConflict) {
		t.Fatalf("expected key conflict for another buyer's request, got %v", err)
	}
}

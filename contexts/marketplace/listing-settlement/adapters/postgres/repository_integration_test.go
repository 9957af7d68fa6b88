//go:build integration

package postgresadapter_test

import (
	"context"
	"testing"
	"time"

	listingsettlement "key2key/contexts/marketplace/listing-settlement"
	"key2key/contexts/marketplace/listing-settlement/adapters/memory"
	postgresadapter "key2key/contexts/marketplace/listing-settlement/adapters/postgres"
	"key2key/contexts/marketplace/listing-settlement/application/workers"
	"key2key/contexts/marketplace/listing-settlement/domain/entities"
	domainerrors "key2key/contexts/marketplace/listing-settlement/domain/errors"
	"key2key/contexts/marketplace/listing-settlement/ports"
	httptransport "key2key/contexts/marketplace/listing-settlement/transport/http"
	"key2key/internal/platform/db"
	"key2key/internal/platform/migrations"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

func setupRepository(t *testing.T) *postgresadapter.Repository {
	t.Helper()
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("key2key"),
		tcpostgres.WithUsername("test"),
		tcpostgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, container.Terminate(ctx))
	})

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	require.NoError(t, migrations.Apply(dsn, nil))

	pg, err := db.Connect(dsn, db.PoolOptions{MaxOpenConns: 5, MaxIdleConns: 2, ConnMaxLifetime: time.Minute})
	require.NoError(t, err)
	t.Cleanup(func() { _ = pg.Close() })

	return postgresadapter.NewRepository(pg.DB, nil)
}

func seedListing(t *testing.T, repo *postgresadapter.Repository, listingID string) entities.Listing {
	t.Helper()
	listing, err := entities.NewDraftListing(listingID, entities.ListingKindProperty, "", "Bole flat", "Addis Ababa", "owner-1",
		decimal.RequireFromString("1000"), "ETB", time.Now())
	require.NoError(t, err)
	require.NoError(t, repo.CreateListing(context.Background(), listing))
	return listing
}

func TestIntegration_RepositoryEnforcesUniqueness(t *testing.T) {
	repo := setupRepository(t)
	ctx := context.Background()
	listing := seedListing(t, repo, "lst-1")

	updated := listing.Next(entities.ListingStatusActive, time.Now())
	require.NoError(t, repo.UpdateListing(ctx, updated, 0))
	assert.ErrorIs(t, repo.UpdateListing(ctx, updated, 0), domainerrors.ErrVersionConflict)

	first, err := entities.NewTransaction("txn-1", listing.ListingID, "buyer-1", decimal.RequireFromString("1000"), "ETB", "", "K1", time.Now())
	require.NoError(t, err)
	require.NoError(t, repo.CreateTransaction(ctx, first))

	reused := first
	reused.TransactionID = "txn-2"
	assert.ErrorIs(t, repo.CreateTransaction(ctx, reused), domainerrors.ErrIdempotencyKeyConflict)

	second := first
	second.TransactionID = "txn-3"
	second.IdempotencyKey = "K2"
	assert.ErrorIs(t, repo.CreateTransaction(ctx, second), domainerrors.ErrOpenTransactionExists)

	found, ok, err := repo.GetTransactionByIdempotencyKey(ctx, "K1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, found.Amount.Equal(decimal.RequireFromString("1000")))

	captured := found
	captured.Status = entities.TransactionStatusCaptured
	require.NoError(t, repo.UpdateTransaction(ctx, captured, entities.TransactionStatusPending))
	assert.ErrorIs(t, repo.UpdateTransaction(ctx, captured, entities.TransactionStatusPending), domainerrors.ErrTransactionStatusRace)
}

func TestIntegration_IdempotencyRecordsExpire(t *testing.T) {
	repo := setupRepository(t)
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, repo.Put(ctx, ports.IdempotencyRecord{
		Key:               "K1:captured",
		PayloadHash:       "abc",
		Outcome:           ports.EventOutcomeApplied,
		TransactionID:     "txn-1",
		TransactionStatus: entities.TransactionStatusCaptured,
		ExpiresAt:         now.Add(time.Hour),
	}))

	record, found, err := repo.Get(ctx, "K1:captured", now)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, ports.EventOutcomeApplied, record.Outcome)

	_, found, err = repo.Get(ctx, "K1:captured", now.Add(2*time.Hour))
	require.NoError(t, err)
	assert.False(t, found)
}

func TestIntegration_WebhookSettlesListing(t *testing.T) {
	repo := setupRepository(t)
	ctx := context.Background()
	require.NoError(t, repo.UpsertBroker(ctx, entities.Broker{
		BrokerID:  "broker-1",
		Regions:   []string{"addis ababa"},
		Kinds:     []entities.ListingKind{entities.ListingKindProperty},
		Available: true,
		Verified:  true,
	}))

	const secret = "whsec-integration"
	gateway := memory.NewGateway()
	module := listingsettlement.NewModule(listingsettlement.Dependencies{
		Tx:             repo,
		Listings:       repo,
		Transactions:   repo,
		Assignments:    repo,
		Audit:          repo,
		Quarantine:     repo,
		Outbox:         repo,
		OutboxQueue:    repo,
		Idempotency:    repo,
		Gateway:        gateway,
		Eligibility:    repo,
		Clock:          postgresadapter.SystemClock{},
		IDGenerator:    postgresadapter.UUIDGenerator{},
		ReservationTTL: time.Hour,
		AssignmentSLA:  time.Hour,
		WebhookSecret:  secret,
		SinglePhaseGateways: []entities.PaymentGateway{
			entities.PaymentGatewayChapa,
		},
	})

	created, err := module.Handler.CreateListingHandler(ctx, "owner-1", httptransport.CreateListingRequest{
		Kind:     "property",
		Title:    "Bole flat",
		Region:   "Addis Ababa",
		Price:    "1000",
		Currency: "ETB",
	})
	require.NoError(t, err)
	listingID := created.Listing.ListingID

	published, err := module.Handler.PublishListingHandler(ctx, "owner-1", listingID)
	require.NoError(t, err)
	require.NotNil(t, published.Assignment)
	assert.Equal(t, "broker-1", published.Assignment.BrokerID)

	_, err = module.Handler.ReserveListingHandler(ctx, "buyer-1", listingID, httptransport.ReserveListingRequest{ExpectedVersion: 1})
	require.NoError(t, err)
	started, err := module.Handler.StartTransactionHandler(ctx, "buyer-1", listingID, "K1", httptransport.StartTransactionRequest{
		Amount:   "1000",
		Currency: "ETB",
		Gateway:  "chapa",
	})
	require.NoError(t, err)
	require.False(t, started.PaymentPending)

	event := workers.GatewayEvent{
		EventType:      "captured",
		Reference:      started.Transaction.GatewayReference,
		IdempotencyKey: "K1",
		Status:         "captured",
		Amount:         "1000",
		Currency:       "ETB",
		Timestamp:      time.Now().UTC().Format(time.RFC3339),
	}
	event.Signature = workers.SignGatewayEvent(secret, event)
	resp, err := module.Handler.GatewayWebhookHandler(ctx, httptransport.GatewayWebhookRequest{
		EventType:      event.EventType,
		Reference:      event.Reference,
		IdempotencyKey: event.IdempotencyKey,
		Status:         event.Status,
		Amount:         event.Amount,
		Currency:       event.Currency,
		Timestamp:      event.Timestamp,
		Signature:      event.Signature,
	})
	require.NoError(t, err)
	assert.Equal(t, string(ports.EventOutcomeApplied), resp.Outcome)

	again, err := module.Handler.GatewayWebhookHandler(ctx, httptransport.GatewayWebhookRequest{
		EventType:      event.EventType,
		Reference:      event.Reference,
		IdempotencyKey: event.IdempotencyKey,
		Status:         event.Status,
		Amount:         event.Amount,
		Currency:       event.Currency,
		Timestamp:      event.Timestamp,
		Signature:      event.Signature,
	})
	require.NoError(t, err)
	assert.Equal(t, string(entities.TransactionStatusCaptured), again.TransactionStatus)

	view, err := module.Handler.GetListingHandler(ctx, listingID)
	require.NoError(t, err)
	assert.Equal(t, string(entities.ListingStatusSold), view.Listing.Status)

	trail, err := module.Handler.ListAuditTrailHandler(ctx, string(entities.AuditEntityListing), listingID)
	require.NoError(t, err)
	assert.Len(t, trail.Items, int(view.Listing.Version)+1)

	pending, err := repo.ListPendingOutbox(ctx, 500)
	require.NoError(t, err)
	assert.NotEmpty(t, pending)
}

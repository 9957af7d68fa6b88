package listingsettlement

import (
	"errors"
	"log/slog"
	"time"

	httpadapter "key2key/contexts/marketplace/listing-settlement/adapters/http"
	"key2key/contexts/marketplace/listing-settlement/adapters/memory"
	"key2key/contexts/marketplace/listing-settlement/adapters/notify"
	"key2key/contexts/marketplace/listing-settlement/application"
	"key2key/contexts/marketplace/listing-settlement/application/commands"
	"key2key/contexts/marketplace/listing-settlement/application/queries"
	"key2key/contexts/marketplace/listing-settlement/application/workers"
	"key2key/contexts/marketplace/listing-settlement/domain/entities"
	domainerrors "key2key/contexts/marketplace/listing-settlement/domain/errors"
	"key2key/contexts/marketplace/listing-settlement/domain/services"
	"key2key/contexts/marketplace/listing-settlement/ports"

	"github.com/go-playground/validator/v10"
)

const notificationConsumerGroup = "listing-settlement-notifications-cg"

type Module struct {
	Handler httpadapter.Handler
	Workers Workers
	Store   *memory.Store
	Gateway *memory.Gateway
	Roster  *memory.Roster
}

// Workers are the background loops of the engine. Relay and Notifications are
// zero values when no bus was supplied.
type Workers struct {
	ReservationExpirer    workers.ReservationExpirer
	AssignmentSLASweeper  workers.AssignmentSLASweeper
	ReconciliationSweeper workers.ReconciliationSweeper
	SettlementCompleter   workers.SettlementCompleter
	OutboxRelay           workers.OutboxRelay
	Notifications         workers.NotificationConsumer
}

type Dependencies struct {
	Tx           ports.TxRunner
	Listings     ports.ListingRepository
	Transactions ports.TransactionRepository
	Assignments  ports.AssignmentRepository
	Audit        ports.AuditRepository
	Quarantine   ports.QuarantineStore
	Outbox       ports.OutboxWriter
	OutboxQueue  ports.OutboxRepository
	Idempotency  ports.IdempotencyStore
	Gateway      ports.PaymentGateway
	Eligibility  ports.EligibilityProvider
	Notifier     ports.Notifier
	Alerter      ports.OperatorAlerter
	SweepLock    ports.SweepLock
	Publisher    ports.EventPublisher
	Subscriber   ports.EventSubscriber
	Clock        ports.Clock
	IDGenerator  ports.IDGenerator

	AssignmentPolicy        string
	ReservationTTL          time.Duration
	AssignmentSLA           time.Duration
	RefundWindow            time.Duration
	ReconciliationThreshold time.Duration
	WebhookDedupTTL         time.Duration
	WebhookSecret           string
	SinglePhaseGateways     []entities.PaymentGateway
	GatewayRetry            application.RetryPolicy
	SweepBatchSize          int
	SweepLockTTL            time.Duration
	ReconcileConcurrency    int
	Metrics                 *application.SettlementMetrics
	Logger                  *slog.Logger
}

// Validate reports settings that have no safe default. Reservation TTL and
// assignment SLA are business policy and must be chosen by the operator.
func (d Dependencies) Validate() error {
	var problems []error
	if d.ReservationTTL <= 0 {
		problems = append(problems, domainerrors.ErrReservationTTLUnset)
	}
	if d.AssignmentSLA <= 0 {
		problems = append(problems, domainerrors.ErrAssignmentSLAUnset)
	}
	return errors.Join(problems...)
}

func NewModule(deps Dependencies) Module {
	singlePhase := make(map[entities.PaymentGateway]bool, len(deps.SinglePhaseGateways))
	for _, gateway := range deps.SinglePhaseGateways {
		singlePhase[gateway] = true
	}

	audit := application.AuditWriter{
		Audit:       deps.Audit,
		Quarantine:  deps.Quarantine,
		Alerter:     deps.Alerter,
		IDGenerator: deps.IDGenerator,
		Clock:       deps.Clock,
		Logger:      deps.Logger,
	}
	ledger := application.Ledger{
		Tx:                  deps.Tx,
		Transactions:        deps.Transactions,
		Audit:               audit,
		Outbox:              deps.Outbox,
		Gateway:             deps.Gateway,
		IDGenerator:         deps.IDGenerator,
		Clock:               deps.Clock,
		Retry:               deps.GatewayRetry,
		SinglePhaseGateways: singlePhase,
		RefundWindow:        deps.RefundWindow,
		Metrics:             deps.Metrics,
		Logger:              deps.Logger,
	}
	coordinator := application.Coordinator{
		Tx:          deps.Tx,
		Assignments: deps.Assignments,
		Eligibility: deps.Eligibility,
		Policy:      services.ResolvePolicy(deps.AssignmentPolicy),
		Audit:       audit,
		Outbox:      deps.Outbox,
		IDGenerator: deps.IDGenerator,
		Clock:       deps.Clock,
		Logger:      deps.Logger,
	}
	machine := commands.ListingStateMachine{
		Tx:             deps.Tx,
		Listings:       deps.Listings,
		Transactions:   deps.Transactions,
		Ledger:         ledger,
		Coordinator:    coordinator,
		Audit:          audit,
		Outbox:         deps.Outbox,
		IDGenerator:    deps.IDGenerator,
		Clock:          deps.Clock,
		Validate:       validator.New(),
		ReservationTTL: deps.ReservationTTL,
		Logger:         deps.Logger,
	}
	processor := workers.WebhookProcessor{
		Secret:          deps.WebhookSecret,
		Dedup:           deps.Idempotency,
		Ledger:          ledger,
		Machine:         machine,
		Audit:           audit,
		Alerter:         deps.Alerter,
		Clock:           deps.Clock,
		DedupTTL:        deps.WebhookDedupTTL,
		CompletionRetry: deps.GatewayRetry,
		Metrics:         deps.Metrics,
		Logger:          deps.Logger,
	}

	module := Module{
		Handler: httpadapter.Handler{
			Machine: machine,
			GetListing: queries.GetListingUseCase{
				Listings:     deps.Listings,
				Transactions: deps.Transactions,
				Assignments:  deps.Assignments,
				Logger:       deps.Logger,
			},
			GetTransaction: queries.GetTransactionUseCase{Transactions: deps.Transactions},
			ListAudit:      queries.ListAuditTrailUseCase{Audit: deps.Audit},
			Refund:         commands.RefundTransactionUseCase{Ledger: ledger, Logger: deps.Logger},
			Acknowledge:    commands.AcknowledgeAssignmentUseCase{Coordinator: coordinator, Logger: deps.Logger},
			Webhook:        processor,
			Logger:         deps.Logger,
		},
		Workers: Workers{
			ReservationExpirer: workers.ReservationExpirer{
				Listings:  deps.Listings,
				Machine:   machine,
				Lock:      deps.SweepLock,
				Clock:     deps.Clock,
				BatchSize: deps.SweepBatchSize,
				LockTTL:   deps.SweepLockTTL,
				Metrics:   deps.Metrics,
				Logger:    deps.Logger,
			},
			AssignmentSLASweeper: workers.AssignmentSLASweeper{
				Assignments: deps.Assignments,
				Machine:     machine,
				Lock:        deps.SweepLock,
				Clock:       deps.Clock,
				SLA:         deps.AssignmentSLA,
				BatchSize:   deps.SweepBatchSize,
				LockTTL:     deps.SweepLockTTL,
				Metrics:     deps.Metrics,
				Logger:      deps.Logger,
			},
			ReconciliationSweeper: workers.ReconciliationSweeper{
				Transactions: deps.Transactions,
				Gateway:      deps.Gateway,
				Processor:    processor,
				Lock:         deps.SweepLock,
				Clock:        deps.Clock,
				Threshold:    deps.ReconciliationThreshold,
				BatchSize:    deps.SweepBatchSize,
				Concurrency:  deps.ReconcileConcurrency,
				Retry:        deps.GatewayRetry,
				LockTTL:      deps.SweepLockTTL,
				Metrics:      deps.Metrics,
				Logger:       deps.Logger,
			},
			SettlementCompleter: workers.SettlementCompleter{
				Transactions: deps.Transactions,
				Machine:      machine,
				Alerter:      deps.Alerter,
				Lock:         deps.SweepLock,
				BatchSize:    deps.SweepBatchSize,
				LockTTL:      deps.SweepLockTTL,
				Metrics:      deps.Metrics,
				Logger:       deps.Logger,
			},
		},
	}
	if deps.Publisher != nil && deps.OutboxQueue != nil {
		module.Workers.OutboxRelay = workers.OutboxRelay{
			Outbox:    deps.OutboxQueue,
			Publisher: deps.Publisher,
			Clock:     deps.Clock,
			Topic:     workers.SettlementEventsTopic,
			BatchSize: deps.SweepBatchSize,
			Logger:    deps.Logger,
		}
	}
	if deps.Subscriber != nil && deps.Notifier != nil {
		module.Workers.Notifications = workers.NotificationConsumer{
			Subscriber:    deps.Subscriber,
			Notifier:      deps.Notifier,
			Topic:         workers.SettlementEventsTopic,
			ConsumerGroup: notificationConsumerGroup,
			Logger:        deps.Logger,
		}
	}
	return module
}

// InMemoryOptions configures NewInMemoryModule. ReservationTTL and
// AssignmentSLA have no defaults; callers must choose them.
type InMemoryOptions struct {
	ReservationTTL time.Duration
	AssignmentSLA  time.Duration
	RefundWindow   time.Duration
	WebhookSecret  string
	Brokers        []entities.Broker
	Publisher      ports.EventPublisher
	Subscriber     ports.EventSubscriber
	Notifier       ports.Notifier
	Alerter        ports.OperatorAlerter
}

func NewInMemoryModule(logger *slog.Logger, opts InMemoryOptions) Module {
	store := memory.NewStore(logger)
	gateway := memory.NewGateway()
	roster := memory.NewRoster(opts.Brokers...)

	notifier := opts.Notifier
	if notifier == nil {
		notifier = notify.LogNotifier{Logger: logger}
	}
	alerter := opts.Alerter
	if alerter == nil {
		alerter = notify.LogAlerter{Logger: logger}
	}

	module := NewModule(Dependencies{
		Tx:           store,
		Listings:     store,
		Transactions: store,
		Assignments:  store,
		Audit:        store,
		Quarantine:   store,
		Outbox:       store,
		OutboxQueue:  store,
		Idempotency:  store,
		Gateway:      gateway,
		Eligibility:  roster,
		Notifier:     notifier,
		Alerter:      alerter,
		SweepLock:    store,
		Publisher:    opts.Publisher,
		Subscriber:   opts.Subscriber,
		Clock:        store,
		IDGenerator:  store,

		AssignmentPolicy:        services.PolicyRoundRobin,
		ReservationTTL:          opts.ReservationTTL,
		AssignmentSLA:           opts.AssignmentSLA,
		RefundWindow:            opts.RefundWindow,
		ReconciliationThreshold: 15 * time.Minute,
		WebhookDedupTTL:         7 * 24 * time.Hour,
		WebhookSecret:           opts.WebhookSecret,
		SinglePhaseGateways: []entities.PaymentGateway{
			entities.PaymentGatewayManual,
			entities.PaymentGatewayChapa,
			entities.PaymentGatewayTelebirr,
		},
		GatewayRetry: application.RetryPolicy{
			MaxAttempts:     3,
			InitialInterval: time.Millisecond,
			MaxInterval:     5 * time.Millisecond,
		},
		SweepBatchSize:       100,
		SweepLockTTL:         time.Minute,
		ReconcileConcurrency: 4,
		Logger:               logger,
	})
	module.Store = store
	module.Gateway = gateway
	module.Roster = roster
	return module
}

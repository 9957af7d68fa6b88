package bootstrap

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	listingsettlement "key2key/contexts/marketplace/listing-settlement"
	gatewayadapter "key2key/contexts/marketplace/listing-settlement/adapters/gateway"
	"key2key/contexts/marketplace/listing-settlement/adapters/notify"
	postgresadapter "key2key/contexts/marketplace/listing-settlement/adapters/postgres"
	redisadapter "key2key/contexts/marketplace/listing-settlement/adapters/redis"
	"key2key/contexts/marketplace/listing-settlement/application"
	"key2key/contexts/marketplace/listing-settlement/domain/entities"
	"key2key/contexts/marketplace/listing-settlement/ports"
	"key2key/internal/platform/cache"
	"key2key/internal/platform/config"
	"key2key/internal/platform/db"
	"key2key/internal/platform/httpserver"
	"key2key/internal/platform/messaging"
	"key2key/internal/platform/migrations"
	"key2key/internal/platform/telemetry"
)

// Package bootstrap is the composition root.
// Keep construction/wiring here so module code stays framework-agnostic.

type APIApp struct {
	server    *httpserver.Server
	resources resources
	logger    *slog.Logger
}

type WorkerApp struct {
	workers      listingsettlement.Workers
	resources    resources
	pollInterval time.Duration
	logger       *slog.Logger
}

// resources are the process-wide connections released on Close.
type resources struct {
	postgres *db.Postgres
	redis    *cache.Redis
	metrics  *telemetry.Metrics
	broker   io.Closer
}

// eventBus is what the outbox relay and notification consumer need.
type eventBus interface {
	ports.EventPublisher
	ports.EventSubscriber
}

func BuildAPI(ctx context.Context) (*APIApp, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	logger := newProcessLogger(cfg, "api")
	if strings.TrimSpace(cfg.JWTSecret) == "" {
		return nil, errors.New("JWT_SECRET is required")
	}
	if strings.TrimSpace(cfg.WebhookSecret) == "" {
		return nil, errors.New("PAYMENT_WEBHOOK_SECRET is required")
	}

	res, module, err := buildModule(ctx, cfg, logger, nil)
	if err != nil {
		return nil, err
	}
	server := httpserver.New(module, httpserver.NewAuthenticator(cfg.JWTSecret), logger, normalizeAddr(cfg.HTTPPort))
	server.AddReadinessCheck("postgres", res.postgres.Ping)
	if res.redis != nil {
		server.AddReadinessCheck("redis", res.redis.Ping)
	}
	return &APIApp{
		server:    server,
		resources: res,
		logger:    logger,
	}, nil
}

func BuildWorker(ctx context.Context) (*WorkerApp, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	logger := newProcessLogger(cfg, "worker")

	var (
		bus    eventBus
		broker io.Closer
	)
	if cfg.RabbitMQURL != "" {
		rabbit, err := messaging.DialRabbitMQ(messaging.RabbitMQConfig{
			URL:      cfg.RabbitMQURL,
			Exchange: cfg.RabbitMQExchange,
		}, logger)
		if err != nil {
			return nil, err
		}
		bus, broker = rabbit, rabbit
	} else {
		logger.Warn("rabbitmq not configured, settlement events stay in process",
			"event", "bootstrap_broker_disabled",
			"module", "internal/app/bootstrap",
			"layer", "platform",
		)
		bus = messaging.NewBus(logger)
	}
	res, module, err := buildModule(ctx, cfg, logger, bus)
	if err != nil {
		if broker != nil {
			_ = broker.Close()
		}
		return nil, err
	}
	res.broker = broker
	return &WorkerApp{
		workers:      module.Workers,
		resources:    res,
		pollInterval: cfg.SweepInterval,
		logger:       logger,
	}, nil
}

func buildModule(
	ctx context.Context,
	cfg config.Config,
	logger *slog.Logger,
	bus eventBus,
) (resources, listingsettlement.Module, error) {
	var res resources
	if strings.TrimSpace(cfg.PostgresDSN) == "" {
		return res, listingsettlement.Module{}, errors.New("POSTGRES_DSN is required")
	}
	if strings.TrimSpace(cfg.GatewayBaseURL) == "" {
		return res, listingsettlement.Module{}, errors.New("PAYMENT_GATEWAY_URL is required")
	}

	if cfg.AutoMigrate {
		if err := migrations.Apply(cfg.PostgresDSN, logger); err != nil {
			return res, listingsettlement.Module{}, err
		}
	}
	pg, err := db.Connect(cfg.PostgresDSN, db.PoolOptions{
		MaxOpenConns:    20,
		MaxIdleConns:    5,
		ConnMaxLifetime: 30 * time.Minute,
		Logger:          logger,
	})
	if err != nil {
		return res, listingsettlement.Module{}, err
	}
	res.postgres = pg

	metrics, err := telemetry.NewMetrics(ctx, cfg.ServiceName, cfg.OTLPEndpoint, logger)
	if err != nil {
		_ = res.close()
		return res, listingsettlement.Module{}, err
	}
	res.metrics = metrics
	settlementMetrics, err := application.NewSettlementMetrics(metrics.Meter("key2key/listing-settlement"))
	if err != nil {
		_ = res.close()
		return res, listingsettlement.Module{}, err
	}

	repo := postgresadapter.NewRepository(pg.DB, logger)
	clock := postgresadapter.SystemClock{}

	var (
		dedup ports.IdempotencyStore = repo
		lock  ports.SweepLock
	)
	if strings.TrimSpace(cfg.RedisAddr) != "" {
		rdb, err := cache.Connect(cfg.RedisAddr, cfg.RedisPass, cfg.RedisDB)
		if err != nil {
			_ = res.close()
			return res, listingsettlement.Module{}, err
		}
		res.redis = rdb
		dedup = redisadapter.NewIdempotencyStore(rdb.Client, clock, logger)
		lock = redisadapter.NewSweepLock(rdb.Client, logger)
	} else {
		logger.Warn("redis not configured, using postgres dedup store and unlocked sweeps",
			"event", "bootstrap_redis_disabled",
			"module", "internal/app/bootstrap",
			"layer", "platform",
		)
	}

	singlePhase := make([]entities.PaymentGateway, 0, len(cfg.SinglePhaseGateways))
	for _, gateway := range cfg.SinglePhaseGateways {
		singlePhase = append(singlePhase, entities.PaymentGateway(strings.ToLower(gateway)))
	}

	deps := listingsettlement.Dependencies{
		Tx:           repo,
		Listings:     repo,
		Transactions: repo,
		Assignments:  repo,
		Audit:        repo,
		Quarantine:   repo,
		Outbox:       repo,
		OutboxQueue:  repo,
		Idempotency:  dedup,
		Gateway: gatewayadapter.NewClient(gatewayadapter.Config{
			BaseURL: cfg.GatewayBaseURL,
			APIKey:  cfg.GatewayAPIKey,
			Timeout: cfg.GatewayTimeout,
		}, logger),
		Eligibility: repo,
		Notifier:    notify.LogNotifier{Logger: logger},
		Alerter:     notify.LogAlerter{Logger: logger},
		SweepLock:   lock,
		Clock:       clock,
		IDGenerator: postgresadapter.UUIDGenerator{},

		AssignmentPolicy:        cfg.AssignmentPolicy,
		ReservationTTL:          cfg.ReservationTTL,
		AssignmentSLA:           cfg.AssignmentSLATimeout,
		RefundWindow:            cfg.RefundWindow,
		ReconciliationThreshold: cfg.ReconciliationThreshold,
		WebhookDedupTTL:         cfg.WebhookDedupTTL,
		WebhookSecret:           cfg.WebhookSecret,
		SinglePhaseGateways:     singlePhase,
		GatewayRetry: application.RetryPolicy{
			MaxAttempts:     cfg.GatewayMaxAttempts,
			InitialInterval: 200 * time.Millisecond,
			MaxInterval:     5 * time.Second,
		},
		SweepBatchSize:       cfg.SweepBatchSize,
		SweepLockTTL:         cfg.SweepLockTTL,
		ReconcileConcurrency: cfg.ReconcileConcurrency,
		Metrics:              settlementMetrics,
		Logger:               logger,
	}
	if bus != nil {
		deps.Publisher = bus
		deps.Subscriber = bus
	}
	if err := deps.Validate(); err != nil {
		_ = res.close()
		return res, listingsettlement.Module{}, err
	}
	return res, listingsettlement.NewModule(deps), nil
}

func (r resources) close() error {
	var errs []error
	if r.broker != nil {
		errs = append(errs, r.broker.Close())
	}
	if r.metrics != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		errs = append(errs, r.metrics.Shutdown(ctx))
		cancel()
	}
	if r.redis != nil {
		errs = append(errs, r.redis.Close())
	}
	if r.postgres != nil {
		errs = append(errs, r.postgres.Close())
	}
	return errors.Join(errs...)
}

// Run serves HTTP until ctx is cancelled, then drains in-flight requests.
func (a *APIApp) Run(ctx context.Context) error {
	a.logger.Info("api app started",
		"event", "bootstrap_api_started",
		"module", "internal/app/bootstrap",
		"layer", "platform",
	)
	errCh := make(chan error, 1)
	go func() { errCh <- a.server.Start() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := a.server.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}

func (a *APIApp) Close() error {
	return a.resources.close()
}

func (w *WorkerApp) Run(ctx context.Context) error {
	if err := w.workers.Notifications.Start(ctx); err != nil {
		return err
	}

	interval := w.pollInterval
	if interval <= 0 {
		interval = 5 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	w.logger.Info("worker app started",
		"event", "bootstrap_worker_started",
		"module", "internal/app/bootstrap",
		"layer", "platform",
		"poll_interval", interval.String(),
	)

	for {
		w.runSweeps(ctx)
		select {
		case <-ctx.Done():
			w.logger.Info("worker app stopping",
				"event", "bootstrap_worker_stopping",
				"module", "internal/app/bootstrap",
				"layer", "platform",
			)
			return nil
		case <-ticker.C:
		}
	}
}

// runSweeps runs every loop once. A failing sweep is logged and retried on
// the next tick; it never stops the others.
func (w *WorkerApp) runSweeps(ctx context.Context) {
	sweeps := []struct {
		name string
		run  func(context.Context) error
	}{
		{name: "reservation_expirer", run: w.workers.ReservationExpirer.RunOnce},
		{name: "assignment_sla", run: w.workers.AssignmentSLASweeper.RunOnce},
		{name: "reconciliation", run: w.workers.ReconciliationSweeper.RunOnce},
		{name: "settlement_completer", run: w.workers.SettlementCompleter.RunOnce},
		{name: "outbox_relay", run: w.workers.OutboxRelay.RunOnce},
	}
	for _, sweep := range sweeps {
		if ctx.Err() != nil {
			return
		}
		if err := sweep.run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			w.logger.Error("worker sweep failed",
				"event", "bootstrap_worker_sweep_failed",
				"module", "internal/app/bootstrap",
				"layer", "platform",
				"sweep", sweep.name,
				"error", err.Error(),
			)
		}
	}
}

func (w *WorkerApp) Close() error {
	return w.resources.close()
}

// newProcessLogger installs the JSON logger as the process default so code
// that falls back to slog.Default shares its handler.
func newProcessLogger(cfg config.Config, process string) *slog.Logger {
	base := telemetry.NewLogger(os.Stdout, cfg.LogLevel)
	slog.SetDefault(base)
	return base.With("service", cfg.ServiceName, "process", process)
}

func normalizeAddr(port string) string {
	value := strings.TrimSpace(port)
	if value == "" {
		return ":8080"
	}
	if strings.HasPrefix(value, ":") {
		return value
	}
	return ":" + value
}

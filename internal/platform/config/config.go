package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config is centralized process configuration.
// Keep infra values here and pass typed config into builders.
type Config struct {
	ServiceName  string
	LogLevel     string
	HTTPPort     string
	PostgresDSN  string
	AutoMigrate  bool
	RedisAddr    string
	RedisPass    string
	RedisDB      int
	JWTSecret    string
	OTLPEndpoint string

	// RabbitMQURL selects the broker-backed event bus; empty keeps events
	// in process.
	RabbitMQURL      string
	RabbitMQExchange string

	GatewayBaseURL      string
	GatewayAPIKey       string
	GatewayTimeout      time.Duration
	GatewayMaxAttempts  int
	WebhookSecret       string
	WebhookDedupTTL     time.Duration
	SinglePhaseGateways []string

	// ReservationTTL and AssignmentSLATimeout have no safe default and must
	// be set explicitly.
	ReservationTTL          time.Duration
	AssignmentSLATimeout    time.Duration
	RefundWindow            time.Duration
	ReconciliationThreshold time.Duration
	AssignmentPolicy        string

	SweepInterval        time.Duration
	SweepBatchSize       int
	SweepLockTTL         time.Duration
	ReconcileConcurrency int
}

// Load reads the process environment. A .env file in the working directory is
// applied first when present; real environment variables win.
func Load() (Config, error) {
	_ = godotenv.Load()

	service := os.Getenv("SERVICE_NAME")
	if service == "" {
		service = "key2key-settlement"
	}

	port := os.Getenv("HTTP_PORT")
	if port == "" {
		port = "8080"
	}

	singlePhase := envList("SINGLE_PHASE_GATEWAYS")
	if len(singlePhase) == 0 {
		singlePhase = []string{"manual", "chapa", "telebirr"}
	}

	var errs []error
	reservationTTL, err := envRequiredDuration("RESERVATION_TTL")
	errs = append(errs, err)
	assignmentSLA, err := envRequiredDuration("ASSIGNMENT_SLA_TIMEOUT")
	errs = append(errs, err)
	if err := errors.Join(errs...); err != nil {
		return Config{}, err
	}

	return Config{
		ServiceName:  service,
		LogLevel:     envString("LOG_LEVEL", "info"),
		HTTPPort:     port,
		PostgresDSN:  os.Getenv("POSTGRES_DSN"),
		AutoMigrate:  envBool("AUTO_MIGRATE", true),
		RedisAddr:    os.Getenv("REDIS_ADDR"),
		RedisPass:    os.Getenv("REDIS_PASSWORD"),
		RedisDB:      envInt("REDIS_DB", 0),
		JWTSecret:    os.Getenv("JWT_SECRET"),
		OTLPEndpoint: os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),

		RabbitMQURL:      strings.TrimSpace(os.Getenv("RABBITMQ_URL")),
		RabbitMQExchange: envString("RABBITMQ_EXCHANGE", "key2key.settlement"),

		GatewayBaseURL:      os.Getenv("PAYMENT_GATEWAY_URL"),
		GatewayAPIKey:       os.Getenv("PAYMENT_GATEWAY_API_KEY"),
		GatewayTimeout:      envDuration("PAYMENT_GATEWAY_TIMEOUT", 10*time.Second),
		GatewayMaxAttempts:  envInt("PAYMENT_GATEWAY_MAX_ATTEMPTS", 3),
		WebhookSecret:       os.Getenv("PAYMENT_WEBHOOK_SECRET"),
		WebhookDedupTTL:     envDuration("WEBHOOK_DEDUP_TTL", 7*24*time.Hour),
		SinglePhaseGateways: singlePhase,

		ReservationTTL:          reservationTTL,
		AssignmentSLATimeout:    assignmentSLA,
		RefundWindow:            envDuration("REFUND_WINDOW", 0),
		ReconciliationThreshold: envDuration("RECONCILIATION_THRESHOLD", 15*time.Minute),
		AssignmentPolicy:        strings.ToLower(strings.TrimSpace(os.Getenv("ASSIGNMENT_POLICY"))),

		SweepInterval:        envDuration("SWEEP_INTERVAL", 5*time.Second),
		SweepBatchSize:       envInt("SWEEP_BATCH_SIZE", 100),
		SweepLockTTL:         envDuration("SWEEP_LOCK_TTL", time.Minute),
		ReconcileConcurrency: envInt("RECONCILE_CONCURRENCY", 4),
	}, nil
}

func envString(name, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(name)); value != "" {
		return value
	}
	return fallback
}

func envBool(name string, fallback bool) bool {
	raw := strings.TrimSpace(strings.ToLower(os.Getenv(name)))
	if raw == "" {
		return fallback
	}
	switch raw {
	case "1", "true", "t", "yes", "y", "on":
		return true
	case "0", "false", "f", "no", "n", "off":
		return false
	default:
		return fallback
	}
}

func envInt(name string, fallback int) int {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value < 0 {
		return fallback
	}
	return value
}

func envDuration(name string, fallback time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return fallback
	}
	value, err := time.ParseDuration(raw)
	if err != nil || value < 0 {
		return fallback
	}
	return value
}

func envRequiredDuration(name string) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return 0, fmt.Errorf("%s is required", name)
	}
	value, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", name, err)
	}
	if value <= 0 {
		return 0, fmt.Errorf("%s must be positive", name)
	}
	return value, nil
}

func envList(name string) []string {
	var items []string
	for _, value := range strings.Split(os.Getenv(name), ",") {
		value = strings.TrimSpace(value)
		if value != "" {
			items = append(items, value)
		}
	}
	return items
}

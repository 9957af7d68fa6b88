package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"key2key/contexts/marketplace/listing-settlement/ports"

	amqp "github.com/rabbitmq/amqp091-go"
)

var (
	ErrPublishNacked  = errors.New("rabbitmq: publish nacked by broker")
	ErrConfirmTimeout = errors.New("rabbitmq: publish confirm timed out")
	ErrBusClosed      = errors.New("rabbitmq: bus closed")
)

// amqpChannel is the part of *amqp.Channel the broker adapter relies on.
type amqpChannel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	QueueBind(name, key, exchange string, noWait bool, args amqp.Table) error
	Qos(prefetchCount, prefetchSize int, global bool) error
	Confirm(noWait bool) error
	NotifyPublish(confirm chan amqp.Confirmation) chan amqp.Confirmation
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error)
	Close() error
}

type RabbitMQConfig struct {
	URL            string
	Exchange       string
	ConfirmTimeout time.Duration
	Prefetch       int
}

func (c RabbitMQConfig) withDefaults() RabbitMQConfig {
	if strings.TrimSpace(c.Exchange) == "" {
		c.Exchange = "key2key.settlement"
	}
	if c.ConfirmTimeout <= 0 {
		c.ConfirmTimeout = 5 * time.Second
	}
	if c.Prefetch <= 0 {
		c.Prefetch = 16
	}
	return c
}

// RabbitMQ publishes envelopes to a durable topic exchange with publisher
// confirms and consumes them through one durable queue per consumer group.
// A message whose handler fails is nacked without requeue and lands on the
// dead-letter queue.
type RabbitMQ struct {
	cfg         RabbitMQConfig
	conn        *amqp.Connection
	openChannel func() (amqpChannel, error)
	logger      *slog.Logger

	publishMu sync.Mutex
	publisher amqpChannel
	confirms  chan amqp.Confirmation

	mu        sync.Mutex
	consumers []amqpChannel
	closed    bool
}

func DialRabbitMQ(cfg RabbitMQConfig, logger *slog.Logger) (*RabbitMQ, error) {
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}
	bus, err := newRabbitMQ(cfg, func() (amqpChannel, error) {
		ch, err := conn.Channel()
		if err != nil {
			return nil, err
		}
		return ch, nil
	}, logger)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	bus.conn = conn
	return bus, nil
}

func newRabbitMQ(cfg RabbitMQConfig, openChannel func() (amqpChannel, error), logger *slog.Logger) (*RabbitMQ, error) {
	cfg = cfg.withDefaults()
	ch, err := openChannel()
	if err != nil {
		return nil, fmt.Errorf("open publish channel: %w", err)
	}
	if err := declareTopology(ch, cfg.Exchange); err != nil {
		_ = ch.Close()
		return nil, err
	}
	if err := ch.Confirm(false); err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("enable publisher confirms: %w", err)
	}
	return &RabbitMQ{
		cfg:         cfg,
		openChannel: openChannel,
		logger:      logger,
		publisher:   ch,
		confirms:    ch.NotifyPublish(make(chan amqp.Confirmation, 1)),
	}, nil
}

func deadLetterExchange(exchange string) string { return exchange + ".dlx" }

func deadLetterQueue(exchange string) string { return exchange + ".dlq" }

// declareTopology declares the event exchange plus the dead-letter exchange
// and the queue that collects rejected deliveries.
func declareTopology(ch amqpChannel, exchange string) error {
	if err := ch.ExchangeDeclare(exchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare exchange %s: %w", exchange, err)
	}
	dlx := deadLetterExchange(exchange)
	if err := ch.ExchangeDeclare(dlx, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare dlx %s: %w", dlx, err)
	}
	dlq := deadLetterQueue(exchange)
	if _, err := ch.QueueDeclare(dlq, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare dlq %s: %w", dlq, err)
	}
	if err := ch.QueueBind(dlq, "#", dlx, false, nil); err != nil {
		return fmt.Errorf("bind dlq to dlx: %w", err)
	}
	return nil
}

// Publish sends one envelope and waits for the broker confirm. Calls are
// serialized so each confirm pairs with the publish that produced it.
func (r *RabbitMQ) Publish(ctx context.Context, topic string, event ports.EventEnvelope) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode envelope %s: %w", event.EventID, err)
	}
	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    event.EventID,
		Type:         event.EventType,
		Timestamp:    event.OccurredAt,
		AppId:        event.SourceService,
		Headers: amqp.Table{
			"partition_key": event.PartitionKey,
		},
		Body: body,
	}

	r.publishMu.Lock()
	defer r.publishMu.Unlock()
	if r.isClosed() {
		return ErrBusClosed
	}
	if err := r.publisher.PublishWithContext(ctx, r.cfg.Exchange, topic, false, false, msg); err != nil {
		return fmt.Errorf("publish %s: %w", event.EventID, err)
	}
	if err := r.waitForConfirm(ctx); err != nil {
		return fmt.Errorf("publish %s: %w", event.EventID, err)
	}

	r.log(slog.LevelDebug, "event published", "rabbitmq_publish",
		"topic", topic,
		"event_id", event.EventID,
		"event_type", event.EventType,
	)
	return nil
}

func (r *RabbitMQ) waitForConfirm(ctx context.Context) error {
	timer := time.NewTimer(r.cfg.ConfirmTimeout)
	defer timer.Stop()

	select {
	case confirmed, ok := <-r.confirms:
		if !ok {
			return ErrBusClosed
		}
		if !confirmed.Ack {
			return fmt.Errorf("%w: delivery_tag=%d", ErrPublishNacked, confirmed.DeliveryTag)
		}
		return nil
	case <-timer.C:
		return ErrConfirmTimeout
	case <-ctx.Done():
		return ctx.Err()
	}
}

// QueueName is the durable queue backing a consumer group on a topic.
func QueueName(consumerGroup, topic string) string {
	return consumerGroup + "." + topic
}

// Subscribe binds the group's queue to the topic and consumes it with manual
// acknowledgements until ctx is cancelled.
func (r *RabbitMQ) Subscribe(
	ctx context.Context,
	topic string,
	consumerGroup string,
	handler func(context.Context, ports.EventEnvelope) error,
) error {
	ch, err := r.openChannel()
	if err != nil {
		return fmt.Errorf("open consumer channel: %w", err)
	}
	queue := QueueName(consumerGroup, topic)
	deliveries, err := r.bindConsumer(ch, queue, topic, consumerGroup)
	if err != nil {
		_ = ch.Close()
		return err
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		_ = ch.Close()
		return ErrBusClosed
	}
	r.consumers = append(r.consumers, ch)
	r.mu.Unlock()

	go func() {
		defer func() { _ = ch.Close() }()
		for {
			select {
			case <-ctx.Done():
				return
			case delivery, ok := <-deliveries:
				if !ok {
					r.log(slog.LevelWarn, "consumer delivery stream closed", "rabbitmq_consume_closed",
						"queue", queue,
					)
					return
				}
				r.handle(ctx, queue, delivery, handler)
			}
		}
	}()
	return nil
}

func (r *RabbitMQ) bindConsumer(ch amqpChannel, queue, topic, consumerGroup string) (<-chan amqp.Delivery, error) {
	if err := ch.Qos(r.cfg.Prefetch, 0, false); err != nil {
		return nil, fmt.Errorf("set prefetch: %w", err)
	}
	args := amqp.Table{"x-dead-letter-exchange": deadLetterExchange(r.cfg.Exchange)}
	if _, err := ch.QueueDeclare(queue, true, false, false, false, args); err != nil {
		return nil, fmt.Errorf("declare queue %s: %w", queue, err)
	}
	if err := ch.QueueBind(queue, topic, r.cfg.Exchange, false, nil); err != nil {
		return nil, fmt.Errorf("bind queue %s: %w", queue, err)
	}
	deliveries, err := ch.Consume(queue, consumerGroup, false, false, false, false, nil)
	if err != nil {
		return nil, fmt.Errorf("consume %s: %w", queue, err)
	}
	return deliveries, nil
}

func (r *RabbitMQ) handle(
	ctx context.Context,
	queue string,
	delivery amqp.Delivery,
	handler func(context.Context, ports.EventEnvelope) error,
) {
	var event ports.EventEnvelope
	if err := json.Unmarshal(delivery.Body, &event); err != nil {
		r.log(slog.LevelError, "undecodable delivery rejected", "rabbitmq_decode_failed",
			"queue", queue,
			"message_id", delivery.MessageId,
			"error", err.Error(),
		)
		r.settle(queue, delivery.MessageId, delivery.Reject(false))
		return
	}
	if err := handler(ctx, event); err != nil {
		r.log(slog.LevelError, "consumer handler failed, dead-lettering", "rabbitmq_consume_failed",
			"queue", queue,
			"event_id", event.EventID,
			"event_type", event.EventType,
			"error", err.Error(),
		)
		r.settle(queue, event.EventID, delivery.Nack(false, false))
		return
	}
	r.settle(queue, event.EventID, delivery.Ack(false))
}

func (r *RabbitMQ) settle(queue, messageID string, err error) {
	if err != nil {
		r.log(slog.LevelWarn, "delivery acknowledgement failed", "rabbitmq_ack_failed",
			"queue", queue,
			"message_id", messageID,
			"error", err.Error(),
		)
	}
}

func (r *RabbitMQ) isClosed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

func (r *RabbitMQ) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	consumers := r.consumers
	r.consumers = nil
	r.mu.Unlock()

	var errs []error
	for _, ch := range consumers {
		errs = append(errs, ignoreClosed(ch.Close()))
	}
	r.publishMu.Lock()
	errs = append(errs, ignoreClosed(r.publisher.Close()))
	r.publishMu.Unlock()
	if r.conn != nil {
		errs = append(errs, ignoreClosed(r.conn.Close()))
	}
	return errors.Join(errs...)
}

func ignoreClosed(err error) error {
	if errors.Is(err, amqp.ErrClosed) {
		return nil
	}
	return err
}

func (r *RabbitMQ) log(level slog.Level, msg, event string, attrs ...any) {
	if r.logger == nil {
		return
	}
	base := []any{
		"event", event,
		"module", "internal/platform/messaging",
		"layer", "platform",
	}
	r.logger.Log(context.Background(), level, msg, append(base, attrs...)...)
}

package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"tidepool-web/internal/observability"
)

const (
	exchangeName = "auth.events"
	queueName    = "auth.audit"
)

// AMQPRecorder publishes audit events to a RabbitMQ topic exchange. The
// routing key is the event name, so consumers can bind to "user.*" or
// "auth.*" selectively.
type AMQPRecorder struct {
	conn    *amqp.Connection
	channel *amqp.Channel
}

func NewAMQPRecorder(url string) (*AMQPRecorder, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	r := &AMQPRecorder{
		conn:    conn,
		channel: ch,
	}

	if err := r.setup(); err != nil {
		r.Close()
		return nil, err
	}

	return r, nil
}

// NewAMQPRecorderWithRetry retries the broker connection with a fixed delay.
// RabbitMQ typically comes up after the application in container
// environments.
func NewAMQPRecorderWithRetry(url string, maxAttempts int, delay time.Duration) (*AMQPRecorder, error) {
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		r, err := NewAMQPRecorder(url)
		if err == nil {
			return r, nil
		}
		lastErr = err
		observability.Warn("rabbitmq connection failed, retrying",
			"attempt", attempt,
			"max_attempts", maxAttempts,
			"error", err.Error())
		time.Sleep(delay)
	}
	return nil, fmt.Errorf("failed to connect to RabbitMQ after %d attempts: %w", maxAttempts, lastErr)
}

func (r *AMQPRecorder) setup() error {
	if err := r.channel.ExchangeDeclare(
		exchangeName, // name
		"topic",      // type
		true,         // durable
		false,        // auto-deleted
		false,        // internal
		false,        // no-wait
		nil,          // arguments
	); err != nil {
		return fmt.Errorf("failed to declare events exchange: %w", err)
	}

	if _, err := r.channel.QueueDeclare(
		queueName, // name
		true,      // durable
		false,     // delete when unused
		false,     // exclusive
		false,     // no-wait
		nil,       // arguments
	); err != nil {
		return fmt.Errorf("failed to declare audit queue: %w", err)
	}

	if err := r.channel.QueueBind(
		queueName,    // queue name
		"#",          // routing key: all events
		exchangeName, // exchange
		false,
		nil,
	); err != nil {
		return fmt.Errorf("failed to bind audit queue: %w", err)
	}

	observability.Info("audit exchange setup completed", "exchange", exchangeName)
	return nil
}

// Record publishes the event. Publish failures are logged and counted but
// never surfaced to the auth flow that produced the event.
func (r *AMQPRecorder) Record(ctx context.Context, event Event) {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now()
	}

	body, err := json.Marshal(event)
	if err != nil {
		observability.Error("failed to marshal audit event",
			"event", event.Name,
			"error", err.Error())
		observability.AuditEventsPublished.WithLabelValues(event.Name, "error").Inc()
		return
	}

	err = r.channel.PublishWithContext(
		ctx,
		exchangeName,
		event.Name, // routing key
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         body,
			DeliveryMode: amqp.Persistent,
		},
	)
	if err != nil {
		observability.Error("failed to publish audit event",
			"event", event.Name,
			"error", err.Error())
		observability.AuditEventsPublished.WithLabelValues(event.Name, "error").Inc()
		return
	}

	observability.AuditEventsPublished.WithLabelValues(event.Name, "ok").Inc()
}

func (r *AMQPRecorder) IsClosed() bool {
	return r.conn == nil || r.conn.IsClosed()
}

func (r *AMQPRecorder) Close() error {
	if r.channel != nil {
		r.channel.Close()
	}
	if r.conn != nil {
		return r.conn.Close()
	}
	return nil
}

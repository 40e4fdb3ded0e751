// Package alert moves security-relevant gate denials to administrators: the
// gateway publishes them to RabbitMQ and the alerter worker mails them.
package alert

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/NelsonFranklinWere/emil/backend/internal/domain"
)

const (
	DefaultQueue = "security_alert_queue"
	TypeSecurity = "security_alert"
)

// Channel is the part of *amqp.Channel the publisher uses.
type Channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

type Publisher struct {
	ch      Channel
	queue   string
	timeout time.Duration
	logger  *slog.Logger
}

func NewPublisher(ch Channel, queue string, timeout time.Duration, logger *slog.Logger) *Publisher {
	if queue == "" {
		queue = DefaultQueue
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{ch: ch, queue: queue, timeout: timeout, logger: logger}
}

// DeclareQueue declares the durable alert queue on ch.
func DeclareQueue(ch *amqp.Channel, queue string) (amqp.Queue, error) {
	if queue == "" {
		queue = DefaultQueue
	}
	return ch.QueueDeclare(
		queue,
		true,  // durable
		false, // auto-delete
		false, // exclusive
		false, // no-wait
		nil,
	)
}

// Record publishes events where a signed-in identity was refused. Anonymous
// bounces to sign-in are not alerts.
func (p *Publisher) Record(ctx context.Context, event *domain.AccessEvent) {
	if !event.Security() {
		return
	}
	if err := p.Publish(ctx, event); err != nil {
		p.logger.Error("failed to publish security alert", slog.String("event", event.ID), slog.String("error", err.Error()))
	}
}

func (p *Publisher) Publish(ctx context.Context, event *domain.AccessEvent) error {
	body, err := json.Marshal(domain.AlertMessage{Type: TypeSecurity, Event: *event})
	if err != nil {
		return err
	}

	// detached from the request so a client hang-up does not drop the alert
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.timeout)
	defer cancel()

	return p.ch.PublishWithContext(
		ctx,
		"",
		p.queue,
		true,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    event.ID,
			Timestamp:    event.OccurredAt,
			Body:         body,
		},
	)
}

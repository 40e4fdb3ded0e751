package alert

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	ht "html/template"
	"log/slog"
	tt "text/template"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/wneessen/go-mail"

	"github.com/NelsonFranklinWere/emil/backend/internal/domain"
)

//go:embed templates
var templates embed.FS

var ErrUnsupportedType = errors.New("unsupported alert type")

// Sender delivers composed messages. *mail.Client satisfies it.
type Sender interface {
	DialAndSendWithContext(ctx context.Context, messages ...*mail.Msg) error
}

type Worker struct {
	sender Sender
	from   string
	to     []string
	logger *slog.Logger
	text   *tt.Template
	html   *ht.Template
}

func NewWorker(sender Sender, from string, to []string, logger *slog.Logger) (*Worker, error) {
	if logger == nil {
		logger = slog.Default()
	}
	text, err := tt.ParseFS(templates, "templates/security_alert.txt")
	if err != nil {
		return nil, err
	}
	html, err := ht.ParseFS(templates, "templates/security_alert.html")
	if err != nil {
		return nil, err
	}
	return &Worker{sender: sender, from: from, to: to, logger: logger, text: text, html: html}, nil
}

// Compose builds the mail for m. Recipients on the message override the
// worker's defaults.
func (w *Worker) Compose(m *domain.AlertMessage) (*mail.Msg, error) {
	if m.Type != TypeSecurity {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedType, m.Type)
	}
	to := m.To
	if len(to) == 0 {
		to = w.to
	}

	msg := mail.NewMsg()
	if err := msg.From(w.from); err != nil {
		return nil, fmt.Errorf("set sender: %w", err)
	}
	if err := msg.To(to...); err != nil {
		return nil, fmt.Errorf("set recipients: %w", err)
	}
	msg.Subject(fmt.Sprintf("Emil security alert: %s on %s", m.Event.Reason, m.Event.Path))
	msg.SetDate()
	if err := msg.SetBodyTextTemplate(w.text, m); err != nil {
		return nil, fmt.Errorf("render text body: %w", err)
	}
	if err := msg.AddAlternativeHTMLTemplate(w.html, m); err != nil {
		return nil, fmt.Errorf("render html body: %w", err)
	}
	return msg, nil
}

// Handle settles one delivery: malformed messages are dropped, send failures
// are requeued.
func (w *Worker) Handle(ctx context.Context, d amqp.Delivery) {
	m := &domain.AlertMessage{}
	if err := json.Unmarshal(d.Body, m); err != nil {
		w.logger.Error("failed to decode alert", slog.String("error", err.Error()))
		_ = d.Nack(false, false)
		return
	}

	msg, err := w.Compose(m)
	if err != nil {
		w.logger.Error("failed to compose alert", slog.String("event", m.Event.ID), slog.String("error", err.Error()))
		_ = d.Nack(false, false)
		return
	}

	if err := w.sender.DialAndSendWithContext(ctx, msg); err != nil {
		w.logger.Error("failed to send alert", slog.String("event", m.Event.ID), slog.String("error", err.Error()))
		_ = d.Nack(false, true)
		return
	}

	w.logger.Info("alert sent", slog.String("event", m.Event.ID), slog.String("reason", string(m.Event.Reason)))
	_ = d.Ack(false)
}

// Run handles deliveries until ctx is done or the channel closes.
func (w *Worker) Run(ctx context.Context, deliveries <-chan amqp.Delivery) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-deliveries:
			if !ok {
				return errors.New("delivery channel closed")
			}
			w.Handle(ctx, d)
		}
	}
}

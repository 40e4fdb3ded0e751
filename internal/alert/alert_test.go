package alert

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wneessen/go-mail"

	"github.com/NelsonFranklinWere/emil/backend/internal/domain"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

type fakeChannel struct {
	key       string
	published []amqp.Publishing
	err       error
}

func (c *fakeChannel) PublishWithContext(_ context.Context, _, key string, _, _ bool, msg amqp.Publishing) error {
	c.key = key
	c.published = append(c.published, msg)
	return c.err
}

func event(reason domain.AccessReason) *domain.AccessEvent {
	return &domain.AccessEvent{
		ID:         "evt-1",
		Reason:     reason,
		Path:       "/admin/users",
		IP:         "203.0.113.7",
		Email:      "r@x.com",
		Role:       "RECRUITER",
		OccurredAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestPublisherOnlyForwardsSecurityEvents(t *testing.T) {
	ch := &fakeChannel{}
	p := NewPublisher(ch, "", time.Second, discard)
	ctx := context.Background()

	p.Record(ctx, event(domain.ReasonMissingToken))
	p.Record(ctx, event(domain.ReasonInvalidToken))
	require.Empty(t, ch.published)

	p.Record(ctx, event(domain.ReasonForbiddenRole))
	require.Len(t, ch.published, 1)
	assert.Equal(t, DefaultQueue, ch.key)
	assert.Equal(t, "evt-1", ch.published[0].MessageId)
	assert.Equal(t, amqp.Persistent, ch.published[0].DeliveryMode)

	var m domain.AlertMessage
	require.NoError(t, json.Unmarshal(ch.published[0].Body, &m))
	assert.Equal(t, TypeSecurity, m.Type)
	assert.Equal(t, domain.ReasonForbiddenRole, m.Event.Reason)
}

func TestPublisherSwallowsBrokerErrors(t *testing.T) {
	ch := &fakeChannel{err: errors.New("channel closed")}
	p := NewPublisher(ch, "alerts", time.Second, discard)

	assert.NotPanics(t, func() { p.Record(context.Background(), event(domain.ReasonForbiddenNetwork)) })
	assert.Equal(t, "alerts", ch.key)
}

type fakeSender struct {
	sent []*mail.Msg
	err  error
}

func (s *fakeSender) DialAndSendWithContext(_ context.Context, messages ...*mail.Msg) error {
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, messages...)
	return nil
}

type ackRecorder struct {
	acked   bool
	nacked  bool
	requeue bool
}

func (a *ackRecorder) Ack(uint64, bool) error { a.acked = true; return nil }

func (a *ackRecorder) Nack(_ uint64, _ bool, requeue bool) error {
	a.nacked, a.requeue = true, requeue
	return nil
}

func (a *ackRecorder) Reject(_ uint64, requeue bool) error {
	a.nacked, a.requeue = true, requeue
	return nil
}

func delivery(t *testing.T, ack amqp.Acknowledger, m any) amqp.Delivery {
	t.Helper()
	body, ok := m.([]byte)
	if !ok {
		var err error
		body, err = json.Marshal(m)
		require.NoError(t, err)
	}
	return amqp.Delivery{Acknowledger: ack, DeliveryTag: 1, Body: body}
}

func newWorker(t *testing.T, sender Sender) *Worker {
	t.Helper()
	w, err := NewWorker(sender, "alerts@emil.test", []string{"admin@emil.test"}, discard)
	require.NoError(t, err)
	return w
}

func TestWorkerSendsAndAcks(t *testing.T) {
	sender := &fakeSender{}
	w := newWorker(t, sender)
	ack := &ackRecorder{}

	w.Handle(context.Background(), delivery(t, ack, domain.AlertMessage{Type: TypeSecurity, Event: *event(domain.ReasonForbiddenRole)}))

	assert.True(t, ack.acked)
	require.Len(t, sender.sent, 1)
	rcpts, err := sender.sent[0].GetRecipients()
	require.NoError(t, err)
	assert.Equal(t, []string{"admin@emil.test"}, rcpts)
	assert.Contains(t, sender.sent[0].GetGenHeader(mail.HeaderSubject)[0], "forbidden_role")

	var buf bytes.Buffer
	_, err = sender.sent[0].WriteTo(&buf)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "203.0.113.7")
}

func TestWorkerHonorsMessageRecipients(t *testing.T) {
	w := newWorker(t, &fakeSender{})

	msg, err := w.Compose(&domain.AlertMessage{Type: TypeSecurity, To: []string{"sec@emil.test"}, Event: *event(domain.ReasonForbiddenNetwork)})
	require.NoError(t, err)
	rcpts, err := msg.GetRecipients()
	require.NoError(t, err)
	assert.Equal(t, []string{"sec@emil.test"}, rcpts)
}

func TestWorkerRequeuesOnSendFailure(t *testing.T) {
	w := newWorker(t, &fakeSender{err: errors.New("smtp down")})
	ack := &ackRecorder{}

	w.Handle(context.Background(), delivery(t, ack, domain.AlertMessage{Type: TypeSecurity, Event: *event(domain.ReasonForbiddenRole)}))

	assert.False(t, ack.acked)
	assert.True(t, ack.nacked)
	assert.True(t, ack.requeue)
}

func TestWorkerDropsMalformedMessages(t *testing.T) {
	cases := map[string]any{
		"not json":     []byte("{"),
		"unknown type": domain.AlertMessage{Type: "digest"},
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			sender := &fakeSender{}
			w := newWorker(t, sender)
			ack := &ackRecorder{}

			w.Handle(context.Background(), delivery(t, ack, body))

			assert.True(t, ack.nacked)
			assert.False(t, ack.requeue)
			assert.Empty(t, sender.sent)
		})
	}
}

func TestWorkerRunStopsOnCancel(t *testing.T) {
	w := newWorker(t, &fakeSender{})
	ctx, cancel := context.WithCancel(context.Background())
	deliveries := make(chan amqp.Delivery)

	done := make(chan error, 1)
	go func() { done <- w.Run(ctx, deliveries) }()
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("worker did not stop")
	}

	close(deliveries)
	assert.Error(t, w.Run(context.Background(), deliveries))
}

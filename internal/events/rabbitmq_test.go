package events

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"goodzwork-checkin/models"
)

type fakeChannel struct {
	mu        sync.Mutex
	exchanges []string
	published []amqp.Publishing
	failNext  bool
	sent      chan struct{}
}

func (c *fakeChannel) ExchangeDeclare(name, kind string, _, _, _, _ bool, _ amqp.Table) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.exchanges = append(c.exchanges, name+"/"+kind)
	return nil
}

func (c *fakeChannel) PublishWithContext(_ context.Context, _, _ string, _, _ bool, msg amqp.Publishing) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failNext {
		c.failNext = false
		return errors.New("channel closed")
	}
	c.published = append(c.published, msg)
	c.sent <- struct{}{}
	return nil
}

func (c *fakeChannel) Close() error { return nil }

func newTestRabbit(t *testing.T, ch *fakeChannel, failDials int) (*RabbitMQ, *int) {
	t.Helper()
	logger, _ := test.NewNullLogger()
	r := NewRabbitMQ(models.EventsConfig{RabbitMQURL: "amqp://test"}, logger)
	r.backoff = time.Millisecond

	dials := 0
	r.dial = func(url string) (amqpChannel, func() error, error) {
		dials++
		if dials <= failDials {
			return nil, nil, errors.New("connection refused")
		}
		return ch, func() error { return nil }, nil
	}
	return r, &dials
}

func waitSent(t *testing.T, ch *fakeChannel) {
	t.Helper()
	select {
	case <-ch.sent:
	case <-time.After(2 * time.Second):
		t.Fatal("event not published")
	}
}

func TestRabbitMQPublishesToFanoutExchange(t *testing.T) {
	ch := &fakeChannel{sent: make(chan struct{}, 4)}
	r, dials := newTestRabbit(t, ch, 2)

	ctx, cancel := context.WithCancel(context.Background())
	go r.Run(ctx)

	r.Publish(New("s1", TypePresenceProgress, at, ProgressPayload{Progress: 0.1}))
	r.Publish(New("s1", TypeCaptured, at, CapturePayload{Width: 640, Height: 480}))
	waitSent(t, ch)

	cancel()
	<-r.Done()

	assert.Equal(t, 3, *dials)
	assert.Equal(t, []string{"attendance.events/fanout"}, ch.exchanges)
	require.Len(t, ch.published, 1)

	msg := ch.published[0]
	assert.Equal(t, "application/json", msg.ContentType)
	assert.Equal(t, "capture.taken", msg.Type)

	var body Event
	require.NoError(t, json.Unmarshal(msg.Body, &body))
	assert.Equal(t, msg.MessageId, body.ID)
	assert.Equal(t, TypeCaptured, body.Type)
}

func TestRabbitMQReconnectsAfterPublishFailure(t *testing.T) {
	ch := &fakeChannel{sent: make(chan struct{}, 4), failNext: true}
	r, dials := newTestRabbit(t, ch, 0)

	ctx, cancel := context.WithCancel(context.Background())
	go r.Run(ctx)

	r.Publish(New("s1", TypeFeedback, at, nil))
	r.Publish(New("s1", TypeFeedbackCleared, at, nil))
	waitSent(t, ch)

	cancel()
	<-r.Done()

	assert.Equal(t, 2, *dials)
	require.Len(t, ch.published, 1)
	assert.Equal(t, "attendance.feedback_cleared", ch.published[0].Type)
}

func TestRabbitMQDropsWhenBufferFull(t *testing.T) {
	logger, _ := test.NewNullLogger()
	r := NewRabbitMQ(models.EventsConfig{BufferLength: 1}, logger)

	r.Publish(New("s1", TypeToday, at, nil))
	r.Publish(New("s1", TypeLogs, at, nil))
	assert.Len(t, r.queue, 1)
}

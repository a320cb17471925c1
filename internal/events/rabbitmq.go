package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"

	"goodzwork-checkin/models"
)

// ============================================================
// RABBITMQ PUBLISHER
// ============================================================

const (
	DefaultExchange = "attendance.events"

	initialRetryDelay = 1 * time.Second
	maxRetryDelay     = 30 * time.Second
	publishTimeout    = 5 * time.Second
)

type amqpChannel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// dialFunc opens a channel and returns it with a closer for the whole
// connection.
type dialFunc func(url string) (amqpChannel, func() error, error)

func dialAMQP(url string) (amqpChannel, func() error, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, nil, fmt.Errorf("rabbitmq connect: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("rabbitmq channel: %w", err)
	}
	return ch, conn.Close, nil
}

// RabbitMQ publishes events to a fanout exchange from a background worker.
// Progress ticks are not forwarded. Events are dropped when the buffer is
// full or the broker is unreachable.
type RabbitMQ struct {
	url      string
	exchange string
	dial     dialFunc
	backoff  time.Duration
	queue    chan Event
	log      logrus.FieldLogger
	done     chan struct{}
}

func NewRabbitMQ(cfg models.EventsConfig, log logrus.FieldLogger) *RabbitMQ {
	exchange := cfg.Exchange
	if exchange == "" {
		exchange = DefaultExchange
	}
	size := cfg.BufferLength
	if size <= 0 {
		size = 64
	}
	return &RabbitMQ{
		url:      cfg.RabbitMQURL,
		exchange: exchange,
		dial:     dialAMQP,
		backoff:  initialRetryDelay,
		queue:    make(chan Event, size),
		log:      log,
		done:     make(chan struct{}),
	}
}

func (r *RabbitMQ) Publish(e Event) {
	if e.Type == TypePresenceProgress {
		return
	}
	select {
	case r.queue <- e:
	default:
		r.log.Debugf("⚠️  RabbitMQ buffer full, dropping %s", e.Type)
	}
}

// Run delivers queued events until ctx is cancelled.
func (r *RabbitMQ) Run(ctx context.Context) {
	defer close(r.done)

	retry := r.backoff
	for {
		ch, closeConn, err := r.connect()
		if err != nil {
			r.log.Warnf("❌ RabbitMQ unavailable: %v (retry in %v)", err, retry)
			select {
			case <-ctx.Done():
				return
			case <-time.After(retry):
			}
			retry = nextRetryInterval(retry, maxRetryDelay)
			continue
		}

		r.log.Infof("✅ Publishing events to exchange %q", r.exchange)
		retry = r.backoff

		err = r.drain(ctx, ch)
		ch.Close()
		closeConn()
		if err == nil {
			return
		}
		r.log.Warnf("⚠️  RabbitMQ publish failed, reconnecting: %v", err)
	}
}

// Done is closed when Run returns.
func (r *RabbitMQ) Done() <-chan struct{} {
	return r.done
}

func (r *RabbitMQ) connect() (amqpChannel, func() error, error) {
	ch, closeConn, err := r.dial(r.url)
	if err != nil {
		return nil, nil, err
	}
	if err := ch.ExchangeDeclare(r.exchange, "fanout", true, false, false, false, nil); err != nil {
		ch.Close()
		closeConn()
		return nil, nil, fmt.Errorf("declare exchange: %w", err)
	}
	return ch, closeConn, nil
}

// drain returns nil when ctx ends and the publish error otherwise. The
// failed event is lost.
func (r *RabbitMQ) drain(ctx context.Context, ch amqpChannel) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case e := <-r.queue:
			if err := r.publish(ctx, ch, e); err != nil {
				return err
			}
		}
	}
}

func (r *RabbitMQ) publish(ctx context.Context, ch amqpChannel, e Event) error {
	body, err := json.Marshal(e)
	if err != nil {
		r.log.Warnf("⚠️  Event encode failed: %v", err)
		return nil
	}

	pubCtx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	return ch.PublishWithContext(pubCtx, r.exchange, "", false, false, amqp.Publishing{
		ContentType: "application/json",
		MessageId:   e.ID,
		Type:        string(e.Type),
		Timestamp:   e.At,
		Body:        body,
	})
}

func nextRetryInterval(current, max time.Duration) time.Duration {
	next := current * 2
	if next > max {
		return max
	}
	return next
}

package rabbitmq

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/herverfred/mission-center/internal/application/mission"
	"github.com/herverfred/mission-center/internal/pkg/logger"
	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	DefaultExchange = "mission.events"

	// Wait window for Return / Confirm
	publishWait = 150 * time.Millisecond
)

// Publisher publishes to the mission topic exchange with mandatory routing
// and publisher confirms. Async publishes that fail are handed to the outbox.
type Publisher struct {
	url      string
	exchange string
	outbox   mission.OutboxEnqueuer

	mu sync.Mutex

	conn *amqp.Connection
	ch   *amqp.Channel

	confirmCh <-chan amqp.Confirmation
	returnCh  <-chan amqp.Return
}

func NewPublisher(url, exchange string, outbox mission.OutboxEnqueuer) (*Publisher, error) {
	if exchange == "" {
		exchange = DefaultExchange
	}

	p := &Publisher{
		url:      url,
		exchange: exchange,
		outbox:   outbox,
	}
	if err := p.connect(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Publisher) connect() error {
	conn, err := amqp.Dial(p.url)
	if err != nil {
		return err
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return err
	}

	if err := ch.ExchangeDeclare(p.exchange, "topic", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return err
	}

	// enable publisher confirms
	if err := ch.Confirm(false); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return err
	}

	p.conn = conn
	p.ch = ch

	p.confirmCh = ch.NotifyPublish(make(chan amqp.Confirmation, 1))
	p.returnCh = ch.NotifyReturn(make(chan amqp.Return, 1))

	return nil
}

func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.ch != nil {
		_ = p.ch.Close()
		p.ch = nil
	}
	if p.conn != nil {
		_ = p.conn.Close()
		p.conn = nil
	}
	return nil
}

// PublishRaw publishes a pre-encoded body and waits for the broker verdict.
// eventID MUST be stable across retries (it is the outbox key).
func (p *Publisher) PublishRaw(ctx context.Context, topic, eventID string, body []byte) error {
	if topic == "" {
		return errors.New("missing topic")
	}
	if strings.TrimSpace(eventID) == "" {
		return errors.New("missing eventID")
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.ch == nil {
		return errors.New("publisher channel not ready")
	}

	err := p.ch.PublishWithContext(
		ctx,
		p.exchange,
		topic, // routing key == logical topic
		true,  // mandatory
		false, // immediate
		amqp.Publishing{
			MessageId:    eventID,
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now().UTC(),
			Body:         body,
		},
	)
	if err != nil {
		return err
	}

	// Wait for either Return (NO_ROUTE) or Confirm
	select {
	case ret := <-p.returnCh:
		return errors.New("NO_ROUTE: " + ret.RoutingKey)
	case conf := <-p.confirmCh:
		if !conf.Ack {
			return errors.New("publish nack")
		}
		return nil
	case <-time.After(publishWait):
		// best-effort window; consumers are idempotent, so treating a silent
		// broker as success only risks a redundant redelivery
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// PublishSync encodes and publishes, surfacing the error to the caller.
func (p *Publisher) PublishSync(ctx context.Context, topic, eventID string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return p.PublishRaw(ctx, topic, eventID, body)
}

// PublishAsync is fire-and-queue for ingress events: the caller never sees
// the send result. A failed send lands in the outbox, where the sweeper
// retries it.
func (p *Publisher) PublishAsync(ctx context.Context, topic, eventType, eventID string, payload any) {
	body, err := json.Marshal(payload)
	if err != nil {
		logger.WithCtx(ctx).Error().Err(err).Str("topic", topic).Msg("event encode failed; dropping")
		return
	}

	go func() {
		pubCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := p.PublishRaw(pubCtx, topic, eventID, body); err != nil {
			logger.Logger.Error().
				Err(err).
				Str("topic", topic).
				Str("event_id", eventID).
				Msg("async publish failed; saving to outbox")

			if oerr := p.outbox.Enqueue(pubCtx, eventID, topic, eventType, body, err.Error()); oerr != nil {
				logger.Logger.Error().
					Err(oerr).
					Str("event_id", eventID).
					Msg("outbox enqueue failed; event lost until next user action")
			}
		}
	}()
}

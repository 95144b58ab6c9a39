package rabbitmq

import (
	"context"
	"encoding/json"

	"github.com/herverfred/mission-center/internal/contracts/event"
	"github.com/herverfred/mission-center/internal/metrics"
	"github.com/herverfred/mission-center/internal/pkg/logger"
	amqp "github.com/rabbitmq/amqp091-go"
)

// Queue names mirror the consumer groups: one durable queue per topic.
const (
	queueLogin      = "mission-login-consumer-group"
	queueGameLaunch = "mission-game-launch-consumer-group"
	queueGamePlay   = "mission-game-play-consumer-group"
	queueCompleted  = "reward-distribution-group"

	consumerPrefetch = 16
)

// Consumer owns one connection and one channel per topic queue, with manual
// acks. Redeliveries land on the router's dedup keys.
type Consumer struct {
	url      string
	exchange string
	router   *Router

	conn *amqp.Connection
}

func NewConsumer(url, exchange string, router *Router) *Consumer {
	if exchange == "" {
		exchange = DefaultExchange
	}
	return &Consumer{url: url, exchange: exchange, router: router}
}

// Start declares the topology and spawns one consume loop per queue. It
// returns after the loops are running; cancel ctx to stop them.
func (c *Consumer) Start(ctx context.Context) error {
	conn, err := amqp.Dial(c.url)
	if err != nil {
		return err
	}
	c.conn = conn

	bindings := []struct {
		queue string
		topic string
	}{
		{queueLogin, event.TopicLogin},
		{queueGameLaunch, event.TopicGameLaunch},
		{queueGamePlay, event.TopicGamePlay},
		{queueCompleted, event.TopicMissionCompleted},
	}

	for _, b := range bindings {
		ch, err := conn.Channel()
		if err != nil {
			return err
		}
		if err := ch.ExchangeDeclare(c.exchange, "topic", true, false, false, false, nil); err != nil {
			return err
		}
		if _, err := ch.QueueDeclare(b.queue, true, false, false, false, nil); err != nil {
			return err
		}
		if err := ch.QueueBind(b.queue, b.topic, c.exchange, false, nil); err != nil {
			return err
		}
		if err := ch.Qos(consumerPrefetch, 0, false); err != nil {
			return err
		}

		deliveries, err := ch.Consume(b.queue, "", false, false, false, false, nil)
		if err != nil {
			return err
		}

		go c.consumeLoop(ctx, b.topic, deliveries)
	}

	logger.Logger.Info().
		Str("exchange", c.exchange).
		Int("queues", len(bindings)).
		Msg("consumers started")
	return nil
}

func (c *Consumer) Close() error {
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

func (c *Consumer) consumeLoop(ctx context.Context, topic string, deliveries <-chan amqp.Delivery) {
	log := logger.Logger.With().Str("topic", topic).Logger()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("consumer stopped")
			return
		case d, ok := <-deliveries:
			if !ok {
				log.Warn().Msg("delivery channel closed")
				return
			}

			res := c.dispatch(ctx, topic, d.Body)
			metrics.EventConsumed(topic, res.String())

			if res == ResultRetry {
				if err := d.Nack(false, true); err != nil {
					log.Warn().Err(err).Msg("nack failed")
				}
				continue
			}
			if err := d.Ack(false); err != nil {
				log.Warn().Err(err).Msg("ack failed")
			}
		}
	}
}

// dispatch decodes per topic and hands off to the router. A body that does
// not decode is poison: dropped with a warning, never requeued.
func (c *Consumer) dispatch(ctx context.Context, topic string, body []byte) Result {
	switch topic {
	case event.TopicLogin:
		var ev event.LoginEvent
		if err := json.Unmarshal(body, &ev); err != nil {
			logger.Logger.Warn().Err(err).Str("topic", topic).Msg("undecodable message dropped")
			return ResultFatal
		}
		return c.router.HandleLogin(ctx, ev)

	case event.TopicGameLaunch:
		var ev event.GameLaunchEvent
		if err := json.Unmarshal(body, &ev); err != nil {
			logger.Logger.Warn().Err(err).Str("topic", topic).Msg("undecodable message dropped")
			return ResultFatal
		}
		return c.router.HandleGameLaunch(ctx, ev)

	case event.TopicGamePlay:
		var ev event.GamePlayEvent
		if err := json.Unmarshal(body, &ev); err != nil {
			logger.Logger.Warn().Err(err).Str("topic", topic).Msg("undecodable message dropped")
			return ResultFatal
		}
		return c.router.HandleGamePlay(ctx, ev)

	case event.TopicMissionCompleted:
		var ev event.MissionCompletedEvent
		if err := json.Unmarshal(body, &ev); err != nil {
			logger.Logger.Warn().Err(err).Str("topic", topic).Msg("undecodable message dropped")
			return ResultFatal
		}
		return c.router.HandleMissionCompleted(ctx, ev)

	default:
		logger.Logger.Warn().Str("topic", topic).Msg("message on unknown topic dropped")
		return ResultFatal
	}
}

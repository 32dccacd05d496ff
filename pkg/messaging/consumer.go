package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/suyashwaghule/joitex-IVM/pkg/logger"
)

const (
	// maxDeliveries is how many times a failing message is retried before
	// it is parked in the DLQ.
	maxDeliveries = 3

	retryHeader = "x-retry-count"
)

// MessageHandler is a function that handles a message
type MessageHandler func(ctx context.Context, event *Event) error

type binding struct {
	exchange   string
	routingKey string
}

// Consumer reads one durable queue and dispatches events by type. Failing
// events are retried by republishing with a retry header, then dead-lettered.
type Consumer struct {
	rmq       *RabbitMQ
	queueName string
	bindings  []binding
	handlers  map[string]MessageHandler
	logger    *logger.Logger
}

// NewConsumer declares queueName, its dead letter queue, and returns a consumer for it
func NewConsumer(rmq *RabbitMQ, queueName string, log *logger.Logger) (*Consumer, error) {
	if err := rmq.DeclareDeadLetterQueue(queueName); err != nil {
		return nil, err
	}
	if _, err := rmq.DeclareQueue(queueName); err != nil {
		return nil, fmt.Errorf("failed to declare queue %s: %w", queueName, err)
	}

	return &Consumer{
		rmq:       rmq,
		queueName: queueName,
		handlers:  make(map[string]MessageHandler),
		logger:    log.WithComponent("consumer"),
	}, nil
}

// Subscribe binds the queue to an exchange with a routing key pattern.
// Bindings are replayed after a reconnect.
func (c *Consumer) Subscribe(exchange, routingKeyPattern string) error {
	if err := c.bind(binding{exchange: exchange, routingKey: routingKeyPattern}); err != nil {
		return err
	}
	c.bindings = append(c.bindings, binding{exchange: exchange, routingKey: routingKeyPattern})

	c.logger.Info().
		Str("queue", c.queueName).
		Str("exchange", exchange).
		Str("routing_key", routingKeyPattern).
		Msg("subscribed to exchange")
	return nil
}

func (c *Consumer) bind(b binding) error {
	if err := c.rmq.DeclareExchange(b.exchange); err != nil {
		return fmt.Errorf("failed to declare exchange: %w", err)
	}
	if err := c.rmq.BindQueue(c.queueName, b.exchange, b.routingKey); err != nil {
		return fmt.Errorf("failed to bind queue: %w", err)
	}
	return nil
}

// RegisterHandler registers a handler for a specific event type
func (c *Consumer) RegisterHandler(eventType string, handler MessageHandler) {
	c.handlers[eventType] = handler
}

// Start begins consuming in the background until ctx is cancelled.
func (c *Consumer) Start(ctx context.Context) error {
	ch := c.rmq.Channel()
	msgs, err := c.consume(ch)
	if err != nil {
		return err
	}

	c.logger.Info().Str("queue", c.queueName).Msg("consumer started")
	go c.run(ctx, ch, msgs)
	return nil
}

func (c *Consumer) consume(ch *amqp.Channel) (<-chan amqp.Delivery, error) {
	msgs, err := ch.Consume(c.queueName, "", false, false, false, false, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to start consuming: %w", err)
	}
	return msgs, nil
}

func (c *Consumer) run(ctx context.Context, ch *amqp.Channel, msgs <-chan amqp.Delivery) {
	for {
		select {
		case <-ctx.Done():
			c.logger.Info().Str("queue", c.queueName).Msg("consumer stopped")
			return
		case msg, ok := <-msgs:
			if ok {
				c.settle(ctx, ch, msg, c.dispatch(ctx, msg.Body, getRetryCount(msg.Headers)))
				continue
			}
			c.logger.Warn().Str("queue", c.queueName).Msg("delivery channel closed, waiting for reconnect")
			if ch, msgs = c.resubscribe(ctx, ch); msgs == nil {
				return
			}
		}
	}
}

// resubscribe waits for the connection to be replaced, then restores the
// queue, its bindings, and the subscription. It returns a nil delivery
// channel when ctx ends first.
func (c *Consumer) resubscribe(ctx context.Context, stale *amqp.Channel) (*amqp.Channel, <-chan amqp.Delivery) {
	delay := c.rmq.config.ReconnectDelay
	if delay <= 0 {
		delay = time.Second
	}
	ticker := time.NewTicker(delay)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, nil
		case <-c.rmq.done:
			return nil, nil
		case <-ticker.C:
		}

		ch := c.rmq.Channel()
		if ch == nil || ch == stale || ch.IsClosed() {
			continue
		}
		msgs, err := c.restore(ch)
		if err != nil {
			c.logger.Warn().Err(err).Str("queue", c.queueName).Msg("resubscribe failed")
			continue
		}
		c.logger.Info().Str("queue", c.queueName).Msg("consumer resubscribed")
		return ch, msgs
	}
}

func (c *Consumer) restore(ch *amqp.Channel) (<-chan amqp.Delivery, error) {
	if err := c.rmq.DeclareDeadLetterQueue(c.queueName); err != nil {
		return nil, err
	}
	if _, err := c.rmq.DeclareQueue(c.queueName); err != nil {
		return nil, err
	}
	for _, b := range c.bindings {
		if err := c.bind(b); err != nil {
			return nil, err
		}
	}
	return c.consume(ch)
}

// outcome is the settlement decided for one delivery.
type outcome int

const (
	outcomeAck outcome = iota
	outcomeRetry
	outcomeDeadLetter
)

func (c *Consumer) settle(ctx context.Context, ch *amqp.Channel, msg amqp.Delivery, o outcome) {
	var err error
	switch o {
	case outcomeAck:
		err = msg.Ack(false)
	case outcomeRetry:
		if err = c.retry(ctx, ch, msg); err != nil {
			c.logger.Warn().Err(err).Str("message_id", msg.MessageId).Msg("retry publish failed, requeueing")
			err = msg.Nack(false, true)
		} else {
			err = msg.Ack(false)
		}
	case outcomeDeadLetter:
		err = msg.Reject(false)
	}
	if err != nil {
		c.logger.Error().Err(err).Msg("failed to settle delivery")
	}
}

// retry puts a copy of msg back on the queue with its retry count bumped.
func (c *Consumer) retry(ctx context.Context, ch *amqp.Channel, msg amqp.Delivery) error {
	return ch.PublishWithContext(ctx, "", c.queueName, false, false, amqp.Publishing{
		Headers:       retryHeaders(msg.Headers),
		ContentType:   msg.ContentType,
		DeliveryMode:  amqp.Persistent,
		CorrelationId: msg.CorrelationId,
		MessageId:     msg.MessageId,
		Timestamp:     msg.Timestamp,
		Type:          msg.Type,
		AppId:         msg.AppId,
		Body:          msg.Body,
	})
}

func (c *Consumer) dispatch(ctx context.Context, body []byte, retryCount int) outcome {
	var event Event
	if err := json.Unmarshal(body, &event); err != nil {
		c.logger.Error().Err(err).Msg("failed to unmarshal event")
		return outcomeDeadLetter
	}

	ctx = WithCorrelationID(ctx, event.CorrelationID)

	handler, ok := c.handlers[event.Type]
	if !ok {
		c.logger.Debug().Str("event_type", event.Type).Msg("no handler registered for event type")
		return outcomeAck
	}

	if err := handler(ctx, &event); err != nil {
		log := c.logger.Error().
			Err(err).
			Str("event_type", event.Type).
			Str("event_id", event.ID).
			Int("retry_count", retryCount)
		if retryCount >= maxDeliveries {
			log.Msg("max retries exceeded, sending to DLQ")
			return outcomeDeadLetter
		}
		log.Msg("failed to process event")
		return outcomeRetry
	}

	c.logger.Debug().
		Str("event_type", event.Type).
		Str("event_id", event.ID).
		Str("correlation_id", event.CorrelationID).
		Msg("event processed")
	return outcomeAck
}

func retryHeaders(in amqp.Table) amqp.Table {
	out := amqp.Table{}
	for k, v := range in {
		out[k] = v
	}
	out[retryHeader] = int32(getRetryCount(in) + 1)
	return out
}

// getRetryCount reads the retry header, falling back to the broker's
// x-death count for messages that came back through the DLX.
func getRetryCount(headers amqp.Table) int {
	if headers == nil {
		return 0
	}

	switch n := headers[retryHeader].(type) {
	case int32:
		return int(n)
	case int64:
		return int(n)
	case int:
		return n
	}

	if deaths, ok := headers["x-death"].([]interface{}); ok {
		for _, death := range deaths {
			if d, ok := death.(amqp.Table); ok {
				if count, ok := d["count"].(int64); ok {
					return int(count)
				}
			}
		}
	}

	return 0
}

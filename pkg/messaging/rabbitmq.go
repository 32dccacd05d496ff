package messaging

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/suyashwaghule/joitex-IVM/pkg/config"
	"github.com/suyashwaghule/joitex-IVM/pkg/logger"
)

const deadLetterExchange = "joitex.dlx"

var errClosed = errors.New("rabbitmq: connection closed")

// RabbitMQ owns one AMQP connection and channel shared by the service's
// publishers and consumers. A dropped connection is redialled in the
// background; callers fetch the channel per operation through Channel.
//
// mu guards conn, channel and closed only and is never held across a dial or
// a backoff wait. dialMu keeps redials from overlapping.
type RabbitMQ struct {
	conn    *amqp.Connection
	channel *amqp.Channel
	config  *config.RabbitMQConfig
	logger  *logger.Logger
	mu      sync.RWMutex
	dialMu  sync.Mutex
	closed  bool
	done    chan struct{}
}

// New dials RabbitMQ, retrying up to MaxRetries times before giving up.
func New(cfg *config.RabbitMQConfig, log *logger.Logger) (*RabbitMQ, error) {
	rmq := &RabbitMQ{
		config: cfg,
		logger: log.WithComponent("rabbitmq"),
		done:   make(chan struct{}),
	}

	if err := rmq.dialWithRetry(context.Background()); err != nil {
		return nil, err
	}
	return rmq, nil
}

// dial opens a connection and channel without touching shared state.
func (r *RabbitMQ) dial() (*amqp.Connection, *amqp.Channel, error) {
	conn, err := amqp.Dial(r.config.URL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("failed to open channel: %w", err)
	}

	if err := ch.Qos(r.config.PrefetchCount, 0, false); err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("failed to set QoS: %w", err)
	}
	return conn, ch, nil
}

// install swaps in a freshly dialled connection. A connection that arrives
// after Close is discarded.
func (r *RabbitMQ) install(conn *amqp.Connection, ch *amqp.Channel) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		conn.Close()
		return errClosed
	}
	r.conn, r.channel = conn, ch
	go r.watch(conn.NotifyClose(make(chan *amqp.Error, 1)))

	r.logger.Info().Msg("connected to RabbitMQ")
	return nil
}

func (r *RabbitMQ) dialWithRetry(ctx context.Context) error {
	r.dialMu.Lock()
	defer r.dialMu.Unlock()

	attempts := r.config.MaxRetries
	if attempts < 1 {
		attempts = 1
	}

	var err error
	for i := 0; i < attempts; i++ {
		if r.isClosed() {
			return errClosed
		}
		var conn *amqp.Connection
		var ch *amqp.Channel
		if conn, ch, err = r.dial(); err == nil {
			return r.install(conn, ch)
		}
		r.logger.Warn().Err(err).Int("attempt", i+1).Int("max_attempts", attempts).Msg("RabbitMQ dial failed")
		if i == attempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-r.done:
			return errClosed
		case <-time.After(r.config.ReconnectDelay):
		}
	}
	return fmt.Errorf("failed to connect after %d attempts: %w", attempts, err)
}

func (r *RabbitMQ) isClosed() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.closed
}

// watch redials when the broker closes the connection. A graceful Close
// delivers no error and ends the watcher.
func (r *RabbitMQ) watch(closed <-chan *amqp.Error) {
	amqpErr, ok := <-closed
	if !ok || amqpErr == nil {
		return
	}
	r.logger.Error().Str("reason", amqpErr.Reason).Int("code", amqpErr.Code).Msg("RabbitMQ connection lost")

	if err := r.Reconnect(context.Background()); err != nil && !errors.Is(err, errClosed) {
		r.logger.Error().Err(err).Msg("giving up on RabbitMQ")
	}
}

// Reconnect replaces the connection and channel. Consumers must re-subscribe.
// Until it succeeds, Channel keeps returning the dead channel and operations
// on it fail fast.
func (r *RabbitMQ) Reconnect(ctx context.Context) error {
	if r.isClosed() {
		return errClosed
	}
	return r.dialWithRetry(ctx)
}

// Channel returns the current channel
func (r *RabbitMQ) Channel() *amqp.Channel {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.channel
}

// Close closes the RabbitMQ connection and interrupts any redial in progress.
func (r *RabbitMQ) Close() error {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}
	r.closed = true
	close(r.done)

	if r.channel != nil {
		if err := r.channel.Close(); err != nil {
			r.logger.Warn().Err(err).Msg("failed to close channel")
		}
	}
	if r.conn != nil && !r.conn.IsClosed() {
		if err := r.conn.Close(); err != nil {
			return fmt.Errorf("failed to close connection: %w", err)
		}
	}

	r.logger.Info().Msg("RabbitMQ connection closed")
	return nil
}

// Health returns the health status of RabbitMQ. A nil broker reports disabled.
func (r *RabbitMQ) Health() map[string]string {
	if r == nil {
		return map[string]string{"status": "disabled"}
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.conn == nil || r.conn.IsClosed() {
		return map[string]string{"status": "down", "error": "connection closed"}
	}
	return map[string]string{"status": "up"}
}

// DeclareExchange declares a durable topic exchange
func (r *RabbitMQ) DeclareExchange(name string) error {
	return r.Channel().ExchangeDeclare(name, amqp.ExchangeTopic, true, false, false, false, nil)
}

// DeclareQueue declares a durable queue whose rejected messages go to the
// dead letter exchange.
func (r *RabbitMQ) DeclareQueue(name string) (amqp.Queue, error) {
	return r.Channel().QueueDeclare(name, true, false, false, false, amqp.Table{
		"x-dead-letter-exchange": deadLetterExchange,
	})
}

// DeclareDeadLetterQueue declares the dead letter exchange and the parking
// queue dlq.<serviceName> that catches everything routed to it.
func (r *RabbitMQ) DeclareDeadLetterQueue(serviceName string) error {
	ch := r.Channel()
	if err := ch.ExchangeDeclare(deadLetterExchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare DLX exchange: %w", err)
	}

	queueName := "dlq." + serviceName
	if _, err := ch.QueueDeclare(queueName, true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare DLQ queue: %w", err)
	}
	if err := ch.QueueBind(queueName, "#", deadLetterExchange, false, nil); err != nil {
		return fmt.Errorf("failed to bind DLQ: %w", err)
	}
	return nil
}

// BindQueue binds a queue to an exchange with a routing key pattern
func (r *RabbitMQ) BindQueue(queueName, exchange, routingKey string) error {
	return r.Channel().QueueBind(queueName, routingKey, exchange, false, nil)
}

package rabbit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
)

const (
	routingKey  = "booking.notification"
	consumerTag = "studio-booker-mailer"
)

// ErrRequeue tells Consume to put a message back on the queue instead of
// dropping it.
var ErrRequeue = errors.New("message left for redelivery")

type Client struct {
	conn     *amqp.Connection
	channel  *amqp.Channel
	exchange string
	queue    string
	log      *zerolog.Logger

	mu      sync.Mutex
	drained chan struct{}
}

// NewRabbit connects and declares a durable direct exchange with one durable
// queue bound to the notification routing key.
func NewRabbit(url, exchange, queue string, log *zerolog.Logger) (*Client, error) {
	if log == nil {
		nop := zerolog.Nop()
		log = &nop
	}

	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to open RabbitMQ channel: %w", err)
	}

	c := &Client{conn: conn, channel: ch, exchange: exchange, queue: queue, log: log}
	if err := c.declare(); err != nil {
		c.Close()
		return nil, err
	}

	log.Info().Str("exchange", exchange).Str("queue", queue).Msg("RabbitMQ ready")
	return c, nil
}

func (c *Client) declare() error {
	if err := c.channel.ExchangeDeclare(c.exchange, amqp.ExchangeDirect, true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare exchange %s: %w", c.exchange, err)
	}
	if _, err := c.channel.QueueDeclare(c.queue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare queue %s: %w", c.queue, err)
	}
	if err := c.channel.QueueBind(c.queue, routingKey, c.exchange, false, nil); err != nil {
		return fmt.Errorf("failed to bind queue %s: %w", c.queue, err)
	}
	return nil
}

func (c *Client) Close() {
	if c.channel != nil {
		_ = c.channel.Close()
	}
	if c.conn != nil {
		_ = c.conn.Close()
	}
	c.log.Info().Msg("RabbitMQ connection closed")
}

func (c *Client) Publish(ctx context.Context, message []byte) error {
	err := c.channel.PublishWithContext(ctx, c.exchange, routingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         message,
		Timestamp:    time.Now(),
	})
	if err != nil {
		return fmt.Errorf("failed to publish to %s: %w", c.exchange, err)
	}
	return nil
}

// Consume hands queue messages to handler until StopConsuming or Close. A
// message the handler fails on is dropped unless the error wraps ErrRequeue.
func (c *Client) Consume(handler func([]byte) error) error {
	msgs, err := c.channel.Consume(c.queue, consumerTag, false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("failed to consume from %s: %w", c.queue, err)
	}

	drained := make(chan struct{})
	c.mu.Lock()
	c.drained = drained
	c.mu.Unlock()

	go func() {
		defer close(drained)
		for d := range msgs {
			err := handler(d.Body)
			switch {
			case err == nil:
				_ = d.Ack(false)
			case errors.Is(err, ErrRequeue):
				_ = d.Nack(false, true)
			default:
				c.log.Warn().Err(err).Msg("dropping queued message")
				_ = d.Nack(false, false)
			}
		}
	}()

	c.log.Info().Str("queue", c.queue).Msg("consuming")
	return nil
}

// StopConsuming cancels the consumer and waits until every delivery already
// received has been handled.
func (c *Client) StopConsuming() error {
	c.mu.Lock()
	drained := c.drained
	c.drained = nil
	c.mu.Unlock()
	if drained == nil {
		return nil
	}

	if err := c.channel.Cancel(consumerTag, false); err != nil {
		return fmt.Errorf("failed to cancel consumer: %w", err)
	}
	<-drained
	return nil
}

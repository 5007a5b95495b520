// Package rabbitmq carries round reports from game servers to the ingest
// workers.
package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"matchstats/internal/config"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog/log"
)

type Client interface {
	Close() error

	// Setup declares the configured exchange and queue and binds them
	Setup() error
	DeclareExchange(name, kind string) error
	DeclareQueue(name string) (amqp.Queue, error)
	BindQueue(queueName, exchangeName, routingKey string) error

	Publish(ctx context.Context, exchange, routingKey string, body []byte, headers amqp.Table) error
	Consume(queueName string, consumerTag string) (<-chan amqp.Delivery, error)

	Health() error
}

type client struct {
	conn    *amqp.Connection
	channel *amqp.Channel
	config  config.RabbitMQConfig
	dial    func(url string, cfg amqp.Config) (*amqp.Connection, error)

	backoff    time.Duration
	maxBackoff time.Duration

	mu           sync.Mutex
	reconnecting bool
	closed       bool
	done         chan struct{}
}

func newClient(cfg config.RabbitMQConfig) *client {
	return &client{
		config:     cfg,
		dial:       amqp.DialConfig,
		backoff:    1 * time.Second,
		maxBackoff: 30 * time.Second,
		done:       make(chan struct{}),
	}
}

func NewClientFromConfig(cfg config.RabbitMQConfig) (Client, error) {
	c := newClient(cfg)

	if err := c.connect(); err != nil {
		return nil, err
	}
	c.watchClose()

	return c, nil
}

func (c *client) url() string {
	return fmt.Sprintf("amqp://%s:%s@%s:%d/%s",
		c.config.Username,
		c.config.Password,
		c.config.Host,
		c.config.Port,
		c.config.VHost,
	)
}

func (c *client) connect() error {
	conn, err := c.dial(c.url(), amqp.Config{
		Heartbeat: 30 * time.Second,
		Locale:    "en_US",
	})
	if err != nil {
		log.Error().Err(err).Msg("Failed to connect to RabbitMQ")
		return fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		log.Error().Err(err).Msg("Failed to open RabbitMQ channel")
		conn.Close()
		return fmt.Errorf("failed to open channel: %w", err)
	}

	if c.config.PrefetchCount > 0 {
		if err := ch.Qos(c.config.PrefetchCount, 0, false); err != nil {
			log.Error().Err(err).Msg("Failed to set channel QoS")
			conn.Close()
			return fmt.Errorf("failed to set QoS: %w", err)
		}
	}

	c.conn = conn
	c.channel = ch

	log.Info().
		Str("host", c.config.Host).
		Int("port", c.config.Port).
		Str("vhost", c.config.VHost).
		Msg("RabbitMQ connection established")

	return nil
}

// watchClose reconnects in the background once the current connection drops
func (c *client) watchClose() {
	notifyClose := c.conn.NotifyClose(make(chan *amqp.Error, 1))

	go func() {
		err, ok := <-notifyClose
		if !ok || err == nil {
			// closed on purpose
			return
		}
		log.Warn().
			Str("reason", err.Reason).
			Int("code", err.Code).
			Bool("recover", err.Recover).
			Msg("RabbitMQ connection closed, attempting to reconnect...")
		c.reconnect()
	}()
}

// reconnect retries with backoff until a connection opens or Close is
// called. c.mu is only held for each attempt.
func (c *client) reconnect() {
	c.mu.Lock()
	if c.reconnecting || c.closed {
		c.mu.Unlock()
		return
	}
	c.reconnecting = true
	if c.channel != nil {
		c.channel.Close()
	}
	if c.conn != nil && !c.conn.IsClosed() {
		c.conn.Close()
	}
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.reconnecting = false
		c.mu.Unlock()
	}()

	backoff := c.backoff
	for {
		log.Info().Dur("backoff", backoff).Msg("Attempting to reconnect to RabbitMQ")

		c.mu.Lock()
		err := c.ensureOpen("reconnecting")
		c.mu.Unlock()

		switch {
		case err == nil:
			log.Info().Msg("Successfully reconnected to RabbitMQ")
			return
		case errors.Is(err, errClientClosed):
			return
		}

		select {
		case <-c.done:
			return
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, c.maxBackoff)
	}
}

var errClientClosed = errors.New("rabbitmq client is closed")

// ensureOpen reopens a dropped connection. c.mu must be held.
func (c *client) ensureOpen(action string) error {
	if c.closed {
		return errClientClosed
	}
	if c.conn != nil && c.channel != nil && !c.conn.IsClosed() {
		return nil
	}
	if err := c.connect(); err != nil {
		return fmt.Errorf("failed to reconnect before %s: %w", action, err)
	}
	c.watchClose()
	return nil
}

func (c *client) Health() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil || c.channel == nil {
		return errors.New("nil connection or channel")
	}
	if c.conn.IsClosed() {
		return errors.New("connection is closed")
	}

	err := c.channel.ExchangeDeclarePassive(c.config.ExchangeName, "direct", true, false, false, false, nil)
	if err != nil {
		log.Error().Err(err).Msg("RabbitMQ health check failed on passive exchange declare")
		return err
	}
	return nil
}

func (c *client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true
	close(c.done)

	if c.channel != nil {
		if err := c.channel.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
			return fmt.Errorf("channel close error: %w", err)
		}
	}
	if c.conn != nil {
		if err := c.conn.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
			return fmt.Errorf("connection close error: %w", err)
		}
	}

	log.Info().Msg("RabbitMQ connection and channel closed")
	return nil
}

func (c *client) Publish(ctx context.Context, exchange, routingKey string, body []byte, headers amqp.Table) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.ensureOpen("publishing"); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now(),
		Body:         body,
		Headers:      headers,
	}

	err := c.channel.PublishWithContext(ctx, exchange, routingKey, false, false, msg)
	if errors.Is(err, amqp.ErrClosed) {
		// the channel died between the check and the publish, retry once
		if err = c.ensureOpen("republishing"); err == nil {
			err = c.channel.PublishWithContext(ctx, exchange, routingKey, false, false, msg)
		}
	}
	if err != nil {
		log.Error().
			Err(err).
			Str("exchange", exchange).
			Str("routingKey", routingKey).
			Msg("Failed to publish message")
		return err
	}

	log.Debug().
		Str("exchange", exchange).
		Str("routingKey", routingKey).
		Int("size", len(body)).
		Msg("Published message")

	return nil
}

func (c *client) Consume(queueName string, consumerTag string) (<-chan amqp.Delivery, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.ensureOpen("consuming"); err != nil {
		return nil, err
	}

	// manual ack, the consumer decides per delivery
	deliveries, err := c.channel.Consume(queueName, consumerTag, false, false, false, false, nil)
	if err != nil {
		log.Error().
			Err(err).
			Str("queue", queueName).
			Str("consumerTag", consumerTag).
			Msg("Failed to start consuming")
		return nil, fmt.Errorf("consume error: %w", err)
	}

	log.Info().
		Str("queue", queueName).
		Str("consumerTag", consumerTag).
		Msg("Started consuming messages")

	return deliveries, nil
}

func (c *client) Setup() error {
	if err := c.DeclareExchange(c.config.ExchangeName, amqp.ExchangeDirect); err != nil {
		return err
	}
	if _, err := c.DeclareQueue(c.config.QueueName); err != nil {
		return err
	}
	return c.BindQueue(c.config.QueueName, c.config.ExchangeName, c.config.RoutingKey)
}

func (c *client) DeclareExchange(name, kind string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.ensureOpen("declaring exchange"); err != nil {
		return err
	}

	err := c.channel.ExchangeDeclare(name, kind, true, false, false, false, nil)
	if err != nil {
		log.Error().Err(err).Str("exchange", name).Msg("Failed to declare exchange")
		return err
	}
	log.Info().Str("exchange", name).Str("type", kind).Msg("Declared exchange")
	return nil
}

func (c *client) DeclareQueue(name string) (amqp.Queue, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.ensureOpen("declaring queue"); err != nil {
		return amqp.Queue{}, err
	}

	queue, err := c.channel.QueueDeclare(name, true, false, false, false, nil)
	if err != nil {
		log.Error().Err(err).Str("queue", name).Msg("Failed to declare queue")
		return amqp.Queue{}, err
	}
	log.Info().Str("queue", name).Int("messages", queue.Messages).Msg("Declared queue")
	return queue, nil
}

func (c *client) BindQueue(queueName, exchangeName, routingKey string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.ensureOpen("binding queue"); err != nil {
		return err
	}

	err := c.channel.QueueBind(queueName, routingKey, exchangeName, false, nil)
	if err != nil {
		log.Error().
			Err(err).
			Str("queue", queueName).
			Str("exchange", exchangeName).
			Str("routingKey", routingKey).
			Msg("Failed to bind queue")
		return err
	}
	log.Info().
		Str("queue", queueName).
		Str("exchange", exchangeName).
		Str("routingKey", routingKey).
		Msg("Bound queue to exchange")
	return nil
}

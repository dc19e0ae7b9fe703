// Package queue pulls extraction messages from RabbitMQ one at a time.
package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Handler processes one message body. A nil return acknowledges the
// message; an error rejects it without requeueing.
type Handler func(ctx context.Context, body []byte) error

// Config configures the poller.
type Config struct {
	URL       string
	QueueName string
	// PollInterval is the wait between polls that found the queue empty.
	PollInterval time.Duration
	MaxRetries   int
	RetryDelay   time.Duration
}

// source is the part of *amqp.Channel the poll loop needs.
type source interface {
	Get(queue string, autoAck bool) (amqp.Delivery, bool, error)
}

// Poller fetches messages with basic.get and processes them sequentially.
type Poller struct {
	conn    *amqp.Connection
	channel *amqp.Channel
	src     source
	config  Config
}

// NewPoller connects, declares the queue and limits prefetch to one message.
func NewPoller(cfg Config) (*Poller, error) {
	if cfg.URL == "" || cfg.QueueName == "" {
		return nil, fmt.Errorf("NewPoller: URL and queue name cannot be empty")
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 10
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 5 * time.Second
	}

	conn, err := connectWithRetry(cfg.URL, cfg.MaxRetries, cfg.RetryDelay)
	if err != nil {
		return nil, err
	}

	channel, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	if _, err := channel.QueueDeclare(
		cfg.QueueName,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,
	); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to declare queue: %w", err)
	}

	if err := channel.Qos(1, 0, false); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to set QoS: %w", err)
	}

	slog.Info("Connected to RabbitMQ.", "queue", cfg.QueueName)
	return &Poller{conn: conn, channel: channel, src: channel, config: cfg}, nil
}

func connectWithRetry(url string, maxRetries int, delay time.Duration) (*amqp.Connection, error) {
	var err error
	for i := 0; i < maxRetries; i++ {
		var conn *amqp.Connection
		conn, err = amqp.Dial(url)
		if err == nil {
			return conn, nil
		}
		slog.Warn("Failed to connect to RabbitMQ.", "attempt", i+1, "maxRetries", maxRetries, "error", err)
		if i < maxRetries-1 {
			time.Sleep(delay)
		}
	}
	return nil, fmt.Errorf("failed to connect after %d attempts: %w", maxRetries, err)
}

// Run polls until ctx is cancelled. Messages are handled strictly one at a time.
func (p *Poller) Run(ctx context.Context, handler Handler) error {
	return poll(ctx, p.src, p.config, handler)
}

func poll(ctx context.Context, src source, cfg Config, handler Handler) error {
	interval := cfg.PollInterval
	if interval <= 0 {
		interval = 2 * time.Second
	}
	slog.Info("Waiting for messages.", "queue", cfg.QueueName, "pollInterval", interval)

	for {
		if err := ctx.Err(); err != nil {
			return nil
		}

		delivery, ok, err := src.Get(cfg.QueueName, false)
		if err != nil {
			return fmt.Errorf("failed to get message: %w", err)
		}
		if !ok {
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(interval):
			}
			continue
		}

		if err := handleDelivery(ctx, delivery, handler); err != nil {
			return err
		}
	}
}

// handleDelivery runs handler and settles the delivery. Only a failure to
// settle is returned.
func handleDelivery(ctx context.Context, d amqp.Delivery, handler Handler) error {
	logCtx := slog.With("deliveryTag", d.DeliveryTag, "messageId", d.MessageId)

	// A message that has started runs to completion even during shutdown.
	if err := handler(context.WithoutCancel(ctx), d.Body); err != nil {
		logCtx.Error("Message rejected.", "error", err)
		if nackErr := d.Nack(false, false); nackErr != nil {
			return fmt.Errorf("failed to nack delivery %d: %w", d.DeliveryTag, nackErr)
		}
		return nil
	}
	if err := d.Ack(false); err != nil {
		return fmt.Errorf("failed to ack delivery %d: %w", d.DeliveryTag, err)
	}
	return nil
}

func (p *Poller) Close() error {
	var errs []error
	if p.channel != nil {
		errs = append(errs, p.channel.Close())
	}
	if p.conn != nil {
		errs = append(errs, p.conn.Close())
	}
	return errors.Join(errs...)
}

// internal/messaging/rabbit.go
package messaging

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/rs/zerolog"
	"github.com/streadway/amqp"

	"contact-service/internal/metrics"
)

const (
	heartbeat = 10 * time.Second
	// handshakeTimeout bounds a dial whose context carries no deadline.
	handshakeTimeout = 30 * time.Second
)

// RabbitClient publishes to durable queues in confirm mode. The connection
// is dialed on first use and re-dialed after it is lost, so a broker that
// is down at startup only fails the publishes made while it is down.
//
// Every blocking step, including waiting for another caller to finish,
// ends when the caller's context does.
type RabbitClient struct {
	URL string
	log zerolog.Logger

	// sem is a one-slot lock guarding the fields below.
	sem      chan struct{}
	conn     *amqp.Connection
	channel  *amqp.Channel
	confirms chan amqp.Confirmation
	closed   chan *amqp.Error
	declared map[string]bool
}

func NewRabbitClient(url string, logger zerolog.Logger) *RabbitClient {
	return &RabbitClient{
		URL:      url,
		log:      logger.With().Str("component", "rabbit").Logger(),
		sem:      make(chan struct{}, 1),
		declared: make(map[string]bool),
	}
}

func (r *RabbitClient) acquire(ctx context.Context) error {
	select {
	case r.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for RabbitMQ client: %w", ctx.Err())
	}
}

func (r *RabbitClient) release() { <-r.sem }

// dialer opens the TCP connection under ctx and bounds the AMQP handshake
// by ctx's deadline. The amqp library clears the deadline once the
// connection is open.
func dialer(ctx context.Context) func(network, addr string) (net.Conn, error) {
	return func(network, addr string) (net.Conn, error) {
		var d net.Dialer
		conn, err := d.DialContext(ctx, network, addr)
		if err != nil {
			return nil, err
		}
		deadline, ok := ctx.Deadline()
		if !ok {
			deadline = time.Now().Add(handshakeTimeout)
		}
		if err := conn.SetDeadline(deadline); err != nil {
			conn.Close()
			return nil, err
		}
		return conn, nil
	}
}

// connect must be called holding the slot.
func (r *RabbitClient) connect(ctx context.Context) error {
	if r.channel != nil {
		select {
		case err := <-r.closed:
			r.log.Warn().Err(err).Msg("connection lost, redialing")
			r.reset()
		default:
			return nil
		}
	}
	if r.URL == "" {
		return errors.New("no RabbitMQ url configured")
	}

	conn, err := amqp.DialConfig(r.URL, amqp.Config{
		Heartbeat: heartbeat,
		Locale:    "en_US",
		Dial:      dialer(ctx),
	})
	if err != nil {
		return fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to create channel: %w", err)
	}
	if err := ch.Confirm(false); err != nil {
		conn.Close()
		return fmt.Errorf("failed to enable publisher confirms: %w", err)
	}

	r.conn = conn
	r.channel = ch
	r.confirms = ch.NotifyPublish(make(chan amqp.Confirmation, 1))
	r.closed = conn.NotifyClose(make(chan *amqp.Error, 1))
	r.declared = make(map[string]bool)
	return nil
}

// reset drops the current connection; the next call dials again.
func (r *RabbitClient) reset() {
	if r.conn != nil {
		_ = r.conn.Close()
	}
	r.conn = nil
	r.channel = nil
	r.confirms = nil
	r.closed = nil
}

// declareQueue creates a durable queue with a dead-letter queue attached.
// Must be called holding the slot.
func (r *RabbitClient) declareQueue(queueName string) error {
	if r.declared[queueName] {
		return nil
	}
	dlqName := queueName + "_dlq"

	// 1. DLQ
	_, err := r.channel.QueueDeclare(
		dlqName,
		true, false, false, false,
		nil,
	)
	if err != nil {
		return fmt.Errorf("declare DLQ: %w", err)
	}

	// 2. Main Queue with DLQ binding
	args := amqp.Table{
		"x-dead-letter-exchange":    "",
		"x-dead-letter-routing-key": dlqName,
	}
	_, err = r.channel.QueueDeclare(
		queueName,
		true, false, false, false,
		args,
	)
	if err != nil {
		return fmt.Errorf("declare main queue: %w", err)
	}

	r.declared[queueName] = true
	r.log.Info().Str("queue", queueName).Msg("queues declared")
	return nil
}

// Publish sends body to queueName and waits for the broker to confirm it.
// A nack, a closed channel or ctx expiring first is an error.
func (r *RabbitClient) Publish(ctx context.Context, queueName string, body []byte) error {
	if err := r.acquire(ctx); err != nil {
		return err
	}
	defer r.release()

	if err := r.connect(ctx); err != nil {
		return err
	}

	// Channel calls have no deadline of their own; closing the connection
	// unblocks them.
	conn := r.conn
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	if err := r.declareQueue(queueName); err != nil {
		r.reset()
		return err
	}

	err := r.channel.Publish(
		"",        // default exchange
		queueName, // routing key (queue name)
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Body:         body,
		},
	)
	if err != nil {
		r.reset()
		return fmt.Errorf("failed to publish to queue %s: %w", queueName, err)
	}

	select {
	case confirm, ok := <-r.confirms:
		if !ok {
			r.reset()
			return fmt.Errorf("channel closed before confirming publish to %s", queueName)
		}
		if !confirm.Ack {
			return fmt.Errorf("broker rejected publish to %s", queueName)
		}
		return nil
	case <-ctx.Done():
		// The confirmation may still arrive; drop the channel so it cannot
		// be mistaken for the next publish's.
		r.reset()
		return fmt.Errorf("waiting for publish confirmation: %w", ctx.Err())
	}
}

// UpdateQueueDepth records the number of ready messages in queueName.
func (r *RabbitClient) UpdateQueueDepth(ctx context.Context, queueName string) {
	if err := r.acquire(ctx); err != nil {
		r.log.Debug().Err(err).Msg("skipping queue depth update")
		return
	}
	defer r.release()

	if err := r.connect(ctx); err != nil {
		r.log.Debug().Err(err).Msg("skipping queue depth update")
		return
	}

	conn := r.conn
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	q, err := r.channel.QueueInspect(queueName)
	if err != nil {
		r.log.Warn().Err(err).Str("queue", queueName).Msg("failed to inspect queue")
		// A failed passive declare closes the channel.
		r.reset()
		return
	}

	metrics.RelayQueueDepth.WithLabelValues(queueName).Set(float64(q.Messages))
}

// Close cleans up connection and channel once in-flight calls finish.
func (r *RabbitClient) Close() error {
	r.sem <- struct{}{}
	defer r.release()

	if r.conn == nil {
		return nil
	}
	err := r.conn.Close()
	r.conn = nil
	r.channel = nil
	return err
}

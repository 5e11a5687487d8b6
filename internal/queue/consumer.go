package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// Handler processes one message. Returning an error puts the message back on the
// queue for redelivery; returning nil acknowledges it.
type Handler interface {
	Handle(ctx context.Context, m Message) error
}

type HandlerFunc func(ctx context.Context, m Message) error

func (f HandlerFunc) Handle(ctx context.Context, m Message) error {
	return f(ctx, m)
}

// Consumer reads the queue one message at a time with manual acknowledgements
// and reconnects with exponential backoff when the broker goes away.
type Consumer struct {
	cfg     Config
	handler Handler
	log     *slog.Logger
	backoff func() backoff.BackOff
}

func NewConsumer(cfg Config, h Handler, log *slog.Logger) *Consumer {
	return &Consumer{
		cfg:     cfg,
		handler: h,
		log:     log,
		backoff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = time.Second
			b.MaxInterval = 30 * time.Second
			return b
		},
	}
}

// Run consumes until ctx is done. It only returns an error if it gives up, which
// it never does on its own: broker outages are retried indefinitely.
func (c *Consumer) Run(ctx context.Context) error {
	op := func() (struct{}, error) {
		established, err := c.consume(ctx)
		if ctx.Err() != nil {
			return struct{}{}, backoff.Permanent(ctx.Err())
		}
		if established {
			// the session was healthy, start over with a short delay
			return struct{}{}, backoff.RetryAfter(1)
		}
		return struct{}{}, err
	}

	_, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(c.backoff()),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(func(err error, next time.Duration) {
			c.log.Warn("queue consumer disconnected", "error", err, "retry_in", next)
		}),
	)
	if err != nil && ctx.Err() != nil {
		return nil
	}
	return err
}

func (c *Consumer) consume(ctx context.Context) (bool, error) {
	conn, err := dial(c.cfg)
	if err != nil {
		return false, fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		return false, fmt.Errorf("channel: %w", err)
	}

	if err := declare(ch, c.cfg.Queue); err != nil {
		return false, fmt.Errorf("declare queue: %w", err)
	}

	if err := ch.Qos(1, 0, false); err != nil {
		return false, fmt.Errorf("qos: %w", err)
	}

	deliveries, err := ch.Consume(c.cfg.Queue, "", false, false, false, false, nil)
	if err != nil {
		return false, fmt.Errorf("consume: %w", err)
	}

	closed := conn.NotifyClose(make(chan *amqp.Error, 1))
	c.log.Info("queue consumer started", "queue", c.cfg.Queue)

	for {
		select {
		case <-ctx.Done():
			return true, ctx.Err()
		case amqpErr := <-closed:
			if amqpErr == nil {
				return true, errors.New("connection closed")
			}
			return true, fmt.Errorf("connection closed: %w", amqpErr)
		case d, ok := <-deliveries:
			if !ok {
				return true, errors.New("delivery channel closed")
			}
			c.handle(ctx, d)
		}
	}
}

func (c *Consumer) handle(ctx context.Context, d amqp.Delivery) {
	m := Message{
		ID:          messageID(d),
		Body:        d.Body,
		Redelivered: d.Redelivered,
	}
	log := c.log.With("message_id", m.ID, "redelivered", m.Redelivered)

	if err := c.handler.Handle(ctx, m); err != nil {
		log.Warn("message handling failed, requeueing", "error", err)
		if nackErr := d.Nack(false, true); nackErr != nil {
			log.Error("failed to nack message", "error", nackErr)
		}
		return
	}

	if err := d.Ack(false); err != nil {
		log.Error("failed to ack message", "error", err)
	}
}

// messageID falls back to a digest of the body for messages published without an
// id, so redeliveries of the same body share one id.
func messageID(d amqp.Delivery) string {
	if d.MessageId != "" {
		return d.MessageId
	}
	return uuid.NewSHA1(uuid.NameSpaceOID, d.Body).String()
}

package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// Publisher sends text messages to the configured queue. The connection is opened
// on first use and reopened after a failure.
type Publisher struct {
	cfg Config
	log *slog.Logger

	mu   sync.Mutex
	conn *amqp.Connection
	ch   *amqp.Channel
}

func NewPublisher(cfg Config, log *slog.Logger) *Publisher {
	return &Publisher{cfg: cfg, log: log}
}

func (p *Publisher) Publish(ctx context.Context, body string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	ch, err := p.channel()
	if err != nil {
		return fmt.Errorf("open channel: %w", err)
	}

	msg := amqp.Publishing{
		ContentType:  "text/plain",
		DeliveryMode: amqp.Persistent,
		MessageId:    uuid.NewString(),
		Timestamp:    time.Now().UTC(),
		Body:         []byte(body),
	}

	if err := ch.PublishWithContext(ctx, "", p.cfg.Queue, false, false, msg); err != nil {
		p.reset()
		return fmt.Errorf("publish: %w", err)
	}

	p.log.Debug("message published", "queue", p.cfg.Queue, "message_id", msg.MessageId)
	return nil
}

// Ping opens the connection if needed, for readiness checks.
func (p *Publisher) Ping() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	_, err := p.channel()
	return err
}

func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.conn == nil {
		return nil
	}

	err := p.conn.Close()
	p.conn, p.ch = nil, nil
	if errors.Is(err, amqp.ErrClosed) {
		return nil
	}
	return err
}

func (p *Publisher) channel() (*amqp.Channel, error) {
	if p.ch != nil && !p.ch.IsClosed() && !p.conn.IsClosed() {
		return p.ch, nil
	}
	p.reset()

	conn, err := dial(p.cfg)
	if err != nil {
		return nil, fmt.Errorf("dial: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("channel: %w", err)
	}

	if err := declare(ch, p.cfg.Queue); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("declare queue: %w", err)
	}

	p.conn, p.ch = conn, ch
	return ch, nil
}

func (p *Publisher) reset() {
	if p.conn != nil {
		_ = p.conn.Close()
	}
	p.conn, p.ch = nil, nil
}

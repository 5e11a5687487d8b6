// Package notify turns channel resolution requests into greetings.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/kirill483/auth-notify/internal/channel"
	"github.com/kirill483/auth-notify/internal/ledger"
	"github.com/kirill483/auth-notify/internal/model"
	"github.com/kirill483/auth-notify/internal/queue"
	"github.com/kirill483/auth-notify/internal/resolver"
)

type Outcome string

const (
	OutcomeDelivered  Outcome = "delivered"
	OutcomeUnresolved Outcome = "unresolved"
	OutcomeSendFailed Outcome = "send_failed"
	OutcomeMalformed  Outcome = "malformed"
	// OutcomeRetry is recorded when the message goes back to the queue.
	OutcomeRetry Outcome = "retry"
)

const DefaultGreeting = "Hello, %s"

type handleResolver interface {
	Resolve(ctx context.Context, handle string) (resolver.Resolution, error)
}

type sender interface {
	SendText(ctx context.Context, chatID int64, text string) error
}

type recorder interface {
	Record(ctx context.Context, e ledger.Entry) error
}

type Dispatcher struct {
	resolver handleResolver
	sender   sender
	ledger   recorder
	greeting string
	log      *slog.Logger
	now      func() time.Time
}

type Option func(*Dispatcher) *Dispatcher

func WithResolver(r handleResolver) Option {
	return func(d *Dispatcher) *Dispatcher {
		d.resolver = r
		return d
	}
}

func WithSender(s sender) Option {
	return func(d *Dispatcher) *Dispatcher {
		d.sender = s
		return d
	}
}

// WithLedger is optional; without it outcomes are only logged.
func WithLedger(l recorder) Option {
	return func(d *Dispatcher) *Dispatcher {
		d.ledger = l
		return d
	}
}

func WithGreeting(format string) Option {
	return func(d *Dispatcher) *Dispatcher {
		d.greeting = format
		return d
	}
}

func WithLogger(log *slog.Logger) Option {
	return func(d *Dispatcher) *Dispatcher {
		d.log = log
		return d
	}
}

func NewDispatcher(opts ...Option) *Dispatcher {
	d := &Dispatcher{
		greeting: DefaultGreeting,
		log:      slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		d = opt(d)
	}

	if d.resolver == nil {
		panic("notify: resolver is required")
	}
	if d.sender == nil {
		panic("notify: sender is required")
	}

	return d
}

// Handle adapts Dispatch to the queue consumer: only transport failures are
// returned, everything else is settled and acknowledged.
func (d *Dispatcher) Handle(ctx context.Context, m queue.Message) error {
	_, err := d.Dispatch(ctx, m)
	return err
}

func (d *Dispatcher) Dispatch(ctx context.Context, m queue.Message) (Outcome, error) {
	log := d.log.With("message_id", m.ID)
	entry := ledger.Entry{MessageID: m.ID}

	req, err := model.ParseChannelResolutionRequest(string(m.Body))
	if err != nil {
		log.Warn("dropping malformed message", "error", err)
		entry.Outcome, entry.Error = string(OutcomeMalformed), err.Error()
		d.record(ctx, log, entry)
		return OutcomeMalformed, nil
	}

	entry.UserID, entry.Handle = req.UserID, req.Handle
	log = log.With("user_id", req.UserID, "handle", req.Handle)

	res, err := d.resolver.Resolve(ctx, req.Handle)
	if err != nil {
		return d.retry(ctx, log, entry, fmt.Errorf("resolve %q: %w", req.Handle, err))
	}
	if !res.Found {
		log.Info("telegram handle not resolved")
		entry.Outcome = string(OutcomeUnresolved)
		d.record(ctx, log, entry)
		return OutcomeUnresolved, nil
	}

	entry.ChatID = res.ChatID
	log = log.With("chat_id", res.ChatID, "source", res.Source)

	err = d.sender.SendText(ctx, res.ChatID, fmt.Sprintf(d.greeting, req.Handle))
	switch {
	case errors.Is(err, channel.ErrRejected):
		log.Warn("greeting rejected by telegram", "error", err)
		entry.Outcome, entry.Error = string(OutcomeSendFailed), err.Error()
		d.record(ctx, log, entry)
		return OutcomeSendFailed, nil
	case err != nil:
		return d.retry(ctx, log, entry, fmt.Errorf("send greeting: %w", err))
	}

	log.Info("greeting delivered")
	entry.Outcome = string(OutcomeDelivered)
	d.record(ctx, log, entry)
	return OutcomeDelivered, nil
}

func (d *Dispatcher) retry(ctx context.Context, log *slog.Logger, entry ledger.Entry, err error) (Outcome, error) {
	log.Warn("transient failure, message will be redelivered", "error", err)
	entry.Outcome, entry.Error = string(OutcomeRetry), err.Error()
	d.record(ctx, log, entry)
	return OutcomeRetry, err
}

func (d *Dispatcher) record(ctx context.Context, log *slog.Logger, entry ledger.Entry) {
	if d.ledger == nil || entry.MessageID == "" {
		return
	}

	entry.At = d.now().UTC()
	if err := d.ledger.Record(ctx, entry); err != nil {
		log.Error("failed to record delivery outcome", "error", err)
	}
}

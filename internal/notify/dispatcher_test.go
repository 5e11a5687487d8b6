package notify

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kirill483/auth-notify/internal/channel"
	"github.com/kirill483/auth-notify/internal/ledger"
	"github.com/kirill483/auth-notify/internal/queue"
	"github.com/kirill483/auth-notify/internal/resolver"
)

type mockResolver struct {
	ResolveFunc func(ctx context.Context, handle string) (resolver.Resolution, error)
}

func (m *mockResolver) Resolve(ctx context.Context, handle string) (resolver.Resolution, error) {
	return m.ResolveFunc(ctx, handle)
}

type sent struct {
	chatID int64
	text   string
}

type mockSender struct {
	SendTextFunc func(ctx context.Context, chatID int64, text string) error
	sent         []sent
}

func (m *mockSender) SendText(ctx context.Context, chatID int64, text string) error {
	m.sent = append(m.sent, sent{chatID: chatID, text: text})
	if m.SendTextFunc != nil {
		return m.SendTextFunc(ctx, chatID, text)
	}
	return nil
}

type mockLedger struct {
	entries []ledger.Entry
	err     error
}

func (m *mockLedger) Record(ctx context.Context, e ledger.Entry) error {
	m.entries = append(m.entries, e)
	return m.err
}

var fixedNow = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

func newTestDispatcher(r *mockResolver, s *mockSender, l *mockLedger, opts ...Option) *Dispatcher {
	all := append([]Option{
		WithResolver(r),
		WithSender(s),
		WithLedger(l),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	}, opts...)

	d := NewDispatcher(all...)
	d.now = func() time.Time { return fixedNow }
	return d
}

func found(chatID int64) *mockResolver {
	return &mockResolver{
		ResolveFunc: func(ctx context.Context, handle string) (resolver.Resolution, error) {
			return resolver.Resolution{Found: true, ChatID: chatID, Source: resolver.SourceDirect}, nil
		},
	}
}

func TestDispatch_Delivered(t *testing.T) {
	var resolved string
	r := &mockResolver{
		ResolveFunc: func(ctx context.Context, handle string) (resolver.Resolution, error) {
			resolved = handle
			return resolver.Resolution{Found: true, ChatID: 555, Source: resolver.SourceActivity}, nil
		},
	}
	s := &mockSender{}
	l := &mockLedger{}
	d := newTestDispatcher(r, s, l)

	outcome, err := d.Dispatch(t.Context(), queue.Message{ID: "m-1", Body: []byte("42,@alice")})

	require.NoError(t, err)
	assert.Equal(t, OutcomeDelivered, outcome)
	assert.Equal(t, "@alice", resolved)
	assert.Equal(t, []sent{{chatID: 555, text: "Hello, @alice"}}, s.sent)
	assert.Equal(t, []ledger.Entry{{
		MessageID: "m-1",
		UserID:    "42",
		Handle:    "@alice",
		Outcome:   "delivered",
		ChatID:    555,
		At:        fixedNow,
	}}, l.entries)
}

func TestDispatch_CustomGreeting(t *testing.T) {
	s := &mockSender{}
	d := newTestDispatcher(found(1), s, &mockLedger{}, WithGreeting("Привет, %s"))

	_, err := d.Dispatch(t.Context(), queue.Message{ID: "m-1", Body: []byte("42,bob")})

	require.NoError(t, err)
	require.Len(t, s.sent, 1)
	assert.Equal(t, "Привет, bob", s.sent[0].text)
}

func TestDispatch_Malformed(t *testing.T) {
	for _, body := range []string{"", "42", "42,", ",@alice", "1,2,3"} {
		t.Run(fmt.Sprintf("%q", body), func(t *testing.T) {
			r := &mockResolver{
				ResolveFunc: func(ctx context.Context, handle string) (resolver.Resolution, error) {
					t.Fatal("resolver must not be called")
					return resolver.Resolution{}, nil
				},
			}
			s := &mockSender{}
			l := &mockLedger{}
			d := newTestDispatcher(r, s, l)

			outcome, err := d.Dispatch(t.Context(), queue.Message{ID: "m-1", Body: []byte(body)})

			require.NoError(t, err)
			assert.Equal(t, OutcomeMalformed, outcome)
			assert.Empty(t, s.sent)
			require.Len(t, l.entries, 1)
			assert.Equal(t, "malformed", l.entries[0].Outcome)
			assert.NotEmpty(t, l.entries[0].Error)
		})
	}
}

func TestDispatch_Unresolved(t *testing.T) {
	r := &mockResolver{
		ResolveFunc: func(ctx context.Context, handle string) (resolver.Resolution, error) {
			return resolver.Resolution{}, nil
		},
	}
	s := &mockSender{}
	l := &mockLedger{}
	d := newTestDispatcher(r, s, l)

	outcome, err := d.Dispatch(t.Context(), queue.Message{ID: "m-1", Body: []byte("42,@ghost")})

	require.NoError(t, err)
	assert.Equal(t, OutcomeUnresolved, outcome)
	assert.Empty(t, s.sent)
	require.Len(t, l.entries, 1)
	assert.Equal(t, "unresolved", l.entries[0].Outcome)
}

func TestDispatch_SendRejected(t *testing.T) {
	s := &mockSender{
		SendTextFunc: func(ctx context.Context, chatID int64, text string) error {
			return fmt.Errorf("%w: bot was blocked by the user", channel.ErrRejected)
		},
	}
	l := &mockLedger{}
	d := newTestDispatcher(found(9), s, l)

	outcome, err := d.Dispatch(t.Context(), queue.Message{ID: "m-1", Body: []byte("42,@alice")})

	require.NoError(t, err)
	assert.Equal(t, OutcomeSendFailed, outcome)
	require.Len(t, l.entries, 1)
	assert.Equal(t, "send_failed", l.entries[0].Outcome)
	assert.Equal(t, int64(9), l.entries[0].ChatID)
	assert.Contains(t, l.entries[0].Error, "blocked")
}

func TestDispatch_SendTransportFailure(t *testing.T) {
	s := &mockSender{
		SendTextFunc: func(ctx context.Context, chatID int64, text string) error {
			return fmt.Errorf("%w: timeout", channel.ErrTransport)
		},
	}
	l := &mockLedger{}
	d := newTestDispatcher(found(9), s, l)

	outcome, err := d.Dispatch(t.Context(), queue.Message{ID: "m-1", Body: []byte("42,@alice")})

	require.ErrorIs(t, err, channel.ErrTransport)
	assert.Equal(t, OutcomeRetry, outcome)
	require.Len(t, l.entries, 1)
	assert.Equal(t, "retry", l.entries[0].Outcome)
}

func TestDispatch_ResolveTransportFailure(t *testing.T) {
	r := &mockResolver{
		ResolveFunc: func(ctx context.Context, handle string) (resolver.Resolution, error) {
			return resolver.Resolution{}, fmt.Errorf("lookup: %w", channel.ErrTransport)
		},
	}
	s := &mockSender{}
	l := &mockLedger{}
	d := newTestDispatcher(r, s, l)

	err := d.Handle(t.Context(), queue.Message{ID: "m-1", Body: []byte("42,@alice")})

	require.ErrorIs(t, err, channel.ErrTransport)
	assert.Empty(t, s.sent)
	require.Len(t, l.entries, 1)
	assert.Equal(t, "retry", l.entries[0].Outcome)
}

func TestDispatch_LedgerErrorIgnored(t *testing.T) {
	l := &mockLedger{err: errors.New("redis down")}
	d := newTestDispatcher(found(1), &mockSender{}, l)

	outcome, err := d.Dispatch(t.Context(), queue.Message{ID: "m-1", Body: []byte("42,@alice")})

	require.NoError(t, err)
	assert.Equal(t, OutcomeDelivered, outcome)
}

func TestDispatch_WithoutLedger(t *testing.T) {
	d := NewDispatcher(
		WithResolver(found(1)),
		WithSender(&mockSender{}),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)

	outcome, err := d.Dispatch(t.Context(), queue.Message{ID: "m-1", Body: []byte("42,@alice")})

	require.NoError(t, err)
	assert.Equal(t, OutcomeDelivered, outcome)
}

func TestNewDispatcher_PanicsWithoutDependencies(t *testing.T) {
	assert.Panics(t, func() { NewDispatcher(WithSender(&mockSender{})) })
	assert.Panics(t, func() { NewDispatcher(WithResolver(found(1))) })
}

func TestDispatch_RedeliveredMessage(t *testing.T) {
	s := &mockSender{}
	l := &mockLedger{}
	d := newTestDispatcher(found(77), s, l)
	m := queue.Message{ID: "m-1", Body: []byte("42,alice")}

	first, err := d.Dispatch(t.Context(), m)
	require.NoError(t, err)

	m.Redelivered = true
	second, err := d.Dispatch(t.Context(), m)
	require.NoError(t, err)

	assert.Equal(t, OutcomeDelivered, first)
	assert.Equal(t, OutcomeDelivered, second)
	assert.Equal(t, []sent{{chatID: 77, text: "Hello, alice"}, {chatID: 77, text: "Hello, alice"}}, s.sent)
	require.Len(t, l.entries, 2)
	for _, e := range l.entries {
		assert.Equal(t, "m-1", e.MessageID)
		assert.Equal(t, "delivered", e.Outcome)
	}
}

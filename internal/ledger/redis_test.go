package ledger

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	testdb "github.com/kirill483/auth-notify/internal/pkg/test/db"
)

var redisAddr string

func TestMain(m *testing.M) {
	res, close := testdb.StartRedis(context.Background())
	redisAddr = res.Addr

	code := m.Run()
	close()
	os.Exit(code)
}

func newTestRedis(t *testing.T, ttl time.Duration) *Redis {
	t.Helper()

	r := NewRedis(RedisConfig{Addr: redisAddr, TTL: ttl})
	t.Cleanup(func() { _ = r.Close() })
	require.NoError(t, r.rdb.FlushDB(t.Context()).Err())
	return r
}

func TestRedis_RecordAndGet(t *testing.T) {
	r := newTestRedis(t, time.Hour)
	at := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	err := r.Record(t.Context(), Entry{
		MessageID: "m1",
		UserID:    "7",
		Handle:    "@alice",
		Outcome:   "delivered",
		ChatID:    111,
		At:        at,
	})
	require.NoError(t, err)

	e, err := r.Get(t.Context(), "m1")
	require.NoError(t, err)

	assert.Equal(t, "m1", e.MessageID)
	assert.Equal(t, "7", e.UserID)
	assert.Equal(t, "@alice", e.Handle)
	assert.Equal(t, "delivered", e.Outcome)
	assert.Equal(t, int64(111), e.ChatID)
	assert.Equal(t, int64(1), e.Attempts)
	assert.Empty(t, e.Error)
	assert.True(t, at.Equal(e.At))
}

func TestRedis_RecordCountsAttempts(t *testing.T) {
	r := newTestRedis(t, time.Hour)

	require.NoError(t, r.Record(t.Context(), Entry{MessageID: "m1", Outcome: "retry", Error: "timeout"}))
	require.NoError(t, r.Record(t.Context(), Entry{MessageID: "m1", Outcome: "delivered", ChatID: 5}))

	e, err := r.Get(t.Context(), "m1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), e.Attempts)
	assert.Equal(t, "delivered", e.Outcome)
	assert.Empty(t, e.Error)
}

func TestRedis_RecordSetsTTL(t *testing.T) {
	r := newTestRedis(t, time.Minute)

	require.NoError(t, r.Record(t.Context(), Entry{MessageID: "m1", Outcome: "unresolved"}))

	ttl, err := r.rdb.TTL(t.Context(), keyPrefix+"m1").Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))
	assert.LessOrEqual(t, ttl, time.Minute)
}

func TestRedis_GetMissing(t *testing.T) {
	r := newTestRedis(t, time.Hour)

	_, err := r.Get(t.Context(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRedis_RecordRequiresID(t *testing.T) {
	r := newTestRedis(t, time.Hour)

	assert.Error(t, r.Record(t.Context(), Entry{Outcome: "delivered"}))
}

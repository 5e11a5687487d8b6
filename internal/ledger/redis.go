// Package ledger keeps a short-lived record of what happened to each queued
// notification.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "delivery:"

var ErrNotFound = errors.New("delivery not found")

// Entry is the latest known state of one message. Attempts counts every
// processing of the message, redeliveries included.
type Entry struct {
	MessageID string
	UserID    string
	Handle    string
	Outcome   string
	ChatID    int64
	Error     string
	Attempts  int64
	At        time.Time
}

type Redis struct {
	rdb *redis.Client
	ttl time.Duration
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

func NewRedis(cfg RedisConfig) *Redis {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	return &Redis{
		rdb: rdb,
		ttl: cfg.TTL,
	}
}

func (r *Redis) Ping(ctx context.Context) error {
	return r.rdb.Ping(ctx).Err()
}

// Record overwrites the entry's fields, bumps its attempt counter and restarts
// its expiry.
func (r *Redis) Record(ctx context.Context, e Entry) error {
	if e.MessageID == "" {
		return errors.New("message id is required")
	}

	at := e.At
	if at.IsZero() {
		at = time.Now()
	}

	key := keyPrefix + e.MessageID
	pipe := r.rdb.TxPipeline()
	pipe.HSet(ctx, key,
		"user_id", e.UserID,
		"handle", e.Handle,
		"outcome", e.Outcome,
		"chat_id", e.ChatID,
		"error", e.Error,
		"at", at.UTC().Format(time.RFC3339Nano),
	)
	pipe.HIncrBy(ctx, key, "attempts", 1)
	if r.ttl > 0 {
		pipe.Expire(ctx, key, r.ttl)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("record delivery in redis: %w", err)
	}

	return nil
}

func (r *Redis) Get(ctx context.Context, messageID string) (Entry, error) {
	vals, err := r.rdb.HGetAll(ctx, keyPrefix+messageID).Result()
	if err != nil {
		return Entry{}, fmt.Errorf("retrieve delivery from redis: %w", err)
	}
	if len(vals) == 0 {
		return Entry{}, ErrNotFound
	}

	e := Entry{
		MessageID: messageID,
		UserID:    vals["user_id"],
		Handle:    vals["handle"],
		Outcome:   vals["outcome"],
		Error:     vals["error"],
	}

	if e.ChatID, err = parseInt(vals["chat_id"]); err != nil {
		return Entry{}, fmt.Errorf("parse chat_id: %w", err)
	}
	if e.Attempts, err = parseInt(vals["attempts"]); err != nil {
		return Entry{}, fmt.Errorf("parse attempts: %w", err)
	}
	if raw := vals["at"]; raw != "" {
		if e.At, err = time.Parse(time.RFC3339Nano, raw); err != nil {
			return Entry{}, fmt.Errorf("parse at: %w", err)
		}
	}

	return e, nil
}

func (r *Redis) Close() error {
	return r.rdb.Close()
}

func parseInt(s string) (int64, error) {
	if s == "" {
		return 0, nil
	}
	return strconv.ParseInt(s, 10, 64)
}

// Package resolver maps a messaging handle to the chat id used for delivery.
//
// Nothing here is stored: the provider is asked every time, first through its
// profile lookup and then through the bot's recent inbound activity, which only
// covers users who wrote to the bot within the provider's retention window.
package resolver

import (
	"context"
	"errors"
	"fmt"

	"github.com/kirill483/auth-notify/internal/channel"
	"github.com/kirill483/auth-notify/internal/model"
)

type Source string

const (
	SourceDirect   Source = "direct"
	SourceActivity Source = "activity"
)

// Resolution is the answer for one handle. Found is false when neither lookup
// knows the handle; that is not an error.
type Resolution struct {
	Found  bool
	ChatID int64
	Source Source
}

type directory interface {
	LookupChat(ctx context.Context, username string) (int64, error)
	RecentActivity(ctx context.Context) ([]channel.Activity, error)
}

type Resolver struct {
	dir directory
}

func New(dir directory) *Resolver {
	return &Resolver{dir: dir}
}

// Resolve tries the direct lookup and falls back to the activity scan only when
// the provider says the handle is unknown. Transport failures from either step
// are returned as errors.
func (r *Resolver) Resolve(ctx context.Context, handle string) (Resolution, error) {
	username := Normalize(handle)
	if username == "" {
		return Resolution{}, nil
	}

	chatID, err := r.dir.LookupChat(ctx, username)
	if err == nil {
		return Resolution{Found: true, ChatID: chatID, Source: SourceDirect}, nil
	}
	if !errors.Is(err, channel.ErrNotFound) {
		return Resolution{}, fmt.Errorf("direct lookup: %w", err)
	}

	activity, err := r.dir.RecentActivity(ctx)
	if err != nil {
		return Resolution{}, fmt.Errorf("activity scan: %w", err)
	}

	for _, a := range activity {
		if a.Username == username {
			return Resolution{Found: true, ChatID: a.ChatID, Source: SourceActivity}, nil
		}
	}

	return Resolution{}, nil
}

// Normalize trims whitespace and strips a single leading "@".
func Normalize(handle string) string {
	return model.NormalizeTelegramHandle(handle)
}

// Package telegram adapts the Telegram Bot API to the channel vocabulary.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/kirill483/auth-notify/internal/channel"
)

// activityLimit is the most updates getUpdates hands out at once.
const activityLimit = 100

type botAPI interface {
	GetChat(config tgbotapi.ChatInfoConfig) (tgbotapi.Chat, error)
	GetUpdates(config tgbotapi.UpdateConfig) ([]tgbotapi.Update, error)
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

type Config struct {
	BotToken string
	// APIEndpoint defaults to tgbotapi.APIEndpoint.
	APIEndpoint string
	Timeout     time.Duration
}

// Client looks up chats, reads recent activity and sends text messages.
type Client struct {
	bot botAPI
	log *slog.Logger
}

// New connects to the Bot API. It fails when the token is rejected or the API is
// unreachable.
func New(cfg Config, log *slog.Logger) (*Client, error) {
	if cfg.BotToken == "" {
		return nil, errors.New("telegram bot token is required")
	}

	endpoint := cfg.APIEndpoint
	if endpoint == "" {
		endpoint = tgbotapi.APIEndpoint
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	if err := tgbotapi.SetLogger(newBotLogger(log)); err != nil {
		return nil, fmt.Errorf("set bot logger: %w", err)
	}

	bot, err := tgbotapi.NewBotAPIWithClient(cfg.BotToken, endpoint, &http.Client{Timeout: timeout})
	if err != nil {
		return nil, fmt.Errorf("connect bot: %w", classify(err, false))
	}

	log.Info("telegram bot connected", "username", bot.Self.UserName)
	return NewWithBot(bot, log), nil
}

func NewWithBot(bot botAPI, log *slog.Logger) *Client {
	return &Client{bot: bot, log: log}
}

// LookupChat resolves a public username (without "@") to its chat id.
func (c *Client) LookupChat(ctx context.Context, username string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, fmt.Errorf("%w: %w", channel.ErrTransport, err)
	}

	chat, err := c.bot.GetChat(tgbotapi.ChatInfoConfig{
		ChatConfig: tgbotapi.ChatConfig{SuperGroupUsername: "@" + username},
	})
	if err != nil {
		return 0, fmt.Errorf("telegram get chat: %w", classify(err, true))
	}

	return chat.ID, nil
}

// RecentActivity returns the senders of unconfirmed updates, oldest first. Offsets
// are never confirmed, so Telegram keeps the buffer for up to a day.
func (c *Client) RecentActivity(ctx context.Context) ([]channel.Activity, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", channel.ErrTransport, err)
	}

	cfg := tgbotapi.NewUpdate(0)
	cfg.Limit = activityLimit
	cfg.Timeout = 0

	updates, err := c.bot.GetUpdates(cfg)
	if err != nil {
		return nil, fmt.Errorf("telegram get updates: %w", classify(err, false))
	}

	activity := make([]channel.Activity, 0, len(updates))
	for _, u := range updates {
		m := u.Message
		if m == nil || m.From == nil || m.Chat == nil || m.From.UserName == "" {
			continue
		}

		activity = append(activity, channel.Activity{
			Username: m.From.UserName,
			ChatID:   m.Chat.ID,
		})
	}

	return activity, nil
}

// SendText delivers a plain text message.
func (c *Client) SendText(ctx context.Context, chatID int64, text string) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", channel.ErrTransport, err)
	}

	if _, err := c.bot.Send(tgbotapi.NewMessage(chatID, text)); err != nil {
		return fmt.Errorf("telegram send message: %w", classifySend(err))
	}

	return nil
}

// classify maps a Bot API failure onto the channel errors. Bad Request on a
// lookup is how Telegram answers for an unknown chat.
func classify(err error, lookup bool) error {
	var apiErr *tgbotapi.Error
	if !errors.As(err, &apiErr) {
		return fmt.Errorf("%w: %w", channel.ErrTransport, err)
	}

	if lookup && apiErr.Code == http.StatusBadRequest {
		return fmt.Errorf("%w: %s", channel.ErrNotFound, apiErr.Message)
	}

	return fmt.Errorf("%w: %d %s", channel.ErrTransport, apiErr.Code, apiErr.Message)
}

// classifySend treats client errors on send (blocked bot, deactivated user, chat
// gone) as a rejection. Rate limits and server errors stay transport failures.
func classifySend(err error) error {
	var apiErr *tgbotapi.Error
	if !errors.As(err, &apiErr) {
		return fmt.Errorf("%w: %w", channel.ErrTransport, err)
	}

	switch {
	case apiErr.Code == http.StatusBadRequest, apiErr.Code == http.StatusForbidden:
		return fmt.Errorf("%w: %s", channel.ErrRejected, strings.TrimSpace(apiErr.Message))
	default:
		return fmt.Errorf("%w: %d %s", channel.ErrTransport, apiErr.Code, apiErr.Message)
	}
}

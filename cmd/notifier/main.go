package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/kirill483/auth-notify/internal/config"
	"github.com/kirill483/auth-notify/internal/ledger"
	"github.com/kirill483/auth-notify/internal/notify"
	"github.com/kirill483/auth-notify/internal/pkg/logger"
	"github.com/kirill483/auth-notify/internal/queue"
	"github.com/kirill483/auth-notify/internal/resolver"
	"github.com/kirill483/auth-notify/internal/telegram"
)

func run(ctx context.Context) error {
	config.LoadDotEnv()
	cfg, err := config.LoadNotifier()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log := logger.Init(cfg.Log.Level, cfg.Log.Format)
	log.Info("starting notifier")

	tg, err := telegram.New(telegram.Config{
		BotToken:    cfg.Telegram.BotToken,
		APIEndpoint: cfg.Telegram.APIEndpoint,
		Timeout:     cfg.Telegram.HTTPTimeout,
	}, log.With("component", "telegram"))
	if err != nil {
		return fmt.Errorf("failed to connect telegram bot: %w", err)
	}

	opts := []notify.Option{
		notify.WithResolver(resolver.New(tg)),
		notify.WithSender(tg),
		notify.WithGreeting(cfg.Greeting),
		notify.WithLogger(log.With("component", "dispatcher")),
	}

	led := ledger.NewRedis(ledger.RedisConfig{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		TTL:      cfg.Redis.TTL,
	})
	defer led.Close()

	// the ledger is bookkeeping only, deliveries go on without it
	if err := led.Ping(ctx); err != nil {
		log.Warn("delivery ledger unavailable", "addr", cfg.Redis.Addr, "error", err)
	}
	opts = append(opts, notify.WithLedger(led))

	consumer := queue.NewConsumer(queue.Config{
		URL:   cfg.Rabbit.URL,
		Queue: cfg.Rabbit.Queue,
	}, notify.NewDispatcher(opts...), log.With("component", "consumer"))

	if err := consumer.Run(ctx); err != nil {
		return fmt.Errorf("consumer stopped: %w", err)
	}

	log.Info("notifier stopped")
	return nil
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		slog.Error("notifier terminated with error", "error", err)
		os.Exit(1)
	}
}

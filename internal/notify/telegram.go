// Package notify tells a human operator when the browser session needs
// attention.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const telegramRequestTimeout = 15 * time.Second

// Telegram sends challenge alerts to one chat through a bot.
type Telegram struct {
	token    string
	chatID   int64
	endpoint string
	logger   *slog.Logger

	mu  sync.Mutex
	bot *tgbotapi.BotAPI
}

type TelegramConfig struct {
	Token  string
	ChatID int64
	// Endpoint overrides the Bot API URL pattern (tgbotapi.APIEndpoint).
	Endpoint string
	Logger   *slog.Logger
}

func NewTelegram(cfg TelegramConfig) *Telegram {
	if cfg.Endpoint == "" {
		cfg.Endpoint = tgbotapi.APIEndpoint
	}
	return &Telegram{
		token:    cfg.Token,
		chatID:   cfg.ChatID,
		endpoint: cfg.Endpoint,
		logger:   cfg.Logger,
	}
}

// connect creates the bot on first use, so a misconfigured token only
// matters once a challenge actually happens.
func (t *Telegram) connect() (*tgbotapi.BotAPI, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.bot != nil {
		return t.bot, nil
	}
	bot, err := tgbotapi.NewBotAPIWithClient(t.token, t.endpoint, &http.Client{Timeout: telegramRequestTimeout})
	if err != nil {
		return nil, fmt.Errorf("telegram bot init: %w", err)
	}
	t.logger.Info("telegram notifier connected", "username", bot.Self.UserName)
	t.bot = bot
	return bot, nil
}

// NotifyChallenge implements delivery.ChallengeNotifier.
func (t *Telegram) NotifyChallenge(ctx context.Context, phase string) error {
	host, _ := os.Hostname()
	text := fmt.Sprintf("chatpilot on %s: security challenge during %q. Resolve it in the browser window; delivery is waiting.", host, phase)
	return t.Send(ctx, text)
}

// Send delivers text to the configured chat. The Bot API client has no
// context support, so ctx only bounds how long the caller waits.
func (t *Telegram) Send(ctx context.Context, text string) error {
	done := make(chan error, 1)
	go func() {
		bot, err := t.connect()
		if err != nil {
			done <- err
			return
		}
		if _, err := bot.Send(tgbotapi.NewMessage(t.chatID, text)); err != nil {
			done <- fmt.Errorf("telegram send: %w", err)
			return
		}
		done <- nil
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

package notify

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"FinPulse/internal/domain/models"
	"FinPulse/pkg/config"
)

// Telegram posts messages through the Bot API. The bot is created
// on first use so a bad token only affects this channel.
type Telegram struct {
	token    string
	chatID   string
	endpoint string
	client   *http.Client

	mu  sync.Mutex
	bot *tgbotapi.BotAPI
}

func NewTelegram(cfg config.TelegramConfig, client *http.Client) *Telegram {
	endpoint := cfg.APIEndpoint
	if endpoint == "" {
		endpoint = tgbotapi.APIEndpoint
	}
	if client == nil {
		client = &http.Client{Timeout: defaultTimeout}
	}
	return &Telegram{token: cfg.BotToken, chatID: cfg.ChatID, endpoint: endpoint, client: client}
}

func (t *Telegram) Name() string { return "telegram" }

// Send delivers free-form text, such as the digest, as plain text: it may
// carry model output that is not valid Markdown.
func (t *Telegram) Send(ctx context.Context, text string) error {
	return t.send(ctx, text, "")
}

// SendAlerts renders alerts as Markdown with every dynamic part escaped, so
// field names like change_pct cannot unbalance the entities.
func (t *Telegram) SendAlerts(ctx context.Context, alerts []models.Alert) error {
	return t.send(ctx, formatAlerts(alerts, escapeMarkdown), tgbotapi.ModeMarkdown)
}

func escapeMarkdown(s string) string { return tgbotapi.EscapeText(tgbotapi.ModeMarkdown, s) }

func (t *Telegram) send(ctx context.Context, text, parseMode string) error {
	done := make(chan error, 1)
	go func() {
		bot, err := t.api()
		if err != nil {
			done <- err
			return
		}
		msg := t.message(text)
		msg.ParseMode = parseMode
		_, err = bot.Send(msg)
		done <- err
	}()
	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("telegram send: %w", err)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (t *Telegram) api() (*tgbotapi.BotAPI, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.bot != nil {
		return t.bot, nil
	}
	bot, err := tgbotapi.NewBotAPIWithClient(t.token, t.endpoint, t.client)
	if err != nil {
		return nil, fmt.Errorf("telegram getMe: %w", err)
	}
	t.bot = bot
	return bot, nil
}

// message addresses a numeric chat id or an @channel username.
func (t *Telegram) message(text string) tgbotapi.MessageConfig {
	if id, err := strconv.ParseInt(t.chatID, 10, 64); err == nil {
		return tgbotapi.NewMessage(id, text)
	}
	return tgbotapi.NewMessageToChannel(t.chatID, text)
}

var _ AlertChannel = (*Telegram)(nil)

package alerts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/sawpanic/equityrun/internal/domain"
)

// TelegramConfig carries Bot API credentials. Empty token or chat ID leaves
// the channel unconfigured.
type TelegramConfig struct {
	BotToken string `yaml:"bot_token"`
	ChatID   string `yaml:"chat_id"`
}

// Telegram delivers alerts through the Telegram Bot API.
type Telegram struct {
	cfg     TelegramConfig
	baseURL string
	client  *http.Client
}

// NewTelegram creates the telegram channel.
func NewTelegram(cfg TelegramConfig) *Telegram {
	return &Telegram{
		cfg:     cfg,
		baseURL: "https://api.telegram.org",
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

func (t *Telegram) Name() string { return "telegram" }

func (t *Telegram) Enabled() bool {
	return t.cfg.BotToken != "" && t.cfg.ChatID != ""
}

// telegramText renders the message: a bold headline over the body lines,
// which carry the score, price, volume ratio and ISO-8601 detection time.
func telegramText(a domain.Alert) string {
	return fmt.Sprintf("🔔 *%s*\n%s", a.Title, a.Body)
}

// Send posts a sendMessage call. 429 and 5xx map to transient, other 4xx to
// permanent (bad token or chat).
func (t *Telegram) Send(ctx context.Context, a domain.Alert) error {
	if !t.Enabled() {
		return fmt.Errorf("%w: telegram", domain.ErrChannelUnconfigured)
	}

	payload, err := json.Marshal(map[string]string{
		"chat_id": t.cfg.ChatID,
		"text":    telegramText(a),
	})
	if err != nil {
		return fmt.Errorf("%w: marshal telegram payload: %v", domain.ErrChannelPermanent, err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", t.baseURL, t.cfg.BotToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("%w: build telegram request: %v", domain.ErrChannelPermanent, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: telegram: %v", domain.ErrChannelTransient, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		return nil
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return fmt.Errorf("%w: telegram status %d", domain.ErrChannelTransient, resp.StatusCode)
	default:
		return fmt.Errorf("%w: telegram status %d", domain.ErrChannelPermanent, resp.StatusCode)
	}
}

package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
)

const DefaultTelegramAPIURL = "https://api.telegram.org"

var ErrTelegramConfig = errors.New("telegram bot token and chat id are required")

type TelegramConfig struct {
	APIURL  string
	Token   string
	ChatID  string
	Timeout time.Duration
}

type Telegram struct {
	client   *http.Client
	endpoint string
	chatID   string
}

func NewTelegram(cfg TelegramConfig) (*Telegram, error) {
	if cfg.Token == "" || cfg.ChatID == "" {
		return nil, ErrTelegramConfig
	}
	if cfg.APIURL == "" {
		cfg.APIURL = DefaultTelegramAPIURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Telegram{
		client:   &http.Client{Timeout: cfg.Timeout},
		endpoint: strings.TrimRight(cfg.APIURL, "/") + "/bot" + cfg.Token + "/sendMessage",
		chatID:   cfg.ChatID,
	}, nil
}

var markdownEscaper = strings.NewReplacer("_", `\_`, "*", `\*`, "`", "\\`", "[", `\[`)

// EscapeMarkdown makes s safe to embed in a Markdown message outside any entity.
// Interpolated device, interface and error text must go through it.
func EscapeMarkdown(s string) string {
	return markdownEscaper.Replace(s)
}

type sendMessageRequest struct {
	ChatID    string `json:"chat_id"`
	Text      string `json:"text"`
	ParseMode string `json:"parse_mode"`
}

func (t *Telegram) Notify(ctx context.Context, text string) error {
	body, err := json.Marshal(sendMessageRequest{ChatID: t.chatID, Text: text, ParseMode: "Markdown"})
	if err != nil {
		return backoff.Permanent(err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, bytes.NewReader(body))
	if err != nil {
		return backoff.Permanent(err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("telegram send: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return fmt.Errorf("telegram send: status %d", resp.StatusCode)
	default:
		return backoff.Permanent(fmt.Errorf("telegram send: status %d", resp.StatusCode))
	}
}

func (t *Telegram) Close() error {
	t.client.CloseIdleConnections()
	return nil
}

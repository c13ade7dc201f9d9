package notify

import (
	"fmt"
	"log/slog"
	"strings"
)

const (
	ModeLog      = "log"
	ModeTelegram = "telegram"
	ModeNATS     = "nats"
)

type Config struct {
	Mode           string
	TelegramAPIURL string
	TelegramToken  string
	TelegramChatID string
	NATSURL        string
	NATSSubject    string
	ClientName     string
}

func New(cfg Config, logger *slog.Logger) (Notifier, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Mode)) {
	case "", ModeLog:
		return NewLogNotifier(logger), nil
	case ModeTelegram:
		return NewTelegram(TelegramConfig{APIURL: cfg.TelegramAPIURL, Token: cfg.TelegramToken, ChatID: cfg.TelegramChatID})
	case ModeNATS:
		return NewNATSPublisher(cfg.NATSURL, cfg.NATSSubject, cfg.ClientName, logger)
	default:
		return nil, fmt.Errorf("unsupported notify mode %q", cfg.Mode)
	}
}

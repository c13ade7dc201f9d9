// Package notify delivers operator messages to a chat or message bus.
package notify

import (
	"context"
	"log/slog"
)

// Notifier delivers one message synchronously. Implementations report transient
// failures as plain errors and wrap permanent ones with backoff.Permanent.
type Notifier interface {
	Notify(ctx context.Context, text string) error
	Close() error
}

// Publisher hands a message off without blocking the caller.
type Publisher interface {
	Publish(text string)
}

// LogNotifier writes messages to the log. It is the default when no channel is configured.
type LogNotifier struct {
	logger *slog.Logger
}

func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Notify(_ context.Context, text string) error {
	n.logger.Info("notification", "text", text)
	return nil
}

func (n *LogNotifier) Close() error { return nil }

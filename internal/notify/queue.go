package notify

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"
	"golang.org/x/time/rate"
)

type QueueOptions struct {
	Size       int
	Retries    int
	RetryDelay time.Duration
	// RatePerSecond caps deliveries; zero or less disables the limit.
	RatePerSecond float64
	DrainTimeout  time.Duration
}

// Queue decouples producers from a slow Notifier. Publish never blocks: a message that
// does not fit in the buffer is dropped and logged.
type Queue struct {
	logger   *slog.Logger
	notifier Notifier
	ch       chan string
	limiter  *rate.Limiter
	opts     QueueOptions

	dropped   atomic.Uint64
	delivered atomic.Uint64
	failed    atomic.Uint64
}

func NewQueue(notifier Notifier, opts QueueOptions, logger *slog.Logger) *Queue {
	if opts.Size <= 0 {
		opts.Size = 256
	}
	if opts.Retries <= 0 {
		opts.Retries = 1
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = time.Second
	}
	if opts.DrainTimeout <= 0 {
		opts.DrainTimeout = 5 * time.Second
	}
	limiter := rate.NewLimiter(rate.Inf, 1)
	if opts.RatePerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.RatePerSecond), 1)
	}
	return &Queue{
		logger:   logger,
		notifier: notifier,
		ch:       make(chan string, opts.Size),
		limiter:  limiter,
		opts:     opts,
	}
}

func (q *Queue) Publish(text string) {
	select {
	case q.ch <- text:
	default:
		q.dropped.Add(1)
		q.logger.Warn("notification queue full, message dropped", "size", cap(q.ch))
	}
}

// Run delivers queued messages until ctx is done, then drains what is left within
// the configured drain timeout.
func (q *Queue) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			q.drain()
			return nil
		case text := <-q.ch:
			if err := q.limiter.Wait(ctx); err != nil {
				q.drain(text)
				return nil
			}
			q.deliver(ctx, text)
		}
	}
}

// drain delivers pending messages, first included, ignoring the rate limit.
func (q *Queue) drain(pending ...string) {
	ctx, cancel := context.WithTimeout(context.Background(), q.opts.DrainTimeout)
	defer cancel()
	for _, text := range pending {
		q.deliver(ctx, text)
	}
	for {
		select {
		case text := <-q.ch:
			q.deliver(ctx, text)
		default:
			return
		}
		if ctx.Err() != nil {
			if n := len(q.ch); n > 0 {
				q.logger.Warn("notifications abandoned on shutdown", "count", n)
			}
			return
		}
	}
}

func (q *Queue) deliver(ctx context.Context, text string) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = q.opts.RetryDelay
	bo.Multiplier = 2
	bo.RandomizationFactor = 0
	bo.MaxInterval = 8 * q.opts.RetryDelay

	attempt := 0
	operation := func() (struct{}, error) {
		attempt++
		return struct{}{}, q.notifier.Notify(ctx, text)
	}
	notify := func(err error, next time.Duration) {
		q.logger.Warn("notification delivery failed", "attempt", attempt, "of", q.opts.Retries, "retry_in", next, "error", err)
	}

	_, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(bo),
		backoff.WithMaxTries(uint(q.opts.Retries)),
		backoff.WithNotify(notify),
	)
	if err != nil {
		q.failed.Add(1)
		level := slog.LevelError
		if errors.Is(err, context.Canceled) {
			level = slog.LevelWarn
		}
		q.logger.Log(ctx, level, "notification not delivered", "attempts", attempt, "error", err)
		return
	}
	q.delivered.Add(1)
}

type QueueStats struct {
	Pending   int    `json:"pending"`
	Delivered uint64 `json:"delivered"`
	Failed    uint64 `json:"failed"`
	Dropped   uint64 `json:"dropped"`
}

func (q *Queue) Stats() QueueStats {
	return QueueStats{
		Pending:   len(q.ch),
		Delivered: q.delivered.Load(),
		Failed:    q.failed.Load(),
		Dropped:   q.dropped.Load(),
	}
}

package agent

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"
)

func (a *Agent) run(ctx context.Context) error {
	// The queue outlives the scheduler so alerts from the last cycle still go out.
	queueCtx, stopQueue := context.WithCancel(context.WithoutCancel(ctx))
	queueDone := make(chan struct{})
	go func() {
		defer close(queueDone)
		_ = a.queue.Run(queueCtx)
	}()
	defer func() {
		stopQueue()
		<-queueDone
	}()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return a.scheduler.Run(gctx)
	})
	g.Go(func() error {
		return a.runHealthLoop(gctx)
	})
	if a.api != nil {
		g.Go(func() error {
			if err := a.api.Run(gctx, a.cfg.APIListenAddr); err != nil {
				return fmt.Errorf("api: %w", err)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func (a *Agent) shutdown(ctx context.Context) {
	if err := a.sink.Close(ctx); err != nil {
		a.logger.Warn("stream sink close failed", "error", err)
	}
	a.health.SetStreamConnected(false)
	if err := a.notifier.Close(); err != nil {
		a.logger.Warn("notifier close failed", "error", err)
	}
}

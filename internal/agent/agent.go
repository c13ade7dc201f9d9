package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"routerwatch/internal/accumulator"
	"routerwatch/internal/api"
	"routerwatch/internal/collector"
	"routerwatch/internal/config"
	"routerwatch/internal/inventory"
	"routerwatch/internal/model"
	"routerwatch/internal/notify"
	"routerwatch/internal/rollover"
	"routerwatch/internal/snmp"
	"routerwatch/internal/store"
	"routerwatch/internal/stream"
	"routerwatch/internal/system"
)

type Agent struct {
	cfg       config.Config
	logger    *slog.Logger
	registry  *inventory.Registry
	store     *store.Store
	notifier  notify.Notifier
	queue     *notify.Queue
	rollover  *rollover.Manager
	scheduler *collector.Scheduler
	sink      stream.Sink
	api       *api.Server
	sampler   *system.Sampler
	health    *HealthStatus
}

func New(cfg config.Config, logger *slog.Logger) (*Agent, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	registry, err := inventory.Load(cfg.DevicesFile)
	if err != nil {
		return nil, fmt.Errorf("device inventory: %w", err)
	}
	devices := registry.Devices()
	st := store.New(cfg.DataDir, logger)

	notifier, err := notify.New(notify.Config{
		Mode:           cfg.NotifyMode,
		TelegramAPIURL: cfg.TelegramAPIURL,
		TelegramToken:  cfg.TelegramToken,
		TelegramChatID: cfg.TelegramChatID,
		NATSURL:        cfg.NATSURL,
		NATSSubject:    cfg.NATSSubject,
		ClientName:     "routerwatch-" + cfg.CollectorID,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("notifier: %w", err)
	}
	queue := notify.NewQueue(notifier, notify.QueueOptions{
		Size:          cfg.NotifyQueueSize,
		Retries:       cfg.NotifyRetries,
		RetryDelay:    cfg.NotifyRetryDelay,
		RatePerSecond: cfg.NotifyRate,
	}, logger)

	tlsCfg, err := cfg.TLSConfig()
	if err != nil {
		return nil, fmt.Errorf("tls config: %w", err)
	}
	sink, err := stream.NewSinkFromConfig(stream.Config{
		Mode:         cfg.StreamMode,
		GRPCAddr:     cfg.BackendGRPCAddr,
		GRPCMethod:   cfg.GRPCCycleStreamMethod,
		WebSocketURL: cfg.BackendWSURL,
		Token:        cfg.BackendToken,
		WriteTimeout: cfg.WebSocketWriteTimeout,
		PingInterval: cfg.WebSocketPingInterval,
	}, tlsCfg, logger)
	if err != nil {
		return nil, fmt.Errorf("stream sink: %w", err)
	}

	client := snmp.NewClient(snmp.Options{
		Port:       uint16(cfg.SNMPPort),
		Timeout:    cfg.SNMPTimeout,
		Retries:    cfg.SNMPRetries,
		RetryDelay: cfg.SNMPRetryDelay,
		MaxOids:    cfg.SNMPMaxOids,
	}, logger)

	acc := accumulator.New(store.LoadJSON(st, st.AccumulatorPath(), model.DailyAccumulator{}), devices)
	state := store.LoadJSON(st, st.ScriptStatePath(), model.ScriptState{})
	roll := rollover.NewManager(st, devices, acc, state, queue, loc, logger)

	health := NewHealthStatus(queue)
	wrappedSink := &healthSink{sink: sink, health: health}
	scheduler := collector.NewScheduler(logger, collector.SchedulerConfig{
		Interval:     cfg.PollInterval,
		ErrorBackoff: cfg.ErrorBackoff,
		Workers:      cfg.Workers,
		CollectorID:  cfg.CollectorID,
	}, collector.Deps{
		Devices:     devices,
		Poller:      collector.NewDeviceCollector(client, loc, logger),
		Store:       st,
		Accumulator: acc,
		Rollover:    roll,
		Alerts:      queue,
		Sink:        wrappedSink,
		Observer:    health,
	})

	a := &Agent{
		cfg:       cfg,
		logger:    logger,
		registry:  registry,
		store:     st,
		notifier:  notifier,
		queue:     queue,
		rollover:  roll,
		scheduler: scheduler,
		sink:      wrappedSink,
		health:    health,
	}
	if cfg.APIListenAddr != "" {
		a.api = api.New(st, registry, scheduler, health, []byte(cfg.APIJWTSecret), logger)
	}
	if sampler, err := system.NewSampler(context.Background(), cfg.DataDir); err != nil {
		logger.Warn("self sampling disabled", "error", err)
	} else {
		a.sampler = sampler
	}
	return a, nil
}

func (a *Agent) Run(ctx context.Context) error {
	a.logger.Info("starting routerwatch",
		"collector_id", a.cfg.CollectorID,
		"version", config.Version,
		"devices", a.registry.Len(),
		"data_dir", a.cfg.DataDir,
		"notify_mode", a.cfg.NotifyMode,
		"stream_mode", a.cfg.StreamMode,
	)
	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()

	runErrCh := make(chan error, 1)
	go func() {
		runErrCh <- a.run(runCtx)
	}()

	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	var runErr error
	select {
	case runErr = <-runErrCh:
	case sig := <-sigCh:
		a.logger.Info("shutdown signal received, starting graceful shutdown", "signal", sig.String(), "timeout", a.cfg.ShutdownTimeout)
		cancelRun()

		graceTimer := time.NewTimer(a.cfg.ShutdownTimeout)
		defer graceTimer.Stop()

		select {
		case runErr = <-runErrCh:
		case sig2 := <-sigCh:
			a.logger.Warn("second signal received, forcing immediate shutdown", "signal", sig2.String())
			runErr = context.Canceled
		case <-graceTimer.C:
			a.logger.Warn("graceful shutdown timeout reached, forcing shutdown", "timeout", a.cfg.ShutdownTimeout)
			runErr = context.DeadlineExceeded
		}
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer cancelShutdown()
	a.shutdown(shutdownCtx)

	if runErr != nil && !errors.Is(runErr, context.Canceled) && !errors.Is(runErr, context.DeadlineExceeded) {
		return runErr
	}
	a.logger.Info("routerwatch stopped")
	return nil
}

// Rollover reconciles day and month boundaries once and waits for the resulting
// notifications. It must not run next to a live collector on the same data dir.
func (a *Agent) Rollover(ctx context.Context) error {
	return a.withQueue(ctx, func() error {
		return a.rollover.Reconcile(time.Now())
	})
}

// SendReport resends the monthly report of month for every device.
func (a *Agent) SendReport(ctx context.Context, month string) error {
	return a.withQueue(ctx, func() error {
		return a.rollover.RegenerateReports(month)
	})
}

func (a *Agent) withQueue(ctx context.Context, fn func() error) error {
	qctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = a.queue.Run(qctx)
	}()
	err := fn()
	cancel()
	<-done
	if cerr := a.notifier.Close(); cerr != nil {
		a.logger.Warn("notifier close failed", "error", cerr)
	}
	return err
}

func BuildLogger(cfg config.Config) *slog.Logger {
	level := slog.LevelInfo
	switch cfg.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	hOpts := &slog.HandlerOptions{Level: level, ReplaceAttr: replaceLevel}
	if cfg.LogJSON {
		return slog.New(slog.NewJSONHandler(os.Stdout, hOpts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, hOpts))
}

func replaceLevel(_ []string, attr slog.Attr) slog.Attr {
	if attr.Key != slog.LevelKey {
		return attr
	}
	if lvl, ok := attr.Value.Any().(slog.Level); ok && lvl >= collector.LevelCritical {
		attr.Value = slog.StringValue("CRITICAL")
	}
	return attr
}

type healthSink struct {
	sink   stream.Sink
	health *HealthStatus
}

func (s *healthSink) SendCycle(ctx context.Context, snap model.CycleSnapshot) error {
	err := s.sink.SendCycle(ctx, snap)
	if err != nil {
		s.health.SetStreamConnected(false)
		return err
	}
	s.health.SetStreamConnected(true)
	return nil
}

func (s *healthSink) Close(ctx context.Context) error {
	return s.sink.Close(ctx)
}

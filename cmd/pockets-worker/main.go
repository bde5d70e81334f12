package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"pockets/internal/backend"
	"pockets/internal/cli"
	"pockets/internal/config"
	"pockets/internal/core"
	"pockets/internal/ledger"
	"pockets/internal/log"
	"pockets/internal/notify"
	"pockets/internal/worker"
)

func main() {
	cli.LoadEnvFile()

	cfg, err := cli.LoadAndValidateConfig()
	if err != nil {
		slog.Error("Configuration validation failed", "error", err)
		os.Exit(1)
	}
	logger := cli.SetupLogger(cfg.LogLevel, log.ComponentWorker)
	logger.Info("Starting pockets-worker")

	if err := run(cfg, logger); err != nil {
		logger.Error("Worker failed", log.FieldError, err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *log.Logger) error {
	factory := backend.NewFactory(logger.WithComponent(log.ComponentBackend).Slog())

	bcfg, storeRes, err := cli.OpenStore(context.Background(), factory, cfg)
	if err != nil {
		return err
	}
	if storeRes.Cleanup != nil {
		defer storeRes.Cleanup()
	}
	if bcfg.Type == backend.MemoryBackend {
		logger.Warn("Memory backend is private to this process; the worker will not see server writes")
	}

	exporter, err := factory.CreateExporter(context.Background(), bcfg)
	if err != nil {
		return err
	}

	amqpClient, err := factory.CreateMessaging(context.Background(), bcfg)
	if err != nil {
		return err
	}
	var dispatcher notify.Dispatcher = notify.LogDispatcher{Logger: logger.WithComponent(log.ComponentNotify).Slog()}
	if amqpClient != nil {
		defer amqpClient.Close()
		dispatcher = amqpClient
	}

	// The worker only reads; the server owns writes to the shared store.
	store := ledger.New(storeRes.Store, ledger.WithLogger(logger.WithComponent(log.ComponentLedger).Slog()))
	exports := worker.NewExportWorker(store, exporter, exporter)
	reminders := notify.NewService(storeRes.Store, store, dispatcher, logger.WithComponent(log.ComponentNotify).Slog())
	defer reminders.Close()

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, nil)

	logger.Info("Performing startup sync check...")
	if err := exports.StartupSyncCheck(ctx); err != nil {
		logger.Error("Failed startup sync check", log.FieldError, err)
	}

	g, gctx := errgroup.WithContext(ctx)
	if amqpClient != nil {
		g.Go(func() error {
			err := amqpClient.ConsumeLedgerEvents(gctx, func(ctx context.Context, ev core.LedgerEvent) error {
				err := exports.HandleLedgerEvent(ctx, ev)
				if err != nil {
					log.NewStructuredLogger(logger).LogError(ctx, "Export failed, message will be retried", err, log.OpExport,
						log.LogFields{log.FieldEventKind: string(ev.Kind), log.FieldVersion: ev.Version})
				}
				return err
			})
			if err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("consume ledger events: %w", err)
			}
			return nil
		})
	} else {
		logger.Info("Skipping AMQP message consumption - relying on periodic sync")
	}
	g.Go(func() error {
		return every(gctx, cfg.SyncInterval, func(ctx context.Context) {
			if err := exports.ProcessPending(ctx); err != nil {
				logger.Error("Periodic sync failed", log.FieldError, err)
			}
		})
	})
	g.Go(func() error {
		check := func(ctx context.Context) {
			if err := checkReminders(ctx, store, reminders); err != nil {
				logger.Error("Bill reminder check failed", log.FieldError, err)
			}
		}
		check(gctx)
		return every(gctx, cfg.ReminderInterval, check)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	cli.WaitForShutdown(ctx, done)
	logger.Info("Worker shutdown complete", "exported", exports.Exported())
	return nil
}

// checkReminders reloads the ledger and the reminder settings, which the
// server may have changed, then dispatches due reminders.
func checkReminders(ctx context.Context, store *ledger.Store, reminders *notify.Service) error {
	if err := store.Load(ctx); err != nil {
		return err
	}
	if err := reminders.Initialize(ctx); err != nil {
		return err
	}
	_, err := reminders.CheckUpcoming(ctx, time.Now())
	return err
}

// every runs fn on each tick of interval until ctx is cancelled.
func every(ctx context.Context, interval time.Duration, fn func(context.Context)) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			fn(ctx)
		}
	}
}

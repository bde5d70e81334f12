package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"pockets/internal/backend"
	"pockets/internal/cli"
	"pockets/internal/config"
	apphttp "pockets/internal/http"
	"pockets/internal/ledger"
	"pockets/internal/log"
	"pockets/internal/notify"
)

func main() {
	cli.LoadEnvFile()

	cfg, err := cli.LoadAndValidateConfig()
	if err != nil {
		slog.Error("Configuration validation failed", "error", err)
		os.Exit(1)
	}
	logger := cli.SetupLogger(cfg.LogLevel, log.ComponentApp)

	if err := run(cfg, logger); err != nil {
		logger.Error("Server failed", log.FieldError, err)
		os.Exit(1)
	}
	logger.Info("Server stopped gracefully")
}

func run(cfg *config.Config, logger *log.Logger) error {
	factory := backend.NewFactory(logger.WithComponent(log.ComponentBackend).Slog())

	bcfg, storeRes, err := cli.OpenStore(context.Background(), factory, cfg)
	if err != nil {
		return err
	}
	if storeRes.Cleanup != nil {
		defer func() {
			if err := storeRes.Cleanup(); err != nil {
				logger.Error("Failed to close store", log.FieldError, err)
			}
		}()
	}

	notifier := apphttp.RequestNotifier{
		Next: notify.LogNotifier{Logger: logger.WithComponent(log.ComponentNotify).Slog()},
	}
	opts := []ledger.Option{
		ledger.WithLogger(logger.WithComponent(log.ComponentLedger).Slog()),
		ledger.WithNotifier(notifier),
	}

	var dispatcher notify.Dispatcher = notify.LogDispatcher{Logger: logger.WithComponent(log.ComponentNotify).Slog()}
	amqpClient, err := factory.CreateMessaging(context.Background(), bcfg)
	switch {
	case err != nil:
		logger.Warn("Failed to initialize AMQP client, continuing without events", log.FieldError, err)
	case amqpClient != nil:
		defer amqpClient.Close()
		opts = append(opts, ledger.WithPublisher(amqpClient))
		dispatcher = amqpClient
	}

	store := ledger.New(storeRes.Store, opts...)
	if err := store.Load(context.Background()); err != nil {
		return fmt.Errorf("load ledger: %w", err)
	}

	reminders := notify.NewService(storeRes.Store, store, dispatcher, logger.WithComponent(log.ComponentNotify).Slog())
	if err := reminders.Initialize(context.Background()); err != nil {
		return fmt.Errorf("initialize notifications: %w", err)
	}
	defer reminders.Close()

	srv := apphttp.NewServer(":"+cfg.Port, store, apphttp.Options{
		Currency:        cfg.Currency,
		RateLimit:       cfg.RateLimit,
		WriteRateLimit:  cfg.WriteRateLimit,
		UpcomingDays:    cfg.UpcomingDays,
		ReportCacheSize: cfg.ReportCacheSize,
		Logger:          logger,
		Ready:           storeRes.Ready,
		Settings:        reminders,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Starting pockets server",
			"port", cfg.Port,
			"backend", bcfg.Type,
			"amqp_enabled", amqpClient != nil)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen on %s: %w", srv.Addr, err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutdown signal received")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown: %w", err)
		}
		return nil
	})
	return g.Wait()
}

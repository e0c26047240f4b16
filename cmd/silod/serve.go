package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/groblegark/ksilo/internal/backup"
	"github.com/groblegark/ksilo/internal/config"
	"github.com/groblegark/ksilo/internal/derived"
	"github.com/groblegark/ksilo/internal/eventlog"
	"github.com/groblegark/ksilo/internal/events"
	"github.com/groblegark/ksilo/internal/notify"
	"github.com/groblegark/ksilo/internal/server"
	"github.com/groblegark/ksilo/internal/sessions"
	"github.com/groblegark/ksilo/internal/store/postgres"
	"github.com/groblegark/ksilo/internal/trigger"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:     "serve",
	Short:   "Start the silo HTTP server",
	GroupID: "system",
	// Override PersistentPreRunE so we don't create a client connection.
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

		// Load configuration.
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		// Connect to Postgres.
		store, err := postgres.New(cfg.DatabaseURL)
		if err != nil {
			return err
		}

		// Create event publisher.
		var publisher events.Publisher
		if cfg.NATSURL != "" {
			pub, err := events.NewNATSPublisher(cfg.NATSURL)
			if err != nil {
				store.Close()
				return err
			}
			publisher = pub
			logger.Info("event mirror enabled", "nats_url", cfg.NATSURL)
		} else {
			publisher = &events.NoopPublisher{}
			logger.Info("event mirror disabled (SILO_NATS_URL not set)")
		}

		// Load the notification template catalog.
		catalog := notify.DefaultCatalog()
		if cfg.TemplatesPath != "" {
			catalog, err = notify.LoadCatalog(cfg.TemplatesPath)
			if err != nil {
				publisher.Close()
				store.Close()
				return err
			}
			logger.Info("template catalog loaded", "path", cfg.TemplatesPath)
		}

		// Register trigger handlers. The registry freezes once the
		// dispatcher starts.
		registry := trigger.NewRegistry()
		if err := derived.NewCommentsOnProfile(logger).Register(registry); err != nil {
			publisher.Close()
			store.Close()
			return err
		}
		var notifier notify.Notifier = &notify.LogNotifier{Logger: logger}
		if cfg.NotifyMode == "off" {
			notifier = notify.NoopNotifier{}
			logger.Info("notification delivery disabled (SILO_NOTIFY_MODE=off)")
		}
		replies := notify.NewReplySender(notifier, catalog, logger, cfg.HandlerTimeout)
		if err := replies.Register(registry); err != nil {
			publisher.Close()
			store.Close()
			return err
		}

		// Handlers write through a mirroring store so derived copies show up
		// on the bus alongside the user writes that caused them.
		dispatcher := trigger.NewDispatcher(registry,
			events.NewStoreMirror(store, publisher, logger), logger,
			cfg.DispatchWorkers, cfg.DispatchQueue, cfg.HandlerTimeout)

		eventLog := eventlog.NewService(store, logger)

		// Track open sessions and close them after idling past the
		// configured threshold.
		tracker := sessions.New(logger)
		if cfg.SessionIdleClose > 0 {
			tracker.StartSweeper(&sessions.SweepConfig{
				IdleThreshold: cfg.SessionIdleClose,
				OnIdle: func(sessionKey string) {
					ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
					defer cancel()
					if err := eventLog.CloseSession(ctx, sessionKey); err != nil {
						logger.Error("failed to close idle session", "session", sessionKey, "err", err)
					}
				},
			})
		}

		// Start the backup scheduler if any destinations are configured.
		var scheduler *backup.Scheduler
		if cfg.BackupInterval > 0 {
			var dests []backup.Destination

			if cfg.BackupS3Bucket != "" {
				s3Dest, err := backup.NewS3Destination(
					context.Background(),
					cfg.BackupS3Bucket,
					cfg.BackupS3Key,
					cfg.BackupS3Region,
					cfg.BackupS3Endpoint,
				)
				if err != nil {
					logger.Error("failed to create S3 backup destination", "err", err)
				} else {
					dests = append(dests, s3Dest)
					logger.Info("backup S3 destination enabled", "bucket", cfg.BackupS3Bucket, "key", cfg.BackupS3Key)
				}
			}

			if cfg.BackupPath != "" {
				dests = append(dests, backup.NewFileDestination(cfg.BackupPath))
				logger.Info("backup file destination enabled", "path", cfg.BackupPath)
			}

			if len(dests) > 0 {
				scheduler = backup.NewScheduler(store, dests, cfg.BackupInterval, logger)
				scheduler.Start()
				logger.Info("backup scheduler started", "interval", cfg.BackupInterval)
			}
		}

		// With bus dispatch, trigger work is driven by mirrored writes from
		// NATS instead of the local write path, so another node (or this one)
		// can accept writes while this one runs the handlers.
		var feedCancel context.CancelFunc
		feedDone := make(chan struct{})
		localDispatcher := dispatcher
		if cfg.BusDispatch {
			localDispatcher = nil
			busSub, err := events.NewNATSSubscriber(cfg.NATSURL)
			if err != nil {
				publisher.Close()
				store.Close()
				return err
			}
			var feedCtx context.Context
			feedCtx, feedCancel = context.WithCancel(context.Background())
			go func() {
				defer close(feedDone)
				if err := trigger.NewBusFeed(dispatcher, logger).Run(feedCtx, busSub); err != nil {
					logger.Error("bus feed error", "err", err)
				}
				busSub.Close()
			}()
		}

		siloServer := server.NewSiloServer(server.Options{
			Store:      store,
			Publisher:  publisher,
			Dispatcher: localDispatcher,
			EventLog:   eventLog,
			Replies:    replies,
			Tracker:    tracker,
			Logger:     logger,
		})

		httpServer := &http.Server{
			Addr:    cfg.HTTPAddr,
			Handler: siloServer.NewHTTPHandler(cfg.AuthToken, cfg.AdminToken),
		}

		go func() {
			logger.Info("HTTP server listening", "addr", cfg.HTTPAddr)
			if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("HTTP server error", "err", err)
			}
		}()

		logger.Info("silo server started",
			"http_addr", cfg.HTTPAddr,
			"dispatch_workers", cfg.DispatchWorkers,
		)

		// Wait for SIGINT or SIGTERM.
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigCh
		logger.Info("received signal, shutting down", "signal", sig)

		// Graceful shutdown. Stop accepting requests first, then drain the
		// dispatcher so in-flight trigger work completes.
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", "err", err)
		}
		logger.Info("HTTP server stopped")

		if feedCancel != nil {
			feedCancel()
			<-feedDone
			logger.Info("bus feed stopped")
		}

		dispatcher.Stop()
		logger.Info("trigger dispatcher stopped")

		tracker.Stop()

		if scheduler != nil {
			scheduler.Stop()
			logger.Info("backup scheduler stopped")
		}

		if err := publisher.Close(); err != nil {
			logger.Error("error closing publisher", "err", err)
		}
		if err := store.Close(); err != nil {
			logger.Error("error closing store", "err", err)
		}

		logger.Info("shutdown complete")
		return nil
	},
}

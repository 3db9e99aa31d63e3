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

	"github.com/spf13/cobra"

	"github.com/birddigital/hotline-ivr/pkg/config"
	"github.com/birddigital/hotline-ivr/pkg/ivr"
	"github.com/birddigital/hotline-ivr/pkg/messaging"
	"github.com/birddigital/hotline-ivr/pkg/monitor"
	"github.com/birddigital/hotline-ivr/pkg/phone"
	"github.com/birddigital/hotline-ivr/pkg/routing"
	"github.com/birddigital/hotline-ivr/pkg/signalwire"
	"github.com/birddigital/hotline-ivr/pkg/store"
	"github.com/birddigital/hotline-ivr/pkg/telephony"
)

const shutdownTimeout = 10 * time.Second

// hotlineStore is what the server needs from a storage backend
type hotlineStore interface {
	ivr.SessionStore
	messaging.LogSink
	store.Purger
	Recent(ctx context.Context, limit int) ([]messaging.LogRecord, error)
}

func newServeCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the webhook server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration:\n%w", err)
			}
			logger, err := ctx.logger(cmd)
			if err != nil {
				return err
			}

			runCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(runCtx, cfg, logger)
		},
	}
}

func serve(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	hours, err := routing.NewHours(cfg.Timezone, cfg.OpenHour, cfg.CloseHour)
	if err != nil {
		return err
	}
	selector, err := routing.NewSelector(cfg.Recipients(), cfg.RecipientMedia, nil)
	if err != nil {
		return err
	}

	client := signalwire.NewClient(cfg.SignalWire.ProjectID, cfg.SignalWire.Token, cfg.SignalWire.Space)
	if err := client.ValidateConfiguration(); err != nil {
		return err
	}

	st, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	hub := monitor.NewHub(logger)
	dispatcher := messaging.NewDispatcher(
		messaging.NewResendMailer(cfg.ResendAPIKey),
		messaging.NewMessageService(client),
		messaging.Settings{
			Name:           cfg.HotlineName,
			FromEmail:      cfg.FromEmail,
			Distribution:   cfg.Distribution(),
			CallerID:       cfg.CallerID,
			DebugRecipient: cfg.RecipientDebugging,
		},
		logger,
		st, hub,
	)

	machine, err := ivr.NewMachine(ivr.Config{
		Store:      st,
		Gate:       hours,
		Selector:   selector,
		Normalizer: phone.NewNormalizer(cfg.CallerID, cfg.CallerIDUS),
		Notifier:   dispatcher,
		Prompts:    ivr.Prompts(cfg.Prompts),
		Logger:     logger,
	})
	if err != nil {
		return err
	}

	janitor, err := store.NewJanitor(st, cfg.PurgeSchedule, store.Retention{
		Sessions: cfg.SessionRetention,
		Claims:   cfg.ClaimRetention,
	}, logger)
	if err != nil {
		return err
	}
	go func() {
		if err := janitor.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("janitor stopped", "error", err)
		}
	}()

	handlers := telephony.NewCallHandlers(machine, dispatcher, telephony.Options{
		History:   client,
		Log:       st,
		Stream:    hub,
		AdminUser: cfg.AdminUser,
		AdminPass: cfg.AdminPass,
		Location:  hours.Location,
		Logger:    logger,
	})
	mux := http.NewServeMux()
	handlers.RegisterRoutes(mux)

	server := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", "addr", cfg.ListenAddr, "admin", cfg.AdminEnabled())
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("listen: %w", err)
	case <-ctx.Done():
	}

	logger.Info("server shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// openStore uses PostgreSQL when DATABASE_URL is set and process memory
// otherwise
func openStore(ctx context.Context, cfg config.Config, logger *slog.Logger) (hotlineStore, func(), error) {
	if cfg.DatabaseURL == "" {
		logger.Warn("DATABASE_URL not set, call state and log are kept in memory")
		return store.NewMemory(), func() {}, nil
	}

	pg, err := store.OpenPostgres(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, err
	}
	if err := pg.Migrate(ctx); err != nil {
		pg.Close()
		return nil, nil, err
	}
	logger.Info("connected to database")
	return pg, pg.Close, nil
}

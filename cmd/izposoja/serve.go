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

	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"

	"github.com/erazemk/izposoja/internal/api"
	"github.com/erazemk/izposoja/internal/auth"
	"github.com/erazemk/izposoja/internal/circulation"
	"github.com/erazemk/izposoja/internal/config"
	"github.com/erazemk/izposoja/internal/notify"
	"github.com/erazemk/izposoja/internal/store"
)

const purgeInterval = time.Hour

func newServeCommand(opts *rootOptions) *cobra.Command {
	var addr, adminUser string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Long: `Run the circulation HTTP API.

The database is created on first run, together with an admin account whose
password is printed once.

Example:
  izposoja serve --db ./library.sqlite3 --addr :8080
  izposoja serve --config ./izposoja.yaml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("addr") {
				addr = opts.cfg.Addr
			}
			if !cmd.Flags().Changed("user") {
				adminUser = opts.cfg.AdminUser
			}
			return serve(cmd.Context(), opts.cfg, addr, adminUser)
		},
	}

	cmd.Flags().StringVarP(&addr, "addr", "a", ":8080", "listen address")
	cmd.Flags().StringVarP(&adminUser, "user", "u", "Admin", "admin username on first run")
	return cmd
}

func serve(ctx context.Context, cfg config.Config, addr, adminUser string) error {
	// Check if DB exists, auto-init if not.
	if _, err := os.Stat(cfg.DB); os.IsNotExist(err) {
		database, password, err := initDatabase(cfg.DB, adminUser)
		if err != nil {
			return fmt.Errorf("initializing database: %w", err)
		}
		database.Close()

		printInitResult(cfg.DB, adminUser, password)
		fmt.Println()
	}

	database, err := openDatabase(cfg.DB)
	if err != nil {
		return err
	}
	defer database.Close()

	slog.Info("database ready", "path", cfg.DB)

	// Load JWT secret from database (auto-generated on first run).
	secret, err := store.GetJWTSecret(context.Background(), database)
	if err != nil {
		return fmt.Errorf("getting JWT secret: %w", err)
	}

	svc := newService(database, cfg)
	handler := api.NewRouter(database, auth.NewTokens(secret, 0), svc)

	server := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	// Graceful shutdown on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go purgeRevokedTokens(ctx, database)

	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server forced to shutdown", "error", err)
		}
	}()

	slog.Info("server started", "addr", addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}

	slog.Info("server stopped, closing database")
	return nil
}

// newService wires the circulation engine to the fee ledger and the
// configured reminder channel.
func newService(database *sqlx.DB, cfg config.Config) *circulation.Service {
	var reminders circulation.ReminderDispatcher = &notify.LogDispatcher{}
	if cfg.Reminders.WebhookURL != "" {
		reminders = notify.NewWebhookDispatcher(cfg.Reminders.WebhookURL, cfg.Reminders.Timeout)
	}

	fees := &store.FeeLedger{DB: database, Period: cfg.Circulation.FeePeriod}
	return circulation.NewService(database, cfg.Circulation, fees, reminders)
}

// purgeRevokedTokens drops expired revocations until ctx is done.
func purgeRevokedTokens(ctx context.Context, database *sqlx.DB) {
	ticker := time.NewTicker(purgeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			n, err := store.PurgeRevokedTokens(ctx, database, now)
			if err != nil {
				slog.Error("failed to purge revoked tokens", "error", err)
				continue
			}
			if n > 0 {
				slog.Debug("purged revoked tokens", "count", n)
			}
		}
	}
}

package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/dukerupert/loyalty/internal/config"
	"github.com/dukerupert/loyalty/internal/database"
	"github.com/dukerupert/loyalty/internal/logging"
	"github.com/dukerupert/loyalty/internal/server"
)

type rootOptions struct {
	configPath string
	cfg        *config.Config
	logger     *slog.Logger
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "loyalty",
		Short:         "Loyalty event engine for e-commerce merchants",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(opts.configPath)
			if err != nil {
				return err
			}
			opts.cfg = cfg
			opts.logger = logging.Setup(cfg.LogLevel, cfg.LogFormat)
			return nil
		},
	}
	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", os.Getenv("LOYALTY_CONFIG"), "path to YAML config file")

	cmd.AddCommand(newServeCommand(opts))
	cmd.AddCommand(newMigrateCommand(opts))
	cmd.AddCommand(newMerchantCommand(opts))
	cmd.AddCommand(newProcessCommand(opts))
	cmd.AddCommand(newReconcileCommand(opts))
	cmd.AddCommand(newArchiveCommand(opts))
	cmd.AddCommand(newVAPIDKeysCommand())
	return cmd
}

// open returns a migrated database and a server wired from the loaded config.
func (o *rootOptions) open() (*sql.DB, *server.Server, error) {
	db, err := database.Open(o.cfg.DBPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open database: %w", err)
	}
	return db, server.New(db, o.cfg, o.logger), nil
}

func newServeCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the webhook and admin HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(opts)
		},
	}
}

func serve(opts *rootOptions) error {
	db, srv, err := opts.open()
	if err != nil {
		return err
	}
	defer db.Close()

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	go srv.RateLimiter().Run(ctx, time.Minute)
	srv.Archiver().Start(ctx, opts.cfg.Archive.Interval, srv.MerchantStore())

	httpServer := &http.Server{
		Addr:         ":" + opts.cfg.Port,
		Handler:      srv.Router(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		opts.logger.Info("loyalty engine listening", "addr", httpServer.Addr, "base_url", opts.cfg.BaseURL)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}

	opts.logger.Info("shutting down")
	stop()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown error: %w", err)
	}
	srv.Dispatcher().Wait()
	return nil
}

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"reviewdash/api/internal/app"
	"reviewdash/api/internal/config"
	"reviewdash/api/internal/logging"
	"reviewdash/api/internal/scheduler"
	"reviewdash/api/internal/syncer"
)

var (
	configFile string
	logLevel   string
	csvOnly    bool

	cfg    config.Config
	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "reviewdash",
	Short: "Review dashboard data service",
	Long: `reviewdash pulls the published review sheet, keeps the current copy next to
the historical archives and serves the merged CSV to the dashboard.

Run without a subcommand to start the HTTP server.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if configFile != "" {
			if err := os.Setenv("REVIEWDASH_CONFIG", configFile); err != nil {
				return err
			}
		}
		var err error
		cfg, err = config.Load()
		if err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}
		if logLevel != "" {
			cfg.LogLevel = logLevel
		}
		logger, err = logging.New(logging.Options{
			Level:  cfg.LogLevel,
			Format: cfg.LogFormat,
			File:   cfg.LogFile,
		})
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
	RunE: runServe,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API and the periodic sync",
	RunE:  runServe,
}

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Run one sync and print its report",
	RunE:  runSync,
}

var mergedCmd = &cobra.Command{
	Use:   "merged",
	Short: "Print the merged sheet data",
	RunE:  runMerged,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "TOML config file (overrides REVIEWDASH_CONFIG)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
	mergedCmd.Flags().BoolVar(&csvOnly, "csv", false, "print only the CSV text")

	rootCmd.AddCommand(serveCmd, syncCmd, mergedCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext()
	defer stop()

	c, err := build(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer c.Close()

	go c.service.Reindex()

	httpServer := app.NewHTTPServer(c.service, cfg.CORSOrigin, logger.Named("http"))
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      syncWriteTimeout(cfg),
		IdleTimeout:       60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("review dashboard API listening", zap.String("addr", cfg.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})
	if cfg.SheetCSVURL != "" {
		sched := scheduler.New(c.syncer, cfg.SyncInterval, cfg.SyncOnStart, logger.Named("scheduler"))
		g.Go(func() error { return sched.Run(gctx) })
	} else {
		logger.Warn("no sheet CSV URL configured, periodic sync disabled")
	}
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown error: %w", err)
		}
		return nil
	})
	return g.Wait()
}

// syncWriteTimeout covers a manual sync that uses every fetch attempt and
// backoff wait before it answers.
func syncWriteTimeout(cfg config.Config) time.Duration {
	total := 30 * time.Second
	for i := 1; i <= cfg.FetchAttempts; i++ {
		total += cfg.FetchTimeout + cfg.FetchBackoff*time.Duration(i)
	}
	return total
}

func runSync(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext()
	defer stop()

	c, err := build(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer c.Close()
	c.inlineReindex = true

	report, syncErr := c.syncer.Sync(ctx, syncer.TriggerCLI)
	if errors.Is(syncErr, syncer.ErrSyncInProgress) {
		return syncErr
	}
	if err := printJSON(cmd, report); err != nil {
		return err
	}
	return syncErr
}

func runMerged(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext()
	defer stop()

	c, err := build(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer c.Close()

	result := c.merged.GetMergedData()
	if result.Degraded() {
		return errors.New(result.Error)
	}
	if csvOnly {
		_, err := fmt.Fprintln(cmd.OutOrStdout(), result.CSV)
		return err
	}
	return printJSON(cmd, result)
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"
	"github.com/spf13/cobra"

	"github.com/hyperengineering/tally/internal/api"
	"github.com/hyperengineering/tally/internal/config"
	"github.com/hyperengineering/tally/internal/engage"
	"github.com/hyperengineering/tally/internal/ledger"
	"github.com/hyperengineering/tally/internal/report"
	"github.com/hyperengineering/tally/internal/telegram"
)

// Version is set at build time via ldflags: -ldflags "-X main.Version=1.0.0"
var Version = "dev"

var rootCmd = &cobra.Command{
	Use:   "tally",
	Short: "Tally - Engagement Ledger Bot",
	RunE:  run,
}

func init() {
	rootCmd.AddCommand(topCmd)
	rootCmd.AddCommand(weekCmd)
	rootCmd.AddCommand(verifyCmd)
}

func run(cmd *cobra.Command, args []string) error {
	// 1. Signal handling
	ctx, cancel := signal.NotifyContext(context.Background(),
		syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	// 2. Load configuration (.env first so the token reaches the env)
	_ = godotenv.Load()
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	slog.Info("configuration loaded")

	// 3. Initialize logger
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLogLevel(cfg.Log.Level),
	}))
	slog.SetDefault(logger)
	slog.Info("logger initialized", "level", cfg.Log.Level)

	// 4. Initialize ledger (migrations, WAL mode)
	store, err := ledger.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return err
	}
	slog.Info("ledger initialized", "path", cfg.Database.Path)

	// 5. Domain services
	clock := clockwork.NewRealClock()
	rules := engage.RuleSet{Points: cfg.Rules.Points(), Enabled: cfg.Rules.EnabledKinds()}
	svc := engage.NewService(store, store, rules, clock)

	loc, err := cfg.Report.Location()
	if err != nil {
		return err
	}
	engine := report.NewEngine(store, clock, loc, cfg.Report.TopLimit)

	// 6. Initialize HTTP router
	handler := api.NewHandler(store, engine, cfg.Auth.APIKey, Version)
	router := api.NewRouter(handler)
	slog.Info("router initialized")

	// 7. Configure HTTP server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout),
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout),
	}

	// 8. Telegram long-poll worker (skipped in offline mode)
	var wg sync.WaitGroup
	if cfg.Telegram.Token != "" {
		client := telegram.NewClient(cfg.Telegram.Token)

		me, err := client.GetMe(ctx)
		if err != nil {
			store.Close()
			return fmt.Errorf("bot token check: %w", err)
		}
		slog.Info("bot identity confirmed", "username", me.Username, "bot_id", me.ID)

		if err := client.SetMyCommands(ctx, telegram.Commands); err != nil {
			slog.Warn("command menu registration failed", "error", err)
		}

		dispatcher := telegram.NewDispatcher(svc, engine, client, rules, cfg.Telegram.OwnerID, cancel)
		poller := telegram.NewPoller(client, dispatcher, time.Duration(cfg.Telegram.PollTimeout))
		startWorker(ctx, &wg, "poller", func(ctx context.Context) {
			if err := poller.Run(ctx); err != nil && ctx.Err() == nil {
				slog.Error("poller stopped", "error", err)
				cancel()
			}
		})
	} else {
		slog.Warn("no bot token configured, running API only")
	}

	// 9. Start HTTP server in goroutine
	go func() {
		slog.Info("server starting", "address", addr)
		// ErrServerClosed is the expected error when Shutdown() is called gracefully.
		// Any other error indicates an actual server failure that should trigger shutdown.
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			cancel() // Trigger shutdown on server failure
		}
	}()

	// 10. Block until signal received
	<-ctx.Done()
	slog.Info("shutdown initiated")

	// 11. Graceful shutdown sequence
	shutdownCtx, shutdownCancel := context.WithTimeout(
		context.Background(),
		time.Duration(cfg.Server.ShutdownTimeout))
	defer shutdownCancel()

	// 11a. Stop HTTP server (drains in-flight requests)
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", "error", err)
	}

	// 11b. Wait for the poller to finish its current batch
	wg.Wait()

	// 11c. Close ledger
	if err := store.Close(); err != nil {
		slog.Error("ledger close error", "error", err)
	}

	slog.Info("shutdown complete")
	return nil
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// startWorker launches a background worker goroutine that respects context cancellation.
// Workers are tracked via WaitGroup for graceful shutdown.
func startWorker(ctx context.Context, wg *sync.WaitGroup, name string, fn func(ctx context.Context)) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		slog.Info("worker started", "worker", name)
		fn(ctx)
		slog.Info("worker stopped", "worker", name)
	}()
}

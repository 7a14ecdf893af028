package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/agildata/fieldbase/internal/api"
	"github.com/agildata/fieldbase/internal/backup"
	"github.com/agildata/fieldbase/internal/config"
	"github.com/agildata/fieldbase/internal/migration"
	"github.com/agildata/fieldbase/internal/notify"
	"github.com/agildata/fieldbase/internal/store"
	syncengine "github.com/agildata/fieldbase/internal/sync"
)

// Version is set at build time via ldflags: -ldflags "-X main.Version=1.0.0"
var Version = "dev"

var rootCmd = &cobra.Command{
	Use:   "fieldbase",
	Short: "Fieldbase - offline-first field service data daemon",
	RunE:  run,
}

func init() {
	rootCmd.AddCommand(backupCmd)
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(migrateCmd)
}

func run(cmd *cobra.Command, args []string) error {
	// 1. Signal handling
	ctx, cancel := signal.NotifyContext(context.Background(),
		syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	// 2. Load configuration
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	// 3. Initialize logger
	setupLogger(cfg.Log)
	slog.Info("configuration loaded")

	// 4. Initialize store (migrations, WAL mode)
	db, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return err
	}
	slog.Info("store initialized", "path", cfg.Database.Path)

	// 5. One-shot legacy migration. A failed run leaves the completion
	// flag unset so the next start retries; the daemon still serves.
	if cfg.Legacy.Dir != "" {
		mig := migration.NewManager(db, migration.NewFileLegacyStore(cfg.Legacy.Dir))
		if report, err := mig.Run(ctx); err != nil {
			slog.Error("legacy migration failed, will retry on next start", "error", err)
		} else if report.Completed {
			slog.Info("legacy migration completed", "imported", report.Imported)
		}
	}

	// 6. Backup manager + auto-backup scheduler
	uploader, err := backup.NewUploader(storageConfig(cfg))
	if err != nil {
		return fmt.Errorf("init snapshot storage: %w", err)
	}
	backups := backup.NewManager(db, uploader, backup.ManagerConfig{
		Dir:             cfg.Backup.Dir,
		AppVersion:      Version,
		KeepBackups:     cfg.Backup.KeepBackups,
		KeepRestoreLogs: cfg.Backup.KeepRestoreLogs,
	})
	scheduler := backup.NewScheduler(backups, db, notify.SlogSink{}, cfg.Backup.AutoInterval.Std())

	// 7. Sync engine. Without a remote endpoint the simulated remote
	// acknowledges every push, which keeps local development usable.
	engine := newEngine(db, cfg)

	// 8. HTTP router
	handler := api.NewHandler(db, engine, backups, scheduler, cfg.Auth.APIKey, Version)
	router := api.NewRouter(handler)

	// 9. Configure HTTP server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout.Std(),
		WriteTimeout: cfg.Server.WriteTimeout.Std(),
	}

	// 10. Background workers
	var wg sync.WaitGroup
	startWorker(ctx, &wg, "sync-engine", engine.Run)
	startWorker(ctx, &wg, "auto-backup", scheduler.Run)

	// 11. Start HTTP server in goroutine
	go func() {
		slog.Info("server starting", "address", addr)
		// ErrServerClosed is the expected error when Shutdown() is called
		// gracefully. Anything else is a real failure.
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			cancel()
		}
	}()

	// 12. Block until signal received
	<-ctx.Done()
	slog.Info("shutdown initiated")

	// 13. Graceful shutdown sequence
	shutdownCtx, shutdownCancel := context.WithTimeout(
		context.Background(), cfg.Server.ShutdownTimeout.Std())
	defer shutdownCancel()

	// 13a. Stop HTTP server (drains in-flight requests)
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", "error", err)
	}

	// 13b. Wait for workers to complete
	wg.Wait()

	// 13c. Close store
	if err := db.Close(); err != nil {
		slog.Error("store close error", "error", err)
	}

	slog.Info("shutdown complete")
	return nil
}

func newEngine(db *store.SQLiteStore, cfg *config.Config) *syncengine.Engine {
	var (
		remote syncengine.RemoteApplier
		probe  syncengine.Probe
	)
	if cfg.Remote.Endpoint != "" {
		remote = syncengine.NewHTTPRemote(cfg.Remote.Endpoint, cfg.Remote.Timeout.Std())
		probe = syncengine.NewHTTPProbe(cfg.Remote.Endpoint, cfg.Remote.Timeout.Std())
	} else {
		slog.Warn("no remote endpoint configured, sync runs against a simulated remote")
		remote = &syncengine.SimulatedRemote{}
		probe = syncengine.StaticProbe(true)
	}

	return syncengine.NewEngine(db, remote, probe, syncengine.SlogListener{}, syncengine.EngineConfig{
		ProbeInterval: cfg.Sync.ProbeInterval.Std(),
		SyncInterval:  cfg.Sync.Interval.Std(),
		OnlineDelay:   cfg.Sync.OnlineDelay.Std(),
		MaxAttempts:   cfg.Sync.MaxAttempts,
	})
}

func storageConfig(cfg *config.Config) backup.StorageConfig {
	return backup.StorageConfig{
		Endpoint:  cfg.Backup.Storage.Endpoint,
		Bucket:    cfg.Backup.Storage.Bucket,
		AccessKey: cfg.Backup.Storage.AccessKey,
		SecretKey: cfg.Backup.Storage.SecretKey,
		Region:    cfg.Backup.Storage.Region,
		UseSSL:    cfg.Backup.Storage.UseSSL,
		Prefix:    cfg.Backup.Storage.Prefix,
	}
}

// setupLogger installs the process-wide slog default. A configured log
// file routes output through size-based rotation.
func setupLogger(cfg config.LogConfig) {
	var out io.Writer = os.Stdout
	if cfg.File != "" {
		out = &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   true,
		}
	}

	opts := &slog.HandlerOptions{Level: parseLogLevel(cfg.Level)}
	var handler slog.Handler
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(out, opts)
	} else {
		handler = slog.NewJSONHandler(out, opts)
	}
	slog.SetDefault(slog.New(handler))
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

// loadStore opens the configured store for one-shot subcommands.
func loadStore() (*config.Config, *store.SQLiteStore, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	setupLogger(cfg.Log)

	db, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return nil, nil, err
	}
	return cfg, db, nil
}

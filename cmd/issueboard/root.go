package main

import (
	"context"
	"fmt"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gofrs/flock"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/issueboard/issueboard/internal/config"
	"github.com/issueboard/issueboard/internal/server"
	"github.com/issueboard/issueboard/internal/storage"
	"github.com/issueboard/issueboard/internal/telemetry"
)

// version is stamped by the build; "dev" for local builds.
var version = "dev"

var rootCmd = &cobra.Command{
	Use:           "issueboard",
	Short:         "Issue board API server",
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

func runServer() error {
	log := newLogger()
	defer log.Sync()

	cfg, err := config.Load()
	if err != nil {
		log.Error("configuration failed", zap.Error(err))
		return err
	}

	// One writer per database file. The lock is advisory; a second instance
	// pointed at the same file exits instead of corrupting WAL state.
	if isLockable(cfg.Database.Path) {
		lock := flock.New(cfg.Database.Path + ".lock")
		ok, err := lock.TryLock()
		if err != nil || !ok {
			err = fmt.Errorf("database %s is locked by another instance", cfg.Database.Path)
			log.Error("startup aborted", zap.Error(err))
			return err
		}
		defer lock.Unlock()
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := telemetry.Init(ctx, "issueboard", version); err != nil {
		log.Error("telemetry init failed", zap.Error(err))
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		telemetry.Shutdown(shutdownCtx)
	}()

	store, err := storage.Open(ctx, storage.Options{
		Path:            cfg.Database.Path,
		MigrationDir:    cfg.Database.MigrationDir,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	})
	if err != nil {
		log.Error("store open failed", zap.Error(err))
		return err
	}
	defer store.Close()

	srv, err := server.New(cfg, store, log)
	if err != nil {
		log.Error("server build failed", zap.Error(err))
		return err
	}

	if cfg.Server.EnableKeepAlive && cfg.Server.KeepAliveURL != "" {
		go server.RunKeepAlive(ctx, log, cfg.Server.KeepAliveURL)
	}

	if err := srv.Run(ctx); err != nil {
		log.Error("server failed", zap.Error(err))
		return err
	}
	log.Info("shutdown complete")
	return nil
}

// isLockable reports whether the database path is a plain file we can put an
// advisory lock next to.
func isLockable(path string) bool {
	return path != ":memory:" && !strings.HasPrefix(path, "file:")
}

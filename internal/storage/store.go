// Package storage implements persistence for the issue board on embedded
// SQLite, and the typed repository that is its only writer.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	sqlite3 "github.com/ncruces/go-sqlite3"
	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
	"github.com/tetratelabs/wazero"
)

// Options configures Open.
type Options struct {
	Path            string // database file path, or ":memory:" / file URI
	MigrationDir    string // directory of .sql files applied in lexicographic order
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// Store owns the database handle. It is opened once at boot and shared by
// all workers; the driver guarantees connection safety.
type Store struct {
	db   *sql.DB
	path string
}

// setupWASMCache configures WASM compilation caching so the embedded SQLite
// build is JIT-compiled once per machine instead of on every process start.
// Falls back to an in-memory cache when the user cache dir is unavailable.
func setupWASMCache() {
	var cache wazero.CompilationCache
	if userCache, err := os.UserCacheDir(); err == nil {
		dir := filepath.Join(userCache, "issueboard", "wasm")
		if c, err := wazero.NewCompilationCacheWithDir(dir); err == nil {
			cache = c
		}
	}
	if cache == nil {
		cache = wazero.NewCompilationCache()
	}
	sqlite3.RuntimeConfig = wazero.NewRuntimeConfig().WithCompilationCache(cache)
}

func init() {
	setupWASMCache()
}

// connString builds the driver URI. Foreign keys are always enforced; the
// busy timeout covers writer contention under the pool.
func connString(path string) string {
	const pragmas = "_pragma=foreign_keys(ON)&_pragma=busy_timeout(30000)&_time_format=sqlite"
	switch {
	case path == ":memory:":
		// Shared cache so every pooled connection sees the same data.
		// WAL does not work for in-memory databases.
		return "file:memdb?mode=memory&cache=shared&_pragma=journal_mode(DELETE)&" + pragmas
	case strings.HasPrefix(path, "file:"):
		if strings.Contains(path, "_pragma=foreign_keys") {
			return path
		}
		sep := "?"
		if strings.Contains(path, "?") {
			sep = "&"
		}
		return path + sep + pragmas
	default:
		return "file:" + path + "?" + pragmas
	}
}

func isInMemory(path string) bool {
	return path == ":memory:" ||
		(strings.HasPrefix(path, "file:") && strings.Contains(path, "mode=memory"))
}

// Open opens (creating if absent) the database, configures the connection
// pool, and applies every pending migration. Migration failure is fatal to
// the caller: an unmigrated store must not serve traffic.
func Open(ctx context.Context, opts Options) (*Store, error) {
	if !isInMemory(opts.Path) && !strings.HasPrefix(opts.Path, "file:") {
		if err := os.MkdirAll(filepath.Dir(opts.Path), 0o750); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", connString(opts.Path))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if isInMemory(opts.Path) {
		// In-memory databases are per-connection by default; a single
		// connection keeps every statement on the same data.
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	} else {
		db.SetMaxOpenConns(opts.MaxOpenConns)
		db.SetMaxIdleConns(opts.MaxIdleConns)
		db.SetConnMaxLifetime(opts.ConnMaxLifetime)
		if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
		}
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := applyMigrations(ctx, db, opts.MigrationDir); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db, path: opts.Path}, nil
}

// DB exposes the pooled handle for the repository.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Path returns the configured database path.
func (s *Store) Path() string {
	return s.path
}

// Ping verifies connectivity; used by the health probe.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close checkpoints the WAL and closes the pool. Without the checkpoint,
// writes can be stranded in the -wal file across restarts.
func (s *Store) Close() error {
	if !isInMemory(s.path) {
		_, _ = s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	}
	return s.db.Close()
}

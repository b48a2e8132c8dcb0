package history

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	_ "embed"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed migrations_sqlite.sql
var sqliteMigrations string

// NewSQLiteStore opens the database file named by the DSN, creating its
// directory if needed.
func NewSQLiteStore(opts ...Option) (*SQLiteStore, error) {
	cfg, err := applyOpts(opts)
	if err != nil {
		return nil, err
	}

	path := strings.TrimPrefix(cfg.DSN, "file:")
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}
	// One writer avoids SQLITE_BUSY between concurrent sessions.
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite ping failed: %w", err)
	}
	if _, err := db.Exec(sqliteMigrations); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("history: sqlite store ready", "path", path)

	return &SQLiteStore{sqlStore{
		db:  db,
		now: cfg.Now,
		ph:  func(int) string { return "?" },
	}}, nil
}

type SQLiteStore struct {
	sqlStore
}

package database

import (
	"database/sql"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog/log"

	"dingbot/internal/platform/config"
)

// NewDB opens the robot registry. "file:" URLs are stripped for the sqlite3
// driver and the parent directory is created on demand. In-memory databases
// are pinned to a single connection, since every sqlite connection would
// otherwise see its own empty database.
func NewDB(cfg config.DatabaseConfig) (*sql.DB, error) {
	dsn, file, memory := sqliteDSN(cfg.URL)
	if file == "" {
		return nil, fmt.Errorf("database url is empty")
	}

	if !memory {
		if err := os.MkdirAll(filepath.Dir(file), 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}

	maxConns := cfg.MaxConnections
	if maxConns <= 0 || memory {
		maxConns = 1
	}
	db.SetMaxOpenConns(maxConns)
	db.SetMaxIdleConns(maxConns)
	if !memory {
		db.SetConnMaxLifetime(time.Hour)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}

	return db, nil
}

// sqliteDSN returns the driver DSN with a busy timeout, the database file
// path without query parameters, and whether the database lives in memory.
func sqliteDSN(url string) (dsn, file string, memory bool) {
	dsn = strings.TrimPrefix(strings.TrimSpace(url), "file:")
	file, query, _ := strings.Cut(dsn, "?")
	memory = file == ":memory:" || strings.Contains(query, "mode=memory")

	if file != "" && !strings.Contains(query, "_busy_timeout=") {
		switch {
		case query == "" && !strings.HasSuffix(dsn, "?"):
			dsn += "?_busy_timeout=5000"
		case strings.HasSuffix(dsn, "?") || strings.HasSuffix(dsn, "&"):
			dsn += "_busy_timeout=5000"
		default:
			dsn += "&_busy_timeout=5000"
		}
	}
	return dsn, file, memory
}

// Migrate executes every .sql file under dir in name order. Statements are
// expected to be idempotent.
func Migrate(db *sql.DB, fsys fs.FS, dir string) error {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return fmt.Errorf("failed to read migration directory: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() && path.Ext(e.Name()) == ".sql" {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	for _, name := range names {
		content, err := fs.ReadFile(fsys, path.Join(dir, name))
		if err != nil {
			return fmt.Errorf("failed to read migration file %s: %w", name, err)
		}

		log.Info().Str("migration", name).Msg("applying migration")
		if _, err := db.Exec(string(content)); err != nil {
			return fmt.Errorf("failed to execute migration %s: %w", name, err)
		}
	}
	return nil
}

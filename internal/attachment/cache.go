package attachment

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// schemaVersion is the current expected schema version.
const schemaVersion = 2

type migration struct {
	Version     int
	Description string
	SQL         string
}

// migrations is the ordered list of cache schema migrations, each applied once.
var migrations = []migration{
	{
		Version:     1,
		Description: "file bytes keyed by download url",
		SQL: `
		CREATE TABLE IF NOT EXISTS files (
			url         TEXT PRIMARY KEY,
			data        BLOB NOT NULL,
			size        INTEGER NOT NULL,
			created_at  DATETIME DEFAULT CURRENT_TIMESTAMP
		);`,
	},
	{
		Version:     2,
		Description: "last access time for pruning",
		SQL: `
		ALTER TABLE files ADD COLUMN accessed_at DATETIME;
		CREATE INDEX IF NOT EXISTS idx_files_accessed ON files(accessed_at);`,
	},
}

// Cache is a read-through byte cache for downloaded attachments, stored in
// SQLite. It is a cache only: every error is safe to ignore.
type Cache struct {
	db     *sql.DB
	logger *slog.Logger
}

// OpenCache opens (creating if needed) the cache database at dbPath.
func OpenCache(dbPath string, logger *slog.Logger) (*Cache, error) {
	if logger == nil {
		logger = slog.Default()
	}
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("cannot create cache directory %s: %w", dir, err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("cannot open cache database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := runMigrations(db, logger); err != nil {
		db.Close()
		return nil, fmt.Errorf("cache migration failed: %w", err)
	}
	return &Cache{db: db, logger: logger}, nil
}

// Close releases the database.
func (c *Cache) Close() error {
	return c.db.Close()
}

// Get returns the cached bytes for url.
func (c *Cache) Get(ctx context.Context, url string) ([]byte, bool, error) {
	var data []byte
	err := c.db.QueryRowContext(ctx, `SELECT data FROM files WHERE url = ?`, url).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	if _, err := c.db.ExecContext(ctx,
		`UPDATE files SET accessed_at = ? WHERE url = ?`, time.Now().UTC(), url,
	); err != nil {
		c.logger.Debug("cache touch failed", "err", err)
	}
	return data, true, nil
}

// Put stores data for url, replacing any previous entry.
func (c *Cache) Put(ctx context.Context, url string, data []byte) error {
	now := time.Now().UTC()
	_, err := c.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO files (url, data, size, created_at, accessed_at) VALUES (?, ?, ?, ?, ?)`,
		url, data, len(data), now, now,
	)
	return err
}

// Prune removes entries not read since before the cutoff and returns how many
// were removed.
func (c *Cache) Prune(ctx context.Context, maxAge time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-maxAge)
	res, err := c.db.ExecContext(ctx,
		`DELETE FROM files WHERE COALESCE(accessed_at, created_at) < ?`, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Stats returns the number of entries and their total size.
func (c *Cache) Stats(ctx context.Context) (count int64, bytes int64, err error) {
	err = c.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(size), 0) FROM files`).Scan(&count, &bytes)
	return count, bytes, err
}

func runMigrations(db *sql.DB, logger *slog.Logger) error {
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_version (
			version     INTEGER PRIMARY KEY,
			description TEXT,
			applied_at  DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`); err != nil {
		return fmt.Errorf("create schema_version table: %w", err)
	}

	current := 0
	if err := db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_version").Scan(&current); err != nil {
		return fmt.Errorf("query schema version: %w", err)
	}

	for _, m := range migrations {
		if m.Version <= current {
			continue
		}
		logger.Debug("applying cache migration", "version", m.Version, "description", m.Description)

		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("begin migration v%d: %w", m.Version, err)
		}
		for _, stmt := range strings.Split(m.SQL, ";") {
			if strings.TrimSpace(stmt) == "" {
				continue
			}
			if _, err := tx.Exec(stmt); err != nil {
				tx.Rollback()
				return fmt.Errorf("migration v%d: %w", m.Version, err)
			}
		}
		if _, err := tx.Exec(
			"INSERT OR REPLACE INTO schema_version (version, description) VALUES (?, ?)",
			m.Version, m.Description,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration v%d: %w", m.Version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration v%d: %w", m.Version, err)
		}
	}
	return nil
}

func currentSchemaVersion(db *sql.DB) (int, error) {
	var version int
	err := db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_version").Scan(&version)
	return version, err
}

// Package sqlite is the persistent store for wallets, names, and the
// transaction log. It implements domain.Store on top of modernc.org/sqlite.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/kromer-network/kromer/internal/domain"
)

// FileName is the database file created inside the data directory.
const FileName = "kromer.db"

// DB wraps the SQLite handle.
type DB struct {
	db  *sql.DB
	now func() time.Time
}

var _ domain.Store = (*DB)(nil)

// Open creates or opens the database inside dir and applies migrations.
//
// SQLite admits one writer at a time, so the pool is capped at a single
// connection: every Commit runs in its own transaction on that connection and
// overlapping transfers serialize.
func Open(dir string) (*DB, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	dsn := "file:" + filepath.Join(dir, FileName) +
		"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"

	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)

	if err := sqlDB.Ping(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("connect database: %w", err)
	}

	db := &DB{db: sqlDB, now: time.Now}
	if err := db.migrate(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return db, nil
}

// Close closes the database.
func (db *DB) Close() error {
	return db.db.Close()
}

// Ping checks the connection, for health probes.
func (db *DB) Ping(ctx context.Context) error {
	return db.db.PingContext(ctx)
}

// ─── Schema ─────────────────────────────────────────────────────────────────

// Migrations returns the schema statements.
// Each string is a single SQL statement (SQLite executes one at a time).
// Money columns hold integer cents so arithmetic in SQL stays exact.
func Migrations() []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS wallets (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			address    TEXT NOT NULL UNIQUE COLLATE NOCASE,
			balance    INTEGER NOT NULL DEFAULT 0,
			total_in   INTEGER NOT NULL DEFAULT 0,
			total_out  INTEGER NOT NULL DEFAULT 0,
			created_at TEXT NOT NULL,
			locked     INTEGER NOT NULL DEFAULT 0,
			auth_hash  TEXT NOT NULL DEFAULT ''
		)`,

		// Append-only transaction log
		`CREATE TABLE IF NOT EXISTS transactions (
			id            INTEGER PRIMARY KEY AUTOINCREMENT,
			from_address  TEXT,
			to_address    TEXT NOT NULL,
			amount        INTEGER NOT NULL,
			type          TEXT NOT NULL,
			created_at    TEXT NOT NULL,
			metadata      TEXT,
			name          TEXT,
			sent_name     TEXT,
			sent_metaname TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_transactions_from ON transactions(from_address COLLATE NOCASE)`,
		`CREATE INDEX IF NOT EXISTS idx_transactions_to ON transactions(to_address COLLATE NOCASE)`,

		`CREATE TABLE IF NOT EXISTS names (
			id             INTEGER PRIMARY KEY AUTOINCREMENT,
			name           TEXT NOT NULL UNIQUE,
			owner          TEXT NOT NULL COLLATE NOCASE,
			original_owner TEXT NOT NULL,
			registered_at  TEXT NOT NULL,
			updated_at     TEXT,
			transferred_at TEXT,
			metadata       TEXT,
			unpaid         INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS idx_names_owner ON names(owner)`,
	}
}

func (db *DB) migrate() error {
	for _, stmt := range Migrations() {
		if _, err := db.db.Exec(stmt); err != nil {
			return err
		}
	}
	// The system account exists from the start and never authenticates.
	_, err := db.db.Exec(`
		INSERT INTO wallets (address, created_at) VALUES (?, ?)
		ON CONFLICT(address) DO NOTHING
	`, domain.SystemAddress, formatTime(db.now()))
	return err
}

// ─── Helpers ────────────────────────────────────────────────────────────────

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}

func nullTime(s sql.NullString) *time.Time {
	if !s.Valid {
		return nil
	}
	t := parseTime(s.String)
	return &t
}

func timeArg(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

func nullString(s sql.NullString) *string {
	if !s.Valid {
		return nil
	}
	v := s.String
	return &v
}

func stringArg(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

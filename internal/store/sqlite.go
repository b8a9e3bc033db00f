// Package store persists the inbound message history to a local SQLite
// database. The history is the source of truth for work-summary
// detection and feeds reply context to downstream handlers.
package store

import (
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

// MessageStore implements the message history over SQLite.
type MessageStore struct {
	db *sqlx.DB
}

// NewMessageStore opens (or creates) a SQLite database at dbPath,
// enables WAL mode, and runs any pending schema migrations.
func NewMessageStore(dbPath string) (*MessageStore, error) {
	db, err := sqlx.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}

	// Enable WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	s := &MessageStore{db: db}
	if err := s.runMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *MessageStore) Close() error {
	return s.db.Close()
}

// runMigrations checks the current schema version and applies any
// outstanding migrations in order.
func (s *MessageStore) runMigrations() error {
	currentVersion := 0

	// Check if schema_version table exists.
	var tableCount int
	err := s.db.Get(
		&tableCount,
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	)
	if err != nil {
		return fmt.Errorf("checking schema_version table: %w", err)
	}

	if tableCount > 0 {
		err = s.db.Get(&currentVersion, "SELECT COALESCE(MAX(version), 0) FROM schema_version")
		if err != nil {
			return fmt.Errorf("reading schema version: %w", err)
		}
	}

	for _, m := range migrations {
		if m.version <= currentVersion {
			continue
		}

		if _, err := s.db.Exec(m.sql); err != nil {
			return fmt.Errorf("applying migration %d: %w", m.version, err)
		}

		if _, err := s.db.Exec(
			"INSERT INTO schema_version (version) VALUES (?)", m.version,
		); err != nil {
			return fmt.Errorf("recording migration %d: %w", m.version, err)
		}
	}

	return nil
}

// migration holds a single schema migration with its target version and SQL.
type migration struct {
	version int
	sql     string
}

// migrations is the ordered list of schema migrations.
// Each migration's version must be sequential starting from 1.
var migrations = []migration{
	{
		version: 1,
		sql: `
CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS messages (
	id             TEXT PRIMARY KEY,
	user_id        TEXT NOT NULL,
	uid            INTEGER NOT NULL DEFAULT 0,
	subject        TEXT NOT NULL DEFAULT '',
	sender         TEXT NOT NULL DEFAULT '',
	classification TEXT NOT NULL,
	body           TEXT NOT NULL DEFAULT '',
	is_reply       INTEGER NOT NULL DEFAULT 0,
	received_at    DATETIME NOT NULL,
	received_day   TEXT NOT NULL,
	recorded_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_messages_user_received ON messages(user_id, received_at);
CREATE INDEX IF NOT EXISTS idx_messages_user_day ON messages(user_id, received_day);
CREATE INDEX IF NOT EXISTS idx_messages_classification ON messages(classification);
`,
	},
}

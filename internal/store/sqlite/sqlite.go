package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

const schema = `
CREATE TABLE IF NOT EXISTS device_identity (
	id         INTEGER PRIMARY KEY CHECK (id = 1),
	client_id  TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

// SQLiteStore implements store.DeviceStore for SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// New creates a new SQLite device store.
// dbPath is the path to the SQLite database file.
func New(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// SQLite works best with a single connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// LoadClientID returns the persisted device identifier, or "" if none exists.
func (s *SQLiteStore) LoadClientID(ctx context.Context) (string, error) {
	var clientID string
	err := s.db.QueryRowContext(ctx,
		`SELECT client_id FROM device_identity WHERE id = 1`,
	).Scan(&clientID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("load client id: %w", err)
	}
	return clientID, nil
}

// SaveClientID persists the device identifier, replacing any previous one.
func (s *SQLiteStore) SaveClientID(ctx context.Context, clientID string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO device_identity (id, client_id) VALUES (1, ?)
		ON CONFLICT (id) DO UPDATE SET client_id = excluded.client_id
	`, clientID)
	if err != nil {
		return fmt.Errorf("save client id: %w", err)
	}
	return nil
}

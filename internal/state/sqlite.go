package state

import (
	"context"
	"database/sql"
	"errors"

	pkgerrors "github.com/pkg/errors"

	_ "modernc.org/sqlite"
)

// SQLiteStore keeps the blob in a single-row table.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLiteStore opens (or creates) the state DB using the given sqlite DSN/path.
// Tests may pass ":memory:" to avoid touching disk.
func OpenSQLiteStore(dsn string) (*SQLiteStore, error) {
	if dsn == "" {
		return nil, errors.New("sqlite dsn is required")
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "open state db")
	}
	// ":memory:" is per connection
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`
CREATE TABLE IF NOT EXISTS keyring_state (
	id INTEGER PRIMARY KEY CHECK (id = 1),
	blob BLOB NOT NULL,
	updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);
`); err != nil {
		_ = db.Close()
		return nil, pkgerrors.Wrap(err, "create keyring_state table")
	}

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Load(ctx context.Context) ([]byte, error) {
	var blob []byte
	err := s.db.QueryRowContext(ctx, `SELECT blob FROM keyring_state WHERE id = 1`).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, pkgerrors.Wrap(err, "failed to load keyring state")
	}
	return blob, nil
}

func (s *SQLiteStore) Save(ctx context.Context, blob []byte) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO keyring_state (id, blob, updated_at) VALUES (1, ?, CURRENT_TIMESTAMP)
ON CONFLICT(id) DO UPDATE SET blob = excluded.blob, updated_at = excluded.updated_at
`, blob)
	if err != nil {
		return pkgerrors.Wrap(err, "failed to save keyring state")
	}
	return nil
}

// Close closes the underlying DB.
func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

package notify

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"time"

	"github.com/yolodolo42/scwkeyring/internal/keyring"

	_ "modernc.org/sqlite"
)

// Event names recorded by the sinks.
const (
	EventAccountCreated    = "AccountCreated"
	EventAccountUpdated    = "AccountUpdated"
	EventAccountDeleted    = "AccountDeleted"
	EventUserOperationSent = "UserOperationSent"
)

const sqliteTime = "2006-01-02 15:04:05"

// Journal is an append-only sqlite record of account events and submitted
// user operations.
type Journal struct {
	db *sql.DB
}

var _ keyring.Notifier = (*Journal)(nil)

// AccountEvent is one row of the account event log.
type AccountEvent struct {
	Seq       int64
	Event     string
	AccountID string
	Name      string
	Address   string
	CreatedAt time.Time
}

// SentOperation is one submitted user operation.
type SentOperation struct {
	ChainID    uint64
	UserOpHash string
	Sender     string
	AccountID  string
	RequestID  string
	Method     string
	CreatedAt  time.Time
}

// OpenJournal opens (or creates) the journal under dataDir/journal.db.
func OpenJournal(dataDir string) (*Journal, error) {
	return OpenJournalDSN(filepath.Join(dataDir, "journal.db"))
}

// OpenJournalDSN opens a journal using the given sqlite DSN/path. Tests may
// pass ":memory:".
func OpenJournalDSN(dsn string) (*Journal, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open journal db: %w", err)
	}
	// every :memory: connection is a separate database
	db.SetMaxOpenConns(1)

	if err := ensureSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Journal{db: db}, nil
}

func ensureSchema(db *sql.DB) error {
	_, err := db.Exec(`
CREATE TABLE IF NOT EXISTS account_events (
	seq INTEGER PRIMARY KEY AUTOINCREMENT,
	event TEXT NOT NULL,
	account_id TEXT NOT NULL,
	name TEXT,
	address TEXT,
	created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);
CREATE TABLE IF NOT EXISTS user_operations (
	chain_id INTEGER NOT NULL,
	user_op_hash TEXT NOT NULL,
	sender TEXT NOT NULL,
	account_id TEXT,
	request_id TEXT,
	method TEXT,
	created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
	PRIMARY KEY (chain_id, user_op_hash)
);
`)
	if err != nil {
		return fmt.Errorf("create journal tables: %w", err)
	}
	return nil
}

// Close closes the underlying DB.
func (j *Journal) Close() error {
	if j == nil || j.db == nil {
		return nil
	}
	return j.db.Close()
}

func (j *Journal) appendEvent(ctx context.Context, event string, a keyring.Account) error {
	if j == nil || j.db == nil {
		return fmt.Errorf("journal not initialized")
	}
	_, err := j.db.ExecContext(ctx,
		`INSERT INTO account_events (event, account_id, name, address) VALUES (?, ?, ?, ?)`,
		event, a.ID, a.Name, a.Address,
	)
	if err != nil {
		return fmt.Errorf("record %s: %w", event, err)
	}
	return nil
}

func (j *Journal) AccountCreated(ctx context.Context, a keyring.Account) error {
	return j.appendEvent(ctx, EventAccountCreated, a)
}

func (j *Journal) AccountUpdated(ctx context.Context, a keyring.Account) error {
	return j.appendEvent(ctx, EventAccountUpdated, a)
}

func (j *Journal) AccountDeleted(ctx context.Context, a keyring.Account) error {
	return j.appendEvent(ctx, EventAccountDeleted, a)
}

// UserOperationSent records a submission. A repeated hash on the same chain
// keeps the first row.
func (j *Journal) UserOperationSent(ctx context.Context, s keyring.OperationSent) error {
	if j == nil || j.db == nil {
		return fmt.Errorf("journal not initialized")
	}
	if s.UserOpHash == "" || s.ChainID == 0 {
		return fmt.Errorf("chain id and user operation hash are required")
	}
	_, err := j.db.ExecContext(ctx, `
INSERT INTO user_operations (chain_id, user_op_hash, sender, account_id, request_id, method)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT(chain_id, user_op_hash) DO NOTHING
`, s.ChainID, s.UserOpHash, s.Sender, s.AccountID, s.RequestID, s.Method)
	if err != nil {
		return fmt.Errorf("record user operation: %w", err)
	}
	return nil
}

// Events returns the events of one account, or of all accounts when
// accountID is empty, oldest first.
func (j *Journal) Events(ctx context.Context, accountID string) ([]AccountEvent, error) {
	if j == nil || j.db == nil {
		return nil, fmt.Errorf("journal not initialized")
	}

	query := `SELECT seq, event, account_id, COALESCE(name, ''), COALESCE(address, ''), created_at FROM account_events`
	var args []any
	if accountID != "" {
		query += ` WHERE account_id = ?`
		args = append(args, accountID)
	}
	query += ` ORDER BY seq`

	rows, err := j.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var out []AccountEvent
	for rows.Next() {
		var (
			e       AccountEvent
			created string
		)
		if err := rows.Scan(&e.Seq, &e.Event, &e.AccountID, &e.Name, &e.Address, &created); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		e.CreatedAt = parseTime(created)
		out = append(out, e)
	}
	return out, rows.Err()
}

// Operation returns one recorded submission or sql.ErrNoRows.
func (j *Journal) Operation(ctx context.Context, chainID uint64, userOpHash string) (*SentOperation, error) {
	if j == nil || j.db == nil {
		return nil, fmt.Errorf("journal not initialized")
	}
	row := j.db.QueryRowContext(ctx, `
SELECT chain_id, user_op_hash, sender, COALESCE(account_id, ''), COALESCE(request_id, ''), COALESCE(method, ''), created_at
FROM user_operations WHERE chain_id = ? AND user_op_hash = ?`, chainID, userOpHash)
	return scanOperation(row)
}

// Operations returns the most recent submissions, newest first.
func (j *Journal) Operations(ctx context.Context, limit int) ([]SentOperation, error) {
	if j == nil || j.db == nil {
		return nil, fmt.Errorf("journal not initialized")
	}
	if limit <= 0 {
		limit = 50
	}
	rows, err := j.db.QueryContext(ctx, `
SELECT chain_id, user_op_hash, sender, COALESCE(account_id, ''), COALESCE(request_id, ''), COALESCE(method, ''), created_at
FROM user_operations ORDER BY created_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query user operations: %w", err)
	}
	defer rows.Close()

	var out []SentOperation
	for rows.Next() {
		op, err := scanOperation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *op)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanOperation(s scanner) (*SentOperation, error) {
	var (
		op      SentOperation
		created string
	)
	if err := s.Scan(&op.ChainID, &op.UserOpHash, &op.Sender, &op.AccountID, &op.RequestID, &op.Method, &created); err != nil {
		return nil, err
	}
	op.CreatedAt = parseTime(created)
	return &op, nil
}

func parseTime(s string) time.Time {
	if ts, err := time.Parse(sqliteTime, s); err == nil {
		return ts
	}
	if ts, err := time.Parse(time.RFC3339, s); err == nil {
		return ts
	}
	return time.Time{}
}

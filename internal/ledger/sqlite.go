package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/hyperengineering/tally/internal/types"
	"github.com/oklog/ulid/v2"
	_ "modernc.org/sqlite"
)

// timeFormat is the canonical stored timestamp form. RFC 3339 in UTC with
// second precision keeps lexicographic and chronological order identical,
// which the window queries rely on.
const timeFormat = time.RFC3339

// SQLiteStore implements Ledger and OnceGate on one SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLiteStore instance.
// It initializes the database with WAL mode, applies pragmas, and runs migrations.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	// Ensure parent directory exists
	if dir := filepath.Dir(dbPath); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// SQLite is single-writer; one pooled connection keeps every Apply
	// serialized by the engine itself and keeps :memory: databases from
	// splitting across pool connections in tests.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	// Enable pragmas for performance and safety
	if err := enablePragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable pragmas: %w", err)
	}

	// Run goose migrations
	if err := RunMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// enablePragmas sets SQLite pragmas for optimal performance and safety.
func enablePragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
		"PRAGMA synchronous=NORMAL",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("execute %s: %w", pragma, err)
		}
	}

	return nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// storageErr wraps err with op context, tagging transient busy/locked
// conditions with ErrStorageUnavailable so callers can retry.
func storageErr(op string, err error) error {
	if isTransient(err) {
		return fmt.Errorf("%s: %w: %v", op, ErrStorageUnavailable, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

// UpsertUser lazily creates the subject row and refreshes its display
// label. An empty label never clobbers a previously captured one.
func (s *SQLiteStore) UpsertUser(ctx context.Context, subjectID int64, label string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (subject_id, label, balance) VALUES (?, ?, 0)
		ON CONFLICT(subject_id) DO UPDATE SET label = excluded.label
		WHERE excluded.label <> ''
	`, subjectID, label)
	if err != nil {
		return storageErr("upsert user", err)
	}
	return nil
}

// Apply inserts a fact and moves the subject's balance by its magnitude in
// one transaction: either both happen or neither does. A violation of the
// fact unique tuple reports Duplicate and leaves no mutation behind.
func (s *SQLiteStore) Apply(ctx context.Context, fact types.Fact) (Outcome, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Duplicate, storageErr("begin transaction", err)
	}
	defer tx.Rollback()

	outcome, err := applyInTx(ctx, tx, fact)
	if err != nil || outcome == Duplicate {
		return outcome, err
	}

	if err := tx.Commit(); err != nil {
		return Duplicate, storageErr("commit transaction", err)
	}
	return Applied, nil
}

// applyInTx inserts the fact and moves the subject's balance inside tx. It
// never commits; a violation of the fact unique tuple reports Duplicate and
// writes nothing.
func applyInTx(ctx context.Context, tx *sql.Tx, fact types.Fact) (Outcome, error) {
	id := ulid.Make().String()
	_, err := tx.ExecContext(ctx, `
		INSERT INTO facts (id, subject_id, kind, magnitude, chat_id, message_id, dedup_key, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, id, fact.SubjectID, string(fact.Kind), fact.Magnitude,
		fact.Scope.ChatID, fact.Scope.MessageID, fact.DedupKey,
		fact.CreatedAt.UTC().Format(timeFormat))
	if err != nil {
		if isUniqueViolation(err) {
			return Duplicate, nil
		}
		return Duplicate, storageErr("insert fact", err)
	}

	// The subject row may not exist yet when the first observation races
	// delivery of the label upsert. Creating it here keeps the lock-step
	// invariant independent of call order.
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO users (subject_id, label, balance) VALUES (?, '', 0)
		ON CONFLICT(subject_id) DO NOTHING
	`, fact.SubjectID); err != nil {
		return Duplicate, storageErr("ensure user", err)
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE users SET balance = balance + ? WHERE subject_id = ?
	`, fact.Magnitude, fact.SubjectID); err != nil {
		return Duplicate, storageErr("update balance", err)
	}
	return Applied, nil
}

// Balance returns the cached balance for a subject. Unknown subjects have
// balance zero; that is not an error.
func (s *SQLiteStore) Balance(ctx context.Context, subjectID int64) (int64, error) {
	var balance int64
	err := s.db.QueryRowContext(ctx,
		`SELECT balance FROM users WHERE subject_id = ?`, subjectID).Scan(&balance)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, storageErr("read balance", err)
	}
	return balance, nil
}

// TopBalances returns the all-time leaderboard, balance descending, ties
// broken by subject id ascending.
func (s *SQLiteStore) TopBalances(ctx context.Context, limit int) ([]types.BalanceEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT subject_id, label, balance
		FROM users
		ORDER BY balance DESC, subject_id ASC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, storageErr("query top balances", err)
	}
	defer rows.Close()

	entries := make([]types.BalanceEntry, 0)
	for rows.Next() {
		var e types.BalanceEntry
		if err := rows.Scan(&e.SubjectID, &e.Label, &e.Balance); err != nil {
			return nil, fmt.Errorf("scan balance entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Stats returns aggregate ledger statistics.
func (s *SQLiteStore) Stats(ctx context.Context) (*types.LedgerStats, error) {
	var stats types.LedgerStats
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM facts`).Scan(&stats.FactCount); err != nil {
		return nil, storageErr("count facts", err)
	}
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM users`).Scan(&stats.UserCount); err != nil {
		return nil, storageErr("count users", err)
	}
	return &stats, nil
}

package recorder

import (
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"
)

// SQLiteRecorder persists audit events to a local SQLite file.
type SQLiteRecorder struct {
	db *sql.DB
	mu sync.Mutex
}

// NewSQLiteRecorder opens (or creates) the database and runs migrations.
func NewSQLiteRecorder(dbPath string) (*SQLiteRecorder, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	r := &SQLiteRecorder{db: db}
	if err := r.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return r, nil
}

func (r *SQLiteRecorder) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS ledger_events (
			id             INTEGER PRIMARY KEY AUTOINCREMENT,
			timestamp      INTEGER NOT NULL,
			user_id        INTEGER NOT NULL,
			kind           TEXT NOT NULL,
			command        TEXT,
			outcome        TEXT NOT NULL,
			transaction_id TEXT,
			amount         TEXT,
			balance        TEXT,
			writes         INTEGER
		)`,
		`CREATE INDEX IF NOT EXISTS idx_ledger_events_user ON ledger_events(user_id, timestamp)`,
	}
	for _, s := range stmts {
		if _, err := r.db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (r *SQLiteRecorder) Record(evt *Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	at := evt.At
	if at.IsZero() {
		at = time.Now()
	}
	_, err := r.db.Exec(
		`INSERT INTO ledger_events (timestamp, user_id, kind, command, outcome, transaction_id, amount, balance, writes)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		at.UnixMilli(), evt.UserID, evt.Kind, evt.Command, evt.Outcome, evt.TransactionID,
		evt.Amount.String(), evt.Balance.String(), evt.Writes,
	)
	if err != nil {
		return fmt.Errorf("insert ledger event: %w", err)
	}
	return nil
}

// Recent returns the newest events of a user, newest first.
func (r *SQLiteRecorder) Recent(userID uint, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.Query(
		`SELECT timestamp, user_id, kind, command, outcome, transaction_id, amount, balance, writes
		 FROM ledger_events WHERE user_id = ? ORDER BY timestamp DESC, id DESC LIMIT ?`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("query ledger events: %w", err)
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var (
			ts              int64
			evt             Event
			amount, balance string
		)
		if err := rows.Scan(&ts, &evt.UserID, &evt.Kind, &evt.Command, &evt.Outcome, &evt.TransactionID, &amount, &balance, &evt.Writes); err != nil {
			return nil, fmt.Errorf("scan ledger event: %w", err)
		}
		evt.At = time.UnixMilli(ts)
		evt.Amount, _ = decimal.NewFromString(amount)
		evt.Balance, _ = decimal.NewFromString(balance)
		out = append(out, evt)
	}
	return out, rows.Err()
}

func (r *SQLiteRecorder) Close() error {
	return r.db.Close()
}

package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"fleet-cloud/internal/stream"
)

const defaultDeadLetterTable = "stream_dead_letters"

// DeadLetterStore is a Postgres implementation for entries dropped from a
// consumer group after exhausting their delivery budget.
type DeadLetterStore struct {
	db    *sql.DB
	table string
}

// NewDeadLetterStore constructs a dead-letter store.
func NewDeadLetterStore(db *sql.DB, opts ...DeadLetterOption) *DeadLetterStore {
	store := &DeadLetterStore{db: db, table: defaultDeadLetterTable}
	for _, opt := range opts {
		opt(store)
	}
	return store
}

// DeadLetterOption configures the store.
type DeadLetterOption func(*DeadLetterStore)

// WithDeadLetterTable overrides the table name.
func WithDeadLetterTable(table string) DeadLetterOption {
	return func(store *DeadLetterStore) {
		if table != "" {
			store.table = table
		}
	}
}

// Record inserts or updates a dead-letter record. The same entry dropped by
// the same group twice bumps the attempt counter instead of duplicating.
func (s *DeadLetterStore) Record(ctx context.Context, letter stream.DeadLetter) error {
	if s == nil || s.db == nil {
		return errors.New("dead-letter store: nil db")
	}
	if letter.EntryID == "" {
		return errors.New("dead-letter store: empty entry id")
	}

	query := fmt.Sprintf(`
INSERT INTO %s (
	stream,
	group_name,
	entry_id,
	event_type,
	payload,
	reason,
	first_seen_at,
	last_seen_at,
	attempts
) VALUES (
	$1, $2, $3, $4, $5, $6, $7, $7, 1
)
ON CONFLICT (stream, group_name, entry_id)
DO UPDATE SET
	payload = EXCLUDED.payload,
	reason = EXCLUDED.reason,
	last_seen_at = EXCLUDED.last_seen_at,
	attempts = %s.attempts + 1`, s.table, s.table)

	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx, query,
		letter.Stream, letter.Group, letter.EntryID, letter.EventType, letter.Payload, letter.Reason, now)
	return err
}

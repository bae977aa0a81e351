package pg

import (
	"context"
	"database/sql"
	"time"

	"github.com/familyassistant/core/internal/store"
)

// ErrorLogStore is the Postgres-backed append-only operator error log (§3.6).
type ErrorLogStore struct {
	db *sql.DB
}

func NewErrorLogStore(db *sql.DB) *ErrorLogStore {
	return &ErrorLogStore{db: db}
}

func (s *ErrorLogStore) Append(ctx context.Context, e *store.ErrorLogEntry) error {
	if e.Timestamp.IsZero() {
		e.Timestamp = store.Now()
	}
	return s.db.QueryRowContext(ctx,
		`INSERT INTO error_logs (timestamp, level, logger_name, message, traceback)
		 VALUES ($1,$2,$3,$4,$5) RETURNING id`,
		e.Timestamp, e.Level, e.LoggerName, e.Message, nilStr(e.Traceback),
	).Scan(&e.ID)
}

func (s *ErrorLogStore) List(ctx context.Context, since time.Time, limit int) ([]store.ErrorLogEntry, error) {
	if limit <= 0 {
		limit = 200
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, timestamp, level, logger_name, message, traceback
		 FROM error_logs WHERE timestamp >= $1 ORDER BY timestamp DESC LIMIT $2`, since, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []store.ErrorLogEntry
	for rows.Next() {
		var e store.ErrorLogEntry
		var traceback *string
		if err := rows.Scan(&e.ID, &e.Timestamp, &e.Level, &e.LoggerName, &e.Message, &traceback); err != nil {
			return nil, err
		}
		e.Traceback = derefStr(traceback)
		out = append(out, e)
	}
	return out, rows.Err()
}

package store

import (
	"context"
	"time"
)

// ErrorLogEntry is an append-only row in the error_logs table (§3.6).
type ErrorLogEntry struct {
	ID         int64      `json:"id"`
	Timestamp  time.Time  `json:"timestamp"`
	Level      ErrorLevel `json:"level"`
	LoggerName string     `json:"logger_name"`
	Message    string     `json:"message"`
	Traceback  string     `json:"traceback,omitempty"`
}

// ErrorLogStore is the append-only operator-visible error log.
type ErrorLogStore interface {
	Append(ctx context.Context, e *ErrorLogEntry) error
	List(ctx context.Context, since time.Time, limit int) ([]ErrorLogEntry, error)
}

// Package pg implements the internal/store interfaces on top of Postgres.
package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/familyassistant/core/internal/store"
)

// OpenDB opens a pooled connection to Postgres via the pgx stdlib driver.
func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}

// NewStores builds every store.Stores field backed by db.
func NewStores(db *sql.DB, cfg store.Config) *store.Stores {
	return &store.Stores{
		Messages:    NewMessageHistoryStore(db),
		Tasks:       NewTaskQueueStore(db),
		Automations: NewAutomationStore(db),
		Attachments: NewAttachmentStore(db),
		Documents:   NewDocumentStore(db),
		ErrorLog:    NewErrorLogStore(db),
		A2ATasks:    NewA2ATaskStore(db),
		MCPServers:  NewMCPServerStore(db),
	}
}

// --- small scan/arg helpers shared across the store/pg package ---

func nilStr(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func derefStr(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func jsonOrNull(v any) any {
	if v == nil {
		return nil
	}
	switch t := v.(type) {
	case map[string]string:
		if len(t) == 0 {
			return nil
		}
	case map[string]any:
		if len(t) == 0 {
			return nil
		}
	case []string:
		if len(t) == 0 {
			return nil
		}
	}
	b, err := json.Marshal(v)
	if err != nil || string(b) == "null" {
		return nil
	}
	return b
}

func decodeJSONInto(raw []byte, out any) error {
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, out)
}

// execMapUpdate builds and runs a single `UPDATE table SET ... WHERE id = $n`
// from an arbitrary column->value map, the pattern the teacher uses for its
// partial-update endpoints.
func execMapUpdate(ctx context.Context, db *sql.DB, table string, id any, updates map[string]any) error {
	if len(updates) == 0 {
		return nil
	}
	cols := make([]string, 0, len(updates))
	args := make([]any, 0, len(updates)+1)
	i := 1
	for col, val := range updates {
		cols = append(cols, fmt.Sprintf("%s = $%d", col, i))
		args = append(args, val)
		i++
	}
	args = append(args, id)
	q := fmt.Sprintf("UPDATE %s SET %s WHERE id = $%d", table, strings.Join(cols, ", "), i)
	res, err := db.ExecContext(ctx, q, args...)
	if err != nil {
		return err
	}
	_, err = res.RowsAffected()
	return err
}

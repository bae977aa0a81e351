package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/familyassistant/core/internal/store"
)

// A2ATaskStore is the Postgres-backed mirror of external agent-protocol
// task state (§3.7, §6.5).
type A2ATaskStore struct {
	db *sql.DB
}

func NewA2ATaskStore(db *sql.DB) *A2ATaskStore {
	return &A2ATaskStore{db: db}
}

func (s *A2ATaskStore) Create(ctx context.Context, t *store.A2ATask) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO a2a_tasks (task_id, profile_id, conversation_id, context_id, status, artifacts_json, history_json)
		 VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		t.TaskID, t.ProfileID, t.ConversationID, t.ContextID, t.Status,
		jsonOrEmptyRaw(t.ArtifactsJSON), jsonOrEmptyRaw(t.HistoryJSON),
	)
	return err
}

func (s *A2ATaskStore) Get(ctx context.Context, taskID string) (*store.A2ATask, error) {
	var t store.A2ATask
	err := s.db.QueryRowContext(ctx,
		`SELECT task_id, profile_id, conversation_id, context_id, status, artifacts_json, history_json
		 FROM a2a_tasks WHERE task_id = $1`, taskID,
	).Scan(&t.TaskID, &t.ProfileID, &t.ConversationID, &t.ContextID, &t.Status, &t.ArtifactsJSON, &t.HistoryJSON)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrA2ATaskNotFound
		}
		return nil, err
	}
	return &t, nil
}

func (s *A2ATaskStore) UpdateStatus(ctx context.Context, taskID string, status store.A2ATaskStatus) error {
	_, err := s.db.ExecContext(ctx, `UPDATE a2a_tasks SET status = $1 WHERE task_id = $2`, status, taskID)
	return err
}

func (s *A2ATaskStore) AppendArtifact(ctx context.Context, taskID string, artifact json.RawMessage) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE a2a_tasks SET artifacts_json = COALESCE(artifacts_json, '[]'::jsonb) || jsonb_build_array($1::jsonb)
		 WHERE task_id = $2`, []byte(artifact), taskID)
	return err
}

func (s *A2ATaskStore) AppendHistory(ctx context.Context, taskID string, entry json.RawMessage) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE a2a_tasks SET history_json = COALESCE(history_json, '[]'::jsonb) || jsonb_build_array($1::jsonb)
		 WHERE task_id = $2`, []byte(entry), taskID)
	return err
}

func jsonOrEmptyRaw(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return []byte(raw)
}

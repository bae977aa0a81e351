package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/familyassistant/core/internal/store"
)

// AutomationStore is the Postgres-backed unified schedule/event automation
// table (§3.3). Both variants share one table with a type discriminator,
// mirroring the teacher's single team_tasks table holding several logical
// kinds distinguished by a status/type column.
type AutomationStore struct {
	db *sql.DB
}

func NewAutomationStore(db *sql.DB) *AutomationStore {
	return &AutomationStore{db: db}
}

func (s *AutomationStore) CreateSchedule(ctx context.Context, a *store.Automation) error {
	a.Type = store.AutomationSchedule
	return s.insert(ctx, a)
}

func (s *AutomationStore) CreateEvent(ctx context.Context, a *store.Automation) error {
	a.Type = store.AutomationEvent
	return s.insert(ctx, a)
}

func (s *AutomationStore) insert(ctx context.Context, a *store.Automation) error {
	if a.ID == "" {
		a.ID = store.NewID()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = store.Now()
	}
	free, err := s.CheckNameAvailable(ctx, a.Name, a.ConversationID)
	if err != nil {
		return err
	}
	if !free {
		return store.ErrNameTaken
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO automations (id, type, name, description, conversation_id, interface_type, enabled,
		 created_at, last_execution_at, action_type, action_config,
		 recurrence_rule, next_scheduled_at, execution_count,
		 source_id, match_conditions, condition_script, one_time, daily_executions, daily_executions_reset_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20)`,
		a.ID, a.Type, a.Name, nilStr(a.Description), a.ConversationID, a.InterfaceType, a.Enabled,
		a.CreatedAt, a.LastExecutionAt, a.ActionType, jsonOrNull(a.ActionConfig),
		nilStr(a.RecurrenceRule), a.NextScheduledAt, a.ExecutionCount,
		nilStr(a.SourceID), jsonOrNull(a.MatchConditions), nilStr(a.ConditionScript), a.OneTime,
		a.DailyExecutions, a.DailyExecutionsResetAt,
	)
	return err
}

const automationColumns = `id, type, name, description, conversation_id, interface_type, enabled,
	created_at, last_execution_at, action_type, action_config,
	recurrence_rule, next_scheduled_at, execution_count,
	source_id, match_conditions, condition_script, one_time, daily_executions, daily_executions_reset_at`

func scanAutomation(row rowScanner) (store.Automation, error) {
	var a store.Automation
	var description, recurrence, sourceID, conditionScript *string
	var actionConfig, matchConditions []byte
	if err := row.Scan(
		&a.ID, &a.Type, &a.Name, &description, &a.ConversationID, &a.InterfaceType, &a.Enabled,
		&a.CreatedAt, &a.LastExecutionAt, &a.ActionType, &actionConfig,
		&recurrence, &a.NextScheduledAt, &a.ExecutionCount,
		&sourceID, &matchConditions, &conditionScript, &a.OneTime, &a.DailyExecutions, &a.DailyExecutionsResetAt,
	); err != nil {
		return store.Automation{}, err
	}
	a.Description = derefStr(description)
	a.RecurrenceRule = derefStr(recurrence)
	a.SourceID = derefStr(sourceID)
	a.ConditionScript = derefStr(conditionScript)
	if err := decodeJSONInto(actionConfig, &a.ActionConfig); err != nil {
		return store.Automation{}, err
	}
	if err := decodeJSONInto(matchConditions, &a.MatchConditions); err != nil {
		return store.Automation{}, err
	}
	return a, nil
}

func (s *AutomationStore) Get(ctx context.Context, id string) (*store.Automation, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+automationColumns+" FROM automations WHERE id = $1", id)
	a, err := scanAutomation(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrAutomationNotFound
		}
		return nil, err
	}
	return &a, nil
}

func (s *AutomationStore) getTx(ctx context.Context, tx *sql.Tx, id string) (*store.Automation, error) {
	row := tx.QueryRowContext(ctx, "SELECT "+automationColumns+" FROM automations WHERE id = $1 FOR UPDATE", id)
	a, err := scanAutomation(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrAutomationNotFound
		}
		return nil, err
	}
	return &a, nil
}

func (s *AutomationStore) Update(ctx context.Context, id string, updates map[string]any) error {
	if len(updates) == 0 {
		return nil
	}
	_, changesRule := updates["recurrence_rule"]
	if !changesRule {
		return execMapUpdate(ctx, s.db, "automations", id, updates)
	}

	// Changing the recurrence rule cancels pending queue instances for this
	// automation in the same transaction (§4.2).
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	cols := make([]string, 0, len(updates))
	args := make([]any, 0, len(updates)+1)
	i := 1
	for col, val := range updates {
		cols = append(cols, fmt.Sprintf("%s = $%d", col, i))
		args = append(args, val)
		i++
	}
	args = append(args, id)
	if _, err := tx.ExecContext(ctx,
		fmt.Sprintf("UPDATE automations SET %s WHERE id = $%d", strings.Join(cols, ", "), i), args...,
	); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE tasks SET status = $1, worker_id = NULL, lease_expires_at = NULL
		 WHERE status IN ($2, $3) AND payload->>'automation_id' = $4`,
		store.TaskCancelled, store.TaskPending, store.TaskInProgress, id,
	); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *AutomationStore) Delete(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM automations WHERE id = $1", id)
	return err
}

func (s *AutomationStore) ListByConversation(ctx context.Context, conversationID string) ([]store.Automation, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+automationColumns+" FROM automations WHERE conversation_id = $1 ORDER BY created_at", conversationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []store.Automation
	for rows.Next() {
		a, err := scanAutomation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *AutomationStore) ListEnabledEvents(ctx context.Context, sourceID string) ([]store.Automation, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+automationColumns+" FROM automations WHERE type = $1 AND enabled AND source_id = $2",
		store.AutomationEvent, sourceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []store.Automation
	for rows.Next() {
		a, err := scanAutomation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *AutomationStore) CheckNameAvailable(ctx context.Context, name, conversationID string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM automations WHERE name = $1 AND conversation_id = $2)`,
		name, conversationID,
	).Scan(&exists)
	return !exists, err
}

func (s *AutomationStore) RecordScheduleExecution(ctx context.Context, automationID string, executedAt time.Time,
	nextAfter func(from time.Time, rule string) (time.Time, bool, error),
	enqueueNext func(a *store.Automation, next time.Time) error) error {

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	a, err := s.getTx(ctx, tx, automationID)
	if err != nil {
		if errors.Is(err, store.ErrAutomationNotFound) {
			return nil
		}
		return err
	}
	if !a.Enabled {
		return nil
	}

	next, ok, err := nextAfter(executedAt, a.RecurrenceRule)
	if err != nil {
		return err
	}

	a.LastExecutionAt = &executedAt
	a.ExecutionCount++
	if !ok {
		_, err = tx.ExecContext(ctx,
			`UPDATE automations SET last_execution_at = $1, execution_count = $2, next_scheduled_at = NULL, enabled = false
			 WHERE id = $3`, executedAt, a.ExecutionCount, automationID)
		if err != nil {
			return err
		}
		return tx.Commit()
	}

	a.NextScheduledAt = &next
	if _, err := tx.ExecContext(ctx,
		`UPDATE automations SET last_execution_at = $1, execution_count = $2, next_scheduled_at = $3
		 WHERE id = $4`, executedAt, a.ExecutionCount, next, automationID,
	); err != nil {
		return err
	}
	if err := enqueueNext(a, next); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *AutomationStore) TriggerEvent(ctx context.Context, automationID string, enqueue func(a *store.Automation) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	a, err := s.getTx(ctx, tx, automationID)
	if err != nil {
		return err
	}
	if !a.Enabled {
		return nil
	}
	if err := enqueue(a); err != nil {
		return err
	}
	if a.OneTime {
		if _, err := tx.ExecContext(ctx, `UPDATE automations SET enabled = false WHERE id = $1`, automationID); err != nil {
			return err
		}
	}
	return tx.Commit()
}

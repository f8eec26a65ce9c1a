package history

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound — запись не найдена в журнале.
var ErrNotFound = errors.New("not found")

// Record — одна запись журнала выполнений.
type Record struct {
	ID         uuid.UUID
	TaskID     string
	WorkflowID string
	TaskType   string
	WorkerID   string
	Status     string
	Reason     string
	Duration   time.Duration
	OccurredAt time.Time
}

// Store — хранилище журнала выполнений поверх PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore создаёт Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// EnsureSchema создаёт таблицу журнала, если её ещё нет.
func (s *Store) EnsureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS task_executions (
			id UUID PRIMARY KEY,
			task_id TEXT NOT NULL,
			workflow_id TEXT NOT NULL,
			task_type TEXT NOT NULL,
			worker_id TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL,
			reason TEXT NOT NULL DEFAULT '',
			duration_ms BIGINT NOT NULL DEFAULT 0,
			occurred_at TIMESTAMPTZ NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_task_executions_workflow
			ON task_executions (workflow_id);
		CREATE INDEX IF NOT EXISTS idx_task_executions_task
			ON task_executions (task_id);
	`)
	if err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// Insert добавляет запись в журнал.
func (s *Store) Insert(ctx context.Context, rec *Record) error {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	if rec.OccurredAt.IsZero() {
		rec.OccurredAt = time.Now()
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO task_executions
			(id, task_id, workflow_id, task_type, worker_id, status, reason, duration_ms, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`,
		rec.ID,
		rec.TaskID,
		rec.WorkflowID,
		rec.TaskType,
		rec.WorkerID,
		rec.Status,
		rec.Reason,
		rec.Duration.Milliseconds(),
		rec.OccurredAt,
	)
	if err != nil {
		return fmt.Errorf("insert execution record: %w", err)
	}
	return nil
}

// ListByWorkflow возвращает записи журнала для workflow,
// от новых к старым.
func (s *Store) ListByWorkflow(ctx context.Context, workflowID string, limit int) ([]Record, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, task_id, workflow_id, task_type, worker_id, status, reason, duration_ms, occurred_at
		FROM task_executions
		WHERE workflow_id = $1
		ORDER BY occurred_at DESC
		LIMIT $2
	`, workflowID, limit)
	if err != nil {
		return nil, fmt.Errorf("list execution records: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

// LastByTask возвращает последнюю запись журнала для task.
func (s *Store) LastByTask(ctx context.Context, taskID string) (*Record, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, task_id, workflow_id, task_type, worker_id, status, reason, duration_ms, occurred_at
		FROM task_executions
		WHERE task_id = $1
		ORDER BY occurred_at DESC
		LIMIT 1
	`, taskID)

	rec, err := scanRecord(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return rec, err
}

func scanRecord(row pgx.Row) (*Record, error) {
	var rec Record
	var durationMS int64

	err := row.Scan(
		&rec.ID,
		&rec.TaskID,
		&rec.WorkflowID,
		&rec.TaskType,
		&rec.WorkerID,
		&rec.Status,
		&rec.Reason,
		&durationMS,
		&rec.OccurredAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan execution record: %w", err)
	}

	rec.Duration = time.Duration(durationMS) * time.Millisecond
	return &rec, nil
}

// Package postgres provides the PostgreSQL implementation of the task-state
// store. Tasks reference their parent with an ON DELETE CASCADE foreign key,
// so delete_task removes whole subtrees in one statement.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/attercap/sennet/internal/taskstate"
)

// Ensure Store implements the taskstate.Store interface at compile time.
var _ taskstate.Store = (*Store)(nil)

const ddl = `
CREATE TABLE IF NOT EXISTS tasks (
    id             TEXT         PRIMARY KEY,
    title          TEXT         NOT NULL,
    description    TEXT         NOT NULL DEFAULT '',
    status         TEXT         NOT NULL,
    priority       TEXT         NOT NULL,
    assignee       TEXT         NOT NULL DEFAULT '',
    parent_task_id TEXT         REFERENCES tasks(id) ON DELETE CASCADE,
    metadata       JSONB        NOT NULL DEFAULT '{}',
    created_at     TIMESTAMPTZ  NOT NULL DEFAULT now(),
    updated_at     TIMESTAMPTZ  NOT NULL DEFAULT now(),
    completed_at   TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_tasks_parent  ON tasks (parent_task_id);
CREATE INDEX IF NOT EXISTS idx_tasks_status  ON tasks (status);
CREATE INDEX IF NOT EXISTS idx_tasks_created ON tasks (created_at DESC);

CREATE TABLE IF NOT EXISTS instance_states (
    instance_id       TEXT         PRIMARY KEY,
    current_task_id   TEXT         NOT NULL DEFAULT '',
    status            TEXT         NOT NULL DEFAULT 'active',
    working_directory TEXT         NOT NULL DEFAULT '',
    last_heartbeat    TIMESTAMPTZ  NOT NULL DEFAULT now(),
    metadata          JSONB        NOT NULL DEFAULT '{}'
);
`

const taskColumns = `id, title, description, status, priority, assignee,
	parent_task_id, metadata, created_at, updated_at, completed_at`

// Store is the Postgres-backed task-state store. All operations are safe
// for concurrent use.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore connects to the database at dsn and ensures the schema exists.
func NewStore(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("taskstate: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("taskstate: ping: %w", err)
	}
	if err := Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("taskstate: migrate: %w", err)
	}
	return &Store{pool: pool}, nil
}

// Migrate ensures the tasks and instance_states tables exist.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("taskstate: apply schema: %w", err)
	}
	return nil
}

// Close releases the connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

// Ping checks database connectivity. Used by readiness probes.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// CreateTask implements [taskstate.Store]. The parent check and the insert
// share one transaction so a concurrent parent delete cannot slip between
// them.
func (s *Store) CreateTask(ctx context.Context, t taskstate.NewTask) (taskstate.Task, error) {
	task, err := taskstate.PrepareTask(t)
	if err != nil {
		return taskstate.Task{}, err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return taskstate.Task{}, fmt.Errorf("taskstate: begin: %w", err)
	}
	defer tx.Rollback(ctx)

	if task.ParentTaskID != "" {
		var exists bool
		err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM tasks WHERE id = $1)`, task.ParentTaskID).Scan(&exists)
		if err != nil {
			return taskstate.Task{}, fmt.Errorf("taskstate: check parent: %w", err)
		}
		if !exists {
			return taskstate.Task{}, fmt.Errorf("%w: %q", taskstate.ErrUnknownParent, task.ParentTaskID)
		}
	}

	const q = `
		INSERT INTO tasks (id, title, description, status, priority, assignee, parent_task_id, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING ` + taskColumns

	row := tx.QueryRow(ctx, q,
		task.ID, task.Title, task.Description, string(task.Status), string(task.Priority),
		task.Assignee, nullable(task.ParentTaskID), metadataOrEmpty(task.Metadata))
	created, err := scanTask(row)
	if err != nil {
		return taskstate.Task{}, fmt.Errorf("taskstate: create task: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return taskstate.Task{}, fmt.Errorf("taskstate: commit: %w", err)
	}
	return created, nil
}

// UpdateTask implements [taskstate.Store]. Only whitelisted columns can
// change; completed_at is stamped once, on the transition to completed.
func (s *Store) UpdateTask(ctx context.Context, id string, upd taskstate.TaskUpdate) (taskstate.Task, error) {
	if err := taskstate.ValidateUpdate(upd); err != nil {
		return taskstate.Task{}, err
	}

	set := []string{"updated_at = now()"}
	args := []any{id}
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if upd.Title != nil {
		set = append(set, "title = "+arg(*upd.Title))
	}
	if upd.Description != nil {
		set = append(set, "description = "+arg(*upd.Description))
	}
	if upd.Priority != nil {
		set = append(set, "priority = "+arg(string(*upd.Priority)))
	}
	if upd.Assignee != nil {
		set = append(set, "assignee = "+arg(*upd.Assignee))
	}
	if upd.Metadata != nil {
		set = append(set, "metadata = "+arg(upd.Metadata))
	}
	if upd.Status != nil {
		set = append(set, "status = "+arg(string(*upd.Status)))
		if *upd.Status == taskstate.StatusCompleted {
			set = append(set, "completed_at = COALESCE(completed_at, now())")
		}
	}

	q := "UPDATE tasks SET " + strings.Join(set, ", ") + " WHERE id = $1 RETURNING " + taskColumns
	task, err := scanTask(s.pool.QueryRow(ctx, q, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return taskstate.Task{}, fmt.Errorf("%w: %q", taskstate.ErrTaskNotFound, id)
	}
	if err != nil {
		return taskstate.Task{}, fmt.Errorf("taskstate: update task: %w", err)
	}
	return task, nil
}

// DeleteTask implements [taskstate.Store]. The FK cascade removes subtasks.
func (s *Store) DeleteTask(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM tasks WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("taskstate: delete task: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %q", taskstate.ErrTaskNotFound, id)
	}
	return nil
}

// GetTask implements [taskstate.Store].
func (s *Store) GetTask(ctx context.Context, id string) (taskstate.TaskDetail, error) {
	task, err := scanTask(s.pool.QueryRow(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return taskstate.TaskDetail{}, fmt.Errorf("%w: %q", taskstate.ErrTaskNotFound, id)
	}
	if err != nil {
		return taskstate.TaskDetail{}, fmt.Errorf("taskstate: get task: %w", err)
	}

	rows, err := s.pool.Query(ctx, `SELECT id FROM tasks WHERE parent_task_id = $1 ORDER BY id`, id)
	if err != nil {
		return taskstate.TaskDetail{}, fmt.Errorf("taskstate: list subtasks: %w", err)
	}
	subtaskIDs, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return taskstate.TaskDetail{}, fmt.Errorf("taskstate: collect subtasks: %w", err)
	}
	if subtaskIDs == nil {
		subtaskIDs = []string{}
	}
	return taskstate.TaskDetail{Task: task, SubtaskIDs: subtaskIDs}, nil
}

// QueryTasks implements [taskstate.Store].
func (s *Store) QueryTasks(ctx context.Context, f taskstate.TaskFilter) ([]taskstate.Task, error) {
	var where []string
	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if f.ID != "" {
		where = append(where, "id = "+arg(f.ID))
	}
	if f.Status != "" {
		where = append(where, "status = "+arg(string(f.Status)))
	}
	if f.Priority != "" {
		where = append(where, "priority = "+arg(string(f.Priority)))
	}
	if f.Assignee != "" {
		where = append(where, "assignee = "+arg(f.Assignee))
	}
	if f.ParentTaskID != "" {
		where = append(where, "parent_task_id = "+arg(f.ParentTaskID))
	}
	if f.TitleContains != "" {
		where = append(where, "title ILIKE "+arg("%"+f.TitleContains+"%"))
	}
	if f.DescriptionContains != "" {
		where = append(where, "description ILIKE "+arg("%"+f.DescriptionContains+"%"))
	}

	q := `SELECT ` + taskColumns + ` FROM tasks`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY created_at DESC"

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("taskstate: query tasks: %w", err)
	}
	tasks, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (taskstate.Task, error) {
		return scanTask(row)
	})
	if err != nil {
		return nil, fmt.Errorf("taskstate: collect tasks: %w", err)
	}
	return tasks, nil
}

// Heartbeat implements [taskstate.Store].
func (s *Store) Heartbeat(ctx context.Context, instanceID string) error {
	if instanceID == "" {
		return fmt.Errorf("taskstate: empty instance id")
	}
	const q = `
		INSERT INTO instance_states (instance_id, last_heartbeat)
		VALUES ($1, now())
		ON CONFLICT (instance_id) DO UPDATE SET last_heartbeat = now()`
	if _, err := s.pool.Exec(ctx, q, instanceID); err != nil {
		return fmt.Errorf("taskstate: heartbeat %s: %w", instanceID, err)
	}
	return nil
}

// SetInstanceState implements [taskstate.Store]. The write counts as a
// heartbeat.
func (s *Store) SetInstanceState(ctx context.Context, state taskstate.InstanceState) error {
	if state.InstanceID == "" {
		return fmt.Errorf("taskstate: empty instance id")
	}
	if !state.Status.IsValid() {
		return fmt.Errorf("%w: instance status %q", taskstate.ErrInvalidEnum, state.Status)
	}
	const q = `
		INSERT INTO instance_states (instance_id, current_task_id, status, working_directory, last_heartbeat, metadata)
		VALUES ($1, $2, $3, $4, now(), $5)
		ON CONFLICT (instance_id) DO UPDATE SET
		    current_task_id   = EXCLUDED.current_task_id,
		    status            = EXCLUDED.status,
		    working_directory = EXCLUDED.working_directory,
		    last_heartbeat    = now(),
		    metadata          = EXCLUDED.metadata`
	_, err := s.pool.Exec(ctx, q,
		state.InstanceID, state.CurrentTaskID, string(state.Status),
		state.WorkingDirectory, metadataOrEmpty(state.Metadata))
	if err != nil {
		return fmt.Errorf("taskstate: set instance state %s: %w", state.InstanceID, err)
	}
	return nil
}

// GetInstanceState implements [taskstate.Store].
func (s *Store) GetInstanceState(ctx context.Context, instanceID string) (taskstate.InstanceState, error) {
	const q = `
		SELECT instance_id, current_task_id, status, working_directory, last_heartbeat, metadata
		FROM instance_states WHERE instance_id = $1`
	state, err := scanInstance(s.pool.QueryRow(ctx, q, instanceID))
	if errors.Is(err, pgx.ErrNoRows) {
		return taskstate.InstanceState{}, fmt.Errorf("%w: %q", taskstate.ErrInstanceNotFound, instanceID)
	}
	if err != nil {
		return taskstate.InstanceState{}, fmt.Errorf("taskstate: get instance state: %w", err)
	}
	return state, nil
}

// ListActiveInstances implements [taskstate.Store].
func (s *Store) ListActiveInstances(ctx context.Context) ([]taskstate.InstanceState, error) {
	const q = `
		SELECT instance_id, current_task_id, status, working_directory, last_heartbeat, metadata
		FROM instance_states
		WHERE last_heartbeat > now() - $1::interval
		ORDER BY instance_id`
	rows, err := s.pool.Query(ctx, q, taskstate.ActiveWindow.String())
	if err != nil {
		return nil, fmt.Errorf("taskstate: list active instances: %w", err)
	}
	instances, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (taskstate.InstanceState, error) {
		return scanInstance(row)
	})
	if err != nil {
		return nil, fmt.Errorf("taskstate: collect instances: %w", err)
	}
	return instances, nil
}

func scanTask(row pgx.Row) (taskstate.Task, error) {
	var t taskstate.Task
	var status, priority string
	var parent *string
	var completedAt *time.Time
	err := row.Scan(&t.ID, &t.Title, &t.Description, &status, &priority, &t.Assignee,
		&parent, &t.Metadata, &t.CreatedAt, &t.UpdatedAt, &completedAt)
	if err != nil {
		return taskstate.Task{}, err
	}
	t.Status = taskstate.TaskStatus(status)
	t.Priority = taskstate.Priority(priority)
	if parent != nil {
		t.ParentTaskID = *parent
	}
	t.CompletedAt = completedAt
	return t, nil
}

func scanInstance(row pgx.Row) (taskstate.InstanceState, error) {
	var s taskstate.InstanceState
	var status string
	err := row.Scan(&s.InstanceID, &s.CurrentTaskID, &status, &s.WorkingDirectory, &s.LastHeartbeat, &s.Metadata)
	if err != nil {
		return taskstate.InstanceState{}, err
	}
	s.Status = taskstate.InstanceStatus(status)
	return s, nil
}

// nullable maps the empty string to SQL NULL so the parent FK holds.
func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func metadataOrEmpty(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}

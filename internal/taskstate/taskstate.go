// Package taskstate is the persistent task and instance-heartbeat store
// behind the sennet-state service. Tasks form a tree via parent_task_id and
// deleting a parent cascades to its children; instances are considered
// active while their last heartbeat is younger than five minutes.
//
// The Store interface is implemented twice: MemStore for tests and DSN-less
// runs, and postgres.Store for the real service. The MCP surface in server.go
// exposes one tool per operation; client.go is the stdio client the daemon
// uses to heartbeat itself.
package taskstate

import (
	"context"
	"errors"
	"time"
)

// ActiveWindow is how recent a heartbeat must be for an instance to count
// as active.
const ActiveWindow = 5 * time.Minute

var (
	ErrTaskNotFound     = errors.New("taskstate: task not found")
	ErrInstanceNotFound = errors.New("taskstate: instance not found")
	ErrInvalidEnum      = errors.New("taskstate: invalid enum value")
	ErrUnknownParent    = errors.New("taskstate: parent task does not exist")
)

// TaskStatus is the lifecycle state of a task.
type TaskStatus string

const (
	StatusPending    TaskStatus = "pending"
	StatusInProgress TaskStatus = "in_progress"
	StatusCompleted  TaskStatus = "completed"
	StatusBlocked    TaskStatus = "blocked"
)

// IsValid reports whether s is a known task status.
func (s TaskStatus) IsValid() bool {
	switch s {
	case StatusPending, StatusInProgress, StatusCompleted, StatusBlocked:
		return true
	}
	return false
}

// Priority orders tasks by urgency.
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// IsValid reports whether p is a known priority.
func (p Priority) IsValid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical:
		return true
	}
	return false
}

// InstanceStatus is the self-reported state of an agent instance.
type InstanceStatus string

const (
	InstanceActive InstanceStatus = "active"
	InstanceIdle   InstanceStatus = "idle"
	InstanceBusy   InstanceStatus = "busy"
)

// IsValid reports whether s is a known instance status.
func (s InstanceStatus) IsValid() bool {
	switch s {
	case InstanceActive, InstanceIdle, InstanceBusy:
		return true
	}
	return false
}

// Task is one unit of tracked work.
type Task struct {
	ID           string         `json:"id"`
	Title        string         `json:"title"`
	Description  string         `json:"description,omitempty"`
	Status       TaskStatus     `json:"status"`
	Priority     Priority       `json:"priority"`
	Assignee     string         `json:"assignee,omitempty"`
	ParentTaskID string         `json:"parent_task_id,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`

	// CompletedAt is set exactly when Status transitions to completed.
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// TaskDetail is a task plus the IDs of its direct subtasks.
type TaskDetail struct {
	Task
	SubtaskIDs []string `json:"subtask_ids"`
}

// NewTask carries the caller-supplied fields of create_task. Zero-value
// Status and Priority default to pending/medium.
type NewTask struct {
	Title        string
	Description  string
	Status       TaskStatus
	Priority     Priority
	Assignee     string
	ParentTaskID string
	Metadata     map[string]any
}

// TaskUpdate holds the whitelisted mutable fields of update_task. Nil
// pointers leave the field unchanged.
type TaskUpdate struct {
	Title       *string
	Description *string
	Status      *TaskStatus
	Priority    *Priority
	Assignee    *string
	Metadata    map[string]any
}

// TaskFilter narrows query_tasks results. Zero values match everything.
type TaskFilter struct {
	ID                  string
	Status              TaskStatus
	Priority            Priority
	Assignee            string
	ParentTaskID        string
	TitleContains       string
	DescriptionContains string
}

// InstanceState is the last known state of one agent instance.
type InstanceState struct {
	InstanceID       string         `json:"instance_id"`
	CurrentTaskID    string         `json:"current_task_id,omitempty"`
	Status           InstanceStatus `json:"status"`
	WorkingDirectory string         `json:"working_directory,omitempty"`
	LastHeartbeat    time.Time      `json:"last_heartbeat"`
	Metadata         map[string]any `json:"metadata,omitempty"`
}

// Store persists tasks and instance states. Implementations must validate
// enums before writing and never leave partial writes behind on error.
type Store interface {
	// CreateTask validates enums and the parent reference, then inserts the
	// task and returns the full record with server-assigned fields.
	CreateTask(ctx context.Context, t NewTask) (Task, error)

	// UpdateTask applies the non-nil fields of upd. Setting Status to
	// completed stamps CompletedAt.
	UpdateTask(ctx context.Context, id string, upd TaskUpdate) (Task, error)

	// DeleteTask removes the task and, transitively, its subtasks.
	DeleteTask(ctx context.Context, id string) error

	// GetTask returns the task together with its direct subtask IDs.
	GetTask(ctx context.Context, id string) (TaskDetail, error)

	// QueryTasks returns tasks matching every set filter field, newest first.
	QueryTasks(ctx context.Context, f TaskFilter) ([]Task, error)

	// Heartbeat upserts the instance's last_heartbeat, creating the
	// instance record on first call.
	Heartbeat(ctx context.Context, instanceID string) error

	// SetInstanceState replaces the instance record, preserving the
	// heartbeat timestamp semantics of Heartbeat.
	SetInstanceState(ctx context.Context, s InstanceState) error

	// GetInstanceState returns the instance record.
	GetInstanceState(ctx context.Context, instanceID string) (InstanceState, error)

	// ListActiveInstances returns instances whose heartbeat is within
	// ActiveWindow of now.
	ListActiveInstances(ctx context.Context) ([]InstanceState, error)
}

package taskstate

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Compile-time assertion that MemStore satisfies the Store interface.
var _ Store = (*MemStore)(nil)

// MemStore is a thread-safe, in-memory implementation of [Store]. It backs
// tests and DSN-less runs of the state service.
type MemStore struct {
	mu        sync.RWMutex
	tasks     map[string]Task
	instances map[string]InstanceState

	now func() time.Time
}

// MemOption configures a MemStore.
type MemOption func(*MemStore)

// WithMemClock replaces the wall clock, for tests.
func WithMemClock(now func() time.Time) MemOption {
	return func(s *MemStore) { s.now = now }
}

// NewMemStore returns an initialised [MemStore].
func NewMemStore(opts ...MemOption) *MemStore {
	s := &MemStore{
		tasks:     make(map[string]Task),
		instances: make(map[string]InstanceState),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateTask implements [Store.CreateTask].
func (s *MemStore) CreateTask(_ context.Context, t NewTask) (Task, error) {
	task, err := PrepareTask(t)
	if err != nil {
		return Task{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if task.ParentTaskID != "" {
		if _, ok := s.tasks[task.ParentTaskID]; !ok {
			return Task{}, fmt.Errorf("%w: %q", ErrUnknownParent, task.ParentTaskID)
		}
	}
	now := s.now().UTC()
	task.CreatedAt = now
	task.UpdatedAt = now
	s.tasks[task.ID] = task
	return task, nil
}

// UpdateTask implements [Store.UpdateTask].
func (s *MemStore) UpdateTask(_ context.Context, id string, upd TaskUpdate) (Task, error) {
	if err := ValidateUpdate(upd); err != nil {
		return Task{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	task, ok := s.tasks[id]
	if !ok {
		return Task{}, fmt.Errorf("%w: %q", ErrTaskNotFound, id)
	}

	if upd.Title != nil {
		task.Title = *upd.Title
	}
	if upd.Description != nil {
		task.Description = *upd.Description
	}
	if upd.Priority != nil {
		task.Priority = *upd.Priority
	}
	if upd.Assignee != nil {
		task.Assignee = *upd.Assignee
	}
	if upd.Metadata != nil {
		task.Metadata = upd.Metadata
	}
	now := s.now().UTC()
	if upd.Status != nil {
		task.Status = *upd.Status
		if *upd.Status == StatusCompleted && task.CompletedAt == nil {
			stamp := now
			task.CompletedAt = &stamp
		}
	}
	task.UpdatedAt = now
	s.tasks[id] = task
	return task, nil
}

// DeleteTask implements [Store.DeleteTask]. Subtasks are removed
// transitively.
func (s *MemStore) DeleteTask(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tasks[id]; !ok {
		return fmt.Errorf("%w: %q", ErrTaskNotFound, id)
	}
	s.deleteTreeLocked(id)
	return nil
}

func (s *MemStore) deleteTreeLocked(id string) {
	delete(s.tasks, id)
	for childID, child := range s.tasks {
		if child.ParentTaskID == id {
			s.deleteTreeLocked(childID)
		}
	}
}

// GetTask implements [Store.GetTask].
func (s *MemStore) GetTask(_ context.Context, id string) (TaskDetail, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	task, ok := s.tasks[id]
	if !ok {
		return TaskDetail{}, fmt.Errorf("%w: %q", ErrTaskNotFound, id)
	}
	detail := TaskDetail{Task: task, SubtaskIDs: []string{}}
	for childID, child := range s.tasks {
		if child.ParentTaskID == id {
			detail.SubtaskIDs = append(detail.SubtaskIDs, childID)
		}
	}
	sort.Strings(detail.SubtaskIDs)
	return detail, nil
}

// QueryTasks implements [Store.QueryTasks].
func (s *MemStore) QueryTasks(_ context.Context, f TaskFilter) ([]Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]Task, 0, len(s.tasks))
	for _, t := range s.tasks {
		if matchesFilter(t, f) {
			result = append(result, t)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return result, nil
}

// Heartbeat implements [Store.Heartbeat].
func (s *MemStore) Heartbeat(_ context.Context, instanceID string) error {
	if instanceID == "" {
		return fmt.Errorf("taskstate: empty instance id")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	inst, ok := s.instances[instanceID]
	if !ok {
		inst = InstanceState{InstanceID: instanceID, Status: InstanceActive}
	}
	inst.LastHeartbeat = s.now().UTC()
	s.instances[instanceID] = inst
	return nil
}

// SetInstanceState implements [Store.SetInstanceState]. The write counts as
// a heartbeat.
func (s *MemStore) SetInstanceState(_ context.Context, state InstanceState) error {
	if state.InstanceID == "" {
		return fmt.Errorf("taskstate: empty instance id")
	}
	if !state.Status.IsValid() {
		return fmt.Errorf("%w: instance status %q", ErrInvalidEnum, state.Status)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	state.LastHeartbeat = s.now().UTC()
	s.instances[state.InstanceID] = state
	return nil
}

// GetInstanceState implements [Store.GetInstanceState].
func (s *MemStore) GetInstanceState(_ context.Context, instanceID string) (InstanceState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	inst, ok := s.instances[instanceID]
	if !ok {
		return InstanceState{}, fmt.Errorf("%w: %q", ErrInstanceNotFound, instanceID)
	}
	return inst, nil
}

// ListActiveInstances implements [Store.ListActiveInstances].
func (s *MemStore) ListActiveInstances(_ context.Context) ([]InstanceState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cutoff := s.now().UTC().Add(-ActiveWindow)
	result := make([]InstanceState, 0, len(s.instances))
	for _, inst := range s.instances {
		if inst.LastHeartbeat.After(cutoff) {
			result = append(result, inst)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].InstanceID < result[j].InstanceID
	})
	return result, nil
}

// PrepareTask validates a NewTask and fills defaults and the generated ID.
// Timestamps are the caller's responsibility.
func PrepareTask(t NewTask) (Task, error) {
	if strings.TrimSpace(t.Title) == "" {
		return Task{}, fmt.Errorf("taskstate: title must not be empty")
	}
	if t.Status == "" {
		t.Status = StatusPending
	}
	if t.Priority == "" {
		t.Priority = PriorityMedium
	}
	if !t.Status.IsValid() {
		return Task{}, fmt.Errorf("%w: status %q", ErrInvalidEnum, t.Status)
	}
	if !t.Priority.IsValid() {
		return Task{}, fmt.Errorf("%w: priority %q", ErrInvalidEnum, t.Priority)
	}
	return Task{
		ID:           uuid.NewString(),
		Title:        t.Title,
		Description:  t.Description,
		Status:       t.Status,
		Priority:     t.Priority,
		Assignee:     t.Assignee,
		ParentTaskID: t.ParentTaskID,
		Metadata:     t.Metadata,
	}, nil
}

// ValidateUpdate rejects invalid enum values before anything is written.
func ValidateUpdate(upd TaskUpdate) error {
	if upd.Status != nil && !upd.Status.IsValid() {
		return fmt.Errorf("%w: status %q", ErrInvalidEnum, *upd.Status)
	}
	if upd.Priority != nil && !upd.Priority.IsValid() {
		return fmt.Errorf("%w: priority %q", ErrInvalidEnum, *upd.Priority)
	}
	return nil
}

// matchesFilter reports whether t satisfies every set field of f.
func matchesFilter(t Task, f TaskFilter) bool {
	if f.ID != "" && t.ID != f.ID {
		return false
	}
	if f.Status != "" && t.Status != f.Status {
		return false
	}
	if f.Priority != "" && t.Priority != f.Priority {
		return false
	}
	if f.Assignee != "" && t.Assignee != f.Assignee {
		return false
	}
	if f.ParentTaskID != "" && t.ParentTaskID != f.ParentTaskID {
		return false
	}
	if f.TitleContains != "" && !strings.Contains(strings.ToLower(t.Title), strings.ToLower(f.TitleContains)) {
		return false
	}
	if f.DescriptionContains != "" && !strings.Contains(strings.ToLower(t.Description), strings.ToLower(f.DescriptionContains)) {
		return false
	}
	return true
}

package taskstate

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestCreateTask_Defaults(t *testing.T) {
	t.Parallel()

	store := NewMemStore()
	task, err := store.CreateTask(context.Background(), NewTask{Title: "fix the build"})
	if err != nil {
		t.Fatalf("CreateTask: %v", err)
	}
	if task.ID == "" {
		t.Fatal("no id assigned")
	}
	if task.Status != StatusPending || task.Priority != PriorityMedium {
		t.Fatalf("defaults = %s/%s, want pending/medium", task.Status, task.Priority)
	}
	if task.CreatedAt.IsZero() || task.UpdatedAt.IsZero() {
		t.Fatal("timestamps not set")
	}
	if task.CompletedAt != nil {
		t.Fatal("new task has completed_at")
	}
}

func TestCreateTask_Validation(t *testing.T) {
	t.Parallel()

	store := NewMemStore()
	ctx := context.Background()

	if _, err := store.CreateTask(ctx, NewTask{Title: "   "}); err == nil {
		t.Error("empty title: expected error")
	}
	if _, err := store.CreateTask(ctx, NewTask{Title: "t", Status: "done"}); !errors.Is(err, ErrInvalidEnum) {
		t.Errorf("bad status: err = %v, want ErrInvalidEnum", err)
	}
	if _, err := store.CreateTask(ctx, NewTask{Title: "t", Priority: "urgent"}); !errors.Is(err, ErrInvalidEnum) {
		t.Errorf("bad priority: err = %v, want ErrInvalidEnum", err)
	}
	if _, err := store.CreateTask(ctx, NewTask{Title: "t", ParentTaskID: "ghost"}); !errors.Is(err, ErrUnknownParent) {
		t.Errorf("unknown parent: err = %v, want ErrUnknownParent", err)
	}
}

func TestUpdateTask_CompletionStampsCompletedAt(t *testing.T) {
	t.Parallel()

	store := NewMemStore()
	ctx := context.Background()

	created, err := store.CreateTask(ctx, NewTask{Title: "ship it"})
	if err != nil {
		t.Fatalf("CreateTask: %v", err)
	}

	completed := StatusCompleted
	updated, err := store.UpdateTask(ctx, created.ID, TaskUpdate{Status: &completed})
	if err != nil {
		t.Fatalf("UpdateTask: %v", err)
	}
	if updated.CompletedAt == nil {
		t.Fatal("completed_at not stamped")
	}
	if updated.CompletedAt.Before(created.UpdatedAt) {
		t.Fatalf("completed_at %v before creation %v", updated.CompletedAt, created.UpdatedAt)
	}

	detail, err := store.GetTask(ctx, created.ID)
	if err != nil {
		t.Fatalf("GetTask: %v", err)
	}
	if detail.CompletedAt == nil {
		t.Fatal("completed_at lost on read")
	}
}

func TestUpdateTask_WhitelistAndErrors(t *testing.T) {
	t.Parallel()

	store := NewMemStore()
	ctx := context.Background()

	created, _ := store.CreateTask(ctx, NewTask{Title: "original"})

	title := "renamed"
	assignee := "claude"
	updated, err := store.UpdateTask(ctx, created.ID, TaskUpdate{Title: &title, Assignee: &assignee})
	if err != nil {
		t.Fatalf("UpdateTask: %v", err)
	}
	if updated.Title != "renamed" || updated.Assignee != "claude" {
		t.Fatalf("update not applied: %+v", updated)
	}
	if updated.Status != StatusPending {
		t.Fatalf("untouched status changed to %s", updated.Status)
	}

	bad := TaskStatus("nope")
	if _, err := store.UpdateTask(ctx, created.ID, TaskUpdate{Status: &bad}); !errors.Is(err, ErrInvalidEnum) {
		t.Errorf("bad status: err = %v, want ErrInvalidEnum", err)
	}
	if _, err := store.UpdateTask(ctx, "missing", TaskUpdate{Title: &title}); !errors.Is(err, ErrTaskNotFound) {
		t.Errorf("missing id: err = %v, want ErrTaskNotFound", err)
	}
}

func TestDeleteTask_Cascades(t *testing.T) {
	t.Parallel()

	store := NewMemStore()
	ctx := context.Background()

	parent, _ := store.CreateTask(ctx, NewTask{Title: "parent"})
	child, _ := store.CreateTask(ctx, NewTask{Title: "child", ParentTaskID: parent.ID})
	grandchild, _ := store.CreateTask(ctx, NewTask{Title: "grandchild", ParentTaskID: child.ID})
	unrelated, _ := store.CreateTask(ctx, NewTask{Title: "unrelated"})

	if err := store.DeleteTask(ctx, parent.ID); err != nil {
		t.Fatalf("DeleteTask: %v", err)
	}
	for _, id := range []string{parent.ID, child.ID, grandchild.ID} {
		if _, err := store.GetTask(ctx, id); !errors.Is(err, ErrTaskNotFound) {
			t.Errorf("task %s survived the cascade: %v", id, err)
		}
	}
	if _, err := store.GetTask(ctx, unrelated.ID); err != nil {
		t.Errorf("unrelated task deleted: %v", err)
	}

	if err := store.DeleteTask(ctx, "never-existed"); !errors.Is(err, ErrTaskNotFound) {
		t.Errorf("delete missing: err = %v, want ErrTaskNotFound", err)
	}
}

func TestGetTask_SubtaskIDs(t *testing.T) {
	t.Parallel()

	store := NewMemStore()
	ctx := context.Background()

	parent, _ := store.CreateTask(ctx, NewTask{Title: "parent"})
	a, _ := store.CreateTask(ctx, NewTask{Title: "a", ParentTaskID: parent.ID})
	b, _ := store.CreateTask(ctx, NewTask{Title: "b", ParentTaskID: parent.ID})

	detail, err := store.GetTask(ctx, parent.ID)
	if err != nil {
		t.Fatalf("GetTask: %v", err)
	}
	if len(detail.SubtaskIDs) != 2 {
		t.Fatalf("subtask ids = %v, want 2", detail.SubtaskIDs)
	}
	found := map[string]bool{}
	for _, id := range detail.SubtaskIDs {
		found[id] = true
	}
	if !found[a.ID] || !found[b.ID] {
		t.Fatalf("subtask ids = %v, want %s and %s", detail.SubtaskIDs, a.ID, b.ID)
	}

	leaf, err := store.GetTask(ctx, a.ID)
	if err != nil {
		t.Fatalf("GetTask leaf: %v", err)
	}
	if len(leaf.SubtaskIDs) != 0 {
		t.Fatalf("leaf subtask ids = %v, want empty", leaf.SubtaskIDs)
	}
}

func TestQueryTasks_FiltersAndOrder(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	store := NewMemStore(WithMemClock(clock))
	ctx := context.Background()

	first, _ := store.CreateTask(ctx, NewTask{Title: "refactor the parser", Assignee: "claude", Priority: PriorityHigh})
	now = now.Add(time.Minute)
	second, _ := store.CreateTask(ctx, NewTask{Title: "write release notes", Description: "mention the parser fix"})
	now = now.Add(time.Minute)
	third, _ := store.CreateTask(ctx, NewTask{Title: "deploy", Assignee: "claude"})

	all, err := store.QueryTasks(ctx, TaskFilter{})
	if err != nil {
		t.Fatalf("QueryTasks: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("want 3 tasks, got %d", len(all))
	}
	if all[0].ID != third.ID || all[2].ID != first.ID {
		t.Fatalf("not newest-first: %s, %s, %s", all[0].Title, all[1].Title, all[2].Title)
	}

	tests := []struct {
		name   string
		filter TaskFilter
		want   int
	}{
		{"by assignee", TaskFilter{Assignee: "claude"}, 2},
		{"by priority", TaskFilter{Priority: PriorityHigh}, 1},
		{"by id", TaskFilter{ID: second.ID}, 1},
		{"title contains", TaskFilter{TitleContains: "PARSER"}, 1},
		{"description contains", TaskFilter{DescriptionContains: "parser"}, 1},
		{"assignee and title", TaskFilter{Assignee: "claude", TitleContains: "deploy"}, 1},
		{"no match", TaskFilter{Status: StatusBlocked}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := store.QueryTasks(ctx, tt.filter)
			if err != nil {
				t.Fatalf("QueryTasks: %v", err)
			}
			if len(got) != tt.want {
				t.Fatalf("want %d, got %d", tt.want, len(got))
			}
		})
	}
}

func TestHeartbeat_ActiveWindow(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	store := NewMemStore(WithMemClock(clock))
	ctx := context.Background()

	if err := store.Heartbeat(ctx, "daemon-1"); err != nil {
		t.Fatalf("Heartbeat: %v", err)
	}

	active, err := store.ListActiveInstances(ctx)
	if err != nil {
		t.Fatalf("ListActiveInstances: %v", err)
	}
	if len(active) != 1 || active[0].InstanceID != "daemon-1" {
		t.Fatalf("active = %v, want daemon-1", active)
	}

	// Just inside the window.
	now = now.Add(ActiveWindow - time.Second)
	active, _ = store.ListActiveInstances(ctx)
	if len(active) != 1 {
		t.Fatalf("inside window: want 1 active, got %d", len(active))
	}

	// Beyond the window.
	now = now.Add(2 * time.Second)
	active, _ = store.ListActiveInstances(ctx)
	if len(active) != 0 {
		t.Fatalf("outside window: want 0 active, got %d", len(active))
	}

	// A fresh heartbeat revives it.
	if err := store.Heartbeat(ctx, "daemon-1"); err != nil {
		t.Fatalf("Heartbeat: %v", err)
	}
	active, _ = store.ListActiveInstances(ctx)
	if len(active) != 1 {
		t.Fatalf("after revive: want 1 active, got %d", len(active))
	}
}

func TestSetInstanceState(t *testing.T) {
	t.Parallel()

	store := NewMemStore()
	ctx := context.Background()

	err := store.SetInstanceState(ctx, InstanceState{
		InstanceID:       "daemon-1",
		Status:           InstanceBusy,
		CurrentTaskID:    "task-9",
		WorkingDirectory: "/home/dev/project",
	})
	if err != nil {
		t.Fatalf("SetInstanceState: %v", err)
	}

	state, err := store.GetInstanceState(ctx, "daemon-1")
	if err != nil {
		t.Fatalf("GetInstanceState: %v", err)
	}
	if state.Status != InstanceBusy || state.CurrentTaskID != "task-9" {
		t.Fatalf("state = %+v", state)
	}
	if state.LastHeartbeat.IsZero() {
		t.Fatal("set_instance_state did not count as a heartbeat")
	}

	if err := store.SetInstanceState(ctx, InstanceState{InstanceID: "x", Status: "sleeping"}); !errors.Is(err, ErrInvalidEnum) {
		t.Errorf("bad status: err = %v, want ErrInvalidEnum", err)
	}
	if _, err := store.GetInstanceState(ctx, "ghost"); !errors.Is(err, ErrInstanceNotFound) {
		t.Errorf("missing instance: err = %v, want ErrInstanceNotFound", err)
	}
}

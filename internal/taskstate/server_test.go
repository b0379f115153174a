package taskstate

import (
	"context"
	"testing"
)

// Tool handlers are exercised directly against a MemStore; the stdio
// transport and JSON-RPC framing belong to the SDK.

func TestHandleCreateAndGetTask(t *testing.T) {
	t.Parallel()

	srv := NewServer(NewMemStore())
	ctx := context.Background()

	_, task, err := srv.handleCreateTask(ctx, nil, CreateTaskArgs{
		Title:    "wire the knowledge base",
		Priority: "high",
		Assignee: "codex",
	})
	if err != nil {
		t.Fatalf("create_task: %v", err)
	}
	if task.Priority != PriorityHigh || task.Status != StatusPending {
		t.Fatalf("task = %+v", task)
	}

	_, sub, err := srv.handleCreateTask(ctx, nil, CreateTaskArgs{
		Title:        "write the schema",
		ParentTaskID: task.ID,
	})
	if err != nil {
		t.Fatalf("create_task subtask: %v", err)
	}

	_, detail, err := srv.handleGetTask(ctx, nil, TaskIDArgs{ID: task.ID})
	if err != nil {
		t.Fatalf("get_task: %v", err)
	}
	if len(detail.SubtaskIDs) != 1 || detail.SubtaskIDs[0] != sub.ID {
		t.Fatalf("subtask ids = %v, want [%s]", detail.SubtaskIDs, sub.ID)
	}
}

func TestHandleCreateTask_InvalidEnum(t *testing.T) {
	t.Parallel()

	srv := NewServer(NewMemStore())
	if _, _, err := srv.handleCreateTask(context.Background(), nil, CreateTaskArgs{
		Title:  "bad",
		Status: "done",
	}); err == nil {
		t.Fatal("invalid status accepted")
	}
}

func TestHandleUpdateTask_Completion(t *testing.T) {
	t.Parallel()

	srv := NewServer(NewMemStore())
	ctx := context.Background()

	_, task, err := srv.handleCreateTask(ctx, nil, CreateTaskArgs{Title: "finish me"})
	if err != nil {
		t.Fatalf("create_task: %v", err)
	}

	status := "completed"
	_, updated, err := srv.handleUpdateTask(ctx, nil, UpdateTaskArgs{ID: task.ID, Status: &status})
	if err != nil {
		t.Fatalf("update_task: %v", err)
	}
	if updated.CompletedAt == nil {
		t.Fatal("completed_at not stamped through the tool surface")
	}
}

func TestHandleDeleteTask_CascadeAndQuery(t *testing.T) {
	t.Parallel()

	srv := NewServer(NewMemStore())
	ctx := context.Background()

	_, parent, _ := srv.handleCreateTask(ctx, nil, CreateTaskArgs{Title: "parent"})
	_, _, err := srv.handleCreateTask(ctx, nil, CreateTaskArgs{Title: "child", ParentTaskID: parent.ID})
	if err != nil {
		t.Fatalf("create_task child: %v", err)
	}

	_, ok, err := srv.handleDeleteTask(ctx, nil, TaskIDArgs{ID: parent.ID})
	if err != nil || !ok.OK {
		t.Fatalf("delete_task: ok=%v err=%v", ok.OK, err)
	}

	_, result, err := srv.handleQueryTasks(ctx, nil, QueryTasksArgs{})
	if err != nil {
		t.Fatalf("query_tasks: %v", err)
	}
	if len(result.Tasks) != 0 {
		t.Fatalf("tasks survived the cascade: %v", result.Tasks)
	}
}

func TestHandleInstanceLifecycle(t *testing.T) {
	t.Parallel()

	srv := NewServer(NewMemStore())
	ctx := context.Background()

	_, ok, err := srv.handleHeartbeat(ctx, nil, InstanceIDArgs{InstanceID: "daemon-1"})
	if err != nil || !ok.OK {
		t.Fatalf("heartbeat: ok=%v err=%v", ok.OK, err)
	}

	_, ok, err = srv.handleSetInstanceState(ctx, nil, SetInstanceStateArgs{
		InstanceID: "daemon-1",
		Status:     "busy",
	})
	if err != nil || !ok.OK {
		t.Fatalf("set_instance_state: ok=%v err=%v", ok.OK, err)
	}

	_, state, err := srv.handleGetInstanceState(ctx, nil, InstanceIDArgs{InstanceID: "daemon-1"})
	if err != nil {
		t.Fatalf("get_instance_state: %v", err)
	}
	if state.Status != InstanceBusy {
		t.Fatalf("status = %s, want busy", state.Status)
	}

	_, list, err := srv.handleListActiveInstances(ctx, nil, EmptyArgs{})
	if err != nil {
		t.Fatalf("list_active_instances: %v", err)
	}
	if len(list.Instances) != 1 || list.Instances[0].InstanceID != "daemon-1" {
		t.Fatalf("instances = %v", list.Instances)
	}
}

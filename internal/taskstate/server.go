package taskstate

import (
	"context"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
)

const (
	// ServerName identifies the MCP server to connecting clients.
	ServerName    = "sennet-state"
	ServerVersion = "0.1.0"
)

// Server exposes a [Store] as an MCP server: one tool per store operation,
// spoken over stdio as line-delimited JSON-RPC 2.0. Unknown methods are
// rejected by the SDK with error code -32601.
type Server struct {
	store     Store
	mcpServer *mcpsdk.Server
}

// NewServer wraps store in an MCP server with all tools registered.
func NewServer(store Store) *Server {
	s := &Server{
		store: store,
		mcpServer: mcpsdk.NewServer(
			&mcpsdk.Implementation{Name: ServerName, Version: ServerVersion},
			nil,
		),
	}
	s.registerTools()
	return s
}

// Run serves MCP on stdio, blocking until ctx is cancelled or the client
// disconnects.
func (s *Server) Run(ctx context.Context) error {
	return s.mcpServer.Run(ctx, &mcpsdk.StdioTransport{})
}

func (s *Server) registerTools() {
	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "create_task",
		Description: "Create a task. Status defaults to pending, priority to medium; parent_task_id must reference an existing task. Returns the full record.",
	}, s.handleCreateTask)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "update_task",
		Description: "Update whitelisted fields of a task. Setting status to completed stamps completed_at.",
	}, s.handleUpdateTask)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "delete_task",
		Description: "Delete a task and, transitively, all of its subtasks.",
	}, s.handleDeleteTask)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "get_task",
		Description: "Fetch a task together with the IDs of its direct subtasks.",
	}, s.handleGetTask)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "query_tasks",
		Description: "List tasks matching the given filters, ordered by creation time descending.",
	}, s.handleQueryTasks)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "heartbeat",
		Description: "Record a heartbeat for an instance, creating the instance record on first call.",
	}, s.handleHeartbeat)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "set_instance_state",
		Description: "Replace an instance's state record. The write also counts as a heartbeat.",
	}, s.handleSetInstanceState)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "get_instance_state",
		Description: "Fetch the state record of one instance.",
	}, s.handleGetInstanceState)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "list_active_instances",
		Description: "List instances whose last heartbeat is within the last five minutes.",
	}, s.handleListActiveInstances)
}

// ─── Tool argument and result shapes ─────────────────────────────────────────

// CreateTaskArgs is the input for the "create_task" tool.
type CreateTaskArgs struct {
	Title        string         `json:"title"`
	Description  string         `json:"description,omitempty"`
	Status       string         `json:"status,omitempty"`
	Priority     string         `json:"priority,omitempty"`
	Assignee     string         `json:"assignee,omitempty"`
	ParentTaskID string         `json:"parent_task_id,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

// UpdateTaskArgs is the input for the "update_task" tool. Absent fields are
// left unchanged.
type UpdateTaskArgs struct {
	ID          string         `json:"id"`
	Title       *string        `json:"title,omitempty"`
	Description *string        `json:"description,omitempty"`
	Status      *string        `json:"status,omitempty"`
	Priority    *string        `json:"priority,omitempty"`
	Assignee    *string        `json:"assignee,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// TaskIDArgs is the input for the "delete_task" and "get_task" tools.
type TaskIDArgs struct {
	ID string `json:"id"`
}

// QueryTasksArgs is the input for the "query_tasks" tool. Absent filters
// match everything.
type QueryTasksArgs struct {
	ID                  string `json:"id,omitempty"`
	Status              string `json:"status,omitempty"`
	Priority            string `json:"priority,omitempty"`
	Assignee            string `json:"assignee,omitempty"`
	ParentTaskID        string `json:"parent_task_id,omitempty"`
	TitleContains       string `json:"title_contains,omitempty"`
	DescriptionContains string `json:"description_contains,omitempty"`
}

// InstanceIDArgs is the input for the "heartbeat" and "get_instance_state"
// tools.
type InstanceIDArgs struct {
	InstanceID string `json:"instance_id"`
}

// SetInstanceStateArgs is the input for the "set_instance_state" tool.
type SetInstanceStateArgs struct {
	InstanceID       string         `json:"instance_id"`
	CurrentTaskID    string         `json:"current_task_id,omitempty"`
	Status           string         `json:"status"`
	WorkingDirectory string         `json:"working_directory,omitempty"`
	Metadata         map[string]any `json:"metadata,omitempty"`
}

// EmptyArgs is the input for tools that take no parameters.
type EmptyArgs struct{}

// OKResult acknowledges a side-effecting tool call.
type OKResult struct {
	OK bool `json:"ok"`
}

// TaskListResult is the output of "query_tasks".
type TaskListResult struct {
	Tasks []Task `json:"tasks"`
}

// InstanceListResult is the output of "list_active_instances".
type InstanceListResult struct {
	Instances []InstanceState `json:"instances"`
}

// ─── Handlers ────────────────────────────────────────────────────────────────

func (s *Server) handleCreateTask(ctx context.Context, _ *mcpsdk.CallToolRequest, args CreateTaskArgs) (*mcpsdk.CallToolResult, Task, error) {
	task, err := s.store.CreateTask(ctx, NewTask{
		Title:        args.Title,
		Description:  args.Description,
		Status:       TaskStatus(args.Status),
		Priority:     Priority(args.Priority),
		Assignee:     args.Assignee,
		ParentTaskID: args.ParentTaskID,
		Metadata:     args.Metadata,
	})
	if err != nil {
		return nil, Task{}, err
	}
	return nil, task, nil
}

func (s *Server) handleUpdateTask(ctx context.Context, _ *mcpsdk.CallToolRequest, args UpdateTaskArgs) (*mcpsdk.CallToolResult, Task, error) {
	upd := TaskUpdate{
		Title:       args.Title,
		Description: args.Description,
		Assignee:    args.Assignee,
		Metadata:    args.Metadata,
	}
	if args.Status != nil {
		status := TaskStatus(*args.Status)
		upd.Status = &status
	}
	if args.Priority != nil {
		priority := Priority(*args.Priority)
		upd.Priority = &priority
	}
	task, err := s.store.UpdateTask(ctx, args.ID, upd)
	if err != nil {
		return nil, Task{}, err
	}
	return nil, task, nil
}

func (s *Server) handleDeleteTask(ctx context.Context, _ *mcpsdk.CallToolRequest, args TaskIDArgs) (*mcpsdk.CallToolResult, OKResult, error) {
	if err := s.store.DeleteTask(ctx, args.ID); err != nil {
		return nil, OKResult{}, err
	}
	return nil, OKResult{OK: true}, nil
}

func (s *Server) handleGetTask(ctx context.Context, _ *mcpsdk.CallToolRequest, args TaskIDArgs) (*mcpsdk.CallToolResult, TaskDetail, error) {
	detail, err := s.store.GetTask(ctx, args.ID)
	if err != nil {
		return nil, TaskDetail{}, err
	}
	return nil, detail, nil
}

func (s *Server) handleQueryTasks(ctx context.Context, _ *mcpsdk.CallToolRequest, args QueryTasksArgs) (*mcpsdk.CallToolResult, TaskListResult, error) {
	tasks, err := s.store.QueryTasks(ctx, TaskFilter{
		ID:                  args.ID,
		Status:              TaskStatus(args.Status),
		Priority:            Priority(args.Priority),
		Assignee:            args.Assignee,
		ParentTaskID:        args.ParentTaskID,
		TitleContains:       args.TitleContains,
		DescriptionContains: args.DescriptionContains,
	})
	if err != nil {
		return nil, TaskListResult{}, err
	}
	return nil, TaskListResult{Tasks: tasks}, nil
}

func (s *Server) handleHeartbeat(ctx context.Context, _ *mcpsdk.CallToolRequest, args InstanceIDArgs) (*mcpsdk.CallToolResult, OKResult, error) {
	if err := s.store.Heartbeat(ctx, args.InstanceID); err != nil {
		return nil, OKResult{}, err
	}
	return nil, OKResult{OK: true}, nil
}

func (s *Server) handleSetInstanceState(ctx context.Context, _ *mcpsdk.CallToolRequest, args SetInstanceStateArgs) (*mcpsdk.CallToolResult, OKResult, error) {
	err := s.store.SetInstanceState(ctx, InstanceState{
		InstanceID:       args.InstanceID,
		CurrentTaskID:    args.CurrentTaskID,
		Status:           InstanceStatus(args.Status),
		WorkingDirectory: args.WorkingDirectory,
		Metadata:         args.Metadata,
	})
	if err != nil {
		return nil, OKResult{}, err
	}
	return nil, OKResult{OK: true}, nil
}

func (s *Server) handleGetInstanceState(ctx context.Context, _ *mcpsdk.CallToolRequest, args InstanceIDArgs) (*mcpsdk.CallToolResult, InstanceState, error) {
	state, err := s.store.GetInstanceState(ctx, args.InstanceID)
	if err != nil {
		return nil, InstanceState{}, err
	}
	return nil, state, nil
}

func (s *Server) handleListActiveInstances(ctx context.Context, _ *mcpsdk.CallToolRequest, _ EmptyArgs) (*mcpsdk.CallToolResult, InstanceListResult, error) {
	instances, err := s.store.ListActiveInstances(ctx)
	if err != nil {
		return nil, InstanceListResult{}, err
	}
	return nil, InstanceListResult{Instances: instances}, nil
}

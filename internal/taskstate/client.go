package taskstate

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
)

// Client talks to a running sennet-state server over stdio. The daemon uses
// it to report its own heartbeat and instance state so the orchestrator
// shows up alongside the agent instances it supervises.
type Client struct {
	session *mcpsdk.ClientSession
}

// Dial spawns the server command (typically "sennet-state") and performs
// the MCP handshake. The subprocess lives until Close is called or ctx is
// cancelled.
func Dial(ctx context.Context, command []string) (*Client, error) {
	if len(command) == 0 {
		return nil, fmt.Errorf("taskstate: empty server command")
	}
	cmd := exec.CommandContext(ctx, command[0], command[1:]...)
	client := mcpsdk.NewClient(
		&mcpsdk.Implementation{Name: "sennet", Version: "1.0.0"},
		nil,
	)
	session, err := client.Connect(ctx, &mcpsdk.CommandTransport{Command: cmd}, nil)
	if err != nil {
		return nil, fmt.Errorf("taskstate: connect to %s: %w", command[0], err)
	}
	return &Client{session: session}, nil
}

// Close shuts down the server subprocess.
func (c *Client) Close() error {
	return c.session.Close()
}

// Heartbeat records a heartbeat for instanceID.
func (c *Client) Heartbeat(ctx context.Context, instanceID string) error {
	var out OKResult
	return c.call(ctx, "heartbeat", InstanceIDArgs{InstanceID: instanceID}, &out)
}

// SetInstanceState replaces the instance record.
func (c *Client) SetInstanceState(ctx context.Context, state InstanceState) error {
	var out OKResult
	return c.call(ctx, "set_instance_state", SetInstanceStateArgs{
		InstanceID:       state.InstanceID,
		CurrentTaskID:    state.CurrentTaskID,
		Status:           string(state.Status),
		WorkingDirectory: state.WorkingDirectory,
		Metadata:         state.Metadata,
	}, &out)
}

// CreateTask creates a task and returns the full record.
func (c *Client) CreateTask(ctx context.Context, t NewTask) (Task, error) {
	var out Task
	err := c.call(ctx, "create_task", CreateTaskArgs{
		Title:        t.Title,
		Description:  t.Description,
		Status:       string(t.Status),
		Priority:     string(t.Priority),
		Assignee:     t.Assignee,
		ParentTaskID: t.ParentTaskID,
		Metadata:     t.Metadata,
	}, &out)
	return out, err
}

// QueryTasks lists tasks matching the filter, newest first.
func (c *Client) QueryTasks(ctx context.Context, f TaskFilter) ([]Task, error) {
	var out TaskListResult
	err := c.call(ctx, "query_tasks", QueryTasksArgs{
		ID:                  f.ID,
		Status:              string(f.Status),
		Priority:            string(f.Priority),
		Assignee:            f.Assignee,
		ParentTaskID:        f.ParentTaskID,
		TitleContains:       f.TitleContains,
		DescriptionContains: f.DescriptionContains,
	}, &out)
	return out.Tasks, err
}

// ListActiveInstances lists instances seen within the last five minutes.
func (c *Client) ListActiveInstances(ctx context.Context) ([]InstanceState, error) {
	var out InstanceListResult
	err := c.call(ctx, "list_active_instances", EmptyArgs{}, &out)
	return out.Instances, err
}

// call invokes a tool and decodes the JSON text content into out.
func (c *Client) call(ctx context.Context, tool string, args, out any) error {
	result, err := c.session.CallTool(ctx, &mcpsdk.CallToolParams{
		Name:      tool,
		Arguments: args,
	})
	if err != nil {
		return fmt.Errorf("taskstate: call %s: %w", tool, err)
	}

	var sb strings.Builder
	for _, content := range result.Content {
		if tc, ok := content.(*mcpsdk.TextContent); ok {
			sb.WriteString(tc.Text)
		}
	}
	if result.IsError {
		return fmt.Errorf("taskstate: %s failed: %s", tool, sb.String())
	}
	if out == nil || sb.Len() == 0 {
		return nil
	}
	if err := json.Unmarshal([]byte(sb.String()), out); err != nil {
		return fmt.Errorf("taskstate: decode %s result: %w", tool, err)
	}
	return nil
}

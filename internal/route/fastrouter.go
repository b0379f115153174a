package route

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// ErrNoRoute reports that no fast-route pattern matched and the caller
// should escalate to the next routing tier.
var ErrNoRoute = errors.New("route: no matching command")

// DefaultAgents are the coding-agent names recognised when none are
// configured.
var DefaultAgents = []string{"claude", "gemini", "codex", "opencode"}

// Action tags what a fast route did.
type Action string

const (
	ActionAssign Action = "assign"
	ActionCheck  Action = "check"
	ActionSwitch Action = "switch"
	ActionCancel Action = "cancel"
	ActionList   Action = "list"
)

// Result is a handled fast route: the action taken and the reply to speak.
type Result struct {
	Action Action
	Window int
	Reply  string
}

// checkReplyLimit caps the spoken length of a status check.
const checkReplyLimit = 200

type rule struct {
	re     *regexp.Regexp
	handle func(ctx context.Context, m []string) (Result, error)
}

// FastRouter is the deterministic routing tier. Patterns are tried in
// order against the lower-cased utterance; the first match wins and its
// effect runs immediately through the [TaskRouter].
type FastRouter struct {
	tasks *TaskRouter
	rules []rule
}

// NewFastRouter builds the pattern table. agents extends the dispatchable
// names beyond [DefaultAgents]; pass nil for the defaults alone.
func NewFastRouter(tasks *TaskRouter, agents []string) *FastRouter {
	f := &FastRouter{tasks: tasks}

	names := append(append([]string(nil), DefaultAgents...), agents...)
	quoted := make([]string, 0, len(names))
	seen := make(map[string]struct{}, len(names))
	for _, n := range names {
		n = strings.ToLower(strings.TrimSpace(n))
		if n == "" {
			continue
		}
		if _, dup := seen[n]; dup {
			continue
		}
		seen[n] = struct{}{}
		quoted = append(quoted, regexp.QuoteMeta(n))
	}
	nameAlt := strings.Join(quoted, "|")

	f.rules = []rule{
		{
			re:     regexp.MustCompile(`^(?:tell|send|ask|have|get)\s+(?:window\s+)?(\d+)\s+(?:to\s+)?(.+)$`),
			handle: f.assignByIndex,
		},
		{
			re:     regexp.MustCompile(`^(?:tell|send|ask|have|get)\s+(` + nameAlt + `)\s+(?:to\s+)?(.+)$`),
			handle: f.assignByName,
		},
		{
			re:     regexp.MustCompile(`^(?:check|status)\s+(?:on\s+|of\s+)?(?:window\s+)?(\d+)$`),
			handle: f.check,
		},
		{
			re:     regexp.MustCompile(`^(?:switch|go)\s+(?:to\s+)?(?:window\s+)?(\d+)$`),
			handle: f.switchWindow,
		},
		{
			re:     regexp.MustCompile(`^(?:cancel|stop|kill)\s+(?:window\s+)?(\d+)$`),
			handle: f.cancel,
		},
		{
			re:     regexp.MustCompile(`^(?:list|show)\s+(?:all\s+)?windows$`),
			handle: f.list,
		},
	}
	return f
}

// Route tries the pattern table against text. It returns [ErrNoRoute] when
// nothing matches; any other error means a pattern matched but the tmux
// action failed.
func (f *FastRouter) Route(ctx context.Context, text string) (Result, error) {
	input := normalize(text)
	for _, r := range f.rules {
		m := r.re.FindStringSubmatch(input)
		if m == nil {
			continue
		}
		return r.handle(ctx, m)
	}
	return Result{}, ErrNoRoute
}

func normalize(text string) string {
	s := strings.ToLower(strings.TrimSpace(text))
	return strings.TrimRight(s, ".,!?")
}

func (f *FastRouter) assignByIndex(ctx context.Context, m []string) (Result, error) {
	window, _ := strconv.Atoi(m[1])
	return f.assign(ctx, window, m[2])
}

func (f *FastRouter) assignByName(ctx context.Context, m []string) (Result, error) {
	name, prompt := m[1], m[2]
	window, ok, err := f.findWindow(ctx, name)
	if err != nil {
		return Result{}, err
	}
	if !ok {
		return Result{
			Action: ActionAssign,
			Window: -1,
			Reply:  fmt.Sprintf("I couldn't find a window running %s.", name),
		}, nil
	}
	return f.assign(ctx, window, prompt)
}

func (f *FastRouter) assign(ctx context.Context, window int, prompt string) (Result, error) {
	if _, err := f.tasks.Assign(ctx, window, prompt); err != nil {
		return Result{}, err
	}
	return Result{
		Action: ActionAssign,
		Window: window,
		Reply:  fmt.Sprintf("Sent to window %d.", window),
	}, nil
}

func (f *FastRouter) check(ctx context.Context, m []string) (Result, error) {
	window, _ := strconv.Atoi(m[1])
	tail, err := f.tasks.Peek(ctx, window, 3)
	if err != nil {
		return Result{}, err
	}
	reply := strings.TrimSpace(tail)
	if reply == "" {
		reply = fmt.Sprintf("Window %d is empty.", window)
	} else if len(reply) > checkReplyLimit {
		reply = reply[:checkReplyLimit]
	}
	return Result{Action: ActionCheck, Window: window, Reply: reply}, nil
}

func (f *FastRouter) switchWindow(ctx context.Context, m []string) (Result, error) {
	window, _ := strconv.Atoi(m[1])
	if err := f.tasks.Switch(ctx, window); err != nil {
		return Result{}, err
	}
	return Result{
		Action: ActionSwitch,
		Window: window,
		Reply:  fmt.Sprintf("Switched to window %d.", window),
	}, nil
}

func (f *FastRouter) cancel(ctx context.Context, m []string) (Result, error) {
	window, _ := strconv.Atoi(m[1])
	if err := f.tasks.Cancel(ctx, window); err != nil {
		return Result{}, err
	}
	return Result{
		Action: ActionCancel,
		Window: window,
		Reply:  fmt.Sprintf("Cancelled window %d.", window),
	}, nil
}

func (f *FastRouter) list(ctx context.Context, _ []string) (Result, error) {
	rows, err := f.tasks.List(ctx)
	if err != nil {
		return Result{}, err
	}
	if len(rows) == 0 {
		return Result{Action: ActionList, Window: -1, Reply: "No windows open."}, nil
	}
	names := make([]string, 0, len(rows))
	for _, row := range rows {
		name := fmt.Sprintf("%d %s", row.Window.Index, row.Window.Name)
		if row.TaskStatus == StatusActive {
			name += " busy"
		}
		names = append(names, name)
	}
	reply := fmt.Sprintf("%d windows: %s.", len(rows), strings.Join(names, ", "))
	return Result{Action: ActionList, Window: -1, Reply: reply}, nil
}

// findWindow resolves an agent name to a window index by case-insensitive
// substring match against window names.
func (f *FastRouter) findWindow(ctx context.Context, name string) (int, bool, error) {
	windows, err := f.tasks.tmux.ListWindows(ctx)
	if err != nil {
		return 0, false, fmt.Errorf("route: find window %q: %w", name, err)
	}
	for _, w := range windows {
		if strings.Contains(strings.ToLower(w.Name), name) {
			return w.Index, true, nil
		}
	}
	return 0, false, nil
}

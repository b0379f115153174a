package screen

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
)

// Describer turns a screenshot into prose. *Vision satisfies it.
type Describer interface {
	Describe(ctx context.Context, imagePath, question string) string
}

// Context assembles the screen-context block that rides along with full
// brain prompts.
type Context struct {
	desktop *Desktop
	vision  Describer
}

// NewContext creates a context assembler. vision may be nil, in which case
// the visual path is OCR only.
func NewContext(desktop *Desktop, vision Describer) *Context {
	return &Context{desktop: desktop, vision: vision}
}

// Gather collects the active window, mouse position, and window list into
// a prompt-ready block. With withVision set it additionally captures a
// screenshot and appends the vision model's description, or OCR text when
// the model yields nothing. The screenshot is removed before returning.
// Failures shrink the block; Gather never returns an error.
func (c *Context) Gather(ctx context.Context, withVision bool) string {
	var b strings.Builder

	if active := c.desktop.ActiveWindow(ctx); active != "" {
		fmt.Fprintf(&b, "Active window: %s\n", active)
	}
	if x, y, ok := c.desktop.MouseLocation(ctx); ok {
		if geom := c.desktop.DisplayGeometry(ctx); geom != "" {
			fmt.Fprintf(&b, "Mouse: %d,%d on a %s display\n", x, y, geom)
		} else {
			fmt.Fprintf(&b, "Mouse: %d,%d\n", x, y)
		}
	}
	if windows := c.desktop.WindowList(ctx); len(windows) > 0 {
		fmt.Fprintf(&b, "Open windows: %s\n", strings.Join(windows, "; "))
	}

	if withVision {
		if desc := c.describeScreen(ctx); desc != "" {
			fmt.Fprintf(&b, "Screen: %s\n", desc)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func (c *Context) describeScreen(ctx context.Context) string {
	path, err := c.desktop.Screenshot(ctx)
	if err != nil {
		slog.Debug("screenshot failed", "err", err)
		return ""
	}
	defer os.Remove(path)

	if c.vision != nil {
		if desc := c.vision.Describe(ctx, path, ""); desc != "" {
			return desc
		}
	}
	return c.desktop.OCR(ctx, path)
}

// Package screen gathers desktop context for the heavyweight reasoning
// path: the active window, mouse position, display geometry, the window
// list, screenshots with OCR, and a vision-model description. Every
// wrapper degrades to an empty value on failure; a missing utility must
// cost the turn some context, never the turn itself.
package screen

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// cmdTimeout bounds every desktop utility invocation.
const cmdTimeout = 3 * time.Second

// Desktop shells out to X11 utilities (xdotool, wmctrl, scrot, tesseract).
type Desktop struct {
	run        func(ctx context.Context, name string, args ...string) (string, error)
	scratchDir string

	mu       sync.Mutex
	geometry string
}

// DesktopOption configures a Desktop.
type DesktopOption func(*Desktop)

// WithDesktopRunner replaces the command executor for tests.
func WithDesktopRunner(run func(ctx context.Context, name string, args ...string) (string, error)) DesktopOption {
	return func(d *Desktop) {
		if run != nil {
			d.run = run
		}
	}
}

// WithScratchDir sets where screenshots are written.
func WithScratchDir(dir string) DesktopOption {
	return func(d *Desktop) {
		if dir != "" {
			d.scratchDir = dir
		}
	}
}

// NewDesktop creates a desktop context source.
func NewDesktop(opts ...DesktopOption) *Desktop {
	d := &Desktop{
		run:        runCommand,
		scratchDir: os.TempDir(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func runCommand(ctx context.Context, name string, args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, cmdTimeout)
	defer cancel()
	out, err := exec.CommandContext(ctx, name, args...).Output()
	if err != nil {
		return "", fmt.Errorf("screen: %s: %w", name, err)
	}
	return string(out), nil
}

// ActiveWindow returns the focused window's title, or empty.
func (d *Desktop) ActiveWindow(ctx context.Context) string {
	out, err := d.run(ctx, "xdotool", "getactivewindow", "getwindowname")
	if err != nil {
		slog.Debug("active window lookup failed", "err", err)
		return ""
	}
	return strings.TrimSpace(out)
}

// MouseLocation returns the pointer position. ok is false when the lookup
// fails or the output does not parse.
func (d *Desktop) MouseLocation(ctx context.Context) (x, y int, ok bool) {
	out, err := d.run(ctx, "xdotool", "getmouselocation")
	if err != nil {
		slog.Debug("mouse location lookup failed", "err", err)
		return 0, 0, false
	}
	// Output shape: "x:648 y:206 screen:0 window:62914567"
	haveX, haveY := false, false
	for _, field := range strings.Fields(out) {
		key, val, found := strings.Cut(field, ":")
		if !found {
			continue
		}
		n, err := strconv.Atoi(val)
		if err != nil {
			continue
		}
		switch key {
		case "x":
			x, haveX = n, true
		case "y":
			y, haveY = n, true
		}
	}
	return x, y, haveX && haveY
}

// DisplayGeometry returns the screen size as "WxH". The value is cached
// after the first successful lookup; displays do not resize mid-session.
func (d *Desktop) DisplayGeometry(ctx context.Context) string {
	d.mu.Lock()
	cached := d.geometry
	d.mu.Unlock()
	if cached != "" {
		return cached
	}

	out, err := d.run(ctx, "xdotool", "getdisplaygeometry")
	if err != nil {
		slog.Debug("display geometry lookup failed", "err", err)
		return ""
	}
	fields := strings.Fields(out)
	if len(fields) != 2 {
		return ""
	}
	geom := fields[0] + "x" + fields[1]

	d.mu.Lock()
	d.geometry = geom
	d.mu.Unlock()
	return geom
}

// WindowList returns the titles of every managed window, or nil.
func (d *Desktop) WindowList(ctx context.Context) []string {
	out, err := d.run(ctx, "wmctrl", "-l")
	if err != nil {
		slog.Debug("window list lookup failed", "err", err)
		return nil
	}
	var titles []string
	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		// Shape: "0x03000003  0 hostname Title of the window"
		fields := strings.Fields(line)
		if len(fields) < 4 {
			continue
		}
		titles = append(titles, strings.Join(fields[3:], " "))
	}
	return titles
}

// Screenshot captures the full screen into the scratch directory and
// returns the file path. The caller removes the file when done.
func (d *Desktop) Screenshot(ctx context.Context) (string, error) {
	if err := os.MkdirAll(d.scratchDir, 0o755); err != nil {
		return "", fmt.Errorf("screen: scratch dir: %w", err)
	}
	path := filepath.Join(d.scratchDir, "shot-"+uuid.NewString()+".png")
	if _, err := d.run(ctx, "scrot", path); err != nil {
		return "", err
	}
	return path, nil
}

// OCR extracts text from an image, or returns empty.
func (d *Desktop) OCR(ctx context.Context, imagePath string) string {
	out, err := d.run(ctx, "tesseract", imagePath, "stdout")
	if err != nil {
		slog.Debug("ocr failed", "path", imagePath, "err", err)
		return ""
	}
	return strings.TrimSpace(out)
}

package panes

import (
	"strings"
	"testing"
)

// TestClassify covers the prompt and error-marker tables.
func TestClassify(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		snapshot string
		want     State
	}{
		{"empty capture", "", StateIdle},
		{"bare zsh prompt", "building...\ndone\n❯ \n", StateIdle},
		{"bare dollar prompt", "$ ", StateIdle},
		{"bare percent prompt", "%\n", StateIdle},
		{"bare angle prompt", "> ", StateIdle},
		{"venv prompt", "(venv) ❯ ", StateIdle},
		{"venv angle prompt", "(.env) > ", StateIdle},
		{"user at host prompt", "dev@workstation:~/src$ ", StateIdle},
		{"root prompt", "root@box:/etc# ", StateIdle},
		{"running output", "compiling pkg/audio\ncompiling internal/wake\n", StateWorking},
		{"prompt char mid line stays working", "progress > 50%\nstill going\n", StateWorking},
		{"error line", "go build ./...\nError: cannot find package\n", StateErrored},
		{"lowercase error", "error: something broke\n", StateErrored},
		{"traceback", "Traceback (most recent call last):\n  File \"x.py\"\n", StateErrored},
		{"exception suffix", "java.lang.NullPointerException: boom\n", StateErrored},
		{"git fatal", "fatal: not a git repository\n", StateErrored},
		{"test failure", "FAILED tests/test_api.py::test_login\n", StateErrored},
		{"go panic", "panic: runtime error: index out of range\n", StateErrored},
		{
			// The word appears mid-sentence; no line begins with a marker.
			"error mentioned in prose",
			"handled error gracefully, continuing\n",
			StateWorking,
		},
		{
			// A prompt after an error means the command returned; the pane
			// is idle regardless of what scrolled past.
			"prompt wins over earlier error",
			"Error: transient\nretrying...\nok\n$ \n",
			StateIdle,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := Classify(tt.snapshot); got != tt.want {
				t.Fatalf("Classify(%q) = %v, want %v", tt.snapshot, got, tt.want)
			}
		})
	}
}

// TestClassify_ErrorScanWindow verifies markers older than the scan window
// are ignored.
func TestClassify_ErrorScanWindow(t *testing.T) {
	t.Parallel()

	var b strings.Builder
	b.WriteString("Error: long gone\n")
	for i := 0; i < errorScanLines; i++ {
		b.WriteString("normal output line\n")
	}
	if got := Classify(b.String()); got != StateWorking {
		t.Fatalf("stale error beyond scan window: got %v, want %v", got, StateWorking)
	}
}

func TestTail(t *testing.T) {
	t.Parallel()

	snapshot := "one\n\ntwo\nthree\n  \nfour\nfive\nsix\n"
	got := Tail(snapshot, 5)
	want := "two\nthree\nfour\nfive\nsix"
	if got != want {
		t.Fatalf("Tail = %q, want %q", got, want)
	}

	if got := Tail("a\nb\n", 5); got != "a\nb" {
		t.Fatalf("short Tail = %q, want %q", got, "a\nb")
	}
}

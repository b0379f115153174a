package brain

import (
	"strings"
	"testing"
)

func TestSpeakable(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"plain text", "All tests pass.", "All tests pass."},
		{"strips bold", "The **main** function is fine.", "The main function is fine."},
		{"strips backticks", "Run `go vet` first.", "Run go vet first."},
		{"strips heading marks", "# Summary\nIt works.", "Summary It works."},
		{
			"drops fenced code",
			"Here is the fix:\n```go\nfunc main() {}\n```\nApply it.",
			"Here is the fix: Apply it.",
		},
		{"empty", "\n\n", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := Speakable(tt.raw); got != tt.want {
				t.Fatalf("Speakable(%q) = %q, want %q", tt.raw, got, tt.want)
			}
		})
	}
}

func TestSpeakable_TruncatesAtSentence(t *testing.T) {
	t.Parallel()

	sentence := "This sentence is about sixty characters long for the test. "
	raw := strings.Repeat(sentence, 12)

	got := Speakable(raw)
	if len(got) > maxReplyLength {
		t.Fatalf("length = %d, want <= %d", len(got), maxReplyLength)
	}
	if !strings.HasSuffix(got, ".") {
		t.Fatalf("truncation did not end at a sentence: %q", got[len(got)-20:])
	}
}

func TestSpeakable_HardCutWithoutSentenceEnd(t *testing.T) {
	t.Parallel()

	got := Speakable(strings.Repeat("x", 600))
	if len(got) != maxReplyLength {
		t.Fatalf("length = %d, want %d", len(got), maxReplyLength)
	}
}

func TestStdoutTail(t *testing.T) {
	t.Parallel()

	stdout := "$ agent --print \"User request: what\"\nworking...\n\nThe answer is forty two.\nIt always was.\n"
	got := stdoutTail(stdout, "User request: what")
	want := "The answer is forty two.\nIt always was."
	if got != want {
		t.Fatalf("stdoutTail = %q, want %q", got, want)
	}
}

func TestStdoutTail_AllEcho(t *testing.T) {
	t.Parallel()

	if got := stdoutTail("$ some command\n", "prompt"); got != "" {
		t.Fatalf("stdoutTail = %q, want empty", got)
	}
}

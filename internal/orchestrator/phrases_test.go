package orchestrator

import "testing"

func TestIsEndPhrase(t *testing.T) {
	t.Parallel()

	tests := []struct {
		text string
		want bool
	}{
		{"goodbye", true},
		{"Goodbye!", true},
		{"ok bye", true},
		{"that's all", true},
		{"thats all", true},
		{"THAT'S ALL, thanks", true},
		{"never mind", true},
		{"nevermind", true},
		{"dismiss", true},
		{"end conversation", true},
		{"please stop conversation now", true},
		{"sennet end", true},
		{"sennet, stop.", true},
		{"what is a goodbye message in smtp", true},
		{"keep going", false},
		{"tell window two to stop the server", false},
		{"", false},
		{"end", false},
	}
	for _, tc := range tests {
		t.Run(tc.text, func(t *testing.T) {
			if got := isEndPhrase(tc.text, "sennet"); got != tc.want {
				t.Errorf("isEndPhrase(%q) = %v, want %v", tc.text, got, tc.want)
			}
		})
	}
}

func TestIsEndPhrase_WakeNameSubstitution(t *testing.T) {
	t.Parallel()

	if !isEndPhrase("Hey Juniper, stop", "juniper") {
		t.Error("wake-name stop not matched")
	}
	if isEndPhrase("sennet stop", "juniper") {
		t.Error("foreign wake name matched")
	}
}

func TestPromptPrefix(t *testing.T) {
	t.Parallel()

	if got := promptPrefix("short prompt"); got != "short prompt" {
		t.Errorf("short prompt mangled: %q", got)
	}

	long := "refactor the parser and update the tests to match the new API shape everywhere"
	got := promptPrefix(long)
	if len(got) > 50 {
		t.Errorf("prefix length = %d, want at most 50", len(got))
	}
	if got == "" || long[:10] != got[:10] {
		t.Errorf("prefix %q does not open the prompt", got)
	}

	if got := promptPrefix("  padded  "); got != "padded" {
		t.Errorf("whitespace kept: %q", got)
	}
}

func TestStripPunctuation(t *testing.T) {
	t.Parallel()

	if got := stripPunctuation("That's   all, folks!"); got != "thats all folks" && got != "Thats all folks" {
		// Case is the caller's concern; spacing and punctuation are ours.
		t.Errorf("stripPunctuation = %q", got)
	}
}

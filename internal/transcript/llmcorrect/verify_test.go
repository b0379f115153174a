package llmcorrect

import (
	"strings"
	"testing"
)

func TestVerifyCorrectedText(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name            string
		original        string
		corrected       string
		corrections     []Correction
		wantText        string
		wantCorrections int
	}{
		{
			name:            "identical text",
			original:        "the build is green",
			corrected:       "the build is green",
			corrections:     nil,
			wantText:        "the build is green",
			wantCorrections: 0,
		},
		{
			name:      "single verified correction",
			original:  "clawed finished",
			corrected: "claude finished",
			corrections: []Correction{
				{Original: "clawed", Corrected: "claude", Confidence: 0.9},
			},
			wantText:        "claude finished",
			wantCorrections: 1,
		},
		{
			name:      "multi-word correction",
			original:  "code x finished the task",
			corrected: "codex finished the task",
			corrections: []Correction{
				{Original: "code x", Corrected: "codex", Confidence: 0.9},
			},
			wantText:        "codex finished the task",
			wantCorrections: 1,
		},
		{
			name:            "unverified change reverted",
			original:        "check the second window",
			corrected:       "check the last window",
			corrections:     nil,
			wantText:        "check the second window",
			wantCorrections: 0,
		},
		{
			name:      "mixed verified and unverified",
			original:  "code x is stuck in the nice window",
			corrected: "codex is stuck in the beautiful window",
			corrections: []Correction{
				{Original: "code x", Corrected: "codex", Confidence: 0.9},
			},
			wantText:        "codex is stuck in the nice window",
			wantCorrections: 1,
		},
		{
			name:            "empty corrections with changed text reverts fully",
			original:        "the tests are passing",
			corrected:       "the checks are green",
			corrections:     []Correction{},
			wantText:        "the tests are passing",
			wantCorrections: 0,
		},
		{
			name:      "punctuation attached to tokens",
			original:  "switch to clawed.",
			corrected: "switch to claude.",
			corrections: []Correction{
				{Original: "clawed", Corrected: "claude", Confidence: 0.85},
			},
			wantText:        "switch to claude.",
			wantCorrections: 1,
		},
		{
			name:      "multiple verified corrections",
			original:  "tell code x to fix the backend apy.",
			corrected: "tell codex to fix the backend api.",
			corrections: []Correction{
				{Original: "code x", Corrected: "codex", Confidence: 0.9},
				{Original: "apy", Corrected: "api", Confidence: 0.85},
			},
			wantText:        "tell codex to fix the backend api.",
			wantCorrections: 2,
		},
		{
			name:      "case insensitive lookup",
			original:  "CLAWED finished",
			corrected: "claude finished",
			corrections: []Correction{
				{Original: "clawed", Corrected: "claude", Confidence: 0.9},
			},
			wantText:        "claude finished",
			wantCorrections: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			gotText, gotCorr := verifyCorrectedText(tt.original, tt.corrected, tt.corrections)
			if gotText != tt.wantText {
				t.Errorf("text = %q, want %q", gotText, tt.wantText)
			}
			if len(gotCorr) != tt.wantCorrections {
				t.Errorf("corrections count = %d, want %d", len(gotCorr), tt.wantCorrections)
			}
		})
	}
}

func TestTokenLCS(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		a, b    []string
		wantLen int
	}{
		{"both empty", nil, nil, 0},
		{"a empty", nil, strings.Fields("hello world"), 0},
		{"b empty", strings.Fields("hello world"), nil, 0},
		{"identical", strings.Fields("a b c"), strings.Fields("a b c"), 3},
		{"no common", strings.Fields("a b"), strings.Fields("c d"), 0},
		{"partial overlap", strings.Fields("a b c d"), strings.Fields("a x c d"), 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			anchors := tokenLCS(tt.a, tt.b)
			if len(anchors) != tt.wantLen {
				t.Errorf("LCS length = %d, want %d", len(anchors), tt.wantLen)
			}
		})
	}
}

func TestExtractChangeSpans(t *testing.T) {
	t.Parallel()

	orig := strings.Fields("a X c Y e")
	corr := strings.Fields("a B c D e")
	anchors := tokenLCS(orig, corr)
	spans := extractChangeSpans(orig, corr, anchors)

	if len(spans) != 2 {
		t.Fatalf("got %d spans, want 2", len(spans))
	}
	if strings.Join(spans[0].origTokens, " ") != "X" {
		t.Errorf("span[0].orig = %q, want %q", strings.Join(spans[0].origTokens, " "), "X")
	}
	if strings.Join(spans[0].corrTokens, " ") != "B" {
		t.Errorf("span[0].corr = %q, want %q", strings.Join(spans[0].corrTokens, " "), "B")
	}
	if strings.Join(spans[1].origTokens, " ") != "Y" {
		t.Errorf("span[1].orig = %q, want %q", strings.Join(spans[1].origTokens, " "), "Y")
	}
	if strings.Join(spans[1].corrTokens, " ") != "D" {
		t.Errorf("span[1].corr = %q, want %q", strings.Join(spans[1].corrTokens, " "), "D")
	}
}

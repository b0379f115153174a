package config_test

import (
	"strings"
	"testing"

	"github.com/attercap/sennet/internal/config"
)

func TestValidate_BadLogLevel(t *testing.T) {
	t.Parallel()
	yaml := `
server:
  log_level: bananas
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for bad log level, got nil")
	}
	if !strings.Contains(err.Error(), "log_level") {
		t.Errorf("error should mention log_level, got: %v", err)
	}
}

func TestValidate_WakeThresholdOutOfRange(t *testing.T) {
	t.Parallel()
	yaml := `
wake:
  threshold: 1.5
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for out-of-range threshold, got nil")
	}
	if !strings.Contains(err.Error(), "wake.threshold") {
		t.Errorf("error should mention wake.threshold, got: %v", err)
	}
}

func TestValidate_DuplicateWatchedWindows(t *testing.T) {
	t.Parallel()
	yaml := `
panes:
  watch: [1, 2, 1]
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for duplicate watched windows, got nil")
	}
	if !strings.Contains(err.Error(), "duplicate") {
		t.Errorf("error should mention duplicate, got: %v", err)
	}
}

func TestValidate_NegativeWatchedWindow(t *testing.T) {
	t.Parallel()
	yaml := `
panes:
  watch: [-1]
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for negative window index, got nil")
	}
}

func TestValidate_BrainCommandNeedsPromptPlaceholder(t *testing.T) {
	t.Parallel()
	yaml := `
brain:
  command: ["some-agent", "--fast"]
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for brain command without {prompt}, got nil")
	}
	if !strings.Contains(err.Error(), "{prompt}") {
		t.Errorf("error should mention the {prompt} placeholder, got: %v", err)
	}
}

func TestValidate_KnowledgeRequiresEmbeddings(t *testing.T) {
	t.Parallel()
	yaml := `
knowledge:
  postgres_dsn: "postgres://localhost/sennet"
  embedding_dimensions: 768
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for knowledge base without embeddings provider, got nil")
	}
	if !strings.Contains(err.Error(), "providers.embeddings") {
		t.Errorf("error should mention providers.embeddings, got: %v", err)
	}
}

func TestValidate_PauseMustBeShorterThanPhraseLimit(t *testing.T) {
	t.Parallel()
	yaml := `
listen:
  pause: 20s
  phrase_limit: 15s
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for pause >= phrase_limit, got nil")
	}
}

func TestValidate_MultipleErrors(t *testing.T) {
	t.Parallel()
	yaml := `
server:
  log_level: bananas
wake:
  threshold: 2.0
panes:
  watch: [3, 3]
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected errors, got nil")
	}
	errStr := err.Error()
	for _, want := range []string{"log_level", "wake.threshold", "duplicate"} {
		if !strings.Contains(errStr, want) {
			t.Errorf("error should mention %q, got: %v", want, err)
		}
	}
}

func TestLoad_MissingFile(t *testing.T) {
	t.Parallel()
	_, err := config.Load("/nonexistent/sennet.yaml")
	if err == nil {
		t.Fatal("expected error for missing file, got nil")
	}
}

package config_test

import (
	"testing"
	"time"

	"github.com/attercap/sennet/internal/config"
)

func TestDiff_NoChanges(t *testing.T) {
	t.Parallel()
	cfg := &config.Config{
		Server: config.ServerConfig{LogLevel: config.LogInfo},
		Panes:  config.PanesConfig{Watch: []int{1, 2}},
	}
	d := config.Diff(cfg, cfg)
	if !d.Empty() {
		t.Errorf("expected empty diff for identical configs, got %+v", d)
	}
}

func TestDiff_LogLevelChanged(t *testing.T) {
	t.Parallel()
	old := &config.Config{Server: config.ServerConfig{LogLevel: config.LogInfo}}
	new := &config.Config{Server: config.ServerConfig{LogLevel: config.LogDebug}}

	d := config.Diff(old, new)
	if !d.LogLevelChanged {
		t.Error("expected LogLevelChanged=true")
	}
	if d.NewLogLevel != config.LogDebug {
		t.Errorf("expected NewLogLevel=debug, got %q", d.NewLogLevel)
	}
}

func TestDiff_PanesAddedAndRemoved(t *testing.T) {
	t.Parallel()
	old := &config.Config{Panes: config.PanesConfig{Watch: []int{1, 2, 3}}}
	new := &config.Config{Panes: config.PanesConfig{Watch: []int{2, 3, 5}}}

	d := config.Diff(old, new)
	if len(d.PanesAdded) != 1 || d.PanesAdded[0] != 5 {
		t.Errorf("PanesAdded: got %v, want [5]", d.PanesAdded)
	}
	if len(d.PanesRemoved) != 1 || d.PanesRemoved[0] != 1 {
		t.Errorf("PanesRemoved: got %v, want [1]", d.PanesRemoved)
	}
}

func TestDiff_WakeThresholdChanged(t *testing.T) {
	t.Parallel()
	old := &config.Config{Wake: config.WakeConfig{Threshold: 0.35}}
	new := &config.Config{Wake: config.WakeConfig{Threshold: 0.5}}

	d := config.Diff(old, new)
	if !d.WakeThresholdChanged {
		t.Error("expected WakeThresholdChanged=true")
	}
	if d.NewWakeThreshold != 0.5 {
		t.Errorf("NewWakeThreshold: got %v, want 0.5", d.NewWakeThreshold)
	}
}

func TestDiff_AlertWindowsChanged(t *testing.T) {
	t.Parallel()
	old := &config.Config{Panes: config.PanesConfig{CompletionWindow: 30 * time.Second, ErrorWindow: time.Minute}}
	new := &config.Config{Panes: config.PanesConfig{CompletionWindow: time.Minute, ErrorWindow: time.Minute}}

	d := config.Diff(old, new)
	if !d.AlertWindowsChanged {
		t.Error("expected AlertWindowsChanged=true")
	}
	if d.NewCompletionWindow != time.Minute {
		t.Errorf("NewCompletionWindow: got %v, want 1m", d.NewCompletionWindow)
	}
}

func TestDiff_ProviderChangeRequiresRestart(t *testing.T) {
	t.Parallel()
	old := &config.Config{}
	old.Providers.STT = config.ProviderEntry{Name: "whisper", Model: "/models/base.bin"}
	new := &config.Config{}
	new.Providers.STT = config.ProviderEntry{Name: "whisper", Model: "/models/small.bin"}

	d := config.Diff(old, new)
	if !d.RestartRequired {
		t.Error("expected RestartRequired=true for provider model change")
	}
}

func TestDiff_FallbackChangeRequiresRestart(t *testing.T) {
	t.Parallel()
	old := &config.Config{}
	old.Providers.TTS = config.ProviderEntry{Name: "edge"}
	new := &config.Config{}
	new.Providers.TTS = config.ProviderEntry{
		Name:     "edge",
		Fallback: &config.ProviderEntry{Name: "coqui", BaseURL: "http://localhost:5002"},
	}

	d := config.Diff(old, new)
	if !d.RestartRequired {
		t.Error("expected RestartRequired=true when a fallback provider is added")
	}
}

func TestDiff_BrainCommandChangeRequiresRestart(t *testing.T) {
	t.Parallel()
	old := &config.Config{Brain: config.BrainConfig{Command: []string{"agent", "{prompt}"}}}
	new := &config.Config{Brain: config.BrainConfig{Command: []string{"other-agent", "{prompt}"}}}

	d := config.Diff(old, new)
	if !d.RestartRequired {
		t.Error("expected RestartRequired=true for brain command change")
	}
}

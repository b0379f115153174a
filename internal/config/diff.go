package config

import "time"

// ConfigDiff describes what changed between two configs.
// Only fields that can be safely hot-reloaded are tracked; provider and
// pipeline changes require a restart and are reported by [Diff] as ignored.
type ConfigDiff struct {
	// PanesAdded and PanesRemoved list window indexes whose monitoring
	// state should change.
	PanesAdded   []int
	PanesRemoved []int

	AlertWindowsChanged bool
	NewCompletionWindow time.Duration
	NewErrorWindow      time.Duration

	WakeThresholdChanged bool
	NewWakeThreshold     float32

	LogLevelChanged bool
	NewLogLevel     LogLevel

	// RestartRequired is true when a non-reloadable section (providers,
	// brain command, storage DSNs) differs between the two configs.
	RestartRequired bool
}

// Empty reports whether the diff carries no applicable change.
func (d ConfigDiff) Empty() bool {
	return len(d.PanesAdded) == 0 && len(d.PanesRemoved) == 0 &&
		!d.AlertWindowsChanged && !d.WakeThresholdChanged &&
		!d.LogLevelChanged && !d.RestartRequired
}

// Diff compares old and new configs and returns what changed.
// Only changes that are safe to apply without restart are actionable.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	if old.Wake.Threshold != new.Wake.Threshold {
		d.WakeThresholdChanged = true
		d.NewWakeThreshold = new.Wake.Threshold
	}

	if old.Panes.CompletionWindow != new.Panes.CompletionWindow ||
		old.Panes.ErrorWindow != new.Panes.ErrorWindow {
		d.AlertWindowsChanged = true
		d.NewCompletionWindow = new.Panes.CompletionWindow
		d.NewErrorWindow = new.Panes.ErrorWindow
	}

	oldWatch := make(map[int]bool, len(old.Panes.Watch))
	for _, w := range old.Panes.Watch {
		oldWatch[w] = true
	}
	newWatch := make(map[int]bool, len(new.Panes.Watch))
	for _, w := range new.Panes.Watch {
		newWatch[w] = true
	}
	for _, w := range new.Panes.Watch {
		if !oldWatch[w] {
			d.PanesAdded = append(d.PanesAdded, w)
		}
	}
	for _, w := range old.Panes.Watch {
		if !newWatch[w] {
			d.PanesRemoved = append(d.PanesRemoved, w)
		}
	}

	if providersChanged(old, new) {
		d.RestartRequired = true
	}

	return d
}

// providersChanged reports whether any section that cannot be hot-reloaded
// differs between the two configs.
func providersChanged(old, new *Config) bool {
	if !providerEntryEqual(old.Providers.Audio, new.Providers.Audio) ||
		!providerEntryEqual(old.Providers.Wake, new.Providers.Wake) ||
		!providerEntryEqual(old.Providers.STT, new.Providers.STT) ||
		!providerEntryEqual(old.Providers.TTS, new.Providers.TTS) ||
		!providerEntryEqual(old.Providers.LLM, new.Providers.LLM) ||
		!providerEntryEqual(old.Providers.Embeddings, new.Providers.Embeddings) ||
		!providerEntryEqual(old.Providers.VoiceID, new.Providers.VoiceID) ||
		!providerEntryEqual(old.Providers.Vision, new.Providers.Vision) {
		return true
	}
	if old.Knowledge.PostgresDSN != new.Knowledge.PostgresDSN ||
		old.TaskState.PostgresDSN != new.TaskState.PostgresDSN {
		return true
	}
	if len(old.Brain.Command) != len(new.Brain.Command) {
		return true
	}
	for i := range old.Brain.Command {
		if old.Brain.Command[i] != new.Brain.Command[i] {
			return true
		}
	}
	return false
}

// providerEntryEqual compares entries ignoring the free-form Options map,
// which factories read once at startup anyway.
func providerEntryEqual(a, b ProviderEntry) bool {
	if a.Name != b.Name || a.APIKey != b.APIKey || a.BaseURL != b.BaseURL || a.Model != b.Model {
		return false
	}
	if (a.Fallback == nil) != (b.Fallback == nil) {
		return false
	}
	if a.Fallback != nil && !providerEntryEqual(*a.Fallback, *b.Fallback) {
		return false
	}
	return true
}

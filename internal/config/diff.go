package config

import (
	"slices"
	"time"
)

// ConfigDiff describes what changed between two configs.
// Only fields that can be safely hot-reloaded are tracked.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// PhrasesChanged is true when the wake phrases or patterns differ. Both
	// lists are always carried so they can be swapped in together.
	PhrasesChanged bool
	Phrases        []string
	Patterns       []string

	SensitivityChanged bool
	Sensitivity        string

	RefractoryChanged bool
	Refractory        time.Duration
}

// Any reports whether d contains at least one change.
func (d ConfigDiff) Any() bool {
	return d.LogLevelChanged || d.PhrasesChanged || d.SensitivityChanged || d.RefractoryChanged
}

// Diff compares old and new configs and returns what changed.
// Changes to anything else need a restart to take effect.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	if !slices.Equal(old.Wake.Phrases, new.Wake.Phrases) || !slices.Equal(old.Wake.Patterns, new.Wake.Patterns) {
		d.PhrasesChanged = true
		d.Phrases = slices.Clone(new.Wake.Phrases)
		d.Patterns = slices.Clone(new.Wake.Patterns)
	}

	if old.Wake.Sensitivity != new.Wake.Sensitivity {
		d.SensitivityChanged = true
		d.Sensitivity = new.Wake.Sensitivity
	}

	if old.Wake.Refractory != new.Wake.Refractory {
		d.RefractoryChanged = true
		d.Refractory = new.Wake.Refractory
	}

	return d
}

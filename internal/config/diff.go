package config

// ConfigDiff describes what changed between two configs.
// Only fields that can be safely hot-reloaded are tracked.
type ConfigDiff struct {
	LogLevelChanged   bool
	NewLogLevel       LogLevel
	GuardrailsChanged bool
	ModelsChanged     bool
	ScheduleChanged   bool
}

// Any reports whether the diff contains at least one change.
func (d ConfigDiff) Any() bool {
	return d.LogLevelChanged || d.GuardrailsChanged || d.ModelsChanged || d.ScheduleChanged
}

// Diff compares old and new configs and returns what changed.
// Only tracks changes that are safe to apply without restart; backend and
// provider changes require a restart and are deliberately ignored here.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Logging.Level != new.Logging.Level {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Logging.Level
	}
	if old.Guardrails != new.Guardrails {
		d.GuardrailsChanged = true
	}
	if old.Models != new.Models {
		d.ModelsChanged = true
	}
	if old.Maintenance.Schedule != new.Maintenance.Schedule {
		d.ScheduleChanged = true
	}
	return d
}

package config

// ConfigDiff describes what changed between two configs.
// Only fields that can be safely hot-reloaded are tracked.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     string

	SimilarityThresholdChanged bool
	NewSimilarityThreshold     float64

	MaxContextTokensChanged bool
	NewMaxContextTokens     int

	TemperatureChanged bool
	NewTemperature      float64

	SystemPersonaChanged bool
	NewSystemPersona     string
}

// Changed reports whether any hot-reloadable field differs.
func (d ConfigDiff) Changed() bool {
	return d.LogLevelChanged || d.SimilarityThresholdChanged ||
		d.MaxContextTokensChanged || d.TemperatureChanged || d.SystemPersonaChanged
}

// Diff compares old and new configs and returns what changed.
// Only tracks changes that are safe to apply without restart — provider
// credentials and the Postgres DSN require a process restart and are
// intentionally not diffed here.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}
	if old.Engine.SimilarityThreshold != new.Engine.SimilarityThreshold {
		d.SimilarityThresholdChanged = true
		d.NewSimilarityThreshold = new.Engine.SimilarityThreshold
	}
	if old.Engine.MaxContextTokens != new.Engine.MaxContextTokens {
		d.MaxContextTokensChanged = true
		d.NewMaxContextTokens = new.Engine.MaxContextTokens
	}
	if old.Engine.Temperature != new.Engine.Temperature {
		d.TemperatureChanged = true
		d.NewTemperature = new.Engine.Temperature
	}
	if old.Engine.SystemPersona != new.Engine.SystemPersona {
		d.SystemPersonaChanged = true
		d.NewSystemPersona = new.Engine.SystemPersona
	}

	return d
}

package config

import "slices"

// ConfigDiff describes what changed between two configs.
// Only fields that can be safely hot-reloaded are tracked; provider and
// database changes require a restart.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// EngineChanged is true when temperature, max_tokens, or the history
	// budget changed. Applies to new turns only.
	EngineChanged bool
	NewEngine     EngineConfig

	// RestartRequired is true when a field that cannot be hot-reloaded
	// (provider, database, listen address, TLS) changed.
	RestartRequired bool
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	if old.Engine != new.Engine {
		d.EngineChanged = true
		d.NewEngine = new.Engine
	}

	if old.Provider != new.Provider ||
		!slices.Equal(old.Fallbacks, new.Fallbacks) ||
		old.Database != new.Database ||
		old.Server.ListenAddr != new.Server.ListenAddr ||
		!tlsEqual(old.Server.TLS, new.Server.TLS) {
		d.RestartRequired = true
	}

	return d
}

// tlsEqual compares two optional TLS blocks by value.
func tlsEqual(a, b *TLSConfig) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

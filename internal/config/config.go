// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Defaults come from New(); Load layers file and env on top.
// - External errors must be wrapped via this package's error helpers.
package config

// Config contains process configuration. Extend as needed.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr"`

	// DatabaseURL selects the Postgres store when set. Empty keeps the
	// in-memory store.
	DatabaseURL string `koanf:"database_url"`

	// DefaultScope is the scope applied to events that omit one.
	DefaultScope int64 `koanf:"default_scope"`

	// EventQueueSize bounds the in-memory event queue.
	EventQueueSize int `koanf:"queue_size"`

	// WorkerCount sets the number of rating workers. One worker keeps
	// the incremental ratings byte-for-byte reproducible by a rebuild.
	WorkerCount int `koanf:"worker_count"`

	// DedupeSize sets the size of the deduplication cache.
	DedupeSize int `koanf:"dedupe_size"`

	// MaxLeaderboardLimit caps GET /leaderboard/{scope}?limit.
	MaxLeaderboardLimit int `koanf:"max_leaderboard_limit"`

	// StreakWindowMS is the rapid-kill chaining window in milliseconds.
	StreakWindowMS int `koanf:"streak_window_ms"`
}

// New creates a Config populated with defaults.
func New() *Config {
	return &Config{
		LogLevel:            "info",
		Addr:                ":9080",
		DatabaseURL:         "",
		DefaultScope:        0,
		EventQueueSize:      65_536,
		WorkerCount:         1,
		DedupeSize:          50_000,
		MaxLeaderboardLimit: 100,
		StreakWindowMS:      15_000,
	}
}

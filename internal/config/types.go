package config

type Config struct {
	Actor   ActorConfig   `json:"actor"`
	Logging LoggingConfig `json:"logging"`
	Storage StorageConfig `json:"storage"`

	Notifier    *NotifierConfig    `json:"notifier,omitempty"`
	Advisory    *AdvisoryConfig    `json:"advisory,omitempty"`
	Maintenance *MaintenanceConfig `json:"maintenance,omitempty"`
	Debug       *DebugConfig       `json:"debug,omitempty"`
}

// ActorConfig identifies the local actor. Two processes pointed at the same
// storage directory with different roles form a requester/responder pair.
type ActorConfig struct {
	Name string `json:"name"`
	Role string `json:"role"` // "requester" or "responder"

	// SessionID names the per-actor session blob in storage.
	// Defaults to a slug of Name.
	SessionID string `json:"session_id,omitempty"`

	// ExpertID pins the responder's profile identity. Required for role
	// "responder"; ignored for requesters.
	ExpertID string `json:"expert_id,omitempty"`
}

type LoggingConfig struct {
	Level   string            `json:"level"`
	Console bool              `json:"console"`
	File    LoggingFileConfig `json:"file"`
}

type LoggingFileConfig struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path,omitempty"`
}

// StorageConfig configures the shared durable layer.
//
// Driver values:
//   - "file": one JSON document per collection key, fsnotify change watch
//   - "sqlite": single database file, revision-polling change watch
//     (requires building with -tags sqlite)
type StorageConfig struct {
	Driver string `json:"driver"`
	Path   string `json:"path"`

	// Debounce delays reload after a change event so partial writes settle.
	// Go duration string; default "250ms".
	Debounce string `json:"debounce,omitempty"`

	// PollInterval is the sqlite revision poll period. Default "500ms".
	PollInterval string `json:"poll_interval,omitempty"`
}

// NotifierConfig controls the in-session alert surface.
//
// All durations are Go duration strings (e.g. "500ms", "5s").
type NotifierConfig struct {
	TTL         string `json:"ttl,omitempty"`          // default "5s"
	RatePerSec  int    `json:"rate_per_sec,omitempty"` // default 5
	HistorySize int    `json:"history_size,omitempty"` // default 100
}

// AdvisoryConfig configures the advice/summary service boundary.
type AdvisoryConfig struct {
	BaseURL    string `json:"base_url"`
	APIKey     string `json:"api_key,omitempty"`
	Timeout    string `json:"timeout,omitempty"` // default "60s"
	RatePerSec int    `json:"rate_per_sec,omitempty"`
}

// DebugConfig controls the optional pprof/status HTTP endpoint.
// Binding beyond loopback requires a token unless allow_insecure is set.
type DebugConfig struct {
	Enabled       bool   `json:"enabled"`
	Addr          string `json:"addr,omitempty"` // default "127.0.0.1:6060"
	Token         string `json:"token,omitempty"`
	AllowInsecure bool   `json:"allow_insecure,omitempty"`
}

// MaintenanceConfig controls background housekeeping.
type MaintenanceConfig struct {
	Enabled bool `json:"enabled"`

	// Schedule is a cron expression; default "@every 10m".
	Schedule string `json:"schedule,omitempty"`

	// ResolvedTTL evicts resolved broadcasts older than this. Default "24h".
	ResolvedTTL string `json:"resolved_ttl,omitempty"`
}

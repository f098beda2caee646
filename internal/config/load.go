package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/kelseyhightower/envconfig"
)

// EnvOverrides are deploy-time overrides applied on top of the config file.
// They exist so a packaged binary can be repointed without editing the file.
type EnvOverrides struct {
	DataDir        string `envconfig:"HELPLINK_DATA_DIR"`
	LogLevel       string `envconfig:"HELPLINK_LOG_LEVEL"`
	Role           string `envconfig:"HELPLINK_ROLE"`
	AdvisoryAPIKey string `envconfig:"HELPLINK_ADVISORY_API_KEY"`
}

// Load reads and validates the config file (JSON, or YAML coerced to JSON),
// then applies environment overrides.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg, err := Parse(path, b)
	if err != nil {
		return nil, err
	}

	var env EnvOverrides
	if err := envconfig.Process("", &env); err != nil {
		return nil, fmt.Errorf("env overrides: %w", err)
	}
	applyEnv(cfg, env)

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse decodes config bytes strictly: unknown fields and trailing tokens are
// rejected so typos fail loudly instead of being silently ignored.
func Parse(path string, b []byte) (*Config, error) {
	jb, _, err := coerceToJSONBytes(path, b)
	if err != nil {
		return nil, err
	}

	var cfg Config
	dec := json.NewDecoder(bytes.NewReader(jb))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return nil, err
	}
	// reject trailing tokens (e.g. concatenated JSON)
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		if err == nil {
			return nil, fmt.Errorf("invalid config: trailing data")
		}
		return nil, err
	}
	return &cfg, nil
}

func applyEnv(cfg *Config, env EnvOverrides) {
	if v := strings.TrimSpace(env.DataDir); v != "" {
		cfg.Storage.Path = v
	}
	if v := strings.TrimSpace(env.LogLevel); v != "" {
		cfg.Logging.Level = v
	}
	if v := strings.TrimSpace(env.Role); v != "" {
		cfg.Actor.Role = v
	}
	if v := strings.TrimSpace(env.AdvisoryAPIKey); v != "" {
		if cfg.Advisory == nil {
			cfg.Advisory = &AdvisoryConfig{}
		}
		cfg.Advisory.APIKey = v
	}
}

// Validate checks the fields the app cannot start without.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	switch strings.TrimSpace(cfg.Actor.Role) {
	case "requester":
	case "responder":
		if strings.TrimSpace(cfg.Actor.ExpertID) == "" {
			return errors.New("actor.expert_id is required for role \"responder\"")
		}
	default:
		return fmt.Errorf("actor.role must be \"requester\" or \"responder\", got %q", cfg.Actor.Role)
	}
	if strings.TrimSpace(cfg.Actor.Name) == "" {
		return errors.New("actor.name is required")
	}
	if strings.TrimSpace(cfg.Storage.Path) == "" {
		return errors.New("storage.path is required")
	}
	// Duration fields fail here rather than deep inside a service.
	fields := []struct{ path, raw string }{
		{"storage.debounce", cfg.Storage.Debounce},
		{"storage.poll_interval", cfg.Storage.PollInterval},
	}
	if cfg.Notifier != nil {
		fields = append(fields, struct{ path, raw string }{"notifier.ttl", cfg.Notifier.TTL})
	}
	if cfg.Advisory != nil {
		fields = append(fields, struct{ path, raw string }{"advisory.timeout", cfg.Advisory.Timeout})
	}
	if cfg.Maintenance != nil {
		fields = append(fields, struct{ path, raw string }{"maintenance.resolved_ttl", cfg.Maintenance.ResolvedTTL})
	}
	for _, f := range fields {
		if _, err := ParseDurationField(f.path, f.raw); err != nil {
			return err
		}
	}
	return nil
}

// SessionKey returns the storage key for the actor's session blob.
func (a ActorConfig) SessionKey() string {
	id := strings.TrimSpace(a.SessionID)
	if id == "" {
		id = strings.ToLower(strings.ReplaceAll(strings.TrimSpace(a.Name), " ", "-"))
	}
	return "session-" + id
}

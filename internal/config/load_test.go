package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const validJSON = `{
  "actor": {"name": "Alice", "role": "requester"},
  "logging": {"level": "info", "console": true},
  "storage": {"driver": "file", "path": "/tmp/helplink", "debounce": "100ms"},
  "notifier": {"ttl": "5s", "rate_per_sec": 5}
}`

func writeConfig(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadValid(t *testing.T) {
	cfg, err := Load(writeConfig(t, "config.json", validJSON))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Actor.Name != "Alice" || cfg.Actor.Role != "requester" {
		t.Fatalf("actor = %+v", cfg.Actor)
	}
	if cfg.Storage.Driver != "file" || cfg.Storage.Path != "/tmp/helplink" {
		t.Fatalf("storage = %+v", cfg.Storage)
	}
	if cfg.Notifier == nil || cfg.Notifier.TTL != "5s" {
		t.Fatalf("notifier = %+v", cfg.Notifier)
	}
}

func TestLoadYAML(t *testing.T) {
	body := strings.Join([]string{
		"actor:",
		"  name: Bob",
		"  role: responder",
		"  expert_id: exp-1",
		"logging:",
		"  level: debug",
		"storage:",
		"  driver: file",
		"  path: /tmp/helplink",
	}, "\n")

	cfg, err := Load(writeConfig(t, "config.yaml", body))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Actor.Role != "responder" || cfg.Actor.ExpertID != "exp-1" {
		t.Fatalf("actor = %+v", cfg.Actor)
	}
}

func TestParseRejectsUnknownFields(t *testing.T) {
	t.Parallel()
	_, err := Parse("config.json", []byte(`{"actor":{"name":"A","role":"requester"},"storag":{}}`))
	if err == nil {
		t.Fatal("expected error for unknown field")
	}
}

func TestParseRejectsTrailingData(t *testing.T) {
	t.Parallel()
	_, err := Parse("config.json", []byte(`{"actor":{"name":"A","role":"requester"}} {"extra":1}`))
	if err == nil {
		t.Fatal("expected error for trailing data")
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()
	base := func() *Config {
		return &Config{
			Actor:   ActorConfig{Name: "Alice", Role: "requester"},
			Storage: StorageConfig{Driver: "file", Path: "/tmp/x"},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "bad role", mutate: func(c *Config) { c.Actor.Role = "admin" }, wantErr: "actor.role"},
		{name: "responder without expert id", mutate: func(c *Config) { c.Actor.Role = "responder" }, wantErr: "expert_id"},
		{name: "missing name", mutate: func(c *Config) { c.Actor.Name = "" }, wantErr: "actor.name"},
		{name: "missing storage path", mutate: func(c *Config) { c.Storage.Path = "" }, wantErr: "storage.path"},
		{name: "bad debounce", mutate: func(c *Config) { c.Storage.Debounce = "fast" }, wantErr: "storage.debounce"},
		{name: "bad notifier ttl", mutate: func(c *Config) { c.Notifier = &NotifierConfig{TTL: "-3s"} }, wantErr: "notifier.ttl"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := base()
			tt.mutate(cfg)
			err := Validate(cfg)
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("err = %v, want mention of %s", err, tt.wantErr)
			}
		})
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("HELPLINK_DATA_DIR", "/srv/helplink")
	t.Setenv("HELPLINK_LOG_LEVEL", "debug")
	t.Setenv("HELPLINK_ADVISORY_API_KEY", "key-123")

	cfg, err := Load(writeConfig(t, "config.json", validJSON))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Storage.Path != "/srv/helplink" {
		t.Fatalf("Storage.Path = %s", cfg.Storage.Path)
	}
	if cfg.Logging.Level != "debug" {
		t.Fatalf("Logging.Level = %s", cfg.Logging.Level)
	}
	if cfg.Advisory == nil || cfg.Advisory.APIKey != "key-123" {
		t.Fatalf("Advisory = %+v", cfg.Advisory)
	}
}

func TestSessionKey(t *testing.T) {
	t.Parallel()
	tests := []struct {
		actor ActorConfig
		want  string
	}{
		{actor: ActorConfig{Name: "Alice"}, want: "session-alice"},
		{actor: ActorConfig{Name: "Bob The Builder"}, want: "session-bob-the-builder"},
		{actor: ActorConfig{Name: "Alice", SessionID: "custom"}, want: "session-custom"},
	}
	for _, tt := range tests {
		if got := tt.actor.SessionKey(); got != tt.want {
			t.Fatalf("SessionKey(%+v) = %s, want %s", tt.actor, got, tt.want)
		}
	}
}

func TestParseDurationField(t *testing.T) {
	t.Parallel()
	if d, err := ParseDurationField("x", "250ms"); err != nil || d != 250*time.Millisecond {
		t.Fatalf("got %v, %v", d, err)
	}
	if d, err := ParseDurationField("x", ""); err != nil || d != 0 {
		t.Fatalf("empty: got %v, %v", d, err)
	}
	if _, err := ParseDurationField("x", "-1s"); err == nil {
		t.Fatal("negative duration accepted")
	}
	if d, err := ParseDurationOrDefault("x", "", time.Second); err != nil || d != time.Second {
		t.Fatalf("default: got %v, %v", d, err)
	}
}

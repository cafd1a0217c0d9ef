package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadConfig_FileSizeLimit(t *testing.T) {
	tmpDir := t.TempDir()

	// Create a large file (> 1MB)
	largeFile := filepath.Join(tmpDir, "large.yaml")
	data := strings.Repeat("x: value\n", 200000) // ~1.6MB
	err := os.WriteFile(largeFile, []byte(data), 0600)
	if err != nil {
		t.Fatalf("failed to create test file: %v", err)
	}

	_, err = LoadConfig(largeFile)
	if err == nil {
		t.Error("expected error for large file")
	}
	if !strings.Contains(err.Error(), "too large") {
		t.Errorf("expected 'too large' error, got: %v", err)
	}
}

func TestLoadConfig_ValidFile(t *testing.T) {
	tmpDir := t.TempDir()

	validConfig := `
elevenlabs_key: test-key
user_id: user-123
signing_timeout: 3s
sink:
  url: https://hooks.example.test/ingest
  policy: backoff
store:
  backend: redis
  redis_addr: localhost:6379
`

	validFile := filepath.Join(tmpDir, "valid.yaml")
	err := os.WriteFile(validFile, []byte(validConfig), 0600)
	if err != nil {
		t.Fatalf("failed to create test file: %v", err)
	}

	cfg, err := LoadConfig(validFile)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.ElevenLabsKey != "test-key" {
		t.Errorf("expected key 'test-key', got %s", cfg.ElevenLabsKey)
	}
	if cfg.SigningTimeout != 3*time.Second {
		t.Errorf("expected 3s signing timeout, got %v", cfg.SigningTimeout)
	}
	if cfg.Sink.Policy != "backoff" {
		t.Errorf("expected backoff policy, got %s", cfg.Sink.Policy)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("valid config rejected: %v", err)
	}
}

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.SigningTimeout != 10*time.Second {
		t.Errorf("expected default 10s signing timeout, got %v", cfg.SigningTimeout)
	}
	if cfg.Sink.Policy != "single" {
		t.Errorf("expected default single policy, got %s", cfg.Sink.Policy)
	}
	if cfg.Store.Backend != "file" {
		t.Errorf("expected default file backend, got %s", cfg.Store.Backend)
	}
	if cfg.Runtime.SweepSchedule != "@every 1m" {
		t.Errorf("expected default sweep schedule, got %s", cfg.Runtime.SweepSchedule)
	}
}

func TestLoadConfig_EnvFallback(t *testing.T) {
	t.Setenv("ELEVENLABS_API_KEY", "env-key")
	t.Setenv("CONVERSATION_SINK_URL", "https://hooks.example.test/env")
	t.Setenv("MENTOR_USER_ID", "env-user")

	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.ElevenLabsKey != "env-key" {
		t.Errorf("expected env key, got %s", cfg.ElevenLabsKey)
	}
	if cfg.Sink.URL != "https://hooks.example.test/env" {
		t.Errorf("expected env sink url, got %s", cfg.Sink.URL)
	}
	if cfg.UserID != "env-user" {
		t.Errorf("expected env user id, got %s", cfg.UserID)
	}
}

func TestLoadConfig_NonexistentFile(t *testing.T) {
	_, err := LoadConfig("/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("expected error for nonexistent file")
	}
}

func TestLoadConfig_InvalidYAML(t *testing.T) {
	tmpDir := t.TempDir()

	invalidYAML := `
user_id: user-123
invalid yaml here: [[[
`

	invalidFile := filepath.Join(tmpDir, "invalid.yaml")
	err := os.WriteFile(invalidFile, []byte(invalidYAML), 0600)
	if err != nil {
		t.Fatalf("failed to create test file: %v", err)
	}

	_, err = LoadConfig(invalidFile)
	if err == nil {
		t.Error("expected error for invalid YAML")
	}
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			ElevenLabsKey: "k",
			UserID:        "u",
			Sink:          SinkConfig{Policy: "single"},
			Store:         StoreConfig{Backend: "file"},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid", func(c *Config) {}, false},
		{"missing key", func(c *Config) { c.ElevenLabsKey = "" }, true},
		{"missing user", func(c *Config) { c.UserID = "" }, true},
		{"bad policy", func(c *Config) { c.Sink.Policy = "eventually" }, true},
		{"bad backend", func(c *Config) { c.Store.Backend = "cassandra" }, true},
		{"redis without addr", func(c *Config) { c.Store.Backend = "redis" }, true},
		{"redis with addr", func(c *Config) {
			c.Store.Backend = "redis"
			c.Store.RedisAddr = "localhost:6379"
		}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

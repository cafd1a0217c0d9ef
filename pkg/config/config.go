package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// maxConfigSize bounds the config file read (1MB).
const maxConfigSize = 1 << 20

// Config represents the application configuration
type Config struct {
	// API Keys
	ElevenLabsKey string `yaml:"elevenlabs_key"`

	// Signed URL service
	SignerBaseURL  string        `yaml:"signer_base_url"`
	SigningTimeout time.Duration `yaml:"signing_timeout"`

	// Conversation identity
	UserID string `yaml:"user_id"`

	// Agent catalog file (empty = built-in roster)
	CatalogPath string `yaml:"catalog_path"`

	// Webhook sink
	Sink SinkConfig `yaml:"sink"`

	// Record store
	Store StoreConfig `yaml:"store"`

	// Runtime Configuration
	Runtime RuntimeConfig `yaml:"runtime"`
}

// SinkConfig holds webhook delivery configuration
type SinkConfig struct {
	URL string `yaml:"url"`
	// Policy selects the retry strategy: single or backoff
	Policy            string  `yaml:"policy"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`
}

// StoreConfig selects and configures the record store backend
type StoreConfig struct {
	// Backend is one of: file, redis, firestore
	Backend string `yaml:"backend"`

	// File backend
	Dir string `yaml:"dir"`

	// Redis backend
	RedisAddr     string        `yaml:"redis_addr"`
	RedisPassword string        `yaml:"redis_password"`
	RedisDB       int           `yaml:"redis_db"`
	RedisTTL      time.Duration `yaml:"redis_ttl"`

	// Firestore backend
	GCPProject     string `yaml:"gcp_project"`
	GCPCredentials string `yaml:"gcp_credentials"`
}

// RuntimeConfig holds runtime configuration
type RuntimeConfig struct {
	ObservabilityPort int    `yaml:"observability_port"`
	EnableMetrics     bool   `yaml:"enable_metrics"`
	SweepSchedule     string `yaml:"sweep_schedule"`
}

// LoadConfig loads configuration from a YAML file. An empty path yields
// a config built from environment variables and defaults.
func LoadConfig(path string) (*Config, error) {
	var cfg Config
	if path != "" {
		info, err := os.Stat(path)
		if err != nil {
			return nil, fmt.Errorf("failed to stat config file: %w", err)
		}
		if info.Size() > maxConfigSize {
			return nil, fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxConfigSize)
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	// Apply defaults
	if cfg.SigningTimeout == 0 {
		cfg.SigningTimeout = 10 * time.Second
	}
	if cfg.Sink.Policy == "" {
		cfg.Sink.Policy = "single"
	}
	if cfg.Store.Backend == "" {
		cfg.Store.Backend = "file"
	}
	if cfg.Runtime.ObservabilityPort == 0 {
		cfg.Runtime.ObservabilityPort = 9090
	}
	if cfg.Runtime.SweepSchedule == "" {
		cfg.Runtime.SweepSchedule = "@every 1m"
	}

	// Load secrets and endpoints from environment if not in config
	if cfg.ElevenLabsKey == "" {
		cfg.ElevenLabsKey = os.Getenv("ELEVENLABS_API_KEY")
	}
	if cfg.Sink.URL == "" {
		cfg.Sink.URL = os.Getenv("CONVERSATION_SINK_URL")
	}
	if cfg.UserID == "" {
		cfg.UserID = os.Getenv("MENTOR_USER_ID")
	}
	if cfg.Store.RedisAddr == "" {
		cfg.Store.RedisAddr = os.Getenv("REDIS_ADDR")
	}
	if cfg.Store.GCPProject == "" {
		cfg.Store.GCPProject = os.Getenv("GCP_PROJECT")
	}
	if cfg.Store.GCPCredentials == "" {
		cfg.Store.GCPCredentials = os.Getenv("GOOGLE_APPLICATION_CREDENTIALS")
	}

	return &cfg, nil
}

// SaveConfig saves configuration to a YAML file
func SaveConfig(cfg *Config, path string) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.ElevenLabsKey == "" {
		return fmt.Errorf("elevenlabs_key is required")
	}
	if c.UserID == "" {
		return fmt.Errorf("user_id is required")
	}

	switch c.Sink.Policy {
	case "single", "backoff":
	default:
		return fmt.Errorf("unknown sink policy %q", c.Sink.Policy)
	}

	switch c.Store.Backend {
	case "file", "firestore":
	case "redis":
		if c.Store.RedisAddr == "" {
			return fmt.Errorf("redis_addr is required for the redis store")
		}
	default:
		return fmt.Errorf("unknown store backend %q", c.Store.Backend)
	}

	return nil
}

// Package config loads the application configuration from YAML.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/aretw0/roam/pkg/adapters/langchain"
)

// Config is the root configuration.
type Config struct {
	LogLevel string       `yaml:"log_level"`
	Bridge   BridgeConfig `yaml:"bridge"`
	Store    StoreConfig  `yaml:"store"`
	Agent    AgentConfig  `yaml:"agent"`
	Server   ServerConfig `yaml:"server"`

	// Models maps stage names to model bindings; the "default" entry
	// covers stages without one.
	Models map[string]langchain.StageModels `yaml:"models"`
}

// BridgeConfig locates the device hardware bridge.
type BridgeConfig struct {
	URL     string        `yaml:"url"`
	Timeout time.Duration `yaml:"timeout"`
}

// StoreConfig selects the session store backend.
type StoreConfig struct {
	Kind  string      `yaml:"kind"` // "memory" or "redis"
	Redis RedisConfig `yaml:"redis"`
}

// RedisConfig configures the redis session store.
type RedisConfig struct {
	Address  string        `yaml:"address"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"`
}

// AgentConfig tunes the orchestration graph.
type AgentConfig struct {
	LockedApp      string        `yaml:"locked_app"`
	MaxHistory     int           `yaml:"max_history"`
	LaunchAttempts int           `yaml:"launch_attempts"`
	LaunchWait     time.Duration `yaml:"launch_wait"`
	MaxSupersteps  int           `yaml:"max_supersteps"`
}

// ServerConfig configures the HTTP and metrics listeners.
type ServerConfig struct {
	Listen        string `yaml:"listen"`
	MetricsListen string `yaml:"metrics_listen"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		LogLevel: "info",
		Bridge: BridgeConfig{
			URL:     "http://localhost:9998",
			Timeout: 30 * time.Second,
		},
		Store: StoreConfig{Kind: "memory"},
		Server: ServerConfig{
			Listen:        ":8787",
			MetricsListen: ":2112",
		},
		Models: map[string]langchain.StageModels{
			"default": {
				Primary:  langchain.ModelConfig{Provider: "openai", Model: "gpt-4o"},
				Fallback: langchain.ModelConfig{Provider: "openai", Model: "gpt-4o-mini"},
			},
		},
	}
}

// Load reads and validates a YAML configuration file. Missing fields keep
// their defaults; OPENAI_API_KEY fills any model binding without a key.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config: %w", err)
		}
	}

	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		for stage, m := range cfg.Models {
			if m.Primary.APIKey == "" {
				m.Primary.APIKey = key
			}
			if m.Fallback.Model != "" && m.Fallback.APIKey == "" {
				m.Fallback.APIKey = key
			}
			cfg.Models[stage] = m
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the parts that would otherwise fail deep inside a run.
func (c *Config) Validate() error {
	switch c.Store.Kind {
	case "memory":
	case "redis":
		if c.Store.Redis.Address == "" {
			return fmt.Errorf("store.redis.address is required when store.kind is redis")
		}
	default:
		return fmt.Errorf("unknown store kind %q", c.Store.Kind)
	}

	if c.Bridge.URL == "" {
		return fmt.Errorf("bridge.url is required")
	}
	if len(c.Models) == 0 {
		return fmt.Errorf("at least one model binding is required")
	}
	for stage, m := range c.Models {
		if m.Primary.Model == "" {
			return fmt.Errorf("models.%s.primary.model is required", stage)
		}
	}
	return nil
}

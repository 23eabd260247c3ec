// Package config loads the server configuration from YAML with environment
// overrides.
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v2"

	"github.com/agentauth/agentauth/internal/timing"
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Challenge ChallengeConfig `yaml:"challenge"`
	Pomi      PomiConfig      `yaml:"pomi"`
	Timing    TimingConfig    `yaml:"timing"`
	Store     StoreConfig     `yaml:"store"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Monitor   MonitorConfig   `yaml:"monitor"`
}

type ServerConfig struct {
	Port string `yaml:"port"`
	Env  string `yaml:"env"`
}

type ChallengeConfig struct {
	Secret          string  `yaml:"secret"`
	TTLSeconds      int64   `yaml:"ttl_seconds"`
	TokenTTLSeconds int64   `yaml:"token_ttl_seconds"`
	Difficulty      string  `yaml:"difficulty"`
	MinScore        float64 `yaml:"min_score"`
}

type PomiConfig struct {
	Enabled             bool     `yaml:"enabled"`
	CanaryCount         int      `yaml:"canary_count"`
	ConfidenceThreshold float64  `yaml:"confidence_threshold"`
	ModelFamilies       []string `yaml:"model_families"`
}

type TimingConfig struct {
	Enabled        bool          `yaml:"enabled"`
	SessionTracker bool          `yaml:"session_tracker"`
	Thresholds     timing.Config `yaml:"thresholds"`
}

type StoreConfig struct {
	Backend  string         `yaml:"backend"` // memory, redis, postgres
	Redis    RedisConfig    `yaml:"redis"`
	Postgres PostgresConfig `yaml:"postgres"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type PostgresConfig struct {
	DSN string `yaml:"dsn"`
}

type RateLimitConfig struct {
	MaxCallsPerMinute int `yaml:"max_calls_per_minute"`
	BurstSize         int `yaml:"burst_size"`
}

type MonitorConfig struct {
	EnableLiveStream bool   `yaml:"enable_live_stream"`
	AdminKeyHash     string `yaml:"admin_key_hash"`
}

// LoadConfig reads the YAML file at path and applies environment overrides.
// A missing file is not an error; defaults plus environment cover the common
// container deployment where no file is mounted.
func LoadConfig(path string) (*Config, error) {
	cfg := defaultConfig()

	f, err := os.Open(path)
	if err == nil {
		defer f.Close()
		if err := yaml.NewDecoder(f).Decode(cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, err
	}

	applyEnvOverrides(cfg)

	if cfg.Challenge.Secret == "" {
		return nil, fmt.Errorf("challenge secret is required (set AGENTAUTH_SECRET or challenge.secret)")
	}
	return cfg, nil
}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port: "8080",
			Env:  "development",
		},
		Challenge: ChallengeConfig{
			TTLSeconds:      30,
			TokenTTLSeconds: 3600,
			Difficulty:      "medium",
			MinScore:        0.7,
		},
		Pomi: PomiConfig{
			Enabled:             true,
			CanaryCount:         2,
			ConfidenceThreshold: 0.5,
		},
		Timing: TimingConfig{
			Enabled:        true,
			SessionTracker: true,
		},
		Store: StoreConfig{
			Backend: "memory",
			Redis:   RedisConfig{Addr: "localhost:6379"},
		},
		RateLimit: RateLimitConfig{
			MaxCallsPerMinute: 60,
		},
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("AGENTAUTH_PORT"); v != "" {
		cfg.Server.Port = v
	}
	if v := os.Getenv("AGENTAUTH_ENV"); v != "" {
		cfg.Server.Env = v
	}
	if v := os.Getenv("AGENTAUTH_SECRET"); v != "" {
		cfg.Challenge.Secret = v
	}
	if v := os.Getenv("AGENTAUTH_DIFFICULTY"); v != "" {
		cfg.Challenge.Difficulty = v
	}
	if v := os.Getenv("AGENTAUTH_TTL_SECONDS"); v != "" {
		if ttl, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Challenge.TTLSeconds = ttl
		}
	}
	if v := os.Getenv("AGENTAUTH_MIN_SCORE"); v != "" {
		if score, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Challenge.MinScore = score
		}
	}
	if v := os.Getenv("AGENTAUTH_STORE_BACKEND"); v != "" {
		cfg.Store.Backend = v
	}
	if v := os.Getenv("AGENTAUTH_REDIS_ADDR"); v != "" {
		cfg.Store.Redis.Addr = v
	}
	if v := os.Getenv("AGENTAUTH_REDIS_PASSWORD"); v != "" {
		cfg.Store.Redis.Password = v
	}
	if v := os.Getenv("AGENTAUTH_POSTGRES_DSN"); v != "" {
		cfg.Store.Postgres.DSN = v
	}
	if v := os.Getenv("AGENTAUTH_MONITOR_KEY_HASH"); v != "" {
		cfg.Monitor.AdminKeyHash = v
		cfg.Monitor.EnableLiveStream = true
	}
}

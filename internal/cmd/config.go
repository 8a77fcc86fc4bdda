package main

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the service configuration, loaded from yaml with env overrides.
type Config struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`
	Store struct {
		// Backend selects the reactive store substrate: "memory" or "nats".
		Backend string `yaml:"backend"`
		NATS    struct {
			URL    string `yaml:"url"`
			Bucket string `yaml:"bucket"`
		} `yaml:"nats"`
	} `yaml:"store"`
	Presence struct {
		HeartbeatSeconds int `yaml:"heartbeat_seconds"`
		Reaper           struct {
			Enabled          bool `yaml:"enabled"`
			ThresholdSeconds int  `yaml:"threshold_seconds"`
			IntervalSeconds  int  `yaml:"interval_seconds"`
		} `yaml:"reaper"`
	} `yaml:"presence"`
	LogLevel string `yaml:"log_level"`
}

func defaultConfig() *Config {
	var cfg Config
	cfg.Server.Port = "8080"
	cfg.Store.Backend = "memory"
	cfg.Store.NATS.URL = "nats://localhost:4222"
	cfg.Store.NATS.Bucket = "sessions"
	cfg.Presence.HeartbeatSeconds = 30
	cfg.Presence.Reaper.ThresholdSeconds = 300
	cfg.Presence.Reaper.IntervalSeconds = 60
	cfg.LogLevel = "info"
	return &cfg
}

func loadConfig(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		// No config file: defaults plus env overrides.
	case err != nil:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	cfg.Server.Port = getEnv("PORT", cfg.Server.Port)
	cfg.Store.Backend = getEnv("STORE_BACKEND", cfg.Store.Backend)
	cfg.Store.NATS.URL = getEnv("NATS_URL", cfg.Store.NATS.URL)
	cfg.Store.NATS.Bucket = getEnv("NATS_BUCKET", cfg.Store.NATS.Bucket)
	cfg.Presence.HeartbeatSeconds = getEnvAsInt("HEARTBEAT_SECONDS", cfg.Presence.HeartbeatSeconds)
	cfg.LogLevel = getEnv("LOG_LEVEL", cfg.LogLevel)

	return cfg, nil
}

func (c *Config) heartbeatInterval() time.Duration {
	return time.Duration(c.Presence.HeartbeatSeconds) * time.Second
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

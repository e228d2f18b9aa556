// Package config loads and validates the relay's environment-driven
// configuration.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"

	"github.com/tinywideclouds/go-notify-relay/pkg/middleware"
)

// Registry backend selectors.
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// envConfig is the raw environment surface. All variables carry the
// RELAY_ prefix, e.g. RELAY_API_PORT.
type envConfig struct {
	Host              string        `envconfig:"HOST" default:"0.0.0.0"`
	APIPort           string        `envconfig:"API_PORT" default:"8080"`
	WebSocketPort     string        `envconfig:"WEBSOCKET_PORT" default:"8081"`
	AllowedOrigins    string        `envconfig:"CORS_ALLOWED_ORIGINS" default:"*"`
	HeartbeatInterval time.Duration `envconfig:"HEARTBEAT_INTERVAL" default:"25s"`
	HeartbeatTimeout  time.Duration `envconfig:"HEARTBEAT_TIMEOUT" default:"60s"`
	RegistryBackend   string        `envconfig:"REGISTRY_BACKEND" default:"memory"`
	RedisAddr         string        `envconfig:"REDIS_ADDR" default:"localhost:6379"`
	JWTSecret         string        `envconfig:"JWT_SECRET"`
}

// AppConfig is the canonical, validated configuration object used
// throughout the application.
type AppConfig struct {
	Host              string
	APIPort           string
	WebSocketPort     string
	Cors              middleware.CorsConfig
	HeartbeatInterval time.Duration
	HeartbeatTimeout  time.Duration
	RegistryBackend   string
	RedisAddr         string
	JWTSecret         string
}

// Load reads the environment and returns a validated AppConfig.
func Load() (*AppConfig, error) {
	var raw envConfig
	if err := envconfig.Process("relay", &raw); err != nil {
		return nil, fmt.Errorf("failed to process environment config: %w", err)
	}

	cfg := &AppConfig{
		Host:              raw.Host,
		APIPort:           raw.APIPort,
		WebSocketPort:     raw.WebSocketPort,
		Cors:              middleware.CorsConfig{AllowedOrigins: splitOrigins(raw.AllowedOrigins)},
		HeartbeatInterval: raw.HeartbeatInterval,
		HeartbeatTimeout:  raw.HeartbeatTimeout,
		RegistryBackend:   strings.ToLower(raw.RegistryBackend),
		RedisAddr:         raw.RedisAddr,
		JWTSecret:         raw.JWTSecret,
	}

	if cfg.HeartbeatTimeout <= cfg.HeartbeatInterval {
		return nil, fmt.Errorf("RELAY_HEARTBEAT_TIMEOUT (%s) must exceed RELAY_HEARTBEAT_INTERVAL (%s)",
			cfg.HeartbeatTimeout, cfg.HeartbeatInterval)
	}
	switch cfg.RegistryBackend {
	case BackendMemory:
	case BackendRedis:
		if cfg.RedisAddr == "" {
			return nil, fmt.Errorf("RELAY_REDIS_ADDR is required when RELAY_REGISTRY_BACKEND is %q", BackendRedis)
		}
	default:
		return nil, fmt.Errorf("unknown RELAY_REGISTRY_BACKEND %q", cfg.RegistryBackend)
	}
	if len(cfg.Cors.AllowedOrigins) == 0 {
		return nil, fmt.Errorf("RELAY_CORS_ALLOWED_ORIGINS must name at least one origin or '*'")
	}

	return cfg, nil
}

// splitOrigins parses the comma-separated allow-list, trimming spaces and
// dropping empty entries.
func splitOrigins(origins string) []string {
	var clean []string
	for _, o := range strings.Split(origins, ",") {
		if trimmed := strings.TrimSpace(o); trimmed != "" {
			clean = append(clean, trimmed)
		}
	}
	return clean
}

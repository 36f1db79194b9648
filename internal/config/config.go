// Package config loads client configuration from the environment.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds every tunable of the sync client. The dedup window is a
// heuristic, not a server contract, which is why it is configurable.
type Config struct {
	AppEnv      string `env:"SAGALINK_ENV" envDefault:"development"`
	LogLevel    string `env:"SAGALINK_LOG_LEVEL" envDefault:"info"`
	WSEndpoint  string `env:"SAGALINK_WS_ENDPOINT" envDefault:"ws://localhost:8080/ws"`
	APIEndpoint string `env:"SAGALINK_API_ENDPOINT" envDefault:"http://localhost:8080"`

	ReconnectAttempts int           `env:"SAGALINK_RECONNECT_ATTEMPTS" envDefault:"5"`
	ReconnectInitial  time.Duration `env:"SAGALINK_RECONNECT_INITIAL" envDefault:"1s"`
	ReconnectMax      time.Duration `env:"SAGALINK_RECONNECT_MAX" envDefault:"10s"`
	DedupWindow       time.Duration `env:"SAGALINK_DEDUP_WINDOW" envDefault:"1s"`
	JoinTimeout       time.Duration `env:"SAGALINK_JOIN_TIMEOUT" envDefault:"10s"`

	RedisAddr     string `env:"SAGALINK_REDIS_ADDR"`
	RedisPassword string `env:"SAGALINK_REDIS_PASSWORD"`
	RedisDB       int    `env:"SAGALINK_REDIS_DB" envDefault:"0"`
}

// Load parses configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	return &cfg, nil
}

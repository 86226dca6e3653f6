package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	yaml "gopkg.in/yaml.v3"

	"github.com/park285/tictac-relay/internal/obslog"
)

// AppConfig is read from an optional YAML file (CONFIG_FILE) and then from the
// environment; environment values win.
type AppConfig struct {
	ListenAddr  string `yaml:"listen_addr" env:"LISTEN_ADDR"`
	RedisURL    string `yaml:"redis_url" env:"REDIS_URL"`
	DatabaseURL string `yaml:"database_url" env:"DATABASE_URL"`
	JWTSecret   string `yaml:"jwt_secret" env:"JWT_SECRET"`

	GameTTLSec      int   `yaml:"game_ttl_sec" env:"GAME_TTL_SEC"`
	MoveRetries     int   `yaml:"move_retries" env:"MOVE_RETRIES"`
	WriteTimeoutSec int   `yaml:"write_timeout_sec" env:"WS_WRITE_TIMEOUT_SEC"`
	PingIntervalSec int   `yaml:"ping_interval_sec" env:"WS_PING_INTERVAL_SEC"`
	ReadLimitBytes  int64 `yaml:"read_limit_bytes" env:"WS_READ_LIMIT_BYTES"`

	AllowedOrigins []string `yaml:"allowed_origins" env:"WS_ALLOWED_ORIGINS" envSeparator:","`
	MessagesDir    string   `yaml:"messages_dir" env:"MESSAGES_DIR"`

	Log obslog.Config `yaml:"log" envPrefix:"LOG_"`
}

func defaults() *AppConfig {
	return &AppConfig{
		ListenAddr:      ":8080",
		GameTTLSec:      3600,
		MoveRetries:     3,
		WriteTimeoutSec: 5,
		PingIntervalSec: 30,
		ReadLimitBytes:  4096,
		Log:             obslog.DefaultConfig(),
	}
}

func Load() (*AppConfig, error) {
	cfg := defaults()

	if path := strings.TrimSpace(os.Getenv("CONFIG_FILE")); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	cfg.RedisURL = strings.TrimSpace(cfg.RedisURL)
	cfg.DatabaseURL = strings.TrimSpace(cfg.DatabaseURL)
	cfg.JWTSecret = strings.TrimSpace(cfg.JWTSecret)

	if cfg.RedisURL == "" {
		return nil, errors.New("REDIS_URL is required")
	}
	if cfg.JWTSecret == "" {
		return nil, errors.New("JWT_SECRET is required")
	}
	if cfg.GameTTLSec <= 0 {
		return nil, fmt.Errorf("GAME_TTL_SEC must be positive, got %d", cfg.GameTTLSec)
	}
	if cfg.MoveRetries <= 0 {
		cfg.MoveRetries = 1
	}
	return cfg, nil
}

func (c *AppConfig) GameTTL() time.Duration      { return time.Duration(c.GameTTLSec) * time.Second }
func (c *AppConfig) WriteTimeout() time.Duration { return time.Duration(c.WriteTimeoutSec) * time.Second }
func (c *AppConfig) PingInterval() time.Duration { return time.Duration(c.PingIntervalSec) * time.Second }

// Package config loads leadboard settings from an optional YAML file and
// LEADBOARD_* environment variables.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Feed kinds.
const (
	FeedMemory   = "memory"
	FeedRedis    = "redis"
	FeedPostgres = "postgres"
)

// Config defines server configuration.
type Config struct {
	Server ServerConfig `yaml:"server"`
	DB     DBConfig     `yaml:"db"`
	Feed   FeedConfig   `yaml:"feed"`
	Board  BoardConfig  `yaml:"board"`
	Log    LogConfig    `yaml:"log"`
}

type ServerConfig struct {
	Host       string        `yaml:"host"`
	Port       int           `yaml:"port"`
	SessionTTL time.Duration `yaml:"session_ttl"`
}

// Addr returns host:port for the listener.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

type DBConfig struct {
	// Driver is "sqlite" or "postgres".
	Driver string `yaml:"driver"`
	// DSN is a file path for sqlite or a connection string for postgres.
	DSN string `yaml:"dsn"`
}

type FeedConfig struct {
	Kind  string      `yaml:"kind"`
	Redis RedisConfig `yaml:"redis"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Channel  string `yaml:"channel"`
}

type BoardConfig struct {
	Locale          string        `yaml:"locale"`
	ImportWorkers   int           `yaml:"import_workers"`
	ScrollThreshold float64       `yaml:"scroll_threshold"`
	ScrollSpeed     int           `yaml:"scroll_speed"`
	ScrollInterval  time.Duration `yaml:"scroll_interval"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

// SlogLevel maps the configured level onto slog. Unknown levels are info.
func (l LogConfig) SlogLevel() slog.Level {
	switch strings.ToLower(l.Level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Host:       "0.0.0.0",
			Port:       8080,
			SessionTTL: 7 * 24 * time.Hour,
		},
		DB: DBConfig{
			Driver: "sqlite",
			DSN:    "data/leadboard.db",
		},
		Feed: FeedConfig{
			Kind: FeedMemory,
			Redis: RedisConfig{
				Addr:    "localhost:6379",
				Channel: "leads:changes",
			},
		},
		Board: BoardConfig{
			Locale:          "pt-BR",
			ImportWorkers:   8,
			ScrollThreshold: 100,
			ScrollSpeed:     10,
			ScrollInterval:  16 * time.Millisecond,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from the YAML file at path (or
// LEADBOARD_CONFIG_PATH when path is empty) and environment variables.
func Load(path string) (Config, error) {
	cfg := Default()

	if path == "" {
		path = os.Getenv("LEADBOARD_CONFIG_PATH")
	}
	if path != "" {
		if err := loadFromFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks values that cannot be defaulted.
func (c Config) Validate() error {
	switch c.DB.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("invalid db driver %q", c.DB.Driver)
	}
	switch c.Feed.Kind {
	case FeedMemory, FeedRedis:
	case FeedPostgres:
		if c.DB.Driver != "postgres" {
			return fmt.Errorf("feed %q requires the postgres db driver", c.Feed.Kind)
		}
	default:
		return fmt.Errorf("invalid feed kind %q", c.Feed.Kind)
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port %d", c.Server.Port)
	}
	return nil
}

func applyEnv(cfg *Config) error {
	if host := os.Getenv("LEADBOARD_SERVER_HOST"); host != "" {
		cfg.Server.Host = host
	}
	if portStr := os.Getenv("LEADBOARD_SERVER_PORT"); portStr != "" {
		port, err := strconv.Atoi(portStr)
		if err != nil {
			return fmt.Errorf("invalid LEADBOARD_SERVER_PORT: %w", err)
		}
		cfg.Server.Port = port
	}
	if driver := os.Getenv("LEADBOARD_DB_DRIVER"); driver != "" {
		cfg.DB.Driver = driver
	}
	if dsn := os.Getenv("LEADBOARD_DB_DSN"); dsn != "" {
		cfg.DB.DSN = dsn
	}
	if kind := os.Getenv("LEADBOARD_FEED_KIND"); kind != "" {
		cfg.Feed.Kind = kind
	}
	if addr := os.Getenv("LEADBOARD_REDIS_ADDR"); addr != "" {
		cfg.Feed.Redis.Addr = addr
	}
	if pw := os.Getenv("LEADBOARD_REDIS_PASSWORD"); pw != "" {
		cfg.Feed.Redis.Password = pw
	}
	if locale := os.Getenv("LEADBOARD_BOARD_LOCALE"); locale != "" {
		cfg.Board.Locale = locale
	}
	if level := os.Getenv("LEADBOARD_LOG_LEVEL"); level != "" {
		cfg.Log.Level = level
	}
	return nil
}

func loadFromFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}
	return nil
}

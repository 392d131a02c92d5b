// Package config содержит логику чтения конфигурации клиента курьера.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/spf13/pflag"

	"github.com/mmeshcher/shipper-client/internal/backend"
)

// Хранилища сессии.
const (
	SessionStoreFile     = "file"
	SessionStorePostgres = "postgres"
)

// Config содержит параметры клиента курьера и локального агента.
type Config struct {
	BackendURL     string        `env:"SHIPPER_BACKEND_URL"`
	RequestTimeout time.Duration `env:"SHIPPER_REQUEST_TIMEOUT"`
	ProbeTimeout   time.Duration `env:"SHIPPER_PROBE_TIMEOUT"`

	SessionStore   string `env:"SHIPPER_SESSION_STORE"`
	SessionFile    string `env:"SHIPPER_SESSION_FILE"`
	DatabaseURI    string `env:"DATABASE_URI"`
	InstallationID string `env:"SHIPPER_INSTALLATION_ID"`

	AgentAddress string `env:"RUN_ADDRESS"`
	AgentKey     string `env:"SHIPPER_AGENT_KEY"`

	Timezone        string        `env:"SHIPPER_TIMEZONE"`
	FallbackDelay   time.Duration `env:"SHIPPER_FALLBACK_DELAY"`
	RefreshInterval time.Duration `env:"SHIPPER_REFRESH_INTERVAL"`

	KafkaBrokers []string `env:"KAFKA_BROKERS" envSeparator:","`
	PushTopic    string   `env:"SHIPPER_PUSH_TOPIC"`
	PushGroup    string   `env:"SHIPPER_PUSH_GROUP"`

	LogLevel string `env:"LOG_LEVEL"`
}

// Default возвращает конфигурацию по умолчанию.
func Default() *Config {
	installation, err := os.Hostname()
	if err != nil || installation == "" {
		installation = "default"
	}

	return &Config{
		BackendURL:      backend.DefaultBaseURL,
		RequestTimeout:  30 * time.Second,
		ProbeTimeout:    3 * time.Second,
		SessionStore:    SessionStoreFile,
		SessionFile:     defaultSessionFile(),
		InstallationID:  installation,
		AgentAddress:    "localhost:8080",
		Timezone:        "Asia/Ho_Chi_Minh",
		FallbackDelay:   3 * time.Second,
		RefreshInterval: 10 * time.Second,
		PushTopic:       "shipper.push",
		PushGroup:       "shipper-agent",
		LogLevel:        "info",
	}
}

func defaultSessionFile() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = "."
	}
	return filepath.Join(dir, "shipper", "session.json")
}

// RegisterFlags регистрирует флаги командной строки; значениями по умолчанию служат текущие поля.
func (c *Config) RegisterFlags(fs *pflag.FlagSet) {
	fs.StringVar(&c.BackendURL, "backend-url", c.BackendURL, "shipper API base URL")
	fs.DurationVar(&c.RequestTimeout, "timeout", c.RequestTimeout, "backend request timeout")
	fs.DurationVar(&c.ProbeTimeout, "probe-timeout", c.ProbeTimeout, "backend reachability check timeout")
	fs.StringVar(&c.SessionStore, "session-store", c.SessionStore, "session store: file or postgres")
	fs.StringVar(&c.SessionFile, "session-file", c.SessionFile, "session file path")
	fs.StringVarP(&c.DatabaseURI, "database-uri", "d", c.DatabaseURI, "database URI for the postgres session store")
	fs.StringVar(&c.InstallationID, "installation-id", c.InstallationID, "installation id for the postgres session store")
	fs.StringVarP(&c.AgentAddress, "address", "a", c.AgentAddress, "address and port for the agent HTTP server")
	fs.StringVar(&c.AgentKey, "agent-key", c.AgentKey, "shared key for the agent API (empty disables auth)")
	fs.StringVar(&c.Timezone, "timezone", c.Timezone, "timezone for order date filtering")
	fs.DurationVar(&c.FallbackDelay, "fallback-delay", c.FallbackDelay, "delay before per-status loading of an empty all-orders list")
	fs.DurationVar(&c.RefreshInterval, "refresh-interval", c.RefreshInterval, "available orders auto-refresh interval")
	fs.StringSliceVar(&c.KafkaBrokers, "kafka-brokers", c.KafkaBrokers, "kafka brokers for push notifications")
	fs.StringVar(&c.PushTopic, "push-topic", c.PushTopic, "kafka topic with push notifications")
	fs.StringVar(&c.PushGroup, "push-group", c.PushGroup, "kafka consumer group")
	fs.StringVar(&c.LogLevel, "log-level", c.LogLevel, "log level")
}

// Resolve читает .env (если файл есть) и переменные окружения.
// Заданная переменная окружения важнее флага.
func (c *Config) Resolve(envFile string) error {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load env file: %w", err)
		}
	}

	if err := env.Parse(c); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}

	return c.Validate()
}

// Validate проверяет согласованность параметров.
func (c *Config) Validate() error {
	switch c.SessionStore {
	case SessionStoreFile:
		if c.SessionFile == "" {
			return errors.New("session file path is required")
		}
	case SessionStorePostgres:
		if c.DatabaseURI == "" {
			return errors.New("database URI is required for the postgres session store")
		}
	default:
		return fmt.Errorf("unknown session store %q", c.SessionStore)
	}

	if _, err := c.Location(); err != nil {
		return err
	}
	if c.RequestTimeout <= 0 {
		return errors.New("request timeout must be positive")
	}
	if c.ProbeTimeout <= 0 {
		return errors.New("probe timeout must be positive")
	}
	return nil
}

// Location возвращает часовой пояс фильтра дат.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// Package config loads runtime settings from the environment.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/sirupsen/logrus"
)

// Config holds runtime configuration for the server and CLI.
type Config struct {
	AppEnv          string        `envconfig:"APP_ENV" default:"development"`
	Addr            string        `envconfig:"HTTP_ADDR" default:":8080"`
	ReadTimeout     time.Duration `envconfig:"HTTP_READ_TIMEOUT" default:"15s"`
	WriteTimeout    time.Duration `envconfig:"HTTP_WRITE_TIMEOUT" default:"15s"`
	ShutdownTimeout time.Duration `envconfig:"HTTP_SHUTDOWN_TIMEOUT" default:"30s"`
	AllowedOrigins  []string      `envconfig:"CORS_ALLOWED_ORIGINS" default:"http://localhost:5173,http://localhost:8080"`

	DBPath string `envconfig:"DB_PATH" default:"harvest.db"`

	// Empty RedisAddr keeps command locking inside the process.
	RedisAddr   string        `envconfig:"REDIS_ADDR"`
	LockTTL     time.Duration `envconfig:"LOCK_TTL" default:"30s"`
	LockTimeout time.Duration `envconfig:"LOCK_TIMEOUT" default:"5s"`

	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat string `envconfig:"LOG_FORMAT" default:"text"`
}

// Load reads an optional .env file and then the environment.
// Variables already set in the environment win over the file.
func Load(envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", f, err)
		}
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	if cfg.LockTimeout <= 0 {
		return nil, errors.New("lock timeout must be positive")
	}
	if _, err := logrus.ParseLevel(cfg.LogLevel); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// IsProduction returns true when the application runs in production.
func (c *Config) IsProduction() bool {
	return c != nil && c.AppEnv == "production"
}

// NewLogger builds the process logger. LogFormat "json" selects JSON output.
func (c *Config) NewLogger(out io.Writer) *logrus.Logger {
	log := logrus.New()
	log.SetOutput(out)
	if strings.EqualFold(c.LogFormat, "json") {
		log.SetFormatter(&logrus.JSONFormatter{})
	} else {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	log.SetLevel(level)
	return log
}

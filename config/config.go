package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Port          int    `yaml:"port"`
	HTTPAddr      string `yaml:"http_addr"`
	DBPath        string `yaml:"db_path"`
	ReadTimeout   int    `yaml:"read_timeout"`  // seconds
	WriteTimeout  int    `yaml:"write_timeout"` // seconds
	ControlSocket string `yaml:"control_socket"`
	LogLevel      string `yaml:"log_level"`

	JWTSecret string        `yaml:"jwt_secret"`
	TokenTTL  time.Duration `yaml:"token_ttl"`

	SendRetries      int           `yaml:"send_retries"`
	SendRetryBackoff time.Duration `yaml:"send_retry_backoff"`
	SendRate         float64       `yaml:"send_rate"` // messages per second per user
	SendBurst        int           `yaml:"send_burst"`
}

func Default() *Config {
	return &Config{
		Port:             3215,
		HTTPAddr:         ":8080",
		DBPath:           "rishta.db",
		ReadTimeout:      120,
		WriteTimeout:     30,
		ControlSocket:    "/tmp/rishta.sock",
		LogLevel:         "info",
		TokenTTL:         7 * 24 * time.Hour,
		SendRetries:      3,
		SendRetryBackoff: 50 * time.Millisecond,
		SendRate:         5,
		SendBurst:        10,
	}
}

// Load builds the configuration from defaults, then the YAML file at path
// (skipped when path is empty), then a .env file in the working directory,
// then RISHTA_* environment variables.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = os.Getenv("RISHTA_CONFIG")
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	// A missing .env is normal outside development.
	_ = godotenv.Load()

	envInt("RISHTA_PORT", &cfg.Port)
	envString("RISHTA_HTTP_ADDR", &cfg.HTTPAddr)
	envString("RISHTA_DB_PATH", &cfg.DBPath)
	envInt("RISHTA_READ_TIMEOUT", &cfg.ReadTimeout)
	envInt("RISHTA_WRITE_TIMEOUT", &cfg.WriteTimeout)
	envString("RISHTA_CONTROL_SOCKET", &cfg.ControlSocket)
	envString("RISHTA_LOG_LEVEL", &cfg.LogLevel)
	envString("RISHTA_JWT_SECRET", &cfg.JWTSecret)
	envDuration("RISHTA_TOKEN_TTL", &cfg.TokenTTL)
	envInt("RISHTA_SEND_RETRIES", &cfg.SendRetries)
	envDuration("RISHTA_SEND_RETRY_BACKOFF", &cfg.SendRetryBackoff)
	envInt("RISHTA_SEND_BURST", &cfg.SendBurst)
	if v := os.Getenv("RISHTA_SEND_RATE"); v != "" {
		if rate, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.SendRate = rate
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.JWTSecret == "" {
		return fmt.Errorf("jwt_secret is required (RISHTA_JWT_SECRET)")
	}
	if c.DBPath == "" {
		return fmt.Errorf("db_path is required")
	}
	if c.SendRetries < 0 {
		return fmt.Errorf("send_retries must not be negative")
	}
	return nil
}

func envString(key string, dst *string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func envInt(key string, dst *int) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func envDuration(key string, dst *time.Duration) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}

package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all system-wide settings.
type Config struct {
	Database  *DatabaseConfig  `json:"database"`
	HTTP      *HTTPConfig      `json:"http"`
	WebSocket *WebSocketConfig `json:"websocket"`
	Sync      *SyncConfig      `json:"sync"`
	Auth      *AuthConfig      `json:"auth"`
	Env       string           `json:"env"`
}

type DatabaseConfig struct {
	Path    string        `json:"path"`
	Timeout time.Duration `json:"timeout"`
}

type HTTPConfig struct {
	Host         string        `json:"host"`
	Port         int           `json:"port"`
	ReadTimeout  time.Duration `json:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout"`
}

type WebSocketConfig struct {
	PingInterval time.Duration `json:"ping_interval"`
	ReadTimeout  time.Duration `json:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout"`
	BufferSize   int           `json:"buffer_size"`
}

// SyncConfig controls the student-side reconciliation loop. The poll is
// not an afterthought: it is the documented recovery path for a push
// channel that silently drops, so its interval is deliberately exposed.
type SyncConfig struct {
	PollInterval time.Duration `json:"poll_interval"`
}

type AuthConfig struct {
	// CookieSecret signs the teacher dashboard session cookie. When
	// empty a random key is generated at startup, which invalidates
	// logins across restarts.
	CookieSecret string `json:"cookie_secret"`
}

// DefaultConfig returns production-ready defaults. The 5 second poll
// matches the reconciliation interval students can tolerate without
// noticeable lag when the push channel fails.
func DefaultConfig() *Config {
	return &Config{
		Database: &DatabaseConfig{
			Path:    "./data/classlink.db",
			Timeout: 30 * time.Second,
		},
		HTTP: &HTTPConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		WebSocket: &WebSocketConfig{
			PingInterval: 30 * time.Second,
			ReadTimeout:  60 * time.Second,
			WriteTimeout: 10 * time.Second,
			BufferSize:   100,
		},
		Sync: &SyncConfig{
			PollInterval: 5 * time.Second,
		},
		Auth: &AuthConfig{},
		Env:  "development",
	}
}

// Validate ensures the configuration can run.
func (c *Config) Validate() error {
	if c.Database == nil {
		return fmt.Errorf("database configuration is required")
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database path cannot be empty")
	}
	if c.Database.Timeout <= 0 {
		return fmt.Errorf("database timeout must be positive")
	}

	if c.HTTP == nil {
		return fmt.Errorf("HTTP configuration is required")
	}
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("HTTP port must be between 1 and 65535")
	}
	if c.HTTP.ReadTimeout <= 0 {
		return fmt.Errorf("HTTP read timeout must be positive")
	}
	if c.HTTP.WriteTimeout <= 0 {
		return fmt.Errorf("HTTP write timeout must be positive")
	}
	if c.HTTP.Host == "" {
		return fmt.Errorf("HTTP host cannot be empty")
	}

	if c.WebSocket == nil {
		return fmt.Errorf("WebSocket configuration is required")
	}
	if c.WebSocket.PingInterval <= 0 {
		return fmt.Errorf("WebSocket ping interval must be positive")
	}
	if c.WebSocket.ReadTimeout <= 0 {
		return fmt.Errorf("WebSocket read timeout must be positive")
	}
	if c.WebSocket.WriteTimeout <= 0 {
		return fmt.Errorf("WebSocket write timeout must be positive")
	}
	if c.WebSocket.BufferSize <= 0 {
		return fmt.Errorf("WebSocket buffer size must be positive")
	}

	if c.Sync == nil {
		return fmt.Errorf("sync configuration is required")
	}
	if c.Sync.PollInterval <= 0 {
		return fmt.Errorf("sync poll interval must be positive")
	}

	if c.Auth == nil {
		return fmt.Errorf("auth configuration is required")
	}

	return nil
}

// Load reads configuration from the environment, after loading an
// optional .env file. Unparseable values fall back to defaults.
func Load() *Config {
	// Missing .env is the normal case in containerized deployments.
	_ = godotenv.Load()

	config := DefaultConfig()

	if v := os.Getenv("CLASSLINK_ENV"); v != "" {
		config.Env = v
	}
	if v := os.Getenv("CLASSLINK_HTTP_HOST"); v != "" {
		config.HTTP.Host = v
	}
	if v := os.Getenv("CLASSLINK_HTTP_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			config.HTTP.Port = port
		}
	}
	if v := os.Getenv("CLASSLINK_HTTP_READ_TIMEOUT"); v != "" {
		if timeout, err := time.ParseDuration(v); err == nil {
			config.HTTP.ReadTimeout = timeout
		}
	}
	if v := os.Getenv("CLASSLINK_HTTP_WRITE_TIMEOUT"); v != "" {
		if timeout, err := time.ParseDuration(v); err == nil {
			config.HTTP.WriteTimeout = timeout
		}
	}
	if v := os.Getenv("CLASSLINK_DATABASE_PATH"); v != "" {
		config.Database.Path = v
	}
	if v := os.Getenv("CLASSLINK_DATABASE_TIMEOUT"); v != "" {
		if timeout, err := time.ParseDuration(v); err == nil {
			config.Database.Timeout = timeout
		}
	}
	if v := os.Getenv("CLASSLINK_WEBSOCKET_PING_INTERVAL"); v != "" {
		if interval, err := time.ParseDuration(v); err == nil {
			config.WebSocket.PingInterval = interval
		}
	}
	if v := os.Getenv("CLASSLINK_WEBSOCKET_READ_TIMEOUT"); v != "" {
		if timeout, err := time.ParseDuration(v); err == nil {
			config.WebSocket.ReadTimeout = timeout
		}
	}
	if v := os.Getenv("CLASSLINK_WEBSOCKET_WRITE_TIMEOUT"); v != "" {
		if timeout, err := time.ParseDuration(v); err == nil {
			config.WebSocket.WriteTimeout = timeout
		}
	}
	if v := os.Getenv("CLASSLINK_WEBSOCKET_BUFFER_SIZE"); v != "" {
		if size, err := strconv.Atoi(v); err == nil {
			config.WebSocket.BufferSize = size
		}
	}
	if v := os.Getenv("CLASSLINK_SYNC_POLL_INTERVAL"); v != "" {
		if interval, err := time.ParseDuration(v); err == nil {
			config.Sync.PollInterval = interval
		}
	}
	if v := os.Getenv("CLASSLINK_COOKIE_SECRET"); v != "" {
		config.Auth.CookieSecret = v
	}

	return config
}

package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds the runtime settings for the notification service.
type Config struct {
	ListenAddr string // HTTP/WebSocket listen address, default ":8080"

	// RedisURL selects the broker-backed channel layer when set
	// (e.g. "redis://localhost:6379/0"). Empty or unreachable means
	// the service runs on the in-process layer instead.
	RedisURL    string
	TopicPrefix string // Redis channel prefix, default "orders:ws:"

	SigningKey string        // HMAC key shared by token issue and verify
	TokenTTL   time.Duration // WebSocket token lifetime, default 5m

	ReadBufferSize  int
	WriteBufferSize int
}

// Default returns a Config with sensible defaults and no signing key.
func Default() *Config {
	return &Config{
		ListenAddr:      ":8080",
		TopicPrefix:     "orders:ws:",
		TokenTTL:        5 * time.Minute,
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
	}
}

// FromEnv loads configuration from environment variables.
// Falls back to defaults for any missing or malformed values.
func FromEnv() *Config {
	cfg := Default()

	if addr := os.Getenv("LISTEN_ADDR"); addr != "" {
		cfg.ListenAddr = addr
	}
	if url := os.Getenv("REDIS_URL"); url != "" {
		cfg.RedisURL = url
	}
	if prefix := os.Getenv("REDIS_WS_PREFIX"); prefix != "" {
		cfg.TopicPrefix = prefix
	}
	if key := os.Getenv("SIGNING_KEY"); key != "" {
		cfg.SigningKey = key
	}
	if ttlStr := os.Getenv("WS_TOKEN_TTL_SECONDS"); ttlStr != "" {
		if ttl, err := strconv.Atoi(ttlStr); err == nil && ttl > 0 {
			cfg.TokenTTL = time.Duration(ttl) * time.Second
		}
	}
	if sizeStr := os.Getenv("WS_READ_BUFFER"); sizeStr != "" {
		if size, err := strconv.Atoi(sizeStr); err == nil && size > 0 {
			cfg.ReadBufferSize = size
		}
	}
	if sizeStr := os.Getenv("WS_WRITE_BUFFER"); sizeStr != "" {
		if size, err := strconv.Atoi(sizeStr); err == nil && size > 0 {
			cfg.WriteBufferSize = size
		}
	}
	return cfg
}

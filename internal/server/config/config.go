// Package config handles configuration for the chat server, including
// defaults, JSON overlay, and command-line flags.
package config

import (
	"fmt"
	"time"

	"github.com/dmitrijs2005/gophchat/internal/protocol"
)

// Config holds runtime settings for the chat server.
//
// Fields:
//   - EndpointAddr: bind address of the TCP chat listener.
//   - DatabaseDSN: SQLite file path, or a postgres:// URL for PostgreSQL (pgx).
//   - SecretKey: HMAC secret for signing session tokens (HS256). When empty a
//     random per-process secret is used, so tokens do not survive a restart.
//   - TokenValidityDuration: session token lifetime; zero disables resume.
//   - WriteTimeout: per-frame write deadline towards clients.
//   - OutboxSize: frames queued per connection before events are dropped.
//   - MaxFrameSize: longest accepted inbound line, in bytes.
//   - ExcludeSender: do not echo chat lines back to their author.
//   - WebSocketAddr / HealthAddr: optional extra listeners, empty to disable.
//   - LogLevel: debug, info, warn or error.
type Config struct {
	EndpointAddr          string
	DatabaseDSN           string
	SecretKey             string
	TokenValidityDuration time.Duration
	WriteTimeout          time.Duration
	OutboxSize            int
	MaxFrameSize          int
	ExcludeSender         bool
	WebSocketAddr         string
	HealthAddr            string
	LogLevel              string
}

// LoadDefaults populates Config with development defaults.
func (c *Config) LoadDefaults() {
	c.EndpointAddr = "127.0.0.1:55556"
	c.DatabaseDSN = "chat_users.db"
	c.SecretKey = ""
	c.TokenValidityDuration = 60 * time.Minute
	c.WriteTimeout = 10 * time.Second
	c.OutboxSize = 256
	c.MaxFrameSize = protocol.DefaultMaxFrameSize
	c.ExcludeSender = false
	c.WebSocketAddr = ""
	c.HealthAddr = ""
	c.LogLevel = "info"
}

// LoadConfig builds a Config by applying defaults, then overlaying values
// from an optional JSON file (-c / -config) and finally from command-line
// flags. args excludes the program name.
func LoadConfig(args []string) (*Config, error) {
	cfg := &Config{}
	cfg.LoadDefaults()
	if err := parseJson(cfg, args); err != nil {
		return nil, err
	}
	if err := parseFlags(cfg, args); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.EndpointAddr == "" {
		return fmt.Errorf("endpoint address must not be empty")
	}
	if c.DatabaseDSN == "" {
		return fmt.Errorf("database DSN must not be empty")
	}
	if c.OutboxSize < 1 {
		return fmt.Errorf("outbox size must be positive, got %d", c.OutboxSize)
	}
	if c.MaxFrameSize < 1 {
		return fmt.Errorf("max frame size must be positive, got %d", c.MaxFrameSize)
	}
	return nil
}

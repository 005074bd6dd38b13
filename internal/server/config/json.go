package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/dmitrijs2005/gophchat/internal/flagx"
	"github.com/dmitrijs2005/gophchat/internal/timex"
)

// JsonConfig is the on-disk shape of the configuration file. Durations
// accept both "90s" style strings and integer nanoseconds.
type JsonConfig struct {
	EndpointAddr          string         `json:"endpoint_addr"`
	DatabaseDSN           string         `json:"database_dsn"`
	SecretKey             string         `json:"secret_key"`
	TokenValidityDuration timex.Duration `json:"token_validity_duration"`
	WriteTimeout          timex.Duration `json:"write_timeout"`
	OutboxSize            int            `json:"outbox_size"`
	MaxFrameSize          int            `json:"max_frame_size"`
	ExcludeSender         *bool          `json:"exclude_sender"`
	WebSocketAddr         string         `json:"websocket_addr"`
	HealthAddr            string         `json:"health_addr"`
	LogLevel              string         `json:"log_level"`
}

// parseJson overlays values from the file named by -c or -config onto
// config. Fields missing from the file keep their current values. Without
// either flag nothing is loaded.
func parseJson(config *Config, args []string) error {
	path := flagx.ConfigPath(args)
	if path == "" {
		return nil
	}

	file, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}

	c := &JsonConfig{}
	if err := json.Unmarshal(file, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}

	setString(&config.EndpointAddr, c.EndpointAddr)
	setString(&config.DatabaseDSN, c.DatabaseDSN)
	setString(&config.SecretKey, c.SecretKey)
	setString(&config.WebSocketAddr, c.WebSocketAddr)
	setString(&config.HealthAddr, c.HealthAddr)
	setString(&config.LogLevel, c.LogLevel)

	if c.TokenValidityDuration.Duration != 0 {
		config.TokenValidityDuration = c.TokenValidityDuration.Duration
	}
	if c.WriteTimeout.Duration != 0 {
		config.WriteTimeout = c.WriteTimeout.Duration
	}
	if c.OutboxSize != 0 {
		config.OutboxSize = c.OutboxSize
	}
	if c.MaxFrameSize != 0 {
		config.MaxFrameSize = c.MaxFrameSize
	}
	if c.ExcludeSender != nil {
		config.ExcludeSender = *c.ExcludeSender
	}
	return nil
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

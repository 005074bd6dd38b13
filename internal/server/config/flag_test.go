package config

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFlags(t *testing.T) {
	base := func() *Config {
		c := &Config{}
		c.LoadDefaults()
		return c
	}

	tests := []struct {
		expected *Config
		name     string
		args     []string
		wantErr  bool
	}{
		{
			name: "all flags",
			args: []string{
				"-a", "127.0.0.1:9090", "-d", "db", "-s", "secret", "-t", "5", "-w", "3",
				"-q", "16", "-m", "1024", "-x", "-ws", ":8080", "-hc", ":8081", "-l", "debug",
			},
			expected: &Config{
				EndpointAddr:          "127.0.0.1:9090",
				DatabaseDSN:           "db",
				SecretKey:             "secret",
				TokenValidityDuration: 5 * time.Minute,
				WriteTimeout:          3 * time.Second,
				OutboxSize:            16,
				MaxFrameSize:          1024,
				ExcludeSender:         true,
				WebSocketAddr:         ":8080",
				HealthAddr:            ":8081",
				LogLevel:              "debug",
			},
		},
		{
			name: "unknown flags are ignored",
			args: []string{"-c", "cfg.json", "-z", "-a", ":1"},
			expected: func() *Config {
				c := base()
				c.EndpointAddr = ":1"
				return c
			}(),
		},
		{
			name:     "no flags keep defaults",
			args:     []string{},
			expected: base(),
		},
		{
			name:    "invalid value",
			args:    []string{"-w", "soon"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := base()
			err := parseFlags(config, tt.args)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Empty(t, cmp.Diff(tt.expected, config))
		})
	}
}

package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	var c Config
	c.LoadDefaults()

	assert.Equal(t, "127.0.0.1:55556", c.EndpointAddr)
	assert.Equal(t, "chat_users.db", c.DatabaseDSN)
	assert.Empty(t, c.SecretKey)
	assert.Equal(t, 60*time.Minute, c.TokenValidityDuration)
	assert.Equal(t, 10*time.Second, c.WriteTimeout)
	assert.Equal(t, 256, c.OutboxSize)
	assert.Equal(t, 64*1024, c.MaxFrameSize)
	assert.False(t, c.ExcludeSender)
	assert.Empty(t, c.WebSocketAddr)
	assert.Empty(t, c.HealthAddr)
	assert.Equal(t, "info", c.LogLevel)
}

func TestLoadConfig_NoArgsGivesDefaults(t *testing.T) {
	c, err := LoadConfig(nil)
	require.NoError(t, err)
	require.NotNil(t, c)

	var want Config
	want.LoadDefaults()
	assert.Equal(t, &want, c)
}

func TestLoadConfig_FlagsOverrideJSON(t *testing.T) {
	path := writeTempJSON(t, "", "", map[string]any{
		"endpoint_addr": "0.0.0.0:7000",
		"database_dsn":  "from-json.db",
		"write_timeout": "1500ms",
	})

	c, err := LoadConfig([]string{"-c", path, "-d", "from-flag.db"})
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:7000", c.EndpointAddr)
	assert.Equal(t, "from-flag.db", c.DatabaseDSN)
	assert.Equal(t, 1500*time.Millisecond, c.WriteTimeout)
}

func TestLoadConfig_Errors(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"missing config file", []string{"-c", "/nonexistent/chat.json"}},
		{"bad int", []string{"-q", "many"}},
		{"zero outbox", []string{"-q", "0"}},
		{"zero frame size", []string{"-m", "0"}},
		{"empty address", []string{"-a="}},
		{"negative outbox", []string{"-q", "-3"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadConfig(tt.args)
			assert.Error(t, err)
		})
	}
}

func TestLoadConfig_ResumeCanBeDisabled(t *testing.T) {
	c, err := LoadConfig([]string{"-t", "0"})
	require.NoError(t, err)
	assert.Zero(t, c.TokenValidityDuration)
}

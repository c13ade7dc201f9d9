package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("COLLECTOR_POLL_INTERVAL", "30s")
	t.Setenv("COLLECTOR_TIMEZONE", "UTC")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, cfg.PollInterval)
	assert.Equal(t, time.Minute, cfg.ErrorBackoff)
	assert.Equal(t, 10, cfg.Workers)
	assert.Equal(t, "log", cfg.NotifyMode)
	assert.Equal(t, "none", cfg.StreamMode)
	assert.Equal(t, 161, cfg.SNMPPort)
	assert.Equal(t, "127.0.0.1:8088", cfg.APIListenAddr)
}

func TestLoadExplicitlyEmptyAPIAddrDisablesAPI(t *testing.T) {
	t.Setenv("API_LISTEN_ADDR", "")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Empty(t, cfg.APIListenAddr)
}

func TestValidate(t *testing.T) {
	base := func() Config {
		return Config{
			DevicesFile: "devices.json", DataDir: ".", PollInterval: time.Minute, Workers: 1,
			ErrorBackoff: time.Minute, ShutdownTimeout: time.Second, SNMPPort: 161,
			SNMPTimeout: time.Second, SNMPMaxOids: 10, NotifyMode: "log", NotifyRetries: 1,
			StreamMode: "none", Timezone: "UTC",
		}
	}
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{name: "zero workers", mutate: func(c *Config) { c.Workers = 0 }},
		{name: "bad timezone", mutate: func(c *Config) { c.Timezone = "Mars/Olympus" }},
		{name: "telegram without token", mutate: func(c *Config) { c.NotifyMode = "telegram" }},
		{name: "unknown notify mode", mutate: func(c *Config) { c.NotifyMode = "pager" }},
		{name: "grpc without addr", mutate: func(c *Config) { c.StreamMode = "grpc" }},
		{name: "websocket without url", mutate: func(c *Config) { c.StreamMode = "websocket" }},
		{name: "port out of range", mutate: func(c *Config) { c.SNMPPort = 70000 }},
	}
	require.NoError(t, base().Validate())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := base()
			tt.mutate(&c)
			assert.Error(t, c.Validate())
		})
	}
}

func TestTLSConfigDisabled(t *testing.T) {
	tlsCfg, err := Config{}.TLSConfig()
	require.NoError(t, err)
	assert.Nil(t, tlsCfg)
}

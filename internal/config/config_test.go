package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestLoadConfig_Defaults(t *testing.T) {
	path := writeConfig(t, `
domologica:
  base_url: "http://192.168.5.2/"
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "http://192.168.5.2", cfg.Domologica.BaseURL)
	assert.Equal(t, 20*time.Second, cfg.Domologica.ScanIntervalDuration())
	assert.Equal(t, 10*time.Second, cfg.Domologica.TimeoutDuration())
	assert.Equal(t, 8, cfg.Domologica.MetadataConcurrency)
	assert.Equal(t, 500*time.Millisecond, cfg.Domologica.RefreshCooldown())
	assert.Equal(t, 2500*time.Millisecond, cfg.Domologica.OptimisticTTL())
	assert.Equal(t, []time.Duration{time.Second, 3 * time.Second}, cfg.Domologica.TurboDelays())
	assert.Equal(t, "domologica2mqtt", cfg.MQTT.Prefix)
	assert.Equal(t, 1883, cfg.MQTT.Port)
	assert.True(t, cfg.MQTT.Retain)
	assert.True(t, cfg.HomeAssistant.Discovery)
	assert.Equal(t, "homeassistant", cfg.HomeAssistant.Prefix)
	assert.Equal(t, "info", cfg.Log)
}

func TestLoadConfig_FullFile(t *testing.T) {
	path := writeConfig(t, `
domologica:
  base_url: "https://gw.local"
  username: admin
  password: secret
  scan_interval: 5
  turbo_delays_ms: [200]
  aliases:
    "48": "Luce Cucina"
  enabled_elements: ["48"]
homeassistant:
  discovery: false
mqtt:
  prefix: domo
log: debug
cache: true
metrics:
  listen: ":9108"
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "admin", cfg.Domologica.Username)
	assert.Equal(t, 5*time.Second, cfg.Domologica.ScanIntervalDuration())
	assert.Equal(t, []time.Duration{200 * time.Millisecond}, cfg.Domologica.TurboDelays())
	assert.Equal(t, "Luce Cucina", cfg.Domologica.Aliases["48"])
	assert.True(t, cfg.Domologica.Enabled("48"))
	assert.False(t, cfg.Domologica.Enabled("25"))
	assert.False(t, cfg.HomeAssistant.Discovery)
	assert.Equal(t, "domo", cfg.MQTT.Prefix)
	assert.True(t, cfg.Cache)
	assert.Equal(t, ":9108", cfg.Metrics.Listen)
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := LoadConfig("/nonexistent/config.yml")
	assert.Error(t, err)
}

func TestLoadConfig_InvalidYAML(t *testing.T) {
	path := writeConfig(t, "domologica: [base_url")
	_, err := LoadConfig(path)
	assert.Error(t, err)
}

func TestLoadConfig_EnvOverride(t *testing.T) {
	t.Setenv("DOMOLOGICA_BASE_URL", "http://10.0.0.9")
	t.Setenv("DOMOLOGICA_PASSWORD", "fromenv")
	path := writeConfig(t, `
domologica:
  username: admin
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "http://10.0.0.9", cfg.Domologica.BaseURL)
	assert.Equal(t, "fromenv", cfg.Domologica.Password)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name  string
		cfg   Config
		field string
	}{
		{
			name:  "missing base url",
			cfg:   Config{},
			field: "domologica.base_url",
		},
		{
			name:  "not http",
			cfg:   Config{Domologica: DomologicaConfig{BaseURL: "ftp://gw"}},
			field: "domologica.base_url",
		},
		{
			name:  "username without password",
			cfg:   Config{Domologica: DomologicaConfig{BaseURL: "http://gw", Username: "admin"}},
			field: "domologica.password",
		},
		{
			name:  "negative turbo delay",
			cfg:   Config{Domologica: DomologicaConfig{BaseURL: "http://gw", TurboDelaysMS: []int{-1}}},
			field: "domologica.turbo_delays_ms",
		},
		{
			name:  "bad qos",
			cfg:   Config{Domologica: DomologicaConfig{BaseURL: "http://gw"}, MQTT: MQTTConfig{QOS: 3}},
			field: "mqtt.qos",
		},
		{
			name: "valid",
			cfg:  Config{Domologica: DomologicaConfig{BaseURL: "http://gw"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.field == "" {
				assert.NoError(t, err)
				return
			}
			var cerr *ConfigurationError
			require.True(t, errors.As(err, &cerr), "want ConfigurationError, got %v", err)
			assert.Equal(t, tt.field, cerr.Field)
			assert.ErrorIs(t, err, ErrConfiguration)
		})
	}
}

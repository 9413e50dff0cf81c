package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/daemonp/domologica2mqtt/internal/util"
)

var ErrConfiguration = errors.New("invalid configuration")

// ConfigurationError reports a missing or invalid setting. It is fatal to
// setup and never retried.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("config %s: %s", e.Field, e.Reason)
}

func (e *ConfigurationError) Unwrap() error {
	return ErrConfiguration
}

type Config struct {
	Domologica    DomologicaConfig    `yaml:"domologica"`
	MQTT          MQTTConfig          `yaml:"mqtt"`
	HomeAssistant HomeAssistantConfig `yaml:"homeassistant"`
	Metrics       MetricsConfig       `yaml:"metrics"`
	Log           string              `yaml:"log"`
	Cache         bool                `yaml:"cache"`
}

type DomologicaConfig struct {
	BaseURL             string            `yaml:"base_url"`
	Username            string            `yaml:"username"`
	Password            string            `yaml:"password"`
	ScanInterval        int               `yaml:"scan_interval"`
	Timeout             int               `yaml:"timeout"`
	MetadataConcurrency int               `yaml:"metadata_concurrency"`
	RefreshCooldownMS   int               `yaml:"refresh_cooldown_ms"`
	OptimisticTTLMS     int               `yaml:"optimistic_ttl_ms"`
	TurboDelaysMS       []int             `yaml:"turbo_delays_ms"`
	Aliases             map[string]string `yaml:"aliases"`
	EnabledElements     []string          `yaml:"enabled_elements"`
}

type MQTTConfig struct {
	ClientID  string `yaml:"client_id"`
	Host      string `yaml:"host"`
	Port      int    `yaml:"port"`
	Keepalive int    `yaml:"keepalive"`
	Password  string `yaml:"password"`
	QOS       int    `yaml:"qos"`
	Retain    bool   `yaml:"retain"`
	Username  string `yaml:"username"`
	Prefix    string `yaml:"prefix"`
	Clean     bool   `yaml:"clean"`
}

type HomeAssistantConfig struct {
	Discovery bool   `yaml:"discovery"`
	Prefix    string `yaml:"prefix"`
}

type MetricsConfig struct {
	Listen string `yaml:"listen"`
}

func (d DomologicaConfig) ScanIntervalDuration() time.Duration {
	return time.Duration(d.ScanInterval) * time.Second
}

func (d DomologicaConfig) TimeoutDuration() time.Duration {
	return time.Duration(d.Timeout) * time.Second
}

func (d DomologicaConfig) RefreshCooldown() time.Duration {
	return time.Duration(d.RefreshCooldownMS) * time.Millisecond
}

func (d DomologicaConfig) OptimisticTTL() time.Duration {
	return time.Duration(d.OptimisticTTLMS) * time.Millisecond
}

func (d DomologicaConfig) TurboDelays() []time.Duration {
	out := make([]time.Duration, 0, len(d.TurboDelaysMS))
	for _, ms := range d.TurboDelaysMS {
		out = append(out, time.Duration(ms)*time.Millisecond)
	}
	return out
}

// Enabled reports whether an element should be exposed. An empty allowlist
// enables everything.
func (d DomologicaConfig) Enabled(id string) bool {
	return len(d.EnabledElements) == 0 || util.Contains(d.EnabledElements, id)
}

func LoadConfig(configFile string) (*Config, error) {
	data, err := os.ReadFile(configFile)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	config := defaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	applyEnvOverrides(config)
	applyDefaults(config)

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// defaultConfig holds defaults that a zero value cannot express.
func defaultConfig() *Config {
	return &Config{
		Domologica: DomologicaConfig{
			TurboDelaysMS: []int{1000, 3000},
		},
		MQTT: MQTTConfig{
			Retain: true,
		},
		HomeAssistant: HomeAssistantConfig{
			Discovery: true,
		},
	}
}

func applyDefaults(config *Config) {
	d := &config.Domologica
	d.BaseURL = strings.TrimRight(strings.TrimSpace(d.BaseURL), "/")
	if d.ScanInterval == 0 {
		d.ScanInterval = 20
	}
	if d.Timeout == 0 {
		d.Timeout = 10
	}
	if d.MetadataConcurrency == 0 {
		d.MetadataConcurrency = 8
	}
	if d.RefreshCooldownMS == 0 {
		d.RefreshCooldownMS = 500
	}
	if d.OptimisticTTLMS == 0 {
		d.OptimisticTTLMS = 2500
	}

	if config.MQTT.ClientID == "" {
		config.MQTT.ClientID = "domologica2mqtt"
	}
	if config.MQTT.Host == "" {
		config.MQTT.Host = "localhost"
	}
	if config.MQTT.Port == 0 {
		config.MQTT.Port = 1883
	}
	if config.MQTT.Keepalive == 0 {
		config.MQTT.Keepalive = 60
	}
	if config.MQTT.Prefix == "" {
		config.MQTT.Prefix = "domologica2mqtt"
	}
	if config.HomeAssistant.Prefix == "" {
		config.HomeAssistant.Prefix = "homeassistant"
	}
	if config.Log == "" {
		config.Log = "info"
	}
}

func applyEnvOverrides(config *Config) {
	if v := os.Getenv("DOMOLOGICA_BASE_URL"); v != "" {
		config.Domologica.BaseURL = v
	}
	if v := os.Getenv("DOMOLOGICA_USERNAME"); v != "" {
		config.Domologica.Username = v
	}
	if v := os.Getenv("DOMOLOGICA_PASSWORD"); v != "" {
		config.Domologica.Password = v
	}
	if v := os.Getenv("DOMOLOGICA_MQTT_HOST"); v != "" {
		config.MQTT.Host = v
	}
	if v := os.Getenv("DOMOLOGICA_MQTT_USERNAME"); v != "" {
		config.MQTT.Username = v
	}
	if v := os.Getenv("DOMOLOGICA_MQTT_PASSWORD"); v != "" {
		config.MQTT.Password = v
	}
}

func (c *Config) Validate() error {
	d := c.Domologica
	if d.BaseURL == "" {
		return &ConfigurationError{Field: "domologica.base_url", Reason: "is required"}
	}
	u, err := url.Parse(d.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return &ConfigurationError{Field: "domologica.base_url", Reason: fmt.Sprintf("%q is not an http(s) URL", d.BaseURL)}
	}
	if d.Username != "" && d.Password == "" {
		return &ConfigurationError{Field: "domologica.password", Reason: "is required when username is set"}
	}
	if d.ScanInterval < 0 {
		return &ConfigurationError{Field: "domologica.scan_interval", Reason: "must be positive"}
	}
	if d.Timeout < 0 {
		return &ConfigurationError{Field: "domologica.timeout", Reason: "must be positive"}
	}
	if d.MetadataConcurrency < 0 {
		return &ConfigurationError{Field: "domologica.metadata_concurrency", Reason: "must be positive"}
	}
	for _, ms := range d.TurboDelaysMS {
		if ms <= 0 {
			return &ConfigurationError{Field: "domologica.turbo_delays_ms", Reason: "delays must be positive"}
		}
	}
	if c.MQTT.QOS < 0 || c.MQTT.QOS > 2 {
		return &ConfigurationError{Field: "mqtt.qos", Reason: "must be 0, 1 or 2"}
	}
	return nil
}

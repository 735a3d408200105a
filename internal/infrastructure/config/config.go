package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for the Refoss bridge.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Site     SiteConfig     `yaml:"site"`
	Database DatabaseConfig `yaml:"database"`
	MQTT     MQTTConfig     `yaml:"mqtt"`
	API      APIConfig      `yaml:"api"`
	InfluxDB InfluxDBConfig `yaml:"influxdb"`
	Logging  LoggingConfig  `yaml:"logging"`
	Refoss   RefossConfig   `yaml:"refoss"`
}

// SiteConfig identifies the installation the bridge runs in.
type SiteConfig struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`

	// DiscoveryPrefix is the Home Assistant discovery root.
	DiscoveryPrefix string `yaml:"discovery_prefix"`

	// BaseTopic prefixes every state, availability and command topic.
	BaseTopic string `yaml:"base_topic"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
	MaxAttempts  int `yaml:"max_attempts"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Enabled   bool             `yaml:"enabled"`
	Host      string           `yaml:"host"`
	Port      int              `yaml:"port"`
	Timeouts  APITimeoutConfig `yaml:"timeouts"`
	CORS      CORSConfig       `yaml:"cors"`
	WebSocket WebSocketConfig  `yaml:"websocket"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings.
// An empty AllowedOrigins list allows every origin.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers"`
}

// WebSocketConfig contains event stream settings.
type WebSocketConfig struct {
	// PingInterval is the keepalive ping period in seconds.
	PingInterval int `yaml:"ping_interval"`

	// PongTimeout is how long to wait for a pong in seconds.
	PongTimeout int `yaml:"pong_timeout"`

	// MaxMessageSize caps inbound client messages in bytes.
	MaxMessageSize int `yaml:"max_message_size"`
}

// APITimeoutConfig contains HTTP timeout settings in seconds.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// RefossConfig contains the device fleet and coordinator timings.
type RefossConfig struct {
	Devices []RefossDeviceConfig `yaml:"devices"`

	// PollingInterval is how often slow-changing sensors are refreshed.
	// Default: 60s
	PollingInterval time.Duration `yaml:"polling_interval"`

	// ReconnectInterval is the wait between push channel reconnect attempts.
	// Default: 60s
	ReconnectInterval time.Duration `yaml:"reconnect_interval"`

	// ReloadCooldown delays a device reload after it reports a config change.
	// Default: 60s
	ReloadCooldown time.Duration `yaml:"reload_cooldown"`

	// RequestTimeout bounds a single RPC call.
	// Default: 10s
	RequestTimeout time.Duration `yaml:"request_timeout"`

	Discovery RefossDiscoveryConfig `yaml:"discovery"`
}

// RefossDeviceConfig is a statically configured device.
type RefossDeviceConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Name     string `yaml:"name"`
}

// RefossDiscoveryConfig controls mDNS discovery of devices on the LAN.
type RefossDiscoveryConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Service   string `yaml:"service"`
	Domain    string `yaml:"domain"`
	Interface string `yaml:"interface"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: REFOSS_BRIDGE_SECTION_KEY
// For example: REFOSS_BRIDGE_DATABASE_PATH, REFOSS_BRIDGE_MQTT_HOST
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)
	cfg.applyDeviceDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Site: SiteConfig{
			ID:   "site-001",
			Name: "Refoss Bridge",
		},
		Database: DatabaseConfig{
			Path:        "./data/refossbridge.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "refoss-bridge",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
			DiscoveryPrefix: "homeassistant",
			BaseTopic:       "refoss",
		},
		API: APIConfig{
			Enabled: true,
			Host:    "0.0.0.0",
			Port:    8090,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
			WebSocket: WebSocketConfig{
				PingInterval:   30,
				PongTimeout:    10,
				MaxMessageSize: 8192,
			},
		},
		InfluxDB: InfluxDBConfig{
			BatchSize:     100,
			FlushInterval: 10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Refoss: RefossConfig{
			PollingInterval:   60 * time.Second,
			ReconnectInterval: 60 * time.Second,
			ReloadCooldown:    60 * time.Second,
			RequestTimeout:    10 * time.Second,
			Discovery: RefossDiscoveryConfig{
				Service: "_http._tcp",
				Domain:  "local.",
			},
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("REFOSS_BRIDGE_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	if v := os.Getenv("REFOSS_BRIDGE_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("REFOSS_BRIDGE_MQTT_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.MQTT.Broker.Port = port
		}
	}
	if v := os.Getenv("REFOSS_BRIDGE_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("REFOSS_BRIDGE_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	if v := os.Getenv("REFOSS_BRIDGE_API_HOST"); v != "" {
		cfg.API.Host = v
	}

	if v := os.Getenv("REFOSS_BRIDGE_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	if v := os.Getenv("REFOSS_BRIDGE_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}

	// Shared device credentials, used where a device entry has none.
	if v := os.Getenv("REFOSS_BRIDGE_DEVICE_PASSWORD"); v != "" {
		for i := range cfg.Refoss.Devices {
			if cfg.Refoss.Devices[i].Password == "" {
				cfg.Refoss.Devices[i].Password = v
			}
		}
	}
}

func (c *Config) applyDeviceDefaults() {
	for i := range c.Refoss.Devices {
		d := &c.Refoss.Devices[i]
		if d.Port == 0 {
			d.Port = 80
		}
		if d.Username == "" && d.Password != "" {
			d.Username = "admin"
		}
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []string

	if c.Site.ID == "" {
		errs = append(errs, "site.id is required")
	}

	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}
	if c.MQTT.BaseTopic == "" {
		errs = append(errs, "mqtt.base_topic is required")
	}
	if strings.ContainsAny(c.MQTT.BaseTopic+c.MQTT.DiscoveryPrefix, "+#") {
		errs = append(errs, "mqtt topics must not contain wildcards")
	}

	if c.API.Enabled && (c.API.Port < 1 || c.API.Port > 65535) {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	if c.API.Enabled && (c.API.WebSocket.PingInterval <= 0 || c.API.WebSocket.PongTimeout <= 0) {
		errs = append(errs, "api.websocket ping_interval and pong_timeout must be positive")
	}

	if c.InfluxDB.Enabled && c.InfluxDB.URL == "" {
		errs = append(errs, "influxdb.url is required when influxdb is enabled")
	}

	if c.Refoss.PollingInterval <= 0 {
		errs = append(errs, "refoss.polling_interval must be positive")
	}
	if c.Refoss.ReconnectInterval <= 0 {
		errs = append(errs, "refoss.reconnect_interval must be positive")
	}
	if c.Refoss.RequestTimeout <= 0 {
		errs = append(errs, "refoss.request_timeout must be positive")
	}
	if c.Refoss.ReloadCooldown < 0 {
		errs = append(errs, "refoss.reload_cooldown must not be negative")
	}

	seen := make(map[string]bool, len(c.Refoss.Devices))
	for i, d := range c.Refoss.Devices {
		if d.Host == "" {
			errs = append(errs, fmt.Sprintf("refoss.devices[%d].host is required", i))
			continue
		}
		if d.Port < 1 || d.Port > 65535 {
			errs = append(errs, fmt.Sprintf("refoss.devices[%d].port must be between 1 and 65535", i))
		}
		if seen[d.Host] {
			errs = append(errs, fmt.Sprintf("refoss.devices[%d].host %q is duplicated", i, d.Host))
		}
		seen[d.Host] = true
	}

	if len(c.Refoss.Devices) == 0 && !c.Refoss.Discovery.Enabled {
		errs = append(errs, "refoss.devices is empty and discovery is disabled")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// GetReadTimeout returns the API read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Idle) * time.Second
}

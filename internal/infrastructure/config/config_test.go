package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return configPath
}

func TestLoad_ValidConfig(t *testing.T) {
	content := `
site:
  id: "test-site"
database:
  path: "/tmp/test.db"
mqtt:
  broker:
    host: "localhost"
    port: 1883
  base_topic: "refoss"
refoss:
  polling_interval: 30s
  devices:
    - host: "192.168.1.50"
      password: "secret"
    - host: "refoss-em06.local"
      port: 8080
`
	cfg, err := Load(writeConfig(t, content))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Site.ID != "test-site" {
		t.Errorf("Site.ID = %q, want %q", cfg.Site.ID, "test-site")
	}
	if cfg.Refoss.PollingInterval != 30*time.Second {
		t.Errorf("PollingInterval = %v, want 30s", cfg.Refoss.PollingInterval)
	}
	if cfg.Refoss.ReconnectInterval != 60*time.Second {
		t.Errorf("ReconnectInterval = %v, want default 60s", cfg.Refoss.ReconnectInterval)
	}
	if len(cfg.Refoss.Devices) != 2 {
		t.Fatalf("len(Devices) = %d, want 2", len(cfg.Refoss.Devices))
	}
	if d := cfg.Refoss.Devices[0]; d.Port != 80 || d.Username != "admin" {
		t.Errorf("Devices[0] = %+v, want port 80 and username admin", d)
	}
	if d := cfg.Refoss.Devices[1]; d.Port != 8080 || d.Username != "" {
		t.Errorf("Devices[1] = %+v, want port 8080 and no username", d)
	}
}

// TestLoad_SampleConfig keeps configs/config.yaml loadable.
func TestLoad_SampleConfig(t *testing.T) {
	cfg, err := Load(filepath.Join("..", "..", "..", "configs", "config.yaml"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(cfg.Refoss.Devices) != 1 || cfg.Refoss.Devices[0].Port != 80 {
		t.Errorf("Devices = %+v", cfg.Refoss.Devices)
	}
	if cfg.Refoss.PollingInterval != 60*time.Second {
		t.Errorf("PollingInterval = %v, want 60s", cfg.Refoss.PollingInterval)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("Load() expected error for missing file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "invalid: [yaml: content"))
	if err == nil {
		t.Error("Load() expected error for invalid YAML, got nil")
	}
}

func TestLoad_ValidationFailure(t *testing.T) {
	content := `
site:
  id: ""
refoss:
  devices:
    - host: "192.168.1.50"
`
	_, err := Load(writeConfig(t, content))
	if err == nil {
		t.Error("Load() expected validation error for empty site.id, got nil")
	}
}

func validConfig() *Config {
	cfg := defaultConfig()
	cfg.Refoss.Devices = []RefossDeviceConfig{{Host: "192.168.1.50", Port: 80}}
	return cfg
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{
			name:    "valid config",
			mutate:  func(*Config) {},
			wantErr: false,
		},
		{
			name:    "missing site ID",
			mutate:  func(c *Config) { c.Site.ID = "" },
			wantErr: true,
		},
		{
			name:    "missing database path",
			mutate:  func(c *Config) { c.Database.Path = "" },
			wantErr: true,
		},
		{
			name:    "invalid QoS",
			mutate:  func(c *Config) { c.MQTT.QoS = 3 },
			wantErr: true,
		},
		{
			name:    "wildcard in base topic",
			mutate:  func(c *Config) { c.MQTT.BaseTopic = "refoss/#" },
			wantErr: true,
		},
		{
			name:    "invalid api port",
			mutate:  func(c *Config) { c.API.Port = 70000 },
			wantErr: true,
		},
		{
			name: "api port ignored when disabled",
			mutate: func(c *Config) {
				c.API.Enabled = false
				c.API.Port = 0
			},
			wantErr: false,
		},
		{
			name:    "zero websocket ping interval",
			mutate:  func(c *Config) { c.API.WebSocket.PingInterval = 0 },
			wantErr: true,
		},
		{
			name: "influxdb enabled without url",
			mutate: func(c *Config) {
				c.InfluxDB.Enabled = true
				c.InfluxDB.URL = ""
			},
			wantErr: true,
		},
		{
			name:    "zero polling interval",
			mutate:  func(c *Config) { c.Refoss.PollingInterval = 0 },
			wantErr: true,
		},
		{
			name:    "device without host",
			mutate:  func(c *Config) { c.Refoss.Devices[0].Host = "" },
			wantErr: true,
		},
		{
			name: "duplicate device host",
			mutate: func(c *Config) {
				c.Refoss.Devices = append(c.Refoss.Devices, c.Refoss.Devices[0])
			},
			wantErr: true,
		},
		{
			name:    "no devices and no discovery",
			mutate:  func(c *Config) { c.Refoss.Devices = nil },
			wantErr: true,
		},
		{
			name: "discovery only",
			mutate: func(c *Config) {
				c.Refoss.Devices = nil
				c.Refoss.Discovery.Enabled = true
			},
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestConfig_GetTimeouts(t *testing.T) {
	cfg := &Config{
		API: APIConfig{
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 45,
				Idle:  60,
			},
		},
	}

	if got := cfg.GetReadTimeout().Seconds(); got != 30 {
		t.Errorf("GetReadTimeout() = %v, want 30", got)
	}
	if got := cfg.GetWriteTimeout().Seconds(); got != 45 {
		t.Errorf("GetWriteTimeout() = %v, want 45", got)
	}
	if got := cfg.GetIdleTimeout().Seconds(); got != 60 {
		t.Errorf("GetIdleTimeout() = %v, want 60", got)
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	cfg := defaultConfig()
	cfg.Refoss.Devices = []RefossDeviceConfig{
		{Host: "a"},
		{Host: "b", Password: "own"},
	}

	t.Setenv("REFOSS_BRIDGE_DATABASE_PATH", "/custom/path.db")
	t.Setenv("REFOSS_BRIDGE_MQTT_HOST", "mqtt.example.com")
	t.Setenv("REFOSS_BRIDGE_MQTT_PORT", "8883")
	t.Setenv("REFOSS_BRIDGE_MQTT_USERNAME", "testuser")
	t.Setenv("REFOSS_BRIDGE_MQTT_PASSWORD", "testpass")
	t.Setenv("REFOSS_BRIDGE_API_HOST", "192.168.1.1")
	t.Setenv("REFOSS_BRIDGE_INFLUXDB_TOKEN", "secret-token")
	t.Setenv("REFOSS_BRIDGE_DEVICE_PASSWORD", "shared")

	applyEnvOverrides(cfg)

	if cfg.Database.Path != "/custom/path.db" {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, "/custom/path.db")
	}
	if cfg.MQTT.Broker.Host != "mqtt.example.com" {
		t.Errorf("MQTT.Broker.Host = %q, want %q", cfg.MQTT.Broker.Host, "mqtt.example.com")
	}
	if cfg.MQTT.Broker.Port != 8883 {
		t.Errorf("MQTT.Broker.Port = %d, want 8883", cfg.MQTT.Broker.Port)
	}
	if cfg.MQTT.Auth.Username != "testuser" || cfg.MQTT.Auth.Password != "testpass" {
		t.Errorf("MQTT.Auth = %+v", cfg.MQTT.Auth)
	}
	if cfg.API.Host != "192.168.1.1" {
		t.Errorf("API.Host = %q, want %q", cfg.API.Host, "192.168.1.1")
	}
	if cfg.InfluxDB.Token != "secret-token" {
		t.Errorf("InfluxDB.Token = %q, want %q", cfg.InfluxDB.Token, "secret-token")
	}
	if cfg.Refoss.Devices[0].Password != "shared" {
		t.Errorf("Devices[0].Password = %q, want shared", cfg.Refoss.Devices[0].Password)
	}
	if cfg.Refoss.Devices[1].Password != "own" {
		t.Errorf("Devices[1].Password = %q, want own", cfg.Refoss.Devices[1].Password)
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := defaultConfig()

	if cfg.MQTT.Broker.Port != 1883 {
		t.Errorf("defaultConfig MQTT.Broker.Port = %d, want 1883", cfg.MQTT.Broker.Port)
	}
	if cfg.MQTT.DiscoveryPrefix != "homeassistant" {
		t.Errorf("defaultConfig MQTT.DiscoveryPrefix = %q", cfg.MQTT.DiscoveryPrefix)
	}
	if cfg.Refoss.PollingInterval != 60*time.Second {
		t.Errorf("defaultConfig PollingInterval = %v, want 60s", cfg.Refoss.PollingInterval)
	}
	if cfg.Refoss.Discovery.Service != "_http._tcp" {
		t.Errorf("defaultConfig Discovery.Service = %q", cfg.Refoss.Discovery.Service)
	}
}

// internal/config/config.go
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Bridge BridgeConfig `yaml:"bridge"`
}

type BridgeConfig struct {
	Modbus  ModbusConfig  `yaml:"modbus"`
	MQTT    MQTTConfig    `yaml:"mqtt"`
	Metrics MetricsConfig `yaml:"metrics"`
	Meters  []MeterConfig `yaml:"meters"`
}

// ---- MODBUS ----

type ModbusConfig struct {
	Endpoint       string        `yaml:"endpoint"`
	TimeoutMs      int           `yaml:"timeout_ms"`
	DefaultDelayMs int           `yaml:"default_delay_ms"`
	DeviceDelays   map[uint8]int `yaml:"device_delays"` // unit id -> ms
	RetryAttempts  int           `yaml:"retry_attempts"`
	CacheTTLMs     int           `yaml:"cache_ttl_ms"`
}

// ---- MQTT ----

type MQTTConfig struct {
	Broker          string `yaml:"broker"`
	ClientID        string `yaml:"client_id"`
	Username        string `yaml:"username"`
	Password        string `yaml:"password"`
	BaseTopic       string `yaml:"base_topic"`
	DiscoveryPrefix string `yaml:"discovery_prefix"`
	QoS             int    `yaml:"qos"`
}

// ---- METRICS ----

type MetricsConfig struct {
	Listen string `yaml:"listen"` // empty disables the listener
}

// ---- METER ----

type MeterConfig struct {
	Name           string `yaml:"name"`
	Model          string `yaml:"model"`
	UnitID         int    `yaml:"unit_id"`
	FastIntervalMs int    `yaml:"fast_interval_ms"`
	SlowIntervalMs int    `yaml:"slow_interval_ms"`
}

// Load reads and decodes a config file. Validation and normalization
// are separate stages.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return &cfg, nil
}

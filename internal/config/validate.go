// internal/config/validate.go
package config

import (
	"fmt"

	"github.com/gridwatt/wattbridge/internal/meters"
)

// Validate checks configuration correctness.
// It performs declarative validation only.
// It MUST NOT mutate configuration.
func Validate(cfg *Config) error {
	b := &cfg.Bridge

	// ------------------------------------------------------------
	// CONNECTION SETTINGS
	// ------------------------------------------------------------

	if b.Modbus.Endpoint == "" {
		return fmt.Errorf("config: modbus endpoint required")
	}
	if b.Modbus.TimeoutMs < 0 {
		return fmt.Errorf("config: timeout_ms must be >= 0")
	}
	if b.Modbus.DefaultDelayMs < 0 {
		return fmt.Errorf("config: default_delay_ms must be >= 0")
	}
	for unit, ms := range b.Modbus.DeviceDelays {
		if ms < 0 {
			return fmt.Errorf("config: device_delays[%d] must be >= 0", unit)
		}
	}
	if b.Modbus.RetryAttempts < 0 {
		return fmt.Errorf("config: retry_attempts must be >= 0")
	}
	if b.Modbus.CacheTTLMs < 0 {
		return fmt.Errorf("config: cache_ttl_ms must be >= 0")
	}

	if b.MQTT.Broker == "" {
		return fmt.Errorf("config: mqtt broker required")
	}
	if b.MQTT.QoS < 0 || b.MQTT.QoS > 2 {
		return fmt.Errorf("config: mqtt qos %d out of range 0..2", b.MQTT.QoS)
	}

	// ------------------------------------------------------------
	// METERS
	// ------------------------------------------------------------

	if len(b.Meters) == 0 {
		return fmt.Errorf("config: at least one meter required")
	}

	names := make(map[string]bool)
	units := make(map[int]string)

	for i, m := range b.Meters {
		label := m.Name
		if label == "" {
			label = fmt.Sprintf("meters[%d]", i)
		}

		if _, ok := meters.Lookup(m.Model); !ok {
			return fmt.Errorf("config: %s: unknown model %q", label, m.Model)
		}
		if m.UnitID < 1 || m.UnitID > 247 {
			return fmt.Errorf("config: %s: unit_id %d out of range 1..247", label, m.UnitID)
		}
		if m.FastIntervalMs < 0 || m.SlowIntervalMs < 0 {
			return fmt.Errorf("config: %s: intervals must be >= 0", label)
		}

		if m.Name != "" {
			if names[m.Name] {
				return fmt.Errorf("config: duplicate meter name %q", m.Name)
			}
			names[m.Name] = true
		}
		if prev, taken := units[m.UnitID]; taken {
			return fmt.Errorf("config: unit_id %d used by both %q and %q",
				m.UnitID, prev, label)
		}
		units[m.UnitID] = label
	}

	return nil
}

// internal/config/normalize.go
package config

import (
	"fmt"
	"strings"
)

// Defaults applied by Normalize.
const (
	DefaultTimeoutMs      = 5000
	DefaultDelayMs        = 50
	DefaultRetryAttempts  = 3
	DefaultCacheTTLMs     = 3000
	DefaultClientID       = "wattbridge"
	DefaultBaseTopic      = "wattbridge"
	DefaultFastIntervalMs = 2000
	DefaultSlowIntervalMs = 30000
)

// Normalize applies post-validation defaults.
// It is allowed to mutate configuration.
// It MUST be called only after Validate().
func Normalize(cfg *Config) {
	if cfg == nil {
		return
	}
	b := &cfg.Bridge

	if b.Modbus.TimeoutMs == 0 {
		b.Modbus.TimeoutMs = DefaultTimeoutMs
	}
	if b.Modbus.DefaultDelayMs == 0 {
		b.Modbus.DefaultDelayMs = DefaultDelayMs
	}
	if b.Modbus.RetryAttempts == 0 {
		b.Modbus.RetryAttempts = DefaultRetryAttempts
	}
	if b.Modbus.CacheTTLMs == 0 {
		b.Modbus.CacheTTLMs = DefaultCacheTTLMs
	}

	if b.MQTT.ClientID == "" {
		b.MQTT.ClientID = DefaultClientID
	}
	if b.MQTT.BaseTopic == "" {
		b.MQTT.BaseTopic = DefaultBaseTopic
	}

	for i := range b.Meters {
		m := &b.Meters[i]
		if m.Name == "" {
			m.Name = fmt.Sprintf("%s-%d", strings.ToLower(m.Model), m.UnitID)
		}
		if m.FastIntervalMs == 0 {
			m.FastIntervalMs = DefaultFastIntervalMs
		}
		if m.SlowIntervalMs == 0 {
			m.SlowIntervalMs = DefaultSlowIntervalMs
		}
	}
}

// internal/publish/discovery.go
package publish

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/gridwatt/wattbridge/internal/meterbus"
	"github.com/gridwatt/wattbridge/internal/meters"
)

// Discovery announces every measurement of a meter to Home Assistant
// via its MQTT discovery convention. Configs are retained so a
// restarted broker still knows the sensors.
type Discovery struct {
	s            sink
	prefix       string
	base         string
	availability string
	qos          byte
}

func NewDiscovery(s sink, prefix, baseTopic, availabilityTopic string, qos byte) *Discovery {
	return &Discovery{
		s:            s,
		prefix:       prefix,
		base:         baseTopic,
		availability: availabilityTopic,
		qos:          qos,
	}
}

type sensorConfig struct {
	Name              string       `json:"name"`
	UniqueID          string       `json:"unique_id"`
	StateTopic        string       `json:"state_topic"`
	UnitOfMeasurement string       `json:"unit_of_measurement,omitempty"`
	DeviceClass       string       `json:"device_class,omitempty"`
	StateClass        string       `json:"state_class,omitempty"`
	AvailabilityTopic string       `json:"availability_topic"`
	Device            deviceConfig `json:"device"`
}

type deviceConfig struct {
	Identifiers  []string `json:"identifiers"`
	Name         string   `json:"name"`
	Model        string   `json:"model,omitempty"`
	Manufacturer string   `json:"manufacturer,omitempty"`
	SerialNumber string   `json:"serial_number,omitempty"`
}

// Announce publishes one retained config per measurement the meter
// exposes.
func (d *Discovery) Announce(m *meters.Meter, id meters.Identity) error {
	node := objectID(m.Name())
	dev := deviceConfig{
		Identifiers:  []string{fmt.Sprintf("wattbridge_%s_%d", node, m.UnitID())},
		Name:         id.Name,
		Model:        id.Model,
		Manufacturer: id.Manufacturer,
		SerialNumber: id.Serial,
	}

	var errs []error
	for _, meas := range m.Measurements() {
		cfg := sensorConfig{
			Name:              string(meas),
			UniqueID:          fmt.Sprintf("wattbridge_%s_%s", node, objectID(string(meas))),
			StateTopic:        fmt.Sprintf("%s/%s/%s", d.base, m.Name(), meas),
			UnitOfMeasurement: meters.Unit(meas),
			DeviceClass:       deviceClass(meas),
			StateClass:        stateClass(meas),
			AvailabilityTopic: d.availability,
			Device:            dev,
		}
		payload, err := json.Marshal(cfg)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		topic := fmt.Sprintf("%s/sensor/%s/%s/config", d.prefix, node, objectID(string(meas)))
		if err := d.s.Publish(topic, d.qos, true, payload); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// objectID flattens a name into the [a-z0-9_] shape discovery topics
// expect.
func objectID(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}

func deviceClass(m meterbus.Measurement) string {
	switch {
	case strings.HasPrefix(string(m), "voltage"):
		return "voltage"
	case strings.HasPrefix(string(m), "current"):
		return "current"
	case m == meters.PowerReactive:
		return "reactive_power"
	case m == meters.PowerApparent:
		return "apparent_power"
	case m == meters.PowerFactor:
		return "power_factor"
	case strings.HasPrefix(string(m), "power"):
		return "power"
	case m == meters.Frequency:
		return "frequency"
	case m == meters.EnergyTotal, m == meters.EnergyExport:
		return "energy"
	default:
		return ""
	}
}

func stateClass(m meterbus.Measurement) string {
	switch m {
	case meters.EnergyTotal, meters.EnergyExport,
		meters.EnergyReactiveImport, meters.EnergyReactiveExport:
		return "total_increasing"
	default:
		if meters.Unit(m) == "" {
			return ""
		}
		return "measurement"
	}
}

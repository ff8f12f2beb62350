// internal/meters/meter.go
package meters

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/gridwatt/wattbridge/internal/meterbus"
)

// Bus is the slice of the coordinator the meter facade consumes.
type Bus interface {
	Read(device uint8, spec meterbus.RegisterSpec) (any, error)
	ReadBatch(device uint8, batch meterbus.BatchSpec) (*meterbus.BatchResult, error)
}

// Reading is one published value. Numeric values are normalized to
// float64 with the model's scale applied; info values stay strings.
type Reading struct {
	Measurement meterbus.Measurement
	Value       any
	Unit        string
}

// Identity is the device-reported nameplate, with config fallbacks.
type Identity struct {
	Name         string
	Model        string
	Manufacturer string
	Serial       string
}

// Meter binds one model definition to a unit id on one coordinator.
type Meter struct {
	name   string
	unitID uint8
	def    Definition
	bus    Bus
}

func New(name, model string, unitID uint8, bus Bus) (*Meter, error) {
	def, ok := Lookup(model)
	if !ok {
		return nil, fmt.Errorf("unknown meter model %q (known: %s)",
			model, strings.Join(Models(), ", "))
	}
	if name == "" {
		name = fmt.Sprintf("%s-%d", strings.ToLower(model), unitID)
	}
	return &Meter{name: name, unitID: unitID, def: def, bus: bus}, nil
}

func (m *Meter) Name() string           { return m.name }
func (m *Meter) Model() string          { return m.def.Model }
func (m *Meter) UnitID() uint8          { return m.unitID }
func (m *Meter) Definition() Definition { return m.def }

// Measurements lists everything the meter publishes, sorted.
func (m *Meter) Measurements() []meterbus.Measurement {
	out := make([]meterbus.Measurement, 0, len(m.def.Fast)+len(m.def.Slow))
	for meas := range m.def.Fast {
		out = append(out, meas)
	}
	for meas := range m.def.Slow {
		out = append(out, meas)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// ReadFast reads the per-cycle measurements (voltages, currents, powers).
func (m *Meter) ReadFast() ([]Reading, error) {
	return m.readCycle(m.def.FastBatch, m.def.Fast)
}

// ReadSlow reads the slow-moving measurements (energy counters).
func (m *Meter) ReadSlow() ([]Reading, error) {
	if len(m.def.Slow) == 0 {
		return nil, nil
	}
	return m.readCycle(m.def.SlowBatch, m.def.Slow)
}

// Identity queries the nameplate registers. Models without a register
// for a field fall back to the definition's static values.
func (m *Meter) Identity() (Identity, error) {
	id := Identity{
		Name:         m.name,
		Model:        m.def.Model,
		Manufacturer: m.def.Manufacturer,
	}

	var errs []error
	for meas, s := range m.def.Info {
		v, err := m.bus.Read(m.unitID, s.Spec)
		if err != nil {
			if meterbus.IsConnectionLost(err) {
				return id, err
			}
			errs = append(errs, fmt.Errorf("%s: %w", meas, err))
			continue
		}
		text := formatValue(v)
		if text == "" {
			continue
		}
		switch meas {
		case MeterName:
			id.Name = text
		case MeterModel:
			id.Model = text
		case Manufacturer:
			id.Manufacturer = text
		case SerialNumber:
			id.Serial = text
		}
	}
	return id, errors.Join(errs...)
}

// readCycle prefers the batch window and falls back to scalar reads for
// anything the window does not cover. One measurement failing to decode
// does not sink its siblings; connection loss aborts immediately.
func (m *Meter) readCycle(batch *meterbus.BatchSpec, set map[meterbus.Measurement]Scalar) ([]Reading, error) {
	var (
		readings []Reading
		errs     []error
		covered  = make(map[meterbus.Measurement]bool)
	)

	if batch != nil {
		res, err := m.bus.ReadBatch(m.unitID, *batch)
		if err != nil {
			return nil, err
		}
		for _, meas := range res.Measurements() {
			covered[meas] = true
			v, err := res.Get(meas)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", meas, err))
				continue
			}
			readings = append(readings, m.reading(meas, set[meas], v))
		}
	}

	for meas, s := range set {
		if covered[meas] {
			continue
		}
		v, err := m.bus.Read(m.unitID, s.Spec)
		if err != nil {
			if meterbus.IsConnectionLost(err) {
				return readings, err
			}
			errs = append(errs, fmt.Errorf("%s: %w", meas, err))
			continue
		}
		readings = append(readings, m.reading(meas, s, v))
	}

	sort.Slice(readings, func(i, j int) bool {
		return readings[i].Measurement < readings[j].Measurement
	})
	return readings, errors.Join(errs...)
}

func (m *Meter) reading(meas meterbus.Measurement, s Scalar, v any) Reading {
	if f, ok := numeric(v); ok {
		if s.Scale != 0 {
			f *= s.Scale
		}
		return Reading{Measurement: meas, Value: f, Unit: Unit(meas)}
	}
	return Reading{Measurement: meas, Value: formatValue(v), Unit: Unit(meas)}
}

func numeric(v any) (float64, bool) {
	switch x := v.(type) {
	case uint16:
		return float64(x), true
	case uint32:
		return float64(x), true
	case uint64:
		return float64(x), true
	case int16:
		return float64(x), true
	case int32:
		return float64(x), true
	case int64:
		return float64(x), true
	case float32:
		return float64(x), true
	case float64:
		return x, true
	default:
		return 0, false
	}
}

// formatValue renders non-numeric values for identity fields: strings
// pass through, raw register dumps become hex.
func formatValue(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case []uint16:
		var b strings.Builder
		for _, w := range x {
			fmt.Fprintf(&b, "%04X", w)
		}
		return b.String()
	default:
		return fmt.Sprint(x)
	}
}

// internal/meters/definition.go
package meters

import (
	"fmt"
	"sort"
	"time"

	"github.com/gridwatt/wattbridge/internal/meterbus"
)

// Scalar binds one measurement to its register geometry. Scale, when
// non-zero, multiplies the decoded numeric value (unit adjustments like
// kW to W or Wh to kWh).
type Scalar struct {
	Spec  meterbus.RegisterSpec
	Scale float64
}

// Definition is the static description of one meter model: which
// registers back which measurements, and how to read them efficiently.
// Built once at startup, never mutated.
type Definition struct {
	Model        string
	Manufacturer string

	// Info measurements are read once per identity refresh.
	Info map[meterbus.Measurement]Scalar

	// Fast measurements carry the publish loop; Slow ones (energies)
	// change too slowly to poll every cycle.
	Fast map[meterbus.Measurement]Scalar
	Slow map[meterbus.Measurement]Scalar

	// Optional batch windows covering (a subset of) the cycle's
	// measurements in one wire transaction.
	FastBatch *meterbus.BatchSpec
	SlowBatch *meterbus.BatchSpec

	// Delay is a model-specific minimum bus spacing. Zero means the
	// coordinator default applies.
	Delay time.Duration
}

// Validate checks every geometry before any network I/O happens.
func (d Definition) Validate() error {
	if d.Model == "" {
		return fmt.Errorf("definition without model name")
	}
	for _, set := range []map[meterbus.Measurement]Scalar{d.Info, d.Fast, d.Slow} {
		for m, s := range set {
			if err := s.Spec.Validate(); err != nil {
				return fmt.Errorf("%s/%s: %w", d.Model, m, err)
			}
		}
	}
	for _, b := range []*meterbus.BatchSpec{d.FastBatch, d.SlowBatch} {
		if b == nil {
			continue
		}
		if err := b.Validate(); err != nil {
			return fmt.Errorf("%s: %w", d.Model, err)
		}
		for m, it := range b.Items {
			s, ok := d.Fast[m]
			if !ok {
				s, ok = d.Slow[m]
			}
			if !ok {
				return fmt.Errorf("%s: batch 0x%04X covers unknown measurement %s",
					d.Model, b.Address, m)
			}
			if s.Spec != it.Spec {
				return fmt.Errorf("%s: batch 0x%04X item %s disagrees with its scalar spec",
					d.Model, b.Address, m)
			}
			if it.Offset != it.Spec.Address-b.Address {
				return fmt.Errorf("%s: batch 0x%04X item %s offset %d does not match address 0x%04X",
					d.Model, b.Address, m, it.Offset, it.Spec.Address)
			}
		}
	}
	return nil
}

// ---- registry ----

var registry = map[string]Definition{}

// register is called from the per-model files' init. A broken table is
// a programming error and fails fast.
func register(d Definition) {
	if err := d.Validate(); err != nil {
		panic(fmt.Sprintf("meters: invalid definition: %v", err))
	}
	if _, dup := registry[d.Model]; dup {
		panic(fmt.Sprintf("meters: duplicate model %q", d.Model))
	}
	registry[d.Model] = d
}

// Lookup resolves a config model name.
func Lookup(model string) (Definition, bool) {
	d, ok := registry[model]
	return d, ok
}

// Models lists the known model names, sorted.
func Models() []string {
	out := make([]string, 0, len(registry))
	for m := range registry {
		out = append(out, m)
	}
	sort.Strings(out)
	return out
}

// ---- geometry shorthand for the model tables ----

func f32(addr uint16) meterbus.RegisterSpec {
	return meterbus.RegisterSpec{Address: addr, Count: 2, Type: meterbus.Float32}
}

func u16(addr uint16) meterbus.RegisterSpec {
	return meterbus.RegisterSpec{Address: addr, Count: 1, Type: meterbus.Uint16}
}

func u32(addr uint16) meterbus.RegisterSpec {
	return meterbus.RegisterSpec{Address: addr, Count: 2, Type: meterbus.Uint32}
}

func i32(addr uint16) meterbus.RegisterSpec {
	return meterbus.RegisterSpec{Address: addr, Count: 2, Type: meterbus.Int32}
}

func str(addr, count uint16) meterbus.RegisterSpec {
	return meterbus.RegisterSpec{Address: addr, Count: count, Type: meterbus.String}
}

func raw(addr, count uint16) meterbus.RegisterSpec {
	return meterbus.RegisterSpec{Address: addr, Count: count, Type: meterbus.Raw}
}

// batchOver builds a BatchSpec spanning the given measurements, window
// running from start for count registers. Offsets derive from the
// scalar addresses, keeping the two views consistent by construction.
func batchOver(start, count uint16, set map[meterbus.Measurement]Scalar, ms ...meterbus.Measurement) *meterbus.BatchSpec {
	items := make(map[meterbus.Measurement]meterbus.BatchItem, len(ms))
	for _, m := range ms {
		s, ok := set[m]
		if !ok {
			panic(fmt.Sprintf("meters: batch measurement %s not in scalar set", m))
		}
		items[m] = meterbus.BatchItem{
			Offset: s.Spec.Address - start,
			Spec:   s.Spec,
		}
	}
	return &meterbus.BatchSpec{Address: start, Count: count, Items: items}
}

// internal/meters/csmb.go
package meters

import (
	"time"

	"github.com/gridwatt/wattbridge/internal/meterbus"
)

// Xemex CSMB current sensor bridge. Three current channels, no voltage
// or energy registers. The device answers slowly; it needs 150ms of bus
// spacing instead of the default.
func init() {
	fast := map[meterbus.Measurement]Scalar{
		CurrentL1: {Spec: f32(0x500C)},
		CurrentL2: {Spec: f32(0x500E)},
		CurrentL3: {Spec: f32(0x5010)},
	}

	register(Definition{
		Model:        "CSMB",
		Manufacturer: "Xemex",
		Info: map[meterbus.Measurement]Scalar{
			SerialNumber: {Spec: raw(0x4000, 2)},
		},
		Fast:      fast,
		FastBatch: batchOver(0x500C, 6, fast, CurrentL1, CurrentL2, CurrentL3),
		Delay:     150 * time.Millisecond,
	})
}

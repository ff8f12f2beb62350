// internal/meters/a9mem2150.go
package meters

import "github.com/gridwatt/wattbridge/internal/meterbus"

// Schneider Electric iEM2150, single phase. Powers come back in kW and
// energies in Wh; both are normalized here.
func init() {
	fast := map[meterbus.Measurement]Scalar{
		Current:       {Spec: f32(0x0BB7)},
		Voltage:       {Spec: f32(0x0BD3)},
		Power:         {Spec: f32(0x0BED), Scale: 1000},
		PowerReactive: {Spec: f32(0x0BFB)},
		PowerApparent: {Spec: f32(0x0C03)},
		PowerFactor:   {Spec: f32(0x0C0B)},
		Frequency:     {Spec: f32(0x0C25)},
	}
	slow := map[meterbus.Measurement]Scalar{
		EnergyTotal:          {Spec: f32(0xB02B), Scale: 0.001},
		EnergyExport:         {Spec: f32(0xB02D), Scale: 0.001},
		EnergyReactiveImport: {Spec: f32(0xB02F), Scale: 0.001},
		EnergyReactiveExport: {Spec: f32(0xB031), Scale: 0.001},
	}

	register(Definition{
		Model:        "A9MEM2150",
		Manufacturer: "Schneider Electric",
		Info: map[meterbus.Measurement]Scalar{
			MeterName:    {Spec: str(0x001D, 20)},
			MeterModel:   {Spec: str(0x0031, 20)},
			Manufacturer: {Spec: str(0x0045, 20)},
			SerialNumber: {Spec: u32(0x0081)},
		},
		Fast: fast,
		Slow: slow,
		// One window from the current register through frequency. The
		// gaps are dead registers; reading them anyway turns seven
		// transactions into one.
		FastBatch: batchOver(0x0BB7, 112, fast,
			Current, Voltage, Power, PowerReactive, PowerApparent, PowerFactor, Frequency),
		SlowBatch: batchOver(0xB02B, 8, slow,
			EnergyTotal, EnergyExport, EnergyReactiveImport, EnergyReactiveExport),
	})
}

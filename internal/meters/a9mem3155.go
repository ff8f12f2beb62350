// internal/meters/a9mem3155.go
package meters

import "github.com/gridwatt/wattbridge/internal/meterbus"

// Schneider Electric iEM3155, three phase. Same register layout family
// as the iEM2150 but with per-phase blocks; energies already in kWh.
func init() {
	fast := map[meterbus.Measurement]Scalar{
		CurrentL1: {Spec: f32(0x0BB7)},
		CurrentL2: {Spec: f32(0x0BB9)},
		CurrentL3: {Spec: f32(0x0BBB)},
		Current:   {Spec: f32(0x0BC1)}, // average

		VoltageL1L2: {Spec: f32(0x0BCB)},
		VoltageL2L3: {Spec: f32(0x0BCD)},
		VoltageL3L1: {Spec: f32(0x0BCF)},
		VoltageLL:   {Spec: f32(0x0BD1)}, // L-L average
		VoltageL1N:  {Spec: f32(0x0BD3)},
		VoltageL2N:  {Spec: f32(0x0BD5)},
		VoltageL3N:  {Spec: f32(0x0BD7)},
		Voltage:     {Spec: f32(0x0BDB)}, // L-N average

		PowerL1:       {Spec: f32(0x0BED), Scale: 1000},
		PowerL2:       {Spec: f32(0x0BEF), Scale: 1000},
		PowerL3:       {Spec: f32(0x0BF1), Scale: 1000},
		Power:         {Spec: f32(0x0BF3), Scale: 1000},
		PowerReactive: {Spec: f32(0x0BFB)},
		PowerApparent: {Spec: f32(0x0C03)},
		PowerFactor:   {Spec: f32(0x0C0B)},
		Frequency:     {Spec: f32(0x0C25)},
	}
	slow := map[meterbus.Measurement]Scalar{
		EnergyTotal:          {Spec: f32(0xB02B)},
		EnergyExport:         {Spec: f32(0xB02D)},
		EnergyReactiveImport: {Spec: f32(0xB02F)},
		EnergyReactiveExport: {Spec: f32(0xB031)},
	}

	register(Definition{
		Model:        "A9MEM3155",
		Manufacturer: "Schneider Electric",
		Info: map[meterbus.Measurement]Scalar{
			MeterName:    {Spec: str(0x001D, 20)},
			MeterModel:   {Spec: str(0x0031, 20)},
			Manufacturer: {Spec: str(0x0045, 20)},
			SerialNumber: {Spec: u32(0x0081)},
		},
		Fast: fast,
		Slow: slow,
		FastBatch: batchOver(0x0BB7, 112, fast,
			CurrentL1, CurrentL2, CurrentL3, Current,
			VoltageL1L2, VoltageL2L3, VoltageL3L1, VoltageLL,
			VoltageL1N, VoltageL2N, VoltageL3N, Voltage,
			PowerL1, PowerL2, PowerL3, Power,
			PowerReactive, PowerApparent, PowerFactor, Frequency),
		SlowBatch: batchOver(0xB02B, 8, slow,
			EnergyTotal, EnergyExport, EnergyReactiveImport, EnergyReactiveExport),
	})
}

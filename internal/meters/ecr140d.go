// internal/meters/ecr140d.go
package meters

import "github.com/gridwatt/wattbridge/internal/meterbus"

// Hager ECR140D, single phase. Integer registers with fixed-point
// scaling: voltage in 0.01V, current in mA, power in 0.01kW, power
// factor in 0.001, frequency in 0.01Hz. Energies count kWh directly.
func init() {
	fast := map[meterbus.Measurement]Scalar{
		Voltage:       {Spec: u16(0xB000), Scale: 0.01},
		Frequency:     {Spec: u16(0xB006), Scale: 0.01},
		Current:       {Spec: u32(0xB009), Scale: 0.001},
		Power:         {Spec: i32(0xB011), Scale: 10},
		PowerL1:       {Spec: i32(0xB019), Scale: 10},
		PowerReactive: {Spec: i32(0xB01F), Scale: 10},
		PowerApparent: {Spec: u32(0xB025), Scale: 10},
		PowerFactor:   {Spec: u16(0xB02B), Scale: 0.001},
	}
	slow := map[meterbus.Measurement]Scalar{
		EnergyTotal:          {Spec: u32(0xB060)},
		EnergyReactiveImport: {Spec: u32(0xB062)},
		EnergyExport:         {Spec: u32(0xB064)},
		EnergyReactiveExport: {Spec: u32(0xB066)},
	}

	register(Definition{
		Model:        "ECR140D",
		Manufacturer: "Hager",
		Info: map[meterbus.Measurement]Scalar{
			Manufacturer: {Spec: str(0x1000, 16)},
			MeterModel:   {Spec: str(0x1010, 16)},
			MeterName:    {Spec: str(0x1032, 16)},
			SerialNumber: {Spec: str(0x1064, 16)},
		},
		Fast: fast,
		Slow: slow,
		FastBatch: batchOver(0xB000, 44, fast,
			Voltage, Frequency, Current, Power, PowerL1,
			PowerReactive, PowerApparent, PowerFactor),
		SlowBatch: batchOver(0xB060, 8, slow,
			EnergyTotal, EnergyReactiveImport, EnergyExport, EnergyReactiveExport),
	})
}

// internal/meters/measurements.go
package meters

import "github.com/gridwatt/wattbridge/internal/meterbus"

// The closed set of logical measurements a meter can expose. Values
// double as MQTT topic leaves, so they are stable identifiers.
const (
	Voltage meterbus.Measurement = "voltage"
	Current meterbus.Measurement = "current"
	Power   meterbus.Measurement = "power"

	VoltageL1N  meterbus.Measurement = "voltage_L1_N"
	VoltageL2N  meterbus.Measurement = "voltage_L2_N"
	VoltageL3N  meterbus.Measurement = "voltage_L3_N"
	VoltageLL   meterbus.Measurement = "voltage_L_L"
	VoltageL1L2 meterbus.Measurement = "voltage_L1_L2"
	VoltageL2L3 meterbus.Measurement = "voltage_L2_L3"
	VoltageL3L1 meterbus.Measurement = "voltage_L3_L1"

	PowerL1   meterbus.Measurement = "power_L1"
	PowerL2   meterbus.Measurement = "power_L2"
	PowerL3   meterbus.Measurement = "power_L3"
	CurrentL1 meterbus.Measurement = "current_L1"
	CurrentL2 meterbus.Measurement = "current_L2"
	CurrentL3 meterbus.Measurement = "current_L3"

	PowerReactive meterbus.Measurement = "power_reactive"
	PowerApparent meterbus.Measurement = "power_apparent"
	PowerFactor   meterbus.Measurement = "powerfactor"
	Frequency     meterbus.Measurement = "frequency"

	EnergyTotal          meterbus.Measurement = "total_active_in"
	EnergyExport         meterbus.Measurement = "total_active_out"
	EnergyReactiveImport meterbus.Measurement = "total_reactive_in"
	EnergyReactiveExport meterbus.Measurement = "total_reactive_out"

	MeterName    meterbus.Measurement = "metername"
	MeterModel   meterbus.Measurement = "metermodel"
	Manufacturer meterbus.Measurement = "manufacturer"
	SerialNumber meterbus.Measurement = "serialnumber"
)

var units = map[meterbus.Measurement]string{
	Voltage:     "V",
	VoltageL1N:  "V",
	VoltageL2N:  "V",
	VoltageL3N:  "V",
	VoltageLL:   "V",
	VoltageL1L2: "V",
	VoltageL2L3: "V",
	VoltageL3L1: "V",

	Current:   "A",
	CurrentL1: "A",
	CurrentL2: "A",
	CurrentL3: "A",

	Power:         "W",
	PowerL1:       "W",
	PowerL2:       "W",
	PowerL3:       "W",
	PowerReactive: "var",
	PowerApparent: "VA",
	PowerFactor:   "%",
	Frequency:     "Hz",

	EnergyTotal:          "kWh",
	EnergyExport:         "kWh",
	EnergyReactiveImport: "kvarh",
	EnergyReactiveExport: "kvarh",
}

// Unit returns the unit of measure, empty for device-info measurements.
func Unit(m meterbus.Measurement) string {
	return units[m]
}

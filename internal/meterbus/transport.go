// internal/meterbus/transport.go
package meterbus

import "time"

// TransportClient is the one logical connection to the Modbus TCP
// gateway. Implementations must return errors already classified into
// this package's taxonomy (ConnectionLostError / ProtocolError); the
// coordinator matches on those types and never inspects error text.
//
// Only function code 3 (Read Holding Registers) is required.
type TransportClient interface {
	Connect() error
	Disconnect() error
	Connected() bool
	SetTimeout(d time.Duration)

	// ReadHoldingRegisters returns count 16-bit register values for the
	// given unit. The returned slice length is not guaranteed to match
	// count on a misbehaving gateway; callers must validate.
	ReadHoldingRegisters(unitID uint8, address, count uint16) ([]uint16, error)
}

// internal/meterbus/types.go
package meterbus

import "fmt"

// DataType selects how raw register words are decoded.
type DataType uint8

const (
	Uint16 DataType = iota
	Uint32
	Uint64
	Int16
	Int32
	Int64
	Float32
	Float64
	String
	Raw
)

// Words returns the register count a scalar type occupies.
// String and Raw are variable-length and return 0.
func (t DataType) Words() uint16 {
	switch t {
	case Uint16, Int16:
		return 1
	case Uint32, Int32, Float32:
		return 2
	case Uint64, Int64, Float64:
		return 4
	default:
		return 0
	}
}

func (t DataType) String() string {
	switch t {
	case Uint16:
		return "uint16"
	case Uint32:
		return "uint32"
	case Uint64:
		return "uint64"
	case Int16:
		return "int16"
	case Int32:
		return "int32"
	case Int64:
		return "int64"
	case Float32:
		return "float32"
	case Float64:
		return "float64"
	case String:
		return "string"
	case Raw:
		return "raw"
	default:
		return fmt.Sprintf("datatype(%d)", uint8(t))
	}
}

// Order is byte or word endianness.
type Order uint8

const (
	Big Order = iota // zero value, the wire default
	Little
)

// Measurement is a logical reading identity (voltage, power, ...).
// The closed set of values lives with the meter definitions.
type Measurement string

// RegisterSpec describes one holding-register read geometry plus its
// decoding. Immutable once built; supplied by static meter definitions.
type RegisterSpec struct {
	Address   uint16
	Count     uint16
	Type      DataType
	ByteOrder Order // order of the two bytes within one word
	WordOrder Order // order of successive words for multi-word values
}

// Validate rejects geometries that can never decode.
func (s RegisterSpec) Validate() error {
	if s.Count == 0 {
		return fmt.Errorf("register spec 0x%04X: count must be > 0", s.Address)
	}
	if w := s.Type.Words(); w != 0 && s.Count != w {
		return fmt.Errorf("register spec 0x%04X: %s requires %d registers, got %d",
			s.Address, s.Type, w, s.Count)
	}
	return nil
}

// BatchItem places one measurement inside a batch window.
// Offset is in registers from the batch start address.
type BatchItem struct {
	Offset uint16
	Spec   RegisterSpec
}

// BatchSpec is one contiguous register window backing several measurements.
// Gaps between items are read but unused: wire bytes traded for request count.
type BatchSpec struct {
	Address uint16
	Count   uint16
	Items   map[Measurement]BatchItem
}

// Validate checks every item fits inside the window. Called at
// construction time so geometry mistakes surface before any network I/O.
func (b BatchSpec) Validate() error {
	if b.Count == 0 {
		return fmt.Errorf("batch 0x%04X: count must be > 0", b.Address)
	}
	if len(b.Items) == 0 {
		return fmt.Errorf("batch 0x%04X: no measurements", b.Address)
	}
	for m, it := range b.Items {
		if err := it.Spec.Validate(); err != nil {
			return fmt.Errorf("batch 0x%04X: %s: %w", b.Address, m, err)
		}
		if int(it.Offset)+int(it.Spec.Count) > int(b.Count) {
			return fmt.Errorf("batch 0x%04X: %s at offset %d (+%d registers) exceeds window of %d",
				b.Address, m, it.Offset, it.Spec.Count, b.Count)
		}
	}
	return nil
}

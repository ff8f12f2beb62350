// internal/meterbus/codec.go
package meterbus

import (
	"encoding/binary"
	"math"
	"strings"
)

// Decode turns raw register words into the typed value spec asks for.
//
// Each word arrives as two big-endian bytes; that part is fixed by the
// wire protocol. WordOrder only decides which word is most significant
// for multi-word values. ByteOrder covers the rare meter that stores the
// two bytes of a word swapped.
func Decode(words []uint16, spec RegisterSpec) (any, error) {
	switch spec.Type {
	case Raw:
		out := make([]uint16, len(words))
		copy(out, words)
		return out, nil
	case String:
		return decodeString(words), nil
	}

	if w := spec.Type.Words(); int(w) != len(words) {
		return nil, &DecodeError{
			Spec:   spec,
			Words:  words,
			Reason: "unsupported register count for type",
		}
	}

	buf := assemble(words, spec)

	switch spec.Type {
	case Uint16:
		return binary.BigEndian.Uint16(buf), nil
	case Int16:
		return int16(binary.BigEndian.Uint16(buf)), nil
	case Uint32:
		return binary.BigEndian.Uint32(buf), nil
	case Int32:
		return int32(binary.BigEndian.Uint32(buf)), nil
	case Uint64:
		return binary.BigEndian.Uint64(buf), nil
	case Int64:
		return int64(binary.BigEndian.Uint64(buf)), nil
	case Float32:
		return math.Float32frombits(binary.BigEndian.Uint32(buf)), nil
	case Float64:
		return math.Float64frombits(binary.BigEndian.Uint64(buf)), nil
	default:
		return nil, &DecodeError{Spec: spec, Words: words, Reason: "unknown data type"}
	}
}

// assemble lays the words out as a big-endian byte buffer, honoring the
// configured word and byte orders.
func assemble(words []uint16, spec RegisterSpec) []byte {
	buf := make([]byte, 0, len(words)*2)
	for i := range words {
		w := words[i]
		if spec.WordOrder == Little {
			w = words[len(words)-1-i]
		}
		if spec.ByteOrder == Little {
			w = w<<8 | w>>8
		}
		buf = append(buf, byte(w>>8), byte(w))
	}
	return buf
}

// decodeString never fails: meter name fields may be short or contain
// non-ASCII garbage, and a mangled name beats an aborted poll.
func decodeString(words []uint16) string {
	b := make([]byte, 0, len(words)*2)
	for _, w := range words {
		b = append(b, byte(w>>8), byte(w))
	}
	out := make([]byte, 0, len(b))
	for _, c := range b {
		if c == 0 || c > 0x7F {
			continue
		}
		out = append(out, c)
	}
	return strings.TrimSpace(string(out))
}

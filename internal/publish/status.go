// internal/publish/status.go
package publish

import (
	"encoding/json"
	"fmt"
)

// ---- HEALTH CODES ----

type Health int

const (
	// HealthUnknown represents a boot state, nothing read yet.
	HealthUnknown Health = iota

	// HealthOK represents a meter answering normally.
	HealthOK

	// HealthError represents a meter failing its reads.
	HealthError
)

func (h Health) String() string {
	switch h {
	case HealthOK:
		return "ok"
	case HealthError:
		return "error"
	default:
		return "unknown"
	}
}

func (h Health) MarshalJSON() ([]byte, error) {
	return json.Marshal(h.String())
}

// Snapshot represents exactly what the status writer is allowed to
// deliver. It contains no logic and no memory of the past beyond
// current state.
type Snapshot struct {
	Health         Health `json:"health"`
	LastError      string `json:"last_error,omitempty"`
	SecondsInError int64  `json:"seconds_in_error,omitempty"`
}

// StatusWriter publishes a meter's health to its retained status
// topic. Unchanged snapshots are not republished; any publish failure
// forces a re-assert on the next call.
type StatusWriter struct {
	s     sink
	topic string
	qos   byte

	needFull bool
	last     Snapshot
}

func NewStatusWriter(s sink, baseTopic, meter string, qos byte) *StatusWriter {
	return &StatusWriter{
		s:        s,
		topic:    fmt.Sprintf("%s/%s/status", baseTopic, meter),
		qos:      qos,
		needFull: true,
		last:     Snapshot{Health: HealthUnknown},
	}
}

func (w *StatusWriter) Write(s Snapshot) error {
	if !w.needFull && s == w.last {
		return nil
	}

	payload, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("status writer: %w", err)
	}
	if err := w.s.Publish(w.topic, w.qos, true, payload); err != nil {
		// Any failure introduces doubt: re-assert on next call.
		w.needFull = true
		return fmt.Errorf("status writer: %w", err)
	}

	w.needFull = false
	w.last = s
	return nil
}

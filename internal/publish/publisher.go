// internal/publish/publisher.go
package publish

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/gridwatt/wattbridge/internal/meters"
)

// Publisher delivers meter readings to their value topics. One topic
// per measurement, raw value payload, not retained: consumers that
// care about history subscribe, consumers that care about now poll the
// retained status topics instead.
type Publisher struct {
	s    sink
	base string
	qos  byte
}

func NewPublisher(s sink, baseTopic string, qos byte) *Publisher {
	return &Publisher{s: s, base: baseTopic, qos: qos}
}

// Readings publishes one cycle's worth of values for a meter. A failed
// topic does not block its siblings.
func (p *Publisher) Readings(meter string, rs []meters.Reading) error {
	var errs []error
	for _, r := range rs {
		topic := fmt.Sprintf("%s/%s/%s", p.base, meter, r.Measurement)
		if err := p.s.Publish(topic, p.qos, false, formatValue(r.Value)); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func formatValue(v any) []byte {
	switch x := v.(type) {
	case float64:
		return []byte(strconv.FormatFloat(x, 'f', -1, 64))
	case string:
		return []byte(x)
	default:
		return []byte(fmt.Sprint(x))
	}
}

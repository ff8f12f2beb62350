// internal/publish/publish_test.go
package publish

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/gridwatt/wattbridge/internal/meterbus"
	"github.com/gridwatt/wattbridge/internal/meters"
)

type message struct {
	topic    string
	qos      byte
	retained bool
	payload  string
}

type fakeSink struct {
	messages []message
	fail     map[string]error // by topic
}

func (f *fakeSink) Publish(topic string, qos byte, retained bool, payload []byte) error {
	if err := f.fail[topic]; err != nil {
		return err
	}
	f.messages = append(f.messages, message{topic, qos, retained, string(payload)})
	return nil
}

func (f *fakeSink) find(t *testing.T, topic string) message {
	t.Helper()
	for _, m := range f.messages {
		if m.topic == topic {
			return m
		}
	}
	t.Fatalf("no message on %s (got %d messages)", topic, len(f.messages))
	return message{}
}

// ---- publisher ----

func TestReadingsTopicsAndPayloads(t *testing.T) {
	s := &fakeSink{}
	p := NewPublisher(s, "meters", 1)

	err := p.Readings("garage", []meters.Reading{
		{Measurement: meters.Voltage, Value: 230.5, Unit: "V"},
		{Measurement: meters.Power, Value: 1500.0, Unit: "W"},
	})
	if err != nil {
		t.Fatal(err)
	}

	m := s.find(t, "meters/garage/voltage")
	if m.payload != "230.5" || m.retained || m.qos != 1 {
		t.Fatalf("voltage message = %+v", m)
	}
	if s.find(t, "meters/garage/power").payload != "1500" {
		t.Fatal("power payload not plain decimal")
	}
}

func TestReadingsFailedTopicDoesNotBlockSiblings(t *testing.T) {
	s := &fakeSink{fail: map[string]error{
		"meters/garage/voltage": errors.New("broker gone"),
	}}
	p := NewPublisher(s, "meters", 0)

	err := p.Readings("garage", []meters.Reading{
		{Measurement: meters.Voltage, Value: 230.5},
		{Measurement: meters.Power, Value: 1500.0},
	})
	if err == nil {
		t.Fatal("expected error")
	}
	s.find(t, "meters/garage/power")
}

// ---- discovery ----

func TestDiscoveryConfig(t *testing.T) {
	bus := &busStub{}
	m, err := meters.New("Garage Main", "A9MEM2150", 30, bus)
	if err != nil {
		t.Fatal(err)
	}

	s := &fakeSink{}
	d := NewDiscovery(s, "homeassistant", "meters", "meters/bridge/status", 1)

	id := meters.Identity{
		Name:         "Garage Main",
		Model:        "iEM2150",
		Manufacturer: "Schneider Electric",
		Serial:       "123456",
	}
	if err := d.Announce(m, id); err != nil {
		t.Fatal(err)
	}
	if len(s.messages) != len(m.Measurements()) {
		t.Fatalf("published %d configs for %d measurements",
			len(s.messages), len(m.Measurements()))
	}

	msg := s.find(t, "homeassistant/sensor/garage_main/voltage/config")
	if !msg.retained {
		t.Fatal("discovery config must be retained")
	}

	var cfg map[string]any
	if err := json.Unmarshal([]byte(msg.payload), &cfg); err != nil {
		t.Fatal(err)
	}
	if cfg["state_topic"] != "meters/Garage Main/voltage" {
		t.Fatalf("state_topic = %v", cfg["state_topic"])
	}
	if cfg["device_class"] != "voltage" || cfg["state_class"] != "measurement" {
		t.Fatalf("classes = %v / %v", cfg["device_class"], cfg["state_class"])
	}
	if cfg["unit_of_measurement"] != "V" {
		t.Fatalf("unit = %v", cfg["unit_of_measurement"])
	}
	if cfg["availability_topic"] != "meters/bridge/status" {
		t.Fatalf("availability_topic = %v", cfg["availability_topic"])
	}

	dev, ok := cfg["device"].(map[string]any)
	if !ok {
		t.Fatal("no device block")
	}
	if dev["manufacturer"] != "Schneider Electric" || dev["serial_number"] != "123456" {
		t.Fatalf("device block = %v", dev)
	}

	energy := s.find(t, "homeassistant/sensor/garage_main/total_active_in/config")
	if !strings.Contains(energy.payload, `"state_class":"total_increasing"`) {
		t.Fatalf("energy config = %s", energy.payload)
	}
}

// busStub satisfies meters.Bus for discovery tests that never read.
type busStub struct{}

func (busStub) Read(uint8, meterbus.RegisterSpec) (any, error) {
	panic("unused")
}

func (busStub) ReadBatch(uint8, meterbus.BatchSpec) (*meterbus.BatchResult, error) {
	panic("unused")
}

// ---- status ----

func TestStatusDeltaPublishing(t *testing.T) {
	s := &fakeSink{}
	w := NewStatusWriter(s, "meters", "garage", 1)

	ok := Snapshot{Health: HealthOK}
	if err := w.Write(ok); err != nil {
		t.Fatal(err)
	}
	if err := w.Write(ok); err != nil {
		t.Fatal(err)
	}
	if len(s.messages) != 1 {
		t.Fatalf("unchanged snapshot republished: %d messages", len(s.messages))
	}

	msg := s.messages[0]
	if msg.topic != "meters/garage/status" || !msg.retained {
		t.Fatalf("message = %+v", msg)
	}
	if !strings.Contains(msg.payload, `"health":"ok"`) {
		t.Fatalf("payload = %s", msg.payload)
	}

	bad := Snapshot{Health: HealthError, LastError: "timeout", SecondsInError: 12}
	if err := w.Write(bad); err != nil {
		t.Fatal(err)
	}
	if len(s.messages) != 2 {
		t.Fatalf("changed snapshot not published")
	}
	if !strings.Contains(s.messages[1].payload, `"seconds_in_error":12`) {
		t.Fatalf("payload = %s", s.messages[1].payload)
	}
}

func TestStatusReassertsAfterFailure(t *testing.T) {
	s := &fakeSink{fail: map[string]error{
		"meters/garage/status": errors.New("broker gone"),
	}}
	w := NewStatusWriter(s, "meters", "garage", 1)

	ok := Snapshot{Health: HealthOK}
	if err := w.Write(ok); err == nil {
		t.Fatal("expected publish failure")
	}

	delete(s.fail, "meters/garage/status")
	if err := w.Write(ok); err != nil {
		t.Fatal(err)
	}
	if len(s.messages) != 1 {
		t.Fatalf("snapshot not re-asserted after failure")
	}
}

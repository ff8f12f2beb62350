// internal/meterbus/coordinator_test.go
package meterbus

import (
	"errors"
	"testing"
	"time"
)

type call struct {
	unit  uint8
	addr  uint16
	count uint16
	at    time.Time
}

type fakeTransport struct {
	connected bool
	clk       *fakeClock
	calls     []call
	respond   func(unit uint8, addr, count uint16) ([]uint16, error)
}

func (f *fakeTransport) Connect() error           { f.connected = true; return nil }
func (f *fakeTransport) Disconnect() error        { f.connected = false; return nil }
func (f *fakeTransport) Connected() bool          { return f.connected }
func (f *fakeTransport) SetTimeout(time.Duration) {}

func (f *fakeTransport) ReadHoldingRegisters(unit uint8, addr, count uint16) ([]uint16, error) {
	f.calls = append(f.calls, call{unit: unit, addr: addr, count: count, at: f.clk.Now()})
	return f.respond(unit, addr, count)
}

// echoWords answers any read with as many registers as requested.
func echoWords(unit uint8, addr, count uint16) ([]uint16, error) {
	out := make([]uint16, count)
	for i := range out {
		out[i] = addr + uint16(i)
	}
	return out, nil
}

func newTestCoordinator(cfg Config, respond func(uint8, uint16, uint16) ([]uint16, error)) (*Coordinator, *fakeTransport, *fakeClock) {
	clk := newFakeClock()
	tr := &fakeTransport{connected: true, clk: clk, respond: respond}
	c := New(tr, cfg)
	c.now = clk.Now
	c.sleep = clk.Sleep
	c.pacer.now = clk.Now
	c.pacer.sleep = clk.Sleep
	return c, tr, clk
}

var f32Spec = RegisterSpec{Address: 0x0BB7, Count: 2, Type: Float32}

func TestRead_CacheIdempotence(t *testing.T) {
	c, tr, _ := newTestCoordinator(Config{}, func(uint8, uint16, uint16) ([]uint16, error) {
		return []uint16{0x4049, 0x0FDB}, nil
	})

	v1, err := c.Read(10, f32Spec)
	if err != nil {
		t.Fatalf("first Read err=%v", err)
	}
	v2, err := c.Read(10, f32Spec)
	if err != nil {
		t.Fatalf("second Read err=%v", err)
	}

	if len(tr.calls) != 1 {
		t.Fatalf("expected exactly 1 transaction, got %d", len(tr.calls))
	}
	if v1 != v2 {
		t.Fatalf("cached value differs: %v vs %v", v1, v2)
	}
}

func TestRead_CacheExpiry(t *testing.T) {
	c, tr, clk := newTestCoordinator(Config{CacheTTL: 3 * time.Second}, echoWords)

	spec := RegisterSpec{Address: 0x0001, Count: 1, Type: Uint16}
	if _, err := c.Read(10, spec); err != nil {
		t.Fatalf("Read err=%v", err)
	}
	if _, err := c.Read(10, spec); err != nil {
		t.Fatalf("Read err=%v", err)
	}
	if len(tr.calls) != 1 {
		t.Fatalf("expected 1 transaction before expiry, got %d", len(tr.calls))
	}

	clk.Advance(3100 * time.Millisecond)

	if _, err := c.Read(10, spec); err != nil {
		t.Fatalf("Read err=%v", err)
	}
	if len(tr.calls) != 2 {
		t.Fatalf("expected a new transaction after expiry, got %d", len(tr.calls))
	}
}

func TestRead_PacingGap(t *testing.T) {
	c, tr, _ := newTestCoordinator(Config{
		DeviceDelays: map[uint8]time.Duration{7: 100 * time.Millisecond},
	}, echoWords)

	a := RegisterSpec{Address: 0x0001, Count: 1, Type: Uint16}
	b := RegisterSpec{Address: 0x0002, Count: 1, Type: Uint16}

	if _, err := c.Read(7, a); err != nil {
		t.Fatalf("Read err=%v", err)
	}
	if _, err := c.Read(7, b); err != nil {
		t.Fatalf("Read err=%v", err)
	}

	if len(tr.calls) != 2 {
		t.Fatalf("expected 2 transactions, got %d", len(tr.calls))
	}
	if gap := tr.calls[1].at.Sub(tr.calls[0].at); gap < 100*time.Millisecond {
		t.Fatalf("transactions spaced %v apart, want >= 100ms", gap)
	}
}

func TestRead_NotConnectedFailsWithoutTransaction(t *testing.T) {
	c, tr, _ := newTestCoordinator(Config{}, echoWords)
	tr.connected = false

	_, err := c.Read(10, f32Spec)
	if !IsConnectionLost(err) {
		t.Fatalf("expected ConnectionLost, got %v", err)
	}
	if len(tr.calls) != 0 {
		t.Fatalf("expected no transaction, got %d", len(tr.calls))
	}
}

func TestRead_ConnectionLostFirstAttempt(t *testing.T) {
	boom := &ConnectionLostError{Cause: errors.New("connection reset by peer")}
	fail := false
	c, tr, _ := newTestCoordinator(Config{}, func(u uint8, a, n uint16) ([]uint16, error) {
		if fail {
			return nil, boom
		}
		return echoWords(u, a, n)
	})

	// Warm the cache with another device's value first.
	if _, err := c.Read(20, RegisterSpec{Address: 0x10, Count: 1, Type: Uint16}); err != nil {
		t.Fatalf("warmup Read err=%v", err)
	}
	clk := tr.clk
	clk.Advance(time.Second)

	fail = true
	calls := len(tr.calls)
	_, err := c.Read(10, f32Spec)
	if !IsConnectionLost(err) {
		t.Fatalf("expected ConnectionLost, got %v", err)
	}
	if got := len(tr.calls) - calls; got != 1 {
		t.Fatalf("expected zero retries (1 attempt), got %d attempts", got)
	}
	if c.cache.len() != 0 {
		t.Fatalf("expected full cache invalidation, %d entries left", c.cache.len())
	}
}

func TestRead_UnitMismatchRetriesAndPurgesDevice(t *testing.T) {
	mixup := &ProtocolError{Kind: KindUnitMismatch, Cause: errors.New("response unit id '30' does not match request '10'")}
	failUnit := uint8(0)
	c, tr, clk := newTestCoordinator(Config{Attempts: 3}, func(u uint8, a, n uint16) ([]uint16, error) {
		if u == failUnit {
			return nil, mixup
		}
		return echoWords(u, a, n)
	})

	// Entries for the failing device and an innocent bystander.
	if _, err := c.Read(10, RegisterSpec{Address: 0x10, Count: 1, Type: Uint16}); err != nil {
		t.Fatalf("warmup err=%v", err)
	}
	if _, err := c.Read(20, RegisterSpec{Address: 0x20, Count: 1, Type: Uint16}); err != nil {
		t.Fatalf("warmup err=%v", err)
	}

	failUnit = 10
	calls := len(tr.calls)
	before := clk.Now()

	_, err := c.Read(10, f32Spec)

	var pe *ProtocolError
	if !errors.As(err, &pe) || pe.Kind != KindUnitMismatch {
		t.Fatalf("expected unit-mismatch ProtocolError, got %v", err)
	}
	if got := len(tr.calls) - calls; got != 3 {
		t.Fatalf("expected 3 attempts, got %d", got)
	}
	// Only the suspect device's entries are purged.
	if _, ok := c.cache.get(scalarKey(10, RegisterSpec{Address: 0x10, Count: 1, Type: Uint16}), clk.Now()); ok {
		t.Fatalf("device 10 cache entry must be purged on mix-up")
	}
	if _, ok := c.cache.get(scalarKey(20, RegisterSpec{Address: 0x20, Count: 1, Type: Uint16}), before); !ok {
		t.Fatalf("device 20 cache entry must survive device 10's mix-up")
	}
}

func TestRead_ShortResponseRetried(t *testing.T) {
	c, tr, _ := newTestCoordinator(Config{Attempts: 3}, func(u uint8, a, n uint16) ([]uint16, error) {
		return make([]uint16, n-1), nil // always one register short
	})

	_, err := c.Read(10, f32Spec)

	var pe *ProtocolError
	if !errors.As(err, &pe) || pe.Kind != KindShortResponse {
		t.Fatalf("expected short-response ProtocolError, got %v", err)
	}
	if len(tr.calls) != 3 {
		t.Fatalf("expected 3 attempts, got %d", len(tr.calls))
	}
}

func TestRead_InvalidSpecNoTransaction(t *testing.T) {
	c, tr, _ := newTestCoordinator(Config{}, echoWords)

	_, err := c.Read(10, RegisterSpec{Address: 1, Count: 3, Type: Float32})
	if err == nil {
		t.Fatalf("expected validation error")
	}
	if len(tr.calls) != 0 {
		t.Fatalf("invalid spec must not reach the transport")
	}
}

func TestRead_RetryBackoffGrows(t *testing.T) {
	c, _, clk := newTestCoordinator(Config{Attempts: 3}, func(uint8, uint16, uint16) ([]uint16, error) {
		return nil, &ProtocolError{Kind: KindOther, Cause: errors.New("garbled")}
	})

	_, err := c.Read(10, f32Spec)
	if err == nil {
		t.Fatalf("expected failure after retries")
	}

	var backoffs []time.Duration
	for _, d := range clk.sleeps {
		backoffs = append(backoffs, d)
	}
	// Two retries: 100ms then 200ms.
	if len(backoffs) != 2 || backoffs[0] != 100*time.Millisecond || backoffs[1] != 200*time.Millisecond {
		t.Fatalf("expected exponential backoff [100ms 200ms], got %v", backoffs)
	}
}

// ---- batch ----

func batchOfFourFloats() BatchSpec {
	f32 := func(addr uint16) RegisterSpec {
		return RegisterSpec{Address: addr, Count: 2, Type: Float32}
	}
	return BatchSpec{
		Address: 0xB02B,
		Count:   8,
		Items: map[Measurement]BatchItem{
			"energy_in":           {Offset: 0, Spec: f32(0xB02B)},
			"energy_out":          {Offset: 2, Spec: f32(0xB02D)},
			"energy_reactive_in":  {Offset: 4, Spec: f32(0xB02F)},
			"energy_reactive_out": {Offset: 6, Spec: f32(0xB031)},
		},
	}
}

func TestReadBatch_FanOut(t *testing.T) {
	pi := []uint16{0x4049, 0x0FDB}
	c, tr, _ := newTestCoordinator(Config{}, func(u uint8, a, n uint16) ([]uint16, error) {
		out := make([]uint16, 0, n)
		for len(out) < int(n) {
			out = append(out, pi...)
		}
		return out[:n], nil
	})

	batch := batchOfFourFloats()
	res, err := c.ReadBatch(10, batch)
	if err != nil {
		t.Fatalf("ReadBatch err=%v", err)
	}
	if len(tr.calls) != 1 {
		t.Fatalf("expected 1 transaction for the batch, got %d", len(tr.calls))
	}

	// Every measurement decodes from its own slice.
	for _, m := range res.Measurements() {
		v, err := res.Get(m)
		if err != nil {
			t.Fatalf("Get(%s) err=%v", m, err)
		}
		if f := v.(float32); f < 3.14 || f > 3.15 {
			t.Fatalf("Get(%s)=%v, want ~pi", m, f)
		}
	}

	// A scalar read of any covered register is now a cache hit: still
	// exactly one transport transaction in total.
	for _, it := range batch.Items {
		v, err := c.Read(10, it.Spec)
		if err != nil {
			t.Fatalf("scalar Read err=%v", err)
		}
		if f := v.(float32); f < 3.14 || f > 3.15 {
			t.Fatalf("scalar Read=%v, want ~pi", f)
		}
	}
	if len(tr.calls) != 1 {
		t.Fatalf("scalar follow-ups must hit the cache, got %d transactions", len(tr.calls))
	}

	// And the batch itself is cached.
	if _, err := c.ReadBatch(10, batch); err != nil {
		t.Fatalf("cached ReadBatch err=%v", err)
	}
	if len(tr.calls) != 1 {
		t.Fatalf("batch re-read must hit the cache, got %d transactions", len(tr.calls))
	}
}

func TestReadBatch_LengthValidated(t *testing.T) {
	c, tr, _ := newTestCoordinator(Config{Attempts: 3}, func(u uint8, a, n uint16) ([]uint16, error) {
		return make([]uint16, n+1), nil // over-long response
	})

	_, err := c.ReadBatch(10, batchOfFourFloats())

	var pe *ProtocolError
	if !errors.As(err, &pe) || pe.Kind != KindShortResponse {
		t.Fatalf("expected length-validation ProtocolError, got %v", err)
	}
	if len(tr.calls) != 3 {
		t.Fatalf("wrong-length batch response must be retried, got %d attempts", len(tr.calls))
	}
}

func TestReadBatch_PartialDecodeFailure(t *testing.T) {
	c, _, _ := newTestCoordinator(Config{}, echoWords)

	batch := BatchSpec{
		Address: 0x100,
		Count:   2,
		Items: map[Measurement]BatchItem{
			"good": {Offset: 0, Spec: RegisterSpec{Address: 0x100, Count: 1, Type: Uint16}},
			"bad":  {Offset: 1, Spec: RegisterSpec{Address: 0x101, Count: 1, Type: DataType(99)}},
		},
	}

	res, err := c.ReadBatch(10, batch)
	if err != nil {
		t.Fatalf("ReadBatch err=%v", err)
	}

	if _, err := res.Get("good"); err != nil {
		t.Fatalf("healthy measurement must decode, err=%v", err)
	}
	_, err = res.Get("bad")
	var de *DecodeError
	if !errors.As(err, &de) {
		t.Fatalf("expected per-measurement DecodeError, got %v", err)
	}
}

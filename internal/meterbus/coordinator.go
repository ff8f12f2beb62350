// internal/meterbus/coordinator.go
package meterbus

import (
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/gridwatt/wattbridge/internal/metrics"
)

// Defaults match the gateway behavior the bridge was tuned against.
const (
	DefaultAttempts          = 3
	DefaultCacheTTL          = 3 * time.Second
	DefaultDelay             = 50 * time.Millisecond
	DefaultBackoffBase       = 100 * time.Millisecond
	DefaultCrossTalkCooldown = 300 * time.Millisecond
)

// Config tunes one Coordinator. Zero values take the defaults above.
type Config struct {
	Attempts     int
	CacheTTL     time.Duration
	DefaultDelay time.Duration
	DeviceDelays map[uint8]time.Duration
}

// Coordinator serializes every bus transaction through one transport.
//
// The gateway link is effectively half-duplex: interleaved or too-rapid
// requests from independent callers corrupt responses. One mutex guards
// the transport, the cache and the pacing clock; a second caller blocks
// on it for the full duration of the first caller's transaction,
// readiness sleeps included. Transactions execute in lock-acquisition
// order.
//
// A Coordinator lives exactly as long as its transport: after a
// ConnectionLost the supervisor reconnects out-of-band and must call
// Reset before reads resume.
type Coordinator struct {
	mu    sync.Mutex
	tr    TransportClient
	cache *requestCache
	pacer *pacer

	attempts          int
	backoffBase       time.Duration
	crossTalkCooldown time.Duration

	now   func() time.Time
	sleep func(time.Duration)
}

// New builds a Coordinator around tr. The instance is passed by handle
// to every consumer; there is deliberately no package-level singleton.
func New(tr TransportClient, cfg Config) *Coordinator {
	if cfg.Attempts <= 0 {
		cfg.Attempts = DefaultAttempts
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = DefaultCacheTTL
	}
	if cfg.DefaultDelay <= 0 {
		cfg.DefaultDelay = DefaultDelay
	}
	return &Coordinator{
		tr:                tr,
		cache:             newRequestCache(cfg.CacheTTL),
		pacer:             newPacer(cfg.DefaultDelay, cfg.DeviceDelays),
		attempts:          cfg.Attempts,
		backoffBase:       DefaultBackoffBase,
		crossTalkCooldown: DefaultCrossTalkCooldown,
		now:               time.Now,
		sleep:             time.Sleep,
	}
}

// ---- tuning / invalidation surface ----

func (c *Coordinator) ConfigureDeviceDelay(device uint8, d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pacer.setDeviceDelay(device, d)
}

func (c *Coordinator) SetDefaultDelay(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pacer.setDefaultDelay(d)
}

func (c *Coordinator) InvalidateDevice(device uint8) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache.invalidateDevice(device)
}

func (c *Coordinator) InvalidateAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache.invalidateAll()
}

// Sweep drops expired cache entries. Housekeeping only.
func (c *Coordinator) Sweep() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache.sweep(c.now())
}

// Reset wipes the cache and the pacing clock. Called by the reconnect
// supervisor after the transport came back, before reads resume.
func (c *Coordinator) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache.invalidateAll()
	c.pacer.reset()
}

// ---- scalar read ----

// Read returns the decoded value for one register geometry, from cache
// when fresh, otherwise via a paced, retried bus transaction.
func (c *Coordinator) Read(device uint8, spec RegisterSpec) (any, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	key := scalarKey(device, spec)
	if v, ok := c.cache.get(key, c.now()); ok {
		metrics.CacheHits.Inc()
		return v, nil
	}
	metrics.CacheMisses.Inc()

	words, err := c.transact(device, spec.Address, spec.Count)
	if err != nil {
		return nil, err
	}

	v, err := Decode(words, spec)
	if err != nil {
		metrics.DecodeFailures.WithLabelValues(metrics.Device(device)).Inc()
		return nil, err
	}

	c.cache.put(key, v, c.now())
	return v, nil
}

// ---- batch read ----

// ReadBatch executes one wire transaction covering batch's window and
// fans it out into per-measurement values. Every successfully decoded
// measurement is also stored under its scalar cache key, so a later
// Read of the same register is a cache hit. A decode failure poisons
// only its own measurement; the rest of the batch stays usable.
func (c *Coordinator) ReadBatch(device uint8, batch BatchSpec) (*BatchResult, error) {
	if err := batch.Validate(); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	key := batchKey(device, batch)
	if v, ok := c.cache.get(key, c.now()); ok {
		metrics.CacheHits.Inc()
		return v.(*BatchResult), nil
	}
	metrics.CacheMisses.Inc()

	raw, err := c.transact(device, batch.Address, batch.Count)
	if err != nil {
		return nil, err
	}

	res := NewBatchResult(batch, raw)
	now := c.now()
	for m, it := range batch.Items {
		v, ok := res.value(m)
		if !ok {
			metrics.DecodeFailures.WithLabelValues(metrics.Device(device)).Inc()
			continue
		}
		c.cache.put(scalarKey(device, it.Spec), v, now)
	}

	c.cache.put(key, res, now)
	return res, nil
}

// ---- transaction engine ----

// transact runs one paced holding-register read with bounded retries.
// Must be called with c.mu held.
func (c *Coordinator) transact(device uint8, address, count uint16) ([]uint16, error) {
	if !c.tr.Connected() {
		metrics.ConnectionLosses.Inc()
		return nil, &ConnectionLostError{Cause: errors.New("transport not connected")}
	}

	dev := metrics.Device(device)
	var lastErr error

	for attempt := 0; attempt < c.attempts; attempt++ {
		c.pacer.waitReady(device)

		words, err := c.tr.ReadHoldingRegisters(device, address, count)
		// The clock advances on every attempt that reached the
		// transport, so retries stay paced like first attempts.
		c.pacer.markTransaction(c.now())

		if err == nil && len(words) != int(count) {
			err = &ProtocolError{
				Kind:  KindShortResponse,
				Cause: fmt.Errorf("got %d registers, want %d", len(words), count),
			}
		}

		if err == nil {
			metrics.Transactions.WithLabelValues(dev, metrics.StatusOK).Inc()
			return words, nil
		}
		metrics.Transactions.WithLabelValues(dev, metrics.StatusError).Inc()
		lastErr = err

		var cl *ConnectionLostError
		if errors.As(err, &cl) {
			// Fatal: stop retrying, drop everything we cached. Stale
			// values must not survive a reconnect.
			log.Printf("meterbus: connection lost (unit=%d addr=0x%04X): %v", device, address, err)
			c.cache.invalidateAll()
			metrics.ConnectionLosses.Inc()
			return nil, err
		}

		kind := KindOther
		var pe *ProtocolError
		if errors.As(err, &pe) {
			kind = pe.Kind
		}

		switch kind {
		case KindUnitMismatch:
			// Cross-talk between logical sessions on the gateway: any
			// cached value for this device is suspect, and the gateway
			// needs extra settling time.
			log.Printf("meterbus: communication mix-up (unit=%d addr=0x%04X attempt=%d): %v",
				device, address, attempt+1, err)
			c.cache.invalidateDevice(device)
			c.sleep(c.crossTalkCooldown)
		case KindTimeout:
			log.Printf("meterbus: device timeout (unit=%d addr=0x%04X attempt=%d): %v",
				device, address, attempt+1, err)
		default:
			log.Printf("meterbus: read failed (unit=%d addr=0x%04X attempt=%d): %v",
				device, address, attempt+1, err)
		}

		if attempt < c.attempts-1 {
			metrics.Retries.WithLabelValues(dev, kind.String()).Inc()
			c.sleep(c.backoffBase << attempt)
		}
	}

	log.Printf("meterbus: all %d attempts failed (unit=%d addr=0x%04X): %v",
		c.attempts, device, address, lastErr)
	return nil, lastErr
}

// internal/meterbus/pacer.go
package meterbus

import "time"

// pacer enforces a minimum spacing between any two bus transactions.
// The clock is shared across all devices: two consecutive transactions on
// the gateway can interfere regardless of which meter they address, so
// the spacing is charged to the bus as a whole.
//
// Not safe for concurrent use on its own; the coordinator's lock covers
// it, which also makes waitReady atomic with respect to other callers.
type pacer struct {
	defaultDelay time.Duration
	deviceDelays map[uint8]time.Duration
	last         time.Time

	now   func() time.Time
	sleep func(time.Duration)
}

func newPacer(defaultDelay time.Duration, deviceDelays map[uint8]time.Duration) *pacer {
	p := &pacer{
		defaultDelay: defaultDelay,
		deviceDelays: make(map[uint8]time.Duration),
		now:          time.Now,
		sleep:        time.Sleep,
	}
	for id, d := range deviceDelays {
		p.deviceDelays[id] = d
	}
	return p
}

func (p *pacer) delayFor(device uint8) time.Duration {
	if d, ok := p.deviceDelays[device]; ok {
		return d
	}
	return p.defaultDelay
}

func (p *pacer) setDeviceDelay(device uint8, d time.Duration) {
	p.deviceDelays[device] = d
}

func (p *pacer) setDefaultDelay(d time.Duration) {
	p.defaultDelay = d
}

// waitReady blocks until the required spacing since the last transaction
// has elapsed.
func (p *pacer) waitReady(device uint8) {
	delay := p.delayFor(device)
	if delay <= 0 {
		return
	}
	elapsed := p.now().Sub(p.last)
	if elapsed < delay {
		p.sleep(delay - elapsed)
	}
}

// markTransaction stamps the shared clock. Called for every attempt that
// reached the transport, failed ones included, so retries stay paced.
func (p *pacer) markTransaction(t time.Time) {
	p.last = t
}

func (p *pacer) reset() {
	p.last = time.Time{}
}

// cmd/wattbridge/main.go
package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/gridwatt/wattbridge/internal/config"
	"github.com/gridwatt/wattbridge/internal/meterbus"
	"github.com/gridwatt/wattbridge/internal/meterbus/modbus"
	"github.com/gridwatt/wattbridge/internal/meters"
	"github.com/gridwatt/wattbridge/internal/publish"
	"github.com/gridwatt/wattbridge/internal/runner"
)

// meterRuntime ties a meter to its status topic and error bookkeeping.
type meterRuntime struct {
	meter     *meters.Meter
	cfg       config.MeterConfig
	status    *publish.StatusWriter
	errSince  time.Time
	lastError string
}

func main() {
	if len(os.Args) < 2 {
		log.Fatal("usage: wattbridge <config.yaml>")
	}

	// --------------------
	// Load + validate config
	// --------------------

	cfg, err := config.Load(os.Args[1])
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}
	if err := config.Validate(cfg); err != nil {
		log.Fatalf("config validation failed: %v", err)
	}
	config.Normalize(cfg)
	b := cfg.Bridge

	// --------------------
	// Modbus transport + coordinator
	// --------------------

	tr, err := modbus.New(modbus.Config{
		Endpoint: b.Modbus.Endpoint,
		Timeout:  millis(b.Modbus.TimeoutMs),
	})
	if err != nil {
		log.Fatalf("transport build failed: %v", err)
	}
	if err := tr.Connect(); err != nil {
		log.Fatalf("connect to %s failed: %v", b.Modbus.Endpoint, err)
	}

	// Model-specific bus spacing first, explicit config wins.
	deviceDelays := make(map[uint8]time.Duration)
	for _, mc := range b.Meters {
		if d, ok := meters.Lookup(mc.Model); ok && d.Delay > 0 {
			deviceDelays[uint8(mc.UnitID)] = d.Delay
		}
	}
	for unit, ms := range b.Modbus.DeviceDelays {
		deviceDelays[unit] = millis(ms)
	}

	coord := meterbus.New(tr, meterbus.Config{
		Attempts:     b.Modbus.RetryAttempts,
		CacheTTL:     millis(b.Modbus.CacheTTLMs),
		DefaultDelay: millis(b.Modbus.DefaultDelayMs),
		DeviceDelays: deviceDelays,
	})

	// --------------------
	// Meters
	// --------------------

	var runtimes []*meterRuntime
	for _, mc := range b.Meters {
		m, err := meters.New(mc.Name, mc.Model, uint8(mc.UnitID), coord)
		if err != nil {
			log.Fatalf("meter build failed (%s): %v", mc.Name, err)
		}
		runtimes = append(runtimes, &meterRuntime{meter: m, cfg: mc})
	}

	// --------------------
	// MQTT
	// --------------------

	var announce func()
	mq, err := publish.Connect(publish.Options{
		Broker:    b.MQTT.Broker,
		ClientID:  b.MQTT.ClientID,
		Username:  b.MQTT.Username,
		Password:  b.MQTT.Password,
		BaseTopic: b.MQTT.BaseTopic,
		QoS:       byte(b.MQTT.QoS),
		OnConnect: func() {
			if announce != nil {
				announce()
			}
		},
	})
	if err != nil {
		log.Fatalf("mqtt connect failed: %v", err)
	}

	pub := publish.NewPublisher(mq, b.MQTT.BaseTopic, byte(b.MQTT.QoS))
	for _, rt := range runtimes {
		rt.status = publish.NewStatusWriter(mq, b.MQTT.BaseTopic, rt.meter.Name(), byte(b.MQTT.QoS))
	}

	// Discovery: announced now and re-announced after every MQTT
	// reconnect. Identity reads go over the bus, so this also primes
	// the device info topics.
	if b.MQTT.DiscoveryPrefix != "" {
		disc := publish.NewDiscovery(mq, b.MQTT.DiscoveryPrefix, b.MQTT.BaseTopic,
			mq.AvailabilityTopic(), byte(b.MQTT.QoS))
		announce = func() {
			for _, rt := range runtimes {
				id, err := rt.meter.Identity()
				if err != nil {
					log.Printf("identity read failed (%s): %v", rt.meter.Name(), err)
				}
				if err := disc.Announce(rt.meter, id); err != nil {
					log.Printf("discovery announce failed (%s): %v", rt.meter.Name(), err)
				}
			}
		}
		announce()
	}

	// --------------------
	// Metrics listener
	// --------------------

	if b.Metrics.Listen != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		go func() {
			if err := http.ListenAndServe(b.Metrics.Listen, mux); err != nil {
				log.Printf("metrics listener failed: %v", err)
			}
		}()
	}

	// --------------------
	// Scheduler
	// --------------------

	run := runner.New(tr, coord, runner.Config{})
	run.OnDisconnect(func() {
		for _, rt := range runtimes {
			if rt.errSince.IsZero() {
				rt.errSince = time.Now()
			}
			rt.lastError = "connection lost"
			_ = rt.status.Write(publish.Snapshot{
				Health:    publish.HealthError,
				LastError: rt.lastError,
			})
		}
	})

	for _, rt := range runtimes {
		rt := rt
		run.Add(rt.meter.Name()+"/fast", millis(rt.cfg.FastIntervalMs), func() error {
			return cycle(rt, pub, rt.meter.ReadFast)
		})
		if len(rt.meter.Definition().Slow) > 0 {
			run.Add(rt.meter.Name()+"/slow", millis(rt.cfg.SlowIntervalMs), func() error {
				return cycle(rt, pub, rt.meter.ReadSlow)
			})
		}
	}

	// Tick seconds_in_error at 1Hz while a meter is unhealthy, the way
	// consumers expect the status topic to move.
	run.Add("status/tick", time.Second, func() error {
		for _, rt := range runtimes {
			if rt.errSince.IsZero() {
				continue
			}
			_ = rt.status.Write(publish.Snapshot{
				Health:         publish.HealthError,
				LastError:      rt.lastError,
				SecondsInError: int64(time.Since(rt.errSince).Seconds()),
			})
		}
		return nil
	})

	run.Add("cache/sweep", time.Minute, func() error {
		coord.Sweep()
		return nil
	})

	if announce != nil {
		// Periodic re-announce also refreshes the device identity topics.
		run.Add("discovery/refresh", time.Hour, func() error {
			announce()
			return nil
		})
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Printf("wattbridge: %d meters on %s, publishing to %s",
		len(runtimes), b.Modbus.Endpoint, b.MQTT.Broker)

	if err := run.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Printf("runner stopped: %v", err)
	}

	// --------------------
	// Shutdown
	// --------------------

	mq.Close()
	if err := tr.Disconnect(); err != nil {
		log.Printf("disconnect failed: %v", err)
	}
	log.Print("wattbridge: stopped")
}

// cycle runs one poll task: read, publish, update the status topic.
// Readings that survived a partial failure are still published.
func cycle(rt *meterRuntime, pub *publish.Publisher, read func() ([]meters.Reading, error)) error {
	rs, readErr := read()

	var pubErr error
	if len(rs) > 0 {
		pubErr = pub.Readings(rt.meter.Name(), rs)
	}

	if readErr != nil {
		if rt.errSince.IsZero() {
			rt.errSince = time.Now()
		}
		rt.lastError = readErr.Error()
		_ = rt.status.Write(publish.Snapshot{
			Health:         publish.HealthError,
			LastError:      readErr.Error(),
			SecondsInError: int64(time.Since(rt.errSince).Seconds()),
		})
		return readErr
	}

	rt.errSince = time.Time{}
	if err := rt.status.Write(publish.Snapshot{Health: publish.HealthOK}); err != nil {
		log.Printf("status publish failed (%s): %v", rt.meter.Name(), err)
	}
	return pubErr
}

func millis(ms int) time.Duration {
	return time.Duration(ms) * time.Millisecond
}

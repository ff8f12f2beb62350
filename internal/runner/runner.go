// internal/runner/runner.go
package runner

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/gridwatt/wattbridge/internal/meterbus"
	"github.com/gridwatt/wattbridge/internal/metrics"
)

// Conn is the transport slice the reconnect supervisor drives.
type Conn interface {
	Connect() error
	Disconnect() error
}

// Resetter wipes coordinator state after a reconnect; cached values
// from before the drop are not trusted.
type Resetter interface {
	Reset()
}

// Config tunes the reconnect supervisor.
type Config struct {
	ReconnectBase time.Duration // first retry delay, doubles per failure
	ReconnectMax  time.Duration // backoff cap
}

const (
	DefaultReconnectBase = 1 * time.Second
	DefaultReconnectMax  = 60 * time.Second
)

type task struct {
	name     string
	interval time.Duration
	fn       func() error
	next     time.Time
}

// Runner drives all poll tasks from a single goroutine. The bus is
// half duplex and serialized anyway; one loop means a stuck gateway
// cannot pile up goroutines behind the coordinator lock.
type Runner struct {
	conn  Conn
	coord Resetter
	cfg   Config
	tasks []*task

	onDisconnect func()

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) bool
}

func New(conn Conn, coord Resetter, cfg Config) *Runner {
	if cfg.ReconnectBase <= 0 {
		cfg.ReconnectBase = DefaultReconnectBase
	}
	if cfg.ReconnectMax <= 0 {
		cfg.ReconnectMax = DefaultReconnectMax
	}
	return &Runner{
		conn:  conn,
		coord: coord,
		cfg:   cfg,
		now:   time.Now,
		sleep: sleepCtx,
	}
}

// Add registers a periodic task. Tasks run in registration order when
// due at the same instant.
func (r *Runner) Add(name string, interval time.Duration, fn func() error) {
	r.tasks = append(r.tasks, &task{name: name, interval: interval, fn: fn})
}

// OnDisconnect registers a hook that fires when the supervisor takes
// over, before the transport is torn down. Used to mark meters offline.
func (r *Runner) OnDisconnect(fn func()) {
	r.onDisconnect = fn
}

// Run executes tasks until the context is cancelled. Transient task
// errors are logged and the schedule moves on; connection loss hands
// control to the reconnect supervisor.
func (r *Runner) Run(ctx context.Context) error {
	if len(r.tasks) == 0 {
		return errors.New("runner: no tasks")
	}

	start := r.now()
	for _, t := range r.tasks {
		t.next = start
	}

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		t := r.earliest()
		if wait := t.next.Sub(r.now()); wait > 0 {
			if !r.sleep(ctx, wait) {
				return ctx.Err()
			}
		}

		began := r.now()
		err := t.fn()
		metrics.PollDuration.WithLabelValues(t.name).Observe(r.now().Sub(began).Seconds())

		// Overdue cycles coalesce: the next run is scheduled from
		// completion, never stacked against the missed deadlines.
		t.next = r.now().Add(t.interval)

		switch {
		case err == nil:
		case meterbus.IsConnectionLost(err):
			log.Printf("runner: connection lost during %s: %v", t.name, err)
			if err := r.reconnect(ctx); err != nil {
				return err
			}
		default:
			log.Printf("runner: task %s: %v", t.name, err)
		}
	}
}

func (r *Runner) earliest() *task {
	best := r.tasks[0]
	for _, t := range r.tasks[1:] {
		if t.next.Before(best.next) {
			best = t
		}
	}
	return best
}

// reconnect tears the transport down and retries with capped
// exponential backoff until it is up again or the context ends.
func (r *Runner) reconnect(ctx context.Context) error {
	if r.onDisconnect != nil {
		r.onDisconnect()
	}
	_ = r.conn.Disconnect()

	backoff := r.cfg.ReconnectBase
	for {
		if !r.sleep(ctx, backoff) {
			return ctx.Err()
		}
		if err := r.conn.Connect(); err != nil {
			log.Printf("runner: reconnect failed, retrying in %s: %v", backoff, err)
			backoff *= 2
			if backoff > r.cfg.ReconnectMax {
				backoff = r.cfg.ReconnectMax
			}
			continue
		}
		r.coord.Reset()
		metrics.Reconnects.Inc()
		log.Printf("runner: reconnected")
		return nil
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// Package ptt owns the push-to-talk state machine and the transmit-key
// hardware line.
//
// The controller serialises all key/unkey requests through a single event
// loop goroutine, which is also the only context ever allowed to touch the
// hardware. States move along Idle → Keyed → TailHang → Idle, with a
// TailHang → Keyed back-edge that re-keys without toggling the hardware
// (re-asserting an already keyed transmitter would produce audible relay
// chatter).
//
// The controller is fail-safe: any hardware write error forces the state to
// Idle — it never claims to be keyed after an I/O fault.
package ptt

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultTailHang is the grace period the transmitter stays keyed after an
// unkey request, absorbing rapid re-keys.
const DefaultTailHang = 750 * time.Millisecond

// awaitIdlePoll is the snapshot interval used by AwaitIdle.
const awaitIdlePoll = 5 * time.Millisecond

// ErrStopped is returned by AwaitIdle after the controller has been stopped.
var ErrStopped = errors.New("ptt: controller stopped")

// State is the controller's position in the keying cycle.
type State int32

const (
	// Idle — transmitter unkeyed.
	Idle State = iota

	// Keyed — transmitter keyed, operator (or remote activity) holding it.
	Keyed

	// TailHang — unkey requested, transmitter still keyed until the
	// tail-hang timer fires.
	TailHang
)

// String returns the human-readable name of the state.
func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Keyed:
		return "keyed"
	case TailHang:
		return "tail_hang"
	default:
		return "unknown"
	}
}

// Device is the transmit-key hardware capability consumed by the controller.
// Assert calls must be idempotent.
type Device interface {
	// Assert drives the key line high (true) or low (false).
	Assert(asserted bool) error

	// Close releases the hardware handle. Safe to call more than once.
	Close() error
}

// event is a keying request tagged with its originating context and time.
// force bypasses the tail hang and drops the line immediately.
type event struct {
	key    bool
	force  bool
	source string
	at     time.Time
}

// Config configures a [Controller].
type Config struct {
	// Device is the transmit-key hardware. Required.
	Device Device

	// TailHang is how long the transmitter stays keyed after an unkey
	// request. Defaults to [DefaultTailHang] if zero.
	TailHang time.Duration

	// OnFault, when non-nil, is invoked from the event loop whenever a
	// hardware write fails. It must not block.
	OnFault func(error)

	// OnTransition, when non-nil, is invoked from the event loop after every
	// state change. It must not block.
	OnTransition func(from, to State)
}

// Controller is the single owner of the PTT hardware line.
//
// Controller is safe for concurrent use; all mutation happens on the event
// loop goroutine started by [Controller.Start].
type Controller struct {
	dev          Device
	tailHang     time.Duration
	onFault      func(error)
	onTransition func(from, to State)

	events chan event
	done   chan struct{}

	state atomic.Int32

	startOnce sync.Once
	stopOnce  sync.Once
	stopped   chan struct{} // closed when the event loop has exited
}

// New creates a controller. Call [Controller.Start] to begin processing
// requests.
func New(cfg Config) (*Controller, error) {
	if cfg.Device == nil {
		return nil, fmt.Errorf("ptt: device is required")
	}
	tail := cfg.TailHang
	if tail <= 0 {
		tail = DefaultTailHang
	}
	return &Controller{
		dev:          cfg.Device,
		tailHang:     tail,
		onFault:      cfg.OnFault,
		onTransition: cfg.OnTransition,
		events:       make(chan event, 16),
		done:         make(chan struct{}),
		stopped:      make(chan struct{}),
	}, nil
}

// Start launches the event loop. Subsequent calls are no-ops.
func (c *Controller) Start() {
	c.startOnce.Do(func() {
		go c.run()
	})
}

// Stop shuts the event loop down, deasserting the hardware if it is keyed.
// It blocks until the loop has exited. Safe to call more than once.
func (c *Controller) Stop() {
	c.stopOnce.Do(func() {
		close(c.done)
	})
	<-c.stopped
}

// RequestKey submits a key request from the given originating context.
// Non-blocking once the controller is stopped.
func (c *Controller) RequestKey(source string, at time.Time) {
	c.submit(event{key: true, source: source, at: at})
}

// RequestUnkey submits an unkey request from the given originating context.
func (c *Controller) RequestUnkey(source string, at time.Time) {
	c.submit(event{key: false, source: source, at: at})
}

// ForceIdle submits an immediate unkey that bypasses the tail hang: the
// hardware is deasserted and the state goes straight to Idle. Used when the
// transport drops while keyed — a dead link must never hold the transmitter.
func (c *Controller) ForceIdle(source string, at time.Time) {
	c.submit(event{key: false, force: true, source: source, at: at})
}

func (c *Controller) submit(ev event) {
	select {
	case c.events <- ev:
	case <-c.done:
	}
}

// State returns a non-blocking snapshot of the current state.
func (c *Controller) State() State {
	return State(c.state.Load())
}

// Transmitting reports whether TX audio may currently be forwarded to the
// radio (state != Idle).
func (c *Controller) Transmitting() bool {
	return c.State() != Idle
}

// AwaitIdle blocks until the controller reaches Idle, the controller stops,
// or ctx is cancelled. Used by the orchestrator's bounded shutdown.
func (c *Controller) AwaitIdle(ctx context.Context) error {
	t := time.NewTicker(awaitIdlePoll)
	defer t.Stop()
	for {
		if c.State() == Idle {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.stopped:
			return ErrStopped
		case <-t.C:
		}
	}
}

// run is the event loop: the sole context that transitions state and writes
// to the hardware.
func (c *Controller) run() {
	defer close(c.stopped)

	var (
		lastEventAt time.Time
		timer       *time.Timer
		timerC      <-chan time.Time
	)
	stopTimer := func() {
		if timer != nil {
			timer.Stop()
			timer = nil
			timerC = nil
		}
	}
	startTimer := func() {
		stopTimer()
		timer = time.NewTimer(c.tailHang)
		timerC = timer.C
	}

	// On exit the line must never be left keyed.
	defer func() {
		stopTimer()
		if c.State() != Idle {
			c.deassert()
			c.setState(Idle)
		}
	}()

	for {
		select {
		case <-c.done:
			return

		case ev := <-c.events:
			// Events from different originating contexts are applied in
			// timestamp order; anything older than the last applied event
			// is stale and dropped.
			if ev.at.Before(lastEventAt) {
				slog.Debug("ptt: dropping stale event", "source", ev.source, "at", ev.at)
				continue
			}
			lastEventAt = ev.at

			if ev.force {
				stopTimer()
				if c.State() != Idle {
					c.deassert()
					c.setState(Idle)
					slog.Info("ptt: forced idle", "source", ev.source)
				}
				continue
			}

			switch state := c.State(); {
			case ev.key && state == Idle:
				if err := c.assert(); err != nil {
					c.fault(fmt.Errorf("ptt: assert key: %w", err))
					continue
				}
				c.setState(Keyed)
				slog.Info("ptt: keyed", "source", ev.source)

			case ev.key && state == TailHang:
				// Re-key inside the tail window: cancel the timer, zero
				// hardware toggles.
				stopTimer()
				c.setState(Keyed)
				slog.Debug("ptt: re-keyed within tail hang", "source", ev.source)

			case ev.key && state == Keyed:
				// Idempotent.

			case !ev.key && state == Keyed:
				startTimer()
				c.setState(TailHang)
				slog.Info("ptt: unkey requested, tail hang started",
					"source", ev.source, "tail", c.tailHang)

			default:
				// Unkey while Idle or TailHang: nothing to do.
			}

		case <-timerC:
			timer = nil
			timerC = nil
			c.deassert()
			c.setState(Idle)
			slog.Info("ptt: unkeyed after tail hang")
		}
	}
}

// assert keys the transmitter. On failure the hardware is driven low
// best-effort so an ambiguous half-keyed line cannot persist.
func (c *Controller) assert() error {
	if err := c.dev.Assert(true); err != nil {
		_ = c.dev.Assert(false)
		return err
	}
	return nil
}

// deassert unkeys the transmitter, reporting (but not retaining) any fault.
// State always proceeds to Idle afterwards — the fail-safe default is unkeyed.
func (c *Controller) deassert() {
	if err := c.dev.Assert(false); err != nil {
		c.fault(fmt.Errorf("ptt: deassert key: %w", err))
	}
}

func (c *Controller) setState(s State) {
	from := State(c.state.Swap(int32(s)))
	if from != s && c.onTransition != nil {
		c.onTransition(from, s)
	}
}

func (c *Controller) fault(err error) {
	// Fail-safe: never hold a keyed state after an I/O fault.
	c.setState(Idle)
	slog.Warn("ptt: hardware fault, forcing idle", "error", err)
	if c.onFault != nil {
		c.onFault(err)
	}
}

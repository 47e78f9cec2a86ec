// Package app wires the remotetrx subsystems into a running bridge and owns
// their lifecycle.
//
// Startup follows a strict order — open the radio audio streams, connect the
// transport, start the PTT controller, start the relay pipelines — and any
// step failing aborts straight back to Stopped with the cause; no partial
// steady state is ever entered. Shutdown is the mirror image, bounded in
// time, and guarantees the transmitter is never left keyed at process exit.
//
// For testing, inject mock devices and transports through [Providers] and
// the functional options.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/shackpi/remotetrx/internal/bridge"
	"github.com/shackpi/remotetrx/internal/config"
	"github.com/shackpi/remotetrx/internal/observe"
	"github.com/shackpi/remotetrx/internal/ptt"
	"github.com/shackpi/remotetrx/pkg/audio"
	"github.com/shackpi/remotetrx/pkg/transport"
)

// defaultShutdownGrace is added on top of the tail-hang duration when waiting
// for natural deassertion during shutdown.
const defaultShutdownGrace = 500 * time.Millisecond

// connectTimeout bounds a single reconnection attempt.
const connectTimeout = 15 * time.Second

// tracerName is the instrumentation scope for lifecycle spans.
const tracerName = "github.com/shackpi/remotetrx/internal/app"

// LifecycleState is the orchestrator's position in its lifecycle.
type LifecycleState int32

const (
	Stopped LifecycleState = iota
	Starting
	Running
	Stopping
)

// String returns the human-readable name of the lifecycle state.
func (s LifecycleState) String() string {
	switch s {
	case Stopped:
		return "stopped"
	case Starting:
		return "starting"
	case Running:
		return "running"
	case Stopping:
		return "stopping"
	default:
		return "unknown"
	}
}

// Providers holds the hardware and transport capabilities the app consumes.
// All fields are required; main constructs the real implementations, tests
// inject mocks.
type Providers struct {
	Audio     audio.Device
	PTT       ptt.Device
	Transport transport.Transport
}

// Status is the read-only BridgeSession snapshot handed to the control
// surface. No external writer can mutate the underlying session.
type Status struct {
	Lifecycle     string  `json:"lifecycle"`
	PTTState      string  `json:"ptt_state"`
	Transmitting  bool    `json:"tx"`
	RXLevelDBFS   float64 `json:"rx_dbfs"`
	TXLevelDBFS   float64 `json:"tx_dbfs"`
	Connected     bool    `json:"connected"`
	DroppedFrames uint64  `json:"dropped_frames"`
	Degraded      bool    `json:"degraded"`
	Reconnects    uint64  `json:"reconnects"`
	SampleRate    int     `json:"sample_rate"`
	FrameSize     int     `json:"frame_size"`
	TailHang      float64 `json:"tail_hang"`
}

// Option is a functional option for New. Use these to adjust policy in tests.
type Option func(*App)

// WithReconnectPolicy replaces the default exponential backoff policy.
func WithReconnectPolicy(p ReconnectPolicy) Option {
	return func(a *App) { a.policy = p }
}

// WithMetrics injects a metrics instance instead of the package default.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.met = m }
}

// WithShutdownGrace overrides the grace period added to the tail hang when
// waiting for natural deassertion during shutdown.
func WithShutdownGrace(d time.Duration) Option {
	return func(a *App) { a.grace = d }
}

// App owns all subsystem lifetimes and supervises the bridge.
//
// App is safe for concurrent use.
type App struct {
	cfg    *config.Config
	dev    audio.Device
	pttDev ptt.Device
	tp     transport.Transport
	policy ReconnectPolicy
	met    *observe.Metrics
	grace  time.Duration
	tracer trace.Tracer

	ctrl *ptt.Controller
	br   *bridge.Bridge
	in   audio.InputStream
	out  audio.OutputStream

	lifecycle  atomic.Int32
	reconnects atomic.Uint64
	pttFaults  atomic.Uint64
	keyedAtNs  atomic.Int64

	runCtx    context.Context
	runCancel context.CancelFunc

	stopOnce sync.Once
	stopped  chan struct{}
}

// New creates an App from its configuration and capability providers.
func New(cfg *config.Config, providers Providers, opts ...Option) (*App, error) {
	if cfg == nil {
		return nil, newFault(FaultConfig, fmt.Errorf("config is required"))
	}
	if providers.Audio == nil || providers.PTT == nil || providers.Transport == nil {
		return nil, newFault(FaultConfig, fmt.Errorf("audio, ptt and transport providers are required"))
	}

	a := &App{
		cfg:     cfg,
		dev:     providers.Audio,
		pttDev:  providers.PTT,
		tp:      providers.Transport,
		grace:   defaultShutdownGrace,
		tracer:  otel.Tracer(tracerName),
		stopped: make(chan struct{}),
	}
	a.policy = ExponentialBackoff{
		Initial:    cfg.Reconnect.InitialBackoff.Std(),
		Max:        cfg.Reconnect.MaxBackoff.Std(),
		MaxRetries: cfg.Reconnect.MaxRetries,
	}
	for _, o := range opts {
		o(a)
	}
	if a.met == nil {
		a.met = observe.Default()
	}
	return a, nil
}

// Lifecycle returns a snapshot of the lifecycle state.
func (a *App) Lifecycle() LifecycleState {
	return LifecycleState(a.lifecycle.Load())
}

func (a *App) setLifecycle(s LifecycleState) {
	a.lifecycle.Store(int32(s))
}

// ─── Startup ─────────────────────────────────────────────────────────────────

// Start brings the bridge into steady-state relay. On any failure it aborts
// directly to Stopped, releasing everything it opened, and returns the cause
// as a [*Fault].
func (a *App) Start(ctx context.Context) error {
	if !a.lifecycle.CompareAndSwap(int32(Stopped), int32(Starting)) {
		return fmt.Errorf("app: already started")
	}

	ctx, span := a.tracer.Start(ctx, "app.start")
	defer span.End()

	fail := func(kind FaultKind, err error) error {
		a.abortStartup()
		f := newFault(kind, err)
		span.RecordError(f)
		return f
	}

	// 1. Radio audio streams.
	in, err := a.dev.OpenInput(a.cfg.Audio.InputDevice, a.cfg.Audio.SampleRate, a.cfg.Audio.FrameSize)
	if err != nil {
		return fail(FaultHardware, fmt.Errorf("open audio input: %w", err))
	}
	a.in = in

	out, err := a.dev.OpenOutput(a.cfg.Audio.OutputDevice, a.cfg.Audio.SampleRate, a.cfg.Audio.FrameSize)
	if err != nil {
		return fail(FaultHardware, fmt.Errorf("open audio output: %w", err))
	}
	a.out = out

	// 2. Transport.
	if err := a.tp.Connect(ctx); err != nil {
		return fail(FaultTransport, fmt.Errorf("connect transport: %w", err))
	}

	// 3. PTT controller.
	ctrl, err := ptt.New(ptt.Config{
		Device:       a.pttDev,
		TailHang:     a.cfg.PTT.TailHang.Std(),
		OnFault:      a.onPTTFault,
		OnTransition: a.onPTTTransition,
	})
	if err != nil {
		return fail(FaultConfig, err)
	}
	a.ctrl = ctrl
	ctrl.Start()

	// 4. Relay pipelines.
	br, err := bridge.New(bridge.Config{
		Input:            a.in,
		Output:           a.out,
		Transport:        a.tp,
		Keyer:            ctrl,
		SampleRate:       a.cfg.Audio.SampleRate,
		FrameSize:        a.cfg.Audio.FrameSize,
		QueueDepth:       a.cfg.Bridge.QueueDepth,
		RemoteActivityTX: a.cfg.Bridge.RemoteActivityTX,
		Metrics:          a.met,
	})
	if err != nil {
		return fail(FaultConfig, err)
	}
	a.br = br

	a.runCtx, a.runCancel = context.WithCancel(context.Background())
	br.Start(a.runCtx)
	go a.monitor(a.runCtx)

	a.setLifecycle(Running)
	slog.Info("bridge running",
		"transport", a.cfg.Transport.Kind,
		"sample_rate", a.cfg.Audio.SampleRate,
		"frame_size", a.cfg.Audio.FrameSize,
		"tail_hang", a.cfg.PTT.TailHang.Std(),
	)
	return nil
}

// abortStartup releases everything a failed Start opened and lands on
// Stopped. It consumes the shutdown once-guard so a later Shutdown call is a
// no-op.
func (a *App) abortStartup() {
	a.stopOnce.Do(func() {
		defer close(a.stopped)
		if a.ctrl != nil {
			a.ctrl.Stop()
		}
		if a.in != nil {
			_ = a.in.Close()
		}
		if a.out != nil {
			_ = a.out.Close()
		}
		_ = a.tp.Close()
		_ = a.pttDev.Close()
		a.setLifecycle(Stopped)
	})
}

// ─── Control surface ─────────────────────────────────────────────────────────

// RequestKey submits a key request on behalf of source.
func (a *App) RequestKey(source string) {
	if a.ctrl != nil {
		a.ctrl.RequestKey(source, time.Now())
	}
}

// RequestUnkey submits an unkey request on behalf of source.
func (a *App) RequestUnkey(source string) {
	if a.ctrl != nil {
		a.ctrl.RequestUnkey(source, time.Now())
	}
}

// Status returns a read-only snapshot of the bridge session. It never blocks
// on I/O.
func (a *App) Status() Status {
	st := Status{
		Lifecycle:  a.Lifecycle().String(),
		PTTState:   ptt.Idle.String(),
		Connected:  a.tp.Connected(),
		Reconnects: a.reconnects.Load(),
		SampleRate: a.cfg.Audio.SampleRate,
		FrameSize:  a.cfg.Audio.FrameSize,
		TailHang:   a.cfg.PTT.TailHang.Std().Seconds(),
	}
	if a.ctrl != nil {
		s := a.ctrl.State()
		st.PTTState = s.String()
		st.Transmitting = s != ptt.Idle
	}
	if a.br != nil {
		stats := a.br.Stats()
		st.DroppedFrames = stats.Dropped()
		st.Degraded = stats.RXDegraded || stats.TXDegraded || !st.Connected
		m := a.br.Meters()
		st.RXLevelDBFS = m.RX()
		st.TXLevelDBFS = m.TX()
	} else {
		st.RXLevelDBFS = audio.SilenceDBFS
		st.TXLevelDBFS = audio.SilenceDBFS
		st.Degraded = !st.Connected
	}
	return st
}

// Healthy reports whether the bridge is in steady state with both pipelines
// running and the transport connected. Consumed by the readiness probe.
func (a *App) Healthy() bool {
	return a.Lifecycle() == Running && a.br != nil && a.br.Healthy() && a.tp.Connected()
}

// ─── Runtime fault policy ────────────────────────────────────────────────────

// monitor watches for transport loss and applies the reconnect policy. A
// disconnect while keyed must drop the transmitter within one control tick —
// a dead link keying a live radio is the one failure mode this system exists
// to prevent.
func (a *App) monitor(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-a.tp.Done():
		}
		if a.Lifecycle() != Running {
			return
		}

		slog.Warn("transport lost; forcing unkey and entering degraded rx-only relay")
		a.ctrl.ForceIdle("transport", time.Now())

		if !a.reconnect(ctx) {
			return
		}
	}
}

// reconnect applies the policy until it succeeds or gives up.
func (a *App) reconnect(ctx context.Context) bool {
	ctx, span := a.tracer.Start(ctx, "app.reconnect")
	defer span.End()

	for attempt := 1; ; attempt++ {
		delay, ok := a.policy.Next(attempt)
		if !ok {
			slog.Warn("transport reconnect exhausted; staying rx-only until restart",
				"attempts", attempt-1)
			return false
		}

		select {
		case <-ctx.Done():
			return false
		case <-time.After(delay):
		}

		slog.Info("attempting transport reconnect", "attempt", attempt, "backoff", delay)
		cctx, cancel := context.WithTimeout(ctx, connectTimeout)
		err := a.tp.Connect(cctx)
		cancel()
		if err == nil {
			a.reconnects.Add(1)
			a.met.TransportReconnects.Add(ctx, 1)
			slog.Info("transport reconnected", "attempt", attempt)
			return true
		}
		slog.Warn("transport reconnect failed", "attempt", attempt, "error", err)
	}
}

// onPTTFault feeds controller hardware faults into counters. The controller
// has already failed safe by the time this runs.
func (a *App) onPTTFault(err error) {
	a.pttFaults.Add(1)
	a.met.PTTFaults.Add(context.Background(), 1)
}

// onPTTTransition records state transitions and keyed-period durations.
func (a *App) onPTTTransition(from, to ptt.State) {
	ctx := context.Background()
	a.met.Transition(ctx, to.String())
	if from == ptt.Idle {
		a.keyedAtNs.Store(time.Now().UnixNano())
	}
	if to == ptt.Idle {
		if start := a.keyedAtNs.Swap(0); start > 0 {
			a.met.KeyDuration.Record(ctx, time.Since(time.Unix(0, start)).Seconds())
		}
	}
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown tears the bridge down in deterministic order: unkey, wait up to
// tail-hang plus grace for natural deassertion (forcing it past the
// deadline), stop pipelines, close audio streams, disconnect transport,
// release the PTT handle. Idempotent — every caller blocks until the first
// invocation completes. The bound does not depend on the caller's context.
func (a *App) Shutdown() {
	a.stopOnce.Do(func() {
		defer close(a.stopped)
		a.setLifecycle(Stopping)

		_, span := a.tracer.Start(context.Background(), "app.shutdown")
		defer span.End()

		if a.ctrl != nil {
			a.ctrl.RequestUnkey("shutdown", time.Now())
			waitCtx, cancel := context.WithTimeout(context.Background(),
				a.cfg.PTT.TailHang.Std()+a.grace)
			if err := a.ctrl.AwaitIdle(waitCtx); err != nil {
				slog.Warn("natural deassert timed out; forcing", "error", err)
				a.ctrl.ForceIdle("shutdown", time.Now())
			}
			cancel()
			a.ctrl.Stop()
		}

		if a.runCancel != nil {
			a.runCancel()
		}
		if a.br != nil {
			a.br.Stop()
		}
		if a.in != nil {
			_ = a.in.Close()
		}
		if a.out != nil {
			_ = a.out.Close()
		}
		_ = a.tp.Close()
		_ = a.pttDev.Close()

		a.setLifecycle(Stopped)
		slog.Info("bridge stopped")
	})
	<-a.stopped
}

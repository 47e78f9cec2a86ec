// Package bridge relays fixed-size audio frames between the radio-facing
// sound device and the voice-chat transport.
//
// Two independent unidirectional pipelines run concurrently:
//
//   - RX (radio → transport): capture, meter, bounded queue, transport send.
//     RX runs unconditionally — the current PTT state is irrelevant — and
//     keeps capturing (dropping at the send stage) while the transport is
//     down.
//   - TX (transport → radio): inbound frames are re-chunked to the hardware
//     frame size and forwarded to the radio only while the transmitter is
//     keyed; frames arriving while Idle are discarded immediately, never
//     queued, so a re-key cannot replay a burst of stale audio.
//
// Frame hand-off between the hardware-facing and transport-facing sides
// happens exclusively through bounded drop-oldest queues: audio tasks never
// block on network I/O, and latency stays bounded at the cost of loss —
// acceptable for voice traffic.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shackpi/remotetrx/internal/observe"
	"github.com/shackpi/remotetrx/pkg/audio"
	"github.com/shackpi/remotetrx/pkg/transport"
)

// remoteInactivity is the silence window after which remote-activity keying
// issues the UnkeyRequest; the PTT tail hang then rides on top of it.
const remoteInactivity = 250 * time.Millisecond

// remoteSource identifies key events originating from remote voice activity.
const remoteSource = "remote"

// Keyer is the PTT controller surface the bridge consumes: a non-blocking
// gate snapshot for the TX pipeline, plus key/unkey requests for the
// optional remote-activity policy.
type Keyer interface {
	Transmitting() bool
	RequestKey(source string, at time.Time)
	RequestUnkey(source string, at time.Time)
}

// Config wires a [Bridge].
type Config struct {
	// Input and Output are the radio-facing audio streams. Required.
	Input  audio.InputStream
	Output audio.OutputStream

	// Transport is the voice-chat connection. Required.
	Transport transport.Transport

	// Keyer gates the TX pipeline. Required.
	Keyer Keyer

	// SampleRate and FrameSize fix the relay cadence.
	SampleRate int
	FrameSize  int

	// QueueDepth bounds each pipeline queue. Defaults to 4.
	QueueDepth int

	// RemoteActivityTX keys the transmitter automatically while remote audio
	// is arriving.
	RemoteActivityTX bool

	// Metrics records relay instruments. Defaults to [observe.Default].
	Metrics *observe.Metrics
}

// Stats is a snapshot of the bridge's monotonic drop counters and pipeline
// health.
type Stats struct {
	// RXQueueDropped and TXQueueDropped count frames evicted from the
	// bounded queues under overrun.
	RXQueueDropped uint64
	TXQueueDropped uint64

	// SendDropped counts RX frames lost because the transport was down.
	SendDropped uint64

	// IdleDiscarded counts TX frames discarded because the transmitter was
	// not keyed.
	IdleDiscarded uint64

	// RXDegraded / TXDegraded report a pipeline stopped by an audio stream
	// fault. Recovery is left to a process restart.
	RXDegraded bool
	TXDegraded bool
}

// Dropped returns the total of all loss counters, the figure surfaced on the
// status interface.
func (s Stats) Dropped() uint64 {
	return s.RXQueueDropped + s.TXQueueDropped + s.SendDropped + s.IdleDiscarded
}

// Bridge runs the duplex relay.
//
// Bridge is safe for concurrent use.
type Bridge struct {
	in     audio.InputStream
	out    audio.OutputStream
	tp     transport.Transport
	keyer  Keyer
	met    *observe.Metrics
	meters *Meters

	sampleRate int
	frameSize  int
	remoteKey  bool

	rxQ *audio.FrameQueue
	txQ *audio.FrameQueue

	rxSeq atomic.Uint64
	txSeq atomic.Uint64

	sendDropped   atomic.Uint64
	idleDiscarded atomic.Uint64
	rxDegraded    atomic.Bool
	txDegraded    atomic.Bool

	cancel    context.CancelFunc
	wg        sync.WaitGroup
	startOnce sync.Once
	stopOnce  sync.Once
}

// New creates a Bridge. Call [Bridge.Start] to begin relaying.
func New(cfg Config) (*Bridge, error) {
	if cfg.Input == nil || cfg.Output == nil {
		return nil, fmt.Errorf("bridge: input and output streams are required")
	}
	if cfg.Transport == nil {
		return nil, fmt.Errorf("bridge: transport is required")
	}
	if cfg.Keyer == nil {
		return nil, fmt.Errorf("bridge: keyer is required")
	}
	if cfg.SampleRate <= 0 || cfg.FrameSize <= 0 {
		return nil, fmt.Errorf("bridge: sample rate and frame size must be positive")
	}
	depth := cfg.QueueDepth
	if depth <= 0 {
		depth = 4
	}
	met := cfg.Metrics
	if met == nil {
		met = observe.Default()
	}
	return &Bridge{
		in:         cfg.Input,
		out:        cfg.Output,
		tp:         cfg.Transport,
		keyer:      cfg.Keyer,
		met:        met,
		meters:     NewMeters(),
		sampleRate: cfg.SampleRate,
		frameSize:  cfg.FrameSize,
		remoteKey:  cfg.RemoteActivityTX,
		rxQ:        audio.NewFrameQueue(depth),
		txQ:        audio.NewFrameQueue(depth),
	}, nil
}

// Start launches the pipeline goroutines. Subsequent calls are no-ops.
func (b *Bridge) Start(ctx context.Context) {
	b.startOnce.Do(func() {
		ctx, b.cancel = context.WithCancel(ctx)
		b.wg.Add(4)
		go b.rxCapture(ctx)
		go b.rxSend(ctx)
		go b.txReceive(ctx)
		go b.txWrite(ctx)
	})
}

// Stop halts both pipelines and waits for them to exit. Safe to call more
// than once; a no-op if the bridge never started.
func (b *Bridge) Stop() {
	b.stopOnce.Do(func() {
		if b.cancel != nil {
			b.cancel()
		}
		b.rxQ.Close()
		b.txQ.Close()
	})
	b.wg.Wait()
}

// Meters returns the level meters fed by both pipelines.
func (b *Bridge) Meters() *Meters {
	return b.meters
}

// Stats returns a snapshot of the drop counters and pipeline health.
func (b *Bridge) Stats() Stats {
	return Stats{
		RXQueueDropped: b.rxQ.Dropped(),
		TXQueueDropped: b.txQ.Dropped(),
		SendDropped:    b.sendDropped.Load(),
		IdleDiscarded:  b.idleDiscarded.Load(),
		RXDegraded:     b.rxDegraded.Load(),
		TXDegraded:     b.txDegraded.Load(),
	}
}

// Healthy reports whether both pipelines are still running.
func (b *Bridge) Healthy() bool {
	return !b.rxDegraded.Load() && !b.txDegraded.Load()
}

// ─── RX pipeline: radio → transport ───────────────────────────────────────────

// rxCapture pulls one frame per frame interval from the radio input, meters
// it, and queues it for transport delivery. It never blocks on network I/O.
func (b *Bridge) rxCapture(ctx context.Context) {
	defer b.wg.Done()
	for {
		pcm, err := b.in.ReadFrame(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, audio.ErrQueueClosed) {
				return
			}
			b.rxDegraded.Store(true)
			slog.Error("bridge: rx capture failed, pipeline stopped", "error", err)
			return
		}

		level := audio.LevelDBFS(pcm)
		b.meters.SetRX(level)
		b.met.RXLevel.Record(ctx, level)

		f := audio.Frame{PCM: pcm, Dir: audio.DirectionRX, Seq: b.rxSeq.Add(1)}
		if b.rxQ.Push(f) {
			b.met.Dropped(ctx, "rx", "overflow", 1)
		}
	}
}

// rxSend drains the RX queue into the transport, dropping frames while the
// connection is down — degraded RX capture continues regardless.
func (b *Bridge) rxSend(ctx context.Context) {
	defer b.wg.Done()
	for {
		f, err := b.rxQ.Pop(ctx)
		if err != nil {
			return
		}
		if err := b.tp.Send(f); err != nil {
			b.sendDropped.Add(1)
			b.met.Dropped(ctx, "rx", "transport_down", 1)
			continue
		}
		b.met.Forwarded(ctx, "rx")
	}
}

// ─── TX pipeline: transport → radio ───────────────────────────────────────────

// txReceive re-chunks inbound transport audio to the hardware frame size and
// queues it for playback, discarding immediately while the transmitter is
// idle. With remote-activity keying enabled it also drives the key line from
// inbound audio presence.
func (b *Bridge) txReceive(ctx context.Context) {
	defer b.wg.Done()

	chunker := audio.NewChunker(b.frameSize)

	var inactivity *time.Timer
	var inactivityC <-chan time.Time
	if b.remoteKey {
		inactivity = time.NewTimer(remoteInactivity)
		inactivity.Stop()
		defer inactivity.Stop()
	}

	for {
		select {
		case <-ctx.Done():
			return

		case <-inactivityC:
			inactivityC = nil
			b.keyer.RequestUnkey(remoteSource, time.Now())

		case f, ok := <-b.tp.Frames():
			if !ok {
				return
			}

			if b.remoteKey {
				b.keyer.RequestKey(remoteSource, time.Now())
				if !inactivity.Stop() {
					select {
					case <-inactivity.C:
					default:
					}
				}
				inactivity.Reset(remoteInactivity)
				inactivityC = inactivity.C
			}

			for _, pcm := range chunker.Write(f.PCM) {
				if !b.keyer.Transmitting() {
					// Never queue while idle: a burst of stale audio on
					// re-key is worse than the loss.
					b.idleDiscarded.Add(1)
					b.met.Dropped(ctx, "tx", "idle_discard", 1)
					b.meters.SetTX(audio.SilenceDBFS)
					continue
				}
				nf := audio.Frame{PCM: pcm, Dir: audio.DirectionTX, Seq: b.txSeq.Add(1)}
				if b.txQ.Push(nf) {
					b.met.Dropped(ctx, "tx", "overflow", 1)
				}
			}
		}
	}
}

// txWrite drains the TX queue into the radio output, re-checking the gate so
// audio that was queued during TailHang never plays out after Idle.
func (b *Bridge) txWrite(ctx context.Context) {
	defer b.wg.Done()
	for {
		f, err := b.txQ.Pop(ctx)
		if err != nil {
			return
		}
		if !b.keyer.Transmitting() {
			b.idleDiscarded.Add(1)
			b.met.Dropped(ctx, "tx", "idle_discard", 1)
			b.meters.SetTX(audio.SilenceDBFS)
			continue
		}
		if err := b.out.WriteFrame(f.PCM); err != nil {
			b.txDegraded.Store(true)
			b.met.Dropped(ctx, "tx", "write_error", 1)
			slog.Error("bridge: tx write failed, pipeline stopped", "error", err)
			return
		}

		// Only frames actually written to hardware are metered.
		level := audio.LevelDBFS(f.PCM)
		b.meters.SetTX(level)
		b.met.TXLevel.Record(ctx, level)
		b.met.Forwarded(ctx, "tx")
	}
}

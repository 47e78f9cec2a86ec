// Package malgo provides an [audio.Device] implementation backed by the
// miniaudio library via github.com/gen2brain/malgo. It bridges miniaudio's
// callback-driven I/O to the bridge's pull-based fixed-frame contract:
// capture callbacks push into a bounded queue drained by ReadFrame, and
// WriteFrame pushes into a bounded queue drained by the playback callback
// (padding with silence when the queue runs dry).
//
// Devices are selected by case-insensitive substring match against the
// backend's device names (e.g. "USB Audio CODEC"); an empty ID selects the
// system default.
package malgo

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/gen2brain/malgo"

	"github.com/shackpi/remotetrx/pkg/audio"
)

// streamQueueDepth bounds the hand-off between miniaudio callbacks and the
// bridge. Deep enough to ride out scheduling jitter, shallow enough to keep
// latency bounded.
const streamQueueDepth = 8

// Compile-time interface assertion.
var _ audio.Device = (*Backend)(nil)

// Backend implements [audio.Device] on top of a miniaudio context.
//
// Backend is safe for concurrent use.
type Backend struct {
	ctx *malgo.AllocatedContext

	mu     sync.Mutex
	closed bool
}

// New initialises the miniaudio context. Call [Backend.Close] to release it.
func New() (*Backend, error) {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(message string) {
		slog.Debug("miniaudio", "message", strings.TrimSpace(message))
	})
	if err != nil {
		return nil, fmt.Errorf("malgo: init context: %w", err)
	}
	return &Backend{ctx: ctx}, nil
}

// Close releases the miniaudio context. Streams must be closed first.
// Safe to call more than once.
func (b *Backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	if err := b.ctx.Uninit(); err != nil {
		return fmt.Errorf("malgo: uninit context: %w", err)
	}
	b.ctx.Free()
	return nil
}

// findDevice resolves deviceID to a backend device pointer, or nil for the
// system default.
func (b *Backend) findDevice(kind malgo.DeviceType, deviceID string) (*malgo.DeviceInfo, error) {
	if deviceID == "" {
		return nil, nil
	}
	infos, err := b.ctx.Devices(kind)
	if err != nil {
		return nil, fmt.Errorf("malgo: enumerate devices: %w", err)
	}
	want := strings.ToLower(deviceID)
	for i := range infos {
		if strings.Contains(strings.ToLower(infos[i].Name()), want) {
			return &infos[i], nil
		}
	}
	return nil, fmt.Errorf("malgo: no %v device matching %q", kind, deviceID)
}

// OpenInput opens a mono S16 capture stream delivering frameSize-sample frames.
func (b *Backend) OpenInput(deviceID string, sampleRate, frameSize int) (audio.InputStream, error) {
	info, err := b.findDevice(malgo.Capture, deviceID)
	if err != nil {
		return nil, err
	}

	cfg := malgo.DefaultDeviceConfig(malgo.Capture)
	cfg.Capture.Format = malgo.FormatS16
	cfg.Capture.Channels = 1
	cfg.SampleRate = uint32(sampleRate)
	cfg.PeriodSizeInFrames = uint32(frameSize)
	if info != nil {
		cfg.Capture.DeviceID = info.ID.Pointer()
	}

	s := &inputStream{
		queue:   audio.NewFrameQueue(streamQueueDepth),
		chunker: audio.NewChunker(frameSize),
	}

	// The capture callback runs on miniaudio's own thread; it only re-chunks
	// and pushes — never blocks.
	callbacks := malgo.DeviceCallbacks{
		Data: func(_, pInput []byte, _ uint32) {
			for _, pcm := range s.chunker.Write(audio.BytesToPCM(pInput)) {
				s.queue.Push(audio.Frame{PCM: pcm, Dir: audio.DirectionRX})
			}
		},
	}

	dev, err := malgo.InitDevice(b.ctx.Context, cfg, callbacks)
	if err != nil {
		return nil, fmt.Errorf("malgo: init capture device %q: %w", deviceID, err)
	}
	if err := dev.Start(); err != nil {
		dev.Uninit()
		return nil, fmt.Errorf("malgo: start capture device %q: %w", deviceID, err)
	}
	s.dev = dev
	return s, nil
}

// OpenOutput opens a mono S16 playback stream accepting frameSize-sample frames.
func (b *Backend) OpenOutput(deviceID string, sampleRate, frameSize int) (audio.OutputStream, error) {
	info, err := b.findDevice(malgo.Playback, deviceID)
	if err != nil {
		return nil, err
	}

	cfg := malgo.DefaultDeviceConfig(malgo.Playback)
	cfg.Playback.Format = malgo.FormatS16
	cfg.Playback.Channels = 1
	cfg.SampleRate = uint32(sampleRate)
	cfg.PeriodSizeInFrames = uint32(frameSize)
	if info != nil {
		cfg.Playback.DeviceID = info.ID.Pointer()
	}

	s := &outputStream{
		queue: audio.NewFrameQueue(streamQueueDepth),
	}

	// The playback callback pulls queued PCM and pads with silence when the
	// queue runs dry, so the radio side always hears a continuous stream.
	callbacks := malgo.DeviceCallbacks{
		Data: func(pOutput, _ []byte, _ uint32) {
			s.fill(pOutput)
		},
	}

	dev, err := malgo.InitDevice(b.ctx.Context, cfg, callbacks)
	if err != nil {
		return nil, fmt.Errorf("malgo: init playback device %q: %w", deviceID, err)
	}
	if err := dev.Start(); err != nil {
		dev.Uninit()
		return nil, fmt.Errorf("malgo: start playback device %q: %w", deviceID, err)
	}
	s.dev = dev
	return s, nil
}

// ─── inputStream ──────────────────────────────────────────────────────────────

type inputStream struct {
	dev     *malgo.Device
	queue   *audio.FrameQueue
	chunker *audio.Chunker

	closeOnce sync.Once
}

func (s *inputStream) ReadFrame(ctx context.Context) ([]int16, error) {
	f, err := s.queue.Pop(ctx)
	if err != nil {
		return nil, err
	}
	return f.PCM, nil
}

func (s *inputStream) Close() error {
	s.closeOnce.Do(func() {
		s.dev.Uninit()
		s.queue.Close()
	})
	return nil
}

// ─── outputStream ─────────────────────────────────────────────────────────────

type outputStream struct {
	dev   *malgo.Device
	queue *audio.FrameQueue

	// pending holds leftover bytes of a partially consumed frame; only the
	// playback callback touches it.
	pending []byte

	closeOnce sync.Once
}

func (s *outputStream) WriteFrame(pcm []int16) error {
	s.queue.Push(audio.Frame{PCM: pcm, Dir: audio.DirectionTX})
	return nil
}

// fill copies queued PCM into dst, padding with silence when nothing is queued.
func (s *outputStream) fill(dst []byte) {
	n := 0
	for n < len(dst) {
		if len(s.pending) == 0 {
			f, ok := s.queue.TryPop()
			if !ok {
				break
			}
			s.pending = audio.PCMToBytes(f.PCM)
		}
		c := copy(dst[n:], s.pending)
		s.pending = s.pending[c:]
		n += c
	}
	for ; n < len(dst); n++ {
		dst[n] = 0
	}
}

func (s *outputStream) Close() error {
	s.closeOnce.Do(func() {
		s.dev.Uninit()
		s.queue.Close()
	})
	return nil
}

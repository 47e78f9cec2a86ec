package bridge_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shackpi/remotetrx/internal/bridge"
	"github.com/shackpi/remotetrx/pkg/audio"
	audiomock "github.com/shackpi/remotetrx/pkg/audio/mock"
	tpmock "github.com/shackpi/remotetrx/pkg/transport/mock"
)

// fakeKeyer is a settable PTT gate that records key/unkey requests.
type fakeKeyer struct {
	mu     sync.Mutex
	tx     bool
	keys   int
	unkeys int
}

func (k *fakeKeyer) Transmitting() bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.tx
}

func (k *fakeKeyer) SetTransmitting(tx bool) {
	k.mu.Lock()
	k.tx = tx
	k.mu.Unlock()
}

func (k *fakeKeyer) RequestKey(string, time.Time) {
	k.mu.Lock()
	k.keys++
	k.mu.Unlock()
}

func (k *fakeKeyer) RequestUnkey(string, time.Time) {
	k.mu.Lock()
	k.unkeys++
	k.mu.Unlock()
}

func (k *fakeKeyer) Requests() (keys, unkeys int) {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.keys, k.unkeys
}

type fixture struct {
	in    *audiomock.InputStream
	out   *audiomock.OutputStream
	tp    *tpmock.Transport
	keyer *fakeKeyer
	br    *bridge.Bridge
}

func newFixture(t *testing.T, remoteActivity bool) *fixture {
	t.Helper()

	f := &fixture{
		in:    audiomock.NewInputStream(8),
		out:   &audiomock.OutputStream{},
		tp:    tpmock.New(16),
		keyer: &fakeKeyer{},
	}
	if err := f.tp.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	br, err := bridge.New(bridge.Config{
		Input:            f.in,
		Output:           f.out,
		Transport:        f.tp,
		Keyer:            f.keyer,
		SampleRate:       48000,
		FrameSize:        4,
		QueueDepth:       4,
		RemoteActivityTX: remoteActivity,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	f.br = br

	br.Start(context.Background())
	t.Cleanup(br.Stop)
	return f
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for !cond() {
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for %s", what)
		case <-time.After(time.Millisecond):
		}
	}
}

func TestNew_Validation(t *testing.T) {
	t.Parallel()
	_, err := bridge.New(bridge.Config{})
	if err == nil {
		t.Fatal("New with an empty config should fail")
	}
}

func TestBridge_RXForwardsToTransport(t *testing.T) {
	t.Parallel()
	f := newFixture(t, false)

	f.in.Push([]int16{1000, 2000, 3000, 4000})
	waitFor(t, "rx frame on transport", func() bool { return f.tp.SentCount() >= 1 })

	sent := f.tp.Sent()
	if sent[0].Dir != audio.DirectionRX {
		t.Errorf("direction = %v, want RX", sent[0].Dir)
	}
	if sent[0].PCM[0] != 1000 {
		t.Errorf("first sample = %d, want 1000", sent[0].PCM[0])
	}

	// The RX meter must reflect the metered frame, not silence.
	waitFor(t, "rx meter update", func() bool {
		return f.br.Meters().RX() > audio.SilenceDBFS
	})
}

func TestBridge_RXRunsRegardlessOfPTTState(t *testing.T) {
	t.Parallel()
	f := newFixture(t, false)
	f.keyer.SetTransmitting(false)

	f.in.Push([]int16{500, 500, 500, 500})
	waitFor(t, "rx frame while idle", func() bool { return f.tp.SentCount() >= 1 })
}

func TestBridge_RXDropsWhileTransportDown(t *testing.T) {
	t.Parallel()
	f := newFixture(t, false)

	f.tp.Drop()
	f.in.Push([]int16{1, 2, 3, 4})
	waitFor(t, "send drop counted", func() bool {
		return f.br.Stats().SendDropped >= 1
	})
	if f.tp.SentCount() != 0 {
		t.Errorf("SentCount = %d, want 0 while disconnected", f.tp.SentCount())
	}

	// Capture itself must keep running.
	if !f.br.Healthy() {
		t.Error("bridge should stay healthy while only the transport is down")
	}
}

func TestBridge_TXWritesWhileKeyed(t *testing.T) {
	t.Parallel()
	f := newFixture(t, false)
	f.keyer.SetTransmitting(true)

	// 8 inbound samples re-chunk into two 4-sample hardware frames.
	f.tp.Deliver(audio.Frame{PCM: []int16{1, 2, 3, 4, 5, 6, 7, 8}, Dir: audio.DirectionTX})
	waitFor(t, "tx frames written", func() bool { return len(f.out.Written()) >= 2 })

	written := f.out.Written()
	if len(written[0]) != 4 {
		t.Errorf("hardware frame size = %d, want 4", len(written[0]))
	}
	if written[0][0] != 1 || written[1][0] != 5 {
		t.Errorf("frame starts = %d, %d; want 1, 5", written[0][0], written[1][0])
	}
}

func TestBridge_TXDiscardsWhileIdle(t *testing.T) {
	t.Parallel()
	f := newFixture(t, false)
	f.keyer.SetTransmitting(false)

	f.tp.Deliver(audio.Frame{PCM: []int16{9, 9, 9, 9}, Dir: audio.DirectionTX})
	waitFor(t, "idle discard counted", func() bool {
		return f.br.Stats().IdleDiscarded >= 1
	})
	if n := len(f.out.Written()); n != 0 {
		t.Errorf("frames written while idle = %d, want 0", n)
	}

	// Keying afterwards must not replay the discarded audio.
	f.keyer.SetTransmitting(true)
	time.Sleep(20 * time.Millisecond)
	if n := len(f.out.Written()); n != 0 {
		t.Errorf("stale frames replayed after key = %d, want 0", n)
	}
}

func TestBridge_RemoteActivityKeysAndUnkeys(t *testing.T) {
	t.Parallel()
	f := newFixture(t, true)
	f.keyer.SetTransmitting(true)

	f.tp.Deliver(audio.Frame{PCM: []int16{1, 2, 3, 4}, Dir: audio.DirectionTX})
	waitFor(t, "remote key request", func() bool {
		keys, _ := f.keyer.Requests()
		return keys >= 1
	})

	// After the inactivity window with no further audio, an unkey follows.
	waitFor(t, "remote unkey request", func() bool {
		_, unkeys := f.keyer.Requests()
		return unkeys >= 1
	})
}

func TestBridge_RXCaptureFaultDegrades(t *testing.T) {
	t.Parallel()
	f := newFixture(t, false)

	f.in.FailReads(errors.New("device unplugged"))
	f.in.Push([]int16{1, 2, 3, 4})

	waitFor(t, "rx degraded", func() bool { return f.br.Stats().RXDegraded })
	if f.br.Healthy() {
		t.Error("Healthy() = true after rx capture fault")
	}
}

func TestBridge_TXWriteFaultDegrades(t *testing.T) {
	t.Parallel()
	f := newFixture(t, false)
	f.keyer.SetTransmitting(true)

	f.out.FailWrites(errors.New("device unplugged"))
	f.tp.Deliver(audio.Frame{PCM: []int16{1, 2, 3, 4}, Dir: audio.DirectionTX})

	waitFor(t, "tx degraded", func() bool { return f.br.Stats().TXDegraded })
	if f.br.Healthy() {
		t.Error("Healthy() = true after tx write fault")
	}
}

func TestBridge_StatsDroppedTotals(t *testing.T) {
	t.Parallel()

	s := bridge.Stats{
		RXQueueDropped: 1,
		TXQueueDropped: 2,
		SendDropped:    3,
		IdleDiscarded:  4,
	}
	if got := s.Dropped(); got != 10 {
		t.Errorf("Dropped() = %d, want 10", got)
	}
}

func TestBridge_StopIsIdempotent(t *testing.T) {
	t.Parallel()
	f := newFixture(t, false)

	f.br.Stop()
	f.br.Stop()
}

package bridge_test

import (
	"sync"
	"testing"

	"github.com/shackpi/remotetrx/internal/bridge"
	"github.com/shackpi/remotetrx/pkg/audio"
)

func TestMeters_InitialiseToSilence(t *testing.T) {
	t.Parallel()
	m := bridge.NewMeters()

	if got := m.RX(); got != audio.SilenceDBFS {
		t.Errorf("RX() = %v, want %v", got, audio.SilenceDBFS)
	}
	if got := m.TX(); got != audio.SilenceDBFS {
		t.Errorf("TX() = %v, want %v", got, audio.SilenceDBFS)
	}
}

func TestMeters_LatestValueWins(t *testing.T) {
	t.Parallel()
	m := bridge.NewMeters()

	m.SetRX(-42.5)
	m.SetRX(-12.25)
	if got := m.RX(); got != -12.25 {
		t.Errorf("RX() = %v, want -12.25", got)
	}

	m.SetTX(-6)
	if got := m.TX(); got != -6 {
		t.Errorf("TX() = %v, want -6", got)
	}
	// Channels are independent.
	if got := m.RX(); got != -12.25 {
		t.Errorf("RX() = %v after SetTX, want -12.25", got)
	}
}

func TestMeters_ConcurrentWriters(t *testing.T) {
	t.Parallel()
	m := bridge.NewMeters()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(v float64) {
			defer wg.Done()
			for j := 0; j < 1000; j++ {
				m.SetRX(v)
			}
		}(float64(-i))
	}
	wg.Wait()

	// The slot must hold one of the written values intact, never a torn mix.
	got := m.RX()
	if got > 0 || got < -7 {
		t.Errorf("RX() = %v, want one of the written values in [-7, 0]", got)
	}
}

package bridge

import (
	"math"
	"sync/atomic"

	"github.com/shackpi/remotetrx/pkg/audio"
)

// Meters holds the single most recent RX and TX levels in dBFS, each
// independently overwritten at frame rate. Reads return the latest value
// only — no history, no locks held across I/O; each slot is one atomic word.
type Meters struct {
	rx atomic.Uint64
	tx atomic.Uint64
}

// NewMeters creates meters initialised to silence.
func NewMeters() *Meters {
	m := &Meters{}
	m.SetRX(audio.SilenceDBFS)
	m.SetTX(audio.SilenceDBFS)
	return m
}

// SetRX overwrites the RX level.
func (m *Meters) SetRX(dbfs float64) {
	m.rx.Store(math.Float64bits(dbfs))
}

// SetTX overwrites the TX level.
func (m *Meters) SetTX(dbfs float64) {
	m.tx.Store(math.Float64bits(dbfs))
}

// RX returns the most recent RX level in dBFS.
func (m *Meters) RX() float64 {
	return math.Float64frombits(m.rx.Load())
}

// TX returns the most recent TX level in dBFS.
func (m *Meters) TX() float64 {
	return math.Float64frombits(m.tx.Load())
}

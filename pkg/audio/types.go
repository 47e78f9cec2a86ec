package audio

import "time"

// Direction tags which way a frame is travelling through the bridge.
type Direction int

const (
	// DirectionRX flows from the radio towards the transport.
	DirectionRX Direction = iota

	// DirectionTX flows from the transport towards the radio.
	DirectionTX
)

// String returns the human-readable name of the direction.
func (d Direction) String() string {
	switch d {
	case DirectionRX:
		return "rx"
	case DirectionTX:
		return "tx"
	default:
		return "unknown"
	}
}

// Frame is a fixed-size block of mono int16 PCM, the unit of transfer
// between hardware and transport. A frame is owned by whichever queue
// currently holds it; handing it off transfers ownership — the PCM slice
// must not be written to after a frame has been pushed downstream.
type Frame struct {
	// PCM holds little-endian signed 16-bit mono samples.
	PCM []int16

	// Dir tags the pipeline this frame belongs to.
	Dir Direction

	// Seq is a monotonic per-pipeline sequence number assigned at capture
	// or receive time.
	Seq uint64
}

// Duration returns the wall-clock length of the frame at the given sample rate.
func (f Frame) Duration(sampleRate int) time.Duration {
	if sampleRate <= 0 {
		return 0
	}
	return time.Duration(len(f.PCM)) * time.Second / time.Duration(sampleRate)
}

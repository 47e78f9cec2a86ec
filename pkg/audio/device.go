// Package audio defines the frame type, the bounded frame queue, level math
// and the hardware capability interfaces consumed by the bridge core.
//
// The two hardware-facing abstractions are:
//
//   - [Device] — opens input (radio → bridge) and output (bridge → radio)
//     streams on a sound device.
//   - [InputStream] / [OutputStream] — per-direction fixed-frame PCM streams.
//
// Implementations live in adapter subpackages (audio/malgo for real sound
// hardware, audio/mock for tests). The interfaces are intentionally narrow so
// the bridge core stays decoupled from the sound backend.
//
// This package lives under pkg/ because external code (alternative sound
// backends) is expected to implement [Device].
package audio

import "context"

// Device opens audio streams on a piece of sound hardware.
//
// Implementations must be safe for concurrent use.
type Device interface {
	// OpenInput opens a capture stream on the device matching deviceID,
	// delivering mono int16 PCM at sampleRate in blocks of frameSize samples.
	// deviceID is matched against the backend's device names; an empty ID
	// selects the system default.
	OpenInput(deviceID string, sampleRate, frameSize int) (InputStream, error)

	// OpenOutput opens a playback stream with the same format contract.
	OpenOutput(deviceID string, sampleRate, frameSize int) (OutputStream, error)
}

// InputStream delivers captured radio audio one fixed-size frame at a time.
type InputStream interface {
	// ReadFrame blocks until the next captured frame is available or ctx is
	// cancelled. The returned slice is owned by the caller. Returns an error
	// once the stream has failed or been closed; a failed stream never
	// recovers.
	ReadFrame(ctx context.Context) ([]int16, error)

	// Close stops capture and releases the stream. Safe to call more than once.
	Close() error
}

// OutputStream accepts fixed-size frames for playback towards the radio.
type OutputStream interface {
	// WriteFrame enqueues one frame for playback. It must not block on the
	// hardware for longer than roughly one frame interval; implementations
	// drop the oldest pending frame instead of stalling the caller.
	WriteFrame(pcm []int16) error

	// Close stops playback and releases the stream. Safe to call more than once.
	Close() error
}

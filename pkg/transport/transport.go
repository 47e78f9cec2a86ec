// Package transport defines the narrow voice-chat capability consumed by the
// bridge core.
//
// A [Transport] carries fixed-frame mono PCM both ways between the bridge and
// a voice-chat service. The interface is intentionally small — connect, send,
// a lazy inbound frame sequence, and connection status — so the underlying
// protocol can be replaced without touching the bridge. Implementations live
// in adapter subpackages (transport/mumble, transport/discord, transport/mock).
package transport

import (
	"context"
	"errors"

	"github.com/shackpi/remotetrx/pkg/audio"
)

// ErrNotConnected is returned by [Transport.Send] while the transport has no
// live connection. Callers drop the frame and count it; they never block
// waiting for reconnection.
var ErrNotConnected = errors.New("transport: not connected")

// Transport is a duplex voice-chat connection.
//
// Implementations must be safe for concurrent use.
type Transport interface {
	// Connect establishes (or re-establishes) the connection using the
	// parameters the transport was constructed with. The supplied ctx governs
	// the connection attempt only. Calling Connect on an already connected
	// transport is an error.
	Connect(ctx context.Context) error

	// Send queues one outbound frame. It is non-blocking: when the internal
	// queue is full the oldest queued frame is evicted, and while disconnected
	// it returns [ErrNotConnected]. The frame's PCM is owned by the transport
	// after a successful Send.
	Send(f audio.Frame) error

	// Frames returns the inbound frame sequence. The channel is owned by the
	// transport and persists across reconnects; it is never closed — it simply
	// stops delivering once the transport is closed, so consumers must select
	// on their own cancellation as well. Frames are mono PCM re-chunked to the
	// bridge's negotiated frame size; no frames are delivered while
	// disconnected.
	Frames() <-chan audio.Frame

	// Connected reports whether a live connection exists right now.
	Connected() bool

	// Done returns a channel that is closed when the current connection is
	// lost. While disconnected it returns an already-closed channel. Each
	// successful Connect installs a fresh channel.
	Done() <-chan struct{}

	// Close tears the transport down permanently: disconnects and stops all
	// internal goroutines. The Frames channel stays open but goes silent.
	// Safe to call more than once.
	Close() error
}

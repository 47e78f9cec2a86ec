// Package mock provides an in-memory implementation of
// [transport.Transport] for use in unit tests.
//
// The mock records every sent frame and call count, lets tests deliver
// inbound frames with [Transport.Deliver], and simulates connection loss
// with [Transport.Drop].
package mock

import (
	"context"
	"sync"

	"github.com/shackpi/remotetrx/pkg/audio"
	"github.com/shackpi/remotetrx/pkg/transport"
)

// Compile-time interface assertion.
var _ transport.Transport = (*Transport)(nil)

// Transport is a mock implementation of [transport.Transport].
// Set the exported error fields before use; inspect the Call* fields after.
type Transport struct {
	mu sync.Mutex

	// ConnectError, when set, is returned by Connect.
	ConnectError error

	// SendError, when set, is returned by Send (after recording the call).
	SendError error

	// CallCountConnect records how many times Connect was called.
	CallCountConnect int

	// CallCountClose records how many times Close was called.
	CallCountClose int

	frames    chan audio.Frame
	sent      []audio.Frame
	connected bool
	done      chan struct{}
	closed    bool
}

var closedChan = func() chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}()

// New creates a disconnected mock transport buffering up to depth inbound frames.
func New(depth int) *Transport {
	if depth < 1 {
		depth = 16
	}
	return &Transport{
		frames: make(chan audio.Frame, depth),
		done:   closedChan,
	}
}

// Connect marks the transport connected, or returns ConnectError.
func (t *Transport) Connect(_ context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.CallCountConnect++
	if t.ConnectError != nil {
		return t.ConnectError
	}
	t.connected = true
	t.done = make(chan struct{})
	return nil
}

// Send records f, or returns an error while disconnected or when SendError is set.
func (t *Transport) Send(f audio.Frame) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.connected {
		return transport.ErrNotConnected
	}
	if t.SendError != nil {
		return t.SendError
	}
	t.sent = append(t.sent, f)
	return nil
}

// Frames returns the inbound frame channel fed by Deliver.
func (t *Transport) Frames() <-chan audio.Frame {
	return t.frames
}

// Connected reports the simulated connection state.
func (t *Transport) Connected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.connected
}

// Done returns the current connection's disconnect signal.
func (t *Transport) Done() <-chan struct{} {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.done
}

// Close marks the transport closed and drops the connection.
func (t *Transport) Close() error {
	t.mu.Lock()
	t.CallCountClose++
	t.closed = true
	t.mu.Unlock()
	t.Drop()
	return nil
}

// Deliver makes f available on the Frames channel. It blocks if the buffer
// is full.
func (t *Transport) Deliver(f audio.Frame) {
	t.frames <- f
}

// Drop simulates connection loss: Connected flips to false and the Done
// channel closes. Safe to call while already disconnected.
func (t *Transport) Drop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.connected {
		return
	}
	t.connected = false
	close(t.done)
}

// Sent returns a snapshot of all frames sent so far.
func (t *Transport) Sent() []audio.Frame {
	t.mu.Lock()
	defer t.mu.Unlock()
	snap := make([]audio.Frame, len(t.sent))
	copy(snap, t.sent)
	return snap
}

// SentCount returns the number of frames sent so far.
func (t *Transport) SentCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.sent)
}

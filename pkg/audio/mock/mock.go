// Package mock provides in-memory implementations of the [audio.Device],
// [audio.InputStream] and [audio.OutputStream] interfaces for use in unit
// tests.
//
// All mocks are safe for concurrent use. They record every method call so
// that tests can assert on call counts and arguments, and they expose
// exported fields the test can set to control return values.
//
// Typical usage:
//
//	in := mock.NewInputStream(8)
//	in.Push([]int16{1, 2, 3, 4})
//	out := &mock.OutputStream{}
//	dev := &mock.Device{InputResult: in, OutputResult: out}
package mock

import (
	"context"
	"errors"
	"sync"

	"github.com/shackpi/remotetrx/pkg/audio"
)

// ErrStreamClosed is returned by stream operations after Close.
var ErrStreamClosed = errors.New("mock: stream closed")

// ─── Device ───────────────────────────────────────────────────────────────────

// Device is a mock implementation of [audio.Device].
type Device struct {
	mu sync.Mutex

	// InputResult is returned by OpenInput. Defaults to a fresh stream.
	InputResult *InputStream

	// OutputResult is returned by OpenOutput. Defaults to a fresh stream.
	OutputResult *OutputStream

	// OpenInputError, when set, is returned by OpenInput instead.
	OpenInputError error

	// OpenOutputError, when set, is returned by OpenOutput instead.
	OpenOutputError error

	// CallCountOpenInput records how many times OpenInput was called.
	CallCountOpenInput int

	// CallCountOpenOutput records how many times OpenOutput was called.
	CallCountOpenOutput int
}

var _ audio.Device = (*Device)(nil)

// OpenInput returns InputResult or OpenInputError.
func (d *Device) OpenInput(_ string, _, _ int) (audio.InputStream, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.CallCountOpenInput++
	if d.OpenInputError != nil {
		return nil, d.OpenInputError
	}
	if d.InputResult == nil {
		d.InputResult = NewInputStream(16)
	}
	return d.InputResult, nil
}

// OpenOutput returns OutputResult or OpenOutputError.
func (d *Device) OpenOutput(_ string, _, _ int) (audio.OutputStream, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.CallCountOpenOutput++
	if d.OpenOutputError != nil {
		return nil, d.OpenOutputError
	}
	if d.OutputResult == nil {
		d.OutputResult = &OutputStream{}
	}
	return d.OutputResult, nil
}

// ─── InputStream ──────────────────────────────────────────────────────────────

// InputStream is a mock implementation of [audio.InputStream]. Tests feed it
// frames with [InputStream.Push]; ReadFrame delivers them in order.
type InputStream struct {
	frames chan []int16

	mu sync.Mutex

	// ReadError, when set, is returned by every subsequent ReadFrame.
	ReadError error

	// CallCountClose records how many times Close was called.
	CallCountClose int

	closed bool
}

var _ audio.InputStream = (*InputStream)(nil)

// NewInputStream creates an InputStream buffering up to depth pushed frames.
func NewInputStream(depth int) *InputStream {
	return &InputStream{frames: make(chan []int16, depth)}
}

// Push makes pcm available to the next ReadFrame. It blocks if the internal
// buffer is full.
func (s *InputStream) Push(pcm []int16) {
	s.frames <- pcm
}

// FailReads makes every subsequent ReadFrame return err.
func (s *InputStream) FailReads(err error) {
	s.mu.Lock()
	s.ReadError = err
	s.mu.Unlock()
}

// ReadFrame returns the next pushed frame, blocking until one is available,
// the stream is closed, or ctx is cancelled.
func (s *InputStream) ReadFrame(ctx context.Context) ([]int16, error) {
	s.mu.Lock()
	err := s.ReadError
	closed := s.closed
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	if closed {
		return nil, ErrStreamClosed
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case pcm, ok := <-s.frames:
		if !ok {
			return nil, ErrStreamClosed
		}
		return pcm, nil
	}
}

// Close marks the stream closed. Safe to call more than once.
func (s *InputStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CallCountClose++
	if !s.closed {
		s.closed = true
		close(s.frames)
	}
	return nil
}

// ─── OutputStream ─────────────────────────────────────────────────────────────

// OutputStream is a mock implementation of [audio.OutputStream] that records
// every written frame.
type OutputStream struct {
	mu sync.Mutex

	// WriteError, when set, is returned by every subsequent WriteFrame.
	WriteError error

	// CallCountClose records how many times Close was called.
	CallCountClose int

	written [][]int16
}

var _ audio.OutputStream = (*OutputStream)(nil)

// WriteFrame records pcm, or returns WriteError if set.
func (s *OutputStream) WriteFrame(pcm []int16) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.WriteError != nil {
		return s.WriteError
	}
	cp := make([]int16, len(pcm))
	copy(cp, pcm)
	s.written = append(s.written, cp)
	return nil
}

// FailWrites makes every subsequent WriteFrame return err.
func (s *OutputStream) FailWrites(err error) {
	s.mu.Lock()
	s.WriteError = err
	s.mu.Unlock()
}

// Written returns a snapshot of all frames written so far.
func (s *OutputStream) Written() [][]int16 {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := make([][]int16, len(s.written))
	copy(snap, s.written)
	return snap
}

// Close records the call. Safe to call more than once.
func (s *OutputStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CallCountClose++
	return nil
}

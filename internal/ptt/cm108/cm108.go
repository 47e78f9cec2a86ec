// Package cm108 keys a transmitter through the GPIO pins of a CM108/CM119
// USB sound chip, the PTT interface wired into most cheap radio-to-USB
// dongles. Keying is a single 4-byte HID output report written to the
// chip's hidraw node — no HID library is needed.
package cm108

import (
	"fmt"
	"os"
	"sync"

	"github.com/shackpi/remotetrx/internal/ptt"
)

// DefaultDevice is the usual hidraw node for the first attached dongle.
const DefaultDevice = "/dev/hidraw0"

// DefaultPin is GPIO 3, the pin most PTT dongles key through.
const DefaultPin = 3

// Compile-time interface assertion.
var _ ptt.Device = (*Device)(nil)

// Device drives one GPIO pin of a CM108-family chip.
//
// Device is safe for concurrent use, though in practice only the PTT
// controller's event loop writes to it.
type Device struct {
	path string
	pin  int

	mu     sync.Mutex
	f      *os.File
	closed bool
}

// Open opens the hidraw node at path and prepares to key GPIO pin (1–8).
func Open(path string, pin int) (*Device, error) {
	if pin < 1 || pin > 8 {
		return nil, fmt.Errorf("cm108: pin %d out of range 1-8", pin)
	}
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("cm108: open %q: %w", path, err)
	}
	return &Device{path: path, pin: pin, f: f}, nil
}

// Assert drives the key pin high or low. Idempotent — the chip latches the
// last written GPIO state.
func (d *Device) Assert(asserted bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return fmt.Errorf("cm108: device closed")
	}

	mask := byte(1 << (d.pin - 1))
	var data byte
	if asserted {
		data = mask
	}
	// HID output report: report ID, reserved, GPIO mask, GPIO data, reserved.
	report := []byte{0x00, 0x00, mask, data, 0x00}
	if _, err := d.f.Write(report); err != nil {
		return fmt.Errorf("cm108: write %q pin %d: %w", d.path, d.pin, err)
	}
	return nil
}

// Close releases the hidraw handle. Safe to call more than once.
func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true
	return d.f.Close()
}

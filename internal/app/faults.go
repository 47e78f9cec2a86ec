package app

import "fmt"

// FaultKind classifies a bridge failure per its source subsystem.
type FaultKind int

const (
	// FaultConfig — invalid startup parameter. Always fatal.
	FaultConfig FaultKind = iota

	// FaultHardware — audio stream open/read/write failure. Fatal at
	// startup; at runtime it degrades the affected pipeline only.
	FaultHardware

	// FaultPTT — hardware-key write failure. Never fatal: the controller
	// fails safe to Idle.
	FaultPTT

	// FaultTransport — connect/send/receive failure. Fatal at startup;
	// at runtime it triggers the reconnect policy.
	FaultTransport
)

// String returns the human-readable name of the fault kind.
func (k FaultKind) String() string {
	switch k {
	case FaultConfig:
		return "config"
	case FaultHardware:
		return "hardware"
	case FaultPTT:
		return "ptt"
	case FaultTransport:
		return "transport"
	default:
		return "unknown"
	}
}

// Fault wraps an error with the subsystem it came from.
type Fault struct {
	Kind FaultKind
	Err  error
}

// Error implements the error interface.
func (f *Fault) Error() string {
	return fmt.Sprintf("%s fault: %v", f.Kind, f.Err)
}

// Unwrap returns the wrapped cause.
func (f *Fault) Unwrap() error {
	return f.Err
}

// newFault wraps err as a Fault of the given kind.
func newFault(kind FaultKind, err error) *Fault {
	return &Fault{Kind: kind, Err: err}
}

package worker

import (
	"errors"
	"fmt"

	"github.com/sopimagenta/ganworker/ipc"
)

// FaultKind classifies conditions that stop the dispatch loop.
type FaultKind int

const (
	// FaultFraming indicates a truncated message, an oversize count or an
	// unknown tag. Message boundaries can no longer be trusted.
	FaultFraming FaultKind = iota
	// FaultContract indicates a request that cannot be framed in the current
	// session state, such as amplitudes sent before any archive was loaded.
	FaultContract
	// FaultTransport indicates a failure writing a reply.
	FaultTransport
	// FaultCanceled indicates the context was canceled.
	FaultCanceled
)

// String returns the kind name used in logs.
func (k FaultKind) String() string {
	switch k {
	case FaultFraming:
		return "framing"
	case FaultContract:
		return "contract"
	case FaultTransport:
		return "transport"
	case FaultCanceled:
		return "canceled"
	default:
		return "unknown"
	}
}

// Fault is the error returned when the dispatch loop enters the fault state.
type Fault struct {
	Kind FaultKind
	// Tag is the request being handled, if one was read.
	Tag    ipc.Tag
	HasTag bool
	Err    error
}

func (f *Fault) Error() string {
	if f.HasTag {
		return fmt.Sprintf("%s fault handling %s: %v", f.Kind, ipc.InTagName(f.Tag), f.Err)
	}
	return fmt.Sprintf("%s fault: %v", f.Kind, f.Err)
}

func (f *Fault) Unwrap() error {
	return f.Err
}

// AsFault extracts a *Fault from err's chain.
func AsFault(err error) (*Fault, bool) {
	var f *Fault
	if errors.As(err, &f) {
		return f, true
	}
	return nil, false
}

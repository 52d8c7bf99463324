package multi

import (
	"errors"
	"fmt"
)

// ErrUnavailable is returned by every forwarding operation after Terminate
// has completed.
var ErrUnavailable = errors.New("multi: worker terminated, probe is unavailable")

// ErrAlreadyInstantiated is returned by New when the selected start strategy
// would share this process's state with the worker while a live probe
// controller already exists in this process.
var ErrAlreadyInstantiated = errors.New("multi: a probe controller is already live in this process")

// UnknownOperationError reports a call to a name outside the probe.Controller
// operation surface. It is raised before any transport interaction.
type UnknownOperationError struct {
	Op string
}

func (e *UnknownOperationError) Error() string {
	return fmt.Sprintf("multi: unknown operation %q", e.Op)
}

// TransportError reports that the channel to the worker closed, or the worker
// died, before a result arrived. It is distinct from a remote operation
// failure and is not recoverable for this Proxy.
type TransportError struct {
	Stage string // "send" or "receive"
	Err   error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("multi: worker channel failed during %s: %s", e.Stage, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

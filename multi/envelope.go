package multi

import (
	"encoding/gob"

	"github.com/probemux/probemux/probe"
)

// CallEnvelope is one forwarded operation. Envelopes carry no correlation
// id: only one call is ever in flight per worker, so request/response
// alternation is strict by construction.
type CallEnvelope struct {
	// Op is the operation name, matching a method of probe.Controller.
	Op string

	// Args are the positional arguments. Values must be transportable:
	// plain data only, never a live handle.
	Args []any

	// Opts are named options for operations that accept an option map as
	// their final parameter (e.g. QSPIInit).
	Opts map[string]any
}

// ResultEnvelope is the reply to one CallEnvelope: either a value (possibly
// nil for void operations) or a marshaled failure, never both.
type ResultEnvelope struct {
	Value any
	Err   *ErrorRecord
}

// Error record kinds.
const (
	errKindProbe    = "probe"    // classified probe.Error
	errKindInternal = "internal" // plain error from the driver or dispatcher
	errKindPanic    = "panic"    // recovered panic during the operation
)

// ErrorRecord is a failure in transportable form. An error value itself
// cannot cross the process boundary, so the worker ships classification,
// message, and a captured stack trace, and the host rebuilds a matching
// error on receipt.
type ErrorRecord struct {
	Kind        string
	Code        probe.ErrCode
	Message     string
	RemoteTrace string
}

// reify rebuilds a host-side error of the same classification the worker
// observed.
func (r *ErrorRecord) reify() error {
	switch r.Kind {
	case errKindProbe:
		return &probe.Error{Code: r.Code, Message: r.Message}
	case errKindPanic:
		return probe.Errorf(probe.CodeInternalError, "remote operation panicked: %s", r.Message)
	default:
		return probe.Errorf(probe.CodeInternalError, "%s", r.Message)
	}
}

// RegisterTransportable registers a concrete value type so it can cross the
// worker boundary inside an envelope. Drivers whose operations exchange
// custom value types call this from an init function.
func RegisterTransportable(v any) {
	gob.Register(v)
}

func init() {
	// Every value kind the Controller surface exchanges.
	for _, v := range []any{
		false,
		int(0),
		int64(0),
		uint8(0),
		uint32(0),
		uint64(0),
		float64(0),
		"",
		[]byte(nil),
		[]uint32(nil),
		[]any(nil),
		map[string]any(nil),
		probe.RTTDirection(0),
		probe.DeviceInfo{},
		probe.RTTChannelCounts{},
		probe.RTTChannelInfo{},
	} {
		gob.Register(v)
	}
}

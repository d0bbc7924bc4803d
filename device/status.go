package device

import "fmt"

// Status is the result code returned by every device pipeline call.
// It mirrors the driver-level status word so failures stay diagnosable
// at the call site instead of being flattened into opaque errors.
type Status int

const (
	// StatusOK indicates the call succeeded
	StatusOK Status = iota
	// StatusTimeout indicates a bounded wait expired with no result
	StatusTimeout
	// StatusNotReady indicates the device has no data yet (transient)
	StatusNotReady
	// StatusEndOfStream indicates the sensor stream has terminated
	StatusEndOfStream
	// StatusInvalidArgument indicates a malformed parameter or format mismatch
	StatusInvalidArgument
	// StatusInvalidHandle indicates a released or never-created handle was used
	StatusInvalidHandle
	// StatusInternalError indicates a driver-level failure
	StatusInternalError
	// StatusBufferFull indicates the streamer slot is already occupied
	StatusBufferFull
)

// Name returns the symbolic name of the status code
func (s Status) Name() string {
	switch s {
	case StatusOK:
		return "OK"
	case StatusTimeout:
		return "TIMEOUT"
	case StatusNotReady:
		return "NOT_READY"
	case StatusEndOfStream:
		return "END_OF_STREAM"
	case StatusInvalidArgument:
		return "INVALID_ARGUMENT"
	case StatusInvalidHandle:
		return "INVALID_HANDLE"
	case StatusInternalError:
		return "INTERNAL_ERROR"
	case StatusBufferFull:
		return "BUFFER_FULL"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", int(s))
	}
}

// OK reports whether the status is StatusOK
func (s Status) OK() bool {
	return s == StatusOK
}

// Err returns nil for StatusOK and a StatusError otherwise
func (s Status) Err() error {
	if s == StatusOK {
		return nil
	}
	return &StatusError{Status: s}
}

// StatusError wraps a non-OK Status as an error
type StatusError struct {
	Status Status
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("device status %s", e.Status.Name())
}

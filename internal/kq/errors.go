package kq

import (
	"errors"
	"fmt"
)

// Reasons a snapshot could not be loaded. Consumers log these and render the
// placeholder; they are never surfaced to the widget host.
var (
	ErrStoreUnavailable  = errors.New("shared store unavailable")
	ErrSnapshotMissing   = errors.New("snapshot not found")
	ErrSnapshotNotText   = errors.New("snapshot is not valid UTF-8 text")
	ErrSnapshotMalformed = errors.New("snapshot is malformed")
)

// ErrNotFound is returned by stores for a key or record that does not exist.
var ErrNotFound = errors.New("not found")

// ErrHealthDataUnavailable is returned by a HealthStore on a device without
// health data support.
var ErrHealthDataUnavailable = errors.New("health data is not available on this device")

// ErrorKind classifies bridge failures.
type ErrorKind string

const (
	KindCapabilityUnavailable ErrorKind = "capability-unavailable"
	KindPermissionDenied      ErrorKind = "permission-denied"
	KindMalformedRequest      ErrorKind = "malformed-request"
	KindStoreFailure          ErrorKind = "store-failure"
)

// BridgeError is the error half of every bridge response: a human readable
// message plus the underlying cause, if any.
type BridgeError struct {
	Kind    ErrorKind
	Message string
	Cause   error
}

func (e *BridgeError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *BridgeError) Unwrap() error { return e.Cause }

func newBridgeError(kind ErrorKind, cause error, format string, args ...any) *BridgeError {
	return &BridgeError{Kind: kind, Message: fmt.Sprintf(format, args...), Cause: cause}
}

func malformed(format string, args ...any) *BridgeError {
	return newBridgeError(KindMalformedRequest, nil, format, args...)
}

// IsKind reports whether err is a *BridgeError of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var be *BridgeError
	return errors.As(err, &be) && be.Kind == kind
}

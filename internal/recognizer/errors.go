package recognizer

import "fmt"

// ErrorKind is the error taxonomy surfaced to callers.
type ErrorKind string

const (
	KindUnsupportedEnvironment ErrorKind = "unsupported-environment"
	KindPermissionDenied       ErrorKind = "permission-denied"
	KindDeviceUnavailable      ErrorKind = "device-unavailable"
	KindNetworkError           ErrorKind = "network-error"
	// KindTransient errors were recovered automatically; informational only.
	KindTransient ErrorKind = "transient"
)

// Error carries a classified recognition failure.
type Error struct {
	Kind ErrorKind
	Code string
}

func (e *Error) Error() string {
	return fmt.Sprintf("recognition error %s (%s)", e.Kind, e.Code)
}

// Fatal reports whether the error ends the current attempt rather than
// being recovered by an automatic restart.
func (e *Error) Fatal() bool {
	switch e.Kind {
	case KindPermissionDenied, KindDeviceUnavailable, KindUnsupportedEnvironment:
		return true
	}
	return false
}

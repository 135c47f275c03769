package remote

import (
	"errors"
	"fmt"
)

var (
	// ErrUnauthorized indicates the backend rejected the session (HTTP 401).
	ErrUnauthorized = errors.New("unauthorized")

	// ErrRemoteRejected indicates a response envelope with a non-zero code.
	ErrRemoteRejected = errors.New("remote rejected request")

	// ErrUnexpectedStatus indicates a non-2xx HTTP status other than 401.
	ErrUnexpectedStatus = errors.New("unexpected HTTP status")

	// ErrTransport indicates the request never produced an HTTP response.
	ErrTransport = errors.New("transport failure")

	// ErrInvalidResponse indicates a body that could not be decoded.
	ErrInvalidResponse = errors.New("invalid response")

	// ErrMissingSerialID indicates a successful start-run response without a serial id.
	ErrMissingSerialID = errors.New("missing serial id")

	// ErrInvalidParams indicates params rejected by the canvas parameter schema.
	ErrInvalidParams = errors.New("invalid run params")
)

// RemoteError wraps a failed call to the workflow backend.
type RemoteError struct {
	Op         string // "StartRun" or "FetchTrace"
	CanvasID   string
	StatusCode int    // HTTP status, zero when no response was received
	Code       int    // envelope code, zero unless the backend rejected the request
	Message    string // envelope msg or a body excerpt
	Err        error  // one of the sentinel errors above
	Cause      error  // underlying error, if any
}

func (e *RemoteError) Error() string {
	msg := fmt.Sprintf("%s canvas %s: %v", e.Op, e.CanvasID, e.Err)

	if e.Code != 0 {
		msg += fmt.Sprintf(" (code %d)", e.Code)
	} else if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (status %d)", e.StatusCode)
	}

	if e.Message != "" {
		msg += ": " + e.Message
	}

	if e.Cause != nil {
		msg += fmt.Sprintf(": %v", e.Cause)
	}

	return msg
}

func (e *RemoteError) Unwrap() []error {
	errs := make([]error, 0, 2)

	if e.Err != nil {
		errs = append(errs, e.Err)
	}

	if e.Cause != nil {
		errs = append(errs, e.Cause)
	}

	return errs
}

// IsUnauthorized reports whether err means the host application must
// invalidate its session.
func IsUnauthorized(err error) bool {
	return errors.Is(err, ErrUnauthorized)
}

// IsRejected reports whether the backend answered with a non-zero envelope code.
func IsRejected(err error) bool {
	return errors.Is(err, ErrRemoteRejected)
}

// IsInvalidParams reports whether params failed local schema validation.
func IsInvalidParams(err error) bool {
	return errors.Is(err, ErrInvalidParams)
}

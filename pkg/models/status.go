package models

import "strings"

// Status is the canonical execution state of a node, an iteration or a whole run.
type Status string

const (
	StatusUnknown  Status = "unknown"
	StatusIdle     Status = "idle"
	StatusPending  Status = "pending"
	StatusRunning  Status = "running"
	StatusPaused   Status = "paused"
	StatusSuccess  Status = "success"
	StatusError    Status = "error"
	StatusCanceled Status = "canceled"
)

// statusAliases maps every spelling the remote executor is known to use onto
// the canonical status.
var statusAliases = map[string]Status{
	"idle":       StatusIdle,
	"pending":    StatusPending,
	"waiting":    StatusPending,
	"queued":     StatusPending,
	"running":    StatusRunning,
	"processing": StatusRunning,
	"paused":     StatusPaused,
	"success":    StatusSuccess,
	"succeeded":  StatusSuccess,
	"completed":  StatusSuccess,
	"finished":   StatusSuccess,
	"error":      StatusError,
	"failed":     StatusError,
	"failure":    StatusError,
	"canceled":   StatusCanceled,
	"cancelled":  StatusCanceled,
	"aborted":    StatusCanceled,
}

// ParseStatus normalizes a raw remote status string. Unrecognized values map
// to StatusUnknown.
func ParseStatus(raw string) Status {
	if status, ok := statusAliases[strings.ToLower(strings.TrimSpace(raw))]; ok {
		return status
	}

	return StatusUnknown
}

// IsTerminal reports whether no further transitions are expected.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusSuccess, StatusError, StatusCanceled:
		return true
	default:
		return false
	}
}

// InFlight reports whether a run in this status should keep being polled.
func (s Status) InFlight() bool {
	return !s.IsTerminal()
}

func (s Status) IsFailure() bool {
	return s == StatusError
}

func (s Status) String() string {
	return string(s)
}

package isapi

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel error kinds for the ISAPI client. Wrapped errors carry request
// context; match with errors.Is.
var (
	ErrUnauthorized  = errors.New("isapi: unauthorized")
	ErrForbidden     = errors.New("isapi: forbidden")
	ErrConnectivity  = errors.New("isapi: device unreachable")
	ErrUnsupported   = errors.New("isapi: unsupported endpoint")
	ErrMalformed     = errors.New("isapi: malformed payload")
	ErrUnknownEvent  = errors.New("isapi: unknown event type")
	ErrMutexConflict = errors.New("isapi: mutually exclusive function enabled")
)

// StatusError reports a non-2xx HTTP status from the device.
type StatusError struct {
	Method string
	Path   string
	Status int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("isapi: %s %s returned status %d", e.Method, e.Path, e.Status)
}

// Unwrap maps the HTTP status onto the sentinel kind so that
// errors.Is(err, ErrForbidden) and friends work.
func (e *StatusError) Unwrap() error {
	switch e.Status {
	case 401:
		return ErrUnauthorized
	case 403:
		return ErrForbidden
	default:
		return ErrUnsupported
	}
}

// MutexIssue is one entry of a mutexFunction probe response: a function that
// is already enabled and the channels it occupies.
type MutexIssue struct {
	Function string `json:"mutexFunction"`
	Channels []int  `json:"channelID"`
}

// MutexConflictError rejects an event enable because the device reports a
// mutually exclusive function already enabled on the same channel.
type MutexConflictError struct {
	EventID string
	Issues  []MutexIssue
}

func (e *MutexConflictError) Error() string {
	parts := make([]string, 0, len(e.Issues))
	for _, is := range e.Issues {
		parts = append(parts, fmt.Sprintf("%s on channels %v", is.Function, is.Channels))
	}
	return fmt.Sprintf("isapi: cannot enable %s, mutually exclusive with %s", e.EventID, strings.Join(parts, ", "))
}

func (e *MutexConflictError) Unwrap() error { return ErrMutexConflict }

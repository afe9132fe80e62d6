package domain

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for programmatic handling with errors.Is.
var (
	ErrUnsupportedFormat = errors.New("unsupported file format")
	ErrNetwork           = errors.New("network failure")
	ErrJobFailed         = errors.New("job failed")
	ErrPollTimeout       = errors.New("polling timed out")
	ErrNotFound          = errors.New("not found")
	ErrDiffHasErrors     = errors.New("diff contains unresolved error rows")
	ErrInvalidStage      = errors.New("operation not valid in current stage")
)

// NetworkError wraps a transport-level failure with the operation that hit
// it. Distinguishable from server-side errors via errors.Is(err, ErrNetwork).
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s: network failure: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

func (e *NetworkError) Is(target error) bool { return target == ErrNetwork }

// ServerError is a non-2xx response from the directory service.
type ServerError struct {
	Op         string
	StatusCode int
	Message    string
}

func (e *ServerError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: server returned %d: %s", e.Op, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s: server returned %d", e.Op, e.StatusCode)
}

// JobFailureError carries the server-supplied detail of a job that reached
// the failure status.
type JobFailureError struct {
	JobID  string
	Kind   JobKind
	Detail string
}

func (e *JobFailureError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s job %s failed: %s", e.Kind, e.JobID, e.Detail)
	}
	return fmt.Sprintf("%s job %s failed", e.Kind, e.JobID)
}

func (e *JobFailureError) Is(target error) bool { return target == ErrJobFailed }

// TimeoutError reports that polling exhausted its attempt budget without
// observing a terminal status.
type TimeoutError struct {
	JobID    string
	Attempts int
	Interval time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("job %s still pending after %d polls at %s intervals", e.JobID, e.Attempts, e.Interval)
}

func (e *TimeoutError) Is(target error) bool { return target == ErrPollTimeout }

// NotFoundError reports a lookup for an unknown or expired identifier.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Resource, e.ID)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// FormatError reports a client-side rejection of an upload file before any
// request is issued.
type FormatError struct {
	FileName    string
	ContentType string
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("file %q (content type %q) is not an accepted format", e.FileName, e.ContentType)
}

func (e *FormatError) Is(target error) bool { return target == ErrUnsupportedFormat }

// InvalidCategoryError reports an out-of-range category wire code.
type InvalidCategoryError struct {
	Code int
}

func (e *InvalidCategoryError) Error() string {
	return fmt.Sprintf("invalid category code %d", e.Code)
}

package worker

import (
	"context"
	"errors"
)

// JobHandler executes one job type, e.g. JobTypeRecordUsage.
type JobHandler interface {
	// Type must match the job_type column in the jobs table.
	Type() string

	// Handle executes the job. payload is the raw JSON stored at enqueue
	// time. Return NewPermanentError for failures a retry cannot fix.
	Handle(ctx context.Context, payload []byte) error
}

// PermanentError marks a job failure that should not be retried, such as a
// malformed payload. The job is marked 'failed' immediately.
type PermanentError struct {
	Err error
}

// Error implements the error interface.
func (e *PermanentError) Error() string {
	return e.Err.Error()
}

// Unwrap allows errors.Is and errors.As to work with PermanentError.
func (e *PermanentError) Unwrap() error {
	return e.Err
}

// NewPermanentError wraps err as a PermanentError.
func NewPermanentError(err error) error {
	return &PermanentError{Err: err}
}

// IsPermanent reports whether err wraps a PermanentError.
func IsPermanent(err error) bool {
	var permErr *PermanentError
	return errors.As(err, &permErr)
}

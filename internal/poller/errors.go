package poller

import (
	"errors"
	"fmt"
)

var (
	// ErrJobActive is returned by Submit while a job is being tracked.
	ErrJobActive = errors.New("poller already tracking a job")
	// ErrNoJob is returned by Wait when nothing was submitted.
	ErrNoJob = errors.New("no job submitted")
	// ErrCancelled ends a Wait after Cancel.
	ErrCancelled = errors.New("job cancelled")
	// ErrReset ends a Wait after Reset.
	ErrReset = errors.New("poller reset")
)

// SubmissionError reports a rejected payload or a transport failure on
// submit. No job is active afterwards.
type SubmissionError struct {
	Type string
	Err  error
}

func (e *SubmissionError) Error() string {
	return fmt.Sprintf("submit %s: %v", e.Type, e.Err)
}

func (e *SubmissionError) Unwrap() error { return e.Err }

// PollError is a transient failure to read status. Polling continues.
type PollError struct {
	JobID   string
	Attempt int
	Err     error
}

func (e *PollError) Error() string {
	return fmt.Sprintf("poll %s (attempt %d): %v", e.JobID, e.Attempt, e.Err)
}

func (e *PollError) Unwrap() error { return e.Err }

// JobFailedError is a terminal failure reported by the job service.
type JobFailedError struct {
	JobID   string
	Message string
}

func (e *JobFailedError) Error() string {
	return fmt.Sprintf("job %s failed: %s", e.JobID, e.Message)
}

// APIError is a non-2xx response from the job service.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("job service returned %d", e.StatusCode)
	}
	return fmt.Sprintf("job service returned %d: %s", e.StatusCode, e.Message)
}

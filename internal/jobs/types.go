package jobs

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/fyrsmithlabs/finplan/internal/projection"
)

var (
	ErrJobNotFound = errors.New("job not found")
	ErrQueueFull   = errors.New("job queue full")
	ErrUnknownType = errors.New("unknown job type")
	ErrClosed      = errors.New("job service closed")
	ErrInvalidData = errors.New("invalid job data")
)

// CancelledMessage is the error recorded on a cancelled job.
const CancelledMessage = "job cancelled"

// Status is a job's lifecycle state.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Terminal reports whether no further transitions are possible.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

var transitions = map[Status][]Status{
	StatusPending: {StatusRunning, StatusFailed},
	StatusRunning: {StatusCompleted, StatusFailed},
}

// CanTransitionTo reports whether s -> next is a legal forward move.
func (s Status) CanTransitionTo(next Status) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Rank orders statuses along the lifecycle; terminal statuses share a rank.
func (s Status) Rank() int {
	switch s {
	case StatusPending:
		return 0
	case StatusRunning:
		return 1
	case StatusCompleted, StatusFailed:
		return 2
	}
	return -1
}

// TransitionError reports an illegal status change.
type TransitionError struct {
	ID   string
	From Status
	To   Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("job %s: invalid transition %s -> %s", e.ID, e.From, e.To)
}

// Type is a job-type tag: one of the projection message types or a batch.
type Type string

// TypeBatch runs a list of projections, advancing progress per item.
const TypeBatch Type = "PROJECTION_BATCH"

// Types returns every accepted job type.
func Types() []Type {
	types := make([]Type, 0, 5)
	for _, t := range projection.MessageTypes() {
		types = append(types, Type(t))
	}
	return append(types, TypeBatch)
}

// ParseType validates s as a job type.
func ParseType(s string) (Type, error) {
	if s == string(TypeBatch) || projection.MessageType(s).Valid() {
		return Type(s), nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownType, s)
}

// BatchItem is one element of a PROJECTION_BATCH payload.
type BatchItem struct {
	Type projection.MessageType `json:"type"`
	Data json.RawMessage        `json:"data"`
}

// BatchResult is one element of a PROJECTION_BATCH result.
type BatchResult struct {
	Type   projection.MessageType `json:"type"`
	Result json.RawMessage        `json:"result"`
}

// JobStatus is the wire view of a job, as returned by status queries.
type JobStatus struct {
	Status   Status          `json:"status"`
	Progress int             `json:"progress,omitempty"`
	Result   json.RawMessage `json:"result,omitempty"`
	Error    string          `json:"error,omitempty"`
}

// Job is the registry record for one submission.
type Job struct {
	ID         string          `json:"id"`
	Owner      string          `json:"owner"`
	Type       Type            `json:"type"`
	Data       json.RawMessage `json:"-"`
	Status     Status          `json:"status"`
	Progress   int             `json:"progress"`
	Result     json.RawMessage `json:"result,omitempty"`
	Error      string          `json:"error,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
	StartedAt  time.Time       `json:"started_at,omitempty"`
	FinishedAt time.Time       `json:"finished_at,omitempty"`
}

// Snapshot returns the wire view of j.
func (j Job) Snapshot() JobStatus {
	return JobStatus{
		Status:   j.Status,
		Progress: j.Progress,
		Result:   j.Result,
		Error:    j.Error,
	}
}

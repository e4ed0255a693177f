package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/fyrsmithlabs/finplan/internal/logging"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const defaultOwner = "local"

type ownerCtxKey struct{}

// WithOwner tags jobs created with ctx with an owner, used in event subjects.
func WithOwner(ctx context.Context, owner string) context.Context {
	return context.WithValue(ctx, ownerCtxKey{}, owner)
}

func ownerFromContext(ctx context.Context) string {
	owner, _ := ctx.Value(ownerCtxKey{}).(string)
	// Subject tokens cannot contain separators or wildcards.
	owner = strings.Map(func(r rune) rune {
		switch r {
		case '.', '*', '>', ' ', '\t', '\n':
			return '_'
		}
		return r
	}, owner)
	if owner == "" {
		return defaultOwner
	}
	return owner
}

type entry struct {
	mu     sync.Mutex
	job    Job
	cancel context.CancelFunc
	expiry *time.Timer
}

// Registry is the in-memory job table. All methods are safe for concurrent use.
type Registry struct {
	jobs      sync.Map // job id -> *entry
	publisher Publisher
	logger    *logging.Logger
	ttl       time.Duration
}

// NewRegistry creates a registry. Terminal jobs are dropped after ttl;
// ttl <= 0 keeps them until Close.
func NewRegistry(publisher Publisher, ttl time.Duration, logger *logging.Logger) *Registry {
	if publisher == nil {
		publisher = NopPublisher{}
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Registry{
		publisher: publisher,
		logger:    logger.Named("registry"),
		ttl:       ttl,
	}
}

// Create stores a new pending job and returns it.
func (r *Registry) Create(ctx context.Context, typ Type, data json.RawMessage) Job {
	job := Job{
		ID:        uuid.NewString(),
		Owner:     ownerFromContext(ctx),
		Type:      typ,
		Data:      data,
		Status:    StatusPending,
		CreatedAt: time.Now(),
	}
	r.jobs.Store(job.ID, &entry{job: job})
	return job
}

// Get returns a copy of the job.
func (r *Registry) Get(id string) (Job, error) {
	e, err := r.load(id)
	if err != nil {
		return Job{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.job, nil
}

// Len returns the number of jobs held in memory.
func (r *Registry) Len() int {
	n := 0
	r.jobs.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

// Start moves a pending job to running.
func (r *Registry) Start(ctx context.Context, id string) error {
	job, err := r.update(id, func(j *Job) error {
		if err := transition(j, StatusRunning); err != nil {
			return err
		}
		j.StartedAt = time.Now()
		return nil
	})
	if err != nil {
		return err
	}
	r.publish(ctx, job, EventStarted)
	return nil
}

// Progress records percent for a running job. Values are clamped to
// [0,100] and never move backwards.
func (r *Registry) Progress(ctx context.Context, id string, percent int) error {
	job, err := r.update(id, func(j *Job) error {
		if j.Status != StatusRunning {
			return &TransitionError{ID: j.ID, From: j.Status, To: StatusRunning}
		}
		percent = min(max(percent, 0), 100)
		if percent > j.Progress {
			j.Progress = percent
		}
		return nil
	})
	if err != nil {
		return err
	}
	r.publish(ctx, job, EventProgress)
	return nil
}

// Complete moves a running job to completed with result.
func (r *Registry) Complete(ctx context.Context, id string, result json.RawMessage) error {
	job, err := r.update(id, func(j *Job) error {
		if err := transition(j, StatusCompleted); err != nil {
			return err
		}
		j.Progress = 100
		j.Result = result
		return nil
	})
	if err != nil {
		return err
	}
	r.publish(ctx, job, EventCompleted)
	return nil
}

// Fail moves a pending or running job to failed with msg.
func (r *Registry) Fail(ctx context.Context, id, msg string) error {
	job, err := r.update(id, func(j *Job) error {
		if err := transition(j, StatusFailed); err != nil {
			return err
		}
		j.Error = msg
		return nil
	})
	if err != nil {
		return err
	}
	r.publish(ctx, job, EventFailed)
	return nil
}

// Cancel fails a non-terminal job with CancelledMessage and stops its
// execution context. Cancelling a terminal job is a no-op.
func (r *Registry) Cancel(ctx context.Context, id string) (Job, error) {
	e, err := r.load(id)
	if err != nil {
		return Job{}, err
	}

	e.mu.Lock()
	if e.job.Status.Terminal() {
		job := e.job
		e.mu.Unlock()
		return job, nil
	}
	_ = transition(&e.job, StatusFailed)
	e.job.Error = CancelledMessage
	cancel := e.cancel
	r.scheduleExpiry(e)
	job := e.job
	e.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	r.publish(ctx, job, EventFailed)
	return job, nil
}

// attach binds a running context's cancel func to a pending job. It returns
// false if the job is no longer pending.
func (r *Registry) attach(id string, cancel context.CancelFunc) bool {
	e, err := r.load(id)
	if err != nil {
		return false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.job.Status != StatusPending {
		return false
	}
	e.cancel = cancel
	return true
}

// Remove deletes a job without publishing anything.
func (r *Registry) Remove(id string) {
	if v, ok := r.jobs.LoadAndDelete(id); ok {
		e := v.(*entry)
		e.mu.Lock()
		if e.expiry != nil {
			e.expiry.Stop()
		}
		e.mu.Unlock()
	}
}

// Close stops pending expiry timers.
func (r *Registry) Close() {
	r.jobs.Range(func(_, v any) bool {
		e := v.(*entry)
		e.mu.Lock()
		if e.expiry != nil {
			e.expiry.Stop()
		}
		e.mu.Unlock()
		return true
	})
}

func (r *Registry) load(id string) (*entry, error) {
	v, ok := r.jobs.Load(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	return v.(*entry), nil
}

func (r *Registry) update(id string, fn func(*Job) error) (Job, error) {
	e, err := r.load(id)
	if err != nil {
		return Job{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := fn(&e.job); err != nil {
		return Job{}, err
	}
	if e.job.Status.Terminal() {
		e.cancel = nil
		r.scheduleExpiry(e)
	}
	return e.job, nil
}

// scheduleExpiry must be called with e.mu held.
func (r *Registry) scheduleExpiry(e *entry) {
	if e.job.FinishedAt.IsZero() {
		e.job.FinishedAt = time.Now()
	}
	if r.ttl <= 0 || e.expiry != nil {
		return
	}
	id := e.job.ID
	e.expiry = time.AfterFunc(r.ttl, func() {
		r.jobs.CompareAndDelete(id, e)
	})
}

func (r *Registry) publish(ctx context.Context, job Job, kind EventKind) {
	if err := r.publisher.Publish(ctx, newEvent(job, kind)); err != nil {
		r.logger.Warn(logging.WithJobID(ctx, job.ID), "publish job event failed",
			zap.String("event", string(kind)),
			zap.Error(err),
		)
	}
}

func transition(j *Job, to Status) error {
	if !j.Status.CanTransitionTo(to) {
		return &TransitionError{ID: j.ID, From: j.Status, To: to}
	}
	j.Status = to
	return nil
}

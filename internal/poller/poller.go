package poller

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/fyrsmithlabs/finplan/internal/jobs"
	"github.com/fyrsmithlabs/finplan/internal/logging"
	"go.uber.org/zap"
)

const (
	DefaultInterval       = 1500 * time.Millisecond
	defaultRequestTimeout = 10 * time.Second
)

// Callbacks receive the terminal outcome of a job. Exactly one fires, once,
// unless the job is cancelled or reset first.
type Callbacks struct {
	OnComplete func(result json.RawMessage)
	OnError    func(err error)
}

// Option configures a Poller.
type Option func(*Poller)

// WithInterval sets the delay between the end of one poll and the next.
func WithInterval(d time.Duration) Option {
	return func(p *Poller) {
		if d > 0 {
			p.interval = d
		}
	}
}

// WithRequestTimeout bounds each status request.
func WithRequestTimeout(d time.Duration) Option {
	return func(p *Poller) {
		if d > 0 {
			p.requestTimeout = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(p *Poller) {
		if l != nil {
			p.logger = l
		}
	}
}

// outcome is the result a Wait call observes.
type outcome struct {
	ch     chan struct{}
	status jobs.JobStatus
	err    error
}

func (o *outcome) resolve(status jobs.JobStatus, err error) {
	o.status = status
	o.err = err
	close(o.ch)
}

// Poller tracks one job at a time. It is safe for concurrent use.
type Poller struct {
	transport      Transport
	interval       time.Duration
	requestTimeout time.Duration
	logger         *logging.Logger

	mu        sync.Mutex
	gen       uint64 // bumped by Submit, Cancel and Reset; stale polls compare against it
	active    bool
	jobID     string
	status    jobs.JobStatus
	attempts  int
	callbacks Callbacks
	timer     *time.Timer
	pollCtx   context.Context
	stopPolls context.CancelFunc
	result    *outcome

	// cancelGen is the generation of a Submit that Cancel interrupted
	// before the service returned an id.
	cancelGen uint64

	subscribers map[int]func(jobs.JobStatus)
	nextSub     int
}

// New creates an idle Poller.
func New(transport Transport, opts ...Option) *Poller {
	p := &Poller{
		transport:      transport,
		interval:       DefaultInterval,
		requestTimeout: defaultRequestTimeout,
		logger:         logging.NewNop(),
		subscribers:    make(map[int]func(jobs.JobStatus)),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = p.logger.Named("poller")
	return p
}

// Submit sends a job and starts polling it immediately. The type must be a
// known job type. On failure a *SubmissionError is returned and no job is
// active.
func (p *Poller) Submit(ctx context.Context, typ string, data json.RawMessage, cb Callbacks) (string, error) {
	if _, err := jobs.ParseType(typ); err != nil {
		return "", &SubmissionError{Type: typ, Err: err}
	}

	p.mu.Lock()
	if p.active {
		p.mu.Unlock()
		return "", ErrJobActive
	}
	p.gen++
	gen := p.gen
	p.active = true
	p.jobID = ""
	p.status = jobs.JobStatus{}
	p.attempts = 0
	p.callbacks = cb
	p.result = &outcome{ch: make(chan struct{})}
	p.mu.Unlock()

	id, err := p.transport.Submit(ctx, typ, data)

	p.mu.Lock()
	if gen != p.gen {
		// Cancelled or reset while the request was in flight. Only Cancel
		// reaches the service.
		cancelled := p.cancelGen == gen
		p.mu.Unlock()
		if !cancelled {
			return "", &SubmissionError{Type: typ, Err: ErrReset}
		}
		if err == nil {
			p.cancelRemote(context.WithoutCancel(ctx), id)
		}
		return "", &SubmissionError{Type: typ, Err: ErrCancelled}
	}
	if err != nil {
		p.active = false
		p.callbacks = Callbacks{}
		p.result.resolve(jobs.JobStatus{}, err)
		p.mu.Unlock()
		return "", &SubmissionError{Type: typ, Err: err}
	}

	p.jobID = id
	p.status = jobs.JobStatus{Status: jobs.StatusPending}
	p.pollCtx, p.stopPolls = context.WithCancel(context.Background())
	p.timer = time.AfterFunc(0, func() { p.poll(gen) })
	p.mu.Unlock()

	p.logger.Debug(logging.WithJobID(ctx, id), "job submitted", zap.String("type", typ))
	return id, nil
}

func (p *Poller) poll(gen uint64) {
	p.mu.Lock()
	if gen != p.gen || !p.active {
		p.mu.Unlock()
		return
	}
	id := p.jobID
	p.attempts++
	attempt := p.attempts
	reqCtx, cancel := context.WithTimeout(p.pollCtx, p.requestTimeout)
	p.mu.Unlock()
	defer cancel()

	ctx := logging.WithJobID(context.Background(), id)
	p.logger.Trace(ctx, "polling job status", zap.Int("attempt", attempt))

	st, err := p.transport.Status(reqCtx, id)
	if err == nil && st.Status.Rank() < 0 {
		err = fmt.Errorf("unexpected status %q", st.Status)
	}

	p.mu.Lock()
	if gen != p.gen || !p.active {
		p.mu.Unlock()
		p.logger.Trace(ctx, "discarding stale poll response")
		return
	}

	if err != nil {
		perr := &PollError{JobID: id, Attempt: attempt, Err: err}
		p.timer = time.AfterFunc(p.interval, func() { p.poll(gen) })
		p.mu.Unlock()
		p.logger.Warn(ctx, "poll failed", zap.Error(perr))
		return
	}

	next, changed := merge(p.status, st)
	if !changed {
		p.timer = time.AfterFunc(p.interval, func() { p.poll(gen) })
		p.mu.Unlock()
		return
	}
	p.status = next
	subs := p.subscriberList()

	var fire func()
	if next.Status.Terminal() {
		fire = p.finishLocked(next)
	}
	p.mu.Unlock()

	// The next poll is armed only after fan-out, so subscribers see
	// updates one at a time and in order.
	for _, fn := range subs {
		fn(next)
	}
	if fire != nil {
		fire()
		return
	}

	p.mu.Lock()
	if gen == p.gen && p.active {
		p.timer = time.AfterFunc(p.interval, func() { p.poll(gen) })
	}
	p.mu.Unlock()
}

// finishLocked ends tracking on a terminal status and returns the callback
// to invoke after the lock is released.
func (p *Poller) finishLocked(st jobs.JobStatus) func() {
	p.active = false
	p.timer = nil
	p.stopPolls()
	cb := p.callbacks
	p.callbacks = Callbacks{}

	if st.Status == jobs.StatusCompleted {
		p.result.resolve(st, nil)
		p.logger.Debug(logging.WithJobID(context.Background(), p.jobID), "job completed")
		return func() {
			if cb.OnComplete != nil {
				cb.OnComplete(st.Result)
			}
		}
	}

	jobErr := &JobFailedError{JobID: p.jobID, Message: st.Error}
	p.result.resolve(st, jobErr)
	p.logger.Debug(logging.WithJobID(context.Background(), p.jobID), "job failed", zap.String("error", st.Error))
	return func() {
		if cb.OnError != nil {
			cb.OnError(jobErr)
		}
	}
}

// merge applies a polled status. Regressions are ignored and progress is
// clamped to [0,100] and never decreases.
func merge(cur, in jobs.JobStatus) (jobs.JobStatus, bool) {
	if in.Status.Rank() < cur.Status.Rank() {
		return cur, false
	}
	in.Progress = min(max(in.Progress, 0), 100)
	if in.Progress < cur.Progress {
		in.Progress = cur.Progress
	}
	if in.Status == jobs.StatusCompleted {
		in.Progress = 100
	}
	if in.Status == cur.Status && in.Progress == cur.Progress && !in.Status.Terminal() {
		return cur, false
	}
	return in, true
}

// Cancel stops local polling immediately and asks the service to cancel the
// job. No callback fires afterwards. It is a no-op when idle or terminal;
// the returned error only reports the remote request.
func (p *Poller) Cancel(ctx context.Context) error {
	p.mu.Lock()
	if !p.active {
		p.mu.Unlock()
		return nil
	}
	id := p.jobID
	if id == "" {
		p.cancelGen = p.gen
	}
	p.stopLocked()
	p.status = jobs.JobStatus{Status: jobs.StatusFailed, Progress: p.status.Progress, Error: jobs.CancelledMessage}
	p.result.resolve(p.status, ErrCancelled)
	p.mu.Unlock()

	if id == "" {
		// Submit still in flight; it cancels the job once it has an id.
		return nil
	}
	return p.cancelRemote(ctx, id)
}

func (p *Poller) cancelRemote(ctx context.Context, id string) error {
	if err := p.transport.Cancel(ctx, id); err != nil {
		p.logger.Warn(logging.WithJobID(ctx, id), "remote cancel failed", zap.Error(err))
		return fmt.Errorf("cancel job %s: %w", id, err)
	}
	return nil
}

// Reset clears all local state and stops any pending poll. The remote job,
// if any, is left alone, including one whose Submit is still in flight;
// that Submit returns ErrReset. Safe to call at any time.
func (p *Poller) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.active {
		p.stopLocked()
		p.result.resolve(p.status, ErrReset)
	}
	p.gen++
	p.jobID = ""
	p.status = jobs.JobStatus{}
	p.attempts = 0
	p.result = nil
}

// stopLocked invalidates in-flight polls and drops callbacks.
func (p *Poller) stopLocked() {
	p.gen++
	p.active = false
	p.callbacks = Callbacks{}
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
	if p.stopPolls != nil {
		p.stopPolls()
	}
}

// Status returns the last known status.
func (p *Poller) Status() jobs.JobStatus {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status
}

// JobID returns the tracked job's ID, or "" when idle.
func (p *Poller) JobID() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.jobID
}

// Active reports whether a job is being tracked.
func (p *Poller) Active() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.active
}

// Subscribe registers fn for every status change, in order, including the
// terminal one. Callbacks run on the polling goroutine and the next poll
// waits for them to return. The returned func unsubscribes.
func (p *Poller) Subscribe(fn func(jobs.JobStatus)) (unsubscribe func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	id := p.nextSub
	p.nextSub++
	p.subscribers[id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			p.mu.Lock()
			delete(p.subscribers, id)
			p.mu.Unlock()
		})
	}
}

func (p *Poller) subscriberList() []func(jobs.JobStatus) {
	subs := make([]func(jobs.JobStatus), 0, len(p.subscribers))
	for i := 0; i < p.nextSub; i++ {
		if fn, ok := p.subscribers[i]; ok {
			subs = append(subs, fn)
		}
	}
	return subs
}

// Wait blocks until the current job ends and returns its final status. A
// failed job returns *JobFailedError; Cancel and Reset return ErrCancelled
// and ErrReset.
func (p *Poller) Wait(ctx context.Context) (jobs.JobStatus, error) {
	p.mu.Lock()
	res := p.result
	p.mu.Unlock()
	if res == nil {
		return jobs.JobStatus{}, ErrNoJob
	}

	select {
	case <-res.ch:
		return res.status, res.err
	case <-ctx.Done():
		return p.Status(), ctx.Err()
	}
}

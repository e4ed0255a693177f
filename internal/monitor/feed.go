package monitor

import (
	"sync"

	"github.com/fyrsmithlabs/finplan/internal/jobs"
)

// Subscriber publishes job status changes. *poller.Poller implements it.
type Subscriber interface {
	Subscribe(fn func(jobs.JobStatus)) (unsubscribe func())
}

// Feed buffers status updates for a Model. Slow readers lose intermediate
// updates, never the latest one. The channel closes after a terminal status.
type Feed struct {
	mu          sync.Mutex
	ch          chan jobs.JobStatus
	closed      bool
	unsubscribe func()
}

// Watch subscribes to src. Call it before submitting so no update is missed.
func Watch(src Subscriber) *Feed {
	f := &Feed{ch: make(chan jobs.JobStatus, 8)}
	f.unsubscribe = src.Subscribe(f.push)
	return f
}

func (f *Feed) push(st jobs.JobStatus) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}

	for {
		select {
		case f.ch <- st:
			if st.Status.Terminal() {
				f.closeLocked()
			}
			return
		default:
			// Drop the oldest update to make room.
			select {
			case <-f.ch:
			default:
			}
		}
	}
}

// Updates returns the status channel.
func (f *Feed) Updates() <-chan jobs.JobStatus {
	return f.ch
}

// Close unsubscribes and closes the channel. Safe to call more than once.
func (f *Feed) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closeLocked()
}

func (f *Feed) closeLocked() {
	if f.closed {
		return
	}
	f.closed = true
	close(f.ch)
	if f.unsubscribe != nil {
		f.unsubscribe()
	}
}

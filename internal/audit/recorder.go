package audit

import (
	"context"
	"sync"
)

// queueSize bounds the number of entries waiting to be written.
// Entries beyond it are dropped so request paths never block on SQLite.
const queueSize = 256

// Logger defines the logging interface used by the Recorder.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Recorder writes entries asynchronously and serially, best-effort.
//
// Record never blocks. Run drains the queue until its context is cancelled
// and then flushes whatever is still queued.
type Recorder struct {
	repo   Repository
	logger Logger
	queue  chan *Entry

	mu      sync.Mutex
	dropped int
}

// NewRecorder creates a Recorder writing to repo.
func NewRecorder(repo Repository, logger Logger) *Recorder {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Recorder{
		repo:   repo,
		logger: logger,
		queue:  make(chan *Entry, queueSize),
	}
}

// Record enqueues an entry. A nil Recorder ignores the call.
func (r *Recorder) Record(e Entry) {
	if r == nil {
		return
	}
	select {
	case r.queue <- &e:
	default:
		r.mu.Lock()
		r.dropped++
		r.mu.Unlock()
		r.logger.Warn("activity queue full, dropping entry",
			"action", e.Action,
			"entity_type", e.EntityType,
		)
	}
}

// Dropped returns how many entries were discarded because the queue was full.
func (r *Recorder) Dropped() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.dropped
}

// Run writes queued entries until ctx is cancelled, then drains the queue.
func (r *Recorder) Run(ctx context.Context) {
	for {
		select {
		case e := <-r.queue:
			r.write(e)
		case <-ctx.Done():
			for {
				select {
				case e := <-r.queue:
					r.write(e)
				default:
					return
				}
			}
		}
	}
}

func (r *Recorder) write(e *Entry) {
	// The caller's context may already be gone during shutdown drain.
	if err := r.repo.Create(context.Background(), e); err != nil {
		r.logger.Error("activity write failed",
			"action", e.Action,
			"entity_type", e.EntityType,
			"error", err,
		)
	}
}

// Package delivery implements the outbound message delivery queue: a
// process-local job runner that fires a send attempt immediately, retries it
// on a fixed interval, and abandons it after a bounded time budget.
//
// The queue's job table is in-memory only; a multi-process deployment would
// run duplicate delivery attempts. Spreading it across processes is a
// documented non-goal.
package delivery

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/coreybb/chatshop/models"
	"github.com/google/uuid"
)

const (
	// DefaultInterval is the pause between delivery attempts for one job.
	DefaultInterval = 5 * time.Second
	// DefaultBudget is the total time a job may keep retrying before it is
	// abandoned.
	DefaultBudget = 5 * time.Minute

	attemptTimeout = 10 * time.Second
)

// AttemptFunc performs one delivery attempt. A nil return is a terminal
// acknowledgment. An error wrapped with Permanent is a terminal failure (the
// platform rejected the message). Any other error is treated as transient and
// the attempt is retried at the next interval.
type AttemptFunc func(ctx context.Context) error

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }

func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as a terminal delivery failure: the queue deregisters
// the job instead of retrying.
func Permanent(err error) error {
	return &permanentError{err: err}
}

// IsPermanent reports whether err carries a Permanent marker.
func IsPermanent(err error) bool {
	var pe *permanentError
	return errors.As(err, &pe)
}

// AttemptRecorder persists per-attempt audit records. Failures to record are
// logged and never affect delivery.
type AttemptRecorder interface {
	CreateAttempt(ctx context.Context, attempt *models.OutboundAttempt) error
}

type job struct {
	id        string
	attempt   AttemptFunc
	onSuccess func(ctx context.Context)
	onFailure func(ctx context.Context)
	cancel    chan struct{}
	once      sync.Once
}

func (j *job) stop() {
	j.once.Do(func() { close(j.cancel) })
}

// JobOption configures a scheduled job.
type JobOption func(*job)

// OnSuccess registers a callback run once after a successful delivery, after
// the job has been deregistered.
func OnSuccess(fn func(ctx context.Context)) JobOption {
	return func(j *job) { j.onSuccess = fn }
}

// OnFailure registers a callback run once when the job terminates without
// success, either on a permanent platform error or on budget expiry.
func OnFailure(fn func(ctx context.Context)) JobOption {
	return func(j *job) { j.onFailure = fn }
}

// Queue schedules and runs delivery jobs. One Queue instance is constructed
// per process and handed to every component that sends messages.
type Queue struct {
	interval time.Duration
	budget   time.Duration
	recorder AttemptRecorder

	mu   sync.Mutex
	jobs map[string]*job
	wg   sync.WaitGroup
}

// NewQueue creates a queue with the given retry interval and time budget.
func NewQueue(interval, budget time.Duration) *Queue {
	return &Queue{
		interval: interval,
		budget:   budget,
		jobs:     make(map[string]*job),
	}
}

// SetRecorder attaches an audit recorder for individual attempts.
func (q *Queue) SetRecorder(r AttemptRecorder) {
	q.recorder = r
}

// Schedule registers a delivery job under jobID and starts attempting it
// immediately. Scheduling is idempotent: if a job with the same id is already
// active the call is a no-op and returns false, and the existing job's expiry
// is not reset.
func (q *Queue) Schedule(jobID string, attempt AttemptFunc, opts ...JobOption) bool {
	j := &job{
		id:      jobID,
		attempt: attempt,
		cancel:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(j)
	}

	q.mu.Lock()
	if _, exists := q.jobs[jobID]; exists {
		q.mu.Unlock()
		log.Printf("INFO (DeliveryQueue): Job %s already scheduled, ignoring", jobID)
		return false
	}
	q.jobs[jobID] = j
	q.wg.Add(1)
	q.mu.Unlock()

	go q.run(j)
	return true
}

// Remove deregisters a job, stopping any further attempts. Removing an
// unknown id is a no-op.
func (q *Queue) Remove(jobID string) {
	q.mu.Lock()
	j, ok := q.jobs[jobID]
	if ok {
		delete(q.jobs, jobID)
	}
	q.mu.Unlock()
	if ok {
		j.stop()
	}
}

// Len returns the number of active jobs.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.jobs)
}

// Stop cancels all jobs and waits for their goroutines to drain. Failure
// callbacks do not run for jobs cancelled by Stop.
func (q *Queue) Stop() {
	q.mu.Lock()
	for id, j := range q.jobs {
		delete(q.jobs, id)
		j.stop()
	}
	q.mu.Unlock()
	q.wg.Wait()
}

// run drives one job: an immediate attempt, then one attempt per interval
// until success, permanent failure, cancellation, or budget expiry. Attempts
// for a single job are strictly serial.
func (q *Queue) run(j *job) {
	defer q.wg.Done()

	deadline := time.Now().Add(q.budget)
	ticker := time.NewTicker(q.interval)
	defer ticker.Stop()

	for attemptNo := 1; ; attemptNo++ {
		if done := q.runAttempt(j, attemptNo); done {
			return
		}

		if !time.Now().Add(q.interval).Before(deadline) {
			q.expire(j)
			return
		}

		select {
		case <-j.cancel:
			return
		case <-ticker.C:
		}
	}
}

// runAttempt executes a single attempt and reports whether the job is
// finished.
func (q *Queue) runAttempt(j *job, attemptNo int) bool {
	select {
	case <-j.cancel:
		return true
	default:
	}

	ctx, cancel := context.WithTimeout(context.Background(), attemptTimeout)
	defer cancel()

	err := j.attempt(ctx)
	switch {
	case err == nil:
		q.record(ctx, j.id, attemptNo, "delivered", nil)
		q.Remove(j.id)
		if j.onSuccess != nil {
			j.onSuccess(ctx)
		}
		return true

	case IsPermanent(err):
		log.Printf("ERROR (DeliveryQueue): Job %s failed permanently: %v", j.id, err)
		q.record(ctx, j.id, attemptNo, "failed", err)
		q.Remove(j.id)
		if j.onFailure != nil {
			j.onFailure(ctx)
		}
		return true

	default:
		log.Printf("WARN (DeliveryQueue): Job %s attempt %d failed, will retry: %v", j.id, attemptNo, err)
		q.record(ctx, j.id, attemptNo, "retrying", err)
		return false
	}
}

// expire abandons a job whose time budget elapsed without success.
func (q *Queue) expire(j *job) {
	log.Printf("ERROR (DeliveryQueue): Job %s abandoned after budget expiry", j.id)
	q.Remove(j.id)
	if j.onFailure != nil {
		ctx, cancel := context.WithTimeout(context.Background(), attemptTimeout)
		defer cancel()
		j.onFailure(ctx)
	}
}

func (q *Queue) record(ctx context.Context, jobID string, attemptNo int, status string, attemptErr error) {
	if q.recorder == nil {
		return
	}
	attempt := models.OutboundAttempt{
		ID:        uuid.NewString(),
		JobID:     jobID,
		Attempt:   attemptNo,
		Status:    status,
		CreatedAt: time.Now().UTC(),
	}
	if attemptErr != nil {
		attempt.ErrorMessage = attemptErr.Error()
	}
	if err := q.recorder.CreateAttempt(ctx, &attempt); err != nil {
		log.Printf("WARN (DeliveryQueue): Failed to record attempt for job %s: %v", jobID, err)
	}
}

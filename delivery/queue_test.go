package delivery

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coreybb/chatshop/models"
)

type fakeRecorder struct {
	mu       sync.Mutex
	attempts []models.OutboundAttempt
}

func (r *fakeRecorder) CreateAttempt(_ context.Context, attempt *models.OutboundAttempt) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.attempts = append(r.attempts, *attempt)
	return nil
}

func (r *fakeRecorder) statuses() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.attempts))
	for i, a := range r.attempts {
		out[i] = a.Status
	}
	return out
}

func TestScheduleIsIdempotent(t *testing.T) {
	q := NewQueue(time.Hour, 2*time.Hour)
	defer q.Stop()

	var calls int32
	attempt := func(ctx context.Context) error {
		atomic.AddInt32(&calls, 1)
		return errors.New("not yet")
	}

	require.True(t, q.Schedule("job-1", attempt))
	require.False(t, q.Schedule("job-1", attempt))
	assert.Equal(t, 1, q.Len())

	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&calls) == 1
	}, time.Second, 10*time.Millisecond)
	// Only the first registration's attempt ran.
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))
}

func TestSuccessDeregistersAndFiresCallback(t *testing.T) {
	recorder := &fakeRecorder{}
	q := NewQueue(10*time.Millisecond, time.Second)
	q.SetRecorder(recorder)
	defer q.Stop()

	var succeeded int32
	q.Schedule("job-ok",
		func(ctx context.Context) error { return nil },
		OnSuccess(func(ctx context.Context) { atomic.AddInt32(&succeeded, 1) }),
	)

	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&succeeded) == 1 && q.Len() == 0
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{"delivered"}, recorder.statuses())
}

func TestPermanentErrorStopsRetrying(t *testing.T) {
	recorder := &fakeRecorder{}
	q := NewQueue(10*time.Millisecond, time.Second)
	q.SetRecorder(recorder)
	defer q.Stop()

	var calls, failures int32
	q.Schedule("job-rejected",
		func(ctx context.Context) error {
			atomic.AddInt32(&calls, 1)
			return Permanent(errors.New("recipient blocked the bot"))
		},
		OnFailure(func(ctx context.Context) { atomic.AddInt32(&failures, 1) }),
	)

	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&failures) == 1 && q.Len() == 0
	}, time.Second, 10*time.Millisecond)

	time.Sleep(50 * time.Millisecond)
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls), "a permanent failure must not be retried")
	assert.Equal(t, []string{"failed"}, recorder.statuses())
}

func TestTransientErrorsRetryUntilSuccess(t *testing.T) {
	recorder := &fakeRecorder{}
	q := NewQueue(10*time.Millisecond, time.Second)
	q.SetRecorder(recorder)
	defer q.Stop()

	var calls, succeeded int32
	q.Schedule("job-flaky",
		func(ctx context.Context) error {
			if atomic.AddInt32(&calls, 1) < 3 {
				return errors.New("connection refused")
			}
			return nil
		},
		OnSuccess(func(ctx context.Context) { atomic.AddInt32(&succeeded, 1) }),
	)

	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&succeeded) == 1
	}, time.Second, 10*time.Millisecond)
	assert.EqualValues(t, 3, atomic.LoadInt32(&calls))
	assert.Equal(t, []string{"retrying", "retrying", "delivered"}, recorder.statuses())
}

func TestBudgetExpiryAbandonsJob(t *testing.T) {
	q := NewQueue(20*time.Millisecond, 70*time.Millisecond)
	defer q.Stop()

	var failures int32
	q.Schedule("job-doomed",
		func(ctx context.Context) error { return errors.New("still down") },
		OnFailure(func(ctx context.Context) { atomic.AddInt32(&failures, 1) }),
	)

	require.Eventually(t, func() bool {
		return q.Len() == 0
	}, time.Second, 10*time.Millisecond)

	time.Sleep(50 * time.Millisecond)
	assert.EqualValues(t, 1, atomic.LoadInt32(&failures), "abandonment fires the failure callback exactly once")
}

func TestStopCancelsWithoutFailureCallback(t *testing.T) {
	q := NewQueue(10*time.Millisecond, time.Minute)

	var failures int32
	q.Schedule("job-cancelled",
		func(ctx context.Context) error { return errors.New("still down") },
		OnFailure(func(ctx context.Context) { atomic.AddInt32(&failures, 1) }),
	)

	q.Stop()
	assert.Equal(t, 0, q.Len())
	assert.EqualValues(t, 0, atomic.LoadInt32(&failures))
}

func TestRemoveUnknownJobIsNoOp(t *testing.T) {
	q := NewQueue(time.Second, time.Minute)
	defer q.Stop()
	q.Remove("never-scheduled")
	assert.Equal(t, 0, q.Len())
}

func TestIsPermanentSurvivesWrapping(t *testing.T) {
	err := fmt.Errorf("sending message: %w", Permanent(errors.New("bad token")))
	assert.True(t, IsPermanent(err))
	assert.False(t, IsPermanent(errors.New("bad token")))
	assert.False(t, IsPermanent(nil))
}

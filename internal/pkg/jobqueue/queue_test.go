package jobqueue

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestQueue(t *testing.T, workers int) (*Queue, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	q := NewQueue(client, workers)
	q.retryDelay = 10 * time.Millisecond
	return q, mr
}

// waitFor polls condition until it holds or timeout passes
func waitFor(condition func() bool, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return true
		}
		time.Sleep(10 * time.Millisecond)
	}
	return false
}

func TestNewQueue(t *testing.T) {
	tests := []struct {
		name            string
		workers         int
		expectedWorkers int
	}{
		{"Valid worker count", 5, 5},
		{"Zero workers", 0, 3},
		{"Negative workers", -1, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			queue := NewQueue(nil, tt.workers)

			assert.Equal(t, tt.expectedWorkers, queue.workers)
			assert.NotNil(t, queue.handlers)
			assert.False(t, queue.running)
		})
	}
}

func TestEnqueueJob(t *testing.T) {
	q, _ := newTestQueue(t, 1)
	ctx := context.Background()

	job, err := q.EnqueueJob(ctx, JobTypeBillingNotice, map[string]interface{}{"kind": "trial_ended"})
	require.NoError(t, err)
	assert.Equal(t, JobStatusPending, job.Status)
	assert.Equal(t, DefaultMaxRetries, job.MaxRetries)

	size, err := q.GetQueueSize(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), size)

	stored, err := q.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, "trial_ended", stored.Payload["kind"])

	stats, err := q.GetJobStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats[JobStatusPending])
}

func TestEnqueueJobOnce(t *testing.T) {
	q, mr := newTestQueue(t, 1)
	ctx := context.Background()

	_, fresh, err := q.EnqueueJobOnce(ctx, "payment_failed:evt_1", time.Hour, JobTypeBillingNotice, nil)
	require.NoError(t, err)
	assert.True(t, fresh)

	_, fresh, err = q.EnqueueJobOnce(ctx, "payment_failed:evt_1", time.Hour, JobTypeBillingNotice, nil)
	require.NoError(t, err)
	assert.False(t, fresh)

	size, _ := q.GetQueueSize(ctx)
	assert.Equal(t, int64(1), size)

	mr.FastForward(2 * time.Hour)
	_, fresh, err = q.EnqueueJobOnce(ctx, "payment_failed:evt_1", time.Hour, JobTypeBillingNotice, nil)
	require.NoError(t, err)
	assert.True(t, fresh)

	_, _, err = q.EnqueueJobOnce(ctx, "", time.Hour, JobTypeBillingNotice, nil)
	assert.Error(t, err)
}

func TestProcessJob_Success(t *testing.T) {
	q, _ := newTestQueue(t, 1)
	ctx := context.Background()

	var seen string
	q.RegisterHandler(JobTypeBillingNotice, func(_ context.Context, job *Job) error {
		seen = job.Payload["key"].(string)
		return nil
	})

	_, err := q.EnqueueJob(ctx, JobTypeBillingNotice, map[string]interface{}{"key": "k1"})
	require.NoError(t, err)

	job, err := q.dequeueJob(ctx)
	require.NoError(t, err)
	q.processJob(ctx, job)

	assert.Equal(t, "k1", seen)
	_, err = q.GetJob(ctx, job.ID)
	assert.ErrorIs(t, err, redis.Nil)

	processing, _ := q.GetProcessingSize(ctx)
	assert.Equal(t, int64(0), processing)
	stats, _ := q.GetJobStats(ctx)
	assert.Equal(t, int64(1), stats[JobStatusCompleted])
}

func TestProcessJob_FailureIsRetried(t *testing.T) {
	q, _ := newTestQueue(t, 1)
	ctx := context.Background()
	q.RegisterHandler(JobTypeBillingNotice, func(context.Context, *Job) error {
		return errors.New("smtp down")
	})

	_, err := q.EnqueueJob(ctx, JobTypeBillingNotice, nil)
	require.NoError(t, err)

	job, err := q.dequeueJob(ctx)
	require.NoError(t, err)
	q.processJob(ctx, job)

	stored, err := q.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, JobStatusRetrying, stored.Status)
	assert.Equal(t, 1, stored.RetryCount)
	assert.Equal(t, "smtp down", stored.ErrorMsg)

	retries, err := q.GetRetrySize(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), retries)
	size, _ := q.GetQueueSize(ctx)
	assert.Equal(t, int64(0), size)

	assert.Equal(t, 0, q.promoteDueRetries(ctx, time.Now().Add(-time.Minute)))
	assert.Equal(t, 1, q.promoteDueRetries(ctx, time.Now().Add(time.Second)))
	size, _ = q.GetQueueSize(ctx)
	assert.Equal(t, int64(1), size)
	retries, _ = q.GetRetrySize(ctx)
	assert.Equal(t, int64(0), retries)
}

func TestProcessJob_UnknownTypeFails(t *testing.T) {
	q, _ := newTestQueue(t, 1)
	ctx := context.Background()

	job, err := q.EnqueueJob(ctx, JobType("mystery"), nil)
	require.NoError(t, err)
	job.RetryCount = DefaultMaxRetries - 1

	q.processJob(ctx, job)

	stored, err := q.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, JobStatusFailed, stored.Status)
	assert.Contains(t, stored.ErrorMsg, "unknown job type")
	stats, _ := q.GetJobStats(ctx)
	assert.Equal(t, int64(1), stats[JobStatusFailed])
}

func TestRecoverStuckJobs(t *testing.T) {
	q, _ := newTestQueue(t, 1)
	ctx := context.Background()

	_, err := q.EnqueueJob(ctx, JobTypeBillingNotice, nil)
	require.NoError(t, err)
	job, err := q.dequeueJob(ctx)
	require.NoError(t, err)
	job.MarkAsProcessing()
	q.updateJob(ctx, job)
	require.NoError(t, q.client.LPush(ctx, ProcessingKey, "ghost").Err())

	assert.Equal(t, 0, q.recoverStuckJobs(ctx, 10*time.Minute, time.Now()))
	assert.Equal(t, 1, q.recoverStuckJobs(ctx, 10*time.Minute, time.Now().Add(11*time.Minute)))

	processing, _ := q.GetProcessingSize(ctx)
	assert.Equal(t, int64(0), processing)
	size, _ := q.GetQueueSize(ctx)
	assert.Equal(t, int64(1), size)

	stored, err := q.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, JobStatusPending, stored.Status)
}

func TestQueue_WorkersProcessJobs(t *testing.T) {
	q, _ := newTestQueue(t, 2)
	ctx := context.Background()

	var done int32
	q.RegisterHandler(JobTypeBillingNotice, func(context.Context, *Job) error {
		atomic.AddInt32(&done, 1)
		return nil
	})

	q.Start()
	defer q.Stop()

	for i := 0; i < 5; i++ {
		_, err := q.EnqueueJob(ctx, JobTypeBillingNotice, nil)
		require.NoError(t, err)
	}

	assert.True(t, waitFor(func() bool { return atomic.LoadInt32(&done) == 5 }, 5*time.Second))
}

func TestConstants(t *testing.T) {
	assert.Equal(t, "invoicefox:jobs:job:", JobKeyPrefix)
	assert.Equal(t, "invoicefox:jobs:once:", OnceKeyPrefix)
	assert.Equal(t, "invoicefox:jobs:pending", PendingKey)
	assert.Equal(t, "invoicefox:jobs:processing", ProcessingKey)
	assert.Equal(t, "invoicefox:jobs:retry", RetryKey)
	assert.Equal(t, "invoicefox:jobs:stats", StatsKey)
	assert.Equal(t, 3, DefaultMaxRetries)
	assert.Equal(t, 24*time.Hour, JobTTL)
}

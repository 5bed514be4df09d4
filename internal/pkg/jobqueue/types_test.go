package jobqueue

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJob_IsRetryable(t *testing.T) {
	tests := []struct {
		name      string
		job       *Job
		retryable bool
	}{
		{"Failed job with retries remaining", &Job{Status: JobStatusFailed, RetryCount: 1, MaxRetries: 3}, true},
		{"Failed job with no retries remaining", &Job{Status: JobStatusFailed, RetryCount: 3, MaxRetries: 3}, false},
		{"Completed job", &Job{Status: JobStatusCompleted, RetryCount: 1, MaxRetries: 3}, false},
		{"Pending job", &Job{Status: JobStatusPending, MaxRetries: 3}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.retryable, tt.job.IsRetryable())
		})
	}
}

func TestJob_Lifecycle(t *testing.T) {
	job := &Job{Status: JobStatusPending, MaxRetries: 3}
	before := time.Now()

	job.MarkAsProcessing()
	assert.Equal(t, JobStatusProcessing, job.Status)
	require.NotNil(t, job.ProcessedAt)
	assert.False(t, job.ProcessedAt.Before(before))

	job.MarkAsFailed("smtp timeout")
	assert.Equal(t, JobStatusFailed, job.Status)
	assert.Equal(t, "smtp timeout", job.ErrorMsg)
	assert.Equal(t, 1, job.RetryCount)
	assert.True(t, job.IsRetryable())

	job.MarkAsRetrying()
	assert.Equal(t, JobStatusRetrying, job.Status)

	job.MarkAsCompleted()
	assert.Equal(t, JobStatusCompleted, job.Status)
	assert.NotNil(t, job.CompletedAt)
	assert.Empty(t, job.ErrorMsg)
}

func TestBillingNoticeJobPayloadFromMap(t *testing.T) {
	// values read back from Redis arrive as JSON numbers
	data := map[string]interface{}{
		"kind":       "payment_failed",
		"account_id": float64(42),
		"key":        "payment_failed:evt_1",
	}

	payload, err := BillingNoticeJobPayloadFromMap(data)
	require.NoError(t, err)
	assert.Equal(t, &BillingNoticeJobPayload{Kind: "payment_failed", AccountID: 42, Key: "payment_failed:evt_1"}, payload)
}

func TestBillingNoticeJobPayloadFromMap_InvalidData(t *testing.T) {
	_, err := BillingNoticeJobPayloadFromMap(map[string]interface{}{"account_id": make(chan int)})
	assert.Error(t, err)

	_, err = BillingNoticeJobPayloadFromMap(map[string]interface{}{"account_id": "not a number"})
	assert.Error(t, err)
}

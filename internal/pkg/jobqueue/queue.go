package jobqueue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	// Redis keys
	KeyPrefix     = "invoicefox:jobs:"
	JobKeyPrefix  = KeyPrefix + "job:"
	OnceKeyPrefix = KeyPrefix + "once:"
	PendingKey    = KeyPrefix + "pending"
	ProcessingKey = KeyPrefix + "processing"
	RetryKey      = KeyPrefix + "retry"
	StatsKey      = KeyPrefix + "stats"

	DefaultMaxRetries = 3
	JobTTL            = 24 * time.Hour

	stuckJobAge      = 10 * time.Minute
	stuckJobInterval = time.Minute
	retryPollPeriod  = time.Second
)

// JobHandler executes one job. A returned error marks the job failed and
// schedules a retry while attempts remain.
type JobHandler func(ctx context.Context, job *Job) error

// Queue is a Redis backed job queue. Pending ids live in a list, jobs being
// worked on in a second list and delayed retries in a sorted set scored by due time.
type Queue struct {
	client     *redis.Client
	workers    int
	retryDelay time.Duration

	mu       sync.Mutex
	handlers map[JobType]JobHandler
	running  bool
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

func NewQueue(client *redis.Client, workers int) *Queue {
	if workers <= 0 {
		workers = 3
	}
	return &Queue{
		client:     client,
		workers:    workers,
		retryDelay: time.Minute,
		handlers:   make(map[JobType]JobHandler),
	}
}

// RegisterHandler binds a job type to its handler. Call before Start.
func (q *Queue) RegisterHandler(jobType JobType, h JobHandler) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.handlers[jobType] = h
}

func (q *Queue) handler(jobType JobType) (JobHandler, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	h, ok := q.handlers[jobType]
	return h, ok
}

// Start launches the workers and the maintenance loop. Calling it on a running queue is a no-op.
func (q *Queue) Start() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.running {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	q.cancel = cancel
	q.running = true
	log.Infof("[JobQueue] Starting %d workers", q.workers)

	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.worker(ctx, i)
	}
	q.wg.Add(1)
	go q.maintain(ctx)
}

// Stop cancels the workers and waits for in-flight jobs to finish.
func (q *Queue) Stop() {
	q.mu.Lock()
	if !q.running {
		q.mu.Unlock()
		return
	}
	log.Info("[JobQueue] Stopping workers...")
	q.cancel()
	q.running = false
	q.mu.Unlock()

	q.wg.Wait()
	log.Info("[JobQueue] All workers stopped")
}

func (q *Queue) worker(ctx context.Context, id int) {
	defer q.wg.Done()
	log.Debugf("[JobQueue] Worker %d started", id)

	for ctx.Err() == nil {
		job, err := q.dequeueJob(ctx)
		switch {
		case errors.Is(err, redis.Nil), ctx.Err() != nil:
			continue
		case err != nil:
			log.Errorf("[JobQueue] Worker %d: dequeue failed: %v", id, err)
			select {
			case <-ctx.Done():
			case <-time.After(100 * time.Millisecond):
			}
			continue
		}

		// jobs run to completion even when Stop is called mid-way
		q.processJob(context.WithoutCancel(ctx), job)
	}
	log.Debugf("[JobQueue] Worker %d stopped", id)
}

// maintain promotes due retries and requeues jobs abandoned by a crashed worker.
func (q *Queue) maintain(ctx context.Context) {
	defer q.wg.Done()

	retryTicker := time.NewTicker(retryPollPeriod)
	defer retryTicker.Stop()
	stuckTicker := time.NewTicker(stuckJobInterval)
	defer stuckTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-retryTicker.C:
			q.promoteDueRetries(ctx, now)
		case now := <-stuckTicker.C:
			q.recoverStuckJobs(ctx, stuckJobAge, now)
		}
	}
}

// promoteDueRetries moves retries whose delay has passed back to the pending list.
func (q *Queue) promoteDueRetries(ctx context.Context, now time.Time) int {
	ids, err := q.client.ZRangeByScore(ctx, RetryKey, &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(now.UnixMilli(), 10),
	}).Result()
	if err != nil {
		if ctx.Err() == nil {
			log.Errorf("[JobQueue] Reading retries failed: %v", err)
		}
		return 0
	}

	promoted := 0
	for _, id := range ids {
		// only the caller that removes the entry requeues it
		removed, err := q.client.ZRem(ctx, RetryKey, id).Result()
		if err != nil || removed == 0 {
			continue
		}
		if err := q.client.LPush(ctx, PendingKey, id).Err(); err != nil {
			log.Errorf("[JobQueue] Requeueing retry %s failed: %v", id, err)
			continue
		}
		promoted++
	}
	return promoted
}

// recoverStuckJobs requeues jobs that have been processing for longer than maxAge
// and drops stray entries from the processing list. It returns the number requeued.
func (q *Queue) recoverStuckJobs(ctx context.Context, maxAge time.Duration, now time.Time) int {
	ids, err := q.client.LRange(ctx, ProcessingKey, 0, -1).Result()
	if err != nil {
		log.Errorf("[JobQueue] Reading processing list failed: %v", err)
		return 0
	}

	recovered := 0
	for _, id := range ids {
		job, err := q.GetJob(ctx, id)
		if err != nil || job.Status != JobStatusProcessing {
			if err != nil && !errors.Is(err, redis.Nil) {
				log.Errorf("[JobQueue] Reading job %s failed: %v", id, err)
			}
			q.client.LRem(ctx, ProcessingKey, 1, id)
			continue
		}

		started := job.CreatedAt
		if job.ProcessedAt != nil {
			started = *job.ProcessedAt
		}
		if now.Sub(started) <= maxAge {
			continue
		}

		log.Warnf("[JobQueue] Requeueing job %s (%s), processing for %s", job.ID, job.Type, now.Sub(started).Round(time.Second))
		job.Status = JobStatusPending
		job.ErrorMsg = "worker did not finish"
		job.UpdatedAt = now
		q.updateJob(ctx, job)

		pipe := q.client.TxPipeline()
		pipe.LRem(ctx, ProcessingKey, 1, id)
		pipe.RPush(ctx, PendingKey, id)
		if _, err := pipe.Exec(ctx); err != nil {
			log.Errorf("[JobQueue] Requeueing job %s failed: %v", id, err)
			continue
		}
		recovered++
	}
	return recovered
}

// EnqueueJob stores a new pending job and pushes it onto the queue.
func (q *Queue) EnqueueJob(ctx context.Context, jobType JobType, payload map[string]interface{}) (*Job, error) {
	now := time.Now().UTC()
	job := &Job{
		ID:         uuid.NewString(),
		Type:       jobType,
		Status:     JobStatusPending,
		Payload:    payload,
		CreatedAt:  now,
		UpdatedAt:  now,
		MaxRetries: DefaultMaxRetries,
	}

	data, err := json.Marshal(job)
	if err != nil {
		return nil, fmt.Errorf("encode job: %w", err)
	}

	pipe := q.client.TxPipeline()
	pipe.Set(ctx, JobKeyPrefix+job.ID, data, JobTTL)
	pipe.LPush(ctx, PendingKey, job.ID)
	pipe.HIncrBy(ctx, StatsKey, string(JobStatusPending), 1)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("enqueue %s job: %w", jobType, err)
	}

	log.Debugf("[JobQueue] Enqueued job %s (%s)", job.ID, job.Type)
	return job, nil
}

// EnqueueJobOnce enqueues a job unless another job with the same dedup key was
// enqueued within ttl. It reports whether a job was enqueued.
func (q *Queue) EnqueueJobOnce(ctx context.Context, dedupKey string, ttl time.Duration, jobType JobType, payload map[string]interface{}) (*Job, bool, error) {
	if dedupKey == "" {
		return nil, false, errors.New("dedup key is required")
	}
	onceKey := OnceKeyPrefix + dedupKey

	fresh, err := q.client.SetNX(ctx, onceKey, time.Now().Unix(), ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("reserve dedup key: %w", err)
	}
	if !fresh {
		log.Debugf("[JobQueue] Skipping %s job, key %s already enqueued", jobType, dedupKey)
		return nil, false, nil
	}

	job, err := q.EnqueueJob(ctx, jobType, payload)
	if err != nil {
		// release the key so a later attempt can enqueue
		q.client.Del(ctx, onceKey)
		return nil, false, err
	}
	return job, true, nil
}

// dequeueJob atomically moves the next pending id to the processing list and loads it.
func (q *Queue) dequeueJob(ctx context.Context) (*Job, error) {
	id, err := q.client.BRPopLPush(ctx, PendingKey, ProcessingKey, time.Second).Result()
	if err != nil {
		return nil, err
	}

	job, err := q.GetJob(ctx, id)
	if err != nil {
		q.client.LRem(ctx, ProcessingKey, 1, id)
		return nil, fmt.Errorf("load job %s: %w", id, err)
	}
	return job, nil
}

func (q *Queue) processJob(ctx context.Context, job *Job) {
	job.MarkAsProcessing()
	q.updateJob(ctx, job)

	err := fmt.Errorf("unknown job type: %s", job.Type)
	if h, ok := q.handler(job.Type); ok {
		err = h(ctx, job)
	}

	if err == nil {
		job.MarkAsCompleted()
		q.updateJobStats(ctx, JobStatusCompleted, 1)
		q.client.Del(ctx, JobKeyPrefix+job.ID)
		log.Debugf("[JobQueue] Job %s completed", job.ID)
	} else {
		q.fail(ctx, job, err)
	}

	if rerr := q.client.LRem(ctx, ProcessingKey, 1, job.ID).Err(); rerr != nil {
		log.Errorf("[JobQueue] Removing job %s from processing failed: %v", job.ID, rerr)
	}
}

// fail schedules a delayed retry while attempts remain and records the
// failure otherwise.
func (q *Queue) fail(ctx context.Context, job *Job, err error) {
	job.MarkAsFailed(err.Error())
	if !job.IsRetryable() {
		q.updateJob(ctx, job)
		q.updateJobStats(ctx, JobStatusFailed, 1)
		log.Errorf("[JobQueue] Job %s gave up after %d attempts: %v", job.ID, job.RetryCount, err)
		return
	}

	job.MarkAsRetrying()
	q.updateJob(ctx, job)
	due := time.Now().Add(q.retryDelay * time.Duration(job.RetryCount))
	if zerr := q.client.ZAdd(ctx, RetryKey, redis.Z{Score: float64(due.UnixMilli()), Member: job.ID}).Err(); zerr != nil {
		log.Errorf("[JobQueue] Scheduling retry of job %s failed: %v", job.ID, zerr)
	}
	log.Warnf("[JobQueue] Job %s failed (attempt %d/%d), retrying: %v", job.ID, job.RetryCount, job.MaxRetries, err)
}

func (q *Queue) updateJob(ctx context.Context, job *Job) {
	data, err := json.Marshal(job)
	if err != nil {
		log.Errorf("[JobQueue] Encoding job %s failed: %v", job.ID, err)
		return
	}
	if err := q.client.Set(ctx, JobKeyPrefix+job.ID, data, JobTTL).Err(); err != nil {
		log.Errorf("[JobQueue] Saving job %s failed: %v", job.ID, err)
	}
}

func (q *Queue) updateJobStats(ctx context.Context, status JobStatus, delta int64) {
	if err := q.client.HIncrBy(ctx, StatsKey, string(status), delta).Err(); err != nil {
		log.Errorf("[JobQueue] Updating stats failed: %v", err)
	}
}

// GetJob loads a job by id. Completed jobs are deleted, so they report redis.Nil.
func (q *Queue) GetJob(ctx context.Context, jobID string) (*Job, error) {
	data, err := q.client.Get(ctx, JobKeyPrefix+jobID).Bytes()
	if err != nil {
		return nil, err
	}
	var job Job
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("decode job %s: %w", jobID, err)
	}
	return &job, nil
}

// GetJobStats returns the lifetime counters per status.
func (q *Queue) GetJobStats(ctx context.Context) (map[JobStatus]int64, error) {
	raw, err := q.client.HGetAll(ctx, StatsKey).Result()
	if err != nil {
		return nil, err
	}
	stats := make(map[JobStatus]int64, len(raw))
	for status, count := range raw {
		if n, err := strconv.ParseInt(count, 10, 64); err == nil {
			stats[JobStatus(status)] = n
		}
	}
	return stats, nil
}

func (q *Queue) GetQueueSize(ctx context.Context) (int64, error) {
	return q.client.LLen(ctx, PendingKey).Result()
}

func (q *Queue) GetProcessingSize(ctx context.Context) (int64, error) {
	return q.client.LLen(ctx, ProcessingKey).Result()
}

func (q *Queue) GetRetrySize(ctx context.Context) (int64, error) {
	return q.client.ZCard(ctx, RetryKey).Result()
}

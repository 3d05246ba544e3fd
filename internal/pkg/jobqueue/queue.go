package jobqueue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/gemfault/GemFlow/internal/pkg/cache"
)

const (
	// Redis key prefixes
	JobKeyPrefix     = "redrive:job:"
	JobQueueKey      = "redrive:queue"
	JobProcessingKey = "redrive:processing"

	// Job settings
	DefaultMaxRetries = 3
	JobTTL            = 24 * time.Hour // Jobs expire after 24 hours
	processTimeout    = 30 * time.Second
	retryPause        = 5 * time.Second
)

// Processor handles one job. Returning an error marks the attempt failed and
// consumes retry budget.
type Processor interface {
	Process(ctx context.Context, job *Job) error
}

// DeadLetterer is implemented by processors that park a job after its retry
// budget is exhausted.
type DeadLetterer interface {
	DeadLetter(ctx context.Context, job *Job)
}

// Queue manages background redrive jobs using Redis
type Queue struct {
	client    *redis.Client
	processor Processor
	workers   int
	stopCh    chan struct{}
	wg        sync.WaitGroup
	mu        sync.Mutex
	running   bool
}

// NewQueue creates a new job queue
func NewQueue(workers int, processor Processor) *Queue {
	if workers <= 0 {
		workers = 2 // Default number of workers
	}

	return &Queue{
		client:    cache.GetClient(),
		processor: processor,
		workers:   workers,
		stopCh:    make(chan struct{}),
	}
}

// Start starts the job queue workers
func (q *Queue) Start() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.running {
		return
	}

	q.running = true
	log.Infof("[JobQueue] Starting %d workers", q.workers)

	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.worker(i)
	}

	// Start stuck-processing sweeper (recovers jobs stuck in processing due to crashes)
	q.wg.Add(1)
	go q.stuckSweeper(10*time.Minute, 1*time.Minute)
}

// Stop stops the job queue workers
func (q *Queue) Stop() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if !q.running {
		return
	}

	log.Info("[JobQueue] Stopping workers...")
	close(q.stopCh)
	q.running = false
	q.wg.Wait()
	log.Info("[JobQueue] All workers stopped")
}

// Enqueue stores a new redrive job and pushes it onto the queue.
func (q *Queue) Enqueue(payload RedriveJobPayload, maxRetries int) (string, error) {
	if maxRetries < 0 {
		maxRetries = DefaultMaxRetries
	}
	now := time.Now()
	job := &Job{
		ID:         uuid.NewString(),
		Type:       JobTypeRedrive,
		Status:     JobStatusPending,
		Payload:    payload.ToMap(),
		CreatedAt:  now,
		UpdatedAt:  now,
		MaxRetries: maxRetries,
	}

	ctx := context.Background()
	if err := q.saveJob(ctx, job); err != nil {
		return "", err
	}
	if err := q.client.RPush(ctx, JobQueueKey, job.ID).Err(); err != nil {
		return "", err
	}
	return job.ID, nil
}

// GetJob loads a job by id.
func (q *Queue) GetJob(id string) (*Job, error) {
	data, err := q.client.Get(context.Background(), JobKeyPrefix+id).Result()
	if err != nil {
		return nil, err
	}
	var job Job
	if err := json.Unmarshal([]byte(data), &job); err != nil {
		return nil, err
	}
	return &job, nil
}

func (q *Queue) worker(id int) {
	defer q.wg.Done()
	log.Infof("[JobQueue] Worker %d started", id)
	ctx := context.Background()

	for {
		select {
		case <-q.stopCh:
			log.Infof("[JobQueue] Worker %d stopping", id)
			return
		default:
		}

		res, err := q.client.BLPop(ctx, 2*time.Second, JobQueueKey).Result()
		if err != nil {
			if err != redis.Nil {
				log.Errorf("[JobQueue] Worker %d pop error: %v", id, err)
				time.Sleep(time.Second)
			}
			continue
		}
		if len(res) < 2 {
			continue
		}
		q.processJob(ctx, res[1])
	}
}

func (q *Queue) processJob(ctx context.Context, jobID string) {
	job, err := q.GetJob(jobID)
	if err != nil {
		log.Errorf("[JobQueue] Job %s not loadable: %v", jobID, err)
		return
	}

	now := time.Now()
	job.Status = JobStatusProcessing
	job.ProcessedAt = &now
	job.UpdatedAt = now
	_ = q.saveJob(ctx, job)
	_ = q.client.LPush(ctx, JobProcessingKey, job.ID).Err()
	defer q.client.LRem(ctx, JobProcessingKey, 1, job.ID)

	procCtx, cancel := context.WithTimeout(ctx, processTimeout)
	err = q.processor.Process(procCtx, job)
	cancel()

	if err == nil {
		done := time.Now()
		job.Status = JobStatusCompleted
		job.CompletedAt = &done
		job.ErrorMsg = ""
		job.UpdatedAt = done
		_ = q.saveJob(ctx, job)
		return
	}

	job.ErrorMsg = err.Error()
	job.UpdatedAt = time.Now()
	if job.ShouldRetry() {
		job.RetryCount++
		job.Status = JobStatusRetrying
		_ = q.saveJob(ctx, job)
		log.Warnf("[JobQueue] Job %s failed (attempt %d/%d), requeueing: %v", job.ID, job.RetryCount, job.MaxRetries, err)
		time.Sleep(retryPause)
		_ = q.client.RPush(ctx, JobQueueKey, job.ID).Err()
		return
	}

	job.Status = JobStatusFailed
	_ = q.saveJob(ctx, job)
	log.Errorf("[JobQueue] Job %s exhausted retries: %v", job.ID, err)
	if dl, ok := q.processor.(DeadLetterer); ok {
		dl.DeadLetter(ctx, job)
	}
}

// stuckSweeper periodically scans the processing list and requeues jobs stuck for longer than maxAge
func (q *Queue) stuckSweeper(maxAge time.Duration, interval time.Duration) {
	defer q.wg.Done()
	log.Infof("[JobQueue] Stuck sweeper running (maxAge=%s, interval=%s)", maxAge, interval)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	ctx := context.Background()
	for {
		select {
		case <-q.stopCh:
			log.Info("[JobQueue] Stuck sweeper stopping")
			return
		case <-ticker.C:
			ids, err := q.client.LRange(ctx, JobProcessingKey, 0, -1).Result()
			if err != nil {
				log.Errorf("[JobQueue] Sweeper LRange error: %v", err)
				continue
			}
			now := time.Now()
			for _, id := range ids {
				job, err := q.GetJob(id)
				if err != nil {
					q.client.LRem(ctx, JobProcessingKey, 1, id)
					continue
				}
				if job.ProcessedAt != nil && now.Sub(*job.ProcessedAt) > maxAge {
					log.Warnf("[JobQueue] Requeueing stuck job %s", id)
					job.Status = JobStatusPending
					job.UpdatedAt = now
					_ = q.saveJob(ctx, job)
					q.client.LRem(ctx, JobProcessingKey, 1, id)
					q.client.RPush(ctx, JobQueueKey, id)
				}
			}
		}
	}
}

func (q *Queue) saveJob(ctx context.Context, job *Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	return q.client.Set(ctx, JobKeyPrefix+job.ID, data, JobTTL).Err()
}

package enrichment

import (
	"context"
	"errors"
	"sync"
	"time"
)

var ErrQueueClosed = errors.New("enrichment queue closed")

// Job asks for one lead to be enriched. Attempt counts deliveries, starting at 1.
type Job struct {
	LeadID     string    `json:"lead_id"`
	UserID     string    `json:"user_id"`
	Attempt    int       `json:"attempt"`
	NotBefore  time.Time `json:"not_before,omitempty"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

// Delivery is a received job. Exactly one of Ack or Requeue settles it; an unsettled
// delivery is redelivered by the backend.
type Delivery interface {
	Job() Job
	Ack(ctx context.Context) error
	// Requeue schedules the next attempt of the job after delay.
	Requeue(ctx context.Context, delay time.Duration) error
}

type Queue interface {
	Publish(ctx context.Context, job Job) error
	// Receive blocks until a job is available or ctx is done.
	Receive(ctx context.Context) (Delivery, error)
}

// Retry returns the job's next attempt, due at the given time.
func (j Job) Retry(at time.Time) Job {
	j.Attempt++
	j.NotBefore = at
	j.EnqueuedAt = at
	return j
}

// MemoryQueue is an in-process queue for QUEUE_BACKEND=memory and tests. Jobs do
// not survive a restart; the stale-pending sweep republishes them.
type MemoryQueue struct {
	jobs chan Job
	now  func() time.Time

	mu     sync.Mutex
	closed bool
	timers []*time.Timer
}

func NewMemoryQueue(size int) *MemoryQueue {
	return &MemoryQueue{jobs: make(chan Job, size), now: time.Now}
}

func (q *MemoryQueue) Publish(ctx context.Context, job Job) error {
	if job.Attempt < 1 {
		job.Attempt = 1
	}
	if job.EnqueuedAt.IsZero() {
		job.EnqueuedAt = q.now()
	}

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrQueueClosed
	}
	if wait := job.NotBefore.Sub(q.now()); wait > 0 {
		q.timers = append(q.timers, time.AfterFunc(wait, func() {
			_ = q.push(context.Background(), job)
		}))
		q.mu.Unlock()
		return nil
	}
	q.mu.Unlock()
	return q.push(ctx, job)
}

func (q *MemoryQueue) push(ctx context.Context, job Job) error {
	select {
	case q.jobs <- job:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *MemoryQueue) Receive(ctx context.Context) (Delivery, error) {
	select {
	case job := <-q.jobs:
		return &memoryDelivery{queue: q, job: job}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Len reports the number of jobs ready for delivery.
func (q *MemoryQueue) Len() int {
	return len(q.jobs)
}

func (q *MemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	for _, t := range q.timers {
		t.Stop()
	}
	return nil
}

type memoryDelivery struct {
	queue *MemoryQueue
	job   Job
}

func (d *memoryDelivery) Job() Job { return d.job }

func (d *memoryDelivery) Ack(context.Context) error { return nil }

func (d *memoryDelivery) Requeue(ctx context.Context, delay time.Duration) error {
	return d.queue.Publish(ctx, d.job.Retry(d.queue.now().Add(delay)))
}

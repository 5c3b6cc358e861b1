package pgmq

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/spacesedan/leadscout/internal/enrichment"
)

const (
	DefaultVisibility = 5 * time.Minute
	pollWait          = 5 * time.Second
)

// EnrichmentQueue is the enrichment queue on pgmq. A received message stays
// invisible for the visibility timeout; if it is neither deleted nor rescheduled
// in that time it is delivered again. The attempt number is pgmq's read count.
type EnrichmentQueue struct {
	client     *Client
	name       string
	visibility time.Duration
	now        func() time.Time
}

func NewEnrichmentQueue(client *Client, name string, visibility time.Duration) *EnrichmentQueue {
	if visibility <= 0 {
		visibility = DefaultVisibility
	}
	return &EnrichmentQueue{client: client, name: name, visibility: visibility, now: time.Now}
}

func (q *EnrichmentQueue) Publish(ctx context.Context, job enrichment.Job) error {
	if job.EnqueuedAt.IsZero() {
		job.EnqueuedAt = q.now()
	}
	payload, err := json.Marshal(job)
	if err != nil {
		return err
	}
	return q.client.Send(ctx, q.name, payload, job.NotBefore.Sub(q.now()))
}

func (q *EnrichmentQueue) Receive(ctx context.Context) (enrichment.Delivery, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		msgs, err := q.client.ReadWithPoll(ctx, q.name, q.visibility, pollWait, 1)
		if err != nil {
			return nil, err
		}
		if len(msgs) == 0 {
			continue
		}

		msg := msgs[0]
		var job enrichment.Job
		if err := json.Unmarshal(msg.Data, &job); err != nil || job.LeadID == "" {
			slog.Error("[PGMQ] Dropping undecodable job", slog.Int64("msg_id", msg.ID))
			_ = q.client.Delete(ctx, q.name, []int64{msg.ID})
			continue
		}
		job.Attempt = max(job.Attempt, msg.ReadCount)
		// Visibility already enforces NotBefore.
		job.NotBefore = time.Time{}
		return &delivery{queue: q, id: msg.ID, job: job}, nil
	}
}

type delivery struct {
	queue *EnrichmentQueue
	id    int64
	job   enrichment.Job
}

func (d *delivery) Job() enrichment.Job { return d.job }

func (d *delivery) Ack(ctx context.Context) error {
	return d.queue.client.Delete(ctx, d.queue.name, []int64{d.id})
}

// Requeue only moves the visibility timeout; the next read bumps the read count.
func (d *delivery) Requeue(ctx context.Context, delay time.Duration) error {
	return d.queue.client.SetVisibility(ctx, d.queue.name, d.id, delay)
}

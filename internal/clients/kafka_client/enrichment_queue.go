package kafka_client

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/confluentinc/confluent-kafka-go/kafka"
	"github.com/spacesedan/leadscout/internal/clients/kafka_client/utils"
	"github.com/spacesedan/leadscout/internal/enrichment"
)

// EnrichmentQueue carries enrichment jobs on a Kafka topic. Offsets are committed
// only after a job is settled, so a crash redelivers it. A requeue republishes
// the job with its NotBefore time and then commits the original.
type EnrichmentQueue struct {
	producer  *Producer
	iterator  *KafkaMessageIterator
	committer *KafkaCommitHandler
	topic     string
	now       func() time.Time
}

// NewEnrichmentQueue publishes through producer. consumer may be nil for a
// publish-only queue, as in the poller.
func NewEnrichmentQueue(producer *Producer, consumer *kafka.Consumer) *EnrichmentQueue {
	q := &EnrichmentQueue{
		producer: producer,
		topic:    KAFKA_TOPIC_LEAD_ENRICHMENT,
		now:      time.Now,
	}
	if consumer != nil {
		q.iterator = NewKafkaMessageIterator(consumer)
		q.committer = NewCommitHandler(consumer)
	}
	return q
}

func (q *EnrichmentQueue) Publish(ctx context.Context, job enrichment.Job) error {
	if job.Attempt < 1 {
		job.Attempt = 1
	}
	if job.EnqueuedAt.IsZero() {
		job.EnqueuedAt = q.now()
	}
	// Keyed by lead so every attempt of a lead lands on one partition.
	return q.producer.Publish(ctx, q.topic, job.LeadID, job)
}

func (q *EnrichmentQueue) Receive(ctx context.Context) (enrichment.Delivery, error) {
	if q.iterator == nil {
		return nil, fmt.Errorf("[EnrichmentQueue] queue is publish-only")
	}
	for {
		msg, err := q.iterator.Next(ctx)
		if err != nil {
			return nil, err
		}

		job, err := utils.Decode(msg.Value, func(j enrichment.Job) bool { return j.LeadID != "" })
		if err != nil {
			slog.Error("[EnrichmentQueue] Dropping undecodable job",
				slog.Int("partition", int(msg.TopicPartition.Partition)),
				slog.String("offset", msg.TopicPartition.Offset.String()),
				slog.String("error", err.Error()))
			_ = q.committer.Commit(ctx, msg)
			continue
		}
		return &kafkaDelivery{queue: q, msg: msg, job: job}, nil
	}
}

type kafkaDelivery struct {
	queue *EnrichmentQueue
	msg   *kafka.Message
	job   enrichment.Job
}

func (d *kafkaDelivery) Job() enrichment.Job { return d.job }

func (d *kafkaDelivery) Ack(ctx context.Context) error {
	return d.queue.committer.Commit(ctx, d.msg)
}

func (d *kafkaDelivery) Requeue(ctx context.Context, delay time.Duration) error {
	if err := d.queue.Publish(ctx, d.job.Retry(d.queue.now().Add(delay))); err != nil {
		// Left uncommitted; the job comes back after a rebalance or restart.
		return err
	}
	return d.queue.committer.Commit(ctx, d.msg)
}

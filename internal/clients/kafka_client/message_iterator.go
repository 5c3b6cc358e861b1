package kafka_client

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/confluentinc/confluent-kafka-go/kafka"
)

// KafkaMessageIterator reads one message at a time, polling with a short timeout
// so cancellation is noticed promptly. Safe for concurrent use.
type KafkaMessageIterator struct {
	consumer *kafka.Consumer
	mu       sync.Mutex
}

func NewKafkaMessageIterator(consumer *kafka.Consumer) *KafkaMessageIterator {
	return &KafkaMessageIterator{consumer: consumer}
}

func (it *KafkaMessageIterator) Next(ctx context.Context) (*kafka.Message, error) {
	if it.consumer == nil {
		return nil, errors.New("[KafkaIterator] Kafka consumer has not been initialized")
	}
	it.mu.Lock()
	defer it.mu.Unlock()

	failures := 0
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		msg, err := it.consumer.ReadMessage(POLL_TIMEOUT)
		if err == nil {
			return msg, nil
		}

		var kafkaErr kafka.Error
		if errors.As(err, &kafkaErr) {
			switch {
			case kafkaErr.Code() == kafka.ErrTimedOut:
				continue
			case kafkaErr.Code() == kafka.ErrAllBrokersDown:
				slog.Error("[KafkaIterator] All Kafka brokers are down. Aborting")
				return nil, err
			}
		}

		failures++
		if failures >= MAX_RETRIES {
			return nil, errors.Join(errors.New("[KafkaIterator] Failed to read message after retries"), err)
		}
		slog.Warn("[KafkaIterator] Failed to read message, retrying...",
			slog.Int("attempt", failures),
			slog.Int("max_retries", MAX_RETRIES),
			slog.String("error", err.Error()))

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(RETRY_DELAY):
		}
	}
}

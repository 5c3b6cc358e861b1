package kafka_client

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/confluentinc/confluent-kafka-go/kafka"
)

type ConsumerFunc func(context.Context, *kafka.Consumer)

// ConsumerRegistry maps a topic to the loop that consumes it.
type ConsumerRegistry struct {
	consumers map[string]ConsumerFunc
}

func NewConsumerRegistry() *ConsumerRegistry {
	return &ConsumerRegistry{consumers: map[string]ConsumerFunc{}}
}

func (r *ConsumerRegistry) Register(topic string, fn ConsumerFunc) {
	r.consumers[topic] = fn
}

// Start creates a consumer for cfg.Topic and runs its registered loop until the
// loop returns.
func (r *ConsumerRegistry) Start(ctx context.Context, cfg KafkaConfig) error {
	fn, exists := r.consumers[cfg.Topic]
	if !exists {
		return fmt.Errorf("[ConsumerFactory] No consumer found for topic: %s", cfg.Topic)
	}

	consumer, err := NewConsumer(cfg, cfg.Topic)
	if err != nil {
		return fmt.Errorf("[ConsumerFactory] Failed to initialize Kafka consumer: %w", err)
	}
	defer consumer.Close()

	slog.Info("[ConsumerFactory] Starting consumer for topic...", slog.String("topic", cfg.Topic))
	fn(ctx, consumer)
	return nil
}

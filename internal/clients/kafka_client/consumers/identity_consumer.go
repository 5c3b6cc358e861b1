package consumers

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/confluentinc/confluent-kafka-go/kafka"
	"github.com/spacesedan/leadscout/internal/clients/kafka_client"
	"github.com/spacesedan/leadscout/internal/clients/kafka_client/utils"
)

// EventDispatcher applies one raw identity event.
type EventDispatcher interface {
	Dispatch(ctx context.Context, raw []byte) error
}

// IdentityConsumer returns the loop for the identity events topic. An event is
// committed once applied, or once it is known to be unprocessable.
func IdentityConsumer(dispatcher EventDispatcher, permanent func(error) bool) kafka_client.ConsumerFunc {
	return func(ctx context.Context, consumer *kafka.Consumer) {
		iterator := kafka_client.NewKafkaMessageIterator(consumer)
		committer := kafka_client.NewCommitHandler(consumer)

		slog.Info("[IdentityConsumer] Listening for identity events...")

		for {
			msg, err := iterator.Next(ctx)
			if err != nil {
				if errors.Is(err, context.Canceled) || ctx.Err() != nil {
					slog.Warn("[IdentityConsumer] Stopping consumer...")
					return
				}
				utils.LogConsumerError("IdentityConsumer", err)
				continue
			}

			if err := dispatcher.Dispatch(ctx, msg.Value); err != nil {
				if !permanent(err) {
					// Not committed; seek back so the event is read again.
					slog.Warn("[IdentityConsumer] Failed to apply event, will retry",
						slog.String("key", string(msg.Key)),
						slog.String("error", err.Error()))
					if serr := consumer.Seek(msg.TopicPartition, 0); serr != nil {
						utils.LogConsumerError("IdentityConsumer", serr)
					}
					select {
					case <-ctx.Done():
						return
					case <-time.After(kafka_client.RETRY_DELAY):
					}
					continue
				}
				slog.Error("[IdentityConsumer] Dropping unprocessable event",
					slog.String("key", string(msg.Key)),
					slog.String("error", err.Error()))
			}

			if err := committer.Commit(ctx, msg); err != nil {
				slog.Warn("[IdentityConsumer] Failed to commit offset",
					slog.String("error", err.Error()))
			}
		}
	}
}

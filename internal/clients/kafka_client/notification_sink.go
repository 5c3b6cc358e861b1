package kafka_client

import (
	"context"

	"github.com/spacesedan/leadscout/internal/models"
)

// NotificationSink hands notifications to the delivery service over Kafka.
type NotificationSink struct {
	producer *Producer
}

func NewNotificationSink(producer *Producer) *NotificationSink {
	return &NotificationSink{producer: producer}
}

func (s *NotificationSink) Deliver(ctx context.Context, n models.Notification) error {
	return s.producer.Publish(ctx, KAFKA_TOPIC_LEAD_NOTIFICATIONS, n.UserID, n)
}

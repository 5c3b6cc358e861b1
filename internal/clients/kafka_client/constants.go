package kafka_client

import "time"

const (
	KAFKA_TOPIC_LEAD_ENRICHMENT    = "lead-enrichment"    // accepted leads waiting for AI enrichment
	KAFKA_TOPIC_LEAD_NOTIFICATIONS = "lead-notifications" // notifications for the delivery service
	KAFKA_TOPIC_IDENTITY_EVENTS    = "identity-events"    // user upserts and deletions from the identity provider
)

const (
	MAX_RETRIES     = 5
	RETRY_DELAY     = 2 * time.Second
	POLL_TIMEOUT    = 500 * time.Millisecond
	PRODUCE_RETRIES = 3
	FLUSH_TIMEOUT   = 5 * time.Second
)

type KafkaConfig struct {
	Broker  string
	GroupID string
	Topic   string
}

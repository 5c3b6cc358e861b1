package utils

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/confluentinc/confluent-kafka-go/kafka"
)

// Encode renders a message value as JSON.
func Encode(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("[KafkaUtils] encode %T: %w", v, err)
	}
	return data, nil
}

// Decode parses a message value into T. When valid is given, a value it
// rejects is reported as an error as well.
func Decode[T any](data []byte, valid func(T) bool) (T, error) {
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return v, fmt.Errorf("[KafkaUtils] decode %T (%d bytes): %w", v, len(data), err)
	}
	if valid != nil && !valid(v) {
		return v, fmt.Errorf("[KafkaUtils] decode %T: missing required fields", v)
	}
	return v, nil
}

// LogConsumerError records a consumer side error under component, with the
// broker error code and flags when err carries a kafka.Error.
func LogConsumerError(component string, err error) {
	if err == nil {
		return
	}
	attrs := []any{slog.String("error", err.Error())}
	var kerr kafka.Error
	if errors.As(err, &kerr) {
		attrs = append(attrs,
			slog.String("code", kerr.Code().String()),
			slog.Bool("fatal", kerr.IsFatal()),
			slog.Bool("retriable", kerr.IsRetriable()))
	}
	slog.Error("["+component+"] Kafka consumer error", attrs...)
}

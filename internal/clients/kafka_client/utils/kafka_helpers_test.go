package utils

import (
	"errors"
	"testing"
	"time"

	"github.com/confluentinc/confluent-kafka-go/kafka"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type payload struct {
	LeadID    string    `json:"lead_id"`
	Attempt   int       `json:"attempt"`
	NotBefore time.Time `json:"not_before"`
}

func hasLead(p payload) bool { return p.LeadID != "" }

func TestEncodeDecode(t *testing.T) {
	in := payload{LeadID: "lead-1", Attempt: 2, NotBefore: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}

	data, err := Encode(in)
	require.NoError(t, err)

	out, err := Decode(data, hasLead)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestEncodeRejectsUnsupported(t *testing.T) {
	_, err := Encode(make(chan int))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "[KafkaUtils] encode chan int")
}

func TestDecodeRejectsGarbage(t *testing.T) {
	_, err := Decode[payload]([]byte("{not json"), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "9 bytes")
}

func TestDecodeRejectsInvalidValue(t *testing.T) {
	_, err := Decode([]byte(`{"attempt":1}`), hasLead)
	assert.ErrorContains(t, err, "missing required fields")

	p, err := Decode[payload]([]byte(`{"attempt":1}`), nil)
	require.NoError(t, err)
	assert.Equal(t, 1, p.Attempt)
}

func TestLogConsumerErrorAcceptsAnyError(t *testing.T) {
	assert.NotPanics(t, func() {
		LogConsumerError("Test", nil)
		LogConsumerError("Test", errors.New("boom"))
		LogConsumerError("Test", kafka.NewError(kafka.ErrTransport, "broker down", false))
	})
}

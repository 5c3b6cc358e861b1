package db

import (
	"context"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spacesedan/leadscout/internal/models"
)

type fakeDynamo struct {
	writes   []*dynamodb.TransactWriteItemsInput
	writeErr error
	queries  []*dynamodb.QueryInput
	pages    [][]map[string]types.AttributeValue
}

func (f *fakeDynamo) TransactWriteItems(_ context.Context, in *dynamodb.TransactWriteItemsInput, _ ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error) {
	f.writes = append(f.writes, in)
	if f.writeErr != nil {
		return nil, f.writeErr
	}
	return &dynamodb.TransactWriteItemsOutput{}, nil
}

func (f *fakeDynamo) Query(_ context.Context, in *dynamodb.QueryInput, _ ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	f.queries = append(f.queries, in)
	page := len(f.queries) - 1
	if page >= len(f.pages) {
		return &dynamodb.QueryOutput{}, nil
	}
	out := &dynamodb.QueryOutput{Items: f.pages[page]}
	if page < len(f.pages)-1 {
		out.LastEvaluatedKey = map[string]types.AttributeValue{
			"pk": &types.AttributeValueMemberS{Value: "next"},
		}
	}
	return out, nil
}

func counter(calls, tokens, micros string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"calls":       &types.AttributeValueMemberN{Value: calls},
		"tokens":      &types.AttributeValueMemberN{Value: tokens},
		"cost_micros": &types.AttributeValueMemberN{Value: micros},
	}
}

func TestDynamoRecordUsageWritesRecordAndCounters(t *testing.T) {
	fake := &fakeDynamo{}
	ledger := NewDynamoUsageLedger(fake, "AIUsage")

	err := ledger.RecordUsage(context.Background(), models.AIUsageRecord{
		ID:          "rec-1",
		UserID:      "u1",
		Operation:   models.OpValidateLead,
		Model:       "gpt-4o-mini",
		TotalTokens: 1200,
		CostUSD:     0.0015,
		Success:     true,
		CreatedAt:   time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	require.Len(t, fake.writes, 1)

	in := fake.writes[0]
	assert.Equal(t, "rec-1", aws.ToString(in.ClientRequestToken))
	require.Len(t, in.TransactItems, 3)

	put := in.TransactItems[0].Put
	require.NotNil(t, put)
	assert.Equal(t, &types.AttributeValueMemberS{Value: "user#u1"}, put.Item["pk"])

	userUpdate := in.TransactItems[1].Update
	require.NotNil(t, userUpdate)
	assert.Equal(t, &types.AttributeValueMemberS{Value: "user#u1"}, userUpdate.Key["pk"])
	assert.Equal(t, &types.AttributeValueMemberS{Value: "day#2026-03-01"}, userUpdate.Key["sk"])
	assert.Equal(t, &types.AttributeValueMemberN{Value: "1500"}, userUpdate.ExpressionAttributeValues[":cost"])
	assert.Equal(t, &types.AttributeValueMemberN{Value: "1200"}, userUpdate.ExpressionAttributeValues[":tokens"])

	globalUpdate := in.TransactItems[2].Update
	require.NotNil(t, globalUpdate)
	assert.Equal(t, &types.AttributeValueMemberS{Value: globalUsageKey}, globalUpdate.Key["pk"])
}

func TestDynamoRecordUsageTreatsReplayAsStored(t *testing.T) {
	fake := &fakeDynamo{writeErr: &types.TransactionCanceledException{
		CancellationReasons: []types.CancellationReason{{Code: aws.String("ConditionalCheckFailed")}},
	}}
	ledger := NewDynamoUsageLedger(fake, "AIUsage")

	err := ledger.RecordUsage(context.Background(), models.AIUsageRecord{ID: "rec-1", UserID: "u1"})
	assert.NoError(t, err)
}

func TestDynamoRecordUsagePropagatesOtherErrors(t *testing.T) {
	fake := &fakeDynamo{writeErr: &types.TransactionCanceledException{
		CancellationReasons: []types.CancellationReason{{Code: aws.String("ThrottlingError")}},
	}}
	ledger := NewDynamoUsageLedger(fake, "AIUsage")

	err := ledger.RecordUsage(context.Background(), models.AIUsageRecord{UserID: "u1"})
	assert.Error(t, err)
	require.Len(t, fake.writes, 1)
	assert.NotEmpty(t, aws.ToString(fake.writes[0].ClientRequestToken))
}

func TestDynamoSpendSinceSumsPages(t *testing.T) {
	fake := &fakeDynamo{pages: [][]map[string]types.AttributeValue{
		{counter("2", "1000", "250000")},
		{counter("1", "500", "500000")},
	}}
	ledger := NewDynamoUsageLedger(fake, "AIUsage")

	spend, err := ledger.SpendSince(context.Background(), "u1", time.Date(2026, 3, 1, 15, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	assert.Equal(t, int64(3), spend.Calls)
	assert.Equal(t, int64(1500), spend.Tokens)
	assert.InDelta(t, 0.75, spend.CostUSD, 1e-9)

	require.Len(t, fake.queries, 2)
	values := fake.queries[0].ExpressionAttributeValues
	assert.Equal(t, &types.AttributeValueMemberS{Value: "user#u1"}, values[":pk"])
	assert.Equal(t, &types.AttributeValueMemberS{Value: "day#2026-03-01"}, values[":from"])
}

func TestDynamoSpendSinceGlobal(t *testing.T) {
	fake := &fakeDynamo{}
	ledger := NewDynamoUsageLedger(fake, "AIUsage")

	_, err := ledger.SpendSince(context.Background(), "", time.Now())
	require.NoError(t, err)
	require.Len(t, fake.queries, 1)
	assert.Equal(t, &types.AttributeValueMemberS{Value: globalUsageKey}, fake.queries[0].ExpressionAttributeValues[":pk"])
}

package db

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"
	"github.com/spacesedan/leadscout/internal/models"
)

const (
	globalUsageKey = "global"
	dayLayout      = "2006-01-02"
	microsPerUSD   = 1_000_000
)

// DynamoAPI is the subset of the DynamoDB client the usage ledger calls.
type DynamoAPI interface {
	TransactWriteItems(ctx context.Context, in *dynamodb.TransactWriteItemsInput, opts ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error)
	Query(ctx context.Context, in *dynamodb.QueryInput, opts ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
}

// DynamoUsageLedger stores usage records in a single table keyed by pk/sk and keeps
// per-user and global daily counters next to them. The record put and both counter
// updates are one transaction, so the counters never drift from the records.
type DynamoUsageLedger struct {
	client DynamoAPI
	table  string
}

func NewDynamoUsageLedger(client DynamoAPI, table string) *DynamoUsageLedger {
	return &DynamoUsageLedger{client: client, table: table}
}

type usageItem struct {
	PK string `dynamodbav:"pk"`
	SK string `dynamodbav:"sk"`
	models.AIUsageRecord
}

type usageCounter struct {
	Calls      int64 `dynamodbav:"calls"`
	Tokens     int64 `dynamodbav:"tokens"`
	CostMicros int64 `dynamodbav:"cost_micros"`
}

func userPK(userID string) string { return "user#" + userID }

func dayKey(t time.Time) string { return "day#" + t.UTC().Format(dayLayout) }

func (l *DynamoUsageLedger) RecordUsage(ctx context.Context, rec models.AIUsageRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	item, err := attributevalue.MarshalMap(usageItem{
		PK:            userPK(rec.UserID),
		SK:            "rec#" + rec.CreatedAt.UTC().Format(time.RFC3339Nano) + "#" + rec.ID,
		AIUsageRecord: rec,
	})
	if err != nil {
		return fmt.Errorf("[DynamoDB] marshal usage record: %w", err)
	}

	cost := int64(math.Round(rec.CostUSD * microsPerUSD))
	increment := func(pk string) types.TransactWriteItem {
		return types.TransactWriteItem{Update: &types.Update{
			TableName: aws.String(l.table),
			Key: map[string]types.AttributeValue{
				"pk": &types.AttributeValueMemberS{Value: pk},
				"sk": &types.AttributeValueMemberS{Value: dayKey(rec.CreatedAt)},
			},
			UpdateExpression: aws.String("ADD calls :one, tokens :tokens, cost_micros :cost"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":one":    &types.AttributeValueMemberN{Value: "1"},
				":tokens": &types.AttributeValueMemberN{Value: strconv.Itoa(rec.TotalTokens)},
				":cost":   &types.AttributeValueMemberN{Value: strconv.FormatInt(cost, 10)},
			},
		}}
	}

	_, err = l.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		ClientRequestToken: aws.String(rec.ID),
		TransactItems: []types.TransactWriteItem{
			{Put: &types.Put{
				TableName:           aws.String(l.table),
				Item:                item,
				ConditionExpression: aws.String("attribute_not_exists(pk)"),
			}},
			increment(userPK(rec.UserID)),
			increment(globalUsageKey),
		},
	})
	if err != nil {
		var canceled *types.TransactionCanceledException
		if errors.As(err, &canceled) && len(canceled.CancellationReasons) > 0 &&
			aws.ToString(canceled.CancellationReasons[0].Code) == "ConditionalCheckFailed" {
			slog.Info("[DynamoDB] Usage record already stored", slog.String("id", rec.ID))
			return nil
		}
		return fmt.Errorf("[DynamoDB] failed to write usage record: %w", err)
	}
	return nil
}

// SpendSince sums the daily counters from the UTC day containing since through
// today. An empty userID reads the global counters.
func (l *DynamoUsageLedger) SpendSince(ctx context.Context, userID string, since time.Time) (models.Spend, error) {
	pk := globalUsageKey
	if userID != "" {
		pk = userPK(userID)
	}

	var spend models.Spend
	var micros int64
	paginator := dynamodb.NewQueryPaginator(l.client, &dynamodb.QueryInput{
		TableName:              aws.String(l.table),
		KeyConditionExpression: aws.String("pk = :pk AND sk BETWEEN :from AND :to"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk":   &types.AttributeValueMemberS{Value: pk},
			":from": &types.AttributeValueMemberS{Value: dayKey(since)},
			":to":   &types.AttributeValueMemberS{Value: "day#9999-12-31"},
		},
	})
	for paginator.HasMorePages() {
		out, err := paginator.NextPage(ctx)
		if err != nil {
			return models.Spend{}, fmt.Errorf("[DynamoDB] query usage counters: %w", err)
		}
		var page []usageCounter
		if err := attributevalue.UnmarshalListOfMaps(out.Items, &page); err != nil {
			return models.Spend{}, fmt.Errorf("[DynamoDB] unmarshal usage counters: %w", err)
		}
		for _, c := range page {
			spend.Calls += c.Calls
			spend.Tokens += c.Tokens
			micros += c.CostMicros
		}
	}
	spend.CostUSD = float64(micros) / microsPerUSD
	return spend, nil
}

package repository

import (
	"context"
	"fmt"
	"sort"
	"time"

	"altitude-recorder/internal/logger"
	"altitude-recorder/internal/models"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	dynamodbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

const (
	// DynamoDB caps BatchWriteItem at 25 requests.
	dynamoBatchSize = 25

	maxDeleteAttempts = 5
)

// DynamoAPI is the subset of *dynamodb.Client the repository uses.
type DynamoAPI interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
	BatchWriteItem(ctx context.Context, params *dynamodb.BatchWriteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error)
}

// DynamoTrackRepository stores points in a DynamoDB table keyed by "id".
type DynamoTrackRepository struct {
	client    DynamoAPI
	tableName string
	now       func() time.Time

	retryDelay time.Duration
}

func NewDynamoTrackRepository(client DynamoAPI, tableName string, now func() time.Time) *DynamoTrackRepository {
	if now == nil {
		now = time.Now
	}
	return &DynamoTrackRepository{client: client, tableName: tableName, now: now, retryDelay: 100 * time.Millisecond}
}

func (r *DynamoTrackRepository) Save(ctx context.Context, lat, lon, alt float64) (models.TrackPoint, error) {
	if r.client == nil {
		return models.TrackPoint{}, fmt.Errorf("DynamoDB client not initialized")
	}

	pt := newPoint(r.now(), lat, lon, alt)
	item, err := attributevalue.MarshalMap(pt)
	if err != nil {
		return models.TrackPoint{}, fmt.Errorf("marshal track point: %w", err)
	}

	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(r.tableName),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(id)"),
	})
	if err != nil {
		return models.TrackPoint{}, fmt.Errorf("put track point: %w", err)
	}
	return pt, nil
}

// FetchAll scans the table and sorts by time; DynamoDB scans are unordered.
func (r *DynamoTrackRepository) FetchAll(ctx context.Context) ([]models.TrackPoint, error) {
	if r.client == nil {
		return nil, fmt.Errorf("DynamoDB client not initialized")
	}

	var pts []models.TrackPoint
	var lastEvaluatedKey map[string]dynamodbtypes.AttributeValue
	for {
		input := &dynamodb.ScanInput{TableName: aws.String(r.tableName)}
		if lastEvaluatedKey != nil {
			input.ExclusiveStartKey = lastEvaluatedKey
		}

		result, err := r.client.Scan(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("scan track points: %w", err)
		}

		for _, item := range result.Items {
			var pt models.TrackPoint
			if err := attributevalue.UnmarshalMap(item, &pt); err != nil {
				logger.Warn("skipping malformed track point", "error", err)
				continue
			}
			pts = append(pts, pt)
		}

		lastEvaluatedKey = result.LastEvaluatedKey
		if lastEvaluatedKey == nil {
			break
		}
	}

	sort.SliceStable(pts, func(i, j int) bool { return pts[i].Time < pts[j].Time })
	return pts, nil
}

// DeleteAll removes every item, including rows FetchAll cannot decode.
// Throttled deletes come back as UnprocessedItems and are resubmitted up
// to maxDeleteAttempts times; anything still left is reported as an error.
// It keeps going after a failed batch and reports the first error.
func (r *DynamoTrackRepository) DeleteAll(ctx context.Context) error {
	keys, err := r.scanKeys(ctx)
	if err != nil {
		return err
	}

	var firstErr error
	for start := 0; start < len(keys); start += dynamoBatchSize {
		end := start + dynamoBatchSize
		if end > len(keys) {
			end = len(keys)
		}

		reqs := make([]dynamodbtypes.WriteRequest, 0, end-start)
		for _, key := range keys[start:end] {
			reqs = append(reqs, dynamodbtypes.WriteRequest{
				DeleteRequest: &dynamodbtypes.DeleteRequest{Key: key},
			})
		}

		if err := r.writeBatch(ctx, reqs); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (r *DynamoTrackRepository) writeBatch(ctx context.Context, reqs []dynamodbtypes.WriteRequest) error {
	pending := map[string][]dynamodbtypes.WriteRequest{r.tableName: reqs}
	for attempt := 1; attempt <= maxDeleteAttempts; attempt++ {
		out, err := r.client.BatchWriteItem(ctx, &dynamodb.BatchWriteItemInput{RequestItems: pending})
		if err != nil {
			return fmt.Errorf("delete track points: %w", err)
		}
		if out == nil || len(out.UnprocessedItems[r.tableName]) == 0 {
			return nil
		}
		pending = out.UnprocessedItems
		if attempt == maxDeleteAttempts {
			break
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("delete track points: %w", ctx.Err())
		case <-time.After(time.Duration(attempt) * r.retryDelay):
		}
	}
	return fmt.Errorf("delete track points: %d items unprocessed after %d attempts",
		len(pending[r.tableName]), maxDeleteAttempts)
}

// scanKeys returns the primary key of every item without decoding it.
func (r *DynamoTrackRepository) scanKeys(ctx context.Context) ([]map[string]dynamodbtypes.AttributeValue, error) {
	if r.client == nil {
		return nil, fmt.Errorf("DynamoDB client not initialized")
	}

	var keys []map[string]dynamodbtypes.AttributeValue
	var lastEvaluatedKey map[string]dynamodbtypes.AttributeValue
	for {
		input := &dynamodb.ScanInput{
			TableName:            aws.String(r.tableName),
			ProjectionExpression: aws.String("id"),
		}
		if lastEvaluatedKey != nil {
			input.ExclusiveStartKey = lastEvaluatedKey
		}

		result, err := r.client.Scan(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("scan track point keys: %w", err)
		}
		for _, item := range result.Items {
			id, ok := item["id"]
			if !ok {
				continue
			}
			keys = append(keys, map[string]dynamodbtypes.AttributeValue{"id": id})
		}

		lastEvaluatedKey = result.LastEvaluatedKey
		if lastEvaluatedKey == nil {
			break
		}
	}
	return keys, nil
}

func (r *DynamoTrackRepository) Count(ctx context.Context) (int64, error) {
	if r.client == nil {
		return 0, fmt.Errorf("DynamoDB client not initialized")
	}

	var n int64
	var lastEvaluatedKey map[string]dynamodbtypes.AttributeValue
	for {
		input := &dynamodb.ScanInput{
			TableName: aws.String(r.tableName),
			Select:    dynamodbtypes.SelectCount,
		}
		if lastEvaluatedKey != nil {
			input.ExclusiveStartKey = lastEvaluatedKey
		}

		result, err := r.client.Scan(ctx, input)
		if err != nil {
			return 0, fmt.Errorf("count track points: %w", err)
		}
		n += int64(result.Count)

		lastEvaluatedKey = result.LastEvaluatedKey
		if lastEvaluatedKey == nil {
			break
		}
	}
	return n, nil
}

package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"
)

// DynamoDBAPI is the subset of the DynamoDB client used here
type DynamoDBAPI interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
}

// DynamoDBStorage keeps one blob as a DynamoDB item.
//
// Saves are conditional on the version seen by the last Load, so a writer
// that has not seen another writer's update gets ErrVersionConflict instead
// of overwriting it.
type DynamoDBStorage struct {
	client    DynamoDBAPI
	tableName string
	userID    string
	name      string
	writerID  string

	mu      sync.Mutex
	version int64
}

// DynamoDBItem represents the item structure in DynamoDB
type DynamoDBItem struct {
	PK         string `dynamodbav:"PK"`
	SK         string `dynamodbav:"SK"`
	Blob       []byte `dynamodbav:"blob"`
	Version    int64  `dynamodbav:"version"`
	ModifiedAt string `dynamodbav:"modified_at"`
	WriterID   string `dynamodbav:"writer_id"`
}

// NewDynamoDBStorage creates a DynamoDB-backed store using the default AWS
// credential chain
func NewDynamoDBStorage(ctx context.Context, region, tableName, userID, name string) (*DynamoDBStorage, error) {
	var opts []func(*config.LoadOptions) error
	if region != "" {
		opts = append(opts, config.WithRegion(region))
	}

	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return NewDynamoDBStorageWithClient(dynamodb.NewFromConfig(cfg), tableName, userID, name), nil
}

// NewDynamoDBStorageWithClient creates a store around an existing client
func NewDynamoDBStorageWithClient(client DynamoDBAPI, tableName, userID, name string) *DynamoDBStorage {
	return &DynamoDBStorage{
		client:    client,
		tableName: tableName,
		userID:    userID,
		name:      name,
		writerID:  WriterID(),
	}
}

// WriterID returns an identifier for this process, stamped on every item
func WriterID() string {
	hostname, _ := os.Hostname()
	if hostname == "" {
		hostname = "unknown"
	}
	return fmt.Sprintf("%s-%s", hostname, uuid.NewString())
}

func (ds *DynamoDBStorage) key() map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK": &types.AttributeValueMemberS{Value: "USER#" + ds.userID},
		"SK": &types.AttributeValueMemberS{Value: "BLOB#" + ds.name},
	}
}

// Load fetches the blob and remembers its version for the next Save
func (ds *DynamoDBStorage) Load(ctx context.Context) ([]byte, error) {
	result, err := ds.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(ds.tableName),
		Key:            ds.key(),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get %s from DynamoDB: %w", ds.name, err)
	}

	ds.mu.Lock()
	defer ds.mu.Unlock()

	if result.Item == nil {
		ds.version = 0
		return nil, ErrNotFound
	}

	var item DynamoDBItem
	if err := attributevalue.UnmarshalMap(result.Item, &item); err != nil {
		return nil, fmt.Errorf("failed to unmarshal item: %w", err)
	}

	ds.version = item.Version
	return item.Blob, nil
}

// Save writes the blob if nobody else has written since the last Load
func (ds *DynamoDBStorage) Save(ctx context.Context, data []byte) error {
	ds.mu.Lock()
	defer ds.mu.Unlock()

	item := DynamoDBItem{
		PK:         "USER#" + ds.userID,
		SK:         "BLOB#" + ds.name,
		Blob:       data,
		Version:    ds.version + 1,
		ModifiedAt: time.Now().UTC().Format(time.RFC3339),
		WriterID:   ds.writerID,
	}

	av, err := attributevalue.MarshalMap(item)
	if err != nil {
		return fmt.Errorf("failed to marshal item: %w", err)
	}

	// Conditional write to prevent overwriting newer versions
	input := &dynamodb.PutItemInput{
		TableName:           aws.String(ds.tableName),
		Item:                av,
		ConditionExpression: aws.String("attribute_not_exists(version) OR version = :expectedVersion"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":expectedVersion": &types.AttributeValueMemberN{Value: strconv.FormatInt(ds.version, 10)},
		},
	}

	if _, err := ds.client.PutItem(ctx, input); err != nil {
		var condCheckErr *types.ConditionalCheckFailedException
		if errors.As(err, &condCheckErr) {
			return ErrVersionConflict
		}
		return fmt.Errorf("failed to save %s to DynamoDB: %w", ds.name, err)
	}

	ds.version = item.Version
	return nil
}

// Version returns the version seen by the last Load or Save
func (ds *DynamoDBStorage) Version() int64 {
	ds.mu.Lock()
	defer ds.mu.Unlock()
	return ds.version
}

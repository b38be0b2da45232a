// Package dynamo implements tasksstore.Store against the "tasks" table's "type-data-index"
// GSI: users are queried by type = "userDetails", due sync jobs by type = "sync#<partition>"
// with a sort-key prefix of "SCHEDULED".
package dynamo

import (
	"context"
	"fmt"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/syncfleet/syncfleet/pkg/tasksstore"
)

const (
	tableName     = "tasks"
	typeDataIndex = "type-data-index"
)

// Client is the subset of *dynamodb.Client this adapter calls, narrowed for testability.
type Client interface {
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
}

// Store is the DynamoDB-backed tasksstore.Store.
type Store struct {
	client Client
}

// New wraps an already-configured DynamoDB client.
func New(client Client) *Store {
	return &Store{client: client}
}

var _ tasksstore.Store = (*Store)(nil)

func (s *Store) ListUsers(ctx context.Context) ([]tasksstore.UserRecord, error) {
	var users []tasksstore.UserRecord

	input := &dynamodb.QueryInput{
		TableName:                 aws.String(tableName),
		IndexName:                 aws.String(typeDataIndex),
		KeyConditionExpression:    aws.String("#t = :partKey"),
		ExpressionAttributeNames:  map[string]string{"#t": "type"},
		ExpressionAttributeValues: map[string]types.AttributeValue{":partKey": &types.AttributeValueMemberS{Value: "userDetails"}},
	}

	for {
		out, err := s.client.Query(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("tasksstore/dynamo: list users: %w", err)
		}
		for _, item := range out.Items {
			user, err := unmarshalUser(item)
			if err != nil {
				return nil, err
			}
			users = append(users, user)
		}
		if out.LastEvaluatedKey == nil {
			break
		}
		input.ExclusiveStartKey = out.LastEvaluatedKey
	}

	return users, nil
}

func (s *Store) GetUser(ctx context.Context, userID string) (tasksstore.UserRecord, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(tableName),
		Key: map[string]types.AttributeValue{
			"userId": &types.AttributeValueMemberS{Value: userID},
			"SK":     &types.AttributeValueMemberS{Value: "userDetails"},
		},
	})
	if err != nil {
		return tasksstore.UserRecord{}, fmt.Errorf("tasksstore/dynamo: get user %q: %w", userID, err)
	}
	if out.Item == nil {
		return tasksstore.UserRecord{}, fmt.Errorf("tasksstore/dynamo: user %q not found", userID)
	}
	return unmarshalUser(out.Item)
}

func (s *Store) ListDueSyncRecords(ctx context.Context, partition int) ([]tasksstore.SyncRecord, error) {
	var records []tasksstore.SyncRecord

	partitionKey := "sync#" + strconv.Itoa(partition)
	input := &dynamodb.QueryInput{
		TableName:                aws.String(tableName),
		IndexName:                aws.String(typeDataIndex),
		KeyConditionExpression:   aws.String("#t = :partKey and begins_with(#s, :sortKeyValue)"),
		ExpressionAttributeNames: map[string]string{"#t": "type", "#s": "data"},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":partKey":      &types.AttributeValueMemberS{Value: partitionKey},
			":sortKeyValue": &types.AttributeValueMemberS{Value: "SCHEDULED"},
		},
	}

	for {
		out, err := s.client.Query(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("tasksstore/dynamo: list due sync records for partition %d: %w", partition, err)
		}
		for _, item := range out.Items {
			record, err := unmarshalSyncRecord(item, partition)
			if err != nil {
				return nil, err
			}
			records = append(records, record)
		}
		if out.LastEvaluatedKey == nil {
			break
		}
		input.ExclusiveStartKey = out.LastEvaluatedKey
	}

	return records, nil
}

func stringAttr(item map[string]types.AttributeValue, key string) string {
	if v, ok := item[key].(*types.AttributeValueMemberS); ok {
		return v.Value
	}
	return ""
}

func unmarshalUser(item map[string]types.AttributeValue) (tasksstore.UserRecord, error) {
	userID := stringAttr(item, "userId")
	if userID == "" {
		return tasksstore.UserRecord{}, fmt.Errorf("tasksstore/dynamo: item missing userId")
	}
	return tasksstore.UserRecord{
		UserID:             userID,
		GoogleRefreshToken: stringAttr(item, "googleRefreshToken"),
		NotionBotID:        stringAttr(item, "notionBotId"),
		NotionAccessToken:  stringAttr(item, "notionAccessToken"),
	}, nil
}

func unmarshalSyncRecord(item map[string]types.AttributeValue, partition int) (tasksstore.SyncRecord, error) {
	userID := stringAttr(item, "userId")
	if userID == "" {
		return tasksstore.SyncRecord{}, fmt.Errorf("tasksstore/dynamo: sync record missing userId")
	}
	return tasksstore.SyncRecord{
		UserID:          userID,
		Partition:       partition,
		NotionDatabase:  stringAttr(item, "notionDatabase"),
		GoogleCalendar:  stringAttr(item, "googleCalendar"),
		NotionTitleProp: stringAttr(item, "notionTitleId"),
		NotionDoneProp:  stringAttr(item, "notionDoneId"),
	}, nil
}

package dynamo

import (
	"context"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClient struct {
	queryResponses []*dynamodb.QueryOutput
	getItemResp    *dynamodb.GetItemOutput
	getItemErr     error
}

func (f *fakeClient) Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	if len(f.queryResponses) == 0 {
		return &dynamodb.QueryOutput{}, nil
	}
	resp := f.queryResponses[0]
	f.queryResponses = f.queryResponses[1:]
	return resp, nil
}

func (f *fakeClient) GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	return f.getItemResp, f.getItemErr
}

func TestStore_ListUsers(t *testing.T) {
	client := &fakeClient{
		queryResponses: []*dynamodb.QueryOutput{
			{
				Items: []map[string]types.AttributeValue{
					{
						"userId":             &types.AttributeValueMemberS{Value: "u1"},
						"googleRefreshToken": &types.AttributeValueMemberS{Value: "refresh-1"},
						"notionBotId":        &types.AttributeValueMemberS{Value: "bot-1"},
						"notionAccessToken":  &types.AttributeValueMemberS{Value: "token-1"},
					},
				},
			},
		},
	}

	store := New(client)
	users, err := store.ListUsers(context.Background())
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, "u1", users[0].UserID)
	assert.Equal(t, "refresh-1", users[0].GoogleRefreshToken)
}

func TestStore_GetUser_NotFound(t *testing.T) {
	client := &fakeClient{getItemResp: &dynamodb.GetItemOutput{}}
	store := New(client)

	_, err := store.GetUser(context.Background(), "missing")
	assert.Error(t, err)
}

func TestStore_ListDueSyncRecords(t *testing.T) {
	client := &fakeClient{
		queryResponses: []*dynamodb.QueryOutput{
			{
				Items: []map[string]types.AttributeValue{
					{
						"userId":         &types.AttributeValueMemberS{Value: "u1"},
						"notionDatabase": &types.AttributeValueMemberS{Value: "db-1"},
						"googleCalendar": &types.AttributeValueMemberS{Value: "cal-1"},
					},
				},
			},
		},
	}

	store := New(client)
	records, err := store.ListDueSyncRecords(context.Background(), 2)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, 2, records[0].Partition)
	assert.Equal(t, "db-1", records[0].NotionDatabase)
}

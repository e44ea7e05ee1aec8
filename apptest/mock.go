package apptest

import (
	"context"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/nisimpson/apptables"
)

type DynamoDBAPICall[T, U any] = func(context.Context, *T, ...func(*dynamodb.Options)) (*U, error)

// MockClient is a simple expectation-based mock for DynamoDB operations.
// Tests set the functions for the calls they expect; any other call fails
// the test.
type MockClient struct {
	PutFunc                DynamoDBAPICall[dynamodb.PutItemInput, dynamodb.PutItemOutput]
	GetFunc                DynamoDBAPICall[dynamodb.GetItemInput, dynamodb.GetItemOutput]
	QueryFunc              DynamoDBAPICall[dynamodb.QueryInput, dynamodb.QueryOutput]
	BatchWriteItemFunc     DynamoDBAPICall[dynamodb.BatchWriteItemInput, dynamodb.BatchWriteItemOutput]
	DeleteFunc             DynamoDBAPICall[dynamodb.DeleteItemInput, dynamodb.DeleteItemOutput]
	UpdateFunc             DynamoDBAPICall[dynamodb.UpdateItemInput, dynamodb.UpdateItemOutput]
	TransactWriteItemsFunc DynamoDBAPICall[dynamodb.TransactWriteItemsInput, dynamodb.TransactWriteItemsOutput]
}

// Ensure MockClient implements apptables.DynamoDBClient
var _ apptables.DynamoDBClient = (*MockClient)(nil)

// NewMockClient creates a new mock DynamoDB client that fails t on every call.
func NewMockClient(t testing.TB) *MockClient {
	return &MockClient{
		PutFunc:                defaultFunc[dynamodb.PutItemInput, dynamodb.PutItemOutput](t, "PutItem"),
		GetFunc:                defaultFunc[dynamodb.GetItemInput, dynamodb.GetItemOutput](t, "GetItem"),
		QueryFunc:              defaultFunc[dynamodb.QueryInput, dynamodb.QueryOutput](t, "Query"),
		BatchWriteItemFunc:     defaultFunc[dynamodb.BatchWriteItemInput, dynamodb.BatchWriteItemOutput](t, "BatchWriteItem"),
		DeleteFunc:             defaultFunc[dynamodb.DeleteItemInput, dynamodb.DeleteItemOutput](t, "DeleteItem"),
		UpdateFunc:             defaultFunc[dynamodb.UpdateItemInput, dynamodb.UpdateItemOutput](t, "UpdateItem"),
		TransactWriteItemsFunc: defaultFunc[dynamodb.TransactWriteItemsInput, dynamodb.TransactWriteItemsOutput](t, "TransactWriteItems"),
	}
}

func defaultFunc[T, U any](t testing.TB, name string) DynamoDBAPICall[T, U] {
	return func(ctx context.Context, params *T, optFns ...func(*dynamodb.Options)) (*U, error) {
		t.Fatalf("unexpected call to %s", name)
		return nil, nil
	}
}

// PutItem stores an item in the mock table.
func (m *MockClient) PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	return m.PutFunc(ctx, params, optFns...)
}

// GetItem retrieves an item from the mock table.
func (m *MockClient) GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	return m.GetFunc(ctx, params, optFns...)
}

// UpdateItem updates an item in the mock table.
func (m *MockClient) UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
	return m.UpdateFunc(ctx, params, optFns...)
}

// DeleteItem removes an item from the mock table.
func (m *MockClient) DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error) {
	return m.DeleteFunc(ctx, params, optFns...)
}

// BatchWriteItem processes batch write operations.
func (m *MockClient) BatchWriteItem(ctx context.Context, params *dynamodb.BatchWriteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error) {
	return m.BatchWriteItemFunc(ctx, params, optFns...)
}

// Query performs a query operation.
func (m *MockClient) Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	return m.QueryFunc(ctx, params, optFns...)
}

// TransactWriteItems performs a transactional write.
func (m *MockClient) TransactWriteItems(ctx context.Context, params *dynamodb.TransactWriteItemsInput, optFns ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error) {
	return m.TransactWriteItemsFunc(ctx, params, optFns...)
}

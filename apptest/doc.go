// Package apptest provides testing utilities for the apptables library.
//
// This package includes:
//   - Expectation-based mock DynamoDB client for unit testing
//   - Local DynamoDB integration utilities
//   - JSON seeding of app tables
//   - An employees fixture whose links form cycles
//
// # Mock Client
//
// The MockClient fails the test on any call without an expectation:
//
//	mock := apptest.NewMockClient(t)
//	mock.PutFunc = func(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
//		// Verify the operation parameters
//		return &dynamodb.PutItemOutput{}, nil
//	}
//
//	tables := apptables.New(apptables.NewDynamoBackend(mock, "test-table"))
//
// # Seeding
//
// Seed documents map table names to rows. Links are reference objects:
//
//	tables, _ := apptest.NewTables(t)
//	n, err := apptest.SeedFromJSON(ctx, tables, strings.NewReader(`{
//		"employees": [
//			{"_id": "E1", "name": "Alice", "manager": {"_table": "employees", "_id": "E1"}}
//		]
//	}`))
//
// # Integration Tests
//
// Integration tests are skipped in short mode and when DynamoDB Local is
// not running:
//
//	func TestWithDynamoDB(t *testing.T) {
//		apptest.WithLocalDynamoDB(t, apptest.DefaultLocalPort, func(local *apptest.LocalDynamoDB) {
//			apptest.WithIsolatedTable(t, local, func(tableName string) {
//				tables := apptables.New(local.Backend(tableName))
//				// ...
//			})
//		})
//	}
//
// Start DynamoDB Local with:
//
//	docker run -p 8000:8000 amazon/dynamodb-local
package apptest

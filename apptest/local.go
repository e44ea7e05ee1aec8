package apptest

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/nisimpson/apptables"
)

// DefaultLocalPort is the default port for DynamoDB Local.
const DefaultLocalPort = 8000

// LocalDynamoDB represents a connection to a local DynamoDB instance.
type LocalDynamoDB struct {
	Client   *dynamodb.Client
	Endpoint string
	Port     int
}

// NewLocalClient creates a DynamoDB client configured to connect to a local DynamoDB instance.
//
//	client := apptest.NewLocalClient(8000)
//	tables := apptables.New(apptables.NewDynamoBackend(client, "my-app"))
func NewLocalClient(port int) *dynamodb.Client {
	return NewEndpointClient(fmt.Sprintf("http://localhost:%d", port), "us-east-1")
}

// NewEndpointClient creates a DynamoDB client for an explicit endpoint, with
// static dummy credentials as DynamoDB Local expects.
func NewEndpointClient(endpoint, region string) *dynamodb.Client {
	cfg := aws.Config{
		Region:      region, // DynamoDB Local doesn't care about region
		Credentials: aws.AnonymousCredentials{},
	}
	return dynamodb.NewFromConfig(cfg, func(o *dynamodb.Options) {
		o.BaseEndpoint = aws.String(endpoint)
	})
}

// NewLocalDynamoDB creates a LocalDynamoDB instance with the specified port.
func NewLocalDynamoDB(port int) *LocalDynamoDB {
	return &LocalDynamoDB{
		Client:   NewLocalClient(port),
		Endpoint: fmt.Sprintf("http://localhost:%d", port),
		Port:     port,
	}
}

// NewDefaultLocalDynamoDB creates a LocalDynamoDB instance on DefaultLocalPort.
func NewDefaultLocalDynamoDB() *LocalDynamoDB {
	return NewLocalDynamoDB(DefaultLocalPort)
}

// IsAvailable checks if DynamoDB Local is running on the configured port.
func (l *LocalDynamoDB) IsAvailable(ctx context.Context) bool {
	conn, err := net.DialTimeout("tcp", fmt.Sprintf("localhost:%d", l.Port), 2*time.Second)
	if err != nil {
		return false
	}
	conn.Close()

	// Try to list tables to verify it's actually DynamoDB
	_, err = l.Client.ListTables(ctx, &dynamodb.ListTablesInput{})
	return err == nil
}

// WaitForAvailable waits for DynamoDB Local to become available.
func (l *LocalDynamoDB) WaitForAvailable(ctx context.Context, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)

	for time.Now().Before(deadline) {
		if l.IsAvailable(ctx) {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(500 * time.Millisecond):
		}
	}

	return fmt.Errorf("DynamoDB Local not available at %s after %v", l.Endpoint, timeout)
}

// Backend returns a DynamoBackend over the named table.
func (l *LocalDynamoDB) Backend(tableName string) *apptables.DynamoBackend {
	return apptables.NewDynamoBackend(l.Client, tableName)
}

// CreateAppTable creates a table with the apptables layout and waits until
// it is active.
func (l *LocalDynamoDB) CreateAppTable(ctx context.Context, tableName string) error {
	if err := CreateAppTable(ctx, l.Client, l.Backend(tableName)); err != nil {
		return err
	}
	return l.WaitForTableActive(ctx, tableName, 30*time.Second)
}

// TableCreator is the part of the DynamoDB API needed to set up a table.
type TableCreator interface {
	CreateTable(ctx context.Context, params *dynamodb.CreateTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error)
	UpdateTimeToLive(ctx context.Context, params *dynamodb.UpdateTimeToLiveInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateTimeToLiveOutput, error)
}

// CreateAppTable creates the backend's table and ref index, then enables
// expiry of page cursors. A table that already exists is left as is.
func CreateAppTable(ctx context.Context, client TableCreator, backend *apptables.DynamoBackend) error {
	_, err := client.CreateTable(ctx, backend.MarshalCreateTable())
	var inUse *types.ResourceInUseException
	if errors.As(err, &inUse) {
		return nil
	} else if err != nil {
		return fmt.Errorf("failed to create table %s: %w", backend.TableName, err)
	}

	if _, err := client.UpdateTimeToLive(ctx, backend.MarshalTimeToLive()); err != nil {
		return fmt.Errorf("failed to enable time to live on %s: %w", backend.TableName, err)
	}
	return nil
}

// WaitForTableActive waits for a table to become active.
func (l *LocalDynamoDB) WaitForTableActive(ctx context.Context, tableName string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)

	for time.Now().Before(deadline) {
		output, err := l.Client.DescribeTable(ctx, &dynamodb.DescribeTableInput{
			TableName: aws.String(tableName),
		})
		if err != nil {
			return fmt.Errorf("failed to describe table %s: %w", tableName, err)
		}

		if output.Table.TableStatus == types.TableStatusActive {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(1 * time.Second):
		}
	}

	return fmt.Errorf("table %s did not become active within %v", tableName, timeout)
}

// DeleteTable deletes a table and waits for it to be fully deleted.
func (l *LocalDynamoDB) DeleteTable(ctx context.Context, tableName string) error {
	_, err := l.Client.DeleteTable(ctx, &dynamodb.DeleteTableInput{
		TableName: aws.String(tableName),
	})
	if err != nil {
		return fmt.Errorf("failed to delete table %s: %w", tableName, err)
	}

	return l.WaitForTableDeleted(ctx, tableName, 30*time.Second)
}

// WaitForTableDeleted waits for a table to be fully deleted.
func (l *LocalDynamoDB) WaitForTableDeleted(ctx context.Context, tableName string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)

	for time.Now().Before(deadline) {
		_, err := l.Client.DescribeTable(ctx, &dynamodb.DescribeTableInput{
			TableName: aws.String(tableName),
		})

		if err != nil {
			var notFoundErr *types.ResourceNotFoundException
			if errors.As(err, &notFoundErr) {
				return nil
			}
			return fmt.Errorf("error checking table deletion status: %w", err)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(1 * time.Second):
		}
	}

	return fmt.Errorf("table %s was not deleted within %v", tableName, timeout)
}

// ListTables returns all table names in the local DynamoDB instance.
func (l *LocalDynamoDB) ListTables(ctx context.Context) ([]string, error) {
	output, err := l.Client.ListTables(ctx, &dynamodb.ListTablesInput{})
	if err != nil {
		return nil, fmt.Errorf("failed to list tables: %w", err)
	}

	return output.TableNames, nil
}

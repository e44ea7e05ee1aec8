package apptest

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/nisimpson/apptables"
)

func TestNewLocalDynamoDB(t *testing.T) {
	local := NewLocalDynamoDB(8001)

	if local.Client == nil {
		t.Error("Client is nil")
	}
	if local.Endpoint != "http://localhost:8001" {
		t.Errorf("expected endpoint http://localhost:8001, got %s", local.Endpoint)
	}
	if local.Port != 8001 {
		t.Errorf("expected port 8001, got %d", local.Port)
	}

	if got := NewDefaultLocalDynamoDB().Port; got != DefaultLocalPort {
		t.Errorf("expected port %d, got %d", DefaultLocalPort, got)
	}
	if got := local.Backend("my-app").TableName; got != "my-app" {
		t.Errorf("expected backend table my-app, got %s", got)
	}
}

type mockTableCreator struct {
	createErr error
	created   *dynamodb.CreateTableInput
	ttl       *dynamodb.UpdateTimeToLiveInput
}

func (m *mockTableCreator) CreateTable(ctx context.Context, params *dynamodb.CreateTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error) {
	m.created = params
	if m.createErr != nil {
		return nil, m.createErr
	}
	return &dynamodb.CreateTableOutput{}, nil
}

func (m *mockTableCreator) UpdateTimeToLive(ctx context.Context, params *dynamodb.UpdateTimeToLiveInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateTimeToLiveOutput, error) {
	m.ttl = params
	return &dynamodb.UpdateTimeToLiveOutput{}, nil
}

func TestCreateAppTable(t *testing.T) {
	ctx := context.Background()
	backend := apptables.NewDynamoBackend(NewMockClient(t), "my-app")

	t.Run("creates table and enables ttl", func(t *testing.T) {
		creator := &mockTableCreator{}
		if err := CreateAppTable(ctx, creator, backend); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if creator.created == nil || aws.ToString(creator.created.TableName) != "my-app" {
			t.Errorf("expected table my-app to be created, got %+v", creator.created)
		}
		if creator.ttl == nil || aws.ToString(creator.ttl.TimeToLiveSpecification.AttributeName) != apptables.AttributeNameExpires {
			t.Errorf("expected ttl on %s, got %+v", apptables.AttributeNameExpires, creator.ttl)
		}
	})

	t.Run("existing table", func(t *testing.T) {
		creator := &mockTableCreator{createErr: &types.ResourceInUseException{}}
		if err := CreateAppTable(ctx, creator, backend); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if creator.ttl != nil {
			t.Error("expected ttl to be left alone")
		}
	})

	t.Run("failure", func(t *testing.T) {
		wantErr := errors.New("access denied")
		creator := &mockTableCreator{createErr: wantErr}
		if err := CreateAppTable(ctx, creator, backend); !errors.Is(err, wantErr) {
			t.Errorf("expected %v, got %v", wantErr, err)
		}
	})
}

func TestNewTestTable(t *testing.T) {
	name := NewTestTable("TestIntegration/rows and links")
	if !strings.HasPrefix(name, "TestIntegration-rows-and-links-") {
		t.Errorf("unexpected table name %s", name)
	}
}

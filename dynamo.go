package apptables

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

const (
	// MaxBatchSize is the maximum number of items allowed in a DynamoDB batch operation.
	MaxBatchSize = 25
)

// DynamoDBClient interface for easier testing and connection management.
type DynamoDBClient interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	BatchWriteItem(ctx context.Context, params *dynamodb.BatchWriteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	TransactWriteItems(ctx context.Context, params *dynamodb.TransactWriteItemsInput, optFns ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error)
}

// DynamoBackend stores every app table in a single DynamoDB table.
//
// Each row is an item whose hash and sort keys are both "<table>#<id>".
// The label attribute holds the table name and, with the gsi1_sk sort key
// (creation time + id), feeds the ref index used to list a table:
//
//	| hk           | sk           | label     | gsi1_sk                          | data            |
//	| ============ | ============ | ========= | ================================ | =============== |
//	| employees#E1 | employees#E1 | employees | 2024-01-02T03:04:05.000000000Z#E1 | {name: "Alice"} |
type DynamoBackend struct {
	TableName    string // Main table name
	RefIndexName string // Ref index name (maps to gsi1_sk attribute)
	KeyDelimiter string // Delimiter for hash and sort keys. Default is '#'.

	client DynamoDBClient
}

// NewDynamoBackend creates a DynamoBackend with default configuration.
func NewDynamoBackend(client DynamoDBClient, tableName string) *DynamoBackend {
	return &DynamoBackend{
		TableName:    tableName,
		RefIndexName: "ref-index",
		KeyDelimiter: DefaultKeyDelimiter,
		client:       client,
	}
}

// MarshalPut marshals the record into a put item request.
func (b *DynamoBackend) MarshalPut(r Record) (*dynamodb.PutItemInput, error) {
	item, err := marshalRecord(r, b.KeyDelimiter)
	if err != nil {
		return nil, err
	}
	return &dynamodb.PutItemInput{
		TableName: aws.String(b.TableName),
		Item:      item,
	}, nil
}

// MarshalGet marshals the key into a strongly consistent get item request.
func (b *DynamoBackend) MarshalGet(key Key) *dynamodb.GetItemInput {
	return &dynamodb.GetItemInput{
		TableName:      aws.String(b.TableName),
		Key:            tableKey(key, b.KeyDelimiter),
		ConsistentRead: aws.Bool(true),
	}
}

// MarshalDelete marshals the key into a delete item request.
func (b *DynamoBackend) MarshalDelete(key Key) *dynamodb.DeleteItemInput {
	return &dynamodb.DeleteItemInput{
		TableName: aws.String(b.TableName),
		Key:       tableKey(key, b.KeyDelimiter),
	}
}

// MarshalUpdate marshals an update write into an update item request. The
// request is conditioned on the item existing.
func (b *DynamoBackend) MarshalUpdate(w Write) (*dynamodb.UpdateItemInput, error) {
	expr, err := b.updateExpression(w)
	if err != nil {
		return nil, err
	}
	return &dynamodb.UpdateItemInput{
		TableName:                 aws.String(b.TableName),
		Key:                       tableKey(w.Key, b.KeyDelimiter),
		UpdateExpression:          expr.Update(),
		ConditionExpression:       expr.Condition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	}, nil
}

func (b *DynamoBackend) updateExpression(w Write) (expression.Expression, error) {
	update := expression.Set(expression.Name(AttributeNameUpdated), expression.Value(w.Updated))

	cols := make([]string, 0, len(w.Set))
	for col := range w.Set {
		cols = append(cols, col)
	}
	sort.Strings(cols)
	for _, col := range cols {
		update = update.Set(expression.Name(AttributeNameData+"."+col), expression.Value(w.Set[col]))
	}
	for _, col := range w.Remove {
		update = update.Remove(expression.Name(AttributeNameData + "." + col))
	}

	expr, err := expression.NewBuilder().
		WithUpdate(update).
		WithCondition(expression.AttributeExists(expression.Name(AttributeNameSource))).
		Build()
	if err != nil {
		return expression.Expression{}, fmt.Errorf("failed to build update expression: %w", err)
	}
	return expr, nil
}

// MarshalQuery marshals the input into a query on the ref index.
func (b *DynamoBackend) MarshalQuery(in QueryInput) (*dynamodb.QueryInput, error) {
	keyCondition := expression.Key(AttributeNameLabel).Equal(expression.Value(in.Table))
	builder := expression.NewBuilder().WithKeyCondition(keyCondition)

	filter, hasFilter := buildFilter(in.Filters)
	if hasFilter {
		builder = builder.WithFilter(filter)
	}

	expr, err := builder.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build expression: %w", err)
	}

	input := &dynamodb.QueryInput{
		TableName:                 aws.String(b.TableName),
		IndexName:                 aws.String(b.RefIndexName),
		KeyConditionExpression:    expr.KeyCondition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
		ScanIndexForward:          aws.Bool(true),
	}

	if hasFilter {
		input.FilterExpression = expr.Filter()
	}

	if in.Limit > 0 {
		input.Limit = aws.Int32(int32(in.Limit))
	}

	if in.StartKey != nil {
		input.ExclusiveStartKey = in.StartKey
	}

	return input, nil
}

// MarshalTransaction marshals writes into a single transact write request.
func (b *DynamoBackend) MarshalTransaction(writes []Write) (*dynamodb.TransactWriteItemsInput, error) {
	if len(writes) > MaxTransactionWrites {
		return nil, fmt.Errorf("%d writes: %w", len(writes), ErrTransactionTooLarge)
	}

	items := make([]types.TransactWriteItem, 0, len(writes))
	for _, w := range writes {
		switch w.Kind {
		case WritePut:
			put, err := b.MarshalPut(w.Record)
			if err != nil {
				return nil, err
			}
			items = append(items, types.TransactWriteItem{Put: &types.Put{
				TableName: put.TableName,
				Item:      put.Item,
			}})
		case WriteUpdate:
			expr, err := b.updateExpression(w)
			if err != nil {
				return nil, err
			}
			items = append(items, types.TransactWriteItem{Update: &types.Update{
				TableName:                 aws.String(b.TableName),
				Key:                       tableKey(w.Key, b.KeyDelimiter),
				UpdateExpression:          expr.Update(),
				ConditionExpression:       expr.Condition(),
				ExpressionAttributeNames:  expr.Names(),
				ExpressionAttributeValues: expr.Values(),
			}})
		case WriteDelete:
			items = append(items, types.TransactWriteItem{Delete: &types.Delete{
				TableName: aws.String(b.TableName),
				Key:       tableKey(w.Key, b.KeyDelimiter),
			}})
		default:
			return nil, fmt.Errorf("invalid write kind %s", w.Kind)
		}
	}

	return &dynamodb.TransactWriteItemsInput{TransactItems: items}, nil
}

// MarshalBatch marshals records into batch write put requests. Since there is a
// limit on how many requests can be contained in a single input, the requests are chunked
// in sizes of 25 or less.
func (b *DynamoBackend) MarshalBatch(records []Record) ([]*dynamodb.BatchWriteItemInput, error) {
	var batches []*dynamodb.BatchWriteItemInput

	for i := 0; i < len(records); i += MaxBatchSize {
		end := min(i+MaxBatchSize, len(records))

		var writeRequests []types.WriteRequest
		for _, r := range records[i:end] {
			item, err := marshalRecord(r, b.KeyDelimiter)
			if err != nil {
				return nil, err
			}
			writeRequests = append(writeRequests, types.WriteRequest{
				PutRequest: &types.PutRequest{Item: item},
			})
		}

		batches = append(batches, &dynamodb.BatchWriteItemInput{
			RequestItems: map[string][]types.WriteRequest{
				b.TableName: writeRequests,
			},
		})
	}

	return batches, nil
}

// GetRecord implements Backend.
func (b *DynamoBackend) GetRecord(ctx context.Context, key Key) (Record, error) {
	out, err := b.client.GetItem(ctx, b.MarshalGet(key))
	if err != nil {
		return Record{}, fmt.Errorf("failed to get item: %w", err)
	}
	if len(out.Item) == 0 {
		return Record{}, ErrItemNotFound
	}
	return unmarshalRecord(out.Item, b.KeyDelimiter)
}

// QueryRecords implements Backend.
func (b *DynamoBackend) QueryRecords(ctx context.Context, in QueryInput) (Page, error) {
	input, err := b.MarshalQuery(in)
	if err != nil {
		return Page{}, err
	}

	out, err := b.client.Query(ctx, input)
	if err != nil {
		return Page{}, fmt.Errorf("failed to query: %w", err)
	}

	page := Page{Records: make([]Record, 0, len(out.Items))}
	for i, item := range out.Items {
		r, err := unmarshalRecord(item, b.KeyDelimiter)
		if err != nil {
			return Page{}, fmt.Errorf("failed to unmarshal item %d: %w", i, err)
		}
		page.Records = append(page.Records, r)
	}
	if len(out.LastEvaluatedKey) > 0 {
		page.LastKey = out.LastEvaluatedKey
	}
	return page, nil
}

// Apply implements Backend. A single write is sent as its own request;
// several are sent as one TransactWriteItems call.
func (b *DynamoBackend) Apply(ctx context.Context, writes ...Write) error {
	switch len(writes) {
	case 0:
		return nil
	case 1:
		return b.applyOne(ctx, writes[0])
	}

	input, err := b.MarshalTransaction(writes)
	if err != nil {
		return err
	}
	if _, err := b.client.TransactWriteItems(ctx, input); err != nil {
		var canceled *types.TransactionCanceledException
		if errors.As(err, &canceled) {
			for _, reason := range canceled.CancellationReasons {
				if aws.ToString(reason.Code) == "ConditionalCheckFailed" {
					return fmt.Errorf("transaction canceled: %w", ErrItemNotFound)
				}
			}
		}
		return fmt.Errorf("failed to transact write items: %w", err)
	}
	return nil
}

func (b *DynamoBackend) applyOne(ctx context.Context, w Write) error {
	switch w.Kind {
	case WritePut:
		input, err := b.MarshalPut(w.Record)
		if err != nil {
			return err
		}
		if _, err := b.client.PutItem(ctx, input); err != nil {
			return fmt.Errorf("failed to put item: %w", err)
		}
	case WriteUpdate:
		input, err := b.MarshalUpdate(w)
		if err != nil {
			return err
		}
		if _, err := b.client.UpdateItem(ctx, input); err != nil {
			var failed *types.ConditionalCheckFailedException
			if errors.As(err, &failed) {
				return ErrItemNotFound
			}
			return fmt.Errorf("failed to update item: %w", err)
		}
	case WriteDelete:
		if _, err := b.client.DeleteItem(ctx, b.MarshalDelete(w.Key)); err != nil {
			return fmt.Errorf("failed to delete item: %w", err)
		}
	default:
		return fmt.Errorf("invalid write kind %s", w.Kind)
	}
	return nil
}

// PutRecords implements BatchLoader.
func (b *DynamoBackend) PutRecords(ctx context.Context, records []Record) error {
	batches, err := b.MarshalBatch(records)
	if err != nil {
		return err
	}

	for _, batch := range batches {
		out, err := b.client.BatchWriteItem(ctx, batch)
		if err != nil {
			return fmt.Errorf("failed to batch write: %w", err)
		}
		if n := len(out.UnprocessedItems[b.TableName]); n > 0 {
			return fmt.Errorf("batch write left %d items unprocessed", n)
		}
	}
	return nil
}

// MarshalCreateTable returns the request that creates the table and its ref
// index, both on-demand.
func (b *DynamoBackend) MarshalCreateTable() *dynamodb.CreateTableInput {
	return &dynamodb.CreateTableInput{
		TableName:   aws.String(b.TableName),
		BillingMode: types.BillingModePayPerRequest,
		AttributeDefinitions: []types.AttributeDefinition{
			{AttributeName: aws.String(AttributeNameSource), AttributeType: types.ScalarAttributeTypeS},
			{AttributeName: aws.String(AttributeNameTarget), AttributeType: types.ScalarAttributeTypeS},
			{AttributeName: aws.String(AttributeNameLabel), AttributeType: types.ScalarAttributeTypeS},
			{AttributeName: aws.String(AttributeNameRefSortKey), AttributeType: types.ScalarAttributeTypeS},
		},
		KeySchema: []types.KeySchemaElement{
			{AttributeName: aws.String(AttributeNameSource), KeyType: types.KeyTypeHash},
			{AttributeName: aws.String(AttributeNameTarget), KeyType: types.KeyTypeRange},
		},
		GlobalSecondaryIndexes: []types.GlobalSecondaryIndex{
			{
				IndexName: aws.String(b.RefIndexName),
				KeySchema: []types.KeySchemaElement{
					{AttributeName: aws.String(AttributeNameLabel), KeyType: types.KeyTypeHash},
					{AttributeName: aws.String(AttributeNameRefSortKey), KeyType: types.KeyTypeRange},
				},
				Projection: &types.Projection{ProjectionType: types.ProjectionTypeAll},
			},
		},
	}
}

// MarshalTimeToLive returns the request that enables expiry on the expires attribute.
func (b *DynamoBackend) MarshalTimeToLive() *dynamodb.UpdateTimeToLiveInput {
	return &dynamodb.UpdateTimeToLiveInput{
		TableName: aws.String(b.TableName),
		TimeToLiveSpecification: &types.TimeToLiveSpecification{
			AttributeName: aws.String(AttributeNameExpires),
			Enabled:       aws.Bool(true),
		},
	}
}

package apptables

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

var (
	// ErrItemNotFound is returned by a Backend when a record does not exist.
	ErrItemNotFound = errors.New("item not found")
	// ErrTableNotFound is returned when a table name is not defined in the app.
	ErrTableNotFound = errors.New("table does not exist in your app")
	// ErrColumnNotFound is returned when reading or writing a column the schema does not declare.
	ErrColumnNotFound = errors.New("no such column")
	// ErrTypeMismatch is returned when a value does not fit the column type.
	ErrTypeMismatch = errors.New("type mismatch")
	// ErrMultipleRows is returned by Table.Get when the query matches more than one row.
	ErrMultipleRows = errors.New("more than one row matched this query")
	// ErrRowDeleted is returned when a row reference points at a record that no longer exists.
	ErrRowDeleted = errors.New("row has been deleted")
	// ErrTransactionTooLarge is returned when a transaction buffers more writes than a backend accepts.
	ErrTransactionTooLarge = errors.New("transaction exceeds write limit")
)

// Clock is a function type that returns the current time for dependency injection.
type Clock func() time.Time

// DefaultClock returns the current UTC time.
func DefaultClock() time.Time {
	return time.Now().UTC()
}

// Item is an alias for the dynamodb attribute value map.
type Item = map[string]types.AttributeValue

// Key identifies one record: the table it belongs to and its row id.
type Key struct {
	Table string
	ID    string
}

// String returns the identity of the key, "<table>#<id>".
func (k Key) String() string {
	return k.Table + DefaultKeyDelimiter + k.ID
}

// Record is the persisted form of a row. Column values in Data are stored
// in their encoded form: links as row ids, dates and datetimes as strings,
// numbers as float64.
type Record struct {
	Key
	Data      map[string]any
	CreatedAt time.Time
	UpdatedAt time.Time
	Expires   time.Time // zero unless the record carries a time-to-live
}

// WriteKind names the mutation a Write performs.
type WriteKind int

const (
	WritePut WriteKind = iota + 1
	WriteUpdate
	WriteDelete
)

func (k WriteKind) String() string {
	switch k {
	case WritePut:
		return "put"
	case WriteUpdate:
		return "update"
	case WriteDelete:
		return "delete"
	default:
		return fmt.Sprintf("WriteKind(%d)", int(k))
	}
}

// Write is one mutation handed to Backend.Apply.
type Write struct {
	Kind    WriteKind
	Record  Record         // WritePut
	Key     Key            // WriteUpdate, WriteDelete
	Set     map[string]any // WriteUpdate: encoded column values to set
	Remove  []string       // WriteUpdate: columns to clear
	Updated time.Time      // WriteUpdate: modification timestamp
}

func (w Write) key() Key {
	if w.Kind == WritePut {
		return w.Record.Key
	}
	return w.Key
}

// QueryInput selects the records of one table, optionally filtered on column values.
type QueryInput struct {
	Table    string
	Filters  map[string]Condition // column name -> condition, combined with AND
	Limit    int                  // records evaluated per page; 0 means no limit
	StartKey Item                 // exclusive start key for pagination
}

// Page is one page of query results. LastKey is nil on the last page.
type Page struct {
	Records []Record
	LastKey Item
}

// Backend is the persistence engine behind Tables. Implementations must
// apply a multi-write call atomically.
type Backend interface {
	// GetRecord returns the record stored under key, or ErrItemNotFound.
	GetRecord(ctx context.Context, key Key) (Record, error)
	// QueryRecords returns one page of the records of a table, in insertion order.
	QueryRecords(ctx context.Context, in QueryInput) (Page, error)
	// Apply performs the writes. More than one write is committed atomically.
	Apply(ctx context.Context, writes ...Write) error
}

// BatchLoader is implemented by backends that can bulk-load records
// without transactional guarantees.
type BatchLoader interface {
	PutRecords(ctx context.Context, records []Record) error
}

const (
	// DefaultKeyDelimiter joins the table name and row id in hash and sort keys.
	DefaultKeyDelimiter = "#"

	AttributeNameSource     = "hk"
	AttributeNameTarget     = "sk"
	AttributeNameLabel      = "label"
	AttributeNameCreated    = "created_at"
	AttributeNameUpdated    = "updated_at"
	AttributeNameExpires    = "expires"
	AttributeNameData       = "data"
	AttributeNameRefSortKey = "gsi1_sk"

	// sortTimeFormat is fixed width so sort keys order lexically by time.
	sortTimeFormat = "2006-01-02T15:04:05.000000000Z"
)

// storedItem is the single-table layout of a record. A row is a self
// relationship: hash and sort key are both "<table>#<id>" and the label is
// the table name, which the ref index uses to list a table in insertion order.
type storedItem struct {
	Source    string         `dynamodbav:"hk"`
	Target    string         `dynamodbav:"sk"`
	Label     string         `dynamodbav:"label"`
	CreatedAt time.Time      `dynamodbav:"created_at"`
	UpdatedAt time.Time      `dynamodbav:"updated_at"`
	Expires   int64          `dynamodbav:"expires,omitempty"` // unix seconds, time-to-live attribute
	Data      map[string]any `dynamodbav:"data"`
	GSI1SK    string         `dynamodbav:"gsi1_sk"`
}

func recordKey(key Key, delim string) string {
	return key.Table + delim + key.ID
}

func refSortKey(r Record, delim string) string {
	return r.CreatedAt.UTC().Format(sortTimeFormat) + delim + r.ID
}

// marshalRecord converts a record into its dynamodb item.
func marshalRecord(r Record, delim string) (Item, error) {
	data := r.Data
	if data == nil {
		data = map[string]any{}
	}

	si := storedItem{
		Source:    recordKey(r.Key, delim),
		Target:    recordKey(r.Key, delim),
		Label:     r.Table,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
		Data:      data,
		GSI1SK:    refSortKey(r, delim),
	}
	if !r.Expires.IsZero() {
		si.Expires = r.Expires.Unix()
	}

	item, err := attributevalue.MarshalMap(si)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal record %s: %w", r.Key, err)
	}
	return item, nil
}

// unmarshalRecord converts a dynamodb item back into a record.
func unmarshalRecord(item Item, delim string) (Record, error) {
	key, err := unmarshalTableKey(item, delim)
	if err != nil {
		return Record{}, err
	}
	var si storedItem
	if err := attributevalue.UnmarshalMap(item, &si); err != nil {
		return Record{}, fmt.Errorf("failed to unmarshal record %s: %w", key, err)
	}

	r := Record{
		Key:       key,
		Data:      si.Data,
		CreatedAt: si.CreatedAt,
		UpdatedAt: si.UpdatedAt,
	}
	if r.Data == nil {
		r.Data = map[string]any{}
	}
	if si.Expires > 0 {
		r.Expires = time.Unix(si.Expires, 0).UTC()
	}
	return r, nil
}

// tableKey returns the primary key attributes for key.
func tableKey(key Key, delim string) Item {
	k := recordKey(key, delim)
	return Item{
		AttributeNameSource: &types.AttributeValueMemberS{Value: k},
		AttributeNameTarget: &types.AttributeValueMemberS{Value: k},
	}
}

// startKey returns the attributes dynamodb reports as the last evaluated key
// of a ref index query ending at item.
func startKey(item Item) Item {
	out := Item{}
	for _, name := range []string{AttributeNameSource, AttributeNameTarget, AttributeNameLabel, AttributeNameRefSortKey} {
		if v, ok := item[name]; ok {
			out[name] = v
		}
	}
	return out
}

// UnmarshalTableKey returns the key of the row stored in item. A row is a
// self relationship, so hash and sort key must both be "<table>#<id>" with
// the table matching the item's label.
func UnmarshalTableKey(item Item) (Key, error) {
	return unmarshalTableKey(item, DefaultKeyDelimiter)
}

func unmarshalTableKey(item Item, delim string) (Key, error) {
	var hk, sk, label string
	err := errors.Join(
		unmarshalAttr(item, AttributeNameSource, &hk),
		unmarshalAttr(item, AttributeNameTarget, &sk),
		unmarshalAttr(item, AttributeNameLabel, &label),
	)
	if err != nil {
		return Key{}, fmt.Errorf("invalid row key: %w", err)
	}
	if hk != sk {
		return Key{}, fmt.Errorf("invalid row key: %q relates to %q", hk, sk)
	}
	id, ok := strings.CutPrefix(hk, label+delim)
	if !ok || label == "" || id == "" {
		return Key{}, fmt.Errorf("invalid record key %q for label %q", hk, label)
	}
	return Key{Table: label, ID: id}, nil
}

func unmarshalAttr(item Item, name string, out *string) error {
	v, ok := item[name]
	if !ok {
		return fmt.Errorf("%s not found", name)
	}
	return attributevalue.Unmarshal(v, out)
}

package apptables

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/gob"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

func init() {
	// Register DynamoDB types with gob
	gob.Register(map[string]types.AttributeValue{})
	gob.Register(&types.AttributeValueMemberS{})
	gob.Register(&types.AttributeValueMemberN{})
	gob.Register(&types.AttributeValueMemberB{})
	gob.Register(&types.AttributeValueMemberSS{})
	gob.Register(&types.AttributeValueMemberNS{})
	gob.Register(&types.AttributeValueMemberBS{})
	gob.Register(&types.AttributeValueMemberM{})
	gob.Register(&types.AttributeValueMemberL{})
	gob.Register(&types.AttributeValueMemberNULL{})
	gob.Register(&types.AttributeValueMemberBOOL{})
}

// cursorTable is the reserved table name page cursors are stored under.
// Schema names may not start with '_', so it never collides with app tables.
const cursorTable = "_cursor"

// Paginator handles pagination by converting last evaluated keys into string
// cursors for clients, and in turn converting client cursors into start keys
// to continue paging of search results.
type Paginator interface {
	// PageCursor generates a string token from the provided start key. Implementors
	// should return an empty token if the start key is nil or empty.
	PageCursor(ctx context.Context, lastkey Item) (string, error)
	// StartKey generates a start key from the provided cursor. Implementors
	// should return a nil item if the cursor is an empty string.
	StartKey(ctx context.Context, cursor string) (Item, error)
}

// TablePaginator implements Paginator by storing start keys in the backend
// of the Tables namespace, as records that expire after Options.CursorTTL.
type TablePaginator struct {
	tables *Tables
}

// PageCursor stores lastkey gob encoded and returns the cursor that retrieves it.
// If lastkey is nil, an empty string is returned.
func (p *TablePaginator) PageCursor(ctx context.Context, lastkey Item) (string, error) {
	if len(lastkey) == 0 {
		return "", nil
	}

	cursor, err := generateCursor()
	if err != nil {
		return "", fmt.Errorf("failed to generate cursor: %w", err)
	}

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(lastkey); err != nil {
		return "", fmt.Errorf("failed to encode last key: %w", err)
	}

	now := p.tables.opts.Tick()
	rec := Record{
		Key:       Key{Table: cursorTable, ID: cursor},
		Data:      map[string]any{"key": buf.Bytes()},
		CreatedAt: now,
		UpdatedAt: now,
		Expires:   now.Add(p.tables.opts.CursorTTL),
	}

	// cursors are never part of a caller's transaction.
	if err := p.tables.backend.Apply(ctx, Write{Kind: WritePut, Record: rec}); err != nil {
		return "", fmt.Errorf("failed to store page cursor: %w", err)
	}
	return cursor, nil
}

// StartKey retrieves the start key stored under cursor. A cursor that is
// unknown or expired yields nil.
func (p *TablePaginator) StartKey(ctx context.Context, cursor string) (Item, error) {
	if cursor == "" {
		return nil, nil
	}

	rec, err := p.tables.backend.GetRecord(ctx, Key{Table: cursorTable, ID: cursor})
	if errors.Is(err, ErrItemNotFound) {
		return nil, nil
	} else if err != nil {
		return nil, fmt.Errorf("failed to get page cursor: %w", err)
	}

	// dynamodb deletes expired items lazily.
	if !rec.Expires.IsZero() && !p.tables.opts.Tick().Before(rec.Expires) {
		return nil, nil
	}

	data, ok := rec.Data["key"].([]byte)
	if !ok || len(data) == 0 {
		return nil, nil
	}

	var keyData Item
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&keyData); err != nil {
		return nil, fmt.Errorf("failed to decode last key: %w", err)
	}
	return keyData, nil
}

// generateCursor creates a unique cursor string using current time and random bytes
func generateCursor() (string, error) {
	timestamp := time.Now().UnixNano()

	randomBytes := make([]byte, 8)
	if _, err := rand.Read(randomBytes); err != nil {
		return "", err
	}

	combined := fmt.Sprintf("%d_%s", timestamp, base64.URLEncoding.EncodeToString(randomBytes))

	// Encode as base64 for URL safety
	return base64.URLEncoding.EncodeToString([]byte(combined)), nil
}

package apptest

import (
	"context"
	"fmt"
	"regexp"
	"testing"
	"time"
)

// WithLocalDynamoDB runs fn with a local DynamoDB instance. The test is
// skipped in short mode or when DynamoDB Local is not running.
func WithLocalDynamoDB(t *testing.T, port int, fn func(local *LocalDynamoDB)) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	local := NewLocalDynamoDB(port)
	if !local.IsAvailable(context.Background()) {
		t.Skipf("DynamoDB Local not available on port %d", port)
	}

	fn(local)
}

var invalidTableChars = regexp.MustCompile(`[^a-zA-Z0-9_.-]`)

// NewTestTable generates a unique, valid DynamoDB table name.
func NewTestTable(prefix string) string {
	name := fmt.Sprintf("%s-%d", invalidTableChars.ReplaceAllString(prefix, "-"), time.Now().UnixNano())
	if len(name) > 255 {
		name = name[len(name)-255:]
	}
	return name
}

// WithIsolatedTable runs fn with a fresh table named after the test. The
// table is deleted when fn returns, even if it panics.
func WithIsolatedTable(t *testing.T, local *LocalDynamoDB, fn func(tableName string)) {
	ctx := context.Background()
	tableName := NewTestTable("test-" + t.Name())

	if err := local.CreateAppTable(ctx, tableName); err != nil {
		t.Fatalf("Failed to create test table %s: %v", tableName, err)
	}

	defer func() {
		cleanupCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := local.DeleteTable(cleanupCtx, tableName); err != nil {
			t.Errorf("Failed to cleanup table %s: %v", tableName, err)
		}
	}()

	fn(tableName)
}

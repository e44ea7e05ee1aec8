package apptables

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

func TestTablePaginator(t *testing.T) {
	ctx := context.Background()
	now := testEpoch
	tables, backend := newTestTables(t, func(o *Options) {
		o.Tick = func() time.Time { return now }
		o.CursorTTL = time.Hour
	})
	p := tables.Paginator()

	lastKey := Item{
		AttributeNameSource:     &types.AttributeValueMemberS{Value: "people#P1"},
		AttributeNameTarget:     &types.AttributeValueMemberS{Value: "people#P1"},
		AttributeNameLabel:      &types.AttributeValueMemberS{Value: "people"},
		AttributeNameRefSortKey: &types.AttributeValueMemberS{Value: "2024-01-01T00:00:01.000000000Z#P1"},
	}

	t.Run("empty", func(t *testing.T) {
		cursor, err := p.PageCursor(ctx, nil)
		if err != nil || cursor != "" {
			t.Errorf("PageCursor(nil) = %q, %v", cursor, err)
		}
		key, err := p.StartKey(ctx, "")
		if err != nil || key != nil {
			t.Errorf("StartKey(\"\") = %v, %v", key, err)
		}
	})

	t.Run("round trip", func(t *testing.T) {
		cursor, err := p.PageCursor(ctx, lastKey)
		if err != nil {
			t.Fatal(err)
		}
		if cursor == "" {
			t.Fatal("expected a cursor")
		}
		if backend.Len() != 1 {
			t.Errorf("expected the cursor to be stored, got %d items", backend.Len())
		}

		key, err := p.StartKey(ctx, cursor)
		if err != nil {
			t.Fatal(err)
		}
		opts := cmpopts.IgnoreUnexported(types.AttributeValueMemberS{})
		if diff := cmp.Diff(lastKey, key, opts); diff != "" {
			t.Errorf("start key mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("unknown", func(t *testing.T) {
		key, err := p.StartKey(ctx, "bm9wZQ==")
		if err != nil || key != nil {
			t.Errorf("StartKey(unknown) = %v, %v", key, err)
		}
	})

	t.Run("expired", func(t *testing.T) {
		cursor, err := p.PageCursor(ctx, lastKey)
		if err != nil {
			t.Fatal(err)
		}
		now = now.Add(2 * time.Hour)
		key, err := p.StartKey(ctx, cursor)
		if err != nil || key != nil {
			t.Errorf("StartKey(expired) = %v, %v", key, err)
		}
	})
}

func TestSearchIterator_Page(t *testing.T) {
	ctx := context.Background()
	tables, _ := newTestTables(t)
	people := mustTable(t, tables, "people")
	for i := 0; i < 5; i++ {
		mustAdd(t, people, Fields{"age": i})
	}

	it, err := people.Search(ctx, Query{"age": GreaterThanOrEqual(1)})
	if err != nil {
		t.Fatal(err)
	}

	var ages []float64
	cursor := ""
	pages := 0
	for {
		rows, next, err := it.Page(ctx, cursor, 2)
		if err != nil {
			t.Fatalf("Page failed: %v", err)
		}
		pages++
		for _, r := range rows {
			v, err := r.Get(ctx, "age")
			if err != nil {
				t.Fatal(err)
			}
			ages = append(ages, v.(float64))
		}
		if next == "" {
			break
		}
		cursor = next
	}

	if diff := cmp.Diff([]float64{1, 2, 3, 4}, ages); diff != "" {
		t.Errorf("ages mismatch (-want +got):\n%s", diff)
	}
	if pages < 2 {
		t.Errorf("expected several pages, got %d", pages)
	}

	if _, _, err := it.Page(ctx, "bm9wZQ==", 2); !errors.Is(err, ErrItemNotFound) {
		t.Errorf("expected ErrItemNotFound for an unknown cursor, got %v", err)
	}
}

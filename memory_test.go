package apptables

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

func seedRecords(t *testing.T, backend *MemoryBackend, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		at := testEpoch.Add(time.Duration(i) * time.Second)
		rec := Record{
			Key:       Key{Table: "people", ID: fmt.Sprintf("P%d", i)},
			Data:      map[string]any{"age": float64(i)},
			CreatedAt: at,
			UpdatedAt: at,
		}
		if err := backend.Apply(context.Background(), Write{Kind: WritePut, Record: rec}); err != nil {
			t.Fatal(err)
		}
	}
}

func TestMemoryBackend_QueryRecords(t *testing.T) {
	ctx := context.Background()
	backend := NewMemoryBackend()
	seedRecords(t, backend, 5)
	if err := backend.Apply(ctx, Write{Kind: WritePut, Record: Record{Key: Key{Table: "teams", ID: "T1"}, CreatedAt: testEpoch}}); err != nil {
		t.Fatal(err)
	}

	t.Run("insertion order", func(t *testing.T) {
		page, err := backend.QueryRecords(ctx, QueryInput{Table: "people"})
		if err != nil {
			t.Fatal(err)
		}
		if len(page.Records) != 5 || page.LastKey != nil {
			t.Fatalf("expected 5 records on one page, got %d (last key %v)", len(page.Records), page.LastKey)
		}
		for i, r := range page.Records {
			if want := fmt.Sprintf("P%d", i); r.ID != want {
				t.Errorf("record %d = %s, want %s", i, r.ID, want)
			}
		}
	})

	t.Run("limit applies before filters", func(t *testing.T) {
		page, err := backend.QueryRecords(ctx, QueryInput{
			Table:   "people",
			Filters: map[string]Condition{"age": GreaterThan(1.0)},
			Limit:   2,
		})
		if err != nil {
			t.Fatal(err)
		}
		if len(page.Records) != 0 {
			t.Errorf("expected the first two records to be filtered out, got %v", page.Records)
		}
		if page.LastKey == nil {
			t.Fatal("expected a last key")
		}

		next, err := backend.QueryRecords(ctx, QueryInput{
			Table:    "people",
			Filters:  map[string]Condition{"age": GreaterThan(1.0)},
			Limit:    2,
			StartKey: page.LastKey,
		})
		if err != nil {
			t.Fatal(err)
		}
		if len(next.Records) != 2 || next.Records[0].ID != "P2" {
			t.Errorf("expected P2 and P3, got %v", next.Records)
		}
	})

	t.Run("exact final page", func(t *testing.T) {
		page, err := backend.QueryRecords(ctx, QueryInput{Table: "people", Limit: 5})
		if err != nil {
			t.Fatal(err)
		}
		last, err := backend.QueryRecords(ctx, QueryInput{Table: "people", Limit: 5, StartKey: page.LastKey})
		if err != nil {
			t.Fatal(err)
		}
		if len(last.Records) != 0 || last.LastKey != nil {
			t.Errorf("expected an empty final page, got %v", last)
		}
	})

	t.Run("canceled", func(t *testing.T) {
		canceled, cancel := context.WithCancel(ctx)
		cancel()
		if _, err := backend.QueryRecords(canceled, QueryInput{Table: "people"}); !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	})
}

func TestMemoryBackend_Apply(t *testing.T) {
	ctx := context.Background()

	t.Run("atomic", func(t *testing.T) {
		backend := NewMemoryBackend()
		seedRecords(t, backend, 1)

		err := backend.Apply(ctx,
			Write{Kind: WriteDelete, Key: Key{Table: "people", ID: "P0"}},
			Write{Kind: WritePut, Record: Record{Key: Key{Table: "people", ID: "P9"}}},
			Write{Kind: WriteUpdate, Key: Key{Table: "people", ID: "missing"}, Set: map[string]any{"age": 1.0}},
		)
		if !errors.Is(err, ErrItemNotFound) {
			t.Fatalf("expected ErrItemNotFound, got %v", err)
		}
		if _, err := backend.GetRecord(ctx, Key{Table: "people", ID: "P0"}); err != nil {
			t.Errorf("a failed apply must not delete: %v", err)
		}
		if _, err := backend.GetRecord(ctx, Key{Table: "people", ID: "P9"}); !errors.Is(err, ErrItemNotFound) {
			t.Errorf("a failed apply must not put: %v", err)
		}
	})

	t.Run("update", func(t *testing.T) {
		backend := NewMemoryBackend()
		seedRecords(t, backend, 1)
		updated := testEpoch.Add(time.Hour)

		err := backend.Apply(ctx, Write{
			Kind:    WriteUpdate,
			Key:     Key{Table: "people", ID: "P0"},
			Set:     map[string]any{"name": "Ada"},
			Remove:  []string{"age"},
			Updated: updated,
		})
		if err != nil {
			t.Fatal(err)
		}
		rec, err := backend.GetRecord(ctx, Key{Table: "people", ID: "P0"})
		if err != nil {
			t.Fatal(err)
		}
		if rec.Data["name"] != "Ada" || rec.Data["age"] != nil {
			t.Errorf("unexpected data %v", rec.Data)
		}
		if !rec.UpdatedAt.Equal(updated) || !rec.CreatedAt.Equal(testEpoch) {
			t.Errorf("unexpected timestamps %v %v", rec.CreatedAt, rec.UpdatedAt)
		}
	})

	t.Run("delete then put", func(t *testing.T) {
		backend := NewMemoryBackend()
		seedRecords(t, backend, 1)
		key := Key{Table: "people", ID: "P0"}

		err := backend.Apply(ctx,
			Write{Kind: WriteDelete, Key: key},
			Write{Kind: WritePut, Record: Record{Key: key, Data: map[string]any{"name": "again"}}},
		)
		if err != nil {
			t.Fatal(err)
		}
		rec, err := backend.GetRecord(ctx, key)
		if err != nil {
			t.Fatal(err)
		}
		if rec.Data["name"] != "again" {
			t.Errorf("unexpected data %v", rec.Data)
		}
	})
}

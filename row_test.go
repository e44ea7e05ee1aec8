package apptables

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestRow_Lazy(t *testing.T) {
	ctx := context.Background()
	tables, _ := newTestTables(t)
	people := mustTable(t, tables, "people")
	ada := mustAdd(t, people, Fields{"name": "Ada", "born": "1990-02-03"})

	ref := tables.Ref("people", ada.ID())
	if ref.Loaded() {
		t.Fatal("a reference must not be loaded before access")
	}
	if _, ok := ref.Cached(); ok {
		t.Error("Cached should report an unloaded row")
	}

	name, err := ref.Get(ctx, "name")
	if err != nil {
		t.Fatal(err)
	}
	if name != "Ada" || !ref.Loaded() {
		t.Errorf("Get() = %v, loaded %v", name, ref.Loaded())
	}

	born, err := ref.Get(ctx, "born")
	if err != nil {
		t.Fatal(err)
	}
	if d, ok := born.(time.Time); !ok || d.Year() != 1990 {
		t.Errorf("expected a date, got %v", born)
	}

	created, err := ref.CreatedAt(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !created.Equal(testEpoch.Add(time.Second)) {
		t.Errorf("CreatedAt = %v", created)
	}

	cached, ok := ref.Cached()
	if !ok || cached["name"] != "Ada" || cached["age"] != nil {
		t.Errorf("unexpected cached values %v", cached)
	}
}

func TestRow_SelfReference(t *testing.T) {
	ctx := context.Background()
	tables, _ := newTestTables(t)
	people := mustTable(t, tables, "people")

	ada := mustAdd(t, people, Fields{"name": "Ada"})
	if err := ada.Update(ctx, Fields{"friend": ada}); err != nil {
		t.Fatal(err)
	}

	friend, err := ada.Get(ctx, "friend")
	if err != nil {
		t.Fatal(err)
	}
	r, ok := friend.(*Row)
	if !ok || r.Key() != ada.Key() {
		t.Fatalf("expected a reference to %s, got %v", ada.Key(), friend)
	}
	if r == ada {
		t.Error("links are returned as fresh references")
	}
}

func TestRow_Update(t *testing.T) {
	ctx := context.Background()
	tables, backend := newTestTables(t)
	people := mustTable(t, tables, "people")
	ada := mustAdd(t, people, Fields{"name": "Ada", "age": 36})

	tests := []struct {
		name    string
		fields  Fields
		wantErr error
	}{
		{name: "set", fields: Fields{"age": 37}},
		{name: "clear", fields: Fields{"name": nil}},
		{name: "empty", fields: Fields{}},
		{name: "unknown column", fields: Fields{"nickname": "A"}, wantErr: ErrColumnNotFound},
		{name: "mismatch", fields: Fields{"admin": "yes"}, wantErr: ErrTypeMismatch},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := ada.Update(ctx, tt.fields); !errors.Is(err, tt.wantErr) {
				t.Errorf("Update() error = %v, want %v", err, tt.wantErr)
			}
		})
	}

	rec, err := backend.GetRecord(ctx, Key{Table: "people", ID: ada.ID()})
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(map[string]any{"age": 37.0}, rec.Data); diff != "" {
		t.Errorf("stored data mismatch (-want +got):\n%s", diff)
	}
	items, err := ada.Items(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if items["age"] != 37.0 || items["name"] != nil {
		t.Errorf("cached values out of date: %v", items)
	}
}

func TestRow_Delete(t *testing.T) {
	ctx := context.Background()
	tables, _ := newTestTables(t)
	people := mustTable(t, tables, "people")
	ada := mustAdd(t, people, Fields{"name": "Ada"})
	ref := tables.Ref("people", ada.ID())

	if err := ada.Delete(ctx); err != nil {
		t.Fatal(err)
	}
	if _, err := ada.Get(ctx, "name"); !errors.Is(err, ErrRowDeleted) {
		t.Errorf("expected ErrRowDeleted, got %v", err)
	}
	if err := ada.Update(ctx, Fields{"name": "Bo"}); !errors.Is(err, ErrRowDeleted) {
		t.Errorf("expected ErrRowDeleted, got %v", err)
	}
	if err := ref.Update(ctx, Fields{"name": "Bo"}); !errors.Is(err, ErrRowDeleted) {
		t.Errorf("expected ErrRowDeleted for a stale reference, got %v", err)
	}
	if err := ref.Refresh(ctx); !errors.Is(err, ErrRowDeleted) {
		t.Errorf("expected ErrRowDeleted on refresh, got %v", err)
	}
}

func TestRow_Describe(t *testing.T) {
	tables, _ := newTestTables(t)
	ref := tables.Ref("people", "P1")

	if got, want := ref.String(), "<Row: people#P1>"; got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}

	b, err := json.Marshal(ref)
	if err != nil {
		t.Fatal(err)
	}
	if got, want := string(b), `{"_table":"people","_id":"P1"}`; got != want {
		t.Errorf("MarshalJSON() = %s, want %s", got, want)
	}

	keys, err := ref.Keys()
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(testSchemas[0].ColumnNames(), keys); diff != "" {
		t.Errorf("Keys mismatch (-want +got):\n%s", diff)
	}
}

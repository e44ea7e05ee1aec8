package apptables

import (
	"context"
	"errors"
	"testing"
)

// failingBackend delegates to a MemoryBackend until err is set.
type failingBackend struct {
	*MemoryBackend
	err error
}

func (b *failingBackend) GetRecord(ctx context.Context, key Key) (Record, error) {
	if b.err != nil {
		return Record{}, b.err
	}
	return b.MemoryBackend.GetRecord(ctx, key)
}

func (b *failingBackend) QueryRecords(ctx context.Context, in QueryInput) (Page, error) {
	if b.err != nil {
		return Page{}, b.err
	}
	return b.MemoryBackend.QueryRecords(ctx, in)
}

func (b *failingBackend) Apply(ctx context.Context, writes ...Write) error {
	if b.err != nil {
		return b.err
	}
	return b.MemoryBackend.Apply(ctx, writes...)
}

func TestBackendErrors(t *testing.T) {
	ctx := context.Background()
	backend := &failingBackend{MemoryBackend: NewMemoryBackend()}
	tables := New(backend, testOptions)
	if err := tables.Define(testSchemas...); err != nil {
		t.Fatal(err)
	}
	people := mustTable(t, tables, "people")
	ada := mustAdd(t, people, Fields{"name": "Ada"})

	backendErr := errors.New("throttled")
	backend.err = backendErr

	t.Run("add row", func(t *testing.T) {
		if _, err := people.AddRow(ctx, Fields{"name": "Grace"}); !errors.Is(err, backendErr) {
			t.Errorf("expected %v, got %v", backendErr, err)
		}
	})

	t.Run("load row", func(t *testing.T) {
		_, err := tables.Ref("people", ada.ID()).Get(ctx, "name")
		if !errors.Is(err, backendErr) {
			t.Errorf("expected %v, got %v", backendErr, err)
		}
		if errors.Is(err, ErrRowDeleted) {
			t.Error("a failed read must not report the row as deleted")
		}
	})

	t.Run("get by id", func(t *testing.T) {
		if _, err := people.GetByID(ctx, ada.ID()); !errors.Is(err, backendErr) {
			t.Errorf("expected %v, got %v", backendErr, err)
		}
	})

	t.Run("search", func(t *testing.T) {
		it, err := people.Search(ctx, nil)
		if err != nil {
			t.Fatalf("Search failed: %v", err)
		}
		if it.Next(ctx) {
			t.Fatal("expected no rows")
		}
		if !errors.Is(it.Err(), backendErr) {
			t.Errorf("expected %v, got %v", backendErr, it.Err())
		}
		if _, err := people.Get(ctx, Query{"name": "Ada"}); !errors.Is(err, backendErr) {
			t.Errorf("expected %v from Get, got %v", backendErr, err)
		}
	})

	t.Run("transaction commit", func(t *testing.T) {
		err := tables.Transaction(ctx, func(ctx context.Context) error {
			_, err := people.AddRow(ctx, Fields{"name": "Grace"})
			return err
		})
		if !errors.Is(err, backendErr) {
			t.Errorf("expected %v, got %v", backendErr, err)
		}
	})
}

func TestValidationErrors(t *testing.T) {
	ctx := context.Background()
	tables, backend := newTestTables(t)
	people := mustTable(t, tables, "people")
	teams := mustTable(t, tables, "teams")
	core := mustAdd(t, teams, Fields{"name": "core"})

	tests := []struct {
		name   string
		fields Fields
		want   error
	}{
		{name: "unknown column", fields: Fields{"nickname": "Ada"}, want: ErrColumnNotFound},
		{name: "wrong scalar type", fields: Fields{"age": "old"}, want: ErrTypeMismatch},
		{name: "bad date", fields: Fields{"born": "03/02/1990"}, want: ErrTypeMismatch},
		{name: "link to the wrong table", fields: Fields{"friend": core}, want: ErrTypeMismatch},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := people.AddRow(ctx, tt.fields); !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}

	if backend.Len() != 1 {
		t.Errorf("rejected rows must not be stored, got %d records", backend.Len())
	}

	if _, err := tables.Get("nope"); !errors.Is(err, ErrTableNotFound) {
		t.Errorf("expected ErrTableNotFound, got %v", err)
	}
	if _, err := people.Search(ctx, Query{"nickname": "Ada"}); !errors.Is(err, ErrColumnNotFound) {
		t.Errorf("expected ErrColumnNotFound from Search, got %v", err)
	}
	if _, err := core.Get(ctx, "nickname"); !errors.Is(err, ErrColumnNotFound) {
		t.Errorf("expected ErrColumnNotFound from Row.Get, got %v", err)
	}
}

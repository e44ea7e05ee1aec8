package tablekit_test

import (
	"context"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/nisimpson/apptables"
	"github.com/nisimpson/apptables/tablekit"
)

func TestSearchIterator(t *testing.T) {
	ctx := context.Background()
	employees, _ := openSeeded(t, "employees")

	it, err := employees.Search(ctx, apptables.Query{"title": "Engineer"})
	if err != nil {
		t.Fatal(err)
	}

	t.Run("iterate", func(t *testing.T) {
		var names []any
		for it.Next(ctx) {
			name, err := it.Row().Get(ctx, "name", nil)
			if err != nil {
				t.Fatal(err)
			}
			names = append(names, name)
		}
		if err := it.Err(); err != nil {
			t.Fatal(err)
		}
		if diff := cmp.Diff([]any{"Bob", "Carol"}, names); diff != "" {
			t.Errorf("names mismatch (-want +got):\n%s", diff)
		}
		if it.Row() != nil {
			t.Error("expected no current row after the end")
		}

		it.Reset()
		if !it.Next(ctx) || it.Row().ID() != "E2" {
			t.Error("expected Reset to rewind to the first row")
		}
	})

	t.Run("len", func(t *testing.T) {
		n, err := it.Len(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if n != 2 {
			t.Errorf("Len() = %d, want 2", n)
		}
	})

	t.Run("index", func(t *testing.T) {
		tests := []struct {
			index int
			want  string
		}{
			{index: 0, want: "E2"},
			{index: 1, want: "E3"},
			{index: -1, want: "E3"},
			{index: 2, want: ""},
			{index: -3, want: ""},
		}
		for _, tt := range tests {
			row, err := it.Index(ctx, tt.index)
			if err != nil {
				t.Fatal(err)
			}
			got := ""
			if row != nil {
				got = row.ID()
			}
			if got != tt.want {
				t.Errorf("Index(%d) = %q, want %q", tt.index, got, tt.want)
			}

			host, err := it.HostIndex(ctx, tt.index)
			if err != nil {
				t.Fatal(err)
			}
			if (host == nil) != (tt.want == "") {
				t.Errorf("HostIndex(%d) = %v, want %q", tt.index, host, tt.want)
			}
		}
	})

	t.Run("rows", func(t *testing.T) {
		rows, err := it.Rows(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if len(rows) != 2 || rows[0].ID() != "E2" || rows[1].ID() != "E3" {
			t.Errorf("unexpected rows %v", rows)
		}
	})

	t.Run("to dicts", func(t *testing.T) {
		dicts, err := it.ToDicts(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if len(dicts) != 2 {
			t.Fatalf("expected 2 dicts, got %d", len(dicts))
		}
		carol, ok := dicts[1].(map[string]any)
		if !ok {
			t.Fatalf("expected a converted row, got %T", dicts[1])
		}
		if carol["title"] != "Engineer" {
			t.Errorf("expected Engineer, got %v", carol["title"])
		}
	})

	t.Run("string", func(t *testing.T) {
		s := it.String()
		if !strings.HasPrefix(s, "<SearchIterator: employees [<Row: name: Bob") {
			t.Errorf("unexpected String() %q", s)
		}
	})
}

func TestWrapSearch(t *testing.T) {
	ctx := context.Background()
	employees, _ := openSeeded(t, "employees")

	host, err := employees.HostSearch(ctx, apptables.Query{"active": true})
	if err != nil {
		t.Fatal(err)
	}
	it := tablekit.WrapSearch(host)
	if it.HostSearch() != host {
		t.Error("expected the wrapped search to be returned")
	}
	n, err := it.Len(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("Len() = %d, want 2", n)
	}
}

package apptables

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
)

func TestConditionMatch(t *testing.T) {
	tests := []struct {
		name    string
		cond    Condition
		value   any
		present bool
		want    bool
	}{
		{name: "equal", cond: Equal("a"), value: "a", present: true, want: true},
		{name: "equal number", cond: Equal(3.0), value: 3.0, present: true, want: true},
		{name: "not equal missing", cond: NotEqual("a"), present: false, want: true},
		{name: "less than", cond: LessThan(10.0), value: 3.0, present: true, want: true},
		{name: "less than other kind", cond: LessThan(10.0), value: "3", present: true, want: false},
		{name: "greater or equal", cond: GreaterThanOrEqual(3.0), value: 3.0, present: true, want: true},
		{name: "between", cond: Between(1.0, 5.0), value: 5.0, present: true, want: true},
		{name: "outside", cond: Between(1.0, 5.0), value: 6.0, present: true, want: false},
		{name: "any of", cond: AnyOf("a", "b"), value: "b", present: true, want: true},
		{name: "none of", cond: NoneOf("a", "b"), value: "b", present: true, want: false},
		{name: "none of missing", cond: NoneOf("a"), present: false, want: true},
		{name: "begins with", cond: BeginsWith("Al"), value: "Alice", present: true, want: true},
		{name: "contains string", cond: Contains("lic"), value: "Alice", present: true, want: true},
		{name: "contains list", cond: Contains("E2"), value: []any{"E2", "E3"}, present: true, want: true},
		{name: "contains number in list", cond: Contains(3.0), value: []any{1.0, 3.0}, present: true, want: true},
		{name: "contains number in string", cond: Contains(3.0), value: "a3", present: true, want: false},
		{name: "is null missing", cond: IsNull(), present: false, want: true},
		{name: "is null value", cond: IsNull(), value: "x", present: true, want: false},
		{name: "not null", cond: NotNull(), value: false, present: true, want: true},
		{name: "comparison on missing", cond: GreaterThan(1.0), present: false, want: false},
		{name: "equal object", cond: Equal(map[string]any{"a": 1.0}), value: map[string]any{"a": 1.0}, present: true, want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.cond.match(tt.value, tt.present); got != tt.want {
				t.Errorf("%s.match(%v) = %v, want %v", tt.cond, tt.value, got, tt.want)
			}
		})
	}
}

func TestConditionValidate(t *testing.T) {
	tests := []struct {
		name    string
		cond    Condition
		wantErr bool
	}{
		{name: "equal", cond: Equal(1)},
		{name: "equal nil", cond: Equal(nil)},
		{name: "between", cond: Between(1, 2)},
		{name: "empty any of", cond: AnyOf(), wantErr: true},
		{name: "zero condition", cond: Condition{}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.cond.validate(); (err != nil) != tt.wantErr {
				t.Errorf("validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestBuildFilter(t *testing.T) {
	if _, ok := buildFilter(nil); ok {
		t.Error("expected no filter for an empty query")
	}

	filters := map[string]Condition{
		"name": Equal("Ada"),
		"age":  GreaterThan(30.0),
		"tags": Contains("x"),
	}
	cond, ok := buildFilter(filters)
	if !ok {
		t.Fatal("expected a filter")
	}

	expr, err := expression.NewBuilder().WithFilter(cond).Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if expr.Filter() == nil || *expr.Filter() == "" {
		t.Fatal("expected a filter expression")
	}

	names := map[string]bool{}
	for _, name := range expr.Names() {
		names[name] = true
	}
	for _, want := range []string{"data", "name", "age", "tags"} {
		if !names[want] {
			t.Errorf("expected attribute name %q in %v", want, expr.Names())
		}
	}
}

func TestTableSearch_Filters(t *testing.T) {
	ctx := context.Background()
	tables, _ := newTestTables(t)
	people := mustTable(t, tables, "people")
	teams := mustTable(t, tables, "teams")

	core := mustAdd(t, teams, Fields{"name": "core"})
	web := mustAdd(t, teams, Fields{"name": "web"})
	ada := mustAdd(t, people, Fields{"name": "Ada", "age": 36, "teams": []*Row{core}})
	mustAdd(t, people, Fields{"name": "Bo", "age": 25, "teams": []*Row{core, web}, "friend": ada})
	mustAdd(t, people, Fields{"name": "Cy"})

	tests := []struct {
		name  string
		query Query
		want  []string
	}{
		{name: "everything", query: nil, want: []string{"Ada", "Bo", "Cy"}},
		{name: "literal", query: Query{"name": "Bo"}, want: []string{"Bo"}},
		{name: "condition", query: Query{"age": GreaterThan(30)}, want: []string{"Ada"}},
		{name: "link", query: Query{"friend": ada}, want: []string{"Bo"}},
		{name: "membership", query: Query{"teams": web}, want: []string{"Bo"}},
		{name: "null", query: Query{"age": nil}, want: []string{"Cy"}},
		{name: "and", query: Query{"teams": core, "age": LessThan(30)}, want: []string{"Bo"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			it, err := people.Search(ctx, tt.query)
			if err != nil {
				t.Fatal(err)
			}
			var got []string
			for it.Next(ctx) {
				v, err := it.Row().Get(ctx, "name")
				if err != nil {
					t.Fatal(err)
				}
				got = append(got, v.(string))
			}
			if err := it.Err(); err != nil {
				t.Fatal(err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("got %v, want %v", got, tt.want)
				}
			}
		})
	}

	t.Run("invalid", func(t *testing.T) {
		if _, err := people.Search(ctx, Query{"age": GreaterThan("old")}); !errors.Is(err, ErrTypeMismatch) {
			t.Errorf("expected ErrTypeMismatch, got %v", err)
		}
		if _, err := people.Search(ctx, Query{"nickname": "x"}); !errors.Is(err, ErrColumnNotFound) {
			t.Errorf("expected ErrColumnNotFound, got %v", err)
		}
	})
}

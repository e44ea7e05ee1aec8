package apptables

import (
	"context"
	"fmt"
	"testing"
	"time"
)

var testSchemas = []Schema{
	{
		Name: "people",
		Columns: []Column{
			{Name: "name", Type: ColumnString},
			{Name: "age", Type: ColumnNumber},
			{Name: "admin", Type: ColumnBool},
			{Name: "born", Type: ColumnDate},
			{Name: "seen", Type: ColumnDateTime},
			{Name: "friend", Type: ColumnLinkSingle, Target: "people"},
			{Name: "teams", Type: ColumnLinkMultiple, Target: "teams"},
			{Name: "prefs", Type: ColumnSimpleObject},
		},
	},
	{
		Name: "teams",
		Columns: []Column{
			{Name: "name", Type: ColumnString},
			{Name: "lead", Type: ColumnLinkSingle, Target: "people"},
		},
	},
}

var testEpoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func testOptions(o *Options) {
	now := testEpoch
	n := 0
	o.Tick = func() time.Time {
		now = now.Add(time.Second)
		return now
	}
	o.NewID = func() string {
		n++
		return fmt.Sprintf("id%03d", n)
	}
}

func newTestTables(t *testing.T, opts ...func(*Options)) (*Tables, *MemoryBackend) {
	t.Helper()
	backend := NewMemoryBackend()
	tables := New(backend, append([]func(*Options){testOptions}, opts...)...)
	if err := tables.Define(testSchemas...); err != nil {
		t.Fatalf("Define failed: %v", err)
	}
	return tables, backend
}

func mustTable(t *testing.T, tables *Tables, name string) *Table {
	t.Helper()
	table, err := tables.Get(name)
	if err != nil {
		t.Fatalf("Get(%q) failed: %v", name, err)
	}
	return table
}

func mustAdd(t *testing.T, table *Table, fields Fields) *Row {
	t.Helper()
	row, err := table.AddRow(context.Background(), fields)
	if err != nil {
		t.Fatalf("AddRow failed: %v", err)
	}
	return row
}

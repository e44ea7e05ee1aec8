package apptest

import (
	"bytes"
	"context"
	_ "embed"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/nisimpson/apptables"
)

//go:embed fixtures/employees.json
var employeesJSON []byte

// EmployeesJSON returns the employees seed document: three employees and a
// department whose links form cycles. E1 manages itself, E2 and E3; D1's
// head is E1, whose department is D1.
func EmployeesJSON() []byte {
	return bytes.Clone(employeesJSON)
}

// EmployeeSchemas returns the schemas of the employees fixture.
func EmployeeSchemas() []apptables.Schema {
	return []apptables.Schema{
		{
			Name: "employees",
			Columns: []apptables.Column{
				{Name: "name", Type: apptables.ColumnString},
				{Name: "title", Type: apptables.ColumnString},
				{Name: "salary", Type: apptables.ColumnNumber},
				{Name: "active", Type: apptables.ColumnBool},
				{Name: "hired", Type: apptables.ColumnDate},
				{Name: "manager", Type: apptables.ColumnLinkSingle, Target: "employees"},
				{Name: "reports", Type: apptables.ColumnLinkMultiple, Target: "employees"},
				{Name: "department", Type: apptables.ColumnLinkSingle, Target: "departments"},
				{Name: "skills", Type: apptables.ColumnSimpleObject},
				{Name: "profile", Type: apptables.ColumnSimpleObject},
			},
		},
		{
			Name: "departments",
			Columns: []apptables.Column{
				{Name: "name", Type: apptables.ColumnString},
				{Name: "head", Type: apptables.ColumnLinkSingle, Target: "employees"},
				{Name: "members", Type: apptables.ColumnLinkMultiple, Target: "employees"},
			},
		},
	}
}

// StepClock returns a clock that starts at start and advances by step on
// every call, so rows sort in insertion order.
func StepClock(start time.Time, step time.Duration) apptables.Clock {
	var mu sync.Mutex
	now := start.Add(-step)
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		now = now.Add(step)
		return now
	}
}

// SequentialIDs returns an id generator yielding prefix1, prefix2, ...
func SequentialIDs(prefix string) func() string {
	var mu sync.Mutex
	n := 0
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("%s%d", prefix, n)
	}
}

// NewTables creates a namespace over a fresh MemoryBackend with the
// employees schemas defined, a step clock and sequential ids.
func NewTables(t testing.TB, opts ...func(*apptables.Options)) (*apptables.Tables, *apptables.MemoryBackend) {
	t.Helper()

	backend := apptables.NewMemoryBackend()
	defaults := func(o *apptables.Options) {
		o.Tick = StepClock(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), time.Second)
		o.NewID = SequentialIDs("R")
	}
	tables := apptables.New(backend, append([]func(*apptables.Options){defaults}, opts...)...)
	if err := tables.Define(EmployeeSchemas()...); err != nil {
		t.Fatalf("failed to define schemas: %v", err)
	}
	return tables, backend
}

// NewSeededTables is NewTables with the employees fixture imported.
func NewSeededTables(t testing.TB, opts ...func(*apptables.Options)) (*apptables.Tables, *apptables.MemoryBackend) {
	t.Helper()

	tables, backend := NewTables(t, opts...)
	if _, err := SeedFromJSON(context.Background(), tables, bytes.NewReader(employeesJSON)); err != nil {
		t.Fatalf("failed to seed employees: %v", err)
	}
	return tables, backend
}

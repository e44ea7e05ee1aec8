// Package assert provides fluent assertion utilities for testing apptables
// rows and the DynamoDB items they are stored as.
//
// # Usage
//
//	import "github.com/nisimpson/apptables/apptest/assert"
//
//	// Assert on DynamoDB items
//	assert.Items(t, input.Item).
//		HasCount(1).
//		ContainsRow("employees", "E1").
//		HasAttribute("label", "employees")
//
//	// Assert on rows
//	assert.Row(t, ctx, row).
//		Exists().
//		HasValue("name", "Alice").
//		LinksTo("manager", "employees", "E1")
package assert

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/go-cmp/cmp"
	"github.com/nisimpson/apptables"
)

// ItemsAssertion provides fluent assertions for DynamoDB items.
type ItemsAssertion struct {
	t     testing.TB
	items []apptables.Item
}

// Items creates a new ItemsAssertion for the given DynamoDB items.
func Items(t testing.TB, items ...apptables.Item) *ItemsAssertion {
	return &ItemsAssertion{t: t, items: items}
}

// HasCount asserts that the items collection has the expected count.
func (a *ItemsAssertion) HasCount(expected int) *ItemsAssertion {
	a.t.Helper()
	if len(a.items) != expected {
		a.t.Errorf("expected %d items, got %d", expected, len(a.items))
	}
	return a
}

// ContainsRow asserts that the items contain the row with the given table and id.
func (a *ItemsAssertion) ContainsRow(table, id string) *ItemsAssertion {
	a.t.Helper()
	expectedKey := fmt.Sprintf("%s#%s", table, id)

	for _, item := range a.items {
		hk, sk := stringAttr(item, apptables.AttributeNameSource), stringAttr(item, apptables.AttributeNameTarget)
		if hk == expectedKey && sk == expectedKey {
			return a
		}
	}

	a.t.Errorf("expected to find row %s in items", expectedKey)
	return a
}

// HasAttribute asserts that at least one item has the string attribute with the expected value.
func (a *ItemsAssertion) HasAttribute(attributeName, expectedValue string) *ItemsAssertion {
	a.t.Helper()
	for _, item := range a.items {
		if stringAttr(item, attributeName) == expectedValue {
			return a
		}
	}

	a.t.Errorf("expected to find attribute %s with value %s in items", attributeName, expectedValue)
	return a
}

// HasData asserts that at least one item has the data column with the expected string value.
func (a *ItemsAssertion) HasData(column, expectedValue string) *ItemsAssertion {
	a.t.Helper()
	for _, item := range a.items {
		data, ok := item[apptables.AttributeNameData].(*types.AttributeValueMemberM)
		if !ok {
			continue
		}
		if s, ok := data.Value[column].(*types.AttributeValueMemberS); ok && s.Value == expectedValue {
			return a
		}
	}

	a.t.Errorf("expected to find data column %s with value %s in items", column, expectedValue)
	return a
}

func stringAttr(item apptables.Item, name string) string {
	if s, ok := item[name].(*types.AttributeValueMemberS); ok {
		return s.Value
	}
	return ""
}

// RowAssertion provides fluent assertions for live rows.
type RowAssertion struct {
	t   testing.TB
	ctx context.Context
	row *apptables.Row
}

// Row creates a new RowAssertion. Assertions read the row through ctx.
func Row(t testing.TB, ctx context.Context, row apptables.HostRower) *RowAssertion {
	var r *apptables.Row
	if row != nil {
		r = row.HostRow()
	}
	return &RowAssertion{t: t, ctx: ctx, row: r}
}

// Exists asserts that the row is stored.
func (a *RowAssertion) Exists() *RowAssertion {
	a.t.Helper()
	if a.row == nil {
		a.t.Error("expected a row, got nil")
		return a
	}
	if err := a.row.Refresh(a.ctx); err != nil {
		a.t.Errorf("expected row %s to exist: %v", a.row.Key(), err)
	}
	return a
}

// IsDeleted asserts that the row is no longer stored.
func (a *RowAssertion) IsDeleted() *RowAssertion {
	a.t.Helper()
	if a.row == nil {
		return a
	}
	if err := a.row.Refresh(a.ctx); !errors.Is(err, apptables.ErrRowDeleted) {
		a.t.Errorf("expected row %s to be deleted, got %v", a.row.Key(), err)
	}
	return a
}

// HasValue asserts that a column holds want.
func (a *RowAssertion) HasValue(column string, want any) *RowAssertion {
	a.t.Helper()
	if a.row == nil {
		a.t.Errorf("expected %s = %v on a nil row", column, want)
		return a
	}
	got, err := a.row.Get(a.ctx, column)
	if err != nil {
		a.t.Errorf("failed to read %s.%s: %v", a.row.Key(), column, err)
		return a
	}
	if diff := cmp.Diff(want, got); diff != "" {
		a.t.Errorf("%s.%s mismatch (-want +got):\n%s", a.row.Key(), column, diff)
	}
	return a
}

// LinksTo asserts that a link column references the given row. For
// multiple-link columns the row must be one of the references.
func (a *RowAssertion) LinksTo(column, table, id string) *RowAssertion {
	a.t.Helper()
	if a.row == nil {
		a.t.Errorf("expected %s to link to %s#%s on a nil row", column, table, id)
		return a
	}
	got, err := a.row.Get(a.ctx, column)
	if err != nil {
		a.t.Errorf("failed to read %s.%s: %v", a.row.Key(), column, err)
		return a
	}

	want := table + "#" + id
	switch v := got.(type) {
	case *apptables.Row:
		if v != nil && v.Key() == want {
			return a
		}
	case []*apptables.Row:
		for _, r := range v {
			if r.Key() == want {
				return a
			}
		}
	}
	a.t.Errorf("expected %s.%s to link to %s, got %v", a.row.Key(), column, want, got)
	return a
}

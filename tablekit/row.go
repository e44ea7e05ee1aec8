package tablekit

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/nisimpson/apptables"
)

// Row wraps a host row. Values read through Get are converted on access:
// nested rows come back wrapped, so walking a cyclic graph only resolves
// the rows actually visited.
type Row struct {
	row *apptables.Row
	ser *Serializer
}

// Wrap wraps a host row. Wrap(nil) returns nil.
func Wrap(row *apptables.Row) *Row {
	if row == nil {
		return nil
	}
	return &Row{row: row, ser: &Serializer{Tables: row.Tables()}}
}

// HostRow returns the wrapped row. It implements apptables.HostRower, so a
// wrapped row can be stored in a link column directly.
func (r *Row) HostRow() *apptables.Row { return r.row }

// ID returns the row id.
func (r *Row) ID() string { return r.row.ID() }

// TableName returns the name of the row's table.
func (r *Row) TableName() string { return r.row.TableName() }

// Key returns the row identity, "<table>#<id>".
func (r *Row) Key() string { return r.row.Key() }

// Keys returns the column names of the row.
func (r *Row) Keys() ([]string, error) { return r.row.Keys() }

// Get returns the converted value of a column, or def when the column does
// not exist or is empty.
func (r *Row) Get(ctx context.Context, key string, def any) (any, error) {
	v, err := r.row.Get(ctx, key)
	if errors.Is(err, apptables.ErrColumnNotFound) {
		return def, nil
	} else if err != nil {
		return nil, err
	}
	if v == nil {
		return def, nil
	}
	return wrapValue(v), nil
}

// Value returns the converted value of a column. Unknown columns return
// apptables.ErrColumnNotFound.
func (r *Row) Value(ctx context.Context, key string) (any, error) {
	v, err := r.row.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	return wrapValue(v), nil
}

func wrapValue(v any) any {
	switch x := v.(type) {
	case *apptables.Row:
		return Wrap(x)
	case []*apptables.Row:
		out := make([]*Row, len(x))
		for i, row := range x {
			out[i] = Wrap(row)
		}
		return out
	case *apptables.SearchIterator:
		return WrapSearch(x)
	}
	return v
}

// Set sets a single column.
func (r *Row) Set(ctx context.Context, key string, v any) error {
	return r.Update(ctx, apptables.Fields{key: v})
}

// Update sets column values in a transaction. Wrapped rows, wrapped
// searches and reference objects are converted to host values first.
func (r *Row) Update(ctx context.Context, fields apptables.Fields) error {
	tables := r.row.Tables()
	return tables.Transaction(ctx, func(ctx context.Context) error {
		host, err := r.ser.ToFields(ctx, fields)
		if err != nil {
			return err
		}
		return r.row.Update(ctx, host)
	})
}

// Delete deletes the row.
func (r *Row) Delete(ctx context.Context) error {
	return r.row.Delete(ctx)
}

// list returns the current value of a list column as a fresh slice.
func (r *Row) list(ctx context.Context, column string) ([]any, error) {
	v, err := r.row.Get(ctx, column)
	if err != nil {
		return nil, err
	}
	switch x := v.(type) {
	case nil:
		return nil, nil
	case []*apptables.Row:
		out := make([]any, len(x))
		for i, row := range x {
			out[i] = row
		}
		return out, nil
	case []any:
		return append([]any(nil), x...), nil
	}
	return nil, fmt.Errorf("column %s holds %T, not a list: %w", column, v, apptables.ErrTypeMismatch)
}

// AddToListColumn appends value to a list column: a multiple-link column
// or a simple object column holding a list.
func (r *Row) AddToListColumn(ctx context.Context, column string, value any) error {
	current, err := r.list(ctx, column)
	if err != nil {
		return err
	}
	host, err := r.ser.ToHost(ctx, value)
	if err != nil {
		return err
	}
	return r.Update(ctx, apptables.Fields{column: append(current, host)})
}

// RemoveFromListColumn removes the first occurrence of value from a list
// column. Nothing is written when the value is not in the list.
func (r *Row) RemoveFromListColumn(ctx context.Context, column string, value any) error {
	current, err := r.list(ctx, column)
	if err != nil {
		return err
	}
	for i, el := range current {
		if sameValue(el, value) {
			return r.Update(ctx, apptables.Fields{column: append(current[:i], current[i+1:]...)})
		}
	}
	return nil
}

// sameValue compares list elements: rows by identity, numbers by value.
func sameValue(a, b any) bool {
	if ra, ok := a.(apptables.HostRower); ok {
		rb, ok := b.(apptables.HostRower)
		return ok && ra.HostRow() != nil && rb.HostRow() != nil && ra.HostRow().Key() == rb.HostRow().Key()
	}
	if fa, ok := number(a); ok {
		fb, ok := number(b)
		return ok && fa == fb
	}
	return reflect.DeepEqual(a, b)
}

func number(v any) (float64, bool) {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int()), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(rv.Uint()), true
	case reflect.Float32, reflect.Float64:
		return rv.Float(), true
	}
	return 0, false
}

// dict returns the current value of a dict column as a fresh map.
func (r *Row) dict(ctx context.Context, column string) (map[string]any, error) {
	v, err := r.row.Get(ctx, column)
	if err != nil {
		return nil, err
	}
	out := map[string]any{}
	switch x := v.(type) {
	case nil:
	case map[string]any:
		for k, el := range x {
			out[k] = el
		}
	default:
		return nil, fmt.Errorf("column %s holds %T, not a dict: %w", column, v, apptables.ErrTypeMismatch)
	}
	return out, nil
}

// AddToDictColumn sets key in a simple object column holding a dict.
func (r *Row) AddToDictColumn(ctx context.Context, column, key string, value any) error {
	current, err := r.dict(ctx, column)
	if err != nil {
		return err
	}
	current[key] = value
	return r.Update(ctx, apptables.Fields{column: current})
}

// RemoveFromDictColumn removes key from a simple object column holding a
// dict. Nothing is written when the key is absent.
func (r *Row) RemoveFromDictColumn(ctx context.Context, column, key string) error {
	current, err := r.dict(ctx, column)
	if err != nil {
		return err
	}
	if _, ok := current[key]; !ok {
		return nil
	}
	delete(current, key)
	return r.Update(ctx, apptables.Fields{column: current})
}

// UpdateSimpleObjectColumn replaces the value of a simple object column.
// Data other than a map or a list returns apptables.ErrTypeMismatch.
func (r *Row) UpdateSimpleObjectColumn(ctx context.Context, column string, data any) error {
	switch reflect.ValueOf(data).Kind() {
	case reflect.Map, reflect.Slice, reflect.Array:
	default:
		return fmt.Errorf("column %s: simple object must be a map or a list, got %T: %w", column, data, apptables.ErrTypeMismatch)
	}
	return r.Update(ctx, apptables.Fields{column: data})
}

// ToDict converts the row and the rows it links to into plain values.
func (r *Row) ToDict(ctx context.Context) (map[string]any, error) {
	v, err := r.ser.ToDict(ctx, r)
	if err != nil {
		return nil, err
	}
	m, _ := v.(map[string]any)
	return m, nil
}

// MarshalJSON encodes the row as a reference object.
func (r *Row) MarshalJSON() ([]byte, error) {
	return r.row.MarshalJSON()
}

// String shows up to two scalar columns of a loaded row. Unloaded rows are
// shown by key, so String never reads from the backend.
func (r *Row) String() string {
	items, ok := r.row.Cached()
	if !ok {
		return "<Row: " + r.row.Key() + ">"
	}
	keys, err := r.row.Keys()
	if err != nil {
		return "<Row: " + r.row.Key() + ">"
	}

	var shown []string
	for _, k := range keys {
		switch v := items[k].(type) {
		case string, float64, bool:
			shown = append(shown, fmt.Sprintf("%s: %v", k, v))
		}
		if len(shown) == 2 {
			break
		}
	}

	s := strings.Join(shown, ", ")
	if len(keys) > 2 {
		s += fmt.Sprintf(", plus %d more columns", len(keys)-2)
	}
	return "<Row: " + s + ">"
}

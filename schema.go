package apptables

import (
	"fmt"
	"reflect"
	"strings"
	"time"
)

// ColumnType is the declared type of a table column.
type ColumnType string

const (
	ColumnString       ColumnType = "string"
	ColumnNumber       ColumnType = "number"
	ColumnBool         ColumnType = "bool"
	ColumnDate         ColumnType = "date"
	ColumnDateTime     ColumnType = "datetime"
	ColumnSimpleObject ColumnType = "simpleObject"
	ColumnLinkSingle   ColumnType = "link_single"
	ColumnLinkMultiple ColumnType = "link_multiple"
)

const (
	dateFormat     = "2006-01-02"
	datetimeFormat = time.RFC3339Nano

	// maxObjectDepth bounds simple object nesting, which also rejects cyclic values.
	maxObjectDepth = 64
)

func (t ColumnType) valid() bool {
	switch t {
	case ColumnString, ColumnNumber, ColumnBool, ColumnDate, ColumnDateTime,
		ColumnSimpleObject, ColumnLinkSingle, ColumnLinkMultiple:
		return true
	}
	return false
}

// IsLink reports whether the column holds row references.
func (t ColumnType) IsLink() bool {
	return t == ColumnLinkSingle || t == ColumnLinkMultiple
}

// Column describes one column of a table.
type Column struct {
	Name   string     `json:"name" toml:"name"`
	Type   ColumnType `json:"type" toml:"type"`
	Target string     `json:"target,omitempty" toml:"target"` // linked table, for link columns
}

// Schema is the fixed column layout of a table.
type Schema struct {
	Name    string   `json:"name" toml:"name"`
	Columns []Column `json:"columns" toml:"columns"`
}

// Column returns the named column.
func (s *Schema) Column(name string) (Column, bool) {
	for _, c := range s.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return Column{}, false
}

// ColumnNames returns the column names in schema order.
func (s *Schema) ColumnNames() []string {
	names := make([]string, len(s.Columns))
	for i, c := range s.Columns {
		names[i] = c.Name
	}
	return names
}

func (s *Schema) validate() error {
	if s.Name == "" {
		return fmt.Errorf("table name is required")
	}
	if strings.HasPrefix(s.Name, "_") || strings.ContainsAny(s.Name, DefaultKeyDelimiter+"./") {
		return fmt.Errorf("invalid table name %q", s.Name)
	}

	seen := map[string]bool{}
	for _, c := range s.Columns {
		switch {
		case c.Name == "" || strings.HasPrefix(c.Name, "_") || strings.Contains(c.Name, "."):
			return fmt.Errorf("table %s: invalid column name %q", s.Name, c.Name)
		case seen[c.Name]:
			return fmt.Errorf("table %s: duplicate column %q", s.Name, c.Name)
		case !c.Type.valid():
			return fmt.Errorf("table %s: column %s has unknown type %q", s.Name, c.Name, c.Type)
		case c.Type.IsLink() && c.Target == "":
			return fmt.Errorf("table %s: link column %s needs a target table", s.Name, c.Name)
		}
		seen[c.Name] = true
	}
	return nil
}

func mismatch(col Column, v any) error {
	return fmt.Errorf("column %s (%s) cannot hold %T: %w", col.Name, col.Type, v, ErrTypeMismatch)
}

// encodeValue validates v against the column and returns its stored form.
func encodeValue(col Column, v any) (any, error) {
	if v == nil {
		return nil, nil
	}

	switch col.Type {
	case ColumnString:
		if s, ok := v.(string); ok {
			return s, nil
		}
	case ColumnNumber:
		if f, ok := toFloat(v); ok {
			return f, nil
		}
	case ColumnBool:
		if b, ok := v.(bool); ok {
			return b, nil
		}
	case ColumnDate:
		switch d := v.(type) {
		case time.Time:
			return d.Format(dateFormat), nil
		case string:
			if _, err := time.Parse(dateFormat, d); err == nil {
				return d, nil
			}
		}
	case ColumnDateTime:
		switch d := v.(type) {
		case time.Time:
			return d.UTC().Format(datetimeFormat), nil
		case string:
			if t, err := time.Parse(datetimeFormat, d); err == nil {
				return t.UTC().Format(datetimeFormat), nil
			}
		}
	case ColumnSimpleObject:
		return normalizeObject(col, reflect.ValueOf(v), 0)
	case ColumnLinkSingle:
		return encodeLink(col, v)
	case ColumnLinkMultiple:
		return encodeLinks(col, v)
	}
	return nil, mismatch(col, v)
}

func encodeLink(col Column, v any) (any, error) {
	rower, ok := v.(HostRower)
	if !ok {
		return nil, mismatch(col, v)
	}
	row := rower.HostRow()
	if row == nil {
		return nil, nil
	}
	if row.key.Table != col.Target {
		return nil, fmt.Errorf("column %s links to %s, got a row of %s: %w", col.Name, col.Target, row.key.Table, ErrTypeMismatch)
	}
	return row.key.ID, nil
}

func encodeLinks(col Column, v any) (any, error) {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, mismatch(col, v)
	}

	ids := make([]any, 0, rv.Len())
	for i := 0; i < rv.Len(); i++ {
		id, err := encodeLink(col, rv.Index(i).Interface())
		if err != nil {
			return nil, err
		}
		if id != nil {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// normalizeObject converts a simple object into maps, slices and scalars
// that round-trip through the backend unchanged.
func normalizeObject(col Column, rv reflect.Value, depth int) (any, error) {
	if depth > maxObjectDepth {
		return nil, fmt.Errorf("column %s: simple object nested too deeply: %w", col.Name, ErrTypeMismatch)
	}
	if !rv.IsValid() {
		return nil, nil
	}
	if rv.Kind() == reflect.Interface || rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return nil, nil
		}
		if _, isRow := rv.Interface().(HostRower); isRow {
			return nil, mismatch(col, rv.Interface())
		}
		return normalizeObject(col, rv.Elem(), depth)
	}

	if f, ok := toFloat(rv.Interface()); ok {
		return f, nil
	}

	switch rv.Kind() {
	case reflect.String:
		return rv.String(), nil
	case reflect.Bool:
		return rv.Bool(), nil
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return nil, mismatch(col, rv.Interface())
		}
		out := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			el, err := normalizeObject(col, iter.Value(), depth+1)
			if err != nil {
				return nil, err
			}
			out[iter.Key().String()] = el
		}
		return out, nil
	case reflect.Slice, reflect.Array:
		if rv.Kind() == reflect.Slice && rv.IsNil() {
			return []any{}, nil
		}
		out := make([]any, rv.Len())
		for i := range out {
			el, err := normalizeObject(col, rv.Index(i), depth+1)
			if err != nil {
				return nil, err
			}
			out[i] = el
		}
		return out, nil
	}
	return nil, mismatch(col, rv.Interface())
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	}
	return 0, false
}

// encodeOperand encodes a query operand. A single row is accepted for
// multiple-link columns, where it tests membership.
func encodeOperand(col Column, v any) (any, error) {
	if col.Type == ColumnLinkMultiple {
		single := col
		single.Type = ColumnLinkSingle
		return encodeValue(single, v)
	}
	if col.Type == ColumnSimpleObject {
		return normalizeObject(col, reflect.ValueOf(v), 0)
	}
	return encodeValue(col, v)
}

// decodeValue converts a stored value into its column's Go form. Links are
// returned as unresolved row references.
func (t *Tables) decodeValue(col Column, v any) any {
	if v == nil {
		return nil
	}

	switch col.Type {
	case ColumnDate:
		if s, ok := v.(string); ok {
			if d, err := time.Parse(dateFormat, s); err == nil {
				return d
			}
		}
	case ColumnDateTime:
		if s, ok := v.(string); ok {
			if d, err := time.Parse(datetimeFormat, s); err == nil {
				return d
			}
		}
	case ColumnLinkSingle:
		if id, ok := v.(string); ok {
			return t.Ref(col.Target, id)
		}
	case ColumnLinkMultiple:
		ids, ok := v.([]any)
		if !ok {
			return v
		}
		rows := make([]*Row, 0, len(ids))
		for _, id := range ids {
			if s, ok := id.(string); ok {
				rows = append(rows, t.Ref(col.Target, s))
			}
		}
		return rows
	}
	return v
}

package apptables

import (
	"context"
	"errors"
	"fmt"
)

// IDField is the Fields key Import reads an explicit row id from.
const IDField = "_id"

// Table is a named collection of rows with a fixed column schema.
type Table struct {
	tables *Tables
	schema *Schema
}

// Name returns the table name.
func (t *Table) Name() string { return t.schema.Name }

// Tables returns the namespace the table belongs to.
func (t *Table) Tables() *Tables { return t.tables }

// ListColumns returns the column descriptions in schema order.
func (t *Table) ListColumns() []Column {
	return append([]Column(nil), t.schema.Columns...)
}

func (t *Table) encodeFields(fields Fields) (map[string]any, error) {
	data := make(map[string]any, len(fields))
	for name, v := range fields {
		col, ok := t.schema.Column(name)
		if !ok {
			return nil, fmt.Errorf("table %s: %q: %w", t.schema.Name, name, ErrColumnNotFound)
		}
		encoded, err := encodeValue(col, v)
		if err != nil {
			return nil, err
		}
		if encoded != nil {
			data[name] = encoded
		}
	}
	return data, nil
}

func (t *Table) newRecord(id string, fields Fields) (Record, error) {
	data, err := t.encodeFields(fields)
	if err != nil {
		return Record{}, err
	}
	now := t.tables.opts.Tick()
	return Record{
		Key:       Key{Table: t.schema.Name, ID: id},
		Data:      data,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// AddRow adds a row and returns it.
func (t *Table) AddRow(ctx context.Context, fields Fields) (*Row, error) {
	rec, err := t.newRecord(t.tables.opts.NewID(), fields)
	if err != nil {
		return nil, err
	}
	if err := t.tables.apply(ctx, Write{Kind: WritePut, Record: rec}, nil); err != nil {
		return nil, err
	}
	row := newLoadedRow(t.tables, rec)
	if tx, ok := txFromContext(ctx, t.tables); ok {
		// a discarded row was never stored; reads go to the backend.
		tx.onDiscard(row.unload)
	}
	return row, nil
}

// Import bulk-loads rows outside of any transaction. A row may carry its
// id under IDField so other rows can link to it.
func (t *Table) Import(ctx context.Context, rows []Fields) ([]*Row, error) {
	records := make([]Record, 0, len(rows))
	for i, fields := range rows {
		id := t.tables.opts.NewID()
		if explicit, ok := fields[IDField]; ok {
			s, ok := explicit.(string)
			if !ok || s == "" {
				return nil, fmt.Errorf("row %d: %s must be a non-empty string: %w", i, IDField, ErrTypeMismatch)
			}
			id = s
			fields = withoutField(fields, IDField)
		}
		rec, err := t.newRecord(id, fields)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		records = append(records, rec)
	}

	if loader, ok := t.tables.backend.(BatchLoader); ok {
		if err := loader.PutRecords(ctx, records); err != nil {
			return nil, fmt.Errorf("failed to import into %s: %w", t.schema.Name, err)
		}
	} else {
		for _, rec := range records {
			if err := t.tables.backend.Apply(ctx, Write{Kind: WritePut, Record: rec}); err != nil {
				return nil, fmt.Errorf("failed to import %s: %w", rec.Key, err)
			}
		}
	}

	out := make([]*Row, len(records))
	for i, rec := range records {
		out[i] = newLoadedRow(t.tables, rec)
	}
	return out, nil
}

func withoutField(fields Fields, name string) Fields {
	out := make(Fields, len(fields))
	for k, v := range fields {
		if k != name {
			out[k] = v
		}
	}
	return out
}

// GetByID returns the row with the given id, or nil when there is none.
func (t *Table) GetByID(ctx context.Context, id string) (*Row, error) {
	if id == "" {
		return nil, nil
	}
	rec, err := t.tables.backend.GetRecord(ctx, Key{Table: t.schema.Name, ID: id})
	if errors.Is(err, ErrItemNotFound) {
		return nil, nil
	} else if err != nil {
		return nil, fmt.Errorf("failed to get %s row %s: %w", t.schema.Name, id, err)
	}
	return newLoadedRow(t.tables, rec), nil
}

// Get returns the single row matching q, nil when no row matches, or
// ErrMultipleRows when more than one does.
func (t *Table) Get(ctx context.Context, q Query) (*Row, error) {
	it, err := t.Search(ctx, q)
	if err != nil {
		return nil, err
	}
	if !it.Next(ctx) {
		return nil, it.Err()
	}
	row := it.Row()
	if it.Next(ctx) {
		return nil, fmt.Errorf("table %s: %w", t.schema.Name, ErrMultipleRows)
	}
	if err := it.Err(); err != nil {
		return nil, err
	}
	return row, nil
}

// Search returns the rows matching every entry of q. An empty query
// matches every row. Rows are fetched lazily as the iterator advances.
func (t *Table) Search(ctx context.Context, q Query) (*SearchIterator, error) {
	filters, err := t.filters(q)
	if err != nil {
		return nil, err
	}
	return newSearchIterator(t, filters), nil
}

func (t *Table) filters(q Query) (map[string]Condition, error) {
	filters := make(map[string]Condition, len(q))
	for name, v := range q {
		col, ok := t.schema.Column(name)
		if !ok {
			return nil, fmt.Errorf("table %s: %q: %w", t.schema.Name, name, ErrColumnNotFound)
		}

		cond, ok := v.(Condition)
		if !ok {
			if col.Type == ColumnLinkMultiple {
				if _, isRow := v.(HostRower); isRow {
					cond = Contains(v)
				} else {
					cond = Equal(v)
				}
			} else {
				cond = Equal(v)
			}
		}
		if err := cond.validate(); err != nil {
			return nil, fmt.Errorf("table %s: column %s: %w", t.schema.Name, name, err)
		}

		encoded, err := cond.mapValues(func(v any) (any, error) { return encodeOperand(col, v) })
		if err != nil {
			return nil, err
		}
		filters[name] = encoded
	}
	return filters, nil
}

// HasRow reports whether row is a row of this table that still exists.
func (t *Table) HasRow(ctx context.Context, row HostRower) (bool, error) {
	if row == nil {
		return false, nil
	}
	r := row.HostRow()
	if r == nil || r.key.Table != t.schema.Name {
		return false, nil
	}
	_, err := t.tables.backend.GetRecord(ctx, r.key)
	if errors.Is(err, ErrItemNotFound) {
		return false, nil
	} else if err != nil {
		return false, fmt.Errorf("failed to check %s: %w", r.key, err)
	}
	return true, nil
}

// String describes the table and its columns.
func (t *Table) String() string {
	return fmt.Sprintf("<Table: %s columns: %v>", t.schema.Name, t.schema.ColumnNames())
}

package apptables

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"
)

// Fields maps column names to values for AddRow and Update.
type Fields map[string]any

// Row is a live reference to one record. A row obtained from a link column
// or from Tables.Ref is unresolved: its fields are read from the backend on
// first access and cached until Refresh.
type Row struct {
	tables *Tables
	key    Key

	mu      sync.Mutex
	loaded  bool
	deleted bool
	data    map[string]any // stored form
	created time.Time
	updated time.Time
}

func newLoadedRow(t *Tables, r Record) *Row {
	row := t.Ref(r.Table, r.ID)
	row.fill(r)
	return row
}

func (r *Row) fill(rec Record) {
	r.loaded = true
	r.deleted = false
	r.data = rec.Data
	r.created = rec.CreatedAt
	r.updated = rec.UpdatedAt
}

// ID returns the row id.
func (r *Row) ID() string { return r.key.ID }

// TableName returns the name of the table the row belongs to.
func (r *Row) TableName() string { return r.key.Table }

// Key returns the identity of the row, "<table>#<id>". Two references to
// the same record have the same key.
func (r *Row) Key() string { return r.key.String() }

// HostRow implements HostRower.
func (r *Row) HostRow() *Row { return r }

// Tables returns the namespace the row belongs to.
func (r *Row) Tables() *Tables { return r.tables }

// Loaded reports whether the row's fields have been read.
func (r *Row) Loaded() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.loaded
}

// CreatedAt returns the creation time, loading the row if needed.
func (r *Row) CreatedAt(ctx context.Context) (time.Time, error) {
	if err := r.load(ctx); err != nil {
		return time.Time{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.created, nil
}

func (r *Row) load(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.deleted {
		return fmt.Errorf("%s: %w", r.key, ErrRowDeleted)
	}
	if r.loaded {
		return nil
	}
	return r.fetch(ctx)
}

// fetch reads the record; r.mu must be held.
func (r *Row) fetch(ctx context.Context) error {
	rec, err := r.tables.backend.GetRecord(ctx, r.key)
	if errors.Is(err, ErrItemNotFound) {
		return fmt.Errorf("%s: %w", r.key, ErrRowDeleted)
	} else if err != nil {
		return fmt.Errorf("failed to load row %s: %w", r.key, err)
	}
	r.fill(rec)
	return nil
}

// Refresh discards cached fields and reads the row again.
func (r *Row) Refresh(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.fetch(ctx)
}

// Keys returns the column names of the row in schema order.
func (r *Row) Keys() ([]string, error) {
	s, err := r.tables.schema(r.key.Table)
	if err != nil {
		return nil, err
	}
	return s.ColumnNames(), nil
}

// Get returns the value of a column. Link columns yield unresolved row
// references: *Row for single links, []*Row for multiple links.
func (r *Row) Get(ctx context.Context, column string) (any, error) {
	s, err := r.tables.schema(r.key.Table)
	if err != nil {
		return nil, err
	}
	col, ok := s.Column(column)
	if !ok {
		return nil, fmt.Errorf("table %s: %q: %w", r.key.Table, column, ErrColumnNotFound)
	}
	if err := r.load(ctx); err != nil {
		return nil, err
	}

	r.mu.Lock()
	v := r.data[column]
	r.mu.Unlock()
	return r.tables.decodeValue(col, v), nil
}

// Items returns every column value keyed by column name.
func (r *Row) Items(ctx context.Context) (map[string]any, error) {
	s, err := r.tables.schema(r.key.Table)
	if err != nil {
		return nil, err
	}
	if err := r.load(ctx); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]any, len(s.Columns))
	for _, col := range s.Columns {
		out[col.Name] = r.tables.decodeValue(col, r.data[col.Name])
	}
	return out, nil
}

// Cached returns the column values without touching the backend. The second
// result is false when the row has not been loaded.
func (r *Row) Cached() (map[string]any, bool) {
	s, err := r.tables.schema(r.key.Table)
	if err != nil {
		return nil, false
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.loaded || r.deleted {
		return nil, false
	}
	out := make(map[string]any, len(s.Columns))
	for _, col := range s.Columns {
		out[col.Name] = r.tables.decodeValue(col, r.data[col.Name])
	}
	return out, true
}

// Update sets column values. A nil value clears the column.
func (r *Row) Update(ctx context.Context, fields Fields) error {
	if len(fields) == 0 {
		return nil
	}
	s, err := r.tables.schema(r.key.Table)
	if err != nil {
		return err
	}

	r.mu.Lock()
	deleted := r.deleted
	r.mu.Unlock()
	if deleted {
		return fmt.Errorf("%s: %w", r.key, ErrRowDeleted)
	}

	w := Write{
		Kind:    WriteUpdate,
		Key:     r.key,
		Set:     map[string]any{},
		Updated: r.tables.opts.Tick(),
	}
	for name, v := range fields {
		col, ok := s.Column(name)
		if !ok {
			return fmt.Errorf("table %s: %q: %w", r.key.Table, name, ErrColumnNotFound)
		}
		encoded, err := encodeValue(col, v)
		if err != nil {
			return err
		}
		if encoded == nil {
			w.Remove = append(w.Remove, name)
		} else {
			w.Set[name] = encoded
		}
	}

	if err := r.tables.apply(ctx, w, func() { r.applyUpdate(w) }); err != nil {
		if errors.Is(err, ErrItemNotFound) {
			r.markDeleted()
			return fmt.Errorf("%s: %w", r.key, ErrRowDeleted)
		}
		return err
	}
	return nil
}

// applyUpdate folds a stored update into the cached fields.
func (r *Row) applyUpdate(w Write) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.loaded {
		return
	}
	data := make(map[string]any, len(r.data)+len(w.Set))
	for k, v := range r.data {
		data[k] = v
	}
	for k, v := range w.Set {
		data[k] = v
	}
	for _, k := range w.Remove {
		delete(data, k)
	}
	r.data = data
	r.updated = w.Updated
}

// Delete removes the row from its table. Inside a transaction the row is
// marked deleted when the transaction commits.
func (r *Row) Delete(ctx context.Context) error {
	return r.tables.apply(ctx, Write{Kind: WriteDelete, Key: r.key}, r.markDeleted)
}

func (r *Row) markDeleted() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deleted = true
	r.loaded = false
	r.data = nil
}

// unload drops the cached fields so the next read goes to the backend.
func (r *Row) unload() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.loaded = false
	r.data = nil
}

type rowReference struct {
	Table string `json:"_table"`
	ID    string `json:"_id"`
}

// MarshalJSON encodes the row as a reference object, {"_table": ..., "_id": ...}.
func (r *Row) MarshalJSON() ([]byte, error) {
	return json.Marshal(rowReference{Table: r.key.Table, ID: r.key.ID})
}

// String returns a short description of the row.
func (r *Row) String() string {
	return "<Row: " + r.key.String() + ">"
}

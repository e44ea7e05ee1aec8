package tablekit

import (
	"context"
	"fmt"

	"github.com/nisimpson/apptables"
)

// Table wraps a host table. Arguments may hold wrapped rows, wrapped
// searches or reference objects; they are converted to host values before
// reaching the host table.
type Table struct {
	table *apptables.Table
	ser   *Serializer
	opts  Options
}

// Open opens the named table. A name that exists neither as given nor in
// lower case returns apptables.ErrTableNotFound.
func Open(tables *apptables.Tables, name string, opts ...func(*Options)) (*Table, error) {
	table, err := tables.Get(name)
	if err != nil {
		return nil, err
	}
	return &Table{
		table: table,
		ser:   &Serializer{Tables: tables},
		opts:  newOptions(opts),
	}, nil
}

// HostTable returns the wrapped table.
func (t *Table) HostTable() *apptables.Table { return t.table }

// Name returns the table name.
func (t *Table) Name() string { return t.table.Name() }

// AddRow adds a row in a transaction.
func (t *Table) AddRow(ctx context.Context, fields apptables.Fields) (*Row, error) {
	var row *apptables.Row
	err := t.table.Tables().Transaction(ctx, func(ctx context.Context) error {
		host, err := t.ser.ToFields(ctx, fields)
		if err != nil {
			return err
		}
		row, err = t.table.AddRow(ctx, host)
		return err
	})
	if err != nil {
		return nil, err
	}
	return Wrap(row), nil
}

// UpdateRow updates a host or wrapped row in a transaction.
func (t *Table) UpdateRow(ctx context.Context, row apptables.HostRower, fields apptables.Fields) error {
	if row == nil || row.HostRow() == nil {
		return fmt.Errorf("table %s: update of a nil row: %w", t.table.Name(), apptables.ErrItemNotFound)
	}
	return Wrap(row.HostRow()).Update(ctx, fields)
}

func (t *Table) query(ctx context.Context, q apptables.Query) (apptables.Query, error) {
	host, err := t.ser.ToHost(ctx, q)
	if err != nil {
		return nil, err
	}
	return host.(apptables.Query), nil
}

// Get returns the single row matching q, or nil when there is none.
func (t *Table) Get(ctx context.Context, q apptables.Query) (*Row, error) {
	host, err := t.query(ctx, q)
	if err != nil {
		return nil, err
	}
	row, err := t.table.Get(ctx, host)
	if err != nil {
		return nil, err
	}
	return Wrap(row), nil
}

// GetByID returns the row with the given id, or nil when there is none.
func (t *Table) GetByID(ctx context.Context, id string) (*Row, error) {
	row, err := t.table.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return Wrap(row), nil
}

// HostSearch runs a search and returns the host iterator.
func (t *Table) HostSearch(ctx context.Context, q apptables.Query) (*apptables.SearchIterator, error) {
	host, err := t.query(ctx, q)
	if err != nil {
		return nil, err
	}
	return t.table.Search(ctx, host)
}

// Search runs a search. With ConvertSearch set, up to ConvertLimit results
// are fetched before Search returns; larger results, and every result when
// conversion is off, are fetched as the iterator advances.
func (t *Table) Search(ctx context.Context, q apptables.Query) (*SearchIterator, error) {
	search, err := t.HostSearch(ctx, q)
	if err != nil {
		return nil, err
	}
	if !t.opts.ConvertSearch {
		t.opts.Logger.Debug("search not converted", "table", t.table.Name())
		return WrapSearch(search), nil
	}

	// one row past the limit tells whether the result exceeds it.
	over, err := search.Index(ctx, t.opts.ConvertLimit)
	if err != nil {
		return nil, err
	}
	if over != nil {
		t.opts.Logger.Warn("search returned more results than the convert limit, rows will be converted lazily",
			"table", t.table.Name(), "limit", t.opts.ConvertLimit)
	}
	return WrapSearch(search), nil
}

// HasRow reports whether row is an existing row of the table.
func (t *Table) HasRow(ctx context.Context, row apptables.HostRower) (bool, error) {
	return t.table.HasRow(ctx, row)
}

// ListColumns returns the column descriptions.
func (t *Table) ListColumns() []apptables.Column {
	return t.table.ListColumns()
}

// ToCSV exports the table as CSV.
func (t *Table) ToCSV(ctx context.Context) (string, error) {
	return t.table.ToCSV(ctx)
}

func (t *Table) String() string {
	cols := t.table.ListColumns()
	names := make([]string, len(cols))
	for i, c := range cols {
		names[i] = c.Name
	}
	return fmt.Sprintf("<Table: %s columns: %v>", t.table.Name(), names)
}

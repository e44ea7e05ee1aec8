package apptables

import (
	"context"
	"fmt"
)

// SearchIterator is the lazy, re-iterable result of a table search. Pages
// are fetched from the backend only as iteration or indexing requires;
// rows already fetched are kept, so iterating again after Reset costs no
// backend calls.
//
//	it, err := table.Search(ctx, apptables.Query{"role": "Engineer"})
//	for it.Next(ctx) {
//	    row := it.Row()
//	}
//	if err := it.Err(); err != nil {
//	    return err
//	}
type SearchIterator struct {
	table   *Table
	filters map[string]Condition

	rows    []*Row
	nextKey Item
	done    bool

	pos int
	cur *Row
	err error
}

func newSearchIterator(t *Table, filters map[string]Condition) *SearchIterator {
	return &SearchIterator{table: t, filters: filters}
}

// Table returns the searched table.
func (s *SearchIterator) Table() *Table { return s.table }

// fetch loads the next backend page.
func (s *SearchIterator) fetch(ctx context.Context) error {
	page, err := s.table.tables.backend.QueryRecords(ctx, QueryInput{
		Table:    s.table.schema.Name,
		Filters:  s.filters,
		Limit:    s.table.tables.opts.PageSize,
		StartKey: s.nextKey,
	})
	if err != nil {
		return fmt.Errorf("failed to search %s: %w", s.table.schema.Name, err)
	}

	for _, rec := range page.Records {
		s.rows = append(s.rows, newLoadedRow(s.table.tables, rec))
	}
	s.nextKey = page.LastKey
	s.done = len(page.LastKey) == 0
	return nil
}

// ensure fetches pages until row i is available or the results are exhausted.
func (s *SearchIterator) ensure(ctx context.Context, i int) error {
	for i >= len(s.rows) && !s.done {
		if err := s.fetch(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Next advances to the next row, reporting false at the end of the results
// or on error.
func (s *SearchIterator) Next(ctx context.Context) bool {
	if s.err != nil {
		return false
	}
	if err := s.ensure(ctx, s.pos); err != nil {
		s.err = err
		return false
	}
	if s.pos >= len(s.rows) {
		s.cur = nil
		return false
	}
	s.cur = s.rows[s.pos]
	s.pos++
	return true
}

// Row returns the current row.
func (s *SearchIterator) Row() *Row { return s.cur }

// Err returns the error that stopped iteration, if any.
func (s *SearchIterator) Err() error { return s.err }

// Reset rewinds the iterator to the first row.
func (s *SearchIterator) Reset() {
	s.pos = 0
	s.cur = nil
	s.err = nil
}

// Len returns the number of matching rows, fetching every page.
func (s *SearchIterator) Len(ctx context.Context) (int, error) {
	if err := s.all(ctx); err != nil {
		return 0, err
	}
	return len(s.rows), nil
}

func (s *SearchIterator) all(ctx context.Context) error {
	for !s.done {
		if err := s.fetch(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Index returns the row at position i. A negative i counts from the end.
// An index out of range returns nil.
func (s *SearchIterator) Index(ctx context.Context, i int) (*Row, error) {
	if i < 0 {
		if err := s.all(ctx); err != nil {
			return nil, err
		}
		i += len(s.rows)
		if i < 0 {
			return nil, nil
		}
	}
	if err := s.ensure(ctx, i); err != nil {
		return nil, err
	}
	if i >= len(s.rows) {
		return nil, nil
	}
	return s.rows[i], nil
}

// Rows returns every matching row.
func (s *SearchIterator) Rows(ctx context.Context) ([]*Row, error) {
	if err := s.all(ctx); err != nil {
		return nil, err
	}
	return append([]*Row(nil), s.rows...), nil
}

// Fetched returns the rows fetched so far, without reading from the backend.
func (s *SearchIterator) Fetched() []*Row {
	return append([]*Row(nil), s.rows...)
}

// Page returns one page of results starting at cursor, independent of the
// iterator's position. An empty cursor starts at the first row; the
// returned cursor is empty on the last page.
func (s *SearchIterator) Page(ctx context.Context, cursor string, size int) ([]*Row, string, error) {
	p := s.table.tables.Paginator()
	start, err := p.StartKey(ctx, cursor)
	if err != nil {
		return nil, "", err
	}
	if cursor != "" && start == nil {
		return nil, "", fmt.Errorf("page cursor %q: %w", cursor, ErrItemNotFound)
	}
	if size <= 0 {
		size = s.table.tables.opts.PageSize
	}

	// filtered pages may come back short; keep reading until size rows or the end.
	var rows []*Row
	for {
		page, err := s.table.tables.backend.QueryRecords(ctx, QueryInput{
			Table:    s.table.schema.Name,
			Filters:  s.filters,
			Limit:    size - len(rows),
			StartKey: start,
		})
		if err != nil {
			return nil, "", fmt.Errorf("failed to search %s: %w", s.table.schema.Name, err)
		}
		for _, rec := range page.Records {
			rows = append(rows, newLoadedRow(s.table.tables, rec))
		}
		start = page.LastKey
		if len(start) == 0 || len(rows) >= size {
			break
		}
	}

	next, err := p.PageCursor(ctx, start)
	if err != nil {
		return nil, "", err
	}
	return rows, next, nil
}

// String describes the search.
func (s *SearchIterator) String() string {
	return fmt.Sprintf("<SearchIterator: %s, %d rows fetched>", s.table.schema.Name, len(s.rows))
}

package tablekit

import (
	"context"
	"fmt"
	"strings"

	"github.com/nisimpson/apptables"
)

// SearchIterator wraps a host search. Rows are wrapped as they are read.
type SearchIterator struct {
	search *apptables.SearchIterator
	ser    *Serializer
	cur    *Row
}

// WrapSearch wraps a host search. WrapSearch(nil) returns nil.
func WrapSearch(search *apptables.SearchIterator) *SearchIterator {
	if search == nil {
		return nil
	}
	return &SearchIterator{
		search: search,
		ser:    &Serializer{Tables: search.Table().Tables()},
	}
}

// HostSearch returns the wrapped search.
func (s *SearchIterator) HostSearch() *apptables.SearchIterator { return s.search }

// Next advances to the next row.
func (s *SearchIterator) Next(ctx context.Context) bool {
	if !s.search.Next(ctx) {
		s.cur = nil
		return false
	}
	s.cur = Wrap(s.search.Row())
	return true
}

// Row returns the current row.
func (s *SearchIterator) Row() *Row { return s.cur }

// Err returns the error that stopped iteration.
func (s *SearchIterator) Err() error { return s.search.Err() }

// Reset rewinds to the first row.
func (s *SearchIterator) Reset() {
	s.search.Reset()
	s.cur = nil
}

// Len returns the number of matching rows.
func (s *SearchIterator) Len(ctx context.Context) (int, error) {
	return s.search.Len(ctx)
}

// Index returns the wrapped row at position i, or nil when i is out of range.
func (s *SearchIterator) Index(ctx context.Context, i int) (*Row, error) {
	row, err := s.HostIndex(ctx, i)
	if err != nil {
		return nil, err
	}
	return Wrap(row), nil
}

// HostIndex returns the host row at position i, or nil when i is out of range.
func (s *SearchIterator) HostIndex(ctx context.Context, i int) (*apptables.Row, error) {
	return s.search.Index(ctx, i)
}

// Rows returns every matching row, wrapped.
func (s *SearchIterator) Rows(ctx context.Context) ([]*Row, error) {
	rows, err := s.search.Rows(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]*Row, len(rows))
	for i, row := range rows {
		out[i] = Wrap(row)
	}
	return out, nil
}

// ToDicts converts every matching row into plain values. Rows reached
// through links more than once share one converted value.
func (s *SearchIterator) ToDicts(ctx context.Context) ([]any, error) {
	v, err := s.ser.ToDict(ctx, s)
	if err != nil {
		return nil, err
	}
	out, _ := v.([]any)
	return out, nil
}

// String lists the rows fetched so far without reading from the backend.
func (s *SearchIterator) String() string {
	fetched := s.search.Fetched()
	rows := make([]string, len(fetched))
	for i, row := range fetched {
		rows[i] = Wrap(row).String()
	}
	return fmt.Sprintf("<SearchIterator: %s [%s]>", s.search.Table().Name(), strings.Join(rows, ", "))
}

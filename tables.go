package apptables

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
)

const (
	// DefaultPageSize is the number of records a search fetches per backend call.
	DefaultPageSize = 100
	// DefaultCursorTTL is how long page cursors stay valid.
	DefaultCursorTTL = 24 * time.Hour
)

// Options configures a Tables namespace.
type Options struct {
	Tick      Clock         // Function to get current time for timestamps
	NewID     func() string // Row id generator. Default is a random UUID.
	PageSize  int           // Records fetched per search page
	CursorTTL time.Duration // Lifetime of page cursors stored by the paginator
	Logger    *log.Logger   // Debug logging of transactions. Default discards.
}

// HostRower is implemented by values that stand for a row: *Row itself and
// any wrapper around one.
type HostRower interface {
	HostRow() *Row
}

// Tables is the namespace of an app's tables, all stored in one backend.
type Tables struct {
	backend Backend
	opts    Options

	mu      sync.RWMutex
	schemas map[string]*Schema
}

// New creates a Tables namespace over backend. Tables must be declared with
// Define before they can be opened.
func New(backend Backend, opts ...func(*Options)) *Tables {
	options := Options{
		Tick:      DefaultClock,
		NewID:     func() string { return uuid.NewString() },
		PageSize:  DefaultPageSize,
		CursorTTL: DefaultCursorTTL,
	}
	for _, opt := range opts {
		opt(&options)
	}
	if options.Logger == nil {
		options.Logger = log.New(io.Discard)
	}
	if options.PageSize <= 0 {
		options.PageSize = DefaultPageSize
	}

	return &Tables{
		backend: backend,
		opts:    options,
		schemas: map[string]*Schema{},
	}
}

// Backend returns the persistence engine behind the namespace.
func (t *Tables) Backend() Backend {
	return t.backend
}

// Define declares table schemas. Redefining a table replaces its schema.
// Link targets must be defined by the end of the call.
func (t *Tables) Define(schemas ...Schema) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	next := make(map[string]*Schema, len(t.schemas)+len(schemas))
	for name, s := range t.schemas {
		next[name] = s
	}
	for _, s := range schemas {
		if err := s.validate(); err != nil {
			return err
		}
		s.Columns = append([]Column(nil), s.Columns...)
		next[s.Name] = &s
	}

	for _, s := range next {
		for _, c := range s.Columns {
			if _, ok := next[c.Target]; c.Type.IsLink() && !ok {
				return fmt.Errorf("table %s: column %s links to %s: %w", s.Name, c.Name, c.Target, ErrTableNotFound)
			}
		}
	}

	t.schemas = next
	return nil
}

// Names returns the defined table names in lexical order.
func (t *Tables) Names() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	names := make([]string, 0, len(t.schemas))
	for name := range t.schemas {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (t *Tables) schema(name string) (*Schema, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if s, ok := t.schemas[name]; ok {
		return s, nil
	}
	if s, ok := t.schemas[strings.ToLower(name)]; ok {
		return s, nil
	}
	return nil, fmt.Errorf("the table %s: %w", name, ErrTableNotFound)
}

// Get returns the named table, or ErrTableNotFound.
func (t *Tables) Get(name string) (*Table, error) {
	s, err := t.schema(name)
	if err != nil {
		return nil, err
	}
	return &Table{tables: t, schema: s}, nil
}

// Ref returns an unresolved reference to a row. Nothing is read until a
// field of the row is accessed.
func (t *Tables) Ref(table, id string) *Row {
	return &Row{tables: t, key: Key{Table: table, ID: id}}
}

// Paginator returns a Paginator that stores page cursors in the backend.
func (t *Tables) Paginator() Paginator {
	return &TablePaginator{tables: t}
}

// apply routes a write into the transaction carried by ctx, or straight to
// the backend when there is none. applied, if set, runs once the write is
// stored: at once without a transaction, after a successful commit inside
// one.
func (t *Tables) apply(ctx context.Context, w Write, applied func()) error {
	if tx, ok := txFromContext(ctx, t); ok {
		return tx.add(w, applied)
	}
	if err := t.backend.Apply(ctx, w); err != nil {
		return fmt.Errorf("failed to %s %s: %w", w.Kind, w.key(), err)
	}
	if applied != nil {
		applied()
	}
	return nil
}

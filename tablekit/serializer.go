package tablekit

import (
	"context"
	"fmt"
	"reflect"

	"github.com/nisimpson/apptables"
)

// Serializer converts between live rows and plain values.
//
// ToDict walks rows, wrapped rows, search iterators, row lists, maps and
// slices, producing map[string]any and []any values. Each call is one
// traversal with its own visited set: an identity met again while it is
// still being converted (a cycle) is returned as the reference unchanged,
// and an identity already converted in the traversal is returned from the
// traversal's memo. Row identity is the row key, so two references to the
// same record are one node. Columns are visited in schema order.
//
// With MaxDepth set, a memoized node is reused only where it has no more
// depth left than when it was converted; a node met again closer to the
// top is converted again with the larger budget.
type Serializer struct {
	// MaxDepth bounds how many rows deep ToDict follows links. Rows past it
	// are returned as references. Zero means unlimited.
	MaxDepth int
	// Tables resolves reference objects in ToHost. When nil, reference
	// objects are left as maps.
	Tables *apptables.Tables
}

// identity keys the visited set: row keys for rows, addresses for maps and slices.
type identity struct {
	kind reflect.Kind
	key  string
	ptr  uintptr
	len  int
}

func rowIdentity(r *apptables.Row) identity {
	return identity{kind: reflect.Struct, key: r.Key()}
}

func valueIdentity(rv reflect.Value) (identity, bool) {
	switch rv.Kind() {
	case reflect.Map:
		if rv.IsNil() {
			return identity{}, false
		}
		return identity{kind: reflect.Map, ptr: rv.Pointer()}, true
	case reflect.Slice:
		if rv.IsNil() || rv.Len() == 0 {
			return identity{}, false
		}
		return identity{kind: reflect.Slice, ptr: rv.Pointer(), len: rv.Len()}, true
	}
	return identity{}, false
}

type traversal struct {
	ctx      context.Context
	maxDepth int
	tables   *apptables.Tables
	active   map[identity]bool
	memo     map[identity]memoEntry
}

// memoEntry is a converted node and the depth it was converted at.
type memoEntry struct {
	out   any
	depth int
}

// lookup returns the memoized conversion of id when it was made at depth
// or shallower.
func (t *traversal) lookup(id identity, depth int) (any, bool) {
	e, ok := t.memo[id]
	if !ok || (t.maxDepth > 0 && e.depth > depth) {
		return nil, false
	}
	return e.out, true
}

func (s *Serializer) traversal(ctx context.Context) *traversal {
	return &traversal{
		ctx:      ctx,
		maxDepth: s.MaxDepth,
		tables:   s.Tables,
		active:   map[identity]bool{},
		memo:     map[identity]memoEntry{},
	}
}

// ToDict converts v into plain values. Rows become map[string]any keyed by
// column; search iterators and row lists become []any.
func (s *Serializer) ToDict(ctx context.Context, v any) (any, error) {
	return s.traversal(ctx).toDict(v, 0)
}

func (t *traversal) toDict(v any, depth int) (any, error) {
	switch x := v.(type) {
	case nil:
		return nil, nil
	case *Row:
		if x == nil {
			return nil, nil
		}
		return t.row(x.row, depth)
	case *SearchIterator:
		if x == nil {
			return nil, nil
		}
		return t.search(x.search, depth)
	case *apptables.Row:
		if x == nil {
			return nil, nil
		}
		return t.row(x, depth)
	case *apptables.SearchIterator:
		if x == nil {
			return nil, nil
		}
		return t.search(x, depth)
	case []*apptables.Row:
		out := make([]any, len(x))
		for i, r := range x {
			el, err := t.toDict(r, depth)
			if err != nil {
				return nil, err
			}
			out[i] = el
		}
		return out, nil
	case []*Row:
		out := make([]any, len(x))
		for i, r := range x {
			el, err := t.toDict(r, depth)
			if err != nil {
				return nil, err
			}
			out[i] = el
		}
		return out, nil
	}
	return t.container(v, depth, func(el any) (any, error) { return t.toDict(el, depth) })
}

func (t *traversal) row(r *apptables.Row, depth int) (any, error) {
	id := rowIdentity(r)
	if t.active[id] {
		return r, nil
	}
	if out, ok := t.lookup(id, depth); ok {
		return out, nil
	}
	if t.maxDepth > 0 && depth >= t.maxDepth {
		return r, nil
	}

	t.active[id] = true
	defer delete(t.active, id)

	items, err := r.Items(t.ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize %s: %w", r.Key(), err)
	}
	keys, err := r.Keys()
	if err != nil {
		return nil, err
	}

	out := make(map[string]any, len(items))
	for _, k := range keys {
		el, err := t.toDict(items[k], depth+1)
		if err != nil {
			return nil, err
		}
		out[k] = el
	}

	t.memo[id] = memoEntry{out: out, depth: depth}
	return out, nil
}

func (t *traversal) search(s *apptables.SearchIterator, depth int) (any, error) {
	rows, err := s.Rows(t.ctx)
	if err != nil {
		return nil, err
	}
	return t.toDict(rows, depth)
}

// container rebuilds maps with string keys and slices, converting elements
// with fn. Other values are returned as is.
func (t *traversal) container(v any, depth int, fn func(any) (any, error)) (any, error) {
	rv := reflect.ValueOf(v)
	id, tracked := valueIdentity(rv)
	if tracked {
		if t.active[id] {
			return v, nil
		}
		if out, ok := t.lookup(id, depth); ok {
			return out, nil
		}
	}

	var out any
	switch rv.Kind() {
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return v, nil
		}
		if tracked {
			t.active[id] = true
			defer delete(t.active, id)
		}
		m := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			el, err := fn(iter.Value().Interface())
			if err != nil {
				return nil, err
			}
			m[iter.Key().String()] = el
		}
		out = m
	case reflect.Slice, reflect.Array:
		if rv.Type().Elem().Kind() == reflect.Uint8 {
			return v, nil // bytes
		}
		if tracked {
			t.active[id] = true
			defer delete(t.active, id)
		}
		s := make([]any, rv.Len())
		for i := range s {
			el, err := fn(rv.Index(i).Interface())
			if err != nil {
				return nil, err
			}
			s[i] = el
		}
		out = s
	default:
		return v, nil
	}

	if tracked {
		t.memo[id] = memoEntry{out: out, depth: depth}
	}
	return out, nil
}

// hostMap rebuilds a named map type such as apptables.Fields, converting
// values with toHost under the cycle guard.
func hostMap[M ~map[string]any](t *traversal, x M) (any, error) {
	id, tracked := valueIdentity(reflect.ValueOf(x))
	if tracked {
		if t.active[id] {
			return x, nil
		}
		if out, ok := t.lookup(id, 0); ok {
			return out, nil
		}
		t.active[id] = true
		defer delete(t.active, id)
	}

	out := make(M, len(x))
	for k, el := range x {
		conv, err := t.toHost(el)
		if err != nil {
			return nil, err
		}
		out[k] = conv
	}
	if tracked {
		t.memo[id] = memoEntry{out: out}
	}
	return out, nil
}

// ToHost converts wrapper values back into the values apptables accepts:
// wrapped rows become *apptables.Row, wrapped search iterators become
// []*apptables.Row, and reference objects {"_table": ..., "_id": ...}
// become unresolved row references. Maps and slices are rebuilt with the
// same cycle guard as ToDict.
func (s *Serializer) ToHost(ctx context.Context, v any) (any, error) {
	return s.traversal(ctx).toHost(v)
}

func (t *traversal) toHost(v any) (any, error) {
	switch x := v.(type) {
	case nil:
		return nil, nil
	case *Row:
		if x == nil {
			return nil, nil
		}
		return x.row, nil
	case *apptables.Row:
		return x, nil
	case *SearchIterator:
		if x == nil {
			return nil, nil
		}
		return x.search.Rows(t.ctx)
	case *apptables.SearchIterator:
		return x.Rows(t.ctx)
	case []*Row:
		out := make([]*apptables.Row, len(x))
		for i, r := range x {
			if r != nil {
				out[i] = r.row
			}
		}
		return out, nil
	case map[string]any:
		if ref, ok := t.reference(x); ok {
			return ref, nil
		}
	case apptables.Fields:
		return hostMap(t, x)
	case apptables.Query:
		return hostMap(t, x)
	}
	return t.container(v, 0, t.toHost)
}

// reference resolves a reference object into a row reference.
func (t *traversal) reference(m map[string]any) (*apptables.Row, bool) {
	if t.tables == nil || len(m) != 2 {
		return nil, false
	}
	table, ok := m["_table"].(string)
	if !ok || table == "" {
		return nil, false
	}
	id, ok := m["_id"].(string)
	if !ok || id == "" {
		return nil, false
	}
	return t.tables.Ref(table, id), true
}

// ToFields converts every value of fields with ToHost.
func (s *Serializer) ToFields(ctx context.Context, fields apptables.Fields) (apptables.Fields, error) {
	out, err := s.ToHost(ctx, fields)
	if err != nil {
		return nil, err
	}
	return out.(apptables.Fields), nil
}

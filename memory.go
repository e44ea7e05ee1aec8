package apptables

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
)

// MemoryBackend is a Backend that keeps items in memory, in the same
// attribute value form DynamoBackend writes, so values read back have the
// same Go types. Queries evaluate Limit before filters, as dynamodb does.
type MemoryBackend struct {
	mu    sync.RWMutex
	items map[string]Item // keyed by hash key
}

// NewMemoryBackend creates an empty MemoryBackend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{items: map[string]Item{}}
}

// Len returns the number of stored items, page cursors included.
func (m *MemoryBackend) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.items)
}

// GetRecord implements Backend.
func (m *MemoryBackend) GetRecord(ctx context.Context, key Key) (Record, error) {
	if err := ctx.Err(); err != nil {
		return Record{}, err
	}

	m.mu.RLock()
	item, ok := m.items[recordKey(key, DefaultKeyDelimiter)]
	m.mu.RUnlock()
	if !ok {
		return Record{}, ErrItemNotFound
	}
	return unmarshalRecord(item, DefaultKeyDelimiter)
}

type sortedItem struct {
	sortKey string
	hashKey string
	item    Item
}

// QueryRecords implements Backend.
func (m *MemoryBackend) QueryRecords(ctx context.Context, in QueryInput) (Page, error) {
	if err := ctx.Err(); err != nil {
		return Page{}, err
	}

	var startSort, startHash string
	if in.StartKey != nil {
		if err := attributevalue.Unmarshal(in.StartKey[AttributeNameRefSortKey], &startSort); err != nil {
			return Page{}, fmt.Errorf("invalid start key: %w", err)
		}
		if err := attributevalue.Unmarshal(in.StartKey[AttributeNameSource], &startHash); err != nil {
			return Page{}, fmt.Errorf("invalid start key: %w", err)
		}
	}

	m.mu.RLock()
	var matched []sortedItem
	for hk, item := range m.items {
		var label, sk string
		if err := attributevalue.Unmarshal(item[AttributeNameLabel], &label); err != nil || label != in.Table {
			continue
		}
		if err := attributevalue.Unmarshal(item[AttributeNameRefSortKey], &sk); err != nil {
			continue
		}
		matched = append(matched, sortedItem{sortKey: sk, hashKey: hk, item: item})
	}
	m.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		if matched[i].sortKey != matched[j].sortKey {
			return matched[i].sortKey < matched[j].sortKey
		}
		return matched[i].hashKey < matched[j].hashKey
	})

	if in.StartKey != nil {
		n := sort.Search(len(matched), func(i int) bool {
			if matched[i].sortKey != startSort {
				return matched[i].sortKey > startSort
			}
			return matched[i].hashKey > startHash
		})
		matched = matched[n:]
	}

	var page Page
	evaluated := matched
	if in.Limit > 0 && len(matched) > in.Limit {
		evaluated = matched[:in.Limit]
	}
	for _, si := range evaluated {
		r, err := unmarshalRecord(si.item, DefaultKeyDelimiter)
		if err != nil {
			return Page{}, err
		}
		if matchRecord(r, in.Filters) {
			page.Records = append(page.Records, r)
		}
	}
	if in.Limit > 0 && len(evaluated) == in.Limit && len(evaluated) > 0 {
		page.LastKey = startKey(evaluated[len(evaluated)-1].item)
	}
	return page, nil
}

// Apply implements Backend. Every write is checked before any is applied,
// so a failing write leaves the store unchanged.
func (m *MemoryBackend) Apply(ctx context.Context, writes ...Write) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	staged := make(map[string]Item, len(writes))
	deleted := map[string]bool{}
	lookup := func(hk string) (Item, bool) {
		if deleted[hk] {
			return nil, false
		}
		if item, ok := staged[hk]; ok {
			return item, true
		}
		item, ok := m.items[hk]
		return item, ok
	}

	for _, w := range writes {
		hk := recordKey(w.key(), DefaultKeyDelimiter)
		switch w.Kind {
		case WritePut:
			item, err := marshalRecord(w.Record, DefaultKeyDelimiter)
			if err != nil {
				return err
			}
			staged[hk] = item
			delete(deleted, hk)
		case WriteUpdate:
			item, ok := lookup(hk)
			if !ok {
				return fmt.Errorf("update %s: %w", w.Key, ErrItemNotFound)
			}
			updated, err := applyUpdate(item, w)
			if err != nil {
				return err
			}
			staged[hk] = updated
		case WriteDelete:
			delete(staged, hk)
			deleted[hk] = true
		default:
			return fmt.Errorf("invalid write kind %s", w.Kind)
		}
	}

	for hk := range deleted {
		delete(m.items, hk)
	}
	for hk, item := range staged {
		m.items[hk] = item
	}
	return nil
}

func applyUpdate(item Item, w Write) (Item, error) {
	r, err := unmarshalRecord(item, DefaultKeyDelimiter)
	if err != nil {
		return nil, err
	}

	data := make(map[string]any, len(r.Data)+len(w.Set))
	for k, v := range r.Data {
		data[k] = v
	}
	for k, v := range w.Set {
		data[k] = v
	}
	for _, k := range w.Remove {
		delete(data, k)
	}
	r.Data = data
	r.UpdatedAt = w.Updated
	return marshalRecord(r, DefaultKeyDelimiter)
}

// PutRecords implements BatchLoader.
func (m *MemoryBackend) PutRecords(ctx context.Context, records []Record) error {
	for _, r := range records {
		if err := m.Apply(ctx, Write{Kind: WritePut, Record: r}); err != nil {
			return err
		}
	}
	return nil
}

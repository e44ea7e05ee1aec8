package apptables

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// MaxTransactionWrites is the largest number of writes a transaction may
// commit, the dynamodb TransactWriteItems limit.
const MaxTransactionWrites = 100

type txCtxKey int

const txKey txCtxKey = iota

// transaction buffers the writes issued inside Transaction. Writes to the
// same row are merged so the backend sees at most one write per record.
type transaction struct {
	tables *Tables

	mu        sync.Mutex
	writes    []Write
	index     map[Key]int
	applied   []func()
	discarded []func()
}

func txFromContext(ctx context.Context, t *Tables) (*transaction, bool) {
	tx, ok := ctx.Value(txKey).(*transaction)
	if !ok || tx.tables != t {
		return nil, false
	}
	return tx, true
}

// InTransaction reports whether ctx carries a transaction of t.
func (t *Tables) InTransaction(ctx context.Context) bool {
	_, ok := txFromContext(ctx, t)
	return ok
}

// Transaction runs fn in a transaction. Writes issued through the context
// passed to fn are committed atomically when fn returns nil and discarded
// when it returns an error or panics. A nested call joins the enclosing
// transaction. Reads are not isolated: rows read inside fn see stored
// values, and cached fields change only once the transaction commits.
func (t *Tables) Transaction(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	if t.InTransaction(ctx) {
		return fn(ctx)
	}

	tx := &transaction{tables: t, index: map[Key]int{}}
	txCtx := context.WithValue(ctx, txKey, tx)

	defer func() {
		if r := recover(); r != nil {
			t.opts.Logger.Debug("transaction aborted", "reason", r, "writes", len(tx.writes))
			tx.discard()
			panic(r) // Re-throw the panic
		}
	}()

	if err := fn(txCtx); err != nil {
		t.opts.Logger.Debug("transaction discarded", "reason", err, "writes", len(tx.writes))
		tx.discard()
		return err
	}
	if err := tx.commit(ctx); err != nil {
		tx.discard()
		return err
	}
	for _, fn := range tx.applied {
		fn()
	}
	return nil
}

// onDiscard registers fn to run when the transaction is not committed.
func (tx *transaction) onDiscard(fn func()) {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	tx.discarded = append(tx.discarded, fn)
}

func (tx *transaction) discard() {
	for _, fn := range tx.discarded {
		fn()
	}
}

func (tx *transaction) add(w Write, applied func()) error {
	tx.mu.Lock()
	defer tx.mu.Unlock()

	key := w.key()
	i, ok := tx.index[key]
	if !ok && len(tx.writes) >= MaxTransactionWrites {
		return fmt.Errorf("%d writes: %w", len(tx.writes)+1, ErrTransactionTooLarge)
	}
	if applied != nil {
		tx.applied = append(tx.applied, applied)
	}
	if !ok {
		tx.index[key] = len(tx.writes)
		tx.writes = append(tx.writes, w)
		return nil
	}

	merged, keep := mergeWrites(tx.writes[i], w)
	if keep {
		tx.writes[i] = merged
		return nil
	}

	// put followed by delete: the record never existed.
	tx.writes = append(tx.writes[:i], tx.writes[i+1:]...)
	delete(tx.index, key)
	for k, j := range tx.index {
		if j > i {
			tx.index[k] = j - 1
		}
	}
	return nil
}

// mergeWrites folds next into prev. The second result is false when the
// two cancel out.
func mergeWrites(prev, next Write) (Write, bool) {
	switch {
	case next.Kind == WriteDelete && prev.Kind == WritePut:
		return Write{}, false
	case next.Kind == WriteDelete, next.Kind == WritePut:
		return next, true
	case prev.Kind == WriteDelete:
		// update after delete keeps the delete; the row is gone.
		return prev, true
	case prev.Kind == WritePut:
		data := make(map[string]any, len(prev.Record.Data)+len(next.Set))
		for k, v := range prev.Record.Data {
			data[k] = v
		}
		for k, v := range next.Set {
			data[k] = v
		}
		for _, k := range next.Remove {
			delete(data, k)
		}
		prev.Record.Data = data
		prev.Record.UpdatedAt = next.Updated
		return prev, true
	default: // update after update
		set := make(map[string]any, len(prev.Set)+len(next.Set))
		for k, v := range prev.Set {
			set[k] = v
		}
		var remove []string
		for _, k := range prev.Remove {
			if _, ok := next.Set[k]; !ok {
				remove = append(remove, k)
			}
		}
		for k, v := range next.Set {
			set[k] = v
		}
		for _, k := range next.Remove {
			delete(set, k)
			remove = append(remove, k)
		}
		return Write{Kind: WriteUpdate, Key: prev.Key, Set: set, Remove: remove, Updated: next.Updated}, true
	}
}

func (tx *transaction) commit(ctx context.Context) error {
	tx.mu.Lock()
	defer tx.mu.Unlock()

	if len(tx.writes) == 0 {
		return nil
	}
	err := tx.tables.backend.Apply(ctx, tx.writes...)
	if errors.Is(err, ErrItemNotFound) {
		// an update reached a record deleted since it was read.
		return fmt.Errorf("failed to commit transaction: %w: %w", ErrRowDeleted, err)
	} else if err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	tx.tables.opts.Logger.Debug("transaction committed", "writes", len(tx.writes))
	return nil
}

// Package cache implements the write-through staging layer (§4.3) that
// sits between the state-transition engine and the persistent document
// store. It gives block execution snapshot-read/write semantics with
// per-block rollback and a flush that can be batched across blocks.
package cache

import (
	"fmt"

	"github.com/futureshockco/meeray-node/store"
)

// key identifies a single document within a collection.
type key struct {
	coll string
	id   string
}

// Cache stages mutations over a store.DocStore. A single core-loop
// goroutine owns it; see §5 for the concurrency model.
type Cache struct {
	backing store.DocStore

	// committed holds writes that survived at least one checkpoint but
	// have not yet been flushed to the backing store. flush() drains
	// this into backing; rollback() never touches it.
	committed map[key]*store.WriteOp

	// staged holds writes made since the last checkpoint. rollback()
	// discards this map; checkpoint() merges it into committed.
	staged map[key]*store.WriteOp
}

// New constructs a Cache over backing.
func New(backing store.DocStore) *Cache {
	return &Cache{
		backing:   backing,
		committed: make(map[key]*store.WriteOp),
		staged:    make(map[key]*store.WriteOp),
	}
}

// Get reads a document, checking staged writes, then committed writes,
// then the backing store, in that order — writes through the cache are
// visible to subsequent reads in the same block (§4.3 invariant a).
func (c *Cache) Get(coll, id string) (store.Document, bool, error) {
	k := key{coll, id}
	if op, ok := c.staged[k]; ok {
		return opDoc(op)
	}
	if op, ok := c.committed[k]; ok {
		return opDoc(op)
	}
	return c.backing.Get(coll, id)
}

func opDoc(op *store.WriteOp) (store.Document, bool, error) {
	if op.Delete {
		return nil, false, nil
	}
	return op.Doc.Clone(), true, nil
}

// Put upserts a document in the staged layer.
func (c *Cache) Put(coll, id string, doc store.Document) error {
	c.staged[key{coll, id}] = &store.WriteOp{Coll: coll, Key: id, Doc: doc.Clone()}
	return nil
}

// Delete stages removal of a document.
func (c *Cache) Delete(coll, id string) error {
	c.staged[key{coll, id}] = &store.WriteOp{Coll: coll, Key: id, Delete: true}
	return nil
}

// Update applies mutation to the document at coll/id, reading through
// the staged/committed layers first. It is a convenience wrapper: most
// state-transition code reads a document, mutates a field, and writes
// it back; Update collapses that into one call so callers can't forget
// to re-Put after mutating a field in place.
func (c *Cache) Update(coll, id string, mutate func(doc store.Document) (store.Document, error)) error {
	existing, _, err := c.Get(coll, id)
	if err != nil {
		return err
	}
	if existing == nil {
		existing = store.Document{}
	}
	updated, err := mutate(existing)
	if err != nil {
		return err
	}
	return c.Put(coll, id, updated)
}

// Find scans the union of staged, committed, and backing documents for
// matches. Because staged/committed overlays can shadow or delete
// backing documents, the backing scan excludes any key already resolved
// by an overlay. A backing document's key is read from its "id" field,
// or "name" when it has no "id"; backing documents with neither field
// are returned even when an overlay holds the same key.
func (c *Cache) Find(coll string, filter store.Filter) ([]store.Document, error) {
	seen := make(map[string]struct{})
	var out []store.Document

	collect := func(ops map[key]*store.WriteOp) {
		for k, op := range ops {
			if k.coll != coll {
				continue
			}
			if _, already := seen[k.id]; already {
				continue
			}
			seen[k.id] = struct{}{}
			if op.Delete {
				continue
			}
			if filterMatches(filter, op.Doc) {
				out = append(out, op.Doc.Clone())
			}
		}
	}
	collect(c.staged)
	collect(c.committed)

	backing, err := c.backing.Find(coll, filter)
	if err != nil {
		return nil, err
	}
	for _, doc := range backing {
		id, _ := doc["id"].(string)
		if id == "" {
			id, _ = doc["name"].(string)
		}
		if _, already := seen[id]; already {
			continue
		}
		out = append(out, doc)
	}
	return out, nil
}

// filterMatches reports whether doc satisfies every equality in f, the
// same test store.Filter applies inside the backing store.
func filterMatches(f store.Filter, doc store.Document) bool {
	for k, want := range f {
		got, ok := doc[k]
		if !ok || got != want {
			return false
		}
	}
	return true
}

// Checkpoint merges staged mutations into committed and clears the
// staged layer, marking the current point as the unit a rollback would
// return to. The executor calls this between transactions within a
// block that must not see each other's failures roll back together
// (e.g. after each successfully applied transaction).
func (c *Cache) Checkpoint() {
	for k, op := range c.staged {
		c.committed[k] = op
	}
	c.staged = make(map[key]*store.WriteOp)
}

// Rollback discards every mutation staged since the last checkpoint
// (§4.3 invariant b). It never touches committed writes from earlier in
// the block.
func (c *Cache) Rollback() {
	c.staged = make(map[key]*store.WriteOp)
}

// RollbackBlock discards every mutation made during the current block,
// both staged and committed-but-unflushed. It is the fatal-path
// recovery used when a consensus-approved block fails execution
// (§4.3, §7 ExecutionDivergence) would otherwise leave partial state.
func (c *Cache) RollbackBlock() {
	c.staged = make(map[key]*store.WriteOp)
	c.committed = make(map[key]*store.WriteOp)
}

// Flush writes every committed mutation to the backing store in one
// atomic batch and advances the checkpoint (§4.3 invariant c). Any
// still-staged (uncheckpointed) mutations are folded in first, since a
// flush always happens at a block boundary where no transaction is
// mid-execution.
func (c *Cache) Flush() error {
	c.Checkpoint()
	if len(c.committed) == 0 {
		return nil
	}
	ops := make([]store.WriteOp, 0, len(c.committed))
	for _, op := range c.committed {
		ops = append(ops, *op)
	}
	if err := c.backing.BatchWrite(ops); err != nil {
		return fmt.Errorf("cache: flush: %w", err)
	}
	c.committed = make(map[key]*store.WriteOp)
	return nil
}

// Pending reports how many unflushed mutations are buffered, counting
// both committed and still-staged ones, used by the batched-flush scheduler (writeInterval, §4.3)
// to decide whether a block boundary should trigger an actual flush.
func (c *Cache) Pending() int {
	return len(c.committed) + len(c.staged)
}

package store

import (
	"errors"
	"fmt"
)

// ErrIntegrity marks a mutation rejected because it would break a collection invariant
var ErrIntegrity = errors.New("store integrity violation")

var (
	errEmptyID     = errors.New("entity id is empty")
	errDuplicateID = errors.New("duplicate entity id")
)

// collection keeps entities in display order (allIDs) next to an id lookup (byID).
// allIDs has no duplicates and its members are exactly the keys of byID.
type collection[V any] struct {
	allIDs []string
	byID   map[string]V
	idOf   func(V) string
}

func newCollection[V any](idOf func(V) string) *collection[V] {
	return &collection[V]{byID: make(map[string]V), idOf: idOf}
}

// build validates a full replacement without touching the receiver
func (c *collection[V]) build(entities []V) (*collection[V], error) {
	next := &collection[V]{
		allIDs: make([]string, 0, len(entities)),
		byID:   make(map[string]V, len(entities)),
		idOf:   c.idOf,
	}
	for _, e := range entities {
		id := c.idOf(e)
		if id == "" {
			return nil, errEmptyID
		}
		if _, dup := next.byID[id]; dup {
			return nil, fmt.Errorf("%w: %s", errDuplicateID, id)
		}
		next.allIDs = append(next.allIDs, id)
		next.byID[id] = e
	}
	return next, nil
}

func (c *collection[V]) replaceWith(next *collection[V]) {
	c.allIDs = next.allIDs
	c.byID = next.byID
}

// upsert replaces in place or appends; existing ids never move
func (c *collection[V]) upsert(e V) error {
	id := c.idOf(e)
	if id == "" {
		return errEmptyID
	}
	if _, ok := c.byID[id]; !ok {
		c.allIDs = append(c.allIDs, id)
	}
	c.byID[id] = e
	return nil
}

func (c *collection[V]) remove(id string) bool {
	if _, ok := c.byID[id]; !ok {
		return false
	}
	delete(c.byID, id)
	c.allIDs = without(c.allIDs, id)
	return true
}

func (c *collection[V]) get(id string) (V, bool) {
	v, ok := c.byID[id]
	return v, ok
}

func (c *collection[V]) ids() []string {
	return append([]string(nil), c.allIDs...)
}

func (c *collection[V]) len() int {
	return len(c.allIDs)
}

func (c *collection[V]) check() error {
	if len(c.allIDs) != len(c.byID) {
		return fmt.Errorf("allIds has %d entries, byId has %d", len(c.allIDs), len(c.byID))
	}
	seen := make(map[string]struct{}, len(c.allIDs))
	for _, id := range c.allIDs {
		if _, dup := seen[id]; dup {
			return fmt.Errorf("%w in allIds: %s", errDuplicateID, id)
		}
		seen[id] = struct{}{}
		e, ok := c.byID[id]
		if !ok {
			return fmt.Errorf("allIds entry %s missing from byId", id)
		}
		if c.idOf(e) != id {
			return fmt.Errorf("byId key %s holds entity %s", id, c.idOf(e))
		}
	}
	return nil
}

func without(ids []string, id string) []string {
	out := ids[:0:0]
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}

func contains(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

// Package inflight tracks catalog items whose generation request has been
// dispatched but has not settled.
package inflight

import (
	"slices"
	"sync"
	"sync/atomic"
)

type set map[string]struct{}

// Tracker is a copy-on-write id set. Readers never observe a partially
// updated collection; writers are serialized.
type Tracker struct {
	mu       sync.Mutex
	current  atomic.Pointer[set]
	onChange func(size int)
}

// New returns an empty tracker. onChange, when set, receives the set size
// after every mutation and is called with the writer lock held.
func New(onChange func(size int)) *Tracker {
	t := &Tracker{onChange: onChange}
	empty := set{}
	t.current.Store(&empty)
	return t
}

// Add marks ids as in flight and returns, in input order, only those that were
// not already present. Callers must dispatch exactly the returned ids.
func (t *Tracker) Add(ids ...string) []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	cur := *t.current.Load()
	var added []string
	next := make(set, len(cur)+len(ids))
	for id := range cur {
		next[id] = struct{}{}
	}
	for _, id := range ids {
		if _, ok := next[id]; ok {
			continue
		}
		next[id] = struct{}{}
		added = append(added, id)
	}
	if len(added) == 0 {
		return nil
	}
	t.current.Store(&next)
	t.notify(len(next))
	return added
}

// Remove settles id. Removing an id that is not present is a no-op.
func (t *Tracker) Remove(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	cur := *t.current.Load()
	if _, ok := cur[id]; !ok {
		return
	}
	next := make(set, len(cur))
	for existing := range cur {
		if existing != id {
			next[existing] = struct{}{}
		}
	}
	t.current.Store(&next)
	t.notify(len(next))
}

func (t *Tracker) notify(size int) {
	if t.onChange != nil {
		t.onChange(size)
	}
}

// Contains reports whether id is in flight.
func (t *Tracker) Contains(id string) bool {
	_, ok := (*t.current.Load())[id]
	return ok
}

// Snapshot returns the in-flight ids sorted.
func (t *Tracker) Snapshot() []string {
	cur := *t.current.Load()
	out := make([]string, 0, len(cur))
	for id := range cur {
		out = append(out, id)
	}
	slices.Sort(out)
	return out
}

func (t *Tracker) Len() int {
	return len(*t.current.Load())
}

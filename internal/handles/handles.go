// Package handles maps small integer ids to Go values so they can travel
// through native void* arguments and be found again in callbacks.
//
// A Table is an explicit registry object; there is no package-level
// state. The zero ID is never issued.
package handles

import "sync"

type ID uintptr

type Table struct {
	mu   sync.RWMutex
	m    map[ID]any
	next ID
}

func New() *Table {
	return &Table{m: make(map[ID]any), next: 1}
}

// Register stores v and returns its id. A nil v is not stored and yields 0.
func (t *Table) Register(v any) ID {
	if v == nil {
		return 0
	}
	t.mu.Lock()
	id := t.next
	t.next++
	if t.next == 0 {
		t.next = 1
	}
	t.m[id] = v
	t.mu.Unlock()
	return id
}

// Lookup returns the value stored under id.
func (t *Table) Lookup(id ID) (any, bool) {
	if id == 0 {
		return nil, false
	}
	t.mu.RLock()
	v, ok := t.m[id]
	t.mu.RUnlock()
	return v, ok
}

// Unregister drops id. Unknown ids are ignored.
func (t *Table) Unregister(id ID) {
	t.mu.Lock()
	delete(t.m, id)
	t.mu.Unlock()
}

func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.m)
}

// Typed looks up id and asserts the stored value to T.
func Typed[T any](t *Table, id ID) (T, bool) {
	v, ok := t.Lookup(id)
	if !ok {
		var zero T
		return zero, false
	}
	x, ok := v.(T)
	return x, ok
}

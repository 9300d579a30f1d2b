package registry

import (
	"github.com/wippyai/bridge-runtime/errors"
)

// Handle identifies a live entry in one side's table. Handles from the
// two sides are separate numbering spaces and are never mixed.
type Handle int64

// none terminates the embedded free list.
const none = -1

type slot struct {
	value Value
	next  int // next free slot index when not live
	live  bool
}

// Table is a growable handle table with an embedded LIFO free list.
type Table struct {
	slots []slot
	free  int
	count int
}

// NewTable creates an empty table.
func NewTable() *Table {
	return &Table{free: none}
}

// Alloc stores a value and returns its handle, reusing the most
// recently freed slot if one exists.
func (t *Table) Alloc(v Value) Handle {
	t.count++
	if t.free != none {
		idx := t.free
		t.free = t.slots[idx].next
		t.slots[idx] = slot{value: v, next: none, live: true}
		return Handle(idx)
	}
	t.slots = append(t.slots, slot{value: v, next: none, live: true})
	return Handle(len(t.slots) - 1)
}

// Get returns the value bound to a handle.
func (t *Table) Get(h Handle) (Value, error) {
	if h < 0 || int64(h) >= int64(len(t.slots)) || !t.slots[h].live {
		return Value{}, errors.InvalidHandle(errors.PhaseRegistry, int64(h))
	}
	return t.slots[h].value, nil
}

// Free releases a handle and returns the value it held, pushing the
// slot onto the free list. The table never shrinks.
func (t *Table) Free(h Handle) (Value, error) {
	if h < 0 || int64(h) >= int64(len(t.slots)) || !t.slots[h].live {
		return Value{}, errors.InvalidHandle(errors.PhaseRegistry, int64(h))
	}
	v := t.slots[h].value
	t.slots[h] = slot{next: t.free}
	t.free = int(h)
	t.count--
	return v, nil
}

// Len returns the number of live entries.
func (t *Table) Len() int {
	return t.count
}

// Cap returns the total slot count, live and free.
func (t *Table) Cap() int {
	return len(t.slots)
}

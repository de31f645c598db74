package object

import "github.com/slate-lang/slate/internal/value"

// Table maps interned-string handles to values. Interning makes handle
// equality content equality, so a plain Go map carries the open-addressed
// table of the original design. Used for globals, map fields, and lookups
// by name.
type Table struct {
	entries map[value.Handle]value.Value
}

func NewTable() Table {
	return Table{entries: make(map[value.Handle]value.Value)}
}

// Get returns the value bound to key, if present.
func (t Table) Get(key value.Handle) (value.Value, bool) {
	v, ok := t.entries[key]
	return v, ok
}

// Set binds key to v and reports whether the key was new.
func (t Table) Set(key value.Handle, v value.Value) bool {
	_, existed := t.entries[key]
	t.entries[key] = v
	return !existed
}

// Delete removes a binding; used to roll back a failed store.
func (t Table) Delete(key value.Handle) {
	delete(t.entries, key)
}

func (t Table) Len() int {
	return len(t.entries)
}

// Keys returns the bound handles in unspecified order.
func (t Table) Keys() []value.Handle {
	keys := make([]value.Handle, 0, len(t.entries))
	for k := range t.entries {
		keys = append(keys, k)
	}
	return keys
}

// RawTable maps raw 64-bit payloads to values: the numeric side of a map.
type RawTable struct {
	entries map[uint64]value.Value
}

func NewRawTable() RawTable {
	return RawTable{entries: make(map[uint64]value.Value)}
}

func (t RawTable) Get(key uint64) (value.Value, bool) {
	v, ok := t.entries[key]
	return v, ok
}

func (t RawTable) Set(key uint64, v value.Value) bool {
	_, existed := t.entries[key]
	t.entries[key] = v
	return !existed
}

func (t RawTable) Len() int {
	return len(t.entries)
}

// Keys returns the raw payload keys in unspecified order.
func (t RawTable) Keys() []uint64 {
	keys := make([]uint64, 0, len(t.entries))
	for k := range t.entries {
		keys = append(keys, k)
	}
	return keys
}

package value

// entry is one slot of a Table. An empty slot has Key == Empty and
// Value == Nil; a tombstone has Key == Empty and Value == True (a
// non-nil marker distinguishing it from a fresh empty slot).
type entry struct {
	Key   Value
	Value Value
}

func (e entry) isEmptySlot() bool    { return e.Key.Kind == KindEmpty && e.Value.Kind == KindNil }
func (e entry) isTombstone() bool    { return e.Key.Kind == KindEmpty && !e.isEmptySlot() }
func (e entry) isOccupied() bool     { return e.Key.Kind != KindEmpty }

const tableMaxLoad = 0.75

// Table is an open-addressed, linear-probing hash table.
// Capacity is always a power of two so indexing is hash & (cap-1). It
// backs string interning, the globals table, instance/type field and
// method maps, and user-visible Map objects.
type Table struct {
	entries []entry
	count   int // live entries + tombstones
}

// Count returns the number of live keys plus tombstones; it can briefly
// exceed the live-key count until the next resize compacts them out.
func (t *Table) Count() int { return t.count }

// Len returns only the number of live key/value pairs.
func (t *Table) Len() int {
	n := 0
	for _, e := range t.entries {
		if e.isOccupied() {
			n++
		}
	}
	return n
}

func (t *Table) findEntry(entries []entry, key Value) int {
	capacity := len(entries)
	idx := int(Hash(key)) & (capacity - 1)
	var tombstone = -1
	for {
		e := &entries[idx]
		if e.isEmptySlot() {
			if tombstone != -1 {
				return tombstone
			}
			return idx
		} else if e.isTombstone() {
			if tombstone == -1 {
				tombstone = idx
			}
		} else if Equal(e.Key, key) {
			return idx
		}
		idx = (idx + 1) & (capacity - 1)
	}
}

func (t *Table) adjustCapacity(newCap int) {
	newEntries := make([]entry, newCap)
	for i := range newEntries {
		newEntries[i] = entry{Key: Empty, Value: Nil}
	}
	newCount := 0
	for _, e := range t.entries {
		if !e.isOccupied() {
			continue
		}
		idx := t.findEntry(newEntries, e.Key)
		newEntries[idx] = e
		newCount++
	}
	t.entries = newEntries
	t.count = newCount
}

// Get looks up key, returning its value and whether it was present.
func (t *Table) Get(key Value) (Value, bool) {
	if len(t.entries) == 0 {
		return Nil, false
	}
	idx := t.findEntry(t.entries, key)
	e := &t.entries[idx]
	if !e.isOccupied() {
		return Nil, false
	}
	return e.Value, true
}

// Set stores value under key, returning true if key was not already
// present (a brand new key, as opposed to an update).
func (t *Table) Set(key, val Value) bool {
	if float64(t.count+1) > float64(len(t.entries))*tableMaxLoad {
		newCap := 8
		if len(t.entries) > 0 {
			newCap = len(t.entries) * 2
		}
		t.adjustCapacity(newCap)
	}
	idx := t.findEntry(t.entries, key)
	e := &t.entries[idx]
	isNewKey := !e.isOccupied()
	if isNewKey && e.isEmptySlot() {
		t.count++
	}
	*e = entry{Key: key, Value: val}
	return isNewKey
}

// Delete removes key, leaving a tombstone behind so later linear probes
// past this slot still find their target. Reports whether key existed.
func (t *Table) Delete(key Value) bool {
	if len(t.entries) == 0 {
		return false
	}
	idx := t.findEntry(t.entries, key)
	e := &t.entries[idx]
	if !e.isOccupied() {
		return false
	}
	*e = entry{Key: Empty, Value: True}
	return true
}

// CopyTo copies every live entry of t into dst.
func (t *Table) CopyTo(dst *Table) {
	for _, e := range t.entries {
		if e.isOccupied() {
			dst.Set(e.Key, e.Value)
		}
	}
}

// FindString looks up an interned string by its raw bytes and
// precomputed hash, without constructing a candidate ObjString. Used
// only during interning (see gc.Heap.InternString).
func (t *Table) FindString(chars string, hash uint32) *ObjString {
	if len(t.entries) == 0 {
		return nil
	}
	idx := int(hash) & (len(t.entries) - 1)
	for {
		e := &t.entries[idx]
		if e.isEmptySlot() {
			return nil
		}
		if e.isOccupied() {
			if s, ok := e.Key.Obj.(*ObjString); ok && s.Hash == hash && s.Chars == chars {
				return s
			}
		}
		idx = (idx + 1) & (len(t.entries) - 1)
	}
}

// Each calls fn for every live key/value pair, in table order.
func (t *Table) Each(fn func(key, val Value)) {
	for _, e := range t.entries {
		if e.isOccupied() {
			fn(e.Key, e.Value)
		}
	}
}

// MarkEntries calls mark for every live key and value; used by the GC
// to trace a Table's contents (globals, instance fields, Map objects).
func (t *Table) MarkEntries(mark func(Value)) {
	for _, e := range t.entries {
		if e.isOccupied() {
			mark(e.Key)
			mark(e.Value)
		}
	}
}

// RemoveUnmarkedStrings deletes every string key for which isLive
// returns false. Called on the intern table before sweep so no
// dangling references into about-to-be-freed strings remain.
func (t *Table) RemoveUnmarkedStrings(isLive func(*ObjString) bool) {
	for i := range t.entries {
		e := &t.entries[i]
		if !e.isOccupied() {
			continue
		}
		if s, ok := e.Key.Obj.(*ObjString); ok && !isLive(s) {
			*e = entry{Key: Empty, Value: True}
		}
	}
}

package value

import "testing"

func TestTableSetGetDelete(t *testing.T) {
	var tbl Table

	a := Number(1)
	b := Number(2)

	if isNew := tbl.Set(a, Number(100)); !isNew {
		t.Fatal("Set on a fresh key should report isNewKey=true")
	}
	if isNew := tbl.Set(a, Number(200)); isNew {
		t.Fatal("Set on an existing key should report isNewKey=false")
	}

	v, ok := tbl.Get(a)
	if !ok || v.Number != 200 {
		t.Fatalf("Get(a) = (%v, %v), want (200, true)", v, ok)
	}

	if _, ok := tbl.Get(b); ok {
		t.Fatal("Get on an absent key should report ok=false")
	}

	if !tbl.Delete(a) {
		t.Fatal("Delete on a present key should report true")
	}
	if _, ok := tbl.Get(a); ok {
		t.Fatal("Get after Delete should report ok=false")
	}
	if tbl.Delete(a) {
		t.Fatal("Delete on an already-deleted key should report false")
	}
}

// TestTableTombstoneDoesNotBreakProbing covers the linear-probe
// invariant: deleting a key that sits before a later key on the same
// probe chain must not make the later key unreachable.
func TestTableTombstoneDoesNotBreakProbing(t *testing.T) {
	var tbl Table

	keys := make([]Value, 0, 16)
	for i := 0; i < 16; i++ {
		keys = append(keys, Number(float64(i)))
	}
	for i, k := range keys {
		tbl.Set(k, Number(float64(i*10)))
	}

	// Delete every other key, leaving tombstones interleaved with live
	// entries, then verify every surviving key is still reachable.
	for i := 0; i < len(keys); i += 2 {
		tbl.Delete(keys[i])
	}
	for i, k := range keys {
		v, ok := tbl.Get(k)
		if i%2 == 0 {
			if ok {
				t.Errorf("key %d should have been deleted, got %v", i, v)
			}
			continue
		}
		if !ok || v.Number != float64(i*10) {
			t.Errorf("key %d = (%v, %v), want (%v, true)", i, v, ok, i*10)
		}
	}
}

func TestTableCountIncludesTombstones(t *testing.T) {
	var tbl Table
	tbl.Set(Number(1), True)
	tbl.Set(Number(2), True)
	tbl.Delete(Number(1))

	if tbl.Len() != 1 {
		t.Errorf("Len() = %d, want 1 (tombstones excluded)", tbl.Len())
	}
	if tbl.Count() != 2 {
		t.Errorf("Count() = %d, want 2 (tombstones included)", tbl.Count())
	}
}

func TestTableCopyTo(t *testing.T) {
	var src, dst Table
	src.Set(Number(1), Number(10))
	src.Set(Number(2), Number(20))
	src.Delete(Number(1))

	src.CopyTo(&dst)

	if _, ok := dst.Get(Number(1)); ok {
		t.Error("CopyTo should not copy tombstoned keys")
	}
	v, ok := dst.Get(Number(2))
	if !ok || v.Number != 20 {
		t.Errorf("CopyTo did not carry live entry: got (%v, %v)", v, ok)
	}
}

func TestTableFindString(t *testing.T) {
	var tbl Table
	s := &ObjString{Chars: "hello", Hash: FNV1a32("hello")}
	s.Header.Kind = ObjKindString
	tbl.Set(Obj(s), True)

	if got := tbl.FindString("hello", FNV1a32("hello")); got != s {
		t.Errorf("FindString did not find the interned string")
	}
	if got := tbl.FindString("goodbye", FNV1a32("goodbye")); got != nil {
		t.Errorf("FindString found a string that was never interned: %v", got)
	}
}

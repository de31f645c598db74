package object_test

import (
	"testing"

	"github.com/slate-lang/slate/internal/object"
	"github.com/slate-lang/slate/internal/value"
)

func TestInternIdentity(t *testing.T) {
	heap := object.NewHeap()
	a := heap.Intern("hello")
	b := heap.Intern("hello")
	if a != b {
		t.Fatalf("equal content must yield equal handles: %d vs %d", a, b)
	}
	c := heap.Intern("world")
	if a == c {
		t.Fatalf("distinct content must yield distinct handles")
	}
	if heap.Get(a).Str != "hello" {
		t.Fatalf("handle resolves to %q", heap.Get(a).Str)
	}
}

func TestInternHashPrecomputed(t *testing.T) {
	heap := object.NewHeap()
	h := heap.Intern("x")
	if heap.Get(h).Hash == 0 {
		t.Fatal("interned string should carry its FNV-1a hash")
	}
}

func TestConcatInterns(t *testing.T) {
	heap := object.NewHeap()
	a := value.ObjVal(heap.Intern("foo"))
	b := value.ObjVal(heap.Intern("bar"))
	cat := heap.Concat(a, b)
	if heap.Get(cat).Str != "foobar" {
		t.Fatalf("concat produced %q", heap.Get(cat).Str)
	}
	if cat != heap.Intern("foobar") {
		t.Fatal("concatenation result must be interned")
	}
}

func TestTableSetReportsNew(t *testing.T) {
	heap := object.NewHeap()
	tbl := object.NewTable()
	key := heap.Intern("k")

	if !tbl.Set(key, value.NumVal(1)) {
		t.Fatal("first Set should report a new key")
	}
	if tbl.Set(key, value.NumVal(2)) {
		t.Fatal("second Set should not report a new key")
	}
	v, ok := tbl.Get(key)
	if !ok || v.AsNum() != 2 {
		t.Fatalf("expected 2, got %#v (ok=%v)", v, ok)
	}

	tbl.Delete(key)
	if _, ok := tbl.Get(key); ok {
		t.Fatal("deleted key should be absent")
	}
}

func TestMapDualIndex(t *testing.T) {
	heap := object.NewHeap()
	m := heap.Get(heap.NewMap()).Map

	name := heap.Intern("name")
	m.Fields.Set(name, value.ObjVal(heap.Intern("slate")))
	m.Index.Set(value.NumVal(1).Raw(), value.ObjVal(heap.Intern("one")))

	if m.Fields.Len() != 1 || m.Index.Len() != 1 {
		t.Fatalf("expected one entry per side, got %d/%d", m.Fields.Len(), m.Index.Len())
	}
	if _, ok := m.Fields.Get(name); !ok {
		t.Fatal("string key missing from fields")
	}
	if _, ok := m.Index.Get(value.NumVal(1).Raw()); !ok {
		t.Fatal("numeric key missing from index")
	}
	// The two sides never alias.
	if _, ok := m.Index.Get(uint64(name)); ok {
		t.Fatal("string handle must not appear in the numeric index")
	}
}

func TestHeapClose(t *testing.T) {
	heap := object.NewHeap()
	h := heap.Intern("gone")
	if heap.Len() != 1 {
		t.Fatalf("expected 1 object, got %d", heap.Len())
	}
	heap.Close()
	if heap.Len() != 0 {
		t.Fatalf("expected empty heap after Close, got %d", heap.Len())
	}
	if heap.Get(h) != nil {
		t.Fatal("stale handle should dangle after Close")
	}
}

func TestFormat(t *testing.T) {
	heap := object.NewHeap()
	fn := heap.NewFunction(&object.Function{Name: "add"})
	script := heap.NewFunction(&object.Function{})
	mp := heap.NewMap()
	heap.Get(mp).Map.Fields.Set(heap.Intern("k"), value.NumVal(1))

	cases := []struct {
		v    value.Value
		want string
	}{
		{value.NilVal, "nil"},
		{value.BoolVal(true), "true"},
		{value.BoolVal(false), "false"},
		{value.NumVal(7), "7"},
		{value.NumVal(1.5), "1.5"},
		{value.ObjVal(heap.Intern("hi")), "hi"},
		{value.ObjVal(fn), "<fn add>"},
		{value.ObjVal(script), "<script>"},
		{value.ObjVal(mp), "<map 1>"},
	}
	for _, tc := range cases {
		if got := heap.Format(tc.v); got != tc.want {
			t.Errorf("Format = %q, want %q", got, tc.want)
		}
	}
}

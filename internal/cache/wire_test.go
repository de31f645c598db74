package cache_test

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/fxamacker/cbor/v2"

	"github.com/slate-lang/slate/internal/bytecode"
	"github.com/slate-lang/slate/internal/cache"
	"github.com/slate-lang/slate/internal/compiler"
	"github.com/slate-lang/slate/internal/object"
)

func compile(t *testing.T, heap *object.Heap, src string) *object.Function {
	t.Helper()
	var errw bytes.Buffer
	fn, err := compiler.Compile(heap, &bytecode.Source{Name: "test"}, src, &errw)
	if err != nil {
		t.Fatalf("compile: %v\n%s", err, errw.String())
	}
	return fn
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	src := `
fun greet(name) { return "hello " + name; }
var m = {a: 1, 2: "two"};
if (m.a < 2) { print "lo"; } else { print "hi"; }
print greet("x"), m.a;`

	heap := object.NewHeap()
	fn := compile(t, heap, src)

	blob, err := cache.Encode(heap, fn)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	// Decode into a fresh heap, as a cold process would.
	heap2 := object.NewHeap()
	got, err := cache.Decode(heap2, blob, &bytecode.Source{Name: "test"})
	if err != nil {
		t.Fatalf("decode: %v", err)
	}

	if !bytes.Equal(got.Chunk.Code, fn.Chunk.Code) {
		t.Fatal("code bytes must survive the round trip")
	}
	if len(got.Chunk.Lines) != len(fn.Chunk.Lines) {
		t.Fatal("line table length changed")
	}
	if len(got.Chunk.Consts) != len(fn.Chunk.Consts) {
		t.Fatalf("constant count %d, want %d", len(got.Chunk.Consts), len(fn.Chunk.Consts))
	}
	if got.Chunk.SourceName() != "test" {
		t.Fatalf("source name %q", got.Chunk.SourceName())
	}
}

func TestDecodeReinternsStrings(t *testing.T) {
	heap := object.NewHeap()
	fn := compile(t, heap, `var greeting = "hello";`)
	blob, err := cache.Encode(heap, fn)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	heap2 := object.NewHeap()
	// Intern first so the decoder must reuse the existing handle.
	want := heap2.Intern("hello")
	got, err := cache.Decode(heap2, blob, nil)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}

	found := false
	for _, c := range got.Chunk.Consts {
		if c.IsObj() {
			if o := heap2.Get(c.AsObj()); o != nil && o.Kind == object.KindString && o.Str == "hello" {
				if c.AsObj() != want {
					t.Fatal("decoded string constant must reuse the interned handle")
				}
				found = true
			}
		}
	}
	if !found {
		t.Fatal("no string constant survived decoding")
	}
}

func TestDecodeNestedFunction(t *testing.T) {
	heap := object.NewHeap()
	fn := compile(t, heap, "fun add(a, b) { return a + b; }")
	blob, err := cache.Encode(heap, fn)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	heap2 := object.NewHeap()
	got, err := cache.Decode(heap2, blob, nil)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}

	var inner *object.Function
	for _, c := range got.Chunk.Consts {
		if c.IsObj() {
			if o := heap2.Get(c.AsObj()); o != nil && o.Kind == object.KindFunction {
				inner = o.Fn
			}
		}
	}
	if inner == nil {
		t.Fatal("nested function lost in round trip")
	}
	if inner.Arity != 2 || inner.Name != "add" {
		t.Fatalf("got arity %d name %q", inner.Arity, inner.Name)
	}
}

func TestDecodeRejectsGarbage(t *testing.T) {
	heap := object.NewHeap()
	if _, err := cache.Decode(heap, []byte("not cbor at all"), nil); err == nil {
		t.Fatal("expected decode error")
	}
}

// wireBlob hand-assembles a function record the way Encode lays it out,
// so tests can feed the decoder structurally valid CBOR around an
// arbitrary instruction stream.
func wireBlob(t *testing.T, code []byte, consts []any) []byte {
	t.Helper()
	blob, err := cbor.Marshal(map[int]any{
		1: 0,
		3: map[int]any{
			1: code,
			2: make([]uint32, len(code)),
			3: consts,
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	return blob
}

func TestDecodeRejectsMalformedBytecode(t *testing.T) {
	numConst := map[int]any{1: 2, 3: 1.5}

	cases := []struct {
		name   string
		code   []byte
		consts []any
	}{
		{"empty code", nil, nil},
		{"constant index out of range", []byte{bytecode.OpConst, 5, bytecode.OpRet}, nil},
		{"truncated operand", []byte{bytecode.OpConst}, nil},
		{"unknown opcode", []byte{200, bytecode.OpRet}, nil},
		{"name constant not a string", []byte{bytecode.OpNil, bytecode.OpDef, 0, bytecode.OpNil, bytecode.OpRet}, []any{numConst}},
		{"jump past end", []byte{bytecode.OpJmp, 0, 9, bytecode.OpNil, bytecode.OpRet}, nil},
		{"jump into operand", []byte{bytecode.OpJmpF, 0, 1, bytecode.OpConst, 0, bytecode.OpRet}, []any{numConst}},
		{"local slot out of range", []byte{bytecode.OpLdL, 1, 0, bytecode.OpRet}, nil},
		{"does not end in RET", []byte{bytecode.OpNil, bytecode.OpPop}, nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			heap := object.NewHeap()
			blob := wireBlob(t, tc.code, tc.consts)
			if _, err := cache.Decode(heap, blob, nil); err == nil {
				t.Fatal("expected decode error")
			}
		})
	}
}

func TestEncodeIsDeterministic(t *testing.T) {
	heap := object.NewHeap()
	fn := compile(t, heap, `print "a" + "b";`)
	one, err := cache.Encode(heap, fn)
	if err != nil {
		t.Fatal(err)
	}
	two, err := cache.Encode(heap, fn)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(one, two) {
		t.Fatal("canonical encoding must be byte-stable")
	}
}

func TestHashSource(t *testing.T) {
	a := cache.HashSource("print 1;")
	b := cache.HashSource("print 1;")
	c := cache.HashSource("print 2;")
	if a != b {
		t.Fatal("hash must be deterministic")
	}
	if a == c {
		t.Fatal("distinct sources must hash differently")
	}
	if len(a) != 64 {
		t.Fatalf("expected hex SHA-256, got %d chars", len(a))
	}
}

func TestStorePutGet(t *testing.T) {
	store, err := cache.OpenStore(filepath.Join(t.TempDir(), "chunks.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	if _, ok := store.Get("/a.slate", "h1"); ok {
		t.Fatal("empty store should miss")
	}
	if err := store.Put("/a.slate", "h1", []byte("blob1")); err != nil {
		t.Fatal(err)
	}
	got, ok := store.Get("/a.slate", "h1")
	if !ok || string(got) != "blob1" {
		t.Fatalf("got %q ok=%v", got, ok)
	}

	// A new hash for the same path evicts the old entry.
	if err := store.Put("/a.slate", "h2", []byte("blob2")); err != nil {
		t.Fatal(err)
	}
	if _, ok := store.Get("/a.slate", "h1"); ok {
		t.Fatal("stale hash should have been evicted")
	}
	if got, ok := store.Get("/a.slate", "h2"); !ok || string(got) != "blob2" {
		t.Fatalf("got %q ok=%v", got, ok)
	}
}

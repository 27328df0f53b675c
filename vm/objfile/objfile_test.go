package objfile

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/chazu/trompe/vm"
)

// buildGreeter returns code that calls a closure concatenating a greeting
// literal with its argument, plus the heap holding its literals.
func buildGreeter(t *testing.T) (*vm.Heap, *vm.CompiledCode) {
	t.Helper()
	h := vm.NewHeap()

	inner := vm.NewCompiledCode("greet", []string{"who"},
		vm.LoadLit(0), vm.LoadTemp("who"), vm.LoadPrim("concat"), vm.Apply(2))
	hello, _ := h.NewStringValue("hello, ").AsPtr()
	inner.AddLiteral(hello)

	outer := vm.NewCompiledCode("main", nil)
	codeID, _ := h.Allocate(vm.NewCodeObject(inner)).AsPtr()
	worldID, _ := h.NewStringValue("world").AsPtr()
	listID, _ := h.NewList(vm.Int(1), h.NewStringValue("x"), vm.True).AsPtr()
	outer.AddLiteral(codeID)
	outer.AddLiteral(worldID)
	outer.AddLiteral(listID)
	outer.Ops = []vm.Instruction{
		vm.LoadLit(1), vm.MakeBlock(0), vm.Apply(1),
	}
	return h, outer
}

func TestRoundTripRuns(t *testing.T) {
	h, code := buildGreeter(t)
	data, err := Encode(h, code)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	f, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if len(f.Codes) != 2 || f.Name != "main" {
		t.Fatalf("file = %+v", f)
	}

	in := vm.New(vm.DefaultOptions())
	in.RegisterCorePrimitives()
	loaded, err := f.Load(in.Heap)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(loaded.Ops) != 3 || len(loaded.Lits) != 3 {
		t.Fatalf("loaded code: %d ops, %d lits", len(loaded.Ops), len(loaded.Lits))
	}

	v, err := in.Run(loaded, nil)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if got := in.Describe(v); got != `"hello, world"` {
		t.Errorf("result = %s", got)
	}
	listID := loaded.Lits[2]
	if got := in.Describe(vm.Ptr(listID)); got != `[1; "x"; true]` {
		t.Errorf("list literal = %s", got)
	}
}

func TestEncodeDeterministic(t *testing.T) {
	h, code := buildGreeter(t)
	a, err := Encode(h, code)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	b, err := Encode(h, code)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	if !bytes.Equal(a, b) {
		t.Error("encoding is not deterministic")
	}
}

func TestEncodeSelfReferentialCode(t *testing.T) {
	h := vm.NewHeap()
	code := vm.NewCompiledCode("loop", nil, vm.MakeBlock(0))
	id, _ := h.Allocate(vm.NewCodeObject(code)).AsPtr()
	code.AddLiteral(id)

	f, err := Build(h, code)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if len(f.Codes) != 1 || f.Codes[0].Lits[0].Int != 0 {
		t.Fatalf("codes = %+v", f.Codes)
	}

	h2 := vm.NewHeap()
	loaded, err := f.Load(h2)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	obj, err := h2.Lookup(loaded.Lits[0])
	if err != nil || obj.Code != loaded {
		t.Errorf("code literal does not point back at its code")
	}
}

func TestEncodeRejectsBlocks(t *testing.T) {
	h := vm.NewHeap()
	env := vm.NewEnv()
	blk := h.Allocate(vm.NewBlockObject(vm.NewBlock(vm.NewCompiledCode("b", nil), env)))
	id, _ := blk.AsPtr()
	code := vm.NewCompiledCode("main", nil, vm.LoadLit(0))
	code.AddLiteral(id)

	if _, err := Encode(h, code); err == nil || !strings.Contains(err.Error(), "block") {
		t.Fatalf("expected block rejection, got %v", err)
	}
}

func TestEncodeDanglingLiteral(t *testing.T) {
	code := vm.NewCompiledCode("main", nil, vm.LoadLit(0))
	code.AddLiteral(42)
	if _, err := Encode(vm.NewHeap(), code); err == nil {
		t.Fatal("expected error for dangling literal")
	}
}

func TestDecodeErrors(t *testing.T) {
	good := &File{Magic: Magic, Version: Version, Codes: []Code{{Name: "x"}}}

	tests := []struct {
		name string
		edit func(f *File)
	}{
		{"magic", func(f *File) { f.Magic = "nope" }},
		{"version", func(f *File) { f.Version = 99 }},
		{"entry", func(f *File) { f.Entry = 3 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := *good
			tt.edit(&f)
			data, err := f.Marshal()
			if err != nil {
				t.Fatalf("Marshal failed: %v", err)
			}
			if _, err := Decode(data); err == nil {
				t.Error("expected decode error")
			}
		})
	}

	if _, err := Decode([]byte{0xff, 0x00}); err == nil {
		t.Error("expected error for garbage input")
	}
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name string
		code Code
	}{
		{"unknown opcode", Code{Name: "x", Ops: []Instr{{Op: "frobnicate"}}}},
		{"scalar in pool", Code{Name: "x", Lits: []Lit{{Kind: KindInt, Int: 1}}}},
		{"bad code index", Code{Name: "x", Lits: []Lit{{Kind: KindCode, Int: 5}}}},
		{"bad kind", Code{Name: "x", Lits: []Lit{{Kind: "float"}}}},
		{"empty some", Code{Name: "x", Lits: []Lit{{Kind: KindSome}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := &File{Magic: Magic, Version: Version, Codes: []Code{tt.code}}
			h := vm.NewHeap()
			if _, err := f.Load(h); err == nil {
				t.Error("expected load error")
			}
			if h.Len() != 0 {
				t.Errorf("%d objects left after failed load", h.Len())
			}
		})
	}
}

func TestFailedLoadReleasesEarlierCodes(t *testing.T) {
	f := &File{Magic: Magic, Version: Version, Codes: []Code{
		{Name: "main", Lits: []Lit{
			{Kind: KindString, Str: "kept"},
			{Kind: KindCode, Int: 1},
		}},
		{Name: "inner", Lits: []Lit{{Kind: KindString, Str: "also kept"}}},
		{Name: "broken", Lits: []Lit{
			{Kind: KindList, Items: []Lit{{Kind: KindString, Str: "partial"}, {Kind: "float"}}},
		}},
	}}
	h := vm.NewHeap()
	if _, err := f.Load(h); err == nil {
		t.Fatal("expected load error")
	}
	if h.Len() != 0 {
		t.Errorf("%d objects left after failed load, ids %v", h.Len(), h.IDs())
	}
}

func TestLoadSharesCodeObjects(t *testing.T) {
	f := &File{Magic: Magic, Version: Version, Codes: []Code{
		{Name: "main", Lits: []Lit{{Kind: KindCode, Int: 1}, {Kind: KindCode, Int: 1}}},
		{Name: "inner", Lits: []Lit{{Kind: KindString, Str: "x"}}},
	}}
	h := vm.NewHeap()
	entry, err := f.Load(h)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if entry.Lits[0] != entry.Lits[1] {
		t.Fatalf("two code objects for one code: %v", entry.Lits)
	}
	if n := h.RefCount(entry.Lits[0]); n != 2 {
		t.Errorf("code object refcount = %d, want 2", n)
	}
	if h.Len() != 2 {
		t.Errorf("heap holds %d objects, want 2", h.Len())
	}
	entry.ReleaseLiterals(h)
	if h.Len() != 0 {
		t.Errorf("%d objects left after releasing the entry, ids %v", h.Len(), h.IDs())
	}
}

func TestLoadedProgramReleasesEverything(t *testing.T) {
	h, code := buildGreeter(t)
	data, err := Encode(h, code)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	f, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}

	in := vm.New(vm.DefaultOptions())
	in.RegisterCorePrimitives()
	loaded, err := f.Load(in.Heap)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	v, err := in.Run(loaded, nil)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if err := in.Release(v); err != nil {
		t.Fatalf("Release failed: %v", err)
	}
	loaded.ReleaseLiterals(in.Heap)
	if n := in.Heap.Len(); n != 0 {
		t.Errorf("%d objects left after releasing everything, ids %v", n, in.Heap.IDs())
	}
}

func TestReadFile(t *testing.T) {
	h, code := buildGreeter(t)
	data, err := Encode(h, code)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	path := filepath.Join(t.TempDir(), "main.tro")
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatal(err)
	}
	f, err := ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if f.Codes[f.Entry].Name != "main" {
		t.Errorf("entry = %q", f.Codes[f.Entry].Name)
	}
}

// Package objfile serializes CompiledCode and its constant pool as CBOR.
//
// An object file holds every code object reachable from an entry code
// through MakeBlock literals, flattened into a table and referenced by
// index. Literals are stored by value and re-allocated into the target heap
// on Load.
package objfile

import (
	"fmt"
	"os"

	"github.com/fxamacker/cbor/v2"

	"github.com/chazu/trompe/vm"
)

// Magic identifies trompe object files.
const Magic = "trompe-obj"

// Version is the current format version.
const Version = 1

// Literal kinds
const (
	KindUnit   = "unit"
	KindBool   = "bool"
	KindInt    = "int"
	KindNone   = "none"
	KindPrim   = "prim"
	KindString = "string"
	KindList   = "list"
	KindSome   = "some"
	KindStruct = "struct"
	KindCode   = "code"
)

var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("objfile: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

// File is a decoded object file. Codes[Entry] is the code to run.
type File struct {
	Magic   string `cbor:"magic"`
	Version int    `cbor:"version"`
	Name    string `cbor:"name"`
	Entry   int    `cbor:"entry"`
	Codes   []Code `cbor:"codes"`
}

// Code is one serialized CompiledCode.
type Code struct {
	Name   string   `cbor:"name"`
	Params []string `cbor:"params,omitempty"`
	Ops    []Instr  `cbor:"ops"`
	Lits   []Lit    `cbor:"lits,omitempty"`
}

// Instr is an instruction with its opcode stored as a mnemonic.
type Instr struct {
	Op   string `cbor:"op"`
	Arg  int64  `cbor:"arg,omitempty"`
	Name string `cbor:"name,omitempty"`
}

// Lit is a serialized value. Which fields are set depends on Kind.
type Lit struct {
	Kind  string `cbor:"kind"`
	Str   string `cbor:"str,omitempty"`   // string contents, prim name
	Int   int64  `cbor:"int,omitempty"`   // int value, code index
	Bool  bool   `cbor:"bool,omitempty"`  // bool value
	Items []Lit  `cbor:"items,omitempty"` // list elements, struct fields, some payload
}

// ---------------------------------------------------------------------------
// Encoding
// ---------------------------------------------------------------------------

type encoder struct {
	heap  *vm.Heap
	file  *File
	index map[*vm.CompiledCode]int
}

// Build converts code, and every code object reachable from its constant
// pool, into a File. Literals are read from heap.
func Build(heap *vm.Heap, code *vm.CompiledCode) (*File, error) {
	e := &encoder{
		heap:  heap,
		file:  &File{Magic: Magic, Version: Version, Name: code.Name},
		index: make(map[*vm.CompiledCode]int),
	}
	entry, err := e.addCode(code)
	if err != nil {
		return nil, err
	}
	e.file.Entry = entry
	return e.file, nil
}

// Encode serializes code and its reachable code objects. The output is
// deterministic for a given heap state.
func Encode(heap *vm.Heap, code *vm.CompiledCode) ([]byte, error) {
	f, err := Build(heap, code)
	if err != nil {
		return nil, err
	}
	return f.Marshal()
}

// Marshal serializes the file in canonical CBOR.
func (f *File) Marshal() ([]byte, error) {
	return cborEncMode.Marshal(f)
}

func (e *encoder) addCode(code *vm.CompiledCode) (int, error) {
	if i, ok := e.index[code]; ok {
		return i, nil
	}
	i := len(e.file.Codes)
	e.index[code] = i
	e.file.Codes = append(e.file.Codes, Code{})

	c := Code{Name: code.Name, Params: code.Params}
	c.Ops = make([]Instr, len(code.Ops))
	for pc, in := range code.Ops {
		if !in.Op.Valid() {
			return 0, fmt.Errorf("objfile: %s: invalid opcode 0x%02x at %d", code.Name, byte(in.Op), pc)
		}
		c.Ops[pc] = Instr{Op: in.Op.String(), Arg: in.Arg, Name: in.Name}
	}
	for n, id := range code.Lits {
		lit, err := e.object(id, 0)
		if err != nil {
			return 0, fmt.Errorf("objfile: %s: literal %d: %w", code.Name, n, err)
		}
		c.Lits = append(c.Lits, lit)
	}
	e.file.Codes[i] = c
	return i, nil
}

// maxLitDepth bounds nesting of literal values.
const maxLitDepth = 64

func (e *encoder) value(v vm.Value, depth int) (Lit, error) {
	switch v.Kind() {
	case vm.KindUnit:
		return Lit{Kind: KindUnit}, nil
	case vm.KindBool:
		b, _ := v.AsBool()
		return Lit{Kind: KindBool, Bool: b}, nil
	case vm.KindInt:
		n, _ := v.AsInt()
		return Lit{Kind: KindInt, Int: n}, nil
	case vm.KindNone:
		return Lit{Kind: KindNone}, nil
	case vm.KindPrim:
		name, _ := v.PrimName()
		return Lit{Kind: KindPrim, Str: name}, nil
	case vm.KindPtr:
		id, _ := v.AsPtr()
		return e.object(id, depth)
	}
	return Lit{}, fmt.Errorf("unsupported value kind %s", v.Kind())
}

func (e *encoder) object(id uint64, depth int) (Lit, error) {
	if depth > maxLitDepth {
		return Lit{}, fmt.Errorf("literal nested deeper than %d", maxLitDepth)
	}
	obj, err := e.heap.Lookup(id)
	if err != nil {
		return Lit{}, err
	}
	switch obj.Kind {
	case vm.ObjString:
		return Lit{Kind: KindString, Str: obj.Str}, nil
	case vm.ObjSome:
		item, err := e.value(obj.Head, depth+1)
		if err != nil {
			return Lit{}, err
		}
		return Lit{Kind: KindSome, Items: []Lit{item}}, nil
	case vm.ObjStruct:
		return e.items(KindStruct, obj.Fields, depth)
	case vm.ObjList:
		vs, err := e.heap.ListValues(vm.Ptr(id))
		if err != nil {
			return Lit{}, err
		}
		return e.items(KindList, vs, depth)
	case vm.ObjCode:
		i, err := e.addCode(obj.Code)
		if err != nil {
			return Lit{}, err
		}
		return Lit{Kind: KindCode, Int: int64(i)}, nil
	}
	return Lit{}, fmt.Errorf("%s objects cannot be serialized", obj.Kind)
}

func (e *encoder) items(kind string, vs []vm.Value, depth int) (Lit, error) {
	lit := Lit{Kind: kind, Items: make([]Lit, len(vs))}
	for i, v := range vs {
		item, err := e.value(v, depth+1)
		if err != nil {
			return Lit{}, err
		}
		lit.Items[i] = item
	}
	return lit, nil
}

// ---------------------------------------------------------------------------
// Decoding
// ---------------------------------------------------------------------------

// Decode parses an object file and checks its header.
func Decode(data []byte) (*File, error) {
	var f File
	if err := cbor.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("objfile: unmarshal: %w", err)
	}
	if f.Magic != Magic {
		return nil, fmt.Errorf("objfile: bad magic %q", f.Magic)
	}
	if f.Version != Version {
		return nil, fmt.Errorf("objfile: unsupported version %d", f.Version)
	}
	if f.Entry < 0 || f.Entry >= len(f.Codes) {
		return nil, fmt.Errorf("objfile: entry %d out of range (%d codes)", f.Entry, len(f.Codes))
	}
	return &f, nil
}

// ReadFile reads and decodes the object file at path.
func ReadFile(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Decode(data)
}

// Load materializes every code object into heap and returns the entry code.
// Each constant-pool literal is allocated fresh and owned by its code. A code
// referenced from a pool gets one heap object, shared by every reference,
// which owns that code's literals. The caller releases the entry's literals
// with ReleaseLiterals once it is done with it.
func (f *File) Load(heap *vm.Heap) (*vm.CompiledCode, error) {
	l := &loader{
		heap:  heap,
		codes: make([]*vm.CompiledCode, len(f.Codes)),
		objs:  make([]vm.Value, len(f.Codes)),
	}
	for i, c := range f.Codes {
		l.codes[i] = vm.NewCompiledCode(c.Name, c.Params)
	}

	for i, c := range f.Codes {
		if err := l.fill(l.codes[i], c); err != nil {
			l.discard()
			return nil, err
		}
	}
	return l.codes[f.Entry], nil
}

// loader tracks the heap objects made while loading one file.
type loader struct {
	heap  *vm.Heap
	codes []*vm.CompiledCode
	objs  []vm.Value // code object per code, Unit until first referenced
}

func (l *loader) fill(code *vm.CompiledCode, c Code) error {
	code.Ops = make([]vm.Instruction, len(c.Ops))
	for pc, in := range c.Ops {
		op, ok := vm.OpcodeByName(in.Op)
		if !ok {
			return fmt.Errorf("objfile: %s: unknown opcode %q at %d", c.Name, in.Op, pc)
		}
		code.Ops[pc] = vm.Instruction{Op: op, Arg: in.Arg, Name: in.Name}
	}
	if err := code.Validate(); err != nil {
		return fmt.Errorf("objfile: %w", err)
	}
	for n, lit := range c.Lits {
		v, err := l.load(lit, 0)
		if err != nil {
			return fmt.Errorf("objfile: %s: literal %d: %w", c.Name, n, err)
		}
		id, ok := v.AsPtr()
		if !ok {
			return fmt.Errorf("objfile: %s: literal %d is a %s, not a heap object", c.Name, n, lit.Kind)
		}
		code.AddLiteral(id)
	}
	return nil
}

// discard releases everything a failed load allocated. Codes without a heap
// object own their literals directly; the rest go with their code object.
func (l *loader) discard() {
	for i, code := range l.codes {
		if !l.objs[i].IsPtr() {
			code.ReleaseLiterals(l.heap)
		}
	}
}

// load allocates lit into the heap. The caller owns the returned value.
func (l *loader) load(lit Lit, depth int) (vm.Value, error) {
	heap := l.heap
	if depth > maxLitDepth {
		return vm.Unit, fmt.Errorf("literal nested deeper than %d", maxLitDepth)
	}
	switch lit.Kind {
	case KindUnit:
		return vm.Unit, nil
	case KindBool:
		return vm.Bool(lit.Bool), nil
	case KindInt:
		return vm.Int(lit.Int), nil
	case KindNone:
		return vm.None, nil
	case KindPrim:
		return vm.Prim(lit.Str), nil
	case KindString:
		return heap.NewStringValue(lit.Str), nil
	case KindCode:
		if lit.Int < 0 || lit.Int >= int64(len(l.codes)) {
			return vm.Unit, fmt.Errorf("code index %d out of range", lit.Int)
		}
		if v := l.objs[lit.Int]; v.IsPtr() {
			if err := heap.Retain(v); err != nil {
				return vm.Unit, err
			}
			return v, nil
		}
		v := heap.Allocate(vm.NewCodeObject(l.codes[lit.Int]))
		l.objs[lit.Int] = v
		return v, nil
	case KindSome:
		if len(lit.Items) != 1 {
			return vm.Unit, fmt.Errorf("some literal with %d payloads", len(lit.Items))
		}
		v, err := l.load(lit.Items[0], depth+1)
		if err != nil {
			return vm.Unit, err
		}
		return heap.Allocate(vm.NewSome(v)), nil
	case KindList, KindStruct:
		vs := make([]vm.Value, 0, len(lit.Items))
		for _, item := range lit.Items {
			v, err := l.load(item, depth+1)
			if err != nil {
				heap.ReleaseAll(vs)
				return vm.Unit, err
			}
			vs = append(vs, v)
		}
		if lit.Kind == KindStruct {
			return heap.Allocate(vm.NewStruct(vs...)), nil
		}
		return heap.NewList(vs...), nil
	}
	return vm.Unit, fmt.Errorf("unknown literal kind %q", lit.Kind)
}

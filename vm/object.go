package vm

import (
	"fmt"
	"strings"
)

// ObjectKind identifies the variant of a heap Object.
type ObjectKind uint8

const (
	ObjString ObjectKind = iota
	ObjList
	ObjSome
	ObjStruct
	ObjBlock
	ObjCode
)

func (k ObjectKind) String() string {
	switch k {
	case ObjString:
		return "string"
	case ObjList:
		return "list"
	case ObjSome:
		return "some"
	case ObjStruct:
		return "struct"
	case ObjBlock:
		return "block"
	case ObjCode:
		return "code"
	default:
		return fmt.Sprintf("ObjectKind(%d)", k)
	}
}

// Object is a variable-size heap value. Exactly one group of fields is
// meaningful, selected by Kind:
//
//   - ObjString: Str
//   - ObjList:   Head, Tail (HasTail false means the rest is empty)
//   - ObjSome:   Head
//   - ObjStruct: Fields, in declaration order
//   - ObjBlock:  Block
//   - ObjCode:   Code (a constant-pool entry consumed by MakeBlock)
type Object struct {
	Kind    ObjectKind
	Str     string
	Head    Value
	Tail    uint64
	HasTail bool
	Fields  []Value
	Block   *Block
	Code    *CompiledCode
}

// NewString returns a string object.
func NewString(s string) *Object {
	return &Object{Kind: ObjString, Str: s}
}

// NewCons returns a list cell. tail is a Ptr to another list cell or None
// for the empty rest.
func NewCons(head Value, tail Value) *Object {
	o := &Object{Kind: ObjList, Head: head}
	if id, ok := tail.AsPtr(); ok {
		o.Tail = id
		o.HasTail = true
	}
	return o
}

// NewSome boxes a present optional.
func NewSome(v Value) *Object {
	return &Object{Kind: ObjSome, Head: v}
}

// NewStruct returns a fixed-arity record.
func NewStruct(fields ...Value) *Object {
	return &Object{Kind: ObjStruct, Fields: fields}
}

// NewBlockObject wraps a closure.
func NewBlockObject(b *Block) *Object {
	return &Object{Kind: ObjBlock, Block: b}
}

// NewCodeObject wraps compiled code so it can live in a constant pool.
func NewCodeObject(code *CompiledCode) *Object {
	return &Object{Kind: ObjCode, Code: code}
}

// children returns the values directly owned by the object. Releasing an
// object releases each of these once. A code object owns its code's
// constant pool, and a block owns the code object it was made from.
func (o *Object) children() []Value {
	switch o.Kind {
	case ObjList:
		if o.HasTail {
			return []Value{o.Head, Ptr(o.Tail)}
		}
		return []Value{o.Head}
	case ObjSome:
		return []Value{o.Head}
	case ObjStruct:
		return o.Fields
	case ObjBlock:
		if o.Block != nil && o.Block.Lit.IsPtr() {
			return []Value{o.Block.Lit}
		}
	case ObjCode:
		if o.Code != nil {
			lits := make([]Value, len(o.Code.Lits))
			for i, id := range o.Code.Lits {
				lits[i] = Ptr(id)
			}
			return lits
		}
	}
	return nil
}

// Describe renders the object shallowly for diagnostics.
func (o *Object) Describe() string {
	switch o.Kind {
	case ObjString:
		return fmt.Sprintf("%q", o.Str)
	case ObjList:
		if o.HasTail {
			return fmt.Sprintf("cons(%s, <ptr %d>)", o.Head, o.Tail)
		}
		return fmt.Sprintf("cons(%s, [])", o.Head)
	case ObjSome:
		return fmt.Sprintf("some(%s)", o.Head)
	case ObjStruct:
		parts := make([]string, len(o.Fields))
		for i, f := range o.Fields {
			parts[i] = f.String()
		}
		return "{" + strings.Join(parts, ", ") + "}"
	case ObjBlock:
		return fmt.Sprintf("<block %s>", o.Block.Code.Name)
	case ObjCode:
		return fmt.Sprintf("<code %s>", o.Code.Name)
	}
	return "<unknown object>"
}

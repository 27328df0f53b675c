package vm

import (
	"fmt"
	"strconv"
)

// Kind identifies the variant held by a Value.
type Kind uint8

const (
	KindUnit Kind = iota
	KindBool
	KindInt
	KindPtr
	KindPrim
	KindNone
)

var kindNames = [...]string{
	KindUnit: "unit",
	KindBool: "bool",
	KindInt:  "int",
	KindPtr:  "ptr",
	KindPrim: "prim",
	KindNone: "none",
}

// String returns the lower-case kind name.
func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", k)
}

// Value is a stack-resident scalar. It is cheap to copy; only KindPtr values
// refer to reference-counted heap storage.
//
// The zero Value is Unit.
type Value struct {
	kind Kind
	n    int64  // Bool (0/1), Int, Ptr id
	name string // Prim
}

// Pre-defined scalar values
var (
	Unit  = Value{kind: KindUnit}
	True  = Value{kind: KindBool, n: 1}
	False = Value{kind: KindBool}
	None  = Value{kind: KindNone}
)

// ---------------------------------------------------------------------------
// Constructors
// ---------------------------------------------------------------------------

// Bool returns the boolean value b.
func Bool(b bool) Value {
	if b {
		return True
	}
	return False
}

// Int returns a 64-bit integer value.
func Int(n int64) Value {
	return Value{kind: KindInt, n: n}
}

// Ptr returns a reference to heap entry id. It does not touch the refcount.
func Ptr(id uint64) Value {
	return Value{kind: KindPtr, n: int64(id)}
}

// Prim returns a reference to the primitive registered under name.
func Prim(name string) Value {
	return Value{kind: KindPrim, name: name}
}

// ---------------------------------------------------------------------------
// Accessors
// ---------------------------------------------------------------------------

// Kind returns the variant of v.
func (v Value) Kind() Kind { return v.kind }

func (v Value) IsUnit() bool { return v.kind == KindUnit }
func (v Value) IsBool() bool { return v.kind == KindBool }
func (v Value) IsInt() bool  { return v.kind == KindInt }
func (v Value) IsPtr() bool  { return v.kind == KindPtr }
func (v Value) IsPrim() bool { return v.kind == KindPrim }
func (v Value) IsNone() bool { return v.kind == KindNone }

// AsBool returns the boolean payload. ok is false if v is not a Bool.
func (v Value) AsBool() (b bool, ok bool) {
	return v.n != 0, v.kind == KindBool
}

// AsInt returns the integer payload. ok is false if v is not an Int.
func (v Value) AsInt() (n int64, ok bool) {
	return v.n, v.kind == KindInt
}

// AsPtr returns the heap id. ok is false if v is not a Ptr.
func (v Value) AsPtr() (id uint64, ok bool) {
	return uint64(v.n), v.kind == KindPtr
}

// PrimName returns the primitive name. ok is false if v is not a Prim.
func (v Value) PrimName() (name string, ok bool) {
	return v.name, v.kind == KindPrim
}

// Equal reports whether two values are identical, comparing Ptr values by
// id (not by heap contents).
func (v Value) Equal(w Value) bool {
	return v == w
}

// String renders the value for diagnostics.
func (v Value) String() string {
	switch v.kind {
	case KindUnit:
		return "()"
	case KindBool:
		if v.n != 0 {
			return "true"
		}
		return "false"
	case KindInt:
		return strconv.FormatInt(v.n, 10)
	case KindPtr:
		return fmt.Sprintf("<ptr %d>", uint64(v.n))
	case KindPrim:
		return fmt.Sprintf("<prim %s>", v.name)
	case KindNone:
		return "none"
	default:
		return fmt.Sprintf("<bad value kind %d>", v.kind)
	}
}

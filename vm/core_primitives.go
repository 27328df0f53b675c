package vm

import (
	"fmt"
	"unicode/utf8"
)

// RegisterCorePrimitives installs the small built-in library every host
// gets by default. Hosts are free to override any entry.
func (in *Interp) RegisterCorePrimitives() {
	p := in.Primitives
	p.Register("id", primId)
	p.Register("show", primShow)
	p.Register("add", intBinary("add", func(a, b int64) int64 { return a + b }))
	p.Register("sub", intBinary("sub", func(a, b int64) int64 { return a - b }))
	p.Register("mul", intBinary("mul", func(a, b int64) int64 { return a * b }))
	p.Register("some", primSome)
	p.Register("cons", primCons)
	p.Register("struct", primStruct)
	p.Register("strlen", primStrlen)
	p.Register("concat", primConcat)
	p.Register("apply", primApply)
}

func checkArity(name string, want int, args []Value) error {
	if len(args) != want {
		return newError(ArityMismatch, "%s takes %d arguments, %d given", name, want, len(args))
	}
	return nil
}

func primId(in *Interp, args []Value) (Value, error) {
	if err := checkArity("id", 1, args); err != nil {
		return Unit, err
	}
	if err := in.Heap.Retain(args[0]); err != nil {
		return Unit, err
	}
	return args[0], nil
}

func primShow(in *Interp, args []Value) (Value, error) {
	if err := checkArity("show", 1, args); err != nil {
		return Unit, err
	}
	fmt.Fprintln(in.Out, in.Describe(args[0]))
	return Unit, nil
}

func intBinary(name string, f func(a, b int64) int64) PrimitiveFunc {
	return func(in *Interp, args []Value) (Value, error) {
		if err := checkArity(name, 2, args); err != nil {
			return Unit, err
		}
		a, okA := args[0].AsInt()
		b, okB := args[1].AsInt()
		if !okA || !okB {
			return Unit, newError(TypeMismatch, "%s on %s and %s", name, args[0].Kind(), args[1].Kind())
		}
		return Int(f(a, b)), nil
	}
}

func primSome(in *Interp, args []Value) (Value, error) {
	if err := checkArity("some", 1, args); err != nil {
		return Unit, err
	}
	if err := in.Heap.Retain(args[0]); err != nil {
		return Unit, err
	}
	return in.Heap.Allocate(NewSome(args[0])), nil
}

func primCons(in *Interp, args []Value) (Value, error) {
	if err := checkArity("cons", 2, args); err != nil {
		return Unit, err
	}
	tail := args[1]
	if !tail.IsNone() {
		obj, err := in.Heap.Deref(tail)
		if err != nil {
			return Unit, err
		}
		if obj.Kind != ObjList {
			return Unit, newError(TypeMismatch, "cons onto %s", obj.Kind)
		}
	}
	if err := in.Heap.RetainAll(args); err != nil {
		return Unit, err
	}
	return in.Heap.Allocate(NewCons(args[0], tail)), nil
}

func primStruct(in *Interp, args []Value) (Value, error) {
	if err := in.Heap.RetainAll(args); err != nil {
		return Unit, err
	}
	fields := make([]Value, len(args))
	copy(fields, args)
	return in.Heap.Allocate(NewStruct(fields...)), nil
}

func stringArg(in *Interp, name string, v Value) (string, error) {
	obj, err := in.Heap.Deref(v)
	if err != nil {
		return "", newError(TypeMismatch, "%s on %s", name, v.Kind())
	}
	if obj.Kind != ObjString {
		return "", newError(TypeMismatch, "%s on %s", name, obj.Kind)
	}
	return obj.Str, nil
}

func primStrlen(in *Interp, args []Value) (Value, error) {
	if err := checkArity("strlen", 1, args); err != nil {
		return Unit, err
	}
	s, err := stringArg(in, "strlen", args[0])
	if err != nil {
		return Unit, err
	}
	return Int(int64(utf8.RuneCountInString(s))), nil
}

func primConcat(in *Interp, args []Value) (Value, error) {
	if err := checkArity("concat", 2, args); err != nil {
		return Unit, err
	}
	a, err := stringArg(in, "concat", args[0])
	if err != nil {
		return Unit, err
	}
	b, err := stringArg(in, "concat", args[1])
	if err != nil {
		return Unit, err
	}
	return in.Heap.NewStringValue(a + b), nil
}

// primApply calls its first argument with the rest.
func primApply(in *Interp, args []Value) (Value, error) {
	if len(args) == 0 {
		return Unit, newError(ArityMismatch, "apply needs a callee")
	}
	return in.Call(args[0], args[1:])
}

package vm

import "sort"

// PrimitiveFunc implements a built-in. args are borrowed: the engine
// releases them after the call returns, so a primitive that stores or
// returns an argument must Retain it first. The returned value is owned by
// the caller.
//
// A primitive may call back into the engine through in.Call, but it never
// sees the caller's Context.
type PrimitiveFunc func(in *Interp, args []Value) (Value, error)

// Primitives is the name -> function table of one interpreter.
type Primitives struct {
	table map[string]PrimitiveFunc
}

// NewPrimitives creates an empty table.
func NewPrimitives() *Primitives {
	return &Primitives{table: make(map[string]PrimitiveFunc)}
}

// Register adds fn under name, replacing any previous registration.
func (p *Primitives) Register(name string, fn PrimitiveFunc) {
	p.table[name] = fn
}

// Lookup returns the function registered under name.
func (p *Primitives) Lookup(name string) (PrimitiveFunc, bool) {
	fn, ok := p.table[name]
	return fn, ok
}

// Names returns the registered names, sorted.
func (p *Primitives) Names() []string {
	names := make([]string, 0, len(p.table))
	for n := range p.table {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

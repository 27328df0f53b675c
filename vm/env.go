package vm

import "sort"

// Env is a named-variable binding frame. Lookups fall through to the parent
// (the environment captured by the closure being applied); bindings always
// land in the innermost frame.
//
// An Env is shared by the activation that created it, every Block capturing
// it and every child Env. refs counts those holders; when it reaches zero
// the bound values are released into the heap and the parent is released.
type Env struct {
	parent *Env
	vars   map[string]Value
	refs   int
}

// NewEnv creates an empty root environment with one reference, owned by the
// caller.
func NewEnv() *Env {
	return &Env{vars: make(map[string]Value), refs: 1}
}

// Extend creates a child environment whose lookups fall back to e. The child
// holds a reference to e; the caller owns the child's single reference.
func (e *Env) Extend() *Env {
	child := NewEnv()
	if e != nil {
		e.Retain()
		child.parent = e
	}
	return child
}

// Get looks name up in this frame and then in the parent chain.
func (e *Env) Get(name string) (Value, bool) {
	for cur := e; cur != nil; cur = cur.parent {
		if v, ok := cur.vars[name]; ok {
			return v, true
		}
	}
	return Unit, false
}

// Bind sets name in this frame and returns the previous local binding, if
// any. The env takes ownership of v; ownership of the returned value passes
// to the caller.
func (e *Env) Bind(name string, v Value) (Value, bool) {
	old, ok := e.vars[name]
	e.vars[name] = v
	return old, ok
}

// Names returns the names bound in this frame, sorted.
func (e *Env) Names() []string {
	names := make([]string, 0, len(e.vars))
	for n := range e.vars {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Parent returns the enclosing environment, or nil.
func (e *Env) Parent() *Env { return e.parent }

// Refs returns the number of holders.
func (e *Env) Refs() int { return e.refs }

// Retain registers another holder.
func (e *Env) Retain() {
	if e != nil {
		e.refs++
	}
}

// Release drops a holder. The last release releases every binding and then
// the parent.
func (e *Env) Release(h *Heap) error {
	var firstErr error
	for cur := e; cur != nil; {
		if cur.refs <= 0 {
			break
		}
		cur.refs--
		if cur.refs > 0 {
			break
		}
		for _, name := range cur.Names() {
			if err := h.Release(cur.vars[name]); err != nil && firstErr == nil {
				firstErr = err
			}
		}
		cur.vars = map[string]Value{}
		next := cur.parent
		cur.parent = nil
		cur = next
	}
	return firstErr
}

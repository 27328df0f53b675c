package vm

import "fmt"

// CompiledCode is an immutable instruction sequence plus its constant pool.
// Lits holds heap ids of objects pre-allocated by whoever built the code;
// the code owns one reference to each for its lifetime.
type CompiledCode struct {
	Name   string
	Params []string // positional parameter names bound by Apply
	Ops    []Instruction
	Lits   []uint64
}

// NewCompiledCode builds code from ops. Literals are added with AddLiteral.
func NewCompiledCode(name string, params []string, ops ...Instruction) *CompiledCode {
	return &CompiledCode{Name: name, Params: params, Ops: ops}
}

// AddLiteral appends a heap id to the constant pool and returns its index.
// Ownership of one reference to id transfers to the code.
func (c *CompiledCode) AddLiteral(id uint64) int {
	c.Lits = append(c.Lits, id)
	return len(c.Lits) - 1
}

// Literal returns the heap id at pool index i.
func (c *CompiledCode) Literal(i int64) (uint64, error) {
	if i < 0 || i >= int64(len(c.Lits)) {
		return 0, newError(IndexOutOfRange, "literal %d (pool size %d)", i, len(c.Lits))
	}
	return c.Lits[i], nil
}

// Arity returns the number of declared parameters.
func (c *CompiledCode) Arity() int { return len(c.Params) }

// StackEffect sums the documented push/pop delta of every instruction.
// It is meaningful for straight-line code only.
func (c *CompiledCode) StackEffect() int {
	n := 0
	for _, in := range c.Ops {
		n += in.StackEffect()
	}
	return n
}

// Validate checks that every opcode is defined. Branch targets are not
// checked here; a branch to a non-LoopHead is reported when it executes.
func (c *CompiledCode) Validate() error {
	for pc, in := range c.Ops {
		if !in.Op.Valid() {
			return fmt.Errorf("%s: invalid opcode 0x%02x at %d", c.Name, byte(in.Op), pc)
		}
		if in.Op == OpApply && in.Arg < 0 {
			return fmt.Errorf("%s: negative argument count at %d", c.Name, pc)
		}
	}
	return nil
}

// ReleaseLiterals drops the code's references to its constant pool.
func (c *CompiledCode) ReleaseLiterals(h *Heap) error {
	var firstErr error
	for _, id := range c.Lits {
		if err := h.Release(Ptr(id)); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	c.Lits = nil
	return firstErr
}

// Block pairs code with the environment that was current when the closure
// was created. The environment is shared, not copied.
type Block struct {
	Code *CompiledCode
	Env  *Env
	Lit  Value // code object the block was made from, or Unit
}

// NewBlock captures env for code, registering the block as one of env's
// holders.
func NewBlock(code *CompiledCode, env *Env) *Block {
	env.Retain()
	return &Block{Code: code, Env: env}
}

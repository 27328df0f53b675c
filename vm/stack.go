package vm

// DefaultStackSize is the initial capacity of the operand stack.
const DefaultStackSize = 1024

// Context is the cursor of one activation: its program counter and its
// window onto the shared operand stack. Slots are addressed relative to
// Base; Index is the number of slots the activation has pushed.
type Context struct {
	PC    int
	Base  int
	Index int
}

// Top returns the absolute index one past the activation's last slot.
func (c *Context) Top() int { return c.Base + c.Index }

// Stack is a single growable array of values shared by every nested
// activation. Each activation sees only the slots at or above its own Base.
type Stack struct {
	values []Value
}

// NewStack creates a stack with the given initial capacity.
func NewStack(size int) *Stack {
	if size <= 0 {
		size = DefaultStackSize
	}
	return &Stack{values: make([]Value, 0, size)}
}

// NewContext opens an activation window at the current physical top.
func (s *Stack) NewContext() *Context {
	return &Context{Base: len(s.values)}
}

// Len returns the physical number of live slots.
func (s *Stack) Len() int { return len(s.values) }

// Get reads frame-relative slot i.
func (s *Stack) Get(ctx *Context, i int) (Value, error) {
	if i < 0 || i >= ctx.Index || ctx.Base+i >= len(s.values) {
		return Unit, newError(IndexOutOfRange, "stack slot %d (frame depth %d)", i, ctx.Index)
	}
	return s.values[ctx.Base+i], nil
}

// Top reads the activation's topmost slot.
func (s *Stack) Top(ctx *Context) (Value, error) {
	if ctx.Index == 0 {
		return Unit, newError(StackUnderflow, "top of empty frame")
	}
	return s.Get(ctx, ctx.Index-1)
}

// Push writes v at the activation's logical top, growing the array if
// needed.
func (s *Stack) Push(ctx *Context, v Value) {
	top := ctx.Top()
	if top < len(s.values) {
		s.values[top] = v
		s.values = s.values[:top+1]
	} else {
		s.values = append(s.values, v)
	}
	ctx.Index++
}

// Store overwrites existing frame-relative slot i.
func (s *Stack) Store(ctx *Context, i int, v Value) error {
	if i < 0 || i >= ctx.Index || ctx.Base+i >= len(s.values) {
		return newError(IndexOutOfRange, "stack slot %d (frame depth %d)", i, ctx.Index)
	}
	s.values[ctx.Base+i] = v
	return nil
}

// Pop removes and returns the activation's topmost value. It does not
// release heap references; the caller decides what happens to the value.
func (s *Stack) Pop(ctx *Context) (Value, error) {
	if ctx.Index == 0 {
		return Unit, newError(StackUnderflow, "pop of empty frame")
	}
	ctx.Index--
	top := ctx.Top()
	v := s.values[top]
	s.values[top] = Unit
	s.values = s.values[:top]
	return v, nil
}

// Discard truncates the activation's window and returns the values it held,
// bottom first. Used at activation teardown.
func (s *Stack) Discard(ctx *Context) []Value {
	if ctx.Index == 0 {
		return nil
	}
	out := make([]Value, ctx.Index)
	copy(out, s.values[ctx.Base:ctx.Top()])
	for i := ctx.Base; i < ctx.Top(); i++ {
		s.values[i] = Unit
	}
	s.values = s.values[:ctx.Base]
	ctx.Index = 0
	return out
}

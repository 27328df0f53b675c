package vm

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/google/uuid"
	"github.com/tliron/commonlog"
)

var log = commonlog.GetLogger("trompe.vm")

// ---------------------------------------------------------------------------
// Interp: bytecode execution engine
// ---------------------------------------------------------------------------

// Interp executes CompiledCode against its own heap, operand stack and
// primitive table. An Interp is single-threaded: none of its methods may be
// called concurrently.
type Interp struct {
	ID         string // session id attached to log output
	Heap       *Heap
	Stack      *Stack
	Primitives *Primitives

	// Out receives the output of the show primitive.
	Out io.Writer

	maxDepth int
	depth    int
	trace    bool
}

// New creates an interpreter with an empty heap and primitive table.
func New(opts Options) *Interp {
	opts = opts.withDefaults()
	in := &Interp{
		ID:         uuid.New().String(),
		Heap:       NewHeap(),
		Stack:      NewStack(opts.StackSize),
		Primitives: NewPrimitives(),
		Out:        os.Stdout,
		maxDepth:   opts.MaxDepth,
		trace:      opts.Trace,
	}
	log.Debugf("interp %s: created (stack=%d, max-depth=%d)", in.ID, opts.StackSize, opts.MaxDepth)
	return in
}

// Register adds a primitive, replacing any previous one with the same name.
func (in *Interp) Register(name string, fn PrimitiveFunc) {
	in.Primitives.Register(name, fn)
}

// SetTrace toggles per-instruction tracing.
func (in *Interp) SetTrace(on bool) { in.trace = on }

// Depth returns the number of activations currently running.
func (in *Interp) Depth() int { return in.depth }

// Run executes code in env and returns its result, which the caller owns.
// env may be nil; otherwise Run borrows it and bindings made by the code
// remain visible in env afterwards.
func (in *Interp) Run(code *CompiledCode, env *Env) (Value, error) {
	if env == nil {
		env = NewEnv()
	} else {
		env.Retain()
	}
	v, err := in.activate(code, env)
	if err != nil {
		log.Infof("interp %s: %s failed: %v", in.ID, code.Name, err)
	}
	return v, err
}

// Call applies callee to args from outside the dispatch loop. Both are
// borrowed; the result is owned by the caller. This is the re-entry point
// for primitives that invoke blocks.
func (in *Interp) Call(callee Value, args []Value) (Value, error) {
	if err := in.Heap.Retain(callee); err != nil {
		return Unit, err
	}
	if err := in.Heap.RetainAll(args); err != nil {
		in.Heap.Release(callee)
		return Unit, err
	}
	owned := make([]Value, len(args))
	copy(owned, args)
	return in.call(callee, owned)
}

// Release drops a reference held by the host, typically a Run result.
func (in *Interp) Release(v Value) error {
	return in.Heap.Release(v)
}

// activate runs code as a new activation. It takes ownership of one
// reference to env and releases it, along with anything left in the frame,
// when the activation ends.
func (in *Interp) activate(code *CompiledCode, env *Env) (Value, error) {
	if in.depth >= in.maxDepth {
		env.Release(in.Heap)
		return Unit, &EngineError{
			Kind: CallDepthExceeded,
			Msg:  fmt.Sprintf("more than %d nested activations", in.maxDepth),
			Code: code.Name,
			PC:   0,
		}
	}
	in.depth++
	ctx := in.Stack.NewContext()

	result, err := in.dispatch(code, env, ctx)

	leftovers := in.Stack.Discard(ctx)
	relErr := in.Heap.ReleaseAll(leftovers)
	if envErr := env.Release(in.Heap); relErr == nil {
		relErr = envErr
	}
	in.depth--

	if err != nil {
		return Unit, err
	}
	if relErr != nil {
		in.Heap.Release(result)
		return Unit, relErr
	}
	return result, nil
}

// fail attaches the failing location to err unless an inner activation
// already did.
func (in *Interp) fail(code *CompiledCode, pc int, err error) error {
	var ee *EngineError
	if errors.As(err, &ee) {
		if ee.Code == "" {
			ee.Code = code.Name
			ee.PC = pc
		}
		return err
	}
	return fmt.Errorf("%s at %d: %w", code.Name, pc, err)
}

// dispatch is the main execution loop.
func (in *Interp) dispatch(code *CompiledCode, env *Env, ctx *Context) (Value, error) {
	ops := code.Ops
	heap := in.Heap
	stack := in.Stack

	for ctx.PC < len(ops) {
		pc := ctx.PC
		instr := ops[pc]
		ctx.PC++

		if in.trace {
			log.Debugf("interp %s: [%04d] %-20s depth=%d frame=%d", in.ID, pc, instr, in.depth, ctx.Index)
		}

		switch instr.Op {
		// ============ Stack and literals ============
		case OpNop, OpLoopHead:
			// Nothing to do

		case OpLoadUnit:
			stack.Push(ctx, Unit)

		case OpLoadTrue:
			stack.Push(ctx, True)

		case OpLoadFalse:
			stack.Push(ctx, False)

		case OpLoadInt:
			stack.Push(ctx, Int(instr.Arg))

		case OpLoadTemp:
			v, ok := env.Get(instr.Name)
			if !ok {
				return Unit, in.fail(code, pc, newError(UnboundVariable, "%q", instr.Name))
			}
			if err := heap.Retain(v); err != nil {
				return Unit, in.fail(code, pc, err)
			}
			stack.Push(ctx, v)

		case OpLoadLit:
			id, err := code.Literal(instr.Arg)
			if err != nil {
				return Unit, in.fail(code, pc, err)
			}
			v := Ptr(id)
			if err := heap.Retain(v); err != nil {
				return Unit, in.fail(code, pc, err)
			}
			stack.Push(ctx, v)

		case OpLoadPrim:
			stack.Push(ctx, Prim(instr.Name))

		case OpStorePop:
			v, err := stack.Pop(ctx)
			if err != nil {
				return Unit, in.fail(code, pc, err)
			}
			if old, had := env.Bind(instr.Name, v); had {
				if err := heap.Release(old); err != nil {
					return Unit, in.fail(code, pc, err)
				}
			}

		case OpPop:
			v, err := stack.Pop(ctx)
			if err != nil {
				return Unit, in.fail(code, pc, err)
			}
			if err := heap.Release(v); err != nil {
				return Unit, in.fail(code, pc, err)
			}

		// ============ Control flow ============
		case OpBranchTrue, OpBranchFalse:
			top, err := stack.Top(ctx)
			if err != nil {
				return Unit, in.fail(code, pc, err)
			}
			b, ok := top.AsBool()
			if !ok {
				return Unit, in.fail(code, pc, newError(TypeMismatch, "%s on %s", instr.Op, top.Kind()))
			}
			if b == (instr.Op == OpBranchTrue) {
				target := instr.Arg
				if target < 0 || target >= int64(len(ops)) || ops[target].Op != OpLoopHead {
					return Unit, in.fail(code, pc, newError(MalformedJumpTarget, "branch to %d is not a loop head", target))
				}
				ctx.PC = int(target)
			}

		case OpJump:
			target := int64(pc) + 1 + instr.Arg
			if target < 0 || target > int64(len(ops)) {
				return Unit, in.fail(code, pc, newError(MalformedJumpTarget, "jump to %d outside 0..%d", target, len(ops)))
			}
			ctx.PC = int(target)

		case OpReturn:
			v, err := stack.Pop(ctx)
			if err != nil {
				return Unit, in.fail(code, pc, err)
			}
			return v, nil

		// ============ Logic and comparison ============
		case OpNot:
			v, err := stack.Pop(ctx)
			if err != nil {
				return Unit, in.fail(code, pc, err)
			}
			b, ok := v.AsBool()
			if !ok {
				heap.Release(v)
				return Unit, in.fail(code, pc, newError(TypeMismatch, "not on %s", v.Kind()))
			}
			stack.Push(ctx, Bool(!b))

		case OpEq, OpNeq:
			a, b, err := in.popPair(ctx)
			if err != nil {
				return Unit, in.fail(code, pc, err)
			}
			if a.Kind() != b.Kind() || !(a.IsBool() || a.IsInt()) {
				heap.Release(a)
				heap.Release(b)
				return Unit, in.fail(code, pc, newError(TypeMismatch, "%s on %s and %s", instr.Op, a.Kind(), b.Kind()))
			}
			stack.Push(ctx, Bool((a == b) == (instr.Op == OpEq)))

		case OpLt, OpLe, OpGt, OpGe:
			a, b, err := in.popPair(ctx)
			if err != nil {
				return Unit, in.fail(code, pc, err)
			}
			x, okA := a.AsInt()
			y, okB := b.AsInt()
			if !okA || !okB {
				heap.Release(a)
				heap.Release(b)
				return Unit, in.fail(code, pc, newError(TypeMismatch, "%s on %s and %s", instr.Op, a.Kind(), b.Kind()))
			}
			stack.Push(ctx, Bool(compareInts(instr.Op, x, y)))

		// ============ Calls and closures ============
		case OpApply:
			callee, err := stack.Pop(ctx)
			if err != nil {
				return Unit, in.fail(code, pc, err)
			}
			argc := int(instr.Arg)
			if argc < 0 || argc > ctx.Index {
				heap.Release(callee)
				return Unit, in.fail(code, pc, newError(StackUnderflow, "apply of %d args with %d on frame", argc, ctx.Index))
			}
			args := make([]Value, argc)
			for i := argc - 1; i >= 0; i-- {
				args[i], _ = stack.Pop(ctx)
			}
			result, err := in.call(callee, args)
			if err != nil {
				return Unit, in.fail(code, pc, err)
			}
			stack.Push(ctx, result)

		case OpMakeBlock:
			id, err := code.Literal(instr.Arg)
			if err != nil {
				return Unit, in.fail(code, pc, err)
			}
			obj, err := heap.Lookup(id)
			if err != nil {
				return Unit, in.fail(code, pc, err)
			}
			if obj.Kind != ObjCode {
				return Unit, in.fail(code, pc, newError(TypeMismatch, "make_block over %s literal", obj.Kind))
			}
			lit := Ptr(id)
			if err := heap.Retain(lit); err != nil {
				return Unit, in.fail(code, pc, err)
			}
			blk := NewBlock(obj.Code, env)
			blk.Lit = lit
			stack.Push(ctx, heap.Allocate(NewBlockObject(blk)))

		default:
			return Unit, in.fail(code, pc, fmt.Errorf("unknown opcode: 0x%02x", byte(instr.Op)))
		}
	}

	// Falling off the end yields the top of the frame, or unit if empty.
	if ctx.Index > 0 {
		return stack.Pop(ctx)
	}
	return Unit, nil
}

// popPair pops the right operand then the left one.
func (in *Interp) popPair(ctx *Context) (a, b Value, err error) {
	b, err = in.Stack.Pop(ctx)
	if err != nil {
		return Unit, Unit, err
	}
	a, err = in.Stack.Pop(ctx)
	if err != nil {
		in.Heap.Release(b)
		return Unit, Unit, err
	}
	return a, b, nil
}

func compareInts(op Opcode, x, y int64) bool {
	switch op {
	case OpLt:
		return x < y
	case OpLe:
		return x <= y
	case OpGt:
		return x > y
	default:
		return x >= y
	}
}

// call applies callee to args. It owns callee and every arg and releases
// whatever it does not hand on.
func (in *Interp) call(callee Value, args []Value) (Value, error) {
	switch callee.Kind() {
	case KindPrim:
		name, _ := callee.PrimName()
		fn, ok := in.Primitives.Lookup(name)
		if !ok {
			in.Heap.ReleaseAll(args)
			return Unit, newError(UnknownPrimitive, "%q", name)
		}
		result, err := fn(in, args)
		relErr := in.Heap.ReleaseAll(args)
		if err != nil {
			in.Heap.Release(result)
			return Unit, err
		}
		if relErr != nil {
			in.Heap.Release(result)
			return Unit, relErr
		}
		return result, nil

	case KindPtr:
		obj, err := in.Heap.Deref(callee)
		if err != nil {
			in.Heap.ReleaseAll(args)
			return Unit, err
		}
		if obj.Kind != ObjBlock {
			in.Heap.ReleaseAll(args)
			in.Heap.Release(callee)
			return Unit, newError(TypeMismatch, "cannot apply %s object", obj.Kind)
		}
		blk := obj.Block
		if len(args) != blk.Code.Arity() {
			in.Heap.ReleaseAll(args)
			in.Heap.Release(callee)
			return Unit, newError(ArityMismatch, "%s takes %d arguments, %d given", blk.Code.Name, blk.Code.Arity(), len(args))
		}
		env := blk.Env.Extend()
		for i, name := range blk.Code.Params {
			if old, had := env.Bind(name, args[i]); had {
				// Duplicate parameter names: the last binding wins.
				in.Heap.Release(old)
			}
		}
		result, err := in.activate(blk.Code, env)
		if relErr := in.Heap.Release(callee); err == nil && relErr != nil {
			in.Heap.Release(result)
			return Unit, relErr
		}
		return result, err

	default:
		in.Heap.ReleaseAll(args)
		return Unit, newError(TypeMismatch, "cannot apply %s", callee.Kind())
	}
}

package vm

import "fmt"

// Opcode represents a bytecode instruction.
type Opcode uint8

const (
	// Stack and literals. LoadLit retains on purpose, unlike a reading where
	// only the constant pool holds literals: the pushed slot owns its ref like
	// any other slot, so Pop and frame teardown release it uniformly.
	OpNop       Opcode = iota // No operation
	OpLoadUnit                // Push ()
	OpLoadTrue                // Push true
	OpLoadFalse               // Push false
	OpLoadInt                 // Push Arg as an int
	OpLoadTemp                // Push env[Name], retained
	OpLoadLit                 // Push Ptr(lits[Arg]), retained
	OpLoadPrim                // Push Prim(Name)
	OpStorePop                // Pop into env[Name], releasing the old binding
	OpPop                     // Pop and release

	// Control flow
	OpLoopHead    // Jump target marker
	OpBranchTrue  // If top is true, pc = Arg (must be a LoopHead)
	OpBranchFalse // If top is false, pc = Arg (must be a LoopHead)
	OpJump        // pc += Arg, relative to the next instruction
	OpReturn      // Return top of stack

	// Logic and comparison
	OpNot
	OpEq
	OpNeq
	OpLt
	OpLe
	OpGt
	OpGe

	// Calls and closures
	OpApply     // Pop callee, then Arg args; push result
	OpMakeBlock // Push a closure over lits[Arg] and the current env
)

// OpcodeInfo provides metadata about each opcode for debugging and validation.
type OpcodeInfo struct {
	Name      string // Mnemonic
	StackPop  int    // Values popped (-1 = depends on operand)
	StackPush int    // Values pushed
	Operand   OperandKind
}

// OperandKind describes what an instruction's operand means.
type OperandKind uint8

const (
	OperandNone OperandKind = iota
	OperandInt              // Arg is an immediate integer
	OperandName             // Name is a variable or primitive name
	OperandLit              // Arg indexes the constant pool
	OperandTarget           // Arg is an absolute instruction index
	OperandOffset           // Arg is a signed relative offset
	OperandCount            // Arg is an argument count
)

var opcodeInfoTable = map[Opcode]OpcodeInfo{
	OpNop:       {"nop", 0, 0, OperandNone},
	OpLoadUnit:  {"load_unit", 0, 1, OperandNone},
	OpLoadTrue:  {"load_true", 0, 1, OperandNone},
	OpLoadFalse: {"load_false", 0, 1, OperandNone},
	OpLoadInt:   {"load_int", 0, 1, OperandInt},
	OpLoadTemp:  {"load_temp", 0, 1, OperandName},
	OpLoadLit:   {"load_lit", 0, 1, OperandLit},
	OpLoadPrim:  {"load_prim", 0, 1, OperandName},
	OpStorePop:  {"store_pop", 1, 0, OperandName},
	OpPop:       {"pop", 1, 0, OperandNone},

	OpLoopHead:    {"loop_head", 0, 0, OperandNone},
	OpBranchTrue:  {"branch_true", 0, 0, OperandTarget},
	OpBranchFalse: {"branch_false", 0, 0, OperandTarget},
	OpJump:        {"jump", 0, 0, OperandOffset},
	OpReturn:      {"return", 1, 0, OperandNone},

	OpNot: {"not", 1, 1, OperandNone},
	OpEq:  {"eq", 2, 1, OperandNone},
	OpNeq: {"neq", 2, 1, OperandNone},
	OpLt:  {"lt", 2, 1, OperandNone},
	OpLe:  {"le", 2, 1, OperandNone},
	OpGt:  {"gt", 2, 1, OperandNone},
	OpGe:  {"ge", 2, 1, OperandNone},

	OpApply:     {"apply", -1, 1, OperandCount}, // callee + Arg args
	OpMakeBlock: {"make_block", 0, 1, OperandLit},
}

// GetOpcodeInfo returns metadata for an opcode.
// Returns a zero OpcodeInfo with name "unknown" if the opcode is not recognized.
func GetOpcodeInfo(op Opcode) OpcodeInfo {
	if info, ok := opcodeInfoTable[op]; ok {
		return info
	}
	return OpcodeInfo{Name: fmt.Sprintf("unknown(0x%02x)", byte(op))}
}

// String returns the mnemonic of an opcode.
func (op Opcode) String() string {
	return GetOpcodeInfo(op).Name
}

// IsBranch reports whether op is a conditional branch.
func (op Opcode) IsBranch() bool {
	return op == OpBranchTrue || op == OpBranchFalse
}

// Valid reports whether op is a defined opcode.
func (op Opcode) Valid() bool {
	_, ok := opcodeInfoTable[op]
	return ok
}

// OpcodeByName maps a mnemonic back to its opcode.
func OpcodeByName(name string) (Opcode, bool) {
	for op, info := range opcodeInfoTable {
		if info.Name == name {
			return op, true
		}
	}
	return 0, false
}

// OpcodeCount returns the number of defined opcodes.
func OpcodeCount() int {
	return len(opcodeInfoTable)
}

// ---------------------------------------------------------------------------
// Instruction
// ---------------------------------------------------------------------------

// Instruction is one decoded operation. Arg carries integer operands
// (immediates, literal indexes, targets, offsets, counts); Name carries
// variable and primitive names.
type Instruction struct {
	Op   Opcode
	Arg  int64
	Name string
}

// Instruction constructors, one per opcode.

func Nop() Instruction { return Instruction{Op: OpNop} }
func LoadUnit() Instruction { return Instruction{Op: OpLoadUnit} }
func LoadTrue() Instruction { return Instruction{Op: OpLoadTrue} }
func LoadFalse() Instruction { return Instruction{Op: OpLoadFalse} }
func LoadInt(n int64) Instruction { return Instruction{Op: OpLoadInt, Arg: n} }
func LoadTemp(name string) Instruction { return Instruction{Op: OpLoadTemp, Name: name} }
func LoadLit(i int) Instruction { return Instruction{Op: OpLoadLit, Arg: int64(i)} }
func LoadPrim(name string) Instruction { return Instruction{Op: OpLoadPrim, Name: name} }
func StorePop(name string) Instruction { return Instruction{Op: OpStorePop, Name: name} }
func Pop() Instruction { return Instruction{Op: OpPop} }
func LoopHead() Instruction { return Instruction{Op: OpLoopHead} }
func BranchTrue(target int) Instruction { return Instruction{Op: OpBranchTrue, Arg: int64(target)} }
func BranchFalse(target int) Instruction { return Instruction{Op: OpBranchFalse, Arg: int64(target)} }
func Jump(offset int) Instruction { return Instruction{Op: OpJump, Arg: int64(offset)} }
func Return() Instruction { return Instruction{Op: OpReturn} }
func Not() Instruction { return Instruction{Op: OpNot} }
func Eq() Instruction { return Instruction{Op: OpEq} }
func Neq() Instruction { return Instruction{Op: OpNeq} }
func Lt() Instruction { return Instruction{Op: OpLt} }
func Le() Instruction { return Instruction{Op: OpLe} }
func Gt() Instruction { return Instruction{Op: OpGt} }
func Ge() Instruction { return Instruction{Op: OpGe} }
func Apply(argc int) Instruction { return Instruction{Op: OpApply, Arg: int64(argc)} }
func MakeBlock(lit int) Instruction { return Instruction{Op: OpMakeBlock, Arg: int64(lit)} }

// StackEffect returns the net change in frame depth caused by executing in.
func (in Instruction) StackEffect() int {
	info := GetOpcodeInfo(in.Op)
	if in.Op == OpApply {
		return info.StackPush - (1 + int(in.Arg))
	}
	return info.StackPush - info.StackPop
}

// String renders the instruction as mnemonic plus operand.
func (in Instruction) String() string {
	info := GetOpcodeInfo(in.Op)
	switch info.Operand {
	case OperandName:
		return fmt.Sprintf("%s %s", info.Name, in.Name)
	case OperandLit:
		return fmt.Sprintf("%s #%d", info.Name, in.Arg)
	case OperandTarget:
		return fmt.Sprintf("%s @%d", info.Name, in.Arg)
	case OperandOffset:
		return fmt.Sprintf("%s %+d", info.Name, in.Arg)
	case OperandInt, OperandCount:
		return fmt.Sprintf("%s %d", info.Name, in.Arg)
	default:
		return info.Name
	}
}

package vm

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a fatal engine condition.
type ErrorKind uint8

const (
	UnboundVariable ErrorKind = iota + 1
	StackUnderflow
	IndexOutOfRange
	TypeMismatch
	MalformedJumpTarget
	UnknownPrimitive
	UnknownHeapId
	ArityMismatch
	CallDepthExceeded
)

func (k ErrorKind) String() string {
	switch k {
	case UnboundVariable:
		return "UnboundVariable"
	case StackUnderflow:
		return "StackUnderflow"
	case IndexOutOfRange:
		return "IndexOutOfRange"
	case TypeMismatch:
		return "TypeMismatch"
	case MalformedJumpTarget:
		return "MalformedJumpTarget"
	case UnknownPrimitive:
		return "UnknownPrimitive"
	case UnknownHeapId:
		return "UnknownHeapId"
	case ArityMismatch:
		return "ArityMismatch"
	case CallDepthExceeded:
		return "CallDepthExceeded"
	default:
		return fmt.Sprintf("ErrorKind(%d)", k)
	}
}

// Sentinel errors, one per kind. Every *EngineError matches the sentinel for
// its kind under errors.Is.
var (
	ErrUnboundVariable     = errors.New("unbound variable")
	ErrStackUnderflow      = errors.New("stack underflow")
	ErrIndexOutOfRange     = errors.New("index out of range")
	ErrTypeMismatch        = errors.New("type mismatch")
	ErrMalformedJumpTarget = errors.New("malformed jump target")
	ErrUnknownPrimitive    = errors.New("unknown primitive")
	ErrUnknownHeapId       = errors.New("unknown heap id")
	ErrArityMismatch       = errors.New("arity mismatch")
	ErrCallDepthExceeded   = errors.New("call depth exceeded")
)

var kindSentinels = map[ErrorKind]error{
	UnboundVariable:     ErrUnboundVariable,
	StackUnderflow:      ErrStackUnderflow,
	IndexOutOfRange:     ErrIndexOutOfRange,
	TypeMismatch:        ErrTypeMismatch,
	MalformedJumpTarget: ErrMalformedJumpTarget,
	UnknownPrimitive:    ErrUnknownPrimitive,
	UnknownHeapId:       ErrUnknownHeapId,
	ArityMismatch:       ErrArityMismatch,
	CallDepthExceeded:   ErrCallDepthExceeded,
}

// EngineError is the typed failure surfaced by an aborted activation.
type EngineError struct {
	Kind ErrorKind
	Msg  string

	// Where the activation stopped. Code is empty and PC is -1 when the
	// failure did not originate in the dispatch loop.
	Code string
	PC   int
}

func (e *EngineError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
	}
	return fmt.Sprintf("%s: %s (in %s at %d)", e.Kind, e.Msg, e.Code, e.PC)
}

// Is matches the kind sentinel.
func (e *EngineError) Is(target error) bool {
	return kindSentinels[e.Kind] == target
}

func newError(kind ErrorKind, format string, args ...any) *EngineError {
	return &EngineError{Kind: kind, Msg: fmt.Sprintf(format, args...), PC: -1}
}

// NewError builds an EngineError for use by primitives, which report
// failures with the same taxonomy as the engine.
func NewError(kind ErrorKind, format string, args ...any) error {
	return newError(kind, format, args...)
}

// KindOf returns the kind of err if it wraps an *EngineError.
func KindOf(err error) (ErrorKind, bool) {
	var ee *EngineError
	if errors.As(err, &ee) {
		return ee.Kind, true
	}
	return 0, false
}

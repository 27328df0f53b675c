package vm

// DefaultMaxDepth bounds the number of nested activations.
const DefaultMaxDepth = 512

// Options configures a new interpreter.
type Options struct {
	StackSize int  // initial operand stack capacity
	MaxDepth  int  // maximum nesting of activations
	Trace     bool // log every dispatched instruction at debug level
}

// DefaultOptions returns the options used by New when none are given.
func DefaultOptions() Options {
	return Options{
		StackSize: DefaultStackSize,
		MaxDepth:  DefaultMaxDepth,
	}
}

func (o Options) withDefaults() Options {
	if o.StackSize <= 0 {
		o.StackSize = DefaultStackSize
	}
	if o.MaxDepth <= 0 {
		o.MaxDepth = DefaultMaxDepth
	}
	return o
}

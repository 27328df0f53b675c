// Package vm implements the trompe execution engine: a small stack-based
// bytecode interpreter running against a manually reference-counted heap
// and a named-variable environment.
//
// # Architecture Overview
//
//   - Value: tagged scalars (unit, bool, int, ptr, prim, none). Only ptr
//     values refer to heap storage.
//
//   - Heap: id -> Object arena with explicit Retain/Release. Releasing the
//     last reference removes the entry at once and releases everything the
//     object owns.
//
//   - Stack and Context: one operand array shared by nested activations,
//     each addressing its own window relative to a base.
//
//   - Env: named bindings, shared between an activation and the closures
//     that capture it.
//
//   - CompiledCode and Block: immutable instructions plus a constant pool,
//     and closures pairing code with a captured Env.
//
//   - Interp: the dispatch loop and the primitive-call protocol.
//
// # Ownership
//
// Every stack slot and every env binding holding a ptr owns one reference.
// Loads retain, StorePop releases the value it overwrites, Pop releases what
// it discards, and an activation releases whatever is left on its frame when
// it returns. The value an activation returns is handed to its caller.
//
// A Block reachable from its own captured environment forms a cycle and is
// never reclaimed; there is no cycle collector.
package vm

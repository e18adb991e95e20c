// Package lower implements the lowering backend: it renders validated
// function IR into a runnable form and ties a set of compiled functions,
// linear memory, a table, and globals together into one running Instance.
//
// This repo ships exactly one lowering target, InterpreterTarget: a
// tree-walking closure interpreter whose values are boxed as uint64 bit
// patterns, the same convention ir.Constant.Bits already uses. This is
// grounded on the reference corpus's bytecode-interpreter engine style
// (boxed []uint64 operand values, panic/recover trap propagation) but
// adapted to a tree-shaped IR instead of a pre-flattened operation list:
// where the corpus resolves a branch target by patching a forward jump
// address into a flat op slice, this backend resolves it by unwinding Go's
// own call stack until the compiled closure whose label matches is
// reached, since the IR here is a nested statement tree, not already
// flattened with known addresses.
package lower

import "github.com/oakwasm/oak/internal/ir"

// Target compiles one validated function into a runnable form.
type Target interface {
	Compile(fn *ir.Function) (CompiledFunction, error)
}

// CompiledFunction is a lowered function, ready to run against a concrete
// Instance. Arguments and the result are boxed uint64 bit patterns.
type CompiledFunction interface {
	Call(inst *Instance, args []uint64) (result uint64, hasResult bool, err error)
}

// signal propagates a branch or return out of a nested statement list
// until it reaches the enclosing frame whose Label matches Target.
type signal struct {
	target    ir.Label
	hasResult bool
	result    uint64
}

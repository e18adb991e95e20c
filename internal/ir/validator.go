package ir

import (
	"github.com/oakwasm/oak/internal/errs"
	"github.com/oakwasm/oak/internal/reader"
	"github.com/oakwasm/oak/internal/wasm"
)

// Function is the validated, fully built IR of one function body, ready
// for the lowering backend.
type Function struct {
	Signature *wasm.FunctionType
	// Locals is the complete local layout: parameters followed by
	// declared locals, in logical-index order, used by lowering to emit
	// the parameter-coercion and zero-initialized-local prologue.
	Locals []ValueType
	Body   []Statement
	// TempCounts[t] is the number of distinct tempvar slots of type t
	// the function's validation pass allocated at its high-water mark;
	// lowering declares exactly this many scratch variables per type.
	TempCounts map[ValueType]uint32
}

// Validate runs the structured-stack validator over the funcIdx-th
// module-defined function (not counting imports) and returns its IR, or a
// *errs.CompileError describing the first violation found.
func Validate(m *wasm.Module, funcIdx int) (*Function, error) {
	if funcIdx < 0 || funcIdx >= len(m.Codes) {
		return nil, errs.NewCompileError("validate", -1, "function index %d out of range", funcIdx)
	}
	code := m.Codes[funcIdx]
	typeIdx := m.FunctionTypeIndices[funcIdx]
	sig := m.Types[typeIdx]

	locals := append([]ValueType(nil), sig.Params...)
	locals = append(locals, code.LocalTypes...)

	b := &funcBuilder{
		module:    m,
		sig:       sig,
		locals:    locals,
		paramLen:  len(sig.Params),
		temps:     newTempPools(),
		r:         reader.New(code.Body),
	}
	b.pushFrame(FrameKindFunction, resultTypeOf(sig))

	if err := b.run(); err != nil {
		return nil, err
	}

	counts := map[ValueType]uint32{
		wasm.ValueTypeI32: b.temps.count(wasm.ValueTypeI32),
		wasm.ValueTypeI64: b.temps.count(wasm.ValueTypeI64),
		wasm.ValueTypeF32: b.temps.count(wasm.ValueTypeF32),
		wasm.ValueTypeF64: b.temps.count(wasm.ValueTypeF64),
	}
	return &Function{Signature: sig, Locals: locals, Body: b.finalBody, TempCounts: counts}, nil
}

func resultTypeOf(sig *wasm.FunctionType) ValueType {
	if len(sig.Results) == 0 {
		return wasm.ValueTypeNone
	}
	return sig.Results[0]
}

type funcBuilder struct {
	module   *wasm.Module
	sig      *wasm.FunctionType
	locals   []ValueType
	paramLen int
	temps    *tempPools
	r        *reader.Reader
	frames   []*ControlFrame
	nextLbl  Label
	finalBody []Statement
}

func (b *funcBuilder) fail(format string, args ...interface{}) error {
	return errs.NewCompileError("validate", b.r.Pos(), format, args...)
}

func (b *funcBuilder) localType(idx uint32) (ValueType, error) {
	if int(idx) >= len(b.locals) {
		return 0, b.fail("local index %d out of range", idx)
	}
	return b.locals[idx], nil
}

func (b *funcBuilder) top() *ControlFrame { return b.frames[len(b.frames)-1] }

func (b *funcBuilder) pushFrame(kind FrameKind, resultType ValueType) *ControlFrame {
	branchResult := resultType
	if kind == FrameKindLoop {
		branchResult = wasm.ValueTypeNone
	}
	f := &ControlFrame{Kind: kind, ResultType: resultType, BranchResultType: branchResult, Label: b.nextLbl}
	b.nextLbl++
	b.frames = append(b.frames, f)
	return f
}

// frameAt returns the frame `depth` levels down from the top (0 = current).
func (b *funcBuilder) frameAt(depth uint32) (*ControlFrame, error) {
	idx := len(b.frames) - 1 - int(depth)
	if idx < 0 {
		return nil, b.fail("branch depth %d exceeds control stack", depth)
	}
	return b.frames[idx], nil
}

// push pushes e onto the current frame's operand stack.
func (b *funcBuilder) push(e Expression) { b.top().pushOperand(e) }

// pop pops one value from the current frame's operand stack, enforcing
// the polymorphism rule: in a polymorphic (dead) frame, popping past the
// bottom yields an Undefined of UNKNOWN type rather than an error.
func (b *funcBuilder) pop() (Expression, error) {
	f := b.top()
	if e, ok := f.popOperand(); ok {
		return e, nil
	}
	if f.IsPolymorphic {
		return &Undefined{ValType: wasm.ValueTypeUnknown}, nil
	}
	return nil, b.fail("operand stack underflow")
}

// popExpect pops one value and checks its type against want, unless the
// popped value is UNKNOWN (always allowed) or the frame is polymorphic.
func (b *funcBuilder) popExpect(want ValueType) (Expression, error) {
	f := b.top()
	e, err := b.pop()
	if err != nil {
		return nil, err
	}
	if e.Type() != want && e.Type() != wasm.ValueTypeUnknown && !f.IsPolymorphic {
		return nil, b.fail("type mismatch: expected %s, got %s", wasm.ValueTypeName(want), wasm.ValueTypeName(e.Type()))
	}
	return e, nil
}

// spill forces a composite expression into a tempvar, emitting a SetVar
// statement, so that a subsequent side-effecting statement cannot reorder
// its evaluation relative to that side effect. GetVar and Constant nodes
// are left as-is: re-evaluating them has no observable effect.
func (b *funcBuilder) spill(e Expression) Expression {
	switch e.(type) {
	case *GetVar, *Constant, *Undefined:
		return e
	}
	vt := e.Type()
	idx := b.temps.acquire(vt)
	b.emit(&SetVar{Kind: VarKindTemp, ValType: vt, Index: idx, Expr: e})
	return &GetVar{Kind: VarKindTemp, ValType: vt, Index: idx}
}

// spillStack spills every composite entry on the current frame's operand
// stack, used before calls/stores/memory growth/local-global writes so
// their side effects cannot reorder relative to still-pending operands.
func (b *funcBuilder) spillStack() {
	f := b.top()
	for i, e := range f.OperandStack {
		f.OperandStack[i] = b.spill(e)
	}
}

// addTrap appends a pooled trap condition, materialized later by
// flushTraps.
func (b *funcBuilder) addTrap(trap string, cond Expression) {
	f := b.top()
	f.PendingTraps = append(f.PendingTraps, TrapCheck{Trap: trap, Cond: cond})
}

// flushTraps materializes any pooled trap conditions into a single
// TrapConditions statement, called before any statement whose side
// effects become observable (call, store, memory growth, block end).
func (b *funcBuilder) flushTraps() {
	f := b.top()
	if len(f.PendingTraps) == 0 {
		return
	}
	b.emitRaw(&TrapConditions{Conds: f.PendingTraps})
	f.PendingTraps = nil
}

// emit flushes pooled traps, then appends stmt to the active statement
// list (Then vs Else, for an IfElse frame mid-construction).
func (b *funcBuilder) emit(stmt Statement) {
	b.flushTraps()
	b.emitRaw(stmt)
}

func (b *funcBuilder) emitRaw(stmt Statement) {
	f := b.top()
	if f.Kind == FrameKindIfElse && f.InElse {
		f.ElseStatements = append(f.ElseStatements, stmt)
	} else {
		f.Statements = append(f.Statements, stmt)
	}
}

// markDead marks the current frame polymorphic: reached after
// unreachable/br/br_table/return, relaxing subsequent type checks until
// the frame's matching end/else.
func (b *funcBuilder) markDead() {
	f := b.top()
	f.IsPolymorphic = true
	f.OperandStack = nil
}

func (b *funcBuilder) run() error {
	for {
		op, err := b.r.ReadU8()
		if err != nil {
			return err
		}
		if err := b.step(op); err != nil {
			return err
		}
		if len(b.frames) == 0 {
			// The END of the function body frame popped the last frame.
			if b.r.Remaining() != 0 {
				return b.fail("unexpected bytes after function end")
			}
			return nil
		}
	}
}

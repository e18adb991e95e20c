package ir

import "github.com/oakwasm/oak/internal/wasm"

// FrameKind distinguishes the four control-frame shapes. They are modeled
// as one struct with a Kind tag, rather than four interface types, because
// they share nearly all fields and only differ in branch_result_type
// derivation and a couple of Else-only fields.
type FrameKind int

const (
	FrameKindFunction FrameKind = iota
	FrameKindBlock
	FrameKindLoop
	FrameKindIfElse
)

// ControlFrame is one entry of the validator's control-flow stack.
type ControlFrame struct {
	Kind FrameKind
	// ResultType is the type a well-formed fall-through or explicit end
	// must leave on the stack; NONE means no value.
	ResultType ValueType
	// BranchResultType is the type a `br` targeting this frame must carry.
	// Equal to ResultType for every kind except Loop, where branching
	// re-enters the loop body and carries no value.
	BranchResultType ValueType
	Label            Label

	// OperandStack holds this frame's private operand stack as built
	// Expression nodes (not just their types), so a later opcode can
	// inspect whether the top entry is already a GetVar/Constant (no
	// spill needed) or a composite expression (spill required).
	OperandStack []Expression

	// Statements accumulates this frame's statement list. For IfElse,
	// once the ELSE opcode is seen, new statements are appended to
	// ElseStatements instead (see InElse).
	Statements     []Statement
	ElseStatements []Statement
	InElse         bool

	// PendingTraps holds trap checks accumulated since the last
	// materialization point; flushed into a single TrapConditions
	// statement before any side-effecting statement.
	PendingTraps []TrapCheck

	// IsPolymorphic relaxes popValue to accept any type and suppresses
	// underflow errors, set after unreachable/br/br_table/return until
	// the frame's matching end/else.
	IsPolymorphic bool

	// CondExpr holds the IF opcode's condition, carried into the IfElse
	// IR node once the frame closes.
	CondExpr Expression

	// thenFallthrough is the then-branch's tail value, captured by doElse
	// before the operand stack is reset for the else branch, so
	// finishFrame can hand it to the IfElse node as ThenFallthroughResult.
	thenFallthrough Expression

	// ResultTempVar is allocated lazily the first time a branch targeting
	// this frame carries a value while the frame is not yet at its end.
	// An IfElse frame with a result gets one at its end regardless; for
	// other frames it stays nil if the result came purely by fall-through.
	ResultTempVar *GetVar
}

// pushOperand pushes e onto this frame's operand stack.
func (f *ControlFrame) pushOperand(e Expression) {
	f.OperandStack = append(f.OperandStack, e)
}

// popOperand pops and returns the top of this frame's operand stack, or
// nil plus ok=false if the stack is empty; the caller decides, from the
// frame's polymorphism, whether that is an underflow or an Undefined
// placeholder of UNKNOWN type.
func (f *ControlFrame) popOperand() (Expression, bool) {
	if len(f.OperandStack) == 0 {
		return nil, false
	}
	e := f.OperandStack[len(f.OperandStack)-1]
	f.OperandStack = f.OperandStack[:len(f.OperandStack)-1]
	return e, true
}

// tempPool hands out and reclaims tempvar slots for one value type within
// one function: a free-list stack plus a high-water-mark counter, so
// lowering can pre-declare exactly count() scratch variables of this type.
type tempPool struct {
	free []uint32
	high uint32
}

// acquire returns a free slot index, reusing a released one if available,
// otherwise growing the high-water mark.
func (p *tempPool) acquire() uint32 {
	if n := len(p.free); n > 0 {
		idx := p.free[n-1]
		p.free = p.free[:n-1]
		return idx
	}
	idx := p.high
	p.high++
	return idx
}

// release returns idx to the free list for reuse by a later spill of the
// same type within the same function.
func (p *tempPool) release(idx uint32) {
	p.free = append(p.free, idx)
}

// count returns the number of distinct slots ever allocated (the high
// water mark), i.e. how many scratch variables of this type the lowering
// stage must declare.
func (p *tempPool) count() uint32 { return p.high }

// tempPools holds one tempPool per WASM value type.
type tempPools struct {
	byType map[ValueType]*tempPool
}

func newTempPools() *tempPools {
	return &tempPools{byType: map[ValueType]*tempPool{
		wasm.ValueTypeI32: {},
		wasm.ValueTypeI64: {},
		wasm.ValueTypeF32: {},
		wasm.ValueTypeF64: {},
	}}
}

func (t *tempPools) acquire(vt ValueType) uint32 { return t.byType[vt].acquire() }
func (t *tempPools) release(vt ValueType, idx uint32) { t.byType[vt].release(idx) }
func (t *tempPools) count(vt ValueType) uint32 { return t.byType[vt].count() }

// Package ir implements the per-function structured-stack validator and
// the typed intermediate representation it builds: a small sealed-interface
// algebraic data type for expressions and statements, modeled on the
// original polyfill's expression-tree design rather than a flat
// operation list, per the repo's Design Notes.
package ir

import "github.com/oakwasm/oak/internal/wasm"

// ValueType aliases wasm.ValueType for brevity within this package.
type ValueType = wasm.ValueType

// Expression is a sealed interface: every concrete variant lives in this
// package and implements the unexported marker method, so no external
// package can introduce a new variant.
type Expression interface {
	isExpression()
	// Type returns the value type this expression produces. UNKNOWN
	// appears only for nodes synthesized in dead (polymorphic) code.
	Type() ValueType
}

// Statement is a sealed interface, the Statement analog of Expression.
type Statement interface {
	isStatement()
}

// VarKind distinguishes the three storage classes GetVar/SetVar address.
type VarKind int

const (
	VarKindLocal VarKind = iota
	VarKindGlobal
	VarKindTemp
)

// --- Expression variants ---------------------------------------------

// Constant is a literal value. Bits holds the raw bit pattern (i32/f32 use
// the low 32 bits, i64/f64 use all 64), so NaN payloads and signed zero
// survive unchanged from the constant's source bytes through to lowering.
type Constant struct {
	ValType ValueType
	Bits    uint64
}

func (*Constant) isExpression()        {}
func (c *Constant) Type() ValueType    { return c.ValType }

// GetVar reads a local, global, or tempvar slot.
type GetVar struct {
	Kind    VarKind
	ValType ValueType
	Index   uint32
}

func (*GetVar) isExpression()     {}
func (g *GetVar) Type() ValueType { return g.ValType }

// UnaryOp is a single-operand numeric operator (clz, ctz, popcnt, neg,
// abs, sqrt, ceil, floor, trunc, nearest).
type UnaryOp struct {
	ValType ValueType
	Op      string
	Child   Expression
}

func (*UnaryOp) isExpression()     {}
func (u *UnaryOp) Type() ValueType { return u.ValType }

// BinaryOp is a two-operand numeric operator whose result has the same
// type as its operands (add, sub, mul, div, rem, and, or, xor, shl, shr,
// rotl, rotr, min, max, copysign). Signed distinguishes div_s/rem_u etc.
// for integer ops; meaningless (false) for float ops.
type BinaryOp struct {
	ValType ValueType
	Op      string
	Signed  bool
	Lhs, Rhs Expression
}

func (*BinaryOp) isExpression()     {}
func (b *BinaryOp) Type() ValueType { return b.ValType }

// Compare is a two-operand operator whose result is always I32 (0 or 1).
// OperandType is the type of Lhs/Rhs, not the result.
type Compare struct {
	OperandType ValueType
	Op          string
	Signed      bool
	Lhs, Rhs    Expression
}

func (*Compare) isExpression()     {}
func (*Compare) Type() ValueType   { return wasm.ValueTypeI32 }

// Load reads Width bytes from linear memory at Addr+Offset. For widths
// narrower than ValType's natural width, Signed selects sign- or
// zero-extension.
type Load struct {
	ValType ValueType
	Width   int
	Signed  bool
	Offset  uint32
	Align   uint32
	Addr    Expression
}

func (*Load) isExpression()     {}
func (l *Load) Type() ValueType { return l.ValType }

// ConvertMode distinguishes the family of numeric conversions that share
// the same From/To type pair shape (trunc, convert, wrap, extend,
// promote, demote, reinterpret).
type ConvertMode string

const (
	ConvertWrap        ConvertMode = "wrap"
	ConvertExtend      ConvertMode = "extend"
	ConvertTrunc       ConvertMode = "trunc"
	ConvertConvert     ConvertMode = "convert"
	ConvertDemote      ConvertMode = "demote"
	ConvertPromote     ConvertMode = "promote"
	ConvertReinterpret ConvertMode = "reinterpret"
)

// Convert changes a value's representation, per Mode. Signed matters for
// Extend/Trunc/Convert; meaningless otherwise.
type Convert struct {
	From, To ValueType
	Mode     ConvertMode
	Signed   bool
	Child    Expression
}

func (*Convert) isExpression()     {}
func (c *Convert) Type() ValueType { return c.To }

// Call invokes a module-defined or imported function directly by index.
type Call struct {
	Sig        string
	FuncIndex  wasm.Index
	Args       []Expression
	ResultType ValueType // NONE if the callee has no result
}

func (*Call) isExpression()     {}
func (c *Call) Type() ValueType { return c.ResultType }

// CallIndirect invokes a function looked up dynamically in the module's
// table, checked at runtime against Sig.
type CallIndirect struct {
	Sig        string
	TypeIndex  wasm.Index
	IndexExpr  Expression
	Args       []Expression
	ResultType ValueType
}

func (*CallIndirect) isExpression()     {}
func (c *CallIndirect) Type() ValueType { return c.ResultType }

// Select evaluates Cond; if nonzero, yields True, else False. Both
// branches share ValType.
type Select struct {
	ValType     ValueType
	Cond, True, False Expression
}

func (*Select) isExpression()     {}
func (s *Select) Type() ValueType { return s.ValType }

// GrowMemory grows linear memory by Delta pages, returning the old page
// count, or -1 if growth would exceed the declared or implementation
// maximum.
type GrowMemory struct {
	Delta Expression
}

func (*GrowMemory) isExpression()   {}
func (*GrowMemory) Type() ValueType { return wasm.ValueTypeI32 }

// CurrentMemory yields the current size of linear memory, in pages.
type CurrentMemory struct{}

func (*CurrentMemory) isExpression()   {}
func (*CurrentMemory) Type() ValueType { return wasm.ValueTypeI32 }

// Undefined is a placeholder value produced only inside a polymorphic
// (dead-code) region, where the validator must still produce some
// Expression to satisfy a pop but the value can never actually be
// observed at runtime (the code preceding it is unreachable).
type Undefined struct {
	ValType ValueType
}

func (*Undefined) isExpression()     {}
func (u *Undefined) Type() ValueType { return u.ValType }

// --- Statement variants -----------------------------------------------

// Drop evaluates Expr and discards its result, preserving any
// side-effecting sub-evaluation (e.g. a nested call).
type Drop struct{ Expr Expression }

func (*Drop) isStatement() {}

// SetVar writes Expr's value into a local, global, or tempvar slot.
type SetVar struct {
	Kind    VarKind
	ValType ValueType
	Index   uint32
	Expr    Expression
}

func (*SetVar) isStatement() {}

// Store writes Value, truncated to Width bytes, to linear memory at
// Addr+Offset.
type Store struct {
	ValType ValueType
	Width   int
	Offset  uint32
	Align   uint32
	Addr    Expression
	Value   Expression
}

func (*Store) isStatement() {}

// TrapCheck pairs a pooled trap condition with the trap it raises if
// nonzero. Trap is one of the errs.Trap* names, so lowering can surface a
// RuntimeError naming the exact condition without string-matching on a
// generic message.
type TrapCheck struct {
	Trap string
	Cond Expression // I32; nonzero traps
}

// TrapConditions materializes a pooled batch of pending trap checks,
// evaluated in order; the first true one traps.
type TrapConditions struct {
	Conds []TrapCheck
}

func (*TrapConditions) isStatement() {}

// Branch unconditionally transfers control to Target (a control-frame
// label). Result, if non-nil, is the value carried to the target's
// branch_result_type.
type Branch struct {
	Target Label
	Result Expression
}

func (*Branch) isStatement() {}

// BranchIf transfers control to Target iff Cond is nonzero.
type BranchIf struct {
	Cond   Expression
	Target Label
	Result Expression
}

func (*BranchIf) isStatement() {}

// BranchTable dispatches on Key to one of Targets, or Default if Key is
// out of range. Targets may be empty (a default-only br_table).
type BranchTable struct {
	Key     Expression
	Default Label
	Targets []Label
	Result  Expression
}

func (*BranchTable) isStatement() {}

// Unreachable marks a point execution must never reach; lowering emits
// an unconditional trap.
type Unreachable struct{}

func (*Unreachable) isStatement() {}

// Label identifies a control frame for branch targeting, assigned in
// frame-creation order within a function.
type Label uint32

// Block is a structured block with no implicit looping: branching to it
// exits it immediately, carrying branch_result_type.
//
// ResultVar is non-nil iff some Branch/BranchIf/BranchTable targets this
// block carrying a value, in which case the block's result (seen by the
// enclosing expression) is always read through ResultVar. FallthroughResult
// is the value produced if control reaches Body's end normally (nil if the
// block's tail is dead code, reachable only via those branches); when
// ResultVar is non-nil and FallthroughResult is non-nil, lowering must
// write FallthroughResult into ResultVar before falling through, so every
// exit path (branch or fallthrough) leaves the same variable populated. If
// ResultVar is nil, FallthroughResult alone is the block's result and no
// variable is needed.
type Block struct {
	Label             Label
	ResultType        ValueType
	Body              []Statement
	ResultVar         *GetVar
	FallthroughResult Expression
}

func (*Block) isStatement() {}

// Loop is a structured block where branching to it re-enters at the top;
// its branch_result_type is always NONE, so ResultVar is always nil in
// practice (no branch can ever target a loop carrying a value) — kept for
// structural symmetry with Block/IfElse.
type Loop struct {
	Label             Label
	ResultType        ValueType
	Body              []Statement
	ResultVar         *GetVar
	FallthroughResult Expression
}

func (*Loop) isStatement() {}

// IfElse is a structured two-way branch. Else is nil if there was no else
// clause (fall-through requires ResultType == NONE in that case, checked by
// the validator), and also if the else arm emitted no statements; its tail
// value, if any, is then carried only by ElseFallthroughResult.
//
// Unlike Block/Loop, IfElse has two independent fallthrough paths, so a
// single FallthroughResult field cannot represent both: whichever arm
// actually executes must surface its own tail value, not the other arm's.
// ResultVar is therefore allocated whenever ResultType != NONE (not only
// when some branch targets the frame), and lowering writes the taken arm's
// ThenFallthroughResult/ElseFallthroughResult into it before falling
// through, exactly mirroring how a branch-carried result is written.
type IfElse struct {
	Label                 Label
	ResultType            ValueType
	Cond                  Expression
	Then                  []Statement
	Else                  []Statement
	ResultVar             *GetVar
	ThenFallthroughResult Expression
	ElseFallthroughResult Expression
}

func (*IfElse) isStatement() {}

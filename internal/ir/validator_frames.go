package ir

import "github.com/oakwasm/oak/internal/wasm"

// readBlockType reads the varint7 block-type immediate of block/loop/if.
// Decoded as a signed LEB128, the one-byte encodings come out negative:
// -0x40 for an empty (void) block, -1/-2/-3/-4 for i32/i64/f32/f64 (the
// wire bytes 0x7f/0x7e/0x7d/0x7c re-interpreted with sign extension) —
// distinct from decodeValueType's unsigned single-byte read used for
// params/results/locals, where those same wire bytes decode to the
// positive ValueType constants directly.
func (b *funcBuilder) readBlockType() (ValueType, error) {
	v, err := b.r.ReadVarint7()
	if err != nil {
		return 0, err
	}
	switch v {
	case wasm.BlockTypeEmpty:
		return wasm.ValueTypeNone, nil
	case -1:
		return wasm.ValueTypeI32, nil
	case -2:
		return wasm.ValueTypeI64, nil
	case -3:
		return wasm.ValueTypeF32, nil
	case -4:
		return wasm.ValueTypeF64, nil
	}
	return 0, b.fail("invalid or unsupported block type 0x%x", v)
}

func (b *funcBuilder) doBlock() error {
	rt, err := b.readBlockType()
	if err != nil {
		return err
	}
	b.pushFrame(FrameKindBlock, rt)
	return nil
}

func (b *funcBuilder) doLoop() error {
	rt, err := b.readBlockType()
	if err != nil {
		return err
	}
	b.pushFrame(FrameKindLoop, rt)
	return nil
}

func (b *funcBuilder) doIf() error {
	rt, err := b.readBlockType()
	if err != nil {
		return err
	}
	cond, err := b.popExpect(wasm.ValueTypeI32)
	if err != nil {
		return err
	}
	f := b.pushFrame(FrameKindIfElse, rt)
	f.CondExpr = cond
	return nil
}

func (b *funcBuilder) doElse() error {
	f := b.top()
	if f.Kind != FrameKindIfElse {
		return b.fail("else without matching if")
	}
	if f.InElse {
		return b.fail("duplicate else")
	}
	b.flushTraps()
	// Record the then-branch's fallthrough result (if any) before
	// resetting state for the else branch.
	if f.ResultType != wasm.ValueTypeNone && !f.IsPolymorphic {
		v, err := b.popExpect(f.ResultType)
		if err != nil {
			return err
		}
		f.thenFallthrough = v
	} else if f.IsPolymorphic {
		f.thenFallthrough = nil
	}
	if len(f.OperandStack) != 0 {
		return b.fail("if-branch left %d extra value(s) on the stack", len(f.OperandStack))
	}
	f.InElse = true
	f.IsPolymorphic = false
	f.OperandStack = nil
	return nil
}

// finishFrame closes the current (top) frame: validates its exit stack,
// computes its fallthrough/branch-carried result, and either appends the
// assembled Block/Loop/IfElse statement to the parent frame (pushing the
// resulting Expression, if any, onto the parent's operand stack) or, for
// the outermost function frame, stashes the final statement list.
func (b *funcBuilder) finishFrame() error {
	f := b.top()
	b.flushTraps()

	if f.Kind == FrameKindIfElse && !f.InElse && f.ResultType != wasm.ValueTypeNone {
		return b.fail("if without else cannot produce a result")
	}

	var fallthrough_ Expression
	if !f.IsPolymorphic {
		if f.ResultType != wasm.ValueTypeNone {
			v, err := b.popExpect(f.ResultType)
			if err != nil {
				return err
			}
			fallthrough_ = v
		}
		if len(f.OperandStack) != 0 {
			return b.fail("block left %d extra value(s) on the stack at end", len(f.OperandStack))
		}
	}

	// An if/else has two independent fallthrough paths, so its result can
	// never be safely represented by whichever arm's tail value happened to
	// be computed last: allocate the shared temp var unconditionally and
	// let both arms write into it at lowering time (see IfElse's doc
	// comment). Block/Loop have only one body, so their existing
	// branch-triggered allocation in branchTargetResult is sufficient.
	if f.Kind == FrameKindIfElse && f.ResultType != wasm.ValueTypeNone && f.ResultTempVar == nil {
		idx := b.temps.acquire(f.ResultType)
		f.ResultTempVar = &GetVar{Kind: VarKindTemp, ValType: f.ResultType, Index: idx}
	}

	b.frames = b.frames[:len(b.frames)-1]

	if f.Kind == FrameKindFunction {
		// An implicit end-of-function fallthrough is exactly a `return` of
		// whatever value is on top of the stack: represented the same way
		// an explicit return is (see doReturn), a Branch targeting the
		// function's own frame label, appended directly since b.frames is
		// now empty and emitRaw/b.top() is no longer usable.
		if fallthrough_ != nil {
			f.Statements = append(f.Statements, &Branch{Target: f.Label, Result: fallthrough_})
		}
		b.finalBody = f.Statements
		return nil
	}

	var result Expression
	switch {
	case f.ResultTempVar != nil:
		result = f.ResultTempVar
	case fallthrough_ != nil:
		result = fallthrough_
	case f.ResultType != wasm.ValueTypeNone:
		// Dead code with no branch ever carrying a value either: the
		// frame's result is unobservable.
		result = &Undefined{ValType: f.ResultType}
	}

	switch f.Kind {
	case FrameKindBlock:
		b.emitRaw(&Block{Label: f.Label, ResultType: f.ResultType, Body: f.Statements, ResultVar: f.ResultTempVar, FallthroughResult: fallthrough_})
	case FrameKindLoop:
		b.emitRaw(&Loop{Label: f.Label, ResultType: f.ResultType, Body: f.Statements, ResultVar: f.ResultTempVar, FallthroughResult: fallthrough_})
	case FrameKindIfElse:
		// fallthrough_ (if non-nil) was popped from the post-else operand
		// stack above, so it is always the else arm's tail value here; the
		// then arm's tail value was captured separately by doElse before
		// that stack was reset.
		b.emitRaw(&IfElse{
			Label: f.Label, ResultType: f.ResultType, Cond: f.CondExpr,
			Then: f.Statements, Else: f.ElseStatements, ResultVar: f.ResultTempVar,
			ThenFallthroughResult: f.thenFallthrough,
			ElseFallthroughResult: fallthrough_,
		})
	}

	if result != nil {
		b.push(result)
	}
	return nil
}

// branchTargetResult handles the result-value side of a br/br_if/br_table
// targeting frame f: pops and type-checks a value if f.BranchResultType is
// non-NONE, lazily allocating f's ResultTempVar so every path that reaches
// f's end (fallthrough or any branch) converges on the same slot.
func (b *funcBuilder) branchTargetResult(f *ControlFrame) (Expression, error) {
	if f.BranchResultType == wasm.ValueTypeNone {
		return nil, nil
	}
	v, err := b.popExpect(f.BranchResultType)
	if err != nil {
		return nil, err
	}
	if f.ResultTempVar == nil {
		idx := b.temps.acquire(f.BranchResultType)
		f.ResultTempVar = &GetVar{Kind: VarKindTemp, ValType: f.BranchResultType, Index: idx}
	}
	return v, nil
}

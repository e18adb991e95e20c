package lower

import (
	"github.com/oakwasm/oak/internal/errs"
	"github.com/oakwasm/oak/internal/ir"
	"github.com/oakwasm/oak/internal/rt"
)

// stmtFn runs a statement against fr. A non-nil returned *signal means
// control left the enclosing statement list early (branch or fallthrough
// out of a block/loop/if); the caller must stop executing further
// statements in its own list and propagate the signal upward, unless its
// own Label matches signal.target.
type stmtFn func(fr *execFrame) *signal

func compileStmts(stmts []ir.Statement) stmtFn {
	fns := make([]stmtFn, len(stmts))
	for i, s := range stmts {
		fns[i] = compileStmt(s)
	}
	return func(fr *execFrame) *signal {
		for _, fn := range fns {
			if sig := fn(fr); sig != nil {
				return sig
			}
		}
		return nil
	}
}

func compileStmt(s ir.Statement) stmtFn {
	switch s := s.(type) {
	case *ir.Drop:
		expr := compileExpr(s.Expr)
		return func(fr *execFrame) *signal { expr(fr); return nil }
	case *ir.SetVar:
		kind, vt, idx, expr := s.Kind, s.ValType, s.Index, compileExpr(s.Expr)
		return func(fr *execFrame) *signal { setVar(fr, kind, vt, idx, expr(fr)); return nil }
	case *ir.Store:
		return compileStore(s)
	case *ir.TrapConditions:
		return compileTrapConditions(s)
	case *ir.Branch:
		target := s.Target
		result := optionalExpr(s.Result)
		return func(fr *execFrame) *signal {
			sig := &signal{target: target}
			if result != nil {
				sig.hasResult, sig.result = true, result(fr)
			}
			return sig
		}
	case *ir.BranchIf:
		cond := compileExpr(s.Cond)
		target := s.Target
		result := optionalExpr(s.Result)
		return func(fr *execFrame) *signal {
			if cond(fr) == 0 {
				return nil
			}
			sig := &signal{target: target}
			if result != nil {
				sig.hasResult, sig.result = true, result(fr)
			}
			return sig
		}
	case *ir.BranchTable:
		return compileBranchTable(s)
	case *ir.Unreachable:
		return func(fr *execFrame) *signal { rt.Trap(errs.TrapUnreachable, ""); return nil }
	case *ir.Block:
		return compileBlock(s)
	case *ir.Loop:
		return compileLoop(s)
	case *ir.IfElse:
		return compileIfElse(s)
	}
	panic("lower: unknown statement type")
}

func compileStore(s *ir.Store) stmtFn {
	addr := compileExpr(s.Addr)
	value := compileExpr(s.Value)
	offset := uint64(s.Offset)
	width := s.Width
	return func(fr *execFrame) *signal {
		a := uint64(uint32(addr(fr))) + offset
		v := value(fr)
		mem := fr.inst.Memory
		var ok bool
		switch width {
		case 1:
			ok = mem.WriteByte(a, byte(v))
		case 2:
			ok = mem.WriteUint16Le(a, uint16(v))
		case 4:
			ok = mem.WriteUint32Le(a, uint32(v))
		default: // 8
			ok = mem.WriteUint64Le(a, v)
		}
		if !ok {
			rt.Trap(errs.TrapOutOfBoundsMemory, "")
		}
		return nil
	}
}

func compileTrapConditions(tc *ir.TrapConditions) stmtFn {
	type compiledCheck struct {
		trap string
		cond exprFn
	}
	checks := make([]compiledCheck, len(tc.Conds))
	for i, c := range tc.Conds {
		checks[i] = compiledCheck{trap: c.Trap, cond: compileExpr(c.Cond)}
	}
	return func(fr *execFrame) *signal {
		for _, c := range checks {
			if c.cond(fr) != 0 {
				rt.Trap(c.trap, "")
			}
		}
		return nil
	}
}

func compileBranchTable(bt *ir.BranchTable) stmtFn {
	key := compileExpr(bt.Key)
	def := bt.Default
	targets := bt.Targets
	result := optionalExpr(bt.Result)
	return func(fr *execFrame) *signal {
		k := uint32(key(fr))
		target := def
		if int(k) < len(targets) {
			target = targets[k]
		}
		sig := &signal{target: target}
		if result != nil {
			sig.hasResult, sig.result = true, result(fr)
		}
		return sig
	}
}

// compileBlock compiles a structured block with no implicit looping: a
// signal targeting this block's own label is consumed here (the block
// exits normally, writing ResultVar if present), and any other signal
// propagates up unchanged.
func compileBlock(b *ir.Block) stmtFn {
	label := b.Label
	body := compileStmts(b.Body)
	fallthroughResult := optionalExpr(b.FallthroughResult)
	resultVar := b.ResultVar
	return func(fr *execFrame) *signal {
		sig := body(fr)
		if sig == nil {
			if fallthroughResult != nil && resultVar != nil {
				setVar(fr, resultVar.Kind, resultVar.ValType, resultVar.Index, fallthroughResult(fr))
			}
			return nil
		}
		if sig.target != label {
			return sig
		}
		if sig.hasResult && resultVar != nil {
			setVar(fr, resultVar.Kind, resultVar.ValType, resultVar.Index, sig.result)
		}
		return nil
	}
}

// compileLoop compiles a structured loop: a signal targeting this loop's
// own label means "continue", re-entering Body at the top, rather than
// exiting (the distinction from compileBlock).
func compileLoop(l *ir.Loop) stmtFn {
	label := l.Label
	body := compileStmts(l.Body)
	fallthroughResult := optionalExpr(l.FallthroughResult)
	resultVar := l.ResultVar
	return func(fr *execFrame) *signal {
		for {
			sig := body(fr)
			if sig == nil {
				if fallthroughResult != nil && resultVar != nil {
					setVar(fr, resultVar.Kind, resultVar.ValType, resultVar.Index, fallthroughResult(fr))
				}
				return nil
			}
			if sig.target != label {
				return sig
			}
			// branch back to the top of the loop body
		}
	}
}

func compileIfElse(ie *ir.IfElse) stmtFn {
	label := ie.Label
	cond := compileExpr(ie.Cond)
	then := compileStmts(ie.Then)
	var els stmtFn
	if ie.Else != nil {
		els = compileStmts(ie.Else)
	}
	// The then and else arms are independent fallthrough paths, each with
	// its own tail value: whichever arm actually runs must write its own
	// value into resultVar, never the other arm's (that was the bug).
	thenFallthrough := optionalExpr(ie.ThenFallthroughResult)
	elseFallthrough := optionalExpr(ie.ElseFallthroughResult)
	resultVar := ie.ResultVar
	return func(fr *execFrame) *signal {
		var sig *signal
		var fallthroughResult exprFn
		if cond(fr) != 0 {
			sig = then(fr)
			fallthroughResult = thenFallthrough
		} else {
			if els != nil {
				sig = els(fr)
			}
			fallthroughResult = elseFallthrough
		}
		if sig == nil {
			if fallthroughResult != nil && resultVar != nil {
				setVar(fr, resultVar.Kind, resultVar.ValType, resultVar.Index, fallthroughResult(fr))
			}
			return nil
		}
		if sig.target != label {
			return sig
		}
		if sig.hasResult && resultVar != nil {
			setVar(fr, resultVar.Kind, resultVar.ValType, resultVar.Index, sig.result)
		}
		return nil
	}
}

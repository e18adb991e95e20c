package lower

import (
	"math"
	"math/bits"

	"github.com/chewxy/math32"

	"github.com/oakwasm/oak/internal/errs"
	"github.com/oakwasm/oak/internal/ir"
	"github.com/oakwasm/oak/internal/rt"
	"github.com/oakwasm/oak/internal/wasm"
)

// exprFn evaluates an expression against fr, returning its value as a
// boxed uint64 bit pattern per ir.Constant.Bits's convention (low 32 bits
// for i32/f32, all 64 for i64/f64).
type exprFn func(fr *execFrame) uint64

func optionalExpr(e ir.Expression) exprFn {
	if e == nil {
		return nil
	}
	return compileExpr(e)
}

func compileExpr(e ir.Expression) exprFn {
	switch e := e.(type) {
	case *ir.Constant:
		bits := e.Bits
		return func(fr *execFrame) uint64 { return bits }
	case *ir.GetVar:
		kind, vt, idx := e.Kind, e.ValType, e.Index
		return func(fr *execFrame) uint64 { return getVar(fr, kind, vt, idx) }
	case *ir.UnaryOp:
		return compileUnary(e)
	case *ir.BinaryOp:
		return compileBinary(e)
	case *ir.Compare:
		return compileCompare(e)
	case *ir.Load:
		return compileLoad(e)
	case *ir.Convert:
		return compileConvert(e)
	case *ir.Call:
		return compileCall(e)
	case *ir.CallIndirect:
		return compileCallIndirect(e)
	case *ir.Select:
		return compileSelect(e)
	case *ir.GrowMemory:
		delta := compileExpr(e.Delta)
		return func(fr *execFrame) uint64 { return uint64(fr.inst.Memory.Grow(uint32(delta(fr)))) }
	case *ir.CurrentMemory:
		return func(fr *execFrame) uint64 { return uint64(fr.inst.Memory.PageCount()) }
	case *ir.Undefined:
		return func(fr *execFrame) uint64 { return 0 }
	}
	panic("lower: unknown expression type")
}

// --- unary ---------------------------------------------------------------

func compileUnary(u *ir.UnaryOp) exprFn {
	child := compileExpr(u.Child)
	switch u.ValType {
	case wasm.ValueTypeI32:
		return compileUnaryI32(u.Op, child)
	case wasm.ValueTypeI64:
		return compileUnaryI64(u.Op, child)
	case wasm.ValueTypeF32:
		return compileUnaryF32(u.Op, child)
	default:
		return compileUnaryF64(u.Op, child)
	}
}

func compileUnaryI32(op string, child exprFn) exprFn {
	switch op {
	case "clz":
		return func(fr *execFrame) uint64 { return uint64(bits.LeadingZeros32(uint32(child(fr)))) }
	case "ctz":
		return func(fr *execFrame) uint64 { return uint64(bits.TrailingZeros32(uint32(child(fr)))) }
	case "popcnt":
		return func(fr *execFrame) uint64 { return uint64(bits.OnesCount32(uint32(child(fr)))) }
	}
	panic("lower: unhandled i32 unary op " + op)
}

func compileUnaryI64(op string, child exprFn) exprFn {
	switch op {
	case "clz":
		return func(fr *execFrame) uint64 { return uint64(rt.I64(child(fr)).Clz()) }
	case "ctz":
		return func(fr *execFrame) uint64 { return uint64(rt.I64(child(fr)).Ctz()) }
	case "popcnt":
		return func(fr *execFrame) uint64 { return uint64(rt.I64(child(fr)).Popcnt()) }
	}
	panic("lower: unhandled i64 unary op " + op)
}

func floatUnaryF32(child exprFn, f func(float32) float32) exprFn {
	return func(fr *execFrame) uint64 {
		return uint64(math32.Float32bits(f(math32.Float32frombits(uint32(child(fr))))))
	}
}

func compileUnaryF32(op string, child exprFn) exprFn {
	switch op {
	case "abs":
		return floatUnaryF32(child, rt.AbsF32)
	case "neg":
		return floatUnaryF32(child, rt.NegF32)
	case "sqrt":
		return floatUnaryF32(child, rt.SqrtF32)
	case "ceil":
		return floatUnaryF32(child, rt.CeilF32)
	case "floor":
		return floatUnaryF32(child, rt.FloorF32)
	case "trunc":
		return floatUnaryF32(child, rt.TruncF32)
	case "nearest":
		return floatUnaryF32(child, rt.NearestF32)
	}
	panic("lower: unhandled f32 unary op " + op)
}

func floatUnaryF64(child exprFn, f func(float64) float64) exprFn {
	return func(fr *execFrame) uint64 {
		return math.Float64bits(f(math.Float64frombits(child(fr))))
	}
}

func compileUnaryF64(op string, child exprFn) exprFn {
	switch op {
	case "abs":
		return floatUnaryF64(child, rt.AbsF64)
	case "neg":
		return floatUnaryF64(child, rt.NegF64)
	case "sqrt":
		return floatUnaryF64(child, rt.SqrtF64)
	case "ceil":
		return floatUnaryF64(child, rt.CeilF64)
	case "floor":
		return floatUnaryF64(child, rt.FloorF64)
	case "trunc":
		return floatUnaryF64(child, rt.TruncF64)
	case "nearest":
		return floatUnaryF64(child, rt.NearestF64)
	}
	panic("lower: unhandled f64 unary op " + op)
}

// --- binary --------------------------------------------------------------

func compileBinary(b *ir.BinaryOp) exprFn {
	lhs, rhs := compileExpr(b.Lhs), compileExpr(b.Rhs)
	switch b.ValType {
	case wasm.ValueTypeI32:
		return compileBinaryI32(b.Op, b.Signed, lhs, rhs)
	case wasm.ValueTypeI64:
		return compileBinaryI64(b.Op, b.Signed, lhs, rhs)
	case wasm.ValueTypeF32:
		return compileBinaryF32(b.Op, lhs, rhs)
	default:
		return compileBinaryF64(b.Op, lhs, rhs)
	}
}

// compileBinaryI32 uses Go's native 32-bit arithmetic directly: unlike
// i64, Go already has a native width-matched integer type for i32, so no
// wrapper is needed (see internal/rt's I64 design rationale for why i64
// gets one and i32 doesn't).
func compileBinaryI32(op string, signed bool, lhs, rhs exprFn) exprFn {
	switch op {
	case "add":
		return func(fr *execFrame) uint64 { return uint64(uint32(lhs(fr)) + uint32(rhs(fr))) }
	case "sub":
		return func(fr *execFrame) uint64 { return uint64(uint32(lhs(fr)) - uint32(rhs(fr))) }
	case "mul":
		return func(fr *execFrame) uint64 { return uint64(uint32(lhs(fr)) * uint32(rhs(fr))) }
	case "div":
		if signed {
			return func(fr *execFrame) uint64 { return uint64(uint32(int32(lhs(fr)) / int32(rhs(fr)))) }
		}
		return func(fr *execFrame) uint64 { return uint64(uint32(lhs(fr)) / uint32(rhs(fr))) }
	case "rem":
		if signed {
			return func(fr *execFrame) uint64 { return uint64(uint32(int32(lhs(fr)) % int32(rhs(fr)))) }
		}
		return func(fr *execFrame) uint64 { return uint64(uint32(lhs(fr)) % uint32(rhs(fr))) }
	case "and":
		return func(fr *execFrame) uint64 { return uint64(uint32(lhs(fr)) & uint32(rhs(fr))) }
	case "or":
		return func(fr *execFrame) uint64 { return uint64(uint32(lhs(fr)) | uint32(rhs(fr))) }
	case "xor":
		return func(fr *execFrame) uint64 { return uint64(uint32(lhs(fr)) ^ uint32(rhs(fr))) }
	case "shl":
		return func(fr *execFrame) uint64 { return uint64(uint32(lhs(fr)) << (uint32(rhs(fr)) & 31)) }
	case "shr":
		if signed {
			return func(fr *execFrame) uint64 { return uint64(uint32(int32(lhs(fr)) >> (uint32(rhs(fr)) & 31))) }
		}
		return func(fr *execFrame) uint64 { return uint64(uint32(lhs(fr)) >> (uint32(rhs(fr)) & 31)) }
	case "rotl":
		return func(fr *execFrame) uint64 {
			return uint64(bits.RotateLeft32(uint32(lhs(fr)), int(uint32(rhs(fr))&31)))
		}
	case "rotr":
		return func(fr *execFrame) uint64 {
			return uint64(bits.RotateLeft32(uint32(lhs(fr)), -int(uint32(rhs(fr))&31)))
		}
	}
	panic("lower: unhandled i32 binary op " + op)
}

func compileBinaryI64(op string, signed bool, lhs, rhs exprFn) exprFn {
	switch op {
	case "add":
		return func(fr *execFrame) uint64 { return uint64(rt.I64(lhs(fr)).Add(rt.I64(rhs(fr)))) }
	case "sub":
		return func(fr *execFrame) uint64 { return uint64(rt.I64(lhs(fr)).Sub(rt.I64(rhs(fr)))) }
	case "mul":
		return func(fr *execFrame) uint64 { return uint64(rt.I64(lhs(fr)).Mul(rt.I64(rhs(fr)))) }
	case "div":
		if signed {
			return func(fr *execFrame) uint64 { return uint64(rt.I64(lhs(fr)).DivS(rt.I64(rhs(fr)))) }
		}
		return func(fr *execFrame) uint64 { return uint64(rt.I64(lhs(fr)).DivU(rt.I64(rhs(fr)))) }
	case "rem":
		if signed {
			return func(fr *execFrame) uint64 { return uint64(rt.I64(lhs(fr)).RemS(rt.I64(rhs(fr)))) }
		}
		return func(fr *execFrame) uint64 { return uint64(rt.I64(lhs(fr)).RemU(rt.I64(rhs(fr)))) }
	case "and":
		return func(fr *execFrame) uint64 { return uint64(rt.I64(lhs(fr)).And(rt.I64(rhs(fr)))) }
	case "or":
		return func(fr *execFrame) uint64 { return uint64(rt.I64(lhs(fr)).Or(rt.I64(rhs(fr)))) }
	case "xor":
		return func(fr *execFrame) uint64 { return uint64(rt.I64(lhs(fr)).Xor(rt.I64(rhs(fr)))) }
	case "shl":
		return func(fr *execFrame) uint64 { return uint64(rt.I64(lhs(fr)).Shl(rt.I64(rhs(fr)))) }
	case "shr":
		if signed {
			return func(fr *execFrame) uint64 { return uint64(rt.I64(lhs(fr)).ShrS(rt.I64(rhs(fr)))) }
		}
		return func(fr *execFrame) uint64 { return uint64(rt.I64(lhs(fr)).ShrU(rt.I64(rhs(fr)))) }
	case "rotl":
		return func(fr *execFrame) uint64 { return uint64(rt.I64(lhs(fr)).Rotl(rt.I64(rhs(fr)))) }
	case "rotr":
		return func(fr *execFrame) uint64 { return uint64(rt.I64(lhs(fr)).Rotr(rt.I64(rhs(fr)))) }
	}
	panic("lower: unhandled i64 binary op " + op)
}

func compileBinaryF32(op string, lhs, rhs exprFn) exprFn {
	apply := func(f func(a, b float32) float32) exprFn {
		return func(fr *execFrame) uint64 {
			a := math32.Float32frombits(uint32(lhs(fr)))
			b := math32.Float32frombits(uint32(rhs(fr)))
			return uint64(math32.Float32bits(f(a, b)))
		}
	}
	switch op {
	case "add":
		return apply(func(a, b float32) float32 { return a + b })
	case "sub":
		return apply(func(a, b float32) float32 { return a - b })
	case "mul":
		return apply(func(a, b float32) float32 { return a * b })
	case "div":
		return apply(func(a, b float32) float32 { return a / b })
	case "min":
		return apply(rt.MinF32)
	case "max":
		return apply(rt.MaxF32)
	case "copysign":
		return apply(rt.CopysignF32)
	}
	panic("lower: unhandled f32 binary op " + op)
}

func compileBinaryF64(op string, lhs, rhs exprFn) exprFn {
	apply := func(f func(a, b float64) float64) exprFn {
		return func(fr *execFrame) uint64 {
			a := math.Float64frombits(lhs(fr))
			b := math.Float64frombits(rhs(fr))
			return math.Float64bits(f(a, b))
		}
	}
	switch op {
	case "add":
		return apply(func(a, b float64) float64 { return a + b })
	case "sub":
		return apply(func(a, b float64) float64 { return a - b })
	case "mul":
		return apply(func(a, b float64) float64 { return a * b })
	case "div":
		return apply(func(a, b float64) float64 { return a / b })
	case "min":
		return apply(rt.MinF64)
	case "max":
		return apply(rt.MaxF64)
	case "copysign":
		return apply(rt.CopysignF64)
	}
	panic("lower: unhandled f64 binary op " + op)
}

// --- compare ---------------------------------------------------------------

func compileCompare(c *ir.Compare) exprFn {
	lhs, rhs := compileExpr(c.Lhs), compileExpr(c.Rhs)
	var pred func(fr *execFrame) bool
	switch c.OperandType {
	case wasm.ValueTypeI32:
		pred = compareI32(c.Op, c.Signed, lhs, rhs)
	case wasm.ValueTypeI64:
		pred = compareI64(c.Op, c.Signed, lhs, rhs)
	case wasm.ValueTypeF32:
		pred = compareF32(c.Op, lhs, rhs)
	default:
		pred = compareF64(c.Op, lhs, rhs)
	}
	return func(fr *execFrame) uint64 {
		if pred(fr) {
			return 1
		}
		return 0
	}
}

func compareI32(op string, signed bool, lhs, rhs exprFn) func(fr *execFrame) bool {
	switch op {
	case "eq":
		return func(fr *execFrame) bool { return uint32(lhs(fr)) == uint32(rhs(fr)) }
	case "ne":
		return func(fr *execFrame) bool { return uint32(lhs(fr)) != uint32(rhs(fr)) }
	case "lt":
		if signed {
			return func(fr *execFrame) bool { return int32(lhs(fr)) < int32(rhs(fr)) }
		}
		return func(fr *execFrame) bool { return uint32(lhs(fr)) < uint32(rhs(fr)) }
	case "gt":
		if signed {
			return func(fr *execFrame) bool { return int32(lhs(fr)) > int32(rhs(fr)) }
		}
		return func(fr *execFrame) bool { return uint32(lhs(fr)) > uint32(rhs(fr)) }
	case "le":
		if signed {
			return func(fr *execFrame) bool { return int32(lhs(fr)) <= int32(rhs(fr)) }
		}
		return func(fr *execFrame) bool { return uint32(lhs(fr)) <= uint32(rhs(fr)) }
	case "ge":
		if signed {
			return func(fr *execFrame) bool { return int32(lhs(fr)) >= int32(rhs(fr)) }
		}
		return func(fr *execFrame) bool { return uint32(lhs(fr)) >= uint32(rhs(fr)) }
	}
	panic("lower: unhandled i32 compare op " + op)
}

func compareI64(op string, signed bool, lhs, rhs exprFn) func(fr *execFrame) bool {
	switch op {
	case "eq":
		return func(fr *execFrame) bool { return rt.I64(lhs(fr)).Eq(rt.I64(rhs(fr))) }
	case "ne":
		return func(fr *execFrame) bool { return rt.I64(lhs(fr)).Ne(rt.I64(rhs(fr))) }
	case "lt":
		if signed {
			return func(fr *execFrame) bool { return rt.I64(lhs(fr)).LtS(rt.I64(rhs(fr))) }
		}
		return func(fr *execFrame) bool { return rt.I64(lhs(fr)).LtU(rt.I64(rhs(fr))) }
	case "gt":
		if signed {
			return func(fr *execFrame) bool { return rt.I64(lhs(fr)).GtS(rt.I64(rhs(fr))) }
		}
		return func(fr *execFrame) bool { return rt.I64(lhs(fr)).GtU(rt.I64(rhs(fr))) }
	case "le":
		if signed {
			return func(fr *execFrame) bool { return rt.I64(lhs(fr)).LeS(rt.I64(rhs(fr))) }
		}
		return func(fr *execFrame) bool { return rt.I64(lhs(fr)).LeU(rt.I64(rhs(fr))) }
	case "ge":
		if signed {
			return func(fr *execFrame) bool { return rt.I64(lhs(fr)).GeS(rt.I64(rhs(fr))) }
		}
		return func(fr *execFrame) bool { return rt.I64(lhs(fr)).GeU(rt.I64(rhs(fr))) }
	}
	panic("lower: unhandled i64 compare op " + op)
}

func compareF32(op string, lhs, rhs exprFn) func(fr *execFrame) bool {
	f := func(fr *execFrame) (float32, float32) {
		return math32.Float32frombits(uint32(lhs(fr))), math32.Float32frombits(uint32(rhs(fr)))
	}
	switch op {
	case "eq":
		return func(fr *execFrame) bool { a, b := f(fr); return a == b }
	case "ne":
		return func(fr *execFrame) bool { a, b := f(fr); return a != b }
	case "lt":
		return func(fr *execFrame) bool { a, b := f(fr); return a < b }
	case "gt":
		return func(fr *execFrame) bool { a, b := f(fr); return a > b }
	case "le":
		return func(fr *execFrame) bool { a, b := f(fr); return a <= b }
	case "ge":
		return func(fr *execFrame) bool { a, b := f(fr); return a >= b }
	}
	panic("lower: unhandled f32 compare op " + op)
}

func compareF64(op string, lhs, rhs exprFn) func(fr *execFrame) bool {
	f := func(fr *execFrame) (float64, float64) {
		return math.Float64frombits(lhs(fr)), math.Float64frombits(rhs(fr))
	}
	switch op {
	case "eq":
		return func(fr *execFrame) bool { a, b := f(fr); return a == b }
	case "ne":
		return func(fr *execFrame) bool { a, b := f(fr); return a != b }
	case "lt":
		return func(fr *execFrame) bool { a, b := f(fr); return a < b }
	case "gt":
		return func(fr *execFrame) bool { a, b := f(fr); return a > b }
	case "le":
		return func(fr *execFrame) bool { a, b := f(fr); return a <= b }
	case "ge":
		return func(fr *execFrame) bool { a, b := f(fr); return a >= b }
	}
	panic("lower: unhandled f64 compare op " + op)
}

// --- memory / conversion / control expressions ----------------------------

func compileLoad(l *ir.Load) exprFn {
	addr := compileExpr(l.Addr)
	offset := uint64(l.Offset)
	width, vt, signed := l.Width, l.ValType, l.Signed
	return func(fr *execFrame) uint64 {
		a := uint64(uint32(addr(fr))) + offset
		mem := fr.inst.Memory
		switch width {
		case 1:
			v, ok := mem.ReadByte(a)
			if !ok {
				rt.Trap(errs.TrapOutOfBoundsMemory, "")
			}
			return extend8(vt, v, signed)
		case 2:
			v, ok := mem.ReadUint16Le(a)
			if !ok {
				rt.Trap(errs.TrapOutOfBoundsMemory, "")
			}
			return extend16(vt, v, signed)
		case 4:
			if vt == wasm.ValueTypeF32 {
				v, ok := mem.ReadFloat32Le(a)
				if !ok {
					rt.Trap(errs.TrapOutOfBoundsMemory, "")
				}
				return uint64(math32.Float32bits(v))
			}
			v, ok := mem.ReadUint32Le(a)
			if !ok {
				rt.Trap(errs.TrapOutOfBoundsMemory, "")
			}
			return extend32(vt, v, signed)
		default: // 8
			if vt == wasm.ValueTypeF64 {
				v, ok := mem.ReadFloat64Le(a)
				if !ok {
					rt.Trap(errs.TrapOutOfBoundsMemory, "")
				}
				return math.Float64bits(v)
			}
			v, ok := mem.ReadUint64Le(a)
			if !ok {
				rt.Trap(errs.TrapOutOfBoundsMemory, "")
			}
			return v
		}
	}
}

func extend8(vt wasm.ValueType, v byte, signed bool) uint64 {
	if vt == wasm.ValueTypeI64 {
		if signed {
			return uint64(int64(int8(v)))
		}
		return uint64(v)
	}
	if signed {
		return uint64(uint32(int32(int8(v))))
	}
	return uint64(v)
}

func extend16(vt wasm.ValueType, v uint16, signed bool) uint64 {
	if vt == wasm.ValueTypeI64 {
		if signed {
			return uint64(int64(int16(v)))
		}
		return uint64(v)
	}
	if signed {
		return uint64(uint32(int32(int16(v))))
	}
	return uint64(v)
}

func extend32(vt wasm.ValueType, v uint32, signed bool) uint64 {
	if vt == wasm.ValueTypeI64 {
		if signed {
			return uint64(int64(int32(v)))
		}
		return uint64(v)
	}
	return uint64(v)
}

func compileConvert(c *ir.Convert) exprFn {
	child := compileExpr(c.Child)
	switch c.Mode {
	case ir.ConvertWrap:
		return func(fr *execFrame) uint64 { return uint64(uint32(child(fr))) }
	case ir.ConvertExtend:
		if c.Signed {
			return func(fr *execFrame) uint64 { return uint64(int64(int32(child(fr)))) }
		}
		return func(fr *execFrame) uint64 { return uint64(uint32(child(fr))) }
	case ir.ConvertReinterpret:
		return child
	case ir.ConvertDemote:
		return func(fr *execFrame) uint64 {
			f := math.Float64frombits(child(fr))
			return uint64(math32.Float32bits(float32(f)))
		}
	case ir.ConvertPromote:
		return func(fr *execFrame) uint64 {
			f := math32.Float32frombits(uint32(child(fr)))
			return math.Float64bits(float64(f))
		}
	case ir.ConvertConvert:
		return compileIntToFloat(c, child)
	case ir.ConvertTrunc:
		return compileFloatToInt(c, child)
	}
	panic("lower: unhandled convert mode " + string(c.Mode))
}

// compileIntToFloat lowers the four convert opcodes (i32/i64, signed/
// unsigned to f32/f64).
func compileIntToFloat(c *ir.Convert, child exprFn) exprFn {
	toF32 := c.To == wasm.ValueTypeF32
	fromI64 := c.From == wasm.ValueTypeI64
	signed := c.Signed
	return func(fr *execFrame) uint64 {
		v := child(fr)
		var f float64
		switch {
		case fromI64 && signed:
			f = float64(int64(v))
		case fromI64 && !signed:
			f = float64(v)
		case !fromI64 && signed:
			f = float64(int32(uint32(v)))
		default:
			f = float64(uint32(v))
		}
		if toF32 {
			return uint64(math32.Float32bits(float32(f)))
		}
		return math.Float64bits(f)
	}
}

// compileFloatToInt lowers the eight trunc opcodes. The out-of-range/NaN
// trap conditions were already pooled by the validator into a preceding
// TrapConditions statement (see ir.validator_numeric.go's doConvert), so
// by the time this closure runs the value is guaranteed in range.
func compileFloatToInt(c *ir.Convert, child exprFn) exprFn {
	fromF32 := c.From == wasm.ValueTypeF32
	toI64 := c.To == wasm.ValueTypeI64
	signed := c.Signed
	return func(fr *execFrame) uint64 {
		var f float64
		if fromF32 {
			f = float64(math32.Float32frombits(uint32(child(fr))))
		} else {
			f = math.Float64frombits(child(fr))
		}
		switch {
		case toI64 && signed:
			return uint64(int64(f))
		case toI64 && !signed:
			return uint64(f)
		case !toI64 && signed:
			return uint64(uint32(int32(f)))
		default:
			return uint64(uint32(f))
		}
	}
}

func compileSelect(s *ir.Select) exprFn {
	cond, t, f := compileExpr(s.Cond), compileExpr(s.True), compileExpr(s.False)
	return func(fr *execFrame) uint64 {
		if cond(fr) != 0 {
			return t(fr)
		}
		return f(fr)
	}
}

func compileCall(c *ir.Call) exprFn {
	argFns := make([]exprFn, len(c.Args))
	for i, a := range c.Args {
		argFns[i] = compileExpr(a)
	}
	idx := c.FuncIndex
	return func(fr *execFrame) uint64 {
		args := make([]uint64, len(argFns))
		for i, a := range argFns {
			args[i] = a(fr)
		}
		result, _, err := fr.inst.Call(idx, args)
		if err != nil {
			panic(err)
		}
		return result
	}
}

func compileCallIndirect(c *ir.CallIndirect) exprFn {
	argFns := make([]exprFn, len(c.Args))
	for i, a := range c.Args {
		argFns[i] = compileExpr(a)
	}
	idxExpr := compileExpr(c.IndexExpr)
	sig := c.Sig
	return func(fr *execFrame) uint64 {
		tableIdx := uint32(idxExpr(fr))
		table := fr.inst.Table
		if int(tableIdx) >= len(table) {
			rt.Trap(errs.TrapOutOfBoundsTable, "")
		}
		entry := table[tableIdx]
		if entry.FuncIndex < 0 {
			rt.Trap(errs.TrapUninitializedElement, "")
		}
		funcIdx := uint32(entry.FuncIndex)
		if fr.inst.Sigs[funcIdx] != sig {
			rt.Trap(errs.TrapIndirectCallTypeMismatch, "")
		}
		args := make([]uint64, len(argFns))
		for i, a := range argFns {
			args[i] = a(fr)
		}
		result, _, err := fr.inst.Call(funcIdx, args)
		if err != nil {
			panic(err)
		}
		return result
	}
}

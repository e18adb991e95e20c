package ir

import (
	"math"

	"github.com/oakwasm/oak/internal/errs"
	"github.com/oakwasm/oak/internal/wasm"
)

// unarySpec covers the same-type unary operators: clz/ctz/popcnt (int),
// neg/abs/sqrt/ceil/floor/trunc/nearest (float).
type unarySpec struct {
	ValType ValueType
	Op      string
}

var unaryOps = map[byte]unarySpec{
	wasm.OpcodeI32Clz:    {wasm.ValueTypeI32, "clz"},
	wasm.OpcodeI32Ctz:    {wasm.ValueTypeI32, "ctz"},
	wasm.OpcodeI32Popcnt: {wasm.ValueTypeI32, "popcnt"},
	wasm.OpcodeI64Clz:    {wasm.ValueTypeI64, "clz"},
	wasm.OpcodeI64Ctz:    {wasm.ValueTypeI64, "ctz"},
	wasm.OpcodeI64Popcnt: {wasm.ValueTypeI64, "popcnt"},

	wasm.OpcodeF32Abs:     {wasm.ValueTypeF32, "abs"},
	wasm.OpcodeF32Neg:     {wasm.ValueTypeF32, "neg"},
	wasm.OpcodeF32Ceil:    {wasm.ValueTypeF32, "ceil"},
	wasm.OpcodeF32Floor:   {wasm.ValueTypeF32, "floor"},
	wasm.OpcodeF32Trunc:   {wasm.ValueTypeF32, "trunc"},
	wasm.OpcodeF32Nearest: {wasm.ValueTypeF32, "nearest"},
	wasm.OpcodeF32Sqrt:    {wasm.ValueTypeF32, "sqrt"},

	wasm.OpcodeF64Abs:     {wasm.ValueTypeF64, "abs"},
	wasm.OpcodeF64Neg:     {wasm.ValueTypeF64, "neg"},
	wasm.OpcodeF64Ceil:    {wasm.ValueTypeF64, "ceil"},
	wasm.OpcodeF64Floor:   {wasm.ValueTypeF64, "floor"},
	wasm.OpcodeF64Trunc:   {wasm.ValueTypeF64, "trunc"},
	wasm.OpcodeF64Nearest: {wasm.ValueTypeF64, "nearest"},
	wasm.OpcodeF64Sqrt:    {wasm.ValueTypeF64, "sqrt"},
}

func (b *funcBuilder) doUnary(spec unarySpec) error {
	v, err := b.popExpect(spec.ValType)
	if err != nil {
		return err
	}
	b.push(&UnaryOp{ValType: spec.ValType, Op: spec.Op, Child: v})
	return nil
}

// binarySpec covers the same-type, same-result binary arithmetic and
// bitwise operators. Signed distinguishes div_s/u, rem_s/u, shr_s/u for
// integers; meaningless for float ops.
type binarySpec struct {
	ValType ValueType
	Op      string
	Signed  bool
}

var binaryOps = map[byte]binarySpec{
	wasm.OpcodeI32Add:  {wasm.ValueTypeI32, "add", false},
	wasm.OpcodeI32Sub:  {wasm.ValueTypeI32, "sub", false},
	wasm.OpcodeI32Mul:  {wasm.ValueTypeI32, "mul", false},
	wasm.OpcodeI32DivS: {wasm.ValueTypeI32, "div", true},
	wasm.OpcodeI32DivU: {wasm.ValueTypeI32, "div", false},
	wasm.OpcodeI32RemS: {wasm.ValueTypeI32, "rem", true},
	wasm.OpcodeI32RemU: {wasm.ValueTypeI32, "rem", false},
	wasm.OpcodeI32And:  {wasm.ValueTypeI32, "and", false},
	wasm.OpcodeI32Or:   {wasm.ValueTypeI32, "or", false},
	wasm.OpcodeI32Xor:  {wasm.ValueTypeI32, "xor", false},
	wasm.OpcodeI32Shl:  {wasm.ValueTypeI32, "shl", false},
	wasm.OpcodeI32ShrS: {wasm.ValueTypeI32, "shr", true},
	wasm.OpcodeI32ShrU: {wasm.ValueTypeI32, "shr", false},
	wasm.OpcodeI32Rotl: {wasm.ValueTypeI32, "rotl", false},
	wasm.OpcodeI32Rotr: {wasm.ValueTypeI32, "rotr", false},

	wasm.OpcodeI64Add:  {wasm.ValueTypeI64, "add", false},
	wasm.OpcodeI64Sub:  {wasm.ValueTypeI64, "sub", false},
	wasm.OpcodeI64Mul:  {wasm.ValueTypeI64, "mul", false},
	wasm.OpcodeI64DivS: {wasm.ValueTypeI64, "div", true},
	wasm.OpcodeI64DivU: {wasm.ValueTypeI64, "div", false},
	wasm.OpcodeI64RemS: {wasm.ValueTypeI64, "rem", true},
	wasm.OpcodeI64RemU: {wasm.ValueTypeI64, "rem", false},
	wasm.OpcodeI64And:  {wasm.ValueTypeI64, "and", false},
	wasm.OpcodeI64Or:   {wasm.ValueTypeI64, "or", false},
	wasm.OpcodeI64Xor:  {wasm.ValueTypeI64, "xor", false},
	wasm.OpcodeI64Shl:  {wasm.ValueTypeI64, "shl", false},
	wasm.OpcodeI64ShrS: {wasm.ValueTypeI64, "shr", true},
	wasm.OpcodeI64ShrU: {wasm.ValueTypeI64, "shr", false},
	wasm.OpcodeI64Rotl: {wasm.ValueTypeI64, "rotl", false},
	wasm.OpcodeI64Rotr: {wasm.ValueTypeI64, "rotr", false},

	wasm.OpcodeF32Add:      {wasm.ValueTypeF32, "add", false},
	wasm.OpcodeF32Sub:      {wasm.ValueTypeF32, "sub", false},
	wasm.OpcodeF32Mul:      {wasm.ValueTypeF32, "mul", false},
	wasm.OpcodeF32Div:      {wasm.ValueTypeF32, "div", false},
	wasm.OpcodeF32Min:      {wasm.ValueTypeF32, "min", false},
	wasm.OpcodeF32Max:      {wasm.ValueTypeF32, "max", false},
	wasm.OpcodeF32Copysign: {wasm.ValueTypeF32, "copysign", false},

	wasm.OpcodeF64Add:      {wasm.ValueTypeF64, "add", false},
	wasm.OpcodeF64Sub:      {wasm.ValueTypeF64, "sub", false},
	wasm.OpcodeF64Mul:      {wasm.ValueTypeF64, "mul", false},
	wasm.OpcodeF64Div:      {wasm.ValueTypeF64, "div", false},
	wasm.OpcodeF64Min:      {wasm.ValueTypeF64, "min", false},
	wasm.OpcodeF64Max:      {wasm.ValueTypeF64, "max", false},
	wasm.OpcodeF64Copysign: {wasm.ValueTypeF64, "copysign", false},
}

func isIntType(vt ValueType) bool { return vt == wasm.ValueTypeI32 || vt == wasm.ValueTypeI64 }

func intZeroConst(vt ValueType) *Constant { return &Constant{ValType: vt, Bits: 0} }

func intNegOneConst(vt ValueType) *Constant {
	if vt == wasm.ValueTypeI32 {
		return &Constant{ValType: vt, Bits: uint64(uint32(0xffffffff))}
	}
	return &Constant{ValType: vt, Bits: 0xffffffffffffffff}
}

func intMinConst(vt ValueType) *Constant {
	if vt == wasm.ValueTypeI32 {
		return &Constant{ValType: vt, Bits: uint64(uint32(1) << 31)}
	}
	return &Constant{ValType: vt, Bits: uint64(1) << 63}
}

// doBinary pools the division/remainder trap conditions per the shared
// guard described in the Design Notes before emitting the BinaryOp.
func (b *funcBuilder) doBinary(spec binarySpec) error {
	rhs, err := b.popExpect(spec.ValType)
	if err != nil {
		return err
	}
	lhs, err := b.popExpect(spec.ValType)
	if err != nil {
		return err
	}
	if isIntType(spec.ValType) && (spec.Op == "div" || spec.Op == "rem") {
		b.addTrap(errs.TrapIntegerDivideByZero, &Compare{
			OperandType: spec.ValType, Op: "eq", Lhs: rhs, Rhs: intZeroConst(spec.ValType),
		})
		if spec.Op == "div" && spec.Signed {
			isMin := &Compare{OperandType: spec.ValType, Op: "eq", Lhs: lhs, Rhs: intMinConst(spec.ValType)}
			isNegOne := &Compare{OperandType: spec.ValType, Op: "eq", Lhs: rhs, Rhs: intNegOneConst(spec.ValType)}
			b.addTrap(errs.TrapIntegerOverflow, &BinaryOp{ValType: wasm.ValueTypeI32, Op: "and", Lhs: isMin, Rhs: isNegOne})
		}
	}
	b.push(&BinaryOp{ValType: spec.ValType, Op: spec.Op, Signed: spec.Signed, Lhs: lhs, Rhs: rhs})
	return nil
}

// compareSpec covers the two-operand, always-I32-result comparisons.
type compareSpec struct {
	OperandType ValueType
	Op          string
	Signed      bool
}

var compareOps = map[byte]compareSpec{
	wasm.OpcodeI32Eq:  {wasm.ValueTypeI32, "eq", false},
	wasm.OpcodeI32Ne:  {wasm.ValueTypeI32, "ne", false},
	wasm.OpcodeI32LtS: {wasm.ValueTypeI32, "lt", true},
	wasm.OpcodeI32LtU: {wasm.ValueTypeI32, "lt", false},
	wasm.OpcodeI32GtS: {wasm.ValueTypeI32, "gt", true},
	wasm.OpcodeI32GtU: {wasm.ValueTypeI32, "gt", false},
	wasm.OpcodeI32LeS: {wasm.ValueTypeI32, "le", true},
	wasm.OpcodeI32LeU: {wasm.ValueTypeI32, "le", false},
	wasm.OpcodeI32GeS: {wasm.ValueTypeI32, "ge", true},
	wasm.OpcodeI32GeU: {wasm.ValueTypeI32, "ge", false},

	wasm.OpcodeI64Eq:  {wasm.ValueTypeI64, "eq", false},
	wasm.OpcodeI64Ne:  {wasm.ValueTypeI64, "ne", false},
	wasm.OpcodeI64LtS: {wasm.ValueTypeI64, "lt", true},
	wasm.OpcodeI64LtU: {wasm.ValueTypeI64, "lt", false},
	wasm.OpcodeI64GtS: {wasm.ValueTypeI64, "gt", true},
	wasm.OpcodeI64GtU: {wasm.ValueTypeI64, "gt", false},
	wasm.OpcodeI64LeS: {wasm.ValueTypeI64, "le", true},
	wasm.OpcodeI64LeU: {wasm.ValueTypeI64, "le", false},
	wasm.OpcodeI64GeS: {wasm.ValueTypeI64, "ge", true},
	wasm.OpcodeI64GeU: {wasm.ValueTypeI64, "ge", false},

	wasm.OpcodeF32Eq: {wasm.ValueTypeF32, "eq", false},
	wasm.OpcodeF32Ne: {wasm.ValueTypeF32, "ne", false},
	wasm.OpcodeF32Lt: {wasm.ValueTypeF32, "lt", false},
	wasm.OpcodeF32Gt: {wasm.ValueTypeF32, "gt", false},
	wasm.OpcodeF32Le: {wasm.ValueTypeF32, "le", false},
	wasm.OpcodeF32Ge: {wasm.ValueTypeF32, "ge", false},

	wasm.OpcodeF64Eq: {wasm.ValueTypeF64, "eq", false},
	wasm.OpcodeF64Ne: {wasm.ValueTypeF64, "ne", false},
	wasm.OpcodeF64Lt: {wasm.ValueTypeF64, "lt", false},
	wasm.OpcodeF64Gt: {wasm.ValueTypeF64, "gt", false},
	wasm.OpcodeF64Le: {wasm.ValueTypeF64, "le", false},
	wasm.OpcodeF64Ge: {wasm.ValueTypeF64, "ge", false},
}

func (b *funcBuilder) doCompare(spec compareSpec) error {
	rhs, err := b.popExpect(spec.OperandType)
	if err != nil {
		return err
	}
	lhs, err := b.popExpect(spec.OperandType)
	if err != nil {
		return err
	}
	b.push(&Compare{OperandType: spec.OperandType, Op: spec.Op, Signed: spec.Signed, Lhs: lhs, Rhs: rhs})
	return nil
}

// doEqz handles i32.eqz/i64.eqz, modeled as a comparison against zero
// rather than a dedicated unary node, since its result type (always I32)
// differs from its operand type.
func (b *funcBuilder) doEqz(vt ValueType) error {
	v, err := b.popExpect(vt)
	if err != nil {
		return err
	}
	b.push(&Compare{OperandType: vt, Op: "eq", Lhs: v, Rhs: intZeroConst(vt)})
	return nil
}

// convertSpec covers every opcode that changes a value's representation:
// wrap, extend, trunc (float to int, trapping), convert (int to float),
// demote/promote (between float widths), and reinterpret (same-width
// bit-for-bit reinterpretation).
type convertSpec struct {
	From, To ValueType
	Mode     ConvertMode
	Signed   bool
}

var convertOps = map[byte]convertSpec{
	wasm.OpcodeI32WrapI64: {wasm.ValueTypeI64, wasm.ValueTypeI32, ConvertWrap, false},

	wasm.OpcodeI32TruncF32S: {wasm.ValueTypeF32, wasm.ValueTypeI32, ConvertTrunc, true},
	wasm.OpcodeI32TruncF32U: {wasm.ValueTypeF32, wasm.ValueTypeI32, ConvertTrunc, false},
	wasm.OpcodeI32TruncF64S: {wasm.ValueTypeF64, wasm.ValueTypeI32, ConvertTrunc, true},
	wasm.OpcodeI32TruncF64U: {wasm.ValueTypeF64, wasm.ValueTypeI32, ConvertTrunc, false},

	wasm.OpcodeI64ExtendI32S: {wasm.ValueTypeI32, wasm.ValueTypeI64, ConvertExtend, true},
	wasm.OpcodeI64ExtendI32U: {wasm.ValueTypeI32, wasm.ValueTypeI64, ConvertExtend, false},

	wasm.OpcodeI64TruncF32S: {wasm.ValueTypeF32, wasm.ValueTypeI64, ConvertTrunc, true},
	wasm.OpcodeI64TruncF32U: {wasm.ValueTypeF32, wasm.ValueTypeI64, ConvertTrunc, false},
	wasm.OpcodeI64TruncF64S: {wasm.ValueTypeF64, wasm.ValueTypeI64, ConvertTrunc, true},
	wasm.OpcodeI64TruncF64U: {wasm.ValueTypeF64, wasm.ValueTypeI64, ConvertTrunc, false},

	wasm.OpcodeF32ConvertI32S: {wasm.ValueTypeI32, wasm.ValueTypeF32, ConvertConvert, true},
	wasm.OpcodeF32ConvertI32U: {wasm.ValueTypeI32, wasm.ValueTypeF32, ConvertConvert, false},
	wasm.OpcodeF32ConvertI64S: {wasm.ValueTypeI64, wasm.ValueTypeF32, ConvertConvert, true},
	wasm.OpcodeF32ConvertI64U: {wasm.ValueTypeI64, wasm.ValueTypeF32, ConvertConvert, false},
	wasm.OpcodeF32DemoteF64:   {wasm.ValueTypeF64, wasm.ValueTypeF32, ConvertDemote, false},

	wasm.OpcodeF64ConvertI32S: {wasm.ValueTypeI32, wasm.ValueTypeF64, ConvertConvert, true},
	wasm.OpcodeF64ConvertI32U: {wasm.ValueTypeI32, wasm.ValueTypeF64, ConvertConvert, false},
	wasm.OpcodeF64ConvertI64S: {wasm.ValueTypeI64, wasm.ValueTypeF64, ConvertConvert, true},
	wasm.OpcodeF64ConvertI64U: {wasm.ValueTypeI64, wasm.ValueTypeF64, ConvertConvert, false},
	wasm.OpcodeF64PromoteF32:  {wasm.ValueTypeF32, wasm.ValueTypeF64, ConvertPromote, false},

	wasm.OpcodeI32ReinterpretF32: {wasm.ValueTypeF32, wasm.ValueTypeI32, ConvertReinterpret, false},
	wasm.OpcodeI64ReinterpretF64: {wasm.ValueTypeF64, wasm.ValueTypeI64, ConvertReinterpret, false},
	wasm.OpcodeF32ReinterpretI32: {wasm.ValueTypeI32, wasm.ValueTypeF32, ConvertReinterpret, false},
	wasm.OpcodeF64ReinterpretI64: {wasm.ValueTypeI64, wasm.ValueTypeF64, ConvertReinterpret, false},
}

func (b *funcBuilder) doConvert(spec convertSpec) error {
	v, err := b.popExpect(spec.From)
	if err != nil {
		return err
	}
	if spec.Mode == ConvertTrunc {
		upper, lower := truncBounds(spec.From, spec.To, spec.Signed)
		b.addTrap(errs.TrapInvalidConversion, &Compare{OperandType: spec.From, Op: "ge", Lhs: v, Rhs: upper})
		b.addTrap(errs.TrapInvalidConversion, &Compare{OperandType: spec.From, Op: "le", Lhs: v, Rhs: lower})
		// NaN check: a NaN never equals itself.
		b.addTrap(errs.TrapInvalidConversion, &Compare{OperandType: spec.From, Op: "ne", Lhs: v, Rhs: v})
	}
	b.push(&Convert{From: spec.From, To: spec.To, Mode: spec.Mode, Signed: spec.Signed, Child: v})
	return nil
}

// truncBounds returns the exact IEEE-754 boundary constants (in the
// source float type) for a trunc conversion to integer type `to` with the
// given signedness. These are the precise representable values nearest
// the mathematical integer boundary, not a rounded approximation: the
// lower bound for a signed conversion is the largest value of the source
// type that is itself out of range (<=), matched against the target
// width's exact minimum minus one; the f32 and f64 bounds differ because
// each type's granularity near 2^31/2^63 differs.
func truncBounds(from, to ValueType, signed bool) (upper, lower *Constant) {
	switch to {
	case wasm.ValueTypeI32:
		if signed {
			return floatConst(from, 2147483648.0, 2147483648.0), floatConst(from, -2147483649.0, -2147483904.0)
		}
		return floatConst(from, 4294967296.0, 4294967296.0), floatConst(from, -1.0, -1.0)
	default: // wasm.ValueTypeI64
		if signed {
			return floatConst(from, 9223372036854775808.0, 9223372036854775808.0),
				floatConst(from, -9223372036854777856.0, -9223373136366403584.0)
		}
		return floatConst(from, 18446744073709551616.0, 18446744073709551616.0), floatConst(from, -1.0, -1.0)
	}
}

// floatConst builds a Constant of type `from` (F32 or F64) holding the
// exact bit pattern of f64Val if from is F64, or of float32(f32Val) if
// from is F32. The two literals are passed separately rather than one
// converted to the other, since the nearest-representable value of a
// boundary differs between the two widths.
func floatConst(from ValueType, f64Val, f32Val float64) *Constant {
	if from == wasm.ValueTypeF32 {
		return &Constant{ValType: wasm.ValueTypeF32, Bits: uint64(math.Float32bits(float32(f32Val)))}
	}
	return &Constant{ValType: wasm.ValueTypeF64, Bits: math.Float64bits(f64Val)}
}

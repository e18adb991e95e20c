package ir

import (
	"math"
	"testing"

	"github.com/oakwasm/oak/internal/errs"
	"github.com/oakwasm/oak/internal/wasm"
	"github.com/stretchr/testify/require"
)

// blockTypeEmpty is the wire encoding (signed LEB128, one byte) of an empty
// (void) block type immediate: -0x40 as a 7-bit two's complement byte.
const blockTypeEmpty = 0x40

// leb encodes n as unsigned LEB128, for hand-assembling function bodies in
// these tests without pulling in the binary package's encoder.
func leb(n uint32) []byte {
	var out []byte
	for {
		b := byte(n & 0x7f)
		n >>= 7
		if n != 0 {
			b |= 0x80
		}
		out = append(out, b)
		if n == 0 {
			return out
		}
	}
}

func moduleWithFunc(sig *wasm.FunctionType, locals []wasm.ValueType, body []byte) *wasm.Module {
	return &wasm.Module{
		Types:               []*wasm.FuncType{sig},
		FunctionTypeIndices: []wasm.Index{0},
		Codes:               []*wasm.Code{{LocalTypes: locals, Body: body}},
	}
}

func TestValidate_SimpleAdd(t *testing.T) {
	sig := &wasm.FunctionType{Params: []wasm.ValueType{wasm.ValueTypeI32, wasm.ValueTypeI32}, Results: []wasm.ValueType{wasm.ValueTypeI32}}
	body := []byte{
		wasm.OpcodeLocalGet, 0,
		wasm.OpcodeLocalGet, 1,
		wasm.OpcodeI32Add,
		wasm.OpcodeEnd,
	}
	m := moduleWithFunc(sig, nil, body)

	fn, err := Validate(m, 0)
	require.NoError(t, err)
	require.Len(t, fn.Body, 1)
	br, ok := fn.Body[0].(*Branch)
	require.True(t, ok)
	require.Equal(t, Label(0), br.Target)
	add, ok := br.Result.(*BinaryOp)
	require.True(t, ok)
	require.Equal(t, "add", add.Op)
	require.Equal(t, wasm.ValueTypeI32, add.ValType)
	lhs, ok := add.Lhs.(*GetVar)
	require.True(t, ok)
	require.Equal(t, uint32(0), lhs.Index)
	rhs, ok := add.Rhs.(*GetVar)
	require.True(t, ok)
	require.Equal(t, uint32(1), rhs.Index)
}

func TestValidate_DivSignedPoolsTwoTraps(t *testing.T) {
	sig := &wasm.FunctionType{Params: []wasm.ValueType{wasm.ValueTypeI32, wasm.ValueTypeI32}, Results: []wasm.ValueType{wasm.ValueTypeI32}}
	body := []byte{
		wasm.OpcodeLocalGet, 0,
		wasm.OpcodeLocalGet, 1,
		wasm.OpcodeI32DivS,
		wasm.OpcodeEnd,
	}
	m := moduleWithFunc(sig, nil, body)

	fn, err := Validate(m, 0)
	require.NoError(t, err)
	require.Len(t, fn.Body, 2)
	traps, ok := fn.Body[0].(*TrapConditions)
	require.True(t, ok)
	require.Len(t, traps.Conds, 2)
	require.Equal(t, errs.TrapIntegerDivideByZero, traps.Conds[0].Trap)
	require.Equal(t, errs.TrapIntegerOverflow, traps.Conds[1].Trap)
	_, ok = fn.Body[1].(*Branch)
	require.True(t, ok)
}

func TestValidate_DivUnsignedPoolsOneTrap(t *testing.T) {
	sig := &wasm.FunctionType{Params: []wasm.ValueType{wasm.ValueTypeI32, wasm.ValueTypeI32}, Results: []wasm.ValueType{wasm.ValueTypeI32}}
	body := []byte{
		wasm.OpcodeLocalGet, 0,
		wasm.OpcodeLocalGet, 1,
		wasm.OpcodeI32DivU,
		wasm.OpcodeEnd,
	}
	m := moduleWithFunc(sig, nil, body)

	fn, err := Validate(m, 0)
	require.NoError(t, err)
	traps := fn.Body[0].(*TrapConditions)
	require.Len(t, traps.Conds, 1)
	require.Equal(t, errs.TrapIntegerDivideByZero, traps.Conds[0].Trap)
}

func TestValidate_BlockBranchResultReconciliation(t *testing.T) {
	sig := &wasm.FunctionType{Results: []wasm.ValueType{wasm.ValueTypeI32}}
	body := []byte{
		wasm.OpcodeBlock, wasm.ValueTypeI32,
		wasm.OpcodeI32Const, 5,
		wasm.OpcodeBr, 0,
		wasm.OpcodeEnd, // closes block
		wasm.OpcodeEnd, // closes function
	}
	m := moduleWithFunc(sig, nil, body)

	fn, err := Validate(m, 0)
	require.NoError(t, err)
	require.Len(t, fn.Body, 2)

	blk, ok := fn.Body[0].(*Block)
	require.True(t, ok)
	require.NotNil(t, blk.ResultVar)
	require.Nil(t, blk.FallthroughResult)
	require.Len(t, blk.Body, 1)
	innerBr, ok := blk.Body[0].(*Branch)
	require.True(t, ok)
	require.Equal(t, blk.Label, innerBr.Target)
	c, ok := innerBr.Result.(*Constant)
	require.True(t, ok)
	require.Equal(t, uint64(5), c.Bits)

	outerBr, ok := fn.Body[1].(*Branch)
	require.True(t, ok)
	gv, ok := outerBr.Result.(*GetVar)
	require.True(t, ok)
	require.Equal(t, blk.ResultVar.Index, gv.Index)
	require.Equal(t, uint32(1), fn.TempCounts[wasm.ValueTypeI32])
}

func TestValidate_IfWithoutElseMustNotProduceResult(t *testing.T) {
	sig := &wasm.FunctionType{Params: []wasm.ValueType{wasm.ValueTypeI32}, Results: []wasm.ValueType{wasm.ValueTypeI32}}
	body := []byte{
		wasm.OpcodeLocalGet, 0,
		wasm.OpcodeIf, wasm.ValueTypeI32,
		wasm.OpcodeI32Const, 1,
		wasm.OpcodeEnd, // closes if, no else, but if has a result type -> error
		wasm.OpcodeEnd,
	}
	m := moduleWithFunc(sig, nil, body)

	_, err := Validate(m, 0)
	require.Error(t, err)
}

func TestValidate_IfElseFallthrough(t *testing.T) {
	sig := &wasm.FunctionType{Params: []wasm.ValueType{wasm.ValueTypeI32}, Results: []wasm.ValueType{wasm.ValueTypeI32}}
	body := []byte{
		wasm.OpcodeLocalGet, 0,
		wasm.OpcodeIf, wasm.ValueTypeI32,
		wasm.OpcodeI32Const, 1,
		wasm.OpcodeElse,
		wasm.OpcodeI32Const, 2,
		wasm.OpcodeEnd,
		wasm.OpcodeEnd,
	}
	m := moduleWithFunc(sig, nil, body)

	fn, err := Validate(m, 0)
	require.NoError(t, err)
	// function body: Branch{Target:0, Result: IfElse-produced value} preceded
	// by the IfElse statement itself.
	require.Len(t, fn.Body, 2)
	ifElse, ok := fn.Body[0].(*IfElse)
	require.True(t, ok)
	// Neither branch ever br's out, but an if/else still allocates its
	// result var unconditionally: the then and else arms are independent
	// fallthrough paths, so only whichever arm actually runs may write its
	// own tail value into it (see IfElse's doc comment).
	require.NotNil(t, ifElse.ResultVar)
	thenConst, ok := ifElse.ThenFallthroughResult.(*Constant)
	require.True(t, ok)
	require.Equal(t, uint64(1), thenConst.Bits)
	elseConst, ok := ifElse.ElseFallthroughResult.(*Constant)
	require.True(t, ok)
	require.Equal(t, uint64(2), elseConst.Bits)

	// The function-level fallthrough reads the IfElse's result through the
	// shared temp var, not either arm's constant directly.
	outerBr := fn.Body[1].(*Branch)
	outerGetVar, ok := outerBr.Result.(*GetVar)
	require.True(t, ok)
	require.Equal(t, ifElse.ResultVar.Index, outerGetVar.Index)
}

func TestValidate_TruncTrapsExactBoundaries(t *testing.T) {
	sig := &wasm.FunctionType{Params: []wasm.ValueType{wasm.ValueTypeF64}, Results: []wasm.ValueType{wasm.ValueTypeI32}}
	body := []byte{
		wasm.OpcodeLocalGet, 0,
		wasm.OpcodeI32TruncF64S,
		wasm.OpcodeEnd,
	}
	m := moduleWithFunc(sig, nil, body)

	fn, err := Validate(m, 0)
	require.NoError(t, err)
	traps := fn.Body[0].(*TrapConditions)
	require.Len(t, traps.Conds, 3)
	for _, tc := range traps.Conds {
		require.Equal(t, errs.TrapInvalidConversion, tc.Trap)
	}
	upperCmp := traps.Conds[0].Cond.(*Compare)
	require.Equal(t, "ge", upperCmp.Op)
	upperConst := upperCmp.Rhs.(*Constant)
	require.Equal(t, 2147483648.0, math.Float64frombits(upperConst.Bits))

	lowerCmp := traps.Conds[1].Cond.(*Compare)
	require.Equal(t, "le", lowerCmp.Op)
	lowerConst := lowerCmp.Rhs.(*Constant)
	require.Equal(t, -2147483649.0, math.Float64frombits(lowerConst.Bits))
}

// TestValidate_TruncF32ToI64SignedBoundary pins the f32 source's lower
// bound for a signed trunc to i64: f32's granularity near 2^63 is 2^40
// (23-bit mantissa vs f64's 52), so the boundary constant is
// -(2^63+2^40), not f64's -(2^63+2^11) value reused at f32 precision.
func TestValidate_TruncF32ToI64SignedBoundary(t *testing.T) {
	sig := &wasm.FunctionType{Params: []wasm.ValueType{wasm.ValueTypeF32}, Results: []wasm.ValueType{wasm.ValueTypeI64}}
	body := []byte{
		wasm.OpcodeLocalGet, 0,
		wasm.OpcodeI64TruncF32S,
		wasm.OpcodeEnd,
	}
	m := moduleWithFunc(sig, nil, body)

	fn, err := Validate(m, 0)
	require.NoError(t, err)
	traps := fn.Body[0].(*TrapConditions)
	require.Len(t, traps.Conds, 3)

	upperCmp := traps.Conds[0].Cond.(*Compare)
	require.Equal(t, "ge", upperCmp.Op)
	upperConst := upperCmp.Rhs.(*Constant)
	require.Equal(t, float32(9223372036854775808.0), math.Float32frombits(uint32(upperConst.Bits)))

	lowerCmp := traps.Conds[1].Cond.(*Compare)
	require.Equal(t, "le", lowerCmp.Op)
	lowerConst := lowerCmp.Rhs.(*Constant)
	require.Equal(t, uint32(0xdf000001), uint32(lowerConst.Bits))
	require.Equal(t, float32(-9223373136366403584.0), math.Float32frombits(uint32(lowerConst.Bits)))
}

func TestValidate_CallSignature(t *testing.T) {
	sig := &wasm.FunctionType{Results: []wasm.ValueType{wasm.ValueTypeI32}}
	callee := &wasm.FunctionType{Params: []wasm.ValueType{wasm.ValueTypeI32, wasm.ValueTypeF64}, Results: []wasm.ValueType{wasm.ValueTypeI32}}
	body := []byte{
		wasm.OpcodeI32Const, 1,
		wasm.OpcodeF64Const, 0, 0, 0, 0, 0, 0, 0, 0,
		wasm.OpcodeCall, 1,
		wasm.OpcodeEnd,
	}
	m := &wasm.Module{
		Types:               []*wasm.FuncType{sig, callee},
		FunctionTypeIndices: []wasm.Index{0, 1},
		Codes: []*wasm.Code{
			{Body: body},
			{Body: []byte{wasm.OpcodeEnd}},
		},
	}

	fn, err := Validate(m, 0)
	require.NoError(t, err)
	br := fn.Body[0].(*Branch)
	call := br.Result.(*Call)
	require.Equal(t, "id->i", call.Sig)
	require.Equal(t, wasm.Index(1), call.FuncIndex)
}

func TestValidate_LocalIndexOutOfRange(t *testing.T) {
	sig := &wasm.FunctionType{}
	body := []byte{wasm.OpcodeLocalGet, 5, wasm.OpcodeEnd}
	m := moduleWithFunc(sig, nil, body)

	_, err := Validate(m, 0)
	require.Error(t, err)
}

func TestValidate_SelectTypeMismatch(t *testing.T) {
	sig := &wasm.FunctionType{Results: []wasm.ValueType{wasm.ValueTypeI32}}
	body := []byte{
		wasm.OpcodeI32Const, 1,
		wasm.OpcodeF64Const, 0, 0, 0, 0, 0, 0, 0, 0,
		wasm.OpcodeI32Const, 1,
		wasm.OpcodeSelect,
		wasm.OpcodeEnd,
	}
	m := moduleWithFunc(sig, nil, body)

	_, err := Validate(m, 0)
	require.Error(t, err)
}

func TestValidate_UnreachablePolymorphism(t *testing.T) {
	sig := &wasm.FunctionType{Results: []wasm.ValueType{wasm.ValueTypeI32}}
	body := []byte{
		wasm.OpcodeUnreachable,
		wasm.OpcodeEnd,
	}
	m := moduleWithFunc(sig, nil, body)

	fn, err := Validate(m, 0)
	require.NoError(t, err)
	require.Len(t, fn.Body, 1)
	_, ok := fn.Body[0].(*Unreachable)
	require.True(t, ok)
}

func TestValidate_BrTableMismatchedResultTypes(t *testing.T) {
	sig := &wasm.FunctionType{}
	body := []byte{
		wasm.OpcodeBlock, wasm.ValueTypeI32,
		wasm.OpcodeBlock, blockTypeEmpty,
		wasm.OpcodeI32Const, 0,
		wasm.OpcodeBrTable, 2, 0, 1, 0,
		wasm.OpcodeEnd,
		wasm.OpcodeEnd,
		wasm.OpcodeEnd,
	}
	m := moduleWithFunc(sig, nil, body)

	_, err := Validate(m, 0)
	require.Error(t, err)
}

package lower

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/oakwasm/oak/internal/ir"
	"github.com/oakwasm/oak/internal/rt"
	"github.com/oakwasm/oak/internal/wasm"
	"github.com/stretchr/testify/require"
)

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

func sleb(n int64) []byte {
	var out []byte
	more := true
	for more {
		b := byte(n & 0x7f)
		n >>= 7
		if (n == 0 && b&0x40 == 0) || (n == -1 && b&0x40 != 0) {
			more = false
		} else {
			b |= 0x80
		}
		out = append(out, b)
	}
	return out
}

func f32Bytes(f float32) []byte {
	out := make([]byte, 4)
	binary.LittleEndian.PutUint32(out, math.Float32bits(f))
	return out
}

func f64Bytes(f float64) []byte {
	out := make([]byte, 8)
	binary.LittleEndian.PutUint64(out, math.Float64bits(f))
	return out
}

func moduleWithFunc(sig *wasm.FunctionType, locals []wasm.ValueType, body []byte) *wasm.Module {
	return &wasm.Module{
		Types:               []*wasm.FuncType{sig},
		FunctionTypeIndices: []wasm.Index{0},
		Codes:               []*wasm.Code{{LocalTypes: locals, Body: body}},
	}
}

func compileBody(t *testing.T, sig *wasm.FunctionType, locals []wasm.ValueType, body []byte) *interpreterFunc {
	t.Helper()
	m := moduleWithFunc(sig, locals, body)
	fn, err := ir.Validate(m, 0)
	require.NoError(t, err)
	compiled, err := InterpreterTarget{}.Compile(fn)
	require.NoError(t, err)
	return compiled.(*interpreterFunc)
}

func TestInterpreterFunc_AddI32(t *testing.T) {
	sig := &wasm.FunctionType{Params: []wasm.ValueType{wasm.ValueTypeI32, wasm.ValueTypeI32}, Results: []wasm.ValueType{wasm.ValueTypeI32}}
	body := []byte{
		wasm.OpcodeLocalGet, 0,
		wasm.OpcodeLocalGet, 1,
		wasm.OpcodeI32Add,
		wasm.OpcodeEnd,
	}
	f := compileBody(t, sig, nil, body)

	res, has, err := f.Call(&Instance{}, []uint64{7, 35})
	require.NoError(t, err)
	require.True(t, has)
	require.Equal(t, uint64(42), res)
}

func TestInterpreterFunc_I32DivByZeroTraps(t *testing.T) {
	sig := &wasm.FunctionType{Params: []wasm.ValueType{wasm.ValueTypeI32, wasm.ValueTypeI32}, Results: []wasm.ValueType{wasm.ValueTypeI32}}
	body := []byte{
		wasm.OpcodeLocalGet, 0,
		wasm.OpcodeLocalGet, 1,
		wasm.OpcodeI32DivS,
		wasm.OpcodeEnd,
	}
	f := compileBody(t, sig, nil, body)

	_, _, err := f.Call(&Instance{}, []uint64{10, 0})
	require.Error(t, err)
	require.Contains(t, err.Error(), "integer divide by zero")
}

// TestInterpreterFunc_LoopCountdown sums 1..n via a loop with a local
// counter and accumulator. The loop carries no value (its
// branch_result_type is always NONE): br_if 0 re-enters the loop while
// n != 0, and simply falling through (br_if not taken) is how the loop
// exits, exercising both the "continue" and the normal-exit path of
// compileLoop's signal handling.
func TestInterpreterFunc_LoopCountdown(t *testing.T) {
	sig := &wasm.FunctionType{Params: []wasm.ValueType{wasm.ValueTypeI32}, Results: []wasm.ValueType{wasm.ValueTypeI32}}
	// locals: 0=n (param), 1=sum
	body := []byte{
		wasm.OpcodeLoop, blockTypeEmpty,
		wasm.OpcodeLocalGet, 1,
		wasm.OpcodeLocalGet, 0,
		wasm.OpcodeI32Add,
		wasm.OpcodeLocalSet, 1, // sum += n
		wasm.OpcodeLocalGet, 0,
		wasm.OpcodeI32Const, 1,
		wasm.OpcodeI32Sub,
		wasm.OpcodeLocalTee, 0, // n -= 1, leaving n on the stack
		wasm.OpcodeBrIf, 0, // continue while n != 0
		wasm.OpcodeEnd,
		wasm.OpcodeLocalGet, 1,
		wasm.OpcodeEnd,
	}
	f := compileBody(t, sig, []wasm.ValueType{wasm.ValueTypeI32}, body)

	res, has, err := f.Call(&Instance{}, []uint64{5})
	require.NoError(t, err)
	require.True(t, has)
	require.Equal(t, uint64(15), res)
}

// TestInterpreterFunc_IfElseResult exercises an if/else producing a value
// through ResultVar reconciliation.
func TestInterpreterFunc_IfElseResult(t *testing.T) {
	sig := &wasm.FunctionType{Params: []wasm.ValueType{wasm.ValueTypeI32}, Results: []wasm.ValueType{wasm.ValueTypeI32}}
	body := []byte{
		wasm.OpcodeLocalGet, 0,
		wasm.OpcodeIf, wasm.ValueTypeI32,
		wasm.OpcodeI32Const, 1,
		wasm.OpcodeElse,
		wasm.OpcodeI32Const, 0,
		wasm.OpcodeEnd,
		wasm.OpcodeEnd,
	}
	f := compileBody(t, sig, nil, body)

	res, _, err := f.Call(&Instance{}, []uint64{5})
	require.NoError(t, err)
	require.Equal(t, uint64(1), res)

	res, _, err = f.Call(&Instance{}, []uint64{0})
	require.NoError(t, err)
	require.Equal(t, uint64(0), res)
}

func TestInterpreterFunc_F32Const(t *testing.T) {
	sig := &wasm.FunctionType{Results: []wasm.ValueType{wasm.ValueTypeF32}}
	body := append([]byte{wasm.OpcodeF32Const}, f32Bytes(3.5)...)
	body = append(body, wasm.OpcodeEnd)
	f := compileBody(t, sig, nil, body)

	res, _, err := f.Call(&Instance{}, nil)
	require.NoError(t, err)
	require.Equal(t, float32(3.5), math.Float32frombits(uint32(res)))
}

func TestInterpreterFunc_I64ConstAndShift(t *testing.T) {
	sig := &wasm.FunctionType{Results: []wasm.ValueType{wasm.ValueTypeI64}}
	body := []byte{wasm.OpcodeI64Const}
	body = append(body, sleb(1)...)
	body = append(body, wasm.OpcodeI64Const)
	body = append(body, sleb(10)...)
	body = append(body, wasm.OpcodeI64Shl, wasm.OpcodeEnd)
	f := compileBody(t, sig, nil, body)

	res, _, err := f.Call(&Instance{}, nil)
	require.NoError(t, err)
	require.Equal(t, uint64(1024), res)
}

func TestInterpreterFunc_MemoryStoreLoad(t *testing.T) {
	sig := &wasm.FunctionType{Params: []wasm.ValueType{wasm.ValueTypeI32, wasm.ValueTypeI32}, Results: []wasm.ValueType{wasm.ValueTypeI32}}
	body := []byte{
		wasm.OpcodeLocalGet, 0, // addr
		wasm.OpcodeLocalGet, 1, // value
		wasm.OpcodeI32Store, 0, 0, // align, offset
		wasm.OpcodeLocalGet, 0,
		wasm.OpcodeI32Load, 0, 0,
		wasm.OpcodeEnd,
	}
	f := compileBody(t, sig, nil, body)
	inst := &Instance{Memory: rt.NewMemory(1, 0, false)}

	res, _, err := f.Call(inst, []uint64{8, 0xdeadbeef})
	require.NoError(t, err)
	require.Equal(t, uint64(0xdeadbeef), res)
}

func TestInterpreterFunc_MemoryLoadOutOfBoundsTraps(t *testing.T) {
	sig := &wasm.FunctionType{Params: []wasm.ValueType{wasm.ValueTypeI32}, Results: []wasm.ValueType{wasm.ValueTypeI32}}
	body := []byte{
		wasm.OpcodeLocalGet, 0,
		wasm.OpcodeI32Load, 0, 0,
		wasm.OpcodeEnd,
	}
	f := compileBody(t, sig, nil, body)
	inst := &Instance{Memory: rt.NewMemory(1, 0, false)}

	_, _, err := f.Call(inst, []uint64{uint64(rt.PageSize) - 1})
	require.Error(t, err)
	require.Contains(t, err.Error(), "out of bounds memory access")
}

func TestInterpreterFunc_CallAnotherFunction(t *testing.T) {
	doubleSig := &wasm.FunctionType{Params: []wasm.ValueType{wasm.ValueTypeI32}, Results: []wasm.ValueType{wasm.ValueTypeI32}}
	doubleBody := []byte{
		wasm.OpcodeLocalGet, 0,
		wasm.OpcodeLocalGet, 0,
		wasm.OpcodeI32Add,
		wasm.OpcodeEnd,
	}
	callerSig := &wasm.FunctionType{Params: []wasm.ValueType{wasm.ValueTypeI32}, Results: []wasm.ValueType{wasm.ValueTypeI32}}
	callerBody := []byte{
		wasm.OpcodeLocalGet, 0,
		wasm.OpcodeCall, 0,
		wasm.OpcodeEnd,
	}

	m := &wasm.Module{
		Types:               []*wasm.FuncType{doubleSig, callerSig},
		FunctionTypeIndices: []wasm.Index{0, 1},
		Codes: []*wasm.Code{
			{Body: doubleBody},
			{Body: callerBody},
		},
	}
	doubleFn, err := ir.Validate(m, 0)
	require.NoError(t, err)
	callerFn, err := ir.Validate(m, 1)
	require.NoError(t, err)

	doubleCompiled, err := InterpreterTarget{}.Compile(doubleFn)
	require.NoError(t, err)
	callerCompiled, err := InterpreterTarget{}.Compile(callerFn)
	require.NoError(t, err)

	inst := &Instance{Functions: []CompiledFunction{doubleCompiled, callerCompiled}}
	res, _, err := inst.Call(1, []uint64{21})
	require.NoError(t, err)
	require.Equal(t, uint64(42), res)
}

func TestInstantiate_DataSegmentAndExports(t *testing.T) {
	sig := &wasm.FunctionType{Results: []wasm.ValueType{wasm.ValueTypeI32}}
	body := []byte{
		wasm.OpcodeI32Const, 0,
		wasm.OpcodeI32Load, 0, 0,
		wasm.OpcodeEnd,
	}
	m := &wasm.Module{
		Types:               []*wasm.FuncType{sig},
		FunctionTypeIndices: []wasm.Index{0},
		Codes:               []*wasm.Code{{Body: body}},
		Memories:            []*wasm.Limits{{Min: 1}},
		Data: []*wasm.DataSegment{
			{Offset: wasm.ConstantExpression{Opcode: wasm.OpcodeI32Const, Data: sleb(0)}, Init: []byte{0x2a, 0, 0, 0}},
		},
		Exports: []*wasm.Export{
			{Name: "read", Type: wasm.ExternTypeFunc, Index: 0},
		},
	}
	fn, err := ir.Validate(m, 0)
	require.NoError(t, err)

	inst, err := Instantiate(m, []*ir.Function{fn}, InterpreterTarget{}, nil)
	require.NoError(t, err)
	require.Contains(t, inst.Exports, "read")

	res, _, err := inst.Call(inst.Exports["read"].Index, nil)
	require.NoError(t, err)
	require.Equal(t, uint64(42), res)
}

func TestInstantiate_OutOfBoundsDataSegmentAborts(t *testing.T) {
	sig := &wasm.FunctionType{}
	m := &wasm.Module{
		Types:               []*wasm.FuncType{sig},
		FunctionTypeIndices: []wasm.Index{0},
		Codes:               []*wasm.Code{{Body: []byte{wasm.OpcodeEnd}}},
		Memories:            []*wasm.Limits{{Min: 1}},
		Data: []*wasm.DataSegment{
			{Offset: wasm.ConstantExpression{Opcode: wasm.OpcodeI32Const, Data: sleb(int64(rt.PageSize) - 2)}, Init: []byte{1, 2, 3, 4}},
		},
	}
	fn, err := ir.Validate(m, 0)
	require.NoError(t, err)

	_, err = Instantiate(m, []*ir.Function{fn}, InterpreterTarget{}, nil)
	require.Error(t, err)
}

func TestInterpreterFunc_SelectPicksTrueBranch(t *testing.T) {
	sig := &wasm.FunctionType{Params: []wasm.ValueType{wasm.ValueTypeI32, wasm.ValueTypeI32, wasm.ValueTypeI32}, Results: []wasm.ValueType{wasm.ValueTypeI32}}
	body := []byte{
		wasm.OpcodeLocalGet, 0,
		wasm.OpcodeLocalGet, 1,
		wasm.OpcodeLocalGet, 2,
		wasm.OpcodeSelect,
		wasm.OpcodeEnd,
	}
	f := compileBody(t, sig, nil, body)

	res, _, err := f.Call(&Instance{}, []uint64{11, 22, 1})
	require.NoError(t, err)
	require.Equal(t, uint64(11), res)

	res, _, err = f.Call(&Instance{}, []uint64{11, 22, 0})
	require.NoError(t, err)
	require.Equal(t, uint64(22), res)
}

// TestInterpreterFunc_BrTableDispatches exercises the two-way form: idx==0
// takes the explicit table entry (branching to the innermost block, which
// is indistinguishable from that block's normal fallthrough, so execution
// continues into the drop+i32.const 100 that follows it); any other idx
// takes the default entry, branching directly past that code and carrying
// the constant pushed immediately before br_table as the outer block's
// result.
func TestInterpreterFunc_BrTableDispatches(t *testing.T) {
	sig := &wasm.FunctionType{Params: []wasm.ValueType{wasm.ValueTypeI32}, Results: []wasm.ValueType{wasm.ValueTypeI32}}
	body := []byte{
		wasm.OpcodeBlock, wasm.ValueTypeI32, // outer, depth 1 (default target)
		wasm.OpcodeBlock, wasm.ValueTypeI32, // inner, depth 0 (explicit target)
		wasm.OpcodeI32Const, 7,
		wasm.OpcodeLocalGet, 0,
		wasm.OpcodeBrTable, 1, 0, 1, // count=1, targets=[0], default=1
		wasm.OpcodeEnd, // end inner
		wasm.OpcodeDrop,
	}
	body = append(body, wasm.OpcodeI32Const)
	body = append(body, sleb(100)...)
	body = append(body, wasm.OpcodeEnd, wasm.OpcodeEnd) // end outer, end function
	f := compileBody(t, sig, nil, body)

	res, _, err := f.Call(&Instance{}, []uint64{0})
	require.NoError(t, err)
	require.Equal(t, uint64(100), res)

	res, _, err = f.Call(&Instance{}, []uint64{1})
	require.NoError(t, err)
	require.Equal(t, uint64(7), res)

	res, _, err = f.Call(&Instance{}, []uint64{99})
	require.NoError(t, err)
	require.Equal(t, uint64(7), res)
}

func TestInterpreterFunc_GlobalGetSet(t *testing.T) {
	sig := &wasm.FunctionType{Params: []wasm.ValueType{wasm.ValueTypeI32}, Results: []wasm.ValueType{wasm.ValueTypeI32}}
	body := []byte{
		wasm.OpcodeLocalGet, 0,
		wasm.OpcodeGlobalSet, 0,
		wasm.OpcodeGlobalGet, 0,
		wasm.OpcodeEnd,
	}
	m := &wasm.Module{
		Types:               []*wasm.FuncType{sig},
		FunctionTypeIndices: []wasm.Index{0},
		Codes:               []*wasm.Code{{Body: body}},
		Globals: []*wasm.Global{
			{Type: &wasm.GlobalType{ValType: wasm.ValueTypeI32, Mutable: true}, Init: wasm.ConstantExpression{Opcode: wasm.OpcodeI32Const, Data: sleb(0)}},
		},
	}
	fn, err := ir.Validate(m, 0)
	require.NoError(t, err)
	compiled, err := InterpreterTarget{}.Compile(fn)
	require.NoError(t, err)

	inst := &Instance{Functions: []CompiledFunction{compiled}, Globals: []uint64{0}, GlobalMut: []bool{true}}
	res, _, err := inst.Call(0, []uint64{99})
	require.NoError(t, err)
	require.Equal(t, uint64(99), res)
	require.Equal(t, uint64(99), inst.Globals[0])
}

func TestInstantiate_CallIndirectDispatchesThroughTable(t *testing.T) {
	calleeSig := &wasm.FunctionType{Params: []wasm.ValueType{wasm.ValueTypeI32}, Results: []wasm.ValueType{wasm.ValueTypeI32}}
	calleeBody := []byte{
		wasm.OpcodeLocalGet, 0,
		wasm.OpcodeLocalGet, 0,
		wasm.OpcodeI32Add,
		wasm.OpcodeEnd,
	}
	callerBody := []byte{
		wasm.OpcodeLocalGet, 0, // arg
		wasm.OpcodeLocalGet, 1, // table index
		wasm.OpcodeCallIndirect, 0, 0, // type index 0, reserved table byte
		wasm.OpcodeEnd,
	}
	callerSig := &wasm.FunctionType{Params: []wasm.ValueType{wasm.ValueTypeI32, wasm.ValueTypeI32}, Results: []wasm.ValueType{wasm.ValueTypeI32}}

	m := &wasm.Module{
		Types:               []*wasm.FuncType{calleeSig, callerSig},
		FunctionTypeIndices: []wasm.Index{0, 1},
		Codes: []*wasm.Code{
			{Body: calleeBody},
			{Body: callerBody},
		},
		Tables: []*wasm.TableType{{ElemType: wasm.ValueTypeAnyFunc, Limits: wasm.Limits{Min: 1}}},
		Elements: []*wasm.ElementSegment{
			{Offset: wasm.ConstantExpression{Opcode: wasm.OpcodeI32Const, Data: sleb(0)}, Init: []wasm.Index{0}},
		},
		Exports: []*wasm.Export{{Name: "call", Type: wasm.ExternTypeFunc, Index: 1}},
	}
	calleeFn, err := ir.Validate(m, 0)
	require.NoError(t, err)
	callerFn, err := ir.Validate(m, 1)
	require.NoError(t, err)

	inst, err := Instantiate(m, []*ir.Function{calleeFn, callerFn}, InterpreterTarget{}, nil)
	require.NoError(t, err)

	res, _, err := inst.Call(inst.Exports["call"].Index, []uint64{21, 0})
	require.NoError(t, err)
	require.Equal(t, uint64(42), res)
}

func TestInstantiate_CallIndirectUninitializedElementTraps(t *testing.T) {
	calleeSig := &wasm.FunctionType{Params: []wasm.ValueType{wasm.ValueTypeI32}, Results: []wasm.ValueType{wasm.ValueTypeI32}}
	callerSig := &wasm.FunctionType{Params: []wasm.ValueType{wasm.ValueTypeI32}, Results: []wasm.ValueType{wasm.ValueTypeI32}}
	callerBody := []byte{
		wasm.OpcodeI32Const, 0,
		wasm.OpcodeLocalGet, 0,
		wasm.OpcodeCallIndirect, 0, 0,
		wasm.OpcodeEnd,
	}
	m := &wasm.Module{
		Types:               []*wasm.FuncType{calleeSig, callerSig},
		FunctionTypeIndices: []wasm.Index{1},
		Codes:               []*wasm.Code{{Body: callerBody}},
		Tables:              []*wasm.TableType{{ElemType: wasm.ValueTypeAnyFunc, Limits: wasm.Limits{Min: 2}}},
		Exports:             []*wasm.Export{{Name: "call", Type: wasm.ExternTypeFunc, Index: 0}},
	}
	callerFn, err := ir.Validate(m, 0)
	require.NoError(t, err)

	inst, err := Instantiate(m, []*ir.Function{callerFn}, InterpreterTarget{}, nil)
	require.NoError(t, err)

	_, _, err = inst.Call(inst.Exports["call"].Index, []uint64{1})
	require.Error(t, err)
	require.Contains(t, err.Error(), "uninitialized element")
}

func TestInterpreterFunc_I32TruncF32SOutOfRangeTraps(t *testing.T) {
	sig := &wasm.FunctionType{Results: []wasm.ValueType{wasm.ValueTypeI32}}
	body := append([]byte{wasm.OpcodeF32Const}, f32Bytes(1e20)...)
	body = append(body, wasm.OpcodeI32TruncF32S, wasm.OpcodeEnd)
	f := compileBody(t, sig, nil, body)

	_, _, err := f.Call(&Instance{}, nil)
	require.Error(t, err)
	require.Contains(t, err.Error(), "invalid conversion to integer")
}

func TestInterpreterFunc_I32TruncF32SInRange(t *testing.T) {
	sig := &wasm.FunctionType{Results: []wasm.ValueType{wasm.ValueTypeI32}}
	body := append([]byte{wasm.OpcodeF32Const}, f32Bytes(41.9)...)
	body = append(body, wasm.OpcodeI32TruncF32S, wasm.OpcodeEnd)
	f := compileBody(t, sig, nil, body)

	res, _, err := f.Call(&Instance{}, nil)
	require.NoError(t, err)
	require.Equal(t, int32(41), int32(res))
}

// TestInterpreterFunc_GrowMemoryAndCurrentMemory grows linear memory by one
// page, drops memory.grow's previous-page-count result, and returns the new
// total via memory.size.
func TestInterpreterFunc_GrowMemoryAndCurrentMemory(t *testing.T) {
	sig := &wasm.FunctionType{Results: []wasm.ValueType{wasm.ValueTypeI32}}
	body := []byte{
		wasm.OpcodeI32Const, 1,
		wasm.OpcodeMemoryGrow, 0,
		wasm.OpcodeDrop,
		wasm.OpcodeMemorySize, 0,
		wasm.OpcodeEnd,
	}
	max := uint32(4)
	m := &wasm.Module{
		Types:               []*wasm.FuncType{sig},
		FunctionTypeIndices: []wasm.Index{0},
		Codes:               []*wasm.Code{{Body: body}},
		Memories:            []*wasm.Limits{{Min: 1, Max: &max}},
		Exports:             []*wasm.Export{{Name: "grow", Type: wasm.ExternTypeFunc, Index: 0}},
	}
	fn, err := ir.Validate(m, 0)
	require.NoError(t, err)

	inst, err := Instantiate(m, []*ir.Function{fn}, InterpreterTarget{}, nil)
	require.NoError(t, err)

	res, _, err := inst.Call(inst.Exports["grow"].Index, nil)
	require.NoError(t, err)
	require.Equal(t, uint64(2), res)
	require.Equal(t, uint32(2), inst.Memory.PageCount())
}

const blockTypeEmpty = 0x40

package wasm

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSectionIDName(t *testing.T) {
	tests := []struct {
		input    SectionID
		expected string
	}{
		{SectionIDCustom, "custom"},
		{SectionIDType, "type"},
		{SectionIDImport, "import"},
		{SectionIDFunction, "function"},
		{SectionIDTable, "table"},
		{SectionIDMemory, "memory"},
		{SectionIDGlobal, "global"},
		{SectionIDExport, "export"},
		{SectionIDStart, "start"},
		{SectionIDElement, "element"},
		{SectionIDCode, "code"},
		{SectionIDData, "data"},
		{100, "unknown"},
	}
	for _, tc := range tests {
		require.Equal(t, tc.expected, SectionIDName(tc.input))
	}
}

func TestExternTypeName(t *testing.T) {
	tests := []struct {
		input    ExternType
		expected string
	}{
		{ExternTypeFunc, "func"},
		{ExternTypeTable, "table"},
		{ExternTypeMemory, "memory"},
		{ExternTypeGlobal, "global"},
		{100, "0x64"},
	}
	for _, tc := range tests {
		require.Equal(t, tc.expected, ExternTypeName(tc.input))
	}
}

func TestFunctionType_Signature(t *testing.T) {
	tests := []struct {
		ft  *FunctionType
		exp string
	}{
		{&FunctionType{}, "->"},
		{&FunctionType{Params: []ValueType{ValueTypeI32}}, "i->"},
		{&FunctionType{Results: []ValueType{ValueTypeI64}}, "->l"},
		{&FunctionType{
			Params:  []ValueType{ValueTypeI32, ValueTypeI32, ValueTypeF32},
			Results: []ValueType{ValueTypeF64},
		}, "iif->d"},
	}
	for _, tc := range tests {
		require.Equal(t, tc.exp, tc.ft.Signature())
	}
}

func TestFunctionType_EqualTo(t *testing.T) {
	a := &FunctionType{Params: []ValueType{ValueTypeI32}, Results: []ValueType{ValueTypeI64}}
	b := &FunctionType{Params: []ValueType{ValueTypeI32}, Results: []ValueType{ValueTypeI64}}
	c := &FunctionType{Params: []ValueType{ValueTypeI32}}
	require.True(t, a.EqualTo(b))
	require.False(t, a.EqualTo(c))
	require.False(t, a.EqualTo(nil))
}

func TestModule_FunctionIndexSpace(t *testing.T) {
	i32i32_i32 := &FunctionType{Params: []ValueType{ValueTypeI32, ValueTypeI32}, Results: []ValueType{ValueTypeI32}}
	noop := &FunctionType{}
	m := &Module{
		Types: []*FuncType{i32i32_i32, noop},
		Imports: []*Import{
			{Type: ExternTypeFunc, DescFunc: 1},
			{Type: ExternTypeGlobal, DescGlobal: GlobalType{ValType: ValueTypeI32}},
		},
		FunctionTypeIndices: []Index{0, 0},
	}
	require.Equal(t, 1, m.ImportedFunctionCount())
	require.Equal(t, 3, m.FunctionCount())
	require.Equal(t, noop, m.TypeOfFunction(0))
	require.Equal(t, i32i32_i32, m.TypeOfFunction(1))
	require.Equal(t, i32i32_i32, m.TypeOfFunction(2))
	require.Nil(t, m.TypeOfFunction(3))
}

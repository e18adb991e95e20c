package binary

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/oakwasm/oak/internal/wasm"
)

// TestDecodeModule relies on EncodeModule being correct, so that each case
// only needs to state the wasm.Module it expects, not a hand-written byte
// array.
func TestDecodeModule(t *testing.T) {
	i32, f64 := wasm.ValueTypeI32, wasm.ValueTypeF64
	zero := wasm.Index(0)
	maxOne := uint32(1)

	tests := []struct {
		name  string
		input *wasm.Module
	}{
		{name: "empty", input: &wasm.Module{}},
		{
			name: "type section",
			input: &wasm.Module{
				Types: []*wasm.FuncType{
					{},
					{Params: []wasm.ValueType{i32, i32}, Results: []wasm.ValueType{i32}},
				},
			},
		},
		{
			name: "import section, all kinds",
			input: &wasm.Module{
				Types: []*wasm.FuncType{{Params: []wasm.ValueType{i32}, Results: []wasm.ValueType{i32}}},
				Imports: []*wasm.Import{
					{Module: "m", Name: "f", Type: wasm.ExternTypeFunc, DescFunc: 0},
					{Module: "m", Name: "t", Type: wasm.ExternTypeTable,
						DescTable: wasm.TableType{ElemType: wasm.ValueTypeAnyFunc, Limits: wasm.Limits{Min: 1, Max: &maxOne}}},
					{Module: "m", Name: "mem", Type: wasm.ExternTypeMemory, DescMem: wasm.Limits{Min: 1}},
					{Module: "m", Name: "g", Type: wasm.ExternTypeGlobal, DescGlobal: wasm.GlobalType{ValType: f64, Mutable: true}},
				},
			},
		},
		{
			name: "function, table, memory, global, export, code",
			input: &wasm.Module{
				Types:               []*wasm.FuncType{{Params: []wasm.ValueType{i32, i32}, Results: []wasm.ValueType{i32}}},
				FunctionTypeIndices: []wasm.Index{0},
				Tables:              []*wasm.TableType{{ElemType: wasm.ValueTypeAnyFunc, Limits: wasm.Limits{Min: 1}}},
				Memories:            []*wasm.Limits{{Min: 1, Max: &maxOne}},
				Globals: []*wasm.Global{
					{Type: &wasm.GlobalType{ValType: i32, Mutable: false}, Init: encodeI32Const(42)},
				},
				Exports: []*wasm.Export{
					{Name: "add", Type: wasm.ExternTypeFunc, Index: 0},
					{Name: "mem", Type: wasm.ExternTypeMemory, Index: 0},
				},
				Codes: []*wasm.Code{
					{LocalTypes: []wasm.ValueType{i32, i32, f64}, Body: []byte{
						wasm.OpcodeLocalGet, 0, wasm.OpcodeLocalGet, 1, wasm.OpcodeI32Add, wasm.OpcodeEnd,
					}},
				},
			},
		},
		{
			name: "start section",
			input: &wasm.Module{
				Types:               []*wasm.FuncType{{}},
				FunctionTypeIndices: []wasm.Index{0},
				Codes:               []*wasm.Code{{Body: []byte{wasm.OpcodeEnd}}},
				StartFunc:           &zero,
			},
		},
		{
			name: "element and data segments",
			input: &wasm.Module{
				Types:               []*wasm.FuncType{{}},
				FunctionTypeIndices: []wasm.Index{0},
				Codes:               []*wasm.Code{{Body: []byte{wasm.OpcodeEnd}}},
				Tables:              []*wasm.TableType{{ElemType: wasm.ValueTypeAnyFunc, Limits: wasm.Limits{Min: 1}}},
				Memories:            []*wasm.Limits{{Min: 1}},
				Elements: []*wasm.ElementSegment{
					{TableIndex: 0, Offset: encodeI32Const(0), Init: []wasm.Index{0}},
				},
				Data: []*wasm.DataSegment{
					{MemoryIndex: 0, Offset: encodeI32Const(0), Init: []byte("hi")},
				},
			},
		},
		{
			name: "custom section passthrough",
			input: &wasm.Module{
				CustomSections: []*wasm.CustomSection{{Name: "producers", Data: []byte{1, 2, 3}}},
			},
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			encoded := EncodeModule(tc.input)
			decoded, err := DecodeModule(encoded)
			require.NoError(t, err)
			require.Equal(t, tc.input, decoded)
		})
	}
}

func TestDecodeModule_invalidMagic(t *testing.T) {
	_, err := DecodeModule([]byte{0x00, 0x61, 0x73, 0x6c, 0x01, 0, 0, 0})
	require.Error(t, err)
}

func TestDecodeModule_invalidVersion(t *testing.T) {
	_, err := DecodeModule([]byte{0x00, 0x61, 0x73, 0x6d, 0x02, 0, 0, 0})
	require.Error(t, err)
}

func TestDecodeModule_sectionsOutOfOrder(t *testing.T) {
	// An empty code section (id 10) followed by an empty function section
	// (id 3): both are well-formed, so only their order is wrong.
	raw := []byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00}
	raw = append(raw, wasm.SectionIDCode, 0x01, 0x00) // code section first
	raw = append(raw, wasm.SectionIDFunction, 0x01, 0x00)
	_, err := DecodeModule(raw)
	require.Error(t, err)
}

func TestDecodeModule_tableLimitsMaxLessThanMin(t *testing.T) {
	raw := []byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00}
	tablePayload := []byte{0x01, wasm.ValueTypeAnyFunc, 0x01 /* has max */, 0x05 /* min */, 0x01 /* max */}
	raw = append(raw, wasm.SectionIDTable, byte(len(tablePayload)))
	raw = append(raw, tablePayload...)
	_, err := DecodeModule(raw)
	require.Error(t, err)
}

func TestDecodeModule_functionCodeCountMismatch(t *testing.T) {
	m := &wasm.Module{
		Types:               []*wasm.FuncType{{}},
		FunctionTypeIndices: []wasm.Index{0, 0},
		Codes:               []*wasm.Code{{Body: []byte{wasm.OpcodeEnd}}},
	}
	encoded := EncodeModule(m)
	_, err := DecodeModule(encoded)
	require.Error(t, err)
}

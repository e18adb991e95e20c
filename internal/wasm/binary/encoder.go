package binary

import (
	"encoding/binary"

	"github.com/oakwasm/oak/internal/wasm"
)

// EncodeModule serializes m back into an MVP WASM binary. It exists
// primarily so round-trip tests can exercise DecodeModule against known-
// correct input without hand-writing byte arrays; it is not required for
// translation itself, since the core only ever consumes modules, never
// produces them.
func EncodeModule(m *wasm.Module) []byte {
	buf := append([]byte{}, magic[:]...)
	buf = appendU32LE(buf, version)

	if len(m.Types) > 0 {
		buf = appendSection(buf, wasm.SectionIDType, encodeTypeSection(m))
	}
	if len(m.Imports) > 0 {
		buf = appendSection(buf, wasm.SectionIDImport, encodeImportSection(m))
	}
	if len(m.FunctionTypeIndices) > 0 {
		buf = appendSection(buf, wasm.SectionIDFunction, encodeFunctionSection(m))
	}
	if len(m.Tables) > 0 {
		buf = appendSection(buf, wasm.SectionIDTable, encodeTableSection(m))
	}
	if len(m.Memories) > 0 {
		buf = appendSection(buf, wasm.SectionIDMemory, encodeMemorySection(m))
	}
	if len(m.Globals) > 0 {
		buf = appendSection(buf, wasm.SectionIDGlobal, encodeGlobalSection(m))
	}
	if len(m.Exports) > 0 {
		buf = appendSection(buf, wasm.SectionIDExport, encodeExportSection(m))
	}
	if m.StartFunc != nil {
		buf = appendSection(buf, wasm.SectionIDStart, appendVaruint32(nil, *m.StartFunc))
	}
	if len(m.Elements) > 0 {
		buf = appendSection(buf, wasm.SectionIDElement, encodeElementSection(m))
	}
	if len(m.Codes) > 0 {
		buf = appendSection(buf, wasm.SectionIDCode, encodeCodeSection(m))
	}
	if len(m.Data) > 0 {
		buf = appendSection(buf, wasm.SectionIDData, encodeDataSection(m))
	}
	for _, cs := range m.CustomSections {
		payload := appendName(nil, cs.Name)
		payload = append(payload, cs.Data...)
		buf = appendSection(buf, wasm.SectionIDCustom, payload)
	}
	return buf
}

func appendSection(buf []byte, id byte, payload []byte) []byte {
	buf = append(buf, id)
	buf = appendVaruint32(buf, uint32(len(payload)))
	return append(buf, payload...)
}

func appendU32LE(buf []byte, v uint32) []byte {
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], v)
	return append(buf, tmp[:]...)
}

func appendVaruint32(buf []byte, v uint32) []byte {
	return appendVaruint64(buf, uint64(v))
}

func appendVaruint64(buf []byte, v uint64) []byte {
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			buf = append(buf, b|0x80)
		} else {
			buf = append(buf, b)
			return buf
		}
	}
}

func appendVarint64(buf []byte, v int64) []byte {
	more := true
	for more {
		b := byte(v & 0x7f)
		v >>= 7
		if (v == 0 && b&0x40 == 0) || (v == -1 && b&0x40 != 0) {
			more = false
		} else {
			b |= 0x80
		}
		buf = append(buf, b)
	}
	return buf
}

func appendName(buf []byte, s string) []byte {
	buf = appendVaruint32(buf, uint32(len(s)))
	return append(buf, s...)
}

func appendLimits(buf []byte, l wasm.Limits) []byte {
	if l.Max != nil {
		buf = append(buf, 1)
		buf = appendVaruint32(buf, l.Min)
		buf = appendVaruint32(buf, *l.Max)
	} else {
		buf = append(buf, 0)
		buf = appendVaruint32(buf, l.Min)
	}
	return buf
}

func appendConstantExpression(buf []byte, ce wasm.ConstantExpression) []byte {
	buf = append(buf, ce.Opcode)
	buf = append(buf, ce.Data...)
	return append(buf, wasm.OpcodeEnd)
}

func encodeTypeSection(m *wasm.Module) []byte {
	var buf []byte
	buf = appendVaruint32(buf, uint32(len(m.Types)))
	for _, ft := range m.Types {
		buf = append(buf, wasm.ValueTypeFunc)
		buf = appendVaruint32(buf, uint32(len(ft.Params)))
		buf = append(buf, ft.Params...)
		buf = appendVaruint32(buf, uint32(len(ft.Results)))
		buf = append(buf, ft.Results...)
	}
	return buf
}

func encodeImportSection(m *wasm.Module) []byte {
	var buf []byte
	buf = appendVaruint32(buf, uint32(len(m.Imports)))
	for _, imp := range m.Imports {
		buf = appendName(buf, imp.Module)
		buf = appendName(buf, imp.Name)
		buf = append(buf, imp.Type)
		switch imp.Type {
		case wasm.ExternTypeFunc:
			buf = appendVaruint32(buf, imp.DescFunc)
		case wasm.ExternTypeTable:
			buf = append(buf, imp.DescTable.ElemType)
			buf = appendLimits(buf, imp.DescTable.Limits)
		case wasm.ExternTypeMemory:
			buf = appendLimits(buf, imp.DescMem)
		case wasm.ExternTypeGlobal:
			buf = append(buf, imp.DescGlobal.ValType)
			buf = append(buf, boolByte(imp.DescGlobal.Mutable))
		}
	}
	return buf
}

func encodeFunctionSection(m *wasm.Module) []byte {
	var buf []byte
	buf = appendVaruint32(buf, uint32(len(m.FunctionTypeIndices)))
	for _, idx := range m.FunctionTypeIndices {
		buf = appendVaruint32(buf, idx)
	}
	return buf
}

func encodeTableSection(m *wasm.Module) []byte {
	var buf []byte
	buf = appendVaruint32(buf, uint32(len(m.Tables)))
	for _, tt := range m.Tables {
		buf = append(buf, tt.ElemType)
		buf = appendLimits(buf, tt.Limits)
	}
	return buf
}

func encodeMemorySection(m *wasm.Module) []byte {
	var buf []byte
	buf = appendVaruint32(buf, uint32(len(m.Memories)))
	for _, mem := range m.Memories {
		buf = appendLimits(buf, *mem)
	}
	return buf
}

func encodeGlobalSection(m *wasm.Module) []byte {
	var buf []byte
	buf = appendVaruint32(buf, uint32(len(m.Globals)))
	for _, g := range m.Globals {
		buf = append(buf, g.Type.ValType)
		buf = append(buf, boolByte(g.Type.Mutable))
		buf = appendConstantExpression(buf, g.Init)
	}
	return buf
}

func encodeExportSection(m *wasm.Module) []byte {
	var buf []byte
	buf = appendVaruint32(buf, uint32(len(m.Exports)))
	for _, e := range m.Exports {
		buf = appendName(buf, e.Name)
		buf = append(buf, e.Type)
		buf = appendVaruint32(buf, e.Index)
	}
	return buf
}

func encodeElementSection(m *wasm.Module) []byte {
	var buf []byte
	buf = appendVaruint32(buf, uint32(len(m.Elements)))
	for _, seg := range m.Elements {
		buf = appendVaruint32(buf, seg.TableIndex)
		buf = appendConstantExpression(buf, seg.Offset)
		buf = appendVaruint32(buf, uint32(len(seg.Init)))
		for _, idx := range seg.Init {
			buf = appendVaruint32(buf, idx)
		}
	}
	return buf
}

func encodeCodeSection(m *wasm.Module) []byte {
	var buf []byte
	buf = appendVaruint32(buf, uint32(len(m.Codes)))
	for _, c := range m.Codes {
		var body []byte
		// Re-run-length-encode LocalTypes into declarations.
		var runs [][2]interface{}
		for _, t := range c.LocalTypes {
			if len(runs) > 0 && runs[len(runs)-1][1] == t {
				runs[len(runs)-1][0] = runs[len(runs)-1][0].(int) + 1
			} else {
				runs = append(runs, [2]interface{}{1, t})
			}
		}
		body = appendVaruint32(body, uint32(len(runs)))
		for _, run := range runs {
			body = appendVaruint32(body, uint32(run[0].(int)))
			body = append(body, run[1].(wasm.ValueType))
		}
		body = append(body, c.Body...)
		buf = appendVaruint32(buf, uint32(len(body)))
		buf = append(buf, body...)
	}
	return buf
}

func encodeDataSection(m *wasm.Module) []byte {
	var buf []byte
	buf = appendVaruint32(buf, uint32(len(m.Data)))
	for _, d := range m.Data {
		buf = appendVaruint32(buf, d.MemoryIndex)
		buf = appendConstantExpression(buf, d.Offset)
		buf = appendVaruint32(buf, uint32(len(d.Init)))
		buf = append(buf, d.Init...)
	}
	return buf
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}

// encodeI32Const is a convenience used by tests to build ConstantExpression
// payloads without hand-encoding LEB128.
func encodeI32Const(v int32) wasm.ConstantExpression {
	return wasm.ConstantExpression{Opcode: wasm.OpcodeI32Const, Data: appendVarint64(nil, int64(v))}
}

// encodeF64Const mirrors encodeI32Const for f64 initializers, taking the
// raw IEEE-754 bit pattern rather than a Go float.
func encodeF64Const(bits uint64) wasm.ConstantExpression {
	var tmp [8]byte
	binary.LittleEndian.PutUint64(tmp[:], bits)
	return wasm.ConstantExpression{Opcode: wasm.OpcodeF64Const, Data: tmp[:]}
}

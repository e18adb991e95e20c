// Package binary implements the MVP module decoder: it turns a raw WASM
// byte buffer into a wasm.Module, enforcing the binary format's structural
// constraints (magic/version, strict section ordering, index bounds on
// first pass) without yet validating function bodies, which is the
// validator's job (package ir).
//
// Grounded on the corpus's internal/wasm/binary package: the overall
// section-dispatch loop and its round-trip Encode/Decode test strategy are
// kept; the concrete Module shape decoded into is package wasm's, not the
// corpus's internalwasm.
package binary

import (
	"github.com/oakwasm/oak/internal/errs"
	"github.com/oakwasm/oak/internal/reader"
	"github.com/oakwasm/oak/internal/wasm"
)

var magic = [4]byte{0x00, 0x61, 0x73, 0x6d}

const version uint32 = 0x01

// DecodeModule parses data as a WASM MVP binary module. It checks magic,
// version, section ordering, count/size consistency, UTF-8 names, and the
// function section's type indices and the start function index against
// declared counts. Import type indices, export indices and element segment
// function indices are not range-checked here. It does not validate
// function body instruction streams; call the ir package's Validate for that.
func DecodeModule(data []byte) (*wasm.Module, error) {
	r := reader.New(data)

	magicBytes, err := r.ReadBytes(4)
	if err != nil {
		return nil, errs.NewCompileError("decode", 0, "could not read magic number")
	}
	for i, b := range magicBytes {
		if b != magic[i] {
			return nil, errs.NewCompileError("decode", 0, "invalid magic number")
		}
	}

	ver, err := r.ReadU32LE()
	if err != nil {
		return nil, errs.NewCompileError("decode", 4, "could not read version")
	}
	if ver != version {
		return nil, errs.NewCompileError("decode", 4, "unsupported version %d", ver)
	}

	m := &wasm.Module{}
	// lastNonCustom tracks the highest non-custom section id seen, to
	// enforce strict ascending order; custom sections (id 0) may appear
	// anywhere, any number of times.
	lastNonCustom := byte(0)
	seen := map[byte]bool{}

	for r.Remaining() > 0 {
		startOfSection := r.Pos()
		id, err := r.ReadU8()
		if err != nil {
			return nil, err
		}
		size, err := r.ReadVaruint32()
		if err != nil {
			return nil, err
		}
		payloadStart := r.Pos()
		payloadEnd := payloadStart + int(size)
		if payloadEnd > r.Len() {
			return nil, errs.NewCompileError("decode", startOfSection, "section %d size %d overruns module", id, size)
		}
		payload, err := r.ReadBytes(int(size))
		if err != nil {
			return nil, err
		}
		sr := reader.New(payload)

		if id == wasm.SectionIDCustom {
			cs, err := decodeCustomSection(sr)
			if err != nil {
				return nil, err
			}
			m.CustomSections = append(m.CustomSections, cs)
			continue
		}

		if id <= lastNonCustom || id > wasm.SectionIDData {
			return nil, errs.NewCompileError("decode", startOfSection, "section %s out of order", wasm.SectionIDName(id))
		}
		if seen[id] {
			return nil, errs.NewCompileError("decode", startOfSection, "duplicate %s section", wasm.SectionIDName(id))
		}
		seen[id] = true
		lastNonCustom = id

		if err := decodeSection(id, sr, m); err != nil {
			return nil, err
		}
		if sr.Remaining() != 0 {
			return nil, errs.NewCompileError("decode", startOfSection, "%s section has %d trailing bytes", wasm.SectionIDName(id), sr.Remaining())
		}
	}

	if len(m.Codes) != len(m.FunctionTypeIndices) {
		return nil, errs.NewCompileError("decode", r.Pos(), "function and code section counts disagree (%d vs %d)", len(m.FunctionTypeIndices), len(m.Codes))
	}
	return m, nil
}

func decodeSection(id byte, r *reader.Reader, m *wasm.Module) error {
	switch id {
	case wasm.SectionIDType:
		return decodeTypeSection(r, m)
	case wasm.SectionIDImport:
		return decodeImportSection(r, m)
	case wasm.SectionIDFunction:
		return decodeFunctionSection(r, m)
	case wasm.SectionIDTable:
		return decodeTableSection(r, m)
	case wasm.SectionIDMemory:
		return decodeMemorySection(r, m)
	case wasm.SectionIDGlobal:
		return decodeGlobalSection(r, m)
	case wasm.SectionIDExport:
		return decodeExportSection(r, m)
	case wasm.SectionIDStart:
		return decodeStartSection(r, m)
	case wasm.SectionIDElement:
		return decodeElementSection(r, m)
	case wasm.SectionIDCode:
		return decodeCodeSection(r, m)
	case wasm.SectionIDData:
		return decodeDataSection(r, m)
	}
	return errs.NewCompileError("decode", 0, "unknown section id %d", id)
}

func decodeCustomSection(r *reader.Reader) (*wasm.CustomSection, error) {
	name, err := decodeName(r)
	if err != nil {
		return nil, err
	}
	data, err := r.ReadBytes(r.Remaining())
	if err != nil {
		return nil, err
	}
	return &wasm.CustomSection{Name: name, Data: append([]byte(nil), data...)}, nil
}

func decodeName(r *reader.Reader) (string, error) {
	n, err := r.ReadVaruint32()
	if err != nil {
		return "", err
	}
	b, err := r.ReadBytes(int(n))
	if err != nil {
		return "", err
	}
	if !isValidUTF8(b) {
		return "", errs.NewCompileError("decode", r.Pos(), "name is not valid UTF-8")
	}
	return string(b), nil
}

func isValidUTF8(b []byte) bool {
	for i := 0; i < len(b); {
		c := b[i]
		var n int
		switch {
		case c&0x80 == 0:
			n = 1
		case c&0xe0 == 0xc0:
			n = 2
		case c&0xf0 == 0xe0:
			n = 3
		case c&0xf8 == 0xf0:
			n = 4
		default:
			return false
		}
		if i+n > len(b) {
			return false
		}
		for j := 1; j < n; j++ {
			if b[i+j]&0xc0 != 0x80 {
				return false
			}
		}
		i += n
	}
	return true
}

func decodeValueType(r *reader.Reader) (wasm.ValueType, error) {
	b, err := r.ReadU8()
	if err != nil {
		return 0, err
	}
	switch b {
	case wasm.ValueTypeI32, wasm.ValueTypeI64, wasm.ValueTypeF32, wasm.ValueTypeF64:
		return b, nil
	}
	return 0, errs.NewCompileError("decode", r.Pos()-1, "invalid value type 0x%x", b)
}

func decodeLimits(r *reader.Reader, maxAllowed uint32) (wasm.Limits, error) {
	flag, err := r.ReadVaruint1()
	if err != nil {
		return wasm.Limits{}, err
	}
	min, err := r.ReadVaruint32()
	if err != nil {
		return wasm.Limits{}, err
	}
	l := wasm.Limits{Min: min}
	if flag == 1 {
		max, err := r.ReadVaruint32()
		if err != nil {
			return wasm.Limits{}, err
		}
		if max < min {
			return wasm.Limits{}, errs.NewCompileError("decode", r.Pos(), "limits maximum %d less than minimum %d", max, min)
		}
		l.Max = &max
	}
	if min > maxAllowed || (l.Max != nil && *l.Max > maxAllowed) {
		return wasm.Limits{}, errs.NewCompileError("decode", r.Pos(), "limits exceed allowed maximum %d", maxAllowed)
	}
	return l, nil
}

func decodeConstantExpression(r *reader.Reader) (wasm.ConstantExpression, error) {
	op, err := r.ReadU8()
	if err != nil {
		return wasm.ConstantExpression{}, err
	}
	start := r.Pos()
	switch op {
	case wasm.OpcodeI32Const:
		if _, err := r.ReadVarint32(); err != nil {
			return wasm.ConstantExpression{}, err
		}
	case wasm.OpcodeI64Const:
		if _, err := r.ReadVarint64(); err != nil {
			return wasm.ConstantExpression{}, err
		}
	case wasm.OpcodeF32Const:
		if _, err := r.ReadF32LE(); err != nil {
			return wasm.ConstantExpression{}, err
		}
	case wasm.OpcodeF64Const:
		if _, err := r.ReadF64LE(); err != nil {
			return wasm.ConstantExpression{}, err
		}
	case wasm.OpcodeGlobalGet:
		if _, err := r.ReadVaruint32(); err != nil {
			return wasm.ConstantExpression{}, err
		}
	default:
		return wasm.ConstantExpression{}, errs.NewCompileError("decode", start-1, "invalid constant expression opcode 0x%x", op)
	}
	data := append([]byte(nil), r.BytesFrom(start)...)
	end, err := r.ReadU8()
	if err != nil {
		return wasm.ConstantExpression{}, err
	}
	if end != wasm.OpcodeEnd {
		return wasm.ConstantExpression{}, errs.NewCompileError("decode", r.Pos()-1, "constant expression missing end opcode")
	}
	return wasm.ConstantExpression{Opcode: op, Data: data}, nil
}

func decodeTypeSection(r *reader.Reader, m *wasm.Module) error {
	count, err := r.ReadVaruint32()
	if err != nil {
		return err
	}
	m.Types = make([]*wasm.FuncType, count)
	for i := range m.Types {
		tag, err := r.ReadU8()
		if err != nil {
			return err
		}
		if tag != wasm.ValueTypeFunc {
			return errs.NewCompileError("decode", r.Pos()-1, "invalid function type tag 0x%x", tag)
		}
		numParams, err := r.ReadVaruint32()
		if err != nil {
			return err
		}
		var params []wasm.ValueType
		if numParams > 0 {
			params = make([]wasm.ValueType, numParams)
		}
		for j := range params {
			if params[j], err = decodeValueType(r); err != nil {
				return err
			}
		}
		numResults, err := r.ReadVaruint32()
		if err != nil {
			return err
		}
		if numResults > 1 {
			return errs.NewCompileError("decode", r.Pos(), "function type has %d results, MVP allows at most 1", numResults)
		}
		var results []wasm.ValueType
		if numResults > 0 {
			results = make([]wasm.ValueType, numResults)
		}
		for j := range results {
			if results[j], err = decodeValueType(r); err != nil {
				return err
			}
		}
		m.Types[i] = &wasm.FuncType{Params: params, Results: results}
	}
	return nil
}

func decodeImportSection(r *reader.Reader, m *wasm.Module) error {
	count, err := r.ReadVaruint32()
	if err != nil {
		return err
	}
	m.Imports = make([]*wasm.Import, count)
	for i := range m.Imports {
		mod, err := decodeName(r)
		if err != nil {
			return err
		}
		name, err := decodeName(r)
		if err != nil {
			return err
		}
		kind, err := r.ReadU8()
		if err != nil {
			return err
		}
		imp := &wasm.Import{Module: mod, Name: name, Type: kind}
		switch kind {
		case wasm.ExternTypeFunc:
			if imp.DescFunc, err = r.ReadVaruint32(); err != nil {
				return err
			}
		case wasm.ExternTypeTable:
			elemType, err := r.ReadU8()
			if err != nil {
				return err
			}
			if elemType != wasm.ValueTypeAnyFunc {
				return errs.NewCompileError("decode", r.Pos()-1, "invalid table element type 0x%x", elemType)
			}
			limits, err := decodeLimits(r, 0xffffffff)
			if err != nil {
				return err
			}
			imp.DescTable = wasm.TableType{ElemType: elemType, Limits: limits}
		case wasm.ExternTypeMemory:
			limits, err := decodeLimits(r, wasm.MemoryMaxPages)
			if err != nil {
				return err
			}
			imp.DescMem = limits
		case wasm.ExternTypeGlobal:
			valType, err := decodeValueType(r)
			if err != nil {
				return err
			}
			mutFlag, err := r.ReadVaruint1()
			if err != nil {
				return err
			}
			imp.DescGlobal = wasm.GlobalType{ValType: valType, Mutable: mutFlag == 1}
		default:
			return errs.NewCompileError("decode", r.Pos()-1, "invalid import kind 0x%x", kind)
		}
		m.Imports[i] = imp
	}
	return nil
}

func decodeFunctionSection(r *reader.Reader, m *wasm.Module) error {
	count, err := r.ReadVaruint32()
	if err != nil {
		return err
	}
	m.FunctionTypeIndices = make([]wasm.Index, count)
	for i := range m.FunctionTypeIndices {
		idx, err := r.ReadVaruint32()
		if err != nil {
			return err
		}
		if int(idx) >= len(m.Types) {
			return errs.NewCompileError("decode", r.Pos(), "function type index %d out of range", idx)
		}
		m.FunctionTypeIndices[i] = idx
	}
	return nil
}

func decodeTableSection(r *reader.Reader, m *wasm.Module) error {
	count, err := r.ReadVaruint32()
	if err != nil {
		return err
	}
	if count > 1 {
		return errs.NewCompileError("decode", r.Pos(), "MVP allows at most one table, got %d", count)
	}
	m.Tables = make([]*wasm.TableType, count)
	for i := range m.Tables {
		elemType, err := r.ReadU8()
		if err != nil {
			return err
		}
		if elemType != wasm.ValueTypeAnyFunc {
			return errs.NewCompileError("decode", r.Pos()-1, "invalid table element type 0x%x", elemType)
		}
		limits, err := decodeLimits(r, 0xffffffff)
		if err != nil {
			return err
		}
		m.Tables[i] = &wasm.TableType{ElemType: elemType, Limits: limits}
	}
	return nil
}

func decodeMemorySection(r *reader.Reader, m *wasm.Module) error {
	count, err := r.ReadVaruint32()
	if err != nil {
		return err
	}
	if count > 1 {
		return errs.NewCompileError("decode", r.Pos(), "MVP allows at most one memory, got %d", count)
	}
	m.Memories = make([]*wasm.Limits, count)
	for i := range m.Memories {
		limits, err := decodeLimits(r, wasm.MemoryMaxPages)
		if err != nil {
			return err
		}
		m.Memories[i] = &limits
	}
	return nil
}

func decodeGlobalSection(r *reader.Reader, m *wasm.Module) error {
	count, err := r.ReadVaruint32()
	if err != nil {
		return err
	}
	m.Globals = make([]*wasm.Global, count)
	for i := range m.Globals {
		valType, err := decodeValueType(r)
		if err != nil {
			return err
		}
		mutFlag, err := r.ReadVaruint1()
		if err != nil {
			return err
		}
		init, err := decodeConstantExpression(r)
		if err != nil {
			return err
		}
		m.Globals[i] = &wasm.Global{
			Type: &wasm.GlobalType{ValType: valType, Mutable: mutFlag == 1},
			Init: init,
		}
	}
	return nil
}

func decodeExportSection(r *reader.Reader, m *wasm.Module) error {
	count, err := r.ReadVaruint32()
	if err != nil {
		return err
	}
	seen := map[string]bool{}
	m.Exports = make([]*wasm.Export, count)
	for i := range m.Exports {
		name, err := decodeName(r)
		if err != nil {
			return err
		}
		if seen[name] {
			return errs.NewCompileError("decode", r.Pos(), "duplicate export name %q", name)
		}
		seen[name] = true
		kind, err := r.ReadU8()
		if err != nil {
			return err
		}
		idx, err := r.ReadVaruint32()
		if err != nil {
			return err
		}
		m.Exports[i] = &wasm.Export{Name: name, Type: kind, Index: idx}
	}
	return nil
}

func decodeStartSection(r *reader.Reader, m *wasm.Module) error {
	idx, err := r.ReadVaruint32()
	if err != nil {
		return err
	}
	if int(idx) >= m.FunctionCount() {
		return errs.NewCompileError("decode", r.Pos(), "start function index %d out of range", idx)
	}
	// The start function's signature is checked here, at decode time, even
	// though it only runs at instantiation: the function and type sections
	// (and any import section) are already fully decoded by this point in
	// the binary, since the start section is required to follow them.
	ft := m.TypeOfFunction(idx)
	if ft == nil || len(ft.Params) != 0 || len(ft.Results) != 0 {
		return errs.NewCompileError("decode", r.Pos(), "start function %d must have signature ()->()", idx)
	}
	m.StartFunc = &idx
	return nil
}

func decodeElementSection(r *reader.Reader, m *wasm.Module) error {
	count, err := r.ReadVaruint32()
	if err != nil {
		return err
	}
	m.Elements = make([]*wasm.ElementSegment, count)
	for i := range m.Elements {
		tableIdx, err := r.ReadVaruint32()
		if err != nil {
			return err
		}
		offset, err := decodeConstantExpression(r)
		if err != nil {
			return err
		}
		n, err := r.ReadVaruint32()
		if err != nil {
			return err
		}
		init := make([]wasm.Index, n)
		for j := range init {
			if init[j], err = r.ReadVaruint32(); err != nil {
				return err
			}
		}
		m.Elements[i] = &wasm.ElementSegment{TableIndex: tableIdx, Offset: offset, Init: init}
	}
	return nil
}

func decodeCodeSection(r *reader.Reader, m *wasm.Module) error {
	count, err := r.ReadVaruint32()
	if err != nil {
		return err
	}
	m.Codes = make([]*wasm.Code, count)
	for i := range m.Codes {
		bodySize, err := r.ReadVaruint32()
		if err != nil {
			return err
		}
		bodyStart := r.Pos()
		bodyEnd := bodyStart + int(bodySize)
		numLocalDecls, err := r.ReadVaruint32()
		if err != nil {
			return err
		}
		var localTypes []wasm.ValueType
		var totalLocals uint64
		for j := uint32(0); j < numLocalDecls; j++ {
			n, err := r.ReadVaruint32()
			if err != nil {
				return err
			}
			totalLocals += uint64(n)
			if totalLocals > 0x100000000 {
				return errs.NewCompileError("decode", r.Pos(), "too many locals declared")
			}
			t, err := decodeValueType(r)
			if err != nil {
				return err
			}
			for k := uint32(0); k < n; k++ {
				localTypes = append(localTypes, t)
			}
		}
		remaining := bodyEnd - r.Pos()
		if remaining < 0 {
			return errs.NewCompileError("decode", bodyStart, "code entry local declarations overrun body size")
		}
		body, err := r.ReadBytes(remaining)
		if err != nil {
			return err
		}
		m.Codes[i] = &wasm.Code{LocalTypes: localTypes, Body: append([]byte(nil), body...)}
	}
	return nil
}

func decodeDataSection(r *reader.Reader, m *wasm.Module) error {
	count, err := r.ReadVaruint32()
	if err != nil {
		return err
	}
	m.Data = make([]*wasm.DataSegment, count)
	for i := range m.Data {
		memIdx, err := r.ReadVaruint32()
		if err != nil {
			return err
		}
		offset, err := decodeConstantExpression(r)
		if err != nil {
			return err
		}
		n, err := r.ReadVaruint32()
		if err != nil {
			return err
		}
		init, err := r.ReadBytes(int(n))
		if err != nil {
			return err
		}
		m.Data[i] = &wasm.DataSegment{MemoryIndex: memIdx, Offset: offset, Init: append([]byte(nil), init...)}
	}
	return nil
}

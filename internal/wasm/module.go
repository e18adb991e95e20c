package wasm

// ConstantExpression is a constant initializer expression, as used for
// global initializers and element/data segment offsets. The MVP grammar
// restricts these to a single const or global.get instruction followed by
// end; Data and Opcode are kept raw (undecoded) here because the few
// instructions permitted are re-decoded by the component that consumes
// them: the lowering package evaluates global initializers and
// element/data segment offsets at instantiation.
type ConstantExpression struct {
	Opcode Opcode
	Data   []byte
}

// FuncType is a type-section entry: the type tag byte (always
// ValueTypeFunc) is implicit and not stored.
type FuncType = FunctionType

// Import describes one import-section entry. Exactly one of the Desc*
// fields is populated, selected by Type.
type Import struct {
	Module string
	Name   string
	Type   ExternType

	DescFunc   Index // index into the module's type section
	DescTable  TableType
	DescMem    Limits
	DescGlobal GlobalType
}

// TableType describes a table's element type and size limits. MVP has
// exactly one element type, anyfunc.
type TableType struct {
	ElemType ValueType
	Limits   Limits
}

// GlobalType describes a global's value type and mutability.
type GlobalType struct {
	ValType ValueType
	Mutable bool
}

// Global is a global-section entry: a type plus its constant initializer.
type Global struct {
	Type *GlobalType
	Init ConstantExpression
}

// Export describes one export-section entry.
type Export struct {
	Name  string
	Type  ExternType
	Index Index
}

// ElementSegment initializes a contiguous run of a table's entries with
// function indices, evaluated at instantiation time.
type ElementSegment struct {
	TableIndex Index
	Offset     ConstantExpression
	Init       []Index // function indices
}

// DataSegment initializes a contiguous run of linear memory with bytes,
// evaluated at instantiation time.
type DataSegment struct {
	MemoryIndex Index
	Offset      ConstantExpression
	Init        []byte
}

// Code is a code-section entry: a function body's declared local types
// (beyond its parameters) and its raw, undecoded instruction bytes. The
// function validator (package ir) decodes Body against the function's
// FuncType and LocalTypes.
type Code struct {
	LocalTypes []ValueType
	Body       []byte
}

// CustomSection is a passthrough custom section: opaque to validation,
// carried from input to output unchanged.
type CustomSection struct {
	Name string
	Data []byte
}

// Module is the fully decoded, but not yet validated or lowered, contents
// of one WASM binary: the output of the module decoder (package binary)
// and the input to the function validator (package ir).
//
// Index spaces: imported functions/tables/memories/globals occupy the low
// end of their respective index space, followed by module-defined ones, in
// declaration order, per the binary format's index-space construction rule.
type Module struct {
	Types   []*FuncType
	Imports []*Import

	// FunctionTypeIndices[i] is the type-section index of the i-th
	// module-defined function (not counting imported functions), parallel
	// to Codes.
	FunctionTypeIndices []Index
	Tables              []*TableType
	Memories            []*Limits
	Globals             []*Global
	Exports             []*Export

	// StartFunc is the index of the start function, or nil if absent.
	StartFunc *Index

	Elements []*ElementSegment
	Codes    []*Code
	Data     []*DataSegment

	// DataCount, if non-nil, is the declared value of a data count
	// section. The MVP core spec does not include this section; it is
	// carried here only so a decoder extension can populate it without a
	// shape change. Absent in strict-MVP modules.
	DataCount *uint32

	CustomSections []*CustomSection
}

// ImportedFunctionCount returns the number of entries in Imports with
// Type == ExternTypeFunc, i.e. the size of the function index space's
// imported prefix.
func (m *Module) ImportedFunctionCount() int {
	n := 0
	for _, imp := range m.Imports {
		if imp.Type == ExternTypeFunc {
			n++
		}
	}
	return n
}

// ImportedTableCount returns the number of imported tables.
func (m *Module) ImportedTableCount() int {
	n := 0
	for _, imp := range m.Imports {
		if imp.Type == ExternTypeTable {
			n++
		}
	}
	return n
}

// ImportedMemoryCount returns the number of imported memories.
func (m *Module) ImportedMemoryCount() int {
	n := 0
	for _, imp := range m.Imports {
		if imp.Type == ExternTypeMemory {
			n++
		}
	}
	return n
}

// ImportedGlobalCount returns the number of imported globals.
func (m *Module) ImportedGlobalCount() int {
	n := 0
	for _, imp := range m.Imports {
		if imp.Type == ExternTypeGlobal {
			n++
		}
	}
	return n
}

// FunctionCount returns the total size of the function index space:
// imported functions followed by module-defined ones.
func (m *Module) FunctionCount() int {
	return m.ImportedFunctionCount() + len(m.FunctionTypeIndices)
}

// TypeOfFunction returns the FuncType of the funcidx-th function in the
// function index space, covering both imported and module-defined
// functions, or nil if funcidx is out of range.
func (m *Module) TypeOfFunction(funcidx Index) *FuncType {
	importedFuncs := 0
	for _, imp := range m.Imports {
		if imp.Type != ExternTypeFunc {
			continue
		}
		if Index(importedFuncs) == funcidx {
			if int(imp.DescFunc) >= len(m.Types) {
				return nil
			}
			return m.Types[imp.DescFunc]
		}
		importedFuncs++
	}
	localIdx := int(funcidx) - importedFuncs
	if localIdx < 0 || localIdx >= len(m.FunctionTypeIndices) {
		return nil
	}
	typeIdx := m.FunctionTypeIndices[localIdx]
	if int(typeIdx) >= len(m.Types) {
		return nil
	}
	return m.Types[typeIdx]
}

package lower

import (
	"github.com/oakwasm/oak/internal/errs"
	"github.com/oakwasm/oak/internal/ir"
	"github.com/oakwasm/oak/internal/reader"
	"github.com/oakwasm/oak/internal/rt"
	"github.com/oakwasm/oak/internal/wasm"
)

// TableEntry is one slot of a table. FuncIndex is -1 for an uninitialized
// (never written) slot, matching call_indirect's "uninitialized element"
// trap condition.
type TableEntry struct {
	FuncIndex int32
}

// ExportValue names one export by kind and its index into the
// corresponding space (Functions, the Table, Globals, or the single
// Memory).
type ExportValue struct {
	Kind  wasm.ExternType
	Index uint32
}

// Instance is a running module: its linear memory, table, globals, and
// the full function index space (imported functions first, per the
// binary format's index-space construction rule), plus the export
// namespace built from the module's export section.
type Instance struct {
	Memory    *rt.Memory
	Table     []TableEntry
	Globals   []uint64
	GlobalMut []bool
	Functions []CompiledFunction
	Sigs      []string
	Exports   map[string]ExportValue
}

// Call invokes the funcIdx-th function in the function index space.
func (inst *Instance) Call(funcIdx uint32, args []uint64) (uint64, bool, error) {
	return inst.Functions[funcIdx].Call(inst, args)
}

// ImportResolver supplies the concrete values bound to a module's import
// section, looked up by module/name. Implementations are free to back
// ResolveFunction with a host function, another instance's export, or
// anything else that satisfies CompiledFunction.
type ImportResolver interface {
	ResolveFunction(module, name string, sig *wasm.FunctionType) (CompiledFunction, error)
	ResolveMemory(module, name string, limits wasm.Limits) (*rt.Memory, error)
	ResolveTable(module, name string, tableType wasm.TableType) ([]TableEntry, error)
	ResolveGlobal(module, name string, globalType wasm.GlobalType) (uint64, error)
}

// Instantiate links m against target and imports, producing a running
// Instance. Element and data segment writes are staged into scratch
// copies first and committed only once every segment in the module is
// confirmed in-bounds, so a single out-of-bounds segment can never leave
// a partially-initialized instance (one failure aborts instantiation
// entirely, with no partial memory/table writes observable).
func Instantiate(m *wasm.Module, fns []*ir.Function, target Target, imports ImportResolver) (*Instance, error) {
	inst := &Instance{Exports: map[string]ExportValue{}}

	if err := resolveImportedFunctions(m, inst, imports); err != nil {
		return nil, err
	}
	if err := compileDefinedFunctions(fns, target, inst); err != nil {
		return nil, err
	}
	if err := resolveMemory(m, inst, imports); err != nil {
		return nil, err
	}
	if err := resolveTable(m, inst, imports); err != nil {
		return nil, err
	}
	if err := resolveGlobals(m, inst, imports); err != nil {
		return nil, err
	}

	stagedTable, err := stageElementSegments(m, inst)
	if err != nil {
		return nil, err
	}
	stagedData, err := stageDataSegments(m, inst)
	if err != nil {
		return nil, err
	}
	for tableIdx, entries := range stagedTable {
		copy(inst.Table[tableIdx:], entries)
	}
	for _, sd := range stagedData {
		copy(inst.Memory.Bytes()[sd.offset:], sd.bytes)
	}

	buildExports(m, inst)

	if m.StartFunc != nil {
		if _, _, err := inst.Call(*m.StartFunc, nil); err != nil {
			return nil, err
		}
	}
	return inst, nil
}

func resolveImportedFunctions(m *wasm.Module, inst *Instance, imports ImportResolver) error {
	for _, imp := range m.Imports {
		if imp.Type != wasm.ExternTypeFunc {
			continue
		}
		if int(imp.DescFunc) >= len(m.Types) {
			return errs.NewLinkError("import %s.%s: type index %d out of range", imp.Module, imp.Name, imp.DescFunc)
		}
		sig := m.Types[imp.DescFunc]
		fn, err := imports.ResolveFunction(imp.Module, imp.Name, sig)
		if err != nil {
			return errs.NewLinkError("resolving import %s.%s: %v", imp.Module, imp.Name, err)
		}
		inst.Functions = append(inst.Functions, fn)
		inst.Sigs = append(inst.Sigs, sig.Signature())
	}
	return nil
}

func compileDefinedFunctions(fns []*ir.Function, target Target, inst *Instance) error {
	for _, fn := range fns {
		compiled, err := target.Compile(fn)
		if err != nil {
			return errs.NewLinkError("compiling function: %v", err)
		}
		inst.Functions = append(inst.Functions, compiled)
		inst.Sigs = append(inst.Sigs, fn.Signature.Signature())
	}
	return nil
}

func resolveMemory(m *wasm.Module, inst *Instance, imports ImportResolver) error {
	for _, imp := range m.Imports {
		if imp.Type != wasm.ExternTypeMemory {
			continue
		}
		mem, err := imports.ResolveMemory(imp.Module, imp.Name, imp.DescMem)
		if err != nil {
			return errs.NewLinkError("resolving imported memory %s.%s: %v", imp.Module, imp.Name, err)
		}
		inst.Memory = mem
	}
	if len(m.Memories) > 0 {
		lim := m.Memories[0]
		hasMax := lim.Max != nil
		var max uint32
		if hasMax {
			max = *lim.Max
		}
		inst.Memory = rt.NewMemory(lim.Min, max, hasMax)
	}
	return nil
}

func resolveTable(m *wasm.Module, inst *Instance, imports ImportResolver) error {
	for _, imp := range m.Imports {
		if imp.Type != wasm.ExternTypeTable {
			continue
		}
		entries, err := imports.ResolveTable(imp.Module, imp.Name, imp.DescTable)
		if err != nil {
			return errs.NewLinkError("resolving imported table %s.%s: %v", imp.Module, imp.Name, err)
		}
		inst.Table = entries
	}
	if len(m.Tables) > 0 {
		size := m.Tables[0].Limits.Min
		entries := make([]TableEntry, size)
		for i := range entries {
			entries[i].FuncIndex = -1
		}
		inst.Table = entries
	}
	return nil
}

func resolveGlobals(m *wasm.Module, inst *Instance, imports ImportResolver) error {
	for _, imp := range m.Imports {
		if imp.Type != wasm.ExternTypeGlobal {
			continue
		}
		v, err := imports.ResolveGlobal(imp.Module, imp.Name, imp.DescGlobal)
		if err != nil {
			return errs.NewLinkError("resolving imported global %s.%s: %v", imp.Module, imp.Name, err)
		}
		inst.Globals = append(inst.Globals, v)
		inst.GlobalMut = append(inst.GlobalMut, imp.DescGlobal.Mutable)
	}
	for _, g := range m.Globals {
		v, err := evalConstExpr(g.Init, inst)
		if err != nil {
			return err
		}
		inst.Globals = append(inst.Globals, v)
		inst.GlobalMut = append(inst.GlobalMut, g.Type.Mutable)
	}
	return nil
}

func stageElementSegments(m *wasm.Module, inst *Instance) (map[uint32][]TableEntry, error) {
	staged := map[uint32][]TableEntry{}
	for _, seg := range m.Elements {
		offsetV, err := evalConstExpr(seg.Offset, inst)
		if err != nil {
			return nil, err
		}
		offset := uint32(offsetV)
		end := uint64(offset) + uint64(len(seg.Init))
		if int(seg.TableIndex) >= 1 || end > uint64(len(inst.Table)) {
			return nil, errs.NewLinkError("element segment out of bounds for table %d", seg.TableIndex)
		}
		entries := make([]TableEntry, len(seg.Init))
		for i, fnIdx := range seg.Init {
			entries[i] = TableEntry{FuncIndex: int32(fnIdx)}
		}
		staged[offset] = entries
	}
	return staged, nil
}

type stagedData struct {
	offset uint64
	bytes  []byte
}

func stageDataSegments(m *wasm.Module, inst *Instance) ([]stagedData, error) {
	var staged []stagedData
	for _, seg := range m.Data {
		offsetV, err := evalConstExpr(seg.Offset, inst)
		if err != nil {
			return nil, err
		}
		offset := uint64(uint32(offsetV))
		end := offset + uint64(len(seg.Init))
		memLen := uint64(0)
		if inst.Memory != nil {
			memLen = uint64(inst.Memory.ByteLen())
		}
		if end > memLen {
			return nil, errs.NewLinkError("data segment out of bounds for memory %d", seg.MemoryIndex)
		}
		staged = append(staged, stagedData{offset: offset, bytes: seg.Init})
	}
	return staged, nil
}

func buildExports(m *wasm.Module, inst *Instance) {
	for _, exp := range m.Exports {
		inst.Exports[exp.Name] = ExportValue{Kind: exp.Type, Index: exp.Index}
	}
}

// evalConstExpr re-decodes the one instruction a constant expression may
// contain (i32.const/i64.const/f32.const/f64.const/global.get), per the
// MVP grammar restricting initializer expressions to a single const or
// global.get followed by end. The module decoder stores these raw and
// undecoded for exactly this reason: only the consumer knows whether it
// needs the value before the rest of the module (globals) or interleaved
// with table/memory resolution (segment offsets).
func evalConstExpr(ce wasm.ConstantExpression, inst *Instance) (uint64, error) {
	r := reader.New(ce.Data)
	switch ce.Opcode {
	case wasm.OpcodeI32Const:
		v, err := r.ReadVarint32()
		if err != nil {
			return 0, errs.NewLinkError("decoding i32.const initializer: %v", err)
		}
		return uint64(uint32(v)), nil
	case wasm.OpcodeI64Const:
		v, err := r.ReadVarint64()
		if err != nil {
			return 0, errs.NewLinkError("decoding i64.const initializer: %v", err)
		}
		return uint64(v), nil
	case wasm.OpcodeF32Const:
		v, err := r.ReadF32LE()
		if err != nil {
			return 0, errs.NewLinkError("decoding f32.const initializer: %v", err)
		}
		return uint64(v), nil
	case wasm.OpcodeF64Const:
		v, err := r.ReadF64LE()
		if err != nil {
			return 0, errs.NewLinkError("decoding f64.const initializer: %v", err)
		}
		return v, nil
	case wasm.OpcodeGlobalGet:
		idx, err := r.ReadVaruint32()
		if err != nil {
			return 0, errs.NewLinkError("decoding global.get initializer: %v", err)
		}
		if int(idx) >= len(inst.Globals) {
			return 0, errs.NewLinkError("global.get initializer index %d out of range", idx)
		}
		return inst.Globals[idx], nil
	}
	return 0, errs.NewLinkError("unsupported constant expression opcode 0x%x", ce.Opcode)
}

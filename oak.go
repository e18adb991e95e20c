// Package oak is the embedder-facing seam between this repo's decode,
// validate, and lowering pipeline and the api package's pure interfaces.
// Core wires components A-F together behind three operations: Validate,
// Compile, Instantiate.
package oak

import (
	"github.com/oakwasm/oak/api"
	"github.com/oakwasm/oak/internal/ir"
	"github.com/oakwasm/oak/internal/lower"
	"github.com/oakwasm/oak/internal/rt"
	"github.com/oakwasm/oak/internal/wasm"
	"github.com/oakwasm/oak/internal/wasm/binary"
)

// CompiledModule is a decoded and validated module, ready to instantiate.
type CompiledModule struct {
	module *wasm.Module
	funcs  []*ir.Function
	target lower.Target
}

// Core is the seam between this repo's decode/validate/lower pipeline and
// the embedder-facing operations spec.md §6 assigns to "the external
// collaborator": Validate, Compile, and Instantiate are function-typed
// fields rather than methods so an embedder can swap in its own policy
// (e.g. caching Compile's result, or a Validate that also records
// diagnostics) without wrapping Core in an interface.
type Core struct {
	// Validate decodes bytes and validates every function, reporting
	// true iff no CompileError was raised. The sole operation that
	// recovers a CompileError into a bool instead of propagating it.
	Validate func(wasmBytes []byte) bool

	// Compile decodes and validates bytes, returning a *CompiledModule
	// or the first *errs.CompileError encountered.
	Compile func(wasmBytes []byte) (*CompiledModule, error)

	// Instantiate links cm against imports, runs its start function if
	// any, and returns the resulting export namespace.
	Instantiate func(cm *CompiledModule, imports lower.ImportResolver) (api.Module, error)
}

// NewCore builds a Core backed by target. A nil target defaults to
// lower.InterpreterTarget{}.
func NewCore(target lower.Target) *Core {
	if target == nil {
		target = lower.InterpreterTarget{}
	}
	c := &Core{}
	c.Compile = func(wasmBytes []byte) (*CompiledModule, error) {
		m, fns, err := decodeAndValidate(wasmBytes)
		if err != nil {
			return nil, err
		}
		return &CompiledModule{module: m, funcs: fns, target: target}, nil
	}
	c.Validate = func(wasmBytes []byte) bool {
		_, _, err := decodeAndValidate(wasmBytes)
		return err == nil
	}
	c.Instantiate = func(cm *CompiledModule, imports lower.ImportResolver) (api.Module, error) {
		inst, err := lower.Instantiate(cm.module, cm.funcs, cm.target, imports)
		if err != nil {
			return nil, err
		}
		return &moduleAdapter{module: cm.module, inst: inst}, nil
	}
	return c
}

func decodeAndValidate(wasmBytes []byte) (*wasm.Module, []*ir.Function, error) {
	m, err := binary.DecodeModule(wasmBytes)
	if err != nil {
		return nil, nil, err
	}
	fns := make([]*ir.Function, len(m.Codes))
	for i := range m.Codes {
		fn, err := ir.Validate(m, i)
		if err != nil {
			return nil, nil, err
		}
		fns[i] = fn
	}
	return m, fns, nil
}

type moduleAdapter struct {
	module *wasm.Module
	inst   *lower.Instance
}

func (m *moduleAdapter) String() string { return "module" }

func (m *moduleAdapter) ExportedFunction(name string) api.Function {
	exp, ok := m.inst.Exports[name]
	if !ok || exp.Kind != wasm.ExternTypeFunc {
		return nil
	}
	sig := m.module.TypeOfFunction(exp.Index)
	if sig == nil {
		return nil
	}
	return &functionAdapter{inst: m.inst, index: exp.Index, sig: sig}
}

func (m *moduleAdapter) ExportedMemory(name string) api.Memory {
	exp, ok := m.inst.Exports[name]
	if !ok || exp.Kind != wasm.ExternTypeMemory || m.inst.Memory == nil {
		return nil
	}
	return &memoryAdapter{mem: m.inst.Memory}
}

func (m *moduleAdapter) ExportedGlobal(name string) api.Global {
	exp, ok := m.inst.Exports[name]
	if !ok || exp.Kind != wasm.ExternTypeGlobal {
		return nil
	}
	vt := typeOfGlobal(m.module, exp.Index)
	if m.inst.GlobalMut[exp.Index] {
		return &mutableGlobalAdapter{globalAdapter{inst: m.inst, idx: exp.Index, valType: vt}}
	}
	return &globalAdapter{inst: m.inst, idx: exp.Index, valType: vt}
}

func (m *moduleAdapter) ExportedTable(name string) api.Table {
	exp, ok := m.inst.Exports[name]
	if !ok || exp.Kind != wasm.ExternTypeTable {
		return nil
	}
	return &tableAdapter{module: m.module, inst: m.inst}
}

// typeOfGlobal returns the declared value type of the globalidx-th global
// in the global index space (imported globals first, then module-defined
// ones), or 0 if globalidx is out of range.
func typeOfGlobal(m *wasm.Module, globalidx wasm.Index) api.ValueType {
	imported := wasm.Index(0)
	for _, imp := range m.Imports {
		if imp.Type != wasm.ExternTypeGlobal {
			continue
		}
		if imported == globalidx {
			return imp.DescGlobal.ValType
		}
		imported++
	}
	localIdx := int(globalidx) - int(imported)
	if localIdx < 0 || localIdx >= len(m.Globals) {
		return 0
	}
	return m.Globals[localIdx].Type.ValType
}

type functionAdapter struct {
	inst  *lower.Instance
	index wasm.Index
	sig   *wasm.FunctionType
}

func (f *functionAdapter) ParamTypes() []wasm.ValueType  { return f.sig.Params }
func (f *functionAdapter) ResultTypes() []wasm.ValueType { return f.sig.Results }

func (f *functionAdapter) Call(params ...uint64) ([]uint64, error) {
	result, hasResult, err := f.inst.Call(f.index, params)
	if err != nil {
		return nil, err
	}
	if !hasResult {
		return nil, nil
	}
	return []uint64{result}, nil
}

type memoryAdapter struct{ mem *rt.Memory }

func (m *memoryAdapter) Size() uint32 { return m.mem.ByteLen() }

func (m *memoryAdapter) Grow(delta uint32) (uint32, bool) {
	prev := m.mem.Grow(delta)
	if prev == 0xffffffff {
		return 0, false
	}
	return prev, true
}

func (m *memoryAdapter) ReadByte(offset uint32) (byte, bool)     { return m.mem.ReadByte(uint64(offset)) }
func (m *memoryAdapter) ReadUint16Le(offset uint32) (uint16, bool) {
	return m.mem.ReadUint16Le(uint64(offset))
}
func (m *memoryAdapter) ReadUint32Le(offset uint32) (uint32, bool) {
	return m.mem.ReadUint32Le(uint64(offset))
}
func (m *memoryAdapter) ReadUint64Le(offset uint32) (uint64, bool) {
	return m.mem.ReadUint64Le(uint64(offset))
}
func (m *memoryAdapter) ReadFloat32Le(offset uint32) (float32, bool) {
	return m.mem.ReadFloat32Le(uint64(offset))
}
func (m *memoryAdapter) ReadFloat64Le(offset uint32) (float64, bool) {
	return m.mem.ReadFloat64Le(uint64(offset))
}

func (m *memoryAdapter) WriteByte(offset uint32, v byte) bool {
	return m.mem.WriteByte(uint64(offset), v)
}
func (m *memoryAdapter) WriteUint16Le(offset uint32, v uint16) bool {
	return m.mem.WriteUint16Le(uint64(offset), v)
}
func (m *memoryAdapter) WriteUint32Le(offset, v uint32) bool {
	return m.mem.WriteUint32Le(uint64(offset), v)
}
func (m *memoryAdapter) WriteUint64Le(offset uint32, v uint64) bool {
	return m.mem.WriteUint64Le(uint64(offset), v)
}
func (m *memoryAdapter) WriteFloat32Le(offset uint32, v float32) bool {
	return m.mem.WriteFloat32Le(uint64(offset), v)
}
func (m *memoryAdapter) WriteFloat64Le(offset uint32, v float64) bool {
	return m.mem.WriteFloat64Le(uint64(offset), v)
}

type globalAdapter struct {
	inst    *lower.Instance
	idx     wasm.Index
	valType api.ValueType
}

func (g *globalAdapter) String() string      { return "global" }
func (g *globalAdapter) Type() api.ValueType { return g.valType }
func (g *globalAdapter) Get() uint64         { return g.inst.Globals[g.idx] }

type mutableGlobalAdapter struct{ globalAdapter }

func (g *mutableGlobalAdapter) Set(v uint64) { g.inst.Globals[g.idx] = v }

type tableAdapter struct {
	module *wasm.Module
	inst   *lower.Instance
}

func (t *tableAdapter) Size() uint32 { return uint32(len(t.inst.Table)) }

func (t *tableAdapter) Function(tableIdx uint32) api.Function {
	if tableIdx >= uint32(len(t.inst.Table)) {
		return nil
	}
	entry := t.inst.Table[tableIdx]
	if entry.FuncIndex < 0 {
		return nil
	}
	funcIdx := wasm.Index(entry.FuncIndex)
	sig := t.module.TypeOfFunction(funcIdx)
	if sig == nil {
		return nil
	}
	return &functionAdapter{inst: t.inst, index: funcIdx, sig: sig}
}

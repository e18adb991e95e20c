package lower

import (
	"github.com/oakwasm/oak/internal/ir"
	"github.com/oakwasm/oak/internal/wasm"
)

func getVar(fr *execFrame, kind ir.VarKind, vt wasm.ValueType, idx uint32) uint64 {
	switch kind {
	case ir.VarKindLocal:
		return fr.locals[idx]
	case ir.VarKindGlobal:
		return fr.inst.Globals[idx]
	default: // ir.VarKindTemp
		return fr.temps[vt][idx]
	}
}

func setVar(fr *execFrame, kind ir.VarKind, vt wasm.ValueType, idx uint32, v uint64) {
	switch kind {
	case ir.VarKindLocal:
		fr.locals[idx] = v
	case ir.VarKindGlobal:
		fr.inst.Globals[idx] = v
	default: // ir.VarKindTemp
		fr.temps[vt][idx] = v
	}
}

package lower

import "github.com/oakwasm/oak/internal/wasm"

// execFrame holds one call's mutable state: its locals (parameters
// followed by declared locals, boxed as uint64 bit patterns) and its
// per-value-type tempvar slots, sized exactly to the validator's reported
// high-water mark (ir.Function.TempCounts) so no bounds check is needed on
// tempvar access.
type execFrame struct {
	locals []uint64
	temps  map[wasm.ValueType][]uint64
	inst   *Instance
}

func newExecFrame(inst *Instance, locals []uint64, tempCounts map[wasm.ValueType]uint32) *execFrame {
	temps := make(map[wasm.ValueType][]uint64, len(tempCounts))
	for vt, n := range tempCounts {
		temps[vt] = make([]uint64, n)
	}
	return &execFrame{locals: locals, temps: temps, inst: inst}
}

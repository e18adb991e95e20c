package lower

import (
	"github.com/oakwasm/oak/internal/errs"
	"github.com/oakwasm/oak/internal/ir"
	"github.com/oakwasm/oak/internal/wasm"
)

// InterpreterTarget is the one lowering target this repo ships: a
// tree-walking closure interpreter. Compile renders a function's Body
// into a single stmtFn closure closed over pre-compiled children, so no
// work is repeated on every call.
type InterpreterTarget struct{}

func (InterpreterTarget) Compile(fn *ir.Function) (CompiledFunction, error) {
	body := compileStmts(fn.Body)
	localCount := len(fn.Locals)
	return &interpreterFunc{
		body:       body,
		localCount: localCount,
		tempCounts: fn.TempCounts,
	}, nil
}

type interpreterFunc struct {
	body       stmtFn
	localCount int
	tempCounts map[wasm.ValueType]uint32
}

// Call runs the function body against inst, with args pre-loaded as the
// first len(args) locals. A signal reaching here unresolved is always
// this function's own return, since every validated function's outermost
// control frame carries Label(0) and the IR never emits a Branch whose
// target doesn't correspond to some enclosing frame's label.
func (f *interpreterFunc) Call(inst *Instance, args []uint64) (result uint64, hasResult bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			if rerr, ok := r.(*errs.RuntimeError); ok {
				err = rerr
				return
			}
			panic(r)
		}
	}()

	locals := make([]uint64, f.localCount)
	copy(locals, args)
	fr := newExecFrame(inst, locals, f.tempCounts)

	sig := f.body(fr)
	if sig != nil && sig.hasResult {
		return sig.result, true, nil
	}
	return 0, false, nil
}

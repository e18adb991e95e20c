package rt

import "github.com/oakwasm/oak/internal/errs"

// Trap panics with an *errs.RuntimeError for the named trap condition,
// matching the teacher's own panic-a-sentinel-error convention: trapping
// code unwinds the Go call stack by panicking rather than threading an
// error return through every closure in the compiled op chain, and the
// lowering backend's call boundary recovers it into a normal error.
func Trap(trap string, format string, args ...interface{}) {
	panic(errs.NewRuntimeError(trap, format, args...))
}

// Package wasm holds the constant tables and module-level data model shared
// by the decoder (package binary), the validator/IR builder (package ir),
// and the lowering backend (package lower): opcode numbering, section ids,
// value-type tags, limits, and the Module struct itself.
//
// Grounded on the corpus's api.ValueType/ExternType constants and its
// (now-legacy, test-only-in-this-pack) internal/wasm Module shape.
package wasm

// ValueType is one of the four WASM MVP numeric types, encoded exactly as
// the single-byte tag used in the binary format so decoding needs no
// translation table.
type ValueType = byte

const (
	ValueTypeI32 ValueType = 0x7f
	ValueTypeI64 ValueType = 0x7e
	ValueTypeF32 ValueType = 0x7d
	ValueTypeF64 ValueType = 0x7c

	// ValueTypeNone is the sentinel for a void block or function result.
	// It is chosen outside the valid encoding range so a stray decode of
	// it is structurally impossible.
	ValueTypeNone ValueType = 0x40

	// ValueTypeUnknown marks a stack-polymorphic ("dead code") slot during
	// validation; it silently matches any requested type. Never present
	// once a function is fully validated.
	ValueTypeUnknown ValueType = 0x00

	// ValueTypeAnyFunc is the table element type (the only one MVP has).
	ValueTypeAnyFunc ValueType = 0x70

	// ValueTypeFunc marks a function-type tag in the binary format
	// (the byte that precedes a type section entry).
	ValueTypeFunc ValueType = 0x60
)

// ValueTypeName returns the WASM text-format name of t, or "unknown".
func ValueTypeName(t ValueType) string {
	switch t {
	case ValueTypeI32:
		return "i32"
	case ValueTypeI64:
		return "i64"
	case ValueTypeF32:
		return "f32"
	case ValueTypeF64:
		return "f64"
	case ValueTypeNone:
		return "none"
	case ValueTypeAnyFunc:
		return "anyfunc"
	}
	return "unknown"
}

// sigTag returns the single-character signature tag for t, per the
// canonical signature-string glossary entry: i/l/f/d for i32/i64/f32/f64.
func sigTag(t ValueType) byte {
	switch t {
	case ValueTypeI32:
		return 'i'
	case ValueTypeI64:
		return 'l'
	case ValueTypeF32:
		return 'f'
	case ValueTypeF64:
		return 'd'
	}
	return '?'
}

// Index is an index into one of the module's index spaces (function, table,
// memory, global, type, local, or label).
type Index = uint32

// FunctionType is an ordered sequence of parameter types plus at most one
// result type, per the MVP invariant that a function may have zero or one
// results.
type FunctionType struct {
	Params  []ValueType
	Results []ValueType
}

// Signature returns the canonical signature string used to identify this
// type for dynamic call_indirect checks at runtime, e.g. "iif->d" for
// (i32, i32, f32) -> f64, or "ii->" for (i32, i32) -> ().
func (t *FunctionType) Signature() string {
	buf := make([]byte, 0, len(t.Params)+len(t.Results)+2)
	for _, p := range t.Params {
		buf = append(buf, sigTag(p))
	}
	buf = append(buf, '-', '>')
	for _, r := range t.Results {
		buf = append(buf, sigTag(r))
	}
	return string(buf)
}

// EqualTo reports whether t and other have the same parameter and result
// types.
func (t *FunctionType) EqualTo(other *FunctionType) bool {
	if other == nil {
		return false
	}
	return t.Signature() == other.Signature()
}

// Limits describes the initial and optional maximum size of a table or
// memory, in table elements or 64KiB memory pages respectively.
type Limits struct {
	Min uint32
	Max *uint32 // nil means absent
}

// MemoryPageSize is the fixed WASM page size in bytes.
const MemoryPageSize = uint32(65536)

// MemoryMaxPages is the MVP ceiling on memory size, in pages (4 GiB total).
const MemoryMaxPages = uint32(65536)

// Package api declares the embedder-facing surface of this module: the
// pure interfaces an instantiated module exposes. The Core seam between
// those interfaces and the decode/validate/lower pipeline lives in the
// root oak package. Nothing in this package performs decoding,
// validation, or lowering itself.
package api

import (
	"fmt"
	"math"
)

// ExternType classifies imports and exports by their kind.
type ExternType = byte

const (
	ExternTypeFunc   ExternType = 0x00
	ExternTypeTable  ExternType = 0x01
	ExternTypeMemory ExternType = 0x02
	ExternTypeGlobal ExternType = 0x03
)

const (
	ExternTypeFuncName   = "func"
	ExternTypeTableName  = "table"
	ExternTypeMemoryName = "memory"
	ExternTypeGlobalName = "global"
)

// ExternTypeName returns the text-format field name of et.
func ExternTypeName(et ExternType) string {
	switch et {
	case ExternTypeFunc:
		return ExternTypeFuncName
	case ExternTypeTable:
		return ExternTypeTableName
	case ExternTypeMemory:
		return ExternTypeMemoryName
	case ExternTypeGlobal:
		return ExternTypeGlobalName
	}
	return fmt.Sprintf("%#x", et)
}

// ValueType describes a numeric type used in the MVP. Every value, at the
// embedder boundary, is a uint64 bit pattern:
//
//   - ValueTypeI32 - uint64(uint32(int32))
//   - ValueTypeI64 - uint64(int64)
//   - ValueTypeF32 - EncodeF32/DecodeF32
//   - ValueTypeF64 - EncodeF64/DecodeF64
type ValueType = byte

const (
	ValueTypeI32 ValueType = 0x7f
	ValueTypeI64 ValueType = 0x7e
	ValueTypeF32 ValueType = 0x7d
	ValueTypeF64 ValueType = 0x7c
)

// ValueTypeName returns the WebAssembly text format name of t, or
// "unknown".
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
	}
	return "unknown"
}

// Module is an instantiated module's export namespace.
type Module interface {
	fmt.Stringer

	// ExportedFunction returns a function exported under name, or nil.
	ExportedFunction(name string) Function

	// ExportedMemory returns the memory exported under name, or nil.
	ExportedMemory(name string) Memory

	// ExportedGlobal returns the global exported under name, or nil.
	ExportedGlobal(name string) Global

	// ExportedTable returns the table exported under name, or nil.
	ExportedTable(name string) Table
}

// Function is a WebAssembly function exported from an instantiated
// module.
type Function interface {
	// ParamTypes are the parameter types of this function's signature.
	ParamTypes() []ValueType

	// ResultTypes are the result types of this function's signature (at
	// most one, per the MVP's single-result restriction).
	ResultTypes() []ValueType

	// Call invokes the function with params encoded per ParamTypes. Up
	// to one result is returned, encoded per ResultTypes. An error
	// wraps an *errs.RuntimeError for any trap raised during execution.
	Call(params ...uint64) ([]uint64, error)
}

// Global is a global exported from an instantiated module.
type Global interface {
	fmt.Stringer

	// Type describes the numeric type of the global.
	Type() ValueType

	// Get returns the global's current value.
	Get() uint64
}

// MutableGlobal is a Global declared mutable, additionally exposing Set.
type MutableGlobal interface {
	Global

	// Set updates the global's value.
	Set(v uint64)
}

// Memory allows restricted access to a module's linear memory.
type Memory interface {
	// Size returns the size in bytes currently available.
	Size() uint32

	// Grow increases memory by delta pages (65536 bytes each),
	// returning the previous size in pages, or false if delta would
	// exceed the declared or implementation maximum.
	Grow(delta uint32) (previousPages uint32, ok bool)

	ReadByte(offset uint32) (byte, bool)
	ReadUint16Le(offset uint32) (uint16, bool)
	ReadUint32Le(offset uint32) (uint32, bool)
	ReadUint64Le(offset uint32) (uint64, bool)
	ReadFloat32Le(offset uint32) (float32, bool)
	ReadFloat64Le(offset uint32) (float64, bool)

	WriteByte(offset uint32, v byte) bool
	WriteUint16Le(offset uint32, v uint16) bool
	WriteUint32Le(offset, v uint32) bool
	WriteUint64Le(offset uint32, v uint64) bool
	WriteFloat32Le(offset uint32, v float32) bool
	WriteFloat64Le(offset uint32, v float64) bool
}

// Table allows restricted access to a module's table of function
// references. The MVP permits exactly one table, of element type
// anyfunc.
type Table interface {
	// Size returns the number of entries in the table.
	Size() uint32

	// Function returns the function referenced by the tableIdx-th
	// entry, or nil if that entry is uninitialized or tableIdx is out
	// of range.
	Function(tableIdx uint32) Function
}

// EncodeI32 encodes the input as a ValueTypeI32.
func EncodeI32(input int32) uint64 { return uint64(uint32(input)) }

// EncodeI64 encodes the input as a ValueTypeI64.
func EncodeI64(input int64) uint64 { return uint64(input) }

// EncodeF32 encodes the input as a ValueTypeF32.
func EncodeF32(input float32) uint64 { return uint64(math.Float32bits(input)) }

// DecodeF32 decodes the input as a ValueTypeF32.
func DecodeF32(input uint64) float32 { return math.Float32frombits(uint32(input)) }

// EncodeF64 encodes the input as a ValueTypeF64.
func EncodeF64(input float64) uint64 { return math.Float64bits(input) }

// DecodeF64 decodes the input as a ValueTypeF64.
func DecodeF64(input uint64) float64 { return math.Float64frombits(input) }

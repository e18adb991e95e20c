// Package rt implements the runtime support contract the lowering backend
// depends on: 64-bit integer arithmetic, NaN-preserving float helpers, and
// the growable linear-memory buffer. None of this is WASM-specific parsing
// or validation; it is the small arithmetic library a target without a
// native 64-bit integer or without raw-bit float access would need, kept
// here as a single call site per operation even though Go has both.
package rt

import "math"

// I64 is the 64-bit integer contract from the runtime support design: Go
// already has a native int64, so this is a thin wrapper rather than a
// boxed bignum, but it keeps the low/high-half constructors a target
// language without 64-bit integers would require, and gives the lowering
// backend exactly one call site per i64 operation.
type I64 uint64

// NewI64FromHalves builds an I64 from its low and high 32-bit halves, low
// bits first per the wasm encoding of split 64-bit constants.
func NewI64FromHalves(low, high int32) I64 {
	return I64(uint64(uint32(high))<<32 | uint64(uint32(low)))
}

func NewI64FromSignedI32(v int32) I64   { return I64(uint64(int64(v))) }
func NewI64FromUnsignedI32(v uint32) I64 { return I64(uint64(v)) }

func (v I64) Low() int32  { return int32(uint32(v)) }
func (v I64) High() int32 { return int32(uint32(v >> 32)) }

func (v I64) Signed() int64   { return int64(v) }
func (v I64) Unsigned() uint64 { return uint64(v) }

func (v I64) Add(o I64) I64 { return v + o }
func (v I64) Sub(o I64) I64 { return v - o }
func (v I64) Mul(o I64) I64 { return v * o }

// DivS performs signed division. Callers must have already trapped on
// o == 0 and on v == MinInt64 && o == -1; this method does not re-check.
func (v I64) DivS(o I64) I64 { return I64(uint64(int64(v) / int64(o))) }

// DivU performs unsigned division. Callers must have already trapped on
// o == 0.
func (v I64) DivU(o I64) I64 { return I64(uint64(v) / uint64(o)) }

func (v I64) RemS(o I64) I64 { return I64(uint64(int64(v) % int64(o))) }
func (v I64) RemU(o I64) I64 { return I64(uint64(v) % uint64(o)) }

func (v I64) And(o I64) I64 { return v & o }
func (v I64) Or(o I64) I64  { return v | o }
func (v I64) Xor(o I64) I64 { return v ^ o }

// Shl/ShrS/ShrU mask the shift amount to the low 6 bits, per WASM's
// shift-amount-modulo-bit-width semantics.
func (v I64) Shl(o I64) I64  { return v << (uint64(o) & 63) }
func (v I64) ShrS(o I64) I64 { return I64(uint64(int64(v) >> (uint64(o) & 63))) }
func (v I64) ShrU(o I64) I64 { return v >> (uint64(o) & 63) }

func (v I64) Rotl(o I64) I64 {
	n := uint64(o) & 63
	return I64(uint64(v)<<n | uint64(v)>>(64-n))
}

func (v I64) Rotr(o I64) I64 {
	n := uint64(o) & 63
	return I64(uint64(v)>>n | uint64(v)<<(64-n))
}

func (v I64) Eq(o I64) bool  { return v == o }
func (v I64) Ne(o I64) bool  { return v != o }
func (v I64) LtS(o I64) bool { return int64(v) < int64(o) }
func (v I64) LtU(o I64) bool { return uint64(v) < uint64(o) }
func (v I64) GtS(o I64) bool { return int64(v) > int64(o) }
func (v I64) GtU(o I64) bool { return uint64(v) > uint64(o) }
func (v I64) LeS(o I64) bool { return int64(v) <= int64(o) }
func (v I64) LeU(o I64) bool { return uint64(v) <= uint64(o) }
func (v I64) GeS(o I64) bool { return int64(v) >= int64(o) }
func (v I64) GeU(o I64) bool { return uint64(v) >= uint64(o) }

func (v I64) IsZero() bool { return v == 0 }

func (v I64) Clz() I64 {
	n := uint64(v)
	if n == 0 {
		return 64
	}
	var c I64
	for n&(1<<63) == 0 {
		c++
		n <<= 1
	}
	return c
}

func (v I64) Ctz() I64 {
	n := uint64(v)
	if n == 0 {
		return 64
	}
	var c I64
	for n&1 == 0 {
		c++
		n >>= 1
	}
	return c
}

func (v I64) Popcnt() I64 {
	n := uint64(v)
	var c I64
	for n != 0 {
		c += I64(n & 1)
		n >>= 1
	}
	return c
}

// ReinterpretF64 reinterprets v's raw bits as a float64, per the IEEE-754
// bit-for-bit reinterpret opcodes (the inverse direction, f64 -> i64,
// needs no helper since it is just uint64(math.Float64bits(f))).
func (v I64) ReinterpretF64() float64 { return math.Float64frombits(uint64(v)) }

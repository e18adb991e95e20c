package rt

import (
	"math"

	"github.com/chewxy/math32"
)

// AbsF32/AbsF64 clear the sign bit directly rather than calling a library
// abs, since WASM's abs on a NaN must clear the sign bit of whatever NaN
// payload is present, not canonicalize it.
func AbsF32(f float32) float32 {
	return math32.Float32frombits(math32.Float32bits(f) &^ (1 << 31))
}

func AbsF64(f float64) float64 {
	return math.Float64frombits(math.Float64bits(f) &^ (1 << 63))
}

// NegF32/NegF64 toggle the sign bit directly, for the same reason as Abs:
// plain arithmetic negation is not guaranteed to preserve a NaN's payload
// bits on every Go/math implementation.
func NegF32(f float32) float32 {
	return math32.Float32frombits(math32.Float32bits(f) ^ (1 << 31))
}

func NegF64(f float64) float64 {
	return math.Float64frombits(math.Float64bits(f) ^ (1 << 63))
}

// CopysignF32/CopysignF64 copy only the sign bit of sign onto mag's raw
// bits, leaving mag's payload (including a NaN's) untouched.
func CopysignF32(mag, sign float32) float32 {
	bits := math32.Float32bits(mag)&^(1<<31) | math32.Float32bits(sign)&(1<<31)
	return math32.Float32frombits(bits)
}

func CopysignF64(mag, sign float64) float64 {
	bits := math.Float64bits(mag)&^(1<<63) | math.Float64bits(sign)&(1<<63)
	return math.Float64frombits(bits)
}

// SignbitF32/SignbitF64 report the raw sign bit, distinguishing +0 from
// -0 (which == cannot).
func SignbitF32(f float32) bool { return math32.Float32bits(f)&(1<<31) != 0 }
func SignbitF64(f float64) bool { return math.Float64bits(f)&(1<<63) != 0 }

func IsNaNF32(f float32) bool { return math32.IsNaN(f) }
func IsNaNF64(f float64) bool { return math.IsNaN(f) }

func AbsInt32(v int32) int32 {
	if v < 0 {
		return -v
	}
	return v
}

// CeilF32/FloorF32/TruncF32/SqrtF32 route through math32 (float32-native)
// rather than float64, avoiding a double-rounding round trip.
func CeilF32(f float32) float32  { return math32.Ceil(f) }
func FloorF32(f float32) float32 { return math32.Floor(f) }
func TruncF32(f float32) float32 { return math32.Trunc(f) }
func SqrtF32(f float32) float32  { return math32.Sqrt(f) }

func CeilF64(f float64) float64  { return math.Ceil(f) }
func FloorF64(f float64) float64 { return math.Floor(f) }
func TruncF64(f float64) float64 { return math.Trunc(f) }
func SqrtF64(f float64) float64  { return math.Sqrt(f) }

// NearestF32/NearestF64 round to the nearest integer, ties to even, which
// neither math nor math32's Round (ties away from zero) implements
// directly.
func NearestF32(f float32) float32 { return float32(NearestF64(float64(f))) }

func NearestF64(f float64) float64 {
	if math.IsNaN(f) || math.IsInf(f, 0) || f == 0 {
		return f
	}
	r := math.Round(f)
	if math.Abs(f-math.Trunc(f)) == 0.5 {
		// Round ties to even: Go's Round ties away from zero.
		if math.Mod(r, 2) != 0 {
			if r > f {
				r--
			} else {
				r++
			}
		}
	}
	return r
}

// MinF32/MinF64/MaxF32/MaxF64 are WASM's NaN-propagating, signed-zero-aware
// min/max, which Go's math.Min/Max do not implement (they follow IEEE 754
// minNum/maxNum, not WASM's stricter "either NaN operand yields NaN").
func MinF64(x, y float64) float64 {
	switch {
	case math.IsNaN(x) || math.IsNaN(y):
		return math.NaN()
	case math.IsInf(x, -1) || math.IsInf(y, -1):
		return math.Inf(-1)
	case x == 0 && x == y:
		if math.Signbit(x) {
			return x
		}
		return y
	}
	if x < y {
		return x
	}
	return y
}

func MaxF64(x, y float64) float64 {
	switch {
	case math.IsNaN(x) || math.IsNaN(y):
		return math.NaN()
	case math.IsInf(x, 1) || math.IsInf(y, 1):
		return math.Inf(1)
	case x == 0 && x == y:
		if math.Signbit(x) {
			return y
		}
		return x
	}
	if x > y {
		return x
	}
	return y
}

func MinF32(x, y float32) float32 { return float32(MinF64(float64(x), float64(y))) }
func MaxF32(x, y float32) float32 { return float32(MaxF64(float64(x), float64(y))) }

// ToF32 rounds f to the nearest float32, except on a NaN input, where it
// keeps the NaN's bit pattern (truncating the mantissa to float32 width
// while preserving the payload's high bits and sign) rather than producing
// a canonicalized NaN; if the kept payload bits are all zero the quiet bit
// is set so the result is still a NaN.
func ToF32(f float64) float32 {
	if f != f {
		b := math.Float64bits(f)
		bits := uint32(b>>63)<<31 | 0x7f800000 | uint32(b>>29)&0x7fffff
		if bits&0x7fffff == 0 {
			bits |= 0x400000
		}
		return math.Float32frombits(bits)
	}
	return float32(f)
}

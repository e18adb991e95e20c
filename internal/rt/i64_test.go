package rt

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestI64_Halves(t *testing.T) {
	v := NewI64FromHalves(-1, 1)
	require.Equal(t, int32(-1), v.Low())
	require.Equal(t, int32(1), v.High())
	require.Equal(t, int64(1)<<32|0xffffffff, v.Signed())
}

func TestI64_DivRem(t *testing.T) {
	a := NewI64FromSignedI32(-7)
	b := NewI64FromSignedI32(2)
	require.Equal(t, int64(-3), a.DivS(b).Signed())
	require.Equal(t, int64(-1), a.RemS(b).Signed())

	u := NewI64FromUnsignedI32(7)
	v := NewI64FromUnsignedI32(2)
	require.Equal(t, uint64(3), u.DivU(v).Unsigned())
	require.Equal(t, uint64(1), u.RemU(v).Unsigned())
}

func TestI64_ShiftsMaskAmountToSixBits(t *testing.T) {
	one := NewI64FromUnsignedI32(1)
	shiftBy64 := NewI64FromUnsignedI32(64)
	require.Equal(t, one, one.Shl(shiftBy64), "shift amount must wrap modulo 64")
}

func TestI64_RotlRotr(t *testing.T) {
	v := I64(0x8000000000000001)
	require.Equal(t, I64(0x0000000000000003), v.Rotl(1))
	require.Equal(t, I64(0xc000000000000000), v.Rotr(1))
}

func TestI64_ClzCtzPopcnt(t *testing.T) {
	require.Equal(t, I64(64), I64(0).Clz())
	require.Equal(t, I64(64), I64(0).Ctz())
	require.Equal(t, I64(63), I64(1).Clz())
	require.Equal(t, I64(0), I64(1).Ctz())
	require.Equal(t, I64(1), I64(1).Popcnt())
	require.Equal(t, I64(64), I64(0xffffffffffffffff).Popcnt())
}

func TestI64_Comparisons(t *testing.T) {
	neg := NewI64FromSignedI32(-1)
	pos := NewI64FromSignedI32(1)
	require.True(t, neg.LtS(pos))
	require.False(t, neg.LtU(pos), "as unsigned, -1 is the largest value")
	require.True(t, neg.GtU(pos))
}

func TestI64_ReinterpretF64(t *testing.T) {
	bits := math.Float64bits(3.5)
	require.Equal(t, 3.5, I64(bits).ReinterpretF64())
}

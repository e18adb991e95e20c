package rt

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAbsNegPreserveNaNPayload(t *testing.T) {
	nan := math.Float64frombits(0x7ff8000000000001)
	abs := AbsF64(nan)
	require.True(t, IsNaNF64(abs))
	require.False(t, SignbitF64(abs))
	require.Equal(t, math.Float64bits(nan)&^(1<<63), math.Float64bits(abs))

	neg := NegF64(nan)
	require.True(t, SignbitF64(neg))
}

func TestCopysignKeepsMagnitudeBits(t *testing.T) {
	require.Equal(t, -2.0, CopysignF64(2.0, -1.0))
	require.Equal(t, 2.0, CopysignF64(-2.0, 1.0))
}

func TestSignbitDistinguishesZeroes(t *testing.T) {
	require.False(t, SignbitF64(0))
	require.True(t, SignbitF64(math.Copysign(0, -1)))
}

func TestNearestTiesToEven(t *testing.T) {
	require.Equal(t, 2.0, NearestF64(2.5))
	require.Equal(t, 4.0, NearestF64(3.5))
	require.Equal(t, -2.0, NearestF64(-2.5))
	require.Equal(t, 2.0, NearestF64(1.5))
}

func TestMinMaxPropagateNaN(t *testing.T) {
	require.True(t, math.IsNaN(MinF64(math.NaN(), 1)))
	require.True(t, math.IsNaN(MaxF64(1, math.NaN())))
}

func TestMinMaxSignedZero(t *testing.T) {
	negZero := math.Copysign(0, -1)
	require.True(t, SignbitF64(MinF64(0, negZero)))
	require.True(t, SignbitF64(MinF64(negZero, 0)))
	require.False(t, SignbitF64(MaxF64(0, negZero)))
}

func TestMinMaxInfinities(t *testing.T) {
	require.Equal(t, math.Inf(-1), MinF64(math.Inf(-1), 5))
	require.Equal(t, math.Inf(1), MaxF64(math.Inf(1), -5))
}

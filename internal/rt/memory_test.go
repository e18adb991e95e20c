package rt

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMemory_GrowSize(t *testing.T) {
	t.Run("with max", func(t *testing.T) {
		m := NewMemory(0, 10, true)
		require.Equal(t, uint32(0), m.Grow(5))
		require.Equal(t, uint32(5), m.PageCount())
		require.Equal(t, uint32(5), m.Grow(0))
		require.Equal(t, uint32(5), m.Grow(4))
		require.Equal(t, uint32(9), m.PageCount())
		require.Equal(t, uint32(0xffffffff), m.Grow(2))
		require.Equal(t, uint32(9), m.PageCount())
		require.Equal(t, uint32(9), m.Grow(1))
		require.Equal(t, uint32(10), m.PageCount())
	})
	t.Run("without max", func(t *testing.T) {
		m := NewMemory(0, 0, false)
		require.Equal(t, uint32(0), m.Grow(1))
		require.Equal(t, uint32(1), m.PageCount())
		require.Equal(t, uint32(0xffffffff), m.Grow(MaxPages))
		require.Equal(t, uint32(1), m.PageCount())
	})
}

func TestMemory_ReadByte(t *testing.T) {
	m := NewMemory(1, 0, false)
	require.True(t, m.WriteByte(7, 16))
	v, ok := m.ReadByte(7)
	require.True(t, ok)
	require.Equal(t, byte(16), v)

	_, ok = m.ReadByte(uint64(PageSize))
	require.False(t, ok)
}

func TestMemory_ReadWriteUint32Le(t *testing.T) {
	m := NewMemory(1, 0, false)
	require.True(t, m.WriteUint32Le(4, 16))
	v, ok := m.ReadUint32Le(4)
	require.True(t, ok)
	require.Equal(t, uint32(16), v)

	_, ok = m.ReadUint32Le(uint64(PageSize) - 3)
	require.False(t, ok)
}

func TestMemory_ReadWriteUint64Le(t *testing.T) {
	m := NewMemory(1, 0, false)
	require.True(t, m.WriteUint64Le(8, 0x0102030405060708))
	v, ok := m.ReadUint64Le(8)
	require.True(t, ok)
	require.Equal(t, uint64(0x0102030405060708), v)
}

func TestMemory_FloatRoundTripPreservesNaNPayload(t *testing.T) {
	m := NewMemory(1, 0, false)
	nan := math.Float64frombits(0x7ff8000000000001)
	require.True(t, m.WriteFloat64Le(0, nan))
	v, ok := m.ReadFloat64Le(0)
	require.True(t, ok)
	require.True(t, IsNaNF64(v))
	require.Equal(t, math.Float64bits(nan), math.Float64bits(v))
}

func TestMemory_SubscribeNotifiedOnGrow(t *testing.T) {
	m := NewMemory(0, 0, false)
	called := false
	m.Subscribe(func() { called = true })
	m.Grow(1)
	require.True(t, called)
}

func TestMemory_OutOfBoundsAccessPastEndOfPage(t *testing.T) {
	m := NewMemory(1, 0, false)
	_, ok := m.ReadUint32Le(uint64(PageSize) - 1)
	require.False(t, ok)
}

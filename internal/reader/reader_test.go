package reader

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestReadVaruint32(t *testing.T) {
	tests := []struct {
		bytes  []byte
		exp    uint32
		expErr bool
	}{
		{bytes: []byte{0x00}, exp: 0},
		{bytes: []byte{0x04}, exp: 4},
		{bytes: []byte{0x01}, exp: 1},
		{bytes: []byte{0x80, 0}, exp: 0},
		{bytes: []byte{0x80, 0x7f}, exp: 16256},
		{bytes: []byte{0xe5, 0x8e, 0x26}, exp: 624485},
		{bytes: []byte{0x80, 0x80, 0x80, 0x4f}, exp: 165675008},
		{bytes: []byte{0xff, 0xff, 0xff, 0xff, 0xf}, exp: math.MaxUint32},
		{bytes: []byte{0x83, 0x80, 0x80, 0x80, 0x80, 0x00}, expErr: true}, // too many bytes
		{bytes: []byte{0x82, 0x80, 0x80, 0x80, 0x70}, expErr: true},      // exceeds 32 bits
	}
	for _, tc := range tests {
		r := New(tc.bytes)
		v, err := r.ReadVaruint32()
		if tc.expErr {
			require.Error(t, err)
			continue
		}
		require.NoError(t, err)
		require.Equal(t, tc.exp, v)
		require.Equal(t, len(tc.bytes), r.Pos())
	}
}

func TestReadVarint32(t *testing.T) {
	tests := []struct {
		bytes []byte
		exp   int32
	}{
		{bytes: []byte{0x13}, exp: 19},
		{bytes: []byte{0x00}, exp: 0},
		{bytes: []byte{0x7f}, exp: -1},
		{bytes: []byte{0x81, 0x7f}, exp: -127},
		{bytes: []byte{0xFF, 0x7e}, exp: -129},
	}
	for _, tc := range tests {
		r := New(tc.bytes)
		v, err := r.ReadVarint32()
		require.NoError(t, err)
		require.Equal(t, tc.exp, v)
	}
}

func TestReadVarint32_overlong(t *testing.T) {
	r := New([]byte{0xff, 0xff, 0xff, 0xff, 0x4f})
	_, err := r.ReadVarint32()
	require.Error(t, err)
}

func TestReadVarint64(t *testing.T) {
	tests := []struct {
		bytes []byte
		exp   int64
	}{
		{bytes: []byte{0x00}, exp: 0},
		{bytes: []byte{0x7f}, exp: -1},
		{bytes: []byte{0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0x0}, exp: math.MaxInt64},
	}
	for _, tc := range tests {
		r := New(tc.bytes)
		v, err := r.ReadVarint64()
		require.NoError(t, err)
		require.Equal(t, tc.exp, v)
	}
}

func TestReadBytes_boundsChecked(t *testing.T) {
	r := New([]byte{1, 2, 3})
	b, err := r.ReadBytes(3)
	require.NoError(t, err)
	require.Equal(t, []byte{1, 2, 3}, b)

	_, err = r.ReadBytes(1)
	require.Error(t, err)
}

func TestSkipTo(t *testing.T) {
	r := New([]byte{1, 2, 3, 4})
	require.NoError(t, r.SkipTo(2))
	b, err := r.ReadByte()
	require.NoError(t, err)
	require.Equal(t, byte(3), b)

	require.Error(t, r.SkipTo(1)) // backward
	require.Error(t, r.SkipTo(100))
}

func TestReadU32LE(t *testing.T) {
	r := New([]byte{0xAA, 0xBB, 0xCC, 0xDD})
	v, err := r.ReadU32LE()
	require.NoError(t, err)
	require.Equal(t, uint32(0xDDCCBBAA), v)
}

func TestReadF32LE_preservesNaNBits(t *testing.T) {
	// 0x7F800001 is a signaling NaN with a non-canonical payload.
	r := New([]byte{0x01, 0x00, 0x80, 0x7f})
	bits, err := r.ReadF32LE()
	require.NoError(t, err)
	require.Equal(t, uint32(0x7F800001), bits)
}

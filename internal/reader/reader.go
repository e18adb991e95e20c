// Package reader implements the byte-level primitives the module decoder
// and function validator read from: fixed-width little-endian values and
// LEB128 varints, all bounds-checked against the underlying slice.
//
// Grounded on the corpus's internal/leb128 package, adapted from its
// stateless byte-slice functions to a stateful cursor, per the Design Notes'
// guidance that a translation context (here, the read cursor) should be an
// explicit value threaded through the decoder rather than hidden global
// state.
package reader

import (
	"encoding/binary"

	"github.com/oakwasm/oak/internal/errs"
)

// maxVarint32Bytes is the maximum number of bytes a 32-bit LEB128 varint
// may occupy; 64-bit varints may occupy up to maxVarint64Bytes.
const (
	maxVarint32Bytes = 5
	maxVarint64Bytes = 10
)

// Reader holds a borrowed byte slice and a cursor. It must not outlive the
// slice it was constructed from.
type Reader struct {
	data []byte
	pos  int
}

// New wraps data for sequential, bounds-checked reads starting at offset 0.
func New(data []byte) *Reader {
	return &Reader{data: data}
}

// Pos returns the current cursor position, used to tag errors with a byte
// offset and to compute section payload boundaries.
func (r *Reader) Pos() int { return r.pos }

// Len returns the total length of the wrapped slice.
func (r *Reader) Len() int { return len(r.data) }

// Remaining returns the number of unread bytes.
func (r *Reader) Remaining() int { return len(r.data) - r.pos }

func (r *Reader) fail(format string, args ...interface{}) error {
	return errs.NewCompileError("decode", r.pos, format, args...)
}

// ReadByte reads a single byte. Name chosen to satisfy io.ByteReader.
func (r *Reader) ReadByte() (byte, error) {
	if r.pos >= len(r.data) {
		return 0, r.fail("unexpected end of stream reading a byte")
	}
	b := r.data[r.pos]
	r.pos++
	return b, nil
}

// ReadU8 reads one byte as a uint8.
func (r *Reader) ReadU8() (uint8, error) { return r.ReadByte() }

// ReadU16LE reads two bytes as a little-endian uint16.
func (r *Reader) ReadU16LE() (uint16, error) {
	b, err := r.ReadBytes(2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b), nil
}

// ReadU32LE reads four bytes as a little-endian uint32.
func (r *Reader) ReadU32LE() (uint32, error) {
	b, err := r.ReadBytes(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

// ReadF32LE reads exactly 4 bytes of IEEE-754 little-endian and returns the
// raw bit pattern, preserving NaN payloads exactly (callers that need a
// float32 convert via math.Float32frombits themselves so the caller decides
// whether to preserve the bits).
func (r *Reader) ReadF32LE() (uint32, error) { return r.ReadU32LE() }

// ReadF64LE reads exactly 8 bytes of IEEE-754 little-endian, returning the
// raw bit pattern.
func (r *Reader) ReadF64LE() (uint64, error) {
	b, err := r.ReadBytes(8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

// ReadBytes returns a borrowed slice of length n starting at the cursor,
// advancing the cursor past it. The returned slice aliases the input; it
// must not be retained past the input's lifetime.
func (r *Reader) ReadBytes(n int) ([]byte, error) {
	if n < 0 || r.pos+n > len(r.data) {
		return nil, r.fail("unexpected end of stream reading %d bytes", n)
	}
	b := r.data[r.pos : r.pos+n]
	r.pos += n
	return b, nil
}

// BytesFrom returns a borrowed slice spanning [start, Pos()), without
// moving the cursor. Used to recover the raw bytes of a sub-structure
// whose end was only known once fully parsed (e.g. a constant expression).
func (r *Reader) BytesFrom(start int) []byte {
	return r.data[start:r.pos]
}

// SkipTo moves the cursor directly to pos. Moving backward, or past the end
// of the buffer, is an error.
func (r *Reader) SkipTo(pos int) error {
	if pos < r.pos {
		return r.fail("cannot skip backward from %d to %d", r.pos, pos)
	}
	if pos > len(r.data) {
		return r.fail("cannot skip past end of stream (%d > %d)", pos, len(r.data))
	}
	r.pos = pos
	return nil
}

// ReadVaruint32 decodes an unsigned LEB128 value that must fit in 32 bits.
func (r *Reader) ReadVaruint32() (uint32, error) {
	v, _, err := r.readVaruint(32, maxVarint32Bytes)
	return uint32(v), err
}

// ReadVaruint7 decodes an unsigned LEB128 value that must fit in 7 bits,
// used for the single-byte-encoded value-type and extern-kind tags.
func (r *Reader) ReadVaruint7() (uint8, error) {
	v, _, err := r.readVaruint(7, 1)
	return uint8(v), err
}

// ReadVaruint1 decodes an unsigned LEB128 value that must be 0 or 1, used
// for the mutability flag and the limits presence flag.
func (r *Reader) ReadVaruint1() (uint8, error) {
	v, _, err := r.readVaruint(1, 1)
	return uint8(v), err
}

// readVaruint reads an unsigned LEB128 value, rejecting encodings whose
// decoded value exceeds 2^width-1 or whose length exceeds maxBytes.
func (r *Reader) readVaruint(width uint, maxBytes int) (uint64, int, error) {
	start := r.pos
	var result uint64
	var shift uint
	n := 0
	for {
		if n >= maxBytes {
			return 0, 0, r.fail("varuint%d: overlong encoding starting at 0x%x", width, start)
		}
		b, err := r.ReadByte()
		if err != nil {
			return 0, 0, err
		}
		n++
		result |= uint64(b&0x7f) << shift
		if b&0x80 == 0 {
			if shift+7 < 64 {
				// Any bits set above `width` in the final byte are only
				// legal if they are the sign-extension continuation of a
				// value that still fits in width bits (all zero here,
				// since this is the unsigned decoder).
				maxValidBits := uint64(1)<<width - 1
				if width < 64 && result > maxValidBits {
					return 0, 0, r.fail("varuint%d: decoded value %d exceeds width", width, result)
				}
			}
			return result, n, nil
		}
		shift += 7
	}
}

// ReadVarint32 decodes a signed LEB128 value that must fit in 32 bits.
func (r *Reader) ReadVarint32() (int32, error) {
	v, err := r.readVarint(32, maxVarint32Bytes)
	return int32(v), err
}

// ReadVarint7 decodes a signed LEB128 value that must fit in 7 bits, used
// for the block-type immediate (-0x40 for an empty block, or a value type).
func (r *Reader) ReadVarint7() (int8, error) {
	v, err := r.readVarint(7, 1)
	return int8(v), err
}

// ReadVarint64 decodes a signed LEB128 value that must fit in 64 bits.
func (r *Reader) ReadVarint64() (int64, error) {
	return r.readVarint(64, maxVarint64Bytes)
}

// readVarint reads a signed LEB128 value with sign extension, rejecting
// overlong encodings for the given width.
func (r *Reader) readVarint(width uint, maxBytes int) (int64, error) {
	start := r.pos
	var result int64
	var shift uint
	var b byte
	var err error
	n := 0
	for {
		if n >= maxBytes {
			return 0, r.fail("varint%d: overlong encoding starting at 0x%x", width, start)
		}
		b, err = r.ReadByte()
		if err != nil {
			return 0, err
		}
		n++
		result |= int64(b&0x7f) << shift
		shift += 7
		if b&0x80 == 0 {
			break
		}
	}
	// Sign extend if the sign bit of the last group is set and we haven't
	// consumed the full 64 bits.
	if shift < 64 && b&0x40 != 0 {
		result |= -1 << shift
	}
	if width < 64 {
		// The value must be representable in `width` signed bits.
		min := int64(-1) << (width - 1)
		max := int64(1)<<(width-1) - 1
		if result < min || result > max {
			return 0, r.fail("varint%d: decoded value %d out of range", width, result)
		}
	}
	return result, nil
}

// ReadVarintI33AsInt64 reads a signed LEB128 value that must fit in 33
// bits (at most maxVarint64Bytes bytes) and returns it as an int64; a
// value outside the 33-bit signed range is an error.
func (r *Reader) ReadVarintI33AsInt64() (int64, error) {
	return r.readVarint(33, maxVarint64Bytes)
}

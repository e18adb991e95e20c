package rt

import (
	"encoding/binary"
	"math"

	"github.com/chewxy/math32"
)

// PageSize is the fixed 64KiB WASM linear-memory page granularity.
const PageSize = uint32(1) << 16

// MaxPages is the absolute ceiling on memory size imposed by the 32-bit
// address space, independent of any module-declared maximum.
const MaxPages = uint32(1) << 16

// Memory is a growable linear-memory buffer. Every access method returns
// (value, ok) rather than trapping directly: each load/store closure in
// the lowering backend checks ok and raises the trap itself, so Memory
// stays trap-agnostic.
type Memory struct {
	buf         []byte
	min, max    uint32
	hasMax      bool
	subscribers []func()
}

// NewMemory allocates a Memory at its minimum size. max is ignored when
// hasMax is false (unbounded up to MaxPages).
func NewMemory(min, max uint32, hasMax bool) *Memory {
	return &Memory{
		buf:    make([]byte, uint64(min)*uint64(PageSize)),
		min:    min,
		max:    max,
		hasMax: hasMax,
	}
}

func (m *Memory) PageCount() uint32 { return uint32(len(m.buf)) / PageSize }

func (m *Memory) ByteLen() uint32 { return uint32(len(m.buf)) }

// Subscribe registers fn to be called whenever Grow reallocates the
// backing buffer, so that anything holding a raw slice/pointer derived
// from Bytes() can refresh it. Returns an unsubscribe func.
func (m *Memory) Subscribe(fn func()) (unsubscribe func()) {
	m.subscribers = append(m.subscribers, fn)
	idx := len(m.subscribers) - 1
	return func() { m.subscribers[idx] = nil }
}

// Grow attempts to add delta pages, returning the previous page count on
// success or -1 (as uint32(0xffffffff)) on failure, matching the wasm
// memory.grow instruction's result convention.
func (m *Memory) Grow(delta uint32) uint32 {
	prev := m.PageCount()
	next := prev + delta
	if next < prev {
		return 0xffffffff // overflow
	}
	if next > MaxPages {
		return 0xffffffff
	}
	if m.hasMax && next > m.max {
		return 0xffffffff
	}
	grown := make([]byte, uint64(next)*uint64(PageSize))
	copy(grown, m.buf)
	m.buf = grown
	for _, fn := range m.subscribers {
		if fn != nil {
			fn()
		}
	}
	return prev
}

// InBounds reports whether a size-byte access at addr+offset lies fully
// within the buffer, computing the bound check in 64-bit; a sum that
// wraps past 2^64 is also reported as out of bounds.
func (m *Memory) InBounds(addr, offset uint64, size uint32) bool {
	end := addr + offset + uint64(size)
	return end <= uint64(len(m.buf)) && end >= addr
}

func (m *Memory) ReadByte(addr uint64) (byte, bool) {
	if addr >= uint64(len(m.buf)) {
		return 0, false
	}
	return m.buf[addr], true
}

func (m *Memory) WriteByte(addr uint64, v byte) bool {
	if addr >= uint64(len(m.buf)) {
		return false
	}
	m.buf[addr] = v
	return true
}

func (m *Memory) ReadUint16Le(addr uint64) (uint16, bool) {
	if !m.InBounds(addr, 0, 2) {
		return 0, false
	}
	return binary.LittleEndian.Uint16(m.buf[addr:]), true
}

func (m *Memory) WriteUint16Le(addr uint64, v uint16) bool {
	if !m.InBounds(addr, 0, 2) {
		return false
	}
	binary.LittleEndian.PutUint16(m.buf[addr:], v)
	return true
}

func (m *Memory) ReadUint32Le(addr uint64) (uint32, bool) {
	if !m.InBounds(addr, 0, 4) {
		return 0, false
	}
	return binary.LittleEndian.Uint32(m.buf[addr:]), true
}

func (m *Memory) WriteUint32Le(addr uint64, v uint32) bool {
	if !m.InBounds(addr, 0, 4) {
		return false
	}
	binary.LittleEndian.PutUint32(m.buf[addr:], v)
	return true
}

func (m *Memory) ReadUint64Le(addr uint64) (uint64, bool) {
	if !m.InBounds(addr, 0, 8) {
		return 0, false
	}
	return binary.LittleEndian.Uint64(m.buf[addr:]), true
}

func (m *Memory) WriteUint64Le(addr uint64, v uint64) bool {
	if !m.InBounds(addr, 0, 8) {
		return false
	}
	binary.LittleEndian.PutUint64(m.buf[addr:], v)
	return true
}

// ReadFloat32Le/WriteFloat32Le and ReadFloat64Le/WriteFloat64Le round-trip
// the exact raw bits, so a stored NaN's payload survives a load unchanged
// (math32.Float32frombits/math.Float64frombits do no canonicalization).
func (m *Memory) ReadFloat32Le(addr uint64) (float32, bool) {
	v, ok := m.ReadUint32Le(addr)
	if !ok {
		return 0, false
	}
	return math32.Float32frombits(v), true
}

func (m *Memory) WriteFloat32Le(addr uint64, v float32) bool {
	return m.WriteUint32Le(addr, math32.Float32bits(v))
}

func (m *Memory) ReadFloat64Le(addr uint64) (float64, bool) {
	v, ok := m.ReadUint64Le(addr)
	if !ok {
		return 0, false
	}
	return math.Float64frombits(v), true
}

func (m *Memory) WriteFloat64Le(addr uint64, v float64) bool {
	return m.WriteUint64Le(addr, math.Float64bits(v))
}

// Bytes exposes the raw backing slice, e.g. for bulk data-segment
// initialization at instantiation time. Callers must not retain it across
// a Grow call, which reallocates; use Subscribe to be notified.
func (m *Memory) Bytes() []byte { return m.buf }

package mem

import (
	"encoding/binary"
	"fmt"
	"strings"
)

// DefaultSize is the default memory size in bytes.
const DefaultSize = 4096

// AddrError reports an access outside the valid address range.
type AddrError struct {
	Addr   int64
	Length int
}

func (e *AddrError) Error() string {
	if e.Length > 1 {
		return fmt.Sprintf("invalid memory address range: 0x%x (+%d)", e.Addr, e.Length)
	}
	return fmt.Sprintf("invalid memory address: 0x%x", e.Addr)
}

// Memory is a fixed-size byte-addressable buffer. Quad values are stored
// little-endian and round-trip as two's-complement signed 64-bit integers.
type Memory struct {
	data  []byte
	cache *CacheStats
}

// New creates a memory of the given size. A size of 0 or less uses DefaultSize.
func New(size int) *Memory {
	if size <= 0 {
		size = DefaultSize
	}
	return &Memory{
		data:  make([]byte, size),
		cache: newCacheStats(),
	}
}

// Size returns the memory size in bytes.
func (m *Memory) Size() int {
	return len(m.data)
}

// Valid reports whether an access of length bytes at addr stays in range.
func (m *Memory) Valid(addr int64, length int) bool {
	return addr >= 0 && addr+int64(length) <= int64(len(m.data))
}

// ReadByte reads a single byte.
func (m *Memory) ReadByte(addr int64) (uint8, error) {
	if !m.Valid(addr, 1) {
		return 0, &AddrError{Addr: addr, Length: 1}
	}
	return m.data[addr], nil
}

// WriteByte stores the low 8 bits of v.
func (m *Memory) WriteByte(addr int64, v uint8) error {
	if !m.Valid(addr, 1) {
		return &AddrError{Addr: addr, Length: 1}
	}
	m.data[addr] = v
	return nil
}

// ReadQuad reads 8 bytes little-endian and reinterprets them as a signed
// 64-bit integer.
func (m *Memory) ReadQuad(addr int64) (int64, error) {
	if !m.Valid(addr, 8) {
		return 0, &AddrError{Addr: addr, Length: 8}
	}
	m.cache.access(addr)
	return int64(binary.LittleEndian.Uint64(m.data[addr:])), nil
}

// WriteQuad encodes v as 8 little-endian bytes. Negative values wrap via
// two's complement.
func (m *Memory) WriteQuad(addr int64, v int64) error {
	if !m.Valid(addr, 8) {
		return &AddrError{Addr: addr, Length: 8}
	}
	m.cache.access(addr)
	binary.LittleEndian.PutUint64(m.data[addr:], uint64(v))
	return nil
}

// Load copies an image into memory starting at offset.
func (m *Memory) Load(image []byte, offset int64) error {
	if !m.Valid(offset, len(image)) {
		return &AddrError{Addr: offset, Length: len(image)}
	}
	copy(m.data[offset:], image)
	return nil
}

// Reset zeroes memory and the cache counters.
func (m *Memory) Reset() {
	for i := range m.data {
		m.data[i] = 0
	}
	m.cache = newCacheStats()
}

// Cache returns the opaque cache counters.
func (m *Memory) Cache() *CacheStats {
	return m.cache
}

// NonZeroQuads returns every 8-aligned quad with a non-zero value, keyed by
// address. Reads bypass the cache counters so state capture does not perturb
// them.
func (m *Memory) NonZeroQuads() map[int64]int64 {
	quads := make(map[int64]int64)
	for addr := int64(0); addr+8 <= int64(len(m.data)); addr += 8 {
		v := int64(binary.LittleEndian.Uint64(m.data[addr:]))
		if v != 0 {
			quads[addr] = v
		}
	}
	return quads
}

// Dump renders length bytes starting at start as a hexdump, 16 bytes per row.
func (m *Memory) Dump(start, length int) string {
	var b strings.Builder
	end := start + length
	if end > len(m.data) {
		end = len(m.data)
	}
	for addr := start; addr < end; addr += 16 {
		row := end - addr
		if row > 16 {
			row = 16
		}
		fmt.Fprintf(&b, "0x%04x:", addr)
		for i := 0; i < row; i++ {
			fmt.Fprintf(&b, " %02x", m.data[addr+i])
		}
		b.WriteByte('\n')
	}
	return strings.TrimRight(b.String(), "\n")
}

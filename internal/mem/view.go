package mem

import (
	"encoding/binary"
	"math"
	"unsafe"
)

// LoadF64 reads the i-th float64 of the array starting at a.
func (s *Space) LoadF64(a Addr, i int) float64 {
	b := s.mustBytes(a.Add(i*8), 8)
	return math.Float64frombits(binary.NativeEndian.Uint64(b))
}

// StoreF64 writes the i-th float64 of the array starting at a.
func (s *Space) StoreF64(a Addr, i int, v float64) {
	b := s.mustBytes(a.Add(i*8), 8)
	binary.NativeEndian.PutUint64(b, math.Float64bits(v))
}

// AddF64 accumulates v into the i-th float64 of the array starting at a.
func (s *Space) AddF64(a Addr, i int, v float64) {
	s.StoreF64(a, i, s.LoadF64(a, i)+v)
}

// LoadU32 reads the i-th uint32 of the array starting at a.
func (s *Space) LoadU32(a Addr, i int) uint32 {
	return binary.NativeEndian.Uint32(s.mustBytes(a.Add(i*4), 4))
}

// StoreU32 writes the i-th uint32 of the array starting at a.
func (s *Space) StoreU32(a Addr, i int, v uint32) {
	binary.NativeEndian.PutUint32(s.mustBytes(a.Add(i*4), 4), v)
}

// Zero clears n bytes starting at a.
func (s *Space) Zero(a Addr, n int) {
	clear(s.mustBytes(a, n))
}

// Float64Bytes views xs as raw bytes without copying.
func Float64Bytes(xs []float64) []byte {
	if len(xs) == 0 {
		return nil
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(unsafe.SliceData(xs))), len(xs)*8)
}

// Uint32Bytes views xs as raw bytes without copying.
func Uint32Bytes(xs []uint32) []byte {
	if len(xs) == 0 {
		return nil
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(unsafe.SliceData(xs))), len(xs)*4)
}

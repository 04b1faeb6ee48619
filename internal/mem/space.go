// Package mem models the flat address space that compiled images, bound
// user data and runtime temporaries share.
//
// An Addr is a pointer-sized word: the high 32 bits select an allocation
// and the low 32 bits are a byte offset inside it. Addr 0 is null. Compiled
// code stores and loads Addr values through pointer-sized global slots, so
// the binding layer can rewire what a slot points to without touching the
// code that reads it.
package mem

import (
	"encoding/binary"
	"fmt"

	"fortio.org/safecast"
)

// Addr is a pointer-sized address inside a Space.
type Addr uint64

// Null is the zero address.
const Null Addr = 0

// WordSize is the size of a pointer-sized slot in bytes.
const WordSize = 8

// Handle returns the allocation handle part of the address.
func (a Addr) Handle() uint32 { return uint32(a >> 32) }

// Offset returns the byte offset part of the address.
func (a Addr) Offset() uint32 { return uint32(a) }

// IsNull reports whether a is the null address.
func (a Addr) IsNull() bool { return a == Null }

// Add returns the address off bytes past a.
func (a Addr) Add(off int) Addr {
	o, err := safecast.Conv[uint32](int(a.Offset()) + off)
	if err != nil {
		panic(fmt.Errorf("address offset overflow: %w", err))
	}
	return Addr(uint64(a.Handle())<<32 | uint64(o))
}

func (a Addr) String() string {
	if a.IsNull() {
		return "null"
	}
	return fmt.Sprintf("%d+%d", a.Handle(), a.Offset())
}

type allocation struct {
	data     []byte
	freed    bool
	external bool
	label    string
}

// Counters records allocation activity of a Space.
type Counters struct {
	Allocs     int
	Frees      int
	Maps       int
	Unmaps     int
	LiveBytes  int
	TotalBytes int
}

// Space is a single-threaded address space. It is not safe for concurrent
// use; each bound function owns its own Space.
type Space struct {
	next     uint32
	allocs   map[uint32]*allocation
	counters Counters
}

// NewSpace creates an empty address space.
func NewSpace() *Space {
	return &Space{
		next:   1,
		allocs: make(map[uint32]*allocation, 64),
	}
}

func (s *Space) nextHandle() uint32 {
	h := s.next
	if h == 0 {
		panic("mem: address space exhausted")
	}
	s.next++
	return h
}

// Alloc reserves size zeroed bytes owned by the space.
func (s *Space) Alloc(size int, label string) Addr {
	if size < 0 {
		panic(fmt.Errorf("mem: negative allocation size %d for %q", size, label))
	}
	if _, err := safecast.Conv[uint32](size); err != nil {
		panic(fmt.Errorf("mem: allocation size overflow for %q: %w", label, err))
	}
	h := s.nextHandle()
	s.allocs[h] = &allocation{data: make([]byte, size), label: label}
	s.counters.Allocs++
	s.counters.LiveBytes += size
	s.counters.TotalBytes += size
	return Addr(uint64(h) << 32)
}

// Map registers caller-owned memory in the space without copying it.
// Writes through the returned address are visible in data.
func (s *Space) Map(data []byte, label string) Addr {
	if _, err := safecast.Conv[uint32](len(data)); err != nil {
		panic(fmt.Errorf("mem: mapping size overflow for %q: %w", label, err))
	}
	h := s.nextHandle()
	s.allocs[h] = &allocation{data: data, external: true, label: label}
	s.counters.Maps++
	return Addr(uint64(h) << 32)
}

// Free releases an allocation made by Alloc, or drops a mapping made by Map.
// The address must point at the start of the allocation.
func (s *Space) Free(a Addr) error {
	if a.IsNull() {
		return &Fault{Code: FaultInvalidHandle, Addr: a, Msg: "free of null address"}
	}
	alloc, ok := s.allocs[a.Handle()]
	if !ok {
		return &Fault{Code: FaultInvalidHandle, Addr: a, Msg: "free of unknown address"}
	}
	if alloc.freed {
		return &Fault{Code: FaultDoubleFree, Addr: a, Msg: fmt.Sprintf("double free of %q", alloc.label)}
	}
	if a.Offset() != 0 {
		return &Fault{Code: FaultInvalidHandle, Addr: a, Msg: "free of interior address"}
	}
	alloc.freed = true
	if alloc.external {
		s.counters.Unmaps++
	} else {
		s.counters.Frees++
		s.counters.LiveBytes -= len(alloc.data)
	}
	alloc.data = nil
	return nil
}

// Size returns the byte length of the allocation a points into.
func (s *Space) Size(a Addr) (int, error) {
	alloc, err := s.get(a)
	if err != nil {
		return 0, err
	}
	return len(alloc.data), nil
}

// Counters returns a snapshot of the allocation counters.
func (s *Space) Counters() Counters {
	return s.counters
}

func (s *Space) get(a Addr) (*allocation, *Fault) {
	if a.IsNull() {
		return nil, &Fault{Code: FaultNullDeref, Addr: a, Msg: "null dereference"}
	}
	alloc, ok := s.allocs[a.Handle()]
	if !ok {
		return nil, &Fault{Code: FaultInvalidHandle, Addr: a, Msg: "unknown address"}
	}
	if alloc.freed {
		return nil, &Fault{Code: FaultUseAfterFree, Addr: a, Msg: fmt.Sprintf("use after free of %q", alloc.label)}
	}
	return alloc, nil
}

// Bytes returns n bytes starting at a. The slice aliases the space.
func (s *Space) Bytes(a Addr, n int) ([]byte, error) {
	alloc, fault := s.get(a)
	if fault != nil {
		return nil, fault
	}
	off := int(a.Offset())
	if n < 0 || off+n > len(alloc.data) {
		return nil, &Fault{
			Code: FaultOutOfBounds,
			Addr: a,
			Msg:  fmt.Sprintf("access of %d bytes at offset %d in %q (size %d)", n, off, alloc.label, len(alloc.data)),
		}
	}
	return alloc.data[off : off+n], nil
}

func (s *Space) mustBytes(a Addr, n int) []byte {
	b, err := s.Bytes(a, n)
	if err != nil {
		panic(err)
	}
	return b
}

// LoadWord reads the pointer-sized word at a. It panics with a *Fault on
// an invalid access; image.Callable turns such panics into errors.
func (s *Space) LoadWord(a Addr) uint64 {
	return binary.NativeEndian.Uint64(s.mustBytes(a, WordSize))
}

// StoreWord writes the pointer-sized word at a.
func (s *Space) StoreWord(a Addr, v uint64) {
	binary.NativeEndian.PutUint64(s.mustBytes(a, WordSize), v)
}

// LoadAddr reads an address stored at a.
func (s *Space) LoadAddr(a Addr) Addr { return Addr(s.LoadWord(a)) }

// StoreAddr writes an address into the slot at a.
func (s *Space) StoreAddr(a, v Addr) { s.StoreWord(a, uint64(v)) }

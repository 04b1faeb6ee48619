package mem

import (
	"errors"
	"testing"
)

func TestAllocStoreLoad(t *testing.T) {
	s := NewSpace()
	a := s.Alloc(4*8, "vec")
	if a.IsNull() {
		t.Fatal("alloc returned null")
	}
	s.StoreF64(a, 2, 1.5)
	s.AddF64(a, 2, 2.0)
	if got := s.LoadF64(a, 2); got != 3.5 {
		t.Fatalf("LoadF64 = %v, want 3.5", got)
	}
	if got := s.LoadF64(a, 0); got != 0 {
		t.Fatalf("fresh allocation not zeroed: %v", got)
	}
	if c := s.Counters(); c.Allocs != 1 || c.LiveBytes != 32 {
		t.Fatalf("unexpected counters: %+v", c)
	}
}

func TestMapAliasesCallerMemory(t *testing.T) {
	s := NewSpace()
	xs := []float64{1, 2, 3}
	a := s.Map(Float64Bytes(xs), "xs")
	s.StoreF64(a, 1, 42)
	if xs[1] != 42 {
		t.Fatalf("write through mapping not visible: %v", xs)
	}
	ids := []uint32{7, 8}
	b := s.Map(Uint32Bytes(ids), "ids")
	if got := s.LoadU32(b, 1); got != 8 {
		t.Fatalf("LoadU32 = %d, want 8", got)
	}
	if err := s.Free(b); err != nil {
		t.Fatalf("unmap: %v", err)
	}
	if c := s.Counters(); c.Maps != 2 || c.Unmaps != 1 {
		t.Fatalf("unexpected counters: %+v", c)
	}
}

func TestWordSlots(t *testing.T) {
	s := NewSpace()
	slot := s.Alloc(WordSize, "slot")
	target := s.Alloc(16, "target")
	s.StoreAddr(slot, target.Add(8))
	got := s.LoadAddr(slot)
	if got.Handle() != target.Handle() || got.Offset() != 8 {
		t.Fatalf("LoadAddr = %s, want %s", got, target.Add(8))
	}
}

func TestFaults(t *testing.T) {
	s := NewSpace()
	a := s.Alloc(8, "x")

	if _, err := s.Bytes(a, 16); !isFault(err, FaultOutOfBounds) {
		t.Fatalf("expected out of bounds fault, got %v", err)
	}
	if _, err := s.Bytes(Null, 1); !isFault(err, FaultNullDeref) {
		t.Fatalf("expected null deref fault, got %v", err)
	}
	if err := s.Free(a.Add(4)); !isFault(err, FaultInvalidHandle) {
		t.Fatalf("expected interior free fault, got %v", err)
	}
	if err := s.Free(a); err != nil {
		t.Fatalf("free: %v", err)
	}
	if err := s.Free(a); !isFault(err, FaultDoubleFree) {
		t.Fatalf("expected double free fault, got %v", err)
	}
	if _, err := s.Bytes(a, 1); !isFault(err, FaultUseAfterFree) {
		t.Fatalf("expected use after free fault, got %v", err)
	}

	defer func() {
		r := recover()
		err, ok := r.(error)
		if !ok || !isFault(err, FaultUseAfterFree) {
			t.Fatalf("expected panic with use-after-free fault, got %v", r)
		}
	}()
	s.LoadWord(a)
}

func isFault(err error, code FaultCode) bool {
	var f *Fault
	return errors.As(err, &f) && f.Code == code
}

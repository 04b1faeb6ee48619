package image

import (
	"fmt"
	"math"

	"meshc/internal/mem"
)

// ValueKind identifies how a Value's word is interpreted.
type ValueKind uint8

const (
	VKInvalid ValueKind = iota
	// VKPtr is an address in the image's space.
	VKPtr
	// VKWord is a raw machine word.
	VKWord
	// VKFloat is an IEEE-754 double stored in the word.
	VKFloat
)

func (k ValueKind) String() string {
	switch k {
	case VKPtr:
		return "ptr"
	case VKWord:
		return "word"
	case VKFloat:
		return "double"
	}
	return "invalid"
}

// Value is one argument passed to a compiled function.
type Value struct {
	Kind ValueKind
	Bits uint64
}

func PtrValue(a mem.Addr) Value { return Value{Kind: VKPtr, Bits: uint64(a)} }
func WordValue(w uint64) Value { return Value{Kind: VKWord, Bits: w} }
func FloatValue(f float64) Value { return Value{Kind: VKFloat, Bits: math.Float64bits(f)} }

// Addr returns the pointer held by v.
func (v Value) Addr() mem.Addr {
	if v.Kind != VKPtr {
		panic(fmt.Errorf("image: %s value used as pointer", v.Kind))
	}
	return mem.Addr(v.Bits)
}

// Float returns the double held by v.
func (v Value) Float() float64 {
	if v.Kind != VKFloat {
		panic(fmt.Errorf("image: %s value used as double", v.Kind))
	}
	return math.Float64frombits(v.Bits)
}

// Word returns the raw bits of v.
func (v Value) Word() uint64 { return v.Bits }

func (v Value) String() string {
	switch v.Kind {
	case VKPtr:
		return "ptr " + mem.Addr(v.Bits).String()
	case VKFloat:
		return fmt.Sprintf("double %g", v.Float())
	case VKWord:
		return fmt.Sprintf("i64 %d", v.Bits)
	}
	return "invalid"
}

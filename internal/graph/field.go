package graph

import (
	"encoding/binary"
	"fmt"
	"math"
)

// ComponentType is the scalar type of a field component.
type ComponentType uint8

const (
	Float64 ComponentType = iota + 1
	Int32
)

// Bytes returns the size of one component.
func (c ComponentType) Bytes() int {
	switch c {
	case Float64:
		return 8
	case Int32:
		return 4
	default:
		panic(fmt.Errorf("graph: unknown component type %d", c))
	}
}

func (c ComponentType) String() string {
	switch c {
	case Float64:
		return "float"
	case Int32:
		return "int"
	default:
		return "invalid"
	}
}

// Field is a per-element array of blockSize components.
type Field struct {
	name      string
	component ComponentType
	blockSize int
	data      []byte
}

// Name returns the field name.
func (f *Field) Name() string { return f.name }

// Component returns the component type.
func (f *Field) Component() ComponentType { return f.component }

// BlockSize returns the number of components per element.
func (f *Field) BlockSize() int { return f.blockSize }

// Data returns the raw field storage. The slice aliases the set and is
// replaced when elements are added.
func (f *Field) Data() []byte { return f.data }

func (f *Field) stride() int { return f.blockSize * f.component.Bytes() }

// AddField adds a zero-initialized field to the set.
func (s *Set) AddField(name string, component ComponentType, blockSize int) (*Field, error) {
	if blockSize <= 0 {
		return nil, fmt.Errorf("set %q: field %q has block size %d", s.name, name, blockSize)
	}
	if _, dup := s.fieldIdx[name]; dup {
		return nil, fmt.Errorf("set %q: duplicate field %q", s.name, name)
	}
	f := &Field{name: name, component: component, blockSize: blockSize}
	f.data = make([]byte, s.size*f.stride())
	s.fieldIdx[name] = len(s.fields)
	s.fields = append(s.fields, f)
	return f, nil
}

// Field returns the named field, or nil.
func (s *Set) Field(name string) *Field {
	i, ok := s.fieldIdx[name]
	if !ok {
		return nil
	}
	return s.fields[i]
}

// Fields returns the fields in the order they were added.
func (s *Set) Fields() []*Field { return append([]*Field(nil), s.fields...) }

func (f *Field) offset(elem, comp int) int {
	if comp < 0 || comp >= f.blockSize {
		panic(fmt.Errorf("graph: field %q has no component %d", f.name, comp))
	}
	return (elem*f.blockSize + comp) * f.component.Bytes()
}

// Float returns component comp of element elem as a float64.
func (f *Field) Float(elem, comp int) float64 {
	off := f.offset(elem, comp)
	switch f.component {
	case Float64:
		return math.Float64frombits(binary.NativeEndian.Uint64(f.data[off:]))
	case Int32:
		return float64(int32(binary.NativeEndian.Uint32(f.data[off:])))
	default:
		panic(fmt.Errorf("graph: unknown component type %d", f.component))
	}
}

// SetFloat stores v into component comp of element elem. Int32 fields
// truncate toward zero.
func (f *Field) SetFloat(elem, comp int, v float64) {
	off := f.offset(elem, comp)
	switch f.component {
	case Float64:
		binary.NativeEndian.PutUint64(f.data[off:], math.Float64bits(v))
	case Int32:
		binary.NativeEndian.PutUint32(f.data[off:], uint32(int32(v)))
	default:
		panic(fmt.Errorf("graph: unknown component type %d", f.component))
	}
}

// Get returns the scalar value of element elem for a block size 1 field.
func (f *Field) Get(elem int) float64 { return f.Float(elem, 0) }

// Set stores a scalar value for a block size 1 field.
func (f *Field) Set(elem int, v float64) { f.SetFloat(elem, 0, v) }

// Floats copies the field out as a flat float64 slice.
func (f *Field) Floats() []float64 {
	n := len(f.data) / f.component.Bytes()
	out := make([]float64, n)
	for i := range n {
		out[i] = f.Float(i/f.blockSize, i%f.blockSize)
	}
	return out
}

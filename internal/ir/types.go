// Package ir holds the part of the intermediate representation that the
// runtime consumes: variable and tensor types, the small integer
// expressions generated code evaluates for stencil indices, tensor indices,
// storage descriptors and the environment of a compiled function.
package ir

import (
	"fmt"
	"strconv"
	"strings"
)

// ComponentType is the scalar type of tensor components.
type ComponentType uint8

const (
	Float64 ComponentType = iota + 1
	Float32
	Int32
	Uint32
	Bool
)

// Bytes returns the size of one component.
func (c ComponentType) Bytes() int {
	switch c {
	case Float64:
		return 8
	case Float32, Int32, Uint32:
		return 4
	case Bool:
		return 1
	}
	panic(fmt.Errorf("ir: unknown component type %d", c))
}

func (c ComponentType) String() string {
	switch c {
	case Float64:
		return "float"
	case Float32:
		return "float32"
	case Int32:
		return "int"
	case Uint32:
		return "uint"
	case Bool:
		return "bool"
	}
	return "invalid"
}

// IndexSetKind classifies one dimension factor of a tensor.
type IndexSetKind uint8

const (
	// RangeIS is a fixed-size range 0..n-1.
	RangeIS IndexSetKind = iota + 1
	// SetIS is the elements of a set variable.
	SetIS
	// SingleIS is the elements of a set given by an expression.
	SingleIS
	// DynamicIS is sized at run time by generated code.
	DynamicIS
)

// IndexSet is one factor of an index domain.
type IndexSet struct {
	Kind IndexSetKind
	Size int    // RangeIS
	Set  string // SetIS: name of the set variable
}

// Range returns a fixed-size index set.
func Range(n int) IndexSet { return IndexSet{Kind: RangeIS, Size: n} }

// SetOf returns the index set of the elements of the named set variable.
func SetOf(name string) IndexSet { return IndexSet{Kind: SetIS, Set: name} }

func (is IndexSet) String() string {
	switch is.Kind {
	case RangeIS:
		return strconv.Itoa(is.Size)
	case SetIS:
		return is.Set
	case SingleIS:
		return "single"
	case DynamicIS:
		return "dynamic"
	}
	return "?"
}

// IndexDomain is the product of index sets that makes up one tensor
// dimension. Sets[0] is the outer (graph) factor, the rest form the block.
type IndexDomain struct {
	Sets []IndexSet
}

// Domain builds an index domain from its factors.
func Domain(sets ...IndexSet) IndexDomain { return IndexDomain{Sets: sets} }

func (d IndexDomain) String() string {
	parts := make([]string, len(d.Sets))
	for i, s := range d.Sets {
		parts[i] = s.String()
	}
	return strings.Join(parts, "*")
}

// TensorType is a tensor of Component values over Dims.
type TensorType struct {
	Component ComponentType
	Dims      []IndexDomain
}

// Order returns the number of dimensions.
func (t TensorType) Order() int { return len(t.Dims) }

// OuterDimensions returns the outer factor of every dimension.
func (t TensorType) OuterDimensions() []IndexSet {
	out := make([]IndexSet, len(t.Dims))
	for i, d := range t.Dims {
		if len(d.Sets) == 0 {
			panic(fmt.Errorf("ir: empty index domain in %v", t))
		}
		out[i] = d.Sets[0]
	}
	return out
}

// BlockSize returns the number of components per outer element, the
// product of the inner factors of every dimension. Inner factors must be
// ranges.
func (t TensorType) BlockSize() int {
	n := 1
	for _, d := range t.Dims {
		for _, is := range d.Sets[1:] {
			if is.Kind != RangeIS {
				panic(fmt.Errorf("ir: non-range block dimension %v in %v", is, t))
			}
			n *= is.Size
		}
	}
	return n
}

func (t TensorType) String() string {
	if len(t.Dims) == 0 {
		return t.Component.String()
	}
	parts := make([]string, len(t.Dims))
	for i, d := range t.Dims {
		parts[i] = d.String()
	}
	return "tensor[" + strings.Join(parts, ",") + "](" + t.Component.String() + ")"
}

// TypeKind classifies variable types.
type TypeKind uint8

const (
	TensorKind TypeKind = iota + 1
	UnstructuredSetKind
	LatticeLinkSetKind
	ArrayKind
)

// FieldType declares one field of a set's elements.
type FieldType struct {
	Name string
	Type TensorType
}

// SetType describes the elements of a set variable.
type SetType struct {
	Element   string
	Endpoints []string // endpoint set variable names, empty for node sets
	Fields    []FieldType
	Points    string // lattice point set
	Dims      int    // lattice dimension count
}

// Type is the type of a variable.
type Type struct {
	Kind   TypeKind
	Tensor *TensorType
	Set    *SetType
	Array  ComponentType
}

// TensorOf returns the tensor type t.
func TensorOf(t TensorType) Type { return Type{Kind: TensorKind, Tensor: &t} }

// Scalar returns an order-0 tensor type.
func Scalar(c ComponentType) Type { return TensorOf(TensorType{Component: c}) }

// UnstructuredSet returns the type of a node or edge set.
func UnstructuredSet(element string, endpoints []string, fields ...FieldType) Type {
	return Type{Kind: UnstructuredSetKind, Set: &SetType{Element: element, Endpoints: endpoints, Fields: fields}}
}

// LatticeLinkSet returns the type of the links of a dims-dimensional
// lattice over the point set variable points.
func LatticeLinkSet(element, points string, dims int, fields ...FieldType) Type {
	return Type{Kind: LatticeLinkSetKind, Set: &SetType{
		Element: element, Endpoints: []string{points, points}, Fields: fields, Points: points, Dims: dims,
	}}
}

// ArrayOf returns the type of a raw array of c.
func ArrayOf(c ComponentType) Type { return Type{Kind: ArrayKind, Array: c} }

func (t Type) IsTensor() bool { return t.Kind == TensorKind }

func (t Type) IsSet() bool {
	return t.Kind == UnstructuredSetKind || t.Kind == LatticeLinkSetKind
}

func (t Type) IsUnstructuredSet() bool { return t.Kind == UnstructuredSetKind }

func (t Type) IsLatticeLinkSet() bool { return t.Kind == LatticeLinkSetKind }

func (t Type) String() string {
	switch t.Kind {
	case TensorKind:
		return t.Tensor.String()
	case UnstructuredSetKind:
		s := "set{" + t.Set.Element + "}"
		if len(t.Set.Endpoints) > 0 {
			s += "(" + strings.Join(t.Set.Endpoints, ",") + ")"
		}
		return s
	case LatticeLinkSetKind:
		return fmt.Sprintf("lattice[%d]{%s}(%s)", t.Set.Dims, t.Set.Element, t.Set.Points)
	case ArrayKind:
		return t.Array.String() + "[]"
	}
	return "invalid"
}

// Var is a named variable.
type Var struct {
	Name string
	Type Type
}

// NewVar returns a variable.
func NewVar(name string, t Type) Var { return Var{Name: name, Type: t} }

// Defined reports whether v has a name.
func (v Var) Defined() bool { return v.Name != "" }

func (v Var) String() string { return v.Name }

package ir

import (
	"fmt"
	"iter"
	"strings"

	"meshc/internal/pe"
)

// StorageKind is how a tensor's values are laid out in memory.
type StorageKind uint8

const (
	Undefined StorageKind = iota
	// Dense tensors are stored row major.
	Dense
	// Diagonal matrices store one block per outer element.
	Diagonal
	// Indexed matrices store their non-zeros in the order of a PExpr
	// tensor index.
	Indexed
	// Stencil matrices store Size() blocks per row in stencil order.
	Stencil
)

func (k StorageKind) String() string {
	switch k {
	case Undefined:
		return "undefined"
	case Dense:
		return "dense"
	case Diagonal:
		return "diagonal"
	case Indexed:
		return "indexed"
	case Stencil:
		return "stencil"
	}
	return "invalid"
}

// TensorStorage describes the storage of one tensor. The zero value is
// Undefined.
type TensorStorage struct {
	kind  StorageKind
	index *TensorIndex
}

// NewTensorStorage returns a descriptor of a kind that carries no index.
func NewTensorStorage(kind StorageKind) TensorStorage {
	if kind == Indexed || kind == Stencil {
		panic(fmt.Errorf("ir: %s storage needs a tensor index", kind))
	}
	return TensorStorage{kind: kind}
}

// NewIndexedStorage returns an Indexed or Stencil descriptor governed by ti.
func NewIndexedStorage(kind StorageKind, ti *TensorIndex) TensorStorage {
	switch {
	case kind == Indexed && ti != nil && ti.Kind() == PExpr:
	case kind == Stencil && ti != nil && ti.Kind() == Sten:
	default:
		panic(fmt.Errorf("ir: %s storage with tensor index %v", kind, ti))
	}
	return TensorStorage{kind: kind, index: ti}
}

func (ts TensorStorage) Kind() StorageKind { return ts.kind }

// HasTensorIndex reports whether the kind carries a tensor index.
func (ts TensorStorage) HasTensorIndex() bool { return ts.index != nil }

// TensorIndex returns the governing index of an Indexed or Stencil tensor.
func (ts TensorStorage) TensorIndex() *TensorIndex {
	if ts.index == nil {
		panic(fmt.Errorf("ir: %s storage has no tensor index", ts.kind))
	}
	return ts.index
}

// AssemblyKind is how the non-zeros of a matrix were established.
type AssemblyKind uint8

const (
	// FromEndpoints: assembled by mapping over an edge set and writing
	// blocks at pairs of endpoints.
	FromEndpoints AssemblyKind = iota + 1
	// FromStencil: assembled over a lattice at fixed offsets.
	FromStencil
	// PerElement: one block per element of the outer set.
	PerElement
	// Unassembled tensors are dense.
	Unassembled
)

// Assembly records how a matrix was assembled.
type Assembly struct {
	Kind    AssemblyKind
	Expr    pe.PathExpression // FromEndpoints
	Stencil StencilLayout     // FromStencil
}

// SetTensorIndex classifies tensor from the way its non-zeros were
// assembled and attaches the shared tensor index from env.
func (ts *TensorStorage) SetTensorIndex(tensor Var, a Assembly, env *Environment) {
	if !tensor.Type.IsTensor() {
		panic(fmt.Errorf("ir: storage of non-tensor %s", tensor.Name))
	}
	tt := *tensor.Type.Tensor
	if a.Kind != Unassembled && tt.Order() != 2 {
		panic(fmt.Errorf("ir: %s is assembled but has order %d", tensor.Name, tt.Order()))
	}
	switch a.Kind {
	case FromEndpoints:
		*ts = NewIndexedStorage(Indexed, env.pathIndexFor(tensor, a.Expr))
	case FromStencil:
		outer := tt.OuterDimensions()
		if outer[0] != outer[1] {
			panic(fmt.Errorf("ir: stencil tensor %s has outer dimensions %v and %v", tensor.Name, outer[0], outer[1]))
		}
		*ts = NewIndexedStorage(Stencil, env.stencilIndexFor(tensor, a.Stencil))
	case PerElement:
		*ts = NewTensorStorage(Diagonal)
	case Unassembled:
		*ts = NewTensorStorage(Dense)
	default:
		panic(fmt.Errorf("ir: unknown assembly kind %d for %s", a.Kind, tensor.Name))
	}
}

func (ts TensorStorage) String() string {
	if ts.index != nil {
		return ts.kind.String() + " (" + ts.index.Name() + ")"
	}
	return ts.kind.String()
}

// Storage maps tensor variables to their storage descriptors and iterates
// them in registration order.
type Storage struct {
	order []Var
	byVar map[string]TensorStorage
}

// NewStorage returns an empty Storage.
func NewStorage() *Storage {
	return &Storage{byVar: make(map[string]TensorStorage)}
}

// Add sets the storage of tensor. Re-adding a tensor keeps its position.
func (s *Storage) Add(tensor Var, ts TensorStorage) {
	if _, ok := s.byVar[tensor.Name]; !ok {
		s.order = append(s.order, tensor)
	}
	s.byVar[tensor.Name] = ts
}

// Merge adds every descriptor of other.
func (s *Storage) Merge(other *Storage) {
	for _, v := range other.order {
		s.Add(v, other.byVar[v.Name])
	}
}

// Has reports whether tensor has a descriptor.
func (s *Storage) Has(tensor Var) bool {
	_, ok := s.byVar[tensor.Name]
	return ok
}

// Get returns the descriptor of tensor.
func (s *Storage) Get(tensor Var) TensorStorage {
	ts, ok := s.byVar[tensor.Name]
	if !ok {
		panic(fmt.Errorf("ir: no storage for %s", tensor.Name))
	}
	return ts
}

// Update replaces the descriptor of tensor with f applied to it.
func (s *Storage) Update(tensor Var, f func(*TensorStorage)) {
	ts := s.byVar[tensor.Name]
	f(&ts)
	s.Add(tensor, ts)
}

// Len returns the number of described tensors.
func (s *Storage) Len() int { return len(s.order) }

// Vars returns the described tensors in registration order.
func (s *Storage) Vars() []Var { return append([]Var(nil), s.order...) }

// All iterates tensors and descriptors in registration order.
func (s *Storage) All() iter.Seq2[Var, TensorStorage] {
	return func(yield func(Var, TensorStorage) bool) {
		for _, v := range s.order {
			if !yield(v, s.byVar[v.Name]) {
				return
			}
		}
	}
}

func (s *Storage) String() string {
	var sb strings.Builder
	for i, v := range s.order {
		if i > 0 {
			sb.WriteString("\n")
		}
		fmt.Fprintf(&sb, "%s : %s", v.Name, s.byVar[v.Name])
	}
	return sb.String()
}

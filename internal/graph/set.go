// Package graph holds the user-facing graph sets that compiled programs are
// bound to: node sets, edge sets whose elements connect elements of other
// sets, and lattice link sets whose edges connect points of a periodic grid.
//
// Field data is stored in raw native-endian byte arrays so the binding
// layer can map it straight into an address space and compiled code can
// read and write it in place.
package graph

import (
	"fmt"
	"sync/atomic"

	"fortio.org/safecast"
)

// Kind is the topological kind of a set.
type Kind uint8

const (
	// Unstructured sets hold explicitly added elements.
	Unstructured Kind = iota + 1
	// LatticeLink sets hold the links of a periodic lattice.
	LatticeLink
)

func (k Kind) String() string {
	switch k {
	case Unstructured:
		return "unstructured"
	case LatticeLink:
		return "lattice-link"
	default:
		return "unknown"
	}
}

var nextSetID uint64

// Set is a collection of elements with fields. Edge sets additionally
// record, for every element, the ids of its endpoints in other sets.
type Set struct {
	id   uint64
	name string
	kind Kind
	size int

	endpointSets []*Set
	endpoints    []uint32

	dims []int

	fields   []*Field
	fieldIdx map[string]int
}

func newSet(name string, kind Kind) *Set {
	return &Set{
		id:       atomic.AddUint64(&nextSetID, 1),
		name:     name,
		kind:     kind,
		fieldIdx: make(map[string]int),
	}
}

// NewSet creates an empty node set.
func NewSet(name string) *Set {
	return newSet(name, Unstructured)
}

// NewEdgeSet creates an empty edge set whose elements connect one element
// of each endpoint set, in order.
func NewEdgeSet(name string, endpoints ...*Set) *Set {
	s := newSet(name, Unstructured)
	s.endpointSets = append([]*Set(nil), endpoints...)
	return s
}

// NewLatticeLinkSet creates the links of a periodic lattice with the given
// dimensions over points. points must be empty; it receives one element per
// lattice point. There is one link per point and dimension, connecting the
// point to its successor along that dimension (wrapping around).
func NewLatticeLinkSet(name string, points *Set, dims []int) (*Set, error) {
	if points == nil {
		return nil, fmt.Errorf("lattice %q: nil point set", name)
	}
	if points.size != 0 {
		return nil, fmt.Errorf("lattice %q: point set %q must be empty, has %d elements", name, points.name, points.size)
	}
	if len(dims) == 0 {
		return nil, fmt.Errorf("lattice %q: no dimensions", name)
	}
	n := 1
	for i, d := range dims {
		if d <= 0 {
			return nil, fmt.Errorf("lattice %q: dimension %d has non-positive extent %d", name, i, d)
		}
		n *= d
	}
	for range n {
		points.Add()
	}

	s := newSet(name, LatticeLink)
	s.endpointSets = []*Set{points, points}
	s.dims = append([]int(nil), dims...)
	coords := make([]int, len(dims))
	for p := range n {
		for dir := range dims {
			copy(coords, latticeCoords(p, dims))
			coords[dir] = (coords[dir] + 1) % dims[dir]
			s.appendEdge([]int{p, latticeLinear(coords, dims)})
		}
	}
	return s, nil
}

// ID is unique per set for the lifetime of the process.
func (s *Set) ID() uint64 { return s.id }

// Name returns the set's name.
func (s *Set) Name() string { return s.name }

// Kind returns the topological kind.
func (s *Set) Kind() Kind { return s.kind }

// Size returns the number of elements.
func (s *Set) Size() int { return s.size }

// Cardinality returns the number of endpoints per element (0 for node sets).
func (s *Set) Cardinality() int { return len(s.endpointSets) }

// EndpointSet returns the set the i-th endpoint of every element belongs to.
func (s *Set) EndpointSet(i int) *Set { return s.endpointSets[i] }

// EndpointSetID returns the ID of the i-th endpoint set.
func (s *Set) EndpointSetID(i int) uint64 { return s.endpointSets[i].id }

// Endpoint returns the id of the i-th endpoint of element elem.
func (s *Set) Endpoint(elem, i int) int {
	return int(s.endpoints[elem*len(s.endpointSets)+i])
}

// Endpoints returns the flattened endpoint table (Size()*Cardinality() ids).
// The slice aliases the set.
func (s *Set) Endpoints() []uint32 { return s.endpoints }

// Dimensions returns the lattice dimensions of a lattice link set.
func (s *Set) Dimensions() []int { return append([]int(nil), s.dims...) }

// Add appends an element to a node set and returns its id.
func (s *Set) Add() int {
	if len(s.endpointSets) != 0 {
		panic(fmt.Errorf("graph: Add on edge set %q, use AddEdge", s.name))
	}
	return s.grow()
}

// AddEdge appends an edge connecting the given endpoint elements.
func (s *Set) AddEdge(endpoints ...int) (int, error) {
	if s.kind == LatticeLink {
		return 0, fmt.Errorf("set %q: lattice links are fixed", s.name)
	}
	if len(endpoints) != len(s.endpointSets) {
		return 0, fmt.Errorf("set %q: edge has %d endpoints, want %d", s.name, len(endpoints), len(s.endpointSets))
	}
	for i, e := range endpoints {
		if e < 0 || e >= s.endpointSets[i].size {
			return 0, fmt.Errorf("set %q: endpoint %d is %d, outside %q (size %d)", s.name, i, e, s.endpointSets[i].name, s.endpointSets[i].size)
		}
	}
	return s.appendEdge(endpoints), nil
}

func (s *Set) appendEdge(endpoints []int) int {
	for _, e := range endpoints {
		id, err := safecast.Conv[uint32](e)
		if err != nil {
			panic(fmt.Errorf("endpoint id overflow: %w", err))
		}
		s.endpoints = append(s.endpoints, id)
	}
	return s.grow()
}

func (s *Set) grow() int {
	id := s.size
	s.size++
	for _, f := range s.fields {
		f.data = append(f.data, make([]byte, f.stride())...)
	}
	return id
}

// LatticePoint returns the point id at the given lattice coordinates.
func (s *Set) LatticePoint(coords []int) int {
	s.mustLattice()
	return latticeLinear(wrapCoords(coords, s.dims), s.dims)
}

// LatticeLink returns the id of the link leaving the point at coords along
// dimension dir.
func (s *Set) LatticeLink(coords []int, dir int) int {
	s.mustLattice()
	if dir < 0 || dir >= len(s.dims) {
		panic(fmt.Errorf("graph: lattice %q has no direction %d", s.name, dir))
	}
	return latticeLinear(wrapCoords(coords, s.dims), s.dims)*len(s.dims) + dir
}

func (s *Set) mustLattice() {
	if s.kind != LatticeLink {
		panic(fmt.Errorf("graph: %q is not a lattice link set", s.name))
	}
}

// latticeLinear linearizes coordinates with dimension 0 varying fastest.
func latticeLinear(coords, dims []int) int {
	idx, stride := 0, 1
	for d := range dims {
		idx += coords[d] * stride
		stride *= dims[d]
	}
	return idx
}

func latticeCoords(p int, dims []int) []int {
	out := make([]int, len(dims))
	for d := range dims {
		out[d] = p % dims[d]
		p /= dims[d]
	}
	return out
}

func wrapCoords(coords, dims []int) []int {
	if len(coords) != len(dims) {
		panic(fmt.Errorf("graph: %d coordinates for a %d-dimensional lattice", len(coords), len(dims)))
	}
	out := make([]int, len(dims))
	for d := range dims {
		out[d] = ((coords[d] % dims[d]) + dims[d]) % dims[d]
	}
	return out
}

func (s *Set) String() string {
	return fmt.Sprintf("%s{%s, size=%d, card=%d}", s.name, s.kind, s.size, s.Cardinality())
}

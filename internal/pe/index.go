package pe

import (
	"fmt"
	"iter"
	"strings"
)

// Kind distinguishes the path index representations.
type Kind uint8

const (
	// SetEndpoint indices answer from an edge set's endpoint table.
	SetEndpoint Kind = iota + 1
	// Segmented indices store neighbors in CSR form.
	Segmented
)

func (k Kind) String() string {
	switch k {
	case SetEndpoint:
		return "set-endpoint"
	case Segmented:
		return "segmented"
	default:
		return "undefined"
	}
}

// PathIndex maps every element of a set to its path neighbors. It is a
// small value; copies share the underlying arrays, which must not be
// modified. The zero value is undefined.
type PathIndex struct {
	kind   Kind
	edges  Set
	coords []uint32
	sinks  []uint32
}

func setEndpointIndex(edges Set) PathIndex {
	return PathIndex{kind: SetEndpoint, edges: edges}
}

// FromCSR wraps coords/sinks arrays in a segmented path index after
// checking that coords is a well-formed segment table over sinks.
func FromCSR(coords, sinks []uint32) (PathIndex, error) {
	if len(coords) == 0 {
		return PathIndex{}, fmt.Errorf("pe: empty coords array")
	}
	if coords[0] != 0 {
		return PathIndex{}, fmt.Errorf("pe: coords[0] = %d, want 0", coords[0])
	}
	for i := 1; i < len(coords); i++ {
		if coords[i] < coords[i-1] {
			return PathIndex{}, fmt.Errorf("pe: coords decrease at %d (%d < %d)", i, coords[i], coords[i-1])
		}
	}
	if last := coords[len(coords)-1]; int(last) != len(sinks) {
		return PathIndex{}, fmt.Errorf("pe: coords end at %d, sinks has %d entries", last, len(sinks))
	}
	return PathIndex{kind: Segmented, coords: coords, sinks: sinks}, nil
}

// Kind returns the representation of the index.
func (p PathIndex) Kind() Kind { return p.kind }

// Defined reports whether p was built.
func (p PathIndex) Defined() bool { return p.kind != 0 }

func (p PathIndex) mustDefined() {
	if p.kind == 0 {
		panic("pe: undefined path index")
	}
}

// NumElements returns the number of elements mapped to neighbors.
func (p PathIndex) NumElements() int {
	p.mustDefined()
	if p.kind == SetEndpoint {
		return p.edges.Size()
	}
	return len(p.coords) - 1
}

// NumNeighbors returns the total number of neighbors over all elements.
func (p PathIndex) NumNeighbors() int {
	p.mustDefined()
	if p.kind == SetEndpoint {
		return p.edges.Size() * p.edges.Cardinality()
	}
	return int(p.coords[len(p.coords)-1])
}

// NumNeighborsOf returns the number of neighbors of elem.
func (p PathIndex) NumNeighborsOf(elem int) int {
	p.checkElem(elem)
	if p.kind == SetEndpoint {
		return p.edges.Cardinality()
	}
	return int(p.coords[elem+1] - p.coords[elem])
}

func (p PathIndex) checkElem(elem int) {
	if n := p.NumElements(); elem < 0 || elem >= n {
		panic(fmt.Errorf("pe: element %d out of range [0,%d)", elem, n))
	}
}

// Neighbors iterates the neighbors of elem in index order. The sequence
// can be ranged over any number of times.
func (p PathIndex) Neighbors(elem int) iter.Seq[int] {
	p.checkElem(elem)
	if p.kind == SetEndpoint {
		edges := p.edges
		return func(yield func(int) bool) {
			for i := range edges.Cardinality() {
				if !yield(edges.Endpoint(elem, i)) {
					return
				}
			}
		}
	}
	seg := p.sinks[p.coords[elem]:p.coords[elem+1]]
	return func(yield func(int) bool) {
		for _, s := range seg {
			if !yield(int(s)) {
				return
			}
		}
	}
}

// Elements iterates 0..NumElements()-1.
func (p PathIndex) Elements() iter.Seq[int] {
	n := p.NumElements()
	return func(yield func(int) bool) {
		for i := range n {
			if !yield(i) {
				return
			}
		}
	}
}

// Segmented returns the raw CSR arrays of a segmented index. ok is false
// for other kinds. The arrays must not be modified.
func (p PathIndex) Segmented() (coords, sinks []uint32, ok bool) {
	if p.kind != Segmented {
		return nil, nil, false
	}
	return p.coords, p.sinks, true
}

func (p PathIndex) String() string {
	if p.kind == 0 {
		return "PathIndex(undefined)"
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s path index (%d elements, %d neighbors)", p.kind, p.NumElements(), p.NumNeighbors())
	for e := range p.Elements() {
		fmt.Fprintf(&sb, "\n  %d:", e)
		for n := range p.Neighbors(e) {
			fmt.Fprintf(&sb, " %d", n)
		}
	}
	return sb.String()
}

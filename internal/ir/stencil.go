package ir

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
)

// StencilLayout is the fixed pattern of lattice offsets at which a
// stencil-assembled matrix has non-zeros. Location k of every row holds the
// neighbor at Offsets[k] relative to the row's lattice point.
type StencilLayout struct {
	// Lattice names the lattice link set variable the stencil runs over.
	Lattice string
	Offsets [][]int
}

// NewStencilLayout returns a layout with offsets sorted lexicographically.
func NewStencilLayout(lattice string, offsets ...[]int) StencilLayout {
	offs := make([][]int, len(offsets))
	for i, o := range offsets {
		offs[i] = slices.Clone(o)
	}
	slices.SortFunc(offs, func(a, b []int) int { return slices.Compare(a, b) })
	for i := 1; i < len(offs); i++ {
		if slices.Equal(offs[i-1], offs[i]) {
			panic(fmt.Errorf("ir: duplicate stencil offset %v", offs[i]))
		}
		if len(offs[i]) != len(offs[0]) {
			panic(fmt.Errorf("ir: stencil offsets of different rank %v and %v", offs[0], offs[i]))
		}
	}
	return StencilLayout{Lattice: lattice, Offsets: offs}
}

// Size returns the number of non-zeros per row.
func (s StencilLayout) Size() int { return len(s.Offsets) }

// Dims returns the lattice rank the offsets are written for.
func (s StencilLayout) Dims() int {
	if len(s.Offsets) == 0 {
		return 0
	}
	return len(s.Offsets[0])
}

// Location returns the position of offset within a row.
func (s StencilLayout) Location(offset []int) (int, bool) {
	for k, o := range s.Offsets {
		if slices.Equal(o, offset) {
			return k, true
		}
	}
	return 0, false
}

// Key identifies layouts with the same lattice and offsets.
func (s StencilLayout) Key() string {
	var sb strings.Builder
	sb.WriteString(s.Lattice)
	for _, o := range s.Offsets {
		sb.WriteString(";")
		for i, v := range o {
			if i > 0 {
				sb.WriteString(",")
			}
			sb.WriteString(strconv.Itoa(v))
		}
	}
	return sb.String()
}

func (s StencilLayout) String() string {
	parts := make([]string, len(s.Offsets))
	for i, o := range s.Offsets {
		parts[i] = fmt.Sprint(o)
	}
	return "stencil(" + s.Lattice + "){" + strings.Join(parts, " ") + "}"
}

// rowptr returns base*L: every row holds exactly Size() entries.
func (s StencilLayout) rowptr(base Expr) Expr {
	return mul(base, IntLit(s.Size()))
}

// colidx maps a flat non-zero coordinate to the linear id of its column
// point. With row = coord/L and k = coord%L, column component d is
// (c_d + off_k[d]) mod n_d where c_d is the row point's coordinate, and the
// linear id weights dimension d by the product of the lower extents.
func (s StencilLayout) colidx(coord Expr) Expr {
	if s.Size() == 0 {
		panic("ir: column index of an empty stencil")
	}
	L := IntLit(s.Size())
	row := VarRef("$row")
	k := VarRef("$k")

	var sum Expr = IntLit(0)
	var stride Expr = IntLit(1)
	for d := range s.Dims() {
		n := LatticeDim{Set: s.Lattice, Dim: d}
		col := make([]int, s.Size())
		for i, o := range s.Offsets {
			col[i] = o[d]
		}
		c := rem(div(row, stride), n)
		shifted := rem(add(rem(add(c, Table{Values: col, Index: k}), n), n), n)
		sum = add(sum, mul(shifted, stride))
		stride = mul(stride, n)
	}
	return Let{Name: "$row", Value: div(coord, L),
		Body: Let{Name: "$k", Value: rem(coord, L), Body: sum}}
}

package ir

import (
	"fmt"

	"meshc/internal/pe"
)

// TensorIndexKind is the closed set of tensor index representations.
type TensorIndexKind uint8

const (
	// PExpr indices are CSR arrays built from a path expression at init.
	PExpr TensorIndexKind = iota + 1
	// Sten indices are computed arithmetically from a stencil layout.
	Sten
)

func (k TensorIndexKind) String() string {
	switch k {
	case PExpr:
		return "pexpr"
	case Sten:
		return "stencil"
	}
	return "invalid"
}

// TensorIndex describes the sparsity of a matrix: the row pointer and
// column index arrays generated code reads, or the stencil it computes them
// from. One TensorIndex is shared by every tensor with the same sparsity.
type TensorIndex struct {
	name    string
	kind    TensorIndexKind
	pexpr   pe.PathExpression
	stencil StencilLayout
	rowptr  Var
	colidx  Var
}

// NewPExprIndex creates a stored index whose arrays are named
// <name>_rowptr and <name>_colidx.
func NewPExprIndex(name string, expr pe.PathExpression) *TensorIndex {
	if !expr.Defined() {
		panic(fmt.Errorf("ir: tensor index %q without a path expression", name))
	}
	return &TensorIndex{
		name:   name,
		kind:   PExpr,
		pexpr:  expr,
		rowptr: NewVar(name+"_rowptr", ArrayOf(Uint32)),
		colidx: NewVar(name+"_colidx", ArrayOf(Uint32)),
	}
}

// NewStencilIndex creates a computed index.
func NewStencilIndex(name string, layout StencilLayout) *TensorIndex {
	return &TensorIndex{name: name, kind: Sten, stencil: layout}
}

func (ti *TensorIndex) Name() string { return ti.name }

func (ti *TensorIndex) Kind() TensorIndexKind { return ti.kind }

// IsComputed reports whether the index needs no backing arrays.
func (ti *TensorIndex) IsComputed() bool { return ti.kind == Sten }

func (ti *TensorIndex) mustKind(k TensorIndexKind, op string) {
	if ti.kind != k {
		panic(fmt.Errorf("ir: %s on %s tensor index %q", op, ti.kind, ti.name))
	}
}

// PathExpression returns the expression of a PExpr index.
func (ti *TensorIndex) PathExpression() pe.PathExpression {
	ti.mustKind(PExpr, "PathExpression")
	return ti.pexpr
}

// StencilLayout returns the layout of a Sten index.
func (ti *TensorIndex) StencilLayout() StencilLayout {
	ti.mustKind(Sten, "StencilLayout")
	return ti.stencil
}

// SetStencilLayout replaces the layout of a Sten index.
func (ti *TensorIndex) SetStencilLayout(layout StencilLayout) {
	ti.mustKind(Sten, "SetStencilLayout")
	ti.stencil = layout
}

// RowptrArray returns the row pointer variable of a PExpr index.
func (ti *TensorIndex) RowptrArray() Var {
	ti.mustKind(PExpr, "RowptrArray")
	return ti.rowptr
}

// ColidxArray returns the column index variable of a PExpr index.
func (ti *TensorIndex) ColidxArray() Var {
	ti.mustKind(PExpr, "ColidxArray")
	return ti.colidx
}

// ComputeRowptr returns the expression for rowptr[base] of a Sten index.
func (ti *TensorIndex) ComputeRowptr(base Expr) Expr {
	ti.mustKind(Sten, "ComputeRowptr")
	return ti.stencil.rowptr(base)
}

// ComputeColidx returns the expression for colidx[coord] of a Sten index.
func (ti *TensorIndex) ComputeColidx(coord Expr) Expr {
	ti.mustKind(Sten, "ComputeColidx")
	return ti.stencil.colidx(coord)
}

func (ti *TensorIndex) String() string {
	if ti == nil {
		return "<no index>"
	}
	switch ti.kind {
	case PExpr:
		return fmt.Sprintf("%s (%s, %s) = %s", ti.name, ti.rowptr.Name, ti.colidx.Name, ti.pexpr)
	case Sten:
		return fmt.Sprintf("%s = %s", ti.name, ti.stencil)
	}
	return ti.name
}

package ir

import (
	"slices"
	"strings"
	"testing"

	"meshc/internal/pe"
)

func mustPanic(t *testing.T, name string, f func()) {
	t.Helper()
	defer func() {
		if recover() == nil {
			t.Fatalf("%s: expected panic", name)
		}
	}()
	f()
}

func rowColumns(t *testing.T, ti *TensorIndex, env Env, row int) []int {
	t.Helper()
	L := ti.StencilLayout().Size()
	start, err := ti.ComputeRowptr(IntLit(row)).Eval(env)
	if err != nil {
		t.Fatalf("rowptr(%d): %v", row, err)
	}
	cols := make([]int, L)
	for k := range L {
		c, err := ti.ComputeColidx(IntLit(start + k)).Eval(env)
		if err != nil {
			t.Fatalf("colidx(%d): %v", start+k, err)
		}
		cols[k] = c
	}
	return cols
}

func TestStencilIndexRing(t *testing.T) {
	layout := NewStencilLayout("links", []int{1}, []int{-1}, []int{0})
	if got := layout.Offsets; !slices.EqualFunc(got, [][]int{{-1}, {0}, {1}}, slices.Equal) {
		t.Fatalf("offsets not sorted: %v", got)
	}
	ti := NewStencilIndex("A_stencil", layout)
	if !ti.IsComputed() {
		t.Fatalf("stencil index should be computed")
	}
	env := Env{Dims: map[string][]int{"links": {3}}}
	want := [][]int{{2, 0, 1}, {0, 1, 2}, {1, 2, 0}}
	for row, w := range want {
		if got := rowColumns(t, ti, env, row); !slices.Equal(got, w) {
			t.Fatalf("row %d columns = %v, want %v", row, got, w)
		}
	}
}

func TestStencilIndexLattice2D(t *testing.T) {
	layout := NewStencilLayout("links", []int{1, 0}, []int{0, 1}, []int{0, 0})
	ti := NewStencilIndex("K_stencil", layout)
	env := Env{Dims: map[string][]int{"links": {3, 2}}}
	// point 4 is (1,1); its +x neighbor is (2,1)=5 and +y wraps to (1,0)=1
	if got, want := rowColumns(t, ti, env, 4), []int{4, 1, 5}; !slices.Equal(got, want) {
		t.Fatalf("row 4 columns = %v, want %v", got, want)
	}
	// point 2 is (2,0); +x wraps to (0,0)=0
	if got, want := rowColumns(t, ti, env, 2), []int{2, 5, 0}; !slices.Equal(got, want) {
		t.Fatalf("row 2 columns = %v, want %v", got, want)
	}
}

func TestStencilMissingDimension(t *testing.T) {
	ti := NewStencilIndex("s", NewStencilLayout("links", []int{0}))
	if _, err := ti.ComputeColidx(IntLit(0)).Eval(Env{}); err == nil {
		t.Fatalf("expected error for unbound lattice")
	}
}

func TestStencilLayoutRejects(t *testing.T) {
	mustPanic(t, "duplicate", func() { NewStencilLayout("l", []int{0}, []int{0}) })
	mustPanic(t, "rank", func() { NewStencilLayout("l", []int{0}, []int{0, 1}) })
}

func matrixVar(name, rows, cols string) Var {
	return NewVar(name, TensorOf(TensorType{
		Component: Float64,
		Dims:      []IndexDomain{Domain(SetOf(rows)), Domain(SetOf(cols))},
	}))
}

func springExpr() pe.PathExpression {
	i := pe.Var{Name: "i", Set: "points"}
	j := pe.Var{Name: "j", Set: "points"}
	e := pe.Var{Name: "e", Set: "springs"}
	return pe.Exists(e, pe.Link(i, e), pe.Link(e, j))
}

func TestSharedTensorIndex(t *testing.T) {
	env := NewEnvironment()
	a := matrixVar("A", "points", "points")
	b := matrixVar("B", "points", "points")

	var sa, sb TensorStorage
	sa.SetTensorIndex(a, Assembly{Kind: FromEndpoints, Expr: springExpr()}, env)
	sb.SetTensorIndex(b, Assembly{Kind: FromEndpoints, Expr: springExpr()}, env)

	if sa.Kind() != Indexed || sb.Kind() != Indexed {
		t.Fatalf("kinds = %v, %v", sa.Kind(), sb.Kind())
	}
	if sa.TensorIndex() != sb.TensorIndex() {
		t.Fatalf("tensors with equal expressions should share one index")
	}
	ti := sa.TensorIndex()
	if ti.Name() != "A_index" || ti.RowptrArray().Name != "A_index_rowptr" || ti.ColidxArray().Name != "A_index_colidx" {
		t.Fatalf("unexpected names: %s %s %s", ti.Name(), ti.RowptrArray().Name, ti.ColidxArray().Name)
	}
	if len(env.TensorIndices()) != 1 {
		t.Fatalf("indices = %d, want 1", len(env.TensorIndices()))
	}
	if got, ok := env.TensorIndexOf(b); !ok || got != ti {
		t.Fatalf("TensorIndexOf(B) = %v, %v", got, ok)
	}
}

func TestStorageClassification(t *testing.T) {
	env := NewEnvironment()
	k := matrixVar("K", "points", "points")
	d := matrixVar("D", "points", "points")
	v := NewVar("x", TensorOf(TensorType{Component: Float64, Dims: []IndexDomain{Domain(SetOf("points"))}}))

	var sk, sd, sv TensorStorage
	sk.SetTensorIndex(k, Assembly{Kind: FromStencil, Stencil: NewStencilLayout("links", []int{-1}, []int{0}, []int{1})}, env)
	sd.SetTensorIndex(d, Assembly{Kind: PerElement}, env)
	sv.SetTensorIndex(v, Assembly{Kind: Unassembled}, env)

	if sk.Kind() != Stencil || sk.TensorIndex().Kind() != Sten {
		t.Fatalf("K storage = %v", sk)
	}
	if sd.Kind() != Diagonal || sd.HasTensorIndex() {
		t.Fatalf("D storage = %v", sd)
	}
	if sv.Kind() != Dense {
		t.Fatalf("x storage = %v", sv)
	}
	mustPanic(t, "diagonal index", func() { sd.TensorIndex() })
	mustPanic(t, "vector stencil", func() {
		var s TensorStorage
		s.SetTensorIndex(v, Assembly{Kind: FromStencil, Stencil: NewStencilLayout("links", []int{0})}, env)
	})
	mustPanic(t, "non-square stencil", func() {
		var s TensorStorage
		s.SetTensorIndex(matrixVar("R", "points", "springs"), Assembly{Kind: FromStencil, Stencil: NewStencilLayout("links", []int{0})}, env)
	})
}

func TestTensorIndexAccessorPanics(t *testing.T) {
	p := NewPExprIndex("A_index", springExpr())
	s := NewStencilIndex("K_stencil", NewStencilLayout("links", []int{0}))

	mustPanic(t, "pexpr layout", func() { p.StencilLayout() })
	mustPanic(t, "pexpr rowptr", func() { p.ComputeRowptr(IntLit(0)) })
	mustPanic(t, "pexpr colidx", func() { p.ComputeColidx(IntLit(0)) })
	mustPanic(t, "stencil expr", func() { s.PathExpression() })
	mustPanic(t, "stencil rowptr array", func() { s.RowptrArray() })
	mustPanic(t, "stencil colidx array", func() { s.ColidxArray() })

	s.SetStencilLayout(NewStencilLayout("links", []int{-1}, []int{1}))
	if s.StencilLayout().Size() != 2 {
		t.Fatalf("layout not replaced: %v", s.StencilLayout())
	}
	if p.IsComputed() {
		t.Fatalf("pexpr index is stored")
	}
	if !p.PathExpression().Equal(springExpr()) {
		t.Fatalf("path expression changed")
	}
}

func TestStorageOrderAndMerge(t *testing.T) {
	a := matrixVar("A", "points", "points")
	b := matrixVar("B", "points", "points")
	c := matrixVar("C", "points", "points")

	s := NewStorage()
	s.Add(b, NewTensorStorage(Dense))
	s.Add(a, NewTensorStorage(Diagonal))

	o := NewStorage()
	o.Add(c, NewTensorStorage(Dense))
	o.Add(b, NewTensorStorage(Diagonal))
	s.Merge(o)

	var names []string
	for v := range s.All() {
		names = append(names, v.Name)
	}
	if want := []string{"B", "A", "C"}; !slices.Equal(names, want) {
		t.Fatalf("order = %v, want %v", names, want)
	}
	if s.Get(b).Kind() != Diagonal {
		t.Fatalf("merge should overwrite B")
	}
	if s.Has(NewVar("Z", Scalar(Float64))) {
		t.Fatalf("Has(Z) = true")
	}
	mustPanic(t, "missing", func() { s.Get(NewVar("Z", Scalar(Float64))) })
	if got := s.String(); !strings.Contains(got, "A : diagonal") {
		t.Fatalf("String() = %q", got)
	}
}

func TestEnvironmentExterns(t *testing.T) {
	env := NewEnvironment()
	points := NewVar("points", UnstructuredSet("Point", nil))
	env.AddExtern(points)
	env.AddExtern(NewVar("springs", UnstructuredSet("Spring", []string{"points", "points"})),
		NewVar("springs_rec", ArrayOf(Uint32)))

	m, ok := env.Extern("springs")
	if !ok || len(m.Mappings) != 1 || m.Mappings[0].Name != "springs_rec" {
		t.Fatalf("Extern(springs) = %+v, %v", m, ok)
	}
	if m, _ := env.Extern("points"); m.Mappings[0].Name != "points" {
		t.Fatalf("default mapping = %v", m.Mappings)
	}
	mustPanic(t, "duplicate extern", func() { env.AddExtern(points) })
	mustPanic(t, "set temporary", func() { env.AddTemporary(points) })
	if !strings.Contains(env.String(), "-> springs_rec") {
		t.Fatalf("String() = %q", env.String())
	}
}

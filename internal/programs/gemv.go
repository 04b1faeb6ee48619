package programs

import (
	"fmt"
	"slices"
	"sort"

	"meshc/internal/image"
	"meshc/internal/ir"
	"meshc/internal/layout"
	"meshc/internal/mem"
	"meshc/internal/pe"
)

// Counts records how often a program's entry points ran.
type Counts struct {
	Init   int
	Deinit int
	Runs   int
}

// Program is a compiled program ready to be bound.
type Program struct {
	Name        string
	Description string
	Image       *image.Module
	Func        *ir.Func
	// Output names the field the program writes as "set.field".
	Output string
	Counts *Counts
}

type builderFunc func(sp *mem.Space) (*Program, error)

var registry = map[string]builderFunc{
	"gemv":         gemvGlobals,
	"gemv-args":    gemvArgs,
	"gemv-stencil": gemvStencil,
}

// Names returns the registered program names.
func Names() []string {
	names := make([]string, 0, len(registry))
	for n := range registry {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Build compiles the named program into a finalized image in sp.
func Build(name string, sp *mem.Space) (*Program, error) {
	b, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("programs: unknown program %q (have %v)", name, Names())
	}
	return b(sp)
}

var (
	scalar     = ir.TensorType{Component: ir.Float64}
	pointType  = ir.UnstructuredSet("Point", nil, ir.FieldType{Name: "b", Type: scalar}, ir.FieldType{Name: "c", Type: scalar})
	springType = ir.UnstructuredSet("Spring", []string{"points", "points"}, ir.FieldType{Name: "a", Type: scalar})
	linkType   = ir.LatticeLinkSet("Link", "points", 1, ir.FieldType{Name: "a", Type: scalar})
)

func matrix(name string) ir.Var {
	d := ir.Domain(ir.SetOf("points"))
	return ir.NewVar(name, ir.TensorOf(ir.TensorType{Component: ir.Float64, Dims: []ir.IndexDomain{d, d}}))
}

// springNeighbors relates points sharing a spring, including each point
// with itself when it has any spring.
func springNeighbors() pe.PathExpression {
	i := pe.Var{Name: "i", Set: "points"}
	j := pe.Var{Name: "j", Set: "points"}
	e := pe.Var{Name: "e", Set: "springs"}
	return pe.Exists(e, pe.Link(i, e), pe.Link(e, j))
}

// gemvGlobals: points and springs are externs; the entry point takes no
// arguments and runs without a harness.
func gemvGlobals(sp *mem.Space) (*Program, error) {
	points := ir.NewVar("points", pointType)
	springs := ir.NewVar("springs", springType)
	fn, ti := edgeFunc(nil)
	fn.Env.AddExtern(points)
	fn.Env.AddExtern(springs)

	p := &Program{
		Name:        "gemv",
		Description: "c = A*b with A assembled from spring weights, sets bound as globals",
		Func:        fn,
		Output:      "points.c",
		Counts:      &Counts{},
	}
	m := image.NewModule("gemv", sp)
	for _, g := range []string{"points", "springs", "A", ti.RowptrArray().Name, ti.ColidxArray().Name} {
		if err := m.DefineGlobal(g, mem.WordSize); err != nil {
			return nil, err
		}
	}
	eng := layout.New(layout.Host())
	body := func(fr *image.Frame) {
		s := fr.Space()
		gemvEdges(s,
			viewSet(s, eng, s.LoadAddr(fr.Global("points")), pointType),
			viewSet(s, eng, s.LoadAddr(fr.Global("springs")), springType),
			s.LoadAddr(fr.Global("A")),
			s.LoadAddr(fr.Global(ti.RowptrArray().Name)),
			s.LoadAddr(fr.Global(ti.ColidxArray().Name)))
	}
	return p.finish(m, nil, body)
}

// gemvArgs: points and springs are formal arguments passed by pointer, so
// Init generates a harness.
func gemvArgs(sp *mem.Space) (*Program, error) {
	points := ir.NewVar("points", pointType)
	springs := ir.NewVar("springs", springType)
	fn, ti := edgeFunc([]ir.Var{points, springs})

	p := &Program{
		Name:        "gemv-args",
		Description: "c = A*b with A assembled from spring weights, sets passed as arguments",
		Func:        fn,
		Output:      "points.c",
		Counts:      &Counts{},
	}
	m := image.NewModule("gemv_args", sp)
	for _, g := range []string{"A", ti.RowptrArray().Name, ti.ColidxArray().Name} {
		if err := m.DefineGlobal(g, mem.WordSize); err != nil {
			return nil, err
		}
	}
	eng := layout.New(layout.Host())
	body := func(fr *image.Frame) {
		s := fr.Space()
		gemvEdges(s,
			viewSet(s, eng, fr.ArgNamed("points").Addr(), pointType),
			viewSet(s, eng, fr.ArgNamed("springs").Addr(), springType),
			s.LoadAddr(fr.Global("A")),
			s.LoadAddr(fr.Global(ti.RowptrArray().Name)),
			s.LoadAddr(fr.Global(ti.ColidxArray().Name)))
	}
	formals := []image.Formal{{Name: "points", ByPointer: true}, {Name: "springs", ByPointer: true}}
	return p.finish(m, formals, body)
}

// edgeFunc describes a gemv whose matrix temporary A is indexed by the
// spring neighbor relation.
func edgeFunc(args []ir.Var) (*ir.Func, *ir.TensorIndex) {
	env := ir.NewEnvironment()
	storage := ir.NewStorage()
	a := matrix("A")
	env.AddTemporary(a)
	var ts ir.TensorStorage
	ts.SetTensorIndex(a, ir.Assembly{Kind: ir.FromEndpoints, Expr: springNeighbors()}, env)
	storage.Add(a, ts)
	return &ir.Func{Name: "gemv", Args: args, Env: env, Storage: storage}, ts.TensorIndex()
}

// gemvEdges assembles A[p,q] += a(e) for every pair of endpoints of every
// spring e, then computes points.c = A * points.b.
func gemvEdges(s *mem.Space, pts, springs setView, A, rowptr, colidx mem.Addr) {
	n := pts.size()
	nnz := int(s.LoadU32(rowptr, n))
	s.Zero(A, nnz*8)

	a := springs.field("a")
	for e := range springs.size() {
		p, q := springs.endpoint(e, 0), springs.endpoint(e, 1)
		w := s.LoadF64(a, e)
		for _, rc := range [][2]int{{p, p}, {p, q}, {q, p}, {q, q}} {
			s.AddF64(A, Loc(s, rc[0], rc[1], rowptr, colidx), w)
		}
	}

	b, c := pts.field("b"), pts.field("c")
	for i := range n {
		var sum float64
		for j := int(s.LoadU32(rowptr, i)); j < int(s.LoadU32(rowptr, i+1)); j++ {
			sum += s.LoadF64(A, j) * s.LoadF64(b, int(s.LoadU32(colidx, j)))
		}
		s.StoreF64(c, i, sum)
	}
}

// gemvStencil: the same product over a periodic lattice. K is a stencil
// matrix whose column indices are computed rather than stored.
func gemvStencil(sp *mem.Space) (*Program, error) {
	env := ir.NewEnvironment()
	storage := ir.NewStorage()
	env.AddExtern(ir.NewVar("points", pointType))
	env.AddExtern(ir.NewVar("links", linkType))
	k := matrix("K")
	env.AddTemporary(k)
	var ts ir.TensorStorage
	ts.SetTensorIndex(k, ir.Assembly{Kind: ir.FromStencil, Stencil: ir.NewStencilLayout("links", []int{-1}, []int{0}, []int{1})}, env)
	storage.Add(k, ts)
	ti := ts.TensorIndex()

	p := &Program{
		Name:        "gemv-stencil",
		Description: "c = K*b with K assembled over a 1-d periodic lattice",
		Func:        &ir.Func{Name: "gemv", Env: env, Storage: storage},
		Output:      "points.c",
		Counts:      &Counts{},
	}
	m := image.NewModule("gemv_stencil", sp)
	for _, g := range []string{"points", "links", "K"} {
		if err := m.DefineGlobal(g, mem.WordSize); err != nil {
			return nil, err
		}
	}
	eng := layout.New(layout.Host())
	body := func(fr *image.Frame) {
		s := fr.Space()
		gemvLattice(s,
			viewSet(s, eng, s.LoadAddr(fr.Global("points")), pointType),
			viewSet(s, eng, s.LoadAddr(fr.Global("links")), linkType),
			s.LoadAddr(fr.Global("K")), ti)
	}
	return p.finish(m, nil, body)
}

func gemvLattice(s *mem.Space, pts, links setView, K mem.Addr, ti *ir.TensorIndex) {
	dims := links.dims()
	env := ir.Env{Dims: map[string][]int{"links": dims}}
	stencil := ti.StencilLayout()
	L := stencil.Size()
	n := pts.size()
	s.Zero(K, n*L*8)

	a := links.field("a")
	for e := range links.size() {
		p, q := links.endpoint(e, 0), links.endpoint(e, 1)
		w := s.LoadF64(a, e)
		for _, rc := range [][2]int{{p, p}, {p, q}, {q, p}, {q, q}} {
			k, ok := stencil.Location(latticeOffset(rc[0], rc[1], dims))
			if !ok {
				panic(fmt.Errorf("programs: (%d, %d) outside the stencil", rc[0], rc[1]))
			}
			s.AddF64(K, rc[0]*L+k, w)
		}
	}

	b, c := pts.field("b"), pts.field("c")
	for i := range n {
		start := mustEval(ti.ComputeRowptr(ir.IntLit(i)), env)
		var sum float64
		for k := range L {
			col := mustEval(ti.ComputeColidx(ir.IntLit(start+k)), env)
			sum += s.LoadF64(K, start+k) * s.LoadF64(b, col)
		}
		s.StoreF64(c, i, sum)
	}
}

// latticeOffset returns the shortest periodic displacement from point p to
// point q, dimension 0 varying fastest.
func latticeOffset(p, q int, dims []int) []int {
	off := make([]int, len(dims))
	stride := 1
	for d, n := range dims {
		cp, cq := (p/stride)%n, (q/stride)%n
		diff := ((cq-cp)%n + n) % n
		if diff > n/2 {
			diff -= n
		}
		off[d] = diff
		stride *= n
	}
	return off
}

func mustEval(e ir.Expr, env ir.EvalContext) int {
	v, err := e.Eval(env)
	if err != nil {
		panic(fmt.Errorf("programs: %s: %w", e, err))
	}
	return v
}

// finish defines the entry point and its init/deinit companions with the
// same formals, then finalizes the image.
func (p *Program) finish(m *image.Module, formals []image.Formal, body func(*image.Frame)) (*Program, error) {
	name := p.Func.Name
	fns := []image.Func{
		{Name: name, Formals: formals, Body: func(fr *image.Frame) { p.Counts.Runs++; body(fr) }},
		{Name: name + "_init", Formals: slices.Clone(formals), Body: func(*image.Frame) { p.Counts.Init++ }},
		{Name: name + "_deinit", Formals: slices.Clone(formals), Body: func(*image.Frame) { p.Counts.Deinit++ }},
	}
	for _, fn := range fns {
		if err := m.DefineFunc(fn); err != nil {
			return nil, err
		}
	}
	if err := m.Finalize(nil); err != nil {
		return nil, err
	}
	p.Image = m
	return p, nil
}

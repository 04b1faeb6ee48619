package backend_test

import (
	"errors"
	"slices"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"meshc/internal/backend"
	"meshc/internal/diag"
	"meshc/internal/graph"
	"meshc/internal/image"
	"meshc/internal/ir"
	"meshc/internal/mem"
	"meshc/internal/observ"
	"meshc/internal/programs"
	"meshc/internal/testkit"
)

type chain struct {
	points  *graph.Set
	springs *graph.Set
	c       *graph.Field
}

// newChain builds points 0-1-2 with b = [1,2,3] joined by springs (0,1),
// (1,2) with weights a.
func newChain(t *testing.T, a ...float64) chain {
	t.Helper()
	points := graph.NewSet("points")
	for range 3 {
		points.Add()
	}
	b, err := points.AddField("b", graph.Float64, 1)
	if err != nil {
		t.Fatalf("AddField: %v", err)
	}
	c, _ := points.AddField("c", graph.Float64, 1)
	for i, v := range []float64{1, 2, 3} {
		b.Set(i, v)
	}
	springs := graph.NewEdgeSet("springs", points, points)
	for _, e := range [][2]int{{0, 1}, {1, 2}} {
		if _, err := springs.AddEdge(e[0], e[1]); err != nil {
			t.Fatalf("AddEdge: %v", err)
		}
	}
	w, _ := springs.AddField("a", graph.Float64, 1)
	for i, v := range a {
		w.Set(i, v)
	}
	return chain{points: points, springs: springs, c: c}
}

type ring struct {
	points *graph.Set
	links  *graph.Set
	c      *graph.Field
}

// newRing builds a 3-point periodic lattice with links 0->1, 1->2, 2->0.
func newRing(t *testing.T, dims []int, a ...float64) ring {
	t.Helper()
	points := graph.NewSet("points")
	links, err := graph.NewLatticeLinkSet("links", points, dims)
	if err != nil {
		t.Fatalf("NewLatticeLinkSet: %v", err)
	}
	b, _ := points.AddField("b", graph.Float64, 1)
	c, _ := points.AddField("c", graph.Float64, 1)
	for i := range points.Size() {
		b.Set(i, float64(i+1))
	}
	w, _ := links.AddField("a", graph.Float64, 1)
	for i, v := range a {
		w.Set(i, v)
	}
	return ring{points: points, links: links, c: c}
}

func build(t *testing.T, name string, opts ...backend.Option) (*programs.Program, *backend.Function) {
	t.Helper()
	p, err := programs.Build(name, mem.NewSpace())
	if err != nil {
		t.Fatalf("Build(%s): %v", name, err)
	}
	f, err := backend.New(p.Image, p.Func, opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return p, f
}

func mustBindSet(t *testing.T, f *backend.Function, name string, s *graph.Set) {
	t.Helper()
	if err := f.BindSet(name, s); err != nil {
		t.Fatalf("BindSet(%s): %v", name, err)
	}
}

func wantFloats(t *testing.T, field *graph.Field, want []float64) {
	t.Helper()
	if got := field.Floats(); !slices.Equal(got, want) {
		t.Fatalf("c = %v, want %v", got, want)
	}
}

func TestGemvGlobals(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := observ.NewMetrics(reg)
	p, f := build(t, "gemv", backend.WithMetrics(m))
	g := newChain(t, 1, 2)
	mustBindSet(t, f, "points", g.points)
	mustBindSet(t, f, "springs", g.springs)

	entry, err := f.Init()
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	if f.Harness() != nil {
		t.Fatalf("argument-free entry point should not need a harness")
	}
	if err := entry.Call(); err != nil {
		t.Fatalf("Call: %v", err)
	}
	wantFloats(t, g.c, []float64{3, 13, 10})

	if p.Counts.Init != 1 || p.Counts.Runs != 1 {
		t.Fatalf("counts = %+v", *p.Counts)
	}
	if got := testutil.ToFloat64(m.Runs.WithLabelValues("ok")); got != 1 {
		t.Fatalf("runs ok = %v, want 1", got)
	}
	// A has 7 non-zeros of one float64 each
	if got := testutil.ToFloat64(m.TemporaryBytes); got != 56 {
		t.Fatalf("temporary bytes = %v, want 56", got)
	}
	if got := testutil.ToFloat64(m.IndexBuilds.WithLabelValues("segmented")); got == 0 {
		t.Fatalf("no segmented index builds recorded")
	}
}

func TestGemvArgsHarness(t *testing.T) {
	_, f := build(t, "gemv-args")
	g := newChain(t, 1, 2)
	mustBindSet(t, f, "points", g.points)
	mustBindSet(t, f, "springs", g.springs)

	if _, err := f.Init(); err != nil {
		t.Fatalf("Init: %v", err)
	}
	h := f.Harness()
	if h == nil {
		t.Fatalf("expected a harness image")
	}
	if !strings.HasPrefix(h.Name(), "harness_") || !strings.Contains(h.Name(), strings.ReplaceAll(f.Session().String(), "-", "")) {
		t.Fatalf("harness name %q does not carry session %s", h.Name(), f.Session())
	}
	if !h.HasFunc("gemv_harness") || !h.HasFunc("gemv_init_harness") || !h.HasFunc("gemv_deinit_harness") {
		t.Fatalf("harness functions = %v", h.Funcs())
	}
	if formals, _ := h.Formals("gemv_harness"); len(formals) != 0 {
		t.Fatalf("harness entry takes %d arguments", len(formals))
	}
	if err := f.Run(); err != nil {
		t.Fatalf("Run: %v", err)
	}
	wantFloats(t, g.c, []float64{3, 13, 10})
}

func TestGemvStencil(t *testing.T) {
	_, f := build(t, "gemv-stencil")
	r := newRing(t, []int{3}, 1, 2, 0)
	mustBindSet(t, f, "points", r.points)
	mustBindSet(t, f, "links", r.links)
	if err := f.RunSafe(); err != nil {
		t.Fatalf("RunSafe: %v", err)
	}
	wantFloats(t, r.c, []float64{3, 13, 10})
}

func TestGlobalSetRebindResizes(t *testing.T) {
	p, f := build(t, "gemv-stencil")
	small := newRing(t, []int{3}, 1, 2, 0)
	mustBindSet(t, f, "points", small.points)
	mustBindSet(t, f, "links", small.links)
	if err := f.RunSafe(); err != nil {
		t.Fatalf("RunSafe: %v", err)
	}

	// K is sized from points and its stencil runs over links
	big := newRing(t, []int{5}, 1, 1, 1, 1, 1)
	mustBindSet(t, f, "points", big.points)
	if f.State() != backend.Constructed {
		t.Fatalf("state after rebinding points = %v, want constructed", f.State())
	}
	mustBindSet(t, f, "links", big.links)
	if err := f.Run(); !diag.IsCode(err, diag.RunNotInitialized) {
		t.Fatalf("Run after rebind: %v", err)
	}
	if err := f.RunSafe(); err != nil {
		t.Fatalf("RunSafe on the larger ring: %v", err)
	}
	wantFloats(t, big.c, []float64{9, 8, 12, 16, 15})
	if p.Counts.Init != 2 || p.Counts.Deinit != 1 {
		t.Fatalf("counts = %+v, want 2 inits and 1 deinit", *p.Counts)
	}
	if slot, ok := f.TemporaryAddress("K"); !ok || f.Space().LoadAddr(slot).IsNull() {
		t.Fatalf("K not reallocated")
	}
}

func TestLatticeBindingErrors(t *testing.T) {
	_, f := build(t, "gemv-stencil")
	flat := newRing(t, []int{3, 2})
	if err := f.BindSet("links", flat.links); !diag.IsCode(err, diag.BndLatticeDims) {
		t.Fatalf("2-d lattice: %v", err)
	}
	g := newChain(t, 1, 2)
	if err := f.BindSet("links", g.springs); !diag.IsCode(err, diag.BndWrongSetKind) {
		t.Fatalf("edge set to lattice: %v", err)
	}
	// the failed binds leave the function usable
	r := newRing(t, []int{3}, 1, 2, 0)
	mustBindSet(t, f, "points", r.points)
	mustBindSet(t, f, "links", r.links)
	if err := f.RunSafe(); err != nil {
		t.Fatalf("RunSafe: %v", err)
	}
}

func TestRebindArgumentInvalidates(t *testing.T) {
	p, f := build(t, "gemv-args")
	g := newChain(t, 1, 2)
	mustBindSet(t, f, "points", g.points)
	mustBindSet(t, f, "springs", g.springs)
	entry, err := f.Init()
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	if err := entry.Call(); err != nil {
		t.Fatalf("Call: %v", err)
	}

	heavier := graph.NewEdgeSet("springs", g.points, g.points)
	_, _ = heavier.AddEdge(0, 1)
	_, _ = heavier.AddEdge(1, 2)
	w, _ := heavier.AddField("a", graph.Float64, 1)
	w.Set(0, 2)
	w.Set(1, 4)
	mustBindSet(t, f, "springs", heavier)

	if f.State() != backend.Constructed {
		t.Fatalf("state = %v, want constructed", f.State())
	}
	if err := f.Run(); !diag.IsCode(err, diag.RunNotInitialized) {
		t.Fatalf("Run after rebind: %v", err)
	}
	if err := entry.Call(); !diag.IsCode(err, diag.RunNotInitialized) {
		t.Fatalf("stale entry: %v", err)
	}
	if err := f.RunSafe(); err != nil {
		t.Fatalf("RunSafe: %v", err)
	}
	wantFloats(t, g.c, []float64{6, 26, 20})
	if p.Counts.Init != 2 || p.Counts.Deinit != 1 {
		t.Fatalf("counts = %+v, want 2 inits and 1 deinit", *p.Counts)
	}
}

func TestReinitReusesIndices(t *testing.T) {
	_, f := build(t, "gemv")
	g := newChain(t, 1, 2)
	mustBindSet(t, f, "points", g.points)
	mustBindSet(t, f, "springs", g.springs)
	if _, err := f.Init(); err != nil {
		t.Fatalf("Init: %v", err)
	}
	builds := f.Builder().Stats().Builds
	if _, err := f.Init(); err != nil {
		t.Fatalf("second Init: %v", err)
	}
	st := f.Builder().Stats()
	if st.Builds != builds || st.MemoHits == 0 {
		t.Fatalf("stats = %+v, want no new builds after %d", st, builds)
	}
	if err := f.Run(); err != nil {
		t.Fatalf("Run: %v", err)
	}
	wantFloats(t, g.c, []float64{3, 13, 10})
}

func TestCloseReleasesMemory(t *testing.T) {
	p, f := build(t, "gemv")
	sp := f.Space()
	baseline := sp.Counters().LiveBytes

	g := newChain(t, 1, 2)
	mustBindSet(t, f, "points", g.points)
	mustBindSet(t, f, "springs", g.springs)
	if err := f.RunSafe(); err != nil {
		t.Fatalf("RunSafe: %v", err)
	}
	slot, ok := f.TemporaryAddress("A")
	if !ok || sp.LoadAddr(slot).IsNull() {
		t.Fatalf("temporary A not allocated")
	}
	rp, ci, ok := f.IndexAddresses("A_index")
	if !ok || sp.LoadAddr(rp).IsNull() || sp.LoadAddr(ci).IsNull() {
		t.Fatalf("index slots not written")
	}
	coords := make([]uint32, g.points.Size()+1)
	for i := range coords {
		coords[i] = sp.LoadU32(sp.LoadAddr(rp), i)
	}
	sinks := make([]uint32, coords[len(coords)-1])
	for i := range sinks {
		sinks[i] = sp.LoadU32(sp.LoadAddr(ci), i)
	}
	if err := testkit.CheckCSR(coords, sinks, g.points.Size()); err != nil {
		t.Fatalf("A_index: %v", err)
	}
	if !slices.Equal(sinks, []uint32{0, 1, 0, 1, 2, 1, 2}) {
		t.Fatalf("A_index sinks = %v", sinks)
	}

	if err := f.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !sp.LoadAddr(slot).IsNull() || !sp.LoadAddr(rp).IsNull() {
		t.Fatalf("slots not reset after Close")
	}
	if got := sp.Counters().LiveBytes; got != baseline {
		t.Fatalf("live bytes = %d, want %d", got, baseline)
	}
	if p.Counts.Deinit != 1 {
		t.Fatalf("deinit ran %d times", p.Counts.Deinit)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	err := f.Run()
	if !diag.IsCode(err, diag.RunClosed) || !errors.Is(err, backend.ErrClosed) {
		t.Fatalf("Run after Close: %v", err)
	}
	if err := f.BindSet("points", g.points); !diag.IsCode(err, diag.RunClosed) {
		t.Fatalf("BindSet after Close: %v", err)
	}
}

func TestUsageErrors(t *testing.T) {
	_, f := build(t, "gemv-args")
	g := newChain(t, 1, 2)

	if err := f.Run(); !diag.IsCode(err, diag.RunNotInitialized) {
		t.Fatalf("Run before Init: %v", err)
	}
	if err := f.BindSet("nodes", g.points); !diag.IsCode(err, diag.BndUnknownBindable) {
		t.Fatalf("unknown bindable: %v", err)
	}
	if err := f.BindFloats("points", []float64{1}); !diag.IsCode(err, diag.BndWrongActualKind) {
		t.Fatalf("floats to set: %v", err)
	}
	if err := f.BindSparse("points", backend.TensorData{}); !diag.IsCode(err, diag.BndSparseOnArgument) {
		t.Fatalf("sparse to argument: %v", err)
	}
	if err := f.BindSet("points", nil); !diag.IsCode(err, diag.BndWrongActualKind) {
		t.Fatalf("nil set: %v", err)
	}
	bare := graph.NewSet("points")
	if err := f.BindSet("points", bare); !diag.IsCode(err, diag.BndSetTypeMismatch) {
		t.Fatalf("missing fields: %v", err)
	}
	mustBindSet(t, f, "points", g.points)
	_, err := f.Init()
	var ue *diag.UsageError
	if !errors.As(err, &ue) || ue.Code != diag.BndUnboundArgument || ue.Name != "springs" {
		t.Fatalf("Init with unbound springs: %v", err)
	}
}

// vectorImage compiles "scale", which doubles the first three entries of the
// global vector x.
func vectorImage(t *testing.T) (*image.Module, *ir.Func) {
	t.Helper()
	sp := mem.NewSpace()
	env := ir.NewEnvironment()
	x := ir.NewVar("x", ir.TensorOf(ir.TensorType{Component: ir.Float64, Dims: []ir.IndexDomain{ir.Domain(ir.Range(3))}}))
	env.AddExtern(x)
	m := ir.NewVar("M", ir.TensorOf(ir.TensorType{Component: ir.Float64, Dims: []ir.IndexDomain{ir.Domain(ir.Range(2)), ir.Domain(ir.Range(2))}}))
	env.AddExtern(m, ir.NewVar("M_data", ir.ArrayOf(ir.Float64)), ir.NewVar("M_rowptr", ir.ArrayOf(ir.Uint32)), ir.NewVar("M_colidx", ir.ArrayOf(ir.Uint32)))

	img := image.NewModule("vec", sp)
	for _, g := range []string{"x", "M_data", "M_rowptr", "M_colidx"} {
		if err := img.DefineGlobal(g, mem.WordSize); err != nil {
			t.Fatalf("DefineGlobal: %v", err)
		}
	}
	_ = img.DefineFunc(image.Func{Name: "scale", Body: func(fr *image.Frame) {
		s := fr.Space()
		a := s.LoadAddr(fr.Global("x"))
		for i := range 3 {
			s.StoreF64(a, i, 2*s.LoadF64(a, i))
		}
	}})
	if err := img.Finalize(nil); err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	return img, &ir.Func{Name: "scale", Env: env, Storage: ir.NewStorage()}
}

// checkedImage compiles "scale" with a "scale_init" that reads x[0], so
// Init faults while x is unbound.
func checkedImage(t *testing.T) (*image.Module, *ir.Func, *int) {
	t.Helper()
	sp := mem.NewSpace()
	env := ir.NewEnvironment()
	env.AddExtern(ir.NewVar("x", ir.TensorOf(ir.TensorType{Component: ir.Float64, Dims: []ir.IndexDomain{ir.Domain(ir.Range(3))}})))

	runs := new(int)
	img := image.NewModule("checked", sp)
	if err := img.DefineGlobal("x", mem.WordSize); err != nil {
		t.Fatalf("DefineGlobal: %v", err)
	}
	_ = img.DefineFunc(image.Func{Name: "scale", Body: func(*image.Frame) { *runs++ }})
	_ = img.DefineFunc(image.Func{Name: "scale_init", Body: func(fr *image.Frame) {
		s := fr.Space()
		_ = s.LoadF64(s.LoadAddr(fr.Global("x")), 0)
	}})
	if err := img.Finalize(nil); err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	return img, &ir.Func{Name: "scale", Env: env, Storage: ir.NewStorage()}, runs
}

func TestFailedInitResets(t *testing.T) {
	img, fn, runs := checkedImage(t)
	f, err := backend.New(img, fn)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := f.BindFloats("x", []float64{1, 2, 3}); err != nil {
		t.Fatalf("BindFloats: %v", err)
	}
	entry, err := f.Init()
	if err != nil {
		t.Fatalf("Init: %v", err)
	}

	if err := f.BindData("x", mem.Null); err != nil {
		t.Fatalf("BindData: %v", err)
	}
	_, err = f.Init()
	var fault *mem.Fault
	if !diag.IsCode(err, diag.RunFault) || !errors.As(err, &fault) || fault.Code != mem.FaultNullDeref {
		t.Fatalf("Init with null x: %v", err)
	}
	if f.State() != backend.Constructed {
		t.Fatalf("state after failed Init = %v, want constructed", f.State())
	}
	if err := f.Run(); !diag.IsCode(err, diag.RunNotInitialized) {
		t.Fatalf("Run after failed Init: %v", err)
	}
	if err := entry.Call(); !diag.IsCode(err, diag.RunNotInitialized) {
		t.Fatalf("entry from before the failed Init: %v", err)
	}
	if *runs != 0 {
		t.Fatalf("entry point ran %d times", *runs)
	}

	if err := f.BindFloats("x", []float64{4, 5, 6}); err != nil {
		t.Fatalf("BindFloats: %v", err)
	}
	if err := f.RunSafe(); err != nil {
		t.Fatalf("RunSafe after recovery: %v", err)
	}
	if *runs != 1 {
		t.Fatalf("runs = %d, want 1", *runs)
	}
}

func TestGlobalRebindInPlace(t *testing.T) {
	img, fn := vectorImage(t)
	f, err := backend.New(img, fn)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	xs := []float64{1, 2, 3}
	if err := f.BindFloats("x", xs); err != nil {
		t.Fatalf("BindFloats: %v", err)
	}
	if err := f.RunSafe(); err != nil {
		t.Fatalf("RunSafe: %v", err)
	}
	if !slices.Equal(xs, []float64{2, 4, 6}) {
		t.Fatalf("xs = %v", xs)
	}

	ys := []float64{1, 1, 1}
	if err := f.BindFloats("x", ys); err != nil {
		t.Fatalf("rebind: %v", err)
	}
	if f.State() != backend.Initialized {
		t.Fatalf("global rebind changed state to %v", f.State())
	}
	if err := f.Run(); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !slices.Equal(ys, []float64{2, 2, 2}) || !slices.Equal(xs, []float64{2, 4, 6}) {
		t.Fatalf("xs = %v, ys = %v", xs, ys)
	}
}

func TestBindSparse(t *testing.T) {
	img, fn := vectorImage(t)
	f, err := backend.New(img, fn)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	td := backend.TensorData{
		Data:   []float64{4, 1, 5},
		Rowptr: []uint32{0, 2, 3},
		Colidx: []uint32{0, 1, 1},
	}
	if err := f.BindSparse("M", td); err != nil {
		t.Fatalf("BindSparse: %v", err)
	}
	sp := f.Space()
	slot := func(i int) mem.Addr {
		a, ok := f.ExternAddress("M", i)
		if !ok {
			t.Fatalf("no slot %d", i)
		}
		return sp.LoadAddr(a)
	}
	if got := sp.LoadF64(slot(0), 2); got != 5 {
		t.Fatalf("data[2] = %v", got)
	}
	if got := sp.LoadU32(slot(1), 2); got != 3 {
		t.Fatalf("rowptr[2] = %v", got)
	}
	if got := sp.LoadU32(slot(2), 1); got != 1 {
		t.Fatalf("colidx[1] = %v", got)
	}

	bad := td
	bad.Rowptr = []uint32{0, 2, 4}
	if err := f.BindSparse("M", bad); !diag.IsCode(err, diag.BndWrongActualKind) {
		t.Fatalf("malformed rowptr: %v", err)
	}
	if err := f.BindSparse("x", td); !diag.IsCode(err, diag.BndWrongActualKind) {
		t.Fatalf("sparse to vector: %v", err)
	}
}

func TestRunFault(t *testing.T) {
	img, fn := vectorImage(t)
	f, err := backend.New(img, fn)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	// x was never bound, so its slot holds a null pointer
	err = f.RunSafe()
	var fault *mem.Fault
	if !diag.IsCode(err, diag.RunFault) || !errors.As(err, &fault) || fault.Code != mem.FaultNullDeref {
		t.Fatalf("RunSafe: %v", err)
	}
}

func TestNewRejectsMismatchedImage(t *testing.T) {
	img, fn := vectorImage(t)
	fn.Env.AddTemporary(ir.NewVar("tmp", ir.Scalar(ir.Float64)))
	if _, err := backend.New(img, fn); !errors.Is(err, image.ErrUnknownSymbol) {
		t.Fatalf("missing temporary global: %v", err)
	}

	_, fn2 := vectorImage(t)
	fn2.Args = []ir.Var{ir.NewVar("y", ir.Scalar(ir.Float64))}
	img2, _ := vectorImage(t)
	if _, err := backend.New(img2, fn2); err == nil {
		t.Fatalf("expected formal count mismatch")
	}
}

package backend

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"meshc/internal/diag"
	"meshc/internal/image"
	"meshc/internal/ir"
	"meshc/internal/mem"
	"meshc/internal/trace"
)

// Entry is the argument-free entry point returned by Init. It stays valid
// until the next rebind of an argument, the next Init or Close.
type Entry struct {
	f   *Function
	gen uint64
	c   image.Callable
}

// Name returns the name of the function Call runs.
func (e Entry) Name() string { return e.c.Name() }

// Call invokes the entry point.
func (e Entry) Call() error {
	if e.f == nil {
		return diag.Usage(diag.RunNotInitialized, "", "entry from Init", "zero Entry")
	}
	if err := e.f.invocable(); err != nil {
		return err
	}
	if e.gen != e.f.gen {
		return diag.Usage(diag.RunNotInitialized, e.f.name, "current entry", "entry from an earlier Init")
	}
	return e.f.call(e.c)
}

// sizes answers temporary sizing queries from the current bindings.
type sizes struct{ f *Function }

func (s sizes) SetSize(name string) (int, bool) {
	if a, ok := s.f.args[name]; ok && a.kind == actualSet {
		return a.set.Size(), true
	}
	if a, ok := s.f.globals[name]; ok && a.kind == actualSet {
		return a.set.Size(), true
	}
	return 0, false
}

func (s sizes) Neighbors(ti *ir.TensorIndex) int {
	n, ok := s.f.neighbors[ti.Name()]
	if !ok {
		panic(fmt.Errorf("backend: tensor index %s was not built", ti.Name()))
	}
	return n
}

// Init builds path indices, allocates temporaries, generates the harness
// when the entry point takes arguments, runs <name>_init and returns the
// entry point. Calling Init again tears the previous initialization down
// first.
func (f *Function) Init() (_ Entry, err error) {
	if err := f.usable(f.name); err != nil {
		return Entry{}, err
	}
	for _, a := range f.fn.Args {
		if _, ok := f.args[a.Name]; !ok {
			return Entry{}, diag.Usage(diag.BndUnboundArgument, a.Name, "bound "+a.Type.String(), "nothing")
		}
	}

	start := time.Now()
	idx := f.timer.Begin("init")
	ctx, span := trace.Start(f.ctx, trace.ScopePass, "init")
	defer func() {
		span.WithExtra("session", f.session.String()).End(f.name)
		f.timer.End(idx, fmt.Sprintf("%d indices, %d temporaries", len(f.neighbors), len(f.temps)))
	}()

	defer func() {
		if err != nil {
			f.abandon(err)
		}
	}()
	if err := f.teardown(); err != nil {
		return Entry{}, err
	}

	f.bindBuilder()
	for _, ti := range f.fn.Env.TensorIndices() {
		if ti.IsComputed() {
			continue
		}
		_, s := trace.Start(ctx, trace.ScopeModule, "index")
		n := f.buildIndex(ti)
		s.WithExtra("neighbors", fmt.Sprint(n)).End(ti.Name())
	}
	if err := f.allocTemporaries(ctx); err != nil {
		return Entry{}, err
	}
	if err := f.link(ctx); err != nil {
		return Entry{}, err
	}
	if f.initFn.Valid() {
		if err := f.initFn.Call(); err != nil {
			return Entry{}, &diag.UsageError{Code: diag.RunFault, Name: f.initFn.Name(), Err: err}
		}
	}

	f.live = true
	f.gen++
	f.state = Initialized
	f.metrics.InitTook(time.Since(start))
	return Entry{f: f, gen: f.gen, c: f.entry}, nil
}

// bindBuilder binds every bound set, arguments and globals, by the name
// path expressions use for it.
func (f *Function) bindBuilder() {
	for name, a := range f.globals {
		if a.kind == actualSet {
			f.builder.Bind(name, a.set)
		}
	}
	for name, a := range f.args {
		if a.kind == actualSet {
			f.builder.Bind(name, a.set)
		}
	}
}

// buildIndex realizes a stored tensor index and points its slots at the
// CSR arrays. The arrays belong to the builder's memo table and are mapped,
// not copied.
func (f *Function) buildIndex(ti *ir.TensorIndex) int {
	pi := f.builder.BuildSegmented(ti.PathExpression(), 0)
	coords, sinks, ok := pi.Segmented()
	if !ok {
		panic(fmt.Errorf("backend: %s did not build a segmented index", ti.Name()))
	}
	rp := f.space.Map(mem.Uint32Bytes(coords), ti.RowptrArray().Name)
	ci := f.space.Map(mem.Uint32Bytes(sinks), ti.ColidxArray().Name)
	f.indexBufs = append(f.indexBufs, rp, ci)
	slots := f.indexSlots[ti.Name()]
	f.space.StoreAddr(slots[0], rp)
	f.space.StoreAddr(slots[1], ci)
	f.neighbors[ti.Name()] = pi.NumNeighbors()
	return pi.NumNeighbors()
}

func (f *Function) allocTemporaries(ctx context.Context) error {
	storage := f.fn.Storage
	for _, v := range f.fn.Env.Temporaries() {
		var ts ir.TensorStorage
		if storage != nil && storage.Has(v) {
			ts = storage.Get(v)
		}
		_, s := trace.Start(ctx, trace.ScopeModule, "temporary")
		n, err := f.engine.TemporaryBytes(v, ts, sizes{f})
		if err != nil {
			s.End("error")
			return fmt.Errorf("backend: temporary %s: %w", v.Name, err)
		}
		buf := f.space.Alloc(n, v.Name)
		f.temps = append(f.temps, buf)
		f.space.StoreAddr(f.tempSlots[v.Name], buf)
		f.metrics.TemporaryAllocated(n)
		s.WithExtra("bytes", fmt.Sprint(n)).End(v.Name)
	}
	return nil
}

// link selects the entry points. Without formals the image's functions are
// used directly. Otherwise a new harness image is generated whose
// argument-free functions call the image's functions with the bound
// actuals, and is finalized against the image.
func (f *Function) link(ctx context.Context) error {
	if len(f.formals) == 0 {
		f.harness = nil
		f.entry, _ = f.img.FunctionAddress(f.name)
		f.initFn, f.deinitFn = f.optional(f.img, f.name+"_init"), f.optional(f.img, f.name+"_deinit")
		return nil
	}

	_, span := trace.Start(ctx, trace.ScopeModule, "harness")
	name := "harness_" + strings.ReplaceAll(f.session.String(), "-", "")
	defer span.End(name)

	actuals := make([]image.Value, len(f.formals))
	for i, formal := range f.formals {
		actuals[i] = f.materialize(formal)
	}

	h := image.NewModule(name, f.space)
	targets := []string{f.name, f.name + "_init", f.name + "_deinit"}
	for _, target := range targets {
		if !f.img.HasFunc(target) {
			continue
		}
		if err := h.DeclareFunc(target); err != nil {
			return err
		}
		if err := h.DefineFunc(image.Func{
			Name: target + "_harness",
			Body: func(fr *image.Frame) { fr.Call(target, actuals...) },
		}); err != nil {
			return err
		}
	}
	l := image.NewLinker()
	if err := l.AddModule(f.img); err != nil {
		return err
	}
	if err := h.Finalize(l); err != nil {
		return fmt.Errorf("backend: finalize %s: %w", name, err)
	}
	f.harness = h
	f.entry, _ = h.FunctionAddress(f.name + "_harness")
	f.initFn = f.optional(h, f.name+"_init_harness")
	f.deinitFn = f.optional(h, f.name+"_deinit_harness")
	return nil
}

// materialize turns a bound argument into the constant the harness passes.
// By-value formals receive the word stored at the bound address now.
func (f *Function) materialize(formal image.Formal) image.Value {
	a := f.args[formal.Name]
	if formal.ByPointer {
		return image.PtrValue(a.addr)
	}
	return image.WordValue(f.space.LoadWord(a.addr))
}

func (f *Function) optional(m *image.Module, name string) image.Callable {
	if !m.HasFunc(name) {
		return image.Callable{}
	}
	c, _ := m.FunctionAddress(name)
	return c
}

// abandon cleans up after a failed Init. Whatever the failed attempt
// allocated is released, the function needs a new Init and entries from
// earlier Inits go stale.
func (f *Function) abandon(cause error) {
	trace.PointFrom(f.ctx, trace.ScopePass, "init-failed", cause.Error())
	if err := f.teardown(); err != nil {
		trace.PointFrom(f.ctx, trace.ScopePass, "teardown", err.Error())
	}
	f.gen++
	if f.state == Initialized {
		f.state = Constructed
	}
}

// teardown undoes the previous Init: runs <name>_deinit, frees temporaries,
// unmaps index arrays and resets their slots.
func (f *Function) teardown() error {
	var errs []error
	if f.live && f.deinitFn.Valid() {
		if err := f.deinitFn.Call(); err != nil {
			errs = append(errs, err)
		}
	}
	f.live = false
	for _, a := range f.stale {
		if err := f.space.Free(a); err != nil {
			errs = append(errs, err)
		}
	}
	f.stale = f.stale[:0]
	for _, a := range f.temps {
		if err := f.space.Free(a); err != nil {
			errs = append(errs, err)
		}
	}
	f.temps = f.temps[:0]
	for _, a := range f.tempSlots {
		f.space.StoreAddr(a, mem.Null)
	}
	for _, a := range f.indexBufs {
		if err := f.space.Free(a); err != nil {
			errs = append(errs, err)
		}
	}
	f.indexBufs = f.indexBufs[:0]
	for _, s := range f.indexSlots {
		f.space.StoreAddr(s[0], mem.Null)
		f.space.StoreAddr(s[1], mem.Null)
	}
	clear(f.neighbors)
	if f.harness != nil {
		if err := f.harness.Release(); err != nil {
			errs = append(errs, err)
		}
		f.harness = nil
	}
	return errors.Join(errs...)
}

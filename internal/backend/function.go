package backend

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"meshc/internal/diag"
	"meshc/internal/graph"
	"meshc/internal/image"
	"meshc/internal/ir"
	"meshc/internal/layout"
	"meshc/internal/mem"
	"meshc/internal/observ"
	"meshc/internal/pe"
	"meshc/internal/trace"
)

// ErrClosed is wrapped by the RUN2002 usage error.
var ErrClosed = errors.New("backend: function closed")

// State is the lifecycle state of a Function.
type State uint8

const (
	Constructed State = iota + 1
	Initialized
	Closed
)

func (s State) String() string {
	switch s {
	case Constructed:
		return "constructed"
	case Initialized:
		return "initialized"
	case Closed:
		return "closed"
	}
	return "invalid"
}

type actualKind uint8

const (
	actualSet actualKind = iota + 1
	actualData
	actualSparse
)

// actual is what the user bound to one bindable.
type actual struct {
	kind   actualKind
	set    *graph.Set
	addr   mem.Addr // set record or tensor data
	sparse [3]mem.Addr
}

// Option configures a Function.
type Option func(*Function)

// WithContext sets the context carrying the tracer and parent span.
func WithContext(ctx context.Context) Option {
	return func(f *Function) { f.ctx = ctx }
}

// WithMetrics records init latency, temporaries, runs and index builds in m.
func WithMetrics(m *observ.Metrics) Option {
	return func(f *Function) { f.metrics = m }
}

// WithIndexCache consults c before evaluating path expressions.
func WithIndexCache(c pe.Cache) Option {
	return func(f *Function) { f.cache = c }
}

// WithTarget overrides the layout target.
func WithTarget(t layout.Target) Option {
	return func(f *Function) { f.target = t }
}

// Function is one bound-execution instance of a compiled function. It is
// not safe for concurrent use; independent instances may run in parallel.
type Function struct {
	name    string
	session uuid.UUID
	ctx     context.Context
	metrics *observ.Metrics
	cache   pe.Cache
	target  layout.Target
	timer   *observ.Timer

	space   *mem.Space
	img     *image.Module
	fn      *ir.Func
	formals []image.Formal
	engine  *layout.Engine
	builder *pe.Builder

	// Address tables, queried once from the finalized image.
	externSlots map[string][]mem.Addr
	tempSlots   map[string]mem.Addr
	indexSlots  map[string][2]mem.Addr

	args    map[string]actual
	globals map[string]actual
	// owned lists allocations made on behalf of each bindable.
	owned map[string][]mem.Addr
	stale []mem.Addr

	temps     []mem.Addr
	indexBufs []mem.Addr
	neighbors map[string]int

	harness  *image.Module
	entry    image.Callable
	initFn   image.Callable
	deinitFn image.Callable

	// live is set while an Init's setup has run and its teardown has not.
	live  bool
	state State
	gen   uint64
}

// New binds a Function to a finalized image. The image must define fn.Name
// with one formal per fn.Args entry, a global for every extern mapping,
// temporary and stored tensor index array, and optionally
// <name>_init and <name>_deinit with the same formals.
func New(img *image.Module, fn *ir.Func, opts ...Option) (*Function, error) {
	if !img.Finalized() {
		return nil, image.ErrNotFinalized
	}
	f := &Function{
		name:        fn.Name,
		session:     uuid.New(),
		ctx:         context.Background(),
		target:      layout.Host(),
		timer:       observ.NewTimer(),
		space:       img.Space(),
		img:         img,
		fn:          fn,
		externSlots: make(map[string][]mem.Addr),
		tempSlots:   make(map[string]mem.Addr),
		indexSlots:  make(map[string][2]mem.Addr),
		args:        make(map[string]actual),
		globals:     make(map[string]actual),
		owned:       make(map[string][]mem.Addr),
		neighbors:   make(map[string]int),
		state:       Constructed,
	}
	for _, opt := range opts {
		opt(f)
	}
	f.engine = layout.New(f.target)
	f.builder = f.newBuilder()

	_, span := trace.Start(f.ctx, trace.ScopePass, "construct")
	defer span.WithExtra("session", f.session.String()).End(fn.Name)

	formals, ok := img.Formals(fn.Name)
	if !ok {
		return nil, fmt.Errorf("backend: image %s has no function %s", img.Name(), fn.Name)
	}
	if len(formals) != len(fn.Args) {
		return nil, fmt.Errorf("backend: %s has %d formals in the image, %d arguments declared", fn.Name, len(formals), len(fn.Args))
	}
	for i, a := range fn.Args {
		if formals[i].Name != a.Name {
			return nil, fmt.Errorf("backend: %s formal %d is %q, argument is %q", fn.Name, i, formals[i].Name, a.Name)
		}
	}
	f.formals = formals
	if err := f.resolveSlots(); err != nil {
		return nil, err
	}
	return f, nil
}

func (f *Function) newBuilder() *pe.Builder {
	opts := []pe.Option{pe.WithContext(f.ctx), pe.WithMetrics(f.metrics)}
	if f.cache != nil {
		opts = append(opts, pe.WithCache(f.cache))
	}
	return pe.NewBuilder(opts...)
}

// resolveSlots looks up and zeroes every address slot the image exposes.
func (f *Function) resolveSlots() error {
	slot := func(name string) (mem.Addr, error) {
		a, err := f.img.GlobalAddress(name)
		if err != nil {
			return mem.Null, fmt.Errorf("backend: %w", err)
		}
		f.space.StoreAddr(a, mem.Null)
		return a, nil
	}
	env := f.fn.Env
	for _, m := range env.Externs() {
		addrs := make([]mem.Addr, len(m.Mappings))
		for i, v := range m.Mappings {
			a, err := slot(v.Name)
			if err != nil {
				return err
			}
			addrs[i] = a
		}
		f.externSlots[m.Var.Name] = addrs
	}
	for _, v := range env.Temporaries() {
		a, err := slot(v.Name)
		if err != nil {
			return err
		}
		f.tempSlots[v.Name] = a
	}
	for _, ti := range env.TensorIndices() {
		if ti.IsComputed() {
			continue
		}
		rp, err := slot(ti.RowptrArray().Name)
		if err != nil {
			return err
		}
		ci, err := slot(ti.ColidxArray().Name)
		if err != nil {
			return err
		}
		f.indexSlots[ti.Name()] = [2]mem.Addr{rp, ci}
	}
	return nil
}

// Name returns the entry point name.
func (f *Function) Name() string { return f.name }

// Session identifies this instance in traces and harness names.
func (f *Function) Session() uuid.UUID { return f.session }

func (f *Function) State() State { return f.state }

// Timings returns the phase timer.
func (f *Function) Timings() *observ.Timer { return f.timer }

// Builder returns the path index builder owned by this instance.
func (f *Function) Builder() *pe.Builder { return f.builder }

// Harness returns the harness image generated by the last Init, if any.
func (f *Function) Harness() *image.Module { return f.harness }

// Space returns the address space shared with the image.
func (f *Function) Space() *mem.Space { return f.space }

// ExternAddress returns the address of the i-th symbol an extern maps to.
func (f *Function) ExternAddress(name string, i int) (mem.Addr, bool) {
	slots, ok := f.externSlots[name]
	if !ok || i < 0 || i >= len(slots) {
		return mem.Null, false
	}
	return slots[i], true
}

// TemporaryAddress returns the slot of a temporary.
func (f *Function) TemporaryAddress(name string) (mem.Addr, bool) {
	a, ok := f.tempSlots[name]
	return a, ok
}

// IndexAddresses returns the rowptr and colidx slots of a stored tensor
// index.
func (f *Function) IndexAddresses(name string) (rowptr, colidx mem.Addr, ok bool) {
	s, ok := f.indexSlots[name]
	return s[0], s[1], ok
}

// Bindables returns the names accepted by the Bind methods: formal
// arguments first, then globals.
func (f *Function) Bindables() []string {
	out := make([]string, 0, len(f.fn.Args)+len(f.fn.Env.Externs()))
	for _, a := range f.fn.Args {
		out = append(out, a.Name)
	}
	for _, m := range f.fn.Env.Externs() {
		out = append(out, m.Var.Name)
	}
	return out
}

// bindable resolves name to its variable and whether it is an argument.
func (f *Function) bindable(name string) (ir.Var, bool, error) {
	if v, ok := f.fn.Arg(name); ok {
		return v, true, nil
	}
	if m, ok := f.fn.Env.Extern(name); ok {
		return m.Var, false, nil
	}
	return ir.Var{}, false, diag.Usage(diag.BndUnknownBindable, name,
		strings.Join(f.Bindables(), "|"), "unknown name")
}

func (f *Function) usable(name string) error {
	if f.state == Closed {
		return &diag.UsageError{Code: diag.RunClosed, Name: name, Err: ErrClosed}
	}
	return nil
}

// invalidate drops back to Constructed so the next invocation needs Init.
func (f *Function) invalidate(why string) {
	if f.state == Initialized {
		trace.PointFrom(f.ctx, trace.ScopePass, "invalidate", why)
		f.state = Constructed
	}
}

// release frees the allocations owned by a bindable. An argument's
// allocations stay alive until the next teardown while the harness that
// captured them can still run its deinit.
func (f *Function) release(name string) error {
	if _, isArg := f.fn.Arg(name); isArg && f.live {
		f.stale = append(f.stale, f.owned[name]...)
		delete(f.owned, name)
		return nil
	}
	var errs []error
	for _, a := range f.owned[name] {
		if err := f.space.Free(a); err != nil {
			errs = append(errs, err)
		}
	}
	delete(f.owned, name)
	return errors.Join(errs...)
}

func (f *Function) own(name string, a mem.Addr) mem.Addr {
	f.owned[name] = append(f.owned[name], a)
	return a
}

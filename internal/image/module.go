package image

import (
	"errors"
	"fmt"
	"slices"

	"meshc/internal/mem"
)

var (
	// ErrFinalized is returned when a finalized image is modified.
	ErrFinalized = errors.New("image: already finalized")
	// ErrNotFinalized is returned when addresses are queried too early.
	ErrNotFinalized = errors.New("image: not finalized")
	// ErrUnresolved is returned when a declared function has no definition.
	ErrUnresolved = errors.New("image: unresolved symbol")
	// ErrUnknownSymbol is returned for lookups of names the image lacks.
	ErrUnknownSymbol = errors.New("image: unknown symbol")
)

// Formal is one formal argument of a function.
type Formal struct {
	Name string
	// ByPointer formals receive the address of their actual.
	ByPointer bool
}

// Func defines a function of an image.
type Func struct {
	Name    string
	Formals []Formal
	Body    func(f *Frame)
}

type global struct {
	name string
	size int
	addr mem.Addr
}

// Module is one code image.
type Module struct {
	name  string
	space *mem.Space

	globals   map[string]*global
	globalSeq []string
	funcs     map[string]*Func
	funcSeq   []string
	declared  []string

	finalized bool
	resolved  map[string]Callable
}

// NewModule returns an empty image whose globals live in space.
func NewModule(name string, space *mem.Space) *Module {
	return &Module{
		name:    name,
		space:   space,
		globals: make(map[string]*global),
		funcs:   make(map[string]*Func),
	}
}

func (m *Module) Name() string { return m.name }

func (m *Module) Space() *mem.Space { return m.space }

func (m *Module) Finalized() bool { return m.finalized }

// DefineGlobal reserves a zeroed global of size bytes.
func (m *Module) DefineGlobal(name string, size int) error {
	if m.finalized {
		return ErrFinalized
	}
	if _, dup := m.globals[name]; dup {
		return fmt.Errorf("image %s: duplicate global %q", m.name, name)
	}
	if size <= 0 {
		size = mem.WordSize
	}
	m.globals[name] = &global{name: name, size: size}
	m.globalSeq = append(m.globalSeq, name)
	return nil
}

// DefineFunc adds a function definition.
func (m *Module) DefineFunc(fn Func) error {
	if m.finalized {
		return ErrFinalized
	}
	if fn.Body == nil {
		return fmt.Errorf("image %s: function %q has no body", m.name, fn.Name)
	}
	if _, dup := m.funcs[fn.Name]; dup {
		return fmt.Errorf("image %s: duplicate function %q", m.name, fn.Name)
	}
	f := fn
	f.Formals = slices.Clone(fn.Formals)
	m.funcs[fn.Name] = &f
	m.funcSeq = append(m.funcSeq, fn.Name)
	return nil
}

// DeclareFunc records a function defined in another image.
func (m *Module) DeclareFunc(name string) error {
	if m.finalized {
		return ErrFinalized
	}
	if !slices.Contains(m.declared, name) {
		m.declared = append(m.declared, name)
	}
	return nil
}

// Finalize allocates every global and resolves declared functions through
// l. It is a one-way transition.
func (m *Module) Finalize(l *Linker) error {
	if m.finalized {
		return ErrFinalized
	}
	resolved := make(map[string]Callable, len(m.declared))
	for _, name := range m.declared {
		if _, local := m.funcs[name]; local {
			continue
		}
		c, ok := l.Lookup(name)
		if !ok {
			return fmt.Errorf("%w: %s referenced by %s", ErrUnresolved, name, m.name)
		}
		resolved[name] = c
	}
	for _, name := range m.globalSeq {
		g := m.globals[name]
		g.addr = m.space.Alloc(g.size, m.name+"."+name)
	}
	m.resolved = resolved
	m.finalized = true
	return nil
}

// Release frees the globals of a finalized image.
func (m *Module) Release() error {
	if !m.finalized {
		return nil
	}
	var errs []error
	for _, name := range m.globalSeq {
		g := m.globals[name]
		if g.addr.IsNull() {
			continue
		}
		if err := m.space.Free(g.addr); err != nil {
			errs = append(errs, err)
		}
		g.addr = mem.Null
	}
	return errors.Join(errs...)
}

// GlobalAddress returns the address of a global.
func (m *Module) GlobalAddress(name string) (mem.Addr, error) {
	if !m.finalized {
		return mem.Null, ErrNotFinalized
	}
	g, ok := m.globals[name]
	if !ok {
		return mem.Null, fmt.Errorf("%w: global %s in %s", ErrUnknownSymbol, name, m.name)
	}
	return g.addr, nil
}

// HasGlobal reports whether the image defines a global.
func (m *Module) HasGlobal(name string) bool {
	_, ok := m.globals[name]
	return ok
}

// FunctionAddress returns a callable for a function defined by the image.
func (m *Module) FunctionAddress(name string) (Callable, error) {
	if !m.finalized {
		return Callable{}, ErrNotFinalized
	}
	fn, ok := m.funcs[name]
	if !ok {
		return Callable{}, fmt.Errorf("%w: function %s in %s", ErrUnknownSymbol, name, m.name)
	}
	return Callable{mod: m, fn: fn}, nil
}

// HasFunc reports whether the image defines a function.
func (m *Module) HasFunc(name string) bool {
	_, ok := m.funcs[name]
	return ok
}

// Formals returns the formal arguments of a defined function.
func (m *Module) Formals(name string) ([]Formal, bool) {
	fn, ok := m.funcs[name]
	if !ok {
		return nil, false
	}
	return slices.Clone(fn.Formals), true
}

// Globals returns global names in definition order.
func (m *Module) Globals() []string { return slices.Clone(m.globalSeq) }

// Funcs returns function names in definition order.
func (m *Module) Funcs() []string { return slices.Clone(m.funcSeq) }

func (m *Module) callee(name string) (Callable, bool) {
	if fn, ok := m.funcs[name]; ok {
		return Callable{mod: m, fn: fn}, true
	}
	c, ok := m.resolved[name]
	return c, ok
}

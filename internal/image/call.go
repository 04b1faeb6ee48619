package image

import (
	"fmt"

	"meshc/internal/mem"
)

// Callable is a resolved function of a finalized image.
type Callable struct {
	mod *Module
	fn  *Func
}

// Valid reports whether c refers to a function.
func (c Callable) Valid() bool { return c.fn != nil }

func (c Callable) Name() string {
	if c.fn == nil {
		return ""
	}
	return c.fn.Name
}

// Module returns the image defining the function.
func (c Callable) Module() *Module { return c.mod }

// Call runs the function. Invalid memory accesses made by the body are
// returned as *mem.Fault errors; any other panic propagates.
func (c Callable) Call(args ...Value) (err error) {
	if c.fn == nil {
		return fmt.Errorf("%w: call of invalid function", ErrUnknownSymbol)
	}
	defer func() {
		if r := recover(); r != nil {
			if f, ok := r.(*mem.Fault); ok {
				err = fmt.Errorf("%s.%s: %w", c.mod.name, c.fn.Name, f)
				return
			}
			panic(r)
		}
	}()
	c.invoke(args)
	return nil
}

func (c Callable) invoke(args []Value) {
	if len(args) != len(c.fn.Formals) {
		panic(fmt.Errorf("image: %s takes %d arguments, got %d", c.fn.Name, len(c.fn.Formals), len(args)))
	}
	for i, f := range c.fn.Formals {
		if f.ByPointer && args[i].Kind != VKPtr {
			panic(fmt.Errorf("image: %s.%s expects a pointer, got %s", c.fn.Name, f.Name, args[i].Kind))
		}
	}
	c.fn.Body(&Frame{mod: c.mod, fn: c.fn, args: args})
}

// Frame is the activation of a function body.
type Frame struct {
	mod  *Module
	fn   *Func
	args []Value
}

// Space returns the address space the image's data lives in.
func (f *Frame) Space() *mem.Space { return f.mod.space }

// Arg returns the i-th actual.
func (f *Frame) Arg(i int) Value { return f.args[i] }

// ArgNamed returns the actual of the formal called name.
func (f *Frame) ArgNamed(name string) Value {
	for i, formal := range f.fn.Formals {
		if formal.Name == name {
			return f.args[i]
		}
	}
	panic(fmt.Errorf("image: %s has no formal %q", f.fn.Name, name))
}

// Global returns the address of a global of the running image.
func (f *Frame) Global(name string) mem.Addr {
	g, ok := f.mod.globals[name]
	if !ok {
		panic(fmt.Errorf("image: %s has no global %q", f.mod.name, name))
	}
	return g.addr
}

// Call runs another function of the image or one it resolved at
// finalization.
func (f *Frame) Call(name string, args ...Value) {
	c, ok := f.mod.callee(name)
	if !ok {
		panic(fmt.Errorf("image: %s calls unresolved %q", f.mod.name, name))
	}
	c.invoke(args)
}

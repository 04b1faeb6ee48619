package image

import (
	"fmt"
	"io"
)

// Linker resolves function names across images.
type Linker struct {
	symbols map[string]Callable
}

func NewLinker() *Linker {
	return &Linker{symbols: make(map[string]Callable)}
}

// AddSymbol exports c under name.
func (l *Linker) AddSymbol(name string, c Callable) {
	l.symbols[name] = c
}

// AddModule exports every function of a finalized image.
func (l *Linker) AddModule(m *Module) error {
	if !m.finalized {
		return ErrNotFinalized
	}
	for _, name := range m.funcSeq {
		l.symbols[name] = Callable{mod: m, fn: m.funcs[name]}
	}
	return nil
}

// Lookup returns the callable exported under name.
func (l *Linker) Lookup(name string) (Callable, bool) {
	if l == nil {
		return Callable{}, false
	}
	c, ok := l.symbols[name]
	return c, ok
}

// Dump writes a listing of the image's symbols.
func (m *Module) Dump(w io.Writer) error {
	if _, err := fmt.Fprintf(w, "; image %s\n", m.name); err != nil {
		return err
	}
	for _, name := range m.globalSeq {
		g := m.globals[name]
		if _, err := fmt.Fprintf(w, "@%s = global [%d x i8] ; %s\n", name, g.size, g.addr); err != nil {
			return err
		}
	}
	for _, name := range m.declared {
		if _, local := m.funcs[name]; local {
			continue
		}
		if _, err := fmt.Fprintf(w, "declare void @%s\n", name); err != nil {
			return err
		}
	}
	for _, name := range m.funcSeq {
		fn := m.funcs[name]
		if _, err := fmt.Fprintf(w, "define void @%s(", name); err != nil {
			return err
		}
		for i, f := range fn.Formals {
			sep := ""
			if i > 0 {
				sep = ", "
			}
			ty := "i64"
			if f.ByPointer {
				ty = "ptr"
			}
			if _, err := fmt.Fprintf(w, "%s%s %%%s", sep, ty, f.Name); err != nil {
				return err
			}
		}
		if _, err := io.WriteString(w, ")\n"); err != nil {
			return err
		}
	}
	return nil
}

package ir

import (
	"fmt"
	"strconv"
)

// EvalContext resolves the free names of an expression.
type EvalContext interface {
	// Lookup returns the value of a scalar variable.
	Lookup(name string) (int, bool)
	// LatticeDim returns extent dim of the lattice link set variable set.
	LatticeDim(set string, dim int) (int, bool)
}

// Expr is an integer expression evaluated by generated code.
type Expr interface {
	Eval(ctx EvalContext) (int, error)
	String() string
}

// IntLit is an integer literal.
type IntLit int

func (e IntLit) Eval(EvalContext) (int, error) { return int(e), nil }
func (e IntLit) String() string               { return strconv.Itoa(int(e)) }

// VarRef reads a scalar variable.
type VarRef string

func (e VarRef) Eval(ctx EvalContext) (int, error) {
	v, ok := ctx.Lookup(string(e))
	if !ok {
		return 0, fmt.Errorf("unbound variable %q", string(e))
	}
	return v, nil
}

func (e VarRef) String() string { return string(e) }

// BinOp is an integer arithmetic operator.
type BinOp uint8

const (
	Add BinOp = iota + 1
	Sub
	Mul
	Div
	Rem
)

func (o BinOp) String() string {
	switch o {
	case Add:
		return "+"
	case Sub:
		return "-"
	case Mul:
		return "*"
	case Div:
		return "/"
	case Rem:
		return "%"
	}
	return "?"
}

// Binary applies Op to L and R. Div and Rem truncate like Go.
type Binary struct {
	Op   BinOp
	L, R Expr
}

func (e Binary) Eval(ctx EvalContext) (int, error) {
	l, err := e.L.Eval(ctx)
	if err != nil {
		return 0, err
	}
	r, err := e.R.Eval(ctx)
	if err != nil {
		return 0, err
	}
	switch e.Op {
	case Add:
		return l + r, nil
	case Sub:
		return l - r, nil
	case Mul:
		return l * r, nil
	case Div, Rem:
		if r == 0 {
			return 0, fmt.Errorf("division by zero in %s", e)
		}
		if e.Op == Div {
			return l / r, nil
		}
		return l % r, nil
	}
	return 0, fmt.Errorf("unknown operator %d", e.Op)
}

func (e Binary) String() string {
	return "(" + e.L.String() + " " + e.Op.String() + " " + e.R.String() + ")"
}

// LatticeDim reads extent Dim of the lattice link set variable Set.
type LatticeDim struct {
	Set string
	Dim int
}

func (e LatticeDim) Eval(ctx EvalContext) (int, error) {
	v, ok := ctx.LatticeDim(e.Set, e.Dim)
	if !ok {
		return 0, fmt.Errorf("no dimension %d for lattice %q", e.Dim, e.Set)
	}
	return v, nil
}

func (e LatticeDim) String() string { return fmt.Sprintf("%s.dims[%d]", e.Set, e.Dim) }

// Table indexes a constant table.
type Table struct {
	Values []int
	Index  Expr
}

func (e Table) Eval(ctx EvalContext) (int, error) {
	i, err := e.Index.Eval(ctx)
	if err != nil {
		return 0, err
	}
	if i < 0 || i >= len(e.Values) {
		return 0, fmt.Errorf("table index %d out of range [0,%d)", i, len(e.Values))
	}
	return e.Values[i], nil
}

func (e Table) String() string { return fmt.Sprintf("%v[%s]", e.Values, e.Index) }

// Let binds Name to Value while evaluating Body.
type Let struct {
	Name  string
	Value Expr
	Body  Expr
}

func (e Let) Eval(ctx EvalContext) (int, error) {
	v, err := e.Value.Eval(ctx)
	if err != nil {
		return 0, err
	}
	return e.Body.Eval(letContext{EvalContext: ctx, name: e.Name, value: v})
}

func (e Let) String() string {
	return "let " + e.Name + " = " + e.Value.String() + " in " + e.Body.String()
}

type letContext struct {
	EvalContext
	name  string
	value int
}

func (c letContext) Lookup(name string) (int, bool) {
	if name == c.name {
		return c.value, true
	}
	if c.EvalContext == nil {
		return 0, false
	}
	return c.EvalContext.Lookup(name)
}

func (c letContext) LatticeDim(set string, dim int) (int, bool) {
	if c.EvalContext == nil {
		return 0, false
	}
	return c.EvalContext.LatticeDim(set, dim)
}

// Env is a map-backed EvalContext.
type Env struct {
	Vars map[string]int
	Dims map[string][]int
}

func (e Env) Lookup(name string) (int, bool) {
	v, ok := e.Vars[name]
	return v, ok
}

func (e Env) LatticeDim(set string, dim int) (int, bool) {
	dims, ok := e.Dims[set]
	if !ok || dim < 0 || dim >= len(dims) {
		return 0, false
	}
	return dims[dim], true
}

func add(l, r Expr) Expr { return Binary{Op: Add, L: l, R: r} }
func mul(l, r Expr) Expr { return Binary{Op: Mul, L: l, R: r} }
func div(l, r Expr) Expr { return Binary{Op: Div, L: l, R: r} }
func rem(l, r Expr) Expr { return Binary{Op: Rem, L: l, R: r} }

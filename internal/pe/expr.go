// Package pe builds path indices: for every element of a set, the ordered
// list of elements reachable from it through the paths described by a path
// expression. Compiled code uses segmented path indices as the row pointer
// and column index arrays of its sparse matrices.
package pe

import (
	"fmt"
	"strconv"
	"strings"
)

// Var is an element variable ranging over the set bound to the set
// parameter named Set.
type Var struct {
	Name string
	Set  string
}

func (v Var) String() string { return v.Name + ":" + v.Set }

// Op is the combinator at the root of a path expression.
type Op uint8

const (
	OpLink Op = iota + 1
	OpAnd
	OpOr
	OpExists
)

func (o Op) String() string {
	switch o {
	case OpLink:
		return "link"
	case OpAnd:
		return "and"
	case OpOr:
		return "or"
	case OpExists:
		return "exists"
	default:
		return "invalid"
	}
}

// PathExpression describes a set of paths between two endpoint variables.
// Values are immutable; two alpha-equivalent expressions share a Key.
// The zero value is undefined.
type PathExpression struct {
	n *node
}

type node struct {
	op    Op
	ends  [2]Var
	quant Var
	subs  [2]*node
	key   string
}

// Link is the direct incidence path between an edge variable and a
// variable over one of the edge set's endpoint sets. Which side is the edge
// is decided when the sets are bound.
func Link(a, b Var) PathExpression {
	return finish(&node{op: OpLink, ends: [2]Var{a, b}})
}

// And holds the paths present in both p and q.
func And(p, q PathExpression) PathExpression {
	return junction(OpAnd, p, q)
}

// Or holds the paths present in either p or q.
func Or(p, q PathExpression) PathExpression {
	return junction(OpOr, p, q)
}

func junction(op Op, p, q PathExpression) PathExpression {
	p.mustDefined()
	q.mustDefined()
	if p.n.ends != q.n.ends {
		panic(fmt.Errorf("pe: %s of expressions with different endpoints (%s, %s) and (%s, %s)",
			op, p.n.ends[0], p.n.ends[1], q.n.ends[0], q.n.ends[1]))
	}
	return finish(&node{op: op, ends: p.n.ends, subs: [2]*node{p.n, q.n}})
}

// Exists composes p1 and p2 through q: the result reaches b from a when p1
// reaches q from a and p2 reaches b from q. q must be an endpoint of both.
func Exists(q Var, p1, p2 PathExpression) PathExpression {
	p1.mustDefined()
	p2.mustDefined()
	a, ok1 := other(p1.n, q)
	b, ok2 := other(p2.n, q)
	if !ok1 || !ok2 {
		panic(fmt.Errorf("pe: quantified variable %s is not an endpoint of both sub-paths", q))
	}
	return finish(&node{op: OpExists, ends: [2]Var{a, b}, quant: q, subs: [2]*node{p1.n, p2.n}})
}

// other returns the endpoint of n that is not q.
func other(n *node, q Var) (Var, bool) {
	switch q {
	case n.ends[0]:
		return n.ends[1], true
	case n.ends[1]:
		return n.ends[0], true
	}
	return Var{}, false
}

// position returns the endpoint index of v in n.
func position(n *node, v Var) int {
	if n.ends[0] == v {
		return 0
	}
	if n.ends[1] == v {
		return 1
	}
	panic(fmt.Errorf("pe: %s is not an endpoint", v))
}

func finish(n *node) PathExpression {
	n.key = canonical(n)
	return PathExpression{n: n}
}

// canonical renders n with its variables renamed in order of first
// occurrence, starting with the endpoints.
func canonical(n *node) string {
	names := make(map[Var]string)
	name := func(v Var) string {
		s, ok := names[v]
		if !ok {
			s = "v" + strconv.Itoa(len(names))
			names[v] = s
		}
		return s + ":" + v.Set
	}
	var sb strings.Builder
	var walk func(*node)
	walk = func(n *node) {
		switch n.op {
		case OpLink:
			sb.WriteString("L(" + name(n.ends[0]) + "," + name(n.ends[1]) + ")")
		case OpAnd, OpOr:
			sb.WriteString(n.op.String() + "(")
			walk(n.subs[0])
			sb.WriteString(",")
			walk(n.subs[1])
			sb.WriteString(")")
		case OpExists:
			sb.WriteString("E[" + name(n.quant) + "](")
			walk(n.subs[0])
			sb.WriteString(",")
			walk(n.subs[1])
			sb.WriteString(")")
		}
	}
	sb.WriteString("<" + name(n.ends[0]) + "," + name(n.ends[1]) + ">")
	walk(n)
	return sb.String()
}

func (p PathExpression) mustDefined() {
	if p.n == nil {
		panic("pe: undefined path expression")
	}
}

// Defined reports whether p was built by a constructor.
func (p PathExpression) Defined() bool { return p.n != nil }

// Key returns the canonical structural key of p.
func (p PathExpression) Key() string {
	if p.n == nil {
		return ""
	}
	return p.n.key
}

// Compare orders path expressions by key.
func (p PathExpression) Compare(q PathExpression) int {
	return strings.Compare(p.Key(), q.Key())
}

// Equal reports whether p and q are alpha-equivalent.
func (p PathExpression) Equal(q PathExpression) bool { return p.Key() == q.Key() }

// Op returns the root combinator.
func (p PathExpression) Op() Op {
	p.mustDefined()
	return p.n.op
}

// Endpoint returns path endpoint i (0 or 1).
func (p PathExpression) Endpoint(i int) Var {
	p.mustDefined()
	if i != 0 && i != 1 {
		panic(fmt.Errorf("pe: path endpoint %d out of range", i))
	}
	return p.n.ends[i]
}

// Quantified returns the variable bound by an Exists expression.
func (p PathExpression) Quantified() Var {
	p.mustDefined()
	if p.n.op != OpExists {
		panic(fmt.Errorf("pe: %s expression has no quantified variable", p.n.op))
	}
	return p.n.quant
}

// Sub returns the i-th sub-expression of an And, Or or Exists expression.
func (p PathExpression) Sub(i int) PathExpression {
	p.mustDefined()
	if p.n.op == OpLink {
		panic("pe: link expression has no sub-expressions")
	}
	return PathExpression{n: p.n.subs[i]}
}

// Sets returns the set parameter names p refers to, in order of first
// occurrence.
func (p PathExpression) Sets() []string {
	if p.n == nil {
		return nil
	}
	var out []string
	seen := make(map[string]bool)
	add := func(v Var) {
		if !seen[v.Set] {
			seen[v.Set] = true
			out = append(out, v.Set)
		}
	}
	var walk func(*node)
	walk = func(n *node) {
		add(n.ends[0])
		add(n.ends[1])
		if n.op == OpExists {
			add(n.quant)
		}
		if n.op != OpLink {
			walk(n.subs[0])
			walk(n.subs[1])
		}
	}
	walk(p.n)
	return out
}

func (p PathExpression) String() string {
	if p.n == nil {
		return "<undefined>"
	}
	var walk func(*node) string
	walk = func(n *node) string {
		switch n.op {
		case OpLink:
			return n.ends[0].String() + "-" + n.ends[1].String()
		case OpAnd:
			return "(" + walk(n.subs[0]) + " & " + walk(n.subs[1]) + ")"
		case OpOr:
			return "(" + walk(n.subs[0]) + " | " + walk(n.subs[1]) + ")"
		case OpExists:
			return "∃" + n.quant.String() + "(" + walk(n.subs[0]) + " ; " + walk(n.subs[1]) + ")"
		}
		return "?"
	}
	return "(" + p.n.ends[0].Name + "," + p.n.ends[1].Name + ") " + walk(p.n)
}

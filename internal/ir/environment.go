package ir

import (
	"fmt"
	"strings"

	"meshc/internal/pe"
)

// VarMapping maps one user-visible extern to the symbols it is lowered to.
// A set extern usually maps to a single symbol holding its set record.
type VarMapping struct {
	Var      Var
	Mappings []Var
}

// Environment records what a compiled function needs from its caller:
// externs the user binds, temporaries the runtime allocates and the tensor
// indices the runtime builds.
type Environment struct {
	externs     []VarMapping
	externByKey map[string]int

	temporaries []Var
	tempByName  map[string]struct{}

	indices      []*TensorIndex
	indexByVar   map[string]*TensorIndex
	indexByExpr  map[string]*TensorIndex
	indexByStenc map[string]*TensorIndex
}

// NewEnvironment returns an empty environment.
func NewEnvironment() *Environment {
	return &Environment{
		externByKey:  make(map[string]int),
		tempByName:   make(map[string]struct{}),
		indexByVar:   make(map[string]*TensorIndex),
		indexByExpr:  make(map[string]*TensorIndex),
		indexByStenc: make(map[string]*TensorIndex),
	}
}

// AddExtern registers v. Without mappings v is lowered to a symbol of the
// same name.
func (e *Environment) AddExtern(v Var, mappings ...Var) {
	if _, dup := e.externByKey[v.Name]; dup {
		panic(fmt.Errorf("ir: duplicate extern %s", v.Name))
	}
	if len(mappings) == 0 {
		mappings = []Var{v}
	}
	e.externByKey[v.Name] = len(e.externs)
	e.externs = append(e.externs, VarMapping{Var: v, Mappings: mappings})
}

// Externs returns the externs in registration order.
func (e *Environment) Externs() []VarMapping { return e.externs }

// Extern returns the mapping of the extern called name.
func (e *Environment) Extern(name string) (VarMapping, bool) {
	i, ok := e.externByKey[name]
	if !ok {
		return VarMapping{}, false
	}
	return e.externs[i], true
}

func (e *Environment) HasExtern(name string) bool {
	_, ok := e.externByKey[name]
	return ok
}

// AddTemporary registers a runtime-allocated tensor.
func (e *Environment) AddTemporary(v Var) {
	if !v.Type.IsTensor() {
		panic(fmt.Errorf("ir: temporary %s is not a tensor", v.Name))
	}
	if _, dup := e.tempByName[v.Name]; dup {
		panic(fmt.Errorf("ir: duplicate temporary %s", v.Name))
	}
	e.tempByName[v.Name] = struct{}{}
	e.temporaries = append(e.temporaries, v)
}

func (e *Environment) Temporaries() []Var { return e.temporaries }

// TensorIndices returns the distinct tensor indices in creation order.
func (e *Environment) TensorIndices() []*TensorIndex { return e.indices }

// TensorIndexOf returns the index attached to tensor.
func (e *Environment) TensorIndexOf(tensor Var) (*TensorIndex, bool) {
	ti, ok := e.indexByVar[tensor.Name]
	return ti, ok
}

func (e *Environment) HasTensorIndex(tensor Var) bool {
	_, ok := e.indexByVar[tensor.Name]
	return ok
}

// pathIndexFor returns the PExpr index for expr, creating it named after
// the first tensor that needs it.
func (e *Environment) pathIndexFor(tensor Var, expr pe.PathExpression) *TensorIndex {
	key := expr.Key()
	ti, ok := e.indexByExpr[key]
	if !ok {
		ti = NewPExprIndex(tensor.Name+"_index", expr)
		e.indexByExpr[key] = ti
		e.indices = append(e.indices, ti)
	}
	e.indexByVar[tensor.Name] = ti
	return ti
}

func (e *Environment) stencilIndexFor(tensor Var, layout StencilLayout) *TensorIndex {
	key := layout.Key()
	ti, ok := e.indexByStenc[key]
	if !ok {
		ti = NewStencilIndex(tensor.Name+"_stencil", layout)
		e.indexByStenc[key] = ti
		e.indices = append(e.indices, ti)
	}
	e.indexByVar[tensor.Name] = ti
	return ti
}

func (e *Environment) String() string {
	var sb strings.Builder
	for _, m := range e.externs {
		fmt.Fprintf(&sb, "extern %s : %s", m.Var.Name, m.Var.Type)
		if len(m.Mappings) != 1 || m.Mappings[0].Name != m.Var.Name {
			names := make([]string, len(m.Mappings))
			for i, v := range m.Mappings {
				names[i] = v.Name
			}
			fmt.Fprintf(&sb, " -> %s", strings.Join(names, ", "))
		}
		sb.WriteString("\n")
	}
	for _, v := range e.temporaries {
		fmt.Fprintf(&sb, "temp %s : %s\n", v.Name, v.Type)
	}
	for _, ti := range e.indices {
		fmt.Fprintf(&sb, "index %s\n", ti)
	}
	return sb.String()
}

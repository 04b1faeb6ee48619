package graph

import "fmt"

// Graph is a named collection of sets loaded from one document.
type Graph struct {
	sets   []*Set
	byName map[string]*Set
}

// NewGraph returns an empty graph.
func NewGraph() *Graph {
	return &Graph{byName: make(map[string]*Set)}
}

// Insert registers s under its name.
func (g *Graph) Insert(s *Set) error {
	if _, dup := g.byName[s.name]; dup {
		return fmt.Errorf("duplicate set %q", s.name)
	}
	g.byName[s.name] = s
	g.sets = append(g.sets, s)
	return nil
}

// Set returns the set with the given name, or nil.
func (g *Graph) Set(name string) *Set { return g.byName[name] }

// Sets returns the sets in insertion order.
func (g *Graph) Sets() []*Set { return append([]*Set(nil), g.sets...) }

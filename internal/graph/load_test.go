package graph

import (
	"errors"
	"strings"
	"testing"

	"meshc/internal/diag"
)

const chainTOML = `
[[sets]]
name = "springs"
endpoints = ["points", "points"]
edges = [[0, 1], [1, 2]]
  [[sets.fields]]
  name = "a"
  values = [1.0, 2.0]

[[sets]]
name = "points"
size = 3
  [[sets.fields]]
  name = "b"
  values = [1.0, 2.0, 3.0]
  [[sets.fields]]
  name = "c"
`

func TestLoadTOML(t *testing.T) {
	g, err := Load([]byte(chainTOML), FormatTOML, "chain.toml")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	springs, points := g.Set("springs"), g.Set("points")
	if springs == nil || points == nil {
		t.Fatalf("sets missing: %v", g.Sets())
	}
	if springs.EndpointSet(0) != points {
		t.Fatalf("springs endpoints not bound to points")
	}
	if got := points.Field("b").Get(2); got != 3 {
		t.Fatalf("b[2] = %v", got)
	}
	if got := points.Field("c").Get(1); got != 0 {
		t.Fatalf("c[1] = %v, want zero", got)
	}
}

const latticeYAML = `
sets:
  - name: points
    fields:
      - name: b
        values: [1, 2, 3]
  - name: links
    lattice: points
    dims: [3]
    fields:
      - name: a
        values: [1, 2, 0]
`

func TestLoadYAMLLattice(t *testing.T) {
	g, err := Load([]byte(latticeYAML), FormatYAML, "ring.yaml")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	links := g.Set("links")
	if links.Kind() != LatticeLink || links.Size() != 3 {
		t.Fatalf("links = %v", links)
	}
	if got := g.Set("points").Field("b").Get(1); got != 2 {
		t.Fatalf("b[1] = %v", got)
	}
}

func TestLoadReportsAllProblems(t *testing.T) {
	doc := `
[[sets]]
name = "p"
size = 2
  [[sets.fields]]
  name = "x"
  values = [1.0]

[[sets]]
name = "e"
endpoints = ["p", "missing"]

[[sets]]
name = "f"
endpoints = ["p"]
edges = [[5]]
`
	_, err := Load([]byte(doc), FormatTOML, "bad.toml")
	if !errors.Is(err, diag.ErrDiagnostics) {
		t.Fatalf("Load error = %v", err)
	}
	for _, want := range []string{"GRF3005", "GRF3002", "GRF3004"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("error %q lacks %s", err.Error(), want)
		}
	}
}

func TestLoadValidation(t *testing.T) {
	_, err := Load([]byte("[[sets]]\nsize = -1\n"), FormatTOML, "v.toml")
	if err == nil || !strings.Contains(err.Error(), "GRF3001") {
		t.Fatalf("validation error = %v", err)
	}
	if _, err := LoadFile("graph.json"); !diag.IsCode(err, diag.GrfUnknownFormat) {
		t.Fatalf("LoadFile(json) = %v", err)
	}
}

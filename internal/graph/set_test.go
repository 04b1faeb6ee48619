package graph

import "testing"

func TestEdgeSetEndpoints(t *testing.T) {
	points := NewSet("points")
	for range 3 {
		points.Add()
	}
	springs := NewEdgeSet("springs", points, points)
	if _, err := springs.AddEdge(0, 1); err != nil {
		t.Fatalf("AddEdge: %v", err)
	}
	if _, err := springs.AddEdge(1, 2); err != nil {
		t.Fatalf("AddEdge: %v", err)
	}
	if springs.Size() != 2 || springs.Cardinality() != 2 {
		t.Fatalf("springs = %v", springs)
	}
	if got := springs.Endpoint(1, 1); got != 2 {
		t.Fatalf("Endpoint(1,1) = %d, want 2", got)
	}
	if springs.EndpointSetID(0) != points.ID() {
		t.Fatalf("endpoint set id mismatch")
	}
	if _, err := springs.AddEdge(0, 3); err == nil {
		t.Fatalf("out of range endpoint accepted")
	}
	if _, err := springs.AddEdge(0); err == nil {
		t.Fatalf("wrong endpoint count accepted")
	}
}

func TestFieldsGrowWithSet(t *testing.T) {
	s := NewSet("v")
	f, err := s.AddField("x", Float64, 2)
	if err != nil {
		t.Fatalf("AddField: %v", err)
	}
	s.Add()
	s.Add()
	f.SetFloat(1, 1, 4.5)
	if got := f.Float(1, 1); got != 4.5 {
		t.Fatalf("Float = %v", got)
	}
	if len(f.Data()) != 2*2*8 {
		t.Fatalf("data length = %d", len(f.Data()))
	}
	ints, _ := s.AddField("n", Int32, 1)
	ints.Set(0, 7.9)
	if got := ints.Get(0); got != 7 {
		t.Fatalf("int field = %v, want 7", got)
	}
	if _, err := s.AddField("x", Float64, 1); err == nil {
		t.Fatalf("duplicate field accepted")
	}
	if s.Field("missing") != nil {
		t.Fatalf("missing field found")
	}
}

func TestLatticeLinks(t *testing.T) {
	points := NewSet("points")
	links, err := NewLatticeLinkSet("links", points, []int{2, 3})
	if err != nil {
		t.Fatalf("NewLatticeLinkSet: %v", err)
	}
	if points.Size() != 6 || links.Size() != 12 {
		t.Fatalf("sizes = %d points, %d links", points.Size(), links.Size())
	}
	l := links.LatticeLink([]int{1, 2}, 1)
	if l != 11 {
		t.Fatalf("LatticeLink = %d, want 11", l)
	}
	if links.Endpoint(l, 0) != 5 || links.Endpoint(l, 1) != 1 {
		t.Fatalf("link %d endpoints = (%d,%d)", l, links.Endpoint(l, 0), links.Endpoint(l, 1))
	}
	if got := links.LatticePoint([]int{-1, 3}); got != 1 {
		t.Fatalf("wrapped point = %d, want 1", got)
	}
	if _, err := NewLatticeLinkSet("again", points, []int{2}); err == nil {
		t.Fatalf("non-empty point set accepted")
	}
	if _, err := NewLatticeLinkSet("bad", NewSet("p"), []int{0}); err == nil {
		t.Fatalf("zero extent accepted")
	}
}

package programs

import (
	"slices"
	"testing"

	"meshc/internal/mem"
	"meshc/internal/testkit"
)

func TestLoc(t *testing.T) {
	sp := mem.NewSpace()
	rowptr := sp.Map(mem.Uint32Bytes([]uint32{0, 2, 5, 7}), "rowptr")
	colidx := sp.Map(mem.Uint32Bytes([]uint32{0, 1, 0, 1, 2, 1, 2}), "colidx")

	cases := []struct{ v0, v1, want int }{
		{0, 0, 0}, {0, 1, 1}, {1, 0, 2}, {1, 2, 4}, {2, 1, 5}, {2, 2, 6},
	}
	for _, tc := range cases {
		if got := Loc(sp, tc.v0, tc.v1, rowptr, colidx); got != tc.want {
			t.Fatalf("Loc(%d, %d) = %d, want %d", tc.v0, tc.v1, got, tc.want)
		}
	}

	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic for a structural zero")
		}
	}()
	Loc(sp, 0, 2, rowptr, colidx)
}

func TestLatticeOffset(t *testing.T) {
	cases := []struct {
		p, q int
		dims []int
		want []int
	}{
		{0, 1, []int{3}, []int{1}},
		{1, 0, []int{3}, []int{-1}},
		{2, 0, []int{3}, []int{1}},
		{0, 2, []int{3}, []int{-1}},
		{4, 4, []int{3, 2}, []int{0, 0}},
		{4, 1, []int{3, 2}, []int{0, 1}},
		{2, 0, []int{3, 2}, []int{1, 0}},
	}
	for _, tc := range cases {
		if got := latticeOffset(tc.p, tc.q, tc.dims); !slices.Equal(got, tc.want) {
			t.Fatalf("latticeOffset(%d, %d, %v) = %v, want %v", tc.p, tc.q, tc.dims, got, tc.want)
		}
	}
}

func TestBuild(t *testing.T) {
	if want := []string{"gemv", "gemv-args", "gemv-stencil"}; !slices.Equal(Names(), want) {
		t.Fatalf("Names() = %v, want %v", Names(), want)
	}
	sp := mem.NewSpace()
	for _, name := range Names() {
		p, err := Build(name, sp)
		if err != nil {
			t.Fatalf("Build(%s): %v", name, err)
		}
		if !p.Image.Finalized() {
			t.Fatalf("%s: image not finalized", name)
		}
		for _, fn := range []string{"gemv", "gemv_init", "gemv_deinit"} {
			if !p.Image.HasFunc(fn) {
				t.Fatalf("%s: missing %s", name, fn)
			}
		}
		if err := testkit.CheckStorageCoherence(p.Func); err != nil {
			t.Fatalf("%s: %v", name, err)
		}
	}
	if _, err := Build("nope", sp); err == nil {
		t.Fatalf("expected error for unknown program")
	}
}

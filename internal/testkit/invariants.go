package testkit

import (
	"fmt"

	"fortio.org/safecast"

	"meshc/internal/ir"
)

// CheckCSR runs the structural invariants of a segmented index over a
// target set of width elements:
// 1) coords starts at 0, never decreases and ends at len(sinks)
// 2) every sink lies in [0, width)
// 3) the sinks of each row are strictly ascending
func CheckCSR(coords, sinks []uint32, width int) error {
	if len(coords) == 0 {
		return fmt.Errorf("empty coords")
	}
	if coords[0] != 0 {
		return fmt.Errorf("coords[0] = %d, want 0", coords[0])
	}
	nsinks, err := safecast.Conv[uint32](len(sinks))
	if err != nil {
		return fmt.Errorf("sink count overflow: %w", err)
	}
	if last := coords[len(coords)-1]; last != nsinks {
		return fmt.Errorf("coords end at %d, have %d sinks", last, nsinks)
	}
	w, err := safecast.Conv[uint32](width)
	if err != nil {
		return fmt.Errorf("width overflow: %w", err)
	}

	for row := 1; row < len(coords); row++ {
		lo, hi := coords[row-1], coords[row]
		if hi < lo {
			return fmt.Errorf("coords decrease at row %d: %d < %d", row-1, hi, lo)
		}
		for k := lo; k < hi; k++ {
			if sinks[k] >= w {
				return fmt.Errorf("row %d: sink %d outside [0,%d)", row-1, sinks[k], w)
			}
			if k > lo && sinks[k] <= sinks[k-1] {
				return fmt.Errorf("row %d: sinks not ascending at %d (%d after %d)", row-1, k, sinks[k], sinks[k-1])
			}
		}
	}
	return nil
}

// CheckStorageCoherence checks that the storage descriptors of fn agree
// with its environment:
// 1) every temporary has a storage descriptor
// 2) indexed and stencil storage refers to a tensor index the environment
// owns, of the matching kind
// 3) no two stored tensor indices share array variables
func CheckStorageCoherence(fn *ir.Func) error {
	if fn == nil || fn.Env == nil || fn.Storage == nil {
		return fmt.Errorf("function without environment or storage")
	}
	for _, v := range fn.Env.Temporaries() {
		if !fn.Storage.Has(v) {
			return fmt.Errorf("temporary %s has no storage", v.Name)
		}
	}
	for v, ts := range fn.Storage.All() {
		if !ts.HasTensorIndex() {
			continue
		}
		ti := ts.TensorIndex()
		owned := false
		for _, e := range fn.Env.TensorIndices() {
			if e == ti {
				owned = true
				break
			}
		}
		if !owned {
			return fmt.Errorf("%s: tensor index %s is not in the environment", v.Name, ti.Name())
		}
		switch {
		case ts.Kind() == ir.Indexed && ti.Kind() != ir.PExpr:
			return fmt.Errorf("%s: indexed storage over %s index %s", v.Name, ti.Kind(), ti.Name())
		case ts.Kind() == ir.Stencil && ti.Kind() != ir.Sten:
			return fmt.Errorf("%s: stencil storage over %s index %s", v.Name, ti.Kind(), ti.Name())
		}
	}

	arrays := make(map[string]string)
	for _, ti := range fn.Env.TensorIndices() {
		if ti.IsComputed() {
			continue
		}
		for _, a := range []ir.Var{ti.RowptrArray(), ti.ColidxArray()} {
			if prev, dup := arrays[a.Name]; dup {
				return fmt.Errorf("array %s shared by %s and %s", a.Name, prev, ti.Name())
			}
			arrays[a.Name] = ti.Name()
		}
	}
	return nil
}

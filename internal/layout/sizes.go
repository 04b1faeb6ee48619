package layout

import (
	"fmt"

	"fortio.org/safecast"

	"meshc/internal/ir"
)

// Sizes answers the run-time facts temporary sizing depends on.
type Sizes interface {
	// SetSize returns the cardinality of the set bound to a set variable.
	SetSize(name string) (int, bool)
	// Neighbors returns NumNeighbors of the path index realizing a PExpr
	// tensor index, building it on first use.
	Neighbors(ti *ir.TensorIndex) int
}

// DomainSize returns the number of points in d, the product of its
// factors.
func (e *Engine) DomainSize(v string, d ir.IndexDomain, s Sizes) (int, error) {
	n := 1
	for _, is := range d.Sets {
		k, err := e.indexSetSize(v, is, s)
		if err != nil {
			return 0, err
		}
		n *= k
	}
	return n, nil
}

func (e *Engine) indexSetSize(v string, is ir.IndexSet, s Sizes) (int, error) {
	switch is.Kind {
	case ir.RangeIS:
		if is.Size < 0 {
			return 0, &LayoutError{Kind: LayoutErrNegativeLength, Var: v, Value: int64(is.Size)}
		}
		return is.Size, nil
	case ir.SetIS:
		n, ok := s.SetSize(is.Set)
		if !ok {
			return 0, &LayoutError{Kind: LayoutErrUnboundSet, Var: v, Set: is.Set}
		}
		return n, nil
	case ir.DynamicIS, ir.SingleIS:
		return 0, &LayoutError{Kind: LayoutErrDynamicSet, Var: v}
	}
	panic(fmt.Errorf("layout: unknown index set kind %d in %s", is.Kind, v))
}

// TemporaryBytes returns the size of the buffer backing temporary v with
// storage ts. Order-2 temporaries governed by a tensor index hold one block
// per non-zero: N*b*s for a path index with N neighbors and L*M*b*s for a
// stencil of size L over M lattice points.
func (e *Engine) TemporaryBytes(v ir.Var, ts ir.TensorStorage, s Sizes) (int, error) {
	if !v.Type.IsTensor() {
		panic(fmt.Errorf("layout: temporary %s is not a tensor", v.Name))
	}
	tt := *v.Type.Tensor
	comp := tt.Component.Bytes()

	if tt.Order() < 2 {
		n := 1
		for _, d := range tt.Dims {
			k, err := e.DomainSize(v.Name, d, s)
			if err != nil {
				return 0, err
			}
			n *= k
		}
		return e.bytes(v.Name, n, comp)
	}

	block := tt.BlockSize()
	switch ts.Kind() {
	case ir.Indexed:
		n := s.Neighbors(ts.TensorIndex())
		return e.bytes(v.Name, n*block, comp)
	case ir.Stencil:
		outer := tt.OuterDimensions()
		if outer[0] != outer[1] {
			panic(fmt.Errorf("layout: stencil temporary %s is not square (%v, %v)", v.Name, outer[0], outer[1]))
		}
		m, err := e.indexSetSize(v.Name, outer[0], s)
		if err != nil {
			return 0, err
		}
		l := ts.TensorIndex().StencilLayout().Size()
		return e.bytes(v.Name, l*m*block, comp)
	case ir.Diagonal:
		m, err := e.indexSetSize(v.Name, tt.OuterDimensions()[0], s)
		if err != nil {
			return 0, err
		}
		return e.bytes(v.Name, m*block, comp)
	case ir.Dense:
		n := 1
		for _, d := range tt.Dims {
			k, err := e.DomainSize(v.Name, d, s)
			if err != nil {
				return 0, err
			}
			n *= k
		}
		return e.bytes(v.Name, n, comp)
	}
	return 0, &LayoutError{Kind: LayoutErrUnsupported, Var: v.Name}
}

// bytes multiplies a component count by the component size. Counts index
// uint32 coordinate arrays, so they must fit in 32 bits.
func (e *Engine) bytes(v string, count, comp int) (int, error) {
	if count < 0 {
		return 0, &LayoutError{Kind: LayoutErrNegativeLength, Var: v, Value: int64(count)}
	}
	n, err := safecast.Conv[uint32](count)
	if err != nil {
		return 0, &LayoutError{Kind: LayoutErrLengthConversion, Var: v, Err: err}
	}
	return int(n) * comp, nil
}

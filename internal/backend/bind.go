package backend

import (
	"fmt"
	"slices"
	"strconv"

	"fortio.org/safecast"

	"meshc/internal/diag"
	"meshc/internal/graph"
	"meshc/internal/ir"
	"meshc/internal/mem"
	"meshc/internal/trace"
)

// TensorData is a sparse matrix in CSR form bound to a global whose extern
// maps to three symbols: data, rowptr, colidx.
type TensorData struct {
	Data   []float64
	Rowptr []uint32
	Colidx []uint32
}

// BindSet binds a graph set to a set argument or global. The set's kind,
// lattice rank, endpoint count and fields must match the declared set type.
func (f *Function) BindSet(name string, s *graph.Set) error {
	if err := f.usable(name); err != nil {
		return err
	}
	v, isArg, err := f.bindable(name)
	if err != nil {
		return err
	}
	if s == nil {
		return diag.Usage(diag.BndWrongActualKind, name, v.Type.String(), "nil set")
	}
	if !v.Type.IsSet() {
		return diag.Usage(diag.BndWrongActualKind, name, "data for "+v.Type.String(), "set "+s.Name())
	}
	if err := checkSetType(name, v.Type, s); err != nil {
		return err
	}

	idx := f.timer.Begin("bind " + name)
	defer f.timer.End(idx, s.Name())
	_, span := trace.Start(f.ctx, trace.ScopePass, "bind")
	defer span.WithExtra("bindable", name).End(s.Name())

	if err := f.release(name); err != nil {
		return err
	}
	rec := f.writeRecord(name, v.Type, s)
	a := actual{kind: actualSet, set: s, addr: rec}
	if isArg {
		f.args[name] = a
		f.invalidate("argument " + name + " rebound")
		return nil
	}
	f.globals[name] = a
	f.space.StoreAddr(f.externSlots[name][0], rec)
	if f.sizedBy(name) {
		f.invalidate("global set " + name + " rebound")
	}
	return nil
}

// BindData binds the address of tensor data to a tensor argument or global.
func (f *Function) BindData(name string, data mem.Addr) error {
	if err := f.usable(name); err != nil {
		return err
	}
	isArg, err := f.tensorBindable(name)
	if err != nil {
		return err
	}
	if err := f.release(name); err != nil {
		return err
	}
	f.bindData(name, isArg, data)
	return nil
}

// BindFloats maps xs into the address space and binds it like BindData.
// Compiled code writes through to xs.
func (f *Function) BindFloats(name string, xs []float64) error {
	if err := f.usable(name); err != nil {
		return err
	}
	isArg, err := f.tensorBindable(name)
	if err != nil {
		return err
	}
	if err := f.release(name); err != nil {
		return err
	}
	f.bindData(name, isArg, f.own(name, f.space.Map(mem.Float64Bytes(xs), name)))
	return nil
}

func (f *Function) tensorBindable(name string) (isArg bool, err error) {
	v, isArg, err := f.bindable(name)
	if err != nil {
		return false, err
	}
	if !v.Type.IsTensor() {
		return false, diag.Usage(diag.BndWrongActualKind, name, v.Type.String(), "tensor data")
	}
	return isArg, nil
}

func (f *Function) bindData(name string, isArg bool, data mem.Addr) {
	a := actual{kind: actualData, addr: data}
	if isArg {
		f.args[name] = a
		f.invalidate("argument " + name + " rebound")
		return
	}
	f.globals[name] = a
	f.space.StoreAddr(f.externSlots[name][0], data)
}

// BindSparse binds a CSR triplet to a global sparse matrix.
func (f *Function) BindSparse(name string, t TensorData) error {
	if err := f.usable(name); err != nil {
		return err
	}
	v, isArg, err := f.bindable(name)
	if err != nil {
		return err
	}
	if isArg {
		return diag.Usage(diag.BndSparseOnArgument, name, "global", "argument")
	}
	if !v.Type.IsTensor() || v.Type.Tensor.Order() != 2 {
		return diag.Usage(diag.BndWrongActualKind, name, v.Type.String(), "sparse matrix")
	}
	slots := f.externSlots[name]
	if len(slots) != 3 {
		return diag.Usage(diag.BndWrongActualKind, name, strconv.Itoa(len(slots))+" symbols", "sparse triplet")
	}
	if len(t.Rowptr) == 0 || int(t.Rowptr[len(t.Rowptr)-1]) != len(t.Colidx) {
		return diag.Usage(diag.BndWrongActualKind, name, "rowptr ending at len(colidx)", "malformed rowptr")
	}
	if err := f.release(name); err != nil {
		return err
	}
	var a actual
	a.kind = actualSparse
	a.sparse[0] = f.own(name, f.space.Map(mem.Float64Bytes(t.Data), name+".data"))
	a.sparse[1] = f.own(name, f.space.Map(mem.Uint32Bytes(t.Rowptr), name+".rowptr"))
	a.sparse[2] = f.own(name, f.space.Map(mem.Uint32Bytes(t.Colidx), name+".colidx"))
	for i, slot := range slots {
		f.space.StoreAddr(slot, a.sparse[i])
	}
	f.globals[name] = a
	return nil
}

// sizedBy reports whether Init derived anything from the set bound to
// name: a path index over it, a stencil over its lattice or a temporary
// with a dimension over it.
func (f *Function) sizedBy(name string) bool {
	for _, ti := range f.fn.Env.TensorIndices() {
		if ti.IsComputed() {
			if ti.StencilLayout().Lattice == name {
				return true
			}
		} else if slices.Contains(ti.PathExpression().Sets(), name) {
			return true
		}
	}
	overName := func(is ir.IndexSet) bool { return is.Kind == ir.SetIS && is.Set == name }
	for _, v := range f.fn.Env.Temporaries() {
		if !v.Type.IsTensor() {
			continue
		}
		for _, d := range v.Type.Tensor.Dims {
			if slices.ContainsFunc(d.Sets, overName) {
				return true
			}
		}
	}
	return false
}

func checkSetType(name string, t ir.Type, s *graph.Set) error {
	st := t.Set
	switch {
	case t.IsLatticeLinkSet():
		if s.Kind() != graph.LatticeLink {
			return diag.Usage(diag.BndWrongSetKind, name, "lattice link set", s.Kind().String()+" set")
		}
		if got := len(s.Dimensions()); got != st.Dims {
			return diag.Usage(diag.BndLatticeDims, name, strconv.Itoa(st.Dims)+" dimensions", strconv.Itoa(got)+" dimensions")
		}
	case t.IsUnstructuredSet():
		if s.Kind() != graph.Unstructured {
			return diag.Usage(diag.BndWrongSetKind, name, "unstructured set", s.Kind().String()+" set")
		}
		if got := s.Cardinality(); got != len(st.Endpoints) {
			return diag.Usage(diag.BndSetTypeMismatch, name, strconv.Itoa(len(st.Endpoints))+" endpoints", strconv.Itoa(got)+" endpoints")
		}
	}
	for _, ft := range st.Fields {
		gf := s.Field(ft.Name)
		if gf == nil {
			return diag.Usage(diag.BndSetTypeMismatch, name, "field "+ft.Name, "no such field")
		}
		want := fieldShape(ft.Type)
		got := fmt.Sprintf("%s x%d", gf.Component(), gf.BlockSize())
		if want != got {
			return diag.Usage(diag.BndSetTypeMismatch, name, "field "+ft.Name+" "+want, got)
		}
	}
	return nil
}

// fieldShape renders a field type as "<component> x<block>".
func fieldShape(tt ir.TensorType) string {
	block := 1
	for _, d := range tt.Dims {
		for _, is := range d.Sets {
			if is.Kind != ir.RangeIS {
				panic(fmt.Errorf("backend: field dimension %v is not a range", is))
			}
			block *= is.Size
		}
	}
	return fmt.Sprintf("%s x%d", tt.Component, block)
}

// writeRecord builds the set record compiled code reads through a set
// slot. Endpoint tables and field data are mapped, not copied.
func (f *Function) writeRecord(name string, t ir.Type, s *graph.Set) mem.Addr {
	lay := f.engine.SetRecord(t)
	rec := f.own(name, f.space.Alloc(lay.Size, name+".record"))
	size, err := safecast.Conv[uint64](s.Size())
	if err != nil {
		panic(fmt.Errorf("backend: set %s size overflow: %w", s.Name(), err))
	}
	f.space.StoreWord(rec.Add(lay.SizeOffset), size)
	if lay.EndpointsOffset >= 0 {
		eps := f.own(name, f.space.Map(mem.Uint32Bytes(s.Endpoints()), name+".endpoints"))
		f.space.StoreAddr(rec.Add(lay.EndpointsOffset), eps)
	}
	for i, ft := range t.Set.Fields {
		data := f.own(name, f.space.Map(s.Field(ft.Name).Data(), name+"."+ft.Name))
		f.space.StoreAddr(rec.Add(lay.FieldOffsets[i]), data)
	}
	if lay.DimsOffset >= 0 {
		dims := make([]uint32, 0, len(s.Dimensions()))
		for _, d := range s.Dimensions() {
			dims = append(dims, mustU32(d))
		}
		a := f.own(name, f.space.Map(mem.Uint32Bytes(dims), name+".dims"))
		f.space.StoreAddr(rec.Add(lay.DimsOffset), a)
	}
	return rec
}

func mustU32(v int) uint32 {
	u, err := safecast.Conv[uint32](v)
	if err != nil {
		panic(fmt.Errorf("backend: uint32 overflow: %w", err))
	}
	return u
}

package programs

import (
	"meshc/internal/ir"
	"meshc/internal/layout"
	"meshc/internal/mem"
)

// setView reads a set record the way generated code does.
type setView struct {
	sp  *mem.Space
	rec mem.Addr
	t   ir.Type
	lay layout.SetLayout
}

func viewSet(sp *mem.Space, eng *layout.Engine, rec mem.Addr, t ir.Type) setView {
	return setView{sp: sp, rec: rec, t: t, lay: eng.SetRecord(t)}
}

func (v setView) size() int {
	return int(v.sp.LoadWord(v.rec.Add(v.lay.SizeOffset)))
}

func (v setView) endpoint(elem, i int) int {
	eps := v.sp.LoadAddr(v.rec.Add(v.lay.EndpointsOffset))
	return int(v.sp.LoadU32(eps, elem*len(v.t.Set.Endpoints)+i))
}

func (v setView) field(name string) mem.Addr {
	for i, f := range v.t.Set.Fields {
		if f.Name == name {
			return v.sp.LoadAddr(v.rec.Add(v.lay.FieldOffsets[i]))
		}
	}
	panic("programs: no field " + name)
}

func (v setView) dims() []int {
	a := v.sp.LoadAddr(v.rec.Add(v.lay.DimsOffset))
	out := make([]int, v.t.Set.Dims)
	for i := range out {
		out[i] = int(v.sp.LoadU32(a, i))
	}
	return out
}

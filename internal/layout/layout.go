// Package layout computes the byte sizes compiled code expects: set
// records written into extern slots and buffers allocated for temporaries.
package layout

import (
	"fmt"

	"meshc/internal/ir"
)

// SetLayout is the layout of the record a set extern slot points to. Every
// slot is one pointer-sized word.
//
//	word 0          element count
//	EndpointsOffset pointer to the flat endpoint table (edge and lattice sets)
//	FieldOffsets[i] pointer to the data of SetType.Fields[i]
//	DimsOffset      pointer to the lattice extents (lattice sets)
type SetLayout struct {
	Size  int
	Align int

	SizeOffset      int
	EndpointsOffset int // -1 when the set has no endpoints
	FieldOffsets    []int
	DimsOffset      int // -1 for unstructured sets
}

// Engine computes record layouts and temporary sizes for a Target.
type Engine struct {
	Target Target

	cache *cache
}

// New creates a new Engine for the specified target.
func New(target Target) *Engine {
	return &Engine{
		Target: target,
		cache:  newCache(),
	}
}

// SetRecord computes and caches the record layout of a set type.
func (e *Engine) SetRecord(t ir.Type) SetLayout {
	if !t.IsSet() {
		panic(fmt.Errorf("layout: set record of non-set type %s", t))
	}
	if e.cache == nil {
		e.cache = newCache()
	}
	key := recordKey{
		lattice:   t.IsLatticeLinkSet(),
		endpoints: len(t.Set.Endpoints),
		fields:    len(t.Set.Fields),
	}
	if l, ok := e.cache.get(key); ok {
		return l
	}
	l := e.computeRecord(key)
	e.cache.put(key, l)
	return l
}

func (e *Engine) computeRecord(k recordKey) SetLayout {
	w := e.Target.PtrSize
	l := SetLayout{Align: e.Target.PtrAlign, EndpointsOffset: -1, DimsOffset: -1}
	off := w
	if k.endpoints > 0 {
		l.EndpointsOffset = off
		off += w
	}
	l.FieldOffsets = make([]int, k.fields)
	for i := range k.fields {
		l.FieldOffsets[i] = off
		off += w
	}
	if k.lattice {
		l.DimsOffset = off
		off += w
	}
	l.Size = off
	return l
}

// FieldOffset returns the offset of the named field's pointer in the record
// of t.
func (e *Engine) FieldOffset(t ir.Type, field string) (int, bool) {
	l := e.SetRecord(t)
	for i, f := range t.Set.Fields {
		if f.Name == field {
			return l.FieldOffsets[i], true
		}
	}
	return 0, false
}

package diag

import (
	"fmt"
)

type Code uint16

const (
	// Неизвестная ошибка
	UnknownCode Code = 0

	// Binding
	BndInfo             Code = 1000
	BndWrongSetKind     Code = 1001
	BndLatticeDims      Code = 1002
	BndUnknownBindable  Code = 1003
	BndWrongActualKind  Code = 1004
	BndUnboundArgument  Code = 1005
	BndSetTypeMismatch  Code = 1006
	BndSparseOnArgument Code = 1007

	// Invocation
	RunInfo           Code = 2000
	RunNotInitialized Code = 2001
	RunClosed         Code = 2002
	RunFault          Code = 2003

	// Graph documents
	GrfInfo            Code = 3000
	GrfInvalidDocument Code = 3001
	GrfUnknownSet      Code = 3002
	GrfDuplicateSet    Code = 3003
	GrfBadEndpoint     Code = 3004
	GrfFieldLength     Code = 3005
	GrfBadLattice      Code = 3006
	GrfUnknownFormat   Code = 3007

	// Observability
	ObsInfo    Code = 6000
	ObsTimings Code = 6001
)

var codeDescription = map[Code]string{
	UnknownCode:         "Unknown error",
	BndInfo:             "Binding information",
	BndWrongSetKind:     "Set kind does not match the bindable",
	BndLatticeDims:      "Lattice dimension count mismatch",
	BndUnknownBindable:  "No argument or global with this name",
	BndWrongActualKind:  "Wrong kind of actual for the bindable",
	BndUnboundArgument:  "Argument not bound before initialization",
	BndSetTypeMismatch:  "Set fields do not match the declared set type",
	BndSparseOnArgument: "Sparse triplets can only be bound to globals",
	RunInfo:             "Invocation information",
	RunNotInitialized:   "Function invoked before initialization",
	RunClosed:           "Function invoked after close",
	RunFault:            "Memory fault in compiled code",
	GrfInfo:             "Graph document information",
	GrfInvalidDocument:  "Invalid graph document",
	GrfUnknownSet:       "Reference to an unknown set",
	GrfDuplicateSet:     "Duplicate set name",
	GrfBadEndpoint:      "Edge endpoint out of range",
	GrfFieldLength:      "Field value count does not match set size",
	GrfBadLattice:       "Invalid lattice description",
	GrfUnknownFormat:    "Unknown graph document format",
	ObsInfo:             "Observability information",
	ObsTimings:          "Phase timings",
}

func (c Code) ID() string {
	switch ic := int(c); {
	case ic >= 1000 && ic < 2000:
		return fmt.Sprintf("BND%04d", ic)
	case ic >= 2000 && ic < 3000:
		return fmt.Sprintf("RUN%04d", ic)
	case ic >= 3000 && ic < 4000:
		return fmt.Sprintf("GRF%04d", ic)
	case ic >= 6000 && ic < 7000:
		return fmt.Sprintf("OBS%04d", ic)
	}
	return "E0000"
}

func (c Code) Title() string {
	desc, ok := codeDescription[c]
	if !ok {
		return codeDescription[Code(0)]
	}
	return desc
}

func (c Code) String() string {
	return fmt.Sprintf("[%s]: %s", c.ID(), c.Title())
}

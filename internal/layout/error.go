package layout

import "fmt"

// LayoutErrorKind enumerates types of layout calculation errors.
type LayoutErrorKind uint8

const (
	// LayoutErrDynamicSet indicates a dimension sized only at run time.
	LayoutErrDynamicSet LayoutErrorKind = iota + 1
	// LayoutErrUnboundSet indicates a dimension over a set with no binding.
	LayoutErrUnboundSet
	LayoutErrLengthConversion
	LayoutErrNegativeLength
	// LayoutErrUnsupported indicates a storage kind temporaries cannot use.
	LayoutErrUnsupported
)

// LayoutError represents an error while sizing a temporary or a record.
type LayoutError struct {
	Kind  LayoutErrorKind
	Var   string
	Set   string // for LayoutErrUnboundSet
	Value int64  // for LayoutErrNegativeLength
	Err   error  // for LayoutErrLengthConversion
}

func (e *LayoutError) Error() string {
	if e == nil {
		return "<nil>"
	}
	switch e.Kind {
	case LayoutErrDynamicSet:
		return fmt.Sprintf("%s: dynamic index set has no static size", e.Var)
	case LayoutErrUnboundSet:
		return fmt.Sprintf("%s: set %q is not bound", e.Var, e.Set)
	case LayoutErrLengthConversion:
		if e.Err != nil {
			return fmt.Sprintf("%s: length conversion error: %v", e.Var, e.Err)
		}
		return fmt.Sprintf("%s: length conversion error", e.Var)
	case LayoutErrNegativeLength:
		return fmt.Sprintf("%s: negative length %d", e.Var, e.Value)
	case LayoutErrUnsupported:
		return fmt.Sprintf("%s: storage cannot back a temporary", e.Var)
	default:
		return fmt.Sprintf("layout error kind=%d var %s", e.Kind, e.Var)
	}
}

func (e *LayoutError) Unwrap() error { return e.Err }

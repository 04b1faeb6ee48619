package mem

import "fmt"

// FaultCode identifies the kind of invalid memory access.
type FaultCode int

// Stable fault codes - do not change values.
const (
	FaultNullDeref     FaultCode = 4001 // MEM4001: null dereference
	FaultInvalidHandle FaultCode = 4002 // MEM4002: unknown allocation
	FaultUseAfterFree  FaultCode = 4003 // MEM4003: use after free
	FaultDoubleFree    FaultCode = 4004 // MEM4004: double free
	FaultOutOfBounds   FaultCode = 4005 // MEM4005: out of bounds
)

// String returns the code as "MEM4001" format.
func (c FaultCode) String() string {
	return fmt.Sprintf("MEM%d", int(c))
}

// Fault is an invalid access to a Space.
type Fault struct {
	Code FaultCode
	Addr Addr
	Msg  string
}

func (f *Fault) Error() string {
	return fmt.Sprintf("fault %s at %s: %s", f.Code, f.Addr, f.Msg)
}

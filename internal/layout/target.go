package layout

import (
	"runtime"

	"meshc/internal/mem"
)

// Target is the address space compiled code runs against. Pointers stored
// in set records and temporaries are one word of the simulated memory.
type Target struct {
	Name     string // GOOS/GOARCH of the host
	PtrSize  int
	PtrAlign int
}

// Host returns the target of the running process with the word size of
// mem.Space.
func Host() Target {
	return Target{
		Name:     runtime.GOOS + "/" + runtime.GOARCH,
		PtrSize:  mem.WordSize,
		PtrAlign: mem.WordSize,
	}
}

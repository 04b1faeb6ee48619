package programs

import (
	"fmt"

	"meshc/internal/mem"
)

// Loc returns the position of column v1 in row v0 of the CSR index whose
// arrays start at rowptr and colidx. Generated code uses it to find the
// storage slot of the block (v0, v1).
func Loc(sp *mem.Space, v0, v1 int, rowptr, colidx mem.Addr) int {
	end := int(sp.LoadU32(rowptr, v0+1))
	for l := int(sp.LoadU32(rowptr, v0)); l < end; l++ {
		if int(sp.LoadU32(colidx, l)) == v1 {
			return l
		}
	}
	panic(fmt.Errorf("programs: (%d, %d) is not a non-zero", v0, v1))
}

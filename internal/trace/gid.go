package trace

import (
	"bytes"
	"runtime"
	"strconv"
)

var goroutinePrefix = []byte("goroutine ")

// getGoroutineID parses the id from the header line of runtime.Stack,
// "goroutine 123 [running]:". It returns 0 when the header is not
// recognized.
func getGoroutineID() uint64 {
	var buf [64]byte
	head := buf[:runtime.Stack(buf[:], false)]
	rest, ok := bytes.CutPrefix(head, goroutinePrefix)
	if !ok {
		return 0
	}
	id, _, ok := bytes.Cut(rest, []byte{' '})
	if !ok {
		return 0
	}
	gid, err := strconv.ParseUint(string(id), 10, 64)
	if err != nil {
		return 0
	}
	return gid
}

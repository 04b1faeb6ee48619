package diag

import "fmt"

// Severity ranks diagnostics. Bags sort and filter on it.
type Severity uint8

const (
	SevInfo Severity = iota
	SevWarning
	SevError
)

var severityNames = [...]string{
	SevInfo:    "info",
	SevWarning: "warning",
	SevError:   "error",
}

func (s Severity) String() string {
	if int(s) < len(severityNames) {
		return severityNames[s]
	}
	return fmt.Sprintf("severity(%d)", s)
}

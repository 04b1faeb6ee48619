package diag

import (
	"cmp"
	"errors"
	"fmt"
	"slices"
	"strings"
)

// Bag collects diagnostics up to a limit. Diagnostics past the limit are
// counted but not kept.
type Bag struct {
	items   []Diagnostic
	max     int
	dropped int
}

func NewBag(max int) *Bag {
	return &Bag{items: make([]Diagnostic, 0, min(max, 64)), max: max}
}

// Add keeps d and reports whether it fit under the limit.
func (b *Bag) Add(d Diagnostic) bool {
	if len(b.items) >= b.max {
		b.dropped++
		return false
	}
	b.items = append(b.items, d)
	return true
}

// Dropped returns how many diagnostics did not fit.
func (b *Bag) Dropped() int { return b.dropped }

func (b *Bag) atLeast(sev Severity) bool {
	return slices.ContainsFunc(b.items, func(d Diagnostic) bool { return d.Severity >= sev })
}

func (b *Bag) HasErrors() bool   { return b.atLeast(SevError) }
func (b *Bag) HasWarnings() bool { return b.atLeast(SevWarning) }

func (b *Bag) Len() int { return len(b.items) }

// Items returns the bag's storage; callers must not modify it.
func (b *Bag) Items() []Diagnostic { return b.items }

// Sort orders by file, then document path, then severity (most severe
// first), then code.
func (b *Bag) Sort() {
	slices.SortStableFunc(b.items, func(x, y Diagnostic) int {
		return cmp.Or(
			cmp.Compare(x.Primary.File, y.Primary.File),
			cmp.Compare(x.Primary.Path, y.Primary.Path),
			cmp.Compare(y.Severity, x.Severity),
			cmp.Compare(x.Code, y.Code),
		)
	})
}

type dedupKey struct {
	code Code
	at   Location
}

// Dedup keeps the first diagnostic per code and location.
func (b *Bag) Dedup() {
	seen := make(map[dedupKey]struct{}, len(b.items))
	b.items = slices.DeleteFunc(b.items, func(d Diagnostic) bool {
		k := dedupKey{d.Code, d.Primary}
		if _, dup := seen[k]; dup {
			return true
		}
		seen[k] = struct{}{}
		return false
	})
}

// ErrDiagnostics is wrapped by the error returned from Err.
var ErrDiagnostics = errors.New("diagnostics reported")

// Err returns nil unless the bag holds errors; otherwise it lists them one
// per line.
func (b *Bag) Err() error {
	if !b.HasErrors() {
		return nil
	}
	var sb strings.Builder
	n := 0
	for _, d := range b.items {
		if d.Severity >= SevError {
			sb.WriteString("\n  " + d.String())
			n++
		}
	}
	if b.dropped > 0 {
		fmt.Fprintf(&sb, "\n  (%d more not shown)", b.dropped)
	}
	return fmt.Errorf("%w (%d errors):%s", ErrDiagnostics, n, sb.String())
}

package diag

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestCodeIDs(t *testing.T) {
	cases := []struct {
		code Code
		want string
	}{
		{BndWrongSetKind, "BND1001"},
		{RunNotInitialized, "RUN2001"},
		{GrfInvalidDocument, "GRF3001"},
		{ObsTimings, "OBS6001"},
		{UnknownCode, "E0000"},
	}
	for _, tc := range cases {
		if got := tc.code.ID(); got != tc.want {
			t.Fatalf("%d.ID() = %q, want %q", tc.code, got, tc.want)
		}
	}
	if Code(1999).Title() != "Unknown error" {
		t.Fatalf("unexpected title for unregistered code")
	}
}

func TestUsageErrorWrapping(t *testing.T) {
	err := fmt.Errorf("bind: %w", Usage(BndLatticeDims, "points", "2", "3"))
	if !IsCode(err, BndLatticeDims) {
		t.Fatalf("IsCode failed for %v", err)
	}
	if IsCode(err, BndWrongSetKind) {
		t.Fatalf("IsCode matched the wrong code")
	}
	if !strings.Contains(err.Error(), `"points": expected 2, got 3`) {
		t.Fatalf("message = %q", err.Error())
	}
	inner := errors.New("boom")
	ue := &UsageError{Code: RunFault, Err: inner}
	if !errors.Is(ue, inner) {
		t.Fatalf("UsageError does not unwrap")
	}
}

func TestBagLimitSortAndErr(t *testing.T) {
	b := NewBag(3)
	b.Add(NewError(GrfUnknownSet, Location{File: "b.toml", Path: "sets.e"}, "unknown set"))
	b.Add(New(SevWarning, GrfInfo, Location{File: "a.toml"}, "note"))
	b.Add(NewError(GrfUnknownSet, Location{File: "b.toml", Path: "sets.e"}, "unknown set"))
	if b.Add(NewError(GrfBadLattice, Location{}, "dropped")) {
		t.Fatalf("Add past the limit succeeded")
	}
	if b.Dropped() != 1 {
		t.Fatalf("Dropped = %d, want 1", b.Dropped())
	}
	b.Dedup()
	b.Sort()
	if b.Len() != 2 {
		t.Fatalf("Len = %d after dedup, want 2", b.Len())
	}
	if b.Items()[0].Primary.File != "a.toml" {
		t.Fatalf("sort order wrong: %v", b.Items())
	}
	err := b.Err()
	if !errors.Is(err, ErrDiagnostics) {
		t.Fatalf("Err() = %v", err)
	}
	if !strings.Contains(err.Error(), "GRF3002 b.toml:sets.e") {
		t.Fatalf("Err() text = %q", err.Error())
	}

	clean := NewBag(4)
	ReportWarning(BagReporter{Bag: clean}, GrfInfo, Location{}, "fine")
	if clean.Err() != nil || !clean.HasWarnings() {
		t.Fatalf("warning-only bag misreported")
	}
}

func TestSeverityNames(t *testing.T) {
	if SevWarning.String() != "warning" || Severity(9).String() != "severity(9)" {
		t.Fatalf("names = %q, %q", SevWarning, Severity(9))
	}
	d := NewError(GrfBadLattice, Location{File: "ring.toml", Path: "sets.links"}, "dims")
	if got := d.String(); got != "error GRF3006 ring.toml:sets.links: dims" {
		t.Fatalf("String() = %q", got)
	}
}

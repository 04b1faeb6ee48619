package diag

// Reporter receives diagnostics as a loader finds them.
type Reporter interface {
	Report(code Code, sev Severity, primary Location, msg string, notes []Note)
}

// BagReporter собирает диагностики в Bag; nil Bag discards them.
type BagReporter struct{ Bag *Bag }

func (r BagReporter) Report(code Code, sev Severity, primary Location, msg string, notes []Note) {
	if r.Bag != nil {
		r.Bag.Add(Diagnostic{Severity: sev, Code: code, Message: msg, Primary: primary, Notes: notes})
	}
}

func ReportError(r Reporter, code Code, primary Location, msg string) {
	if r != nil {
		r.Report(code, SevError, primary, msg, nil)
	}
}

func ReportWarning(r Reporter, code Code, primary Location, msg string) {
	if r != nil {
		r.Report(code, SevWarning, primary, msg, nil)
	}
}

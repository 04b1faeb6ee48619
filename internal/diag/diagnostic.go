package diag

import "fmt"

// Location points at the item a diagnostic is about: a document and a
// dotted path inside it such as "sets.edges.fields.a".
type Location struct {
	File string
	Path string
}

func (l Location) String() string {
	switch {
	case l.File == "" && l.Path == "":
		return "<unknown>"
	case l.Path == "":
		return l.File
	case l.File == "":
		return l.Path
	}
	return fmt.Sprintf("%s:%s", l.File, l.Path)
}

type Note struct {
	At  Location
	Msg string
}

type Diagnostic struct {
	Severity Severity
	Code     Code
	Message  string
	Primary  Location
	Notes    []Note
}

func New(sev Severity, code Code, primary Location, msg string) Diagnostic {
	return Diagnostic{
		Severity: sev,
		Code:     code,
		Primary:  primary,
		Message:  msg,
	}
}

func NewError(code Code, primary Location, msg string) Diagnostic {
	return New(SevError, code, primary, msg)
}

func (d Diagnostic) WithNote(at Location, msg string) Diagnostic {
	d.Notes = append(d.Notes, Note{At: at, Msg: msg})
	return d
}

func (d Diagnostic) String() string {
	return fmt.Sprintf("%s %s %s: %s", d.Severity, d.Code.ID(), d.Primary, d.Message)
}

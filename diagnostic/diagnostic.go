// Copyright © 2024 The bpflint authors

// Package diagnostic draws findings under the source lines they refer to,
// with carets, optional context lines and trailing help and note lines.
// Callers convert their own results into Diagnostic values; the package
// knows nothing about linting.
package diagnostic

// Severity selects the header word and color of a rendered diagnostic.
type Severity int

const (
	SeverityError Severity = iota
	SeverityWarning
	SeverityNote
)

var severityNames = [...]string{
	SeverityError:   "error",
	SeverityWarning: "warning",
	SeverityNote:    "note",
}

func (s Severity) String() string {
	if s < 0 || int(s) >= len(severityNames) {
		return "unknown"
	}
	return severityNames[s]
}

// Span is a highlighted range.  Without a Line only the file is shown.
type Span struct {
	File    string // source path, also used as the displayed name
	Line    int    // first line, from 1
	Col     int    // first byte column, from 1
	EndLine int    // last line; 0 means Line
	EndCol  int    // byte column just past the range; 0 means the end of the token
	Label   string // printed after the carets
}

// IsMultiline reports whether the span ends on a later line than it starts.
func (s Span) IsMultiline() bool {
	return s.EndLine > s.Line
}

// Diagnostic is one rendered report: a header, the highlighted spans, then
// an optional help line and any notes.
type Diagnostic struct {
	Severity Severity
	Code     string // shown in brackets after the severity
	Message  string
	Spans    []Span
	Help     string
	Notes    []string
}

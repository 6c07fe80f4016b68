// Copyright © 2024 The bpflint authors

package cmd

import (
	"errors"

	"github.com/luthersystems/bpflint/diagnostic"
	"github.com/luthersystems/bpflint/lint"
	"github.com/luthersystems/bpflint/parser/token"
)

// bogusExtension is reported for files whose name does not end in .bpf.c.
const bogusExtension = "bogus-file-extension"

func extensionDiagnostic(path string) lint.Diagnostic {
	return lint.Diagnostic{
		Pos:      lint.Position{File: path},
		End:      lint.Position{File: path},
		Message:  "by convention BPF C code should use the file extension '.bpf.c'",
		Lint:     bogusExtension,
		Severity: lint.SeverityWarning,
		Kind:     lint.KindFinding,
	}
}

func renderSeverity(sev lint.Severity) diagnostic.Severity {
	switch sev {
	case lint.SeverityError:
		return diagnostic.SeverityError
	case lint.SeverityInfo:
		return diagnostic.SeverityNote
	default:
		return diagnostic.SeverityWarning
	}
}

// lintDiagToDiagnostic converts a lint.Diagnostic to a diagnostic.Diagnostic.
func lintDiagToDiagnostic(ld lint.Diagnostic) diagnostic.Diagnostic {
	d := diagnostic.Diagnostic{
		Severity: renderSeverity(ld.Severity),
		Code:     ld.Lint,
		Message:  ld.Message,
		Spans:    []diagnostic.Span{positionSpan(ld.Pos, ld.End)},
		Notes:    append([]string(nil), ld.Notes...),
	}
	if ld.Kind == lint.KindRuleFailure {
		// Failures are not tied to a place in the file.
		d.Spans = []diagnostic.Span{{File: ld.Pos.File}}
		return d
	}
	if ld.Fix != "" {
		d.Help = "suggested fix: " + ld.Fix
	}
	if ld.Lint != bogusExtension {
		d.Notes = append(d.Notes, "to suppress: add \"/* bpflint: disable="+ld.Lint+" */\" on the line before the statement")
	}
	return d
}

// warningToDiagnostic converts a directive warning.
func warningToDiagnostic(w lint.Warning) diagnostic.Diagnostic {
	return diagnostic.Diagnostic{
		Severity: diagnostic.SeverityWarning,
		Code:     w.Kind.String(),
		Message:  w.Message,
		Spans:    []diagnostic.Span{positionSpan(w.Pos, w.End)},
	}
}

// errorToDiagnostic converts a per-file failure.  Parse errors keep their
// location.
func errorToDiagnostic(err error) diagnostic.Diagnostic {
	var perr *token.ParseError
	if errors.As(err, &perr) {
		start := lint.MakePosition(perr.File, perr.Span.Start)
		end := lint.MakePosition(perr.File, perr.Span.End)
		return diagnostic.Diagnostic{
			Severity: diagnostic.SeverityError,
			Message:  perr.Reason,
			Spans:    []diagnostic.Span{positionSpan(start, end)},
		}
	}
	return diagnostic.Diagnostic{
		Severity: diagnostic.SeverityError,
		Message:  err.Error(),
	}
}

// positionSpan converts a half-open range.  An empty range on one line
// still gets a single caret.
func positionSpan(start, end lint.Position) diagnostic.Span {
	span := diagnostic.Span{
		File: start.File,
		Line: start.Line,
		Col:  start.Col,
	}
	if start.Line <= 0 {
		return span
	}
	span.EndLine = end.Line
	span.EndCol = end.Col
	if end.Line < start.Line || (end.Line == start.Line && end.Col <= start.Col) {
		span.EndLine = start.Line
		span.EndCol = start.Col + 1
	}
	return span
}

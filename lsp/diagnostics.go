// Copyright © 2024 The bpflint authors

package lsp

import (
	"errors"
	"time"

	"github.com/tliron/glsp"
	protocol "github.com/tliron/glsp/protocol_3_16"

	"github.com/luthersystems/bpflint/lint"
	"github.com/luthersystems/bpflint/parser/token"
)

const debounceDelay = 300 * time.Millisecond

// diagnosticSource identifies bpflint diagnostics to the client.
const diagnosticSource = "bpflint"

// textDocumentDidOpen handles the textDocument/didOpen notification.
func (s *Server) textDocumentDidOpen(ctx *glsp.Context, params *protocol.DidOpenTextDocumentParams) error {
	s.captureNotify(ctx)
	doc := s.docs.Open(
		params.TextDocument.URI,
		int32(params.TextDocument.Version),
		params.TextDocument.Text,
	)
	s.analyzeAndPublish(doc)
	return nil
}

// textDocumentDidChange handles the textDocument/didChange notification.
func (s *Server) textDocumentDidChange(ctx *glsp.Context, params *protocol.DidChangeTextDocumentParams) error {
	s.captureNotify(ctx)
	// With full sync, the last content change is the complete document.
	var content string
	for _, change := range params.ContentChanges {
		switch c := change.(type) {
		case protocol.TextDocumentContentChangeEventWhole:
			content = c.Text
		case protocol.TextDocumentContentChangeEvent:
			content = c.Text
		}
	}

	doc := s.docs.Change(
		params.TextDocument.URI,
		int32(params.TextDocument.Version),
		content,
	)

	// Debounce: delay analysis to avoid thrashing during rapid edits.
	s.debounceMu.Lock()
	if t, ok := s.debounce[doc.URI]; ok {
		t.Stop()
	}
	s.debounce[doc.URI] = time.AfterFunc(debounceDelay, func() {
		defer func() { _ = recover() }() // don't crash the server on analysis panic
		if d := s.docs.Get(doc.URI); d != nil {
			s.analyzeAndPublish(d)
		}
	})
	s.debounceMu.Unlock()
	return nil
}

// textDocumentDidSave handles the textDocument/didSave notification.
func (s *Server) textDocumentDidSave(ctx *glsp.Context, params *protocol.DidSaveTextDocumentParams) error {
	s.captureNotify(ctx)
	s.cancelDebounce(params.TextDocument.URI)
	if doc := s.docs.Get(params.TextDocument.URI); doc != nil {
		s.analyzeAndPublish(doc)
	}
	return nil
}

// textDocumentDidClose handles the textDocument/didClose notification.
func (s *Server) textDocumentDidClose(_ *glsp.Context, params *protocol.DidCloseTextDocumentParams) error {
	s.cancelDebounce(params.TextDocument.URI)

	// Clear diagnostics for the closed file.
	s.sendNotification(protocol.ServerTextDocumentPublishDiagnostics, &protocol.PublishDiagnosticsParams{
		URI:         params.TextDocument.URI,
		Diagnostics: []protocol.Diagnostic{},
	})

	s.docs.Close(params.TextDocument.URI)
	return nil
}

func (s *Server) cancelDebounce(uri string) {
	s.debounceMu.Lock()
	if t, ok := s.debounce[uri]; ok {
		t.Stop()
		delete(s.debounce, uri)
	}
	s.debounceMu.Unlock()
}

// analyzeAndPublish lints a document and publishes the resulting
// diagnostics to the client.
func (s *Server) analyzeAndPublish(doc *Document) {
	s.ensureLinted(doc)

	// Snapshot document fields under the lock.
	doc.mu.Lock()
	result := doc.result
	lintErr := doc.lintErr
	lines := doc.lines
	uri := doc.URI
	version := doc.Version
	doc.mu.Unlock()

	diags := []protocol.Diagnostic{}
	var perr *token.ParseError
	switch {
	case errors.As(lintErr, &perr):
		diags = append(diags, parseErrorDiagnostic(lines, perr))
	case lintErr != nil:
		s.log.Warn("lint failed", "uri", uri, "error", lintErr)
	default:
		for _, d := range result.Diagnostics {
			diags = append(diags, convertLintDiagnostic(lines, d))
		}
		for _, w := range result.Warnings {
			diags = append(diags, convertWarning(lines, w))
		}
	}

	v := protocol.UInteger(max(version, 0)) // #nosec G115 -- versions are non-negative
	s.sendNotification(protocol.ServerTextDocumentPublishDiagnostics, &protocol.PublishDiagnosticsParams{
		URI:         uri,
		Version:     &v,
		Diagnostics: diags,
	})
}

// convertLintDiagnostic converts a lint.Diagnostic to an LSP Diagnostic.
// The lint kind travels in Data so that code actions can tell findings
// from rule failures.
func convertLintDiagnostic(lines []string, d lint.Diagnostic) protocol.Diagnostic {
	sev := mapLintSeverity(d.Severity)
	message := d.Message
	if d.Fix != "" {
		message += "\nsuggested fix: " + d.Fix
	}
	return protocol.Diagnostic{
		Range:    toLSPRange(lines, d.Pos, d.End),
		Severity: &sev,
		Source:   strPtr(diagnosticSource),
		Code:     &protocol.IntegerOrString{Value: d.Lint},
		Message:  message,
		Data:     d.Kind.String(),
	}
}

// convertWarning converts a disable directive warning.
func convertWarning(lines []string, w lint.Warning) protocol.Diagnostic {
	return protocol.Diagnostic{
		Range:    toLSPRange(lines, w.Pos, w.End),
		Severity: severity(protocol.DiagnosticSeverityWarning),
		Source:   strPtr(diagnosticSource),
		Code:     &protocol.IntegerOrString{Value: w.Kind.String()},
		Message:  w.Message,
	}
}

// parseErrorDiagnostic reports source that could not be tokenized.
func parseErrorDiagnostic(lines []string, err *token.ParseError) protocol.Diagnostic {
	return protocol.Diagnostic{
		Range: toLSPRange(lines,
			lint.MakePosition(err.File, err.Span.Start),
			lint.MakePosition(err.File, err.Span.End)),
		Severity: severity(protocol.DiagnosticSeverityError),
		Source:   strPtr(diagnosticSource),
		Message:  err.Reason,
	}
}

// mapLintSeverity converts a lint.Severity to a protocol.DiagnosticSeverity.
func mapLintSeverity(sev lint.Severity) protocol.DiagnosticSeverity {
	switch sev {
	case lint.SeverityError:
		return protocol.DiagnosticSeverityError
	case lint.SeverityWarning:
		return protocol.DiagnosticSeverityWarning
	case lint.SeverityInfo:
		return protocol.DiagnosticSeverityInformation
	default:
		return protocol.DiagnosticSeverityWarning
	}
}

func severity(s protocol.DiagnosticSeverity) *protocol.DiagnosticSeverity {
	return &s
}

func strPtr(s string) *string {
	return &s
}

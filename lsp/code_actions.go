// Copyright © 2024 The bpflint authors

package lsp

import (
	"fmt"
	"slices"

	"github.com/tliron/glsp"
	protocol "github.com/tliron/glsp/protocol_3_16"

	"github.com/luthersystems/bpflint/lint"
	"github.com/luthersystems/bpflint/parser/ast"
	"github.com/luthersystems/bpflint/parser/token"
)

// textDocumentCodeAction handles the textDocument/codeAction request.
// Every lint finding can be disabled for the unit that contains it.
func (s *Server) textDocumentCodeAction(_ *glsp.Context, params *protocol.CodeActionParams) (any, error) {
	doc := s.docs.Get(params.TextDocument.URI)
	if doc == nil {
		return nil, nil
	}

	// If the client only wants specific kinds, check we support them.
	if len(params.Context.Only) > 0 && !slices.Contains(params.Context.Only, protocol.CodeActionKindQuickFix) {
		return nil, nil
	}

	s.ensureLinted(doc)

	doc.mu.Lock()
	root := doc.root
	lines := doc.lines
	result := doc.result
	doc.mu.Unlock()
	if root == nil || result == nil {
		return nil, nil
	}

	var actions []protocol.CodeAction
	for _, diag := range params.Context.Diagnostics {
		// Only handle findings from our lint source.
		if diag.Source == nil || *diag.Source != diagnosticSource || diag.Code == nil {
			continue
		}
		if kind, _ := diag.Data.(string); kind != lint.KindFinding.String() {
			continue
		}
		name := fmt.Sprintf("%v", diag.Code.Value)
		if !s.registry().Has(name) {
			continue
		}
		if action, ok := suppressLintAction(params.TextDocument.URI, diag, name, root, lines, result); ok {
			actions = append(actions, action)
		}
	}

	if len(actions) == 0 {
		return nil, nil
	}
	return actions, nil
}

// suppressLintAction creates a code action that inserts a disable
// directive on its own line above the unit containing the finding.
func suppressLintAction(uri string, diag protocol.Diagnostic, name string, root *ast.Node, lines []string, result *lint.Result) (protocol.CodeAction, bool) {
	finding, ok := findingAt(lines, result, name, diag.Range)
	if !ok {
		return protocol.CodeAction{}, false
	}
	target := lint.DirectiveTarget(root, token.Span{Start: finding.Pos.Token(), End: finding.End.Token()})
	if target == nil {
		return protocol.CodeAction{}, false
	}
	line := target.Span.Start.Line - 1
	indent := lineIndent(lines, line)
	directive := "/* bpflint: disable=" + name + " */"

	// A unit that does not begin its line is moved onto a line of its own
	// so that the directive precedes it rather than an earlier sibling.
	insertPos := protocol.Position{Line: safeUint(line), Character: 0}
	newText := indent + directive + "\n"
	if target.Span.Start.Col-1 > len(indent) {
		insertPos = toLSPPosition(lines, target.Span.Start.Line, target.Span.Start.Col)
		newText = "\n" + indent + directive + "\n" + indent
	}

	kind := protocol.CodeActionKindQuickFix
	return protocol.CodeAction{
		Title:       fmt.Sprintf("Disable %s for this %s", name, unitNoun(target)),
		Kind:        &kind,
		Diagnostics: []protocol.Diagnostic{diag},
		Edit: &protocol.WorkspaceEdit{
			Changes: map[string][]protocol.TextEdit{
				uri: {
					{
						Range:   protocol.Range{Start: insertPos, End: insertPos},
						NewText: newText,
					},
				},
			},
		},
	}, true
}

// findingAt returns the finding of the named lint whose range is rng.
func findingAt(lines []string, result *lint.Result, name string, rng protocol.Range) (lint.Diagnostic, bool) {
	for _, d := range result.Diagnostics {
		if d.Lint == name && d.Kind == lint.KindFinding && toLSPRange(lines, d.Pos, d.End) == rng {
			return d, true
		}
	}
	return lint.Diagnostic{}, false
}

// registry returns the rules the server lints with.
func (s *Server) registry() *lint.Registry {
	if s.linter.Registry == nil {
		return lint.DefaultRegistry()
	}
	return s.linter.Registry
}

func unitNoun(n *ast.Node) string {
	switch n.Kind {
	case ast.FunctionDef:
		return "function"
	case ast.Declaration:
		return "declaration"
	case ast.Block:
		return "block"
	default:
		return "statement"
	}
}

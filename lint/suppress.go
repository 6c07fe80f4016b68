// Copyright © 2024 The bpflint authors

package lint

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	parsec "github.com/prataprc/goparsec"

	"github.com/luthersystems/bpflint/parser/ast"
	"github.com/luthersystems/bpflint/parser/token"
)

const (
	directivePrefix = "bpflint:"
	directiveForm   = "bpflint: disable=<lint-name>"
)

// WarningKind classifies recoverable problems found while linting.
type WarningKind int

const (
	// WarningMalformedDirective is a comment that looks like a directive
	// but does not follow the directive grammar.
	WarningMalformedDirective WarningKind = iota
	// WarningUnknownLint is a well formed directive naming a lint that is
	// not registered.
	WarningUnknownLint
)

func (k WarningKind) String() string {
	switch k {
	case WarningMalformedDirective:
		return "malformed-directive"
	case WarningUnknownLint:
		return "unknown-lint"
	}
	return "unknown"
}

// MarshalJSON serializes the kind as a JSON string.
func (k WarningKind) MarshalJSON() ([]byte, error) {
	return json.Marshal(k.String())
}

// Warning is a non-fatal problem with a disable directive.  Warnings never
// suppress anything and never stop a lint run.
type Warning struct {
	Kind    WarningKind `json:"kind"`
	Pos     Position    `json:"pos"`
	End     Position    `json:"end"`
	Lint    string      `json:"lint,omitempty"`
	Message string      `json:"message"`
}

func (w Warning) String() string {
	return fmt.Sprintf("%s: %s (%s)", w.Pos, w.Message, w.Kind)
}

// Span returns the source range of the offending comment.
func (w Warning) Span() token.Span {
	return token.Span{Start: w.Pos.Token(), End: w.End.Token()}
}

// SuppressionMap records the lints disabled for each syntactic unit.  It is
// built once per file and only read afterwards.
type SuppressionMap map[*ast.Node]map[string]bool

// Disabled reports whether lint is disabled directly on unit.
func (m SuppressionMap) Disabled(unit *ast.Node, lint string) bool {
	return m[unit][lint]
}

// Covers reports whether a finding for lint spanning span within root is
// suppressed.  The tightest unit containing the finding is consulted first.
// Enclosing units are consulted as long as the walk outward does not leave
// a block's statement list, so a directive on a block or function body
// never reaches the statements inside it.
func (m SuppressionMap) Covers(root *ast.Node, span token.Span, lint string) bool {
	if len(m) == 0 {
		return false
	}
	path := containing(root, span)
	for i := len(path) - 1; i > 0; i-- {
		n := path[i]
		if !n.IsUnit() {
			continue
		}
		if m[n][lint] {
			return true
		}
		if path[i-1].Kind == ast.Block {
			return false
		}
	}
	return false
}

// DirectiveTarget returns the unit that a disable directive must precede to
// suppress a finding spanning span, or nil if no unit contains the span.
// It is the outermost unit consulted by Covers.
func DirectiveTarget(root *ast.Node, span token.Span) *ast.Node {
	path := containing(root, span)
	var target *ast.Node
	for i := len(path) - 1; i > 0; i-- {
		n := path[i]
		if !n.IsUnit() {
			continue
		}
		target = n
		if path[i-1].Kind == ast.Block {
			break
		}
	}
	return target
}

// containing returns the chain of nodes from root down to the innermost
// node whose span contains span.
func containing(root *ast.Node, span token.Span) []*ast.Node {
	path := []*ast.Node{root}
	n := root
	for {
		var next *ast.Node
		for _, c := range n.Children {
			if c.Span.Contains(span) && !c.Span.IsEmpty() {
				next = c
				break
			}
		}
		if next == nil {
			return path
		}
		path = append(path, next)
		n = next
	}
}

// directive is a parsed disable comment.
type directive struct {
	lint    string
	comment *ast.Node
}

var directiveParser = newDirectiveParser()

// newDirectiveParser builds the directive grammar.  Every terminal is
// matched exactly: whitespace is significant and nothing may follow the
// lint name.
func newDirectiveParser() parsec.Parser {
	prefix := parsec.AtomExact(directivePrefix, "PREFIX")
	space := parsec.AtomExact(" ", "SPACE")
	disable := parsec.AtomExact("disable", "DISABLE")
	eq := parsec.AtomExact("=", "EQUALS")
	name := parsec.TokenExact(lintNamePattern, "NAME")
	return parsec.And(nodifyDirective, prefix, space, disable, eq, name, parsec.End())
}

func nodifyDirective(nodes []parsec.ParsecNode) parsec.ParsecNode {
	for _, n := range nodes {
		if term, ok := n.(*parsec.Terminal); ok && term.Name == "NAME" {
			return term.Value
		}
	}
	return nil
}

// parseDirective inspects a comment.  The returned bool is false for
// comments that are not directives at all.  A non-nil warning describes a
// comment that tried to be a directive and failed.
func parseDirective(c *ast.Node) (string, bool, *Warning) {
	text := c.Text
	var body string
	line := strings.HasPrefix(text, "//")
	if line {
		body = strings.TrimSpace(text[2:])
	} else {
		body = strings.TrimSpace(strings.TrimSuffix(strings.TrimPrefix(text, "/*"), "*/"))
	}
	if !strings.HasPrefix(body, directivePrefix) {
		return "", false, nil
	}
	if line {
		return "", true, malformed(c, "disable directives must be block comments: /* %s */", directiveForm)
	}
	node, _ := directiveParser(parsec.NewScanner([]byte(body)))
	name, ok := node.(string)
	if !ok {
		return "", true, malformed(c, "malformed disable directive %q: expected %q", body, directiveForm)
	}
	return name, true, nil
}

func malformed(c *ast.Node, format string, args ...interface{}) *Warning {
	return &Warning{
		Kind:    WarningMalformedDirective,
		Pos:     MakePosition("", c.Span.Start),
		End:     MakePosition("", c.Span.End),
		Message: fmt.Sprintf(format, args...),
	}
}

// ResolveSuppressions associates each disable directive in the tree with
// the unit (statement, block, declaration or function definition) that
// immediately follows it among its siblings.  Comments and preprocessor
// lines between a directive and its unit are skipped; any other node ends
// the association, as does the end of the enclosing list, leaving the
// directive inert.  Directives naming unregistered lints and malformed
// directives produce warnings and suppress nothing.
func ResolveSuppressions(root *ast.Node, reg *Registry) (SuppressionMap, []Warning) {
	r := &resolver{reg: reg, m: make(SuppressionMap)}
	var visit func(n *ast.Node)
	visit = func(n *ast.Node) {
		r.siblings(n.Children)
		for _, c := range n.Children {
			visit(c)
		}
	}
	if root != nil {
		visit(root)
	}
	sort.SliceStable(r.warnings, func(i, j int) bool {
		return r.warnings[i].Pos.Offset < r.warnings[j].Pos.Offset
	})
	return r.m, r.warnings
}

type resolver struct {
	reg      *Registry
	m        SuppressionMap
	warnings []Warning
}

func (r *resolver) siblings(children []*ast.Node) {
	var pending []directive
	for _, c := range children {
		switch {
		case c.Kind == ast.Comment:
			name, ok, warn := parseDirective(c)
			switch {
			case warn != nil:
				r.warnings = append(r.warnings, *warn)
			case ok && !r.reg.Has(name):
				r.warnings = append(r.warnings, Warning{
					Kind:    WarningUnknownLint,
					Pos:     MakePosition("", c.Span.Start),
					End:     MakePosition("", c.Span.End),
					Lint:    name,
					Message: fmt.Sprintf("unknown lint %q in disable directive", name),
				})
			case ok:
				pending = append(pending, directive{lint: name, comment: c})
			}
		case c.Kind == ast.Preproc:
		case c.IsUnit():
			if len(pending) > 0 {
				set := r.m[c]
				if set == nil {
					set = make(map[string]bool)
					r.m[c] = set
				}
				for _, d := range pending {
					set[d.lint] = true
				}
				pending = nil
			}
		default:
			pending = nil
		}
	}
}

// Copyright © 2024 The bpflint authors

// Package ast defines the syntax tree produced by the bpflint parser.
//
// The tree is deliberately shallow: it records enough C structure (function
// definitions, declarations, statements, blocks, calls and groupings) to
// anchor pattern queries and suppression comments, but it does not model
// types or full expression precedence.  Comments and preprocessor
// directives are ordinary nodes positioned among their siblings.
package ast

import (
	"fmt"
	"strings"

	"github.com/luthersystems/bpflint/parser/token"
)

type Kind uint

const (
	Invalid Kind = iota

	TranslationUnit
	FunctionDef
	Declaration
	Statement
	Block

	// Trivia and unparsed regions.
	Comment
	Preproc
	Opaque

	// Expression pieces.
	Call
	Argument
	Group
	Ident
	Literal
	Operator
	Keyword

	numKinds
)

func (k Kind) String() string {
	kindStrings := [numKinds]string{
		Invalid:         "invalid",
		TranslationUnit: "translation-unit",
		FunctionDef:     "function-def",
		Declaration:     "declaration",
		Statement:       "statement",
		Block:           "block",
		Comment:         "comment",
		Preproc:         "preproc",
		Opaque:          "opaque",
		Call:            "call",
		Argument:        "argument",
		Group:           "group",
		Ident:           "ident",
		Literal:         "literal",
		Operator:        "operator",
		Keyword:         "keyword",
	}
	if k >= numKinds {
		return kindStrings[Invalid]
	}
	return kindStrings[k]
}

// Node is a single element of the syntax tree.  A parent exclusively owns
// its Children, which are ordered by position and never overlap.
type Node struct {
	Kind Kind
	Span token.Span

	// Text is the raw source text of leaves (identifiers, literals,
	// operators, keywords, comments, directives, opaque regions) and the
	// opening delimiter of a Group.
	Text string

	// Name is the callee of a Call, the declared name of a FunctionDef and
	// the introducing keyword of a control Statement ("if", "return", ...).
	Name string

	Children []*Node
}

// Append adds c as the last child of n.
func (n *Node) Append(c *Node) {
	n.Children = append(n.Children, c)
}

// IsUnit reports whether n is a syntactic unit that a suppression comment
// can be attached to.
func (n *Node) IsUnit() bool {
	switch n.Kind {
	case Statement, Block, Declaration, FunctionDef:
		return true
	}
	return false
}

// IsTrivia reports whether n carries no code of its own.
func (n *Node) IsTrivia() bool {
	return n.Kind == Comment || n.Kind == Preproc
}

// Args returns the argument nodes of a Call.
func (n *Node) Args() []*Node {
	if n.Kind != Call {
		return nil
	}
	var args []*Node
	for _, c := range n.Children {
		if c.Kind == Argument {
			args = append(args, c)
		}
	}
	return args
}

// Arg returns the i-th argument of a Call or nil.
func (n *Node) Arg(i int) *Node {
	args := n.Args()
	if i < 0 || i >= len(args) {
		return nil
	}
	return args[i]
}

// Single returns the only child of n if n has exactly one child.  It is
// useful for unwrapping arguments that consist of a single expression.
func (n *Node) Single() *Node {
	if n == nil || len(n.Children) != 1 {
		return nil
	}
	return n.Children[0]
}

// StringValue returns the unquoted contents of a string Literal and true,
// or false if n is not a plain string literal.  Adjacent literals are not
// concatenated here; see Argument handling in callers.
func (n *Node) StringValue() (string, bool) {
	if n == nil || n.Kind != Literal || len(n.Text) < 2 || !strings.HasSuffix(n.Text, `"`) {
		return "", false
	}
	text := n.Text
	i := strings.IndexByte(text, '"')
	if i < 0 || i == len(text)-1 {
		return "", false
	}
	return text[i+1 : len(text)-1], true
}

func (n *Node) String() string {
	switch n.Kind {
	case Call, FunctionDef:
		return fmt.Sprintf("%s(%s)@%s", n.Kind, n.Name, n.Span.Start)
	case Statement:
		if n.Name != "" {
			return fmt.Sprintf("%s(%s)@%s", n.Kind, n.Name, n.Span.Start)
		}
	case Ident, Literal, Operator, Keyword:
		return fmt.Sprintf("%s(%s)@%s", n.Kind, n.Text, n.Span.Start)
	}
	return fmt.Sprintf("%s@%s", n.Kind, n.Span.Start)
}

// Dump writes an indented outline of the tree rooted at n.  It is intended
// for tests and debugging.
func Dump(n *Node) string {
	var b strings.Builder
	var dump func(n *Node, depth int)
	dump = func(n *Node, depth int) {
		fmt.Fprintf(&b, "%s%s\n", strings.Repeat("  ", depth), n)
		for _, c := range n.Children {
			dump(c, depth+1)
		}
	}
	dump(n, 0)
	return b.String()
}

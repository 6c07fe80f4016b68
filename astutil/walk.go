// Copyright © 2024 The bpflint authors

// Package astutil provides shared syntax tree walking utilities.
//
// These helpers are used by the lint rules, the suppression resolver and
// the language server for traversing parsed BPF C source.
package astutil

import (
	"strings"

	"github.com/luthersystems/bpflint/parser/ast"
)

// Walk calls fn for every node in the tree, depth-first.
// parent is nil for the root.
func Walk(root *ast.Node, fn func(node *ast.Node, parent *ast.Node, depth int)) {
	walkNode(root, nil, 0, fn)
}

func walkNode(node *ast.Node, parent *ast.Node, depth int, fn func(*ast.Node, *ast.Node, int)) {
	if node == nil {
		return
	}
	fn(node, parent, depth)
	for _, child := range node.Children {
		walkNode(child, node, depth+1, fn)
	}
}

// WalkPath calls fn for every node in the tree, depth-first, passing the
// chain of ancestors from the root down to the node's parent.  If fn
// returns false the node's children are skipped.  The path slice is reused
// between calls and must be copied if retained.
func WalkPath(root *ast.Node, fn func(node *ast.Node, path []*ast.Node) bool) {
	var path []*ast.Node
	var walk func(n *ast.Node)
	walk = func(n *ast.Node) {
		if !fn(n, path) {
			return
		}
		path = append(path, n)
		for _, c := range n.Children {
			walk(c)
		}
		path = path[:len(path)-1]
	}
	if root != nil {
		walk(root)
	}
}

// WalkCalls calls fn for every Call node in the tree along with its
// ancestors.
func WalkCalls(root *ast.Node, fn func(call *ast.Node, path []*ast.Node)) {
	WalkPath(root, func(n *ast.Node, path []*ast.Node) bool {
		if n.Kind == ast.Call {
			fn(n, path)
		}
		return true
	})
}

// CallsNamed returns every call of one of the given functions, in source
// order.
func CallsNamed(root *ast.Node, names ...string) []*ast.Node {
	var calls []*ast.Node
	WalkCalls(root, func(call *ast.Node, _ []*ast.Node) {
		for _, name := range names {
			if call.Name == name {
				calls = append(calls, call)
				return
			}
		}
	})
	return calls
}

// StringArg returns the value of a call argument made up solely of string
// literals (adjacent literals are concatenated) and true.  Comments within
// the argument are ignored.
func StringArg(arg *ast.Node) (string, bool) {
	if arg == nil {
		return "", false
	}
	var b strings.Builder
	var found bool
	for _, c := range arg.Children {
		if c.IsTrivia() {
			continue
		}
		s, ok := c.StringValue()
		if !ok {
			return "", false
		}
		b.WriteString(s)
		found = true
	}
	return b.String(), found
}

// IdentArg returns the identifier making up a call argument and true.
func IdentArg(arg *ast.Node) (string, bool) {
	id := SignificantSingle(arg)
	if id == nil || id.Kind != ast.Ident {
		return "", false
	}
	return id.Text, true
}

// SignificantSingle returns the only child of n that is not trivia, or nil.
func SignificantSingle(n *ast.Node) *ast.Node {
	if n == nil {
		return nil
	}
	var only *ast.Node
	for _, c := range n.Children {
		if c.IsTrivia() {
			continue
		}
		if only != nil {
			return nil
		}
		only = c
	}
	return only
}

// EnclosingUnit returns the innermost unit in path, or nil.
func EnclosingUnit(path []*ast.Node) *ast.Node {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i].IsUnit() {
			return path[i]
		}
	}
	return nil
}

// Significant returns the children of n that are not trivia.
func Significant(n *ast.Node) []*ast.Node {
	var out []*ast.Node
	for _, c := range n.Children {
		if !c.IsTrivia() {
			out = append(out, c)
		}
	}
	return out
}

// Copyright © 2024 The bpflint authors

// Package parser is the entry point for turning BPF C source into a syntax
// tree.  The heavy lifting is done by package rdparser.
package parser

import (
	"fmt"
	"os"

	"github.com/luthersystems/bpflint/parser/ast"
	"github.com/luthersystems/bpflint/parser/rdparser"
)

// Parse parses src.  Errors are *token.ParseError values.
func Parse(name string, src []byte) (*ast.Node, error) {
	return rdparser.Parse(name, src)
}

// ParseFile reads and parses the file at path.  The file contents are
// returned alongside the tree so callers can render source excerpts.
func ParseFile(path string) (*ast.Node, []byte, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("reading %s: %w", path, err)
	}
	root, err := Parse(path, src)
	if err != nil {
		return nil, src, err
	}
	return root, src, nil
}

// Copyright © 2024 The bpflint authors

// Package token defines the lexical tokens of BPF C source and the spans
// used to anchor them in the original text.
package token

import "fmt"

type Token struct {
	Type Type
	Text string
	Span Span
}

func (tok *Token) String() string {
	return fmt.Sprintf("%s %q at %s", tok.Type, tok.Text, tok.Span.Start)
}

// Is reports whether tok is a punctuator or keyword with the given text.
func (tok *Token) Is(text string) bool {
	return tok != nil && (tok.Type == PUNCT || tok.Type == KEYWORD) && tok.Text == text
}

type Type uint

// Type constants used by the bpflint lexer and parser.
const (
	INVALID Type = iota
	EOF

	IDENT
	KEYWORD
	NUMBER
	STRING
	CHAR

	PUNCT

	// Trivia that the parser keeps in the tree.
	COMMENT
	PREPROC

	numTokenTypes
)

func (typ Type) String() string {
	typeStrings := [numTokenTypes]string{
		INVALID: "invalid",
		EOF:     "EOF",
		IDENT:   "ident",
		KEYWORD: "keyword",
		NUMBER:  "number",
		STRING:  "string",
		CHAR:    "char",
		PUNCT:   "punct",
		COMMENT: "comment",
		PREPROC: "preproc",
	}
	if typ >= numTokenTypes {
		return typeStrings[INVALID]
	}
	return typeStrings[typ]
}

var keywords = map[string]bool{
	"auto": true, "break": true, "case": true, "char": true, "const": true,
	"continue": true, "default": true, "do": true, "double": true,
	"else": true, "enum": true, "extern": true, "float": true, "for": true,
	"goto": true, "if": true, "inline": true, "int": true, "long": true,
	"register": true, "restrict": true, "return": true, "short": true,
	"signed": true, "sizeof": true, "static": true, "struct": true,
	"switch": true, "typedef": true, "union": true, "unsigned": true,
	"void": true, "volatile": true, "while": true, "_Bool": true,
	"__attribute__": true, "__inline": true, "__always_inline": true,
	"asm": true, "__asm__": true, "__volatile__": true,
}

// IsKeyword reports whether word is a reserved C word (including the GNU
// extensions common in BPF programs).
func IsKeyword(word string) bool {
	return keywords[word]
}

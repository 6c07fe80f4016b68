// Copyright © 2024 The bpflint authors

// Package lexer splits BPF C source text into tokens.  Comments and
// preprocessor directives are emitted as tokens rather than discarded so
// that the parser can keep them in the syntax tree.
package lexer

import (
	"fmt"
	"io"
	"sort"

	"github.com/luthersystems/bpflint/parser/token"
)

// punctuators sorted longest first so that readPunct performs maximal munch.
var punctuators = func() []string {
	p := []string{
		"...", "<<=", ">>=",
		"->", "++", "--", "<<", ">>", "<=", ">=", "==", "!=", "&&", "||",
		"*=", "/=", "%=", "+=", "-=", "&=", "^=", "|=", "##",
		"[", "]", "(", ")", "{", "}", ".", "&", "*", "+", "-", "~", "!",
		"/", "%", "<", ">", "^", "|", "?", ":", ";", "=", ",", "#",
	}
	sort.SliceStable(p, func(i, j int) bool { return len(p[i]) > len(p[j]) })
	return p
}()

type Lexer struct {
	scanner *token.Scanner
}

func New(s *token.Scanner) *Lexer {
	return &Lexer{scanner: s}
}

// Tokenize lexes all of src.  The returned slice always ends with an EOF
// token unless an error is returned.
func Tokenize(file string, src []byte) ([]*token.Token, error) {
	lex := New(token.NewScanner(file, src))
	var toks []*token.Token
	for {
		tok, err := lex.ReadToken()
		if err != nil {
			return nil, err
		}
		toks = append(toks, tok)
		if tok.Type == token.EOF {
			return toks, nil
		}
	}
}

// ReadToken returns the next token in the input.  The only errors are
// *token.ParseError values for text that cannot be tokenized at all.
func (lex *Lexer) ReadToken() (*token.Token, error) {
	if err := lex.skipWhitespace(); err != nil {
		return nil, err
	}
	s := lex.scanner
	if s.EOF() {
		return s.EmitToken(token.EOF), nil
	}
	if err := s.ScanRune(); err != nil {
		return nil, lex.fail(err)
	}
	c := s.Rune()
	switch {
	case c == '/' && s.AcceptRune('*'):
		return lex.readBlockComment()
	case c == '/' && s.AcceptRune('/'):
		lex.acceptLine()
		return s.EmitToken(token.COMMENT), nil
	case c == '#' && lex.atLineStart():
		return lex.readDirective()
	case c == '"':
		return lex.readQuoted('"', token.STRING)
	case c == '\'':
		return lex.readQuoted('\'', token.CHAR)
	case isDigit(c) || (c == '.' && lex.peekDigit()):
		return lex.readNumber()
	case isWordStart(c):
		return lex.readWord()
	default:
		return lex.readPunct(c)
	}
}

func (lex *Lexer) skipWhitespace() error {
	s := lex.scanner
	for {
		s.AcceptSeqAny(" \t\r\n\f\v")
		// Line splices outside of directives carry no meaning.
		if s.AcceptString("\\\n") || s.AcceptString("\\\r\n") {
			continue
		}
		break
	}
	if err := s.Err(); err != nil {
		return lex.fail(err)
	}
	s.Ignore()
	return nil
}

func (lex *Lexer) fail(err error) error {
	s := lex.scanner
	return &token.ParseError{
		File:   s.File(),
		Span:   token.Span{Start: s.Pos(), End: s.Pos()},
		Reason: err.Error(),
	}
}

func (lex *Lexer) errorf(format string, v ...interface{}) error {
	s := lex.scanner
	return &token.ParseError{
		File:   s.File(),
		Span:   s.Span(),
		Reason: fmt.Sprintf(format, v...),
	}
}

// atLineStart reports whether the rune just scanned is preceded only by
// horizontal whitespace on its line.
func (lex *Lexer) atLineStart() bool {
	src := lex.scanner.Source()
	for i := lex.scanner.Span().Start.Offset - 1; i >= 0; i-- {
		switch src[i] {
		case ' ', '\t':
			continue
		case '\n':
			return true
		default:
			return false
		}
	}
	return true
}

func (lex *Lexer) readBlockComment() (*token.Token, error) {
	s := lex.scanner
	for !s.AcceptString("*/") {
		if err := s.ScanRune(); err != nil {
			if err == io.EOF {
				return nil, lex.errorf("unterminated block comment")
			}
			return nil, lex.fail(err)
		}
	}
	return s.EmitToken(token.COMMENT), nil
}

// acceptLine consumes input up to, but not including, the next newline.
func (lex *Lexer) acceptLine() {
	lex.scanner.AcceptSeq(func(c rune) bool { return c != '\n' })
}

// readDirective consumes a preprocessor directive including continuation
// lines and any comments embedded in it.  The directive is opaque to the
// parser.
func (lex *Lexer) readDirective() (*token.Token, error) {
	s := lex.scanner
	for {
		switch {
		case s.AcceptString("\\\n"), s.AcceptString("\\\r\n"):
		case s.AcceptString("/*"):
			for !s.AcceptString("*/") {
				if err := s.ScanRune(); err != nil {
					if err == io.EOF {
						return nil, lex.errorf("unterminated block comment in directive")
					}
					return nil, lex.fail(err)
				}
			}
		case s.PeekString("//"):
			lex.acceptLine()
		default:
			if !s.Accept(func(c rune) bool { return c != '\n' }) {
				if err := s.Err(); err != nil {
					return nil, lex.fail(err)
				}
				return s.EmitToken(token.PREPROC), nil
			}
		}
	}
}

func (lex *Lexer) readQuoted(quote rune, typ token.Type) (*token.Token, error) {
	s := lex.scanner
	for {
		c, ok := s.Peek()
		if !ok {
			if err := s.Err(); err != nil {
				return nil, lex.fail(err)
			}
			return nil, lex.errorf("unterminated %s literal", typ)
		}
		if c == '\n' {
			return nil, lex.errorf("unterminated %s literal", typ)
		}
		_ = s.ScanRune()
		switch c {
		case quote:
			return s.EmitToken(typ), nil
		case '\\':
			// The escaped character is taken verbatim; a splice continues
			// the literal on the next line.
			if !s.Accept(func(rune) bool { return true }) {
				return nil, lex.errorf("unterminated %s literal", typ)
			}
		}
	}
}

func (lex *Lexer) readNumber() (*token.Token, error) {
	s := lex.scanner
	for {
		prev := s.Rune()
		if (prev == 'e' || prev == 'E' || prev == 'p' || prev == 'P') && s.AcceptAny("+-") {
			continue
		}
		if !s.Accept(func(c rune) bool { return isWord(c) || c == '.' }) {
			break
		}
	}
	return s.EmitToken(token.NUMBER), nil
}

func (lex *Lexer) readWord() (*token.Token, error) {
	s := lex.scanner
	s.AcceptSeq(isWord)
	word := s.Text()
	switch word {
	case "L", "u", "U", "u8":
		// Encoding prefixes on string and character literals.
		if s.AcceptRune('"') {
			return lex.readQuoted('"', token.STRING)
		}
		if word != "u8" && s.AcceptRune('\'') {
			return lex.readQuoted('\'', token.CHAR)
		}
	}
	if token.IsKeyword(word) {
		return s.EmitToken(token.KEYWORD), nil
	}
	return s.EmitToken(token.IDENT), nil
}

func (lex *Lexer) readPunct(first rune) (*token.Token, error) {
	s := lex.scanner
	for _, p := range punctuators {
		if rune(p[0]) != first {
			continue
		}
		if len(p) == 1 || s.AcceptString(p[1:]) {
			return s.EmitToken(token.PUNCT), nil
		}
	}
	// Stray characters (e.g. '@', '`', '\\' or non-ASCII runes outside of
	// literals) are kept so that the parser can wrap them in an opaque node.
	return s.EmitToken(token.INVALID), nil
}

func (lex *Lexer) peekDigit() bool {
	c, ok := lex.scanner.Peek()
	return ok && isDigit(c)
}

func isDigit(c rune) bool {
	return '0' <= c && c <= '9'
}

func isWordStart(c rune) bool {
	return c == '_' || c == '$' || ('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z')
}

func isWord(c rune) bool {
	return isWordStart(c) || isDigit(c)
}

// Copyright © 2024 The bpflint authors

package rdparser

import (
	"github.com/luthersystems/bpflint/parser/lexer"
	"github.com/luthersystems/bpflint/parser/token"
)

// TokenSource adds memory and arbitrary lookahead to a tokenized file.  The
// token sequence must end with an EOF token, as produced by lexer.Tokenize.
type TokenSource struct {
	toks []*token.Token
	next int

	// Token is the most recently scanned token.
	Token *token.Token
}

// NewTokenSource initializes and returns a TokenSource over toks.
func NewTokenSource(toks []*token.Token) *TokenSource {
	if len(toks) == 0 || toks[len(toks)-1].Type != token.EOF {
		toks = append(toks, &token.Token{Type: token.EOF})
	}
	return &TokenSource{toks: toks}
}

// Tokenize lexes src and returns a TokenSource over the result.
func Tokenize(name string, src []byte) (*TokenSource, error) {
	toks, err := lexer.Tokenize(name, src)
	if err != nil {
		return nil, err
	}
	return NewTokenSource(toks), nil
}

func (s *TokenSource) Peek() *token.Token {
	return s.PeekAt(0)
}

// PeekAt returns the token n positions past the next token.  Looking past
// the end of input returns the EOF token.
func (s *TokenSource) PeekAt(n int) *token.Token {
	i := s.next + n
	if i >= len(s.toks) {
		return s.toks[len(s.toks)-1]
	}
	return s.toks[i]
}

// PeekCode returns the next token that is neither a comment nor a
// preprocessor directive.
func (s *TokenSource) PeekCode() *token.Token {
	for i := 0; ; i++ {
		tok := s.PeekAt(i)
		if !isTrivia(tok) {
			return tok
		}
	}
}

func (s *TokenSource) Accept(fn func(*token.Token) bool) bool {
	if fn(s.Peek()) {
		s.scan()
		return true
	}
	return false
}

func (s *TokenSource) AcceptType(typ ...token.Type) bool {
	for _, typ := range typ {
		if s.Peek().Type == typ {
			s.scan()
			return true
		}
	}
	return false
}

// Scan advances to the next token.  At EOF Scan sets Token to the EOF token
// and returns false.
func (s *TokenSource) Scan() bool {
	if s.IsEOF() {
		s.Token = s.Peek()
		return false
	}
	s.scan()
	return true
}

func (s *TokenSource) IsEOF() bool {
	return s.Peek().Type == token.EOF
}

func (s *TokenSource) scan() {
	s.Token = s.Peek()
	if s.next < len(s.toks)-1 {
		s.next++
	}
}

func isTrivia(tok *token.Token) bool {
	return tok.Type == token.COMMENT || tok.Type == token.PREPROC
}

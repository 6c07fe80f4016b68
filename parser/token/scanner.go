// Copyright © 2024 The bpflint authors

package token

import (
	"fmt"
	"io"
	"strings"
	"unicode/utf8"
)

// Scanner facilitates construction of tokens from source text held in
// memory.  It tracks byte offsets as well as line and column numbers so
// every emitted token carries an exact Span.
type Scanner struct {
	file string
	buf  []byte

	start Position // beginning of the current token
	cur   Position // next unread byte
	c     rune     // last rune accepted into the current token
	err   error    // sticky decoding error
}

// NewScanner initializes and returns a new Scanner over src.
func NewScanner(file string, src []byte) *Scanner {
	begin := Position{Offset: 0, Line: 1, Col: 1}
	return &Scanner{
		file:  file,
		buf:   src,
		start: begin,
		cur:   begin,
	}
}

// File returns the name the scanner was created with.
func (s *Scanner) File() string {
	return s.file
}

// Source returns the complete source text.
func (s *Scanner) Source() []byte {
	return s.buf
}

// EmitToken returns a token containing the text scanned since the last call
// to either EmitToken or Ignore.
func (s *Scanner) EmitToken(typ Type) *Token {
	tok := &Token{
		Type: typ,
		Text: s.Text(),
		Span: s.Span(),
	}
	s.Ignore()
	return tok
}

// Ignore causes the scanner to skip all text scanned since the last call to
// either EmitToken or Ignore.
func (s *Scanner) Ignore() {
	s.start = s.cur
}

// Text returns the text scanned since the last call to either EmitToken or
// Ignore.
func (s *Scanner) Text() string {
	return string(s.buf[s.start.Offset:s.cur.Offset])
}

// Span returns the span of the text scanned since the last call to either
// EmitToken or Ignore.
func (s *Scanner) Span() Span {
	return Span{Start: s.start, End: s.cur}
}

// Pos returns the position of the next unread byte.
func (s *Scanner) Pos() Position {
	return s.cur
}

// Rune returns the last rune accepted into the current token.
func (s *Scanner) Rune() rune {
	return s.c
}

// EOF reports whether all input has been consumed.
func (s *Scanner) EOF() bool {
	return s.cur.Offset >= len(s.buf)
}

// Err returns the decoding error that stopped the scanner, if any.
func (s *Scanner) Err() error {
	return s.err
}

// Peek returns the next rune to be scanned.  If an invalid utf-8 sequence or
// EOF prevents further runes from being scanned Peek returns a false second
// value.
func (s *Scanner) Peek() (rune, bool) {
	c, _, ok := s.decode(s.cur.Offset)
	return c, ok
}

// PeekString reports whether the unread input begins with literal.
func (s *Scanner) PeekString(literal string) bool {
	return strings.HasPrefix(string(s.buf[s.cur.Offset:min(len(s.buf), s.cur.Offset+len(literal))]), literal)
}

func (s *Scanner) decode(off int) (rune, int, bool) {
	if s.err != nil || off >= len(s.buf) {
		return 0, 0, false
	}
	c, n := utf8.DecodeRune(s.buf[off:])
	if c == utf8.RuneError && n == 1 {
		s.err = fmt.Errorf("invalid utf-8 sequence in source text starting with byte %#x", s.buf[off])
		return utf8.RuneError, n, false
	}
	return c, n, true
}

// ScanRune attempts to scan a utf-8 rune from the input for inclusion in the
// current token.  At the end of input io.EOF is returned.
func (s *Scanner) ScanRune() error {
	c, n, ok := s.decode(s.cur.Offset)
	if !ok {
		if s.err != nil {
			return s.err
		}
		return io.EOF
	}
	s.c = c
	s.cur.Offset += n
	if c == '\n' {
		s.cur.Line++
		s.cur.Col = 1
	} else {
		s.cur.Col += n
	}
	return nil
}

func (s *Scanner) Accept(fn func(rune) bool) bool {
	peek, ok := s.Peek()
	if !ok || !fn(peek) {
		return false
	}
	return s.ScanRune() == nil
}

func (s *Scanner) AcceptRune(c rune) bool {
	return s.Accept(func(r rune) bool { return r == c })
}

func (s *Scanner) AcceptAny(charset string) bool {
	return s.Accept(func(r rune) bool { return strings.ContainsRune(charset, r) })
}

func (s *Scanner) AcceptSeq(fn func(rune) bool) int {
	var n int
	for s.Accept(fn) {
		n++
	}
	return n
}

func (s *Scanner) AcceptSeqAny(charset string) int {
	var n int
	for s.AcceptAny(charset) {
		n++
	}
	return n
}

// AcceptString accepts literal only if the input begins with it in its
// entirety; otherwise nothing is consumed.
func (s *Scanner) AcceptString(literal string) bool {
	if !s.PeekString(literal) {
		return false
	}
	for range literal {
		if s.ScanRune() != nil {
			return false
		}
	}
	return true
}

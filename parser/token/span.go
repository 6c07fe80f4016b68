// Copyright © 2024 The bpflint authors

package token

import "fmt"

// Position is a point in source text.  Line and Col start at 1; Col counts
// bytes from the start of the line.
type Position struct {
	Offset int
	Line   int
	Col    int
}

func (p Position) String() string {
	return fmt.Sprintf("%d:%d", p.Line, p.Col)
}

// Before reports whether p sorts before q.
func (p Position) Before(q Position) bool {
	return p.Offset < q.Offset
}

// Span is a half-open range [Start, End) of source text.
type Span struct {
	Start Position
	End   Position
}

func (s Span) String() string {
	return fmt.Sprintf("%s-%s", s.Start, s.End)
}

// Len returns the number of bytes covered by s.
func (s Span) Len() int {
	return s.End.Offset - s.Start.Offset
}

// IsEmpty reports whether s covers no text.
func (s Span) IsEmpty() bool {
	return s.Len() <= 0
}

// Contains reports whether inner lies entirely within s.
func (s Span) Contains(inner Span) bool {
	return s.Start.Offset <= inner.Start.Offset && inner.End.Offset <= s.End.Offset
}

// Overlaps reports whether s and o share at least one byte.
func (s Span) Overlaps(o Span) bool {
	return s.Start.Offset < o.End.Offset && o.Start.Offset < s.End.Offset
}

// Join returns the smallest span covering both s and o.
func (s Span) Join(o Span) Span {
	out := s
	if o.Start.Offset < out.Start.Offset {
		out.Start = o.Start
	}
	if o.End.Offset > out.End.Offset {
		out.End = o.End
	}
	return out
}

// ParseError reports source text that could not be tokenized.
type ParseError struct {
	File   string
	Span   Span
	Reason string
}

func (err *ParseError) Error() string {
	if err.File == "" {
		return fmt.Sprintf("%s: %s", err.Span.Start, err.Reason)
	}
	return fmt.Sprintf("%s:%s: %s", err.File, err.Span.Start, err.Reason)
}

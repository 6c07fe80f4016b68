// Copyright © 2024 The bpflint authors

package lsp

import (
	"strings"
	"unicode/utf16"
	"unicode/utf8"

	protocol "github.com/tliron/glsp/protocol_3_16"

	"github.com/luthersystems/bpflint/lint"
)

// safeUint converts a non-negative int to protocol.UInteger, clamping
// negative values to zero.
func safeUint(n int) protocol.UInteger {
	if n < 0 {
		return 0
	}
	return protocol.UInteger(n) // #nosec G115 -- line/col are always small positive ints
}

// splitLines splits document content into lines without their terminators.
func splitLines(content string) []string {
	lines := strings.Split(content, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSuffix(l, "\r")
	}
	return lines
}

// toLSPPosition converts a 1-based line and byte column into a 0-based LSP
// position.  LSP characters count UTF-16 code units.
func toLSPPosition(lines []string, line, col int) protocol.Position {
	if line <= 0 {
		return protocol.Position{}
	}
	pos := protocol.Position{Line: safeUint(line - 1)}
	if line > len(lines) {
		pos.Character = safeUint(col - 1)
		return pos
	}
	text := lines[line-1]
	end := min(max(col-1, 0), len(text))
	units := 0
	for _, r := range text[:end] {
		if r == utf8.RuneError {
			units++
			continue
		}
		units += utf16.RuneLen(r)
	}
	pos.Character = safeUint(units)
	return pos
}

// toLSPRange converts a half-open source range.
func toLSPRange(lines []string, start, end lint.Position) protocol.Range {
	r := protocol.Range{
		Start: toLSPPosition(lines, start.Line, start.Col),
		End:   toLSPPosition(lines, end.Line, end.Col),
	}
	if end.Line <= 0 {
		r.End = r.Start
	}
	return r
}

// lineIndent returns the leading blanks of a 0-based line.
func lineIndent(lines []string, line int) string {
	if line < 0 || line >= len(lines) {
		return ""
	}
	text := lines[line]
	return text[:len(text)-len(strings.TrimLeft(text, " \t"))]
}

// uriToPath converts a file:// URI to a filesystem path.
func uriToPath(uri string) string {
	if path, ok := strings.CutPrefix(uri, "file://"); ok {
		return path
	}
	return uri
}

// Copyright © 2024 The bpflint authors

package diagnostic

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/mattn/go-runewidth"
)

const tabWidth = 4

// Renderer formats diagnostics as annotated source snippets.
type Renderer struct {
	// Color controls ANSI color output. Default is ColorAuto.
	Color ColorMode

	// Before and After are the number of context lines shown around the
	// highlighted lines.
	Before int
	After  int

	// SourceReader reads source file contents. If nil, os.ReadFile is used.
	SourceReader func(string) ([]byte, error)
}

// Render writes a single diagnostic to w.
func (r *Renderer) Render(w io.Writer, d Diagnostic) error {
	p := choosePalette(r.Color, fileFromWriter(w))
	bw := bufio.NewWriter(w)
	ew := &errWriter{w: bw}

	// Header: "warning: [lint] message"
	r.writeHeader(ew, d, p)

	for _, span := range d.Spans {
		r.writeSpan(ew, span, p)
	}

	r.writeTrailer(ew, "help", d.Help, p)
	for _, note := range d.Notes {
		r.writeTrailer(ew, "note", note, p)
	}

	if ew.err != nil {
		return ew.err
	}
	return bw.Flush()
}

// RenderAll writes all diagnostics to w separated by blank lines.
func (r *Renderer) RenderAll(w io.Writer, diags []Diagnostic) error {
	for i, d := range diags {
		if i > 0 {
			if _, err := io.WriteString(w, "\n"); err != nil {
				return err
			}
		}
		if err := r.Render(w, d); err != nil {
			return err
		}
	}
	return nil
}

// errWriter wraps a writer and captures the first error, short-circuiting
// subsequent writes. This avoids checking every fmt.Fprintf return value.
type errWriter struct {
	w   io.Writer
	err error
}

func (ew *errWriter) printf(format string, a ...interface{}) {
	if ew.err != nil {
		return
	}
	_, ew.err = fmt.Fprintf(ew.w, format, a...)
}

func (r *Renderer) writeHeader(ew *errWriter, d Diagnostic, p palette) {
	sev := p.boldRed
	switch d.Severity {
	case SeverityWarning:
		sev = p.yellow
	case SeverityNote:
		sev = p.boldCyan
	}
	code := ""
	if d.Code != "" {
		code = "[" + d.Code + "] "
	}
	ew.printf("%s: %s\n", sev.Sprint(d.Severity.String()), p.bold.Sprint(code+d.Message))
}

func (r *Renderer) writeTrailer(ew *errWriter, kind, text string, p palette) {
	if text == "" {
		return
	}
	ew.printf("   %s %s: %s\n", p.boldCyan.Sprint("="), kind, text)
}

func (r *Renderer) writeSpan(ew *errWriter, span Span, p palette) {
	// Location line: "  --> file:line:col"
	loc := span.File
	if span.Line > 0 {
		loc = fmt.Sprintf("%s:%d", span.File, span.Line)
		if span.Col > 0 {
			loc = fmt.Sprintf("%s:%d:%d", span.File, span.Line, span.Col)
		}
	}
	ew.printf("  %s %s\n", p.boldBlue.Sprint("-->"), loc)
	if span.Line <= 0 {
		return
	}

	lines := r.readSourceLines(span.File)
	if span.Line > len(lines) {
		// No source available; just show the gutter.
		ew.printf("   %s\n", p.boldBlue.Sprint("|"))
		return
	}

	endLine := span.EndLine
	if endLine < span.Line {
		endLine = span.Line
	}
	if endLine > len(lines) {
		endLine = len(lines)
	}
	first := span.Line - max(r.Before, 0)
	if first < 1 {
		first = 1
	}
	last := min(endLine+max(r.After, 0), len(lines))

	g := gutter{width: len(strconv.Itoa(last)), p: p}
	ew.printf("%s\n", g.empty())
	for n := first; n < span.Line; n++ {
		ew.printf("%s %s\n", g.line(n), expandTabs(lines[n-1]))
	}
	if endLine == span.Line {
		r.writeSingle(ew, g, lines[span.Line-1], span)
	} else {
		r.writeMulti(ew, g, lines, span, endLine)
	}
	for n := endLine + 1; n <= last; n++ {
		ew.printf("%s %s\n", g.line(n), expandTabs(lines[n-1]))
	}
	ew.printf("%s\n", g.empty())
}

// writeSingle draws a source line with carets under the highlighted columns.
func (r *Renderer) writeSingle(ew *errWriter, g gutter, source string, span Span) {
	col := span.Col
	if col <= 0 {
		col = 1
	}
	endCol := span.EndCol
	if endCol <= 0 {
		endCol = detectEndCol(source, col)
	}
	indent := displayWidth(clip(source, col-1))
	width := displayWidth(clip(source, endCol-1)) - indent
	if width < 1 {
		width = 1
	}

	ew.printf("%s %s\n", g.line(span.Line), expandTabs(source))
	ew.printf("%s %s%s", g.empty(), strings.Repeat(" ", indent), g.p.boldRed.Sprint(strings.Repeat("^", width)))
	if span.Label != "" {
		ew.printf(" %s", g.p.boldRed.Sprint(span.Label))
	}
	ew.printf("\n")
}

// writeMulti draws every highlighted line with a bracket in the margin
// leading to a caret under the last highlighted column.
func (r *Renderer) writeMulti(ew *errWriter, g gutter, lines []string, span Span, endLine int) {
	for n := span.Line; n <= endLine; n++ {
		mark := "|"
		if n == span.Line {
			mark = "/"
		}
		ew.printf("%s  %s %s\n", g.line(n), g.p.boldRed.Sprint(mark), expandTabs(lines[n-1]))
	}
	lastLine := lines[endLine-1]
	endCol := span.EndCol
	if endCol <= 0 || span.EndLine > endLine {
		endCol = len(lastLine) + 1
	}
	under := displayWidth(clip(lastLine, endCol-1))
	ew.printf("%s  %s", g.empty(), g.p.boldRed.Sprint("|"+strings.Repeat("_", under)+"^"))
	if span.Label != "" {
		ew.printf(" %s", g.p.boldRed.Sprint(span.Label))
	}
	ew.printf("\n")
}

// gutter renders the line number margin.
type gutter struct {
	width int
	p     palette
}

func (g gutter) empty() string {
	return g.p.boldBlue.Sprint(strings.Repeat(" ", g.width) + " |")
}

func (g gutter) line(n int) string {
	return g.p.boldBlue.Sprintf("%*d |", g.width, n)
}

func (r *Renderer) readSourceLines(file string) []string {
	if file == "" {
		return nil
	}
	reader := r.SourceReader
	if reader == nil {
		reader = func(name string) ([]byte, error) {
			return os.ReadFile(name) //nolint:gosec // reads user-specified source files for display
		}
	}
	data, err := reader(file)
	if err != nil || len(data) == 0 {
		return nil
	}
	text := strings.TrimSuffix(string(data), "\n")
	lines := strings.Split(text, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSuffix(l, "\r")
	}
	return lines
}

// detectEndCol scans from col to find the exclusive end of the current
// token.
func detectEndCol(source string, col int) int {
	if col <= 0 || col > len(source) {
		return col + 1
	}
	end := col - 1 // 0-based
	for end < len(source) {
		ch, size := utf8.DecodeRuneInString(source[end:])
		if ch == ' ' || ch == '\t' || ch == ')' || ch == ']' || ch == '(' || ch == '[' || ch == ',' || ch == ';' {
			break
		}
		end += size
	}
	if end == col-1 {
		return col + 1 // single character
	}
	return end + 1
}

// clip returns the first n bytes of s, bounded by the length of s.
func clip(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if n > len(s) {
		return s
	}
	return s[:n]
}

// displayWidth returns the terminal width of s, expanding tabs to four
// columns.
func displayWidth(s string) int {
	return runewidth.StringWidth(expandTabs(s))
}

func expandTabs(s string) string {
	return strings.ReplaceAll(s, "\t", strings.Repeat(" ", tabWidth))
}

// fileFromWriter attempts to extract an *os.File from a writer for terminal
// detection. Returns nil if the writer is not backed by a file.
func fileFromWriter(w io.Writer) *os.File {
	if f, ok := w.(*os.File); ok {
		return f
	}
	return nil
}

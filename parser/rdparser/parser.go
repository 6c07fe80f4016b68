// Copyright © 2024 The bpflint authors

// Package rdparser implements a tolerant recursive descent parser for BPF C
// source.  The parser understands enough of C to delimit function
// definitions, declarations, statements and blocks, and to recognize calls
// (including attribute-like macros such as SEC).  Anything it does not
// understand is kept in the tree as opaque leaves instead of producing an
// error.
package rdparser

import (
	"strings"

	"github.com/luthersystems/bpflint/parser/ast"
	"github.com/luthersystems/bpflint/parser/token"
)

// Parse parses src and returns the root of its syntax tree.  The only
// errors returned are *token.ParseError values for text that could not be
// tokenized.
func Parse(name string, src []byte) (*ast.Node, error) {
	s, err := Tokenize(name, src)
	if err != nil {
		return nil, err
	}
	return New(s).ParseTranslationUnit(), nil
}

// Parser is a BPF C parser.
type Parser struct {
	src *TokenSource
}

// New initializes and returns a Parser that reads tokens from src.
func New(src *TokenSource) *Parser {
	return &Parser{src: src}
}

// context determines how a unit is classified and how braces are read.
type context uint

const (
	ctxFile    context = iota // external declarations and function definitions
	ctxFunc                   // statements in a function body
	ctxMembers                // struct, union and enum members
)

var (
	aggregateKeywords = map[string]bool{"struct": true, "union": true, "enum": true}
	jumpKeywords      = map[string]bool{"return": true, "break": true, "continue": true, "goto": true}
	callKeywords      = map[string]bool{"__attribute__": true, "sizeof": true, "asm": true, "__asm__": true}
	closers           = map[string]string{"(": ")", "[": "]", "{": "}"}
)

// ParseTranslationUnit parses the entire input.
func (p *Parser) ParseTranslationUnit() *ast.Node {
	root := &ast.Node{
		Kind: ast.TranslationUnit,
		Span: token.Span{Start: token.Position{Offset: 0, Line: 1, Col: 1}},
	}
	for !p.src.IsEOF() {
		root.Append(p.parseItem(ctxFile))
	}
	root.Span.End = p.src.Peek().Span.End
	if root.Span.End.Line == 0 {
		root.Span.End = root.Span.Start
	}
	return root
}

func (p *Parser) parseItem(ctx context) *ast.Node {
	tok := p.src.Peek()
	switch {
	case tok.Type == token.COMMENT:
		return p.leaf(ast.Comment)
	case tok.Type == token.PREPROC:
		return p.leaf(ast.Preproc)
	case isCloser(tok):
		return p.leaf(ast.Opaque)
	case tok.Is("{"):
		if ctx == ctxMembers {
			return p.parseBlock(ctxMembers)
		}
		return p.parseBlock(ctxFunc)
	}
	if ctx == ctxFunc {
		if n := p.parseControl(); n != nil {
			return n
		}
	}
	return p.parseUnit(ctx)
}

// parseControl parses statements introduced by a control keyword or a
// label.  It returns nil if the next token does not start such a statement.
func (p *Parser) parseControl() *ast.Node {
	tok := p.src.Peek()
	if tok.Type == token.IDENT && p.src.PeekAt(1).Is(":") {
		n := p.open(ast.Statement)
		n.Name = "label"
		n.Append(p.leaf(ast.Ident))
		n.Append(p.leaf(ast.Operator))
		return p.close(n)
	}
	if tok.Type != token.KEYWORD {
		return nil
	}
	switch tok.Text {
	case "if":
		n := p.keywordStatement()
		p.condition(n)
		p.body(n)
		if p.src.PeekCode().Is("else") {
			p.trivia(n)
			n.Append(p.leaf(ast.Keyword))
			p.body(n)
		}
		return p.close(n)
	case "for", "while", "switch":
		n := p.keywordStatement()
		p.condition(n)
		p.body(n)
		return p.close(n)
	case "do":
		n := p.keywordStatement()
		p.body(n)
		if p.src.PeekCode().Is("while") {
			p.trivia(n)
			n.Append(p.leaf(ast.Keyword))
			p.condition(n)
		}
		p.trivia(n)
		if p.src.Peek().Is(";") {
			n.Append(p.leaf(ast.Operator))
		}
		return p.close(n)
	case "case", "default":
		n := p.keywordStatement()
		for {
			tok := p.src.Peek()
			switch {
			case tok.Type == token.EOF, tok.Is("}"):
				return p.close(n)
			case tok.Is(":"), tok.Is(";"):
				n.Append(p.leaf(ast.Operator))
				return p.close(n)
			}
			n.Append(p.parsePiece())
		}
	}
	return nil
}

func (p *Parser) keywordStatement() *ast.Node {
	n := p.open(ast.Statement)
	n.Name = p.src.Peek().Text
	n.Append(p.leaf(ast.Keyword))
	return n
}

// condition parses the parenthesized header of a control statement.
func (p *Parser) condition(n *ast.Node) {
	p.trivia(n)
	if p.src.Peek().Is("(") {
		n.Append(p.parseGroup())
	}
}

// body parses the statement controlled by a control statement.  A missing
// body (end of block or input) is tolerated.
func (p *Parser) body(n *ast.Node) {
	p.trivia(n)
	tok := p.src.Peek()
	if tok.Type == token.EOF || tok.Is("}") {
		return
	}
	n.Append(p.parseItem(ctxFunc))
}

// trivia appends any comments and directives at the head of the input to n.
func (p *Parser) trivia(n *ast.Node) {
	for isTrivia(p.src.Peek()) {
		n.Append(p.parsePiece())
	}
}

// parseUnit parses a declaration or expression statement, ending at a
// semicolon.  At file level a brace that follows a declarator turns the
// unit into a function definition.
func (p *Parser) parseUnit(ctx context) *ast.Node {
	n := p.open(ast.Declaration)
	if ctx == ctxFunc {
		n.Kind = ast.Statement
		if tok := p.src.Peek(); tok.Type == token.KEYWORD && jumpKeywords[tok.Text] {
			n.Name = tok.Text
		}
	}
	var (
		prev      *ast.Node // last piece that is not trivia
		aggregate bool      // a struct, union or enum body may follow
	)
	for {
		tok := p.src.Peek()
		switch {
		case tok.Type == token.EOF, tok.Is("}"):
			return p.close(n)
		case tok.Is(";"):
			n.Append(p.leaf(ast.Operator))
			return p.close(n)
		case tok.Is("{"):
			if aggregate {
				prev = p.parseBlock(ctxMembers)
				n.Append(prev)
				aggregate = false
				continue
			}
			if isInitializer(prev) {
				prev = p.parseGroup()
				n.Append(prev)
				continue
			}
			n.Append(p.parseBlock(ctxFunc))
			if ctx == ctxFile {
				n.Kind = ast.FunctionDef
				n.Name = functionName(n.Children)
			}
			return p.close(n)
		}
		piece := p.parsePiece()
		n.Append(piece)
		if piece.IsTrivia() {
			continue
		}
		switch {
		case piece.Kind == ast.Keyword && aggregateKeywords[piece.Text]:
			aggregate = true
		case piece.Kind == ast.Ident:
		case piece.Kind == ast.Call && piece.Name == "__attribute__":
		default:
			aggregate = false
		}
		prev = piece
	}
}

// parseBlock parses a brace delimited list of statements or members.  An
// unterminated block ends at EOF.
func (p *Parser) parseBlock(ctx context) *ast.Node {
	n := p.open(ast.Block)
	p.src.Scan()
	for {
		tok := p.src.Peek()
		switch {
		case tok.Type == token.EOF:
			return p.close(n)
		case tok.Is("}"):
			p.src.Scan()
			return p.close(n)
		}
		n.Append(p.parseItem(ctx))
	}
}

// parsePiece parses one element of an expression or declarator.
func (p *Parser) parsePiece() *ast.Node {
	tok := p.src.Peek()
	switch tok.Type {
	case token.COMMENT:
		return p.leaf(ast.Comment)
	case token.PREPROC:
		return p.leaf(ast.Preproc)
	case token.IDENT:
		if p.src.PeekAt(1).Is("(") {
			return p.parseCall(ast.Ident)
		}
		return p.leaf(ast.Ident)
	case token.KEYWORD:
		if callKeywords[tok.Text] && p.src.PeekAt(1).Is("(") {
			return p.parseCall(ast.Keyword)
		}
		return p.leaf(ast.Keyword)
	case token.NUMBER, token.STRING, token.CHAR:
		return p.leaf(ast.Literal)
	case token.PUNCT:
		if _, ok := closers[tok.Text]; ok {
			return p.parseGroup()
		}
		if isCloser(tok) {
			return p.leaf(ast.Opaque)
		}
		return p.leaf(ast.Operator)
	}
	return p.leaf(ast.Opaque)
}

// parseGroup parses a bracketed sequence of pieces.  A closing brace that
// does not belong to the group ends it unterminated so that the enclosing
// block can claim the brace.
func (p *Parser) parseGroup() *ast.Node {
	n := p.open(ast.Group)
	p.src.Scan()
	n.Text = p.src.Token.Text
	closer := closers[n.Text]
	for {
		tok := p.src.Peek()
		switch {
		case tok.Type == token.EOF:
			return p.close(n)
		case tok.Is(closer):
			p.src.Scan()
			return p.close(n)
		case tok.Is("}"):
			return p.close(n)
		}
		n.Append(p.parsePiece())
	}
}

// parseCall parses a callee followed by a parenthesized argument list.
// Arguments are split at top level commas.
func (p *Parser) parseCall(calleeKind ast.Kind) *ast.Node {
	n := p.open(ast.Call)
	callee := p.leaf(calleeKind)
	n.Name = callee.Text
	n.Append(callee)
	p.src.Scan()
	var pieces []*ast.Node
	flush := func() {
		if len(pieces) > 0 {
			n.Append(&ast.Node{Kind: ast.Argument, Span: spanOf(pieces), Children: pieces})
			pieces = nil
		}
	}
	for {
		tok := p.src.Peek()
		switch {
		case tok.Type == token.EOF, tok.Is("}"):
			flush()
			return p.close(n)
		case tok.Is(")"):
			flush()
			p.src.Scan()
			return p.close(n)
		case tok.Is(","):
			flush()
			p.src.Scan()
			continue
		}
		pieces = append(pieces, p.parsePiece())
	}
}

// leaf consumes the next token as a leaf node of the given kind.
func (p *Parser) leaf(kind ast.Kind) *ast.Node {
	p.src.Scan()
	tok := p.src.Token
	return &ast.Node{Kind: kind, Span: tok.Span, Text: tok.Text}
}

// open returns an empty node starting at the next token.
func (p *Parser) open(kind ast.Kind) *ast.Node {
	start := p.src.Peek().Span.Start
	return &ast.Node{Kind: kind, Span: token.Span{Start: start, End: start}}
}

// close extends n to the end of the last scanned token.
func (p *Parser) close(n *ast.Node) *ast.Node {
	if last := p.src.Token; last != nil && n.Span.Start.Offset <= last.Span.Start.Offset {
		n.Span.End = last.Span.End
	}
	return n
}

func isCloser(tok *token.Token) bool {
	return tok.Is(")") || tok.Is("]") || tok.Is("}")
}

// isInitializer reports whether a brace following prev opens an initializer
// list or compound literal rather than a body.
func isInitializer(prev *ast.Node) bool {
	if prev == nil {
		return false
	}
	switch prev.Kind {
	case ast.Operator:
		return true
	case ast.Keyword:
		return prev.Text == "return"
	case ast.Group:
		// A cast such as (struct event) introduces a compound literal.
		for _, c := range prev.Children {
			if c.IsTrivia() {
				continue
			}
			return prev.Text == "(" && c.Kind == ast.Keyword
		}
	}
	return false
}

// functionName picks the declared name of a function definition from its
// header.  Program macros such as BPF_KPROBE(name, ...) name the function
// by their first argument.
func functionName(header []*ast.Node) string {
	for i := len(header) - 1; i >= 0; i-- {
		n := header[i]
		if n.Kind != ast.Call || n.Name == "__attribute__" {
			continue
		}
		if strings.HasPrefix(n.Name, "BPF_") {
			if id := n.Arg(0).Single(); id != nil && id.Kind == ast.Ident {
				return id.Text
			}
		}
		return n.Name
	}
	for i := len(header) - 1; i >= 0; i-- {
		if header[i].Kind == ast.Ident {
			return header[i].Text
		}
	}
	return ""
}

func spanOf(nodes []*ast.Node) token.Span {
	return token.Span{Start: nodes[0].Span.Start, End: nodes[len(nodes)-1].Span.End}
}

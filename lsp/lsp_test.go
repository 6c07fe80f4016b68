// Copyright © 2024 The bpflint authors

package lsp

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tliron/glsp"
	protocol "github.com/tliron/glsp/protocol_3_16"

	"github.com/luthersystems/bpflint/bpflinttest"
	"github.com/luthersystems/bpflint/lint"
)

const kprobeSrc = `SEC("kprobe/do_sys_open")
int handle(void *ctx)
{
	return 0;
}
`

const tracepointSrc = `SEC("tp/syscalls/sys_enter_openat")
int handle(void *ctx)
{
	return 0;
}
`

// testServer creates a server with the default rules and an exit hook
// that does not terminate the test binary.
func testServer(opts ...Option) *Server {
	s := New(opts...)
	s.exitFn = func(int) {}
	return s
}

// openDoc opens a document in the test server and returns it.
func openDoc(s *Server, uri, content string) *Document {
	return s.docs.Open(uri, 1, content)
}

// mockContext returns a minimal glsp.Context for testing.
func mockContext() *glsp.Context {
	return &glsp.Context{
		Notify: func(method string, params any) {},
	}
}

// publishLog records published diagnostics.  Debounced analysis publishes
// from a timer goroutine, so access is locked.
type publishLog struct {
	mu     sync.Mutex
	params []*protocol.PublishDiagnosticsParams
}

func (p *publishLog) len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.params)
}

func (p *publishLog) last() *protocol.PublishDiagnosticsParams {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.params) == 0 {
		return nil
	}
	return p.params[len(p.params)-1]
}

// capturingContext returns a context that captures published diagnostics.
func capturingContext() (*glsp.Context, *publishLog) {
	log := &publishLog{}
	ctx := &glsp.Context{
		Notify: func(method string, params any) {
			if method == protocol.ServerTextDocumentPublishDiagnostics {
				log.mu.Lock()
				log.params = append(log.params, params.(*protocol.PublishDiagnosticsParams))
				log.mu.Unlock()
			}
		},
	}
	return ctx, log
}

func didOpen(t *testing.T, s *Server, ctx *glsp.Context, uri, text string) {
	t.Helper()
	err := s.textDocumentDidOpen(ctx, &protocol.DidOpenTextDocumentParams{
		TextDocument: protocol.TextDocumentItem{
			URI:        uri,
			LanguageID: "c",
			Version:    1,
			Text:       text,
		},
	})
	require.NoError(t, err)
}

// --- Position conversion tests ---

func TestToLSPPosition(t *testing.T) {
	lines := splitLines("int x;\n\tchar *s = \"héllo \U0001F600\";\n")

	assert.Equal(t, protocol.Position{Line: 0, Character: 0}, toLSPPosition(lines, 1, 1))
	assert.Equal(t, protocol.Position{Line: 0, Character: 4}, toLSPPosition(lines, 1, 5))

	// The final ';' is at byte column 25, after a two-byte rune (one UTF-16
	// unit) and a four-byte rune (a surrogate pair).
	assert.Equal(t, protocol.Position{Line: 1, Character: 21}, toLSPPosition(lines, 2, 25))

	assert.Equal(t, protocol.Position{}, toLSPPosition(lines, 0, 0), "unknown line")
	assert.Equal(t, protocol.Position{Line: 9, Character: 2}, toLSPPosition(lines, 10, 3), "past the end")
	assert.Equal(t, protocol.Position{Line: 0, Character: 6}, toLSPPosition(lines, 1, 40), "column clamped to the line")
}

func TestToLSPRange(t *testing.T) {
	lines := splitLines(kprobeSrc)
	r := toLSPRange(lines,
		lint.Position{File: "a", Line: 1, Col: 1},
		lint.Position{File: "a", Line: 1, Col: 26})
	assert.Equal(t, protocol.Position{Line: 0, Character: 0}, r.Start)
	assert.Equal(t, protocol.Position{Line: 0, Character: 25}, r.End)

	r = toLSPRange(lines, lint.Position{File: "a", Line: 2, Col: 5}, lint.Position{})
	assert.Equal(t, r.Start, r.End, "missing end collapses onto the start")
}

func TestSplitLines(t *testing.T) {
	assert.Equal(t, []string{"a", "b", ""}, splitLines("a\r\nb\n"))
	assert.Equal(t, []string{""}, splitLines(""))
}

func TestLineIndent(t *testing.T) {
	lines := []string{"int f(void)", "\t\treturn 0;", "  x;", ""}
	assert.Equal(t, "", lineIndent(lines, 0))
	assert.Equal(t, "\t\t", lineIndent(lines, 1))
	assert.Equal(t, "  ", lineIndent(lines, 2))
	assert.Equal(t, "", lineIndent(lines, 3))
	assert.Equal(t, "", lineIndent(lines, 10))
	assert.Equal(t, "", lineIndent(lines, -1))
}

func TestURIToPath(t *testing.T) {
	assert.Equal(t, "/src/prog.bpf.c", uriToPath("file:///src/prog.bpf.c"))
	assert.Equal(t, "untitled:1", uriToPath("untitled:1"))
}

// --- Document store tests ---

func TestDocumentStore(t *testing.T) {
	store := NewDocumentStore()
	assert.Nil(t, store.Get("file:///a.bpf.c"))

	doc := store.Open("file:///a.bpf.c", 1, kprobeSrc)
	require.NotNil(t, doc)
	assert.Same(t, doc, store.Get("file:///a.bpf.c"))
	assert.NotNil(t, doc.root)
	assert.NoError(t, doc.parseErr)
	assert.Len(t, doc.lines, 6)

	changed := store.Change("file:///a.bpf.c", 2, "int x; /* open")
	assert.Same(t, doc, changed)
	assert.Equal(t, int32(2), changed.Version)
	assert.Error(t, changed.parseErr)
	assert.False(t, changed.linted)

	// A change for a document never opened still tracks it.
	other := store.Change("file:///b.bpf.c", 3, tracepointSrc)
	assert.Equal(t, int32(3), other.Version)
	assert.Same(t, other, store.Get("file:///b.bpf.c"))

	store.Close("file:///a.bpf.c")
	assert.Nil(t, store.Get("file:///a.bpf.c"))
}

// --- Server lifecycle tests ---

func TestInitialize(t *testing.T) {
	s := testServer()
	result, err := s.initialize(mockContext(), &protocol.InitializeParams{})
	require.NoError(t, err)

	init, ok := result.(protocol.InitializeResult)
	require.True(t, ok)
	require.NotNil(t, init.ServerInfo)
	assert.Equal(t, serverName, init.ServerInfo.Name)

	syncOpts, ok := init.Capabilities.TextDocumentSync.(*protocol.TextDocumentSyncOptions)
	require.True(t, ok)
	require.NotNil(t, syncOpts.Change)
	assert.Equal(t, protocol.TextDocumentSyncKindFull, *syncOpts.Change)

	actions, ok := init.Capabilities.CodeActionProvider.(*protocol.CodeActionOptions)
	require.True(t, ok)
	assert.Equal(t, []protocol.CodeActionKind{protocol.CodeActionKindQuickFix}, actions.CodeActionKinds)
}

func TestExit(t *testing.T) {
	s := New()
	code := -1
	s.exitFn = func(c int) { code = c }
	require.NoError(t, s.shutdown(mockContext()))
	require.NoError(t, s.exit(mockContext()))
	assert.Equal(t, 0, code)
}

// --- Diagnostics tests ---

func TestPublishOnOpen(t *testing.T) {
	s := testServer(WithLogger(bpflinttest.NewSlog(t)))
	ctx, log := capturingContext()
	didOpen(t, s, ctx, "file:///src/probe.bpf.c", kprobeSrc)

	require.Equal(t, 1, log.len())
	pub := log.last()
	assert.Equal(t, "file:///src/probe.bpf.c", pub.URI)
	require.NotNil(t, pub.Version)
	assert.Equal(t, protocol.UInteger(1), *pub.Version)
	require.Len(t, pub.Diagnostics, 1)

	d := pub.Diagnostics[0]
	require.NotNil(t, d.Code)
	assert.Equal(t, "unstable-attach-point", d.Code.Value)
	require.NotNil(t, d.Source)
	assert.Equal(t, diagnosticSource, *d.Source)
	require.NotNil(t, d.Severity)
	assert.Equal(t, protocol.DiagnosticSeverityWarning, *d.Severity)
	assert.Equal(t, protocol.Range{
		Start: protocol.Position{Line: 0, Character: 0},
		End:   protocol.Position{Line: 0, Character: 25},
	}, d.Range)
	assert.Equal(t, "finding", d.Data)
	assert.Contains(t, d.Message, `attach point "kprobe/do_sys_open" is unstable`)
	assert.Contains(t, d.Message, "\nsuggested fix: ")
}

func TestPublishClean(t *testing.T) {
	s := testServer()
	ctx, log := capturingContext()
	didOpen(t, s, ctx, "file:///src/tp.bpf.c", tracepointSrc)

	require.Equal(t, 1, log.len())
	assert.NotNil(t, log.last().Diagnostics)
	assert.Empty(t, log.last().Diagnostics)
}

func TestPublishParseError(t *testing.T) {
	s := testServer()
	ctx, log := capturingContext()
	didOpen(t, s, ctx, "file:///src/bad.bpf.c", "int x; /* open")

	require.Equal(t, 1, log.len())
	diags := log.last().Diagnostics
	require.Len(t, diags, 1)
	require.NotNil(t, diags[0].Severity)
	assert.Equal(t, protocol.DiagnosticSeverityError, *diags[0].Severity)
	assert.Equal(t, "unterminated block comment", diags[0].Message)
	assert.Equal(t, protocol.Position{Line: 0, Character: 7}, diags[0].Range.Start)
}

func TestPublishWarnings(t *testing.T) {
	s := testServer()
	ctx, log := capturingContext()
	src := "/* bpflint: disable=no-such-lint */\n" + tracepointSrc
	didOpen(t, s, ctx, "file:///src/w.bpf.c", src)

	diags := log.last().Diagnostics
	require.Len(t, diags, 1)
	require.NotNil(t, diags[0].Code)
	assert.Equal(t, "unknown-lint", diags[0].Code.Value)
	assert.Contains(t, diags[0].Message, `"no-such-lint"`)
	assert.Equal(t, protocol.UInteger(0), diags[0].Range.Start.Line)
	assert.Nil(t, diags[0].Data, "warnings offer no quick fix")
}

func TestPublishInfoSeverity(t *testing.T) {
	s := testServer()
	ctx, log := capturingContext()
	src := "SEC(\"tp/x\")\nint f(void *ctx)\n{\n\tbpf_printk(\"hi\");\n\treturn 0;\n}\n"
	didOpen(t, s, ctx, "file:///src/p.bpf.c", src)

	diags := log.last().Diagnostics
	require.Len(t, diags, 1)
	assert.Equal(t, "trace-printk", diags[0].Code.Value)
	assert.Equal(t, protocol.DiagnosticSeverityInformation, *diags[0].Severity)
	assert.Equal(t, protocol.Position{Line: 3, Character: 1}, diags[0].Range.Start)
}

func TestWithLinterConfig(t *testing.T) {
	cfg := lint.NewConfig().Disable("unstable-attach-point")
	s := testServer(WithLinter(&lint.Linter{Config: cfg}))
	ctx, log := capturingContext()
	didOpen(t, s, ctx, "file:///src/probe.bpf.c", kprobeSrc)
	assert.Empty(t, log.last().Diagnostics)

	cfg = lint.NewConfig().SetSeverity("unstable-attach-point", lint.SeverityError)
	s = testServer(WithLinter(&lint.Linter{Config: cfg}))
	ctx, log = capturingContext()
	didOpen(t, s, ctx, "file:///src/probe.bpf.c", kprobeSrc)
	require.Len(t, log.last().Diagnostics, 1)
	assert.Equal(t, protocol.DiagnosticSeverityError, *log.last().Diagnostics[0].Severity)
}

func TestDidSavePublishesImmediately(t *testing.T) {
	s := testServer()
	ctx, log := capturingContext()
	didOpen(t, s, ctx, "file:///src/probe.bpf.c", kprobeSrc)

	err := s.textDocumentDidChange(ctx, &protocol.DidChangeTextDocumentParams{
		TextDocument: protocol.VersionedTextDocumentIdentifier{
			TextDocumentIdentifier: protocol.TextDocumentIdentifier{URI: "file:///src/probe.bpf.c"},
			Version:                2,
		},
		ContentChanges: []any{protocol.TextDocumentContentChangeEventWhole{Text: tracepointSrc}},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, log.len(), "changes are debounced")

	err = s.textDocumentDidSave(ctx, &protocol.DidSaveTextDocumentParams{
		TextDocument: protocol.TextDocumentIdentifier{URI: "file:///src/probe.bpf.c"},
	})
	require.NoError(t, err)
	require.Equal(t, 2, log.len())
	assert.Equal(t, protocol.UInteger(2), *log.last().Version)
	assert.Empty(t, log.last().Diagnostics)

	// The save cancelled the pending debounced run.
	time.Sleep(debounceDelay + 100*time.Millisecond)
	assert.Equal(t, 2, log.len())
}

func TestDidChangeDebounced(t *testing.T) {
	s := testServer(WithLogger(bpflinttest.NewSlog(t)))
	ctx, log := capturingContext()
	didOpen(t, s, ctx, "file:///src/tp.bpf.c", tracepointSrc)

	change := func(version int32, text string) {
		err := s.textDocumentDidChange(ctx, &protocol.DidChangeTextDocumentParams{
			TextDocument: protocol.VersionedTextDocumentIdentifier{
				TextDocumentIdentifier: protocol.TextDocumentIdentifier{URI: "file:///src/tp.bpf.c"},
				Version:                version,
			},
			ContentChanges: []any{protocol.TextDocumentContentChangeEventWhole{Text: text}},
		})
		require.NoError(t, err)
	}
	change(2, "int x; /* open")
	change(3, kprobeSrc)

	require.Eventually(t, func() bool { return log.len() == 2 }, 2*time.Second, 20*time.Millisecond)
	pub := log.last()
	assert.Equal(t, protocol.UInteger(3), *pub.Version)
	require.Len(t, pub.Diagnostics, 1)
	assert.Equal(t, "unstable-attach-point", pub.Diagnostics[0].Code.Value)
}

func TestDidCloseClears(t *testing.T) {
	s := testServer()
	ctx, log := capturingContext()
	didOpen(t, s, ctx, "file:///src/probe.bpf.c", kprobeSrc)
	require.Len(t, log.last().Diagnostics, 1)

	err := s.textDocumentDidClose(ctx, &protocol.DidCloseTextDocumentParams{
		TextDocument: protocol.TextDocumentIdentifier{URI: "file:///src/probe.bpf.c"},
	})
	require.NoError(t, err)
	require.Equal(t, 2, log.len())
	assert.NotNil(t, log.last().Diagnostics)
	assert.Empty(t, log.last().Diagnostics)
	assert.Nil(t, s.docs.Get("file:///src/probe.bpf.c"))
}

func TestEnsureLintedCaches(t *testing.T) {
	s := testServer()
	doc := openDoc(s, "file:///src/probe.bpf.c", kprobeSrc)
	s.ensureLinted(doc)
	require.NotNil(t, doc.result)
	first := doc.result
	s.ensureLinted(doc)
	assert.Same(t, first, doc.result)
	assert.Equal(t, "/src/probe.bpf.c", doc.result.File)

	s.docs.Change(doc.URI, 2, tracepointSrc)
	assert.Nil(t, doc.result)
	s.ensureLinted(doc)
	require.NotNil(t, doc.result)
	assert.Empty(t, doc.result.Diagnostics)
}

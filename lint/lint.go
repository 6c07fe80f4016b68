// Copyright © 2024 The bpflint authors

// Package lint provides static analysis for BPF C source files.
//
// The linter is modeled after go vet: each check is an independent Rule
// that receives a parsed syntax tree and reports findings. The framework
// handles parsing, resolving disable directives, running rules, filtering
// suppressed findings and ordering the output.
//
// Findings can be suppressed for the syntactic unit that follows a comment
// of the form
//
//	/* bpflint: disable=<lint-name> */
//
// Rules are registered in a Registry; DefaultRegistry holds the built-in set.
package lint

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/luthersystems/bpflint/parser"
	"github.com/luthersystems/bpflint/parser/ast"
	"github.com/luthersystems/bpflint/parser/token"
)

const tracerName = "github.com/luthersystems/bpflint/lint"

// Severity indicates the severity level of a lint diagnostic.
type Severity int

const (
	severityUnset Severity = iota // unexported zero sentinel for default detection
	SeverityError
	SeverityWarning
	SeverityInfo
)

func (s Severity) String() string {
	switch s {
	case SeverityError:
		return "error"
	case SeverityWarning:
		return "warning"
	case SeverityInfo:
		return "info"
	default:
		return "unknown"
	}
}

// ParseSeverity returns the severity named by s.
func ParseSeverity(s string) (Severity, error) {
	switch s {
	case "error":
		return SeverityError, nil
	case "warning":
		return SeverityWarning, nil
	case "info":
		return SeverityInfo, nil
	}
	return severityUnset, fmt.Errorf("unknown severity: %q", s)
}

// MarshalJSON serializes the severity as a JSON string.
// An unset severity (zero value) is marshaled as "warning".
func (s Severity) MarshalJSON() ([]byte, error) {
	if s == severityUnset {
		return json.Marshal("warning")
	}
	return json.Marshal(s.String())
}

// UnmarshalJSON deserializes a severity from a JSON string.
func (s *Severity) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	sev, err := ParseSeverity(str)
	if err != nil {
		return err
	}
	*s = sev
	return nil
}

// Kind distinguishes ordinary findings from internal rule faults.
type Kind int

const (
	KindFinding Kind = iota
	KindRuleFailure
)

func (k Kind) String() string {
	if k == KindRuleFailure {
		return "rule-failure"
	}
	return "finding"
}

// MarshalJSON serializes the kind as a JSON string.
func (k Kind) MarshalJSON() ([]byte, error) {
	return json.Marshal(k.String())
}

// Rule defines a single lint check.
type Rule struct {
	// Name is a short identifier for this check (e.g. "probe-read").  It is
	// the name used in disable directives.
	Name string

	// Doc is a human-readable description. The first line is a short summary.
	Doc string

	// Severity is the default severity for diagnostics from this rule.
	Severity Severity

	// Run executes the check. It should call pass.Report() for each finding.
	// Run must not modify the tree.
	Run func(pass *Pass) error
}

// Summary returns the first line of the rule's documentation.
func (r *Rule) Summary() string {
	summary, _, _ := strings.Cut(r.Doc, "\n")
	return summary
}

// Pass provides context to a running rule.
type Pass struct {
	// Rule is the currently running check.
	Rule *Rule

	// Filename is the source file being analyzed.
	Filename string

	// Source is the text of the file.
	Source []byte

	// Root is the parsed translation unit.
	Root *ast.Node

	// diagnostics collects reported findings.
	diagnostics []Diagnostic
}

// Report records a diagnostic finding.
func (p *Pass) Report(d Diagnostic) {
	d.Lint = p.Rule.Name
	d.Kind = KindFinding
	if d.Severity == severityUnset {
		d.Severity = p.Rule.Severity
	}
	if d.Pos.File == "" {
		d.Pos.File = p.Filename
		d.End.File = p.Filename
	}
	p.diagnostics = append(p.diagnostics, d)
}

// Reportf is a convenience for reporting a finding covering the given span.
func (p *Pass) Reportf(span token.Span, format string, args ...interface{}) {
	p.Report(p.diagnostic(span, fmt.Sprintf(format, args...)))
}

// ReportWithFix reports a finding along with suggested replacement text.
func (p *Pass) ReportWithFix(span token.Span, fix string, format string, args ...interface{}) {
	d := p.diagnostic(span, fmt.Sprintf(format, args...))
	d.Fix = fix
	p.Report(d)
}

func (p *Pass) diagnostic(span token.Span, msg string) Diagnostic {
	return Diagnostic{
		Pos:     MakePosition(p.Filename, span.Start),
		End:     MakePosition(p.Filename, span.End),
		Message: msg,
	}
}

// Diagnostic is a single reported problem.
type Diagnostic struct {
	// Pos is the start of the offending source text.
	Pos Position `json:"pos"`

	// End is the exclusive end of the offending source text.
	End Position `json:"end"`

	// Message is a human-readable description of the problem.
	Message string `json:"message"`

	// Lint is the name of the rule that found this problem.
	Lint string `json:"lint"`

	// Severity is the severity level of the diagnostic.
	Severity Severity `json:"severity"`

	// Kind is KindRuleFailure when the rule itself failed.
	Kind Kind `json:"kind"`

	// Fix is optional suggested replacement text.
	Fix string `json:"fix,omitempty"`

	// Notes are optional hint text lines for the user.
	Notes []string `json:"notes,omitempty"`
}

// Span returns the source range covered by the diagnostic.
func (d Diagnostic) Span() token.Span {
	return token.Span{Start: d.Pos.Token(), End: d.End.Token()}
}

// String returns the diagnostic in go vet style: file:line:col: message (lint)
// with optional note lines appended.
func (d Diagnostic) String() string {
	s := fmt.Sprintf("%s: %s (%s)", d.Pos, d.Message, d.Lint)
	if d.Fix != "" {
		s += "\n  = help: " + d.Fix
	}
	for _, n := range d.Notes {
		s += "\n  = note: " + n
	}
	return s
}

// Position identifies a location in source code.  Line and Col are
// 1-based; Offset is a byte offset.
type Position struct {
	File   string `json:"file"`
	Line   int    `json:"line"`
	Col    int    `json:"col,omitempty"`
	Offset int    `json:"offset"`
}

// MakePosition converts a token position into a Position in file.
func MakePosition(file string, pos token.Position) Position {
	return Position{File: file, Line: pos.Line, Col: pos.Col, Offset: pos.Offset}
}

// Token returns the equivalent token position.
func (p Position) Token() token.Position {
	return token.Position{Offset: p.Offset, Line: p.Line, Col: p.Col}
}

// String returns the position in file:line:col format.
func (p Position) String() string {
	if p.Line == 0 {
		return p.File
	}
	if p.Col > 0 {
		return fmt.Sprintf("%s:%d:%d", p.File, p.Line, p.Col)
	}
	return fmt.Sprintf("%s:%d", p.File, p.Line)
}

// Result holds everything reported for one file.
type Result struct {
	File        string       `json:"file"`
	Diagnostics []Diagnostic `json:"diagnostics"`
	Warnings    []Warning    `json:"warnings,omitempty"`
}

// Config controls which rules are enabled and their severity.
type Config struct {
	// DisabledRules contains rule IDs to skip
	DisabledRules map[string]bool

	// SeverityOverrides changes the default severity of rules
	SeverityOverrides map[string]Severity
}

// NewConfig creates a default configuration with all rules enabled.
func NewConfig() *Config {
	return &Config{
		DisabledRules:     make(map[string]bool),
		SeverityOverrides: make(map[string]Severity),
	}
}

// IsDisabled returns true if the rule should be skipped.
func (c *Config) IsDisabled(ruleID string) bool {
	if c == nil {
		return false
	}
	return c.DisabledRules[ruleID]
}

// GetSeverity returns the severity for a rule, applying any override.
func (c *Config) GetSeverity(ruleID string, defaultSeverity Severity) Severity {
	if c != nil {
		if sev, ok := c.SeverityOverrides[ruleID]; ok {
			return sev
		}
	}
	return defaultSeverity
}

// Disable disables a rule by ID.
func (c *Config) Disable(ruleID string) *Config {
	c.DisabledRules[ruleID] = true
	return c
}

// SetSeverity overrides the severity for a rule.
func (c *Config) SetSeverity(ruleID string, severity Severity) *Config {
	c.SeverityOverrides[ruleID] = severity
	return c
}

// Linter runs the rules of a registry over source files.  The zero value
// uses the default registry with every rule enabled.
type Linter struct {
	// Registry holds the rules to run.  Nil means DefaultRegistry().
	Registry *Registry

	// Config disables rules and overrides severities.  May be nil.
	Config *Config

	// TracerProvider receives per-file and per-rule spans.  Nil means the
	// global provider.
	TracerProvider trace.TracerProvider
}

func (l *Linter) registry() *Registry {
	if l.Registry == nil {
		return DefaultRegistry()
	}
	return l.Registry
}

func (l *Linter) tracer() trace.Tracer {
	if l.TracerProvider == nil {
		return otel.GetTracerProvider().Tracer(tracerName)
	}
	return l.TracerProvider.Tracer(tracerName)
}

// Lint analyzes a single source file.  An error is returned only when the
// file cannot be tokenized, in which case it is a *token.ParseError.
func (l *Linter) Lint(source []byte, filename string) (*Result, error) {
	return l.LintContext(context.Background(), source, filename)
}

// LintContext is like Lint but traces under ctx and returns ctx's error if
// it is done before the rules finish.
func (l *Linter) LintContext(ctx context.Context, source []byte, filename string) (*Result, error) {
	ctx, span := l.tracer().Start(ctx, "lint.file", trace.WithAttributes(
		semconv.CodeFilepath(filename),
		attribute.Int("bpflint.source_bytes", len(source)),
	))
	defer span.End()

	root, err := parser.Parse(filename, source)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "parse failed")
		return nil, err
	}

	reg := l.registry()
	suppressions, warnings := ResolveSuppressions(root, reg)
	for i := range warnings {
		warnings[i].Pos.File = filename
		warnings[i].End.File = filename
	}

	var rules []*Rule
	for _, rule := range reg.Rules() {
		if !l.Config.IsDisabled(rule.Name) {
			rules = append(rules, rule)
		}
	}

	results := make([][]Diagnostic, len(rules))
	g, gctx := errgroup.WithContext(ctx)
	for i, rule := range rules {
		g.Go(func() error {
			results[i] = l.runRule(gctx, rule, &Pass{
				Rule:     rule,
				Filename: filename,
				Source:   source,
				Root:     root,
			})
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "canceled")
		return nil, err
	}

	all := make([]Diagnostic, 0)
	for _, diags := range results {
		for _, d := range diags {
			if d.Kind == KindFinding {
				if suppressions.Covers(root, d.Span(), d.Lint) {
					continue
				}
				d.Severity = l.Config.GetSeverity(d.Lint, d.Severity)
			}
			all = append(all, d)
		}
	}
	SortDiagnostics(all)

	span.SetAttributes(
		attribute.Int("bpflint.diagnostics", len(all)),
		attribute.Int("bpflint.warnings", len(warnings)),
	)
	return &Result{File: filename, Diagnostics: all, Warnings: warnings}, nil
}

// runRule executes a single rule in isolation.  An error or panic from the
// rule is converted into a single rule-failure diagnostic.
func (l *Linter) runRule(ctx context.Context, rule *Rule, pass *Pass) (diags []Diagnostic) {
	_, span := l.tracer().Start(ctx, "lint.rule", trace.WithAttributes(
		semconv.CodeFunction(rule.Name),
		semconv.CodeFilepath(pass.Filename),
	))
	defer span.End()
	defer func() {
		if r := recover(); r != nil {
			reason := fmt.Sprintf("panic: %v", r)
			span.SetStatus(codes.Error, reason)
			diags = []Diagnostic{ruleFailure(rule, pass.Filename, reason)}
		}
	}()
	if err := rule.Run(pass); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return []Diagnostic{ruleFailure(rule, pass.Filename, err.Error())}
	}
	span.SetAttributes(attribute.Int("bpflint.findings", len(pass.diagnostics)))
	return pass.diagnostics
}

func ruleFailure(rule *Rule, filename, reason string) Diagnostic {
	start := Position{File: filename, Line: 1, Col: 1}
	return Diagnostic{
		Pos:      start,
		End:      start,
		Message:  fmt.Sprintf("rule %s failed: %s", rule.Name, reason),
		Lint:     rule.Name,
		Severity: SeverityError,
		Kind:     KindRuleFailure,
	}
}

// SortDiagnostics orders diagnostics by start offset, then lint name, then
// end offset, then message.
func SortDiagnostics(diags []Diagnostic) {
	sort.SliceStable(diags, func(i, j int) bool {
		a, b := diags[i], diags[j]
		if a.Pos.File != b.Pos.File {
			return a.Pos.File < b.Pos.File
		}
		if a.Pos.Offset != b.Pos.Offset {
			return a.Pos.Offset < b.Pos.Offset
		}
		if a.Lint != b.Lint {
			return a.Lint < b.Lint
		}
		if a.End.Offset != b.End.Offset {
			return a.End.Offset < b.End.Offset
		}
		return a.Message < b.Message
	})
}

// Lint analyzes src with the default registry and configuration.
func Lint(src []byte) (*Result, error) {
	return (&Linter{}).Lint(src, "")
}

// ListLints describes every rule in the default registry, sorted by name.
func ListLints() []Info {
	return DefaultRegistry().List()
}

// FormatText writes diagnostics and warnings in go vet text format.
func FormatText(w io.Writer, r *Result) {
	for _, d := range r.Diagnostics {
		fmt.Fprintln(w, d.String()) //nolint:errcheck // best-effort output to writer
	}
	for _, warn := range r.Warnings {
		fmt.Fprintln(w, warn.String()) //nolint:errcheck // best-effort output to writer
	}
}

// FormatJSON writes results as JSON.
func FormatJSON(w io.Writer, results []*Result) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(results)
}

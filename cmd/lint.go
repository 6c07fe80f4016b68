// Copyright © 2024 The bpflint authors

package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"runtime"
	"time"

	"github.com/muesli/reflow/indent"
	"github.com/muesli/reflow/wordwrap"
	"golang.org/x/sync/errgroup"

	"github.com/luthersystems/bpflint/diagnostic"
	"github.com/luthersystems/bpflint/lint"
	"github.com/luthersystems/bpflint/parser/token"
)

// fileReport is the outcome of linting one file.
type fileReport struct {
	path   string // as given on the command line
	name   string // as shown in reports
	source []byte
	result *lint.Result
	err    error
}

func (a *app) runLint(flags *lintFlags, args []string) error {
	if flags.printLints {
		if len(args) > 0 {
			return usageError(errors.New("--print-lints cannot be combined with source files"))
		}
		return a.printLints()
	}
	if len(args) == 0 {
		return usageError(errors.New("no source files given"))
	}

	linter, err := a.linter()
	if err != nil {
		return err
	}
	paths, err := expandArgs(args, flags.excludes)
	if err != nil {
		return usageError(err)
	}
	a.log.Info("linting", "files", len(paths), "jobs", a.jobs())

	tp, shutdown, err := startTracing(flags.traceFile)
	if err != nil {
		return usageError(err)
	}
	linter.TracerProvider = tp
	reports := a.lintFiles(context.Background(), linter, paths)
	if err := shutdown(context.Background()); err != nil {
		a.log.Warn("flushing traces", "error", err)
	}

	var found int
	if flags.json {
		found, err = a.reportJSON(reports)
	} else {
		found, err = a.reportText(reports)
	}
	if err != nil {
		return err
	}
	if found > 0 {
		return &exitError{code: exitFindings}
	}
	return nil
}

func (a *app) jobs() int {
	if a.cfg.Jobs > 0 {
		return a.cfg.Jobs
	}
	return runtime.GOMAXPROCS(0)
}

// lintFiles lints paths on a bounded pool of workers.  Reports are returned
// in the order of paths.  A failure in one file never affects the others.
func (a *app) lintFiles(ctx context.Context, l *lint.Linter, paths []string) []fileReport {
	var stdin []byte
	var stdinErr error
	for _, p := range paths {
		if p == stdinArg {
			stdin, stdinErr = io.ReadAll(a.stdin)
			if stdinErr != nil {
				stdinErr = fmt.Errorf("reading stdin: %w", stdinErr)
			}
			break
		}
	}

	reports := make([]fileReport, len(paths))
	var g errgroup.Group
	g.SetLimit(a.jobs())
	for i, path := range paths {
		g.Go(func() error {
			r := fileReport{path: path, name: path}
			if path == stdinArg {
				r.name = stdinName
				r.source, r.err = stdin, stdinErr
			} else {
				r.source, r.err = os.ReadFile(path) //nolint:gosec // CLI tool reads user-specified files
				if r.err != nil {
					r.err = fmt.Errorf("reading %s: %w", path, r.err)
				}
			}
			if r.err == nil {
				a.lintFile(ctx, l, &r)
			}
			reports[i] = r
			return nil
		})
	}
	_ = g.Wait()
	return reports
}

func (a *app) lintFile(ctx context.Context, l *lint.Linter, r *fileReport) {
	if a.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.cfg.Timeout)
		defer cancel()
	}
	start := time.Now()
	res, err := l.LintContext(ctx, r.source, r.name)
	if err != nil {
		var perr *token.ParseError
		if !errors.As(err, &perr) {
			err = fmt.Errorf("linting %s: %w", r.name, err)
		}
		a.log.Debug("lint failed", "path", r.name, "error", err)
		r.err = err
		return
	}
	if r.path != stdinArg && !hasBPFExt(r.path) {
		res.Diagnostics = append([]lint.Diagnostic{extensionDiagnostic(r.path)}, res.Diagnostics...)
	}
	a.log.Log(ctx, LevelTrace, "linted file",
		"path", r.name,
		"diagnostics", len(res.Diagnostics),
		"warnings", len(res.Warnings),
		"elapsed", time.Since(start))
	r.result = res
}

// reportText renders findings to stdout and failures to stderr.  It
// returns the number of things reported.
func (a *app) reportText(reports []fileReport) (int, error) {
	sources := make(map[string][]byte, len(reports))
	var diags, failures []diagnostic.Diagnostic
	for _, r := range reports {
		sources[r.name] = r.source
		if r.err != nil {
			failures = append(failures, errorToDiagnostic(r.err))
			continue
		}
		for _, d := range r.result.Diagnostics {
			diags = append(diags, lintDiagToDiagnostic(d))
		}
		for _, w := range r.result.Warnings {
			diags = append(diags, warningToDiagnostic(w))
		}
	}

	before, after := a.cfg.ContextLines()
	renderer := &diagnostic.Renderer{
		Color:  a.cfg.ColorMode(),
		Before: before,
		After:  after,
		SourceReader: func(name string) ([]byte, error) {
			if src, ok := sources[name]; ok {
				return src, nil
			}
			return nil, fmt.Errorf("%s: no source", name)
		},
	}
	if err := renderer.RenderAll(a.stdout, diags); err != nil {
		return 0, fmt.Errorf("writing report: %w", err)
	}
	_ = renderer.RenderAll(a.stderr, failures)
	return len(diags) + len(failures), nil
}

// reportJSON writes the results of every linted file to stdout as one JSON
// array.  Failures are reported on stderr.
func (a *app) reportJSON(reports []fileReport) (int, error) {
	found := 0
	results := make([]*lint.Result, 0, len(reports))
	for _, r := range reports {
		if r.err != nil {
			found++
			fmt.Fprintf(a.stderr, "bpflint: %v\n", r.err) //nolint:errcheck // best-effort error output
			continue
		}
		found += len(r.result.Diagnostics) + len(r.result.Warnings)
		results = append(results, r.result)
	}
	if err := lint.FormatJSON(a.stdout, results); err != nil {
		return 0, fmt.Errorf("writing report: %w", err)
	}
	return found, nil
}

// printLints lists the registered lints.  With -v each name is followed by
// its severity and description.
func (a *app) printLints() error {
	for i, info := range a.resolveRegistry().List() {
		var err error
		if a.verbose == 0 {
			_, err = fmt.Fprintln(a.stdout, info.Name)
		} else {
			if i > 0 {
				fmt.Fprintln(a.stdout) //nolint:errcheck // checked below
			}
			_, err = fmt.Fprintf(a.stdout, "%s (%s)\n%s\n", info.Name, info.Severity,
				indent.String(wordwrap.String(info.Doc, 72), 4))
		}
		if err != nil {
			return err
		}
	}
	return nil
}

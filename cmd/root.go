// Copyright © 2024 The bpflint authors

// Package cmd implements the bpflint command line.
package cmd

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/luthersystems/bpflint/config"
	"github.com/luthersystems/bpflint/lint"
)

// Exit codes.
const (
	exitOK       = 0 // nothing reported
	exitFindings = 1 // diagnostics were reported or a file failed
	exitUsage    = 2 // bad invocation
)

// exitError carries a process exit code out of a command.  A nil err means
// the reason was already reported.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	if e.err == nil {
		return "exit status " + strconv.Itoa(e.code)
	}
	return e.err.Error()
}

func (e *exitError) Unwrap() error { return e.err }

func usageError(err error) error {
	return &exitError{code: exitUsage, err: err}
}

// app holds the state shared by the root command and its subcommands.
type app struct {
	*cmdConfig
	v       *viper.Viper
	cfgFile string
	verbose int
	log     *slog.Logger
	cfg     *config.Config
}

// setup configures logging and loads the configuration.  It runs before
// every command.
func (a *app) setup() error {
	log, err := newLogger(a.stderr, a.verbose, os.Getenv(logEnv))
	if err != nil {
		return usageError(err)
	}
	a.log = log
	if err := config.Read(a.v, a.cfgFile); err != nil {
		return usageError(err)
	}
	if used := a.v.ConfigFileUsed(); used != "" {
		a.log.Debug("using config file", "path", used)
	}
	cfg, err := config.Load(a.v)
	if err != nil {
		return usageError(err)
	}
	a.cfg = cfg
	return nil
}

// linter builds the lint engine from the loaded configuration.
func (a *app) linter() (*lint.Linter, error) {
	reg := a.resolveRegistry()
	lc, err := a.cfg.LintConfig(reg)
	if err != nil {
		return nil, usageError(err)
	}
	return &lint.Linter{Registry: reg, Config: lc}, nil
}

// NewRootCommand returns the bpflint command.  The root command lints its
// arguments; the lsp subcommand starts a language server.
func NewRootCommand(opts ...Option) *cobra.Command {
	return newApp(newCmdConfig(opts)).rootCommand()
}

func newApp(c *cmdConfig) *app {
	return &app{cmdConfig: c, v: config.New()}
}

func (a *app) rootCommand() *cobra.Command {
	var flags lintFlags
	cmd := &cobra.Command{
		Use:   "bpflint [flags] [@]SRCS...",
		Short: "A linter for BPF C code",
		Long: `bpflint reports likely problems in BPF C programs: deprecated helpers,
attach points that break between kernel versions, untyped or legacy map
definitions and debugging leftovers.

Each argument is a source file, a directory followed by "/..." to lint every
*.bpf.c file below it, "@file" to read a newline separated list of paths
from file, or "-" to read a program from standard input.  Reports are
written to standard output.

Exit codes:
  0  No problems found
  1  One or more problems were reported, or a file could not be linted
  2  Bad invocation (invalid flags or configuration)

To suppress a lint for the statement, block or declaration that follows,
add a comment naming it:
  /* bpflint: disable=probe-read */

Available lints (use --print-lints -v for details):
` + lintSummary(a.resolveRegistry()) + `
Examples:
  bpflint prog.bpf.c                        Lint a single file
  bpflint -C 2 src/...                      Lint a tree with two lines of context
  bpflint @files.txt                        Lint every file listed in files.txt
  bpflint --checks=probe-read prog.bpf.c    Run only specific lints
  bpflint --exclude='**/vendor/**' ./...    Skip vendored sources
  bpflint --json prog.bpf.c                 Report as JSON`,
		Args:          cobra.ArbitraryArgs,
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			return a.setup()
		},
		RunE: func(_ *cobra.Command, args []string) error {
			return a.runLint(&flags, args)
		},
	}
	cmd.SetIn(a.stdin)
	cmd.SetOut(a.stdout)
	cmd.SetErr(a.stderr)
	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return usageError(err)
	})

	pf := cmd.PersistentFlags()
	pf.StringVar(&a.cfgFile, "config", "", "config file (default is ./"+config.FileName+".yaml or $HOME/"+config.FileName+".yaml)")
	pf.String("color", "auto", `Control colored output: "auto", "always", or "never".`)
	pf.CountVarP(&a.verbose, "verbose", "v", "Increase verbosity (can be supplied multiple times).")

	f := cmd.Flags()
	f.BoolVar(&flags.printLints, "print-lints", false, "Print a list of available lints and exit.")
	f.BoolVar(&flags.json, "json", false, "Output diagnostics as JSON.")
	f.StringArrayVar(&flags.excludes, "exclude", nil, "Glob pattern for files to exclude (may be repeated).")
	f.StringVar(&flags.traceFile, "trace-file", "", "Write OpenTelemetry spans of the run to this file.")
	f.StringSlice("checks", nil, "Comma-separated list of lints to run (default: all).")
	f.StringSlice("disable", nil, "Comma-separated list of lints to skip.")
	f.VarP(newContextCount(), "before", "B", "Number of lines to show before the error line.")
	f.VarP(newContextCount(), "after", "A", "Number of lines to show after the error line.")
	f.VarP(newContextCount(), "context", "C", "Number of lines to show before and after the error line.")
	f.Int("jobs", 0, "Number of files linted concurrently (default: one per CPU).")
	f.Duration("timeout", 0, "Time limit for linting a single file (default: none).")
	cmd.MarkFlagsMutuallyExclusive("context", "before")
	cmd.MarkFlagsMutuallyExclusive("context", "after")

	for _, name := range []string{"color", "checks", "disable", "before", "after", "context", "jobs", "timeout"} {
		flag := f.Lookup(name)
		if flag == nil {
			flag = pf.Lookup(name)
		}
		_ = a.v.BindPFlag(name, flag)
	}

	cmd.AddCommand(a.lspCommand())
	return cmd
}

// lintSummary lists each lint with the first line of its documentation.
func lintSummary(reg *lint.Registry) string {
	infos := reg.List()
	width := 0
	for _, info := range infos {
		width = max(width, len(info.Name))
	}
	var b strings.Builder
	for _, info := range infos {
		summary, _, _ := strings.Cut(info.Doc, "\n")
		fmt.Fprintf(&b, "  %-*s  %s\n", width, info.Name, summary)
	}
	return b.String()
}

// Run executes bpflint with args and returns the process exit code.
func Run(args []string, opts ...Option) int {
	a := newApp(newCmdConfig(opts))
	cmd := a.rootCommand()
	cmd.SetArgs(args)
	err := cmd.Execute()
	if err == nil {
		return exitOK
	}
	var ee *exitError
	if !errors.As(err, &ee) {
		ee = &exitError{code: exitUsage, err: err}
	}
	if ee.err != nil {
		fmt.Fprintf(a.stderr, "bpflint: %v\n", ee.err) //nolint:errcheck // best-effort error output
		if ee.code == exitUsage {
			fmt.Fprintln(a.stderr, "Run 'bpflint --help' for usage.") //nolint:errcheck // best-effort error output
		}
	}
	return ee.code
}

// Execute runs bpflint with the process arguments and exits.  This is
// called by main.main().
func Execute() {
	os.Exit(Run(os.Args[1:]))
}

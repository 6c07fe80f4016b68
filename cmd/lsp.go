// Copyright © 2024 The bpflint authors

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/luthersystems/bpflint/lsp"
)

// LSPCommand creates the "lsp" cobra command on its own, for embedders that
// mount it under a different root.
func LSPCommand(opts ...Option) *cobra.Command {
	a := newApp(newCmdConfig(opts))
	cmd := a.lspCommand()
	cmd.PersistentPreRunE = func(*cobra.Command, []string) error { return a.setup() }
	return cmd
}

func (a *app) lspCommand() *cobra.Command {
	var (
		stdio bool
		port  int
	)

	cmd := &cobra.Command{
		Use:   "lsp [flags]",
		Short: "Start the bpflint Language Server Protocol server",
		Long: `Start an LSP server for BPF C source files.

The language server lints documents as they are opened, edited and saved
and publishes the findings as diagnostics.  Each finding offers a quick fix
that inserts a disable directive above the offending line.  Lints disabled
and severities set in the configuration file apply.

Transport modes:
  --stdio      Use stdin/stdout for LSP communication (default)
  --port N     Listen for an LSP client on TCP port N

Examples:
  bpflint lsp                        Start with stdio transport
  bpflint lsp --port 7998            Start with TCP on port 7998`,
		Args: cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			linter, err := a.linter()
			if err != nil {
				return err
			}
			srv := lsp.New(lsp.WithLinter(linter), lsp.WithLogger(a.log))
			if !stdio && port > 0 {
				addr := fmt.Sprintf("localhost:%d", port)
				a.log.Info("bpflint LSP server listening", "addr", addr)
				err = srv.RunTCP(addr)
			} else {
				err = srv.RunStdio()
			}
			if err != nil {
				return &exitError{code: exitFindings, err: fmt.Errorf("lsp server: %w", err)}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&stdio, "stdio", false,
		"Use stdin/stdout for LSP communication (default behavior)")
	cmd.Flags().IntVar(&port, "port", 0,
		"TCP port for LSP server (use instead of --stdio)")

	return cmd
}

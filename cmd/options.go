// Copyright © 2024 The bpflint authors

package cmd

import (
	"io"
	"os"

	"github.com/luthersystems/bpflint/lint"
)

// Option configures the command factories (NewRootCommand, LSPCommand).
type Option func(*cmdConfig)

type cmdConfig struct {
	registry *lint.Registry
	stdin    io.Reader
	stdout   io.Writer
	stderr   io.Writer
}

func newCmdConfig(opts []Option) *cmdConfig {
	c := &cmdConfig{
		stdin:  os.Stdin,
		stdout: os.Stdout,
		stderr: os.Stderr,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// WithRegistry replaces the built-in lints with those of reg.  Embedders use
// it to add project specific rules.
func WithRegistry(reg *lint.Registry) Option {
	return func(c *cmdConfig) { c.registry = reg }
}

// WithIO replaces the standard streams.  Reports go to stdout; errors and
// log output go to stderr.
func WithIO(stdin io.Reader, stdout, stderr io.Writer) Option {
	return func(c *cmdConfig) {
		c.stdin = stdin
		c.stdout = stdout
		c.stderr = stderr
	}
}

// resolveRegistry returns the registry supplied through WithRegistry or the
// default one.
func (c *cmdConfig) resolveRegistry() *lint.Registry {
	if c.registry != nil {
		return c.registry
	}
	return lint.DefaultRegistry()
}

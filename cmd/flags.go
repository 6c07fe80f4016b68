// Copyright © 2024 The bpflint authors

package cmd

import (
	"fmt"
	"strconv"

	"github.com/spf13/pflag"
)

// lintFlags are the root command flags that are not configuration
// settings.
type lintFlags struct {
	printLints bool
	json       bool
	excludes   []string
	traceFile  string
}

// contextCount is a number of context lines, 0 through 255.
type contextCount uint8

var _ pflag.Value = new(contextCount)

func newContextCount() *contextCount {
	return new(contextCount)
}

func (c *contextCount) String() string {
	return strconv.Itoa(int(*c))
}

func (c *contextCount) Set(s string) error {
	n, err := parseContextCount(s)
	if err != nil {
		return err
	}
	*c = contextCount(n)
	return nil
}

func (c *contextCount) Type() string {
	return "uint8"
}

func parseContextCount(s string) (uint8, error) {
	n, err := strconv.ParseUint(s, 10, 8)
	if err != nil {
		return 0, fmt.Errorf("invalid context line count: '%s' (must be 0-255)", s)
	}
	return uint8(n), nil
}

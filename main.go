// Copyright © 2024 The bpflint authors

package main

import "github.com/luthersystems/bpflint/cmd"

func main() {
	cmd.Execute()
}

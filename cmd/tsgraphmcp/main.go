// Package main provides the entry point for the tsgraphmcp CLI.
package main

import (
	"os"

	"github.com/couzic/ts-graph-mcp/cmd/tsgraphmcp/cmd"
)

func main() {
	root := cmd.NewRootCmd()
	err := root.Execute()
	os.Exit(cmd.ExitCode(err))
}

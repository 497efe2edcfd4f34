package main

import (
	"fmt"
	"os"

	"github.com/temirov/repofleet/cmd/cli"
)

const (
	exitErrorTemplateConstant = "%s\n"
)

// main executes the repofleet command-line application.
func main() {
	if executionError := cli.Execute(); executionError != nil {
		fmt.Fprintf(os.Stderr, exitErrorTemplateConstant, cli.FormatError(executionError))
		os.Exit(1)
	}
}

package main

import (
	"fmt"
	"os"

	"github.com/tyemirov/autosquash/cmd/cli"
)

const (
	exitErrorTemplateConstant = "%v\n"
)

// main executes the autosquash command-line application.
func main() {
	applicationInstance := cli.NewApplication()
	if executionError := applicationInstance.Execute(); executionError != nil {
		fmt.Fprintf(os.Stderr, exitErrorTemplateConstant, executionError)
		os.Exit(cli.ExitCodeForError(executionError))
	}
}

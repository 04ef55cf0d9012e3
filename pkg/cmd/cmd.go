// Package cmd provides small helpers shared by kobold's command-line
// entry points.
package cmd

import (
	"errors"
	"fmt"
	"os"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

// TerminationSignals are the signals that request a graceful shutdown of the
// worker daemon. SIGABRT and friends are intentionally excluded since the Go
// runtime gives them special handling (e.g. stack dumps).
var TerminationSignals = []os.Signal{
	syscall.SIGINT,
	syscall.SIGTERM,
}

// Warning prints a warning message to standard error.
func Warning(message string) {
	fmt.Fprintln(color.Error, color.YellowString("Warning:"), message)
}

// Error prints an error message to standard error.
func Error(err error) {
	fmt.Fprintln(os.Stderr, "Error:", err)
}

// Fatal prints an error message to standard error and terminates the process
// with a non-zero exit code.
func Fatal(err error) {
	Error(err)
	os.Exit(1)
}

// DisallowArguments is a Cobra arguments validator that rejects positional
// arguments with a clearer message than cobra.NoArgs.
func DisallowArguments(_ *cobra.Command, arguments []string) error {
	if len(arguments) > 0 {
		return errors.New("command does not accept arguments")
	}
	return nil
}

// Mainify wraps a Cobra entry point that returns an error into the standard
// (*cobra.Command, []string) signature expected by cobra.Command.Run,
// routing a returned error through Fatal. This lets the entry point rely on
// defer-based cleanup, which wouldn't run if it called os.Exit directly.
func Mainify(entry func(*cobra.Command, []string) error) func(*cobra.Command, []string) {
	return func(command *cobra.Command, arguments []string) {
		if err := entry(command, arguments); err != nil {
			Fatal(err)
		}
	}
}

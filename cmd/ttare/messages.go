package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/ttare/ttare/internal/terminal"
)

// Printf writes the message to the configured stdout stream.
func Printf(format string, args ...interface{}) {
	_, err := fmt.Fprintf(globalOptions.stdout, format, args...)
	if err != nil {
		fmt.Fprintf(os.Stderr, "unable to write to stdout: %v\n", err)
		Exit(100)
	}
}

// Verbosef calls Printf to write the message when the verbose flag is set.
func Verbosef(format string, args ...interface{}) {
	if globalOptions.verbosity >= 1 {
		Printf(format, args...)
	}
}

// Verboseff calls Printf to write the message when the verbosity is >= 2
func Verboseff(format string, args ...interface{}) {
	if globalOptions.verbosity >= 2 {
		Printf(format, args...)
	}
}

// Warnf writes the message to the configured stderr stream.
func Warnf(format string, args ...interface{}) {
	_, err := fmt.Fprintf(globalOptions.stderr, format, args...)
	if err != nil {
		fmt.Fprintf(os.Stderr, "unable to write to stderr: %v\n", err)
		Exit(100)
	}
}

// clearLine returns a string that clears the current line when written to a
// terminal, so a status line can be overwritten. Terminals without ANSI
// support get the line padded with spaces instead.
func clearLine(length int) string {
	if terminal.StdoutCanUpdateStatus() {
		return terminal.PosixControlMoveCursorHome + terminal.PosixControlClearLine
	}
	if length > 0 {
		return terminal.PosixControlMoveCursorHome + strings.Repeat(" ", length) + terminal.PosixControlMoveCursorHome
	}
	return terminal.PosixControlMoveCursorHome
}

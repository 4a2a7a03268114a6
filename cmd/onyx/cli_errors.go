// SPDX-License-Identifier: Apache-2.0

package main

import (
	stderrors "errors"
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"

	"github.com/jllopis/onyx/pkg/errors"
)

// cliError adds a hint for the user to an error.
type cliError struct {
	err  error
	hint string
}

func (e *cliError) Error() string {
	if e.hint == "" {
		return e.err.Error()
	}
	return e.err.Error() + "\n  Hint: " + e.hint
}

func (e *cliError) Unwrap() error { return e.err }

func withHint(err error, hint string) error {
	if err == nil {
		return nil
	}
	return &cliError{err: err, hint: hint}
}

func printError(err error) {
	writeError(os.Stderr, err)
}

func writeError(w io.Writer, err error) {
	red := color.New(color.FgRed, color.Bold)
	hint := ""
	var ce *cliError
	if stderrors.As(err, &ce) {
		hint = ce.hint
		err = ce.err
	}
	var oe *errors.OnyxError
	if stderrors.As(err, &oe) {
		red.Fprintf(w, "Error [%s]: ", oe.Code)
		if oe.Err != nil {
			fmt.Fprintf(w, "%s: %v\n", oe.Message, oe.Err)
		} else {
			fmt.Fprintln(w, oe.Message)
		}
	} else {
		red.Fprint(w, "Error: ")
		fmt.Fprintln(w, err)
	}
	if hint != "" {
		fmt.Fprintf(w, "  Hint: %s\n", hint)
	}
}

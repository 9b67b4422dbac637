package main

import (
	"errors"
	"fmt"
	"os"
)

// Process exit statuses. Scripts around the collector key off these, so they
// are part of the interface: a conflict is not the same failure as a broken
// disk or a bad key.
const (
	exitOK       = 0
	exitUsage    = 1
	exitConfig   = 2
	exitConflict = 3
	exitIO       = 4
)

// exitError carries the process exit status alongside the cause.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func main() {
	root := buildRoot()
	if err := root.Execute(); err != nil {
		var ee *exitError
		if errors.As(err, &ee) {
			os.Exit(ee.code)
		}
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(exitUsage)
	}
}

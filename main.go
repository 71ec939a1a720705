package main

import (
	"fmt"
	"os"

	"doc-reindexer/internal/errors"
)

const (
	exitFailure       = 1
	exitConfigInvalid = 2
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		if errors.Is(err, errors.Config) {
			os.Exit(exitConfigInvalid)
		}
		os.Exit(exitFailure)
	}
}

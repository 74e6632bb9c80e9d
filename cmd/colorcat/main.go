// Command colorcat prints source files highlighted with TextMate grammars.
package main

import (
	"os"

	"github.com/friedelschoen/go-textmate-doc/internal/logging"
)

func main() {
	os.Exit(run())
}

func run() int {
	if err := newRootCommand().Execute(); err != nil {
		logging.Default().Error("command failed", logging.FieldError, err)
		return 1
	}
	return 0
}

package logger

import (
	"os"

	"golang.org/x/term"
)

// isTerminal reports whether f is attached to a terminal. Colour is only
// used when it is.
func isTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

package ui

import (
	"os"

	"golang.org/x/term"
)

// IsTTY reports whether f is an interactive terminal, in which case
// watch-mode output redraws the screen instead of appending.
func IsTTY(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

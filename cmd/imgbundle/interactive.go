package main

import (
	"errors"
	"os"

	"golang.org/x/term"
)

var errTerminalOutput = errors.New("refusing to write a binary archive to a terminal, redirect stdout or use --output")

func isTerminal(f *os.File) bool {
	if os.Getenv("CI") != "" {
		return false
	}
	return term.IsTerminal(int(f.Fd()))
}

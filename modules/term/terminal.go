// Copyright ©️ Ant Group. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

// Package term detects whether an output stream is attached to a terminal and
// picks a colour mode for it.
package term

import (
	"os"
	"strconv"
	"strings"

	"github.com/mattn/go-isatty"
	xterm "golang.org/x/term"
)

type ColorMode int

const (
	NoColor ColorMode = iota
	HasColor
)

var (
	StderrMode ColorMode
	StdoutMode ColorMode
)

func simpleAtob(s string, dflt bool) bool {
	if s == "" {
		return dflt
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		return dflt
	}
	return b
}

func detectColorMode() ColorMode {
	if simpleAtob(os.Getenv("NO_COLOR"), false) {
		return NoColor
	}
	if simpleAtob(os.Getenv("STG_FORCE_COLOR"), false) {
		return HasColor
	}
	if strings.EqualFold(os.Getenv("TERM"), "dumb") {
		return NoColor
	}
	return HasColor
}

func init() {
	mode := detectColorMode()
	if IsTerminal(os.Stderr.Fd()) {
		StderrMode = mode
	}
	if IsTerminal(os.Stdout.Fd()) {
		StdoutMode = mode
	}
}

// IsTerminal reports whether fd is connected to a terminal.
func IsTerminal(fd uintptr) bool {
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// GetSize reports the terminal dimensions of fd, when it is one.
func GetSize(fd int) (width, height int, err error) {
	return xterm.GetSize(fd)
}

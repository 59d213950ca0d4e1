package models

import (
	"errors"
	"fmt"
	"strings"
)

// Failure classes. Every one is recovered locally and shown to the user; none is fatal.
var (
	ErrMissingFile     = errors.New("missing file")
	ErrToolFailure     = errors.New("conversion step failed")
	ErrParse           = errors.New("unexpected output format")
	ErrDuplicate       = errors.New("file already processed")
	ErrNotFound        = errors.New("no matching data")
	ErrUnsupportedType = errors.New("unsupported file type")
)

// ToolError describes a conversion step that exited with a non-zero status.
type ToolError struct {
	Script   string
	ExitCode int
	Stdout   string
	Stderr   string
}

func (e *ToolError) Error() string {
	msg := fmt.Sprintf("%s exited with status %d", e.Script, e.ExitCode)
	if s := strings.TrimSpace(e.Stderr); s != "" {
		msg += ": " + s
	}
	return msg
}

// Unwrap lets errors.Is(err, ErrToolFailure) match.
func (e *ToolError) Unwrap() error { return ErrToolFailure }

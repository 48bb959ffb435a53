package ptyproxy

import (
	"os"

	"golang.org/x/term"
)

// RawMode captures the user's terminal attributes on construction and
// restores them exactly once, from any exit path, via Restore.
type RawMode struct {
	fd       int
	state    *term.State
	captured bool
}

// CaptureRawMode puts stdin into raw mode if it is a terminal. If stdin is
// not a terminal (e.g. piped input in tests), it is a no-op and Restore
// does nothing - matching the original's "old_tty = None" fallback.
func CaptureRawMode() (*RawMode, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return &RawMode{fd: fd}, nil
	}
	state, err := term.MakeRaw(fd)
	if err != nil {
		return &RawMode{fd: fd}, nil // degrade silently per spec.md §7 category 2
	}
	return &RawMode{fd: fd, state: state, captured: true}, nil
}

// Restore puts the terminal back the way it was. Safe to call when no
// raw-mode switch ever happened.
func (r *RawMode) Restore() {
	if r == nil || !r.captured {
		return
	}
	_ = term.Restore(r.fd, r.state)
}

// Size returns the current terminal dimensions as cols, rows.
func Size() (cols, rows uint16, err error) {
	w, h, err := term.GetSize(int(os.Stdin.Fd()))
	if err != nil {
		return 0, 0, err
	}
	return uint16(w), uint16(h), nil
}

// Package inject implements the injection-channel abstraction: one Writer
// contract with two implementations, chosen once at startup based on
// environment detection rather than per message (spec.md DESIGN NOTES §9).
package inject

import (
	"os"
	"os/exec"
	"time"
)

// Writer delivers formatted text into the agent's input stream as if the
// human had typed it, followed by an Enter keystroke.
type Writer interface {
	Inject(message string) error
}

// masterWriter writes directly to the pty master: a line-clear control,
// a short settle delay, the message bytes, another delay, then CR. This
// mirrors the original's _write_injection fallback path exactly.
type masterWriter struct {
	write func([]byte) (int, error)
}

// NewMasterWriter returns a Writer that injects via direct pty master
// writes. write should be the pty's Write method.
func NewMasterWriter(write func([]byte) (int, error)) Writer {
	return &masterWriter{write: write}
}

func (m *masterWriter) Inject(message string) error {
	if _, err := m.write([]byte{0x15}); err != nil { // Ctrl+U: clear line
		return err
	}
	time.Sleep(20 * time.Millisecond)
	if _, err := m.write([]byte(message)); err != nil {
		return err
	}
	time.Sleep(50 * time.Millisecond)
	_, err := m.write([]byte{0x0d})
	return err
}

// tmuxWriter injects via tmux send-keys, which many TUI agents honor more
// reliably than direct writes to the pty master since it replays through
// the terminal's own input path rather than the raw fd.
type tmuxWriter struct {
	pane string
}

// NewTmuxWriter returns a Writer that injects via `tmux send-keys` into
// pane. Callers should use DetectTmux to decide whether this is available.
func NewTmuxWriter(pane string) Writer {
	return &tmuxWriter{pane: pane}
}

func (t *tmuxWriter) Inject(message string) error {
	if err := exec.Command("tmux", "send-keys", "-t", t.pane, "-l", message).Run(); err != nil {
		return err
	}
	time.Sleep(50 * time.Millisecond)
	return exec.Command("tmux", "send-keys", "-t", t.pane, "Enter").Run()
}

// DetectTmux reports the active tmux pane, if the process is running
// inside a tmux session and the tmux binary is on PATH.
func DetectTmux() (pane string, ok bool) {
	if _, err := exec.LookPath("tmux"); err != nil {
		return "", false
	}
	pane = os.Getenv("TMUX_PANE")
	if pane == "" {
		return "", false
	}
	return pane, true
}

// Select chooses the injection channel once at startup: tmux send-keys
// when available, otherwise a direct master write.
func Select(write func([]byte) (int, error)) Writer {
	if pane, ok := DetectTmux(); ok {
		return NewTmuxWriter(pane)
	}
	return NewMasterWriter(write)
}

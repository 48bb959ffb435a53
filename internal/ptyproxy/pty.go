// Package ptyproxy forks the supervised agent under a pseudo-terminal and
// copies bytes between it and the real terminal, preserving cursor,
// color, and resize fidelity.
package ptyproxy

import (
	"os"
	"os/exec"
	"sync"
	"syscall"

	"github.com/creack/pty"
	"github.com/google/uuid"
)

// Signal is a process signal the proxy can deliver to the agent.
type Signal int

const (
	SIGINT  Signal = Signal(syscall.SIGINT)
	SIGTERM Signal = Signal(syscall.SIGTERM)
	SIGKILL Signal = Signal(syscall.SIGKILL)
)

// PTY wraps the master side of a pseudo-terminal running the agent argv.
type PTY struct {
	ID   string
	file *os.File
	cmd  *exec.Cmd

	mu     sync.Mutex
	closed bool

	doneOnce sync.Once
	doneChan chan struct{}
}

// New forks the given argv under a pty sized cols x rows.
func New(argv []string, cols, rows uint16) (*PTY, error) {
	if len(argv) == 0 {
		return nil, os.ErrInvalid
	}
	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Env = os.Environ()

	ptmx, err := pty.StartWithSize(cmd, &pty.Winsize{Cols: cols, Rows: rows})
	if err != nil {
		return nil, err
	}
	return &PTY{
		ID:   uuid.NewString(),
		file: ptmx,
		cmd:  cmd,
	}, nil
}

// Read reads raw bytes from the agent.
func (p *PTY) Read(buf []byte) (int, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return 0, os.ErrClosed
	}
	f := p.file
	p.mu.Unlock()
	return f.Read(buf)
}

// Write sends raw bytes to the agent, verbatim.
func (p *PTY) Write(data []byte) (int, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return 0, os.ErrClosed
	}
	f := p.file
	p.mu.Unlock()
	return f.Write(data)
}

// Resize propagates a window-size change to the agent's pty slave.
func (p *PTY) Resize(cols, rows uint16) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return os.ErrClosed
	}
	return pty.Setsize(p.file, &pty.Winsize{Cols: cols, Rows: rows})
}

// Signal delivers a signal to the agent process.
func (p *PTY) Signal(sig Signal) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return os.ErrClosed
	}
	if p.cmd.Process == nil {
		return os.ErrProcessDone
	}
	return p.cmd.Process.Signal(syscall.Signal(sig))
}

// Close kills the agent process (if still alive) and releases the master fd.
func (p *PTY) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	if p.cmd.Process != nil {
		p.cmd.Process.Kill()
	}
	return p.file.Close()
}

// Done returns a channel closed when the agent process exits. The wait
// goroutine is started at most once to avoid leaking goroutines across
// repeated Done() calls.
func (p *PTY) Done() <-chan struct{} {
	p.doneOnce.Do(func() {
		p.doneChan = make(chan struct{})
		go func() {
			p.cmd.Wait()
			close(p.doneChan)
		}()
	})
	return p.doneChan
}

// Wait blocks until the agent process exits and returns its exit state.
func (p *PTY) Wait() *os.ProcessState {
	<-p.Done()
	return p.cmd.ProcessState
}

package ptyproxy

import (
	"io"
	"os"
	"os/signal"
	"sync"
	"time"

	"golang.org/x/sys/unix"
)

// pollInterval bounds how long the proxy loop waits between iterations
// when neither side has data ready, matching the original's 100ms select
// timeout (spec.md §4.1).
const pollInterval = 100 * time.Millisecond

// readChunkSize is the maximum bytes read per iteration from either side.
const readChunkSize = 1024

// Hooks are callbacks the proxy loop invokes at well-defined points. All
// are optional; nil hooks are simply skipped.
type Hooks struct {
	// OnAgentOutput is called with every raw chunk read from the agent,
	// after it has been copied verbatim to stdout. Used to feed the
	// sanitizer/flow-controller/command-scanner pipeline.
	OnAgentOutput func(chunk []byte)
	// TryInject is polled once per loop iteration when the agent appears
	// idle and the sidecar is not paused. It should return false if there
	// was nothing ready to deliver.
	TryInject func() bool
	// IsIdle reports whether it is currently safe to opportunistically
	// drain a queued injection.
	IsIdle func() bool
	// Paused reports whether injection delivery is currently suspended.
	Paused func() bool
}

// Proxy drives the bidirectional copy loop between the real terminal and
// the agent's pty, plus window-resize propagation and child reaping.
type Proxy struct {
	pty   *PTY
	hooks Hooks

	shutdownOnce sync.Once
	shutdown     chan struct{}
}

// New creates a proxy for the given pty. Call Run to start the loop.
func New(p *PTY, hooks Hooks) *Proxy {
	return &Proxy{
		pty:      p,
		hooks:    hooks,
		shutdown: make(chan struct{}),
	}
}

// Stop signals the loop to exit at its next suspension point. Idempotent.
func (p *Proxy) Stop() {
	p.shutdownOnce.Do(func() { close(p.shutdown) })
}

// Run executes the select-style loop described in spec.md §4.1. It blocks
// until the agent exits, Stop is called, or reading from the agent fails.
// A read error on standard input does not end the loop.
func (p *Proxy) Run() error {
	p.propagateWinsize()
	winch := make(chan os.Signal, 1)
	signal.Notify(winch, unix.SIGWINCH)
	defer signal.Stop(winch)

	agentOut := make(chan []byte, 16)
	agentErr := make(chan error, 1)
	go p.readLoop(p.pty, agentOut, agentErr)

	userOut := make(chan []byte, 16)
	userErr := make(chan error, 1)
	if isTerminalStdin() {
		go p.readLoop(stdinReader{}, userOut, userErr)
	}

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.shutdown:
			return nil

		case <-p.pty.Done():
			return nil

		case chunk := <-agentOut:
			os.Stdout.Write(chunk)
			if p.hooks.OnAgentOutput != nil {
				p.hooks.OnAgentOutput(chunk)
			}

		case err := <-agentErr:
			if err == io.EOF || err != nil {
				return nil
			}

		case chunk := <-userOut:
			p.pty.Write(chunk)

		case <-userErr:
			// Standard input closed; agent keeps running, nothing to forward.

		case <-winch:
			p.propagateWinsize()

		case <-ticker.C:
			p.maybeInject()
		}
	}
}

func (p *Proxy) maybeInject() {
	if p.hooks.Paused != nil && p.hooks.Paused() {
		return
	}
	if p.hooks.IsIdle != nil && !p.hooks.IsIdle() {
		return
	}
	if p.hooks.TryInject != nil {
		p.hooks.TryInject()
	}
}

func (p *Proxy) propagateWinsize() {
	cols, rows, err := Size()
	if err != nil || cols == 0 || rows == 0 {
		return
	}
	p.pty.Resize(cols, rows)
}

type reader interface {
	Read(buf []byte) (int, error)
}

type stdinReader struct{}

func (stdinReader) Read(buf []byte) (int, error) {
	return os.Stdin.Read(buf)
}

func isTerminalStdin() bool {
	fi, err := os.Stdin.Stat()
	if err != nil {
		return false
	}
	return fi.Mode()&os.ModeCharDevice != 0
}

func (p *Proxy) readLoop(r reader, out chan<- []byte, errc chan<- error) {
	buf := make([]byte, readChunkSize)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			select {
			case out <- chunk:
			case <-p.shutdown:
				return
			}
		}
		if err != nil {
			select {
			case errc <- err:
			case <-p.shutdown:
			}
			return
		}
	}
}

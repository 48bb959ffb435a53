package flowcontrol

import "sync"

// PauseState holds the paused flag and the backlog messages accumulate
// into while paused, per spec.md §3 "Pause state".
type PauseState struct {
	mu      sync.Mutex
	paused  bool
	backlog []Message
}

// NewPauseState returns an unpaused state.
func NewPauseState() *PauseState {
	return &PauseState{}
}

// Paused reports whether delivery is currently suspended.
func (p *PauseState) Paused() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.paused
}

// Pause suspends delivery; messages passed to Append accumulate in the backlog.
func (p *PauseState) Pause() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.paused = true
}

// Append adds msg to the backlog. Caller should check Paused() first.
func (p *PauseState) Append(msg Message) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.backlog = append(p.backlog, msg)
}

// Resume clears the paused flag and returns the backlog in arrival order
// for the caller to deliver before any new arrivals.
func (p *PauseState) Resume() []Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.paused = false
	backlog := p.backlog
	p.backlog = nil
	return backlog
}

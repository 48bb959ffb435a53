package flowcontrol

import (
	"fmt"
	"os"
	"strings"
	"time"
)

// injectionPollInterval is the step size while waiting for idleness before
// injecting, per spec.md §4.3 step 4.
const injectionPollInterval = 50 * time.Millisecond

// DefaultInjectionTimeout is how long Deliver waits for idleness before
// injecting anyway with a warning.
const DefaultInjectionTimeout = 500 * time.Millisecond

// Writer is the subset of inject.Writer the injector depends on, kept
// local to avoid an import cycle between flowcontrol and inject.
type Writer interface {
	Inject(message string) error
}

// Injector implements the delivery decision in spec.md §4.3: control
// directives are applied rather than injected, paused messages queue,
// urgent messages bypass idleness, and everything else waits for an idle
// tick (up to a timeout) before injecting anyway.
type Injector struct {
	writer         Writer
	idle           *Controller
	pause          *PauseState
	selfAgentID    string
	isOrchestrator bool
	timeout        time.Duration

	onShareToggle func(enabled bool)
}

// NewInjector wires an injector around the given writer and idleness
// controller for one sidecar instance.
func NewInjector(writer Writer, idle *Controller, selfAgentID string, isOrchestrator bool, timeout time.Duration, onShareToggle func(bool)) *Injector {
	if timeout <= 0 {
		timeout = DefaultInjectionTimeout
	}
	return &Injector{
		writer:         writer,
		idle:           idle,
		pause:          NewPauseState(),
		selfAgentID:    selfAgentID,
		isOrchestrator: isOrchestrator,
		timeout:        timeout,
		onShareToggle:  onShareToggle,
	}
}

// Paused reports whether delivery is currently suspended. Used by the
// proxy loop to skip opportunistic queue draining while paused.
func (inj *Injector) Paused() bool {
	return inj.pause.Paused()
}

// Deliver applies the full decision sequence from spec.md §4.3 to an
// inbound gateway message. The idle wait polls in 50ms steps until the
// configured injection timeout has elapsed (rounded up to the next step),
// then injects.
func (inj *Injector) Deliver(msg Message) {
	content := strings.TrimSpace(msg.Content)
	lower := strings.ToLower(content)

	switch {
	case lower == "/pause" || strings.HasPrefix(lower, "csp_ctrl:pause"):
		inj.pause.Pause()
		fmt.Fprintf(os.Stderr, "[CSP] Paused injections for %s\n", inj.selfAgentID)
		return
	case lower == "/resume" || strings.HasPrefix(lower, "csp_ctrl:resume"):
		backlog := inj.pause.Resume()
		fmt.Fprintf(os.Stderr, "[CSP] Resumed injections for %s\n", inj.selfAgentID)
		for _, pending := range backlog {
			inj.writeNow(pending)
		}
		return
	case lower == "/share":
		if inj.onShareToggle != nil {
			inj.onShareToggle(true)
		}
		fmt.Fprintf(os.Stderr, "[CSP] Output sharing ENABLED for %s\n", inj.selfAgentID)
		return
	case lower == "/noshare":
		if inj.onShareToggle != nil {
			inj.onShareToggle(false)
		}
		fmt.Fprintf(os.Stderr, "[CSP] Output sharing DISABLED for %s\n", inj.selfAgentID)
		return
	}

	if inj.pause.Paused() {
		inj.pause.Append(msg)
		return
	}

	if strings.HasPrefix(content, "!") {
		msg.Content = strings.TrimSpace(strings.TrimPrefix(content, "!"))
		inj.writeNow(msg)
		return
	}

	var waited time.Duration
	for waited < inj.timeout {
		if inj.idle.IsIdle() {
			inj.writeNow(msg)
			return
		}
		time.Sleep(injectionPollInterval)
		waited += injectionPollInterval
	}

	fmt.Fprintln(os.Stderr, "[CSP] Warning: injecting message while agent may be busy")
	inj.writeNow(msg)
}

func (inj *Injector) writeNow(msg Message) {
	text := Format(msg, inj.isOrchestrator)
	if msg.TurnSignal == "your_turn" {
		fmt.Fprintln(os.Stderr, "[CSP] YOUR TURN - You are the active agent")
	} else if msg.TurnSignal == "turn_wait" && msg.OrchContext != nil {
		fmt.Fprintf(os.Stderr, "[CSP] WAITING (current turn: %s)\n", msg.OrchContext.CurrentTurn)
	}
	if err := inj.writer.Inject(text); err != nil {
		fmt.Fprintf(os.Stderr, "[CSP] Injection failed: %v\n", err)
	}
}

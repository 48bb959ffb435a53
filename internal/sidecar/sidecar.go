// Package sidecar wires the pty proxy, sanitizer, flow controller,
// injector, gateway transport, and command processor into one process
// lifecycle: starting → registered → running ⇄ paused → shutting_down →
// exited, per spec.md §4.5.
package sidecar

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hyper-ai-inc/csp-sidecar/internal/commands"
	"github.com/hyper-ai-inc/csp-sidecar/internal/flowcontrol"
	"github.com/hyper-ai-inc/csp-sidecar/internal/gateway"
	"github.com/hyper-ai-inc/csp-sidecar/internal/inject"
	"github.com/hyper-ai-inc/csp-sidecar/internal/ptyproxy"
	"github.com/hyper-ai-inc/csp-sidecar/internal/sanitizer"
)

// Config holds everything needed to launch one sidecar instance.
type Config struct {
	AgentName       string
	GatewayURL      string
	AuthToken       string
	InitialPrompt   string
	Argv            []string
	InjectionTimeout time.Duration
}

// Sidecar owns one supervised agent and all its cooperating subsystems.
type Sidecar struct {
	cfg Config

	pty      *ptyproxy.PTY
	proxy    *ptyproxy.Proxy
	client   *gateway.Client
	queue    *flowcontrol.Queue
	idle     *flowcontrol.Controller
	injector *flowcontrol.Injector
	cmds     *commands.Processor
	listener *gateway.Listener

	agentID        string
	isOrchestrator bool
	shareEnabled   atomic.Bool

	outBuf       *sanitizer.Buffer
	streamState  *sanitizer.Streaming
	outBufMu     sync.Mutex

	shutdown     chan struct{}
	shutdownOnce sync.Once
}

// New builds a sidecar for cfg but does not start it.
func New(cfg Config) *Sidecar {
	if cfg.InjectionTimeout <= 0 {
		cfg.InjectionTimeout = flowcontrol.DefaultInjectionTimeout
	}
	return &Sidecar{
		cfg:         cfg,
		client:      gateway.NewClient(cfg.GatewayURL, cfg.AuthToken),
		queue:       flowcontrol.NewQueue(),
		idle:        flowcontrol.NewController(cfg.AgentName),
		outBuf:      sanitizer.NewBuffer(),
		streamState: sanitizer.NewStreaming(),
		shutdown:    make(chan struct{}),

		isOrchestrator: strings.Contains(strings.ToLower(cfg.AgentName), "orchestrator"),
	}
}

// Run registers with the gateway, forks the agent under a pty, and blocks
// until the agent exits or shutdown is requested. It returns an error only
// when the agent cannot be started under a pty; other failures are logged
// to stderr per spec.md §7 and degrade gracefully.
func (s *Sidecar) Run() error {
	raw, err := ptyproxy.CaptureRawMode()
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: could not capture terminal state: %v\n", err)
	}

	s.register()

	cols, rows, err := ptyproxy.Size()
	if err != nil || cols == 0 || rows == 0 {
		cols, rows = 80, 24
	}

	p, err := ptyproxy.New(s.cfg.Argv, cols, rows)
	if err != nil {
		return fmt.Errorf("start agent: %w", err)
	}
	s.pty = p
	s.client.SetInstanceID(p.ID)
	fmt.Fprintf(os.Stderr, "[CSP] PTY instance %s started for agent %s\n", p.ID, s.cfg.AgentName)

	writer := inject.Select(p.Write)
	s.injector = flowcontrol.NewInjector(writer, s.idle, s.agentID, s.isOrchestrator, s.cfg.InjectionTimeout, s.setShareEnabled)

	if s.agentID != "" {
		s.cmds = commands.NewProcessor(s.client, s.agentID)
		s.listener = gateway.NewListener(s.client, s.agentID, s.shutdown, s.onInboxMessage)
		go s.listener.Run()
	}

	if s.cfg.InitialPrompt != "" {
		go func() {
			time.Sleep(500 * time.Millisecond)
			p.Write([]byte(s.cfg.InitialPrompt + "\n"))
		}()
	}

	s.proxy = ptyproxy.New(p, ptyproxy.Hooks{
		OnAgentOutput: s.onAgentOutput,
		IsIdle:        s.idle.IsIdle,
		Paused:        s.paused,
		TryInject:     s.tryDeliverQueued,
	})

	runErr := s.proxy.Run()

	s.teardown(raw)
	return runErr
}

func (s *Sidecar) register() {
	if s.cfg.AuthToken == "" {
		fmt.Fprintln(os.Stderr, "Error: No auth token provided - gateway requires authentication")
		return
	}

	requestedID := strings.ReplaceAll(strings.ToLower(s.cfg.AgentName), " ", "-")
	resp, err := s.client.Register(requestedID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: Failed to register with gateway, continuing in standalone mode: %v\n", err)
		return
	}
	s.agentID = resp.AgentID
	fmt.Fprintf(os.Stderr, "Successfully registered as agent %s\n", s.agentID)
}

func (s *Sidecar) paused() bool {
	if s.injector == nil {
		return false
	}
	return s.injector.Paused()
}

// tryDeliverQueued is invoked opportunistically by the proxy loop while
// the agent appears idle; it does not itself gate on idleness again since
// Injector.Deliver already applies the full decision sequence.
func (s *Sidecar) tryDeliverQueued() bool {
	msg, ok := s.queue.PopReady()
	if !ok {
		return false
	}
	s.injector.Deliver(msg)
	return true
}

func (s *Sidecar) onAgentOutput(chunk []byte) {
	s.idle.OnOutput(chunk)

	clean := s.streamState.Process(chunk)
	if clean == "" {
		return
	}

	if s.cmds != nil {
		for _, cmd := range commands.Detect(clean) {
			result := s.cmds.Execute(cmd)
			s.queue.Enqueue(flowcontrol.Message{
				Sender:    "CSP",
				Content:   result,
				Timestamp: time.Now(),
			}, flowcontrol.PriorityNormal)
			fmt.Fprintf(os.Stderr, "[CSP] Detected %s command, enqueued response\n", cmd.Type)
		}
	}

	s.outBufMu.Lock()
	boundary := s.outBuf.Append(clean)
	shouldFlush := s.outBuf.ShouldFlush(boundary)
	s.outBufMu.Unlock()

	if shouldFlush {
		s.flushOutput()
	}
}

func (s *Sidecar) flushOutput() {
	s.outBufMu.Lock()
	raw := s.outBuf.Flush()
	s.outBufMu.Unlock()

	if !s.shareEnabled.Load() || raw == "" || s.agentID == "" {
		return
	}

	cleaned := sanitizer.Clean(raw)
	if !sanitizer.PassesQualityGate(cleaned) {
		return
	}

	if err := s.client.PushOutput(s.agentID, cleaned); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
	}
}

func (s *Sidecar) setShareEnabled(enabled bool) {
	s.shareEnabled.Store(enabled)
}

// onInboxMessage adapts an inbound gateway.InboxMessage into a
// flowcontrol.Message and runs it through the injector's full delivery
// decision (spec.md §4.3).
func (s *Sidecar) onInboxMessage(msg gateway.InboxMessage) {
	turnSignal := flowcontrol.DeriveTurnSignal(msg.TurnSignal, msg.CurrentTurn, s.agentID)

	var ctx *flowcontrol.OrchestrationContext
	if s.isOrchestrator && msg.Context != nil {
		ctx = &flowcontrol.OrchestrationContext{
			Mode:        msg.Context.Mode,
			Round:       msg.Context.Round,
			MaxRounds:   msg.Context.MaxRounds,
			CurrentTurn: msg.Context.CurrentTurn,
			ElapsedMS:   msg.Context.ElapsedMS,
		}
	}

	s.injector.Deliver(flowcontrol.Message{
		Sender:      msg.From,
		Content:     msg.Content,
		Timestamp:   time.Now(),
		TurnSignal:  turnSignal,
		OrchContext: ctx,
	})
}

// Stop requests an orderly shutdown. Idempotent.
func (s *Sidecar) Stop() {
	s.shutdownOnce.Do(func() { close(s.shutdown) })
	if s.proxy != nil {
		s.proxy.Stop()
	}
}

// teardown executes the exact ordering required by spec.md §4.1: final
// flush, transport join, close master, restore terminal, unregister,
// reap child. Any step may fail silently but must not block later steps.
func (s *Sidecar) teardown(raw *ptyproxy.RawMode) {
	s.shutdownOnce.Do(func() { close(s.shutdown) })

	s.flushOutput()

	// Join the transport thread, bounded at 2s per spec.md §4.1/§5: the
	// listener's shutdown watcher closes its active connection as soon as
	// s.shutdown fires, unblocking whatever read it's parked in.
	if s.listener != nil {
		select {
		case <-s.listener.Stopped():
		case <-time.After(2 * time.Second):
			fmt.Fprintln(os.Stderr, "Warning: gateway transport did not shut down within 2s")
		}
	}

	if s.pty != nil {
		s.pty.Close()
	}

	if raw != nil {
		raw.Restore()
	}

	if s.agentID != "" {
		fmt.Fprintf(os.Stderr, "Agent %s shutting down\n", s.agentID)
		if err := s.client.Unregister(s.agentID); err != nil {
			fmt.Fprintf(os.Stderr, "Gateway unregister failed: %v\n", err)
		} else {
			fmt.Fprintln(os.Stderr, "Successfully unregistered from gateway")
		}
	}

	if s.pty != nil {
		s.pty.Wait()
	}
}

package sidecar

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hyper-ai-inc/csp-sidecar/internal/commands"
	"github.com/hyper-ai-inc/csp-sidecar/internal/flowcontrol"
	"github.com/hyper-ai-inc/csp-sidecar/internal/gateway"
)

type recordingWriter struct {
	messages []string
}

func (w *recordingWriter) Inject(message string) error {
	w.messages = append(w.messages, message)
	return nil
}

func TestNewDetectsOrchestratorByName(t *testing.T) {
	s := New(Config{AgentName: "Orchestrator-Prime", Argv: []string{"/bin/sh"}})
	if !s.isOrchestrator {
		t.Fatalf("expected orchestrator detection from agent name")
	}

	s2 := New(Config{AgentName: "claude-1", Argv: []string{"/bin/sh"}})
	if s2.isOrchestrator {
		t.Fatalf("expected non-orchestrator agent name to not be flagged")
	}
}

func TestNewDefaultsInjectionTimeout(t *testing.T) {
	s := New(Config{AgentName: "a", Argv: []string{"/bin/sh"}})
	if s.cfg.InjectionTimeout != flowcontrol.DefaultInjectionTimeout {
		t.Fatalf("expected default injection timeout, got %v", s.cfg.InjectionTimeout)
	}
}

func TestOnInboxMessageDerivesTurnSignalAndInjects(t *testing.T) {
	s := New(Config{AgentName: "myagent", Argv: []string{"/bin/sh"}, InjectionTimeout: 80 * time.Millisecond})
	s.agentID = "myagent"
	w := &recordingWriter{}
	s.injector = flowcontrol.NewInjector(w, s.idle, s.agentID, s.isOrchestrator, s.cfg.InjectionTimeout, s.setShareEnabled)

	s.onInboxMessage(gateway.InboxMessage{From: "orchestrator", Content: "go", CurrentTurn: "MyAgent"})

	if len(w.messages) != 1 || w.messages[0] != "[YOUR TURN] [From orchestrator]: go" {
		t.Fatalf("got %+v", w.messages)
	}
}

func TestOnAgentOutputDetectsCommandAndEnqueuesResult(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	s := New(Config{AgentName: "myagent", GatewayURL: srv.URL, AuthToken: "tok", Argv: []string{"/bin/sh"}})
	s.agentID = "myagent"
	s.client = gateway.NewClient(srv.URL, "tok")
	s.cmds = commands.NewProcessor(s.client, s.agentID)

	s.onAgentOutput([]byte("@all hello everyone\n"))

	if gotPath != "/message" {
		t.Fatalf("expected a /message call for @all, got path %q", gotPath)
	}
	if s.queue.Len() != 1 {
		t.Fatalf("expected the command result enqueued, got len=%d", s.queue.Len())
	}
	msg, ok := s.queue.PopReady()
	if !ok || msg.Content != "[CSP: Message broadcast to all agents]" {
		t.Fatalf("got %+v ok=%v", msg, ok)
	}
}

func TestShareDisabledBlocksOutputPush(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer srv.Close()

	s := New(Config{AgentName: "myagent", GatewayURL: srv.URL, AuthToken: "tok", Argv: []string{"/bin/sh"}})
	s.agentID = "myagent"
	s.client = gateway.NewClient(srv.URL, "tok")

	s.onAgentOutput([]byte("some plain agent output with enough length to pass the gate\n"))
	s.flushOutput()

	if called {
		t.Fatalf("expected no gateway call while sharing is disabled by default")
	}
}

package flowcontrol

import (
	"strings"
	"testing"
)

func TestFormatPlainMessage(t *testing.T) {
	got := Format(Message{Sender: "o", Content: "go"}, false)
	if got != "[From o]: go" {
		t.Fatalf("got %q", got)
	}
}

func TestFormatYourTurn(t *testing.T) {
	got := Format(Message{Sender: "o", Content: "go", TurnSignal: "your_turn"}, false)
	if got != "[YOUR TURN] [From o]: go" {
		t.Fatalf("got %q", got)
	}
}

func TestFormatOrchestrationPrefix(t *testing.T) {
	got := Format(Message{
		Sender:  "o",
		Content: "go",
		OrchContext: &OrchestrationContext{
			Mode:        "debate",
			Round:       1,
			MaxRounds:   3,
			CurrentTurn: "claude",
			ElapsedMS:   4200,
		},
	}, true)

	if !strings.HasPrefix(got, "[STATE: debate R2/3 Turn=claude 4s] ") {
		t.Fatalf("got %q", got)
	}
	if !strings.HasSuffix(got, "[From o]: go") {
		t.Fatalf("got %q", got)
	}
}

func TestDeriveTurnSignalExplicitWins(t *testing.T) {
	got := DeriveTurnSignal("turn_wait", "someone-else", "self")
	if got != "turn_wait" {
		t.Fatalf("got %q", got)
	}
}

func TestDeriveTurnSignalYourTurnCaseInsensitive(t *testing.T) {
	got := DeriveTurnSignal("", "MyAgent", "myagent")
	if got != "your_turn" {
		t.Fatalf("got %q", got)
	}
}

func TestDeriveTurnSignalTurnWaitForOthers(t *testing.T) {
	got := DeriveTurnSignal("", "other-agent", "myagent")
	if got != "turn_wait" {
		t.Fatalf("got %q", got)
	}
}

func TestDeriveTurnSignalEmptyWhenNoCurrentTurn(t *testing.T) {
	got := DeriveTurnSignal("", "", "myagent")
	if got != "" {
		t.Fatalf("got %q", got)
	}
}

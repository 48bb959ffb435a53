package flowcontrol

import (
	"fmt"
	"strings"
)

// Format renders a queued message into the literal text written into the
// agent's input stream, per spec.md §4.3 "Injection formatting".
func Format(msg Message, isOrchestrator bool) string {
	text := fmt.Sprintf("[From %s]: %s", msg.Sender, msg.Content)
	if msg.TurnSignal == "your_turn" {
		text = "[YOUR TURN] " + text
	}
	if isOrchestrator && msg.OrchContext != nil {
		text = formatOrchestrationPrefix(msg.OrchContext) + text
	}
	return text
}

func formatOrchestrationPrefix(ctx *OrchestrationContext) string {
	elapsedSeconds := ctx.ElapsedMS / 1000
	return fmt.Sprintf("[STATE: %s R%d/%d Turn=%s %ds] ", ctx.Mode, ctx.Round+1, ctx.MaxRounds, ctx.CurrentTurn, elapsedSeconds)
}

// DeriveTurnSignal fills in msg.TurnSignal by comparing currentTurn against
// the sidecar's own agent id when the gateway didn't set an explicit
// turnSignal, per spec.md §4.3 "Turn-signal synthesis".
func DeriveTurnSignal(turnSignal, currentTurn, selfAgentID string) string {
	if turnSignal != "" {
		return turnSignal
	}
	if currentTurn == "" {
		return ""
	}
	if strings.EqualFold(currentTurn, selfAgentID) {
		return "your_turn"
	}
	return "turn_wait"
}

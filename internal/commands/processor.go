// Package commands implements the in-band @-command and control-
// vocabulary scanner: agent output is scanned line by line for directives
// the agent can use to query history, message other agents, or drive
// orchestration, per spec.md §4.5.
package commands

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/hyper-ai-inc/csp-sidecar/internal/gateway"
)

var (
	queryLogPattern  = regexp.MustCompile(`@query\.log(?:\s+(\d+))?(?:\s+from=(\S+))?(?:\s+to=(\S+))?`)
	sendAgentPattern = regexp.MustCompile(`@send\.([\w-]+)\s+(.+)`)
	sendAllPattern   = regexp.MustCompile(`@all\s+(.+)`)
	modeSetPattern   = regexp.MustCompile(`@mode\.set\s+(\w+)\s+"([^"]+)"(?:\s+--rounds\s+(\d+))?`)
	modeStatusPattern = regexp.MustCompile(`@mode\.status`)
	noopPattern      = regexp.MustCompile(`(?i)^NOOP\s*$`)
	workingAtPattern = regexp.MustCompile(`(?i)^\s*@working\b(.*)$`)
	workingBarePattern = regexp.MustCompile(`^\s*WORKING\b(.*)$`)
)

// Type identifies which directive a Command carries.
type Type string

const (
	TypeQueryLog    Type = "query_log"
	TypeSendAgent   Type = "send_agent"
	TypeSendAll     Type = "send_all"
	TypeModeSet     Type = "mode_set"
	TypeModeStatus  Type = "mode_status"
	TypeNoop        Type = "noop"
	TypeWorking     Type = "working"
)

// Command is one directive detected in a line of agent output, along with
// its parsed arguments.
type Command struct {
	Type   Type
	Limit  int
	From   string
	To     string
	Target string

	Message string

	Mode   string
	Topic  string
	Rounds int

	Note string
}

// Detect scans text line by line for the first matching directive per
// line, in the same priority order as the original pattern list.
func Detect(text string) []Command {
	var commands []Command
	for _, line := range strings.Split(text, "\n") {
		if m := queryLogPattern.FindStringSubmatch(line); m != nil {
			limit := 50
			if m[1] != "" {
				if n, err := strconv.Atoi(m[1]); err == nil {
					limit = n
				}
			}
			commands = append(commands, Command{Type: TypeQueryLog, Limit: limit, From: m[2], To: m[3]})
			continue
		}
		if m := sendAgentPattern.FindStringSubmatch(line); m != nil {
			commands = append(commands, Command{Type: TypeSendAgent, Target: m[1], Message: strings.TrimSpace(m[2])})
			continue
		}
		if m := sendAllPattern.FindStringSubmatch(line); m != nil {
			commands = append(commands, Command{Type: TypeSendAll, Message: strings.TrimSpace(m[1])})
			continue
		}
		if m := modeSetPattern.FindStringSubmatch(line); m != nil {
			rounds := 3
			if m[3] != "" {
				if n, err := strconv.Atoi(m[3]); err == nil {
					rounds = n
				}
			}
			commands = append(commands, Command{Type: TypeModeSet, Mode: m[1], Topic: m[2], Rounds: rounds})
			continue
		}
		if modeStatusPattern.MatchString(line) {
			commands = append(commands, Command{Type: TypeModeStatus})
			continue
		}
		if noopPattern.MatchString(line) {
			commands = append(commands, Command{Type: TypeNoop})
			continue
		}
		m := workingAtPattern.FindStringSubmatch(line)
		if m == nil {
			m = workingBarePattern.FindStringSubmatch(line)
		}
		if m != nil {
			commands = append(commands, Command{Type: TypeWorking, Note: strings.TrimSpace(m[1])})
			continue
		}
	}
	return commands
}

// Processor executes detected commands against the gateway and returns
// the operator-facing [CSP: ...] result text.
type Processor struct {
	client  *gateway.Client
	agentID string
}

// NewProcessor returns a processor that executes commands as agentID.
func NewProcessor(client *gateway.Client, agentID string) *Processor {
	return &Processor{client: client, agentID: agentID}
}

// Execute runs cmd and returns its result envelope. It never panics or
// propagates an error: any failure is folded into the returned string so
// it can be queued straight back to the agent.
func (p *Processor) Execute(cmd Command) (result string) {
	defer func() {
		if r := recover(); r != nil {
			result = fmt.Sprintf("[CSP Error: %v]", r)
		}
	}()

	switch cmd.Type {
	case TypeQueryLog:
		return p.executeQueryLog(cmd)
	case TypeSendAgent:
		return p.executeSendAgent(cmd)
	case TypeSendAll:
		return p.executeSendAll(cmd)
	case TypeModeSet:
		return p.executeModeSet(cmd)
	case TypeModeStatus:
		return p.executeModeStatus()
	case TypeNoop:
		return "[CSP: NOOP acknowledged]"
	case TypeWorking:
		return p.executeWorking(cmd)
	default:
		return fmt.Sprintf("[CSP: Unknown command type: %s]", cmd.Type)
	}
}

func (p *Processor) executeQueryLog(cmd Command) string {
	messages, err := p.client.History(cmd.Limit)
	if err != nil {
		return fmt.Sprintf("[CSP: History query error - %v]", err)
	}
	if len(messages) == 0 {
		return "[CSP: No messages in history]"
	}

	var b strings.Builder
	b.WriteString("[CSP: Recent messages]\n")
	for _, msg := range messages {
		content := msg.Content
		if len(content) > 100 {
			content = content[:100]
		}
		sender := msg.From
		if sender == "" {
			sender = "unknown"
		}
		fmt.Fprintf(&b, "[%s] %s: %s\n", formatTimestamp(msg.Timestamp), sender, content)
	}
	return strings.TrimRight(b.String(), "\n")
}

func formatTimestamp(ts string) string {
	// Gateway timestamps are ISO-8601; the sidecar only needs the clock
	// portion for the operator-facing log line.
	if idx := strings.Index(ts, "T"); idx >= 0 && len(ts) >= idx+9 {
		return ts[idx+1 : idx+9]
	}
	return ts
}

func (p *Processor) executeSendAgent(cmd Command) string {
	if err := p.client.SendMessage(p.agentID, cmd.Target, cmd.Message); err != nil {
		return fmt.Sprintf("[CSP: Send error - %v]", err)
	}
	return fmt.Sprintf("[CSP: Message sent to %s]", cmd.Target)
}

func (p *Processor) executeSendAll(cmd Command) string {
	if err := p.client.SendMessage(p.agentID, "broadcast", cmd.Message); err != nil {
		return fmt.Sprintf("[CSP: Broadcast error - %v]", err)
	}
	return "[CSP: Message broadcast to all agents]"
}

func (p *Processor) executeModeSet(cmd Command) string {
	agentIDs, err := p.client.ConnectedAgents(p.agentID)
	if err != nil {
		agentIDs = nil
	}
	if err := p.client.SetMode(cmd.Mode, cmd.Topic, cmd.Rounds, agentIDs); err != nil {
		return fmt.Sprintf("[CSP: Mode set error - %v]", err)
	}
	return fmt.Sprintf("[CSP: Mode set to %s - Topic: %s]", strings.ToUpper(cmd.Mode), cmd.Topic)
}

func (p *Processor) executeModeStatus() string {
	status, err := p.client.GetMode()
	if err != nil {
		return fmt.Sprintf("[CSP: Status query error - %v]", err)
	}

	if status.Mode == "" || status.Mode == "freeform" {
		return "[CSP: Mode=FREEFORM (no structured collaboration active)]"
	}

	currentTurn := "N/A"
	if status.CurrentTurnIndex < len(status.TurnOrder) {
		currentTurn = status.TurnOrder[status.CurrentTurnIndex]
	}
	maxRounds := status.MaxRounds
	if maxRounds == 0 {
		maxRounds = 3
	}
	return fmt.Sprintf("[CSP: Mode=%s, Topic=%s, Round=%d/%d, CurrentTurn=%s]",
		strings.ToUpper(status.Mode), status.Topic, status.Round+1, maxRounds, currentTurn)
}

func (p *Processor) executeWorking(cmd Command) string {
	content := "WORKING"
	if cmd.Note != "" {
		content = "WORKING " + cmd.Note
	}
	if err := p.client.SendMessage(p.agentID, "broadcast", content); err != nil {
		return fmt.Sprintf("[CSP: Working signal error - %v]", err)
	}
	return "[CSP: Working acknowledged]"
}

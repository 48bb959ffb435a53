// Package flowcontrol tracks agent output activity to decide when it is
// safe to inject a queued message, and holds the priority queues and
// pause/backlog state those injections flow through.
package flowcontrol

import (
	"regexp"
	"strings"
	"sync"
	"time"
)

// tailBufferSize bounds how much of the recent agent output is kept for
// prompt-tail detection (spec.md §3).
const tailBufferSize = 200

// Tuning holds the idleness thresholds for one agent class.
type Tuning struct {
	MinSilence  time.Duration
	LongSilence time.Duration
}

// DefaultTuning is used when no substring in the agent-tuning table matches.
var DefaultTuning = Tuning{MinSilence: 300 * time.Millisecond, LongSilence: 2 * time.Second}

// tuningTable maps a case-insensitive substring of the agent name to its
// tuning, mirroring the teacher's substring-keyed lookup pattern and the
// original's if/elif chain on agent_name.lower().
var tuningTable = []struct {
	substr string
	tuning Tuning
}{
	{"claude", Tuning{MinSilence: 500 * time.Millisecond, LongSilence: 3 * time.Second}},
	{"codex", Tuning{MinSilence: 200 * time.Millisecond, LongSilence: 2 * time.Second}},
}

// TuningFor resolves the idleness tuning for an agent name by
// case-insensitive substring match, falling back to DefaultTuning.
func TuningFor(agentName string) Tuning {
	lower := strings.ToLower(agentName)
	for _, entry := range tuningTable {
		if strings.Contains(lower, entry.substr) {
			return entry.tuning
		}
	}
	return DefaultTuning
}

// promptPatterns detect a tail that looks like the agent is waiting on
// input, ported from the original FlowController.prompt_patterns.
var promptPatterns = []*regexp.Regexp{
	regexp.MustCompile(`[>$#]\s*$`),
	regexp.MustCompile(`\?\s*$`),
	regexp.MustCompile(`:\s*$`),
	regexp.MustCompile(`(?i)\[y/n\]\s*$`),
	regexp.MustCompile(`(?i)Press.*to continue`),
}

// Controller tracks output silence and the recent output tail to decide
// idleness, per the predicate in spec.md §4.3.
type Controller struct {
	tuning Tuning

	mu     sync.Mutex
	lastTS time.Time
	tail   []byte
}

// NewController returns a controller tuned for agentName.
func NewController(agentName string) *Controller {
	return &Controller{
		tuning: TuningFor(agentName),
		lastTS: time.Now(),
	}
}

// OnOutput records that output was just observed, resetting the silence
// clock and appending to the bounded tail buffer.
func (c *Controller) OnOutput(data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastTS = time.Now()
	c.tail = append(c.tail, data...)
	if len(c.tail) > tailBufferSize {
		c.tail = c.tail[len(c.tail)-tailBufferSize:]
	}
}

// IsIdle evaluates the idleness predicate from spec.md §4.3.
func (c *Controller) IsIdle() bool {
	c.mu.Lock()
	silence := time.Since(c.lastTS)
	tail := string(c.tail)
	c.mu.Unlock()

	if silence < c.tuning.MinSilence {
		return false
	}
	if silence >= c.tuning.LongSilence {
		return true
	}
	for _, pattern := range promptPatterns {
		if pattern.MatchString(tail) {
			return true
		}
	}
	return false
}
